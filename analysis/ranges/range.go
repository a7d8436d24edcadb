// Copyright the Ingot Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ranges computes a conservative interval for every integer-typed
// value. Per-function worklists run under an iteration cap; the cross-module
// fixed point is reached by the outer driver re-running the module pass while
// anything still grows. Growth across back edges is budgeted: an entry may
// grow strictly up to maxBackGrowths times before it saturates to the full
// set, so loop counters bounded by their latch condition converge exactly
// while unbounded counters saturate.
package ranges

import (
	"fmt"
	"io"

	"github.com/ingot-tools/ingot/analysis/annotation"
	"github.com/ingot-tools/ingot/analysis/callgraph"
	"github.com/ingot-tools/ingot/analysis/config"
	"github.com/ingot-tools/ingot/analysis/ir"
	"github.com/ingot-tools/ingot/internal/funcutil"
)

// ValueRangeMap holds the range asserted for each value on entry to a block,
// extended with the ranges of the block's own results as they are computed.
type ValueRangeMap = map[ir.Value]Range

type widenKey struct {
	blk *ir.Block
	val ir.Value
}

// Pass is the inter-procedural range propagator.
type Pass struct {
	prog *ir.Program
	cfg  *config.Config
	log  *config.LogGroup
	cg   *callgraph.Pass

	// IntRanges is the flow-insensitive summary store keyed by identifier.
	IntRanges map[string]Range

	// FuncVRMs are the per-function, per-block value range maps.
	FuncVRMs map[*ir.Func]map[*ir.Block]ValueRangeMap

	backEdges map[[2]*ir.Block]bool
	widened   map[widenKey]int
	changed   bool
}

// NewPass returns a range pass resolving calls through cg.
func NewPass(prog *ir.Program, cfg *config.Config, cg *callgraph.Pass, log *config.LogGroup) *Pass {
	return &Pass{
		prog:      prog,
		cfg:       cfg,
		log:       log,
		cg:        cg,
		IntRanges: map[string]Range{},
		FuncVRMs:  map[*ir.Func]map[*ir.Block]ValueRangeMap{},
		widened:   map[widenKey]int{},
	}
}

// DoInitialization seeds IntRanges from the integer constant initializers of
// a module's globals.
func (p *Pass) DoInitialization(m *ir.Module) {
	for _, g := range m.Globals {
		if g.Init != nil {
			p.collectInitializers(m, g.Init, annotation.VarID(g))
		}
	}
}

func (p *Pass) collectInitializers(m *ir.Module, c ir.Constant, id string) {
	switch c := c.(type) {
	case *ir.Const:
		p.unionGlobal(id, Singleton(c.Ty.Bits, c.V))
	case *ir.StructConst:
		for i, f := range c.Fields {
			fid := annotation.StructID(c.Ty, m, p.prog.DL.StructOffset(c.Ty, i))
			p.collectInitializers(m, f, fid)
		}
	case *ir.ArrayConst:
		for _, e := range c.Elems {
			p.collectInitializers(m, e, id)
		}
	}
}

// unionGlobal grows the summary for id under the widening join.
func (p *Pass) unionGlobal(id string, r Range) bool {
	if id == "" || r.IsEmpty() {
		return false
	}
	cur, ok := p.IntRanges[id]
	if !ok {
		p.IntRanges[id] = r
		p.changed = true
		return true
	}
	next := cur.SafeUnion(r)
	if next.Equal(cur) {
		return false
	}
	p.IntRanges[id] = next
	p.changed = true
	return true
}

// getRange resolves the range of v against the block-local map, constants,
// and identifier summaries. Instruction results not yet computed read as the
// empty set; unknown external values read as the full set.
func (p *Pass) getRange(vrm ValueRangeMap, v ir.Value) Range {
	w := ir.IntWidth(v.Type())
	if w == 0 || w > 64 {
		return Full(64)
	}
	if c, ok := v.(*ir.Const); ok {
		return Singleton(w, c.V)
	}
	if r, ok := vrm[v]; ok {
		return r
	}
	if id := annotation.ValueID(v); id != "" {
		if r, ok := p.IntRanges[id]; ok {
			return r
		}
	}
	if _, ok := v.(ir.Instruction); ok {
		return Empty(w)
	}
	return Full(w)
}

// DoModulePass sweeps every function of m up to the iteration cap. It reports
// whether any summary grew or any per-function map is still growing.
func (p *Pass) DoModulePass(m *ir.Module) bool {
	p.changed = false
	unconverged := false
	for _, f := range m.Funcs {
		if f.IsDecl() {
			continue
		}
		if p.updateRangeFor(f) {
			unconverged = true
		}
	}
	return p.changed || unconverged
}

// updateRangeFor sweeps f until its maps stop growing or the cap is reached.
// It reports whether the last sweep still changed something.
func (p *Pass) updateRangeFor(f *ir.Func) bool {
	p.backEdges = ir.BackEdges(f)
	if p.FuncVRMs[f] == nil {
		p.FuncVRMs[f] = map[*ir.Block]ValueRangeMap{}
	}
	sweepChanged := false
	for iter := 0; iter < p.cfg.MaxRangeIterations; iter++ {
		sweepChanged = false
		for _, bb := range f.Blocks {
			if p.updateBlock(f, bb) {
				sweepChanged = true
			}
		}
		if !sweepChanged {
			break
		}
	}
	return sweepChanged
}

// updateBlock merges the predecessor states through their terminator's edge
// refinement, then applies the transfer function of every instruction.
func (p *Pass) updateBlock(f *ir.Func, bb *ir.Block) bool {
	fvrm := p.FuncVRMs[f]
	vrm := fvrm[bb]
	if vrm == nil {
		vrm = ValueRangeMap{}
		fvrm[bb] = vrm
	}
	changed := false

	for _, pred := range bb.Preds() {
		pvrm := fvrm[pred]
		if pvrm == nil {
			continue
		}
		tmp := make(ValueRangeMap, len(pvrm))
		for v, r := range pvrm {
			tmp[v] = r
		}
		p.visitTerminator(pred.Term(), pred, bb, tmp)
		isBack := p.backEdges[[2]*ir.Block{pred, bb}]
		for v, r := range tmp {
			if p.unionEntry(vrm, bb, v, r, isBack) {
				changed = true
			}
		}
	}

	for _, inst := range bb.Instrs {
		if p.updateInstr(f, vrm, inst) {
			changed = true
		}
	}
	return changed
}

// maxBackGrowths is the number of exact strict growths a (block, value) entry
// may take through back edges before it saturates to the full set. Loop
// counters bounded by their latch condition reach their fixed point well
// under the bound; unbounded counters widen after a handful of sweeps.
const maxBackGrowths = 16

// unionEntry grows the entry range of v at bb, counting strict growths across
// back edges and saturating once the budget is spent.
func (p *Pass) unionEntry(vrm ValueRangeMap, bb *ir.Block, v ir.Value, r Range, isBack bool) bool {
	cur, ok := vrm[v]
	if !ok {
		cur = Empty(r.Width())
	}
	next := cur.SafeUnion(r)
	if next.Equal(cur) {
		return false
	}
	if isBack {
		key := widenKey{blk: bb, val: v}
		p.widened[key]++
		if p.widened[key] > maxBackGrowths {
			next = Full(r.Width())
			if next.Equal(cur) {
				return false
			}
		}
	}
	vrm[v] = next
	return true
}

// unionLocal grows the block-local range of an instruction result.
func (p *Pass) unionLocal(vrm ValueRangeMap, v ir.Value, r Range) bool {
	cur, ok := vrm[v]
	if !ok {
		vrm[v] = r
		return !r.IsEmpty()
	}
	next := cur.SafeUnion(r)
	if next.Equal(cur) {
		return false
	}
	vrm[v] = next
	return true
}

// updateInstr applies the transfer function of inst and pushes summaries for
// stores, returns and call arguments.
func (p *Pass) updateInstr(f *ir.Func, vrm ValueRangeMap, inst ir.Instruction) bool {
	switch i := inst.(type) {
	case *ir.StoreInst:
		if md := i.MD(annotation.MDID); md != nil && ir.IsInteger(i.Val.Type()) {
			return p.unionGlobal(md.S, p.getRange(vrm, i.Val))
		}
		return false
	case *ir.RetInst:
		if i.X != nil && ir.IsInteger(i.X.Type()) {
			return p.unionGlobal(annotation.RetID(f), p.getRange(vrm, i.X))
		}
		return false
	case *ir.CallInst:
		return p.visitCall(vrm, i)
	}

	w := ir.IntWidth(inst.Type())
	if w == 0 || w > 64 {
		return false
	}
	var r Range
	switch i := inst.(type) {
	case *ir.BinInst:
		r = p.visitBinOp(vrm, i)
	case *ir.CastInst:
		r = p.visitCast(vrm, i)
	case *ir.SelectInst:
		r = p.getRange(vrm, i.T).Union(p.getRange(vrm, i.F))
	case *ir.PhiInst:
		r = p.visitPhi(vrm, i)
	case *ir.LoadInst:
		r = Full(w)
		if md := i.MD(annotation.MDID); md != nil {
			if s, ok := p.IntRanges[md.S]; ok {
				r = s
			}
		}
	case *ir.CmpInst:
		r = Full(1)
	default:
		r = Full(w)
	}
	if phi, ok := inst.(*ir.PhiInst); ok && p.phiHasBackEdge(phi) {
		return p.unionWiden(vrm, phi, r)
	}
	return p.unionLocal(vrm, inst, r)
}

// unionWiden is unionLocal with the back-edge growth budget applied; it backs
// the stores of loop-carried phis.
func (p *Pass) unionWiden(vrm ValueRangeMap, v ir.Instruction, r Range) bool {
	cur, ok := vrm[v]
	if !ok {
		cur = Empty(r.Width())
	}
	next := cur.SafeUnion(r)
	if next.Equal(cur) {
		return false
	}
	key := widenKey{blk: v.Parent(), val: v}
	p.widened[key]++
	if p.widened[key] > maxBackGrowths {
		next = Full(r.Width())
		if next.Equal(cur) {
			return false
		}
	}
	vrm[v] = next
	return true
}

func (p *Pass) visitBinOp(vrm ValueRangeMap, i *ir.BinInst) Range {
	l := p.getRange(vrm, i.X)
	r := p.getRange(vrm, i.Y)
	switch i.Op {
	case ir.OpAdd:
		return l.Add(r)
	case ir.OpSub:
		return l.Sub(r)
	case ir.OpMul:
		return l.Mul(r)
	case ir.OpUDiv:
		return l.UDiv(r)
	case ir.OpSDiv:
		return l.SDiv(r)
	case ir.OpURem:
		return l.URem(r)
	case ir.OpSRem:
		return l.SRem(r)
	case ir.OpShl:
		return l.Shl(r)
	case ir.OpLShr:
		return l.LShr(r)
	case ir.OpAShr:
		return l.AShr(r)
	case ir.OpAnd:
		return l.And(r)
	case ir.OpOr:
		return l.Or(r)
	case ir.OpXor:
		return l.Xor(r)
	}
	return Full(l.Width())
}

func (p *Pass) visitCast(vrm ValueRangeMap, i *ir.CastInst) Range {
	dw := ir.IntWidth(i.To)
	switch i.Kind {
	case ir.CastTrunc:
		return p.getRange(vrm, i.X).Trunc(dw)
	case ir.CastZExt:
		return p.getRange(vrm, i.X).ZExt(dw)
	case ir.CastSExt:
		return p.getRange(vrm, i.X).SExt(dw)
	case ir.CastBitCast:
		if ir.IntWidth(i.X.Type()) == dw {
			return p.getRange(vrm, i.X)
		}
	}
	return Full(dw)
}

// visitPhi joins the incoming values, each evaluated under the refinement of
// its own edge, so that a latch branch bounds the loop-carried contribution.
func (p *Pass) visitPhi(vrm ValueRangeMap, i *ir.PhiInst) Range {
	w := ir.IntWidth(i.Ty)
	bb := i.Parent()
	r := Empty(w)
	fvrm := p.FuncVRMs[bb.Fn]
	for _, e := range i.Edges {
		base := fvrm[e.Pred]
		tmp := make(ValueRangeMap, len(base)+1)
		for v, vr := range base {
			tmp[v] = vr
		}
		if e.Pred.Term() != nil {
			p.visitTerminator(e.Pred.Term(), e.Pred, bb, tmp)
		}
		r = r.Union(p.getRange(tmp, e.V))
	}
	return r
}

// phiHasBackEdge reports whether any incoming edge of the phi closes a cycle.
func (p *Pass) phiHasBackEdge(i *ir.PhiInst) bool {
	for _, e := range i.Edges {
		if p.backEdges[[2]*ir.Block{e.Pred, i.Parent()}] {
			return true
		}
	}
	return false
}

// visitCall joins callee return summaries for the result and pushes argument
// ranges into the callees' argument summaries.
func (p *Pass) visitCall(vrm ValueRangeMap, ci *ir.CallInst) bool {
	changed := false
	callees := p.cg.Resolve(ci)
	for _, callee := range callees {
		if callee.IsVariadic() || isSynthesized(callee.FName) {
			continue
		}
		for a, arg := range ci.Args {
			if !ir.IsInteger(arg.Type()) {
				continue
			}
			if ar := p.getRange(vrm, arg); !ar.IsEmpty() {
				changed = p.unionGlobal(annotation.ArgID(callee, a), ar) || changed
			}
		}
	}

	w := ir.IntWidth(ci.Type())
	if w == 0 || w > 64 {
		return changed
	}
	r := Full(w)
	if md := ci.MD(annotation.MDID); md != nil {
		// synthetic argument call: the summary of the argument slot
		if s, ok := p.IntRanges[md.S]; ok {
			r = s
		}
	} else if len(callees) > 0 {
		joined := Empty(w)
		complete := true
		for _, callee := range callees {
			s, ok := p.IntRanges[annotation.RetID(callee)]
			if !ok {
				complete = false
				break
			}
			joined = joined.Union(s)
		}
		if complete {
			r = joined
		}
	}
	return p.unionLocal(vrm, ci, r) || changed
}

// visitTerminator applies the refinement of the edge pred->dest to tmp.
func (p *Pass) visitTerminator(term ir.Instruction, pred, dest *ir.Block, tmp ValueRangeMap) {
	switch t := term.(type) {
	case *ir.CondBrInst:
		if t.True == t.False {
			return
		}
		cmp, ok := t.Cond.(*ir.CmpInst)
		if !ok {
			return
		}
		prd := cmp.Pred
		if dest == t.False {
			prd = prd.Inverse()
		}
		p.refineCompare(tmp, cmp.X, cmp.Y, prd)
	case *ir.SwitchInst:
		if !ir.IsInteger(t.X.Type()) {
			return
		}
		w := ir.IntWidth(t.X.Type())
		x := p.getRange(tmp, t.X)
		if dest == t.Default {
			for _, c := range t.Cases {
				x = x.Intersect(AllowedICmpRegion(CmpNE, Singleton(w, c.Val)))
			}
			tmp[t.X] = x
			return
		}
		caseSet := Empty(w)
		for _, c := range t.Cases {
			if c.Dest == dest {
				caseSet = caseSet.Union(Singleton(w, c.Val))
			}
		}
		if !caseSet.IsEmpty() {
			tmp[t.X] = x.Intersect(caseSet)
		}
	}
}

// refineCompare intersects the ranges of both comparison operands with the
// pre-image of the predicate holding.
func (p *Pass) refineCompare(tmp ValueRangeMap, x, y ir.Value, prd ir.Pred) {
	rx := p.getRange(tmp, x)
	ry := p.getRange(tmp, y)
	if ir.IsInteger(x.Type()) {
		if _, isConst := x.(*ir.Const); !isConst {
			tmp[x] = rx.Intersect(AllowedICmpRegion(convPred(prd), ry))
		}
	}
	if ir.IsInteger(y.Type()) {
		if _, isConst := y.(*ir.Const); !isConst {
			tmp[y] = ry.Intersect(AllowedICmpRegion(convPred(prd.Swapped()), rx))
		}
	}
}

func convPred(p ir.Pred) Predicate {
	switch p {
	case ir.PredEQ:
		return CmpEQ
	case ir.PredNE:
		return CmpNE
	case ir.PredSGE:
		return CmpSGE
	case ir.PredSGT:
		return CmpSGT
	case ir.PredSLE:
		return CmpSLE
	case ir.PredSLT:
		return CmpSLT
	case ir.PredUGE:
		return CmpUGE
	case ir.PredUGT:
		return CmpUGT
	case ir.PredULE:
		return CmpULE
	default:
		return CmpULT
	}
}

func isSynthesized(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return true
		}
	}
	return false
}

// DoFinalization tags every integer-typed instruction with its final interval
// as intrange metadata.
func (p *Pass) DoFinalization(m *ir.Module) {
	for _, f := range m.Funcs {
		fvrm := p.FuncVRMs[f]
		for _, bb := range f.Blocks {
			vrm := fvrm[bb]
			for _, inst := range bb.Instrs {
				w := ir.IntWidth(inst.Type())
				if w == 0 || w > 64 {
					continue
				}
				r := Full(w)
				if vrm != nil {
					if vr, ok := vrm[inst]; ok {
						r = vr
					}
				}
				inst.SetMD(annotation.MDIntRange, &ir.MDNode{Pairs: [][2]uint64{r.MetaPair()}})
			}
		}
	}
}

// RangeOf returns the final range recorded for an instruction, or the full
// set when none was computed.
func (p *Pass) RangeOf(inst ir.Instruction) Range {
	w := ir.IntWidth(inst.Type())
	if w == 0 {
		return Full(64)
	}
	if fvrm := p.FuncVRMs[inst.Parent().Fn]; fvrm != nil {
		if vrm := fvrm[inst.Parent()]; vrm != nil {
			if r, ok := vrm[inst]; ok {
				return r
			}
		}
	}
	return Full(w)
}

// DumpRanges writes the identifier summaries in deterministic order.
func (p *Pass) DumpRanges(w io.Writer) {
	for _, id := range funcutil.SortedKeys(p.IntRanges) {
		fmt.Fprintf(w, "%s\t%s\n", id, p.IntRanges[id])
	}
}
