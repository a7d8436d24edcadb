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

// Package intcheck runs the per-function symbolic checker after the analyses
// reached their fixed point. For every sink-tagged size computation it asks
// the solver whether an input within the computed ranges reaches the
// operation and overflows it, and reports the findings as a diagnostic
// stream. The shared stores are read-only here, so functions check in
// parallel.
package intcheck

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/ingot-tools/ingot/analysis/annotation"
	"github.com/ingot-tools/ingot/analysis/config"
	"github.com/ingot-tools/ingot/analysis/encode"
	"github.com/ingot-tools/ingot/analysis/ir"
	"github.com/ingot-tools/ingot/analysis/smt"
	"golang.org/x/sync/errgroup"
)

// Checker drives the satisfiability queries over annotated functions.
type Checker struct {
	prog *ir.Program
	cfg  *config.Config
	log  *config.LogGroup

	// Colored selects terminal rendering of bug lines.
	Colored bool
}

// NewChecker returns a checker over prog.
func NewChecker(prog *ir.Program, cfg *config.Config, log *config.LogGroup) *Checker {
	return &Checker{prog: prog, cfg: cfg, log: log}
}

// Run checks every function and writes the diagnostic stream to w. Function
// order in the output follows the program's function table regardless of the
// number of workers.
func (c *Checker) Run(w io.Writer) error {
	funcs := c.prog.Funcs()
	outs := make([][]byte, len(funcs))
	g := errgroup.Group{}
	jobs := c.cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}
	g.SetLimit(jobs)
	for idx, f := range funcs {
		if f.IsDecl() || !c.cfg.MatchFuncFilter(f.FName) {
			continue
		}
		idx, f := idx, f
		g.Go(func() error {
			outs[idx] = c.checkFunction(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, out := range outs {
		if _, err := w.Write(out); err != nil {
			return err
		}
	}
	return nil
}

// checkFunction queries every sink-tagged arithmetic operation of f under
// its block reachability guard.
func (c *Checker) checkFunction(f *ir.Func) []byte {
	var buf bytes.Buffer
	diag := NewDiagnostic(&buf, c.Colored)

	solver := smt.NewContext()
	enc := encode.NewEncoder(c.prog.DL, solver)
	defer enc.Close()
	guards := c.buildGuards(f, enc, solver)
	defer func() {
		for _, g := range guards {
			solver.Decref(g)
		}
	}()

	reported := map[ir.Value]bool{}
	ir.IterateInstructions(f, func(inst ir.Instruction) {
		bi, ok := inst.(*ir.BinInst)
		if !ok || inst.MD(annotation.MDSink) == nil || reported[inst] {
			return
		}
		guard := guards[inst.Parent()]
		for _, q := range c.sinkQueries(enc, solver, bi) {
			st, model := c.query(solver, q.pred, guard)
			solver.Decref(q.pred)
			if st == smt.StatusUnsat {
				continue
			}
			reported[inst] = true
			diag.Bug(fmt.Sprintf("%s in %s size", q.kind, inst.MD(annotation.MDSink).S))
			diag.Taint(inst)
			diag.Status(st)
			diag.Backtrace(inst)
			if c.cfg.ReportModel && st == smt.StatusSat {
				diag.Model(model)
			}
		}
	})
	return buf.Bytes()
}

type sinkQuery struct {
	kind string
	pred *smt.Term
}

// sinkQueries builds the trap predicates of a size-defining operation:
// overflow for add, sub and mul, out-of-range amounts for shifts, and
// divide faults for divisions.
func (c *Checker) sinkQueries(enc *encode.Encoder, s *smt.Context, bi *ir.BinInst) []sinkQuery {
	w := ir.IntWidth(bi.Type())
	switch bi.Op {
	case ir.OpAdd, ir.OpSub, ir.OpMul:
		pred := enc.OverflowPred(bi)
		name := map[ir.BinOpKind]string{ir.OpAdd: "add", ir.OpSub: "sub", ir.OpMul: "mul"}[bi.Op]
		sign := "u"
		if bi.NSW {
			sign = "s"
		}
		return []sinkQuery{{kind: sign + name + " overflow", pred: pred}}
	case ir.OpShl, ir.OpLShr, ir.OpAShr:
		amt := enc.Get(bi.Y)
		wc := s.BVConst(w, uint64(w))
		pred := s.BVUge(amt, wc)
		s.Decref(wc)
		return []sinkQuery{{kind: "shift out of range", pred: pred}}
	case ir.OpUDiv, ir.OpSDiv:
		den := enc.Get(bi.Y)
		zero := s.BVConst(w, 0)
		pred := s.Eq(den, zero)
		s.Decref(zero)
		if bi.Op == ir.OpSDiv {
			num := enc.Get(bi.X)
			smin := s.BVConst(w, uint64(1)<<(w-1))
			mone := s.BVConst(w, ^uint64(0))
			l := s.Eq(num, smin)
			r := s.Eq(den, mone)
			both := s.BVAnd(l, r)
			either := s.BVOr(pred, both)
			s.Decref(smin)
			s.Decref(mone)
			s.Decref(l)
			s.Decref(r)
			s.Decref(both)
			s.Decref(pred)
			pred = either
		}
		return []sinkQuery{{kind: "division fault", pred: pred}}
	}
	return nil
}

// query decides pred under the block guard and the accumulated range
// assumptions.
func (c *Checker) query(s *smt.Context, pred, guard *smt.Term) (smt.Status, smt.Model) {
	q := pred
	if guard != nil {
		q = s.BVAnd(pred, guard)
		defer s.Decref(q)
	}
	deadline := time.Time{}
	if c.cfg.SolverTimeoutMillis > 0 {
		deadline = time.Now().Add(time.Duration(c.cfg.SolverTimeoutMillis) * time.Millisecond)
	}
	return s.Query(q, deadline)
}

// buildGuards returns, per block, a 1-bit reachability expression: the entry
// is reachable; every other block is reachable through some non-back-edge
// predecessor whose branch takes the edge. The caller owns the references.
func (c *Checker) buildGuards(f *ir.Func, enc *encode.Encoder, s *smt.Context) map[*ir.Block]*smt.Term {
	guards := map[*ir.Block]*smt.Term{}
	if f.EntryBlock() == nil {
		return guards
	}
	back := ir.BackEdges(f)
	for _, bb := range reversePostorder(f) {
		if bb == f.EntryBlock() {
			guards[bb] = s.BVConst(1, 1)
			continue
		}
		var acc *smt.Term
		for _, pred := range bb.Preds() {
			if back[[2]*ir.Block{pred, bb}] {
				continue
			}
			pg, ok := guards[pred]
			if !ok {
				continue
			}
			cond := c.edgeCond(enc, s, pred, bb)
			var arm *smt.Term
			if cond == nil {
				s.Incref(pg)
				arm = pg
			} else {
				arm = s.BVAnd(pg, cond)
				s.Decref(cond)
			}
			if acc == nil {
				acc = arm
			} else {
				next := s.BVOr(acc, arm)
				s.Decref(acc)
				s.Decref(arm)
				acc = next
			}
		}
		if acc == nil {
			acc = s.BVConst(1, 0)
		}
		guards[bb] = acc
	}
	return guards
}

// edgeCond returns the owned condition under which control flows pred->bb,
// or nil when the edge is unconditional.
func (c *Checker) edgeCond(enc *encode.Encoder, s *smt.Context, pred, bb *ir.Block) *smt.Term {
	switch t := pred.Term().(type) {
	case *ir.CondBrInst:
		if t.True == t.False {
			return nil
		}
		cv := enc.Get(t.Cond)
		if bb == t.True {
			s.Incref(cv)
			return cv
		}
		zero := s.BVConst(1, 0)
		n := s.Eq(cv, zero)
		s.Decref(zero)
		return n
	case *ir.SwitchInst:
		xv := enc.Get(t.X)
		w := xv.Width()
		if bb == t.Default {
			var acc *smt.Term
			for _, cs := range t.Cases {
				cc := s.BVConst(w, cs.Val)
				ne := s.Ne(xv, cc)
				s.Decref(cc)
				if acc == nil {
					acc = ne
				} else {
					next := s.BVAnd(acc, ne)
					s.Decref(acc)
					s.Decref(ne)
					acc = next
				}
			}
			return acc
		}
		var acc *smt.Term
		for _, cs := range t.Cases {
			if cs.Dest != bb {
				continue
			}
			cc := s.BVConst(w, cs.Val)
			eq := s.Eq(xv, cc)
			s.Decref(cc)
			if acc == nil {
				acc = eq
			} else {
				next := s.BVOr(acc, eq)
				s.Decref(acc)
				s.Decref(eq)
				acc = next
			}
		}
		return acc
	}
	return nil
}

// reversePostorder orders blocks so that every non-back-edge predecessor
// comes before its successors.
func reversePostorder(f *ir.Func) []*ir.Block {
	seen := map[*ir.Block]bool{}
	var post []*ir.Block
	var walk func(b *ir.Block)
	walk = func(b *ir.Block) {
		seen[b] = true
		for _, s := range b.Succs() {
			if !seen[s] {
				walk(s)
			}
		}
		post = append(post, b)
	}
	walk(f.EntryBlock())
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}
