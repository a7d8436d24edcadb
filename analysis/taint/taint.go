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

// Package taint propagates descriptor sets forward from taint sources through
// data dependencies, across calls using the resolved call graph. The global
// map keyed by identifiers grows monotonically; the per-value map is scratch
// state rebuilt on every module pass.
package taint

import (
	"fmt"
	"io"

	"github.com/ingot-tools/ingot/analysis/annotation"
	"github.com/ingot-tools/ingot/analysis/callgraph"
	"github.com/ingot-tools/ingot/analysis/config"
	"github.com/ingot-tools/ingot/analysis/ir"
	"github.com/ingot-tools/ingot/internal/funcutil"
)

// DescSet is a set of human-readable descriptors naming why a value is taint.
type DescSet = map[string]bool

// GlobalEntry is the per-identifier record of the global taint map.
type GlobalEntry struct {
	Descs  DescSet
	Source bool
}

// Pass is the inter-procedural taint propagator.
type Pass struct {
	prog *ir.Program
	log  *config.LogGroup
	cg   *callgraph.Pass

	// GTS is the global taint store keyed by identifier. Entries are only
	// ever added to, never removed or shrunk.
	GTS map[string]*GlobalEntry

	// vts is the transient per-value descriptor map.
	vts map[ir.Value]DescSet
}

// NewPass returns a taint pass that resolves calls through cg.
func NewPass(prog *ir.Program, cg *callgraph.Pass, log *config.LogGroup) *Pass {
	return &Pass{
		prog: prog,
		log:  log,
		cg:   cg,
		GTS:  map[string]*GlobalEntry{},
	}
}

func (p *Pass) addValue(v ir.Value, d DescSet) {
	if len(d) == 0 {
		return
	}
	ds, ok := p.vts[v]
	if !ok {
		ds = DescSet{}
		p.vts[v] = ds
	}
	funcutil.Union(ds, d)
}

// addGlobal unions d into the entry for id and reports whether the entry grew.
func (p *Pass) addGlobal(id string, d DescSet, isSource bool) bool {
	if id == "" {
		return false
	}
	e, ok := p.GTS[id]
	if !ok {
		e = &GlobalEntry{Descs: DescSet{}}
		p.GTS[id] = e
	}
	changed := funcutil.Union(e.Descs, d)
	if isSource && !e.Source {
		e.Source = true
		changed = true
	}
	return changed
}

// IsSource reports whether id is recorded as a taint source.
func (p *Pass) IsSource(id string) bool {
	e, ok := p.GTS[id]
	return ok && e.Source
}

// getTaint looks up the descriptors of v: the per-value map first, then the
// global map seeded from ret identifiers for calls and from the value's own
// identifier otherwise.
func (p *Pass) getTaint(v ir.Value) DescSet {
	if ds, ok := p.vts[v]; ok {
		return ds
	}
	if ds, ok := p.vts[ir.StripPointerCasts(v)]; ok {
		return ds
	}
	if ci, ok := v.(*ir.CallInst); ok {
		for _, callee := range p.cg.Resolve(ci) {
			if e, ok := p.GTS[annotation.RetID(callee)]; ok {
				p.addValue(ci, e.Descs)
			}
		}
	}
	if e, ok := p.GTS[annotation.ValueID(v)]; ok {
		p.addValue(v, e.Descs)
	}
	return p.vts[v]
}

// checkTaintSource seeds descriptors at instructions carrying source metadata.
// Pointer-to-struct sources mark every field of the struct.
func (p *Pass) checkTaintSource(m *ir.Module, i ir.Instruction) bool {
	md := i.MD(annotation.MDTaintSrc)
	if md == nil {
		return false
	}
	changed := false
	p.addValue(i, DescSet{md.S: true})
	d := p.vts[i]
	changed = p.addGlobal(annotation.ValueID(i), d, true) || changed
	if pt, ok := i.Type().(*ir.PtrType); ok {
		if st, ok := pt.Elem.(*ir.StructType); ok {
			for f := range st.Fields {
				fid := annotation.StructID(st, m, p.prog.DL.StructOffset(st, f))
				changed = p.addGlobal(fid, d, true) || changed
			}
		}
	}
	return changed
}

// runOnFunction propagates taint within one function in source order.
func (p *Pass) runOnFunction(m *ir.Module, f *ir.Func) bool {
	changed := false
	ir.IterateInstructions(f, func(i ir.Instruction) {
		changed = p.checkTaintSource(m, i) || changed

		// for call instructions, propagate taint to the callee's
		// arguments instead of from operands to the result
		if ci, ok := i.(*ir.CallInst); ok {
			for _, callee := range p.cg.Resolve(ci) {
				if callee.IsVariadic() || isSynthesized(callee.FName) {
					continue
				}
				for a, arg := range ci.Args {
					if ds := p.getTaint(arg); len(ds) > 0 {
						changed = p.addGlobal(annotation.ArgID(callee, a), ds, false) || changed
					}
				}
			}
			return
		}

		d := DescSet{}
		for _, op := range i.Operands() {
			if ds := p.getTaint(op); len(ds) > 0 {
				funcutil.Union(d, ds)
			}
		}
		if len(d) == 0 {
			return
		}
		p.addValue(i, d)
		switch i := i.(type) {
		case *ir.StoreInst:
			if md := i.MD(annotation.MDID); md != nil {
				changed = p.addGlobal(md.S, d, false) || changed
			}
		case *ir.RetInst:
			changed = p.addGlobal(annotation.RetID(f), d, false) || changed
		}
	})
	return changed
}

// DoModulePass iterates taint propagation over the module's functions until
// the global map stops growing. It reports whether any global entry changed.
func (p *Pass) DoModulePass(m *ir.Module) bool {
	p.vts = map[ir.Value]DescSet{}
	ret := false
	for changed := true; changed; {
		changed = false
		for _, f := range m.Funcs {
			changed = p.runOnFunction(m, f) || changed
		}
		ret = ret || changed
	}
	return ret
}

// DoFinalization re-tags every instruction with the comma-joined descriptor
// list, or clears the tag when the set is empty. The per-value map is rebuilt
// for m first, since it is scratch state of the last module pass.
func (p *Pass) DoFinalization(m *ir.Module) {
	p.DoModulePass(m)
	for _, f := range m.Funcs {
		ir.IterateInstructions(f, func(i ir.Instruction) {
			if ds := p.getTaint(i); len(ds) > 0 {
				i.SetMD(annotation.MDTaint, ir.MDString(funcutil.JoinSorted(ds, ", ")))
			} else {
				i.ClearMD(annotation.MDTaint)
			}
		})
	}
}

// isSynthesized reports compiler-synthesized callee names, which taint does
// not summarize by argument position.
func isSynthesized(name string) bool {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return true
		}
	}
	return false
}

// DumpTaints writes the global taint store in deterministic order.
func (p *Pass) DumpTaints(w io.Writer) {
	for _, id := range funcutil.SortedKeys(p.GTS) {
		e := p.GTS[id]
		mark := "  "
		if e.Source {
			mark = "S "
		}
		fmt.Fprintf(w, "%s%s\t%s\n", mark, id, funcutil.JoinSorted(e.Descs, " "))
	}
}
