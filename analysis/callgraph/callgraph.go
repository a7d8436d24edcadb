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

// Package callgraph builds the flow-insensitive indirect-call graph. Function
// pointer assignments are collected by the identifier of the slot they land
// in; call sites resolve against those slots. Both stores only ever grow, so
// iterating the module pass to a fixed point is sound in any order.
package callgraph

import (
	"fmt"
	"io"

	"github.com/ingot-tools/ingot/analysis/annotation"
	"github.com/ingot-tools/ingot/analysis/config"
	"github.com/ingot-tools/ingot/analysis/ir"
	"github.com/ingot-tools/ingot/internal/funcutil"
	"golang.org/x/tools/container/intsets"
)

// Pass accumulates the call-graph stores across modules.
type Pass struct {
	prog *ir.Program
	log  *config.LogGroup

	// FuncPtrs maps slot identifiers to the set of functions (by program
	// index) that may be stored there.
	FuncPtrs map[string]*intsets.Sparse

	// Callees maps each call site to the set of functions it may invoke.
	Callees map[*ir.CallInst]*intsets.Sparse
}

// NewPass returns an empty call-graph pass over prog.
func NewPass(prog *ir.Program, log *config.LogGroup) *Pass {
	return &Pass{
		prog:     prog,
		log:      log,
		FuncPtrs: map[string]*intsets.Sparse{},
		Callees:  map[*ir.CallInst]*intsets.Sparse{},
	}
}

// DoInitialization walks the constant initializers of a module's globals once
// to seed FuncPtrs with the statically installed function pointers.
func (p *Pass) DoInitialization(m *ir.Module) {
	for _, g := range m.Globals {
		if g.Init != nil {
			p.walkInitializer(m, g.Init, annotation.VarID(g))
		}
	}
}

func (p *Pass) walkInitializer(m *ir.Module, c ir.Constant, id string) {
	switch c := c.(type) {
	case *ir.Func:
		if id != "" {
			p.insertFuncPtr(id, c)
		}
	case *ir.StructConst:
		for i, f := range c.Fields {
			fid := annotation.StructID(c.Ty, m, p.prog.DL.StructOffset(c.Ty, i))
			p.walkInitializer(m, f, fid)
		}
	case *ir.ArrayConst:
		for _, e := range c.Elems {
			p.walkInitializer(m, e, id)
		}
	}
}

func (p *Pass) insertFuncPtr(id string, f *ir.Func) bool {
	s, ok := p.FuncPtrs[id]
	if !ok {
		s = &intsets.Sparse{}
		p.FuncPtrs[id] = s
	}
	return s.Insert(p.prog.FuncIndex(f))
}

// DoModulePass scans every instruction of m, recording function-pointer
// stores and resolving call sites. It reports whether any store grew.
func (p *Pass) DoModulePass(m *ir.Module) bool {
	changed := false
	for _, f := range m.Funcs {
		ir.IterateInstructions(f, func(i ir.Instruction) {
			switch i := i.(type) {
			case *ir.StoreInst:
				changed = p.visitStore(i) || changed
			case *ir.CallInst:
				changed = p.visitCall(i) || changed
			}
		})
	}
	return changed
}

// visitStore records a function stored into an identified slot.
func (p *Pass) visitStore(si *ir.StoreInst) bool {
	fn, ok := ir.StripPointerCasts(si.Val).(*ir.Func)
	if !ok {
		return false
	}
	md := si.MD(annotation.MDID)
	if md == nil {
		return false
	}
	return p.insertFuncPtr(md.S, fn)
}

// visitCall unifies the callee set of a call site. Direct calls contribute
// their static callee; indirect calls resolve through the slot their called
// value was loaded from, stripping pointer casts and at most one address
// computation on the way.
func (p *Pass) visitCall(ci *ir.CallInst) bool {
	callees := p.Callees[ci]
	if callees == nil {
		callees = &intsets.Sparse{}
		p.Callees[ci] = callees
	}
	v := ir.StripPointerCasts(ci.Callee)
	if gep, ok := v.(*ir.GEPInst); ok {
		v = ir.StripPointerCasts(gep.Ptr)
	}
	switch v := v.(type) {
	case *ir.Func:
		return callees.Insert(p.prog.FuncIndex(v))
	case *ir.LoadInst:
		md := v.MD(annotation.MDID)
		if md == nil {
			return false
		}
		if src, ok := p.FuncPtrs[md.S]; ok {
			return callees.UnionWith(src)
		}
	}
	return false
}

// Resolve returns the possible callees of a call site in program index order.
func (p *Pass) Resolve(ci *ir.CallInst) []*ir.Func {
	s, ok := p.Callees[ci]
	if !ok {
		return nil
	}
	var idx []int
	idx = s.AppendTo(idx)
	fns := make([]*ir.Func, len(idx))
	for i, x := range idx {
		fns[i] = p.prog.FuncAt(x)
	}
	return fns
}

// DumpFuncPtrs writes the function-pointer store in deterministic order.
func (p *Pass) DumpFuncPtrs(w io.Writer) {
	for _, id := range funcutil.SortedKeys(p.FuncPtrs) {
		var idx []int
		idx = p.FuncPtrs[id].AppendTo(idx)
		fmt.Fprintf(w, "%s:", id)
		for _, x := range idx {
			fmt.Fprintf(w, " %s", p.prog.FuncAt(x).FName)
		}
		fmt.Fprintln(w)
	}
}
