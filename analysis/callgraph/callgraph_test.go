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

package callgraph

import (
	"testing"

	"github.com/ingot-tools/ingot/analysis/annotation"
	"github.com/ingot-tools/ingot/analysis/config"
	"github.com/ingot-tools/ingot/analysis/ir"
)

func runToFixpoint(p *Pass, modules []*ir.Module) {
	for _, m := range modules {
		p.DoInitialization(m)
	}
	for changed := true; changed; {
		changed = false
		for _, m := range modules {
			changed = p.DoModulePass(m) || changed
		}
	}
}

// buildOpsModule builds
//
//	struct.ops { cb fn(void)* }
//	global g_ops = { @handler }
//	func main() { cb = load g_ops.cb; cb() }
func buildOpsModule() (*ir.Module, *ir.CallInst, *ir.Func) {
	m := ir.NewModule("ops.bc")
	cbTy := ir.PointerTo(&ir.FuncType{Ret: ir.Void})
	st := &ir.StructType{TName: "struct.ops", Fields: []ir.Type{cbTy}}
	handler := m.NewFunc("handler", &ir.FuncType{Ret: ir.Void})
	g := m.NewGlobal("g_ops", st, &ir.StructConst{Ty: st, Fields: []ir.Constant{handler}})

	f := m.NewFunc("main", &ir.FuncType{Ret: ir.Void})
	b := f.NewBlock("entry")
	gep := b.NewGEP(g, ir.NewConst(ir.I32, 0), ir.NewConst(ir.I32, 0))
	ld := b.NewLoad(gep)
	call := b.NewCall(ld)
	b.NewRet(nil)

	cfg := config.NewDefault()
	annotation.NewPass(cfg, ir.NewDataLayout(64), config.NewLogGroup(cfg)).RunOnModule(m)
	return m, call, handler
}

func TestIndirectCallThroughStructField(t *testing.T) {
	m, call, handler := buildOpsModule()
	prog := ir.NewProgram(ir.NewDataLayout(64), m)
	cfg := config.NewDefault()
	p := NewPass(prog, config.NewLogGroup(cfg))
	runToFixpoint(p, []*ir.Module{m})

	callees := p.Resolve(call)
	if len(callees) != 1 || callees[0] != handler {
		t.Fatalf("indirect call resolves to %v, want {handler}", callees)
	}
	if s, ok := p.FuncPtrs["struct.ops.0"]; !ok || s.Len() != 1 {
		t.Errorf("initializer did not seed struct.ops.0")
	}
}

func TestStoredFunctionPointer(t *testing.T) {
	m := ir.NewModule("ops.bc")
	cbTy := ir.PointerTo(&ir.FuncType{Ret: ir.Void})
	g := m.NewGlobal("hook", cbTy, nil)
	target := m.NewFunc("target", &ir.FuncType{Ret: ir.Void})

	setter := m.NewFunc("set_hook", &ir.FuncType{Ret: ir.Void})
	sb := setter.NewBlock("entry")
	sb.NewStore(target, g)
	sb.NewRet(nil)

	caller := m.NewFunc("caller", &ir.FuncType{Ret: ir.Void})
	cb := caller.NewBlock("entry")
	ld := cb.NewLoad(g)
	call := cb.NewCall(ld)
	cb.NewRet(nil)

	cfg := config.NewDefault()
	annotation.NewPass(cfg, ir.NewDataLayout(64), config.NewLogGroup(cfg)).RunOnModule(m)
	prog := ir.NewProgram(ir.NewDataLayout(64), m)
	p := NewPass(prog, config.NewLogGroup(cfg))
	runToFixpoint(p, []*ir.Module{m})

	callees := p.Resolve(call)
	if len(callees) != 1 || callees[0] != target {
		t.Fatalf("stored pointer resolves to %v, want {target}", callees)
	}
}

func TestDirectCall(t *testing.T) {
	m := ir.NewModule("ops.bc")
	callee := m.NewFunc("callee", &ir.FuncType{Ret: ir.Void})
	caller := m.NewFunc("caller", &ir.FuncType{Ret: ir.Void})
	b := caller.NewBlock("entry")
	call := b.NewCall(callee)
	b.NewRet(nil)

	prog := ir.NewProgram(ir.NewDataLayout(64), m)
	cfg := config.NewDefault()
	p := NewPass(prog, config.NewLogGroup(cfg))
	runToFixpoint(p, []*ir.Module{m})

	if callees := p.Resolve(call); len(callees) != 1 || callees[0] != callee {
		t.Fatalf("direct call resolves to %v", callees)
	}
}

func TestFixedPointMonotone(t *testing.T) {
	m, call, _ := buildOpsModule()
	prog := ir.NewProgram(ir.NewDataLayout(64), m)
	cfg := config.NewDefault()
	p := NewPass(prog, config.NewLogGroup(cfg))
	runToFixpoint(p, []*ir.Module{m})

	before := p.Callees[call].Len()
	if p.DoModulePass(m) {
		t.Errorf("pass reported change after fixed point")
	}
	if p.Callees[call].Len() != before {
		t.Errorf("callee set changed after fixed point")
	}
}
