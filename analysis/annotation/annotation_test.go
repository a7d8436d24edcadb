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

package annotation

import (
	"testing"

	"github.com/ingot-tools/ingot/analysis/config"
	"github.com/ingot-tools/ingot/analysis/ir"
)

func newTestPass() *Pass {
	cfg := config.NewDefault()
	return NewPass(cfg, ir.NewDataLayout(64), config.NewLogGroup(cfg))
}

// buildSyscall builds sys_foo(n i32) { m = n * 4; kmalloc(m) }.
func buildSyscall(m *ir.Module) (*ir.Func, *ir.BinInst) {
	kmalloc := m.NewFunc("kmalloc", &ir.FuncType{Ret: ir.PointerTo(ir.I8), Params: []ir.Type{ir.I64}})
	_ = kmalloc
	f := m.NewFunc("sys_foo", &ir.FuncType{Ret: ir.I32, Params: []ir.Type{ir.I32}}, "n")
	b := f.NewBlock("entry")
	mul := b.NewBin(ir.OpMul, f.Params[0], ir.NewConst(ir.I32, 4))
	b.NewCall(m.Func("kmalloc"), mul)
	b.NewRet(mul)
	return f, mul
}

func TestArgumentNormalization(t *testing.T) {
	m := ir.NewModule("net.bc")
	f, mul := buildSyscall(m)
	newTestPass().RunOnModule(m)

	first := f.EntryBlock().Instrs[0]
	ci, ok := first.(*ir.CallInst)
	if !ok || ci.CalledFunc() == nil || ci.CalledFunc().FName != "kint_arg.i32" {
		t.Fatalf("entry does not start with the synthetic argument call: %v", first)
	}
	if md := ci.MD(MDID); md == nil || md.S != "arg.sys_foo.0" {
		t.Errorf("argument call id = %v, want arg.sys_foo.0", ci.MD(MDID))
	}
	if md := ci.MD(MDTaintSrc); md == nil || md.S != "syscall" {
		t.Errorf("syscall argument not marked as source: %v", ci.MD(MDTaintSrc))
	}
	if mul.X != ci {
		t.Errorf("uses of the parameter were not replaced by the call")
	}
}

func TestSinkMarking(t *testing.T) {
	m := ir.NewModule("net.bc")
	_, mul := buildSyscall(m)
	newTestPass().RunOnModule(m)

	if md := mul.MD(MDSink); md == nil || md.S != "kmalloc" {
		t.Errorf("size computation not marked as sink: %v", mul.MD(MDSink))
	}
}

func TestVariadicFunctionsSkipped(t *testing.T) {
	m := ir.NewModule("net.bc")
	f := m.NewFunc("printish", &ir.FuncType{Ret: ir.I32, Params: []ir.Type{ir.I32}, Variadic: true}, "n")
	b := f.NewBlock("entry")
	b.NewRet(f.Params[0])
	newTestPass().RunOnModule(m)
	if _, ok := f.EntryBlock().Instrs[0].(*ir.CallInst); ok {
		t.Errorf("variadic function arguments must not be normalized")
	}
}

func TestExplicitTaintCall(t *testing.T) {
	m := ir.NewModule("net.bc")
	st := &ir.StructType{TName: "struct.S", Fields: []ir.Type{ir.I32, ir.I32}}
	taintFn := m.NewFunc(TaintFunc, &ir.FuncType{Ret: ir.I32, Params: []ir.Type{ir.PointerTo(ir.I8)}, Variadic: true})
	f := m.NewFunc("f", &ir.FuncType{Ret: ir.Void})
	b := f.NewBlock("entry")
	s := b.NewAlloca(st)
	b.NewCall(taintFn, &ir.StrConst{S: "user"}, s)
	b.NewRet(nil)

	newTestPass().RunOnModule(m)

	if md := s.MD(MDTaintSrc); md == nil || md.S != "user" {
		t.Fatalf("tainted operand not marked: %v", s.MD(MDTaintSrc))
	}
	// the unused marker call is erased
	for _, i := range b.Instrs {
		if ci, ok := i.(*ir.CallInst); ok && ci.CalledFunc() != nil && ci.CalledFunc().FName == TaintFunc {
			t.Errorf("unused taint marker call was not erased")
		}
	}
}

func TestLoadStoreSlotIDs(t *testing.T) {
	m := ir.NewModule("net.bc")
	st := &ir.StructType{TName: "struct.req", Fields: []ir.Type{ir.I32, ir.I64}}
	g := m.NewGlobal("reqs", st, nil)
	gi := m.NewGlobal("count", ir.I32, nil)
	f := m.NewFunc("f", &ir.FuncType{Ret: ir.I64})
	b := f.NewBlock("entry")
	ldc := b.NewLoad(gi)
	gep := b.NewGEP(g, ir.NewConst(ir.I32, 0), ir.NewConst(ir.I32, 1))
	ldf := b.NewLoad(gep)
	b.NewRet(ldf)

	newTestPass().RunOnModule(m)

	if md := ldc.MD(MDID); md == nil || md.S != "var.count" {
		t.Errorf("global load id = %v, want var.count", ldc.MD(MDID))
	}
	// i64 field sits at byte offset 8
	if md := ldf.MD(MDID); md == nil || md.S != "struct.req.8" {
		t.Errorf("field load id = %v, want struct.req.8", ldf.MD(MDID))
	}
}

func TestIDStability(t *testing.T) {
	build := func() map[string]string {
		m := ir.NewModule("net.bc")
		f, mul := buildSyscall(m)
		newTestPass().RunOnModule(m)
		ids := map[string]string{}
		ir.IterateInstructions(f, func(i ir.Instruction) {
			if md := i.MD(MDID); md != nil {
				ids[i.Name()] = md.S
			}
		})
		if md := mul.MD(MDSink); md != nil {
			ids["sink"] = md.S
		}
		return ids
	}
	a, b := build(), build()
	if len(a) == 0 {
		t.Fatal("no identifiers produced")
	}
	for k, v := range a {
		if b[k] != v {
			t.Errorf("identifier %s differs across runs: %q vs %q", k, v, b[k])
		}
	}
}

func TestInternalLinkageScoping(t *testing.T) {
	m := ir.NewModule("drivers/net.bc")
	g := m.NewGlobal("state", ir.I32, nil)
	g.Internal = true
	if id := VarID(g); id != "var._net.state" {
		t.Errorf("internal global id = %q, want var._net.state", id)
	}
}
