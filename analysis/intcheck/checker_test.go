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

package intcheck_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ingot-tools/ingot/analysis"
	"github.com/ingot-tools/ingot/analysis/config"
	"github.com/ingot-tools/ingot/analysis/ir"
)

// run builds the full pipeline over m and returns the diagnostic stream.
func run(t *testing.T, m *ir.Module) string {
	t.Helper()
	cfg := config.NewDefault()
	cfg.LogLevel = int(config.ErrLevel)
	s := analysis.NewProgramState(cfg, m)
	s.Annotate()
	if _, err := s.RunFixedPoint(); err != nil {
		t.Fatalf("fixed point: %v", err)
	}
	var buf bytes.Buffer
	if err := s.Check(&buf, false); err != nil {
		t.Fatalf("check: %v", err)
	}
	return buf.String()
}

func declKmalloc(m *ir.Module, name string) *ir.Func {
	return m.NewFunc(name, &ir.FuncType{Ret: ir.PointerTo(ir.I8), Params: []ir.Type{ir.I64}})
}

func TestConstantAddNotReported(t *testing.T) {
	// kmalloc(1 + 2) cannot overflow; the stream stays empty
	m := ir.NewModule("m.bc")
	kmalloc := declKmalloc(m, "kmalloc")
	f := m.NewFunc("f", &ir.FuncType{Ret: ir.Void})
	b := f.NewBlock("entry")
	sum := b.NewBin(ir.OpAdd, ir.NewConst(ir.I64, 1), ir.NewConst(ir.I64, 2))
	b.NewCall(kmalloc, sum)
	b.NewRet(nil)

	out := run(t, m)
	if out != "" {
		t.Errorf("constant allocation size reported:\n%s", out)
	}
}

func TestTaintedMultiplyReported(t *testing.T) {
	// sys_alloc(a, b) calling __kmalloc(a * b) with both unbounded
	m := ir.NewModule("m.bc")
	kmalloc := declKmalloc(m, "__kmalloc")
	f := m.NewFunc("sys_alloc", &ir.FuncType{Ret: ir.Void, Params: []ir.Type{ir.I64, ir.I64}}, "a", "b")
	b := f.NewBlock("entry")
	mul := b.NewBin(ir.OpMul, f.Params[0], f.Params[1])
	mul.SetLoc(&ir.Location{File: "drivers/alloc.c", Line: 42, Col: 9})
	b.NewCall(kmalloc, mul)
	b.NewRet(nil)

	out := run(t, m)
	for _, want := range []string{
		"bug: umul overflow in __kmalloc size",
		"taint: syscall",
		"status: sat",
		"stack: ",
		" - drivers/alloc.c:42:9",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("diagnostic stream missing %q:\n%s", want, out)
		}
	}
}

func TestUnreachableSinkNotReported(t *testing.T) {
	// the multiply is guarded by a branch that can never be taken
	m := ir.NewModule("m.bc")
	kmalloc := declKmalloc(m, "kmalloc")
	f := m.NewFunc("sys_guarded", &ir.FuncType{Ret: ir.Void, Params: []ir.Type{ir.I64}}, "n")
	entry := f.NewBlock("entry")
	then := f.NewBlock("then")
	exit := f.NewBlock("exit")
	c := entry.NewICmp(ir.PredULT, ir.NewConst(ir.I64, 5), ir.NewConst(ir.I64, 3))
	entry.NewCondBr(c, then, exit)
	mul := then.NewBin(ir.OpMul, f.Params[0], f.Params[0])
	then.NewCall(kmalloc, mul)
	then.NewBr(exit)
	exit.NewRet(nil)

	out := run(t, m)
	if strings.Contains(out, "bug:") {
		t.Errorf("unreachable sink reported:\n%s", out)
	}
}

func TestBoundedSizeNotReported(t *testing.T) {
	// n is masked to 16 bits before n * 4 over i64: no overflow possible
	m := ir.NewModule("m.bc")
	kmalloc := declKmalloc(m, "kmalloc")
	f := m.NewFunc("sys_small", &ir.FuncType{Ret: ir.Void, Params: []ir.Type{ir.I64}}, "n")
	b := f.NewBlock("entry")
	masked := b.NewBin(ir.OpAnd, f.Params[0], ir.NewConst(ir.I64, 0xFFFF))
	mul := b.NewBin(ir.OpMul, masked, ir.NewConst(ir.I64, 4))
	b.NewCall(kmalloc, mul)
	b.NewRet(nil)

	out := run(t, m)
	if strings.Contains(out, "bug:") {
		t.Errorf("bounded size computation reported:\n%s", out)
	}
}

func TestShiftSinkReported(t *testing.T) {
	// kmalloc(1 << n) with unbounded shift amount
	m := ir.NewModule("m.bc")
	kmalloc := declKmalloc(m, "kmalloc")
	f := m.NewFunc("sys_shift", &ir.FuncType{Ret: ir.Void, Params: []ir.Type{ir.I64}}, "n")
	b := f.NewBlock("entry")
	sh := b.NewBin(ir.OpShl, ir.NewConst(ir.I64, 1), f.Params[0])
	b.NewCall(kmalloc, sh)
	b.NewRet(nil)

	out := run(t, m)
	if !strings.Contains(out, "bug: shift out of range in kmalloc size") {
		t.Errorf("shift sink not reported:\n%s", out)
	}
}
