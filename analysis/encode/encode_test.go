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

package encode

import (
	"testing"
	"time"

	"github.com/ingot-tools/ingot/analysis/annotation"
	"github.com/ingot-tools/ingot/analysis/ir"
	"github.com/ingot-tools/ingot/analysis/smt"
)

func newEnc() (*Encoder, *smt.Context) {
	ctx := smt.NewContext()
	return NewEncoder(ir.NewDataLayout(64), ctx), ctx
}

func TestConstantEncoding(t *testing.T) {
	enc, ctx := newEnc()
	defer enc.Close()
	e := enc.Get(ir.NewConst(ir.I32, 42))
	k := ctx.BVConst(32, 42)
	st, _ := ctx.Query(ctx.Eq(e, k), time.Time{})
	if st != smt.StatusSat {
		t.Fatalf("status = %s, want sat", st)
	}
}

func TestNullPointerIsZero(t *testing.T) {
	enc, _ := newEnc()
	defer enc.Close()
	e := enc.Get(&ir.NullConst{Ty: ir.PointerTo(ir.I8)})
	if e.Width() != 64 {
		t.Fatalf("null width = %d, want pointer width", e.Width())
	}
	if v, ok := e.IsConst(); !ok || v != 0 {
		t.Errorf("null pointer encodes to %v, want constant 0", e)
	}
}

func TestAddConstraintLaw(t *testing.T) {
	// y = x + 3: assuming x == 5 forces y == 8
	m := ir.NewModule("t.bc")
	f := m.NewFunc("f", &ir.FuncType{Ret: ir.I8, Params: []ir.Type{ir.I8}})
	b := f.NewBlock("entry")
	x := f.Params[0]
	y := b.NewBin(ir.OpAdd, x, ir.NewConst(ir.I8, 3))
	b.NewRet(y)

	enc, ctx := newEnc()
	defer enc.Close()
	ye := enc.Get(y)
	xe := enc.Get(x)
	five := ctx.BVConst(8, 5)
	ctx.Assume(ctx.Eq(xe, five))
	st, _ := ctx.Query(ctx.Ne(ye, ctx.BVConst(8, 8)), time.Time{})
	if st != smt.StatusUnsat {
		t.Errorf("y != 8 should be unsat under x == 5, got %s", st)
	}
}

func TestIntRangeMetadataConstrains(t *testing.T) {
	m := ir.NewModule("t.bc")
	f := m.NewFunc("f", &ir.FuncType{Ret: ir.I32})
	b := f.NewBlock("entry")
	g := m.NewGlobal("len", ir.I32, nil)
	ld := b.NewLoad(g)
	ld.SetMD(annotation.MDIntRange, &ir.MDNode{Pairs: [][2]uint64{{10, 20}}})
	b.NewRet(ld)

	enc, ctx := newEnc()
	defer enc.Close()
	e := enc.Get(ld)
	out := ctx.BVOr(
		ctx.BVUlt(e, ctx.BVConst(32, 10)),
		ctx.BVUge(e, ctx.BVConst(32, 20)),
	)
	st, _ := ctx.Query(out, time.Time{})
	if st != smt.StatusUnsat {
		t.Errorf("value outside its interval should be unsat, got %s", st)
	}
}

func TestEqualBoundsIgnored(t *testing.T) {
	m := ir.NewModule("t.bc")
	f := m.NewFunc("f", &ir.FuncType{Ret: ir.I32})
	b := f.NewBlock("entry")
	g := m.NewGlobal("len", ir.I32, nil)
	ld := b.NewLoad(g)
	ld.SetMD(annotation.MDIntRange, &ir.MDNode{Pairs: [][2]uint64{{0, 0}}})
	b.NewRet(ld)

	enc, ctx := newEnc()
	defer enc.Close()
	e := enc.Get(ld)
	// a full-set pair adds no constraint, any value is reachable
	st, _ := ctx.Query(ctx.Eq(e, ctx.BVConst(32, 12345)), time.Time{})
	if st != smt.StatusSat {
		t.Errorf("unconstrained load should reach any value, got %s", st)
	}
}

func TestOverflowIntrinsicExtraction(t *testing.T) {
	m := ir.NewModule("t.bc")
	pair := ir.PairType(ir.I32)
	intr := m.NewFunc("llvm.uadd.with.overflow.i32", &ir.FuncType{Ret: pair, Params: []ir.Type{ir.I32, ir.I32}})
	f := m.NewFunc("f", &ir.FuncType{Ret: ir.I32})
	b := f.NewBlock("entry")
	ci := b.NewCall(intr, ir.NewConst(ir.I32, 1), ir.NewConst(ir.I32, 2))
	sum := b.NewExtractValue(ci, 0)
	ov := b.NewExtractValue(ci, 1)
	b.NewRet(sum)

	enc, _ := newEnc()
	defer enc.Close()
	se := enc.Get(sum)
	if v, ok := se.IsConst(); !ok || v != 3 {
		t.Errorf("wrapping result = %v, want constant 3", se)
	}
	oe := enc.Get(ov)
	if v, ok := oe.IsConst(); !ok || v != 0 {
		t.Errorf("overflow bit = %v, want constant 0", oe)
	}
}

func TestGEPStructOffset(t *testing.T) {
	// &s.f1 where f1 sits at byte offset 8 of {i32, i64}
	m := ir.NewModule("t.bc")
	st := &ir.StructType{TName: "struct.pair", Fields: []ir.Type{ir.I32, ir.I64}}
	g := m.NewGlobal("s", st, nil)
	f := m.NewFunc("f", &ir.FuncType{Ret: ir.I64})
	b := f.NewBlock("entry")
	gep := b.NewGEP(g, ir.NewConst(ir.I32, 0), ir.NewConst(ir.I32, 1))
	ld := b.NewLoad(gep)
	b.NewRet(ld)

	enc, ctx := newEnc()
	defer enc.Close()
	ge := enc.Get(gep)
	base := enc.Get(g)
	ctx.Assume(ctx.Eq(base, ctx.BVConst(64, 1000)))
	stq, _ := ctx.Query(ctx.Eq(ge, ctx.BVConst(64, 1008)), time.Time{})
	if stq != smt.StatusSat {
		t.Errorf("field address should be base+8, got %s", stq)
	}
	stq2, _ := ctx.Query(ctx.Ne(ge, ctx.BVConst(64, 1008)), time.Time{})
	if stq2 != smt.StatusUnsat {
		t.Errorf("field address must equal base+8, got %s", stq2)
	}
}

func TestGEPVariableIndex(t *testing.T) {
	// &a[i] over [16 x i32]: base + i*4
	m := ir.NewModule("t.bc")
	arr := &ir.ArrayType{Len: 16, Elem: ir.I32}
	g := m.NewGlobal("a", arr, nil)
	f := m.NewFunc("f", &ir.FuncType{Ret: ir.I32, Params: []ir.Type{ir.I64}})
	b := f.NewBlock("entry")
	i := f.Params[0]
	gep := b.NewGEP(g, ir.NewConst(ir.I32, 0), i)
	ld := b.NewLoad(gep)
	b.NewRet(ld)

	enc, ctx := newEnc()
	defer enc.Close()
	ge := enc.Get(gep)
	base := enc.Get(g)
	ie := enc.Get(i)
	ctx.Assume(ctx.Eq(base, ctx.BVConst(64, 0)))
	ctx.Assume(ctx.Eq(ie, ctx.BVConst(64, 3)))
	stq, _ := ctx.Query(ctx.Ne(ge, ctx.BVConst(64, 12)), time.Time{})
	if stq != smt.StatusUnsat {
		t.Errorf("a[3] must sit at offset 12, got %s", stq)
	}
}

func TestCacheReleasesReferences(t *testing.T) {
	ctx := smt.NewContext()
	enc := NewEncoder(ir.NewDataLayout(64), ctx)
	enc.Get(ir.NewConst(ir.I32, 7))
	enc.Get(&ir.NullConst{Ty: ir.PointerTo(ir.I8)})
	if ctx.Live() == 0 {
		t.Fatal("expected live terms before Close")
	}
	enc.Close()
	if ctx.Live() != 0 {
		t.Errorf("live = %d after Close, want 0", ctx.Live())
	}
}

func TestUnencodableTypeAborts(t *testing.T) {
	m := ir.NewModule("t.bc")
	f := m.NewFunc("f", &ir.FuncType{Ret: ir.Void})
	b := f.NewBlock("entry")
	st := b.NewStore(ir.NewConst(ir.I32, 1), &ir.NullConst{Ty: ir.PointerTo(ir.I32)})
	b.NewRet(nil)

	enc, _ := newEnc()
	defer enc.Close()
	defer func() {
		if recover() == nil {
			t.Errorf("encoding a void instruction should abort")
		}
	}()
	enc.Get(st)
}
