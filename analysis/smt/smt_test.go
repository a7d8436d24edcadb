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

package smt

import (
	"testing"
	"time"
)

func mustStatus(t *testing.T, got Status, want Status) {
	t.Helper()
	if got != want {
		t.Fatalf("status = %s, want %s", got, want)
	}
}

func TestConstantRoundTrip(t *testing.T) {
	c := NewContext()
	e := c.BVConst(32, 42)
	k := c.BVConst(32, 42)
	q := c.Eq(e, k)
	st, _ := c.Query(q, time.Time{})
	mustStatus(t, st, StatusSat)

	k2 := c.BVConst(32, 43)
	q2 := c.Eq(e, k2)
	st2, _ := c.Query(q2, time.Time{})
	mustStatus(t, st2, StatusUnsat)
}

func TestAddLaw(t *testing.T) {
	// y = x + 3 with x == 5 implies y == 8 modulo 2^8
	c := NewContext()
	x := c.BVVar(8, "x")
	k := c.BVConst(8, 3)
	y := c.BVAdd(x, k)

	five := c.BVConst(8, 5)
	c.Assume(c.Eq(x, five))

	eight := c.BVConst(8, 8)
	st, model := c.Query(c.Eq(y, eight), time.Time{})
	mustStatus(t, st, StatusSat)
	if model["x"] != 5 {
		t.Errorf("model x = %d, want 5", model["x"])
	}

	st2, _ := c.Query(c.Ne(y, eight), time.Time{})
	mustStatus(t, st2, StatusUnsat)
}

func TestAddWrapsModulo(t *testing.T) {
	c := NewContext()
	x := c.BVVar(8, "x")
	c.Assume(c.Eq(x, c.BVConst(8, 250)))
	y := c.BVAdd(x, c.BVConst(8, 10))
	st, _ := c.Query(c.Eq(y, c.BVConst(8, 4)), time.Time{})
	mustStatus(t, st, StatusSat)
}

func TestRangeAssumptionUnsat(t *testing.T) {
	// E in [10, 20) makes E < 10 or E >= 20 unsatisfiable
	c := NewContext()
	e := c.BVVar(32, "E")
	lo := c.BVConst(32, 10)
	hi := c.BVConst(32, 20)
	in := c.BVAnd(c.BVUge(e, lo), c.BVUlt(e, hi))
	c.Assume(in)

	out := c.BVOr(c.BVUlt(e, lo), c.BVUge(e, hi))
	st, _ := c.Query(out, time.Time{})
	mustStatus(t, st, StatusUnsat)

	// and the inside is reachable
	st2, model := c.Query(c.Eq(e, c.BVConst(32, 15)), time.Time{})
	mustStatus(t, st2, StatusSat)
	if model["E"] != 15 {
		t.Errorf("model E = %d, want 15", model["E"])
	}
}

func TestWrapAroundInterval(t *testing.T) {
	// wrapped interval [250, 5) over 8 bits: E >= 250 or E < 5
	c := NewContext()
	e := c.BVVar(8, "E")
	c.Assume(c.BVOr(c.BVUge(e, c.BVConst(8, 250)), c.BVUlt(e, c.BVConst(8, 5))))
	st, _ := c.Query(c.Eq(e, c.BVConst(8, 100)), time.Time{})
	mustStatus(t, st, StatusUnsat)
	st2, _ := c.Query(c.Eq(e, c.BVConst(8, 252)), time.Time{})
	mustStatus(t, st2, StatusSat)
}

func TestMulOverflowPredicate(t *testing.T) {
	// umul overflow of n * 4 over 32 bits is satisfiable for large n
	c := NewContext()
	n := c.BVVar(32, "n")
	four := c.BVConst(32, 4)
	ov := c.BVUMulOverflow(n, four)
	st, model := c.Query(ov, time.Time{})
	mustStatus(t, st, StatusSat)
	if model["n"] < 1<<30 {
		t.Errorf("model n = %d does not overflow n*4", model["n"])
	}

	// constant operands fold
	a := c.BVConst(32, 1)
	b := c.BVConst(32, 2)
	ov2 := c.BVUAddOverflow(a, b)
	if v, ok := ov2.IsConst(); !ok || v != 0 {
		t.Errorf("1+2 overflow bit = %v, want constant 0", ov2)
	}
}

func TestSignedOverflowFold(t *testing.T) {
	c := NewContext()
	w := uint(8)
	cases := []struct {
		x, y uint64
		want uint64
	}{
		{127, 1, 1},     // max + 1 overflows
		{100, 27, 0},    // 127 exactly
		{0x80, 0xFF, 1}, // min + (-1) underflows
		{10, 20, 0},
	}
	for _, tc := range cases {
		ov := c.BVSAddOverflow(c.BVConst(w, tc.x), c.BVConst(w, tc.y))
		if v, ok := ov.IsConst(); !ok || v != tc.want {
			t.Errorf("sadd_overflow(%d, %d) = %v, want %d", tc.x, tc.y, ov, tc.want)
		}
	}
}

func TestUDivZeroSemantics(t *testing.T) {
	c := NewContext()
	// constant fold: x / 0 = all ones
	q := c.BVUDiv(c.BVConst(8, 7), c.BVConst(8, 0))
	if v, ok := q.IsConst(); !ok || v != 0xFF {
		t.Errorf("udiv by zero = %v, want 255", q)
	}
	// circuit: b != 0 constrains a = q*b + r
	a := c.BVVar(8, "a")
	b := c.BVVar(8, "b")
	c.Assume(c.Eq(a, c.BVConst(8, 29)))
	c.Assume(c.Eq(b, c.BVConst(8, 6)))
	quo := c.BVUDiv(a, b)
	st, _ := c.Query(c.Eq(quo, c.BVConst(8, 4)), time.Time{})
	mustStatus(t, st, StatusSat)
	st2, _ := c.Query(c.Ne(quo, c.BVConst(8, 4)), time.Time{})
	mustStatus(t, st2, StatusUnsat)
}

func TestShiftCircuit(t *testing.T) {
	c := NewContext()
	x := c.BVVar(8, "x")
	s := c.BVVar(8, "s")
	c.Assume(c.Eq(x, c.BVConst(8, 3)))
	c.Assume(c.Eq(s, c.BVConst(8, 4)))
	sh := c.BVShl(x, s)
	st, _ := c.Query(c.Eq(sh, c.BVConst(8, 48)), time.Time{})
	mustStatus(t, st, StatusSat)

	// amounts at or above the width give zero
	big := c.BVShl(c.BVConst(8, 3), c.BVConst(8, 9))
	if v, ok := big.IsConst(); !ok || v != 0 {
		t.Errorf("shl by 9 over 8 bits = %v, want 0", big)
	}
}

func TestITE(t *testing.T) {
	c := NewContext()
	cond := c.BVVar(1, "c")
	t1 := c.BVConst(8, 11)
	f1 := c.BVConst(8, 22)
	sel := c.ITE(cond, t1, f1)
	c.Assume(c.Eq(cond, c.BVConst(1, 1)))
	st, _ := c.Query(c.Eq(sel, t1), time.Time{})
	mustStatus(t, st, StatusSat)
	st2, _ := c.Query(c.Eq(sel, f1), time.Time{})
	mustStatus(t, st2, StatusUnsat)
}

func TestExtensionAndExtract(t *testing.T) {
	c := NewContext()
	x := c.BVVar(8, "x")
	c.Assume(c.Eq(x, c.BVConst(8, 0x90)))
	z := c.ZeroExtend(8, x)
	s := c.SignExtend(8, x)
	st, _ := c.Query(c.Eq(z, c.BVConst(16, 0x0090)), time.Time{})
	mustStatus(t, st, StatusSat)
	st2, _ := c.Query(c.Eq(s, c.BVConst(16, 0xFF90)), time.Time{})
	mustStatus(t, st2, StatusSat)
	lo := c.Extract(3, 0, x)
	st3, _ := c.Query(c.Eq(lo, c.BVConst(4, 0)), time.Time{})
	mustStatus(t, st3, StatusSat)
}

func TestRefcountBalance(t *testing.T) {
	c := NewContext()
	x := c.BVVar(8, "x")
	y := c.BVConst(8, 1)
	sum := c.BVAdd(x, y)
	if c.Live() != 3 {
		t.Fatalf("live = %d, want 3", c.Live())
	}
	c.Incref(sum)
	c.Decref(sum)
	c.Decref(sum)
	c.Decref(x)
	c.Decref(y)
	if c.Live() != 0 {
		t.Errorf("live = %d after releasing all, want 0", c.Live())
	}
}

func TestQueryTimeout(t *testing.T) {
	c := NewContext()
	a := c.BVVar(64, "a")
	b := c.BVVar(64, "b")
	// a hard multiplication equality with an expired deadline
	p := c.BVMul(a, b)
	q := c.Eq(p, c.BVConst(64, 0xDEADBEEF12345))
	st, _ := c.Query(q, time.Now().Add(-time.Second))
	mustStatus(t, st, StatusTimeout)
}
