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
	"fmt"
	"math/bits"
	"time"
)

type op uint8

const (
	opConst op = iota
	opVar
	opExtract
	opZExt
	opSExt
	opAdd
	opSub
	opMul
	opUDiv
	opSDiv
	opURem
	opSRem
	opShl
	opLShr
	opAShr
	opAnd
	opOr
	opXor
	opEq
	opNe
	opSge
	opSgt
	opSle
	opSlt
	opUge
	opUgt
	opUle
	opUlt
	opITE
	opSAddOv
	opUAddOv
	opSSubOv
	opUSubOv
	opSMulOv
	opUMulOv
)

// Term is a node of the bitvector expression DAG. Terms are immutable after
// construction and shared freely; the reference count audits ownership so
// that a backend with a counted native solver stays correct.
type Term struct {
	op      op
	width   uint
	a, b, c *Term
	k       uint64
	hi, lo  uint
	name    string
	rc      int
}

// Width returns the bit width of the term.
func (t *Term) Width() uint { return t.width }

// IsConst reports whether the term folded to a constant, and its value.
func (t *Term) IsConst() (uint64, bool) {
	if t.op == opConst {
		return t.k, true
	}
	return 0, false
}

func (t *Term) String() string {
	switch t.op {
	case opConst:
		return fmt.Sprintf("(bv%d w%d)", t.k, t.width)
	case opVar:
		return fmt.Sprintf("%s:w%d", t.name, t.width)
	}
	return fmt.Sprintf("(op%d w%d)", t.op, t.width)
}

// Context is the in-process implementation of Solver.
type Context struct {
	assumptions []*Term
	live        int
}

var _ Solver = (*Context)(nil)

// NewContext returns an empty solver context.
func NewContext() *Context { return &Context{} }

// Live returns the number of terms with a positive reference count, for
// leak auditing.
func (c *Context) Live() int { return c.live }

func (c *Context) mk(t *Term) *Term {
	t.rc = 1
	c.live++
	return t
}

// Incref takes an additional reference on e.
func (c *Context) Incref(e *Term) { e.rc++ }

// Decref releases a reference on e.
func (c *Context) Decref(e *Term) {
	e.rc--
	if e.rc == 0 {
		c.live--
	}
}

// BVVar returns a fresh w-bit variable.
func (c *Context) BVVar(w uint, name string) *Term {
	return c.mk(&Term{op: opVar, width: w, name: name})
}

// BVConst returns a concrete w-bit constant.
func (c *Context) BVConst(w uint, v uint64) *Term {
	return c.mk(&Term{op: opConst, width: w, k: truncW(v, w)})
}

func truncW(v uint64, w uint) uint64 {
	if w >= 64 {
		return v
	}
	return v & (1<<w - 1)
}

func sextW(v uint64, w uint) int64 {
	if w >= 64 {
		return int64(v)
	}
	s := 64 - w
	return int64(v<<s) >> s
}

// Extract returns bits hi..lo inclusive of e.
func (c *Context) Extract(hi, lo uint, e *Term) *Term {
	w := hi - lo + 1
	if v, ok := e.IsConst(); ok {
		return c.BVConst(w, v>>lo)
	}
	return c.mk(&Term{op: opExtract, width: w, a: e, hi: hi, lo: lo})
}

// ZeroExtend widens e by n zero bits.
func (c *Context) ZeroExtend(n uint, e *Term) *Term {
	if v, ok := e.IsConst(); ok {
		return c.BVConst(e.width+n, v)
	}
	return c.mk(&Term{op: opZExt, width: e.width + n, a: e})
}

// SignExtend widens e by n copies of its sign bit.
func (c *Context) SignExtend(n uint, e *Term) *Term {
	if v, ok := e.IsConst(); ok {
		return c.BVConst(e.width+n, uint64(sextW(v, e.width)))
	}
	return c.mk(&Term{op: opSExt, width: e.width + n, a: e})
}

func (c *Context) bin(o op, w uint, a, b *Term) *Term {
	if x, ok := a.IsConst(); ok {
		if y, ok := b.IsConst(); ok {
			return c.BVConst(w, evalBin(o, a.width, x, y))
		}
	}
	return c.mk(&Term{op: o, width: w, a: a, b: b})
}

// BVAdd returns a+b.
func (c *Context) BVAdd(a, b *Term) *Term { return c.bin(opAdd, a.width, a, b) }

// BVSub returns a-b.
func (c *Context) BVSub(a, b *Term) *Term { return c.bin(opSub, a.width, a, b) }

// BVMul returns a*b.
func (c *Context) BVMul(a, b *Term) *Term { return c.bin(opMul, a.width, a, b) }

// BVUDiv returns the unsigned quotient; division by zero yields all ones.
func (c *Context) BVUDiv(a, b *Term) *Term { return c.bin(opUDiv, a.width, a, b) }

// BVSDiv returns the signed quotient.
func (c *Context) BVSDiv(a, b *Term) *Term { return c.bin(opSDiv, a.width, a, b) }

// BVURem returns the unsigned remainder; remainder by zero yields the
// dividend.
func (c *Context) BVURem(a, b *Term) *Term { return c.bin(opURem, a.width, a, b) }

// BVSRem returns the signed remainder.
func (c *Context) BVSRem(a, b *Term) *Term { return c.bin(opSRem, a.width, a, b) }

// BVShl returns a<<b; shift amounts at or above the width yield zero.
func (c *Context) BVShl(a, b *Term) *Term { return c.bin(opShl, a.width, a, b) }

// BVLShr returns the logical right shift.
func (c *Context) BVLShr(a, b *Term) *Term { return c.bin(opLShr, a.width, a, b) }

// BVAShr returns the arithmetic right shift.
func (c *Context) BVAShr(a, b *Term) *Term { return c.bin(opAShr, a.width, a, b) }

// BVAnd returns a&b.
func (c *Context) BVAnd(a, b *Term) *Term { return c.bin(opAnd, a.width, a, b) }

// BVOr returns a|b.
func (c *Context) BVOr(a, b *Term) *Term { return c.bin(opOr, a.width, a, b) }

// BVXor returns a^b.
func (c *Context) BVXor(a, b *Term) *Term { return c.bin(opXor, a.width, a, b) }

// Eq returns the 1-bit equality of a and b.
func (c *Context) Eq(a, b *Term) *Term { return c.bin(opEq, 1, a, b) }

// Ne returns the 1-bit disequality of a and b.
func (c *Context) Ne(a, b *Term) *Term { return c.bin(opNe, 1, a, b) }

// BVSge returns a >=s b.
func (c *Context) BVSge(a, b *Term) *Term { return c.bin(opSge, 1, a, b) }

// BVSgt returns a >s b.
func (c *Context) BVSgt(a, b *Term) *Term { return c.bin(opSgt, 1, a, b) }

// BVSle returns a <=s b.
func (c *Context) BVSle(a, b *Term) *Term { return c.bin(opSle, 1, a, b) }

// BVSlt returns a <s b.
func (c *Context) BVSlt(a, b *Term) *Term { return c.bin(opSlt, 1, a, b) }

// BVUge returns a >=u b.
func (c *Context) BVUge(a, b *Term) *Term { return c.bin(opUge, 1, a, b) }

// BVUgt returns a >u b.
func (c *Context) BVUgt(a, b *Term) *Term { return c.bin(opUgt, 1, a, b) }

// BVUle returns a <=u b.
func (c *Context) BVUle(a, b *Term) *Term { return c.bin(opUle, 1, a, b) }

// BVUlt returns a <u b.
func (c *Context) BVUlt(a, b *Term) *Term { return c.bin(opUlt, 1, a, b) }

// ITE returns t when c1 is 1, else f.
func (c *Context) ITE(c1, t, f *Term) *Term {
	if v, ok := c1.IsConst(); ok {
		if v != 0 {
			c.Incref(t)
			return t
		}
		c.Incref(f)
		return f
	}
	return c.mk(&Term{op: opITE, width: t.width, a: c1, b: t, c: f})
}

// BVSAddOverflow returns 1 iff signed a+b wraps.
func (c *Context) BVSAddOverflow(a, b *Term) *Term { return c.bin(opSAddOv, 1, a, b) }

// BVUAddOverflow returns 1 iff unsigned a+b wraps.
func (c *Context) BVUAddOverflow(a, b *Term) *Term { return c.bin(opUAddOv, 1, a, b) }

// BVSSubOverflow returns 1 iff signed a-b wraps.
func (c *Context) BVSSubOverflow(a, b *Term) *Term { return c.bin(opSSubOv, 1, a, b) }

// BVUSubOverflow returns 1 iff unsigned a-b wraps.
func (c *Context) BVUSubOverflow(a, b *Term) *Term { return c.bin(opUSubOv, 1, a, b) }

// BVSMulOverflow returns 1 iff signed a*b wraps.
func (c *Context) BVSMulOverflow(a, b *Term) *Term { return c.bin(opSMulOv, 1, a, b) }

// BVUMulOverflow returns 1 iff unsigned a*b wraps.
func (c *Context) BVUMulOverflow(a, b *Term) *Term { return c.bin(opUMulOv, 1, a, b) }

// Assume adds cond as a global assertion; the context takes its own
// reference.
func (c *Context) Assume(cond *Term) {
	c.Incref(cond)
	c.assumptions = append(c.assumptions, cond)
}

// Query decides assumptions AND e.
func (c *Context) Query(e *Term, deadline time.Time) (Status, Model) {
	// fast path: constant query with no constraints to satisfy
	if v, ok := e.IsConst(); ok {
		if v == 0 {
			return StatusUnsat, nil
		}
		if len(c.assumptions) == 0 {
			return StatusSat, Model{}
		}
	}
	bl := newBlaster()
	root := bl.blastBool(e)
	bl.addUnit(root)
	for _, as := range c.assumptions {
		bl.addUnit(bl.blastBool(as))
	}
	sat, timedOut, assign := solveCNF(bl.nvars, bl.cnf, deadline)
	if timedOut {
		return StatusTimeout, nil
	}
	if !sat {
		return StatusUnsat, nil
	}
	return StatusSat, bl.model(assign)
}

// evalBin folds a binary operation over w-bit constants; comparison and
// overflow operations yield 0 or 1.
func evalBin(o op, w uint, x, y uint64) uint64 {
	x, y = truncW(x, w), truncW(y, w)
	sx, sy := sextW(x, w), sextW(y, w)
	b2u := func(b bool) uint64 {
		if b {
			return 1
		}
		return 0
	}
	switch o {
	case opAdd:
		return truncW(x+y, w)
	case opSub:
		return truncW(x-y, w)
	case opMul:
		return truncW(x*y, w)
	case opUDiv:
		if y == 0 {
			return truncW(^uint64(0), w)
		}
		return x / y
	case opURem:
		if y == 0 {
			return x
		}
		return x % y
	case opSDiv:
		if y == 0 {
			if sx >= 0 {
				return truncW(^uint64(0), w)
			}
			return 1
		}
		if sx == minOf(w) && sy == -1 {
			return truncW(uint64(minOf(w)), w)
		}
		return truncW(uint64(sx/sy), w)
	case opSRem:
		if y == 0 {
			return x
		}
		if sx == minOf(w) && sy == -1 {
			return 0
		}
		return truncW(uint64(sx%sy), w)
	case opShl:
		if y >= uint64(w) {
			return 0
		}
		return truncW(x<<y, w)
	case opLShr:
		if y >= uint64(w) {
			return 0
		}
		return x >> y
	case opAShr:
		if y >= uint64(w) {
			y = uint64(w) - 1
		}
		return truncW(uint64(sx>>y), w)
	case opAnd:
		return x & y
	case opOr:
		return x | y
	case opXor:
		return x ^ y
	case opEq:
		return b2u(x == y)
	case opNe:
		return b2u(x != y)
	case opSge:
		return b2u(sx >= sy)
	case opSgt:
		return b2u(sx > sy)
	case opSle:
		return b2u(sx <= sy)
	case opSlt:
		return b2u(sx < sy)
	case opUge:
		return b2u(x >= y)
	case opUgt:
		return b2u(x > y)
	case opUle:
		return b2u(x <= y)
	case opUlt:
		return b2u(x < y)
	case opUAddOv:
		return b2u(truncW(x+y, w) < x)
	case opUSubOv:
		return b2u(x < y)
	case opUMulOv:
		return b2u(umulOverflows(x, y, w))
	case opSAddOv:
		r := sx + sy
		if w == 64 {
			return b2u((sx > 0 && sy > 0 && r < 0) || (sx < 0 && sy < 0 && r >= 0))
		}
		return b2u(r < minOf(w) || r > maxOf(w))
	case opSSubOv:
		r := sx - sy
		if w == 64 {
			return b2u((sx >= 0 && sy < 0 && r < 0) || (sx < 0 && sy >= 0 && r >= 0))
		}
		return b2u(r < minOf(w) || r > maxOf(w))
	case opSMulOv:
		return b2u(smulOverflows(sx, sy, w))
	}
	return 0
}

func minOf(w uint) int64 { return -(int64(1) << (w - 1)) }
func maxOf(w uint) int64 { return int64(1)<<(w-1) - 1 }

func umulOverflows(x, y uint64, w uint) bool {
	hi, lo := bits.Mul64(x, y)
	if hi != 0 {
		return true
	}
	return w < 64 && lo > truncW(^uint64(0), w)
}

func smulOverflows(sx, sy int64, w uint) bool {
	if sx == 0 || sy == 0 {
		return false
	}
	ax, ay := absU(sx), absU(sy)
	hi, lo := bits.Mul64(ax, ay)
	if hi != 0 {
		return true
	}
	neg := (sx < 0) != (sy < 0)
	if neg {
		return lo > uint64(1)<<(w-1)
	}
	return lo > uint64(maxOf(w))
}

func absU(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
