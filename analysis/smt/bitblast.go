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

// blaster translates the term DAG into CNF over SAT literals. Literals are
// non-zero ints: v asserts variable v, -v its negation. Variable 1 is pinned
// true, so the constants are the literals 1 and -1.
type blaster struct {
	nvars int
	cnf   [][]int
	memo  map[*Term][]int
	vars  []blastedVar
}

type blastedVar struct {
	t    *Term
	lits []int
}

const (
	litTrue  = 1
	litFalse = -1
)

func newBlaster() *blaster {
	b := &blaster{nvars: 1, memo: map[*Term][]int{}}
	b.cnf = append(b.cnf, []int{litTrue})
	return b
}

func (b *blaster) newVar() int {
	b.nvars++
	return b.nvars
}

func (b *blaster) addClause(lits ...int) {
	b.cnf = append(b.cnf, lits)
}

// addUnit asserts a single literal.
func (b *blaster) addUnit(l int) {
	b.addClause(l)
}

// --- gates ---

func (b *blaster) and2(x, y int) int {
	if x == litFalse || y == litFalse {
		return litFalse
	}
	if x == litTrue {
		return y
	}
	if y == litTrue {
		return x
	}
	if x == y {
		return x
	}
	if x == -y {
		return litFalse
	}
	v := b.newVar()
	b.addClause(-v, x)
	b.addClause(-v, y)
	b.addClause(v, -x, -y)
	return v
}

func (b *blaster) or2(x, y int) int {
	return -b.and2(-x, -y)
}

func (b *blaster) xor2(x, y int) int {
	if x == litTrue {
		return -y
	}
	if x == litFalse {
		return y
	}
	if y == litTrue {
		return -x
	}
	if y == litFalse {
		return x
	}
	if x == y {
		return litFalse
	}
	if x == -y {
		return litTrue
	}
	v := b.newVar()
	b.addClause(-v, x, y)
	b.addClause(-v, -x, -y)
	b.addClause(v, -x, y)
	b.addClause(v, x, -y)
	return v
}

func (b *blaster) mux(c, t, f int) int {
	if c == litTrue {
		return t
	}
	if c == litFalse {
		return f
	}
	if t == f {
		return t
	}
	return b.or2(b.and2(c, t), b.and2(-c, f))
}

func (b *blaster) orAll(ls []int) int {
	acc := litFalse
	for _, l := range ls {
		acc = b.or2(acc, l)
	}
	return acc
}

// --- vector circuits ---

func (b *blaster) notVec(a []int) []int {
	out := make([]int, len(a))
	for i, l := range a {
		out[i] = -l
	}
	return out
}

// addVec is a ripple-carry adder; it returns the sum bits and the carry out.
func (b *blaster) addVec(x, y []int, cin int) ([]int, int) {
	sum := make([]int, len(x))
	c := cin
	for i := range x {
		axb := b.xor2(x[i], y[i])
		sum[i] = b.xor2(axb, c)
		c = b.or2(b.and2(x[i], y[i]), b.and2(c, axb))
	}
	return sum, c
}

// mulVec is a shift-and-add multiplier truncated to the operand width.
func (b *blaster) mulVec(x, y []int) []int {
	w := len(x)
	acc := make([]int, w)
	for i := range acc {
		acc[i] = litFalse
	}
	for i := 0; i < w; i++ {
		pp := make([]int, w)
		for j := 0; j < w; j++ {
			if j < i {
				pp[j] = litFalse
			} else {
				pp[j] = b.and2(x[j-i], y[i])
			}
		}
		acc, _ = b.addVec(acc, pp, litFalse)
	}
	return acc
}

func (b *blaster) zextVec(a []int, w int) []int {
	out := make([]int, w)
	copy(out, a)
	for i := len(a); i < w; i++ {
		out[i] = litFalse
	}
	return out
}

func (b *blaster) sextVec(a []int, w int) []int {
	out := make([]int, w)
	copy(out, a)
	s := a[len(a)-1]
	for i := len(a); i < w; i++ {
		out[i] = s
	}
	return out
}

func (b *blaster) eqVec(x, y []int) int {
	acc := litTrue
	for i := range x {
		acc = b.and2(acc, -b.xor2(x[i], y[i]))
	}
	return acc
}

// ultVec computes x <u y as the missing carry of x + ^y + 1.
func (b *blaster) ultVec(x, y []int) int {
	_, cout := b.addVec(x, b.notVec(y), litTrue)
	return -cout
}

// sltVec flips the sign bits and compares unsigned.
func (b *blaster) sltVec(x, y []int) int {
	xs := make([]int, len(x))
	ys := make([]int, len(y))
	copy(xs, x)
	copy(ys, y)
	xs[len(xs)-1] = -xs[len(xs)-1]
	ys[len(ys)-1] = -ys[len(ys)-1]
	return b.ultVec(xs, ys)
}

func (b *blaster) muxVec(c int, t, f []int) []int {
	out := make([]int, len(t))
	for i := range t {
		out[i] = b.mux(c, t[i], f[i])
	}
	return out
}

// shiftVec builds a barrel shifter. dir is 'l' for shl, 'r' for lshr, 'a' for
// ashr. Amounts at or above the width produce zero, or all sign bits for the
// arithmetic shift.
func (b *blaster) shiftVec(x, amt []int, dir byte) []int {
	w := len(x)
	fill := litFalse
	if dir == 'a' {
		fill = x[w-1]
	}
	cur := make([]int, w)
	copy(cur, x)
	var tooBig []int
	for k := 0; k < len(amt); k++ {
		sh := 1 << uint(k)
		if sh >= w {
			tooBig = append(tooBig, amt[k])
			continue
		}
		shifted := make([]int, w)
		for i := 0; i < w; i++ {
			var src int
			if dir == 'l' {
				src = i - sh
			} else {
				src = i + sh
			}
			if src < 0 || src >= w {
				shifted[i] = fill
			} else {
				shifted[i] = cur[src]
			}
		}
		cur = b.muxVec(amt[k], shifted, cur)
	}
	if any := b.orAll(tooBig); any != litFalse {
		allFill := make([]int, w)
		for i := range allFill {
			allFill[i] = fill
		}
		cur = b.muxVec(any, allFill, cur)
	}
	return cur
}

// divVec introduces fresh quotient and remainder vectors constrained by
// a = q*b + r with r < b for nonzero b, and the bvudiv/bvurem zero-divisor
// convention otherwise. It returns (q, r).
func (b *blaster) divVec(a, y []int) ([]int, []int) {
	w := len(a)
	q := make([]int, w)
	r := make([]int, w)
	for i := 0; i < w; i++ {
		q[i] = b.newVar()
		r[i] = b.newVar()
	}
	nz := b.orAll(y)

	w2 := 2 * w
	prod := b.mulVec(b.zextVec(q, w2), b.zextVec(y, w2))
	sum, _ := b.addVec(prod, b.zextVec(r, w2), litFalse)
	okDiv := b.and2(b.eqVec(sum, b.zextVec(a, w2)), b.ultVec(r, y))

	ones := make([]int, w)
	for i := range ones {
		ones[i] = litTrue
	}
	okZero := b.and2(b.eqVec(q, ones), b.eqVec(r, a))

	b.addUnit(b.mux(nz, okDiv, okZero))
	return q, r
}

// negVec is two's complement negation.
func (b *blaster) negVec(x []int) []int {
	sum, _ := b.addVec(b.notVec(x), b.constVec(len(x), 1), litFalse)
	return sum
}

func (b *blaster) constVec(w int, v uint64) []int {
	out := make([]int, w)
	for i := 0; i < w; i++ {
		if v>>uint(i)&1 == 1 {
			out[i] = litTrue
		} else {
			out[i] = litFalse
		}
	}
	return out
}

func (b *blaster) absVec(x []int) []int {
	return b.muxVec(x[len(x)-1], b.negVec(x), x)
}

// --- term translation ---

// blast returns the literal vector of t, least significant bit first.
func (b *blaster) blast(t *Term) []int {
	if ls, ok := b.memo[t]; ok {
		return ls
	}
	ls := b.blastNew(t)
	b.memo[t] = ls
	return ls
}

// blastBool returns the single literal of a 1-bit term.
func (b *blaster) blastBool(t *Term) int {
	return b.blast(t)[0]
}

//gocyclo:ignore
func (b *blaster) blastNew(t *Term) []int {
	w := int(t.width)
	switch t.op {
	case opConst:
		return b.constVec(w, t.k)
	case opVar:
		ls := make([]int, w)
		for i := range ls {
			ls[i] = b.newVar()
		}
		b.vars = append(b.vars, blastedVar{t: t, lits: ls})
		return ls
	case opExtract:
		src := b.blast(t.a)
		return src[t.lo : t.hi+1]
	case opZExt:
		return b.zextVec(b.blast(t.a), w)
	case opSExt:
		return b.sextVec(b.blast(t.a), w)
	case opITE:
		return b.muxVec(b.blastBool(t.a), b.blast(t.b), b.blast(t.c))
	}

	x := b.blast(t.a)
	y := b.blast(t.b)
	one := func(l int) []int { return []int{l} }
	switch t.op {
	case opAdd:
		s, _ := b.addVec(x, y, litFalse)
		return s
	case opSub:
		s, _ := b.addVec(x, b.notVec(y), litTrue)
		return s
	case opMul:
		return b.mulVec(x, y)
	case opUDiv:
		q, _ := b.divVec(x, y)
		return q
	case opURem:
		_, r := b.divVec(x, y)
		return r
	case opSDiv:
		q, _ := b.divVec(b.absVec(x), b.absVec(y))
		neg := b.xor2(x[len(x)-1], y[len(y)-1])
		return b.muxVec(neg, b.negVec(q), q)
	case opSRem:
		_, r := b.divVec(b.absVec(x), b.absVec(y))
		return b.muxVec(x[len(x)-1], b.negVec(r), r)
	case opShl:
		return b.shiftVec(x, y, 'l')
	case opLShr:
		return b.shiftVec(x, y, 'r')
	case opAShr:
		return b.shiftVec(x, y, 'a')
	case opAnd:
		out := make([]int, w)
		for i := range out {
			out[i] = b.and2(x[i], y[i])
		}
		return out
	case opOr:
		out := make([]int, w)
		for i := range out {
			out[i] = b.or2(x[i], y[i])
		}
		return out
	case opXor:
		out := make([]int, w)
		for i := range out {
			out[i] = b.xor2(x[i], y[i])
		}
		return out
	case opEq:
		return one(b.eqVec(x, y))
	case opNe:
		return one(-b.eqVec(x, y))
	case opUlt:
		return one(b.ultVec(x, y))
	case opUge:
		return one(-b.ultVec(x, y))
	case opUgt:
		return one(b.ultVec(y, x))
	case opUle:
		return one(-b.ultVec(y, x))
	case opSlt:
		return one(b.sltVec(x, y))
	case opSge:
		return one(-b.sltVec(x, y))
	case opSgt:
		return one(b.sltVec(y, x))
	case opSle:
		return one(-b.sltVec(y, x))
	case opUAddOv:
		_, cout := b.addVec(x, y, litFalse)
		return one(cout)
	case opUSubOv:
		return one(b.ultVec(x, y))
	case opUMulOv:
		w2 := 2 * len(x)
		p := b.mulVec(b.zextVec(x, w2), b.zextVec(y, w2))
		return one(b.orAll(p[len(x):]))
	case opSAddOv:
		s, _ := b.addVec(x, y, litFalse)
		sa, sb, ss := x[len(x)-1], y[len(y)-1], s[len(s)-1]
		return one(b.and2(-b.xor2(sa, sb), b.xor2(sa, ss)))
	case opSSubOv:
		s, _ := b.addVec(x, b.notVec(y), litTrue)
		sa, sb, ss := x[len(x)-1], y[len(y)-1], s[len(s)-1]
		return one(b.and2(b.xor2(sa, sb), b.xor2(sa, ss)))
	case opSMulOv:
		w2 := 2 * len(x)
		p := b.mulVec(b.sextVec(x, w2), b.sextVec(y, w2))
		sign := p[len(x)-1]
		var bad []int
		for j := len(x); j < w2; j++ {
			bad = append(bad, b.xor2(p[j], sign))
		}
		return one(b.orAll(bad))
	}
	panic("smt: unhandled op in bit blasting")
}

// model reconstructs the values of every blasted variable from a satisfying
// assignment.
func (b *blaster) model(assign []bool) Model {
	m := Model{}
	for _, bv := range b.vars {
		var v uint64
		for i, l := range bv.lits {
			val := assign[abs(l)]
			if l < 0 {
				val = !val
			}
			if val {
				v |= 1 << uint(i)
			}
		}
		m[bv.t.name] = v
	}
	return m
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
