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

// Package encode translates IR values into bitvector expressions for the
// solver. Encoding is total over integer-, pointer- and function-typed
// values and aborts on anything else; interval metadata computed by the range
// pass is emitted as global assumptions the first time a value is encoded.
package encode

import (
	"fmt"
	"strings"

	"github.com/ingot-tools/ingot/analysis/annotation"
	"github.com/ingot-tools/ingot/analysis/ir"
	"github.com/ingot-tools/ingot/analysis/smt"
)

// Encoder memoizes the translation of values to solver terms. The cache owns
// one reference per expression; Close releases them all exactly once.
type Encoder struct {
	dl    *ir.DataLayout
	s     smt.Solver
	cache map[ir.Value]*smt.Term
}

// NewEncoder returns an encoder emitting into s.
func NewEncoder(dl *ir.DataLayout, s smt.Solver) *Encoder {
	return &Encoder{dl: dl, s: s, cache: map[ir.Value]*smt.Term{}}
}

// Close releases the cached expression references.
func (e *Encoder) Close() {
	for _, t := range e.cache {
		e.s.Decref(t)
	}
	e.cache = nil
}

// IsAnalyzable reports whether values of type t can be encoded.
func IsAnalyzable(t ir.Type) bool {
	switch t.(type) {
	case *ir.IntType, *ir.PtrType, *ir.FuncType:
		return true
	}
	return false
}

// Get returns the expression of v, encoding it on first use. The returned
// reference is owned by the encoder's cache.
func (e *Encoder) Get(v ir.Value) *smt.Term {
	if t, ok := e.cache[v]; ok {
		return t
	}
	t := e.analyze(v)
	e.cache[v] = t
	if inst, ok := v.(ir.Instruction); ok {
		if md := inst.MD(annotation.MDIntRange); md != nil {
			e.addRangeConstraints(t, md)
		}
	}
	return t
}

func (e *Encoder) analyze(v ir.Value) *smt.Term {
	if !IsAnalyzable(v.Type()) {
		panic(fmt.Sprintf("encode: value %s has unencodable type %s", v.Name(), v.Type()))
	}
	switch v := v.(type) {
	case ir.Instruction:
		return e.visit(v)
	case ir.Constant:
		return e.visitConstant(v)
	}
	return e.fresh(v)
}

func (e *Encoder) width(t ir.Type) uint {
	w := e.dl.TypeBits(t)
	if w == 0 || w > 64 {
		panic(fmt.Sprintf("encode: unsupported width %d for type %s", w, t))
	}
	return w
}

func (e *Encoder) fresh(v ir.Value) *smt.Term {
	// the pointer identity disambiguates unnamed and duplicate names
	name := fmt.Sprintf("%s@%p", v.Name(), v)
	return e.s.BVVar(e.width(v.Type()), name)
}

func (e *Encoder) visitConstant(c ir.Constant) *smt.Term {
	switch c := c.(type) {
	case *ir.Const:
		return e.s.BVConst(c.Ty.Bits, c.V)
	case *ir.NullConst:
		return e.s.BVConst(e.dl.PtrBits, 0)
	}
	return e.fresh(c)
}

//gocyclo:ignore
func (e *Encoder) visit(i ir.Instruction) *smt.Term {
	switch i := i.(type) {
	case *ir.BinInst:
		return e.visitBinOp(i)
	case *ir.CmpInst:
		return e.visitCmp(i)
	case *ir.CastInst:
		return e.visitCast(i)
	case *ir.SelectInst:
		return e.s.ITE(e.Get(i.Cond), e.Get(i.T), e.Get(i.F))
	case *ir.ExtractValueInst:
		return e.visitExtractValue(i)
	case *ir.GEPInst:
		return e.visitGEP(i)
	case *ir.PhiInst, *ir.LoadInst, *ir.CallInst, *ir.AllocaInst:
		// summarized by their interval metadata only
		return e.fresh(i)
	}
	panic(fmt.Sprintf("encode: instruction %s has no encoding", i.Name()))
}

func (e *Encoder) visitBinOp(i *ir.BinInst) *smt.Term {
	l, r := e.Get(i.X), e.Get(i.Y)
	switch i.Op {
	case ir.OpAdd:
		return e.s.BVAdd(l, r)
	case ir.OpSub:
		return e.s.BVSub(l, r)
	case ir.OpMul:
		return e.s.BVMul(l, r)
	case ir.OpUDiv:
		return e.s.BVUDiv(l, r)
	case ir.OpSDiv:
		return e.s.BVSDiv(l, r)
	case ir.OpURem:
		return e.s.BVURem(l, r)
	case ir.OpSRem:
		return e.s.BVSRem(l, r)
	case ir.OpShl:
		return e.s.BVShl(l, r)
	case ir.OpLShr:
		return e.s.BVLShr(l, r)
	case ir.OpAShr:
		return e.s.BVAShr(l, r)
	case ir.OpAnd:
		return e.s.BVAnd(l, r)
	case ir.OpOr:
		return e.s.BVOr(l, r)
	case ir.OpXor:
		return e.s.BVXor(l, r)
	}
	panic(fmt.Sprintf("encode: unknown binary op %d", i.Op))
}

func (e *Encoder) visitCmp(i *ir.CmpInst) *smt.Term {
	l, r := e.Get(i.X), e.Get(i.Y)
	switch i.Pred {
	case ir.PredEQ:
		return e.s.Eq(l, r)
	case ir.PredNE:
		return e.s.Ne(l, r)
	case ir.PredSGE:
		return e.s.BVSge(l, r)
	case ir.PredSGT:
		return e.s.BVSgt(l, r)
	case ir.PredSLE:
		return e.s.BVSle(l, r)
	case ir.PredSLT:
		return e.s.BVSlt(l, r)
	case ir.PredUGE:
		return e.s.BVUge(l, r)
	case ir.PredUGT:
		return e.s.BVUgt(l, r)
	case ir.PredULE:
		return e.s.BVUle(l, r)
	case ir.PredULT:
		return e.s.BVUlt(l, r)
	}
	panic(fmt.Sprintf("encode: unknown predicate %d", i.Pred))
}

func (e *Encoder) visitCast(i *ir.CastInst) *smt.Term {
	src := e.Get(i.X)
	srcW := e.width(i.X.Type())
	dstW := e.width(i.To)
	switch i.Kind {
	case ir.CastTrunc:
		return e.s.Extract(dstW-1, 0, src)
	case ir.CastZExt:
		return e.s.ZeroExtend(dstW-srcW, src)
	case ir.CastSExt:
		return e.s.SignExtend(dstW-srcW, src)
	case ir.CastPtrToInt, ir.CastIntToPtr, ir.CastBitCast:
		switch {
		case dstW > srcW:
			return e.s.ZeroExtend(dstW-srcW, src)
		case dstW < srcW:
			return e.s.Extract(dstW-1, 0, src)
		default:
			e.s.Incref(src)
			return src
		}
	}
	panic(fmt.Sprintf("encode: unknown cast kind %d", i.Kind))
}

// overflowStems lists the name stems of the recognized *.with.overflow
// intrinsics.
var overflowStems = []string{"sadd", "uadd", "ssub", "usub", "smul", "umul"}

// intrinsicStem extracts "sadd" from "llvm.sadd.with.overflow.i32", or "".
func intrinsicStem(name string) string {
	if !strings.HasPrefix(name, "llvm.") || !strings.Contains(name, ".with.overflow.") {
		return ""
	}
	rest := name[len("llvm."):]
	dot := strings.IndexByte(rest, '.')
	if dot < 0 {
		return ""
	}
	stem := rest[:dot]
	for _, s := range overflowStems {
		if s == stem {
			return stem
		}
	}
	return ""
}

func (e *Encoder) visitExtractValue(i *ir.ExtractValueInst) *smt.Term {
	ci, ok := i.Agg.(*ir.CallInst)
	if !ok || ci.CalledFunc() == nil {
		return e.fresh(i)
	}
	stem := intrinsicStem(ci.CalledFunc().FName)
	if stem == "" || len(ci.Args) < 2 {
		return e.fresh(i)
	}
	l, r := e.Get(ci.Args[0]), e.Get(ci.Args[1])
	switch i.Index {
	case 0:
		switch stem[1:] {
		case "add":
			return e.s.BVAdd(l, r)
		case "sub":
			return e.s.BVSub(l, r)
		case "mul":
			return e.s.BVMul(l, r)
		}
	case 1:
		switch stem {
		case "sadd":
			return e.s.BVSAddOverflow(l, r)
		case "uadd":
			return e.s.BVUAddOverflow(l, r)
		case "ssub":
			return e.s.BVSSubOverflow(l, r)
		case "usub":
			return e.s.BVUSubOverflow(l, r)
		case "smul":
			return e.s.BVSMulOverflow(l, r)
		case "umul":
			return e.s.BVUMulOverflow(l, r)
		}
	}
	panic(fmt.Sprintf("encode: unknown overflow extraction %s[%d]", ci.CalledFunc().FName, i.Index))
}

// visitGEP encodes pointer arithmetic: compile-time-constant offsets
// accumulate into one constant, variable indices multiply by the element
// allocation size. The base pointer's bitvector joins the sum symbolically.
func (e *Encoder) visitGEP(g *ir.GEPInst) *smt.Term {
	ptrW := e.dl.PtrBits
	offset := e.Get(g.Ptr)
	e.s.Incref(offset)
	var constOffset uint64

	pt, ok := g.Ptr.Type().(*ir.PtrType)
	if !ok {
		panic(fmt.Sprintf("encode: address computation on non-pointer %s", g.Ptr.Name()))
	}
	cur := pt.Elem
	for k, idx := range g.Idx {
		var elemTy ir.Type
		if k == 0 {
			elemTy = cur
		} else {
			switch t := cur.(type) {
			case *ir.StructType:
				c, ok := idx.(*ir.Const)
				if !ok {
					panic("encode: variable struct field index")
				}
				constOffset += e.dl.StructOffset(t, int(c.V))
				cur = t.Fields[c.V]
				continue
			case *ir.ArrayType:
				elemTy = t.Elem
				cur = t.Elem
			default:
				panic(fmt.Sprintf("encode: address walk through %s", cur))
			}
		}
		elemSize := e.dl.AllocSize(elemTy)
		if c, ok := idx.(*ir.Const); ok {
			if c.V != 0 {
				constOffset += c.V * elemSize
			}
			continue
		}
		sIdx := e.widenIndex(e.Get(idx), ptrW)
		sElemSize := e.s.BVConst(ptrW, elemSize)
		local := e.s.BVMul(sIdx, sElemSize)
		tmp := e.s.BVAdd(offset, local)
		e.s.Decref(sIdx)
		e.s.Decref(sElemSize)
		e.s.Decref(offset)
		e.s.Decref(local)
		offset = tmp
	}

	if constOffset == 0 {
		return offset
	}
	sConst := e.s.BVConst(ptrW, constOffset)
	tmp := e.s.BVAdd(offset, sConst)
	e.s.Decref(offset)
	e.s.Decref(sConst)
	return tmp
}

// widenIndex adjusts an index expression to pointer width; the returned
// reference is owned by the caller.
func (e *Encoder) widenIndex(t *smt.Term, ptrW uint) *smt.Term {
	switch {
	case t.Width() < ptrW:
		return e.s.SignExtend(ptrW-t.Width(), t)
	case t.Width() > ptrW:
		return e.s.Extract(ptrW-1, 0, t)
	default:
		e.s.Incref(t)
		return t
	}
}

// addRangeConstraints assumes each interval of the metadata: E in [lo, hi)
// for plain pairs, the wrapped disjunction otherwise. Equal bounds are
// ignored, as is a trivially true lower bound of zero.
func (e *Encoder) addRangeConstraints(t *smt.Term, md *ir.MDNode) {
	for _, pair := range md.Pairs {
		lo, hi := pair[0], pair[1]
		if lo == hi {
			continue
		}
		var cmp0, cmp1 *smt.Term
		if lo != 0 {
			c := e.s.BVConst(t.Width(), lo)
			cmp0 = e.s.BVUge(t, c)
			e.s.Decref(c)
		}
		if hi != 0 {
			c := e.s.BVConst(t.Width(), hi)
			cmp1 = e.s.BVUlt(t, c)
			e.s.Decref(c)
		}
		var cond *smt.Term
		switch {
		case cmp0 == nil:
			cond = cmp1
		case cmp1 == nil:
			cond = cmp0
		case lo <= hi:
			cond = e.s.BVAnd(cmp0, cmp1)
			e.s.Decref(cmp0)
			e.s.Decref(cmp1)
		default:
			// wrap: [lo, UMAX] union [0, hi)
			cond = e.s.BVOr(cmp0, cmp1)
			e.s.Decref(cmp0)
			e.s.Decref(cmp1)
		}
		e.s.Assume(cond)
		e.s.Decref(cond)
	}
}

// OverflowPred builds the overflow predicate of an add, sub or mul: signed
// when the operation carries the no-signed-wrap flag, unsigned otherwise.
// The returned reference is owned by the caller; nil for other opcodes.
func (e *Encoder) OverflowPred(i *ir.BinInst) *smt.Term {
	l, r := e.Get(i.X), e.Get(i.Y)
	switch i.Op {
	case ir.OpAdd:
		if i.NSW {
			return e.s.BVSAddOverflow(l, r)
		}
		return e.s.BVUAddOverflow(l, r)
	case ir.OpSub:
		if i.NSW {
			return e.s.BVSSubOverflow(l, r)
		}
		return e.s.BVUSubOverflow(l, r)
	case ir.OpMul:
		if i.NSW {
			return e.s.BVSMulOverflow(l, r)
		}
		return e.s.BVUMulOverflow(l, r)
	}
	return nil
}
