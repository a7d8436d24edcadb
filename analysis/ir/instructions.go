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

package ir

// Instruction is implemented by every IR instruction. Instructions are Values;
// those that produce no result have VoidType.
type Instruction interface {
	Value
	Parent() *Block
	Operands() []Value
	replaceOperand(old, new Value)
	setParent(*Block)
	setName(string)

	MD(key string) *MDNode
	SetMD(key string, md *MDNode)
	ClearMD(key string)
	Loc() *Location
	SetLoc(*Location)
}

type instrBase struct {
	blk  *Block
	name string
	md   map[string]*MDNode
	loc  *Location
}

func (b *instrBase) Parent() *Block     { return b.blk }
func (b *instrBase) setParent(p *Block) { b.blk = p }
func (b *instrBase) Name() string       { return b.name }
func (b *instrBase) setName(n string)   { b.name = n }
func (b *instrBase) Loc() *Location     { return b.loc }
func (b *instrBase) SetLoc(l *Location) { b.loc = l }
func (*instrBase) isValue()             {}

func (b *instrBase) MD(key string) *MDNode {
	return b.md[key]
}

func (b *instrBase) SetMD(key string, md *MDNode) {
	if b.md == nil {
		b.md = map[string]*MDNode{}
	}
	b.md[key] = md
}

func (b *instrBase) ClearMD(key string) {
	delete(b.md, key)
}

// BinOpKind enumerates the binary integer operations.
type BinOpKind int

const (
	OpAdd BinOpKind = iota
	OpSub
	OpMul
	OpUDiv
	OpSDiv
	OpURem
	OpSRem
	OpShl
	OpLShr
	OpAShr
	OpAnd
	OpOr
	OpXor
)

var binOpNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpUDiv: "udiv", OpSDiv: "sdiv",
	OpURem: "urem", OpSRem: "srem", OpShl: "shl", OpLShr: "lshr", OpAShr: "ashr",
	OpAnd: "and", OpOr: "or", OpXor: "xor",
}

func (op BinOpKind) String() string { return binOpNames[op] }

// BinInst is a binary integer operation. NSW marks signed no-wrap arithmetic.
type BinInst struct {
	instrBase
	Op   BinOpKind
	X, Y Value
	NSW  bool
}

func (i *BinInst) Type() Type        { return i.X.Type() }
func (i *BinInst) Operands() []Value { return []Value{i.X, i.Y} }
func (i *BinInst) replaceOperand(o, n Value) {
	if i.X == o {
		i.X = n
	}
	if i.Y == o {
		i.Y = n
	}
}

// Pred enumerates integer comparison predicates.
type Pred int

const (
	PredEQ Pred = iota
	PredNE
	PredSGE
	PredSGT
	PredSLE
	PredSLT
	PredUGE
	PredUGT
	PredULE
	PredULT
)

var predNames = [...]string{
	PredEQ: "eq", PredNE: "ne", PredSGE: "sge", PredSGT: "sgt", PredSLE: "sle",
	PredSLT: "slt", PredUGE: "uge", PredUGT: "ugt", PredULE: "ule", PredULT: "ult",
}

func (p Pred) String() string { return predNames[p] }

// Inverse returns the predicate that holds exactly when p does not.
func (p Pred) Inverse() Pred {
	switch p {
	case PredEQ:
		return PredNE
	case PredNE:
		return PredEQ
	case PredSGE:
		return PredSLT
	case PredSGT:
		return PredSLE
	case PredSLE:
		return PredSGT
	case PredSLT:
		return PredSGE
	case PredUGE:
		return PredULT
	case PredUGT:
		return PredULE
	case PredULE:
		return PredUGT
	default:
		return PredUGE
	}
}

// Swapped returns the predicate with operands exchanged (x p y == y p' x).
func (p Pred) Swapped() Pred {
	switch p {
	case PredSGE:
		return PredSLE
	case PredSGT:
		return PredSLT
	case PredSLE:
		return PredSGE
	case PredSLT:
		return PredSGT
	case PredUGE:
		return PredULE
	case PredUGT:
		return PredULT
	case PredULE:
		return PredUGE
	case PredULT:
		return PredUGT
	default:
		return p
	}
}

// CmpInst is an integer comparison producing an i1.
type CmpInst struct {
	instrBase
	Pred Pred
	X, Y Value
}

func (i *CmpInst) Type() Type        { return I1 }
func (i *CmpInst) Operands() []Value { return []Value{i.X, i.Y} }
func (i *CmpInst) replaceOperand(o, n Value) {
	if i.X == o {
		i.X = n
	}
	if i.Y == o {
		i.Y = n
	}
}

// CastKind enumerates the width and domain conversions.
type CastKind int

const (
	CastTrunc CastKind = iota
	CastZExt
	CastSExt
	CastPtrToInt
	CastIntToPtr
	CastBitCast
)

// CastInst converts X to type To.
type CastInst struct {
	instrBase
	Kind CastKind
	X    Value
	To   Type
}

func (i *CastInst) Type() Type        { return i.To }
func (i *CastInst) Operands() []Value { return []Value{i.X} }
func (i *CastInst) replaceOperand(o, n Value) {
	if i.X == o {
		i.X = n
	}
}

// SelectInst chooses between T and F on a 1-bit condition.
type SelectInst struct {
	instrBase
	Cond, T, F Value
}

func (i *SelectInst) Type() Type        { return i.T.Type() }
func (i *SelectInst) Operands() []Value { return []Value{i.Cond, i.T, i.F} }
func (i *SelectInst) replaceOperand(o, n Value) {
	if i.Cond == o {
		i.Cond = n
	}
	if i.T == o {
		i.T = n
	}
	if i.F == o {
		i.F = n
	}
}

// PhiEdge is one incoming value of a phi node.
type PhiEdge struct {
	V    Value
	Pred *Block
}

// PhiInst merges values flowing in from predecessor blocks.
type PhiInst struct {
	instrBase
	Ty    Type
	Edges []PhiEdge
}

func (i *PhiInst) Type() Type { return i.Ty }
func (i *PhiInst) Operands() []Value {
	ops := make([]Value, len(i.Edges))
	for j, e := range i.Edges {
		ops[j] = e.V
	}
	return ops
}
func (i *PhiInst) replaceOperand(o, n Value) {
	for j := range i.Edges {
		if i.Edges[j].V == o {
			i.Edges[j].V = n
		}
	}
}

// AddIncoming appends an incoming edge.
func (i *PhiInst) AddIncoming(v Value, pred *Block) {
	i.Edges = append(i.Edges, PhiEdge{V: v, Pred: pred})
}

// AllocaInst reserves stack storage for a value of type Ty and produces its
// address.
type AllocaInst struct {
	instrBase
	Ty Type
}

func (i *AllocaInst) Type() Type                { return PointerTo(i.Ty) }
func (i *AllocaInst) Operands() []Value         { return nil }
func (i *AllocaInst) replaceOperand(o, n Value) {}

// LoadInst loads a value of type Ty through Ptr.
type LoadInst struct {
	instrBase
	Ptr Value
	Ty  Type
}

func (i *LoadInst) Type() Type        { return i.Ty }
func (i *LoadInst) Operands() []Value { return []Value{i.Ptr} }
func (i *LoadInst) replaceOperand(o, n Value) {
	if i.Ptr == o {
		i.Ptr = n
	}
}

// StoreInst stores Val through Ptr.
type StoreInst struct {
	instrBase
	Val, Ptr Value
}

func (i *StoreInst) Type() Type        { return Void }
func (i *StoreInst) Operands() []Value { return []Value{i.Val, i.Ptr} }
func (i *StoreInst) replaceOperand(o, n Value) {
	if i.Val == o {
		i.Val = n
	}
	if i.Ptr == o {
		i.Ptr = n
	}
}

// GEPInst computes an address from a base pointer and index list.
type GEPInst struct {
	instrBase
	Ptr Value
	Idx []Value
}

// IndexedType walks elemTy under all indices but the first (which indexes the
// base pointer itself) and returns the type addressed by the walk, or nil when
// an index shape is not supported.
func IndexedType(ptrTy Type, idx []Value) Type {
	pt, ok := ptrTy.(*PtrType)
	if !ok || len(idx) == 0 {
		return nil
	}
	t := pt.Elem
	for _, v := range idx[1:] {
		switch cur := t.(type) {
		case *StructType:
			c, ok := v.(*Const)
			if !ok || int(c.V) >= len(cur.Fields) {
				return nil
			}
			t = cur.Fields[c.V]
		case *ArrayType:
			t = cur.Elem
		default:
			return nil
		}
	}
	return t
}

func (i *GEPInst) Type() Type {
	t := IndexedType(i.Ptr.Type(), i.Idx)
	if t == nil {
		return i.Ptr.Type()
	}
	return PointerTo(t)
}

func (i *GEPInst) Operands() []Value {
	ops := []Value{i.Ptr}
	return append(ops, i.Idx...)
}

func (i *GEPInst) replaceOperand(o, n Value) {
	if i.Ptr == o {
		i.Ptr = n
	}
	for j := range i.Idx {
		if i.Idx[j] == o {
			i.Idx[j] = n
		}
	}
}

// CallInst calls Callee with Args. The callee may be a *Func (direct call) or
// any other pointer-typed value (indirect call).
type CallInst struct {
	instrBase
	Callee Value
	Args   []Value
	FTy    *FuncType
}

// NewCall builds an unattached call instruction, deriving the signature from
// the callee type.
func NewCall(callee Value, args ...Value) *CallInst {
	var fty *FuncType
	if pt, ok := callee.Type().(*PtrType); ok {
		if ft, ok := pt.Elem.(*FuncType); ok {
			fty = ft
		}
	}
	if fty == nil {
		fty = &FuncType{Ret: Void}
	}
	return &CallInst{Callee: callee, Args: args, FTy: fty}
}

func (i *CallInst) Type() Type { return i.FTy.Ret }

// CalledFunc returns the statically known callee, or nil for indirect calls.
func (i *CallInst) CalledFunc() *Func {
	f, _ := i.Callee.(*Func)
	return f
}

// IsIndirect reports whether the call goes through a function pointer.
func (i *CallInst) IsIndirect() bool { return i.CalledFunc() == nil }

func (i *CallInst) Operands() []Value {
	ops := []Value{i.Callee}
	return append(ops, i.Args...)
}

func (i *CallInst) replaceOperand(o, n Value) {
	if i.Callee == o {
		i.Callee = n
	}
	for j := range i.Args {
		if i.Args[j] == o {
			i.Args[j] = n
		}
	}
}

// ExtractValueInst extracts field Index from an aggregate value.
type ExtractValueInst struct {
	instrBase
	Agg   Value
	Index int
}

func (i *ExtractValueInst) Type() Type {
	if st, ok := i.Agg.Type().(*StructType); ok && i.Index < len(st.Fields) {
		return st.Fields[i.Index]
	}
	return Void
}

func (i *ExtractValueInst) Operands() []Value { return []Value{i.Agg} }
func (i *ExtractValueInst) replaceOperand(o, n Value) {
	if i.Agg == o {
		i.Agg = n
	}
}

// BrInst is an unconditional branch.
type BrInst struct {
	instrBase
	Dest *Block
}

func (i *BrInst) Type() Type                { return Void }
func (i *BrInst) Operands() []Value         { return nil }
func (i *BrInst) replaceOperand(o, n Value) {}

// CondBrInst branches on a 1-bit condition.
type CondBrInst struct {
	instrBase
	Cond        Value
	True, False *Block
}

func (i *CondBrInst) Type() Type        { return Void }
func (i *CondBrInst) Operands() []Value { return []Value{i.Cond} }
func (i *CondBrInst) replaceOperand(o, n Value) {
	if i.Cond == o {
		i.Cond = n
	}
}

// SwitchCase is one case arm of a switch terminator.
type SwitchCase struct {
	Val  uint64
	Dest *Block
}

// SwitchInst dispatches on an integer value.
type SwitchInst struct {
	instrBase
	X       Value
	Default *Block
	Cases   []SwitchCase
}

func (i *SwitchInst) Type() Type        { return Void }
func (i *SwitchInst) Operands() []Value { return []Value{i.X} }
func (i *SwitchInst) replaceOperand(o, n Value) {
	if i.X == o {
		i.X = n
	}
}

// RetInst returns from the function; X is nil for void returns.
type RetInst struct {
	instrBase
	X Value
}

func (i *RetInst) Type() Type { return Void }
func (i *RetInst) Operands() []Value {
	if i.X == nil {
		return nil
	}
	return []Value{i.X}
}
func (i *RetInst) replaceOperand(o, n Value) {
	if i.X == o {
		i.X = n
	}
}

// UnreachableInst terminates a block that cannot be reached.
type UnreachableInst struct {
	instrBase
}

func (i *UnreachableInst) Type() Type                { return Void }
func (i *UnreachableInst) Operands() []Value         { return nil }
func (i *UnreachableInst) replaceOperand(o, n Value) {}

// IsTerminator reports whether inst ends a basic block.
func IsTerminator(inst Instruction) bool {
	switch inst.(type) {
	case *BrInst, *CondBrInst, *SwitchInst, *RetInst, *UnreachableInst:
		return true
	}
	return false
}

// Successors returns the blocks a terminator can transfer control to.
func Successors(inst Instruction) []*Block {
	switch t := inst.(type) {
	case *BrInst:
		return []*Block{t.Dest}
	case *CondBrInst:
		return []*Block{t.True, t.False}
	case *SwitchInst:
		succs := []*Block{t.Default}
		for _, c := range t.Cases {
			succs = append(succs, c.Dest)
		}
		return succs
	}
	return nil
}
