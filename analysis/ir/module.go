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

import (
	"fmt"
	"path"
	"strings"
)

// Module is one IR translation unit. Functions and globals keep their slice
// order for the lifetime of an analysis so that passes are deterministic.
type Module struct {
	MName   string
	Globals []*Global
	Funcs   []*Func
}

// NewModule returns an empty module named by its file identifier.
func NewModule(name string) *Module {
	return &Module{MName: name}
}

// Stem returns the module identifier without directory or extension, used to
// qualify internal-linkage names.
func (m *Module) Stem() string {
	base := path.Base(m.MName)
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// NewGlobal adds a global variable and returns it.
func (m *Module) NewGlobal(name string, valTy Type, init Constant) *Global {
	g := &Global{GName: name, ValTy: valTy, Init: init, Mod: m}
	m.Globals = append(m.Globals, g)
	return g
}

// NewFunc adds a function with the given signature. Parameters are named
// p0, p1, ... unless names are supplied.
func (m *Module) NewFunc(name string, sig *FuncType, paramNames ...string) *Func {
	f := &Func{FName: name, Sig: sig, Mod: m}
	for i, pt := range sig.Params {
		pn := fmt.Sprintf("p%d", i)
		if i < len(paramNames) {
			pn = paramNames[i]
		}
		f.Params = append(f.Params, &Param{PName: pn, Ty: pt, Idx: i, Fn: f})
	}
	m.Funcs = append(m.Funcs, f)
	return f
}

// Func returns the function with the given name, or nil.
func (m *Module) Func(name string) *Func {
	for _, f := range m.Funcs {
		if f.FName == name {
			return f
		}
	}
	return nil
}

// Block is a basic block.
type Block struct {
	BName  string
	Fn     *Func
	Instrs []Instruction

	preds []*Block
}

// NewBlock appends a new basic block to f.
func (f *Func) NewBlock(name string) *Block {
	b := &Block{BName: name, Fn: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Preds returns the predecessor blocks.
func (b *Block) Preds() []*Block { return b.preds }

// Succs returns the successor blocks of b's terminator.
func (b *Block) Succs() []*Block {
	if t := b.Term(); t != nil {
		return Successors(t)
	}
	return nil
}

// Term returns b's terminator, or nil while the block is under construction.
func (b *Block) Term() Instruction {
	if len(b.Instrs) == 0 {
		return nil
	}
	if t := b.Instrs[len(b.Instrs)-1]; IsTerminator(t) {
		return t
	}
	return nil
}

// Append attaches inst at the end of b. Terminators register b as a
// predecessor of their successors.
func (b *Block) Append(inst Instruction) Instruction {
	inst.setParent(b)
	if inst.Name() == "" {
		inst.setName(b.Fn.localName())
	}
	b.Instrs = append(b.Instrs, inst)
	for _, s := range Successors(inst) {
		s.preds = append(s.preds, b)
	}
	return inst
}

// InsertFront attaches inst before every existing instruction of b.
func (b *Block) InsertFront(inst Instruction) Instruction {
	inst.setParent(b)
	if inst.Name() == "" {
		inst.setName(b.Fn.localName())
	}
	b.Instrs = append([]Instruction{inst}, b.Instrs...)
	return inst
}

// Remove detaches inst from b. It does not touch uses; callers erase only
// use-free instructions.
func (b *Block) Remove(inst Instruction) {
	for i, x := range b.Instrs {
		if x == inst {
			b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
			return
		}
	}
}

// Convenience builders used by loaders and tests.

// NewBin appends a binary operation.
func (b *Block) NewBin(op BinOpKind, x, y Value) *BinInst {
	i := &BinInst{Op: op, X: x, Y: y}
	b.Append(i)
	return i
}

// NewNSWBin appends a binary operation flagged as signed no-wrap.
func (b *Block) NewNSWBin(op BinOpKind, x, y Value) *BinInst {
	i := &BinInst{Op: op, X: x, Y: y, NSW: true}
	b.Append(i)
	return i
}

// NewICmp appends an integer comparison.
func (b *Block) NewICmp(pred Pred, x, y Value) *CmpInst {
	i := &CmpInst{Pred: pred, X: x, Y: y}
	b.Append(i)
	return i
}

// NewCast appends a conversion to the given type.
func (b *Block) NewCast(kind CastKind, x Value, to Type) *CastInst {
	i := &CastInst{Kind: kind, X: x, To: to}
	b.Append(i)
	return i
}

// NewSelect appends a select.
func (b *Block) NewSelect(cond, t, f Value) *SelectInst {
	i := &SelectInst{Cond: cond, T: t, F: f}
	b.Append(i)
	return i
}

// NewPhi appends a phi node of the given type; incoming edges are added with
// AddIncoming once the predecessors exist.
func (b *Block) NewPhi(ty Type) *PhiInst {
	i := &PhiInst{Ty: ty}
	b.Append(i)
	return i
}

// NewAlloca appends a stack allocation of ty.
func (b *Block) NewAlloca(ty Type) *AllocaInst {
	i := &AllocaInst{Ty: ty}
	b.Append(i)
	return i
}

// NewLoad appends a load through ptr.
func (b *Block) NewLoad(ptr Value) *LoadInst {
	ty := Type(Void)
	if pt, ok := ptr.Type().(*PtrType); ok {
		ty = pt.Elem
	}
	i := &LoadInst{Ptr: ptr, Ty: ty}
	b.Append(i)
	return i
}

// NewStore appends a store of val through ptr.
func (b *Block) NewStore(val, ptr Value) *StoreInst {
	i := &StoreInst{Val: val, Ptr: ptr}
	b.Append(i)
	return i
}

// NewGEP appends an address computation.
func (b *Block) NewGEP(ptr Value, idx ...Value) *GEPInst {
	i := &GEPInst{Ptr: ptr, Idx: idx}
	b.Append(i)
	return i
}

// NewCall appends a call.
func (b *Block) NewCall(callee Value, args ...Value) *CallInst {
	i := NewCall(callee, args...)
	b.Append(i)
	return i
}

// NewExtractValue appends an aggregate field extraction.
func (b *Block) NewExtractValue(agg Value, index int) *ExtractValueInst {
	i := &ExtractValueInst{Agg: agg, Index: index}
	b.Append(i)
	return i
}

// NewBr appends an unconditional branch.
func (b *Block) NewBr(dest *Block) *BrInst {
	i := &BrInst{Dest: dest}
	b.Append(i)
	return i
}

// NewCondBr appends a conditional branch.
func (b *Block) NewCondBr(cond Value, t, f *Block) *CondBrInst {
	i := &CondBrInst{Cond: cond, True: t, False: f}
	b.Append(i)
	return i
}

// NewSwitch appends a switch terminator. Cases are added before the switch is
// appended through the Cases field, or the instruction is built directly.
func (b *Block) NewSwitch(x Value, def *Block, cases ...SwitchCase) *SwitchInst {
	i := &SwitchInst{X: x, Default: def, Cases: cases}
	b.Append(i)
	return i
}

// NewRet appends a return; x is nil for void functions.
func (b *Block) NewRet(x Value) *RetInst {
	i := &RetInst{X: x}
	b.Append(i)
	return i
}

// NewUnreachable appends an unreachable terminator.
func (b *Block) NewUnreachable() *UnreachableInst {
	i := &UnreachableInst{}
	b.Append(i)
	return i
}

// IterateInstructions visits every instruction of f in source order.
func IterateInstructions(f *Func, visit func(Instruction)) {
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			visit(i)
		}
	}
}

// ReplaceAllUses rewrites every operand of every instruction in f that is old
// to new.
func ReplaceAllUses(f *Func, old, new Value) {
	IterateInstructions(f, func(i Instruction) {
		i.replaceOperand(old, new)
	})
}

// HasUses reports whether any instruction of f uses v as an operand.
func HasUses(f *Func, v Value) bool {
	found := false
	IterateInstructions(f, func(i Instruction) {
		for _, op := range i.Operands() {
			if op == v {
				found = true
			}
		}
	})
	return found
}

// StripPointerCasts walks through bitcasts to the underlying pointer value.
func StripPointerCasts(v Value) Value {
	for {
		c, ok := v.(*CastInst)
		if !ok || c.Kind != CastBitCast {
			return v
		}
		v = c.X
	}
}

// BackEdges returns the CFG edges of f that close a cycle, found by a
// depth-first traversal from the entry block.
func BackEdges(f *Func) map[[2]*Block]bool {
	edges := map[[2]*Block]bool{}
	if f.EntryBlock() == nil {
		return edges
	}
	const (
		white = iota
		grey
		black
	)
	color := map[*Block]int{}
	var walk func(b *Block)
	walk = func(b *Block) {
		color[b] = grey
		for _, s := range b.Succs() {
			switch color[s] {
			case white:
				walk(s)
			case grey:
				edges[[2]*Block{b, s}] = true
			}
		}
		color[b] = black
	}
	walk(f.EntryBlock())
	return edges
}
