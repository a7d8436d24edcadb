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

import "fmt"

// Value is an IR value: a constant, a global, a function, a parameter or an
// instruction. Instructions that produce no result (stores, terminators) have
// VoidType so that every instruction can be used as a map key of type Value.
type Value interface {
	Type() Type
	Name() string
	isValue()
}

// Constant is a value whose bits are known at compile time.
type Constant interface {
	Value
	isConst()
}

// Const is an integer constant. V holds the bit pattern truncated to the
// type's width.
type Const struct {
	Ty *IntType
	V  uint64
}

// NewConst returns an integer constant of the given width, truncating v.
func NewConst(ty *IntType, v uint64) *Const {
	return &Const{Ty: ty, V: truncVal(v, ty.Bits)}
}

func truncVal(v uint64, bits uint) uint64 {
	if bits >= 64 {
		return v
	}
	return v & (1<<bits - 1)
}

func (c *Const) Type() Type   { return c.Ty }
func (c *Const) Name() string { return fmt.Sprintf("%d", c.V) }

// IsZero reports whether the constant is zero.
func (c *Const) IsZero() bool { return c.V == 0 }

// NullConst is a null pointer constant.
type NullConst struct {
	Ty *PtrType
}

func (c *NullConst) Type() Type   { return c.Ty }
func (c *NullConst) Name() string { return "null" }

// StrConst is a pointer to a constant NUL-terminated string, as passed for
// taint descriptors.
type StrConst struct {
	S string
}

func (c *StrConst) Type() Type   { return PointerTo(I8) }
func (c *StrConst) Name() string { return fmt.Sprintf("%q", c.S) }

// StructConst is a constant struct initializer.
type StructConst struct {
	Ty     *StructType
	Fields []Constant
}

func (c *StructConst) Type() Type   { return c.Ty }
func (c *StructConst) Name() string { return "const " + c.Ty.String() }

// ArrayConst is a constant array initializer.
type ArrayConst struct {
	Ty    *ArrayType
	Elems []Constant
}

func (c *ArrayConst) Type() Type   { return c.Ty }
func (c *ArrayConst) Name() string { return "const " + c.Ty.String() }

func (*Const) isValue()       {}
func (*NullConst) isValue()   {}
func (*StrConst) isValue()    {}
func (*StructConst) isValue() {}
func (*ArrayConst) isValue()  {}

func (*Const) isConst()       {}
func (*NullConst) isConst()   {}
func (*StrConst) isConst()    {}
func (*StructConst) isConst() {}
func (*ArrayConst) isConst()  {}

// Global is a module-level variable. Its value type is ValTy; as a Value it
// has pointer type.
type Global struct {
	GName    string
	ValTy    Type
	Init     Constant
	Internal bool
	Mod      *Module
}

func (g *Global) Type() Type   { return PointerTo(g.ValTy) }
func (g *Global) Name() string { return g.GName }
func (*Global) isValue()       {}

// ScopeName qualifies internal-linkage names with the module stem so that
// identifiers stay unique across a module set.
func (g *Global) ScopeName() string {
	if g.Internal && g.Mod != nil {
		return "_" + g.Mod.Stem() + "." + g.GName
	}
	return g.GName
}

// Param is a formal parameter of a function.
type Param struct {
	PName string
	Ty    Type
	Idx   int
	Fn    *Func
}

func (p *Param) Type() Type   { return p.Ty }
func (p *Param) Name() string { return p.PName }
func (*Param) isValue()       {}

// Func is a function definition or declaration. Declarations have no blocks.
// Functions are constants so that they can appear in global initializers.
type Func struct {
	FName    string
	Sig      *FuncType
	Params   []*Param
	Blocks   []*Block
	Internal bool
	Mod      *Module

	nextID int
}

func (f *Func) Type() Type   { return PointerTo(f.Sig) }
func (f *Func) Name() string { return f.FName }
func (*Func) isValue()       {}
func (*Func) isConst()       {}

// IsDecl reports whether f has no body.
func (f *Func) IsDecl() bool { return len(f.Blocks) == 0 }

// IsVariadic reports whether f takes variable arguments.
func (f *Func) IsVariadic() bool { return f.Sig.Variadic }

// ScopeName qualifies internal-linkage names with the module stem.
func (f *Func) ScopeName() string {
	if f.Internal && f.Mod != nil {
		return "_" + f.Mod.Stem() + "." + f.FName
	}
	return f.FName
}

// EntryBlock returns the first block of f, or nil for declarations.
func (f *Func) EntryBlock() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// localName hands out function-unique value names for unnamed instructions.
func (f *Func) localName() string {
	f.nextID++
	return fmt.Sprintf("t%d", f.nextID)
}
