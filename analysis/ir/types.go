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
	"strings"
)

// Type is the type of an IR value. The concrete variants are IntType, PtrType,
// StructType, ArrayType, FuncType and VoidType; analyses dispatch on them with
// type switches.
type Type interface {
	String() string
	isType()
}

// IntType is an integer type of a fixed bit width.
type IntType struct {
	Bits uint
}

// PtrType is a pointer to an element type.
type PtrType struct {
	Elem Type
}

// StructType is a struct type. Named structs carry their source-level name
// (e.g. "struct.request"); literal structs have an empty name and never
// contribute identifiers.
type StructType struct {
	TName  string
	Fields []Type
}

// ArrayType is a fixed-length array type.
type ArrayType struct {
	Len  uint64
	Elem Type
}

// FuncType is a function signature.
type FuncType struct {
	Ret      Type
	Params   []Type
	Variadic bool
}

// VoidType is the type of instructions that produce no value.
type VoidType struct{}

func (*IntType) isType()    {}
func (*PtrType) isType()    {}
func (*StructType) isType() {}
func (*ArrayType) isType()  {}
func (*FuncType) isType()   {}
func (*VoidType) isType()   {}

// Common integer types.
var (
	I1   = &IntType{Bits: 1}
	I8   = &IntType{Bits: 8}
	I16  = &IntType{Bits: 16}
	I32  = &IntType{Bits: 32}
	I64  = &IntType{Bits: 64}
	Void = &VoidType{}
)

func (t *IntType) String() string { return fmt.Sprintf("i%d", t.Bits) }
func (t *PtrType) String() string { return t.Elem.String() + "*" }
func (t *StructType) String() string {
	if t.TName != "" {
		return "%" + t.TName
	}
	elems := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		elems[i] = f.String()
	}
	return "{" + strings.Join(elems, ", ") + "}"
}
func (t *ArrayType) String() string { return fmt.Sprintf("[%d x %s]", t.Len, t.Elem) }
func (t *FuncType) String() string {
	params := make([]string, len(t.Params))
	for i, p := range t.Params {
		params[i] = p.String()
	}
	if t.Variadic {
		params = append(params, "...")
	}
	return fmt.Sprintf("%s (%s)", t.Ret, strings.Join(params, ", "))
}
func (*VoidType) String() string { return "void" }

// PointerTo returns the pointer type to t.
func PointerTo(t Type) *PtrType { return &PtrType{Elem: t} }

// IsInteger reports whether t is an integer type.
func IsInteger(t Type) bool {
	_, ok := t.(*IntType)
	return ok
}

// IsPointer reports whether t is a pointer type.
func IsPointer(t Type) bool {
	_, ok := t.(*PtrType)
	return ok
}

// IsFunctionPointer reports whether t is a pointer to a function type.
func IsFunctionPointer(t Type) bool {
	pt, ok := t.(*PtrType)
	if !ok {
		return false
	}
	_, ok = pt.Elem.(*FuncType)
	return ok
}

// IntWidth returns the bit width of t, or 0 when t is not an integer type.
func IntWidth(t Type) uint {
	if it, ok := t.(*IntType); ok {
		return it.Bits
	}
	return 0
}

// PairType returns the literal {iN, i1} aggregate produced by the
// *.with.overflow intrinsics.
func PairType(t *IntType) *StructType {
	return &StructType{Fields: []Type{t, I1}}
}
