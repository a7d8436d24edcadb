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

// Package annotation derives the deterministic identifiers that every
// cross-procedural summary keys on, and attaches them to instructions as
// metadata together with taint-source and allocation-sink classifications.
package annotation

import (
	"fmt"
	"strings"

	"github.com/ingot-tools/ingot/analysis/ir"
)

// Metadata keys understood by the downstream passes.
const (
	MDID       = "id"
	MDTaintSrc = "taint_src"
	MDTaint    = "taint"
	MDSink     = "sink"
	MDIntRange = "intrange"
)

// ArgPrefix is the name prefix of the synthetic per-width argument intrinsics.
const ArgPrefix = "kint_arg.i"

// TaintFunc is the explicit taint-source marker function.
const TaintFunc = "__kint_taint"

// scopeStructName qualifies anonymous struct names with the module stem so the
// derived identifiers stay stable across a module set.
func scopeStructName(st *ir.StructType, m *ir.Module) string {
	if strings.HasPrefix(st.TName, "struct.anon") {
		return "struct._" + m.Stem() + st.TName[len("struct"):]
	}
	return st.TName
}

// VarID is the identifier of a global variable slot.
func VarID(g *ir.Global) string {
	return "var." + g.ScopeName()
}

// StructID is the identifier of a struct field slot at the given byte offset.
// Literal (unnamed) structs have no identifier.
func StructID(st *ir.StructType, m *ir.Module, offset uint64) string {
	if st.TName == "" {
		return ""
	}
	return fmt.Sprintf("%s.%d", scopeStructName(st, m), offset)
}

// ArgID is the identifier of a function argument by position.
func ArgID(f *ir.Func, no int) string {
	return fmt.Sprintf("arg.%s.%d", f.ScopeName(), no)
}

// RetID is the identifier of a function's return value.
func RetID(f *ir.Func) string {
	return "ret." + f.ScopeName()
}

// CallRetID is the return identifier of a call's callee, when one can be named.
func CallRetID(ci *ir.CallInst) string {
	if cf := ci.CalledFunc(); cf != nil {
		return RetID(cf)
	}
	if sid := ValueID(ci.Callee); sid != "" {
		return "ret." + sid
	}
	return ""
}

// ValueID names the abstract location a value stands for: arguments, synthetic
// argument calls, call returns and annotated loads and stores. Values with no
// stable identity return "".
func ValueID(v ir.Value) string {
	switch v := v.(type) {
	case *ir.Param:
		return ArgID(v.Fn, v.Idx)
	case *ir.CallInst:
		if cf := v.CalledFunc(); cf != nil && strings.HasPrefix(cf.FName, ArgPrefix) {
			if md := v.MD(MDID); md != nil {
				return md.S
			}
			return ""
		}
		return CallRetID(v)
	case *ir.LoadInst:
		if md := v.MD(MDID); md != nil {
			return md.S
		}
	case *ir.StoreInst:
		if md := v.MD(MDID); md != nil {
			return md.S
		}
	}
	return ""
}

// needsSlotID reports whether a pointer's pointee is worth a slot identifier:
// an integer or a function pointer.
func needsSlotID(t ir.Type) bool {
	pt, ok := t.(*ir.PtrType)
	if !ok {
		return false
	}
	return ir.IsInteger(pt.Elem) || ir.IsFunctionPointer(pt.Elem)
}

// SlotID resolves the identifier of the aggregate slot a pointer expression
// addresses: var.* for globals, struct.* for field addresses whose outermost
// index walk lands in a named struct. Unrecognized shapes yield "".
func SlotID(ptr ir.Value, m *ir.Module, dl *ir.DataLayout) string {
	ptr = ir.StripPointerCasts(ptr)
	switch v := ptr.(type) {
	case *ir.Global:
		return VarID(v)
	case *ir.GEPInst:
		if len(v.Idx) < 2 {
			return ""
		}
		outer := ir.IndexedType(v.Ptr.Type(), v.Idx[:len(v.Idx)-1])
		st, ok := outer.(*ir.StructType)
		if !ok {
			return ""
		}
		fieldNo, ok := v.Idx[len(v.Idx)-1].(*ir.Const)
		if !ok || int(fieldNo.V) >= len(st.Fields) {
			return ""
		}
		return StructID(st, m, dl.StructOffset(st, int(fieldNo.V)))
	}
	return ""
}
