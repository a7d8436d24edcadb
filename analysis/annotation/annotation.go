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

package annotation

import (
	"fmt"
	"strings"

	"github.com/ingot-tools/ingot/analysis/config"
	"github.com/ingot-tools/ingot/analysis/ir"
)

// Pass attaches identifier and classification metadata to the instructions of
// a module. It only ever adds annotations; operand shapes it does not
// recognize are skipped.
type Pass struct {
	cfg   *config.Config
	dl    *ir.DataLayout
	log   *config.LogGroup
	sinks map[string][]int
}

// NewPass returns an annotation pass for the given configuration.
func NewPass(cfg *config.Config, dl *ir.DataLayout, log *config.LogGroup) *Pass {
	sinks := map[string][]int{}
	for _, s := range cfg.SinkTable() {
		sinks[s.Name] = append(sinks[s.Name], s.Arg)
	}
	return &Pass{cfg: cfg, dl: dl, log: log, sinks: sinks}
}

// RunOnModule annotates every function of m.
func (p *Pass) RunOnModule(m *ir.Module) {
	for _, f := range m.Funcs {
		if f.IsDecl() {
			continue
		}
		p.RunOnFunction(m, f)
	}
}

// RunOnFunction normalizes integer arguments into synthetic calls, attaches
// slot identifiers to loads and stores, and marks taint sources and
// allocation sinks.
func (p *Pass) RunOnFunction(m *ir.Module, f *ir.Func) {
	p.annotateArguments(m, f)

	var erase []*ir.CallInst
	ir.IterateInstructions(f, func(i ir.Instruction) {
		switch i := i.(type) {
		case *ir.LoadInst:
			p.annotateSlot(m, i, i.Ptr)
		case *ir.StoreInst:
			p.annotateSlot(m, i, i.Ptr)
		case *ir.CallInst:
			if i.CalledFunc() == nil {
				return
			}
			if p.annotateTaintSource(f, i) {
				if !used(f, i) && i.CalledFunc().FName == TaintFunc {
					erase = append(erase, i)
				}
			}
			p.annotateSink(i)
		}
	})
	for _, ci := range erase {
		ci.Parent().Remove(ci)
	}
}

// annotateArguments replaces each used integer parameter of a non-variadic
// function with a call to the per-width kint_arg intrinsic carrying the
// argument's identifier.
func (p *Pass) annotateArguments(m *ir.Module, f *ir.Func) {
	if f.IsVariadic() || f.EntryBlock() == nil {
		return
	}
	for _, a := range f.Params {
		ty, ok := a.Ty.(*ir.IntType)
		if !ok || !ir.HasUses(f, a) {
			continue
		}
		af := getOrInsertFunc(m, fmt.Sprintf("%s%d", ArgPrefix, ty.Bits), ty)
		ci := ir.NewCall(af)
		f.EntryBlock().InsertFront(ci)
		ci.SetMD(MDID, ir.MDString(ArgID(f, a.Idx)))
		ir.ReplaceAllUses(f, a, ci)
	}
}

// annotateSlot attaches the slot identifier of ptr to inst when the pointee is
// an integer or a function pointer.
func (p *Pass) annotateSlot(m *ir.Module, inst ir.Instruction, ptr ir.Value) {
	if !needsSlotID(ir.StripPointerCasts(ptr).Type()) {
		return
	}
	if id := SlotID(ptr, m, p.dl); id != "" {
		inst.SetMD(MDID, ir.MDString(id))
	}
}

// annotateTaintSource marks syscall arguments and explicit __kint_taint calls.
// It reports whether ci is a recognized source site.
func (p *Pass) annotateTaintSource(f *ir.Func, ci *ir.CallInst) bool {
	name := ci.CalledFunc().FName

	// system call arguments are taint
	if strings.HasPrefix(name, ArgPrefix) && strings.HasPrefix(f.FName, "sys_") {
		ci.SetMD(MDTaintSrc, ir.MDString("syscall"))
		return true
	}

	// other taint sources: int __kint_taint(const char *, ...)
	if name == TaintFunc {
		desc := ""
		if len(ci.Args) > 0 {
			if sc, ok := ci.Args[0].(*ir.StrConst); ok {
				desc = sc.S
			}
		}
		if len(ci.Args) > 1 {
			if di, ok := ci.Args[1].(ir.Instruction); ok {
				di.SetMD(MDTaintSrc, ir.MDString(desc))
			}
		}
		if used(f, ci) {
			ci.SetMD(MDTaintSrc, ir.MDString(desc))
		}
		return true
	}
	return false
}

// annotateSink tags the defining instruction of an allocation-size argument
// with the allocator name.
func (p *Pass) annotateSink(ci *ir.CallInst) {
	args, ok := p.sinks[ci.CalledFunc().FName]
	if !ok {
		return
	}
	for _, argNo := range args {
		if argNo >= len(ci.Args) {
			continue
		}
		if di, ok := ci.Args[argNo].(ir.Instruction); ok {
			di.SetMD(MDSink, ir.MDString(ci.CalledFunc().FName))
		}
	}
}

func used(f *ir.Func, v ir.Value) bool {
	return ir.HasUses(f, v)
}

func getOrInsertFunc(m *ir.Module, name string, ret ir.Type) *ir.Func {
	if f := m.Func(name); f != nil {
		return f
	}
	return m.NewFunc(name, &ir.FuncType{Ret: ret})
}
