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

// Program is an ordered module set under one data layout. Functions are
// addressable by a dense index for the duration of an analysis, which lets
// stores hold function sets as sparse integer sets.
type Program struct {
	Modules []*Module
	DL      *DataLayout

	funcs []*Func
	index map[*Func]int
}

// NewProgram builds the function table over the given modules.
func NewProgram(dl *DataLayout, modules ...*Module) *Program {
	p := &Program{Modules: modules, DL: dl, index: map[*Func]int{}}
	for _, m := range modules {
		for _, f := range m.Funcs {
			p.index[f] = len(p.funcs)
			p.funcs = append(p.funcs, f)
		}
	}
	return p
}

// AddFunc registers a function created after program construction (synthetic
// intrinsics inserted by annotation).
func (p *Program) AddFunc(f *Func) int {
	if i, ok := p.index[f]; ok {
		return i
	}
	p.index[f] = len(p.funcs)
	p.funcs = append(p.funcs, f)
	return p.index[f]
}

// FuncIndex returns the dense index of f, registering it when unseen.
func (p *Program) FuncIndex(f *Func) int {
	if i, ok := p.index[f]; ok {
		return i
	}
	return p.AddFunc(f)
}

// FuncAt returns the function with the given dense index.
func (p *Program) FuncAt(i int) *Func { return p.funcs[i] }

// NumFuncs returns the size of the function table.
func (p *Program) NumFuncs() int { return len(p.funcs) }

// Funcs returns the function table in index order.
func (p *Program) Funcs() []*Func { return p.funcs }
