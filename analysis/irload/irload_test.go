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

package irload

import (
	"testing"

	"github.com/ingot-tools/ingot/analysis/ir"
)

const sampleModule = `
name: sample.bc
structs:
  - name: struct.ops
    fields: ["fn(void)*"]
globals:
  - name: g_ops
    type: "%struct.ops"
    init: "{@handler}"
  - name: limit
    type: i32
    init: "64"
funcs:
  - name: handler
    ret: void
  - name: kmalloc
    ret: i8*
    params: [{name: size, type: i64}]
  - name: sys_demo
    ret: i32
    params: [{name: n, type: i32}]
    blocks:
      - name: entry
        instrs:
          - {op: mul, name: m, x: "%n", y: "4:i32", loc: "demo.c:10:3"}
          - {op: call, x: "@kmalloc", args: ["%m"]}
          - {op: ret, x: "%m"}
`

func TestLoadSample(t *testing.T) {
	m, err := Load([]byte(sampleModule))
	if err != nil {
		t.Fatal(err)
	}
	if m.MName != "sample.bc" {
		t.Errorf("module name = %q", m.MName)
	}
	f := m.Func("sys_demo")
	if f == nil || len(f.Blocks) != 1 {
		t.Fatalf("sys_demo not loaded")
	}
	instrs := f.Blocks[0].Instrs
	mul, ok := instrs[0].(*ir.BinInst)
	if !ok || mul.Op != ir.OpMul {
		t.Fatalf("first instruction = %T", instrs[0])
	}
	if mul.X != f.Params[0] {
		t.Errorf("multiply does not use the parameter")
	}
	if c, ok := mul.Y.(*ir.Const); !ok || c.V != 4 {
		t.Errorf("multiply constant operand wrong")
	}
	if loc := mul.Loc(); loc == nil || loc.File != "demo.c" || loc.Line != 10 {
		t.Errorf("location not parsed: %+v", mul.Loc())
	}
	call, ok := instrs[1].(*ir.CallInst)
	if !ok || call.CalledFunc().FName != "kmalloc" {
		t.Fatalf("call not loaded")
	}
	if g := m.Globals[0]; g.GName != "g_ops" {
		t.Errorf("global order changed")
	}
	sc, ok := m.Globals[0].Init.(*ir.StructConst)
	if !ok || len(sc.Fields) != 1 {
		t.Fatalf("struct initializer not loaded")
	}
	if _, ok := sc.Fields[0].(*ir.Func); !ok {
		t.Errorf("function pointer initializer not resolved")
	}
}

func TestLoadPhiLoop(t *testing.T) {
	src := `
name: loop.bc
funcs:
  - name: loop
    ret: i32
    blocks:
      - name: entry
        instrs:
          - {op: br, dest: body}
      - name: body
        instrs:
          - {op: phi, name: i, ty: i32, edges: [{val: "0:i32", pred: entry}, {val: "%inext", pred: body}]}
          - {op: add, name: inext, x: "%i", y: "1:i32"}
          - {op: ult, name: c, x: "%inext", y: "11:i32"}
          - {op: condbr, cond: "%c", true: body, false: exit}
      - name: exit
        instrs:
          - {op: ret, x: "%i"}
`
	m, err := Load([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	f := m.Func("loop")
	phi, ok := f.Blocks[1].Instrs[0].(*ir.PhiInst)
	if !ok || len(phi.Edges) != 2 {
		t.Fatalf("phi edges not resolved: %T", f.Blocks[1].Instrs[0])
	}
	if phi.Edges[1].V != f.Blocks[1].Instrs[1] {
		t.Errorf("phi does not reference the loop increment")
	}
}

func TestLoadSwitch(t *testing.T) {
	src := `
name: sw.bc
funcs:
  - name: pick
    ret: i32
    params: [{name: x, type: i32}]
    blocks:
      - name: entry
        instrs:
          - {op: switch, x: "%x", default: other, cases: [{val: 7, dest: seven}]}
      - name: seven
        instrs:
          - {op: ret, x: "7:i32"}
      - name: other
        instrs:
          - {op: ret, x: "0:i32"}
`
	m, err := Load([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	f := m.Func("pick")
	sw, ok := f.Blocks[0].Instrs[0].(*ir.SwitchInst)
	if !ok {
		t.Fatalf("first instruction = %T, want switch", f.Blocks[0].Instrs[0])
	}
	if sw.Default != f.Blocks[2] {
		t.Errorf("default destination not resolved")
	}
	if len(sw.Cases) != 1 || sw.Cases[0].Val != 7 || sw.Cases[0].Dest != f.Blocks[1] {
		t.Errorf("case arm not resolved: %+v", sw.Cases)
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []string{
		`name: x
funcs:
  - name: f
    ret: void
    blocks:
      - name: entry
        instrs:
          - {op: frobnicate}`,
		`name: x
funcs:
  - name: f
    ret: void
    blocks:
      - name: entry
        instrs:
          - {op: br, dest: nowhere}`,
		`name: x
funcs:
  - name: f
    ret: bogus`,
	}
	for i, src := range cases {
		if _, err := Load([]byte(src)); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}
