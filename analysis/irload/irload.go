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

// Package irload reads IR modules from the yaml dump format the companion
// frontend emits. The native bitcode reader lives with the compiler
// toolchain; this loader only rebuilds modules through the ir builder.
package irload

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ingot-tools/ingot/analysis/ir"
	"gopkg.in/yaml.v3"
)

type yModule struct {
	Name    string    `yaml:"name"`
	Structs []yStruct `yaml:"structs"`
	Globals []yGlobal `yaml:"globals"`
	Funcs   []yFunc   `yaml:"funcs"`
}

type yStruct struct {
	Name   string   `yaml:"name"`
	Fields []string `yaml:"fields"`
}

type yGlobal struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Init     string `yaml:"init"`
	Internal bool   `yaml:"internal"`
}

type yFunc struct {
	Name     string   `yaml:"name"`
	Ret      string   `yaml:"ret"`
	Params   []yParam `yaml:"params"`
	Variadic bool     `yaml:"variadic"`
	Internal bool     `yaml:"internal"`
	Blocks   []yBlock `yaml:"blocks"`
}

type yParam struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type yBlock struct {
	Name   string   `yaml:"name"`
	Instrs []yInstr `yaml:"instrs"`
}

type yInstr struct {
	Op      string   `yaml:"op"`
	Name    string   `yaml:"name"`
	Ty      string   `yaml:"ty"`
	X       string   `yaml:"x"`
	Y       string   `yaml:"y"`
	Cond    string   `yaml:"cond"`
	TVal    string   `yaml:"tval"`
	FVal    string   `yaml:"fval"`
	Ptr     string   `yaml:"ptr"`
	Val     string   `yaml:"val"`
	Idx     []string `yaml:"idx"`
	Args    []string `yaml:"args"`
	Index   int      `yaml:"index"`
	Dest    string   `yaml:"dest"`
	True    string   `yaml:"true"`
	False   string   `yaml:"false"`
	Default string   `yaml:"default"`
	Cases   []yCase  `yaml:"cases"`
	Edges   []yEdge  `yaml:"edges"`
	Nsw     bool     `yaml:"nsw"`
	Loc     string   `yaml:"loc"`
}

type yCase struct {
	Val  uint64 `yaml:"val"`
	Dest string `yaml:"dest"`
}

type yEdge struct {
	Val  string `yaml:"val"`
	Pred string `yaml:"pred"`
}

// LoadFile reads one module from a yaml dump file.
func LoadFile(path string) (*ir.Module, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(b)
}

// Load reads one module from yaml bytes.
func Load(b []byte) (*ir.Module, error) {
	var ym yModule
	if err := yaml.Unmarshal(b, &ym); err != nil {
		return nil, fmt.Errorf("could not unmarshal module: %w", err)
	}
	l := &loader{
		m:       ir.NewModule(ym.Name),
		structs: map[string]*ir.StructType{},
		globals: map[string]ir.Value{},
	}
	return l.build(&ym)
}

type loader struct {
	m       *ir.Module
	structs map[string]*ir.StructType
	globals map[string]ir.Value
}

func (l *loader) build(ym *yModule) (*ir.Module, error) {
	// two passes so struct fields can refer to other structs
	for _, s := range ym.Structs {
		l.structs[s.Name] = &ir.StructType{TName: s.Name}
	}
	for _, s := range ym.Structs {
		st := l.structs[s.Name]
		for _, f := range s.Fields {
			ft, err := l.parseType(f)
			if err != nil {
				return nil, err
			}
			st.Fields = append(st.Fields, ft)
		}
	}
	for _, yf := range ym.Funcs {
		sig, err := l.parseSig(&yf)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(yf.Params))
		for i, p := range yf.Params {
			names[i] = p.Name
		}
		f := l.m.NewFunc(yf.Name, sig, names...)
		f.Internal = yf.Internal
		l.globals["@"+yf.Name] = f
	}
	for _, yg := range ym.Globals {
		vt, err := l.parseType(yg.Type)
		if err != nil {
			return nil, err
		}
		var init ir.Constant
		if yg.Init != "" {
			c, err := l.parseConst(yg.Init, vt)
			if err != nil {
				return nil, err
			}
			init = c
		}
		g := l.m.NewGlobal(yg.Name, vt, init)
		g.Internal = yg.Internal
		l.globals["@"+yg.Name] = g
	}
	for _, yf := range ym.Funcs {
		if err := l.buildFunc(&yf); err != nil {
			return nil, fmt.Errorf("func %s: %w", yf.Name, err)
		}
	}
	return l.m, nil
}

func (l *loader) parseSig(yf *yFunc) (*ir.FuncType, error) {
	ret, err := l.parseType(yf.Ret)
	if err != nil {
		return nil, err
	}
	sig := &ir.FuncType{Ret: ret, Variadic: yf.Variadic}
	for _, p := range yf.Params {
		pt, err := l.parseType(p.Type)
		if err != nil {
			return nil, err
		}
		sig.Params = append(sig.Params, pt)
	}
	return sig, nil
}

// parseType understands void, iN, %struct refs, [N x T], fn(ret, args...) and
// a trailing * for pointers.
func (l *loader) parseType(s string) (ir.Type, error) {
	s = strings.TrimSpace(s)
	if strings.HasSuffix(s, "*") {
		elem, err := l.parseType(s[:len(s)-1])
		if err != nil {
			return nil, err
		}
		return ir.PointerTo(elem), nil
	}
	switch {
	case s == "void":
		return ir.Void, nil
	case strings.HasPrefix(s, "i"):
		n, err := strconv.Atoi(s[1:])
		if err != nil {
			return nil, fmt.Errorf("bad type %q", s)
		}
		return &ir.IntType{Bits: uint(n)}, nil
	case strings.HasPrefix(s, "%"):
		st, ok := l.structs[s[1:]]
		if !ok {
			return nil, fmt.Errorf("unknown struct %q", s)
		}
		return st, nil
	case strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"):
		body := s[1 : len(s)-1]
		parts := strings.SplitN(body, " x ", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("bad array type %q", s)
		}
		n, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad array length in %q", s)
		}
		elem, err := l.parseType(parts[1])
		if err != nil {
			return nil, err
		}
		return &ir.ArrayType{Len: n, Elem: elem}, nil
	case strings.HasPrefix(s, "fn(") && strings.HasSuffix(s, ")"):
		body := s[3 : len(s)-1]
		var tys []ir.Type
		for _, part := range splitTop(body) {
			t, err := l.parseType(part)
			if err != nil {
				return nil, err
			}
			tys = append(tys, t)
		}
		if len(tys) == 0 {
			return nil, fmt.Errorf("bad function type %q", s)
		}
		return &ir.FuncType{Ret: tys[0], Params: tys[1:]}, nil
	}
	return nil, fmt.Errorf("bad type %q", s)
}

// splitTop splits on commas not nested inside brackets or parentheses.
func splitTop(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if strings.TrimSpace(s[start:]) != "" {
		parts = append(parts, s[start:])
	}
	return parts
}

// parseConst reads a global initializer: an integer for integer types, @f
// for function pointers, or a brace list for aggregates.
func (l *loader) parseConst(s string, ty ir.Type) (ir.Constant, error) {
	s = strings.TrimSpace(s)
	switch ty := ty.(type) {
	case *ir.IntType:
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return nil, fmt.Errorf("bad integer initializer %q", s)
		}
		return ir.NewConst(ty, v), nil
	case *ir.PtrType:
		if s == "null" {
			return &ir.NullConst{Ty: ty}, nil
		}
		if strings.HasPrefix(s, "@") {
			f, ok := l.globals[s].(*ir.Func)
			if !ok {
				return nil, fmt.Errorf("unknown function initializer %q", s)
			}
			return f, nil
		}
	case *ir.StructType:
		if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
			return nil, fmt.Errorf("bad struct initializer %q", s)
		}
		parts := splitTop(s[1 : len(s)-1])
		if len(parts) != len(ty.Fields) {
			return nil, fmt.Errorf("struct initializer arity mismatch in %q", s)
		}
		sc := &ir.StructConst{Ty: ty}
		for i, p := range parts {
			c, err := l.parseConst(p, ty.Fields[i])
			if err != nil {
				return nil, err
			}
			sc.Fields = append(sc.Fields, c)
		}
		return sc, nil
	case *ir.ArrayType:
		if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
			return nil, fmt.Errorf("bad array initializer %q", s)
		}
		ac := &ir.ArrayConst{Ty: ty}
		for _, p := range splitTop(s[1 : len(s)-1]) {
			c, err := l.parseConst(p, ty.Elem)
			if err != nil {
				return nil, err
			}
			ac.Elems = append(ac.Elems, c)
		}
		return ac, nil
	}
	return nil, fmt.Errorf("bad initializer %q for type %s", s, ty)
}

// funcBuilder tracks the per-function symbol table while blocks are built.
type funcBuilder struct {
	l      *loader
	f      *ir.Func
	blocks map[string]*ir.Block
	vals   map[string]ir.Value
}

func (l *loader) buildFunc(yf *yFunc) error {
	f := l.m.Func(yf.Name)
	if len(yf.Blocks) == 0 {
		return nil
	}
	fb := &funcBuilder{l: l, f: f, blocks: map[string]*ir.Block{}, vals: map[string]ir.Value{}}
	for _, p := range f.Params {
		fb.vals["%"+p.PName] = p
	}
	for _, yb := range yf.Blocks {
		fb.blocks[yb.Name] = f.NewBlock(yb.Name)
	}
	// phi edges resolve after all instructions exist
	var fixups []func() error
	for _, yb := range yf.Blocks {
		b := fb.blocks[yb.Name]
		for i := range yb.Instrs {
			fix, err := fb.addInstr(b, &yb.Instrs[i])
			if err != nil {
				return fmt.Errorf("block %s: %w", yb.Name, err)
			}
			if fix != nil {
				fixups = append(fixups, fix)
			}
		}
	}
	for _, fix := range fixups {
		if err := fix(); err != nil {
			return err
		}
	}
	return nil
}

// value resolves an operand: %local, @global, "desc" strings, null:T, or a
// typed constant v:ty.
func (fb *funcBuilder) value(s string) (ir.Value, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("empty operand")
	case strings.HasPrefix(s, "%"):
		v, ok := fb.vals[s]
		if !ok {
			return nil, fmt.Errorf("unknown local %q", s)
		}
		return v, nil
	case strings.HasPrefix(s, "@"):
		v, ok := fb.l.globals[s]
		if !ok {
			return nil, fmt.Errorf("unknown global %q", s)
		}
		return v, nil
	case strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`):
		return &ir.StrConst{S: s[1 : len(s)-1]}, nil
	}
	colon := strings.LastIndexByte(s, ':')
	if colon < 0 {
		return nil, fmt.Errorf("untyped constant %q", s)
	}
	ty, err := fb.l.parseType(s[colon+1:])
	if err != nil {
		return nil, err
	}
	lit := s[:colon]
	if lit == "null" {
		pt, ok := ty.(*ir.PtrType)
		if !ok {
			return nil, fmt.Errorf("null of non-pointer type %q", s)
		}
		return &ir.NullConst{Ty: pt}, nil
	}
	it, ok := ty.(*ir.IntType)
	if !ok {
		return nil, fmt.Errorf("constant of non-integer type %q", s)
	}
	v, err := strconv.ParseUint(lit, 0, 64)
	if err != nil {
		iv, err2 := strconv.ParseInt(lit, 0, 64)
		if err2 != nil {
			return nil, fmt.Errorf("bad constant %q", s)
		}
		v = uint64(iv)
	}
	return ir.NewConst(it, v), nil
}

var binOps = map[string]ir.BinOpKind{
	"add": ir.OpAdd, "sub": ir.OpSub, "mul": ir.OpMul, "udiv": ir.OpUDiv,
	"sdiv": ir.OpSDiv, "urem": ir.OpURem, "srem": ir.OpSRem, "shl": ir.OpShl,
	"lshr": ir.OpLShr, "ashr": ir.OpAShr, "and": ir.OpAnd, "or": ir.OpOr,
	"xor": ir.OpXor,
}

var preds = map[string]ir.Pred{
	"eq": ir.PredEQ, "ne": ir.PredNE, "sge": ir.PredSGE, "sgt": ir.PredSGT,
	"sle": ir.PredSLE, "slt": ir.PredSLT, "uge": ir.PredUGE, "ugt": ir.PredUGT,
	"ule": ir.PredULE, "ult": ir.PredULT,
}

func isBinOp(op string) bool {
	_, ok := binOps[op]
	return ok
}

func isPred(op string) bool {
	_, ok := preds[op]
	return ok
}

var casts = map[string]ir.CastKind{
	"trunc": ir.CastTrunc, "zext": ir.CastZExt, "sext": ir.CastSExt,
	"ptrtoint": ir.CastPtrToInt, "inttoptr": ir.CastIntToPtr, "bitcast": ir.CastBitCast,
}

//gocyclo:ignore
func (fb *funcBuilder) addInstr(b *ir.Block, yi *yInstr) (func() error, error) {
	var inst ir.Instruction
	var fixup func() error
	switch {
	case isBinOp(yi.Op):
		x, err := fb.value(yi.X)
		if err != nil {
			return nil, err
		}
		y, err := fb.value(yi.Y)
		if err != nil {
			return nil, err
		}
		bi := &ir.BinInst{Op: binOps[yi.Op], X: x, Y: y, NSW: yi.Nsw}
		b.Append(bi)
		inst = bi
	case isPred(yi.Op):
		x, err := fb.value(yi.X)
		if err != nil {
			return nil, err
		}
		y, err := fb.value(yi.Y)
		if err != nil {
			return nil, err
		}
		inst = b.NewICmp(preds[yi.Op], x, y)
	case yi.Op == "trunc" || yi.Op == "zext" || yi.Op == "sext" ||
		yi.Op == "ptrtoint" || yi.Op == "inttoptr" || yi.Op == "bitcast":
		x, err := fb.value(yi.X)
		if err != nil {
			return nil, err
		}
		to, err := fb.l.parseType(yi.Ty)
		if err != nil {
			return nil, err
		}
		inst = b.NewCast(casts[yi.Op], x, to)
	case yi.Op == "select":
		c, err := fb.value(yi.Cond)
		if err != nil {
			return nil, err
		}
		tv, err := fb.value(yi.TVal)
		if err != nil {
			return nil, err
		}
		fv, err := fb.value(yi.FVal)
		if err != nil {
			return nil, err
		}
		inst = b.NewSelect(c, tv, fv)
	case yi.Op == "phi":
		ty, err := fb.l.parseType(yi.Ty)
		if err != nil {
			return nil, err
		}
		phi := b.NewPhi(ty)
		edges := yi.Edges
		fixup = func() error {
			for _, e := range edges {
				v, err := fb.value(e.Val)
				if err != nil {
					return err
				}
				pred, ok := fb.blocks[e.Pred]
				if !ok {
					return fmt.Errorf("unknown block %q", e.Pred)
				}
				phi.AddIncoming(v, pred)
			}
			return nil
		}
		inst = phi
	case yi.Op == "alloca":
		ty, err := fb.l.parseType(yi.Ty)
		if err != nil {
			return nil, err
		}
		inst = b.NewAlloca(ty)
	case yi.Op == "load":
		p, err := fb.value(yi.Ptr)
		if err != nil {
			return nil, err
		}
		inst = b.NewLoad(p)
	case yi.Op == "store":
		v, err := fb.value(yi.Val)
		if err != nil {
			return nil, err
		}
		p, err := fb.value(yi.Ptr)
		if err != nil {
			return nil, err
		}
		inst = b.NewStore(v, p)
	case yi.Op == "gep":
		p, err := fb.value(yi.Ptr)
		if err != nil {
			return nil, err
		}
		var idx []ir.Value
		for _, is := range yi.Idx {
			v, err := fb.value(is)
			if err != nil {
				return nil, err
			}
			idx = append(idx, v)
		}
		inst = b.NewGEP(p, idx...)
	case yi.Op == "call":
		callee, err := fb.value(yi.X)
		if err != nil {
			return nil, err
		}
		var args []ir.Value
		for _, as := range yi.Args {
			v, err := fb.value(as)
			if err != nil {
				return nil, err
			}
			args = append(args, v)
		}
		inst = b.NewCall(callee, args...)
	case yi.Op == "extractvalue":
		agg, err := fb.value(yi.X)
		if err != nil {
			return nil, err
		}
		inst = b.NewExtractValue(agg, yi.Index)
	case yi.Op == "br":
		dest, ok := fb.blocks[yi.Dest]
		if !ok {
			return nil, fmt.Errorf("unknown block %q", yi.Dest)
		}
		inst = b.NewBr(dest)
	case yi.Op == "condbr":
		c, err := fb.value(yi.Cond)
		if err != nil {
			return nil, err
		}
		t, ok := fb.blocks[yi.True]
		if !ok {
			return nil, fmt.Errorf("unknown block %q", yi.True)
		}
		f, ok := fb.blocks[yi.False]
		if !ok {
			return nil, fmt.Errorf("unknown block %q", yi.False)
		}
		inst = b.NewCondBr(c, t, f)
	case yi.Op == "switch":
		x, err := fb.value(yi.X)
		if err != nil {
			return nil, err
		}
		def, ok := fb.blocks[yi.Default]
		if !ok {
			return nil, fmt.Errorf("unknown block %q", yi.Default)
		}
		var cases []ir.SwitchCase
		for _, c := range yi.Cases {
			dest, ok := fb.blocks[c.Dest]
			if !ok {
				return nil, fmt.Errorf("unknown block %q", c.Dest)
			}
			cases = append(cases, ir.SwitchCase{Val: c.Val, Dest: dest})
		}
		inst = b.NewSwitch(x, def, cases...)
	case yi.Op == "ret":
		var v ir.Value
		if yi.X != "" {
			var err error
			v, err = fb.value(yi.X)
			if err != nil {
				return nil, err
			}
		}
		inst = b.NewRet(v)
	case yi.Op == "unreachable":
		inst = b.NewUnreachable()
	default:
		return nil, fmt.Errorf("unknown op %q", yi.Op)
	}

	if yi.Loc != "" {
		loc, err := parseLoc(yi.Loc)
		if err != nil {
			return nil, err
		}
		inst.SetLoc(loc)
	}
	if yi.Name != "" {
		fb.vals["%"+yi.Name] = inst
	}
	return fixup, nil
}

func parseLoc(s string) (*ir.Location, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 {
		return nil, fmt.Errorf("bad loc %q", s)
	}
	line, err1 := strconv.Atoi(parts[len(parts)-2])
	col, err2 := strconv.Atoi(parts[len(parts)-1])
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("bad loc %q", s)
	}
	return &ir.Location{
		File: strings.Join(parts[:len(parts)-2], ":"),
		Line: line,
		Col:  col,
	}, nil
}
