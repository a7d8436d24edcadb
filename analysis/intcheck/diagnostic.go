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

package intcheck

import (
	"fmt"
	"io"

	"github.com/gookit/color"
	"github.com/ingot-tools/ingot/analysis/annotation"
	"github.com/ingot-tools/ingot/analysis/ir"
	"github.com/ingot-tools/ingot/analysis/smt"
	"github.com/ingot-tools/ingot/internal/funcutil"
)

// Diagnostic writes the bug report stream: per bug a bug: line, a taint:
// line, a status: line and a stack: list with the innermost location first.
type Diagnostic struct {
	w       io.Writer
	colored bool
}

// NewDiagnostic returns a diagnostic stream on w; colored selects terminal
// rendering of the bug lines.
func NewDiagnostic(w io.Writer, colored bool) *Diagnostic {
	return &Diagnostic{w: w, colored: colored}
}

// Bug opens a report with the free-form bug message.
func (d *Diagnostic) Bug(msg string) {
	fmt.Fprintln(d.w, "---")
	if d.colored {
		fmt.Fprintln(d.w, color.Red.Sprintf("bug: %s", msg))
		return
	}
	fmt.Fprintf(d.w, "bug: %s\n", msg)
}

// Taint writes the descriptor list attached to the instruction; an empty
// list is permitted.
func (d *Diagnostic) Taint(i ir.Instruction) {
	s := ""
	if md := i.MD(annotation.MDTaint); md != nil {
		s = md.S
	}
	fmt.Fprintf(d.w, "taint: %s\n", s)
}

// Status writes the solver outcome.
func (d *Diagnostic) Status(st smt.Status) {
	fmt.Fprintf(d.w, "status: %s\n", st)
}

// Backtrace writes the source location chain of the instruction, innermost
// first.
func (d *Diagnostic) Backtrace(i ir.Instruction) {
	loc := i.Loc()
	if loc == nil {
		return
	}
	fmt.Fprintln(d.w, "stack: ")
	for ; loc != nil; loc = loc.InlinedAt {
		fmt.Fprintf(d.w, " - %s:%d:%d\n", loc.File, loc.Line, loc.Col)
	}
}

// Model writes the satisfying assignment in deterministic order.
func (d *Diagnostic) Model(m smt.Model) {
	if m == nil {
		return
	}
	fmt.Fprintln(d.w, "model: |")
	for _, name := range funcutil.SortedKeys(m) {
		fmt.Fprintf(d.w, "  %s: %d\n", name, m[name])
	}
}
