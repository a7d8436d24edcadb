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

// Package analysis wires the annotation, call-graph, taint and range passes
// over a program and drives them to their mutual fixed point. The three
// cross-procedural stores live on the passes and are threaded through this
// state explicitly; they only ever grow, so re-running passes in any order
// converges to the same result.
package analysis

import (
	"github.com/ingot-tools/ingot/analysis/annotation"
	"github.com/ingot-tools/ingot/analysis/callgraph"
	"github.com/ingot-tools/ingot/analysis/config"
	"github.com/ingot-tools/ingot/analysis/ir"
	"github.com/ingot-tools/ingot/analysis/ranges"
	"github.com/ingot-tools/ingot/analysis/taint"
)

// Version of the analyzer.
const Version = "v0.1.0"

// State bundles a program with its configuration and the analysis passes.
type State struct {
	Prog   *ir.Program
	Config *config.Config
	Logger *config.LogGroup

	Annotation *annotation.Pass
	CallGraph  *callgraph.Pass
	Taint      *taint.Pass
	Ranges     *ranges.Pass
}

// NewState builds the pass pipeline over prog.
func NewState(prog *ir.Program, cfg *config.Config, log *config.LogGroup) *State {
	cg := callgraph.NewPass(prog, log)
	return &State{
		Prog:       prog,
		Config:     cfg,
		Logger:     log,
		Annotation: annotation.NewPass(cfg, prog.DL, log),
		CallGraph:  cg,
		Taint:      taint.NewPass(prog, cg, log),
		Ranges:     ranges.NewPass(prog, cfg, cg, log),
	}
}

// NewProgramState loads cfg, builds a program over the modules and returns a
// ready state.
func NewProgramState(cfg *config.Config, modules ...*ir.Module) *State {
	log := config.NewLogGroup(cfg)
	dl := ir.NewDataLayout(cfg.PtrBits)
	prog := ir.NewProgram(dl, modules...)
	return NewState(prog, cfg, log)
}
