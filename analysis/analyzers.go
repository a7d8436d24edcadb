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

package analysis

import (
	"fmt"
	"io"

	"github.com/ingot-tools/ingot/analysis/intcheck"
	"github.com/ingot-tools/ingot/analysis/ir"
)

// modulePass is the iterative surface shared by the call-graph, taint and
// range passes.
type modulePass interface {
	DoModulePass(*ir.Module) bool
}

// Annotate runs the annotation pass over every module. It must run before
// the fixed-point passes.
func (s *State) Annotate() {
	for _, m := range s.Prog.Modules {
		s.Annotation.RunOnModule(m)
	}
	// synthetic intrinsics joined the function tables; register them
	for _, m := range s.Prog.Modules {
		for _, f := range m.Funcs {
			s.Prog.AddFunc(f)
		}
	}
}

// runToFixpoint iterates a pass over all modules until a full sweep reports
// no change. It returns whether any sweep changed anything.
func (s *State) runToFixpoint(name string, p modulePass) bool {
	any := false
	for iter := 1; ; iter++ {
		changed := false
		for _, m := range s.Prog.Modules {
			if p.DoModulePass(m) {
				changed = true
			}
		}
		s.Logger.Debugf("[%s] iteration %d changed=%v", name, iter, changed)
		if !changed {
			return any
		}
		any = true
		if iter >= s.Config.MaxOuterIterations {
			s.Logger.Warnf("[%s] stopped at iteration ceiling %d", name, iter)
			return any
		}
	}
}

// RunFixedPoint seeds the stores from global initializers, then repeats the
// call-graph, taint and range passes over all modules until none reports a
// change, and finally materializes the taint and intrange metadata.
func (s *State) RunFixedPoint() (int, error) {
	for _, m := range s.Prog.Modules {
		s.CallGraph.DoInitialization(m)
		s.Ranges.DoInitialization(m)
	}

	iters := 0
	for {
		iters++
		changed := false
		if s.runToFixpoint("CallGraph", s.CallGraph) {
			changed = true
		}
		if s.runToFixpoint("Taint", s.Taint) {
			changed = true
		}
		if s.runToFixpoint("Range", s.Ranges) {
			changed = true
		}
		if !changed {
			break
		}
		if iters >= s.Config.MaxOuterIterations {
			return iters, fmt.Errorf("analysis did not settle within %d iterations", iters)
		}
	}

	for _, m := range s.Prog.Modules {
		s.Taint.DoFinalization(m)
		s.Ranges.DoFinalization(m)
	}
	s.Logger.Infof("fixed point after %d outer iterations", iters)
	return iters, nil
}

// Check runs the symbolic checker over the annotated program and writes the
// diagnostic stream to w. colored selects terminal rendering.
func (s *State) Check(w io.Writer, colored bool) error {
	c := intcheck.NewChecker(s.Prog, s.Config, s.Logger)
	c.Colored = colored
	return c.Run(w)
}
