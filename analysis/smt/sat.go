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

package smt

import "time"

// solveCNF decides a CNF formula with a DPLL search: unit propagation over
// occurrence lists, chronological backtracking, lowest-index decision
// heuristic trying true first. The deadline is checked periodically; a zero
// deadline never expires.
func solveCNF(nvars int, cnf [][]int, deadline time.Time) (sat, timedOut bool, assign []bool) {
	s := &satState{
		cnf:    cnf,
		assign: make([]int8, nvars+1),
		occ:    make([][]int, 2*(nvars+1)),
	}
	for ci, cl := range cnf {
		if len(cl) == 0 {
			return false, false, nil
		}
		for _, l := range cl {
			s.occ[litIndex(l)] = append(s.occ[litIndex(l)], ci)
		}
	}
	// assert unit clauses up front
	for _, cl := range cnf {
		if len(cl) == 1 && !s.enqueue(cl[0]) {
			return false, false, nil
		}
	}
	if !s.propagate(0) {
		return false, false, nil
	}

	for {
		if !deadline.IsZero() && s.steps > stepsPerTimeCheck {
			s.steps = 0
			if time.Now().After(deadline) {
				return false, true, nil
			}
		}
		v := s.nextUnassigned()
		if v == 0 {
			return true, false, s.boolAssign()
		}
		s.pushLevel(v)
		for {
			if s.propagate(s.lim[len(s.lim)-1]) {
				break
			}
			if !s.backtrack() {
				return false, false, nil
			}
		}
	}
}

const stepsPerTimeCheck = 1 << 14

type satState struct {
	cnf     [][]int
	occ     [][]int
	assign  []int8
	trail   []int
	lim     []int
	flipped []bool
	steps   int
}

// litIndex maps a literal to its occurrence slot.
func litIndex(l int) int {
	if l > 0 {
		return 2 * l
	}
	return -2*l + 1
}

func (s *satState) value(l int) int8 {
	v := s.assign[abs(l)]
	if l < 0 {
		return -v
	}
	return v
}

// enqueue assigns a literal true; it reports false on conflict with the
// current assignment.
func (s *satState) enqueue(l int) bool {
	switch s.value(l) {
	case 1:
		return true
	case -1:
		return false
	}
	if l > 0 {
		s.assign[l] = 1
	} else {
		s.assign[-l] = -1
	}
	s.trail = append(s.trail, l)
	return true
}

// propagate runs unit propagation over the trail starting at index from.
func (s *satState) propagate(from int) bool {
	for i := from; i < len(s.trail); i++ {
		falsified := -s.trail[i]
		for _, ci := range s.occ[litIndex(falsified)] {
			s.steps++
			cl := s.cnf[ci]
			unassigned := 0
			var unit int
			satisfied := false
			for _, l := range cl {
				switch s.value(l) {
				case 1:
					satisfied = true
				case 0:
					unassigned++
					unit = l
				}
				if satisfied {
					break
				}
			}
			if satisfied {
				continue
			}
			if unassigned == 0 {
				return false
			}
			if unassigned == 1 && !s.enqueue(unit) {
				return false
			}
		}
	}
	return true
}

func (s *satState) nextUnassigned() int {
	for v := 1; v < len(s.assign); v++ {
		if s.assign[v] == 0 {
			return v
		}
	}
	return 0
}

func (s *satState) pushLevel(v int) {
	s.lim = append(s.lim, len(s.trail))
	s.flipped = append(s.flipped, false)
	s.enqueue(v)
}

// backtrack undoes decisions until one can be flipped; it reports false when
// the search space is exhausted.
func (s *satState) backtrack() bool {
	for len(s.lim) > 0 {
		level := len(s.lim) - 1
		start := s.lim[level]
		decision := s.trail[start]
		for i := start; i < len(s.trail); i++ {
			s.assign[abs(s.trail[i])] = 0
		}
		s.trail = s.trail[:start]
		if !s.flipped[level] {
			s.flipped[level] = true
			s.enqueue(-decision)
			return true
		}
		s.lim = s.lim[:level]
		s.flipped = s.flipped[:level]
	}
	return false
}

func (s *satState) boolAssign() []bool {
	out := make([]bool, len(s.assign))
	for v := 1; v < len(s.assign); v++ {
		out[v] = s.assign[v] == 1
	}
	return out
}
