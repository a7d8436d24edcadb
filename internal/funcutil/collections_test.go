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

package funcutil

import "testing"

func TestUnionReportsGrowth(t *testing.T) {
	a := map[string]bool{"x": true}
	if !Union(a, map[string]bool{"y": true}) {
		t.Errorf("adding a new element must report growth")
	}
	if Union(a, map[string]bool{"x": true, "y": true}) {
		t.Errorf("re-adding elements must not report growth")
	}
	if len(a) != 2 {
		t.Errorf("union result wrong: %v", a)
	}
}

func TestJoinSorted(t *testing.T) {
	s := map[string]bool{"user": true, "syscall": true, "net": true}
	if got := JoinSorted(s, ", "); got != "net, syscall, user" {
		t.Errorf("JoinSorted = %q", got)
	}
	if got := JoinSorted(map[string]bool{}, ", "); got != "" {
		t.Errorf("empty join = %q", got)
	}
}

func TestSortedKeys(t *testing.T) {
	m := map[string]int{"b": 1, "a": 2, "c": 3}
	ks := SortedKeys(m)
	if len(ks) != 3 || ks[0] != "a" || ks[2] != "c" {
		t.Errorf("SortedKeys = %v", ks)
	}
}
