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

import (
	"sort"
	"strings"

	"golang.org/x/exp/constraints"
	"golang.org/x/exp/maps"
)

// Union returns the union of map-represented sets a and b. This mutates map a.
// It reports whether a grew.
// @mutates a
func Union[T comparable](a map[T]bool, b map[T]bool) bool {
	grew := false
	for x, in := range b {
		if in && !a[x] {
			a[x] = true
			grew = true
		}
	}
	return grew
}

// SetToOrderedSlice converts a set represented as a map from elements to
// booleans into a slice, sorted in increasing order.
func SetToOrderedSlice[T constraints.Ordered](set map[T]bool) []T {
	var s []T
	for r, b := range set {
		if b {
			s = append(s, r)
		}
	}
	sort.Slice(s, func(i int, j int) bool { return s[i] < s[j] })
	return s
}

// SortedKeys returns the keys of m in increasing order.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) []K {
	ks := maps.Keys(m)
	sort.Slice(ks, func(i, j int) bool { return ks[i] < ks[j] })
	return ks
}

// JoinSorted joins the members of a string set with sep in increasing order.
// Deterministic output for metadata and reports depends on this.
func JoinSorted(set map[string]bool, sep string) string {
	return strings.Join(SetToOrderedSlice(set), sep)
}
