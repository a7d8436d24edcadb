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

// MDNode is a metadata node attached to an instruction under a string key.
// Annotation passes store either a string payload (identifiers, descriptor
// lists, sink names) or a list of constant pairs (interval bounds).
type MDNode struct {
	S     string
	Pairs [][2]uint64
}

// MDString returns a string metadata node.
func MDString(s string) *MDNode { return &MDNode{S: s} }

// Location is a source location, with an optional inlining chain.
type Location struct {
	File      string
	Line      int
	Col       int
	InlinedAt *Location
}
