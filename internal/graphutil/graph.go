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

// Package graphutil exposes the resolved call graph through the interfaces
// of existing graph libraries, so that cycle enumeration reuses off-the-shelf
// algorithms. The callgraph subcommand reports the recursion cycles found
// here.
package graphutil

import (
	"sort"

	"github.com/ingot-tools/ingot/analysis/callgraph"
	"github.com/ingot-tools/ingot/analysis/ir"
	"gonum.org/v1/gonum/graph"
)

// CGraph is an adjacency view of the resolved call graph, with node ids equal
// to the program's dense function indexes. It satisfies both gonum's
// graph.Graph and the yourbasic/graph Iterator.
type CGraph struct {
	// The order of the graph
	order int

	// IDMap maps from node IDs to CNodes
	IDMap map[int64]CNode

	// Keys are all the node IDs
	Keys []int64

	// Edges is an adjacency matrix: Edges[x][y] means x may call y
	Edges map[int64]map[int64]bool
}

// NewCallGraph flattens the callee sets of cg into a CGraph.
func NewCallGraph(prog *ir.Program, cg *callgraph.Pass) CGraph {
	n := prog.NumFuncs()
	idmap := make(map[int64]CNode, n)
	edges := make(map[int64]map[int64]bool, n)
	keys := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		id := int64(i)
		idmap[id] = CNode{Fn: prog.FuncAt(i), Id: id}
		edges[id] = map[int64]bool{}
		keys = append(keys, id)
	}
	for _, caller := range prog.Funcs() {
		callerID := int64(prog.FuncIndex(caller))
		ir.IterateInstructions(caller, func(i ir.Instruction) {
			ci, ok := i.(*ir.CallInst)
			if !ok {
				return
			}
			for _, callee := range cg.Resolve(ci) {
				edges[callerID][int64(prog.FuncIndex(callee))] = true
			}
		})
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return CGraph{order: n, IDMap: idmap, Edges: edges, Keys: keys}
}

// Subgraph returns the graph restricted to the include nodes; only edges with
// both endpoints included survive. Node ids stay consistent across subgraphs.
func Subgraph(original CGraph, include []int64) CGraph {
	idmap := make(map[int64]CNode, len(include))
	edges := make(map[int64]map[int64]bool, len(include))
	keys := make([]int64, len(include))

	for j, i := range include {
		keys[j] = i
		idmap[i] = original.IDMap[i]
	}
	for _, i := range include {
		edges[i] = map[int64]bool{}
		for e := range original.Edges[i] {
			if _, ok := idmap[e]; ok {
				edges[i][e] = true
			}
		}
	}
	return CGraph{order: original.Order(), IDMap: idmap, Edges: edges, Keys: keys}
}

// Order implements the order of the graph.Iterator interface for the CGraph
func (c CGraph) Order() int {
	return c.order
}

// Visit implements the graph.Iterator interface for the CGraph
func (c CGraph) Visit(v int, do func(w int, c int64) (skip bool)) (aborted bool) {
	if _, ok := c.IDMap[int64(v)]; !ok {
		return false
	}
	for w := range c.Edges[int64(v)] {
		if do(int(w), 1) {
			return true
		}
	}
	return false
}

// Node implements the gonum Graph interface
func (c CGraph) Node(v int64) graph.Node {
	return c.IDMap[v]
}

// Nodes returns the set of nodes in the graph
func (c CGraph) Nodes() graph.Nodes {
	keys := make([]int64, len(c.IDMap))
	i := 0
	for k := range c.IDMap {
		keys[i] = k
		i++
	}
	return &NodeSet{nodes: c.IDMap, ids: keys, cur: 0}
}

// From returns the set of nodes reachable from the id
func (c CGraph) From(id int64) graph.Nodes {
	var keys []int64
	for out := range c.Edges[id] {
		keys = append(keys, out)
	}
	return &NodeSet{nodes: c.IDMap, ids: keys, cur: 0}
}

// HasEdgeBetween returns whether an edge exists between the two identifiers
func (c CGraph) HasEdgeBetween(xid, yid int64) bool {
	xe := c.Edges[xid]
	ye := c.Edges[yid]
	return xe[yid] || ye[xid]
}

// Edge returns the edge between the two identifiers (nil if none exists)
func (c CGraph) Edge(uid, vid int64) graph.Edge {
	ue := c.Edges[uid]
	if ue != nil && ue[vid] {
		return CEdge{from: c.IDMap[uid], to: c.IDMap[vid]}
	}
	return nil
}

// CNode wraps a function as a graph.Node.
type CNode struct {
	Fn *ir.Func
	Id int64
}

// ID returns the id of the node
func (n CNode) ID() int64 {
	return n.Id
}

func (n CNode) String() string {
	if n.Fn == nil {
		return ""
	}
	return n.Fn.FName
}

// NodeSet implements the graph.Nodes iterator over a set of nodes.
type NodeSet struct {
	// nodes is the set of nodes in the iterator
	nodes map[int64]CNode

	// ids is the set of node ids in the iterator
	// invariant: len(ids) = len(nodes)
	ids []int64

	// cur is the current index of the iterator
	cur int
}

// Next moves the current node to the next, and returns true if such a node
// exists.
func (ns *NodeSet) Next() bool {
	if ns.cur < len(ns.ids)-1 {
		ns.cur++
		return true
	}
	return false
}

// Len returns the length of the node set
func (ns *NodeSet) Len() int {
	return len(ns.ids)
}

// Reset resets the id of the current node in the set
func (ns *NodeSet) Reset() {
	ns.cur = 0
}

// Node return the current node in the set
func (ns *NodeSet) Node() graph.Node {
	return ns.nodes[ns.ids[ns.cur]]
}

// CEdge implements the graph.Edge interface
type CEdge struct {
	from CNode
	to   CNode
}

// From returns the origin of the edge
func (e CEdge) From() graph.Node {
	return e.from
}

// To returns the destination of the edge
func (e CEdge) To() graph.Node {
	return e.to
}

// ReversedEdge returns a new value representing the reversed edge
func (e CEdge) ReversedEdge() graph.Edge {
	return CEdge{from: e.to, to: e.from}
}
