// Copyright 2024-2025 Kestrel Data, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package expression

import "sort"

// Walk visits every node of the tree, parents before children. Returning
// false from fn stops descent below that node.
func Walk(root *Node, fn func(*Node) bool) {
	if root == nil {
		return
	}
	if !fn(root) {
		return
	}
	Walk(root.Left, fn)
	Walk(root.Centre, fn)
	Walk(root.Right, fn)
	for _, p := range root.Parameters {
		Walk(p, fn)
	}
	for _, o := range root.Order {
		Walk(o.Expr, fn)
	}
}

// AllNodesOfKind collects every node of the given kinds, in visit order.
func AllNodesOfKind(root *Node, kinds ...Kind) []*Node {
	var out []*Node
	Walk(root, func(n *Node) bool {
		for _, k := range kinds {
			if n.Kind == k {
				out = append(out, n)
				break
			}
		}
		return true
	})
	return out
}

// ContainsAggregator reports whether the tree references any aggregator.
func ContainsAggregator(root *Node) bool {
	return len(AllNodesOfKind(root, KindAggregator)) > 0
}

// ReferencedRelations returns the sorted set of relation names the tree's
// identifiers reference.
func ReferencedRelations(root *Node) []string {
	seen := map[string]struct{}{}
	for _, id := range AllNodesOfKind(root, KindIdentifier) {
		if id.Source != "" {
			seen[id.Source] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ReferencedIdentities returns the set of column identities the tree
// references, including those inside function parameters.
func ReferencedIdentities(root *Node) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, id := range AllNodesOfKind(root, KindIdentifier) {
		if _, dup := seen[id.Identity]; !dup {
			seen[id.Identity] = struct{}{}
			out = append(out, id.Identity)
		}
	}
	return out
}

// SplitConjunctions splits a condition on its top-level ANDs, unwrapping
// nesting. A non-AND condition returns itself.
func SplitConjunctions(root *Node) []*Node {
	if root == nil {
		return nil
	}
	if root.Kind == KindNested {
		return SplitConjunctions(root.Centre)
	}
	if root.Kind != KindAnd {
		return []*Node{root}
	}
	return append(SplitConjunctions(root.Left), SplitConjunctions(root.Right)...)
}

// JoinConjunctions re-ANDs a predicate list; the inverse of
// SplitConjunctions up to grouping.
func JoinConjunctions(nodes []*Node) *Node {
	if len(nodes) == 0 {
		return nil
	}
	out := nodes[0]
	for _, n := range nodes[1:] {
		out = NewAnd(out, n)
	}
	return out
}
