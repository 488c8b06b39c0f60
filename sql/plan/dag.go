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

package plan

import (
	"fmt"
	"sort"
	"strings"
)

// EdgeLabel distinguishes join legs; most edges are unlabeled.
type EdgeLabel string

const (
	LabelNone  EdgeLabel = ""
	LabelLeft  EdgeLabel = "left"
	LabelRight EdgeLabel = "right"
)

// Edge is a directed producer→consumer edge.
type Edge struct {
	Source string
	Target string
	Label  EdgeLabel
}

// Dag is a typed graph of plan nodes with labeled edges. Nodes are owned by
// the graph and addressed by id; edges live in a single adjacency table, so
// arbitrary graph shapes never create ownership cycles.
type Dag struct {
	nodes map[string]*Node
	order []string
	edges []Edge
}

func NewDag() *Dag {
	return &Dag{nodes: make(map[string]*Node)}
}

// AddNode adds or replaces a node.
func (d *Dag) AddNode(id string, node *Node) {
	if _, exists := d.nodes[id]; !exists {
		d.order = append(d.order, id)
	}
	d.nodes[id] = node
}

// AddEdge links source to target. Duplicate edges are ignored.
func (d *Dag) AddEdge(source, target string, label EdgeLabel) {
	for _, e := range d.edges {
		if e.Source == source && e.Target == target && e.Label == label {
			return
		}
	}
	d.edges = append(d.edges, Edge{Source: source, Target: target, Label: label})
}

// Get returns the node with the given id, or nil.
func (d *Dag) Get(id string) *Node {
	return d.nodes[id]
}

// Has reports whether the id names a node.
func (d *Dag) Has(id string) bool {
	_, ok := d.nodes[id]
	return ok
}

// Len returns the node count.
func (d *Dag) Len() int {
	return len(d.nodes)
}

// NodeIDs returns the node ids in insertion order.
func (d *Dag) NodeIDs() []string {
	out := make([]string, 0, len(d.nodes))
	for _, id := range d.order {
		if _, ok := d.nodes[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// IngoingEdges returns the edges terminating at id, in insertion order.
func (d *Dag) IngoingEdges(id string) []Edge {
	var out []Edge
	for _, e := range d.edges {
		if e.Target == id {
			out = append(out, e)
		}
	}
	return out
}

// OutgoingEdges returns the edges leaving id, in insertion order.
func (d *Dag) OutgoingEdges(id string) []Edge {
	var out []Edge
	for _, e := range d.edges {
		if e.Source == id {
			out = append(out, e)
		}
	}
	return out
}

// GetEntryPoints returns the nodes with no ingoing edges, sorted by id.
func (d *Dag) GetEntryPoints() []string {
	targets := make(map[string]struct{})
	for _, e := range d.edges {
		targets[e.Target] = struct{}{}
	}
	var out []string
	for id := range d.nodes {
		if _, ok := targets[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// GetExitPoints returns the nodes with no outgoing edges, sorted by id.
func (d *Dag) GetExitPoints() []string {
	sources := make(map[string]struct{})
	for _, e := range d.edges {
		sources[e.Source] = struct{}{}
	}
	var out []string
	for id := range d.nodes {
		if _, ok := sources[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// IsAcyclic strips exit layers until nothing is left; if nodes remain with
// no exits the graph has a cycle.
func (d *Dag) IsAcyclic() bool {
	edges := append([]Edge(nil), d.edges...)
	for len(edges) > 0 {
		sources := make(map[string]struct{})
		for _, e := range edges {
			sources[e.Source] = struct{}{}
		}
		exits := make(map[string]struct{})
		for _, e := range edges {
			if _, ok := sources[e.Target]; !ok {
				exits[e.Target] = struct{}{}
			}
		}
		if len(exits) == 0 {
			return false
		}
		var remaining []Edge
		for _, e := range edges {
			if _, ok := exits[e.Target]; !ok {
				remaining = append(remaining, e)
			}
		}
		edges = remaining
	}
	return true
}

// DepthFirstSearchFlat returns the ids of a depth-first traversal from the
// exit toward the entries, visiting left legs before right legs. Unlabeled
// edges tie-break on insertion order, which is stable per call.
func (d *Dag) DepthFirstSearchFlat() []string {
	exits := d.GetExitPoints()
	if len(exits) == 0 {
		return nil
	}
	visited := make(map[string]struct{})
	var out []string
	var walk func(id string)
	walk = func(id string) {
		if _, seen := visited[id]; seen {
			return
		}
		visited[id] = struct{}{}
		out = append(out, id)
		children := d.IngoingEdges(id)
		sort.SliceStable(children, func(i, j int) bool {
			return labelRank(children[i].Label) < labelRank(children[j].Label)
		})
		for _, e := range children {
			walk(e.Source)
		}
	}
	walk(exits[0])
	return out
}

func labelRank(l EdgeLabel) int {
	switch l {
	case LabelLeft:
		return 0
	case LabelRight:
		return 1
	default:
		return 2
	}
}

// TraceToRoot returns the node ids on the path from id toward the exit,
// excluding id itself. Fan-in above id follows the first outgoing edge at
// each step.
func (d *Dag) TraceToRoot(id string) []string {
	var out []string
	current := id
	for {
		outgoing := d.OutgoingEdges(current)
		if len(outgoing) == 0 {
			return out
		}
		current = outgoing[0].Target
		out = append(out, current)
	}
}

// RemoveNodeHeal removes a node and reconnects every incoming edge to every
// outgoing edge, preserving the labels on the outgoing side.
func (d *Dag) RemoveNodeHeal(id string) {
	ingoing := d.IngoingEdges(id)
	outgoing := d.OutgoingEdges(id)
	delete(d.nodes, id)

	var kept []Edge
	for _, e := range d.edges {
		if e.Source != id && e.Target != id {
			kept = append(kept, e)
		}
	}
	d.edges = kept
	for _, in := range ingoing {
		for _, out := range outgoing {
			d.AddEdge(in.Source, out.Target, out.Label)
		}
	}
}

// InsertNodeBefore adds a node and splices it upstream of existing: edges
// into existing now feed the new node, which feeds existing.
func (d *Dag) InsertNodeBefore(newID string, node *Node, existingID string) {
	d.AddNode(newID, node)
	for i := range d.edges {
		if d.edges[i].Target == existingID {
			d.edges[i].Target = newID
		}
	}
	d.AddEdge(newID, existingID, LabelNone)
}

// InsertNodeAfter adds a node and splices it downstream of existing: edges
// out of existing now leave the new node with their labels intact, and
// existing feeds the new node.
func (d *Dag) InsertNodeAfter(newID string, node *Node, existingID string) {
	d.AddNode(newID, node)
	for i := range d.edges {
		if d.edges[i].Source == existingID {
			d.edges[i].Source = newID
		}
	}
	d.AddEdge(existingID, newID, LabelNone)
}

// RemoveUpstream deletes every node feeding id, directly or transitively,
// together with their edges. The node itself becomes an entry point.
func (d *Dag) RemoveUpstream(id string) {
	doomed := make(map[string]struct{})
	var mark func(string)
	mark = func(nid string) {
		for _, e := range d.IngoingEdges(nid) {
			if _, seen := doomed[e.Source]; seen {
				continue
			}
			doomed[e.Source] = struct{}{}
			mark(e.Source)
		}
	}
	mark(id)
	for nid := range doomed {
		delete(d.nodes, nid)
	}
	var kept []Edge
	for _, e := range d.edges {
		_, srcDoomed := doomed[e.Source]
		_, dstDoomed := doomed[e.Target]
		if !srcDoomed && !dstDoomed {
			kept = append(kept, e)
		}
	}
	d.edges = kept
}

// NodesOfKind returns the ids of nodes with the given kind, in insertion
// order.
func (d *Dag) NodesOfKind(kind StepKind) []string {
	var out []string
	for _, id := range d.NodeIDs() {
		if d.nodes[id].Kind == kind {
			out = append(out, id)
		}
	}
	return out
}

// Copy deep-copies the graph.
func (d *Dag) Copy() *Dag {
	nd := NewDag()
	for _, id := range d.NodeIDs() {
		nd.AddNode(id, d.nodes[id].Copy())
	}
	nd.edges = append([]Edge(nil), d.edges...)
	return nd
}

// Merge adds every node and edge of other into this graph. Node ids must
// not collide; colliding ids are replaced.
func (d *Dag) Merge(other *Dag) {
	for _, id := range other.NodeIDs() {
		d.AddNode(id, other.nodes[id])
	}
	for _, e := range other.edges {
		d.AddEdge(e.Source, e.Target, e.Label)
	}
}

// Draw renders the plan as an indented tree from the exit, one line per
// node, join legs annotated with their labels.
func (d *Dag) Draw() string {
	exits := d.GetExitPoints()
	if len(exits) == 0 {
		return "(empty plan)"
	}
	var sb strings.Builder
	var walk func(id string, depth int, label EdgeLabel)
	walk = func(id string, depth int, label EdgeLabel) {
		node := d.nodes[id]
		prefix := strings.Repeat("  ", depth)
		tag := ""
		if label != LabelNone {
			tag = fmt.Sprintf(" [%s]", label)
		}
		sb.WriteString(fmt.Sprintf("%s%s%s (%s)\n", prefix, node.Kind, tag, id))
		children := d.IngoingEdges(id)
		sort.SliceStable(children, func(i, j int) bool {
			return labelRank(children[i].Label) < labelRank(children[j].Label)
		})
		for _, e := range children {
			walk(e.Source, depth+1, e.Label)
		}
	}
	walk(exits[0], 0, LabelNone)
	return sb.String()
}
