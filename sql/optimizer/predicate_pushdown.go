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

package optimizer

import (
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/connector"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
)

// PredicatePushdown lifts single-relation filters out of the plan while
// walking from the exit toward the entries and lands them as close to their
// scan as possible, inside the connector when it advertises the capability.
// Predicates that reference both sides of an equi-condition promote a CROSS
// JOIN to INNER. Whatever cannot be pushed is re-inserted where it was.
type PredicatePushdown struct{}

func (s *PredicatePushdown) Name() string {
	return "PredicatePushdown"
}

func (s *PredicatePushdown) Visit(ctx *Context, id string, node *plan.Node) error {
	switch node.Kind {
	case plan.StepFilter:
		s.collectFilter(ctx, id, node)
	case plan.StepJoin:
		s.visitJoin(ctx, id, node)
	case plan.StepScan, plan.StepFunctionDataset, plan.StepSubquery:
		s.handlePredicates(ctx, id, node)
	}
	return nil
}

// collectFilter lifts a pushable filter out of the plan, recording where it
// sat so Complete can put it back if nothing downstream claims it.
func (s *PredicatePushdown) collectFilter(ctx *Context, id string, node *plan.Node) {
	if node.Condition == nil {
		return
	}
	// aggregated predicates never move
	if expression.ContainsAggregator(node.Condition) {
		return
	}
	relations := expression.ReferencedRelations(node.Condition)
	if len(relations) == 0 {
		return
	}
	collected := &CollectedPredicate{
		NodeID:   id,
		Node:     node,
		PlanPath: ctx.Plan.TraceToRoot(id),
	}
	if ingoing := ctx.Plan.IngoingEdges(id); len(ingoing) == 1 {
		collected.ChildID = ingoing[0].Source
	}
	ctx.Collected = append(ctx.Collected, collected)
	ctx.Plan.RemoveNodeHeal(id)
}

// visitJoin decides which collected predicates may cross the join.
func (s *PredicatePushdown) visitJoin(ctx *Context, id string, node *plan.Node) {
	if len(ctx.Collected) == 0 {
		return
	}
	switch {
	case node.JoinType != plan.JoinCross && node.JoinType != plan.JoinInner:
		// nothing pushes past LEFT, SEMI or ANTI joins
		s.dumpCollected(ctx, id)
	case node.JoinType == plan.JoinCross && node.UnnestColumn != nil:
		// no pushdown past a CROSS JOIN UNNEST
		s.dumpCollected(ctx, id)
	case node.JoinType == plan.JoinCross:
		// an equality between the two sides turns the cartesian product
		// into an inner join with that condition
		var remaining []*CollectedPredicate
		for _, predicate := range ctx.Collected {
			condition := predicate.Node.Condition
			relations := expression.ReferencedRelations(condition)
			if len(relations) == 2 &&
				condition.Kind == expression.KindComparison &&
				condition.Value == expression.OpEq &&
				spansJoin(relations, node) {
				node.JoinType = plan.JoinInner
				node.On = addCondition(node.On, condition)
			} else {
				remaining = append(remaining, predicate)
			}
		}
		ctx.Collected = remaining
		if node.On != nil {
			node.LeftColumns, node.RightColumns = extractJoinFields(node.On, node.LeftRelations, node.RightRelations)
		}
	}
}

// dumpCollected re-inserts every collected predicate immediately downstream
// of the node: they were above it and may not cross it.
func (s *PredicatePushdown) dumpCollected(ctx *Context, id string) {
	for _, predicate := range ctx.Collected {
		ctx.Plan.InsertNodeAfter(predicate.NodeID, predicate.Node, id)
	}
	ctx.Collected = nil
}

// handlePredicates lands collected predicates at a scan, inside the
// connector when it can absorb them, as a Filter directly above otherwise.
func (s *PredicatePushdown) handlePredicates(ctx *Context, id string, node *plan.Node) {
	var remaining []*CollectedPredicate
	for _, predicate := range ctx.Collected {
		condition := predicate.Node.Condition
		relations := expression.ReferencedRelations(condition)
		if len(relations) != 1 || !relationMatches(relations[0], node) {
			remaining = append(remaining, predicate)
			continue
		}
		if s.connectorAccepts(ctx, node, condition) {
			node.Predicates = append(node.Predicates, condition)
			continue
		}
		ctx.Plan.InsertNodeAfter(predicate.NodeID, predicate.Node, id)
	}
	ctx.Collected = remaining
}

func (s *PredicatePushdown) connectorAccepts(ctx *Context, node *plan.Node, condition *expression.Node) bool {
	if node.Connector == nil {
		return false
	}
	pushable, ok := node.Connector.(connector.PredicatePushable)
	if !ok {
		return false
	}
	if hasHint(node, sql.HintNoPushSelection) {
		return false
	}
	if ctx.Props != nil && ctx.Props.Config.OnlyPushEqualsPredicates && condition.Value != expression.OpEq {
		return false
	}
	return pushable.CanPush(condition, operandTypes(condition, node.Schema))
}

func (s *PredicatePushdown) Complete(ctx *Context, p *plan.Dag) (*plan.Dag, error) {
	// anything we couldn't push goes back where it came from
	for _, predicate := range ctx.Collected {
		if predicate.ChildID != "" && p.Has(predicate.ChildID) {
			p.InsertNodeAfter(predicate.NodeID, predicate.Node, predicate.ChildID)
			continue
		}
		for _, nid := range predicate.PlanPath {
			if p.Has(nid) {
				p.InsertNodeBefore(predicate.NodeID, predicate.Node, nid)
				break
			}
		}
	}
	ctx.Collected = nil
	return p, nil
}

func relationMatches(relation string, node *plan.Node) bool {
	for _, name := range node.RelationNames() {
		if name == relation {
			return true
		}
	}
	return false
}

// spansJoin reports whether the predicate references exactly one relation
// on each leg of the join.
func spansJoin(relations []string, node *plan.Node) bool {
	left, right := 0, 0
	for _, r := range relations {
		switch {
		case contains(node.LeftRelations, r):
			left++
		case contains(node.RightRelations, r):
			right++
		default:
			return false
		}
	}
	return left == 1 && right == 1
}

func contains(haystack []string, needle string) bool {
	for _, item := range haystack {
		if item == needle {
			return true
		}
	}
	return false
}

func addCondition(existing, extra *expression.Node) *expression.Node {
	if existing == nil {
		return extra
	}
	return expression.NewAnd(extra, existing)
}

// extractJoinFields splits the identifiers of an equi-condition into the
// key identities of each leg.
func extractJoinFields(on *expression.Node, leftRelations, rightRelations []string) (left, right []string) {
	isLeft := make(map[string]struct{}, len(leftRelations))
	for _, r := range leftRelations {
		isLeft[r] = struct{}{}
	}
	isRight := make(map[string]struct{}, len(rightRelations))
	for _, r := range rightRelations {
		isRight[r] = struct{}{}
	}
	for _, identifier := range expression.AllNodesOfKind(on, expression.KindIdentifier) {
		if _, ok := isLeft[identifier.Source]; ok {
			left = append(left, identifier.Identity)
		} else if _, ok := isRight[identifier.Source]; ok {
			right = append(right, identifier.Identity)
		}
	}
	return left, right
}

func operandTypes(condition *expression.Node, schema sql.Schema) []sql.Type {
	var types []sql.Type
	for _, side := range []*expression.Node{condition.Left, condition.Right} {
		if side == nil {
			continue
		}
		switch side.Kind {
		case expression.KindIdentifier:
			if col := schema.Column(side.Identity); col != nil {
				types = append(types, col.Type)
			}
		case expression.KindLiteral:
			types = append(types, side.LiteralType)
		}
	}
	return types
}

func hasHint(node *plan.Node, hint string) bool {
	for _, h := range node.Hints {
		if h == hint {
			return true
		}
	}
	return false
}
