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
	"sort"

	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
)

// Fixed weights balancing selectivity against per-row cost, used to order
// predicates when no statistics are available. Lower runs first.
const (
	weightEquality   = 5
	weightIsChecks   = 7
	weightComparison = 10
	weightLikeFamily = 16
	weightInList     = 14
	weightUnknown    = 25
	weightFunction   = 35
)

// PredicateTagging annotates each predicate with a heuristic weight, a
// simplicity flag, and the relations it references, then orders condition
// lists cheapest-selective first.
type PredicateTagging struct{}

func (s *PredicateTagging) Name() string {
	return "PredicateTagging"
}

func (s *PredicateTagging) Visit(_ *Context, _ string, node *plan.Node) error {
	if node.Kind != plan.StepFilter {
		return nil
	}
	if node.Condition != nil {
		tagPredicate(node.Condition)
	}
	for _, c := range node.ConditionList {
		tagPredicate(c)
	}
	sort.SliceStable(node.ConditionList, func(i, j int) bool {
		return node.ConditionList[i].Weight < node.ConditionList[j].Weight
	})
	return nil
}

func (s *PredicateTagging) Complete(_ *Context, p *plan.Dag) (*plan.Dag, error) {
	return p, nil
}

func tagPredicate(node *expression.Node) {
	node.Relations = expression.ReferencedRelations(node)
	node.Simple = isSimple(node)
	node.Weight = predicateWeight(node)
}

func isSimple(node *expression.Node) bool {
	if node.Kind != expression.KindComparison {
		return false
	}
	for _, side := range []*expression.Node{node.Left, node.Right} {
		if side == nil {
			return false
		}
		if side.Kind != expression.KindLiteral && side.Kind != expression.KindIdentifier {
			return false
		}
	}
	return true
}

func predicateWeight(node *expression.Node) int {
	if len(expression.AllNodesOfKind(node, expression.KindFunction)) > 0 {
		return weightFunction
	}
	switch node.Kind {
	case expression.KindComparison:
		if !isSimple(node) {
			return weightUnknown
		}
		switch node.Value {
		case expression.OpEq, expression.OpNotEq:
			return weightEquality
		case expression.OpLt, expression.OpLtEq, expression.OpGt, expression.OpGtEq:
			return weightComparison
		case expression.OpLike, expression.OpILike, expression.OpNotLike, expression.OpNotILike:
			return weightLikeFamily
		case expression.OpInList, expression.OpNotInList:
			return weightInList
		}
	case expression.KindUnary:
		switch node.Value {
		case expression.OpIsNull, expression.OpIsNotNull, expression.OpIsTrue, expression.OpIsFalse:
			return weightIsChecks
		}
	}
	return weightUnknown
}
