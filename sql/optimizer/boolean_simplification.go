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
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
)

// comparison inversions safe under NOT
var inversions = map[string]string{
	expression.OpEq:    expression.OpNotEq,
	expression.OpNotEq: expression.OpEq,
	expression.OpLt:    expression.OpGtEq,
	expression.OpGtEq:  expression.OpLt,
	expression.OpGt:    expression.OpLtEq,
	expression.OpLtEq:  expression.OpGt,
}

// BooleanSimplification removes negations: double NOTs cancel, NOT over a
// comparison inverts the operator, and De Morgan's laws push NOT through
// junctions.
type BooleanSimplification struct{}

func (s *BooleanSimplification) Name() string {
	return "BooleanSimplification"
}

func (s *BooleanSimplification) Visit(_ *Context, _ string, node *plan.Node) error {
	switch node.Kind {
	case plan.StepFilter:
		node.Condition = simplifyNegations(node.Condition)
		for i, c := range node.ConditionList {
			node.ConditionList[i] = simplifyNegations(c)
		}
	case plan.StepJoin:
		node.On = simplifyNegations(node.On)
	}
	return nil
}

func (s *BooleanSimplification) Complete(_ *Context, p *plan.Dag) (*plan.Dag, error) {
	return p, nil
}

func simplifyNegations(node *expression.Node) *expression.Node {
	if node == nil {
		return nil
	}
	if node.Kind == expression.KindNested {
		node.Centre = simplifyNegations(node.Centre)
		return node
	}
	if node.Kind == expression.KindUnary && node.Value == expression.OpNot {
		centre := node.Centre
		for centre != nil && centre.Kind == expression.KindNested {
			centre = centre.Centre
		}
		if centre == nil {
			return node
		}
		switch {
		case centre.Kind == expression.KindUnary && centre.Value == expression.OpNot:
			// NOT NOT A → A
			return simplifyNegations(centre.Centre)
		case centre.Kind == expression.KindComparison:
			if inverse, ok := inversions[centre.Value]; ok {
				centre.Value = inverse
				return simplifyNegations(centre)
			}
		case centre.Kind == expression.KindOr:
			// NOT(A OR B) → (NOT A) AND (NOT B)
			return simplifyNegations(expression.NewAnd(
				expression.NewUnary(expression.OpNot, centre.Left),
				expression.NewUnary(expression.OpNot, centre.Right),
			))
		case centre.Kind == expression.KindAnd:
			// NOT(A AND B) → (NOT A) OR (NOT B)
			return simplifyNegations(expression.NewOr(
				expression.NewUnary(expression.OpNot, centre.Left),
				expression.NewUnary(expression.OpNot, centre.Right),
			))
		}
		node.Centre = simplifyNegations(node.Centre)
		return node
	}

	node.Left = simplifyNegations(node.Left)
	node.Centre = simplifyNegations(node.Centre)
	node.Right = simplifyNegations(node.Right)
	for i, p := range node.Parameters {
		node.Parameters[i] = simplifyNegations(p)
	}
	return node
}
