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
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
)

// RewriteInWithSingleComparator rewrites `x IN (v)` to `x = v` and
// `x NOT IN (v)` to `x != v`. Equality pushes into connectors that cannot
// absorb IN lists.
type RewriteInWithSingleComparator struct{}

func (s *RewriteInWithSingleComparator) Name() string {
	return "RewriteInWithSingleComparator"
}

func (s *RewriteInWithSingleComparator) Visit(_ *Context, _ string, node *plan.Node) error {
	if node.Kind != plan.StepFilter {
		return nil
	}
	node.Condition = rewriteSingleIn(node.Condition)
	for i, c := range node.ConditionList {
		node.ConditionList[i] = rewriteSingleIn(c)
	}
	return nil
}

func (s *RewriteInWithSingleComparator) Complete(_ *Context, p *plan.Dag) (*plan.Dag, error) {
	return p, nil
}

var inRewrites = map[string]string{
	expression.OpInList:    expression.OpEq,
	expression.OpNotInList: expression.OpNotEq,
}

func rewriteSingleIn(node *expression.Node) *expression.Node {
	if node == nil {
		return nil
	}
	if replacement, ok := inRewrites[node.Value]; ok && node.Kind == expression.KindComparison {
		if node.Right != nil && node.Right.Kind == expression.KindLiteral {
			if list, isList := node.Right.LiteralValue.([]interface{}); isList && len(list) == 1 {
				node.Value = replacement
				node.Right = expression.NewLiteral(list[0], sql.TypeOfValue(list[0]))
			}
		}
		return node
	}
	node.Left = rewriteSingleIn(node.Left)
	node.Centre = rewriteSingleIn(node.Centre)
	node.Right = rewriteSingleIn(node.Right)
	return node
}
