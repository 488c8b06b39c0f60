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

// SplitConjunctivePredicates turns a Filter over `A AND B` into chained
// Filter nodes, one conjunct each. Smaller predicates have fewer
// dependencies and move further during pushdown, and chaining means each
// stage operates on fewer rows.
type SplitConjunctivePredicates struct{}

func (s *SplitConjunctivePredicates) Name() string {
	return "SplitConjunctivePredicates"
}

func (s *SplitConjunctivePredicates) Visit(ctx *Context, id string, node *plan.Node) error {
	if node.Kind != plan.StepFilter || node.Condition == nil {
		return nil
	}
	conjuncts := expression.SplitConjunctions(node.Condition)
	if len(conjuncts) < 2 {
		return nil
	}
	// the first conjunct stays put; the rest chain upstream so the original
	// conjunct order reads top-down from this node
	node.Condition = conjuncts[0]
	anchor := id
	for _, conjunct := range conjuncts[1:] {
		nid := newNodeID()
		ctx.Plan.InsertNodeBefore(nid, &plan.Node{Kind: plan.StepFilter, Condition: conjunct}, anchor)
		anchor = nid
	}
	return nil
}

func (s *SplitConjunctivePredicates) Complete(_ *Context, p *plan.Dag) (*plan.Dag, error) {
	return p, nil
}
