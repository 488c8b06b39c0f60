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

// FlattenPlan merges runs of consecutive Filter nodes into a single Filter
// carrying a condition list under one junction, so predicate ordering can
// weigh them together. It runs between predicate pushdown and predicate
// tagging.
type FlattenPlan struct{}

func (s *FlattenPlan) Name() string {
	return "FlattenPlan"
}

func (s *FlattenPlan) Visit(ctx *Context, id string, node *plan.Node) error {
	if node.Kind == plan.StepFilter {
		// an already-flattened lone filter is a fixed point; absorbing it
		// into a fresh node every run would never converge
		if node.ConditionList != nil && len(ctx.run) == 0 {
			return nil
		}
		ctx.run = append(ctx.run, id)
		return nil
	}
	s.flush(ctx, id)
	return nil
}

// flush merges the pending filter run into one node inserted above the node
// that ended the run.
func (s *FlattenPlan) flush(ctx *Context, below string) {
	if len(ctx.run) == 0 {
		return
	}
	var conditions []*expression.Node
	for _, fid := range ctx.run {
		filter := ctx.Plan.Get(fid)
		if filter.ConditionList != nil {
			conditions = append(conditions, filter.ConditionList...)
		} else if filter.Condition != nil {
			conditions = append(conditions, filter.Condition)
		}
		ctx.Plan.RemoveNodeHeal(fid)
	}
	ctx.run = nil
	if len(conditions) == 0 {
		return
	}
	merged := &plan.Node{
		Kind:          plan.StepFilter,
		ConditionList: conditions,
		Junction:      expression.KindAnd,
	}
	ctx.Plan.InsertNodeAfter(newNodeID(), merged, below)
}

func (s *FlattenPlan) Complete(ctx *Context, p *plan.Dag) (*plan.Dag, error) {
	// a run can only end at a non-filter node; filters always have an input
	ctx.run = nil
	return p, nil
}
