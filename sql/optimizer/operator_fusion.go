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
	"github.com/kestreldb/kestrel/sql/plan"
)

// OperatorFusion fuses an Order feeding a Limit with no offset into a
// single HeapSort, which keeps a bounded buffer of the limit size instead of
// sorting the full input.
type OperatorFusion struct{}

func (s *OperatorFusion) Name() string {
	return "OperatorFusion"
}

func (s *OperatorFusion) Visit(ctx *Context, id string, node *plan.Node) error {
	if node.Kind != plan.StepOrder {
		return nil
	}
	edges := ctx.Plan.OutgoingEdges(id)
	if len(edges) != 1 {
		return nil
	}
	consumerID := edges[0].Target
	consumer := ctx.Plan.Get(consumerID)
	if consumer == nil || consumer.Kind != plan.StepLimit || consumer.Limit == nil || consumer.Offset != 0 {
		return nil
	}
	fused := &plan.Node{
		Kind:    plan.StepHeapSort,
		Limit:   consumer.Limit,
		OrderBy: node.OrderBy,
	}
	ctx.Plan.AddNode(consumerID, fused)
	ctx.Plan.RemoveNodeHeal(id)
	return nil
}

func (s *OperatorFusion) Complete(_ *Context, p *plan.Dag) (*plan.Dag, error) {
	return p, nil
}
