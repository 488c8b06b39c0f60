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

// ProjectionPushdown walks the plan collecting the column identities the
// operators above actually use, then restricts every Scan and Subquery to
// emitting just those columns.
type ProjectionPushdown struct{}

func (s *ProjectionPushdown) Name() string {
	return "ProjectionPushdown"
}

func (s *ProjectionPushdown) Visit(ctx *Context, _ string, node *plan.Node) error {
	for _, expr := range nodeExpressions(node) {
		for _, identity := range expression.ReferencedIdentities(expr) {
			ctx.Identities[identity] = struct{}{}
		}
	}

	if node.Kind != plan.StepScan && node.Kind != plan.StepSubquery {
		return nil
	}
	if hasHint(node, sql.HintNoPushProjection) {
		return nil
	}
	if len(ctx.Identities) == 0 {
		return nil
	}
	restricted := make(sql.Schema, 0, len(node.Schema))
	for _, col := range node.Schema {
		if _, needed := ctx.Identities[col.Identity]; needed {
			restricted = append(restricted, col)
		}
	}
	// a COUNT(*)-style plan demands no columns at all; keep the first
	// one so the reader still yields row counts
	if len(restricted) == 0 && len(node.Schema) > 0 {
		restricted = node.Schema[:1]
	}
	node.Schema = restricted
	return nil
}

func (s *ProjectionPushdown) Complete(_ *Context, p *plan.Dag) (*plan.Dag, error) {
	return p, nil
}

// nodeExpressions enumerates every expression a node evaluates; identifiers
// inside them are column demands on the plan below.
func nodeExpressions(node *plan.Node) []*expression.Node {
	var out []*expression.Node
	add := func(exprs ...*expression.Node) {
		for _, e := range exprs {
			if e != nil {
				out = append(out, e)
			}
		}
	}
	add(node.Condition)
	add(node.ConditionList...)
	add(node.Columns...)
	add(node.On)
	add(node.Predicates...)
	add(node.Aggregates...)
	add(node.GroupBy...)
	add(node.DistinctOn...)
	add(node.UnnestColumn)
	add(node.Args...)
	for _, f := range node.OrderBy {
		add(f.Expr)
	}
	return out
}
