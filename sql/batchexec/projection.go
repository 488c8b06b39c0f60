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

package batchexec

import (
	"strings"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
)

// Projection evaluates computed expressions, appends their columns, and
// selects and renames to the projection's target schema. Stateless: its
// output depends only on the current batch.
type Projection struct {
	base
	columns []*expression.Node
	ev      expression.Evaluator
}

func NewProjection(columns []*expression.Node, ev expression.Evaluator) *Projection {
	return &Projection{columns: columns, ev: ev}
}

func (p *Projection) Name() string {
	return "Projection"
}

func (p *Projection) Stateless() bool {
	return true
}

func (p *Projection) Config() string {
	parts := make([]string, len(p.columns))
	for i, c := range p.columns {
		parts[i] = expression.Format(c)
	}
	return strings.Join(parts, ", ")
}

func (p *Projection) Execute(ctx *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		return []*sql.Batch{sql.EOS}, nil
	}

	var computed []*expression.Node
	for _, col := range p.columns {
		switch col.Kind {
		case expression.KindIdentifier, expression.KindWildcard:
		default:
			computed = append(computed, col)
		}
	}
	morsel, err := p.ev.EvaluateAndAppend(ctx, computed, morsel)
	if err != nil {
		return nil, err
	}

	var identities []string
	var schema sql.Schema
	for _, col := range p.columns {
		switch col.Kind {
		case expression.KindWildcard:
			for _, in := range morsel.Schema() {
				if col.Value != "" && in.Source != col.Value {
					continue
				}
				identities = append(identities, in.Identity)
				schema = append(schema, in.Copy())
			}
		case expression.KindIdentifier:
			in := morsel.Schema().Column(col.Identity)
			if in == nil {
				return nil, sql.ErrColumnNotFound.New(expression.Format(col))
			}
			out := in.Copy()
			if col.Name != "" {
				out.Name = col.Name
				out.Alias = ""
			}
			identities = append(identities, col.Identity)
			schema = append(schema, out)
		default:
			target := col.SchemaColumn
			if target == nil {
				return nil, sql.ErrInvalidInternalState.New("projection expression has no target column")
			}
			identities = append(identities, target.Identity)
			schema = append(schema, target.Copy())
		}
	}

	names := make(map[string]struct{}, len(schema))
	for _, col := range schema {
		name := col.DisplayName()
		if _, dup := names[name]; dup {
			return nil, sql.ErrSQL.New("duplicate column name " + name + " in projection")
		}
		names[name] = struct{}{}
	}

	projected, err := morsel.Project(identities)
	if err != nil {
		return nil, err
	}
	renamed, err := projected.Rename(schema)
	if err != nil {
		return nil, err
	}
	return []*sql.Batch{renamed}, nil
}
