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

// Filter applies its condition's mask to each batch. A flattened filter
// carries a condition list applied in order, cheapest first. If no rows
// survive the whole stream one empty batch is emitted before EOS so
// downstream operators still see the schema.
type Filter struct {
	base
	conditions []*expression.Node
	ev         expression.Evaluator

	schema  sql.Schema
	emitted bool
}

func NewFilter(conditions []*expression.Node, ev expression.Evaluator) *Filter {
	return &Filter{conditions: conditions, ev: ev}
}

func (f *Filter) Name() string {
	return "Filter"
}

func (f *Filter) Stateless() bool {
	return true
}

func (f *Filter) Config() string {
	parts := make([]string, len(f.conditions))
	for i, c := range f.conditions {
		parts[i] = expression.Format(c)
	}
	return strings.Join(parts, " AND ")
}

func (f *Filter) Execute(ctx *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		var outputs []*sql.Batch
		if !f.emitted && f.schema != nil {
			outputs = append(outputs, sql.NewEmptyBatch(f.schema))
		}
		return append(outputs, sql.EOS), nil
	}

	f.schema = morsel.Schema()
	if morsel.NumRows() == 0 {
		// empty batches pass through so the schema propagates
		f.emitted = true
		return []*sql.Batch{morsel}, nil
	}

	filtered := morsel
	for _, condition := range f.conditions {
		mask, err := f.ev.Evaluate(ctx, condition, filtered)
		if err != nil {
			return nil, err
		}
		keep := make([]bool, len(mask))
		for i, v := range mask {
			if v == nil {
				continue
			}
			b, ok := v.(bool)
			if !ok {
				return nil, sql.ErrSQL.New("unable to filter on expression '" + expression.Format(condition) + "'")
			}
			keep[i] = b
		}
		filtered = filtered.FilterMask(keep)
		if filtered.NumRows() == 0 {
			break
		}
	}

	if filtered.NumRows() == 0 {
		return nil, nil
	}
	f.emitted = true
	return []*sql.Batch{filtered}, nil
}
