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

// SimpleAggregate computes ungrouped aggregations: one running value per
// aggregator, updated batch by batch, emitted as a single row on EOS.
// COUNT(*) counts rows including nulls; COUNT(col) counts non-null rows;
// COUNT(DISTINCT col) keeps a hash set; literal-only aggregates fold per
// batch without a row loop.
type SimpleAggregate struct {
	base
	aggregates   []*expression.Node
	accumulators []*accumulator
	ev           expression.Evaluator
}

func NewSimpleAggregate(aggregates []*expression.Node, ev expression.Evaluator) (*SimpleAggregate, error) {
	accumulators := make([]*accumulator, len(aggregates))
	for i, agg := range aggregates {
		kind, err := canonicalAggregator(agg)
		if err != nil {
			return nil, err
		}
		accumulators[i] = newAccumulator(kind, agg.Distinct)
	}
	return &SimpleAggregate{aggregates: aggregates, accumulators: accumulators, ev: ev}, nil
}

func (a *SimpleAggregate) Name() string {
	return "Aggregate"
}

func (a *SimpleAggregate) Config() string {
	parts := make([]string, len(a.aggregates))
	for i, agg := range a.aggregates {
		parts[i] = expression.Format(agg)
	}
	return strings.Join(parts, ", ")
}

func (a *SimpleAggregate) Execute(ctx *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		return a.finalize()
	}
	if morsel.NumRows() == 0 {
		return nil, nil
	}

	for i, agg := range a.aggregates {
		acc := a.accumulators[i]
		param := aggregatorArgument(agg)
		switch {
		case param == nil || param.Kind == expression.KindWildcard:
			acc.updateCountStar(morsel.NumRows())
		case param.Kind == expression.KindLiteral:
			if err := acc.updateLiteral(param.LiteralValue, morsel.NumRows()); err != nil {
				return nil, err
			}
		default:
			values, err := a.ev.Evaluate(ctx, param, morsel)
			if err != nil {
				return nil, err
			}
			for _, v := range values {
				if err := acc.update(v); err != nil {
					return nil, err
				}
			}
		}
	}
	return nil, nil
}

func (a *SimpleAggregate) finalize() ([]*sql.Batch, error) {
	schema := make(sql.Schema, len(a.aggregates))
	columns := make([][]interface{}, len(a.aggregates))
	for i, agg := range a.aggregates {
		if agg.SchemaColumn == nil {
			return nil, sql.ErrInvalidInternalState.New("aggregator has no target column")
		}
		schema[i] = agg.SchemaColumn.Copy()
		value, err := a.accumulators[i].final(agg)
		if err != nil {
			return nil, err
		}
		columns[i] = []interface{}{value}
	}
	result, err := sql.NewBatch(schema, columns)
	if err != nil {
		return nil, err
	}
	return []*sql.Batch{result, sql.EOS}, nil
}

// aggregatorArgument returns the aggregated expression, nil for COUNT(*).
func aggregatorArgument(agg *expression.Node) *expression.Node {
	if len(agg.Parameters) == 0 {
		return nil
	}
	return agg.Parameters[0]
}
