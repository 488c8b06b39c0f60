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
	"github.com/kestreldb/kestrel/sql/expression/eval"
	"github.com/kestreldb/kestrel/sql/hash"
	"github.com/kestreldb/kestrel/sql/plan"
)

// partialSuffix separates an aggregate identity from its partial field in
// intermediate batches.
const partialSuffix = "__"

// AggregateAndGroup performs grouped aggregation in two stages: each batch
// is partially aggregated into an intermediate batch with suffixed internal
// column names, intermediates are buffered (collapsing early once the
// buffer reaches its cap), and EOS triggers a finalizer pass that combines
// partials - SUM over per-batch SUMs, MIN over per-batch MINs, COUNT
// partials summed, averages re-derived from sum and count. The result is
// invariant to where batch boundaries fell.
type AggregateAndGroup struct {
	base
	groupBy    []*expression.Node
	aggregates []*expression.Node
	ev         expression.Evaluator
	maxBuffer  int

	groupSchema sql.Schema
	buffer      []*sql.Batch
}

func NewAggregateAndGroup(groupBy, aggregates []*expression.Node, ev expression.Evaluator, maxBuffer int) (*AggregateAndGroup, error) {
	for _, agg := range aggregates {
		if _, err := canonicalAggregator(agg); err != nil {
			return nil, err
		}
	}
	return &AggregateAndGroup{groupBy: groupBy, aggregates: aggregates, ev: ev, maxBuffer: maxBuffer}, nil
}

func (g *AggregateAndGroup) Name() string {
	return "AggregateAndGroup"
}

func (g *AggregateAndGroup) Config() string {
	parts := make([]string, 0, len(g.groupBy)+len(g.aggregates))
	for _, e := range g.aggregates {
		parts = append(parts, expression.Format(e))
	}
	for _, e := range g.groupBy {
		parts = append(parts, "BY "+expression.Format(e))
	}
	return strings.Join(parts, ", ")
}

func (g *AggregateAndGroup) Execute(ctx *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		return g.finalize()
	}
	if morsel.NumRows() == 0 {
		return nil, nil
	}

	partial, err := g.partialAggregate(ctx, morsel)
	if err != nil {
		return nil, err
	}
	g.buffer = append(g.buffer, partial)

	if len(g.buffer) >= g.maxBuffer {
		collapsed, err := g.mergeBuffer()
		if err != nil {
			return nil, err
		}
		g.buffer = []*sql.Batch{collapsed}
	}
	return nil, nil
}

// group is the per-key aggregation state.
type group struct {
	keys []interface{}
	accs []*accumulator
}

// partialAggregate groups one batch and emits the intermediate batch.
func (g *AggregateAndGroup) partialAggregate(ctx *sql.Context, morsel *sql.Batch) (*sql.Batch, error) {
	groupValues := make([][]interface{}, len(g.groupBy))
	if g.groupSchema == nil {
		g.groupSchema = make(sql.Schema, len(g.groupBy))
	}
	for i, expr := range g.groupBy {
		values, col, err := g.resolveGroupColumn(ctx, morsel, expr)
		if err != nil {
			return nil, err
		}
		groupValues[i] = values
		if g.groupSchema[i] == nil {
			g.groupSchema[i] = col
		}
	}

	paramValues := make([][]interface{}, len(g.aggregates))
	for i, agg := range g.aggregates {
		param := aggregatorArgument(agg)
		if param == nil || param.Kind == expression.KindWildcard || param.Kind == expression.KindLiteral {
			continue
		}
		values, err := g.ev.Evaluate(ctx, param, morsel)
		if err != nil {
			return nil, err
		}
		paramValues[i] = values
	}

	groups := make(map[uint64]*group)
	var ordered []*group
	key := make([]interface{}, len(g.groupBy))
	for row := 0; row < morsel.NumRows(); row++ {
		for c := range groupValues {
			key[c] = groupValues[c][row]
		}
		h := hash.Row(key)
		entry, ok := groups[h]
		if !ok {
			entry = &group{keys: append([]interface{}(nil), key...)}
			entry.accs = make([]*accumulator, len(g.aggregates))
			for i, agg := range g.aggregates {
				kind, _ := canonicalAggregator(agg)
				entry.accs[i] = newAccumulator(kind, agg.Distinct)
			}
			groups[h] = entry
			ordered = append(ordered, entry)
		}
		for i, agg := range g.aggregates {
			acc := entry.accs[i]
			param := aggregatorArgument(agg)
			switch {
			case param == nil || param.Kind == expression.KindWildcard:
				acc.updateCountStar(1)
			case param.Kind == expression.KindLiteral:
				if err := acc.updateLiteral(param.LiteralValue, 1); err != nil {
					return nil, err
				}
			default:
				if err := acc.update(paramValues[i][row]); err != nil {
					return nil, err
				}
			}
		}
	}
	return g.groupsToPartial(ordered)
}

func (g *AggregateAndGroup) resolveGroupColumn(ctx *sql.Context, morsel *sql.Batch, expr *expression.Node) ([]interface{}, *sql.Column, error) {
	if expr.Kind == expression.KindIdentifier {
		values, err := morsel.Column(expr.Identity)
		if err != nil {
			return nil, nil, sql.ErrColumnNotFound.New(expression.Format(expr))
		}
		return values, morsel.Schema().Column(expr.Identity).Copy(), nil
	}
	morsel, err := g.ev.EvaluateAndAppend(ctx, []*expression.Node{expr}, morsel)
	if err != nil {
		return nil, nil, err
	}
	target := expr.SchemaColumn
	if target == nil {
		return nil, nil, sql.ErrInvalidInternalState.New("group expression has no target column")
	}
	values, err := morsel.Column(target.Identity)
	if err != nil {
		return nil, nil, err
	}
	return values, target.Copy(), nil
}

// partialFields lists the internal columns each aggregator contributes to
// an intermediate batch.
func partialFields(kind string) []string {
	switch kind {
	case aggSum, aggProduct:
		return []string{"sum"}
	case aggCount:
		return []string{"count"}
	case aggCountDistinct:
		return []string{"set"}
	case aggMin:
		return []string{"min"}
	case aggMax:
		return []string{"max"}
	case aggAvg:
		return []string{"sum", "count"}
	case aggStddev, aggVariance:
		return []string{"count", "sum", "sumsq"}
	case aggAnyValue:
		return []string{"any"}
	case aggArrayAgg:
		return []string{"list"}
	}
	return nil
}

func (a *accumulator) partialValue(field string) interface{} {
	switch field {
	case "sum":
		return a.sum
	case "count":
		return a.count
	case "sumsq":
		return a.sumsq
	case "min":
		return a.min
	case "max":
		return a.max
	case "any":
		return a.any
	case "set":
		return a.distincts
	case "list":
		return a.values
	}
	return nil
}

func (a *accumulator) mergePartial(field string, value interface{}) error {
	if value == nil {
		return nil
	}
	switch field {
	case "sum":
		if a.sum == nil {
			a.sum = value
			return nil
		}
		op := expression.OpPlus
		if a.kind == aggProduct {
			op = expression.OpMultiply
		}
		sum, err := eval.ApplyBinary(op, a.sum, value)
		if err != nil {
			return err
		}
		a.sum = sum
	case "count":
		a.count += value.(int64)
	case "sumsq":
		a.sumsq += value.(float64)
	case "min":
		return a.update(value)
	case "max":
		return a.update(value)
	case "any":
		if a.any == nil {
			a.any = value
		}
	case "set":
		for _, v := range value.([]interface{}) {
			if err := a.update(v); err != nil {
				return err
			}
		}
	case "list":
		a.values = append(a.values, value.([]interface{})...)
	}
	return nil
}

// groupsToPartial renders grouped accumulators as an intermediate batch.
func (g *AggregateAndGroup) groupsToPartial(ordered []*group) (*sql.Batch, error) {
	schema := g.groupSchema.Copy()
	columns := make([][]interface{}, len(g.groupBy))
	for c := range columns {
		columns[c] = make([]interface{}, len(ordered))
		for r, entry := range ordered {
			columns[c][r] = entry.keys[c]
		}
	}
	for i, agg := range g.aggregates {
		kind, _ := canonicalAggregator(agg)
		for _, field := range partialFields(kind) {
			col := &sql.Column{
				Identity: agg.SchemaColumn.Identity + partialSuffix + field,
				Name:     agg.SchemaColumn.Name + partialSuffix + field,
				Type:     sql.Null,
			}
			values := make([]interface{}, len(ordered))
			for r, entry := range ordered {
				values[r] = entry.accs[i].partialValue(field)
			}
			schema = append(schema, col)
			columns = append(columns, values)
		}
	}
	return sql.NewBatch(schema, columns)
}

// mergeBuffer combines all buffered intermediates into one.
func (g *AggregateAndGroup) mergeBuffer() (*sql.Batch, error) {
	ordered, err := g.mergeToGroups()
	if err != nil {
		return nil, err
	}
	return g.groupsToPartial(ordered)
}

// mergeToGroups replays every buffered intermediate into fresh
// accumulators, combining partials per group key.
func (g *AggregateAndGroup) mergeToGroups() ([]*group, error) {
	groups := make(map[uint64]*group)
	var ordered []*group
	for _, partial := range g.buffer {
		key := make([]interface{}, len(g.groupBy))
		for row := 0; row < partial.NumRows(); row++ {
			for c := range g.groupBy {
				key[c] = partial.ColumnAt(c)[row]
			}
			h := hash.Row(key)
			entry, ok := groups[h]
			if !ok {
				entry = &group{keys: append([]interface{}(nil), key...)}
				entry.accs = make([]*accumulator, len(g.aggregates))
				for i, agg := range g.aggregates {
					kind, _ := canonicalAggregator(agg)
					entry.accs[i] = newAccumulator(kind, agg.Distinct)
				}
				groups[h] = entry
				ordered = append(ordered, entry)
			}
			for i, agg := range g.aggregates {
				kind, _ := canonicalAggregator(agg)
				for _, field := range partialFields(kind) {
					identity := agg.SchemaColumn.Identity + partialSuffix + field
					values, err := partial.Column(identity)
					if err != nil {
						return nil, err
					}
					if err := entry.accs[i].mergePartial(field, values[row]); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	return ordered, nil
}

func (g *AggregateAndGroup) finalize() ([]*sql.Batch, error) {
	if g.groupSchema == nil {
		// no input rows: a grouped aggregation over nothing has no groups
		return []*sql.Batch{sql.EOS}, nil
	}
	ordered, err := g.mergeToGroups()
	if err != nil {
		return nil, err
	}
	g.buffer = nil

	schema := g.groupSchema.Copy()
	columns := make([][]interface{}, len(g.groupBy))
	for c := range columns {
		columns[c] = make([]interface{}, len(ordered))
		for r, entry := range ordered {
			columns[c][r] = entry.keys[c]
		}
	}
	for i, agg := range g.aggregates {
		schema = append(schema, agg.SchemaColumn.Copy())
		values := make([]interface{}, len(ordered))
		for r, entry := range ordered {
			v, err := entry.accs[i].final(agg)
			if err != nil {
				return nil, err
			}
			values[r] = v
		}
		columns = append(columns, values)
	}
	result, err := sql.NewBatch(schema, columns)
	if err != nil {
		return nil, err
	}
	return []*sql.Batch{result, sql.EOS}, nil
}
