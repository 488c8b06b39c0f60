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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/expression/eval"
	"github.com/kestreldb/kestrel/sql/plan"
)

func intSchema(source string, names ...string) sql.Schema {
	schema := make(sql.Schema, len(names))
	for i, name := range names {
		schema[i] = &sql.Column{Identity: source + "." + name, Name: name, Source: source, Type: sql.Integer}
	}
	return schema
}

func intBatch(t *testing.T, schema sql.Schema, columns ...[]interface{}) *sql.Batch {
	t.Helper()
	batch, err := sql.NewBatch(schema, columns)
	require.NoError(t, err)
	return batch
}

// drive pushes batches then EOS through an operator on one leg and
// collects everything it emits.
func drive(t *testing.T, op Operator, leg plan.EdgeLabel, batches ...*sql.Batch) []*sql.Batch {
	t.Helper()
	ctx := sql.NewEmptyContext()
	var outputs []*sql.Batch
	for _, batch := range batches {
		out, err := Invoke(ctx, op, batch, leg)
		require.NoError(t, err)
		outputs = append(outputs, out...)
	}
	out, err := Invoke(ctx, op, sql.EOS, leg)
	require.NoError(t, err)
	return append(outputs, out...)
}

func rowsOf(batches []*sql.Batch) [][]interface{} {
	var rows [][]interface{}
	for _, batch := range batches {
		if batch.IsEOS() {
			continue
		}
		for i := 0; i < batch.NumRows(); i++ {
			rows = append(rows, batch.Row(i))
		}
	}
	return rows
}

func TestFilterMasksRows(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "x")
	batch := intBatch(t, schema, []interface{}{int64(1), int64(5), int64(9)})

	condition := expression.NewComparison(expression.OpGt,
		expression.NewIdentifier("t.x", "t", "x"),
		expression.NewLiteral(int64(4), sql.Integer))
	filter := NewFilter([]*expression.Node{condition}, eval.NewEvaluator())

	outputs := drive(t, filter, plan.LabelNone, batch)
	require.Equal([][]interface{}{{int64(5)}, {int64(9)}}, rowsOf(outputs))
	require.True(outputs[len(outputs)-1].IsEOS())
}

func TestFilterEmitsEmptyBatchWhenNothingSurvives(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "x")
	batch := intBatch(t, schema, []interface{}{int64(1), int64(2)})

	condition := expression.NewComparison(expression.OpGt,
		expression.NewIdentifier("t.x", "t", "x"),
		expression.NewLiteral(int64(100), sql.Integer))
	filter := NewFilter([]*expression.Node{condition}, eval.NewEvaluator())

	outputs := drive(t, filter, plan.LabelNone, batch)
	require.Len(outputs, 2)
	require.Equal(0, outputs[0].NumRows())
	require.Equal(schema.Identities(), outputs[0].Schema().Identities())
	require.True(outputs[1].IsEOS())
}

func TestFilterNonBooleanConditionFails(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "x")
	batch := intBatch(t, schema, []interface{}{int64(1)})

	filter := NewFilter([]*expression.Node{expression.NewIdentifier("t.x", "t", "x")}, eval.NewEvaluator())
	_, err := Invoke(sql.NewEmptyContext(), filter, batch, plan.LabelNone)
	require.Error(err)
	require.True(sql.ErrSQL.Is(err))
}

// A stateless operator gives the same rows however the input is split.
func TestFilterIsSplitInvariant(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "x")
	values := []interface{}{int64(1), int64(5), int64(9), int64(2), int64(8)}
	condition := expression.NewComparison(expression.OpGt,
		expression.NewIdentifier("t.x", "t", "x"),
		expression.NewLiteral(int64(4), sql.Integer))

	whole := drive(t, NewFilter([]*expression.Node{condition}, eval.NewEvaluator()), plan.LabelNone,
		intBatch(t, schema, values))

	split := drive(t, NewFilter([]*expression.Node{condition}, eval.NewEvaluator()), plan.LabelNone,
		intBatch(t, schema, values[:2]),
		intBatch(t, schema, values[2:]))

	require.Equal(rowsOf(whole), rowsOf(split))
}

func TestProjectionSelectsAndRenames(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "a", "b")
	batch := intBatch(t, schema, []interface{}{int64(1), int64(2)}, []interface{}{int64(10), int64(20)})

	column := expression.NewIdentifier("t.b", "t", "renamed")
	projection := NewProjection([]*expression.Node{column}, eval.NewEvaluator())

	outputs := drive(t, projection, plan.LabelNone, batch)
	require.Equal([][]interface{}{{int64(10)}, {int64(20)}}, rowsOf(outputs))
	require.Equal([]string{"renamed"}, outputs[0].Schema().Names())
}

func TestProjectionDuplicateNamesFail(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "a", "b")
	batch := intBatch(t, schema, []interface{}{int64(1)}, []interface{}{int64(10)})

	projection := NewProjection([]*expression.Node{
		expression.NewIdentifier("t.a", "t", "same"),
		expression.NewIdentifier("t.b", "t", "same"),
	}, eval.NewEvaluator())
	_, err := Invoke(sql.NewEmptyContext(), projection, batch, plan.LabelNone)
	require.Error(err)
	require.True(sql.ErrSQL.Is(err))
}

func TestLimitWithOffset(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "x")
	limit := NewLimit(3, 2)

	outputs := drive(t, limit, plan.LabelNone,
		intBatch(t, schema, []interface{}{int64(0), int64(1)}),
		intBatch(t, schema, []interface{}{int64(2), int64(3)}),
		intBatch(t, schema, []interface{}{int64(4), int64(5)}),
	)
	require.Equal([][]interface{}{{int64(2)}, {int64(3)}, {int64(4)}}, rowsOf(outputs))

	eosCount := 0
	for _, out := range outputs {
		if out.IsEOS() {
			eosCount++
		}
	}
	require.Equal(1, eosCount, "limit forwards EOS exactly once")
}

func TestDistinctPersistsAcrossBatches(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "x")
	distinct := NewDistinct(nil)

	outputs := drive(t, distinct, plan.LabelNone,
		intBatch(t, schema, []interface{}{int64(1), int64(2), int64(1)}),
		intBatch(t, schema, []interface{}{int64(2), int64(3)}),
	)
	require.Equal([][]interface{}{{int64(1)}, {int64(2)}, {int64(3)}}, rowsOf(outputs))
}

func TestSortOrdersOnEOS(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "x")
	sortOp := NewSort([]plan.OrderField{{Expr: expression.NewIdentifier("t.x", "t", "x"), Descending: true}}, eval.NewEvaluator())

	outputs := drive(t, sortOp, plan.LabelNone,
		intBatch(t, schema, []interface{}{int64(3), int64(1)}),
		intBatch(t, schema, []interface{}{int64(2)}),
	)
	require.Equal([][]interface{}{{int64(3)}, {int64(2)}, {int64(1)}}, rowsOf(outputs))
}

func TestSortPositional(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "a", "b")
	sortOp := NewSort([]plan.OrderField{{Expr: expression.NewLiteral(int64(2), sql.Integer)}}, eval.NewEvaluator())

	outputs := drive(t, sortOp, plan.LabelNone,
		intBatch(t, schema,
			[]interface{}{int64(1), int64(2), int64(3)},
			[]interface{}{int64(30), int64(10), int64(20)}),
	)
	require.Equal([][]interface{}{
		{int64(2), int64(10)},
		{int64(3), int64(20)},
		{int64(1), int64(30)},
	}, rowsOf(outputs))
}

func TestSortUnknownColumnNamesExpression(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "x")
	sortOp := NewSort([]plan.OrderField{{Expr: expression.NewIdentifier("t.missing", "t", "missing")}}, eval.NewEvaluator())

	ctx := sql.NewEmptyContext()
	_, err := Invoke(ctx, sortOp, intBatch(t, schema, []interface{}{int64(2), int64(1)}), plan.LabelNone)
	require.NoError(err)
	_, err = Invoke(ctx, sortOp, sql.EOS, plan.LabelNone)
	require.Error(err)
	require.Contains(err.Error(), "t.missing")
}

// HeapSort is strictly equivalent to Sort followed by Limit.
func TestHeapSortMatchesSortThenLimit(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "x")
	orderBy := []plan.OrderField{{Expr: expression.NewIdentifier("t.x", "t", "x"), Descending: true}}

	var first, second []interface{}
	for i := 0; i < 40; i++ {
		first = append(first, int64(i*7%31))
		second = append(second, int64(i*13%29))
	}

	heap := NewHeapSort(orderBy, 10, eval.NewEvaluator())
	heapRows := rowsOf(drive(t, heap, plan.LabelNone,
		intBatch(t, schema, first), intBatch(t, schema, second)))

	sorted := NewSort(orderBy, eval.NewEvaluator())
	sortedRows := rowsOf(drive(t, sorted, plan.LabelNone,
		intBatch(t, schema, first), intBatch(t, schema, second)))
	require.Equal(sortedRows[:10], heapRows)
	require.Len(heapRows, 10)

	require.Equal(int64(10), heap.Sensors().RecordsOut)
}

func TestSimpleAggregate(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "x")

	makeAgg := func(name string, distinct bool) *expression.Node {
		agg := expression.NewAggregator(name, expression.NewIdentifier("t.x", "t", "x"))
		agg.Distinct = distinct
		agg.SchemaColumn = &sql.Column{Identity: "$" + name, Name: name, Type: sql.Integer}
		return agg
	}
	countStar := expression.NewAggregator("COUNT", expression.NewWildcard(""))
	countStar.SchemaColumn = &sql.Column{Identity: "$count_star", Name: "count_star", Type: sql.Integer}

	aggregates := []*expression.Node{
		makeAgg("SUM", false),
		makeAgg("MIN", false),
		makeAgg("MAXIMUM", false), // alias of MAX
		makeAgg("AVG", false),
		makeAgg("COUNT", false),
		makeAgg("COUNT", true),
		countStar,
	}
	op, err := NewSimpleAggregate(aggregates, eval.NewEvaluator())
	require.NoError(err)

	outputs := drive(t, op, plan.LabelNone,
		intBatch(t, schema, []interface{}{int64(1), int64(2), nil}),
		intBatch(t, schema, []interface{}{int64(2), int64(5)}),
	)
	rows := rowsOf(outputs)
	require.Len(rows, 1)
	row := rows[0]
	require.Equal(int64(10), row[0])          // SUM skips nulls
	require.Equal(int64(1), row[1])           // MIN
	require.Equal(int64(5), row[2])           // MAX via alias
	require.Equal(float64(2.5), row[3])       // AVG over non-null
	require.Equal(int64(4), row[4])           // COUNT(col) skips nulls
	require.Equal(int64(3), row[5])           // COUNT(DISTINCT col)
	require.Equal(int64(5), row[6])           // COUNT(*) includes nulls
}

func TestSimpleAggregateLiteralOnly(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "x")

	sumOne := expression.NewAggregator("SUM", expression.NewLiteral(int64(1), sql.Integer))
	sumOne.SchemaColumn = &sql.Column{Identity: "$sum1", Name: "sum1", Type: sql.Integer}
	op, err := NewSimpleAggregate([]*expression.Node{sumOne}, eval.NewEvaluator())
	require.NoError(err)

	outputs := drive(t, op, plan.LabelNone,
		intBatch(t, schema, []interface{}{int64(7), int64(8), int64(9)}),
	)
	require.Equal([][]interface{}{{int64(3)}}, rowsOf(outputs))
}

// The grouped finalizer result is invariant to batch boundaries.
func TestAggregateAndGroupBatchBoundaryInvariance(t *testing.T) {
	require := require.New(t)
	schema := intSchema("t", "g", "v")
	groupBy := []*expression.Node{expression.NewIdentifier("t.g", "t", "g")}

	build := func() *AggregateAndGroup {
		sum := expression.NewAggregator("SUM", expression.NewIdentifier("t.v", "t", "v"))
		sum.SchemaColumn = &sql.Column{Identity: "$sum", Name: "sum_v", Type: sql.Integer}
		avg := expression.NewAggregator("AVG", expression.NewIdentifier("t.v", "t", "v"))
		avg.SchemaColumn = &sql.Column{Identity: "$avg", Name: "avg_v", Type: sql.Double}
		count := expression.NewAggregator("COUNT", expression.NewIdentifier("t.v", "t", "v"))
		count.SchemaColumn = &sql.Column{Identity: "$count", Name: "count_v", Type: sql.Integer}
		op, err := NewAggregateAndGroup(groupBy, []*expression.Node{sum, avg, count}, eval.NewEvaluator(), 2)
		require.NoError(err)
		return op
	}

	groups := []interface{}{int64(1), int64(2), int64(1), int64(2), int64(1), int64(3)}
	values := []interface{}{int64(10), int64(20), int64(30), int64(40), int64(50), int64(60)}

	whole := rowsOf(drive(t, build(), plan.LabelNone,
		intBatch(t, schema, groups, values)))

	var pieces []*sql.Batch
	for i := range groups {
		pieces = append(pieces, intBatch(t, schema, groups[i:i+1], values[i:i+1]))
	}
	perRow := rowsOf(drive(t, build(), plan.LabelNone, pieces...))

	require.ElementsMatch(whole, perRow)
	require.Len(whole, 3)
	for _, row := range whole {
		if row[0] == int64(1) {
			require.Equal(int64(90), row[1])
			require.Equal(float64(30), row[2])
			require.Equal(int64(3), row[3])
		}
	}
}

func TestUnionRenamesByPosition(t *testing.T) {
	require := require.New(t)
	left := intBatch(t, intSchema("a", "x"), []interface{}{int64(1)})
	right := intBatch(t, intSchema("b", "y"), []interface{}{int64(2)})

	union := NewUnion(2)
	ctx := sql.NewEmptyContext()

	out1, err := Invoke(ctx, union, left, plan.LabelNone)
	require.NoError(err)
	out2, err := Invoke(ctx, union, right, plan.LabelNone)
	require.NoError(err)
	require.Equal(out1[0].Schema().Identities(), out2[0].Schema().Identities())

	eos1, err := Invoke(ctx, union, sql.EOS, plan.LabelNone)
	require.NoError(err)
	require.Empty(eos1, "EOS waits for every input")
	eos2, err := Invoke(ctx, union, sql.EOS, plan.LabelNone)
	require.NoError(err)
	require.Len(eos2, 1)
	require.True(eos2[0].IsEOS())
}
