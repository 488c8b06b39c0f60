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

package kestrel

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestreldb/kestrel/memory"
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
)

func numbersTable(rows int) *memory.Table {
	table := memory.NewTable("numbers", sql.Schema{
		{Identity: "numbers.n", Name: "n", Source: "numbers", Type: sql.Integer},
		{Identity: "numbers.mod", Name: "mod", Source: "numbers", Type: sql.Integer},
	})
	for i := 0; i < rows; i++ {
		table.Insert([]interface{}{int64(i), int64(i % 7)})
	}
	return table
}

func scanNode(table *memory.Table, conn *memory.Connector) *plan.Node {
	return &plan.Node{
		Kind:      plan.StepScan,
		Relation:  table.Name(),
		Schema:    table.Schema(),
		Connector: conn,
	}
}

func allRows(t *testing.T, ctx *sql.Context, iter sql.BatchIterator) [][]interface{} {
	t.Helper()
	batches, err := sql.BatchesToSlice(ctx, iter)
	require.NoError(t, err)
	var rows [][]interface{}
	for _, batch := range batches {
		for i := 0; i < batch.NumRows(); i++ {
			rows = append(rows, batch.Row(i))
		}
	}
	return rows
}

// A pushable Eq predicate lands in the connector: only matching rows are
// ever read from the table.
func TestPushedPredicateLimitsRowsRead(t *testing.T) {
	require := require.New(t)
	table := numbersTable(100)
	table.AcceptPredicates = true
	conn := memory.NewConnector("mem").AddTable(table)

	d := plan.NewDag()
	d.AddNode("scan", scanNode(table, conn))
	d.AddNode("filter", &plan.Node{
		Kind: plan.StepFilter,
		Condition: expression.NewComparison(expression.OpEq,
			expression.NewIdentifier("numbers.mod", "numbers", "mod"),
			expression.NewLiteral(int64(3), sql.Integer)),
	})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "filter", plan.LabelNone)
	d.AddEdge("filter", "exit", plan.LabelNone)

	ctx := sql.NewEmptyContext()
	iter, resultType, err := NewDefault().Execute(ctx, d)
	require.NoError(err)
	require.Equal(sql.Tabular, resultType)

	rows := allRows(t, ctx, iter)
	require.Len(rows, 14)
	require.Equal(int64(14), table.RowsRead(), "the scan reads only matching rows")
	require.Equal(int64(14), ctx.Stats.Get("rows_read"))
}

// Order + Limit fuses to a HeapSort that returns exactly limit rows in
// order.
func TestHeapSortEndToEnd(t *testing.T) {
	require := require.New(t)
	table := numbersTable(5000)
	conn := memory.NewConnector("mem").WithBatchSize(64).AddTable(table)

	d := plan.NewDag()
	d.AddNode("scan", scanNode(table, conn))
	d.AddNode("order", &plan.Node{
		Kind: plan.StepOrder,
		OrderBy: []plan.OrderField{{
			Expr:       expression.NewIdentifier("numbers.n", "numbers", "n"),
			Descending: true,
		}},
	})
	d.AddNode("limit", &plan.Node{Kind: plan.StepLimit, Limit: plan.IntPtr(10)})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "order", plan.LabelNone)
	d.AddEdge("order", "limit", plan.LabelNone)
	d.AddEdge("limit", "exit", plan.LabelNone)

	ctx := sql.NewEmptyContext()
	iter, _, err := NewDefault().Execute(ctx, d)
	require.NoError(err)
	rows := allRows(t, ctx, iter)
	require.Len(rows, 10)
	for i, row := range rows {
		require.Equal(int64(4999-i), row[0])
	}
}

// A contradictory predicate short-circuits to a NullReader: one empty
// batch, correct schema, zero rows read.
func TestContradictionShortCircuits(t *testing.T) {
	require := require.New(t)
	table := numbersTable(100)
	conn := memory.NewConnector("mem").AddTable(table)

	d := plan.NewDag()
	d.AddNode("scan", scanNode(table, conn))
	d.AddNode("filter", &plan.Node{
		Kind: plan.StepFilter,
		Condition: expression.NewComparison(expression.OpEq,
			expression.NewLiteral(int64(1), sql.Integer),
			expression.NewLiteral(int64(0), sql.Integer)),
	})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "filter", plan.LabelNone)
	d.AddEdge("filter", "exit", plan.LabelNone)

	ctx := sql.NewEmptyContext()
	iter, _, err := NewDefault().Execute(ctx, d)
	require.NoError(err)
	batches, err := sql.BatchesToSlice(ctx, iter)
	require.NoError(err)
	require.Len(batches, 1)
	require.Equal(0, batches[0].NumRows())
	require.NotEmpty(batches[0].Schema())
	require.Equal(int64(0), table.RowsRead())
	require.Equal(int64(0), ctx.Stats.Get("rows_read"))
}

// The serial and parallel engines produce identical results.
func TestSerialAndParallelEnginesAgree(t *testing.T) {
	require := require.New(t)

	build := func() *plan.Dag {
		table := numbersTable(1000)
		conn := memory.NewConnector("mem").WithBatchSize(37).AddTable(table)
		d := plan.NewDag()
		d.AddNode("scan", scanNode(table, conn))
		d.AddNode("filter", &plan.Node{
			Kind: plan.StepFilter,
			Condition: expression.NewComparison(expression.OpGt,
				expression.NewIdentifier("numbers.n", "numbers", "n"),
				expression.NewLiteral(int64(900), sql.Integer)),
		})
		d.AddNode("order", &plan.Node{
			Kind:    plan.StepOrder,
			OrderBy: []plan.OrderField{{Expr: expression.NewIdentifier("numbers.n", "numbers", "n")}},
		})
		d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
		d.AddEdge("scan", "filter", plan.LabelNone)
		d.AddEdge("filter", "order", plan.LabelNone)
		d.AddEdge("order", "exit", plan.LabelNone)
		return d
	}

	serialCtx := sql.NewEmptyContext()
	serialIter, _, err := New(&Config{Parallel: false}).Execute(serialCtx, build())
	require.NoError(err)
	serialRows := allRows(t, serialCtx, serialIter)

	parallelCtx := sql.NewEmptyContext()
	parallelIter, _, err := New(&Config{Parallel: true}).Execute(parallelCtx, build())
	require.NoError(err)
	parallelRows := allRows(t, parallelCtx, parallelIter)

	require.Equal(serialRows, parallelRows)
	require.Len(serialRows, 99)
}

// Grouped aggregation over a join, end to end.
func TestGroupedAggregateOverJoin(t *testing.T) {
	require := require.New(t)
	users := memory.NewTable("users", sql.Schema{
		{Identity: "users.id", Name: "id", Source: "users", Type: sql.Integer},
		{Identity: "users.team", Name: "team", Source: "users", Type: sql.Varchar},
	}).Insert(
		[]interface{}{int64(1), "red"},
		[]interface{}{int64(2), "blue"},
		[]interface{}{int64(3), "red"},
	)
	scores := memory.NewTable("scores", sql.Schema{
		{Identity: "scores.user", Name: "user", Source: "scores", Type: sql.Integer},
		{Identity: "scores.points", Name: "points", Source: "scores", Type: sql.Integer},
	}).Insert(
		[]interface{}{int64(1), int64(10)},
		[]interface{}{int64(1), int64(15)},
		[]interface{}{int64(2), int64(7)},
		[]interface{}{int64(3), int64(5)},
	)
	conn := memory.NewConnector("mem").WithBatchSize(2).AddTable(users).AddTable(scores)

	sum := expression.NewAggregator("SUM", expression.NewIdentifier("scores.points", "scores", "points"))
	sum.SchemaColumn = &sql.Column{Identity: "$points", Name: "total_points", Type: sql.Integer}

	d := plan.NewDag()
	d.AddNode("users", &plan.Node{Kind: plan.StepScan, Relation: "users", Schema: users.Schema(), Connector: conn})
	d.AddNode("scores", &plan.Node{Kind: plan.StepScan, Relation: "scores", Schema: scores.Schema(), Connector: conn})
	d.AddNode("join", &plan.Node{
		Kind:           plan.StepJoin,
		JoinType:       plan.JoinInner,
		LeftRelations:  []string{"users"},
		RightRelations: []string{"scores"},
		On: expression.NewComparison(expression.OpEq,
			expression.NewIdentifier("users.id", "users", "id"),
			expression.NewIdentifier("scores.user", "scores", "user")),
		LeftColumns:  []string{"users.id"},
		RightColumns: []string{"scores.user"},
	})
	d.AddNode("group", &plan.Node{
		Kind:       plan.StepAggregate,
		GroupBy:    []*expression.Node{expression.NewIdentifier("users.team", "users", "team")},
		Aggregates: []*expression.Node{sum},
	})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("users", "join", plan.LabelLeft)
	d.AddEdge("scores", "join", plan.LabelRight)
	d.AddEdge("join", "group", plan.LabelNone)
	d.AddEdge("group", "exit", plan.LabelNone)

	ctx := sql.NewEmptyContext()
	iter, _, err := NewDefault().Execute(ctx, d)
	require.NoError(err)
	rows := allRows(t, ctx, iter)
	require.ElementsMatch([][]interface{}{
		{"red", int64(30)},
		{"blue", int64(7)},
	}, rows)
}

func TestUnknownHintWarns(t *testing.T) {
	require := require.New(t)
	table := numbersTable(1)
	conn := memory.NewConnector("mem").AddTable(table)

	d := plan.NewDag()
	d.AddNode("scan", scanNode(table, conn))
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "exit", plan.LabelNone)

	ctx := sql.NewEmptyContext()
	ctx.Props.Hints = []string{"NO_CASH"}
	iter, _, err := NewDefault().Execute(ctx, d)
	require.NoError(err)
	_ = allRows(t, ctx, iter)

	messages := ctx.Stats.Messages()
	require.Len(messages, 1)
	require.Contains(messages[0], "NO_CACHE")
}

func TestSetVariableIsNonTabular(t *testing.T) {
	require := require.New(t)
	d := plan.NewDag()
	d.AddNode("set", &plan.Node{Kind: plan.StepSet, Variable: "team", Value: "red"})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("set", "exit", plan.LabelNone)

	ctx := sql.NewEmptyContext()
	iter, resultType, err := NewDefault().Execute(ctx, d)
	require.NoError(err)
	require.Equal(sql.NonTabular, resultType)
	rows := allRows(t, ctx, iter)
	require.Len(rows, 1)
	v, ok := ctx.Props.Variable("team")
	require.True(ok)
	require.Equal("red", v)
}

func TestExplainDescribesPlan(t *testing.T) {
	require := require.New(t)
	table := numbersTable(10)
	conn := memory.NewConnector("mem").AddTable(table)

	d := plan.NewDag()
	d.AddNode("scan", scanNode(table, conn))
	d.AddNode("filter", &plan.Node{
		Kind: plan.StepFilter,
		Condition: expression.NewComparison(expression.OpGt,
			expression.NewIdentifier("numbers.n", "numbers", "n"),
			expression.NewLiteral(int64(5), sql.Integer)),
	})
	d.AddNode("explain", &plan.Node{Kind: plan.StepExplain})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "filter", plan.LabelNone)
	d.AddEdge("filter", "explain", plan.LabelNone)
	d.AddEdge("explain", "exit", plan.LabelNone)

	ctx := sql.NewEmptyContext()
	iter, resultType, err := NewDefault().Execute(ctx, d)
	require.NoError(err)
	require.Equal(sql.Tabular, resultType)
	rows := allRows(t, ctx, iter)
	require.NotEmpty(rows)

	var operators []string
	for _, row := range rows {
		operators = append(operators, fmt.Sprintf("%v", row[1]))
	}
	require.Contains(operators, "Filter")
	require.Contains(operators, "Reader")
}

// A cyclic plan is rejected before execution.
func TestCyclicPlanRejected(t *testing.T) {
	require := require.New(t)
	d := plan.NewDag()
	d.AddNode("a", &plan.Node{Kind: plan.StepFilter})
	d.AddNode("b", &plan.Node{Kind: plan.StepFilter})
	d.AddEdge("a", "b", plan.LabelNone)
	d.AddEdge("b", "a", plan.LabelNone)

	_, _, err := NewDefault().Execute(sql.NewEmptyContext(), d)
	require.Error(err)
	require.True(sql.ErrInvalidInternalState.Is(err))
}
