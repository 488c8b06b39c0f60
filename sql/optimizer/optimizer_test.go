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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestreldb/kestrel/memory"
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
)

func identifier(identity, source, name string) *expression.Node {
	return expression.NewIdentifier(identity, source, name)
}

func intLiteral(v int64) *expression.Node {
	return expression.NewLiteral(v, sql.Integer)
}

func scanNode(relation string, conn *memory.Connector, columns ...string) *plan.Node {
	schema := make(sql.Schema, len(columns))
	for i, name := range columns {
		schema[i] = &sql.Column{Identity: relation + "." + name, Name: name, Source: relation, Type: sql.Integer}
	}
	return &plan.Node{Kind: plan.StepScan, Relation: relation, Schema: schema, Connector: conn}
}

func pushableConnector(t *testing.T, tables ...string) *memory.Connector {
	t.Helper()
	conn := memory.NewConnector("mem")
	for _, name := range tables {
		table := memory.NewTable(name, sql.Schema{
			{Identity: name + ".id", Name: "id", Source: name, Type: sql.Integer},
			{Identity: name + ".x", Name: "x", Source: name, Type: sql.Integer},
		})
		table.AcceptPredicates = true
		conn.AddTable(table)
	}
	return conn
}

// Scan(A) x Scan(B) with Filter A.id = B.id above the cross join promotes
// to an inner join carrying the condition, and the filter disappears.
func TestPushdownPromotesCrossJoinToInner(t *testing.T) {
	require := require.New(t)
	conn := pushableConnector(t, "A", "B")

	d := plan.NewDag()
	d.AddNode("scanA", scanNode("A", conn, "id", "x"))
	d.AddNode("scanB", scanNode("B", conn, "id", "x"))
	d.AddNode("join", &plan.Node{
		Kind:           plan.StepJoin,
		JoinType:       plan.JoinCross,
		LeftRelations:  []string{"A"},
		RightRelations: []string{"B"},
	})
	d.AddNode("filter", &plan.Node{
		Kind:      plan.StepFilter,
		Condition: expression.NewComparison(expression.OpEq, identifier("A.id", "A", "id"), identifier("B.id", "B", "id")),
	})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scanA", "join", plan.LabelLeft)
	d.AddEdge("scanB", "join", plan.LabelRight)
	d.AddEdge("join", "filter", plan.LabelNone)
	d.AddEdge("filter", "exit", plan.LabelNone)

	optimized, err := New().Optimize(sql.NewEmptyContext(), d)
	require.NoError(err)

	require.Empty(optimized.NodesOfKind(plan.StepFilter), "no filter node may remain")
	join := optimized.Get("join")
	require.Equal(plan.JoinInner, join.JoinType)
	require.NotNil(join.On)
	require.Equal(expression.OpEq, join.On.Value)
	require.Equal([]string{"A.id"}, join.LeftColumns)
	require.Equal([]string{"B.id"}, join.RightColumns)
}

// A filter on a scan that accepts Eq pushdown moves into the scan's
// predicate list and leaves no Filter node behind.
func TestPushdownIntoPushableScan(t *testing.T) {
	require := require.New(t)
	conn := pushableConnector(t, "T")

	d := plan.NewDag()
	d.AddNode("scan", scanNode("T", conn, "id", "x"))
	d.AddNode("filter", &plan.Node{
		Kind:      plan.StepFilter,
		Condition: expression.NewComparison(expression.OpEq, identifier("T.x", "T", "x"), intLiteral(5)),
	})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "filter", plan.LabelNone)
	d.AddEdge("filter", "exit", plan.LabelNone)

	optimized, err := New().Optimize(sql.NewEmptyContext(), d)
	require.NoError(err)

	require.Empty(optimized.NodesOfKind(plan.StepFilter))
	scan := optimized.Get("scan")
	require.Len(scan.Predicates, 1)
	require.Equal(expression.OpEq, scan.Predicates[0].Value)
}

// With ONLY_PUSH_EQUALS_PREDICATES, a Gt predicate stays in the plan as a
// filter directly above the scan.
func TestOnlyPushEqualsPredicates(t *testing.T) {
	require := require.New(t)
	conn := pushableConnector(t, "T")

	d := plan.NewDag()
	d.AddNode("scan", scanNode("T", conn, "id", "x"))
	d.AddNode("filter", &plan.Node{
		Kind:      plan.StepFilter,
		Condition: expression.NewComparison(expression.OpGt, identifier("T.x", "T", "x"), intLiteral(5)),
	})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "filter", plan.LabelNone)
	d.AddEdge("filter", "exit", plan.LabelNone)

	ctx := sql.NewEmptyContext()
	ctx.Props.Config.OnlyPushEqualsPredicates = true
	optimized, err := New().Optimize(ctx, d)
	require.NoError(err)

	require.Empty(optimized.Get("scan").Predicates)
	require.Len(optimized.NodesOfKind(plan.StepFilter), 1)
}

// `a > 1 AND b < 2 AND c = 3` splits, flattens, and orders by the weight
// table: the equality first.
func TestSplitFlattenAndOrderPredicates(t *testing.T) {
	require := require.New(t)
	conn := memory.NewConnector("mem")
	conn.AddTable(memory.NewTable("T", sql.Schema{
		{Identity: "T.a", Name: "a", Source: "T", Type: sql.Integer},
		{Identity: "T.b", Name: "b", Source: "T", Type: sql.Integer},
		{Identity: "T.c", Name: "c", Source: "T", Type: sql.Integer},
	}))

	condition := expression.NewAnd(
		expression.NewAnd(
			expression.NewComparison(expression.OpGt, identifier("T.a", "T", "a"), intLiteral(1)),
			expression.NewComparison(expression.OpLt, identifier("T.b", "T", "b"), intLiteral(2)),
		),
		expression.NewComparison(expression.OpEq, identifier("T.c", "T", "c"), intLiteral(3)),
	)

	d := plan.NewDag()
	scan := scanNode("T", conn, "a", "b", "c")
	d.AddNode("scan", scan)
	d.AddNode("filter", &plan.Node{Kind: plan.StepFilter, Condition: condition})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "filter", plan.LabelNone)
	d.AddEdge("filter", "exit", plan.LabelNone)

	optimized, err := New().Optimize(sql.NewEmptyContext(), d)
	require.NoError(err)

	filters := optimized.NodesOfKind(plan.StepFilter)
	require.Len(filters, 1, "consecutive filters flatten into one")
	merged := optimized.Get(filters[0])
	require.Len(merged.ConditionList, 3)
	require.Equal("T.c = 3", expression.Format(merged.ConditionList[0]))
	require.Equal("T.a > 1", expression.Format(merged.ConditionList[1]))
	require.Equal("T.b < 2", expression.Format(merged.ConditionList[2]))
	require.Equal(5, merged.ConditionList[0].Weight)
}

// Order followed by Limit with no offset fuses into a single HeapSort.
func TestSortLimitFusion(t *testing.T) {
	require := require.New(t)
	conn := pushableConnector(t, "T")

	d := plan.NewDag()
	d.AddNode("scan", scanNode("T", conn, "id", "x"))
	d.AddNode("order", &plan.Node{
		Kind:    plan.StepOrder,
		OrderBy: []plan.OrderField{{Expr: identifier("T.x", "T", "x"), Descending: true}},
	})
	d.AddNode("limit", &plan.Node{Kind: plan.StepLimit, Limit: plan.IntPtr(10)})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "order", plan.LabelNone)
	d.AddEdge("order", "limit", plan.LabelNone)
	d.AddEdge("limit", "exit", plan.LabelNone)

	optimized, err := New().Optimize(sql.NewEmptyContext(), d)
	require.NoError(err)

	require.Empty(optimized.NodesOfKind(plan.StepOrder))
	require.Empty(optimized.NodesOfKind(plan.StepLimit))
	fused := optimized.NodesOfKind(plan.StepHeapSort)
	require.Len(fused, 1)
	node := optimized.Get(fused[0])
	require.Equal(10, *node.Limit)
	require.Len(node.OrderBy, 1)
	require.True(node.OrderBy[0].Descending)
}

// An offset blocks the fusion.
func TestSortLimitWithOffsetDoesNotFuse(t *testing.T) {
	require := require.New(t)
	conn := pushableConnector(t, "T")

	d := plan.NewDag()
	d.AddNode("scan", scanNode("T", conn, "id", "x"))
	d.AddNode("order", &plan.Node{
		Kind:    plan.StepOrder,
		OrderBy: []plan.OrderField{{Expr: identifier("T.x", "T", "x")}},
	})
	d.AddNode("limit", &plan.Node{Kind: plan.StepLimit, Limit: plan.IntPtr(10), Offset: 5})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "order", plan.LabelNone)
	d.AddEdge("order", "limit", plan.LabelNone)
	d.AddEdge("limit", "exit", plan.LabelNone)

	optimized, err := New().Optimize(sql.NewEmptyContext(), d)
	require.NoError(err)
	require.Empty(optimized.NodesOfKind(plan.StepHeapSort))
	require.Len(optimized.NodesOfKind(plan.StepOrder), 1)
}

func TestBooleanSimplification(t *testing.T) {
	require := require.New(t)
	tests := []struct {
		name     string
		in       *expression.Node
		expected string
	}{
		{
			"double negation",
			expression.NewUnary(expression.OpNot,
				expression.NewUnary(expression.OpNot,
					expression.NewComparison(expression.OpEq, identifier("T.x", "T", "x"), intLiteral(1)))),
			"T.x = 1",
		},
		{
			"comparison inversion",
			expression.NewUnary(expression.OpNot,
				expression.NewComparison(expression.OpLt, identifier("T.x", "T", "x"), intLiteral(1))),
			"T.x >= 1",
		},
		{
			"de morgan over OR",
			expression.NewUnary(expression.OpNot,
				expression.NewOr(
					expression.NewComparison(expression.OpEq, identifier("T.x", "T", "x"), intLiteral(1)),
					expression.NewComparison(expression.OpGt, identifier("T.y", "T", "y"), intLiteral(2)))),
			"T.x != 1 AND T.y <= 2",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(test.expected, expression.Format(simplifyNegations(test.in)))
		})
	}
}

func TestConstantFolding(t *testing.T) {
	require := require.New(t)
	folded, err := foldConstants(expression.NewComparison(expression.OpEq, intLiteral(1), intLiteral(0)))
	require.NoError(err)
	require.True(folded.IsLiteralBool(false))

	// literal-only folds are a fixed point
	again, err := foldConstants(folded)
	require.NoError(err)
	require.Equal(folded, again)

	sum, err := foldConstants(expression.NewBinary(expression.OpPlus, intLiteral(2), intLiteral(3)))
	require.NoError(err)
	require.Equal(int64(5), sum.LiteralValue)

	isNull, err := foldConstants(expression.NewUnary(expression.OpIsNull, expression.NewLiteral(nil, sql.Null)))
	require.NoError(err)
	require.Equal(true, isNull.LiteralValue)

	nested, err := foldConstants(expression.NewNested(intLiteral(7)))
	require.NoError(err)
	require.Equal(expression.KindLiteral, nested.Kind)
}

func TestRewriteInWithSingle(t *testing.T) {
	require := require.New(t)
	in := expression.NewComparison(expression.OpInList,
		identifier("T.x", "T", "x"),
		expression.NewLiteral([]interface{}{int64(5)}, sql.Array))
	out := rewriteSingleIn(in)
	require.Equal(expression.OpEq, out.Value)
	require.Equal(int64(5), out.Right.LiteralValue)

	multi := expression.NewComparison(expression.OpInList,
		identifier("T.x", "T", "x"),
		expression.NewLiteral([]interface{}{int64(5), int64(6)}, sql.Array))
	require.Equal(expression.OpInList, rewriteSingleIn(multi).Value)

	notIn := expression.NewComparison(expression.OpNotInList,
		identifier("T.x", "T", "x"),
		expression.NewLiteral([]interface{}{int64(9)}, sql.Array))
	require.Equal(expression.OpNotEq, rewriteSingleIn(notIn).Value)
}

// Optimization is a fixed point: a second run changes nothing.
func TestOptimizeIsIdempotent(t *testing.T) {
	require := require.New(t)
	conn := pushableConnector(t, "T")

	d := plan.NewDag()
	d.AddNode("scan", scanNode("T", conn, "id", "x"))
	d.AddNode("filter", &plan.Node{
		Kind: plan.StepFilter,
		Condition: expression.NewAnd(
			expression.NewComparison(expression.OpGt, identifier("T.x", "T", "x"), intLiteral(1)),
			expression.NewComparison(expression.OpNotEq, identifier("T.id", "T", "id"), intLiteral(0)),
		),
	})
	d.AddNode("order", &plan.Node{
		Kind:    plan.StepOrder,
		OrderBy: []plan.OrderField{{Expr: identifier("T.x", "T", "x")}},
	})
	d.AddNode("limit", &plan.Node{Kind: plan.StepLimit, Limit: plan.IntPtr(3)})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "filter", plan.LabelNone)
	d.AddEdge("filter", "order", plan.LabelNone)
	d.AddEdge("order", "limit", plan.LabelNone)
	d.AddEdge("limit", "exit", plan.LabelNone)

	ctx := sql.NewEmptyContext()
	once, err := New().Optimize(ctx, d)
	require.NoError(err)
	twice, err := New().Optimize(ctx, once)
	require.NoError(err)
	require.Equal(once.Draw(), twice.Draw())
}

// Optimization preserves acyclicity for every strategy.
func TestOptimizePreservesAcyclicity(t *testing.T) {
	require := require.New(t)
	conn := pushableConnector(t, "A", "B")

	d := plan.NewDag()
	d.AddNode("scanA", scanNode("A", conn, "id", "x"))
	d.AddNode("scanB", scanNode("B", conn, "id", "x"))
	d.AddNode("join", &plan.Node{
		Kind:           plan.StepJoin,
		JoinType:       plan.JoinCross,
		LeftRelations:  []string{"A"},
		RightRelations: []string{"B"},
	})
	d.AddNode("filter", &plan.Node{
		Kind:      plan.StepFilter,
		Condition: expression.NewComparison(expression.OpGt, identifier("A.x", "A", "x"), intLiteral(0)),
	})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scanA", "join", plan.LabelLeft)
	d.AddEdge("scanB", "join", plan.LabelRight)
	d.AddEdge("join", "filter", plan.LabelNone)
	d.AddEdge("filter", "exit", plan.LabelNone)

	optimized, err := New().Optimize(sql.NewEmptyContext(), d)
	require.NoError(err)
	require.True(optimized.IsAcyclic())
}

// Complete must be safe on a context whose Visit never ran.
func TestCompleteWithoutVisitIsSafe(t *testing.T) {
	require := require.New(t)
	d := plan.NewDag()
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})

	for _, strategy := range New().Strategies() {
		t.Run(strategy.Name(), func(t *testing.T) {
			ctx := NewStrategyContext(d.Copy(), sql.NewQueryProperties())
			out, err := strategy.Complete(ctx, ctx.Plan)
			require.NoError(err)
			require.NotNil(out)
		})
	}
}

// Projection pushdown restricts the scan to the identities the plan uses.
func TestProjectionPushdown(t *testing.T) {
	require := require.New(t)
	conn := memory.NewConnector("mem")
	conn.AddTable(memory.NewTable("T", sql.Schema{
		{Identity: "T.a", Name: "a", Source: "T", Type: sql.Integer},
		{Identity: "T.b", Name: "b", Source: "T", Type: sql.Integer},
		{Identity: "T.c", Name: "c", Source: "T", Type: sql.Integer},
	}))

	d := plan.NewDag()
	d.AddNode("scan", scanNode("T", conn, "a", "b", "c"))
	d.AddNode("project", &plan.Node{
		Kind:    plan.StepProject,
		Columns: []*expression.Node{identifier("T.a", "T", "a")},
	})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "project", plan.LabelNone)
	d.AddEdge("project", "exit", plan.LabelNone)

	optimized, err := New().Optimize(sql.NewEmptyContext(), d)
	require.NoError(err)
	schema := optimized.Get("scan").Schema
	require.Len(schema, 1)
	require.Equal("T.a", schema[0].Identity)
}
