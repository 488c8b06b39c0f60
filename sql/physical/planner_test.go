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

package physical

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestreldb/kestrel/memory"
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/batchexec"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/expression/eval"
	"github.com/kestreldb/kestrel/sql/plan"
)

func testConnector() (*memory.Connector, sql.Schema) {
	schema := sql.Schema{
		{Identity: "T.id", Name: "id", Source: "T", Type: sql.Integer},
		{Identity: "T.x", Name: "x", Source: "T", Type: sql.Integer},
	}
	conn := memory.NewConnector("mem").AddTable(memory.NewTable("T", schema))
	return conn, schema
}

func planOf(t *testing.T, d *plan.Dag) *Plan {
	t.Helper()
	p, err := NewPlanner(eval.NewEvaluator(), nil).Plan(sql.NewEmptyContext(), d)
	require.NoError(t, err)
	return p
}

func TestScanBecomesReader(t *testing.T) {
	require := require.New(t)
	conn, schema := testConnector()
	d := plan.NewDag()
	d.AddNode("scan", &plan.Node{Kind: plan.StepScan, Relation: "T", Schema: schema, Connector: conn})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "exit", plan.LabelNone)

	p := planOf(t, d)
	require.IsType(&batchexec.Reader{}, p.Operator("scan"))
	require.IsType(&batchexec.Exit{}, p.Operator("exit"))
	require.Equal([]string{"scan"}, p.PumpNodes())
}

func TestFilterFalseBecomesNullReader(t *testing.T) {
	require := require.New(t)
	conn, schema := testConnector()
	d := plan.NewDag()
	d.AddNode("scan", &plan.Node{Kind: plan.StepScan, Relation: "T", Schema: schema, Connector: conn})
	d.AddNode("filter", &plan.Node{
		Kind:      plan.StepFilter,
		Condition: expression.NewLiteral(false, sql.Boolean),
	})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "filter", plan.LabelNone)
	d.AddEdge("filter", "exit", plan.LabelNone)

	p := planOf(t, d)
	require.IsType(&batchexec.NullReader{}, p.Operator("filter"))
	require.False(p.Graph.Has("scan"), "the subplan below the contradiction is gone")
}

func TestJoinSpecialization(t *testing.T) {
	require := require.New(t)
	equi := expression.NewComparison(expression.OpEq,
		expression.NewIdentifier("A.id", "A", "id"),
		expression.NewIdentifier("B.id", "B", "id"))
	nonEqui := expression.NewComparison(expression.OpLt,
		expression.NewIdentifier("A.id", "A", "id"),
		expression.NewIdentifier("B.id", "B", "id"))

	tests := []struct {
		name     string
		node     *plan.Node
		expected interface{}
	}{
		{
			"equi inner becomes hash join",
			&plan.Node{Kind: plan.StepJoin, JoinType: plan.JoinInner, On: equi,
				LeftColumns: []string{"A.id"}, RightColumns: []string{"B.id"}},
			&batchexec.HashJoin{},
		},
		{
			"non-equi becomes nested loop",
			&plan.Node{Kind: plan.StepJoin, JoinType: plan.JoinInner, On: nonEqui},
			&batchexec.NestedLoopJoin{},
		},
		{
			"cross join",
			&plan.Node{Kind: plan.StepJoin, JoinType: plan.JoinCross},
			&batchexec.CrossJoin{},
		},
		{
			"cross join unnest",
			&plan.Node{Kind: plan.StepJoin, JoinType: plan.JoinCross,
				UnnestColumn: expression.NewIdentifier("A.tags", "A", "tags"),
				UnnestTarget: &sql.Column{Identity: "A.tag", Name: "tag", Type: sql.Varchar}},
			&batchexec.UnnestJoin{},
		},
		{
			"semi join",
			&plan.Node{Kind: plan.StepJoin, JoinType: plan.JoinSemi,
				LeftColumns: []string{"A.id"}, RightColumns: []string{"B.id"}},
			&batchexec.FilterJoin{},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			planner := NewPlanner(eval.NewEvaluator(), nil)
			op, err := planner.joinOperator(test.node, sql.NewConfig())
			require.NoError(err)
			require.IsType(test.expected, op)
		})
	}
}

func TestHeapSortMapping(t *testing.T) {
	require := require.New(t)
	conn, schema := testConnector()
	d := plan.NewDag()
	d.AddNode("scan", &plan.Node{Kind: plan.StepScan, Relation: "T", Schema: schema, Connector: conn})
	d.AddNode("heap", &plan.Node{
		Kind:    plan.StepHeapSort,
		Limit:   plan.IntPtr(5),
		OrderBy: []plan.OrderField{{Expr: expression.NewIdentifier("T.x", "T", "x")}},
	})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "heap", plan.LabelNone)
	d.AddEdge("heap", "exit", plan.LabelNone)

	p := planOf(t, d)
	require.IsType(&batchexec.HeapSort{}, p.Operator("heap"))
}

func TestPositionalGroupByResolved(t *testing.T) {
	require := require.New(t)
	columns := []*expression.Node{
		expression.NewIdentifier("T.id", "T", "id"),
		expression.NewIdentifier("T.x", "T", "x"),
	}
	groupBy := []*expression.Node{expression.NewLiteral(int64(2), sql.Integer)}

	resolved, err := resolvePositional(groupBy, columns)
	require.NoError(err)
	require.Equal("T.x", resolved[0].Identity)

	_, err = resolvePositional([]*expression.Node{expression.NewLiteral(int64(9), sql.Integer)}, columns)
	require.Error(err)
}

func TestDifferenceUnsupported(t *testing.T) {
	require := require.New(t)
	d := plan.NewDag()
	d.AddNode("diff", &plan.Node{Kind: plan.StepDifference})
	_, err := NewPlanner(eval.NewEvaluator(), nil).Plan(sql.NewEmptyContext(), d)
	require.Error(err)
	require.True(sql.ErrUnsupportedSyntax.Is(err))
}
