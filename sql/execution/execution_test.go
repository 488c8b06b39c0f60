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

package execution

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestreldb/kestrel/memory"
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/expression/eval"
	"github.com/kestreldb/kestrel/sql/physical"
	"github.com/kestreldb/kestrel/sql/plan"
)

func testPlan(t *testing.T, ctx *sql.Context, rows int) *physical.Plan {
	t.Helper()
	table := memory.NewTable("t", sql.Schema{
		{Identity: "t.n", Name: "n", Source: "t", Type: sql.Integer},
	})
	for i := 0; i < rows; i++ {
		table.Insert([]interface{}{int64(i)})
	}
	conn := memory.NewConnector("mem").WithBatchSize(16).AddTable(table)

	d := plan.NewDag()
	d.AddNode("scan", &plan.Node{Kind: plan.StepScan, Relation: "t", Schema: table.Schema(), Connector: conn})
	d.AddNode("filter", &plan.Node{
		Kind: plan.StepFilter,
		Condition: expression.NewComparison(expression.OpGtEq,
			expression.NewIdentifier("t.n", "t", "n"),
			expression.NewLiteral(int64(0), sql.Integer)),
	})
	d.AddNode("exit", &plan.Node{Kind: plan.StepExit})
	d.AddEdge("scan", "filter", plan.LabelNone)
	d.AddEdge("filter", "exit", plan.LabelNone)

	p, err := physical.NewPlanner(eval.NewEvaluator(), nil).Plan(ctx, d)
	require.NoError(t, err)
	return p
}

func drain(t *testing.T, ctx *sql.Context, iter sql.BatchIterator) int {
	t.Helper()
	defer iter.Close()
	total := 0
	for {
		batch, err := iter.Next(ctx)
		if err == io.EOF {
			return total
		}
		require.NoError(t, err)
		total += batch.NumRows()
	}
}

func TestSerialEngineDrains(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	iter, resultType, err := Execute(ctx, testPlan(t, ctx, 100), Serial)
	require.NoError(err)
	require.Equal(sql.Tabular, resultType)
	require.Equal(100, drain(t, ctx, iter))
}

func TestParallelEngineDrains(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	iter, _, err := Execute(ctx, testPlan(t, ctx, 100), Parallel)
	require.NoError(err)
	require.Equal(100, drain(t, ctx, iter))
}

func TestParallelEngineRejectsForks(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	p := testPlan(t, ctx, 1)
	// fork the scan to a second consumer
	p.Graph.AddNode("extra", &plan.Node{Kind: plan.StepExit})
	p.Graph.AddEdge("scan", "extra", plan.LabelNone)

	_, _, err := Execute(ctx, p, Parallel)
	require.Error(err)
	require.True(sql.ErrInvalidInternalState.Is(err))
}

func TestCancellationStopsTheWalk(t *testing.T) {
	require := require.New(t)
	cancelled, cancel := context.WithCancel(context.Background())
	ctx := sql.NewContext(cancelled)
	iter, _, err := Execute(ctx, testPlan(t, ctx, 10000), Serial)
	require.NoError(err)

	cancel()
	var lastErr error
	for i := 0; i < 10000; i++ {
		_, lastErr = iter.Next(ctx)
		if lastErr != nil {
			break
		}
	}
	require.Error(lastErr)
	require.NotEqual(io.EOF, lastErr)
	_ = iter.Close()
}

func TestIteratorCloseIsIdempotent(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	iter, _, err := Execute(ctx, testPlan(t, ctx, 50), Serial)
	require.NoError(err)
	require.NoError(iter.Close())
	require.NoError(iter.Close())
}
