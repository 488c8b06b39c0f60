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

// Package physical maps an optimized logical plan onto physical operators.
// The translation is structural: each logical node becomes one operator
// with the same edges; join specialization, Reader/AsyncReader selection,
// and the NullReader short-circuit are decided here and nothing is
// reordered.
package physical

import (
	"math"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/batchexec"
	"github.com/kestreldb/kestrel/sql/connector"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
	"github.com/kestreldb/kestrel/sql/pool"
)

// Plan is the physical plan: the logical graph's edges with an operator per
// node. The executor never rewrites its structure.
type Plan struct {
	Graph *plan.Dag
	Ops   map[string]batchexec.Operator
}

// Operator returns the operator at a node id.
func (p *Plan) Operator(id string) batchexec.Operator {
	return p.Ops[id]
}

// ExitPoint returns the unique exit node id.
func (p *Plan) ExitPoint() (string, error) {
	exits := p.Graph.GetExitPoints()
	if len(exits) != 1 {
		return "", sql.ErrInvalidInternalState.New("query plan does not have exactly one head")
	}
	return exits[0], nil
}

// PumpNodes returns the source nodes in left-before-right DFS order.
func (p *Plan) PumpNodes() []string {
	var out []string
	for _, id := range p.Graph.DepthFirstSearchFlat() {
		if _, ok := p.Ops[id].(batchexec.SourceOperator); ok {
			out = append(out, id)
		}
	}
	return out
}

// Planner builds physical plans.
type Planner struct {
	ev      expression.Evaluator
	memPool *pool.MemoryPool
}

func NewPlanner(ev expression.Evaluator, memPool *pool.MemoryPool) *Planner {
	return &Planner{ev: ev, memPool: memPool}
}

// Plan translates an optimized logical plan.
func (pl *Planner) Plan(ctx *sql.Context, logical *plan.Dag) (*Plan, error) {
	if !logical.IsAcyclic() {
		return nil, sql.ErrInvalidInternalState.New("cannot plan a cyclic graph")
	}
	graph := logical.Copy()

	// a filter proved false at plan time replaces its whole subplan with a
	// NullReader of the scan's restricted schema
	nullReaders := make(map[string]sql.Schema)
	for _, id := range graph.NodesOfKind(plan.StepFilter) {
		node := graph.Get(id)
		if !provablyFalse(node) {
			continue
		}
		schema := upstreamScanSchema(graph, id)
		if schema == nil {
			continue
		}
		graph.RemoveUpstream(id)
		nullReaders[id] = schema
	}

	ops := make(map[string]batchexec.Operator, graph.Len())
	for _, id := range graph.NodeIDs() {
		if schema, ok := nullReaders[id]; ok {
			ops[id] = batchexec.NewNullReader(schema)
			continue
		}
		op, err := pl.operatorFor(ctx, graph, id, graph.Get(id))
		if err != nil {
			return nil, err
		}
		ops[id] = op
	}
	return &Plan{Graph: graph, Ops: ops}, nil
}

func (pl *Planner) operatorFor(ctx *sql.Context, graph *plan.Dag, id string, node *plan.Node) (batchexec.Operator, error) {
	cfg := ctx.Config()
	switch node.Kind {
	case plan.StepScan:
		if node.Connector == nil {
			return nil, sql.ErrDatasetNotFound.New(node.Relation)
		}
		if blobs, ok := node.Connector.(connector.AsyncBlobReader); ok {
			memPool := pl.memPool
			if memPool == nil {
				memPool = pool.NewMemoryPool(int64(cfg.MaxReadBufferCapacity))
			}
			return batchexec.NewAsyncReader(node.Relation, node.Schema, blobs, memPool), nil
		}
		return batchexec.NewReader(node.Relation, node.Schema, node.Connector, node.Predicates), nil

	case plan.StepValues:
		return batchexec.NewValuesSource(node.Schema, node.Rows), nil

	case plan.StepGenerateSeries:
		return pl.seriesSource(node, cfg.InternalBatchSize)

	case plan.StepFake:
		return batchexec.NewFakeSource(node.Schema, len(node.Rows), cfg.InternalBatchSize), nil

	case plan.StepFunctionDataset:
		switch node.Function {
		case "GENERATE_SERIES":
			return pl.seriesSource(node, cfg.InternalBatchSize)
		case "FAKE":
			return batchexec.NewFakeSource(node.Schema, len(node.Rows), cfg.InternalBatchSize), nil
		default:
			return nil, sql.ErrUnsupportedSyntax.New("function dataset " + node.Function)
		}

	case plan.StepFilter:
		conditions := node.ConditionList
		if conditions == nil && node.Condition != nil {
			conditions = []*expression.Node{node.Condition}
		}
		return batchexec.NewFilter(conditions, pl.ev), nil

	case plan.StepProject:
		return batchexec.NewProjection(node.Columns, pl.ev), nil

	case plan.StepUnion:
		return batchexec.NewUnion(len(graph.IngoingEdges(id))), nil

	case plan.StepDifference:
		return nil, sql.ErrUnsupportedSyntax.New("DIFFERENCE")

	case plan.StepJoin:
		return pl.joinOperator(node, cfg)

	case plan.StepGroup, plan.StepAggregate:
		if len(node.GroupBy) == 0 {
			return batchexec.NewSimpleAggregate(node.Aggregates, pl.ev)
		}
		groupBy, err := resolvePositional(node.GroupBy, node.Columns)
		if err != nil {
			return nil, err
		}
		return batchexec.NewAggregateAndGroup(groupBy, node.Aggregates, pl.ev, cfg.AggregateBufferSize)

	case plan.StepOrder:
		return batchexec.NewSort(node.OrderBy, pl.ev), nil

	case plan.StepHeapSort:
		if node.Limit == nil {
			return nil, sql.ErrInvalidInternalState.New("heap sort without a limit")
		}
		return batchexec.NewHeapSort(node.OrderBy, *node.Limit, pl.ev), nil

	case plan.StepLimit:
		limit := math.MaxInt32
		if node.Limit != nil {
			limit = *node.Limit
		}
		return batchexec.NewLimit(limit, node.Offset), nil

	case plan.StepDistinct:
		var on []string
		for _, expr := range node.DistinctOn {
			if expr.Kind == expression.KindIdentifier {
				on = append(on, expr.Identity)
			}
		}
		return batchexec.NewDistinct(on), nil

	case plan.StepUnnest:
		return batchexec.NewUnnestJoin(node.UnnestColumn, node.UnnestTarget, pl.ev), nil

	case plan.StepCTE, plan.StepSubquery:
		return batchexec.NewNoop(), nil

	case plan.StepExit:
		return batchexec.NewExit(), nil

	case plan.StepExplain:
		return batchexec.NewExplain(node.Analyze), nil

	case plan.StepSet:
		return batchexec.NewSetVariable(node.Variable, node.Value), nil

	case plan.StepShow:
		if node.ShowKind == "CREATE" {
			return batchexec.NewShowCreate(node.Relation, node.Schema), nil
		}
		return batchexec.NewShowValue(node.Variable), nil

	case plan.StepShowColumns:
		return batchexec.NewShowColumns(node.Relation, node.Schema), nil
	}
	return nil, sql.ErrUnsupportedSyntax.New("plan step " + node.Kind.String())
}

func (pl *Planner) joinOperator(node *plan.Node, cfg *sql.Config) (batchexec.Operator, error) {
	switch node.JoinType {
	case plan.JoinCross:
		if node.UnnestColumn != nil {
			return batchexec.NewUnnestJoin(node.UnnestColumn, node.UnnestTarget, pl.ev), nil
		}
		return batchexec.NewCrossJoin(cfg.MaxJoinSize), nil
	case plan.JoinSemi, plan.JoinAnti:
		return batchexec.NewFilterJoin(node.JoinType, node.LeftColumns, node.RightColumns), nil
	case plan.JoinInner, plan.JoinLeftOuter, plan.JoinRightOuter, plan.JoinFullOuter:
		if isEquiCondition(node.On) && len(node.LeftColumns) > 0 && len(node.LeftColumns) == len(node.RightColumns) {
			return batchexec.NewHashJoin(node.JoinType, node.LeftColumns, node.RightColumns), nil
		}
		if node.On == nil {
			return nil, sql.ErrSQL.New("join has no condition")
		}
		return batchexec.NewNestedLoopJoin(node.On, pl.ev, cfg.InternalBatchSize), nil
	}
	return nil, sql.ErrUnsupportedSyntax.New("join type " + node.JoinType.String())
}

func (pl *Planner) seriesSource(node *plan.Node, batchSize int) (batchexec.Operator, error) {
	args := make([]int64, 0, 3)
	for _, arg := range node.Args {
		if arg.Kind != expression.KindLiteral {
			return nil, sql.ErrSQL.New("GENERATE_SERIES arguments must be literals")
		}
		v, ok := arg.LiteralValue.(int64)
		if !ok {
			return nil, sql.ErrSQL.New("GENERATE_SERIES arguments must be integers")
		}
		args = append(args, v)
	}
	if len(args) < 2 {
		return nil, sql.ErrSQL.New("GENERATE_SERIES requires start and stop")
	}
	step := int64(1)
	if len(args) > 2 {
		step = args[2]
	}
	column := &sql.Column{Identity: "$series", Name: "value", Type: sql.Integer}
	if len(node.Schema) == 1 {
		column = node.Schema[0]
	}
	return batchexec.NewSeriesSource(column, args[0], args[1], step, batchSize)
}

// isEquiCondition reports whether a join condition is a pure conjunction of
// identifier equalities.
func isEquiCondition(on *expression.Node) bool {
	if on == nil {
		return false
	}
	switch on.Kind {
	case expression.KindAnd:
		return isEquiCondition(on.Left) && isEquiCondition(on.Right)
	case expression.KindNested:
		return isEquiCondition(on.Centre)
	case expression.KindComparison:
		return on.Value == expression.OpEq &&
			on.Left != nil && on.Left.Kind == expression.KindIdentifier &&
			on.Right != nil && on.Right.Kind == expression.KindIdentifier
	}
	return false
}

// resolvePositional maps GROUP BY ordinals onto the projection list.
func resolvePositional(groupBy, columns []*expression.Node) ([]*expression.Node, error) {
	out := make([]*expression.Node, len(groupBy))
	for i, expr := range groupBy {
		if expr.Kind == expression.KindLiteral && expr.LiteralType == sql.Integer {
			pos, ok := expr.LiteralValue.(int64)
			if !ok || pos < 1 || int(pos) > len(columns) {
				return nil, sql.ErrSQL.New("GROUP BY position is out of range")
			}
			out[i] = columns[pos-1]
			continue
		}
		out[i] = expr
	}
	return out, nil
}

// provablyFalse reports whether folding reduced any of the filter's
// conditions to the boolean literal false.
func provablyFalse(node *plan.Node) bool {
	if node.Condition.IsLiteralBool(false) {
		return true
	}
	for _, condition := range node.ConditionList {
		if condition.IsLiteralBool(false) {
			return true
		}
	}
	return false
}

// upstreamScanSchema finds the restricted schema of the scan feeding a
// node, if any.
func upstreamScanSchema(graph *plan.Dag, id string) sql.Schema {
	for _, e := range graph.IngoingEdges(id) {
		node := graph.Get(e.Source)
		if node == nil {
			continue
		}
		switch node.Kind {
		case plan.StepScan, plan.StepFunctionDataset, plan.StepValues, plan.StepFake:
			return node.Schema
		}
		if schema := upstreamScanSchema(graph, e.Source); schema != nil {
			return schema
		}
	}
	return nil
}
