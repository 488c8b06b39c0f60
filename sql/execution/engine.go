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

// Package execution drives physical plans. Two engines share one dispatch:
// a serial engine that walks operators depth-first on a single
// goroutine, and a parallel engine that fans batches across a
// bounded worker pool with per-node morsel accounting. Both produce
// byte-identical output for deterministic plans.
package execution

import (
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/batchexec"
	"github.com/kestreldb/kestrel/sql/physical"
)

// Mode selects the engine.
type Mode int

const (
	Serial Mode = iota
	Parallel
)

// Execute validates the plan, handles the non-streaming special cases
// (EXPLAIN, SET, SHOW), and otherwise hands the plan to the selected
// engine. The returned iterator is lazy; the caller drains it.
func Execute(ctx *sql.Context, p *physical.Plan, mode Mode) (sql.BatchIterator, sql.ResultType, error) {
	if !p.Graph.IsAcyclic() {
		return nil, sql.Tabular, sql.ErrInvalidInternalState.New("query plan is cyclic, cannot execute")
	}
	exitID, err := p.ExitPoint()
	if err != nil {
		return nil, sql.Tabular, err
	}

	if iter, resultType, handled, err := specialCase(ctx, p, exitID, mode); handled {
		return iter, resultType, err
	}

	if mode == Parallel {
		return executeParallel(ctx, p)
	}
	return executeSerial(ctx, p)
}

// specialCase intercepts plans whose head is not a streaming operator.
func specialCase(ctx *sql.Context, p *physical.Plan, exitID string, mode Mode) (sql.BatchIterator, sql.ResultType, bool, error) {
	head := p.Operator(exitID)
	if _, isExit := head.(*batchexec.Exit); isExit {
		producers := p.Graph.IngoingEdges(exitID)
		if len(producers) == 1 {
			head = p.Operator(producers[0].Source)
		}
	}

	switch op := head.(type) {
	case *batchexec.Explain:
		batch, err := explainBatch(ctx, p, op.Analyze, mode)
		if err != nil {
			return nil, sql.Tabular, true, err
		}
		return sql.NewSliceIterator(batch), sql.Tabular, true, nil
	case *batchexec.SetVariable:
		outputs, err := op.Execute(ctx, nil, "")
		if err != nil {
			return nil, sql.NonTabular, true, err
		}
		return sql.NewSliceIterator(outputs...), sql.NonTabular, true, nil
	case *batchexec.ShowValue:
		return runStandalone(ctx, op, true)
	case *batchexec.ShowCreate:
		return runStandalone(ctx, op, true)
	case *batchexec.ShowColumns:
		return runStandalone(ctx, op, true)
	}
	return nil, sql.Tabular, false, nil
}

func runStandalone(ctx *sql.Context, op batchexec.Operator, tabular bool) (sql.BatchIterator, sql.ResultType, bool, error) {
	resultType := sql.Tabular
	if !tabular {
		resultType = sql.NonTabular
	}
	outputs, err := op.Execute(ctx, nil, "")
	if err != nil {
		return nil, resultType, true, err
	}
	return sql.NewSliceIterator(outputs...), resultType, true, nil
}
