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

// Package kestrel is the query execution core of a SQL-on-columnar engine:
// it takes a bound logical plan, optimizes it, maps it onto physical
// operators, and drives those operators over columnar batches. Parsing and
// binding happen upstream; connectors feed the scans.
package kestrel

import (
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/execution"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/expression/eval"
	"github.com/kestreldb/kestrel/sql/optimizer"
	"github.com/kestreldb/kestrel/sql/physical"
	"github.com/kestreldb/kestrel/sql/plan"
	"github.com/kestreldb/kestrel/sql/pool"
)

// Config for the Engine.
type Config struct {
	// Parallel selects the worker-pool engine instead of the serial one.
	Parallel bool
	// Evaluator overrides the expression evaluator; nil uses the built-in.
	Evaluator expression.Evaluator
	// ReadBufferPool overrides the memory pool async readers use; nil
	// sizes one from the query configuration.
	ReadBufferPool *pool.MemoryPool
}

// Engine executes bound logical plans.
type Engine struct {
	Optimizer *optimizer.Optimizer
	Planner   *physical.Planner
	mode      execution.Mode
}

// New creates an Engine with custom configuration. Use NewDefault for the
// default settings.
func New(cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	ev := cfg.Evaluator
	if ev == nil {
		ev = eval.NewEvaluator()
	}
	mode := execution.Serial
	if cfg.Parallel {
		mode = execution.Parallel
	}
	return &Engine{
		Optimizer: optimizer.New(),
		Planner:   physical.NewPlanner(ev, cfg.ReadBufferPool),
		mode:      mode,
	}
}

// NewDefault creates an Engine with default settings: the built-in
// evaluator and the serial engine.
func NewDefault() *Engine {
	return New(nil)
}

// Execute optimizes a bound logical plan, maps it to physical operators,
// and runs it. The iterator is lazy; the caller drains and closes it.
func (e *Engine) Execute(ctx *sql.Context, bound *plan.Dag) (sql.BatchIterator, sql.ResultType, error) {
	sql.ValidateHints(ctx.Props.Hints, ctx.Stats)

	optimized, err := e.Optimize(ctx, bound)
	if err != nil {
		return nil, sql.Tabular, err
	}
	physicalPlan, err := e.Planner.Plan(ctx, optimized)
	if err != nil {
		return nil, sql.Tabular, err
	}
	return execution.Execute(ctx, physicalPlan, e.mode)
}

// Optimize runs the strategy pipeline only, returning the optimized
// logical plan.
func (e *Engine) Optimize(ctx *sql.Context, bound *plan.Dag) (*plan.Dag, error) {
	return e.Optimizer.Optimize(ctx, bound)
}
