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

// Package optimizer rewrites logical plans through a fixed sequence of
// strategies. Each strategy is a (Visit, Complete) pair driven over a
// depth-first traversal from the exit toward the entries; each receives its
// own context while the optimized plan carries across strategies.
package optimizer

import (
	"strings"

	"github.com/google/uuid"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/plan"
)

// CollectedPredicate is a filter lifted out of the plan during pushdown,
// remembering where it came from so Complete can put it back.
type CollectedPredicate struct {
	// NodeID is the filter's original node id, reused on re-insertion.
	NodeID string
	// Node is the filter payload.
	Node *plan.Node
	// ChildID is the node the filter consumed.
	ChildID string
	// PlanPath is the path from the filter toward the exit at collection
	// time.
	PlanPath []string
}

// Context carries one strategy's working state across Visit calls.
type Context struct {
	// Plan is the optimized plan being rewritten.
	Plan *plan.Dag
	// Props carries the query configuration strategies consult.
	Props *sql.QueryProperties
	// Collected accumulates predicates in motion during pushdown.
	Collected []*CollectedPredicate
	// Identities accumulates column demands during projection pushdown.
	Identities map[string]struct{}
	// run groups consecutive filters during plan flattening.
	run []string
}

// NewStrategyContext builds an empty context over a plan. Complete must be
// safe to call on a context whose Visit was never invoked.
func NewStrategyContext(p *plan.Dag, props *sql.QueryProperties) *Context {
	return &Context{Plan: p, Props: props, Identities: make(map[string]struct{})}
}

// Strategy is one rewriting pass. Visit is called once per surviving node
// in exit-to-entry depth-first order; Complete flushes deferred decisions.
// Strategies must be idempotent: re-running on a fixed point changes
// nothing.
type Strategy interface {
	Name() string
	Visit(ctx *Context, id string, node *plan.Node) error
	Complete(ctx *Context, p *plan.Dag) (*plan.Dag, error)
}

// Optimizer applies strategies in a fixed sequence.
type Optimizer struct {
	strategies []Strategy
}

// New builds the optimizer with the canonical strategy order.
func New() *Optimizer {
	return &Optimizer{strategies: []Strategy{
		&SplitConjunctivePredicates{},
		&BooleanSimplification{},
		&ConstantFolding{},
		&FixedFunctionElimination{},
		&RewriteInWithSingleComparator{},
		&PredicatePushdown{},
		&FlattenPlan{},
		&ProjectionPushdown{},
		&OperatorFusion{},
		&PredicateTagging{},
	}}
}

// Strategies exposes the configured sequence, mainly for tests.
func (o *Optimizer) Strategies() []Strategy {
	return o.strategies
}

// Optimize runs every strategy over a copy of the plan and returns the
// optimized plan. The input plan is never mutated.
func (o *Optimizer) Optimize(ctx *sql.Context, p *plan.Dag) (*plan.Dag, error) {
	if !p.IsAcyclic() {
		return nil, sql.ErrInvalidInternalState.New("cannot optimize a cyclic plan")
	}
	span, ctx := ctx.Span("optimize")
	defer span.Finish()

	current := p.Copy()
	for _, strategy := range o.strategies {
		sctx := NewStrategyContext(current, ctx.Props)
		for _, id := range current.DepthFirstSearchFlat() {
			if !sctx.Plan.Has(id) {
				continue
			}
			if err := strategy.Visit(sctx, id, sctx.Plan.Get(id)); err != nil {
				return nil, err
			}
		}
		next, err := strategy.Complete(sctx, sctx.Plan)
		if err != nil {
			return nil, err
		}
		if !next.IsAcyclic() {
			return nil, sql.ErrInvalidInternalState.New("strategy " + strategy.Name() + " produced a cyclic plan")
		}
		current = next
		ctx.Stats.Add("optimizer_"+strings.ToLower(strategy.Name()), 1)
	}
	return current, nil
}

// newNodeID mints an id for optimizer-introduced nodes.
func newNodeID() string {
	return uuid.NewString()[:8]
}
