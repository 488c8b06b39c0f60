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
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/batchexec"
	"github.com/kestreldb/kestrel/sql/physical"
	"github.com/kestreldb/kestrel/sql/plan"
)

// task is one (node, morsel) unit of work tracked by morsel accounting.
type task struct {
	morsel *sql.Batch
	leg    plan.EdgeLabel
}

// response is an operator emission routed back to the engine loop.
type response struct {
	node   string
	output *sql.Batch
	err    error
}

// nodeState serializes a node's work: one invocation in flight per node,
// morsels processed in arrival order per leg.
type nodeState struct {
	mu        sync.Mutex
	queue     []task
	scheduled bool
	exhausted bool
	morsels   int // queued or in flight inside this node
}

// executeParallel runs the plan over a fixed worker pool. Batches dispatch
// through a bounded work queue; per-node morsel accounting detects
// exhaustion, which propagates EOS downstream; errors surface through the
// response queue and abort the query on the engine goroutine.
func executeParallel(parent *sql.Context, p *physical.Plan) (sql.BatchIterator, sql.ResultType, error) {
	// the optimizer guarantees fan-in but never fan-out
	for _, id := range p.Graph.NodeIDs() {
		if len(p.Graph.OutgoingEdges(id)) > 1 {
			return nil, sql.Tabular, sql.ErrInvalidInternalState.New("cannot fork execution")
		}
	}

	runCtx, cancel := context.WithCancel(parent)
	ctx := *parent
	ctx.Context = runCtx

	run := &parallelRun{
		ctx:       &ctx,
		plan:      p,
		states:    make(map[string]*nodeState, p.Graph.Len()),
		workQueue: make(chan string, p.Graph.Len()*2),
		responses: make(chan response, 64),
	}
	for _, id := range p.Graph.NodeIDs() {
		run.states[id] = &nodeState{}
	}

	batches := make(chan *sql.Batch, 4)
	errs := make(chan error, 1)
	go func() {
		defer close(batches)
		if err := run.execute(batches); err != nil {
			errs <- err
		}
	}()
	return newStreamIterator(batches, errs, cancel), sql.Tabular, nil
}

type parallelRun struct {
	ctx  *sql.Context
	plan *physical.Plan

	mu        sync.Mutex
	states    map[string]*nodeState
	workQueue chan string
	responses chan response
	active    int64
}

func (r *parallelRun) execute(out chan<- *sql.Batch) error {
	workers := r.ctx.Config().ConcurrentWorkers
	if workers < 1 {
		workers = 1
	}
	group, groupCtx := errgroup.WithContext(context.Background())
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			r.worker(groupCtx)
			return nil
		})
	}

	err := r.mainLoop(out)

	close(r.workQueue)
	_ = group.Wait()
	if err != nil {
		return errors.Wrap(err, "parallel execution failed")
	}
	return nil
}

func (r *parallelRun) mainLoop(out chan<- *sql.Batch) error {
	// pumps drain first, in left-before-right DFS order
	for _, pumpID := range r.plan.PumpNodes() {
		source := r.plan.Operator(pumpID).(batchexec.SourceOperator)
		iter, err := source.Pump(r.ctx)
		if err != nil {
			return err
		}
		for {
			if cerr := r.ctx.Err(); cerr != nil {
				_ = iter.Close()
				return cerr
			}
			batch, err := iter.Next(r.ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				_ = iter.Close()
				return err
			}
			if len(r.plan.Graph.OutgoingEdges(pumpID)) == 0 {
				select {
				case out <- batch:
				case <-r.ctx.Done():
				}
				continue
			}
			r.routeDownstream(pumpID, batch)
		}
		if err := iter.Close(); err != nil {
			return err
		}
		r.markExhausted(pumpID)
	}

	var firstErr error
	for {
		if r.shouldStop() {
			break
		}
		select {
		case resp := <-r.responses:
			atomic.AddInt64(&r.active, -1)
			if resp.err != nil {
				if firstErr == nil {
					firstErr = resp.err
				}
				continue
			}
			if firstErr != nil {
				// an error aborts the query; remaining work is discarded
				continue
			}
			if len(r.plan.Graph.OutgoingEdges(resp.node)) == 0 {
				if !resp.output.IsEOS() {
					select {
					case out <- resp.output:
					case <-r.ctx.Done():
						firstErr = r.ctx.Err()
					}
				}
				continue
			}
			r.routeDownstream(resp.node, resp.output)
		case <-time.After(10 * time.Millisecond):
		}
		if r.ctx.Err() != nil && firstErr == nil {
			firstErr = r.ctx.Err()
		}
		if firstErr != nil && r.drained() {
			break
		}
	}
	return firstErr
}

// shouldStop reports full termination: queues empty, every node exhausted,
// no active work.
func (r *parallelRun) shouldStop() bool {
	if !r.drained() {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, st := range r.states {
		if !st.exhausted {
			return false
		}
	}
	return true
}

func (r *parallelRun) drained() bool {
	return atomic.LoadInt64(&r.active) == 0 && len(r.responses) == 0
}

// routeDownstream queues a morsel for every consumer of a node.
func (r *parallelRun) routeDownstream(id string, morsel *sql.Batch) {
	for _, edge := range r.plan.Graph.OutgoingEdges(id) {
		r.enqueue(edge.Target, morsel, edge.Label)
	}
}

func (r *parallelRun) enqueue(id string, morsel *sql.Batch, leg plan.EdgeLabel) {
	st := r.states[id]
	st.mu.Lock()
	st.queue = append(st.queue, task{morsel: morsel, leg: leg})
	st.morsels++
	schedule := !st.scheduled
	st.scheduled = true
	st.mu.Unlock()
	atomic.AddInt64(&r.active, 1)
	if schedule {
		r.workQueue <- id
	}
}

// worker drains one node at a time, keeping exactly one invocation in
// flight per node and preserving per-leg arrival order.
func (r *parallelRun) worker(groupCtx context.Context) {
	for id := range r.workQueue {
		st := r.states[id]
		for {
			st.mu.Lock()
			if len(st.queue) == 0 {
				st.scheduled = false
				st.mu.Unlock()
				break
			}
			item := st.queue[0]
			st.queue = st.queue[1:]
			st.mu.Unlock()

			r.process(id, st, item)

			select {
			case <-groupCtx.Done():
				return
			default:
			}
		}
	}
}

func (r *parallelRun) process(id string, st *nodeState, item task) {
	cancelled := r.ctx.Err() != nil
	if cancelled && !item.morsel.IsEOS() {
		// pending batches are discarded on cancel; EOS still runs so
		// operators finalize
		r.finishTask(id, st)
		return
	}
	outputs, err := batchexec.Invoke(r.ctx, r.plan.Operator(id), item.morsel, item.leg)
	if err != nil {
		atomic.AddInt64(&r.active, 1)
		r.responses <- response{node: id, err: err}
		r.finishTask(id, st)
		return
	}
	for _, output := range outputs {
		if output == nil {
			continue
		}
		atomic.AddInt64(&r.active, 1)
		r.responses <- response{node: id, output: output}
	}
	r.finishTask(id, st)
}

// finishTask settles one morsel's accounting and checks for exhaustion.
func (r *parallelRun) finishTask(id string, st *nodeState) {
	st.mu.Lock()
	st.morsels--
	drained := st.morsels == 0
	invalid := st.morsels < 0
	st.mu.Unlock()
	atomic.AddInt64(&r.active, -1)
	if invalid {
		atomic.AddInt64(&r.active, 1)
		r.responses <- response{node: id, err: sql.ErrInvalidInternalState.New("morsel accounting drifted negative")}
		return
	}
	if drained && r.allParentsExhausted(id) {
		r.markExhausted(id)
	}
}

func (r *parallelRun) allParentsExhausted(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, edge := range r.plan.Graph.IngoingEdges(id) {
		if !r.states[edge.Source].exhausted {
			return false
		}
	}
	return true
}

// markExhausted flags a node done and queues EOS to each consumer whose
// legs this node fed. The EOS task itself counts in the consumer's
// accounting, so exhaustion cascades only after finalization ran.
func (r *parallelRun) markExhausted(id string) {
	r.mu.Lock()
	st := r.states[id]
	if st.exhausted {
		r.mu.Unlock()
		return
	}
	st.exhausted = true
	r.mu.Unlock()

	for _, edge := range r.plan.Graph.OutgoingEdges(id) {
		r.enqueue(edge.Target, sql.EOS, edge.Label)
	}
}
