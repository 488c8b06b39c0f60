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

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/batchexec"
	"github.com/kestreldb/kestrel/sql/physical"
	"github.com/kestreldb/kestrel/sql/plan"
)

// executeSerial drives the plan on a single goroutine: each pump's batches
// are pushed depth-first through the downstream operators, then a single
// EOS follows the same walk so every operator finalizes per input leg.
func executeSerial(parent *sql.Context, p *physical.Plan) (sql.BatchIterator, sql.ResultType, error) {
	runCtx, cancel := context.WithCancel(parent)
	ctx := *parent
	ctx.Context = runCtx

	batches := make(chan *sql.Batch, 4)
	errs := make(chan error, 1)

	run := &serialRun{ctx: &ctx, plan: p, out: batches}
	go func() {
		defer close(batches)
		if err := run.pumpAll(); err != nil {
			errs <- err
		}
	}()

	return newStreamIterator(batches, errs, cancel), sql.Tabular, nil
}

type serialRun struct {
	ctx  *sql.Context
	plan *physical.Plan
	out  chan<- *sql.Batch
}

func (s *serialRun) pumpAll() error {
	span, ctx := s.ctx.Span("execute")
	defer span.Finish()
	s.ctx = ctx

	for _, pumpID := range s.plan.PumpNodes() {
		source := s.plan.Operator(pumpID).(batchexec.SourceOperator)
		iter, err := source.Pump(s.ctx)
		if err != nil {
			return err
		}
		for {
			// cancellation is cooperative: checked between operator calls
			if err := s.ctx.Err(); err != nil {
				_ = iter.Close()
				// operators still see EOS so their finalization runs
				_ = s.forward(pumpID, sql.EOS)
				return err
			}
			batch, err := iter.Next(s.ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				_ = iter.Close()
				return err
			}
			if err := s.forward(pumpID, batch); err != nil {
				_ = iter.Close()
				return err
			}
		}
		if err := iter.Close(); err != nil {
			return err
		}
		if err := s.forward(pumpID, sql.EOS); err != nil {
			return err
		}
	}
	return nil
}

// forward hands a pump's output to each downstream operator with the label
// of the edge it travels. A pump that is itself the exit emits directly.
func (s *serialRun) forward(id string, morsel *sql.Batch) error {
	children := s.plan.Graph.OutgoingEdges(id)
	if len(children) == 0 {
		if !morsel.IsEOS() {
			select {
			case s.out <- morsel:
			case <-s.ctx.Done():
				return s.ctx.Err()
			}
		}
		return nil
	}
	for _, edge := range children {
		if err := s.processNode(edge.Target, morsel, edge.Label); err != nil {
			return err
		}
	}
	return nil
}

// processNode invokes one operator and pushes everything it produced
// further down the graph, depth-first. Exit emissions go to the caller.
func (s *serialRun) processNode(id string, morsel *sql.Batch, leg plan.EdgeLabel) error {
	if err := s.ctx.Err(); err != nil && !morsel.IsEOS() {
		return err
	}
	op := s.plan.Operator(id)
	outputs, err := batchexec.Invoke(s.ctx, op, morsel, leg)
	if err != nil {
		return err
	}
	children := s.plan.Graph.OutgoingEdges(id)
	for _, output := range outputs {
		if output == nil {
			continue
		}
		if len(children) == 0 {
			if !output.IsEOS() {
				select {
				case s.out <- output:
				case <-s.ctx.Done():
					return s.ctx.Err()
				}
			}
			continue
		}
		for _, edge := range children {
			if err := s.processNode(edge.Target, output, edge.Label); err != nil {
				return err
			}
		}
	}
	return nil
}
