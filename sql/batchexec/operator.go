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

// Package batchexec implements the physical operators. Operators exchange
// immutable columnar batches; every operator receives a batch (or the EOS
// sentinel) with the label of the edge it arrived on, and produces zero or
// more outputs. An operator that has seen EOS on every input leg emits EOS
// exactly once.
package batchexec

import (
	"sync/atomic"
	"time"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/plan"
)

// Sensors is the common instrumentation header every operator carries.
// Counters are updated by Invoke and read by EXPLAIN ANALYZE.
type Sensors struct {
	Calls         int64
	RecordsIn     int64
	BytesIn       int64
	RecordsOut    int64
	BytesOut      int64
	ExecutionTime int64
}

// Operator is the contract every physical operator satisfies. Stateless
// operators may be invoked on disjoint batches concurrently; stateful ones
// have exactly one invocation in flight.
type Operator interface {
	Name() string
	Config() string
	Stateless() bool
	Sensors() *Sensors
	Execute(ctx *sql.Context, morsel *sql.Batch, leg plan.EdgeLabel) ([]*sql.Batch, error)
}

// SourceOperator additionally pumps batches into the plan; the engine
// drives its iterator rather than calling Execute.
type SourceOperator interface {
	Operator
	Pump(ctx *sql.Context) (sql.BatchIterator, error)
}

// Invoke calls an operator with sensor accounting around the call: inputs
// are counted before, outputs and elapsed nanoseconds after.
func Invoke(ctx *sql.Context, op Operator, morsel *sql.Batch, leg plan.EdgeLabel) ([]*sql.Batch, error) {
	sensors := op.Sensors()
	if morsel != nil && !morsel.IsEOS() {
		atomic.AddInt64(&sensors.RecordsIn, int64(morsel.NumRows()))
		atomic.AddInt64(&sensors.BytesIn, int64(morsel.NumBytes()))
		atomic.AddInt64(&sensors.Calls, 1)
	}
	start := time.Now()
	outputs, err := op.Execute(ctx, morsel, leg)
	atomic.AddInt64(&sensors.ExecutionTime, time.Since(start).Nanoseconds())
	if err != nil {
		return nil, err
	}
	for _, out := range outputs {
		if out != nil && !out.IsEOS() {
			atomic.AddInt64(&sensors.RecordsOut, int64(out.NumRows()))
			atomic.AddInt64(&sensors.BytesOut, int64(out.NumBytes()))
		}
	}
	return outputs, nil
}

// base carries the sensor header; operators embed it.
type base struct {
	sensors Sensors
}

func (b *base) Sensors() *Sensors {
	return &b.sensors
}

func (b *base) Stateless() bool {
	return false
}

func (b *base) Config() string {
	return ""
}

// legTracker counts EOS arrivals for operators with multiple input legs.
type legTracker struct {
	expected int
	seen     int
}

// done records an EOS and reports whether every leg has now finished.
func (l *legTracker) done() bool {
	l.seen++
	return l.seen >= l.expected
}
