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

package batchexec

import (
	"io"
	"math/rand"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/plan"
)

// ValuesSource pumps a literal VALUES clause as a single batch.
type ValuesSource struct {
	base
	schema sql.Schema
	rows   [][]interface{}
}

func NewValuesSource(schema sql.Schema, rows [][]interface{}) *ValuesSource {
	return &ValuesSource{schema: schema, rows: rows}
}

func (v *ValuesSource) Name() string {
	return "Values"
}

func (v *ValuesSource) Pump(_ *sql.Context) (sql.BatchIterator, error) {
	columns := make([][]interface{}, len(v.schema))
	for c := range columns {
		columns[c] = make([]interface{}, len(v.rows))
		for r, row := range v.rows {
			columns[c][r] = row[c]
		}
	}
	batch, err := sql.NewBatch(v.schema, columns)
	if err != nil {
		return nil, err
	}
	return sql.NewSliceIterator(batch), nil
}

func (v *ValuesSource) Execute(_ *sql.Context, _ *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	return nil, sql.ErrInvalidInternalState.New("source invoked as a downstream operator")
}

// SeriesSource pumps GENERATE_SERIES(start, stop, step) in batch-sized
// slices.
type SeriesSource struct {
	base
	column    *sql.Column
	start     int64
	stop      int64
	step      int64
	batchSize int
}

func NewSeriesSource(column *sql.Column, start, stop, step int64, batchSize int) (*SeriesSource, error) {
	if step == 0 {
		return nil, sql.ErrSQL.New("GENERATE_SERIES step cannot be zero")
	}
	return &SeriesSource{column: column, start: start, stop: stop, step: step, batchSize: batchSize}, nil
}

func (s *SeriesSource) Name() string {
	return "GenerateSeries"
}

func (s *SeriesSource) Pump(_ *sql.Context) (sql.BatchIterator, error) {
	return &seriesIterator{source: s, next: s.start}, nil
}

func (s *SeriesSource) Execute(_ *sql.Context, _ *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	return nil, sql.ErrInvalidInternalState.New("source invoked as a downstream operator")
}

type seriesIterator struct {
	source *SeriesSource
	next   int64
	done   bool
}

func (it *seriesIterator) Next(_ *sql.Context) (*sql.Batch, error) {
	if it.done {
		return nil, io.EOF
	}
	var values []interface{}
	for len(values) < it.source.batchSize {
		if (it.source.step > 0 && it.next > it.source.stop) ||
			(it.source.step < 0 && it.next < it.source.stop) {
			it.done = true
			break
		}
		values = append(values, it.next)
		it.next += it.source.step
	}
	if len(values) == 0 {
		return nil, io.EOF
	}
	return sql.NewBatch(sql.Schema{it.source.column}, [][]interface{}{values})
}

func (it *seriesIterator) Close() error {
	return nil
}

// FakeSource pumps synthetic rows for testing and benchmarks: every column
// is filled with pseudo-random integers.
type FakeSource struct {
	base
	schema    sql.Schema
	rows      int
	batchSize int
}

func NewFakeSource(schema sql.Schema, rows, batchSize int) *FakeSource {
	return &FakeSource{schema: schema, rows: rows, batchSize: batchSize}
}

func (f *FakeSource) Name() string {
	return "Fake"
}

func (f *FakeSource) Pump(_ *sql.Context) (sql.BatchIterator, error) {
	var batches []*sql.Batch
	remaining := f.rows
	for remaining > 0 {
		size := f.batchSize
		if size > remaining {
			size = remaining
		}
		columns := make([][]interface{}, len(f.schema))
		for c := range columns {
			values := make([]interface{}, size)
			for i := range values {
				values[i] = rand.Int63n(1000)
			}
			columns[c] = values
		}
		batch, err := sql.NewBatch(f.schema, columns)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
		remaining -= size
	}
	return sql.NewSliceIterator(batches...), nil
}

func (f *FakeSource) Execute(_ *sql.Context, _ *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	return nil, sql.ErrInvalidInternalState.New("source invoked as a downstream operator")
}
