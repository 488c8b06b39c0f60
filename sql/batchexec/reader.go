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

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/connector"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
)

// Reader opens a connector and pumps its batches into the plan. Columns are
// renamed from connector names to schema identities; columns the connector
// does not produce are filled with nulls. Predicates the optimizer attached
// are forwarded to the connector, which already filtered on them.
type Reader struct {
	base
	dataset    string
	schema     sql.Schema
	conn       connector.Connector
	predicates []*expression.Node
}

func NewReader(dataset string, schema sql.Schema, conn connector.Connector, predicates []*expression.Node) *Reader {
	return &Reader{dataset: dataset, schema: schema, conn: conn, predicates: predicates}
}

func (r *Reader) Name() string {
	return "Reader"
}

func (r *Reader) Config() string {
	return r.dataset
}

func (r *Reader) Pump(ctx *sql.Context) (sql.BatchIterator, error) {
	inner, err := r.conn.ReadDataset(ctx, r.dataset, r.schema.Identities(), r.predicates)
	if err != nil {
		return nil, err
	}
	return &defragIterator{
		inner:  &readerIterator{reader: r, inner: inner},
		target: ctx.Config().InternalBatchSize,
	}, nil
}

func (r *Reader) Execute(_ *sql.Context, _ *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	return nil, sql.ErrInvalidInternalState.New("reader invoked as a downstream operator")
}

type readerIterator struct {
	reader *Reader
	inner  sql.BatchIterator
}

func (it *readerIterator) Next(ctx *sql.Context) (*sql.Batch, error) {
	batch, err := it.inner.Next(ctx)
	if err != nil {
		if err != io.EOF {
			return nil, err
		}
		return nil, io.EOF
	}
	aligned, err := alignToSchema(batch, it.reader.schema)
	if err != nil {
		return nil, err
	}
	ctx.Stats.Add("rows_read", int64(aligned.NumRows()))
	sensors := it.reader.Sensors()
	sensors.Calls++
	sensors.RecordsOut += int64(aligned.NumRows())
	sensors.BytesOut += int64(aligned.NumBytes())
	return aligned, nil
}

func (it *readerIterator) Close() error {
	return it.inner.Close()
}

// alignToSchema reshapes a connector batch onto the scan's restricted
// schema: columns are matched by identity, then by name, and missing
// columns become all-null.
func alignToSchema(batch *sql.Batch, schema sql.Schema) (*sql.Batch, error) {
	rows := batch.NumRows()
	columns := make([][]interface{}, len(schema))
	for i, col := range schema {
		if values, err := batch.Column(col.Identity); err == nil {
			columns[i] = values
			continue
		}
		if idx := indexOfName(batch.Schema(), col.Name); idx >= 0 {
			columns[i] = batch.ColumnAt(idx)
			continue
		}
		columns[i] = make([]interface{}, rows)
	}
	return sql.NewBatch(schema.Copy(), columns)
}

func indexOfName(schema sql.Schema, name string) int {
	for i, col := range schema {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// defragIterator coalesces runs of undersized batches so downstream
// operators see morsels near the configured size. A connector that emits
// one row per blob would otherwise drown the engine in tiny batches.
type defragIterator struct {
	inner   sql.BatchIterator
	target  int
	pending []*sql.Batch
	rows    int
	done    bool
}

func (it *defragIterator) Next(ctx *sql.Context) (*sql.Batch, error) {
	for !it.done {
		batch, err := it.inner.Next(ctx)
		if err == io.EOF {
			it.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		if batch.NumRows() >= it.target/2 && len(it.pending) == 0 {
			return batch, nil
		}
		it.pending = append(it.pending, batch)
		it.rows += batch.NumRows()
		if it.rows >= it.target {
			return it.flush()
		}
	}
	if len(it.pending) > 0 {
		return it.flush()
	}
	return nil, io.EOF
}

func (it *defragIterator) flush() (*sql.Batch, error) {
	merged, err := sql.Concat(it.pending...)
	if err != nil {
		return nil, err
	}
	it.pending = nil
	it.rows = 0
	return merged, nil
}

func (it *defragIterator) Close() error {
	return it.inner.Close()
}

// NullReader emits one empty batch of the scan's restricted schema and
// stops. The planner substitutes it when a contradiction was proved at plan
// time, so a provably-empty query never scans data.
type NullReader struct {
	base
	schema sql.Schema
}

func NewNullReader(schema sql.Schema) *NullReader {
	return &NullReader{schema: schema}
}

func (r *NullReader) Name() string {
	return "NullReader"
}

func (r *NullReader) Pump(_ *sql.Context) (sql.BatchIterator, error) {
	return sql.NewSliceIterator(sql.NewEmptyBatch(r.schema)), nil
}

func (r *NullReader) Execute(_ *sql.Context, _ *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	return nil, sql.ErrInvalidInternalState.New("reader invoked as a downstream operator")
}
