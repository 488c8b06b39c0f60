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

// Package memory implements an in-memory connector used by tests and
// examples. Tables hold rows in process; predicate pushdown support can be
// toggled per table to exercise both optimizer paths.
package memory

import (
	"sync/atomic"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/connector"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/expression/eval"
)

// Table is one in-memory dataset.
type Table struct {
	name   string
	schema sql.Schema
	rows   [][]interface{}

	// AcceptPredicates advertises predicate pushdown for this table.
	AcceptPredicates bool

	rowsRead int64
}

func NewTable(name string, schema sql.Schema) *Table {
	return &Table{name: name, schema: schema}
}

func (t *Table) Name() string {
	return t.name
}

func (t *Table) Schema() sql.Schema {
	return t.schema
}

// Insert appends rows; values are positional against the schema.
func (t *Table) Insert(rows ...[]interface{}) *Table {
	t.rows = append(t.rows, rows...)
	return t
}

// RowsRead reports how many rows scans of this table returned.
func (t *Table) RowsRead() int64 {
	return atomic.LoadInt64(&t.rowsRead)
}

// Connector serves a set of in-memory tables.
type Connector struct {
	name      string
	tables    map[string]*Table
	batchSize int
	ev        expression.Evaluator
}

func NewConnector(name string) *Connector {
	return &Connector{
		name:      name,
		tables:    make(map[string]*Table),
		batchSize: 500,
		ev:        eval.NewEvaluator(),
	}
}

// WithBatchSize overrides how many rows each emitted batch carries; tests
// use small sizes to exercise batch boundaries.
func (c *Connector) WithBatchSize(size int) *Connector {
	c.batchSize = size
	return c
}

func (c *Connector) AddTable(t *Table) *Connector {
	c.tables[t.name] = t
	return c
}

func (c *Connector) Table(name string) *Table {
	return c.tables[name]
}

func (c *Connector) Name() string {
	return c.name
}

func (c *Connector) Schema(_ *sql.Context, dataset string) (sql.Schema, error) {
	table, ok := c.tables[dataset]
	if !ok {
		return nil, sql.ErrDatasetNotFound.New(dataset)
	}
	return table.schema, nil
}

// ReadDataset streams the table restricted to the requested columns, with
// accepted predicates applied during the read.
func (c *Connector) ReadDataset(ctx *sql.Context, dataset string, columns []string, predicates []*expression.Node) (sql.BatchIterator, error) {
	table, ok := c.tables[dataset]
	if !ok {
		return nil, sql.ErrDatasetNotFound.New(dataset)
	}

	full := table.toBatch()
	for _, predicate := range predicates {
		mask, err := c.ev.Evaluate(ctx, predicate, full)
		if err != nil {
			return nil, err
		}
		keep := make([]bool, len(mask))
		for i, v := range mask {
			b, ok := v.(bool)
			keep[i] = ok && b
		}
		full = full.FilterMask(keep)
	}
	if len(columns) > 0 {
		projected, err := full.Project(columns)
		if err != nil {
			return nil, err
		}
		full = projected
	}
	atomic.AddInt64(&table.rowsRead, int64(full.NumRows()))

	var batches []*sql.Batch
	if full.NumRows() == 0 {
		batches = append(batches, full)
	}
	for offset := 0; offset < full.NumRows(); offset += c.batchSize {
		batches = append(batches, full.Slice(offset, c.batchSize))
	}
	return sql.NewSliceIterator(batches...), nil
}

// CanPush accepts simple comparisons, each side an identifier or a literal,
// for tables that advertise pushdown.
func (c *Connector) CanPush(predicate *expression.Node, _ []sql.Type) bool {
	if predicate.Kind != expression.KindComparison {
		return false
	}
	var table *Table
	for _, identifier := range expression.AllNodesOfKind(predicate, expression.KindIdentifier) {
		t, ok := c.tables[identifier.Source]
		if !ok {
			return false
		}
		table = t
	}
	if table == nil || !table.AcceptPredicates {
		return false
	}
	simple := func(n *expression.Node) bool {
		return n != nil && (n.Kind == expression.KindIdentifier || n.Kind == expression.KindLiteral)
	}
	return simple(predicate.Left) && simple(predicate.Right)
}

var _ connector.Connector = (*Connector)(nil)
var _ connector.PredicatePushable = (*Connector)(nil)

func (t *Table) toBatch() *sql.Batch {
	columns := make([][]interface{}, len(t.schema))
	for c := range columns {
		columns[c] = make([]interface{}, len(t.rows))
		for r, row := range t.rows {
			columns[c][r] = row[c]
		}
	}
	batch, _ := sql.NewBatch(t.schema, columns)
	return batch
}
