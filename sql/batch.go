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

package sql

// Batch is an immutable, schema-bearing columnar table. Operators never
// mutate a batch in place; every transformation produces a new batch.
// Column slices may be shared between batches, so values must be treated
// as read-only.
type Batch struct {
	schema  Schema
	columns [][]interface{}
	rows    int
}

// EOS is the end-of-stream sentinel. It is not a batch: every accessor on it
// reports zero rows, and operators must check IsEOS before reading columns.
var EOS = &Batch{}

// NewBatch builds a batch over the given column arrays. All columns must
// have equal length and the column count must match the schema.
func NewBatch(schema Schema, columns [][]interface{}) (*Batch, error) {
	if len(columns) != len(schema) {
		return nil, ErrInvalidInternalState.New("batch column count does not match schema")
	}
	rows := 0
	if len(columns) > 0 {
		rows = len(columns[0])
		for _, col := range columns[1:] {
			if len(col) != rows {
				return nil, ErrInvalidInternalState.New("batch columns have unequal lengths")
			}
		}
	}
	return &Batch{schema: schema, columns: columns, rows: rows}, nil
}

// NewEmptyBatch builds a zero-row batch carrying the given schema. Used to
// propagate schemas through operators that filtered away every row.
func NewEmptyBatch(schema Schema) *Batch {
	columns := make([][]interface{}, len(schema))
	for i := range columns {
		columns[i] = []interface{}{}
	}
	return &Batch{schema: schema, columns: columns}
}

// IsEOS reports whether this is the end-of-stream sentinel.
func (b *Batch) IsEOS() bool {
	return b == EOS
}

func (b *Batch) Schema() Schema {
	return b.schema
}

func (b *Batch) NumRows() int {
	return b.rows
}

// NumBytes estimates the byte size of the batch for sensor accounting.
func (b *Batch) NumBytes() int {
	size := 0
	for _, col := range b.columns {
		for _, v := range col {
			size += SizeOfValue(v)
		}
	}
	return size
}

// Column returns the values of the column with the given identity.
func (b *Batch) Column(identity string) ([]interface{}, error) {
	i := b.schema.IndexOf(identity)
	if i < 0 {
		return nil, ErrColumnNotFound.New(identity)
	}
	return b.columns[i], nil
}

// ColumnAt returns the values of the i-th column.
func (b *Batch) ColumnAt(i int) []interface{} {
	return b.columns[i]
}

// Row materializes the i-th row. Only cheap for narrow schemas; operators on
// the hot path work on columns.
func (b *Batch) Row(i int) []interface{} {
	row := make([]interface{}, len(b.columns))
	for c, col := range b.columns {
		row[c] = col[i]
	}
	return row
}

// Take builds a batch of the rows at the given indices, in index order.
func (b *Batch) Take(indices []int) *Batch {
	columns := make([][]interface{}, len(b.columns))
	for c, col := range b.columns {
		taken := make([]interface{}, len(indices))
		for i, idx := range indices {
			taken[i] = col[idx]
		}
		columns[c] = taken
	}
	return &Batch{schema: b.schema, columns: columns, rows: len(indices)}
}

// FilterMask builds a batch of the rows where mask is true. The mask must be
// row-aligned with the batch.
func (b *Batch) FilterMask(mask []bool) *Batch {
	indices := make([]int, 0, len(mask))
	for i, keep := range mask {
		if keep {
			indices = append(indices, i)
		}
	}
	return b.Take(indices)
}

// Slice returns rows [offset, offset+length), clamped to the batch bounds.
func (b *Batch) Slice(offset, length int) *Batch {
	if offset < 0 {
		offset = 0
	}
	if offset > b.rows {
		offset = b.rows
	}
	end := offset + length
	if end > b.rows {
		end = b.rows
	}
	columns := make([][]interface{}, len(b.columns))
	for c, col := range b.columns {
		columns[c] = col[offset:end]
	}
	return &Batch{schema: b.schema, columns: columns, rows: end - offset}
}

// WithColumn returns a batch extended by one column. If a column with the
// same identity already exists the batch is returned unchanged, which makes
// expression appends idempotent.
func (b *Batch) WithColumn(col *Column, values []interface{}) (*Batch, error) {
	if b.schema.Contains(col.Identity) {
		return b, nil
	}
	if len(values) != b.rows {
		return nil, ErrInvalidInternalState.New("appended column length does not match batch")
	}
	schema := make(Schema, len(b.schema)+1)
	copy(schema, b.schema)
	schema[len(b.schema)] = col
	columns := make([][]interface{}, len(b.columns)+1)
	copy(columns, b.columns)
	columns[len(b.columns)] = values
	return &Batch{schema: schema, columns: columns, rows: b.rows}, nil
}

// Project returns a batch restricted to the given identities, in the given
// order.
func (b *Batch) Project(identities []string) (*Batch, error) {
	schema := make(Schema, len(identities))
	columns := make([][]interface{}, len(identities))
	for i, identity := range identities {
		idx := b.schema.IndexOf(identity)
		if idx < 0 {
			return nil, ErrColumnNotFound.New(identity)
		}
		schema[i] = b.schema[idx]
		columns[i] = b.columns[idx]
	}
	return &Batch{schema: schema, columns: columns, rows: b.rows}, nil
}

// Rename returns a batch with the same data under a new schema. The schema
// must have the same arity as the batch.
func (b *Batch) Rename(schema Schema) (*Batch, error) {
	if len(schema) != len(b.columns) {
		return nil, ErrInvalidInternalState.New("rename schema arity does not match batch")
	}
	return &Batch{schema: schema, columns: b.columns, rows: b.rows}, nil
}

// Concat stacks batches with identical schema arity into one. The first
// batch's schema wins; callers reconcile schemas before concatenating.
func Concat(batches ...*Batch) (*Batch, error) {
	if len(batches) == 0 {
		return nil, ErrInvalidInternalState.New("concat of zero batches")
	}
	if len(batches) == 1 {
		return batches[0], nil
	}
	first := batches[0]
	rows := 0
	for _, b := range batches {
		if len(b.columns) != len(first.columns) {
			return nil, ErrInvalidInternalState.New("concat of batches with unequal arity")
		}
		rows += b.rows
	}
	columns := make([][]interface{}, len(first.columns))
	for c := range columns {
		col := make([]interface{}, 0, rows)
		for _, b := range batches {
			col = append(col, b.columns[c]...)
		}
		columns[c] = col
	}
	return &Batch{schema: first.schema, columns: columns, rows: rows}, nil
}
