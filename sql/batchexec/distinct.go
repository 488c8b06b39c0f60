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
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/hash"
	"github.com/kestreldb/kestrel/sql/plan"
)

// Distinct filters each batch to rows whose hash over the distinct-on
// columns (or all columns) has not been seen. The seen-set persists across
// batches, so the operator works morsel by morsel without concatenating the
// stream.
type Distinct struct {
	base
	on      []string
	seen    map[uint64]struct{}
	emitted bool
}

// NewDistinct builds the operator; on lists the identities to distinct on,
// empty meaning all columns.
func NewDistinct(on []string) *Distinct {
	return &Distinct{on: on, seen: make(map[uint64]struct{})}
}

func (d *Distinct) Name() string {
	return "Distinct"
}

func (d *Distinct) Execute(_ *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		return []*sql.Batch{sql.EOS}, nil
	}

	columns := make([][]interface{}, 0, len(d.on))
	if len(d.on) == 0 {
		for i := range morsel.Schema() {
			columns = append(columns, morsel.ColumnAt(i))
		}
	} else {
		for _, identity := range d.on {
			values, err := morsel.Column(identity)
			if err != nil {
				return nil, err
			}
			columns = append(columns, values)
		}
	}

	var indices []int
	row := make([]interface{}, len(columns))
	for i := 0; i < morsel.NumRows(); i++ {
		for c := range columns {
			row[c] = columns[c][i]
		}
		h := hash.Row(row)
		if _, dup := d.seen[h]; dup {
			continue
		}
		d.seen[h] = struct{}{}
		indices = append(indices, i)
	}

	if len(indices) == 0 && d.emitted {
		return nil, nil
	}
	d.emitted = true
	return []*sql.Batch{morsel.Take(indices)}, nil
}
