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
	"fmt"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/plan"
)

// Limit emits up to limit rows starting at offset, then stops consuming.
type Limit struct {
	base
	limit     int
	offset    int
	toSkip    int
	remaining int
	finished  bool
}

func NewLimit(limit, offset int) *Limit {
	return &Limit{limit: limit, offset: offset, toSkip: offset, remaining: limit}
}

func (l *Limit) Name() string {
	return "Limit"
}

func (l *Limit) Config() string {
	return fmt.Sprintf("%d OFFSET %d", l.limit, l.offset)
}

func (l *Limit) Execute(_ *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		if l.finished {
			return nil, nil
		}
		l.finished = true
		return []*sql.Batch{sql.EOS}, nil
	}
	if l.finished || l.remaining <= 0 {
		return nil, nil
	}

	if l.toSkip > 0 {
		if morsel.NumRows() <= l.toSkip {
			l.toSkip -= morsel.NumRows()
			return nil, nil
		}
		morsel = morsel.Slice(l.toSkip, morsel.NumRows()-l.toSkip)
		l.toSkip = 0
	}

	if morsel.NumRows() > l.remaining {
		morsel = morsel.Slice(0, l.remaining)
	}
	l.remaining -= morsel.NumRows()

	outputs := []*sql.Batch{morsel}
	if l.remaining == 0 {
		// budget spent: forward EOS now and ignore the rest of the stream
		l.finished = true
		outputs = append(outputs, sql.EOS)
	}
	return outputs, nil
}
