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
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
)

// HeapSort is the fusion of Order and Limit: a bounded buffer of the limit
// size is kept sorted as batches stream through, so rows that cannot make
// the cut are discarded early. Strictly equivalent to Sort followed by
// Limit.
type HeapSort struct {
	base
	orderBy []plan.OrderField
	limit   int
	ev      expression.Evaluator
	buffer  *sql.Batch
}

func NewHeapSort(orderBy []plan.OrderField, limit int, ev expression.Evaluator) *HeapSort {
	return &HeapSort{orderBy: orderBy, limit: limit, ev: ev}
}

func (h *HeapSort) Name() string {
	return "HeapSort"
}

func (h *HeapSort) Config() string {
	return fmt.Sprintf("LIMIT %d", h.limit)
}

func (h *HeapSort) Execute(ctx *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		var outputs []*sql.Batch
		if h.buffer != nil {
			outputs = append(outputs, h.buffer)
			h.buffer = nil
		}
		return append(outputs, sql.EOS), nil
	}
	if morsel.NumRows() == 0 && h.buffer != nil {
		return nil, nil
	}

	working := morsel
	if h.buffer != nil {
		var err error
		working, err = sql.Concat(h.buffer, morsel)
		if err != nil {
			return nil, err
		}
	}
	sorted, err := sortBatch(ctx, h.ev, working, h.orderBy)
	if err != nil {
		return nil, err
	}
	h.buffer = sorted.Slice(0, h.limit)
	return nil, nil
}
