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
	"math/rand"
	"sort"
	"strings"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
)

// Sort accumulates the entire input, sorts it on EOS, and emits one sorted
// batch. ORDER BY RAND() shuffles; ORDER BY 1 sorts on the first column.
type Sort struct {
	base
	orderBy []plan.OrderField
	ev      expression.Evaluator
	buffer  []*sql.Batch
}

func NewSort(orderBy []plan.OrderField, ev expression.Evaluator) *Sort {
	return &Sort{orderBy: orderBy, ev: ev}
}

func (s *Sort) Name() string {
	return "Sort"
}

func (s *Sort) Config() string {
	parts := make([]string, len(s.orderBy))
	for i, f := range s.orderBy {
		parts[i] = expression.Format(f.Expr)
		if f.Descending {
			parts[i] += " DESC"
		}
	}
	return strings.Join(parts, ", ")
}

func (s *Sort) Execute(ctx *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	if !morsel.IsEOS() {
		if morsel.NumRows() > 0 {
			s.buffer = append(s.buffer, morsel)
		}
		return nil, nil
	}
	if len(s.buffer) == 0 {
		return []*sql.Batch{sql.EOS}, nil
	}
	whole, err := sql.Concat(s.buffer...)
	if err != nil {
		return nil, err
	}
	s.buffer = nil
	sorted, err := sortBatch(ctx, s.ev, whole, s.orderBy)
	if err != nil {
		return nil, err
	}
	return []*sql.Batch{sorted, sql.EOS}, nil
}

// sortBatch orders a batch by the mapped order list. Shared by Sort and
// HeapSort.
func sortBatch(ctx *sql.Context, ev expression.Evaluator, batch *sql.Batch, orderBy []plan.OrderField) (*sql.Batch, error) {
	rows := batch.NumRows()
	if rows < 2 {
		return batch, nil
	}

	// ORDER BY RAND() is a shuffle, not a comparison sort
	if len(orderBy) == 1 && isRandCall(orderBy[0].Expr) {
		indices := rand.Perm(rows)
		return batch.Take(indices), nil
	}

	keys := make([][]interface{}, len(orderBy))
	descending := make([]bool, len(orderBy))
	for i, field := range orderBy {
		values, err := resolveOrderColumn(ctx, ev, batch, field.Expr)
		if err != nil {
			return nil, err
		}
		keys[i] = values
		descending[i] = field.Descending
	}

	indices := make([]int, rows)
	for i := range indices {
		indices[i] = i
	}
	var sortErr error
	sort.SliceStable(indices, func(a, b int) bool {
		for k := range keys {
			cmp, err := sql.CompareValues(keys[k][indices[a]], keys[k][indices[b]])
			if err != nil {
				if sortErr == nil {
					sortErr = err
				}
				return false
			}
			if cmp == 0 {
				continue
			}
			if descending[k] {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return batch.Take(indices), nil
}

func resolveOrderColumn(ctx *sql.Context, ev expression.Evaluator, batch *sql.Batch, expr *expression.Node) ([]interface{}, error) {
	// positional ORDER BY: a literal integer indexes the schema
	if expr.Kind == expression.KindLiteral && expr.LiteralType == sql.Integer {
		pos, ok := expr.LiteralValue.(int64)
		if !ok || pos < 1 || int(pos) > len(batch.Schema()) {
			return nil, sql.ErrSQL.New("ORDER BY position " + expression.Format(expr) + " is out of range")
		}
		return batch.ColumnAt(int(pos) - 1), nil
	}
	if expr.Kind == expression.KindIdentifier {
		values, err := batch.Column(expr.Identity)
		if err != nil {
			return nil, sql.ErrColumnNotFound.New(expression.Format(expr))
		}
		return values, nil
	}
	return ev.Evaluate(ctx, expr, batch)
}

func isRandCall(expr *expression.Node) bool {
	return expr != nil && expr.Kind == expression.KindFunction && strings.EqualFold(expr.Value, "RAND")
}
