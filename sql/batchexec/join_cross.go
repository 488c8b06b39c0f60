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
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/plan"
)

// CrossJoin buffers its right side, then yields the cartesian product with
// each left batch in chunks bounded by MAX_JOIN_SIZE.
type CrossJoin struct {
	base
	chunkSize int

	legs        legTracker
	rightDone   bool
	rightParts  []*sql.Batch
	right       *sql.Batch
	pendingLeft []*sql.Batch
}

func NewCrossJoin(chunkSize int) *CrossJoin {
	return &CrossJoin{chunkSize: chunkSize, legs: legTracker{expected: 2}}
}

func (j *CrossJoin) Name() string {
	return "Cross Join"
}

func (j *CrossJoin) Execute(_ *sql.Context, morsel *sql.Batch, leg plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		if leg == plan.LabelRight {
			j.rightDone = true
			if len(j.rightParts) > 0 {
				right, err := sql.Concat(j.rightParts...)
				if err != nil {
					return nil, err
				}
				j.right = right
				j.rightParts = nil
			}
		}
		outputs, err := j.drainPending()
		if err != nil {
			return nil, err
		}
		if j.legs.done() {
			outputs = append(outputs, sql.EOS)
		}
		return outputs, nil
	}

	if leg == plan.LabelRight {
		if morsel.NumRows() > 0 {
			j.rightParts = append(j.rightParts, morsel)
		}
		return nil, nil
	}
	if !j.rightDone {
		j.pendingLeft = append(j.pendingLeft, morsel)
		return nil, nil
	}
	return j.join(morsel)
}

func (j *CrossJoin) drainPending() ([]*sql.Batch, error) {
	if !j.rightDone {
		return nil, nil
	}
	var outputs []*sql.Batch
	for _, pending := range j.pendingLeft {
		out, err := j.join(pending)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out...)
	}
	j.pendingLeft = nil
	return outputs, nil
}

func (j *CrossJoin) join(left *sql.Batch) ([]*sql.Batch, error) {
	if j.right == nil || j.right.NumRows() == 0 || left.NumRows() == 0 {
		return nil, nil
	}
	var outputs []*sql.Batch
	for _, chunk := range crossProductChunks(left, j.right, j.chunkSize) {
		combined, err := combineSides(left, chunk.left, j.right, chunk.right)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, combined)
	}
	return outputs, nil
}

// UnnestJoin expands an array column into rows: every input row is repeated
// once per element of its array, with the element in a new target column.
// Rows with empty or NULL arrays are dropped.
type UnnestJoin struct {
	base
	source *expression.Node
	target *sql.Column
	ev     expression.Evaluator
}

func NewUnnestJoin(source *expression.Node, target *sql.Column, ev expression.Evaluator) *UnnestJoin {
	return &UnnestJoin{source: source, target: target, ev: ev}
}

func (j *UnnestJoin) Name() string {
	return "Unnest Join"
}

func (j *UnnestJoin) Config() string {
	return expression.Format(j.source)
}

func (j *UnnestJoin) Execute(ctx *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		return []*sql.Batch{sql.EOS}, nil
	}
	if morsel.NumRows() == 0 {
		return nil, nil
	}

	arrays, err := j.ev.Evaluate(ctx, j.source, morsel)
	if err != nil {
		return nil, err
	}

	var indices []int
	var elements []interface{}
	for row, value := range arrays {
		items, ok := value.([]interface{})
		if !ok {
			continue
		}
		for _, item := range items {
			indices = append(indices, row)
			elements = append(elements, item)
		}
	}
	if len(indices) == 0 {
		return nil, nil
	}
	expanded := morsel.Take(indices)
	out, err := expanded.WithColumn(j.target, elements)
	if err != nil {
		return nil, err
	}
	return []*sql.Batch{out}, nil
}
