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

// NestedLoopJoin handles conditions that are not pure equi-conditions: the
// right side is buffered, then the cartesian product is generated in chunks
// of the configured size and the condition is evaluated over each chunk.
type NestedLoopJoin struct {
	base
	condition *expression.Node
	ev        expression.Evaluator
	chunkSize int

	legs        legTracker
	rightDone   bool
	rightParts  []*sql.Batch
	right       *sql.Batch
	pendingLeft []*sql.Batch
}

func NewNestedLoopJoin(condition *expression.Node, ev expression.Evaluator, chunkSize int) *NestedLoopJoin {
	return &NestedLoopJoin{
		condition: condition,
		ev:        ev,
		chunkSize: chunkSize,
		legs:      legTracker{expected: 2},
	}
}

func (j *NestedLoopJoin) Name() string {
	return "NestedLoop Join"
}

func (j *NestedLoopJoin) Config() string {
	return expression.Format(j.condition)
}

func (j *NestedLoopJoin) Execute(ctx *sql.Context, morsel *sql.Batch, leg plan.EdgeLabel) ([]*sql.Batch, error) {
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
		outputs, err := j.drainPending(ctx)
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
	return j.join(ctx, morsel)
}

func (j *NestedLoopJoin) drainPending(ctx *sql.Context) ([]*sql.Batch, error) {
	if !j.rightDone {
		return nil, nil
	}
	var outputs []*sql.Batch
	for _, pending := range j.pendingLeft {
		out, err := j.join(ctx, pending)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out...)
	}
	j.pendingLeft = nil
	return outputs, nil
}

func (j *NestedLoopJoin) join(ctx *sql.Context, left *sql.Batch) ([]*sql.Batch, error) {
	if j.right == nil || j.right.NumRows() == 0 || left.NumRows() == 0 {
		return nil, nil
	}
	var outputs []*sql.Batch
	for _, chunk := range crossProductChunks(left, j.right, j.chunkSize) {
		combined, err := combineSides(left, chunk.left, j.right, chunk.right)
		if err != nil {
			return nil, err
		}
		mask, err := j.ev.Evaluate(ctx, j.condition, combined)
		if err != nil {
			return nil, err
		}
		keep := make([]bool, len(mask))
		for i, v := range mask {
			b, ok := v.(bool)
			if v != nil && !ok {
				return nil, sql.ErrSQL.New("join condition '" + expression.Format(j.condition) + "' is not boolean")
			}
			keep[i] = ok && b
		}
		matched := combined.FilterMask(keep)
		if matched.NumRows() > 0 {
			outputs = append(outputs, matched)
		}
	}
	return outputs, nil
}

// indexChunk is one slice of a chunked cartesian product.
type indexChunk struct {
	left  []int
	right []int
}

// crossProductChunks enumerates the cartesian product of two batches in
// chunks of at most chunkSize pairs, left-major.
func crossProductChunks(left, right *sql.Batch, chunkSize int) []indexChunk {
	if chunkSize < 1 {
		chunkSize = 1
	}
	var chunks []indexChunk
	current := indexChunk{}
	for l := 0; l < left.NumRows(); l++ {
		for r := 0; r < right.NumRows(); r++ {
			current.left = append(current.left, l)
			current.right = append(current.right, r)
			if len(current.left) >= chunkSize {
				chunks = append(chunks, current)
				current = indexChunk{}
			}
		}
	}
	if len(current.left) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}
