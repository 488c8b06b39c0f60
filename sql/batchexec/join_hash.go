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
	"github.com/kestreldb/kestrel/sql/hash"
	"github.com/kestreldb/kestrel/sql/plan"
)

// HashJoin implements INNER and OUTER equi-joins. The left leg is the build
// side: it is buffered until EOS and indexed by join-key hash. The right
// leg probes and streams. LEFT OUTER emits unmatched build rows with null
// right columns at the end; RIGHT OUTER emits unmatched probe rows as they
// stream; FULL OUTER does both. Rows with NULL keys never match.
type HashJoin struct {
	base
	joinType  plan.JoinType
	leftKeys  []string
	rightKeys []string

	legs         legTracker
	buildBatches []*sql.Batch
	build        *sql.Batch
	buildIndex   map[uint64][]int
	buildMatched []bool
	buildDone    bool
	pendingProbe []*sql.Batch
	probeSchema  sql.Schema
	typesChecked bool
}

func NewHashJoin(joinType plan.JoinType, leftKeys, rightKeys []string) *HashJoin {
	return &HashJoin{
		joinType:  joinType,
		leftKeys:  leftKeys,
		rightKeys: rightKeys,
		legs:      legTracker{expected: 2},
	}
}

func (j *HashJoin) Name() string {
	return fmt.Sprintf("%s Join", j.joinType)
}

func (j *HashJoin) Config() string {
	return fmt.Sprintf("left=%v right=%v", j.leftKeys, j.rightKeys)
}

func (j *HashJoin) Execute(ctx *sql.Context, morsel *sql.Batch, leg plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		if leg == plan.LabelLeft {
			if err := j.sealBuild(); err != nil {
				return nil, err
			}
		}
		if !j.legs.done() {
			// flush probes that arrived before the build side sealed
			return j.drainPending(ctx)
		}
		outputs, err := j.drainPending(ctx)
		if err != nil {
			return nil, err
		}
		final, err := j.unmatchedBuildRows()
		if err != nil {
			return nil, err
		}
		if final != nil {
			outputs = append(outputs, final)
		}
		return append(outputs, sql.EOS), nil
	}

	if leg == plan.LabelLeft {
		if morsel.NumRows() > 0 || len(j.buildBatches) == 0 {
			j.buildBatches = append(j.buildBatches, morsel)
		}
		return nil, nil
	}

	if j.probeSchema == nil {
		j.probeSchema = morsel.Schema()
	}
	if !j.buildDone {
		j.pendingProbe = append(j.pendingProbe, morsel)
		return nil, nil
	}
	return j.probe(ctx, morsel)
}

func (j *HashJoin) sealBuild() error {
	if j.buildDone {
		return nil
	}
	j.buildDone = true
	if len(j.buildBatches) == 0 {
		j.build = nil
		j.buildIndex = map[uint64][]int{}
		return nil
	}
	build, err := sql.Concat(j.buildBatches...)
	if err != nil {
		return err
	}
	j.build = build
	j.buildBatches = nil
	j.buildMatched = make([]bool, build.NumRows())
	j.buildIndex = make(map[uint64][]int, build.NumRows())

	keyColumns := make([][]interface{}, len(j.leftKeys))
	for i, identity := range j.leftKeys {
		keyColumns[i], err = build.Column(identity)
		if err != nil {
			return err
		}
	}
	key := make([]interface{}, len(keyColumns))
	for row := 0; row < build.NumRows(); row++ {
		if !fillKey(key, keyColumns, row) {
			continue
		}
		h := hash.Row(key)
		j.buildIndex[h] = append(j.buildIndex[h], row)
	}
	return nil
}

func (j *HashJoin) drainPending(ctx *sql.Context) ([]*sql.Batch, error) {
	if !j.buildDone {
		return nil, nil
	}
	var outputs []*sql.Batch
	for _, pending := range j.pendingProbe {
		out, err := j.probe(ctx, pending)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out...)
	}
	j.pendingProbe = nil
	return outputs, nil
}

func (j *HashJoin) probe(_ *sql.Context, morsel *sql.Batch) ([]*sql.Batch, error) {
	if err := j.checkKeyTypes(morsel); err != nil {
		return nil, err
	}
	if morsel.NumRows() == 0 {
		return nil, nil
	}

	keyColumns := make([][]interface{}, len(j.rightKeys))
	var err error
	for i, identity := range j.rightKeys {
		keyColumns[i], err = morsel.Column(identity)
		if err != nil {
			return nil, err
		}
	}

	var leftIndices, rightIndices []int
	key := make([]interface{}, len(keyColumns))
	emitUnmatchedProbe := j.joinType == plan.JoinRightOuter || j.joinType == plan.JoinFullOuter
	for row := 0; row < morsel.NumRows(); row++ {
		matched := false
		if fillKey(key, keyColumns, row) {
			for _, buildRow := range j.buildIndex[hash.Row(key)] {
				if !j.keysEqual(buildRow, key) {
					continue
				}
				matched = true
				j.buildMatched[buildRow] = true
				leftIndices = append(leftIndices, buildRow)
				rightIndices = append(rightIndices, row)
			}
		}
		if !matched && emitUnmatchedProbe {
			leftIndices = append(leftIndices, -1)
			rightIndices = append(rightIndices, row)
		}
	}
	if len(leftIndices) == 0 {
		return nil, nil
	}
	combined, err := combineSides(j.build, leftIndices, morsel, rightIndices)
	if err != nil {
		return nil, err
	}
	return []*sql.Batch{combined}, nil
}

// keysEqual guards against hash collisions by comparing the actual values.
func (j *HashJoin) keysEqual(buildRow int, key []interface{}) bool {
	for i, identity := range j.leftKeys {
		column, err := j.build.Column(identity)
		if err != nil {
			return false
		}
		if !sql.ValuesEqual(column[buildRow], key[i]) {
			return false
		}
	}
	return true
}

func (j *HashJoin) unmatchedBuildRows() (*sql.Batch, error) {
	if j.joinType != plan.JoinLeftOuter && j.joinType != plan.JoinFullOuter {
		return nil, nil
	}
	if j.build == nil {
		return nil, nil
	}
	var leftIndices, rightIndices []int
	for row, matched := range j.buildMatched {
		if !matched {
			leftIndices = append(leftIndices, row)
			rightIndices = append(rightIndices, -1)
		}
	}
	if len(leftIndices) == 0 {
		return nil, nil
	}
	probe := sql.NewEmptyBatch(j.probeSchema)
	return combineSides(j.build, leftIndices, probe, rightIndices)
}

func (j *HashJoin) checkKeyTypes(probe *sql.Batch) error {
	if j.typesChecked || j.build == nil {
		return nil
	}
	j.typesChecked = true
	for i := range j.leftKeys {
		if i >= len(j.rightKeys) {
			break
		}
		left := j.build.Schema().Column(j.leftKeys[i])
		right := probe.Schema().Column(j.rightKeys[i])
		if left == nil || right == nil {
			continue
		}
		if _, err := sql.PromoteTypes(left.Type, right.Type); err != nil {
			return sql.ErrIncompatibleTypes.New(left.Type, right.Type)
		}
	}
	return nil
}

// fillKey loads one row's key values; false when any key is NULL.
func fillKey(key []interface{}, columns [][]interface{}, row int) bool {
	for i := range columns {
		v := columns[i][row]
		if v == nil {
			return false
		}
		key[i] = v
	}
	return true
}

// combineSides stitches rows of two batches side by side; index -1 yields
// nulls for that side.
func combineSides(left *sql.Batch, leftIndices []int, right *sql.Batch, rightIndices []int) (*sql.Batch, error) {
	var schema sql.Schema
	var columns [][]interface{}
	appendSide := func(batch *sql.Batch, indices []int) {
		if batch == nil {
			return
		}
		for c, col := range batch.Schema() {
			values := make([]interface{}, len(indices))
			source := batch.ColumnAt(c)
			for i, idx := range indices {
				if idx >= 0 {
					values[i] = source[idx]
				}
			}
			schema = append(schema, col.Copy())
			columns = append(columns, values)
		}
	}
	appendSide(left, leftIndices)
	appendSide(right, rightIndices)
	return sql.NewBatch(schema, columns)
}
