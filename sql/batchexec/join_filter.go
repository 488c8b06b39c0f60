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

// FilterJoin implements SEMI and ANTI joins: the right side is fully
// buffered into a key set, then each left row is kept or dropped on a
// presence check. Right columns are never emitted.
type FilterJoin struct {
	base
	joinType  plan.JoinType
	leftKeys  []string
	rightKeys []string

	legs        legTracker
	rightDone   bool
	rightHashes map[uint64]struct{}
	pendingLeft []*sql.Batch
	emitted     bool
}

func NewFilterJoin(joinType plan.JoinType, leftKeys, rightKeys []string) *FilterJoin {
	return &FilterJoin{
		joinType:    joinType,
		leftKeys:    leftKeys,
		rightKeys:   rightKeys,
		legs:        legTracker{expected: 2},
		rightHashes: make(map[uint64]struct{}),
	}
}

func (j *FilterJoin) Name() string {
	return fmt.Sprintf("%s Join", j.joinType)
}

func (j *FilterJoin) Config() string {
	return fmt.Sprintf("left=%v right=%v", j.leftKeys, j.rightKeys)
}

func (j *FilterJoin) Execute(_ *sql.Context, morsel *sql.Batch, leg plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		if leg == plan.LabelRight {
			j.rightDone = true
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
		keyColumns := make([][]interface{}, len(j.rightKeys))
		var err error
		for i, identity := range j.rightKeys {
			keyColumns[i], err = morsel.Column(identity)
			if err != nil {
				return nil, err
			}
		}
		key := make([]interface{}, len(keyColumns))
		for row := 0; row < morsel.NumRows(); row++ {
			if fillKey(key, keyColumns, row) {
				j.rightHashes[hash.Row(key)] = struct{}{}
			}
		}
		return nil, nil
	}

	if !j.rightDone {
		j.pendingLeft = append(j.pendingLeft, morsel)
		return nil, nil
	}
	return j.filter(morsel)
}

func (j *FilterJoin) drainPending() ([]*sql.Batch, error) {
	if !j.rightDone {
		return nil, nil
	}
	var outputs []*sql.Batch
	for _, pending := range j.pendingLeft {
		out, err := j.filter(pending)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out...)
	}
	j.pendingLeft = nil
	return outputs, nil
}

func (j *FilterJoin) filter(morsel *sql.Batch) ([]*sql.Batch, error) {
	keyColumns := make([][]interface{}, len(j.leftKeys))
	var err error
	for i, identity := range j.leftKeys {
		keyColumns[i], err = morsel.Column(identity)
		if err != nil {
			return nil, err
		}
	}
	keep := make([]bool, morsel.NumRows())
	key := make([]interface{}, len(keyColumns))
	for row := 0; row < morsel.NumRows(); row++ {
		present := false
		if fillKey(key, keyColumns, row) {
			_, present = j.rightHashes[hash.Row(key)]
		}
		if j.joinType == plan.JoinSemi {
			keep[row] = present
		} else {
			keep[row] = !present
		}
	}
	filtered := morsel.FilterMask(keep)
	if filtered.NumRows() == 0 && j.emitted {
		return nil, nil
	}
	j.emitted = true
	return []*sql.Batch{filtered}, nil
}
