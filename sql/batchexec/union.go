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
	"github.com/kestreldb/kestrel/sql/plan"
)

// Union merges its input streams: batches are renamed onto a single target
// schema by position (types promoted on first sight of each input) and
// emitted as they arrive. EOS goes out once every input has finished.
type Union struct {
	base
	legs   legTracker
	target sql.Schema
}

func NewUnion(inputs int) *Union {
	return &Union{legs: legTracker{expected: inputs}}
}

func (u *Union) Name() string {
	return "Union"
}

func (u *Union) Execute(_ *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	if morsel.IsEOS() {
		if u.legs.done() {
			return []*sql.Batch{sql.EOS}, nil
		}
		return nil, nil
	}

	if u.target == nil {
		u.target = morsel.Schema().Copy()
	} else {
		if len(morsel.Schema()) != len(u.target) {
			return nil, sql.ErrIncompatibleTypes.New("union input arity", "target arity")
		}
		for i, col := range morsel.Schema() {
			promoted, err := sql.PromoteTypes(u.target[i].Type, col.Type)
			if err != nil {
				return nil, err
			}
			u.target[i].Type = promoted
		}
	}
	renamed, err := morsel.Rename(u.target.Copy())
	if err != nil {
		return nil, err
	}
	return []*sql.Batch{renamed}, nil
}
