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

// Exit is the terminal sink. It forwards its single input unchanged and
// exists so the DAG always has exactly one exit node.
type Exit struct {
	base
}

func NewExit() *Exit {
	return &Exit{}
}

func (e *Exit) Name() string {
	return "Exit"
}

func (e *Exit) Execute(_ *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	return []*sql.Batch{morsel}, nil
}

// Noop passes batches through untouched; it marks subquery and CTE
// boundaries in the physical plan.
type Noop struct {
	base
}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) Name() string {
	return "Noop"
}

func (n *Noop) Stateless() bool {
	return true
}

func (n *Noop) Execute(_ *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	return []*sql.Batch{morsel}, nil
}
