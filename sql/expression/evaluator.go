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

package expression

import (
	"github.com/kestreldb/kestrel/sql"
)

// Evaluator applies a bound expression tree to a batch. Implementations are
// referentially transparent: evaluating the same expression against the same
// batch twice yields equal results.
type Evaluator interface {
	// Evaluate produces a value array aligned with the batch's rows. For
	// boolean expressions the array acts as a mask (values are bool or nil).
	Evaluate(ctx *sql.Context, expr *Node, batch *sql.Batch) ([]interface{}, error)

	// EvaluateAndAppend appends each expression's result as a new column
	// keyed by the expression's target identity (SchemaColumn). Appending an
	// identity the batch already has is a no-op, which makes the call
	// idempotent.
	EvaluateAndAppend(ctx *sql.Context, exprs []*Node, batch *sql.Batch) (*sql.Batch, error)
}
