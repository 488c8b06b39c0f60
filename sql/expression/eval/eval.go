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

// Package eval is the reference implementation of the expression evaluator
// contract. Expressions are applied a whole batch at a time; boolean trees
// produce masks the filter operator applies.
package eval

import (
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
)

// Evaluator implements expression.Evaluator over columnar batches.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate produces a value array aligned with the batch's row count.
func (e *Evaluator) Evaluate(ctx *sql.Context, expr *expression.Node, batch *sql.Batch) ([]interface{}, error) {
	rows := batch.NumRows()
	switch expr.Kind {
	case expression.KindLiteral:
		out := make([]interface{}, rows)
		for i := range out {
			out[i] = expr.LiteralValue
		}
		return out, nil

	case expression.KindIdentifier:
		col, err := batch.Column(expr.Identity)
		if err != nil {
			return nil, sql.ErrColumnNotFound.New(expression.Format(expr))
		}
		return col, nil

	case expression.KindNested:
		return e.Evaluate(ctx, expr.Centre, batch)

	case expression.KindComparison:
		left, err := e.Evaluate(ctx, expr.Left, batch)
		if err != nil {
			return nil, err
		}
		right, err := e.Evaluate(ctx, expr.Right, batch)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, rows)
		for i := 0; i < rows; i++ {
			out[i], err = ApplyComparison(expr.Value, left[i], right[i])
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	case expression.KindBinary:
		left, err := e.Evaluate(ctx, expr.Left, batch)
		if err != nil {
			return nil, err
		}
		right, err := e.Evaluate(ctx, expr.Right, batch)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, rows)
		for i := 0; i < rows; i++ {
			out[i], err = ApplyBinary(expr.Value, left[i], right[i])
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	case expression.KindUnary:
		centre, err := e.Evaluate(ctx, expr.Centre, batch)
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, rows)
		for i := 0; i < rows; i++ {
			out[i], err = ApplyUnary(expr.Value, centre[i])
			if err != nil {
				return nil, err
			}
		}
		return out, nil

	case expression.KindAnd, expression.KindOr, expression.KindXor:
		return e.evaluateJunction(ctx, expr, batch)

	case expression.KindFunction:
		return e.evaluateFunction(ctx, expr, batch)

	case expression.KindAggregator:
		// after aggregation the result already sits in the batch under the
		// aggregator's target identity
		if expr.SchemaColumn != nil {
			if col, err := batch.Column(expr.SchemaColumn.Identity); err == nil {
				return col, nil
			}
		}
		return nil, sql.ErrSQL.New("aggregator " + expression.Format(expr) + " evaluated outside an aggregation")
	}
	return nil, sql.ErrUnsupportedSyntax.New("expression " + expression.Format(expr))
}

// evaluateJunction applies SQL three-valued logic: NULLs absorb unless the
// junction is already decided.
func (e *Evaluator) evaluateJunction(ctx *sql.Context, expr *expression.Node, batch *sql.Batch) ([]interface{}, error) {
	left, err := e.Evaluate(ctx, expr.Left, batch)
	if err != nil {
		return nil, err
	}
	right, err := e.Evaluate(ctx, expr.Right, batch)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, batch.NumRows())
	for i := range out {
		lb, lNull := asBool(left[i])
		rb, rNull := asBool(right[i])
		switch expr.Kind {
		case expression.KindAnd:
			switch {
			case !lNull && !lb, !rNull && !rb:
				out[i] = false
			case lNull || rNull:
				out[i] = nil
			default:
				out[i] = true
			}
		case expression.KindOr:
			switch {
			case !lNull && lb, !rNull && rb:
				out[i] = true
			case lNull || rNull:
				out[i] = nil
			default:
				out[i] = false
			}
		case expression.KindXor:
			if lNull || rNull {
				out[i] = nil
			} else {
				out[i] = lb != rb
			}
		}
	}
	return out, nil
}

func asBool(v interface{}) (value bool, isNull bool) {
	if v == nil {
		return false, true
	}
	b, ok := v.(bool)
	if !ok {
		return false, true
	}
	return b, false
}

func (e *Evaluator) evaluateFunction(ctx *sql.Context, expr *expression.Node, batch *sql.Batch) ([]interface{}, error) {
	fn, err := lookupFunction(expr.Value)
	if err != nil {
		return nil, err
	}
	rows := batch.NumRows()
	params := make([][]interface{}, len(expr.Parameters))
	for i, p := range expr.Parameters {
		params[i], err = e.Evaluate(ctx, p, batch)
		if err != nil {
			return nil, err
		}
	}
	out := make([]interface{}, rows)
	args := make([]interface{}, len(params))
	for i := 0; i < rows; i++ {
		for p := range params {
			args[p] = params[p][i]
		}
		out[i], err = fn.apply(ctx, args)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// EvaluateAndAppend appends each expression's result as a new column keyed
// by the expression's target identity. Identities already present are left
// alone, which makes the call idempotent.
func (e *Evaluator) EvaluateAndAppend(ctx *sql.Context, exprs []*expression.Node, batch *sql.Batch) (*sql.Batch, error) {
	for _, expr := range exprs {
		col := expr.SchemaColumn
		if col == nil {
			col = &sql.Column{
				Identity: expression.Format(expr),
				Name:     expression.Format(expr),
				Type:     inferType(expr),
			}
		}
		if batch.Schema().Contains(col.Identity) {
			continue
		}
		values, err := e.Evaluate(ctx, expr, batch)
		if err != nil {
			return nil, err
		}
		batch, err = batch.WithColumn(col, values)
		if err != nil {
			return nil, err
		}
	}
	return batch, nil
}

func inferType(expr *expression.Node) sql.Type {
	switch expr.Kind {
	case expression.KindLiteral:
		return expr.LiteralType
	case expression.KindComparison, expression.KindAnd, expression.KindOr, expression.KindXor, expression.KindUnary:
		return sql.Boolean
	case expression.KindFunction:
		return FunctionResultType(expr.Value)
	case expression.KindNested:
		return inferType(expr.Centre)
	}
	return sql.Null
}
