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

package optimizer

import (
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/expression/eval"
	"github.com/kestreldb/kestrel/sql/plan"
)

// ConstantFolding evaluates operator nodes whose operands are all literals
// once, at plan time. Nested wrappers over literals collapse, IS NULL over a
// literal folds, and date/interval arithmetic is included via the scalar
// primitives.
type ConstantFolding struct{}

func (s *ConstantFolding) Name() string {
	return "ConstantFolding"
}

func (s *ConstantFolding) Visit(_ *Context, _ string, node *plan.Node) error {
	var err error
	fold := func(e *expression.Node) *expression.Node {
		folded, foldErr := foldConstants(e)
		if foldErr != nil && err == nil {
			err = foldErr
		}
		return folded
	}

	node.Condition = fold(node.Condition)
	for i, c := range node.ConditionList {
		node.ConditionList[i] = fold(c)
	}
	for i, c := range node.Columns {
		node.Columns[i] = fold(c)
	}
	node.On = fold(node.On)
	for i, f := range node.OrderBy {
		node.OrderBy[i].Expr = fold(f.Expr)
	}
	return err
}

func (s *ConstantFolding) Complete(_ *Context, p *plan.Dag) (*plan.Dag, error) {
	return p, nil
}

func foldConstants(node *expression.Node) (*expression.Node, error) {
	if node == nil {
		return nil, nil
	}
	var err error
	node.Left, err = foldConstants(node.Left)
	if err != nil {
		return nil, err
	}
	node.Centre, err = foldConstants(node.Centre)
	if err != nil {
		return nil, err
	}
	node.Right, err = foldConstants(node.Right)
	if err != nil {
		return nil, err
	}
	for i, p := range node.Parameters {
		node.Parameters[i], err = foldConstants(p)
		if err != nil {
			return nil, err
		}
	}

	switch node.Kind {
	case expression.KindNested:
		if node.Centre != nil && node.Centre.Kind == expression.KindLiteral {
			return node.Centre, nil
		}
	case expression.KindComparison:
		if isLiteral(node.Left) && isLiteral(node.Right) {
			value, err := eval.ApplyComparison(node.Value, node.Left.LiteralValue, node.Right.LiteralValue)
			if err != nil {
				return nil, err
			}
			return expression.NewLiteral(value, sql.Boolean), nil
		}
	case expression.KindBinary:
		if isLiteral(node.Left) && isLiteral(node.Right) {
			value, err := eval.ApplyBinary(node.Value, node.Left.LiteralValue, node.Right.LiteralValue)
			if err != nil {
				return nil, err
			}
			return expression.NewLiteral(value, sql.TypeOfValue(value)), nil
		}
	case expression.KindUnary:
		if isLiteral(node.Centre) {
			value, err := eval.ApplyUnary(node.Value, node.Centre.LiteralValue)
			if err != nil {
				return nil, err
			}
			return expression.NewLiteral(value, sql.Boolean), nil
		}
	case expression.KindAnd:
		if isLiteral(node.Left) && isLiteral(node.Right) {
			return foldJunction(node)
		}
		// X AND false is false no matter what X yields
		if node.Left.IsLiteralBool(false) || node.Right.IsLiteralBool(false) {
			return expression.NewLiteral(false, sql.Boolean), nil
		}
		if node.Left.IsLiteralBool(true) {
			return node.Right, nil
		}
		if node.Right.IsLiteralBool(true) {
			return node.Left, nil
		}
	case expression.KindOr:
		if isLiteral(node.Left) && isLiteral(node.Right) {
			return foldJunction(node)
		}
		if node.Left.IsLiteralBool(true) || node.Right.IsLiteralBool(true) {
			return expression.NewLiteral(true, sql.Boolean), nil
		}
		if node.Left.IsLiteralBool(false) {
			return node.Right, nil
		}
		if node.Right.IsLiteralBool(false) {
			return node.Left, nil
		}
	case expression.KindXor:
		if isLiteral(node.Left) && isLiteral(node.Right) {
			return foldJunction(node)
		}
	}
	return node, nil
}

func foldJunction(node *expression.Node) (*expression.Node, error) {
	lb, lok := node.Left.LiteralValue.(bool)
	rb, rok := node.Right.LiteralValue.(bool)
	if !lok || !rok {
		// a NULL literal in a junction stays NULL
		return expression.NewLiteral(nil, sql.Boolean), nil
	}
	var value bool
	switch node.Kind {
	case expression.KindAnd:
		value = lb && rb
	case expression.KindOr:
		value = lb || rb
	default:
		value = lb != rb
	}
	return expression.NewLiteral(value, sql.Boolean), nil
}

func isLiteral(node *expression.Node) bool {
	return node != nil && node.Kind == expression.KindLiteral
}
