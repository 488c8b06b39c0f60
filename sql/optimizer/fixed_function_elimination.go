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

// FixedFunctionElimination evaluates functions whose output is constant for
// the whole query (NOW, CURRENT_DATE, VERSION, ...) once at plan time and
// replaces them with literals.
type FixedFunctionElimination struct{}

func (s *FixedFunctionElimination) Name() string {
	return "FixedFunctionElimination"
}

func (s *FixedFunctionElimination) Visit(_ *Context, _ string, node *plan.Node) error {
	var err error
	replace := func(e *expression.Node) *expression.Node {
		out, rerr := replaceFixedFunctions(e)
		if rerr != nil && err == nil {
			err = rerr
		}
		return out
	}
	node.Condition = replace(node.Condition)
	for i, c := range node.ConditionList {
		node.ConditionList[i] = replace(c)
	}
	for i, c := range node.Columns {
		node.Columns[i] = replace(c)
	}
	node.On = replace(node.On)
	for i, f := range node.OrderBy {
		node.OrderBy[i].Expr = replace(f.Expr)
	}
	return err
}

func (s *FixedFunctionElimination) Complete(_ *Context, p *plan.Dag) (*plan.Dag, error) {
	return p, nil
}

func replaceFixedFunctions(node *expression.Node) (*expression.Node, error) {
	if node == nil {
		return nil, nil
	}
	var err error
	node.Left, err = replaceFixedFunctions(node.Left)
	if err != nil {
		return nil, err
	}
	node.Centre, err = replaceFixedFunctions(node.Centre)
	if err != nil {
		return nil, err
	}
	node.Right, err = replaceFixedFunctions(node.Right)
	if err != nil {
		return nil, err
	}
	for i, p := range node.Parameters {
		node.Parameters[i], err = replaceFixedFunctions(p)
		if err != nil {
			return nil, err
		}
	}

	if node.Kind != expression.KindFunction || !eval.IsFixedOutcomeFunction(node.Value) {
		return node, nil
	}
	args := make([]interface{}, len(node.Parameters))
	for i, p := range node.Parameters {
		if p.Kind != expression.KindLiteral {
			return node, nil
		}
		args[i] = p.LiteralValue
	}
	value, typ, err := eval.ApplyFixedFunction(sql.NewEmptyContext(), node.Value, args)
	if err != nil {
		return nil, err
	}
	literal := expression.NewLiteral(value, typ)
	literal.SchemaColumn = node.SchemaColumn
	return literal, nil
}
