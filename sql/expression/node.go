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

// Package expression models bound expression trees: literals, identifiers,
// operators, junctions, functions, and aggregators. Trees are evaluated an
// entire batch at a time by an Evaluator.
package expression

import (
	"github.com/kestreldb/kestrel/sql"
)

// Kind tags an expression node.
type Kind int

const (
	KindUnknown Kind = iota
	KindLiteral
	KindIdentifier
	KindComparison
	KindBinary
	KindUnary
	KindAnd
	KindOr
	KindXor
	KindNested
	KindFunction
	KindAggregator
	KindWildcard
)

// Comparison operator names. Kept as strings so connectors can pattern-match
// pushable predicates without importing operator tables.
const (
	OpEq        = "Eq"
	OpNotEq     = "NotEq"
	OpLt        = "Lt"
	OpLtEq      = "LtEq"
	OpGt        = "Gt"
	OpGtEq      = "GtEq"
	OpLike      = "Like"
	OpILike     = "ILike"
	OpNotLike   = "NotLike"
	OpNotILike  = "NotILike"
	OpInList    = "InList"
	OpNotInList = "NotInList"
)

// Binary operator names.
const (
	OpPlus         = "Plus"
	OpMinus        = "Minus"
	OpMultiply     = "Multiply"
	OpDivide       = "Divide"
	OpModulo       = "Modulo"
	OpStringConcat = "StringConcat"
	OpBitwiseAnd   = "BitwiseAnd"
	OpBitwiseOr    = "BitwiseOr"
	OpBitwiseXor   = "BitwiseXor"
)

// Unary operator names.
const (
	OpIsNull    = "IsNull"
	OpIsNotNull = "IsNotNull"
	OpIsTrue    = "IsTrue"
	OpIsFalse   = "IsFalse"
	OpNot       = "Not"
)

// OrderTerm is one ORDER BY element on an array-style aggregator.
type OrderTerm struct {
	Expr       *Node
	Descending bool
}

// Node is one node of an expression tree. Which fields are populated depends
// on Kind; Value holds the operator or function name for operator-like
// kinds.
type Node struct {
	Kind  Kind
	Value string

	// literal payload
	LiteralValue interface{}
	LiteralType  sql.Type

	// identifier payload; Identity keys the column, Source names the
	// relation it came from, Name is presentation only
	Identity string
	Source   string
	Name     string

	Left       *Node
	Right      *Node
	Centre     *Node
	Parameters []*Node

	// aggregator modifiers
	Distinct bool
	Order    []OrderTerm
	Limit    int

	// SchemaColumn is the column a computed expression lands in; it carries
	// the target identity EvaluateAndAppend keys on.
	SchemaColumn *sql.Column

	// predicate tags, populated by the optimizer
	Weight    int
	Simple    bool
	Relations []string
}

// NewLiteral builds a literal node carrying both the raw value and its type.
func NewLiteral(value interface{}, typ sql.Type) *Node {
	return &Node{Kind: KindLiteral, LiteralValue: value, LiteralType: typ}
}

// NewIdentifier builds a column reference by identity.
func NewIdentifier(identity, source, name string) *Node {
	return &Node{Kind: KindIdentifier, Identity: identity, Source: source, Name: name}
}

// NewComparison builds a comparison operator node.
func NewComparison(op string, left, right *Node) *Node {
	return &Node{Kind: KindComparison, Value: op, Left: left, Right: right}
}

// NewBinary builds a binary arithmetic/string/bitwise operator node.
func NewBinary(op string, left, right *Node) *Node {
	return &Node{Kind: KindBinary, Value: op, Left: left, Right: right}
}

// NewUnary builds a unary operator node over its operand.
func NewUnary(op string, centre *Node) *Node {
	return &Node{Kind: KindUnary, Value: op, Centre: centre}
}

// NewAnd conjoins two conditions.
func NewAnd(left, right *Node) *Node {
	return &Node{Kind: KindAnd, Left: left, Right: right}
}

// NewOr disjoins two conditions.
func NewOr(left, right *Node) *Node {
	return &Node{Kind: KindOr, Left: left, Right: right}
}

// NewXor builds an exclusive-or junction.
func NewXor(left, right *Node) *Node {
	return &Node{Kind: KindXor, Left: left, Right: right}
}

// NewNested wraps a parenthetical expression. Semantically transparent but
// preserved by rewrites; constant folding collapses it.
func NewNested(centre *Node) *Node {
	return &Node{Kind: KindNested, Centre: centre}
}

// NewFunction builds a function call node.
func NewFunction(name string, parameters ...*Node) *Node {
	return &Node{Kind: KindFunction, Value: name, Parameters: parameters}
}

// NewAggregator builds an aggregator node such as SUM or ARRAY_AGG.
func NewAggregator(name string, parameters ...*Node) *Node {
	return &Node{Kind: KindAggregator, Value: name, Parameters: parameters}
}

// NewWildcard builds `*` (empty qualifier) or `t.*`.
func NewWildcard(qualifier string) *Node {
	return &Node{Kind: KindWildcard, Value: qualifier}
}

// IsLiteralBool reports whether the node is a boolean literal of the given
// value.
func (n *Node) IsLiteralBool(v bool) bool {
	if n == nil || n.Kind != KindLiteral || n.LiteralType != sql.Boolean {
		return false
	}
	b, ok := n.LiteralValue.(bool)
	return ok && b == v
}

// Copy deep-copies the node.
func (n *Node) Copy() *Node {
	if n == nil {
		return nil
	}
	nn := *n
	nn.Left = n.Left.Copy()
	nn.Right = n.Right.Copy()
	nn.Centre = n.Centre.Copy()
	if n.Parameters != nil {
		nn.Parameters = make([]*Node, len(n.Parameters))
		for i, p := range n.Parameters {
			nn.Parameters[i] = p.Copy()
		}
	}
	if n.Order != nil {
		nn.Order = make([]OrderTerm, len(n.Order))
		for i, o := range n.Order {
			nn.Order[i] = OrderTerm{Expr: o.Expr.Copy(), Descending: o.Descending}
		}
	}
	if n.Relations != nil {
		nn.Relations = append([]string(nil), n.Relations...)
	}
	if n.SchemaColumn != nil {
		nn.SchemaColumn = n.SchemaColumn.Copy()
	}
	return &nn
}
