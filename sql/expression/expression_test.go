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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestreldb/kestrel/sql"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		expr     *Node
		expected string
	}{
		{NewLiteral(int64(42), sql.Integer), "42"},
		{NewLiteral("it's", sql.Varchar), "'it''s'"},
		{NewLiteral(nil, sql.Null), "null"},
		{NewIdentifier("c1", "users", "name"), "users.name"},
		{NewComparison(OpEq, NewIdentifier("c1", "t", "x"), NewLiteral(int64(5), sql.Integer)), "t.x = 5"},
		{NewComparison(OpLike, NewIdentifier("c1", "t", "x"), NewLiteral("a%", sql.Varchar)), "t.x LIKE 'a%'"},
		{NewBinary(OpStringConcat, NewIdentifier("c1", "t", "a"), NewIdentifier("c2", "t", "b")), "t.a || t.b"},
		{NewUnary(OpIsNull, NewIdentifier("c1", "t", "x")), "t.x IS NULL"},
		{NewUnary(OpNot, NewLiteral(true, sql.Boolean)), "NOT true"},
		{NewAnd(NewLiteral(true, sql.Boolean), NewLiteral(false, sql.Boolean)), "true AND false"},
		{NewNested(NewLiteral(int64(1), sql.Integer)), "(1)"},
		{NewFunction("upper", NewIdentifier("c1", "t", "x")), "UPPER(t.x)"},
		{NewWildcard(""), "*"},
		{NewWildcard("t"), "t.*"},
	}
	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			require.Equal(t, test.expected, Format(test.expr))
		})
	}
}

func TestFormatAggregatorModifiers(t *testing.T) {
	require := require.New(t)
	agg := NewAggregator("array_agg", NewIdentifier("c1", "t", "x"))
	agg.Distinct = true
	agg.Order = []OrderTerm{{Expr: NewIdentifier("c1", "t", "x"), Descending: true}}
	agg.Limit = 3
	require.Equal("ARRAY_AGG(DISTINCT t.x ORDER BY t.x DESC LIMIT 3)", Format(agg))
}

func TestSplitConjunctions(t *testing.T) {
	require := require.New(t)
	a := NewComparison(OpGt, NewIdentifier("c1", "t", "a"), NewLiteral(int64(1), sql.Integer))
	b := NewComparison(OpLt, NewIdentifier("c2", "t", "b"), NewLiteral(int64(2), sql.Integer))
	c := NewComparison(OpEq, NewIdentifier("c3", "t", "c"), NewLiteral(int64(3), sql.Integer))
	condition := NewAnd(NewAnd(a, b), c)

	split := SplitConjunctions(condition)
	require.Equal([]*Node{a, b, c}, split)

	// nesting is transparent to the split
	require.Len(SplitConjunctions(NewNested(condition)), 3)
	require.Equal([]*Node{a}, SplitConjunctions(a))
}

func TestReferencedRelationsAndIdentities(t *testing.T) {
	require := require.New(t)
	cond := NewComparison(OpEq,
		NewIdentifier("a.id", "A", "id"),
		NewIdentifier("b.id", "B", "id"))
	require.Equal([]string{"A", "B"}, ReferencedRelations(cond))
	require.Equal([]string{"a.id", "b.id"}, ReferencedIdentities(cond))
}

func TestContainsAggregator(t *testing.T) {
	require := require.New(t)
	cond := NewComparison(OpGt,
		NewAggregator("SUM", NewIdentifier("c1", "t", "x")),
		NewLiteral(int64(10), sql.Integer))
	require.True(ContainsAggregator(cond))
	require.False(ContainsAggregator(cond.Right))
}

func TestCopyIsDeep(t *testing.T) {
	require := require.New(t)
	original := NewComparison(OpEq, NewIdentifier("c1", "t", "x"), NewLiteral(int64(5), sql.Integer))
	clone := original.Copy()
	clone.Left.Identity = "changed"
	require.Equal("c1", original.Left.Identity)
}
