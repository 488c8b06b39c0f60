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

package eval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
)

func testBatch(t *testing.T) *sql.Batch {
	t.Helper()
	schema := sql.Schema{
		{Identity: "t.x", Name: "x", Source: "t", Type: sql.Integer},
		{Identity: "t.s", Name: "s", Source: "t", Type: sql.Varchar},
	}
	batch, err := sql.NewBatch(schema, [][]interface{}{
		{int64(1), int64(2), int64(3), nil},
		{"apple", "banana", "cherry", nil},
	})
	require.NoError(t, err)
	return batch
}

func TestEvaluateComparisonMask(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	ev := NewEvaluator()
	batch := testBatch(t)

	expr := expression.NewComparison(expression.OpGt,
		expression.NewIdentifier("t.x", "t", "x"),
		expression.NewLiteral(int64(1), sql.Integer))
	mask, err := ev.Evaluate(ctx, expr, batch)
	require.NoError(err)
	require.Equal([]interface{}{false, true, true, nil}, mask)
}

func TestEvaluateIsReferentiallyTransparent(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	ev := NewEvaluator()
	batch := testBatch(t)

	expr := expression.NewBinary(expression.OpMultiply,
		expression.NewIdentifier("t.x", "t", "x"),
		expression.NewLiteral(int64(10), sql.Integer))
	first, err := ev.Evaluate(ctx, expr, batch)
	require.NoError(err)
	second, err := ev.Evaluate(ctx, expr, batch)
	require.NoError(err)
	require.Equal(first, second)
}

func TestEvaluateLike(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	ev := NewEvaluator()
	batch := testBatch(t)

	expr := expression.NewComparison(expression.OpLike,
		expression.NewIdentifier("t.s", "t", "s"),
		expression.NewLiteral("%an%", sql.Varchar))
	mask, err := ev.Evaluate(ctx, expr, batch)
	require.NoError(err)
	require.Equal([]interface{}{false, true, false, nil}, mask)
}

func TestEvaluateJunctionThreeValuedLogic(t *testing.T) {
	require := require.New(t)
	tests := []struct {
		name     string
		op       string
		a, b     interface{}
		expected interface{}
	}{
		{"false AND null is false", "and", false, nil, false},
		{"true AND null is null", "and", true, nil, nil},
		{"true OR null is true", "or", true, nil, true},
		{"false OR null is null", "or", false, nil, nil},
		{"true XOR false", "xor", true, false, true},
	}
	ctx := sql.NewEmptyContext()
	ev := NewEvaluator()
	schema := sql.Schema{{Identity: "one", Name: "one", Type: sql.Integer}}
	batch, err := sql.NewBatch(schema, [][]interface{}{{int64(1)}})
	require.NoError(err)

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			left := expression.NewLiteral(test.a, sql.Boolean)
			right := expression.NewLiteral(test.b, sql.Boolean)
			var expr *expression.Node
			switch test.op {
			case "and":
				expr = expression.NewAnd(left, right)
			case "or":
				expr = expression.NewOr(left, right)
			default:
				expr = expression.NewXor(left, right)
			}
			out, err := ev.Evaluate(ctx, expr, batch)
			require.NoError(err)
			require.Equal(test.expected, out[0])
		})
	}
}

func TestApplyBinaryTemporal(t *testing.T) {
	require := require.New(t)
	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	interval := sql.IntervalValue{Months: 1, Duration: 2 * time.Hour}

	sum, err := ApplyBinary(expression.OpPlus, base, interval)
	require.NoError(err)
	require.Equal(time.Date(2024, 4, 10, 2, 0, 0, 0, time.UTC), sum)

	diff, err := ApplyBinary(expression.OpMinus, sum.(time.Time), interval)
	require.NoError(err)
	require.Equal(base, diff)
}

func TestApplyBinaryDivideByZeroIsNull(t *testing.T) {
	require := require.New(t)
	out, err := ApplyBinary(expression.OpDivide, int64(10), int64(0))
	require.NoError(err)
	require.Nil(out)
}

func TestEvaluateAndAppendIsIdempotent(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	ev := NewEvaluator()
	batch := testBatch(t)

	expr := expression.NewFunction("UPPER", expression.NewIdentifier("t.s", "t", "s"))
	expr.SchemaColumn = &sql.Column{Identity: "t.s_upper", Name: "s_upper", Type: sql.Varchar}

	once, err := ev.EvaluateAndAppend(ctx, []*expression.Node{expr}, batch)
	require.NoError(err)
	require.Len(once.Schema(), 3)

	twice, err := ev.EvaluateAndAppend(ctx, []*expression.Node{expr}, once)
	require.NoError(err)
	require.Len(twice.Schema(), 3)

	values, err := twice.Column("t.s_upper")
	require.NoError(err)
	require.Equal([]interface{}{"APPLE", "BANANA", "CHERRY", nil}, values)
}

func TestUnknownFunctionSuggests(t *testing.T) {
	require := require.New(t)
	ctx := sql.NewEmptyContext()
	ev := NewEvaluator()
	batch := testBatch(t)

	_, err := ev.Evaluate(ctx, expression.NewFunction("UPER", expression.NewIdentifier("t.s", "t", "s")), batch)
	require.Error(err)
	require.True(sql.ErrUnknownFunction.Is(err))
	require.Contains(err.Error(), "UPPER")
}

func TestFixedOutcomeFunctions(t *testing.T) {
	require := require.New(t)
	require.True(IsFixedOutcomeFunction("now"))
	require.True(IsFixedOutcomeFunction("VERSION"))
	require.False(IsFixedOutcomeFunction("RAND"))

	value, typ, err := ApplyFixedFunction(sql.NewEmptyContext(), "VERSION", nil)
	require.NoError(err)
	require.Equal(sql.Varchar, typ)
	require.Equal(sql.EngineVersion, value)
}
