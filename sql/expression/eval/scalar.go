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
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
)

// ApplyComparison evaluates a comparison operator over two scalar values.
// The result is bool, or nil when either side is NULL. Constant folding and
// the row loops both go through here.
func ApplyComparison(op string, left, right interface{}) (interface{}, error) {
	if left == nil || right == nil {
		return nil, nil
	}
	switch op {
	case expression.OpEq, expression.OpNotEq, expression.OpLt, expression.OpLtEq, expression.OpGt, expression.OpGtEq:
		cmp, err := sql.CompareValues(left, right)
		if err != nil {
			return nil, err
		}
		switch op {
		case expression.OpEq:
			return cmp == 0, nil
		case expression.OpNotEq:
			return cmp != 0, nil
		case expression.OpLt:
			return cmp < 0, nil
		case expression.OpLtEq:
			return cmp <= 0, nil
		case expression.OpGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	case expression.OpLike, expression.OpILike, expression.OpNotLike, expression.OpNotILike:
		return applyLike(op, left, right)
	case expression.OpInList, expression.OpNotInList:
		list, ok := right.([]interface{})
		if !ok {
			return nil, sql.ErrSQL.New("IN requires a list operand")
		}
		found := false
		for _, item := range list {
			if sql.ValuesEqual(left, item) {
				found = true
				break
			}
		}
		if op == expression.OpInList {
			return found, nil
		}
		return !found, nil
	}
	return nil, sql.ErrUnsupportedSyntax.New("comparison operator " + op)
}

func applyLike(op string, left, right interface{}) (interface{}, error) {
	subject, ok := left.(string)
	if !ok {
		return nil, sql.ErrSQL.New("LIKE requires string operands")
	}
	pattern, ok := right.(string)
	if !ok {
		return nil, sql.ErrSQL.New("LIKE requires string operands")
	}
	insensitive := op == expression.OpILike || op == expression.OpNotILike
	matched, err := likeMatch(subject, pattern, insensitive)
	if err != nil {
		return nil, err
	}
	if op == expression.OpNotLike || op == expression.OpNotILike {
		return !matched, nil
	}
	return matched, nil
}

func likeMatch(subject, pattern string, insensitive bool) (bool, error) {
	var sb strings.Builder
	if insensitive {
		sb.WriteString("(?is)")
	} else {
		sb.WriteString("(?s)")
	}
	sb.WriteString("\\A")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("\\z")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return false, sql.ErrSQL.New("invalid LIKE pattern " + pattern)
	}
	return re.MatchString(subject), nil
}

// ApplyBinary evaluates an arithmetic, string, or bitwise operator over two
// scalar values, including date/interval arithmetic. NULL operands yield
// NULL.
func ApplyBinary(op string, left, right interface{}) (interface{}, error) {
	if left == nil || right == nil {
		return nil, nil
	}

	// temporal arithmetic
	if lt, ok := left.(time.Time); ok {
		switch rv := right.(type) {
		case sql.IntervalValue:
			switch op {
			case expression.OpPlus:
				return rv.AddTo(lt), nil
			case expression.OpMinus:
				return rv.SubtractFrom(lt), nil
			}
		case time.Time:
			if op == expression.OpMinus {
				return sql.IntervalValue{Duration: lt.Sub(rv)}, nil
			}
		}
		return nil, sql.ErrIncompatibleTypes.New(sql.TypeOfValue(left), sql.TypeOfValue(right))
	}
	if li, ok := left.(sql.IntervalValue); ok {
		switch rv := right.(type) {
		case time.Time:
			if op == expression.OpPlus {
				return li.AddTo(rv), nil
			}
		case sql.IntervalValue:
			switch op {
			case expression.OpPlus:
				return sql.IntervalValue{Months: li.Months + rv.Months, Duration: li.Duration + rv.Duration}, nil
			case expression.OpMinus:
				return sql.IntervalValue{Months: li.Months - rv.Months, Duration: li.Duration - rv.Duration}, nil
			}
		}
		return nil, sql.ErrIncompatibleTypes.New(sql.TypeOfValue(left), sql.TypeOfValue(right))
	}

	if op == expression.OpStringConcat {
		ls, lok := left.(string)
		rs, rok := right.(string)
		if !lok || !rok {
			return nil, sql.ErrSQL.New("|| requires string operands")
		}
		return ls + rs, nil
	}

	switch op {
	case expression.OpBitwiseAnd, expression.OpBitwiseOr, expression.OpBitwiseXor:
		li, lerr := cast.ToInt64E(left)
		ri, rerr := cast.ToInt64E(right)
		if lerr != nil || rerr != nil {
			return nil, sql.ErrSQL.New("bitwise operators require integer operands")
		}
		switch op {
		case expression.OpBitwiseAnd:
			return li & ri, nil
		case expression.OpBitwiseOr:
			return li | ri, nil
		default:
			return li ^ ri, nil
		}
	}

	return applyNumeric(op, left, right)
}

func applyNumeric(op string, left, right interface{}) (interface{}, error) {
	lt, rt := sql.TypeOfValue(left), sql.TypeOfValue(right)
	if !lt.IsNumeric() || !rt.IsNumeric() {
		return nil, sql.ErrIncompatibleTypes.New(lt, rt)
	}

	// decimal arithmetic is exact and sticky
	ld, lIsDec := left.(decimal.Decimal)
	rd, rIsDec := right.(decimal.Decimal)
	if lIsDec || rIsDec {
		if !lIsDec {
			ld = decimal.NewFromFloat(cast.ToFloat64(left))
		}
		if !rIsDec {
			rd = decimal.NewFromFloat(cast.ToFloat64(right))
		}
		switch op {
		case expression.OpPlus:
			return ld.Add(rd), nil
		case expression.OpMinus:
			return ld.Sub(rd), nil
		case expression.OpMultiply:
			return ld.Mul(rd), nil
		case expression.OpDivide:
			if rd.IsZero() {
				return nil, nil
			}
			return ld.Div(rd), nil
		case expression.OpModulo:
			if rd.IsZero() {
				return nil, nil
			}
			return ld.Mod(rd), nil
		}
		return nil, sql.ErrUnsupportedSyntax.New("binary operator " + op)
	}

	if lt == sql.Integer && rt == sql.Integer && op != expression.OpDivide {
		li, ri := cast.ToInt64(left), cast.ToInt64(right)
		switch op {
		case expression.OpPlus:
			return li + ri, nil
		case expression.OpMinus:
			return li - ri, nil
		case expression.OpMultiply:
			return li * ri, nil
		case expression.OpModulo:
			if ri == 0 {
				return nil, nil
			}
			return li % ri, nil
		}
		return nil, sql.ErrUnsupportedSyntax.New("binary operator " + op)
	}

	lf, rf := cast.ToFloat64(left), cast.ToFloat64(right)
	switch op {
	case expression.OpPlus:
		return lf + rf, nil
	case expression.OpMinus:
		return lf - rf, nil
	case expression.OpMultiply:
		return lf * rf, nil
	case expression.OpDivide:
		if rf == 0 {
			return nil, nil
		}
		return lf / rf, nil
	}
	return nil, sql.ErrUnsupportedSyntax.New("binary operator " + op)
}

// ApplyUnary evaluates a unary operator over a scalar value.
func ApplyUnary(op string, value interface{}) (interface{}, error) {
	switch op {
	case expression.OpIsNull:
		return value == nil, nil
	case expression.OpIsNotNull:
		return value != nil, nil
	case expression.OpIsTrue:
		b, ok := value.(bool)
		return ok && b, nil
	case expression.OpIsFalse:
		b, ok := value.(bool)
		return ok && !b, nil
	case expression.OpNot:
		if value == nil {
			return nil, nil
		}
		b, ok := value.(bool)
		if !ok {
			return nil, sql.ErrSQL.New("NOT requires a boolean operand")
		}
		return !b, nil
	}
	return nil, sql.ErrUnsupportedSyntax.New("unary operator " + op)
}
