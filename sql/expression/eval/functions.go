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
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"github.com/kestreldb/kestrel/internal/similartext"
	"github.com/kestreldb/kestrel/sql"
)

// function is one scalar function. Fixed functions have an output that is
// constant for the whole query and are folded to literals at plan time.
type function struct {
	fixed      bool
	resultType sql.Type
	apply      func(ctx *sql.Context, args []interface{}) (interface{}, error)
}

var functions = map[string]function{
	"NOW": {fixed: true, resultType: sql.Timestamp, apply: func(_ *sql.Context, _ []interface{}) (interface{}, error) {
		return time.Now().UTC(), nil
	}},
	"CURRENT_TIMESTAMP": {fixed: true, resultType: sql.Timestamp, apply: func(_ *sql.Context, _ []interface{}) (interface{}, error) {
		return time.Now().UTC(), nil
	}},
	"CURRENT_DATE": {fixed: true, resultType: sql.Date, apply: func(_ *sql.Context, _ []interface{}) (interface{}, error) {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}},
	"TODAY": {fixed: true, resultType: sql.Date, apply: func(_ *sql.Context, _ []interface{}) (interface{}, error) {
		return time.Now().UTC().Truncate(24 * time.Hour), nil
	}},
	"YESTERDAY": {fixed: true, resultType: sql.Date, apply: func(_ *sql.Context, _ []interface{}) (interface{}, error) {
		return time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, -1), nil
	}},
	"VERSION": {fixed: true, resultType: sql.Varchar, apply: func(_ *sql.Context, _ []interface{}) (interface{}, error) {
		return sql.EngineVersion, nil
	}},
	"PI": {fixed: true, resultType: sql.Double, apply: func(_ *sql.Context, _ []interface{}) (interface{}, error) {
		return math.Pi, nil
	}},
	"E": {fixed: true, resultType: sql.Double, apply: func(_ *sql.Context, _ []interface{}) (interface{}, error) {
		return math.E, nil
	}},
	"RAND": {resultType: sql.Double, apply: func(_ *sql.Context, _ []interface{}) (interface{}, error) {
		return rand.Float64(), nil
	}},
	"UPPER": {resultType: sql.Varchar, apply: stringFunc(strings.ToUpper)},
	"LOWER": {resultType: sql.Varchar, apply: stringFunc(strings.ToLower)},
	"TRIM": {resultType: sql.Varchar, apply: stringFunc(strings.TrimSpace)},
	"REVERSE": {resultType: sql.Varchar, apply: stringFunc(func(s string) string {
		runes := []rune(s)
		for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
			runes[i], runes[j] = runes[j], runes[i]
		}
		return string(runes)
	})},
	"LENGTH": {resultType: sql.Integer, apply: func(_ *sql.Context, args []interface{}) (interface{}, error) {
		if args[0] == nil {
			return nil, nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, sql.ErrSQL.New("LENGTH requires a string argument")
		}
		return int64(len(s)), nil
	}},
	"ABS": {resultType: sql.Double, apply: func(_ *sql.Context, args []interface{}) (interface{}, error) {
		switch v := args[0].(type) {
		case nil:
			return nil, nil
		case int64:
			if v < 0 {
				return -v, nil
			}
			return v, nil
		case decimal.Decimal:
			return v.Abs(), nil
		}
		f, err := cast.ToFloat64E(args[0])
		if err != nil {
			return nil, sql.ErrSQL.New("ABS requires a numeric argument")
		}
		return math.Abs(f), nil
	}},
	"CEIL": {resultType: sql.Double, apply: mathFunc(math.Ceil)},
	"FLOOR": {resultType: sql.Double, apply: mathFunc(math.Floor)},
	"ROUND": {resultType: sql.Double, apply: mathFunc(math.Round)},
	"SQRT":  {resultType: sql.Double, apply: mathFunc(math.Sqrt)},
	"COALESCE": {resultType: sql.Null, apply: func(_ *sql.Context, args []interface{}) (interface{}, error) {
		for _, a := range args {
			if a != nil {
				return a, nil
			}
		}
		return nil, nil
	}},
}

func stringFunc(fn func(string) string) func(*sql.Context, []interface{}) (interface{}, error) {
	return func(_ *sql.Context, args []interface{}) (interface{}, error) {
		if args[0] == nil {
			return nil, nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, sql.ErrSQL.New("function requires a string argument")
		}
		return fn(s), nil
	}
}

func mathFunc(fn func(float64) float64) func(*sql.Context, []interface{}) (interface{}, error) {
	return func(_ *sql.Context, args []interface{}) (interface{}, error) {
		if args[0] == nil {
			return nil, nil
		}
		f, err := cast.ToFloat64E(args[0])
		if err != nil {
			return nil, sql.ErrSQL.New("function requires a numeric argument")
		}
		return fn(f), nil
	}
}

func lookupFunction(name string) (function, error) {
	fn, ok := functions[strings.ToUpper(name)]
	if !ok {
		names := make([]string, 0, len(functions))
		for n := range functions {
			names = append(names, n)
		}
		return function{}, sql.ErrUnknownFunction.New(name, similartext.FindSimilar(name, names))
	}
	return fn, nil
}

// IsFixedOutcomeFunction reports whether the named function's output is
// constant for the whole query, making it foldable at plan time.
func IsFixedOutcomeFunction(name string) bool {
	fn, ok := functions[strings.ToUpper(name)]
	return ok && fn.fixed
}

// ApplyFixedFunction evaluates a fixed-outcome function once and returns the
// value and its type.
func ApplyFixedFunction(ctx *sql.Context, name string, args []interface{}) (interface{}, sql.Type, error) {
	fn, err := lookupFunction(name)
	if err != nil {
		return nil, sql.Null, err
	}
	if !fn.fixed {
		return nil, sql.Null, sql.ErrInvalidInternalState.New("function " + name + " is not fixed-outcome")
	}
	v, err := fn.apply(ctx, args)
	return v, fn.resultType, err
}

// FunctionResultType returns the declared result type of a function.
func FunctionResultType(name string) sql.Type {
	fn, ok := functions[strings.ToUpper(name)]
	if !ok {
		return sql.Null
	}
	return fn.resultType
}
