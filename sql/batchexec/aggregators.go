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
	"math"
	"sort"
	"strings"

	"github.com/spf13/cast"

	"github.com/kestreldb/kestrel/internal/similartext"
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/expression/eval"
	"github.com/kestreldb/kestrel/sql/hash"
)

// canonical aggregator names; well-known aliases map onto them
const (
	aggSum           = "SUM"
	aggMin           = "MIN"
	aggMax           = "MAX"
	aggAvg           = "AVG"
	aggCount         = "COUNT"
	aggCountDistinct = "COUNT_DISTINCT"
	aggAnyValue      = "ANY_VALUE"
	aggArrayAgg      = "ARRAY_AGG"
	aggStddev        = "STDDEV"
	aggVariance      = "VARIANCE"
	aggProduct       = "PRODUCT"
)

var aggregatorAliases = map[string]string{
	"SUM": aggSum, "MIN": aggMin, "MINIMUM": aggMin, "MAX": aggMax,
	"MAXIMUM": aggMax, "AVG": aggAvg, "MEAN": aggAvg, "AVERAGE": aggAvg,
	"COUNT": aggCount, "COUNT_DISTINCT": aggCountDistinct,
	"ANY_VALUE": aggAnyValue, "ONE": aggAnyValue,
	"ARRAY_AGG": aggArrayAgg, "LIST": aggArrayAgg,
	"STDDEV": aggStddev, "VARIANCE": aggVariance, "PRODUCT": aggProduct,
}

// canonicalAggregator resolves an aggregator node to its canonical name,
// folding the DISTINCT modifier on COUNT.
func canonicalAggregator(node *expression.Node) (string, error) {
	name, ok := aggregatorAliases[strings.ToUpper(node.Value)]
	if !ok {
		candidates := make([]string, 0, len(aggregatorAliases))
		for alias := range aggregatorAliases {
			candidates = append(candidates, alias)
		}
		return "", sql.ErrUnknownFunction.New(node.Value, similartext.FindSimilar(node.Value, candidates))
	}
	if name == aggCount && node.Distinct {
		return aggCountDistinct, nil
	}
	return name, nil
}

// accumulator is a running aggregation over a stream of values.
type accumulator struct {
	kind     string
	distinct bool

	count    int64 // non-null inputs (rows for COUNT(*))
	sum      interface{}
	sumsq    float64
	min      interface{}
	max      interface{}
	any      interface{}
	seen     map[uint64]struct{}
	distincts []interface{}
	values   []interface{}
}

func newAccumulator(kind string, distinct bool) *accumulator {
	return &accumulator{kind: kind, distinct: distinct, seen: make(map[uint64]struct{})}
}

func (a *accumulator) update(v interface{}) error {
	if v == nil && a.kind != aggArrayAgg {
		return nil
	}
	switch a.kind {
	case aggCount:
		a.count++
	case aggCountDistinct:
		h := hash.Value(v)
		if _, dup := a.seen[h]; !dup {
			a.seen[h] = struct{}{}
			a.distincts = append(a.distincts, v)
			a.count++
		}
	case aggSum, aggAvg:
		a.count++
		if a.sum == nil {
			a.sum = v
			return nil
		}
		sum, err := eval.ApplyBinary(expression.OpPlus, a.sum, v)
		if err != nil {
			return err
		}
		a.sum = sum
	case aggProduct:
		if a.sum == nil {
			a.sum = v
			return nil
		}
		product, err := eval.ApplyBinary(expression.OpMultiply, a.sum, v)
		if err != nil {
			return err
		}
		a.sum = product
	case aggMin:
		if a.min == nil {
			a.min = v
			return nil
		}
		cmp, err := sql.CompareValues(v, a.min)
		if err != nil {
			return err
		}
		if cmp < 0 {
			a.min = v
		}
	case aggMax:
		if a.max == nil {
			a.max = v
			return nil
		}
		cmp, err := sql.CompareValues(v, a.max)
		if err != nil {
			return err
		}
		if cmp > 0 {
			a.max = v
		}
	case aggAnyValue:
		if a.any == nil {
			a.any = v
		}
	case aggArrayAgg:
		a.values = append(a.values, v)
	case aggStddev, aggVariance:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return sql.ErrSQL.New(a.kind + " requires numeric input")
		}
		a.count++
		sum, err := eval.ApplyBinary(expression.OpPlus, orZero(a.sum), f)
		if err != nil {
			return err
		}
		a.sum = sum
		a.sumsq += f * f
	}
	return nil
}

// updateCountStar counts rows, nulls included.
func (a *accumulator) updateCountStar(rows int) {
	a.count += int64(rows)
}

// updateLiteral folds a literal-only aggregate over a whole batch at once:
// the running value advances by literal * row count without a row loop.
func (a *accumulator) updateLiteral(literal interface{}, rows int) error {
	if rows == 0 || literal == nil {
		return nil
	}
	switch a.kind {
	case aggSum, aggAvg:
		contribution, err := eval.ApplyBinary(expression.OpMultiply, literal, int64(rows))
		if err != nil {
			return err
		}
		sum, err := eval.ApplyBinary(expression.OpPlus, orZero(a.sum), contribution)
		if err != nil {
			return err
		}
		a.sum = sum
		a.count += int64(rows)
		return nil
	default:
		for i := 0; i < rows; i++ {
			if err := a.update(literal); err != nil {
				return err
			}
		}
		return nil
	}
}

func (a *accumulator) final(node *expression.Node) (interface{}, error) {
	switch a.kind {
	case aggCount, aggCountDistinct:
		return a.count, nil
	case aggSum, aggProduct:
		return a.sum, nil
	case aggAvg:
		if a.count == 0 {
			return nil, nil
		}
		return eval.ApplyBinary(expression.OpDivide, a.sum, a.count)
	case aggMin:
		return a.min, nil
	case aggMax:
		return a.max, nil
	case aggAnyValue:
		return a.any, nil
	case aggArrayAgg:
		return finalizeArrayAgg(a.values, node)
	case aggStddev, aggVariance:
		return finalizeDispersion(a.kind, a.count, a.sum, a.sumsq)
	}
	return nil, sql.ErrUnsupportedSyntax.New("aggregator " + a.kind)
}

// finalizeArrayAgg applies the aggregator's distinct, order, and limit
// modifiers to the collected values.
func finalizeArrayAgg(values []interface{}, node *expression.Node) (interface{}, error) {
	if node != nil && node.Distinct {
		seen := make(map[uint64]struct{}, len(values))
		deduped := make([]interface{}, 0, len(values))
		for _, v := range values {
			h := hash.Value(v)
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			deduped = append(deduped, v)
		}
		values = deduped
	}
	if node != nil && len(node.Order) > 0 {
		descending := node.Order[0].Descending
		var sortErr error
		sort.SliceStable(values, func(i, j int) bool {
			cmp, err := sql.CompareValues(values[i], values[j])
			if err != nil && sortErr == nil {
				sortErr = err
			}
			if descending {
				return cmp > 0
			}
			return cmp < 0
		})
		if sortErr != nil {
			return nil, sortErr
		}
	}
	if node != nil && node.Limit > 0 && len(values) > node.Limit {
		values = values[:node.Limit]
	}
	return values, nil
}

// finalizeDispersion derives population variance or stddev from the
// (count, sum, sum-of-squares) partials.
func finalizeDispersion(kind string, count int64, sum interface{}, sumsq float64) (interface{}, error) {
	if count == 0 {
		return nil, nil
	}
	n := float64(count)
	mean := cast.ToFloat64(sum) / n
	variance := sumsq/n - mean*mean
	if variance < 0 {
		variance = 0
	}
	if kind == aggVariance {
		return variance, nil
	}
	return math.Sqrt(variance), nil
}

func orZero(v interface{}) interface{} {
	if v == nil {
		return int64(0)
	}
	return v
}
