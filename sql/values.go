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

package sql

import (
	"bytes"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// IntervalValue is the value representation of the Interval type. Months are
// kept apart from the sub-month duration because month lengths vary.
type IntervalValue struct {
	Months   int64
	Duration time.Duration
}

// AddTo applies the interval to an instant.
func (iv IntervalValue) AddTo(t time.Time) time.Time {
	return t.AddDate(0, int(iv.Months), 0).Add(iv.Duration)
}

// SubtractFrom removes the interval from an instant.
func (iv IntervalValue) SubtractFrom(t time.Time) time.Time {
	return t.AddDate(0, -int(iv.Months), 0).Add(-iv.Duration)
}

// TypeOfValue maps a Go value to the column type it represents.
func TypeOfValue(v interface{}) Type {
	switch v.(type) {
	case nil:
		return Null
	case bool:
		return Boolean
	case int, int8, int16, int32, int64, uint, uint32, uint64:
		return Integer
	case float32, float64:
		return Double
	case decimal.Decimal:
		return Decimal
	case time.Time:
		return Timestamp
	case IntervalValue:
		return Interval
	case string:
		return Varchar
	case []byte:
		return Blob
	case []interface{}:
		return Array
	case map[string]interface{}:
		return Struct
	}
	return Null
}

// CompareValues orders two non-nil values, coercing numerics as needed.
// NULL orders before everything; two NULLs are equal. Values whose types
// cannot be reconciled return ErrIncompatibleTypes.
func CompareValues(a, b interface{}) (int, error) {
	if a == nil && b == nil {
		return 0, nil
	}
	if a == nil {
		return -1, nil
	}
	if b == nil {
		return 1, nil
	}

	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, ErrIncompatibleTypes.New(TypeOfValue(a), TypeOfValue(b))
		}
		switch {
		case av == bv:
			return 0, nil
		case !av:
			return -1, nil
		default:
			return 1, nil
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, ErrIncompatibleTypes.New(TypeOfValue(a), TypeOfValue(b))
		}
		switch {
		case av == bv:
			return 0, nil
		case av < bv:
			return -1, nil
		default:
			return 1, nil
		}
	case []byte:
		bv, ok := b.([]byte)
		if !ok {
			return 0, ErrIncompatibleTypes.New(TypeOfValue(a), TypeOfValue(b))
		}
		return bytes.Compare(av, bv), nil
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, ErrIncompatibleTypes.New(TypeOfValue(a), TypeOfValue(b))
		}
		switch {
		case av.Equal(bv):
			return 0, nil
		case av.Before(bv):
			return -1, nil
		default:
			return 1, nil
		}
	}

	if TypeOfValue(a).IsNumeric() && TypeOfValue(b).IsNumeric() {
		return compareNumeric(a, b)
	}
	return 0, ErrIncompatibleTypes.New(TypeOfValue(a), TypeOfValue(b))
}

func compareNumeric(a, b interface{}) (int, error) {
	// decimals compare exactly, everything else goes through float64
	ad, aIsDec := a.(decimal.Decimal)
	bd, bIsDec := b.(decimal.Decimal)
	if aIsDec || bIsDec {
		if !aIsDec {
			ad = decimal.NewFromFloat(cast.ToFloat64(a))
		}
		if !bIsDec {
			bd = decimal.NewFromFloat(cast.ToFloat64(b))
		}
		return ad.Cmp(bd), nil
	}
	af, err := cast.ToFloat64E(a)
	if err != nil {
		return 0, ErrIncompatibleTypes.New(TypeOfValue(a), TypeOfValue(b))
	}
	bf, err := cast.ToFloat64E(b)
	if err != nil {
		return 0, ErrIncompatibleTypes.New(TypeOfValue(a), TypeOfValue(b))
	}
	switch {
	case af == bf:
		return 0, nil
	case af < bf:
		return -1, nil
	default:
		return 1, nil
	}
}

// ValuesEqual reports value equality under CompareValues ordering. NULL is
// not equal to anything, including NULL.
func ValuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return false
	}
	cmp, err := CompareValues(a, b)
	return err == nil && cmp == 0
}

// SizeOfValue estimates the in-memory footprint of a value in bytes. It is
// used for batch byte accounting, not allocation.
func SizeOfValue(v interface{}) int {
	switch tv := v.(type) {
	case nil:
		return 1
	case bool:
		return 1
	case int, int64, uint64, float64, time.Duration:
		return 8
	case decimal.Decimal:
		return 16
	case time.Time:
		return 24
	case IntervalValue:
		return 16
	case string:
		return len(tv) + 16
	case []byte:
		return len(tv) + 24
	case []interface{}:
		size := 24
		for _, item := range tv {
			size += SizeOfValue(item)
		}
		return size
	case map[string]interface{}:
		size := 48
		for k, item := range tv {
			size += len(k) + SizeOfValue(item)
		}
		return size
	}
	return 8
}
