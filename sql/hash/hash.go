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

// Package hash produces stable 64-bit hashes of row values for distinct
// checks, join keys, and group keys.
package hash

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/mitchellh/hashstructure"
	"github.com/shopspring/decimal"

	"github.com/kestreldb/kestrel/sql"
)

const nullMarker = 0xf0

// Row hashes a tuple of values. Equal tuples hash equal; the hash is stable
// within a process.
func Row(values []interface{}) uint64 {
	digest := xxhash.New()
	var scratch [9]byte
	for _, v := range values {
		writeValue(digest, scratch[:], v)
	}
	return digest.Sum64()
}

// Value hashes a single value.
func Value(v interface{}) uint64 {
	return Row([]interface{}{v})
}

func writeValue(digest *xxhash.Digest, scratch []byte, v interface{}) {
	switch tv := v.(type) {
	case nil:
		scratch[0] = nullMarker
		_, _ = digest.Write(scratch[:1])
	case bool:
		scratch[0] = 1
		if tv {
			scratch[1] = 1
		} else {
			scratch[1] = 0
		}
		_, _ = digest.Write(scratch[:2])
	case int64:
		scratch[0] = 2
		binary.LittleEndian.PutUint64(scratch[1:9], uint64(tv))
		_, _ = digest.Write(scratch[:9])
	case float64:
		scratch[0] = 3
		binary.LittleEndian.PutUint64(scratch[1:9], math.Float64bits(tv))
		_, _ = digest.Write(scratch[:9])
	case string:
		scratch[0] = 4
		_, _ = digest.Write(scratch[:1])
		_, _ = digest.WriteString(tv)
	case []byte:
		scratch[0] = 5
		_, _ = digest.Write(scratch[:1])
		_, _ = digest.Write(tv)
	case time.Time:
		scratch[0] = 6
		binary.LittleEndian.PutUint64(scratch[1:9], uint64(tv.UnixNano()))
		_, _ = digest.Write(scratch[:9])
	case decimal.Decimal:
		scratch[0] = 7
		_, _ = digest.Write(scratch[:1])
		_, _ = digest.WriteString(tv.String())
	case sql.IntervalValue:
		scratch[0] = 8
		binary.LittleEndian.PutUint64(scratch[1:9], uint64(tv.Months))
		_, _ = digest.Write(scratch[:9])
		binary.LittleEndian.PutUint64(scratch[1:9], uint64(tv.Duration))
		_, _ = digest.Write(scratch[1:9])
	default:
		// arrays and structs take the slow, reflective path
		scratch[0] = 9
		_, _ = digest.Write(scratch[:1])
		h, err := hashstructure.Hash(v, nil)
		if err != nil {
			h = 0
		}
		binary.LittleEndian.PutUint64(scratch[1:9], h)
		_, _ = digest.Write(scratch[1:9])
	}
}
