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

// Type is the closed set of column types batches can carry. Values are
// represented as: Boolean=bool, Integer=int64, Double=float64,
// Decimal=decimal.Decimal, Date/Timestamp=time.Time, Interval=sql.IntervalValue,
// Varchar=string, Blob=[]byte, Array=[]interface{}, Struct=map[string]interface{}.
// A nil value is NULL regardless of column type.
type Type int

const (
	Null Type = iota
	Boolean
	Integer
	Double
	Decimal
	Date
	Timestamp
	Interval
	Varchar
	Blob
	Array
	Struct
)

var typeNames = map[Type]string{
	Null:      "NULL",
	Boolean:   "BOOLEAN",
	Integer:   "INTEGER",
	Double:    "DOUBLE",
	Decimal:   "DECIMAL",
	Date:      "DATE",
	Timestamp: "TIMESTAMP",
	Interval:  "INTERVAL",
	Varchar:   "VARCHAR",
	Blob:      "BLOB",
	Array:     "ARRAY",
	Struct:    "STRUCT",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// IsNumeric reports whether values of this type support arithmetic.
func (t Type) IsNumeric() bool {
	return t == Integer || t == Double || t == Decimal
}

// IsTemporal reports whether values of this type are instants on a timeline.
func (t Type) IsTemporal() bool {
	return t == Date || t == Timestamp
}

// PromoteTypes returns the type a pair of column types unions to. The rules
// are positional: identical types promote to themselves, numeric types widen
// (Integer < Decimal < Double), Date widens to Timestamp, and Null yields the
// other type. Anything else is incompatible.
func PromoteTypes(a, b Type) (Type, error) {
	if a == b {
		return a, nil
	}
	if a == Null {
		return b, nil
	}
	if b == Null {
		return a, nil
	}
	if a.IsNumeric() && b.IsNumeric() {
		if a == Double || b == Double {
			return Double, nil
		}
		return Decimal, nil
	}
	if a.IsTemporal() && b.IsTemporal() {
		return Timestamp, nil
	}
	return Null, ErrIncompatibleTypes.New(a.String(), b.String())
}
