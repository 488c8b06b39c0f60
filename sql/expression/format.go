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
	"fmt"
	"strings"
	"time"

	"github.com/kestreldb/kestrel/sql"
)

var comparisonSymbols = map[string]string{
	OpEq:        "=",
	OpNotEq:     "!=",
	OpLt:        "<",
	OpLtEq:      "<=",
	OpGt:        ">",
	OpGtEq:      ">=",
	OpLike:      "LIKE",
	OpILike:     "ILIKE",
	OpNotLike:   "NOT LIKE",
	OpNotILike:  "NOT ILIKE",
	OpInList:    "IN",
	OpNotInList: "NOT IN",
}

var binarySymbols = map[string]string{
	OpPlus:         "+",
	OpMinus:        "-",
	OpMultiply:     "*",
	OpDivide:       "/",
	OpModulo:       "%",
	OpStringConcat: "||",
	OpBitwiseAnd:   "&",
	OpBitwiseOr:    "|",
	OpBitwiseXor:   "^",
}

var unarySuffixes = map[string]string{
	OpIsNull:    " IS NULL",
	OpIsNotNull: " IS NOT NULL",
	OpIsTrue:    " IS TRUE",
	OpIsFalse:   " IS FALSE",
}

// Format renders an expression back to SQL-ish text. Error messages and
// EXPLAIN use it; for the operator subset it round-trips modulo whitespace.
func Format(root *Node) string {
	if root == nil {
		return "null"
	}
	switch root.Kind {
	case KindLiteral:
		return formatLiteral(root)
	case KindIdentifier:
		if root.Source != "" && root.Name != "" {
			return root.Source + "." + root.Name
		}
		if root.Name != "" {
			return root.Name
		}
		return root.Identity
	case KindComparison:
		symbol, ok := comparisonSymbols[root.Value]
		if !ok {
			symbol = root.Value
		}
		return Format(root.Left) + " " + symbol + " " + Format(root.Right)
	case KindBinary:
		symbol, ok := binarySymbols[root.Value]
		if !ok {
			symbol = root.Value
		}
		return Format(root.Left) + " " + symbol + " " + Format(root.Right)
	case KindUnary:
		if suffix, ok := unarySuffixes[root.Value]; ok {
			return Format(root.Centre) + suffix
		}
		if root.Value == OpNot {
			return "NOT " + Format(root.Centre)
		}
		return root.Value + " " + Format(root.Centre)
	case KindAnd:
		return Format(root.Left) + " AND " + Format(root.Right)
	case KindOr:
		return Format(root.Left) + " OR " + Format(root.Right)
	case KindXor:
		return Format(root.Left) + " XOR " + Format(root.Right)
	case KindNested:
		return "(" + Format(root.Centre) + ")"
	case KindFunction:
		return strings.ToUpper(root.Value) + "(" + formatParameters(root.Parameters) + ")"
	case KindAggregator:
		return formatAggregator(root)
	case KindWildcard:
		if root.Value != "" {
			return root.Value + ".*"
		}
		return "*"
	}
	return root.Value
}

func formatLiteral(n *Node) string {
	if n.LiteralValue == nil {
		return "null"
	}
	switch n.LiteralType {
	case sql.Varchar:
		s, _ := n.LiteralValue.(string)
		return "'" + strings.ReplaceAll(s, "'", "''") + "'"
	case sql.Timestamp, sql.Date:
		if t, ok := n.LiteralValue.(time.Time); ok {
			return "'" + t.Format(time.RFC3339) + "'"
		}
	case sql.Interval:
		return "<INTERVAL>"
	case sql.Array:
		items, _ := n.LiteralValue.([]interface{})
		parts := make([]string, len(items))
		for i, item := range items {
			parts[i] = fmt.Sprintf("%v", item)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	}
	return fmt.Sprintf("%v", n.LiteralValue)
}

func formatParameters(parameters []*Node) string {
	parts := make([]string, len(parameters))
	for i, p := range parameters {
		parts[i] = Format(p)
	}
	return strings.Join(parts, ",")
}

func formatAggregator(n *Node) string {
	distinct := ""
	if n.Distinct {
		distinct = "DISTINCT "
	}
	order := ""
	if len(n.Order) > 0 {
		terms := make([]string, len(n.Order))
		for i, t := range n.Order {
			terms[i] = Format(t.Expr)
			if t.Descending {
				terms[i] += " DESC"
			}
		}
		order = " ORDER BY " + strings.Join(terms, ", ")
	}
	limit := ""
	if n.Limit > 0 {
		limit = fmt.Sprintf(" LIMIT %d", n.Limit)
	}
	return strings.ToUpper(n.Value) + "(" + distinct + formatParameters(n.Parameters) + order + limit + ")"
}
