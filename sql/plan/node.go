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

// Package plan models logical query plans as DAGs of typed step nodes with
// labeled edges. The optimizer rewrites these; the physical planner maps
// them onto operators.
package plan

import (
	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/connector"
	"github.com/kestreldb/kestrel/sql/expression"
)

// StepKind is the closed set of logical step kinds.
type StepKind int

const (
	StepUnknown StepKind = iota
	StepProject
	StepFilter
	StepUnion
	StepDifference
	StepJoin
	StepGroup
	StepAggregate
	StepScan
	StepShow
	StepShowColumns
	StepSet
	StepLimit
	StepOrder
	StepDistinct
	StepHeapSort
	StepCTE
	StepSubquery
	StepValues
	StepUnnest
	StepGenerateSeries
	StepFake
	StepExplain
	StepExit
	StepFunctionDataset
)

var stepNames = map[StepKind]string{
	StepProject:         "Project",
	StepFilter:          "Filter",
	StepUnion:           "Union",
	StepDifference:      "Difference",
	StepJoin:            "Join",
	StepGroup:           "Group",
	StepAggregate:       "Aggregate",
	StepScan:            "Scan",
	StepShow:            "Show",
	StepShowColumns:     "ShowColumns",
	StepSet:             "Set",
	StepLimit:           "Limit",
	StepOrder:           "Order",
	StepDistinct:        "Distinct",
	StepHeapSort:        "HeapSort",
	StepCTE:             "CTE",
	StepSubquery:        "Subquery",
	StepValues:          "Values",
	StepUnnest:          "Unnest",
	StepGenerateSeries:  "GenerateSeries",
	StepFake:            "Fake",
	StepExplain:         "Explain",
	StepExit:            "Exit",
	StepFunctionDataset: "FunctionDataset",
}

func (k StepKind) String() string {
	if name, ok := stepNames[k]; ok {
		return name
	}
	return "Unknown"
}

// JoinType discriminates join semantics.
type JoinType int

const (
	JoinInner JoinType = iota
	JoinLeftOuter
	JoinRightOuter
	JoinFullOuter
	JoinCross
	JoinSemi
	JoinAnti
)

var joinNames = map[JoinType]string{
	JoinInner:      "INNER",
	JoinLeftOuter:  "LEFT OUTER",
	JoinRightOuter: "RIGHT OUTER",
	JoinFullOuter:  "FULL OUTER",
	JoinCross:      "CROSS",
	JoinSemi:       "SEMI",
	JoinAnti:       "ANTI",
}

func (t JoinType) String() string {
	return joinNames[t]
}

// OrderField is one ORDER BY term.
type OrderField struct {
	Expr       *expression.Node
	Descending bool
}

// Node is a logical plan step. Which fields are meaningful depends on Kind.
type Node struct {
	Kind StepKind

	// Filter: either a single condition or, after plan flattening, a list
	// under one junction.
	Condition     *expression.Node
	ConditionList []*expression.Node
	Junction      expression.Kind

	// Project / Group column expressions.
	Columns []*expression.Node

	// Scan / Subquery / FunctionDataset.
	Relation  string
	Alias     string
	Schema    sql.Schema
	Connector connector.Connector
	// Predicates the connector accepted during pushdown.
	Predicates []*expression.Node
	Hints      []string

	// Join.
	JoinType       JoinType
	On             *expression.Node
	LeftRelations  []string
	RightRelations []string
	LeftColumns    []string
	RightColumns   []string
	UnnestColumn   *expression.Node
	UnnestTarget   *sql.Column

	// Order / HeapSort.
	OrderBy []OrderField

	// Limit / HeapSort.
	Limit  *int
	Offset int

	// Aggregate / Group.
	Aggregates []*expression.Node
	GroupBy    []*expression.Node

	// Distinct.
	DistinctOn []*expression.Node

	// Values.
	Rows [][]interface{}

	// GenerateSeries / FunctionDataset.
	Function string
	Args     []*expression.Node

	// Set.
	Variable string
	Value    interface{}

	// Show / ShowColumns.
	ShowKind string

	// Explain.
	Analyze bool
}

// RelationNames returns the names the node's relation answers to.
func (n *Node) RelationNames() []string {
	var names []string
	if n.Relation != "" {
		names = append(names, n.Relation)
	}
	if n.Alias != "" && n.Alias != n.Relation {
		names = append(names, n.Alias)
	}
	return names
}

// Copy deep-copies the node.
func (n *Node) Copy() *Node {
	nn := *n
	nn.Condition = n.Condition.Copy()
	nn.ConditionList = copyExprs(n.ConditionList)
	nn.Columns = copyExprs(n.Columns)
	nn.Schema = n.Schema.Copy()
	nn.Predicates = copyExprs(n.Predicates)
	nn.Hints = append([]string(nil), n.Hints...)
	nn.On = n.On.Copy()
	nn.LeftRelations = append([]string(nil), n.LeftRelations...)
	nn.RightRelations = append([]string(nil), n.RightRelations...)
	nn.LeftColumns = append([]string(nil), n.LeftColumns...)
	nn.RightColumns = append([]string(nil), n.RightColumns...)
	nn.UnnestColumn = n.UnnestColumn.Copy()
	if n.UnnestTarget != nil {
		nn.UnnestTarget = n.UnnestTarget.Copy()
	}
	if n.OrderBy != nil {
		nn.OrderBy = make([]OrderField, len(n.OrderBy))
		for i, f := range n.OrderBy {
			nn.OrderBy[i] = OrderField{Expr: f.Expr.Copy(), Descending: f.Descending}
		}
	}
	if n.Limit != nil {
		limit := *n.Limit
		nn.Limit = &limit
	}
	nn.Aggregates = copyExprs(n.Aggregates)
	nn.GroupBy = copyExprs(n.GroupBy)
	nn.DistinctOn = copyExprs(n.DistinctOn)
	nn.Args = copyExprs(n.Args)
	return &nn
}

func copyExprs(exprs []*expression.Node) []*expression.Node {
	if exprs == nil {
		return nil
	}
	out := make([]*expression.Node, len(exprs))
	for i, e := range exprs {
		out[i] = e.Copy()
	}
	return out
}

// IntPtr is a convenience for the Limit field.
func IntPtr(v int) *int {
	return &v
}
