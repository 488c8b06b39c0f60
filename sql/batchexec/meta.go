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
	"fmt"
	"strings"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/plan"
)

// Explain is a placeholder the engine special-cases: the plan description
// is rendered by the engine, which can see the whole operator graph.
type Explain struct {
	base
	Analyze bool
}

func NewExplain(analyze bool) *Explain {
	return &Explain{Analyze: analyze}
}

func (e *Explain) Name() string {
	return "Explain"
}

func (e *Explain) Execute(_ *sql.Context, morsel *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	return []*sql.Batch{morsel}, nil
}

// SetVariable mutates session state and produces a single status row.
type SetVariable struct {
	base
	Variable string
	Value    interface{}
}

func NewSetVariable(variable string, value interface{}) *SetVariable {
	return &SetVariable{Variable: variable, Value: value}
}

func (s *SetVariable) Name() string {
	return "SetVariable"
}

func (s *SetVariable) Config() string {
	return s.Variable
}

func (s *SetVariable) Execute(ctx *sql.Context, _ *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	ctx.Props.SetVariable(s.Variable, s.Value)
	return []*sql.Batch{statusBatch("variable " + s.Variable + " set")}, nil
}

// ShowValue reports a session variable as a single row.
type ShowValue struct {
	base
	Variable string
}

func NewShowValue(variable string) *ShowValue {
	return &ShowValue{Variable: variable}
}

func (s *ShowValue) Name() string {
	return "ShowValue"
}

func (s *ShowValue) Execute(ctx *sql.Context, _ *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	value, _ := ctx.Props.Variable(s.Variable)
	schema := sql.Schema{
		{Identity: "$show.name", Name: "name", Type: sql.Varchar},
		{Identity: "$show.value", Name: "value", Type: sql.TypeOfValue(value)},
	}
	batch, err := sql.NewBatch(schema, [][]interface{}{{s.Variable}, {value}})
	if err != nil {
		return nil, err
	}
	return []*sql.Batch{batch}, nil
}

// ShowColumns describes a dataset's columns, one row each.
type ShowColumns struct {
	base
	Dataset string
	Schema  sql.Schema
}

func NewShowColumns(dataset string, schema sql.Schema) *ShowColumns {
	return &ShowColumns{Dataset: dataset, Schema: schema}
}

func (s *ShowColumns) Name() string {
	return "ShowColumns"
}

func (s *ShowColumns) Config() string {
	return s.Dataset
}

func (s *ShowColumns) Execute(_ *sql.Context, _ *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	names := make([]interface{}, len(s.Schema))
	types := make([]interface{}, len(s.Schema))
	nullables := make([]interface{}, len(s.Schema))
	for i, col := range s.Schema {
		names[i] = col.DisplayName()
		types[i] = col.Type.String()
		nullables[i] = col.Nullable
	}
	schema := sql.Schema{
		{Identity: "$columns.name", Name: "name", Type: sql.Varchar},
		{Identity: "$columns.type", Name: "type", Type: sql.Varchar},
		{Identity: "$columns.nullable", Name: "nullable", Type: sql.Boolean},
	}
	batch, err := sql.NewBatch(schema, [][]interface{}{names, types, nullables})
	if err != nil {
		return nil, err
	}
	return []*sql.Batch{batch}, nil
}

// ShowCreate renders a CREATE-style description of a dataset.
type ShowCreate struct {
	base
	Dataset string
	Schema  sql.Schema
}

func NewShowCreate(dataset string, schema sql.Schema) *ShowCreate {
	return &ShowCreate{Dataset: dataset, Schema: schema}
}

func (s *ShowCreate) Name() string {
	return "ShowCreate"
}

func (s *ShowCreate) Config() string {
	return s.Dataset
}

func (s *ShowCreate) Execute(_ *sql.Context, _ *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	columns := make([]string, len(s.Schema))
	for i, col := range s.Schema {
		columns[i] = fmt.Sprintf("  %s %s", col.DisplayName(), col.Type)
	}
	statement := fmt.Sprintf("CREATE TABLE %s (\n%s\n)", s.Dataset, strings.Join(columns, ",\n"))
	schema := sql.Schema{{Identity: "$create.statement", Name: "statement", Type: sql.Varchar}}
	batch, err := sql.NewBatch(schema, [][]interface{}{{statement}})
	if err != nil {
		return nil, err
	}
	return []*sql.Batch{batch}, nil
}

func statusBatch(message string) *sql.Batch {
	schema := sql.Schema{{Identity: "$status", Name: "status", Type: sql.Varchar}}
	batch, _ := sql.NewBatch(schema, [][]interface{}{{message}})
	return batch
}
