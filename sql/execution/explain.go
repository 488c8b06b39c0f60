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

package execution

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/batchexec"
	"github.com/kestreldb/kestrel/sql/physical"
	"github.com/kestreldb/kestrel/sql/plan"
)

// explainBatch renders the plan as a tabular result, one row per operator.
// With analyze the query runs first (results discarded) so the sensor
// columns carry real numbers.
func explainBatch(ctx *sql.Context, p *physical.Plan, analyze bool, mode Mode) (*sql.Batch, error) {
	if analyze {
		if err := drainForAnalyze(ctx, p, mode); err != nil {
			return nil, err
		}
	}

	type row struct {
		depth    int64
		operator string
		config   string
		sensors  *batchexec.Sensors
	}
	var rows []row

	exitID, err := p.ExitPoint()
	if err != nil {
		return nil, err
	}
	var walk func(id string, depth int64)
	walk = func(id string, depth int64) {
		op := p.Operator(id)
		switch op.(type) {
		case *batchexec.Exit, *batchexec.Explain:
			// structural nodes say nothing about the work
		default:
			rows = append(rows, row{depth: depth, operator: op.Name(), config: op.Config(), sensors: op.Sensors()})
			depth++
		}
		children := p.Graph.IngoingEdges(id)
		sort.SliceStable(children, func(i, j int) bool {
			return children[i].Label == plan.LabelLeft && children[j].Label != plan.LabelLeft
		})
		for _, edge := range children {
			walk(edge.Source, depth)
		}
	}
	walk(exitID, 0)

	schema := sql.Schema{
		{Identity: "$explain.tree", Name: "tree", Type: sql.Integer},
		{Identity: "$explain.operator", Name: "operator", Type: sql.Varchar},
		{Identity: "$explain.config", Name: "config", Type: sql.Varchar},
	}
	columns := make([][]interface{}, 3, 6)
	for i := range columns {
		columns[i] = make([]interface{}, len(rows))
	}
	for i, r := range rows {
		columns[0][i] = r.depth
		columns[1][i] = r.operator
		columns[2][i] = r.config
	}
	if analyze {
		schema = append(schema,
			&sql.Column{Identity: "$explain.time_ms", Name: "time_ms", Type: sql.Double},
			&sql.Column{Identity: "$explain.records_in", Name: "records_in", Type: sql.Integer},
			&sql.Column{Identity: "$explain.records_out", Name: "records_out", Type: sql.Integer},
		)
		times := make([]interface{}, len(rows))
		ins := make([]interface{}, len(rows))
		outs := make([]interface{}, len(rows))
		for i, r := range rows {
			times[i] = float64(r.sensors.ExecutionTime) / 1e6
			ins[i] = r.sensors.RecordsIn
			outs[i] = r.sensors.RecordsOut
		}
		columns = append(columns, times, ins, outs)
	}
	return sql.NewBatch(schema, columns)
}

func drainForAnalyze(ctx *sql.Context, p *physical.Plan, mode Mode) error {
	exitID, err := p.ExitPoint()
	if err != nil {
		return err
	}
	// run the plan below the explain head
	trimmed := &physical.Plan{Graph: p.Graph.Copy(), Ops: p.Ops}
	trimmed.Graph.RemoveNodeHeal(exitID)
	for _, id := range trimmed.Graph.NodeIDs() {
		if _, ok := trimmed.Ops[id].(*batchexec.Explain); ok {
			trimmed.Graph.RemoveNodeHeal(id)
		}
	}
	var iter sql.BatchIterator
	if mode == Parallel {
		iter, _, err = executeParallel(ctx, trimmed)
	} else {
		iter, _, err = executeSerial(ctx, trimmed)
	}
	if err != nil {
		return err
	}
	defer iter.Close()
	for {
		if _, err := iter.Next(ctx); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

// RenderExplain pretty-prints an explain batch for logs and CLIs.
func RenderExplain(batch *sql.Batch) string {
	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetHeader(batch.Schema().Names())
	table.SetAutoFormatHeaders(false)
	table.SetBorder(false)
	for row := 0; row < batch.NumRows(); row++ {
		values := batch.Row(row)
		cells := make([]string, len(values))
		for i, v := range values {
			cells[i] = fmt.Sprintf("%v", v)
		}
		table.Append(cells)
	}
	table.Render()
	return sb.String()
}
