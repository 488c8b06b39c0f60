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

package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
)

func usersTable() *Table {
	return NewTable("users", sql.Schema{
		{Identity: "users.id", Name: "id", Source: "users", Type: sql.Integer},
		{Identity: "users.name", Name: "name", Source: "users", Type: sql.Varchar},
	}).Insert(
		[]interface{}{int64(1), "ada"},
		[]interface{}{int64(2), "grace"},
		[]interface{}{int64(3), "edsger"},
	)
}

func TestReadDataset(t *testing.T) {
	require := require.New(t)
	conn := NewConnector("mem").AddTable(usersTable())
	ctx := sql.NewEmptyContext()

	iter, err := conn.ReadDataset(ctx, "users", []string{"users.name"}, nil)
	require.NoError(err)
	batches, err := sql.BatchesToSlice(ctx, iter)
	require.NoError(err)
	require.Len(batches, 1)
	require.Equal([]string{"users.name"}, batches[0].Schema().Identities())
	require.Equal(3, batches[0].NumRows())
	require.Equal(int64(3), conn.Table("users").RowsRead())
}

func TestReadDatasetAppliesPredicates(t *testing.T) {
	require := require.New(t)
	table := usersTable()
	table.AcceptPredicates = true
	conn := NewConnector("mem").AddTable(table)
	ctx := sql.NewEmptyContext()

	predicate := expression.NewComparison(expression.OpEq,
		expression.NewIdentifier("users.id", "users", "id"),
		expression.NewLiteral(int64(2), sql.Integer))
	require.True(conn.CanPush(predicate, nil))

	iter, err := conn.ReadDataset(ctx, "users", nil, []*expression.Node{predicate})
	require.NoError(err)
	batches, err := sql.BatchesToSlice(ctx, iter)
	require.NoError(err)
	require.Equal(1, batches[0].NumRows())
	require.Equal(int64(1), table.RowsRead(), "only matching rows are read")
}

func TestUnknownDataset(t *testing.T) {
	require := require.New(t)
	conn := NewConnector("mem")
	_, err := conn.ReadDataset(sql.NewEmptyContext(), "nope", nil, nil)
	require.Error(err)
	require.True(sql.ErrDatasetNotFound.Is(err))
}

func TestCanPushRejectsComplexPredicates(t *testing.T) {
	require := require.New(t)
	table := usersTable()
	table.AcceptPredicates = true
	conn := NewConnector("mem").AddTable(table)

	complex := expression.NewComparison(expression.OpEq,
		expression.NewFunction("UPPER", expression.NewIdentifier("users.name", "users", "name")),
		expression.NewLiteral("ADA", sql.Varchar))
	require.False(conn.CanPush(complex, nil))
}
