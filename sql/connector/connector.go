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

// Package connector defines the contract between the execution core and the
// data sources that feed it. The core never decodes storage formats; it asks
// a connector for batches and forwards whatever projections and predicates
// the connector advertises it can absorb.
package connector

import (
	"fmt"
	"time"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/expression"
	"github.com/kestreldb/kestrel/sql/pool"
)

// Connector produces batches for a named dataset.
type Connector interface {
	// Name identifies the connector for logs and errors.
	Name() string

	// Schema returns the full schema of the dataset.
	Schema(ctx *sql.Context, dataset string) (sql.Schema, error)

	// ReadDataset streams batches restricted to the given column identities.
	// Predicates are those the connector accepted via CanPush; rows that do
	// not satisfy them must not be returned.
	ReadDataset(ctx *sql.Context, dataset string, columns []string, predicates []*expression.Node) (sql.BatchIterator, error)
}

// PredicatePushable is an optional capability: connectors that can evaluate
// predicates during the read advertise it. CanPush is consulted per
// predicate at optimization time.
type PredicatePushable interface {
	CanPush(predicate *expression.Node, types []sql.Type) bool
}

// ProjectionPushable is an optional capability: connectors that can restrict
// the columns they decode advertise it. Connectors without it receive the
// full column list and the reader projects.
type ProjectionPushable interface {
	ProjectionPushable() bool
}

// AsyncBlobReader is an optional capability for blob-shaped sources. The
// connector fetches the named blob into the memory pool and returns the
// committed reference; the reader decodes from a latched zero-copy view.
type AsyncBlobReader interface {
	BlobNames(ctx *sql.Context, dataset string) ([]string, error)
	ReadBlob(ctx *sql.Context, name string, p *pool.AsyncPool) (int64, error)
	DecodeBlob(ctx *sql.Context, raw []byte, columns []string) (*sql.Batch, error)
}

// BlobListGetter enumerates the blobs under a prefix.
type BlobListGetter func(prefix string) ([]string, error)

// PartitionScheme maps a date range onto the blobs that may hold its rows.
type PartitionScheme interface {
	BlobsInPartition(start, end time.Time, getter BlobListGetter, prefix string) ([]string, error)
}

// DatePartitionScheme is the default year_/month_/day_ directory layout:
// one listing per day in the range, inclusive on both ends.
type DatePartitionScheme struct{}

func (DatePartitionScheme) BlobsInPartition(start, end time.Time, getter BlobListGetter, prefix string) ([]string, error) {
	var out []string
	day := start.Truncate(24 * time.Hour)
	last := end.Truncate(24 * time.Hour)
	for !day.After(last) {
		partition := fmt.Sprintf("%s/year_%04d/month_%02d/day_%02d/", prefix, day.Year(), day.Month(), day.Day())
		blobs, err := getter(partition)
		if err != nil {
			return nil, err
		}
		out = append(out, blobs...)
		day = day.AddDate(0, 0, 1)
	}
	return out, nil
}
