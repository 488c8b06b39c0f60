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
	"io"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/kestreldb/kestrel/sql"
	"github.com/kestreldb/kestrel/sql/connector"
	"github.com/kestreldb/kestrel/sql/plan"
	"github.com/kestreldb/kestrel/sql/pool"
)

// AsyncReader reads blob-shaped datasets: blobs are fetched concurrently
// (bounded by the CONCURRENT_READS semaphore) into the memory pool, then
// decoded in arrival order. The pool backs the bytes between fetch and
// decode so a burst of large blobs cannot exhaust process memory.
type AsyncReader struct {
	base
	dataset string
	schema  sql.Schema
	blobs   connector.AsyncBlobReader
	memPool *pool.MemoryPool
}

func NewAsyncReader(dataset string, schema sql.Schema, blobs connector.AsyncBlobReader, memPool *pool.MemoryPool) *AsyncReader {
	return &AsyncReader{dataset: dataset, schema: schema, blobs: blobs, memPool: memPool}
}

func (r *AsyncReader) Name() string {
	return "AsyncReader"
}

func (r *AsyncReader) Config() string {
	return r.dataset
}

func (r *AsyncReader) Execute(_ *sql.Context, _ *sql.Batch, _ plan.EdgeLabel) ([]*sql.Batch, error) {
	return nil, sql.ErrInvalidInternalState.New("reader invoked as a downstream operator")
}

type fetchedBlob struct {
	ref int64
	err error
}

func (r *AsyncReader) Pump(ctx *sql.Context) (sql.BatchIterator, error) {
	names, err := r.blobs.BlobNames(ctx, r.dataset)
	if err != nil {
		return nil, err
	}
	asyncPool := pool.NewAsyncPool(r.memPool)
	sem := semaphore.NewWeighted(int64(ctx.Config().ConcurrentReads))
	results := make(chan fetchedBlob, len(names))

	var wg sync.WaitGroup
	for _, name := range names {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results <- fetchedBlob{err: err}
				return
			}
			defer sem.Release(1)
			ref, err := r.blobs.ReadBlob(ctx, name, asyncPool)
			results <- fetchedBlob{ref: ref, err: err}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	return &asyncIterator{reader: r, results: results}, nil
}

type asyncIterator struct {
	reader  *AsyncReader
	results chan fetchedBlob
}

func (it *asyncIterator) Next(ctx *sql.Context) (*sql.Batch, error) {
	for {
		fetched, ok := <-it.results
		if !ok {
			return nil, io.EOF
		}
		if fetched.err != nil {
			return nil, fetched.err
		}
		if fetched.ref == pool.FailedCommit {
			return nil, sql.ErrInvalidInternalState.New("blob did not fit in the read buffer")
		}
		// a latched zero-copy view is safe while other fetches trigger
		// compaction; the latch is dropped once the blob is decoded
		raw, err := it.reader.memPool.Read(fetched.ref, true, true)
		if err != nil {
			return nil, err
		}
		batch, decodeErr := it.reader.blobs.DecodeBlob(ctx, raw, it.reader.schema.Identities())
		if err := it.reader.memPool.Unlatch(fetched.ref); err != nil {
			return nil, err
		}
		if err := it.reader.memPool.Release(fetched.ref); err != nil {
			return nil, err
		}
		if decodeErr != nil {
			return nil, decodeErr
		}
		aligned, err := alignToSchema(batch, it.reader.schema)
		if err != nil {
			return nil, err
		}
		if aligned.NumRows() == 0 {
			continue
		}
		ctx.Stats.Add("rows_read", int64(aligned.NumRows()))
		sensors := it.reader.Sensors()
		sensors.Calls++
		sensors.RecordsOut += int64(aligned.NumRows())
		sensors.BytesOut += int64(aligned.NumBytes())
		return aligned, nil
	}
}

func (it *asyncIterator) Close() error {
	// drain outstanding fetches so their pool segments are reclaimed
	for fetched := range it.results {
		if fetched.err == nil && fetched.ref != pool.FailedCommit {
			_ = it.reader.memPool.Release(fetched.ref)
		}
	}
	return nil
}
