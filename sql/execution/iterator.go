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
	"context"
	"io"

	"github.com/kestreldb/kestrel/sql"
)

// streamIterator adapts an engine goroutine's output channel to the lazy
// BatchIterator the caller drains. Closing the iterator cancels the run.
type streamIterator struct {
	batches <-chan *sql.Batch
	errs    <-chan error
	cancel  context.CancelFunc
	err     error
	done    bool
}

func newStreamIterator(batches <-chan *sql.Batch, errs <-chan error, cancel context.CancelFunc) *streamIterator {
	return &streamIterator{batches: batches, errs: errs, cancel: cancel}
}

func (it *streamIterator) Next(_ *sql.Context) (*sql.Batch, error) {
	if it.done {
		if it.err != nil {
			return nil, it.err
		}
		return nil, io.EOF
	}
	batch, ok := <-it.batches
	if !ok {
		it.done = true
		select {
		case err := <-it.errs:
			it.err = err
		default:
		}
		if it.err != nil {
			return nil, it.err
		}
		return nil, io.EOF
	}
	return batch, nil
}

func (it *streamIterator) Close() error {
	it.cancel()
	// drain so the producer goroutine can finish
	for range it.batches {
	}
	it.done = true
	return nil
}
