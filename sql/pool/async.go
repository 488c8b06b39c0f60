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

package pool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// AsyncPool layers a cooperative, context-aware lock over a MemoryPool for
// use by concurrent blob readers. Reads always copy: with many readers in
// flight the underlying bytes may be relocated as soon as the lock is
// dropped.
type AsyncPool struct {
	pool *MemoryPool
	sem  *semaphore.Weighted
}

func NewAsyncPool(p *MemoryPool) *AsyncPool {
	return &AsyncPool{pool: p, sem: semaphore.NewWeighted(1)}
}

// Commit copies data into the pool. Returns FailedCommit when the pool is
// exhausted, or the context error if cancelled while waiting.
func (a *AsyncPool) Commit(ctx context.Context, data []byte) (int64, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return FailedCommit, err
	}
	defer a.sem.Release(1)
	return a.pool.Commit(data), nil
}

// Read returns a copy of the committed bytes.
func (a *AsyncPool) Read(ctx context.Context, ref int64) ([]byte, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer a.sem.Release(1)
	return a.pool.Read(ref, false, false)
}

// Release returns the segment to the free list.
func (a *AsyncPool) Release(ctx context.Context, ref int64) error {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer a.sem.Release(1)
	return a.pool.Release(ref)
}

// Size returns the capacity of the wrapped pool.
func (a *AsyncPool) Size() int64 {
	return a.pool.Size()
}
