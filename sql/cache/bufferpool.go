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

package cache

import (
	"sync"

	"github.com/kestreldb/kestrel/sql"
)

// BufferPool is the process-wide LRU-2 of decoded blob bodies, fronting an
// optional slower backend. Items above the cacheable size limit bypass it;
// per-query eviction churn is bounded.
type BufferPool struct {
	local    *LRU2
	backend  KeyValueStore
	maxItem  int
	maxEvict int

	mu        sync.Mutex
	evictions map[string]int // per query id
}

var (
	bufferPoolOnce sync.Once
	bufferPool     *BufferPool
)

// SharedBufferPool returns the process-wide pool, creating it on first use
// from the given configuration. Later calls ignore the arguments.
func SharedBufferPool(cfg *sql.Config, backend KeyValueStore) *BufferPool {
	bufferPoolOnce.Do(func() {
		bufferPool = NewBufferPool(cfg, backend)
	})
	return bufferPool
}

func NewBufferPool(cfg *sql.Config, backend KeyValueStore) *BufferPool {
	return &BufferPool{
		local:     NewLRU2(cfg.MaxLocalBufferCapacity),
		backend:   backend,
		maxItem:   cfg.MaxCacheableItemSize,
		maxEvict:  cfg.MaxCacheEvictionsPerQuery,
		evictions: make(map[string]int),
	}
}

// Get checks the local buffer first, then the backend, promoting backend
// hits into the buffer.
func (p *BufferPool) Get(key []byte) ([]byte, bool) {
	if value, ok := p.local.Get(key); ok {
		return value, true
	}
	if p.backend == nil {
		return nil, false
	}
	value, ok := p.backend.Get(key)
	if ok && len(value) <= p.maxItem {
		_, _ = p.local.SetWithEviction(key, value)
	}
	return value, ok
}

// Put admits a value for a query, honoring the item size cap and the
// query's eviction budget.
func (p *BufferPool) Put(qid string, key, value []byte) {
	if len(value) > p.maxItem {
		return
	}
	p.mu.Lock()
	over := p.evictions[qid] >= p.maxEvict
	p.mu.Unlock()
	if over {
		return
	}
	evicted, _ := p.local.SetWithEviction(key, value)
	if evicted != nil {
		p.mu.Lock()
		p.evictions[qid]++
		p.mu.Unlock()
	}
	if p.backend != nil {
		_ = p.backend.Set(key, value)
	}
}

// EndQuery clears a query's eviction accounting.
func (p *BufferPool) EndQuery(qid string) {
	p.mu.Lock()
	delete(p.evictions, qid)
	p.mu.Unlock()
}
