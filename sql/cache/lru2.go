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
)

// LRU2 is an in-process store evicting by LRU-K with K=2: the victim is
// the entry whose penultimate access is oldest. Compared to plain LRU this
// resists a scan larger than the cache flushing everything: one touch is
// not enough to anchor an entry.
type LRU2 struct {
	mu        sync.Mutex
	size      int
	clock     int64
	entries   map[string]*lru2Entry
	hits      int64
	misses    int64
	evictions int64
}

type lru2Entry struct {
	value    []byte
	access1  int64 // most recent access
	access2  int64 // penultimate access
}

// NewLRU2 builds a store holding at most size entries.
func NewLRU2(size int) *LRU2 {
	if size < 1 {
		size = 1
	}
	return &LRU2{size: size, entries: make(map[string]*lru2Entry)}
}

func (c *LRU2) tick() int64 {
	c.clock++
	return c.clock
}

func (c *LRU2) Get(key []byte) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[string(key)]
	if !ok {
		c.misses++
		return nil, false
	}
	entry.access2 = entry.access1
	entry.access1 = c.tick()
	c.hits++
	return entry.value, true
}

// Set inserts a key, evicting the LRU-2 victim when full. It does not
// report which key was evicted; SetWithEviction does.
func (c *LRU2) Set(key, value []byte) error {
	_, _ = c.SetWithEviction(key, value)
	return nil
}

// SetWithEviction is Set exposing the evicted key.
func (c *LRU2) SetWithEviction(key, value []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := string(key)
	if entry, ok := c.entries[k]; ok {
		entry.value = value
		entry.access2 = entry.access1
		entry.access1 = c.tick()
		return nil, nil
	}
	var evicted []byte
	if len(c.entries) >= c.size {
		evicted = []byte(c.evictVictim())
	}
	now := c.tick()
	c.entries[k] = &lru2Entry{value: value, access1: now, access2: now}
	return evicted, nil
}

// evictVictim removes and returns the key whose penultimate access is
// furthest in the past. Callers hold the mutex.
func (c *LRU2) evictVictim() string {
	var victim string
	oldest := int64(-1)
	for k, entry := range c.entries {
		if oldest == -1 || entry.access2 < oldest {
			oldest = entry.access2
			victim = k
		}
	}
	delete(c.entries, victim)
	c.evictions++
	return victim
}

func (c *LRU2) Contains(keys [][]byte) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out [][]byte
	for _, key := range keys {
		if _, ok := c.entries[string(key)]; ok {
			out = append(out, key)
		}
	}
	return out
}

func (c *LRU2) Delete(key []byte) error {
	c.mu.Lock()
	delete(c.entries, string(key))
	c.mu.Unlock()
	return nil
}

func (c *LRU2) Touch(key []byte) {
	c.mu.Lock()
	if entry, ok := c.entries[string(key)]; ok {
		entry.access2 = entry.access1
		entry.access1 = c.tick()
	}
	c.mu.Unlock()
}

// Len returns the live entry count.
func (c *LRU2) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns hits, misses, and evictions.
func (c *LRU2) Stats() (hits, misses, evictions int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}
