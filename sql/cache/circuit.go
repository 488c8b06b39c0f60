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

	"github.com/sirupsen/logrus"
)

// FailingStore is implemented by backends whose operations can fail in
// ways Get's (value, ok) signature cannot carry; the circuit breaker
// consumes the error stream.
type FailingStore interface {
	GetE(key []byte) ([]byte, error)
	SetE(key, value []byte) error
	Contains(keys [][]byte) [][]byte
	Delete(key []byte) error
	Touch(key []byte)
}

// CircuitBreaker wraps a fallible backend: after maxFailures consecutive
// failures reads short-circuit to misses and writes become no-ops, so a
// dead remote cache cannot stall queries.
type CircuitBreaker struct {
	store       FailingStore
	maxFailures int

	mu       sync.Mutex
	failures int
	tripped  bool

	hits   int64
	misses int64
	skips  int64
	errors int64
}

func NewCircuitBreaker(store FailingStore, maxFailures int) *CircuitBreaker {
	return &CircuitBreaker{store: store, maxFailures: maxFailures}
}

func (c *CircuitBreaker) open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tripped
}

func (c *CircuitBreaker) recordSuccess() {
	c.mu.Lock()
	c.failures = 0
	c.mu.Unlock()
}

func (c *CircuitBreaker) recordFailure() {
	c.mu.Lock()
	c.failures++
	c.errors++
	if c.failures >= c.maxFailures && !c.tripped {
		c.tripped = true
		logrus.Warnf("disabling cache backend after %d consecutive failures", c.failures)
	}
	c.mu.Unlock()
}

func (c *CircuitBreaker) Get(key []byte) ([]byte, bool) {
	if c.open() {
		c.mu.Lock()
		c.skips++
		c.mu.Unlock()
		return nil, false
	}
	value, err := c.store.GetE(key)
	if err != nil {
		c.recordFailure()
		return nil, false
	}
	c.recordSuccess()
	c.mu.Lock()
	if value == nil {
		c.misses++
	} else {
		c.hits++
	}
	c.mu.Unlock()
	return value, value != nil
}

func (c *CircuitBreaker) Set(key, value []byte) error {
	if c.open() {
		return nil
	}
	if err := c.store.SetE(key, value); err != nil {
		c.recordFailure()
		return nil
	}
	c.recordSuccess()
	return nil
}

func (c *CircuitBreaker) Contains(keys [][]byte) [][]byte {
	if c.open() {
		return nil
	}
	return c.store.Contains(keys)
}

func (c *CircuitBreaker) Delete(key []byte) error {
	if c.open() {
		return nil
	}
	return c.store.Delete(key)
}

func (c *CircuitBreaker) Touch(key []byte) {
	if c.open() {
		return
	}
	c.store.Touch(key)
}

// Tripped reports whether the breaker is open.
func (c *CircuitBreaker) Tripped() bool {
	return c.open()
}
