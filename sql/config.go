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

package sql

import (
	"os"
	"runtime"

	"github.com/spf13/cast"
	yaml "gopkg.in/yaml.v2"
)

// Config carries the enumerated options the core consumes. Zero values are
// replaced by defaults in NewConfig; a Config built by hand should call
// Validate before use.
type Config struct {
	// InternalBatchSize caps join-inner chunking.
	InternalBatchSize int `yaml:"internal_batch_size"`
	// ConcurrentWorkers is the parallel engine's worker pool size.
	ConcurrentWorkers int `yaml:"concurrent_workers"`
	// ConcurrentReads caps the async semaphore for concurrent blob fetches.
	ConcurrentReads int `yaml:"concurrent_reads"`
	// MaxReadBufferCapacity is the memory pool size, in bytes, used by async
	// readers.
	MaxReadBufferCapacity int `yaml:"max_read_buffer_capacity"`
	// MaxConsecutiveCacheFailures is the cache circuit-breaker threshold.
	MaxConsecutiveCacheFailures int `yaml:"max_consecutive_cache_failures"`
	// OnlyPushEqualsPredicates restricts predicate pushdown through scans to
	// Eq predicates.
	OnlyPushEqualsPredicates bool `yaml:"only_push_equals_predicates"`
	// MaxJoinSize caps cartesian expansion per step.
	MaxJoinSize int `yaml:"max_join_size"`
	// MaxCacheableItemSize is the largest blob the buffer pool will admit.
	MaxCacheableItemSize int `yaml:"max_cacheable_item_size"`
	// MaxCacheEvictionsPerQuery bounds buffer pool churn per query.
	MaxCacheEvictionsPerQuery int `yaml:"max_cache_evictions_per_query"`
	// MaxLocalBufferCapacity is the entry capacity of the buffer pool.
	MaxLocalBufferCapacity int `yaml:"max_local_buffer_capacity"`
	// AggregateBufferSize is the number of partial aggregation batches
	// buffered before an early partial merge.
	AggregateBufferSize int `yaml:"aggregate_buffer_size"`
}

// NewConfig returns a Config with every option at its default.
func NewConfig() *Config {
	return &Config{
		InternalBatchSize:           500,
		ConcurrentWorkers:           runtime.GOMAXPROCS(0),
		ConcurrentReads:             4,
		MaxReadBufferCapacity:       64 * 1024 * 1024,
		MaxConsecutiveCacheFailures: 10,
		MaxJoinSize:                 10000,
		MaxCacheableItemSize:        2 * 1024 * 1024,
		MaxCacheEvictionsPerQuery:   32,
		MaxLocalBufferCapacity:      256,
		AggregateBufferSize:         64,
	}
}

// LoadConfig reads a YAML config file and overlays it on the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrInvalidConfiguration.New("config file", path, "a readable YAML file")
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, ErrInvalidConfiguration.New("config file", path, "valid YAML")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv overlays environment variables (KESTREL_ prefixed, upper snake
// case) on the config, coercing strings to the option types.
func (c *Config) FromEnv() *Config {
	if v, ok := os.LookupEnv("KESTREL_INTERNAL_BATCH_SIZE"); ok {
		c.InternalBatchSize = cast.ToInt(v)
	}
	if v, ok := os.LookupEnv("KESTREL_CONCURRENT_WORKERS"); ok {
		c.ConcurrentWorkers = cast.ToInt(v)
	}
	if v, ok := os.LookupEnv("KESTREL_CONCURRENT_READS"); ok {
		c.ConcurrentReads = cast.ToInt(v)
	}
	if v, ok := os.LookupEnv("KESTREL_MAX_READ_BUFFER_CAPACITY"); ok {
		c.MaxReadBufferCapacity = cast.ToInt(v)
	}
	if v, ok := os.LookupEnv("KESTREL_ONLY_PUSH_EQUALS_PREDICATES"); ok {
		c.OnlyPushEqualsPredicates = cast.ToBool(v)
	}
	return c
}

// Validate fails with ErrInvalidConfiguration on the first option that
// violates its contract.
func (c *Config) Validate() error {
	checks := []struct {
		name  string
		value int
	}{
		{"internal_batch_size", c.InternalBatchSize},
		{"concurrent_workers", c.ConcurrentWorkers},
		{"concurrent_reads", c.ConcurrentReads},
		{"max_read_buffer_capacity", c.MaxReadBufferCapacity},
		{"max_consecutive_cache_failures", c.MaxConsecutiveCacheFailures},
		{"max_join_size", c.MaxJoinSize},
		{"max_cacheable_item_size", c.MaxCacheableItemSize},
		{"max_cache_evictions_per_query", c.MaxCacheEvictionsPerQuery},
		{"max_local_buffer_capacity", c.MaxLocalBufferCapacity},
		{"aggregate_buffer_size", c.AggregateBufferSize},
	}
	for _, check := range checks {
		if check.value <= 0 {
			return ErrInvalidConfiguration.New(check.name, cast.ToString(check.value), "a number greater than zero")
		}
	}
	return nil
}
