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

// Package pool implements a fixed-size, manually managed byte arena used to
// hold decoded blob bodies for zero-copy propagation through the reader
// stage. Segments are addressed by opaque integer references; latches pin a
// segment against relocation during compaction.
package pool

import (
	"sort"
	"sync"

	"github.com/kestreldb/kestrel/sql"
)

// FailedCommit is returned by Commit when the pool cannot satisfy the
// request even after compaction.
const FailedCommit int64 = -1

type segment struct {
	start   int64
	length  int64
	latches int
}

// MemoryPool is a fixed-size byte buffer carved into used and free
// segments. Used and free segments tile the buffer without overlap, no two
// free segments are left adjacent, and a latched segment never moves.
// All operations are serialized by a single mutex.
type MemoryPool struct {
	mu      sync.Mutex
	size    int64
	buffer  []byte
	free    []segment
	used    map[int64]*segment
	nextRef int64

	commits       int64
	failedCommits int64
	reads         int64
	releases      int64
	l1Compactions int64
	l2Compactions int64
}

// NewMemoryPool builds a pool over a fresh buffer of the given size.
func NewMemoryPool(size int64) *MemoryPool {
	return &MemoryPool{
		size:   size,
		buffer: make([]byte, size),
		free:   []segment{{start: 0, length: size}},
		used:   make(map[int64]*segment),
	}
}

// Size returns the pool's fixed capacity in bytes.
func (p *MemoryPool) Size() int64 {
	return p.size
}

// Commit copies data into the first free segment large enough and returns a
// reference to it, or FailedCommit when no segment can be found even after
// compaction. A zero-length commit always succeeds.
func (p *MemoryPool) Commit(data []byte) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	length := int64(len(data))
	if length == 0 {
		ref := p.nextRef
		p.nextRef++
		p.used[ref] = &segment{start: 0, length: 0}
		p.commits++
		return ref
	}
	if length > p.size {
		p.failedCommits++
		return FailedCommit
	}

	idx := p.findFree(length)
	if idx < 0 {
		p.level1Compaction()
		idx = p.findFree(length)
	}
	if idx < 0 {
		p.level2Compaction()
		idx = p.findFree(length)
	}
	if idx < 0 {
		p.failedCommits++
		return FailedCommit
	}

	seg := &p.free[idx]
	start := seg.start
	copy(p.buffer[start:start+length], data)
	seg.start += length
	seg.length -= length
	if seg.length == 0 {
		p.free = append(p.free[:idx], p.free[idx+1:]...)
	}

	ref := p.nextRef
	p.nextRef++
	p.used[ref] = &segment{start: start, length: length}
	p.commits++
	return ref
}

// Read returns the bytes of a committed segment. With zeroCopy the returned
// slice borrows the pool buffer and is only stable while compaction is held
// off; setting latch pins the segment until Unlatch, which is the safe form.
// Without zeroCopy a fresh copy is returned.
func (p *MemoryPool) Read(ref int64, zeroCopy bool, latch bool) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seg, ok := p.used[ref]
	if !ok {
		return nil, sql.ErrInvalidInternalState.New("read of unknown memory pool reference")
	}
	p.reads++
	if latch {
		seg.latches++
	}
	view := p.buffer[seg.start : seg.start+seg.length]
	if zeroCopy {
		return view, nil
	}
	out := make([]byte, seg.length)
	copy(out, view)
	return out, nil
}

// ReadRange copies a sub-range of a committed segment, for decoders that
// only need a slice of a large blob.
func (p *MemoryPool) ReadRange(ref, offset, length int64) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	seg, ok := p.used[ref]
	if !ok {
		return nil, sql.ErrInvalidInternalState.New("read of unknown memory pool reference")
	}
	if offset < 0 || length < 0 || offset+length > seg.length {
		return nil, sql.ErrInvalidInternalState.New("read range outside segment bounds")
	}
	p.reads++
	out := make([]byte, length)
	copy(out, p.buffer[seg.start+offset:seg.start+offset+length])
	return out, nil
}

// Unlatch decrements a segment's latch count. Unlatching an unknown
// reference or a segment with no latches is a programming error.
func (p *MemoryPool) Unlatch(ref int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	seg, ok := p.used[ref]
	if !ok {
		return sql.ErrInvalidInternalState.New("unlatch of unknown memory pool reference")
	}
	if seg.latches == 0 {
		return sql.ErrInvalidInternalState.New("unlatch of segment with no latches")
	}
	seg.latches--
	return nil
}

// Release returns a segment to the free list and coalesces it with its
// neighbors. The segment must not be latched.
func (p *MemoryPool) Release(ref int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	seg, ok := p.used[ref]
	if !ok {
		return sql.ErrInvalidInternalState.New("release of unknown memory pool reference")
	}
	if seg.latches > 0 {
		return sql.ErrInvalidInternalState.New("release of latched memory pool segment")
	}
	delete(p.used, ref)
	p.releases++
	if seg.length == 0 {
		return nil
	}
	p.free = append(p.free, segment{start: seg.start, length: seg.length})
	p.level1Compaction()
	return nil
}

// AvailableSpace returns the total free bytes, not necessarily contiguous.
func (p *MemoryPool) AvailableSpace() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var total int64
	for _, seg := range p.free {
		total += seg.length
	}
	return total
}

// L1Compactions returns how many coalescing passes have run.
func (p *MemoryPool) L1Compactions() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.l1Compactions
}

// L2Compactions returns how many relocation passes have run.
func (p *MemoryPool) L2Compactions() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.l2Compactions
}

// findFree returns the index of the first free segment of at least length
// bytes, or -1.
func (p *MemoryPool) findFree(length int64) int {
	for i := range p.free {
		if p.free[i].length >= length {
			return i
		}
	}
	return -1
}

// level1Compaction coalesces adjacent free segments in place. Idempotent;
// reorders nothing. Callers hold the mutex.
func (p *MemoryPool) level1Compaction() {
	p.l1Compactions++
	if len(p.free) < 2 {
		return
	}
	sort.Slice(p.free, func(i, j int) bool { return p.free[i].start < p.free[j].start })
	merged := p.free[:1]
	for _, seg := range p.free[1:] {
		last := &merged[len(merged)-1]
		if last.start+last.length == seg.start {
			last.length += seg.length
		} else {
			merged = append(merged, seg)
		}
	}
	p.free = merged
}

// level2Compaction shuffles used segments toward offset zero, preserving
// their relative order and never moving a latched segment. Afterwards all
// free space is at the high end or trapped behind latched segments. Callers
// hold the mutex.
func (p *MemoryPool) level2Compaction() {
	p.l2Compactions++

	ordered := make([]*segment, 0, len(p.used))
	for _, seg := range p.used {
		if seg.length > 0 {
			ordered = append(ordered, seg)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].start < ordered[j].start })

	var offset int64
	for _, seg := range ordered {
		if seg.latches > 0 {
			offset = seg.start + seg.length
			continue
		}
		if seg.start != offset {
			copy(p.buffer[offset:offset+seg.length], p.buffer[seg.start:seg.start+seg.length])
			seg.start = offset
		}
		offset += seg.length
	}

	// rebuild the free list from the gaps
	p.free = p.free[:0]
	var cursor int64
	for _, seg := range ordered {
		if seg.start > cursor {
			p.free = append(p.free, segment{start: cursor, length: seg.start - cursor})
		}
		cursor = seg.start + seg.length
	}
	if cursor < p.size {
		p.free = append(p.free, segment{start: cursor, length: p.size - cursor})
	}
}

// segmentOf exposes segment geometry to package tests.
func (p *MemoryPool) segmentOf(ref int64) (start, length int64, latches int, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	seg, found := p.used[ref]
	if !found {
		return 0, 0, 0, false
	}
	return seg.start, seg.length, seg.latches, true
}

// usedAndFreeBytes exposes the tiling invariant to package tests.
func (p *MemoryPool) usedAndFreeBytes() (used, free int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, seg := range p.used {
		used += seg.length
	}
	for _, seg := range p.free {
		free += seg.length
	}
	return used, free
}
