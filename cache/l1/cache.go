// Copyright 2025 Google LLC
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

// Package l1 is the in-memory, process-local chunk cache: a bounded,
// sharded LRU keyed by wire.ChunkID with TTL-aware reads, per spec §4.F.
package l1

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"

	"github.com/wormhole-net/wormhole/clock"
	"github.com/wormhole-net/wormhole/wire"
)

// shardCount splits the cache's lock and eviction list across several
// independent shards so a prefetch burst on one inode doesn't serialize
// against unrelated reads on another, mirroring the sharded-lock
// discipline the teacher's directory inode uses around its own mutex.
const shardCount = 16

type entry struct {
	key       wire.ChunkID
	data      []byte
	expiresAt time.Time
}

type shard struct {
	mu        sync.Mutex
	maxBytes  int64
	curBytes  int64
	ll        *list.List
	index     map[wire.ChunkID]*list.Element
}

// Cache is a bounded, process-local LRU over chunk bytes.
type Cache struct {
	shards [shardCount]*shard
	ttl    time.Duration
	clk    clock.Clock
}

// New constructs a Cache with the given total byte capacity (spread
// evenly across shards) and TTL, per spec §4.F's capacity bounds (the
// caller is expected to have already validated maxBytes against the
// config package's min/max).
func New(maxBytes int64, ttl time.Duration, clk clock.Clock) *Cache {
	c := &Cache{ttl: ttl, clk: clk}
	perShard := maxBytes / shardCount
	if perShard < 1 {
		perShard = 1
	}
	for i := range c.shards {
		c.shards[i] = &shard{maxBytes: perShard, ll: list.New(), index: make(map[wire.ChunkID]*list.Element)}
	}
	return c
}

func (c *Cache) shardFor(id wire.ChunkID) *shard {
	h := fnv.New64a()
	var buf [16]byte
	putUint64(buf[0:8], id.Inode)
	putUint64(buf[8:16], id.Index)
	h.Write(buf[:])
	return c.shards[h.Sum64()%shardCount]
}

func putUint64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (56 - 8*i))
	}
}

// Get returns the cached bytes for id, reporting a miss if absent or
// past its TTL. A TTL expiry removes the entry eagerly so its bytes
// don't count against capacity while stale.
func (c *Cache) Get(id wire.ChunkID) ([]byte, bool) {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.index[id]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.clk.Now().After(e.expiresAt) {
		s.removeElement(el)
		return nil, false
	}
	s.ll.MoveToFront(el)
	return e.data, true
}

// Put inserts or replaces the cached bytes for id, evicting the
// least-recently-used entries in id's shard as needed to stay within
// capacity. A single entry larger than the shard's capacity is simply
// not retained (Get will always miss for it).
func (c *Cache) Put(id wire.ChunkID, data []byte) {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.index[id]; ok {
		s.removeElement(el)
	}

	size := int64(len(data))
	if size > s.maxBytes {
		return
	}

	e := &entry{key: id, data: data, expiresAt: c.clk.Now().Add(c.ttl)}
	el := s.ll.PushFront(e)
	s.index[id] = el
	s.curBytes += size

	for s.curBytes > s.maxBytes {
		oldest := s.ll.Back()
		if oldest == nil {
			break
		}
		s.removeElement(oldest)
	}
}

// Invalidate drops the cached entry for id, if any.
func (c *Cache) Invalidate(id wire.ChunkID) {
	s := c.shardFor(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.index[id]; ok {
		s.removeElement(el)
	}
}

// InvalidateInode drops every cached chunk belonging to inode, used when
// a whole file is invalidated (e.g. on reconnect or a host-side
// Invalidate naming the file itself rather than a specific chunk).
func (c *Cache) InvalidateInode(inode uint64) {
	for _, s := range c.shards {
		s.mu.Lock()
		for id, el := range s.index {
			if id.Inode == inode {
				s.removeElement(el)
			}
		}
		s.mu.Unlock()
	}
}

// CurrentBytes returns the total bytes currently retained across all
// shards.
func (c *Cache) CurrentBytes() int64 {
	var total int64
	for _, s := range c.shards {
		s.mu.Lock()
		total += s.curBytes
		s.mu.Unlock()
	}
	return total
}

func (s *shard) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	s.ll.Remove(el)
	delete(s.index, e.key)
	s.curBytes -= int64(len(e.data))
}
