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

package vfs

import (
	"sync"
	"time"

	"github.com/wormhole-net/wormhole/clock"
	"github.com/wormhole-net/wormhole/wire"
)

// DirCache holds the fully-paged listing of a directory inode, assembled
// across however many ListDir round trips it took to drain the cursor.
// Put is only handed a listing once its cursor is drained; a partial
// listing is never stored, so it is never served from cache.
type DirCache struct {
	ttl time.Duration
	clk clock.Clock

	mu      sync.Mutex
	entries map[uint64]dirEntry
}

type dirEntry struct {
	children  []wire.DirEntry
	expiresAt time.Time
}

// NewDirCache returns a cache whose entries live for ttl.
func NewDirCache(ttl time.Duration, clk clock.Clock) *DirCache {
	return &DirCache{ttl: ttl, clk: clk, entries: make(map[uint64]dirEntry)}
}

// Get returns the cached listing for inode if present and unexpired.
func (c *DirCache) Get(inode uint64) ([]wire.DirEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[inode]
	if !ok {
		return nil, false
	}
	if c.clk.Now().After(e.expiresAt) {
		delete(c.entries, inode)
		return nil, false
	}
	return e.children, true
}

// Put stores a complete listing for inode with a fresh TTL.
func (c *DirCache) Put(inode uint64, children []wire.DirEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[inode] = dirEntry{children: children, expiresAt: c.clk.Now().Add(c.ttl)}
}

// Invalidate evicts a single directory's cached listing.
func (c *DirCache) Invalidate(inode uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, inode)
}

// InvalidateAll drops every cached listing, used on reconnect.
func (c *DirCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]dirEntry)
}
