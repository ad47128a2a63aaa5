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

// AttrCache holds TTL'd FileAttr entries keyed by inode, per spec §4.I
// ("Cache attributes and directory listings with the configured TTLs;
// honor Invalidate messages").
type AttrCache struct {
	ttl time.Duration
	clk clock.Clock

	mu      sync.Mutex
	entries map[uint64]attrEntry
}

type attrEntry struct {
	attr      wire.FileAttr
	expiresAt time.Time
}

// NewAttrCache returns a cache whose entries live for ttl.
func NewAttrCache(ttl time.Duration, clk clock.Clock) *AttrCache {
	return &AttrCache{ttl: ttl, clk: clk, entries: make(map[uint64]attrEntry)}
}

// Get returns the cached attributes for inode if present and unexpired.
func (c *AttrCache) Get(inode uint64) (wire.FileAttr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[inode]
	if !ok {
		return wire.FileAttr{}, false
	}
	if c.clk.Now().After(e.expiresAt) {
		delete(c.entries, inode)
		return wire.FileAttr{}, false
	}
	return e.attr, true
}

// Put stores attr for inode with a fresh TTL.
func (c *AttrCache) Put(inode uint64, attr wire.FileAttr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[inode] = attrEntry{attr: attr, expiresAt: c.clk.Now().Add(c.ttl)}
}

// Invalidate evicts a single inode's cached attributes.
func (c *AttrCache) Invalidate(inode uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, inode)
}

// InvalidateAll drops every cached entry, used on reconnect.
func (c *AttrCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]attrEntry)
}
