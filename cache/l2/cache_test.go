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

package l2_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-net/wormhole/cache/l2"
	"github.com/wormhole-net/wormhole/clock"
	"github.com/wormhole-net/wormhole/wire"
)

func openTestCache(t *testing.T, maxBytes int64) *l2.Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := l2.Open(path, maxBytes, 0.8, 0, clock.NewSimulatedClock(time.Now()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c := openTestCache(t, 1<<20)
	id := wire.ChunkID{Inode: 1, Index: 0}
	data := []byte("durable chunk bytes")

	require.NoError(t, c.Put(id, data, wire.ComputeChecksum(data)))

	got, ok, err := c.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, got)
}

func TestGetMissOnUnknownKey(t *testing.T) {
	c := openTestCache(t, 1<<20)
	_, ok, err := c.Get(wire.ChunkID{Inode: 1, Index: 0})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetDetectsChecksumMismatchAndEvicts(t *testing.T) {
	c := openTestCache(t, 1<<20)
	id := wire.ChunkID{Inode: 1, Index: 0}
	data := []byte("durable chunk bytes")

	// Store with a checksum that does not match the data, simulating
	// corruption discovered on a later read.
	require.NoError(t, c.Put(id, data, wire.ComputeChecksum([]byte("different bytes"))))

	_, ok, err := c.Get(id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.EqualValues(t, 1, c.CorruptionCount())

	// The corrupt entry was evicted; a second Get still misses cleanly.
	_, ok, err = c.Get(id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := openTestCache(t, 1<<20)
	id := wire.ChunkID{Inode: 1, Index: 0}
	data := []byte("data")
	require.NoError(t, c.Put(id, data, wire.ComputeChecksum(data)))

	require.NoError(t, c.Invalidate(id))

	_, ok, err := c.Get(id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidateInodeDropsAllItsChunks(t *testing.T) {
	c := openTestCache(t, 1<<20)
	for i := uint64(0); i < 3; i++ {
		data := []byte("data")
		require.NoError(t, c.Put(wire.ChunkID{Inode: 1, Index: i}, data, wire.ComputeChecksum(data)))
	}
	otherData := []byte("other")
	require.NoError(t, c.Put(wire.ChunkID{Inode: 2, Index: 0}, otherData, wire.ComputeChecksum(otherData)))

	require.NoError(t, c.InvalidateInode(1))

	for i := uint64(0); i < 3; i++ {
		_, ok, err := c.Get(wire.ChunkID{Inode: 1, Index: i})
		require.NoError(t, err)
		assert.False(t, ok)
	}
	_, ok, err := c.Get(wire.ChunkID{Inode: 2, Index: 0})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPutTriggersEvictionOverCapacity(t *testing.T) {
	c := openTestCache(t, 300) // tiny cap, several 100-byte entries

	for i := uint64(0); i < 10; i++ {
		data := make([]byte, 100)
		require.NoError(t, c.Put(wire.ChunkID{Inode: 1, Index: i}, data, wire.ComputeChecksum(data)))
	}

	assert.LessOrEqual(t, c.CurrentBytes(), int64(300))
}

func TestOpenReopensExistingDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	clk := clock.NewSimulatedClock(time.Now())

	c1, err := l2.Open(path, 1<<20, 0.8, 0, clk)
	require.NoError(t, err)
	id := wire.ChunkID{Inode: 1, Index: 0}
	data := []byte("persisted across reopen")
	require.NoError(t, c1.Put(id, data, wire.ComputeChecksum(data)))
	require.NoError(t, c1.Close())

	c2, err := l2.Open(path, 1<<20, 0.8, 0, clk)
	require.NoError(t, err)
	defer c2.Close()

	got, ok, err := c2.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), c2.CurrentBytes())
}
