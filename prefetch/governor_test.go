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

package prefetch_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-net/wormhole/prefetch"
	"github.com/wormhole-net/wormhole/wire"
)

// countingFetcher records every chunk it was asked to fetch and lets
// tests block individual fetches to observe coalescing.
type countingFetcher struct {
	mu    sync.Mutex
	calls map[wire.ChunkID]int
	gate  chan struct{} // if non-nil, each fetch waits on it before returning
}

func newCountingFetcher() *countingFetcher {
	return &countingFetcher{calls: make(map[wire.ChunkID]int)}
}

func (f *countingFetcher) fetch(ctx context.Context, id wire.ChunkID) ([]byte, error) {
	f.mu.Lock()
	f.calls[id]++
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return []byte(fmt.Sprintf("chunk-%d-%d", id.Inode, id.Index)), nil
}

func (f *countingFetcher) callCount(id wire.ChunkID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *countingFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

func TestFetchIssuesOneCallPerChunk(t *testing.T) {
	f := newCountingFetcher()
	g := prefetch.New(4, 8, f.fetch, nil)

	id := wire.ChunkID{Inode: 1, Index: 0}
	data, err := g.Fetch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "chunk-1-0", string(data))
	assert.Equal(t, 1, f.callCount(id))
}

func TestConcurrentDemandFetchesCoalesce(t *testing.T) {
	f := newCountingFetcher()
	f.gate = make(chan struct{})
	g := prefetch.New(4, 8, f.fetch, nil)
	id := wire.ChunkID{Inode: 1, Index: 0}

	var wg sync.WaitGroup
	results := make([][]byte, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := g.Fetch(context.Background(), id)
			assert.NoError(t, err)
			results[i] = data
		}(i)
	}

	waitFor(t, time.Second, func() bool { return f.callCount(id) == 1 })
	close(f.gate)
	wg.Wait()

	assert.Equal(t, 1, f.callCount(id))
	for _, r := range results {
		assert.Equal(t, "chunk-1-0", string(r))
	}
}

func TestSequentialAccessTriggersPrefetch(t *testing.T) {
	f := newCountingFetcher()
	g := prefetch.New(4, 8, f.fetch, nil)
	ctx := context.Background()
	inode := uint64(1)

	for i := uint64(0); i < 3; i++ {
		id := wire.ChunkID{Inode: inode, Index: i}
		_, err := g.Fetch(ctx, id)
		require.NoError(t, err)
		g.Observe(ctx, id)
	}

	waitFor(t, time.Second, func() bool {
		return f.callCount(wire.ChunkID{Inode: inode, Index: 3}) == 1
	})
}

func TestRandomAccessDoesNotTriggerPrefetch(t *testing.T) {
	f := newCountingFetcher()
	g := prefetch.New(4, 8, f.fetch, nil)
	ctx := context.Background()
	inode := uint64(1)

	indices := []uint64{0, 50, 3, 90}
	for _, idx := range indices {
		id := wire.ChunkID{Inode: inode, Index: idx}
		_, err := g.Fetch(ctx, id)
		require.NoError(t, err)
		g.Observe(ctx, id)
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, len(indices), f.totalCalls())
}

func TestCachedChunksAreNotPrefetched(t *testing.T) {
	f := newCountingFetcher()
	var skip atomic.Bool
	skip.Store(false)
	cached := func(id wire.ChunkID) bool {
		return skip.Load() && id.Index == 4
	}
	g := prefetch.New(4, 8, f.fetch, cached)
	ctx := context.Background()
	inode := uint64(1)

	skip.Store(true)
	for i := uint64(0); i < 3; i++ {
		id := wire.ChunkID{Inode: inode, Index: i}
		_, err := g.Fetch(ctx, id)
		require.NoError(t, err)
		g.Observe(ctx, id)
	}

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, f.callCount(wire.ChunkID{Inode: inode, Index: 4}))
}

func TestBackpressureCapsInFlightPrefetches(t *testing.T) {
	f := newCountingFetcher()
	g := prefetch.New(8, 2, f.fetch, nil)
	ctx := context.Background()
	inode := uint64(1)

	for i := uint64(0); i < 2; i++ {
		id := wire.ChunkID{Inode: inode, Index: i}
		_, err := g.Fetch(ctx, id)
		require.NoError(t, err)
	}
	// Gate only the prefetches: the demand fetches above must complete.
	f.gate = make(chan struct{})
	g.Observe(ctx, wire.ChunkID{Inode: inode, Index: 0})
	g.Observe(ctx, wire.ChunkID{Inode: inode, Index: 1})

	waitFor(t, time.Second, func() bool { return g.InFlight() == 2 })
	assert.Equal(t, 2, g.InFlight())
	close(f.gate)

	waitFor(t, time.Second, func() bool { return g.InFlight() == 0 })
}

func TestCancelInodeStopsFurtherPrefetchWork(t *testing.T) {
	f := newCountingFetcher()
	g := prefetch.New(4, 8, f.fetch, nil)
	ctx := context.Background()
	inode := uint64(1)

	for i := uint64(0); i < 2; i++ {
		id := wire.ChunkID{Inode: inode, Index: i}
		_, err := g.Fetch(ctx, id)
		require.NoError(t, err)
	}
	// Gate only the prefetches: the demand fetches above must complete.
	f.gate = make(chan struct{})
	defer close(f.gate)
	g.Observe(ctx, wire.ChunkID{Inode: inode, Index: 0})
	g.Observe(ctx, wire.ChunkID{Inode: inode, Index: 1})

	waitFor(t, time.Second, func() bool { return g.InFlight() > 0 })
	g.CancelInode(inode)

	// Cancellation only cancels the context passed to in-flight fetches;
	// it does not forcibly unblock a fetch already executing. What it
	// guarantees is that no new window state survives for this inode.
	g.Observe(ctx, wire.ChunkID{Inode: inode, Index: 1})
	assert.NotPanics(t, func() { g.CancelInode(inode) })
}
