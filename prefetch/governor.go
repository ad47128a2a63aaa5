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

package prefetch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/wormhole-net/wormhole/wire"
)

// FetchFunc issues the actual outbound ReadChunk for id, populating
// whatever cache tiers the caller wired it to as a side effect. Both
// demand reads and speculative prefetches go through the same FetchFunc
// and the same singleflight.Group, which is what gives the governor its
// single-fetch invariant (spec §8 Invariant 2): no ChunkId is ever
// outstanding on the wire twice at once, regardless of who asked.
type FetchFunc func(ctx context.Context, id wire.ChunkID) ([]byte, error)

// CachedFunc reports whether id is already satisfiable from a faster
// tier, so the governor never issues a prefetch for a chunk that
// wouldn't need one (spec §4.H rule 2, "do not push").
type CachedFunc func(id wire.ChunkID) bool

// Governor implements the sliding-window sequential/random classifier
// and read-ahead policy described in spec §4.H.
type Governor struct {
	lookahead   int
	maxInFlight int32
	fetch       FetchFunc
	cached      CachedFunc
	sg          singleflight.Group

	mu      sync.Mutex
	windows map[uint64]*window

	inFlight int32 // prefetch-only; demand fetches never count against this
}

// New constructs a Governor. lookahead is L, the number of chunks
// prefetched ahead of a detected sequential scan. maxInFlight bounds
// the total number of speculative (non-demand) fetches outstanding at
// once across all inodes.
func New(lookahead, maxInFlight int, fetch FetchFunc, cached CachedFunc) *Governor {
	return &Governor{
		lookahead:   lookahead,
		maxInFlight: int32(maxInFlight),
		fetch:       fetch,
		cached:      cached,
		windows:     make(map[uint64]*window),
	}
}

func sfKey(id wire.ChunkID) string {
	return fmt.Sprintf("%d:%d", id.Inode, id.Index)
}

// Fetch performs a demand read for id, coalescing with any in-flight
// fetch (demand or speculative) already outstanding for the same chunk.
func (g *Governor) Fetch(ctx context.Context, id wire.ChunkID) ([]byte, error) {
	v, err, _ := g.sg.Do(sfKey(id), func() (any, error) {
		return g.fetch(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Observe records that id was just read on demand and, if the access
// pattern for its inode now looks sequential, kicks off background
// prefetches for the next lookahead chunks.
func (g *Governor) Observe(ctx context.Context, id wire.ChunkID) {
	w := g.windowFor(id.Inode, ctx)
	w.record(id.Index)
	if !w.isSequential() {
		return
	}
	g.triggerPrefetch(w, id.Inode)
}

func (g *Governor) windowFor(inode uint64, parent context.Context) *window {
	g.mu.Lock()
	defer g.mu.Unlock()
	w, ok := g.windows[inode]
	if !ok {
		w = newWindow(parent)
		g.windows[inode] = w
	}
	return w
}

func (g *Governor) triggerPrefetch(w *window, inode uint64) {
	for _, idx := range w.nextIndices(g.lookahead) {
		id := wire.ChunkID{Inode: inode, Index: idx}
		if g.cached != nil && g.cached(id) {
			continue
		}
		if !atomicIncIfBelow(&g.inFlight, g.maxInFlight) {
			return // at the backpressure cap; drop remaining candidates
		}
		go g.runPrefetch(w.ctx, id)
	}
}

func (g *Governor) runPrefetch(ctx context.Context, id wire.ChunkID) {
	defer atomic.AddInt32(&g.inFlight, -1)
	_, _, _ = g.sg.Do(sfKey(id), func() (any, error) {
		return g.fetch(ctx, id)
	})
	// The result itself is discarded either way: FetchFunc's job is to
	// populate the cache tiers as a side effect. If ctx was canceled
	// (inode invalidated or mount stopping) in the meantime, that's
	// exactly the "discard on cancellation" behavior spec §4.H rule 4
	// asks for, achieved here by simply not acting on the result.
}

// CancelInode cancels all pending prefetches for inode and forgets its
// window, per spec §4.H rule 4.
func (g *Governor) CancelInode(inode uint64) {
	g.mu.Lock()
	w, ok := g.windows[inode]
	delete(g.windows, inode)
	g.mu.Unlock()
	if ok {
		w.cancel()
	}
}

// Shutdown cancels every inode's pending prefetches.
func (g *Governor) Shutdown() {
	g.mu.Lock()
	windows := g.windows
	g.windows = make(map[uint64]*window)
	g.mu.Unlock()
	for _, w := range windows {
		w.cancel()
	}
}

// InFlight returns the current number of speculative fetches
// outstanding, for tests and diagnostics.
func (g *Governor) InFlight() int {
	return int(atomic.LoadInt32(&g.inFlight))
}

// atomicIncIfBelow increments *addr and returns true iff the
// pre-increment value was below cap; otherwise it leaves *addr
// unchanged and returns false.
func atomicIncIfBelow(addr *int32, cap int32) bool {
	for {
		cur := atomic.LoadInt32(addr)
		if cur >= cap {
			return false
		}
		if atomic.CompareAndSwapInt32(addr, cur, cur+1) {
			return true
		}
	}
}
