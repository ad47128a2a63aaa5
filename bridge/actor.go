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

// Package bridge is the async/sync bridge of spec §4.J: the single
// owner of a mount's transport.Endpoint, prefetch.Governor, and cache
// tiers. Every blocking VFS callback reaches the transport only by
// posting a Request onto Actor's bounded queue and waiting on its
// one-shot reply channel; the actor itself never blocks on filesystem
// I/O, only on the asynchronous transport.
package bridge

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/wormhole-net/wormhole/cache/l1"
	"github.com/wormhole-net/wormhole/cache/l2"
	"github.com/wormhole-net/wormhole/prefetch"
	"github.com/wormhole-net/wormhole/transport"
	"github.com/wormhole-net/wormhole/vfs"
	"github.com/wormhole-net/wormhole/wire"
)

// request is one pending unit of work submitted by a VFS callback. do
// runs on an actor worker goroutine; reply carries its single result
// back to the blocked caller.
type request struct {
	ctx   context.Context
	do    func(ctx context.Context) (any, error)
	reply chan result
}

type result struct {
	val any
	err error
}

// Actor implements vfs.RemoteOps by serializing requests through a
// bounded queue onto a shared transport.Endpoint, consulting the L1/L2
// cache tiers and prefetch.Governor for ReadChunk along the way. Queue
// depth is the system's natural backpressure point (spec §4.J): once
// full, new VFS callbacks block before ever reaching the network.
type Actor struct {
	ep  *transport.Endpoint
	gov *prefetch.Governor
	l1  *l1.Cache
	l2  *l2.Cache
	log *slog.Logger

	queue chan *request

	closeOnce sync.Once
	shutdown  chan struct{}
	wg        sync.WaitGroup

	onInvalidate func(wire.Invalidate)
}

var _ vfs.RemoteOps = (*Actor)(nil)

// Config bounds an Actor's queue depth and prefetch behavior.
type Config struct {
	QueueDepth          int
	PrefetchLookahead   int
	MaxInFlightPrefetch int
}

// DefaultConfig returns the lookahead/backpressure defaults named in
// spec §4.H.
func DefaultConfig() Config {
	return Config{QueueDepth: 256, PrefetchLookahead: 4, MaxInFlightPrefetch: 16}
}

// New constructs an Actor over ep, with l1c/l2c as its two cache tiers.
// onInvalidate is called (from the actor's control-stream reader
// goroutine) whenever the host sends an Invalidate message; it is
// typically vfs.Client.ApplyInvalidate plus cache tier invalidation.
func New(ep *transport.Endpoint, l1c *l1.Cache, l2c *l2.Cache, cfg Config, log *slog.Logger, onInvalidate func(wire.Invalidate)) *Actor {
	if log == nil {
		log = slog.Default()
	}
	a := &Actor{
		ep:           ep,
		l1:           l1c,
		l2:           l2c,
		log:          log,
		queue:        make(chan *request, cfg.QueueDepth),
		shutdown:     make(chan struct{}),
		onInvalidate: onInvalidate,
	}
	a.gov = prefetch.New(cfg.PrefetchLookahead, cfg.MaxInFlightPrefetch, a.fetchChunk, a.chunkCached)
	a.wg.Add(1)
	go a.run()
	return a
}

// run is the actor loop: it pulls requests off the queue and dispatches
// each to its own worker goroutine, since the underlying transport
// already multiplexes independent streams — serializing execution here
// would throttle unrelated requests behind a slow one. The queue itself,
// not single-threaded execution, is what provides backpressure.
func (a *Actor) run() {
	defer a.wg.Done()
	for {
		select {
		case <-a.shutdown:
			return
		case req := <-a.queue:
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				val, err := req.do(req.ctx)
				req.reply <- result{val: val, err: err}
			}()
		}
	}
}

// submit posts work onto the actor's queue and blocks until it
// completes, ctx is canceled, or the actor is shutting down.
func (a *Actor) submit(ctx context.Context, do func(ctx context.Context) (any, error)) (any, error) {
	req := &request{ctx: ctx, do: do, reply: make(chan result, 1)}
	select {
	case a.queue <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.shutdown:
		return nil, wire.NewError(wire.ConnectionLost, "mount is stopping")
	}
	select {
	case res := <-req.reply:
		return res.val, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.shutdown:
		return nil, wire.NewError(wire.ConnectionLost, "mount is stopping")
	}
}

// Shutdown stops accepting new work and waits for in-flight requests to
// unwind. Per spec §4.K, callers unblock pending VFS callbacks with
// ConnectionLost; submit already does that for anything still queued.
func (a *Actor) Shutdown() {
	a.closeOnce.Do(func() {
		close(a.shutdown)
		a.gov.Shutdown()
	})
	a.wg.Wait()
}

// roundTrip opens a fresh request stream, writes one framed request, and
// reads back exactly one framed response, per spec §4.D's "client writes
// a single request, reads a single framed response, and closes the
// stream."
func (a *Actor) roundTrip(ctx context.Context, kind wire.Kind, payload any) (wire.Envelope, error) {
	stream, err := a.ep.OpenRequestStream(ctx)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("bridge: open request stream: %w", err)
	}
	defer stream.Close()

	if err := wire.Encode(stream, kind, payload); err != nil {
		return wire.Envelope{}, err
	}

	env, err := wire.ReadEnvelope(stream)
	if err != nil {
		return wire.Envelope{}, fmt.Errorf("bridge: read response: %w", err)
	}
	if env.Kind == wire.KindErrorResponse {
		var errResp wire.ErrorResponse
		if decErr := wire.Decode(env, &errResp); decErr != nil {
			return wire.Envelope{}, decErr
		}
		return wire.Envelope{}, wire.NewError(errResp.Kind, errResp.Detail)
	}
	return env, nil
}

// ListDir implements vfs.RemoteOps.
func (a *Actor) ListDir(ctx context.Context, inode uint64, cursor wire.Cursor) (wire.ListDirResponse, error) {
	v, err := a.submit(ctx, func(ctx context.Context) (any, error) {
		env, err := a.roundTrip(ctx, wire.KindListDirRequest, wire.ListDirRequest{Inode: inode, Cursor: cursor})
		if err != nil {
			return nil, err
		}
		var resp wire.ListDirResponse
		if err := wire.Decode(env, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return wire.ListDirResponse{}, err
	}
	return v.(wire.ListDirResponse), nil
}

// GetAttr implements vfs.RemoteOps.
func (a *Actor) GetAttr(ctx context.Context, req wire.GetAttrRequest) (wire.GetAttrResponse, error) {
	v, err := a.submit(ctx, func(ctx context.Context) (any, error) {
		env, err := a.roundTrip(ctx, wire.KindGetAttrRequest, req)
		if err != nil {
			return nil, err
		}
		var resp wire.GetAttrResponse
		if err := wire.Decode(env, &resp); err != nil {
			return nil, err
		}
		return resp, nil
	})
	if err != nil {
		return wire.GetAttrResponse{}, err
	}
	return v.(wire.GetAttrResponse), nil
}

// ReadChunk implements vfs.RemoteOps, consulting L1 then L2 before
// falling through to the governor's coalesced, single-flight fetch
// (spec §8 Invariant 2). A successful fetch is observed by the governor
// so a detected sequential scan triggers read-ahead for the chunks
// after it.
func (a *Actor) ReadChunk(ctx context.Context, inode uint64, index uint64, length uint32) (wire.ReadChunkResponse, error) {
	id := wire.ChunkID{Inode: inode, Index: index}

	if data, ok := a.l1.Get(id); ok {
		return wire.ReadChunkResponse{Data: truncate(data, length), Checksum: wire.ComputeChecksum(data)}, nil
	}
	if data, ok, err := a.l2.Get(id); err == nil && ok {
		a.l1.Put(id, data)
		return wire.ReadChunkResponse{Data: truncate(data, length), Checksum: wire.ComputeChecksum(data)}, nil
	}

	data, err := a.gov.Fetch(ctx, id)
	if err != nil {
		return wire.ReadChunkResponse{}, err
	}
	a.gov.Observe(ctx, id)
	return wire.ReadChunkResponse{Data: truncate(data, length), Checksum: wire.ComputeChecksum(data)}, nil
}

// truncate bounds data to the originally requested length; cached
// entries are always stored at full chunk width, but a caller may have
// asked for fewer bytes of the final, short chunk.
func truncate(data []byte, length uint32) []byte {
	if uint32(len(data)) > length {
		return data[:length]
	}
	return data
}

// chunkCached is prefetch.CachedFunc: true iff id is already
// satisfiable without a wire round trip (spec §4.H rule 2, "do not
// push").
func (a *Actor) chunkCached(id wire.ChunkID) bool {
	if _, ok := a.l1.Get(id); ok {
		return true
	}
	if data, ok, err := a.l2.Get(id); err == nil && ok {
		a.l1.Put(id, data)
		return true
	}
	return false
}

// fetchChunk is prefetch.FetchFunc: the actual outbound ReadChunk,
// submitted through the actor's queue like any other request so that
// prefetches and demand reads share the same backpressure point. A
// verified result is inserted into L1 synchronously and into L2 in the
// background, per spec §4.F ("put never performs I/O") and §4.G
// (durable insert).
func (a *Actor) fetchChunk(ctx context.Context, id wire.ChunkID) ([]byte, error) {
	v, err := a.submit(ctx, func(ctx context.Context) (any, error) {
		env, err := a.roundTrip(ctx, wire.KindReadChunkRequest, wire.ReadChunkRequest{
			Inode: id.Inode, Index: id.Index, Length: wire.ChunkSize,
		})
		if err != nil {
			return nil, err
		}
		var resp wire.ReadChunkResponse
		if err := wire.Decode(env, &resp); err != nil {
			return nil, err
		}
		if !resp.Checksum.Verify(resp.Data) {
			return nil, wire.NewError(wire.ChecksumMismatch, fmt.Sprintf("chunk %v", id))
		}
		return resp.Data, nil
	})
	if err != nil {
		return nil, err
	}
	data := v.([]byte)

	a.l1.Put(id, data)
	go func() {
		if err := a.l2.Put(id, data, wire.ComputeChecksum(data)); err != nil {
			a.log.Warn("bridge: l2 put failed", "chunk", id, "error", err)
		}
	}()
	return data, nil
}

// InvalidateInode drops id's cached chunks from both tiers and cancels
// any pending prefetches for it, per spec §4.H rule 4 and §4.F/§4.G
// invalidate contracts.
func (a *Actor) InvalidateInode(inode uint64) {
	a.l1.InvalidateInode(inode)
	if err := a.l2.InvalidateInode(inode); err != nil {
		a.log.Warn("bridge: l2 invalidate failed", "inode", inode, "error", err)
	}
	a.gov.CancelInode(inode)
}

// RunControlLoop reads Invalidate/Ping/Goodbye frames off stream (the
// control stream opened at session setup) until it errors or ctx is
// canceled, dispatching Invalidate to onInvalidate and answering every
// Ping from the host with a Pong carrying the same nonce. It is meant to
// run in its own goroutine for the lifetime of a session.
func (a *Actor) RunControlLoop(ctx context.Context, stream io.ReadWriter) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		env, err := wire.ReadEnvelope(stream)
		if err != nil {
			return err
		}
		switch env.Kind {
		case wire.KindInvalidate:
			var inv wire.Invalidate
			if err := wire.Decode(env, &inv); err != nil {
				a.log.Warn("bridge: malformed invalidate", "error", err)
				continue
			}
			for _, ent := range inv.Entities {
				a.InvalidateInode(ent.Inode)
			}
			if a.onInvalidate != nil {
				a.onInvalidate(inv)
			}
		case wire.KindPing:
			var ping wire.Ping
			if err := wire.Decode(env, &ping); err != nil {
				a.log.Warn("bridge: malformed ping", "error", err)
				continue
			}
			if err := wire.Encode(stream, wire.KindPong, wire.Pong{Nonce: ping.Nonce}); err != nil {
				return err
			}
		case wire.KindPong, wire.KindGoodbye:
			// Pong answers a Ping this side never sends; Goodbye is an
			// orderly shutdown notice the lifecycle layer decides what,
			// if anything, to do with. Nothing here needs to act on
			// either beyond keeping the read loop alive.
		default:
			a.log.Warn("bridge: unexpected control message", "kind", env.Kind)
		}
	}
}
