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
	"context"
	"time"

	"github.com/wormhole-net/wormhole/clock"
	"github.com/wormhole-net/wormhole/wire"
)

// RemoteOps is everything a Client needs from the other side of a mount
// session. bridge.Actor is the production implementation; tests supply a
// fake.
type RemoteOps interface {
	ListDir(ctx context.Context, inode uint64, cursor wire.Cursor) (wire.ListDirResponse, error)
	GetAttr(ctx context.Context, req wire.GetAttrRequest) (wire.GetAttrResponse, error)
	ReadChunk(ctx context.Context, inode uint64, index uint64, length uint32) (wire.ReadChunkResponse, error)
}

// Client is the OS-agnostic half of the VFS: it resolves FUSE/ProjFS-style
// requests (attr, lookup, readdir, read) against the attribute/directory
// caches, falling through to RemoteOps on a miss.
type Client struct {
	table  *Table
	attrs  *AttrCache
	dirs   *DirCache
	remote RemoteOps
}

// NewClient constructs a Client backed by remote, with attribute entries
// cached for attrTTL and directory listings for dirTTL.
func NewClient(remote RemoteOps, attrTTL, dirTTL time.Duration, clk clock.Clock) *Client {
	return &Client{
		table:  NewTable(),
		attrs:  NewAttrCache(attrTTL, clk),
		dirs:   NewDirCache(dirTTL, clk),
		remote: remote,
	}
}

// Table exposes the inode table for bindings that need to translate
// OS-level inode numbers directly.
func (c *Client) Table() *Table { return c.table }

// SetRemote rebinds the RemoteOps a Client dispatches cache misses to,
// without disturbing its inode table or cache contents. mountlib uses
// this to hand a live FUSE mount a freshly reconnected bridge.Actor
// after a peer outage, per spec §4.K's reconnect contract: the mount
// itself never tears down, only the session underneath it does.
func (c *Client) SetRemote(remote RemoteOps) {
	c.remote = remote
}

// Attr resolves the attributes of inode, consulting the attribute cache
// first.
func (c *Client) Attr(ctx context.Context, inode uint64) (wire.FileAttr, error) {
	if attr, ok := c.attrs.Get(inode); ok {
		return attr, nil
	}
	resp, err := c.remote.GetAttr(ctx, wire.GetAttrRequest{Inode: inode})
	if err != nil {
		return wire.FileAttr{}, err
	}
	c.attrs.Put(inode, resp.Attr)
	return resp.Attr, nil
}

// Lookup resolves name within parent, binding it to whatever inode the
// host reports and priming the attribute cache with the result. Per spec
// §4.I, a cached directory listing for parent is consulted first: if it
// already named this entry's inode and that inode's attributes are also
// still cached, Lookup is answered entirely from local state with no
// round trip to the host.
func (c *Client) Lookup(ctx context.Context, parent uint64, name string) (uint64, wire.FileAttr, error) {
	if entries, ok := c.dirs.Get(parent); ok {
		for _, e := range entries {
			if e.Name != name {
				continue
			}
			if attr, ok := c.attrs.Get(e.Inode); ok {
				return e.Inode, attr, nil
			}
			resp, err := c.remote.GetAttr(ctx, wire.GetAttrRequest{Inode: e.Inode})
			if err != nil {
				return 0, wire.FileAttr{}, err
			}
			if parentPath, ok := c.table.Path(parent); ok {
				c.table.Bind(joinRelPath(parentPath, name), resp.Inode)
			}
			c.attrs.Put(resp.Inode, resp.Attr)
			return resp.Inode, resp.Attr, nil
		}
	}

	resp, err := c.remote.GetAttr(ctx, wire.GetAttrRequest{Parent: parent, Name: name})
	if err != nil {
		return 0, wire.FileAttr{}, err
	}
	if parentPath, ok := c.table.Path(parent); ok {
		c.table.Bind(joinRelPath(parentPath, name), resp.Inode)
	}
	c.attrs.Put(resp.Inode, resp.Attr)
	return resp.Inode, resp.Attr, nil
}

func joinRelPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

// ReadDir resolves the full listing of directory inode, consulting the
// directory cache first and draining the host's cursor on a miss.
func (c *Client) ReadDir(ctx context.Context, inode uint64) ([]wire.DirEntry, error) {
	if entries, ok := c.dirs.Get(inode); ok {
		return entries, nil
	}

	var all []wire.DirEntry
	var cursor wire.Cursor
	for {
		resp, err := c.remote.ListDir(ctx, inode, cursor)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Entries...)
		if len(resp.NextCursor) == 0 {
			break
		}
		cursor = resp.NextCursor
	}

	c.dirs.Put(inode, all)
	return all, nil
}

// Read returns up to size bytes of inode starting at offset, assembling
// the answer from however many ChunkSize-wide chunks the range spans.
// Unlike attributes and directory listings, chunk bytes are not cached
// here: that is cache/l1 and cache/l2's job, one layer further down in
// bridge.Actor's RemoteOps implementation.
func (c *Client) Read(ctx context.Context, inode uint64, offset int64, size int) ([]byte, error) {
	if size <= 0 {
		return nil, nil
	}
	out := make([]byte, 0, size)
	remaining := int64(size)
	pos := offset

	for remaining > 0 {
		index := wire.ChunkIndexForOffset(pos)
		chunkStart := int64(index) * wire.ChunkSize
		within := pos - chunkStart

		resp, err := c.remote.ReadChunk(ctx, inode, index, wire.ChunkSize)
		if err != nil {
			return nil, err
		}
		if within >= int64(len(resp.Data)) {
			break // past end of file
		}
		available := resp.Data[within:]
		take := remaining
		if take > int64(len(available)) {
			take = int64(len(available))
		}
		out = append(out, available[:take]...)
		pos += take
		remaining -= take

		if int64(len(resp.Data)) < wire.ChunkSize {
			break // short read: end of file within this chunk
		}
	}
	return out, nil
}

// ApplyInvalidate evicts every entity named by inv from both caches,
// per spec §4.I ("honor Invalidate messages").
func (c *Client) ApplyInvalidate(inv wire.Invalidate) {
	for _, ent := range inv.Entities {
		c.attrs.Invalidate(ent.Inode)
		c.dirs.Invalidate(ent.Inode)
	}
}

// Reset clears every cache entry, used when a session reconnects and
// cached state can no longer be trusted without TTL re-verification.
func (c *Client) Reset() {
	c.attrs.InvalidateAll()
	c.dirs.InvalidateAll()
}
