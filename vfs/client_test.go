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

package vfs_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-net/wormhole/clock"
	"github.com/wormhole-net/wormhole/vfs"
	"github.com/wormhole-net/wormhole/wire"
)

type fakeRemote struct {
	listDirCalls int
	getAttrCalls int
	entries      []wire.DirEntry
	attrs        map[uint64]wire.FileAttr
}

func (f *fakeRemote) ListDir(ctx context.Context, inode uint64, cursor wire.Cursor) (wire.ListDirResponse, error) {
	f.listDirCalls++
	return wire.ListDirResponse{Entries: f.entries}, nil
}

func (f *fakeRemote) GetAttr(ctx context.Context, req wire.GetAttrRequest) (wire.GetAttrResponse, error) {
	f.getAttrCalls++
	inode := req.Inode
	if inode == 0 {
		for _, e := range f.entries {
			if e.Name == req.Name {
				inode = e.Inode
				break
			}
		}
	}
	return wire.GetAttrResponse{Inode: inode, Attr: f.attrs[inode]}, nil
}

func (f *fakeRemote) ReadChunk(ctx context.Context, inode uint64, index uint64, length uint32) (wire.ReadChunkResponse, error) {
	return wire.ReadChunkResponse{}, nil
}

func TestLookupServedFromDirAndAttrCacheAfterReadDir(t *testing.T) {
	remote := &fakeRemote{
		entries: []wire.DirEntry{{Name: "file.txt", Inode: 5, Kind: wire.FileKindRegular}},
		attrs:   map[uint64]wire.FileAttr{5: {Kind: wire.FileKindRegular, Size: 42}},
	}
	clk := clock.NewSimulatedClock(time.Now())
	c := vfs.NewClient(remote, time.Minute, time.Minute, clk)

	_, err := c.ReadDir(context.Background(), vfs.RootInode)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.listDirCalls)
	assert.Equal(t, 0, remote.getAttrCalls, "ReadDir alone must not issue a GetAttr")

	inode, attr, err := c.Lookup(context.Background(), vfs.RootInode, "file.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), inode)
	assert.Equal(t, uint64(42), attr.Size)
	assert.Equal(t, 1, remote.getAttrCalls, "first Lookup after ReadDir still needs one attr fetch")

	inode2, attr2, err := c.Lookup(context.Background(), vfs.RootInode, "file.txt")
	require.NoError(t, err)
	assert.Equal(t, inode, inode2)
	assert.Equal(t, attr, attr2)
	assert.Equal(t, 1, remote.getAttrCalls, "second Lookup must be served entirely from cache")
}

func TestLookupFallsBackToRemoteWithoutDirCache(t *testing.T) {
	remote := &fakeRemote{
		entries: []wire.DirEntry{{Name: "file.txt", Inode: 5, Kind: wire.FileKindRegular}},
		attrs:   map[uint64]wire.FileAttr{5: {Kind: wire.FileKindRegular, Size: 42}},
	}
	clk := clock.NewSimulatedClock(time.Now())
	c := vfs.NewClient(remote, time.Minute, time.Minute, clk)

	inode, attr, err := c.Lookup(context.Background(), vfs.RootInode, "file.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), inode)
	assert.Equal(t, uint64(42), attr.Size)
	assert.Equal(t, 1, remote.getAttrCalls)
}
