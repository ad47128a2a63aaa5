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

package hostsvc_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-net/wormhole/hostsvc"
	"github.com/wormhole-net/wormhole/wire"
)

func newTestService(t *testing.T) (*hostsvc.Service, string) {
	t.Helper()
	root := t.TempDir()
	cfg := hostsvc.DefaultConfig()
	cfg.RequestsPerSecond = 1000
	cfg.RequestBurst = 1000
	svc, err := hostsvc.New(root, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, root
}

func encode(t *testing.T, kind wire.Kind, v any) wire.Envelope {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, wire.Encode(buf, kind, v))
	return wire.Envelope{Kind: kind, Payload: buf.Bytes()}
}

func decodeAttrResp(t *testing.T, env wire.Envelope) wire.GetAttrResponse {
	t.Helper()
	require.Equal(t, wire.KindGetAttrResponse, env.Kind, "unexpected error envelope: %+v", decodeErr(t, env))
	var resp wire.GetAttrResponse
	require.NoError(t, wire.Decode(env, &resp))
	return resp
}

func decodeErr(t *testing.T, env wire.Envelope) *wire.ErrorResponse {
	t.Helper()
	if env.Kind != wire.KindErrorResponse {
		return nil
	}
	var e wire.ErrorResponse
	_ = wire.Decode(env, &e)
	return &e
}

func TestGetAttrByInodeAndByParentName(t *testing.T) {
	svc, root := newTestService(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0o644))

	resp := decodeAttrResp(t, svc.Dispatch(context.Background(), "s1", encode(t, wire.KindGetAttrRequest, wire.GetAttrRequest{
		Parent: hostsvc.RootInode,
		Name:   "a.txt",
	})))
	assert.Equal(t, wire.FileKindRegular, resp.Attr.Kind)
	assert.EqualValues(t, 5, resp.Attr.Size)

	resp2 := decodeAttrResp(t, svc.Dispatch(context.Background(), "s1", encode(t, wire.KindGetAttrRequest, wire.GetAttrRequest{
		Inode: resp.Inode,
	})))
	assert.Equal(t, resp.Inode, resp2.Inode)
}

func TestGetAttrMissingNameReturnsNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.Dispatch(context.Background(), "s1", encode(t, wire.KindGetAttrRequest, wire.GetAttrRequest{
		Parent: hostsvc.RootInode,
		Name:   "nope.txt",
	}))
	errResp := decodeErr(t, env)
	require.NotNil(t, errResp)
	assert.Equal(t, wire.NotFound, errResp.Kind)
}

func TestGetAttrRejectsTraversalName(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.Dispatch(context.Background(), "s1", encode(t, wire.KindGetAttrRequest, wire.GetAttrRequest{
		Parent: hostsvc.RootInode,
		Name:   "..",
	}))
	errResp := decodeErr(t, env)
	require.NotNil(t, errResp)
	assert.Equal(t, wire.PathTraversal, errResp.Kind)
}

func TestGetAttrRejectsEmbeddedSlashTraversalName(t *testing.T) {
	svc, _ := newTestService(t)
	env := svc.Dispatch(context.Background(), "s1", encode(t, wire.KindGetAttrRequest, wire.GetAttrRequest{
		Parent: hostsvc.RootInode,
		Name:   "../../etc/passwd",
	}))
	errResp := decodeErr(t, env)
	require.NotNil(t, errResp)
	assert.Equal(t, wire.PathTraversal, errResp.Kind)
}

func TestListDirReturnsSmallDirectoryInOnePage(t *testing.T) {
	svc, root := newTestService(t)
	for i := 0; i < 5; i++ {
		name := string(rune('a' + i))
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	env := svc.Dispatch(context.Background(), "s1", encode(t, wire.KindListDirRequest, wire.ListDirRequest{Inode: hostsvc.RootInode}))
	require.Equal(t, wire.KindListDirResponse, env.Kind)
	var resp wire.ListDirResponse
	require.NoError(t, wire.Decode(env, &resp))
	assert.Len(t, resp.Entries, 5)
	assert.Empty(t, resp.NextCursor)
}

func TestListDirOnFileIsRejected(t *testing.T) {
	svc, root := newTestService(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hi"), 0o644))

	attrEnv := svc.Dispatch(context.Background(), "s1", encode(t, wire.KindGetAttrRequest, wire.GetAttrRequest{Parent: hostsvc.RootInode, Name: "a.txt"}))
	attr := decodeAttrResp(t, attrEnv)

	env := svc.Dispatch(context.Background(), "s1", encode(t, wire.KindListDirRequest, wire.ListDirRequest{Inode: attr.Inode}))
	errResp := decodeErr(t, env)
	require.NotNil(t, errResp)
	assert.Equal(t, wire.NotADirectory, errResp.Kind)
}

func TestReadChunkReturnsBytesAndChecksum(t *testing.T) {
	svc, root := newTestService(t)
	content := bytes.Repeat([]byte("A"), 100)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.bin"), content, 0o644))

	attr := decodeAttrResp(t, svc.Dispatch(context.Background(), "s1", encode(t, wire.KindGetAttrRequest, wire.GetAttrRequest{Parent: hostsvc.RootInode, Name: "f.bin"})))

	env := svc.Dispatch(context.Background(), "s1", encode(t, wire.KindReadChunkRequest, wire.ReadChunkRequest{
		Inode: attr.Inode, Index: 0, Length: 100,
	}))
	require.Equal(t, wire.KindReadChunkResponse, env.Kind)
	var resp wire.ReadChunkResponse
	require.NoError(t, wire.Decode(env, &resp))
	assert.Equal(t, content, resp.Data)
	assert.True(t, resp.Checksum.Verify(resp.Data))
}

func TestReadChunkPastEndOfFileIsShortWithEmptyChecksum(t *testing.T) {
	svc, root := newTestService(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.bin"), []byte("abc"), 0o644))

	attr := decodeAttrResp(t, svc.Dispatch(context.Background(), "s1", encode(t, wire.KindGetAttrRequest, wire.GetAttrRequest{Parent: hostsvc.RootInode, Name: "f.bin"})))

	env := svc.Dispatch(context.Background(), "s1", encode(t, wire.KindReadChunkRequest, wire.ReadChunkRequest{
		Inode: attr.Inode, Index: 1, Length: 1024,
	}))
	require.Equal(t, wire.KindReadChunkResponse, env.Kind)
	var resp wire.ReadChunkResponse
	require.NoError(t, wire.Decode(env, &resp))
	assert.Empty(t, resp.Data)
	assert.Equal(t, wire.ComputeChecksum(nil), resp.Checksum)
}

func TestReadChunkRejectsOversizedLength(t *testing.T) {
	svc, root := newTestService(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.bin"), []byte("abc"), 0o644))
	attr := decodeAttrResp(t, svc.Dispatch(context.Background(), "s1", encode(t, wire.KindGetAttrRequest, wire.GetAttrRequest{Parent: hostsvc.RootInode, Name: "f.bin"})))

	env := svc.Dispatch(context.Background(), "s1", encode(t, wire.KindReadChunkRequest, wire.ReadChunkRequest{
		Inode: attr.Inode, Index: 0, Length: wire.ChunkSize + 1,
	}))
	errResp := decodeErr(t, env)
	require.NotNil(t, errResp)
	assert.Equal(t, wire.MalformedMessage, errResp.Kind)
}
