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

//go:build !windows

package vfs

import (
	"context"
	"os"
	"path"
	"syscall"
	"time"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"

	"github.com/wormhole-net/wormhole/wire"
)

// fuseBinding mounts a Client through bazil.org/fuse. Every inode is
// represented by a single node value wrapping the Client and its own
// inode number; directory listing, lookup, and reads all go back
// through the Client, which is the only thing that knows about caches
// and RemoteOps.
type fuseBinding struct{}

// NewBinding returns the platform binding for the running OS.
func NewBinding() Binding { return &fuseBinding{} }

func (*fuseBinding) Mount(ctx context.Context, mountpoint string, client *Client) error {
	conn, err := fuse.Mount(
		mountpoint,
		fuse.ReadOnly(),
		fuse.FSName("wormhole"),
		fuse.Subtype("wormholefs"),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	root := &node{client: client, inode: RootInode}

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- fs.Serve(conn, fsAdapter{root: root})
	}()

	select {
	case <-ctx.Done():
		_ = fuse.Unmount(mountpoint)
		<-serveDone
		return ctx.Err()
	case err := <-serveDone:
		return err
	}
}

func (*fuseBinding) Unmount(mountpoint string) error {
	return fuse.Unmount(mountpoint)
}

// fsAdapter implements fs.FS, the single entry point bazil.org/fuse
// needs to locate the root node.
type fsAdapter struct {
	root *node
}

func (a fsAdapter) Root() (fs.Node, error) { return a.root, nil }

// node represents one inode: it could be a regular file, a directory,
// or a symlink, resolved lazily against the Client on every call rather
// than cached locally, since Client already owns the attribute and
// directory caches (spec §4.I).
type node struct {
	client *Client
	inode  uint64
}

var (
	_ fs.Node               = (*node)(nil)
	_ fs.NodeStringLookuper = (*node)(nil)
	_ fs.HandleReadDirAller = (*node)(nil)
	_ fs.HandleReader       = (*node)(nil)
)

func (n *node) Attr(ctx context.Context, a *fuse.Attr) error {
	attr, err := n.client.Attr(ctx, n.inode)
	if err != nil {
		return translateErr(err)
	}
	a.Inode = n.inode
	a.Size = attr.Size
	a.Mode = fuseMode(attr)
	a.Mtime = time.Unix(attr.ModSec, int64(attr.ModNsec))
	a.Ctime = time.Unix(attr.ChangeSec, int64(attr.ChangeNsec))
	return nil
}

func (n *node) Lookup(ctx context.Context, name string) (fs.Node, error) {
	inode, _, err := n.client.Lookup(ctx, n.inode, name)
	if err != nil {
		return nil, translateErr(err)
	}
	return &node{client: n.client, inode: inode}, nil
}

func (n *node) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	entries, err := n.client.ReadDir(ctx, n.inode)
	if err != nil {
		return nil, translateErr(err)
	}
	out := make([]fuse.Dirent, 0, len(entries))
	for _, e := range entries {
		out = append(out, fuse.Dirent{
			Inode: e.Inode,
			Name:  path.Base(e.Name),
			Type:  fuseDirentType(e.Kind),
		})
	}
	return out, nil
}

func (n *node) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	data, err := n.client.Read(ctx, n.inode, req.Offset, req.Size)
	if err != nil {
		return translateErr(err)
	}
	resp.Data = data
	return nil
}

func fuseMode(attr wire.FileAttr) os.FileMode {
	mode := os.FileMode(attr.Perm) & os.ModePerm
	switch attr.Kind {
	case wire.FileKindDirectory:
		mode |= os.ModeDir
	case wire.FileKindSymlink:
		mode |= os.ModeSymlink
	}
	return mode
}

func fuseDirentType(kind wire.FileKind) fuse.DirentType {
	switch kind {
	case wire.FileKindDirectory:
		return fuse.DT_Dir
	case wire.FileKindSymlink:
		return fuse.DT_Link
	default:
		return fuse.DT_File
	}
}

// translateErr maps a RemoteOps-surfaced error to the errno FUSE
// expects back, defaulting to EIO so a host-side I/O failure never
// looks like a clean ENOENT to an application.
func translateErr(err error) error {
	kind, ok := wire.AsError(err)
	if !ok {
		return fuse.EIO
	}
	switch kind {
	case wire.NotFound:
		return fuse.ENOENT
	case wire.PermissionDenied:
		return fuse.Errno(syscall.EACCES)
	case wire.NotADirectory:
		return fuse.Errno(syscall.ENOTDIR)
	case wire.IsADirectory:
		return fuse.Errno(syscall.EISDIR)
	case wire.NameTooLong:
		return fuse.Errno(syscall.ENAMETOOLONG)
	default:
		return fuse.EIO
	}
}
