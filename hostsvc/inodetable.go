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

// Package hostsvc serves ListDir/GetAttr/ReadChunk requests against a
// canonicalized share root, per spec §4.E. It owns its own inode
// numbering; the host's inodes have nothing to do with a client's.
package hostsvc

import (
	"sync"

	"github.com/wormhole-net/wormhole/wire"
)

// RootInode is always assigned to the share root, mirroring the
// client-side vfs.Table convention.
const RootInode uint64 = 1

// InodeTable maps between a host-local, share-root-relative path and the
// inode number handed out to clients for it. Inodes are assigned lazily,
// the first time a path is observed, and never reused for the lifetime
// of the service (spec §4.E: "Inodes are assigned lazily on observation;
// root is 1").
type InodeTable struct {
	mu      sync.RWMutex
	next    uint64
	byPath  map[string]uint64
	byInode map[uint64]string
}

// NewInodeTable returns a table with only the root path bound.
func NewInodeTable() *InodeTable {
	t := &InodeTable{
		next:    RootInode + 1,
		byPath:  make(map[string]uint64),
		byInode: make(map[uint64]string),
	}
	t.byPath[""] = RootInode
	t.byInode[RootInode] = ""
	return t
}

// Observe returns the inode bound to relPath, assigning a new one if
// this is the first time relPath has been seen.
func (t *InodeTable) Observe(relPath string) uint64 {
	t.mu.RLock()
	if ino, ok := t.byPath[relPath]; ok {
		t.mu.RUnlock()
		return ino
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if ino, ok := t.byPath[relPath]; ok {
		return ino
	}
	ino := t.next
	t.next++
	t.byPath[relPath] = ino
	t.byInode[ino] = relPath
	return ino
}

// Path returns the relative path bound to inode, or ("", false) if the
// inode is unknown.
func (t *InodeTable) Path(inode uint64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byInode[inode]
	return p, ok
}

// Forget drops the binding for relPath, so a later Observe of the same
// path (e.g. after a delete-and-recreate) gets a fresh inode number.
func (t *InodeTable) Forget(relPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ino, ok := t.byPath[relPath]
	if !ok {
		return
	}
	delete(t.byPath, relPath)
	delete(t.byInode, ino)
}

// All returns a snapshot copy of every inode observed so far.
func (t *InodeTable) All() map[uint64]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[uint64]string, len(t.byInode))
	for ino, p := range t.byInode {
		out[ino] = p
	}
	return out
}

// lookupByInode resolves inode to a path, returning a wire.NotFound error
// if it has never been observed.
func (t *InodeTable) lookupByInode(inode uint64) (string, error) {
	p, ok := t.Path(inode)
	if !ok {
		return "", wire.NewError(wire.NotFound, "unknown inode")
	}
	return p, nil
}
