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

// Package vfs is the client-side virtual filesystem core: the inode
// table, the attribute/directory caches that sit in front of the wire
// protocol, and the OS-specific bindings that expose a mount to the
// kernel, per spec §3 and §4.I.
package vfs

import "sync"

// RootInode is always inode 1, per spec §3 ("Inode... Root is inode 1").
const RootInode uint64 = 1

// Table is the client-local inode ↔ relative-path map. Inodes are
// assigned the first time a path is observed and are stable for the
// lifetime of a mount; Forget allows a path to be remapped to a fresh
// inode after an explicit invalidation (spec §3 "Inode").
type Table struct {
	mu      sync.RWMutex
	next    uint64
	byPath  map[string]uint64
	byInode map[uint64]string
}

// NewTable returns a table with only the root path bound to RootInode.
func NewTable() *Table {
	t := &Table{
		next:    RootInode + 1,
		byPath:  make(map[string]uint64),
		byInode: make(map[uint64]string),
	}
	t.byPath[""] = RootInode
	t.byInode[RootInode] = ""
	return t
}

// Observe returns the inode bound to relPath, assigning a new one on
// first observation.
func (t *Table) Observe(relPath string) uint64 {
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

// Bind explicitly associates relPath with a server-assigned inode
// number, used when the inode identity must match the host's (e.g. a
// GetAttrResponse already carries the inode the host wants this path
// known by).
func (t *Table) Bind(relPath string, inode uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byPath[relPath]; ok && old != inode {
		delete(t.byInode, old)
	}
	t.byPath[relPath] = inode
	t.byInode[inode] = relPath
	if inode >= t.next {
		t.next = inode + 1
	}
}

// Path returns the relative path bound to inode.
func (t *Table) Path(inode uint64) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byInode[inode]
	return p, ok
}

// Inode returns the inode bound to relPath, if any has been observed.
func (t *Table) Inode(relPath string) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ino, ok := t.byPath[relPath]
	return ino, ok
}

// Forget drops the binding for inode entirely.
func (t *Table) Forget(inode uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byInode[inode]
	if !ok {
		return
	}
	delete(t.byInode, inode)
	delete(t.byPath, p)
}
