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

package wire

// FileKind classifies what an inode represents.
type FileKind uint8

const (
	FileKindRegular FileKind = iota
	FileKindDirectory
	FileKindSymlink
)

func (k FileKind) String() string {
	switch k {
	case FileKindRegular:
		return "regular"
	case FileKindDirectory:
		return "directory"
	case FileKindSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// FileAttr is the attribute record exchanged for a single path, per
// spec §3 "FileAttr".
type FileAttr struct {
	Kind       FileKind `cbor:"1,keyasint"`
	Size       uint64   `cbor:"2,keyasint"`
	Perm       uint32   `cbor:"3,keyasint"`
	ModSec     int64    `cbor:"4,keyasint"`
	ModNsec    int32    `cbor:"5,keyasint"`
	ChangeSec  int64    `cbor:"6,keyasint"`
	ChangeNsec int32    `cbor:"7,keyasint"`
}

// DirEntry is a single (name, inode, kind) triple within a directory
// listing, per spec §3 "DirEntry".
type DirEntry struct {
	Name  string   `cbor:"1,keyasint"`
	Inode uint64   `cbor:"2,keyasint"`
	Kind  FileKind `cbor:"3,keyasint"`
}

// Cursor is an opaque, server-minted continuation token used to page a
// ListDir response across repeated requests. The empty cursor always
// means "start from the beginning".
type Cursor []byte

func (c Cursor) done() bool { return len(c) == 0 }
