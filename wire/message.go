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

// Package wire defines the message family exchanged between a wormhole
// host and client, its compact binary framing, path-safety checks, and
// the chunk/checksum identity shared by every cache tier. It has no
// transport or filesystem dependencies of its own; transport and hostsvc
// both import it. See spec §4.A.
package wire

import "github.com/google/uuid"

// Kind discriminates the message family. New variants are always
// appended; existing numeric values are never reused or reordered, so
// that a newer peer speaking a superset of an older peer's vocabulary can
// still decode the messages it knows about.
type Kind uint8

const (
	KindHello Kind = iota + 1
	KindHelloAck
	KindListDirRequest
	KindListDirResponse
	KindGetAttrRequest
	KindGetAttrResponse
	KindReadChunkRequest
	KindReadChunkResponse
	KindInvalidate
	KindPing
	KindPong
	KindGoodbye
	KindErrorResponse
)

// ProtocolVersion is the version this implementation speaks. A Hello
// carrying a different version is answered with a HelloAck whose
// Accepted is false and whose Reason names both versions.
const ProtocolVersion uint32 = 1

// Hello is the first message a client sends on the control stream. The
// transport connection is already authenticated by its PAKE-derived
// cert tag, so Confirmation here is an extra proof-of-possession of the
// confirmation key rather than the first authentication step.
type Hello struct {
	ProtocolVersion uint32    `cbor:"1,keyasint"`
	ClientID        uuid.UUID `cbor:"2,keyasint"`
	Confirmation    []byte    `cbor:"3,keyasint"`
}

// HelloAck answers a Hello.
type HelloAck struct {
	Accepted     bool   `cbor:"1,keyasint"`
	Reason       string `cbor:"2,keyasint"`
	Confirmation []byte `cbor:"3,keyasint"`
}

// ListDirRequest asks for the (possibly paginated) contents of a
// directory inode.
type ListDirRequest struct {
	Inode  uint64 `cbor:"1,keyasint"`
	Cursor Cursor `cbor:"2,keyasint"`
}

// ListDirResponse returns one page of directory entries.
type ListDirResponse struct {
	Entries    []DirEntry `cbor:"1,keyasint"`
	NextCursor Cursor     `cbor:"2,keyasint"`
}

// GetAttrRequest looks an inode up either by its own ID or by
// (parent inode, name). Exactly one of Inode or (Parent, Name) is set;
// Inode == 0 means "look up by parent+name".
type GetAttrRequest struct {
	Inode  uint64 `cbor:"1,keyasint"`
	Parent uint64 `cbor:"2,keyasint"`
	Name   string `cbor:"3,keyasint"`
}

// GetAttrResponse returns the resolved inode and its attributes.
type GetAttrResponse struct {
	Inode uint64   `cbor:"1,keyasint"`
	Attr  FileAttr `cbor:"2,keyasint"`
}

// ReadChunkRequest asks for up to Length bytes of chunk Index of Inode.
// Length must be <= wire.ChunkSize.
type ReadChunkRequest struct {
	Inode  uint64 `cbor:"1,keyasint"`
	Index  uint64 `cbor:"2,keyasint"`
	Length uint32 `cbor:"3,keyasint"`
}

// ReadChunkResponse carries the bytes read and their checksum. Data may
// be shorter than the request's Length at end-of-file.
type ReadChunkResponse struct {
	Data     []byte   `cbor:"1,keyasint"`
	Checksum Checksum `cbor:"2,keyasint"`
}

// InvalidatedEntity names a stale inode or path; either may be zero/empty.
type InvalidatedEntity struct {
	Inode uint64 `cbor:"1,keyasint"`
	Path  string `cbor:"2,keyasint"`
}

// Invalidate is a best-effort, host-to-client notification that cached
// state for the named entities is stale.
type Invalidate struct {
	Entities []InvalidatedEntity `cbor:"1,keyasint"`
}

// Ping/Pong carry an opaque nonce so a sender can match the reply.
type Ping struct {
	Nonce uint64 `cbor:"1,keyasint"`
}

type Pong struct {
	Nonce uint64 `cbor:"1,keyasint"`
}

// Goodbye announces an orderly session end.
type Goodbye struct {
	Reason string `cbor:"1,keyasint"`
}

// ErrorResponse is sent instead of the expected response payload when an
// operation fails.
type ErrorResponse struct {
	Kind   ErrorKind `cbor:"1,keyasint"`
	Detail string    `cbor:"2,keyasint"`
}
