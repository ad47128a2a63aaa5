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

import "lukechampine.com/blake3"

// ChunkSize is the fixed window size, in bytes, that a file is divided into
// for caching and transfer purposes. Chunk k covers
// [k*ChunkSize, min((k+1)*ChunkSize, size)).
const ChunkSize = 131072 // 128 KiB

// ChecksumSize is the width, in bytes, of a chunk checksum.
const ChecksumSize = 32

// ChunkID identifies a single chunk of a single file by the inode it
// belongs to and its zero-based index within that file.
type ChunkID struct {
	Inode uint64
	Index uint64
}

// ChunkIndexForOffset returns the index of the chunk covering byte offset.
func ChunkIndexForOffset(offset int64) uint64 {
	return uint64(offset) / ChunkSize
}

// ChunkCount returns the number of chunks a file of the given size is
// divided into (a zero-length file has zero chunks).
func ChunkCount(size int64) uint64 {
	if size <= 0 {
		return 0
	}
	return (uint64(size) + ChunkSize - 1) / ChunkSize
}

// ChunkBounds returns the half-open byte range [start, end) that chunk
// index covers within a file of the given size.
func ChunkBounds(index uint64, size int64) (start, end int64) {
	start = int64(index) * ChunkSize
	end = start + ChunkSize
	if end > size {
		end = size
	}
	if start > end {
		start = end
	}
	return
}

// Checksum is a 32-byte BLAKE3 digest of a chunk's bytes.
type Checksum [ChecksumSize]byte

// ComputeChecksum returns the checksum of the given bytes. An empty slice
// has a well-defined checksum (the hash of the empty string), matching the
// "reads past end yield zero bytes with a valid checksum of an empty
// payload" requirement in spec §4.E.
func ComputeChecksum(data []byte) Checksum {
	return Checksum(blake3.Sum256(data))
}

// Verify reports whether data hashes to this checksum.
func (c Checksum) Verify(data []byte) bool {
	return c == ComputeChecksum(data)
}
