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

// Package prefetch observes the stream of ReadChunk requests a mounted
// filesystem issues and, for access patterns that look sequential,
// issues read-ahead fetches before the VFS asks for them, per spec §4.H.
package prefetch

import "context"

// historySize is N, the number of recent chunk indices a window
// remembers per inode (spec §4.H names 4 as the example value).
const historySize = 4

// window tracks the last few chunk indices requested for one inode.
type window struct {
	recent []uint64 // oldest first, capped at historySize
	ctx    context.Context
	cancel context.CancelFunc
}

func newWindow(parent context.Context) *window {
	ctx, cancel := context.WithCancel(parent)
	return &window{ctx: ctx, cancel: cancel}
}

// record appends index to the window, trimming to historySize.
func (w *window) record(index uint64) {
	w.recent = append(w.recent, index)
	if len(w.recent) > historySize {
		w.recent = w.recent[len(w.recent)-historySize:]
	}
}

// isSequential reports whether the recorded history looks like a
// forward scan: at least two observations, each index exactly one
// greater than the last. A single outlier (e.g. one seek or skip) is
// enough to call it non-sequential; this governor does not try to be
// clever about stride detection (spec §4.H explicitly leaves stride
// access as a future extension, not part of the core).
func (w *window) isSequential() bool {
	if len(w.recent) < 2 {
		return false
	}
	for i := 1; i < len(w.recent); i++ {
		if w.recent[i] <= w.recent[i-1] {
			return false
		}
		if w.recent[i]-w.recent[i-1] > 1 {
			return false
		}
	}
	return true
}

// nextIndices returns the next n indices to prefetch, following the
// most recently recorded one.
func (w *window) nextIndices(n int) []uint64 {
	if len(w.recent) == 0 {
		return nil
	}
	last := w.recent[len(w.recent)-1]
	indices := make([]uint64, n)
	for i := range indices {
		indices[i] = last + uint64(i) + 1
	}
	return indices
}
