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

package hostsvc

import (
	"os"
	"sync"
)

// handleCache keeps a small pool of open *os.File handles keyed by their
// absolute path, so repeated ReadChunk calls against the same file reuse
// one descriptor instead of opening and closing it per request.
type handleCache struct {
	mu      sync.Mutex
	maxOpen int
	order   []string // MRU at the end, used to decide what to close
	handles map[string]*os.File
}

func newHandleCache(maxOpen int) *handleCache {
	return &handleCache{
		maxOpen: maxOpen,
		handles: make(map[string]*os.File),
	}
}

// open returns a handle for absPath, opening it if necessary and closing
// the least-recently-used handle if this would exceed maxOpen.
func (hc *handleCache) open(absPath string) (*os.File, error) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	if f, ok := hc.handles[absPath]; ok {
		hc.touch(absPath)
		return f, nil
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, err
	}

	if len(hc.order) >= hc.maxOpen && hc.maxOpen > 0 {
		oldest := hc.order[0]
		hc.order = hc.order[1:]
		if old, ok := hc.handles[oldest]; ok {
			old.Close()
			delete(hc.handles, oldest)
		}
	}

	hc.handles[absPath] = f
	hc.order = append(hc.order, absPath)
	return f, nil
}

func (hc *handleCache) touch(absPath string) {
	for i, p := range hc.order {
		if p == absPath {
			hc.order = append(hc.order[:i], hc.order[i+1:]...)
			break
		}
	}
	hc.order = append(hc.order, absPath)
}

// invalidate closes and forgets any handle open on absPath, so a later
// open picks up a file that was replaced on disk.
func (hc *handleCache) invalidate(absPath string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if f, ok := hc.handles[absPath]; ok {
		f.Close()
		delete(hc.handles, absPath)
		for i, p := range hc.order {
			if p == absPath {
				hc.order = append(hc.order[:i], hc.order[i+1:]...)
				break
			}
		}
	}
}

// closeAll closes every open handle.
func (hc *handleCache) closeAll() {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for _, f := range hc.handles {
		f.Close()
	}
	hc.handles = make(map[string]*os.File)
	hc.order = nil
}
