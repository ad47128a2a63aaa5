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
	"context"
	"os"
	"sync"
	"time"

	"github.com/wormhole-net/wormhole/clock"
	"github.com/wormhole-net/wormhole/wire"
)

// snapshot is the subset of file metadata cheap to poll and sufficient to
// notice a mutation worth invalidating a client's cache over.
type snapshot struct {
	modTime time.Time
	size    int64
	exists  bool
}

// Watcher polls every inode the service has observed and reports which
// ones changed since the last check. There is no filesystem-event
// library in play here; this is the best-effort polling notification
// spec §4.E describes, not a guarantee of prompt delivery.
type Watcher struct {
	svc *Service

	mu   sync.Mutex
	seen map[uint64]snapshot
}

// NewWatcher returns a Watcher over svc's exported tree.
func NewWatcher(svc *Service) *Watcher {
	return &Watcher{svc: svc, seen: make(map[uint64]snapshot)}
}

// Check stats every observed inode and returns an Invalidate message
// naming the ones whose size or modification time changed (or that
// disappeared) since the previous Check. The first Check after a path is
// observed never reports it as changed; there is nothing to compare
// against yet.
func (w *Watcher) Check() wire.Invalidate {
	var inv wire.Invalidate
	for inode, relPath := range w.svc.table.All() {
		cur := statSnapshot(w.svc.absPath(relPath))

		w.mu.Lock()
		prev, had := w.seen[inode]
		w.seen[inode] = cur
		w.mu.Unlock()

		if had && prev != cur {
			inv.Entities = append(inv.Entities, wire.InvalidatedEntity{Inode: inode, Path: relPath})
		}
	}
	return inv
}

func statSnapshot(abs string) snapshot {
	info, err := os.Lstat(abs)
	if err != nil {
		return snapshot{exists: false}
	}
	return snapshot{modTime: info.ModTime(), size: info.Size(), exists: true}
}

// Run polls at interval, using clk so tests can drive it deterministically,
// calling notify with every non-empty Invalidate it produces, until ctx is
// canceled.
func (w *Watcher) Run(ctx context.Context, interval time.Duration, clk clock.Clock, notify func(wire.Invalidate)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-clk.After(interval):
			if inv := w.Check(); len(inv.Entities) > 0 {
				notify(inv)
			}
		}
	}
}
