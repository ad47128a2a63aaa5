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

// Package l2 is the durable, on-disk chunk cache backed by a single
// bbolt file, surviving process restarts without ever handing back
// corrupted bytes as valid, per spec §4.G.
package l2

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"

	"github.com/wormhole-net/wormhole/clock"
	"github.com/wormhole-net/wormhole/wire"
)

var (
	blobsBucket = []byte("blobs")
	indexBucket = []byte("index")
)

// record is the index entry stored alongside each blob, mirroring §3's
// CachedChunk shape.
type record struct {
	CachedAt     int64 // unix nanos
	LastAccessed int64 // unix nanos
	Size         int64
	Checksum     wire.Checksum
}

func encodeRecord(r record) []byte {
	buf := make([]byte, 8+8+8+wire.ChecksumSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(r.CachedAt))
	binary.BigEndian.PutUint64(buf[8:16], uint64(r.LastAccessed))
	binary.BigEndian.PutUint64(buf[16:24], uint64(r.Size))
	copy(buf[24:], r.Checksum[:])
	return buf
}

func decodeRecord(buf []byte) (record, error) {
	if len(buf) != 24+wire.ChecksumSize {
		return record{}, fmt.Errorf("l2: malformed index record (%d bytes)", len(buf))
	}
	var r record
	r.CachedAt = int64(binary.BigEndian.Uint64(buf[0:8]))
	r.LastAccessed = int64(binary.BigEndian.Uint64(buf[8:16]))
	r.Size = int64(binary.BigEndian.Uint64(buf[16:24]))
	copy(r.Checksum[:], buf[24:])
	return r, nil
}

func encodeKey(id wire.ChunkID) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], id.Inode)
	binary.BigEndian.PutUint64(buf[8:16], id.Index)
	return buf
}

func decodeKey(buf []byte) wire.ChunkID {
	return wire.ChunkID{
		Inode: binary.BigEndian.Uint64(buf[0:8]),
		Index: binary.BigEndian.Uint64(buf[8:16]),
	}
}

// Cache is a durable, size-bounded store of chunk blobs.
type Cache struct {
	db       *bbolt.DB
	maxBytes int64
	lowWater int64
	clk      clock.Clock

	mu          sync.Mutex
	curBytes    int64
	corruptions atomic.Int64

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// Open opens (creating if necessary) a durable cache at path.
// lowWaterFraction (0, 1] sets the sweep's target after an eviction
// pass; a value of 0 defaults to 0.8 (evict down to 80% of maxBytes).
func Open(path string, maxBytes int64, lowWaterFraction float64, sweepInterval time.Duration, clk clock.Clock) (*Cache, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("l2: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(blobsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(indexBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("l2: initialize buckets: %w", err)
	}

	if lowWaterFraction <= 0 || lowWaterFraction > 1 {
		lowWaterFraction = 0.8
	}
	c := &Cache{
		db:        db,
		maxBytes:  maxBytes,
		lowWater:  int64(float64(maxBytes) * lowWaterFraction),
		clk:       clk,
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	if err := c.recomputeSize(); err != nil {
		db.Close()
		return nil, err
	}

	if sweepInterval > 0 {
		go c.sweepLoop(sweepInterval)
	} else {
		close(c.sweepDone)
	}

	return c, nil
}

func (c *Cache) recomputeSize() error {
	return c.db.View(func(tx *bbolt.Tx) error {
		var total int64
		err := tx.Bucket(indexBucket).ForEach(func(_, v []byte) error {
			r, err := decodeRecord(v)
			if err != nil {
				return nil // torn/unreadable record; sweep/Get will clean it up
			}
			total += r.Size
			return nil
		})
		c.mu.Lock()
		c.curBytes = total
		c.mu.Unlock()
		return err
	})
}

// Close stops the background sweep and closes the underlying database.
func (c *Cache) Close() error {
	select {
	case <-c.sweepDone:
	default:
		close(c.stopSweep)
		<-c.sweepDone
	}
	return c.db.Close()
}

// CorruptionCount returns the number of times Get has discovered and
// evicted a chunk whose stored bytes no longer match their checksum.
func (c *Cache) CorruptionCount() int64 {
	return c.corruptions.Load()
}

// Get returns the cached bytes for id. A stored blob whose checksum no
// longer matches its recorded digest is treated as corrupt: it is
// deleted, the corruption counter is incremented, and Get reports a
// miss rather than ever returning bad bytes as valid.
func (c *Cache) Get(id wire.ChunkID) ([]byte, bool, error) {
	key := encodeKey(id)
	var data []byte
	var rec record
	var found, corrupt bool

	err := c.db.Update(func(tx *bbolt.Tx) error {
		idxB := tx.Bucket(indexBucket)
		blobB := tx.Bucket(blobsBucket)

		recBytes := idxB.Get(key)
		if recBytes == nil {
			return nil
		}
		blob := blobB.Get(key)
		if blob == nil {
			// Index entry with no blob: a torn write. Evict.
			corrupt = true
			return c.deleteLocked(tx, key, recBytes)
		}

		var err error
		rec, err = decodeRecord(recBytes)
		if err != nil {
			corrupt = true
			return c.deleteLocked(tx, key, recBytes)
		}

		if !rec.Checksum.Verify(blob) {
			corrupt = true
			return c.deleteLocked(tx, key, recBytes)
		}

		data = append([]byte(nil), blob...)
		found = true

		rec.LastAccessed = c.clk.Now().UnixNano()
		return idxB.Put(key, encodeRecord(rec))
	})
	if err != nil {
		return nil, false, fmt.Errorf("l2: get %v: %w", id, err)
	}
	if corrupt {
		c.corruptions.Add(1)
		return nil, false, nil
	}
	return data, found, nil
}

// deleteLocked removes key from both buckets and adjusts curBytes.
// Must be called from within a db.Update transaction.
func (c *Cache) deleteLocked(tx *bbolt.Tx, key []byte, recBytes []byte) error {
	var size int64
	if rec, err := decodeRecord(recBytes); err == nil {
		size = rec.Size
	}
	if err := tx.Bucket(indexBucket).Delete(key); err != nil {
		return err
	}
	if err := tx.Bucket(blobsBucket).Delete(key); err != nil {
		return err
	}
	c.mu.Lock()
	c.curBytes -= size
	c.mu.Unlock()
	return nil
}

// Put durably stores data for id along with its checksum, then triggers
// an eviction pass if the cache is now over capacity.
func (c *Cache) Put(id wire.ChunkID, data []byte, checksum wire.Checksum) error {
	key := encodeKey(id)
	now := c.clk.Now().UnixNano()
	rec := record{CachedAt: now, LastAccessed: now, Size: int64(len(data)), Checksum: checksum}

	var oldSize int64
	err := c.db.Update(func(tx *bbolt.Tx) error {
		if old := tx.Bucket(indexBucket).Get(key); old != nil {
			if oldRec, err := decodeRecord(old); err == nil {
				oldSize = oldRec.Size
			}
		}
		if err := tx.Bucket(blobsBucket).Put(key, data); err != nil {
			return err
		}
		return tx.Bucket(indexBucket).Put(key, encodeRecord(rec))
	})
	if err != nil {
		return fmt.Errorf("l2: put %v: %w", id, err)
	}

	c.mu.Lock()
	c.curBytes += int64(len(data)) - oldSize
	over := c.curBytes > c.maxBytes
	c.mu.Unlock()

	if over {
		return c.evictToLowWater()
	}
	return nil
}

// Invalidate removes a single cached chunk.
func (c *Cache) Invalidate(id wire.ChunkID) error {
	key := encodeKey(id)
	return c.db.Update(func(tx *bbolt.Tx) error {
		recBytes := tx.Bucket(indexBucket).Get(key)
		if recBytes == nil {
			return nil
		}
		return c.deleteLocked(tx, key, recBytes)
	})
}

// InvalidateInode removes every cached chunk belonging to inode.
func (c *Cache) InvalidateInode(inode uint64) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		idxB := tx.Bucket(indexBucket)
		var keys [][]byte
		err := idxB.ForEach(func(k, _ []byte) error {
			if decodeKey(k).Inode == inode {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			recBytes := idxB.Get(key)
			if recBytes == nil {
				continue
			}
			if err := c.deleteLocked(tx, key, recBytes); err != nil {
				return err
			}
		}
		return nil
	})
}

// CurrentBytes returns the total bytes currently retained.
func (c *Cache) CurrentBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curBytes
}

func (c *Cache) sweepLoop(interval time.Duration) {
	defer close(c.sweepDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopSweep:
			return
		case <-ticker.C:
			_ = c.evictToLowWater()
		}
	}
}

type evictionCandidate struct {
	key          []byte
	size         int64
	lastAccessed int64
}

// evictToLowWater removes entries in ascending last-accessed order
// until the cache is back at or under its low-water mark, per spec
// §4.G's periodic sweep.
func (c *Cache) evictToLowWater() error {
	c.mu.Lock()
	needToFree := c.curBytes - c.lowWater
	c.mu.Unlock()
	if needToFree <= 0 {
		return nil
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		var candidates []evictionCandidate
		idxB := tx.Bucket(indexBucket)
		err := idxB.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(v)
			if err != nil {
				candidates = append(candidates, evictionCandidate{key: append([]byte(nil), k...), size: 0, lastAccessed: 0})
				return nil
			}
			candidates = append(candidates, evictionCandidate{
				key:          append([]byte(nil), k...),
				size:         rec.Size,
				lastAccessed: rec.LastAccessed,
			})
			return nil
		})
		if err != nil {
			return err
		}

		sortBylastAccessed(candidates)

		var freed int64
		for _, cand := range candidates {
			if freed >= needToFree {
				break
			}
			recBytes := idxB.Get(cand.key)
			if recBytes == nil {
				continue
			}
			if err := c.deleteLocked(tx, cand.key, recBytes); err != nil {
				return err
			}
			freed += cand.size
		}
		return nil
	})
}

func sortBylastAccessed(c []evictionCandidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].lastAccessed < c[j-1].lastAccessed; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
