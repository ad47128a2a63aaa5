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
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/time/rate"

	"github.com/wormhole-net/wormhole/wire"
)

// Config bounds a Service's resource use, per spec §4.E "Enforces a
// per-session request rate cap and a maximum concurrent read limit".
type Config struct {
	RequestsPerSecond  float64
	RequestBurst       int
	MaxConcurrentReads int
	MaxOpenHandles     int
	ListPageSize       int
}

// DefaultConfig returns conservative bounds suitable for a single-host
// share.
func DefaultConfig() Config {
	return Config{
		RequestsPerSecond:  200,
		RequestBurst:       50,
		MaxConcurrentReads: 32,
		MaxOpenHandles:     64,
		ListPageSize:       256,
	}
}

// Service answers ListDir/GetAttr/ReadChunk requests against root, a
// canonicalized, already-existing directory.
type Service struct {
	root    string
	cfg     Config
	table   *InodeTable
	handles *handleCache
	readSem chan struct{}
	log     *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New constructs a Service rooted at root. root must already be an
// absolute, symlink-resolved path; hostsvc does not canonicalize it.
func New(root string, cfg Config, log *slog.Logger) (*Service, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("hostsvc: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("hostsvc: root %s is not a directory", root)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		root:     root,
		cfg:      cfg,
		table:    NewInodeTable(),
		handles:  newHandleCache(cfg.MaxOpenHandles),
		readSem:  make(chan struct{}, cfg.MaxConcurrentReads),
		log:      log,
		limiters: make(map[string]*rate.Limiter),
	}, nil
}

// Close releases open file handles.
func (s *Service) Close() {
	s.handles.closeAll()
}

func (s *Service) limiterFor(sessionID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[sessionID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.RequestBurst)
		s.limiters[sessionID] = lim
	}
	return lim
}

// DropSession forgets a session's rate limiter once it disconnects.
func (s *Service) DropSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.limiters, sessionID)
}

// absPath joins root with a table-tracked relative path, which is always
// already safe (it only ever came from a prior SafePath call).
func (s *Service) absPath(relPath string) string {
	if relPath == "" {
		return s.root
	}
	return filepath.Join(s.root, relPath)
}

// Dispatch decodes env's payload according to its Kind, serves the
// request, and returns the response envelope. Application-level failures
// (not-found, traversal, etc.) come back as a KindErrorResponse envelope
// rather than a Go error. Dispatch has no error result: malformed payloads
// and I/O failures are likewise answered with a KindErrorResponse
// envelope.
func (s *Service) Dispatch(ctx context.Context, sessionID string, env wire.Envelope) wire.Envelope {
	if err := s.limiterFor(sessionID).Wait(ctx); err != nil {
		return s.errorEnvelope(wire.Timeout, "rate limit wait: "+err.Error())
	}

	switch env.Kind {
	case wire.KindListDirRequest:
		var req wire.ListDirRequest
		if err := wire.Decode(env, &req); err != nil {
			return s.errorEnvelope(wire.MalformedMessage, err.Error())
		}
		return s.handleListDir(req)

	case wire.KindGetAttrRequest:
		var req wire.GetAttrRequest
		if err := wire.Decode(env, &req); err != nil {
			return s.errorEnvelope(wire.MalformedMessage, err.Error())
		}
		return s.handleGetAttr(req)

	case wire.KindReadChunkRequest:
		var req wire.ReadChunkRequest
		if err := wire.Decode(env, &req); err != nil {
			return s.errorEnvelope(wire.MalformedMessage, err.Error())
		}
		return s.handleReadChunk(ctx, req)

	default:
		return s.errorEnvelope(wire.ProtocolMismatch, fmt.Sprintf("unexpected request kind %s", env.Kind))
	}
}

func (s *Service) errorEnvelope(kind wire.ErrorKind, detail string) wire.Envelope {
	buf := &bytes.Buffer{}
	if err := wire.Encode(buf, wire.KindErrorResponse, wire.ErrorResponse{Kind: kind, Detail: detail}); err != nil {
		s.log.Error("hostsvc: failed to encode error response", "error", err)
	}
	return wire.Envelope{Kind: wire.KindErrorResponse, Payload: buf.Bytes()}
}

func (s *Service) encodeOK(kind wire.Kind, v any) wire.Envelope {
	buf := &bytes.Buffer{}
	if err := wire.Encode(buf, kind, v); err != nil {
		return s.errorEnvelope(wire.Unknown, err.Error())
	}
	return wire.Envelope{Kind: kind, Payload: buf.Bytes()}
}

func (s *Service) handleListDir(req wire.ListDirRequest) wire.Envelope {
	relPath, err := s.table.lookupByInode(req.Inode)
	if err != nil {
		return s.errorEnvelope(wire.NotFound, err.Error())
	}
	abs := s.absPath(relPath)
	info, err := os.Stat(abs)
	if err != nil {
		return s.errorEnvelope(wire.NotFound, err.Error())
	}
	if !info.IsDir() {
		return s.errorEnvelope(wire.NotADirectory, relPath)
	}

	names, err := readAndSortDir(abs)
	if err != nil {
		return s.errorEnvelope(wire.IoError, err.Error())
	}

	start := cursorOffset(req.Cursor)
	pageSize := s.cfg.ListPageSize
	if pageSize <= 0 {
		pageSize = len(names)
	}
	end := start + pageSize
	if end > len(names) {
		end = len(names)
	}
	if start > len(names) {
		start = len(names)
	}

	resp := wire.ListDirResponse{}
	for _, name := range names[start:end] {
		childRel := wire.Join(relPath, name)
		childAbs := filepath.Join(s.root, childRel)
		childInfo, err := os.Lstat(childAbs)
		if err != nil {
			continue // raced with a concurrent removal; skip rather than fail the page
		}
		ino := s.table.Observe(childRel)
		resp.Entries = append(resp.Entries, wire.DirEntry{
			Name:  name,
			Inode: ino,
			Kind:  fileKindOf(childInfo),
		})
	}
	if end < len(names) {
		resp.NextCursor = encodeCursor(end)
	}
	return s.encodeOK(wire.KindListDirResponse, resp)
}

func readAndSortDir(abs string) ([]string, error) {
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func cursorOffset(c wire.Cursor) int {
	if len(c) != 8 {
		return 0
	}
	return int(binary.BigEndian.Uint64(c))
}

func encodeCursor(offset int) wire.Cursor {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(offset))
	return buf
}

func (s *Service) handleGetAttr(req wire.GetAttrRequest) wire.Envelope {
	var relPath string
	var inode uint64

	if req.Inode != 0 {
		p, err := s.table.lookupByInode(req.Inode)
		if err != nil {
			return s.errorEnvelope(wire.NotFound, err.Error())
		}
		relPath, inode = p, req.Inode
	} else {
		if err := wire.ValidateName(req.Name); err != nil {
			kind, _ := wire.AsError(err)
			return s.errorEnvelope(kind, err.Error())
		}
		parentPath, err := s.table.lookupByInode(req.Parent)
		if err != nil {
			return s.errorEnvelope(wire.NotFound, err.Error())
		}
		relPath = wire.Join(parentPath, req.Name)
	}

	abs := s.absPath(relPath)
	info, err := os.Lstat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return s.errorEnvelope(wire.NotFound, relPath)
		}
		return s.errorEnvelope(wire.IoError, err.Error())
	}
	if inode == 0 {
		inode = s.table.Observe(relPath)
	}

	return s.encodeOK(wire.KindGetAttrResponse, wire.GetAttrResponse{
		Inode: inode,
		Attr:  attrOf(info),
	})
}

func (s *Service) handleReadChunk(ctx context.Context, req wire.ReadChunkRequest) wire.Envelope {
	if req.Length > wire.ChunkSize {
		return s.errorEnvelope(wire.MalformedMessage, "length exceeds chunk size")
	}
	relPath, err := s.table.lookupByInode(req.Inode)
	if err != nil {
		return s.errorEnvelope(wire.NotFound, err.Error())
	}
	abs := s.absPath(relPath)

	info, err := os.Stat(abs)
	if err != nil {
		return s.errorEnvelope(wire.NotFound, err.Error())
	}
	if info.IsDir() {
		return s.errorEnvelope(wire.IsADirectory, relPath)
	}

	select {
	case s.readSem <- struct{}{}:
	case <-ctx.Done():
		return s.errorEnvelope(wire.Timeout, ctx.Err().Error())
	}
	defer func() { <-s.readSem }()

	f, err := s.handles.open(abs)
	if err != nil {
		return s.errorEnvelope(wire.IoError, err.Error())
	}

	start, _ := wire.ChunkBounds(req.Index, info.Size())
	data := make([]byte, req.Length)
	n, err := f.ReadAt(data, start)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		s.handles.invalidate(abs)
		return s.errorEnvelope(wire.IoError, err.Error())
	}
	data = data[:n]

	return s.encodeOK(wire.KindReadChunkResponse, wire.ReadChunkResponse{
		Data:     data,
		Checksum: wire.ComputeChecksum(data),
	})
}

// attrOf leaves ChangeSec/ChangeNsec zero: ctime needs a platform-specific
// syscall.Stat_t that os.FileInfo doesn't expose portably.
func attrOf(info os.FileInfo) wire.FileAttr {
	mt := info.ModTime()
	kind := fileKindOf(info)
	return wire.FileAttr{
		Kind:    kind,
		Size:    uint64(info.Size()),
		Perm:    uint32(info.Mode().Perm()),
		ModSec:  mt.Unix(),
		ModNsec: int32(mt.Nanosecond()),
	}
}

func fileKindOf(info os.FileInfo) wire.FileKind {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return wire.FileKindSymlink
	case info.IsDir():
		return wire.FileKindDirectory
	default:
		return wire.FileKindRegular
	}
}
