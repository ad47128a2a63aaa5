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

package wormholelog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Format selects how a Handler renders each record.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Handler is a slog.Handler rendering either
// `time="02/01/2006 15:04:05.000 MST" severity=LEVEL message="..." key=value ...`
// text lines, or single-line
// `{"timestamp":{"seconds":N,"nanos":N},"severity":"...","message":"...","key":value,...}`
// JSON objects, matching the format this project's CLI tools expect to
// parse or tail.
type Handler struct {
	mu     *sync.Mutex
	w      io.Writer
	format Format
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string // dotted group-name prefix applied to attr keys
}

// New constructs a Handler writing to w. level controls the minimum
// severity that is emitted; it may be a *slog.LevelVar for a level that
// can be changed after construction.
func New(w io.Writer, format Format, level slog.Leveler) *Handler {
	return &Handler{mu: &sync.Mutex{}, w: w, format: format, level: level}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	min := LevelInfo
	if h.level != nil {
		min = h.level.Level()
	}
	return level >= min
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	return &next
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if next.prefix == "" {
		next.prefix = name
	} else {
		next.prefix = next.prefix + "." + name
	}
	return &next
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	switch h.format {
	case FormatJSON:
		h.renderJSON(&buf, r)
	default:
		h.renderText(&buf, r)
	}
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *Handler) renderText(buf *bytes.Buffer, r slog.Record) {
	fmt.Fprintf(buf, "time=%q severity=%s message=%q",
		r.Time.Format("02/01/2006 15:04:05.000 MST"), severityName(r.Level), r.Message)
	h.eachAttr(r, func(key string, value any) {
		fmt.Fprintf(buf, " %s=%v", key, value)
	})
}

func (h *Handler) renderJSON(buf *bytes.Buffer, r slog.Record) {
	buf.WriteString(`{"timestamp":{"seconds":`)
	fmt.Fprintf(buf, "%d", r.Time.Unix())
	buf.WriteString(`,"nanos":`)
	fmt.Fprintf(buf, "%d", r.Time.Nanosecond())
	buf.WriteString(`},"severity":`)
	writeJSONString(buf, severityName(r.Level))
	buf.WriteString(`,"message":`)
	writeJSONString(buf, r.Message)
	h.eachAttr(r, func(key string, value any) {
		buf.WriteByte(',')
		writeJSONString(buf, key)
		buf.WriteByte(':')
		encoded, err := json.Marshal(value)
		if err != nil {
			encoded, _ = json.Marshal(fmt.Sprintf("%v", value))
		}
		buf.Write(encoded)
	})
	buf.WriteByte('}')
}

func (h *Handler) eachAttr(r slog.Record, f func(key string, value any)) {
	for _, a := range h.attrs {
		f(a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		f(h.qualify(a.Key), a.Value.Any())
		return true
	})
}

func (h *Handler) qualify(key string) string {
	if h.prefix == "" {
		return key
	}
	return h.prefix + "." + key
}

func writeJSONString(buf *bytes.Buffer, s string) {
	encoded, _ := json.Marshal(s)
	buf.Write(encoded)
}

// NewLogger constructs the *slog.Logger wormhole components should use,
// wrapping a Handler at the given format and level name (one of
// TRACE/DEBUG/INFO/WARNING/ERROR, case-insensitive; an unrecognized name
// falls back to INFO).
func NewLogger(w io.Writer, format Format, levelName string) *slog.Logger {
	level, ok := ParseLevel(strings.ToUpper(levelName))
	if !ok {
		level = LevelInfo
	}
	return slog.New(New(w, format, level))
}
