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

// Package wormholelog renders structured logs the way this project's
// operators expect to read them: a severity name and a message, either
// as a single text line or a single-line JSON object, selectable at
// startup by the `log.format` config key.
package wormholelog

import (
	"log/slog"
	"strings"
)

// Severity levels: Trace, the one level this project needs below slog's
// built-in Debug, for per-chunk wire traffic, and the four standard
// levels spec §6 and §7 both refer to by these names.
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var severityNames = map[slog.Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARNING",
	LevelError: "ERROR",
}

func severityName(level slog.Level) string {
	if name, ok := severityNames[level]; ok {
		return name
	}
	return level.String()
}

// ParseLevel maps the severity names used in config and on the wire
// (TRACE/DEBUG/INFO/WARNING/ERROR, case-insensitive) to a slog.Level.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToUpper(name) {
	case "TRACE", "trace":
		return LevelTrace, true
	case "DEBUG", "debug":
		return LevelDebug, true
	case "INFO", "info":
		return LevelInfo, true
	case "WARNING", "warning", "WARN", "warn":
		return LevelWarn, true
	case "ERROR", "error":
		return LevelError, true
	default:
		return 0, false
	}
}
