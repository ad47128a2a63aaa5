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

// Package config loads wormhole's TOML configuration file and applies
// the WORMHOLE_* environment variable overrides described in spec §6.
package config

import (
	"fmt"
	"strconv"
)

// Octal is the datatype for mode-bit options (file-mode, dir-mode); its
// text form is a base-8 value such as "0644".
type Octal uint32

func (o *Octal) UnmarshalText(text []byte) error {
	v, err := strconv.ParseUint(string(text), 8, 32)
	if err != nil {
		return fmt.Errorf("config: invalid octal value %q: %w", text, err)
	}
	*o = Octal(v)
	return nil
}

func (o Octal) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(o), 8)), nil
}

// LogLevel mirrors the severities wormholelog accepts.
type LogLevel string

const (
	LogLevelTrace   LogLevel = "TRACE"
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// LogFormat selects wormholelog's output rendering.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// CacheConfig holds §6's `cache.*` keys.
type CacheConfig struct {
	L1MaxBytes    int64  `toml:"l1_max_bytes"`
	L2MaxBytes    int64  `toml:"l2_max_bytes"`
	L2Path        string `toml:"l2_path"`
	AttrTTLSecs   int64  `toml:"attr_ttl_secs"`
	ChunkTTLSecs  int64  `toml:"chunk_ttl_secs"`
}

// NetworkConfig holds §6's `network.*` keys.
type NetworkConfig struct {
	SignalURL   string   `toml:"signal_url"`
	StunServers []string `toml:"stun_servers"`
	IPv6        bool     `toml:"ipv6"`
	TimeoutMs   int64    `toml:"timeout_ms"`
}

// LogConfig holds §6's `log.*` keys.
type LogConfig struct {
	Level  LogLevel  `toml:"level"`
	Format LogFormat `toml:"format"`
}

// MountConfig holds the permission-surface options named in §6's mount
// surface paragraph; they have no TOML section of their own in the
// spec's recognized-keys list. They are not decoded from the TOML file
// and no command-line flag sets them, so they keep the values Default
// assigns.
type MountConfig struct {
	FileMode Octal
	DirMode  Octal
}

// Config is the fully resolved configuration for either a host or a
// client process.
type Config struct {
	Cache   CacheConfig   `toml:"cache"`
	Network NetworkConfig `toml:"network"`
	Log     LogConfig     `toml:"log"`
	Mount   MountConfig   `toml:"-"`
}
