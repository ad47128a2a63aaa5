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

package config

import "fmt"

const (
	minL1MaxBytes = 64 << 20  // spec §4.F floor
	maxL1MaxBytes = 2 << 30   // spec §4.F ceiling
	minL2MaxBytes = 100 << 20 // spec §4.G floor
	maxL2MaxBytes = 100 << 30 // spec §4.G ceiling

	minChunkTTLSecs = 10   // spec §4.F floor
	maxChunkTTLSecs = 3600 // spec §4.F ceiling
)

// Validate reports the first configuration error found, checking the
// bounds spec §4.F and §4.G name explicitly and the obvious sanity
// requirements the spec leaves implicit (positive TTLs, a non-empty
// signal URL).
func (c Config) Validate() error {
	if c.Cache.L1MaxBytes < minL1MaxBytes || c.Cache.L1MaxBytes > maxL1MaxBytes {
		return fmt.Errorf("config: cache.l1_max_bytes must be between %d and %d, got %d", minL1MaxBytes, maxL1MaxBytes, c.Cache.L1MaxBytes)
	}
	if c.Cache.L2MaxBytes < minL2MaxBytes || c.Cache.L2MaxBytes > maxL2MaxBytes {
		return fmt.Errorf("config: cache.l2_max_bytes must be between %d and %d, got %d", minL2MaxBytes, maxL2MaxBytes, c.Cache.L2MaxBytes)
	}
	if c.Cache.AttrTTLSecs <= 0 {
		return fmt.Errorf("config: cache.attr_ttl_secs must be positive, got %d", c.Cache.AttrTTLSecs)
	}
	if c.Cache.ChunkTTLSecs < minChunkTTLSecs || c.Cache.ChunkTTLSecs > maxChunkTTLSecs {
		return fmt.Errorf("config: cache.chunk_ttl_secs must be between %d and %d, got %d", minChunkTTLSecs, maxChunkTTLSecs, c.Cache.ChunkTTLSecs)
	}
	if c.Network.SignalURL == "" {
		return fmt.Errorf("config: network.signal_url must not be empty")
	}
	if c.Network.TimeoutMs <= 0 {
		return fmt.Errorf("config: network.timeout_ms must be positive, got %d", c.Network.TimeoutMs)
	}
	switch c.Log.Level {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
	default:
		return fmt.Errorf("config: log.level %q is not a recognized severity", c.Log.Level)
	}
	switch c.Log.Format {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("config: log.format %q must be \"text\" or \"json\"", c.Log.Format)
	}
	return nil
}
