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

const (
	defaultL1MaxBytes   = 256 << 20 // 256 MiB, spec §4.F
	defaultL2MaxBytes   = 4 << 30   // 4 GiB, a conservative default within §4.G's headroom guidance
	defaultAttrTTLSecs  = 1
	defaultChunkTTLSecs = 60
	defaultSignalURL    = "wss://rendezvous.wormhole.example/ws"
	defaultTimeoutMs    = 5000
	defaultFileMode     = Octal(0o644)
	defaultDirMode      = Octal(0o755)
)

// Default returns a Config populated with the defaults named throughout
// spec §4 and §6. Cache.L2Path is left for the caller to fill in, since its
// platform-appropriate default ($XDG_CACHE_HOME/wormhole or equivalent)
// depends on the running OS, not on anything this package should guess.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			L1MaxBytes:   defaultL1MaxBytes,
			L2MaxBytes:   defaultL2MaxBytes,
			AttrTTLSecs:  defaultAttrTTLSecs,
			ChunkTTLSecs: defaultChunkTTLSecs,
		},
		Network: NetworkConfig{
			SignalURL: defaultSignalURL,
			TimeoutMs: defaultTimeoutMs,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
		Mount: MountConfig{
			FileMode: defaultFileMode,
			DirMode:  defaultDirMode,
		},
	}
}
