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

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

// Load reads and validates a configuration file at path, falling back to
// Default() for any key the file doesn't set, then applies the
// WORMHOLE_* environment overrides from spec §6. An empty path skips the
// file entirely and starts from Default().
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides mutates cfg in place per the five WORMHOLE_*
// variables spec §6 names. An unset or unparseable numeric override is
// silently ignored rather than failing the whole load; a typo'd
// environment variable should not be able to crash a long-running host.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("WORMHOLE_SIGNAL_SERVER"); ok && v != "" {
		cfg.Network.SignalURL = v
	}
	if v, ok := os.LookupEnv("WORMHOLE_CACHE_DIR"); ok && v != "" {
		cfg.Cache.L2Path = v
	}
	if v, ok := os.LookupEnv("WORMHOLE_CACHE_RAM_MB"); ok && v != "" {
		if mb, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.L1MaxBytes = mb << 20
		}
	}
	if v, ok := os.LookupEnv("WORMHOLE_CACHE_DISK_GB"); ok && v != "" {
		if gb, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Cache.L2MaxBytes = gb << 30
		}
	}
	if v, ok := os.LookupEnv("WORMHOLE_LOG_LEVEL"); ok && v != "" {
		cfg.Log.Level = LogLevel(v)
	}
}
