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

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wormhole-net/wormhole/config"
	"github.com/wormhole-net/wormhole/wormholelog"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "wormhole",
	Short: "Share or mount a directory directly between two machines",
	Long: `wormhole turns a local directory into a peer-to-peer remote
filesystem: one machine hosts a share, another mounts it, and bytes
stream directly between the two over an authenticated, encrypted
connection negotiated through a join code. Nothing is stored or proxied
server-side.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "path to a wormhole TOML config file")
}

// loadConfig reads the resolved configuration and builds the logger
// every subcommand shares, per spec §6.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := wormholelog.NewLogger(os.Stderr, wormholelog.Format(cfg.Log.Format), string(cfg.Log.Level))
	return cfg, logger, nil
}
