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
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wormhole-net/wormhole/clock"
	"github.com/wormhole-net/wormhole/mountlib"
	"github.com/wormhole-net/wormhole/vfs"
	"github.com/wormhole-net/wormhole/wormholecrypto"
)

var mountCmd = &cobra.Command{
	Use:   "mount <join-code> <mountpoint>",
	Short: "Mount a host's shared directory locally",
	Args:  cobra.ExactArgs(2),
	RunE:  runMount,
}

func init() {
	rootCmd.AddCommand(mountCmd)
}

func runMount(cmd *cobra.Command, args []string) error {
	joinCode, err := wormholecrypto.ParseJoinCode(args[0])
	if err != nil {
		return fmt.Errorf("join code: %w", err)
	}
	mountpoint := args[1]
	if info, err := os.Stat(mountpoint); err != nil {
		return fmt.Errorf("mountpoint: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("mountpoint: %s is not a directory", mountpoint)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Cache.L2Path == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			cacheDir = os.TempDir()
		}
		cfg.Cache.L2Path = cacheDir + "/wormhole/l2.db"
		if err := os.MkdirAll(cacheDir+"/wormhole", 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientCfg := mountlib.ClientConfig{
		JoinCode:   joinCode,
		Mountpoint: mountpoint,
		Cfg:        cfg,
		Binding:    vfs.NewBinding(),
	}

	c, err := mountlib.Mount(ctx, clientCfg, clock.RealClock{}, logger)
	if err != nil {
		return fmt.Errorf("mount: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		for ev := range c.Events() {
			logger.Info("mount event", "event", ev.String())
		}
	}()

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	c.Stop()
	return nil
}
