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

	"github.com/wormhole-net/wormhole/mountlib"
	"github.com/wormhole-net/wormhole/wormholecrypto"
)

var (
	hostListenAddr string
	hostJoinCode   string
)

var hostCmd = &cobra.Command{
	Use:   "host <share-dir>",
	Short: "Expose a directory for a client to mount",
	Args:  cobra.ExactArgs(1),
	RunE:  runHost,
}

func init() {
	hostCmd.Flags().StringVar(&hostListenAddr, "listen", "0.0.0.0:4433", "address to listen for the client's transport connection")
	hostCmd.Flags().StringVar(&hostJoinCode, "join-code", "", "reuse a previously generated join code instead of minting a new one")
	rootCmd.AddCommand(hostCmd)
}

func runHost(cmd *cobra.Command, args []string) error {
	shareDir := args[0]
	if info, err := os.Stat(shareDir); err != nil {
		return fmt.Errorf("share directory: %w", err)
	} else if !info.IsDir() {
		return fmt.Errorf("share directory: %s is not a directory", shareDir)
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	var joinCode wormholecrypto.JoinCode
	if hostJoinCode != "" {
		joinCode, err = wormholecrypto.ParseJoinCode(hostJoinCode)
		if err != nil {
			return fmt.Errorf("join code: %w", err)
		}
	}

	hostCfg := mountlib.DefaultHostConfig()
	hostCfg.SignalURL = cfg.Network.SignalURL
	hostCfg.ListenAddr = hostListenAddr

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	code, h, err := mountlib.StartHost(ctx, shareDir, joinCode, hostCfg, logger)
	if err != nil {
		return fmt.Errorf("start host: %w", err)
	}
	fmt.Printf("join code: %s\n", code)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		for ev := range h.Events() {
			logger.Info("host event", "event", ev.String())
		}
	}()

	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	h.Stop()
	return nil
}
