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

package mountlib

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wormhole-net/wormhole/hostsvc"
	"github.com/wormhole-net/wormhole/rendezvous"
	"github.com/wormhole-net/wormhole/transport"
	"github.com/wormhole-net/wormhole/wire"
	"github.com/wormhole-net/wormhole/wormholecrypto"
)

// HostConfig bounds a Host's listener and invalidation-polling behavior.
type HostConfig struct {
	SignalURL     string
	ListenAddr    string // default "0.0.0.0:4433", spec §6
	ServiceConfig hostsvc.Config
	WatchInterval time.Duration // default 1s; 0 disables best-effort Invalidate polling
}

// DefaultHostConfig returns conservative defaults.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		ListenAddr:    "0.0.0.0:4433",
		ServiceConfig: hostsvc.DefaultConfig(),
		WatchInterval: 1 * time.Second,
	}
}

// localAddrsWithPort pairs each of this host's non-loopback interface
// addresses with the port it is about to listen on, so a same-LAN peer
// can actually dial the result preferredPeerAddr hands back. listenAddr
// may omit the host part (e.g. "0.0.0.0:4433"); only the port is used.
func localAddrsWithPort(listenAddr string) ([]string, error) {
	_, port, err := net.SplitHostPort(listenAddr)
	if err != nil {
		return nil, err
	}
	ifaceAddrs, err := rendezvous.LocalInterfaceAddrs()
	if err != nil {
		return nil, err
	}
	addrs := make([]string, len(ifaceAddrs))
	for i, ip := range ifaceAddrs {
		addrs[i] = net.JoinHostPort(ip, port)
	}
	return addrs, nil
}

// Host serves a share root to whichever client completes the rendezvous
// handshake for its join code, per spec §4.K.
type Host struct {
	svc      *hostsvc.Service
	listener *transport.Listener
	watcher  *hostsvc.Watcher
	log      *slog.Logger
	events   *eventSink

	cancel context.CancelFunc
	done   chan struct{}
}

// StartHost implements the Host half of spec §4.K: `start(share_root,
// [join_code])` returning `(join_code, stop_handle)`. If joinCode is
// empty, a fresh one is generated. The Watcher's poll interval comes
// from cfg.WatchInterval.
func StartHost(ctx context.Context, shareRoot string, joinCode wormholecrypto.JoinCode, cfg HostConfig, log *slog.Logger) (wormholecrypto.JoinCode, *Host, error) {
	if log == nil {
		log = slog.Default()
	}
	if joinCode == "" {
		var err error
		joinCode, err = wormholecrypto.GenerateJoinCode()
		if err != nil {
			return "", nil, fmt.Errorf("mountlib: generate join code: %w", err)
		}
	}

	svc, err := hostsvc.New(shareRoot, cfg.ServiceConfig, log)
	if err != nil {
		return "", nil, fmt.Errorf("mountlib: start host service: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &Host{
		svc:     svc,
		watcher: hostsvc.NewWatcher(svc),
		log:     log,
		events:  newEventSink(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	rc, err := rendezvous.Dial(runCtx, cfg.SignalURL, joinCode)
	if err != nil {
		cancel()
		svc.Close()
		return "", nil, fmt.Errorf("mountlib: dial signal server: %w", err)
	}
	defer rc.Close()

	pake, err := wormholecrypto.NewPake(wormholecrypto.RoleHost, joinCode)
	if err != nil {
		cancel()
		svc.Close()
		return "", nil, fmt.Errorf("mountlib: start pake: %w", err)
	}

	localAddrs, err := localAddrsWithPort(cfg.ListenAddr)
	if err != nil {
		cancel()
		svc.Close()
		return "", nil, fmt.Errorf("mountlib: resolve listen port: %w", err)
	}
	session, err := rc.Handshake(runCtx, wormholecrypto.RoleHost, cfg.ListenAddr, localAddrs, pake)
	if err != nil {
		cancel()
		svc.Close()
		return "", nil, fmt.Errorf("mountlib: rendezvous handshake: %w", err)
	}

	keys, err := wormholecrypto.DeriveSessionKeys(session.SharedSecret)
	if err != nil {
		cancel()
		svc.Close()
		return "", nil, fmt.Errorf("mountlib: derive session keys: %w", err)
	}

	listener, err := transport.Listen(cfg.ListenAddr, keys.TransportKey)
	if err != nil {
		cancel()
		svc.Close()
		return "", nil, fmt.Errorf("mountlib: listen: %w", err)
	}
	h.listener = listener

	go h.acceptLoop(runCtx, keys, cfg.WatchInterval)

	return joinCode, h, nil
}

// Events returns the host's lifecycle event stream.
func (h *Host) Events() <-chan Event { return h.events.Events() }

// Stop tears down the listener and the underlying service.
func (h *Host) Stop() {
	h.cancel()
	<-h.done
}

func (h *Host) acceptLoop(ctx context.Context, keys wormholecrypto.SessionKeys, watchInterval time.Duration) {
	defer close(h.done)
	defer h.listener.Close()
	defer h.svc.Close()
	defer h.events.close()

	var wg sync.WaitGroup
	for {
		ep, err := h.listener.Accept(ctx)
		if err != nil {
			h.events.emit(Event{Kind: Stopped})
			wg.Wait()
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.serveSession(ctx, ep, keys, watchInterval)
		}()
	}
}

// serveSession answers Hello, then dispatches request streams and
// pushes best-effort Invalidate notifications for the lifetime of one
// client connection.
func (h *Host) serveSession(ctx context.Context, ep *transport.Endpoint, keys wormholecrypto.SessionKeys, watchInterval time.Duration) {
	defer ep.Close("session ended")

	control, err := ep.AcceptControlStream(ctx)
	if err != nil {
		h.log.Warn("mountlib: accept control stream failed", "error", err)
		return
	}

	env, err := wire.ReadEnvelope(control)
	if err != nil || env.Kind != wire.KindHello {
		h.log.Warn("mountlib: expected Hello on control stream", "error", err)
		return
	}
	var hello wire.Hello
	if err := wire.Decode(env, &hello); err != nil {
		return
	}

	accepted := hello.ProtocolVersion == wire.ProtocolVersion &&
		wormholecrypto.VerifyPeerConfirmation(keys.Confirmation, wormholecrypto.RoleClient, hello.Confirmation)
	reason := ""
	if hello.ProtocolVersion != wire.ProtocolVersion {
		reason = fmt.Sprintf("protocol version mismatch: host speaks %d, client sent %d", wire.ProtocolVersion, hello.ProtocolVersion)
	} else if !accepted {
		reason = "client confirmation does not match the host's session keys"
	}
	ack := wire.HelloAck{Accepted: accepted, Reason: reason, Confirmation: wormholecrypto.Confirm(keys.Confirmation, wormholecrypto.RoleHost)}
	if err := wire.Encode(control, wire.KindHelloAck, ack); err != nil {
		return
	}
	if !accepted {
		return
	}

	sessionID := hello.ClientID.String()
	if sessionID == uuid.Nil.String() {
		sessionID = ep.RemoteAddr().String()
	}
	defer h.svc.DropSession(sessionID)

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if watchInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.pushKeepalive(sessionCtx, control, watchInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		h.readControlAcks(sessionCtx, control)
	}()

	for {
		stream, err := ep.AcceptRequestStream(sessionCtx)
		if err != nil {
			cancel()
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer stream.Close()
			reqEnv, err := wire.ReadEnvelope(stream)
			if err != nil {
				return
			}
			resp := h.svc.Dispatch(sessionCtx, sessionID, reqEnv)
			_ = writeFrame(stream, resp)
		}()
	}
	wg.Wait()
}

// pushKeepalive polls the watcher at interval, writing any non-empty
// Invalidate straight onto the control stream (spec §4.E, "Emits
// Invalidate when it observes local modifications"), and on every tick
// also writes a Ping so a client that has gone silent without closing
// its connection is caught by readControlAcks below rather than lingering
// forever. Both writes share this single goroutine so they never race
// each other on the same stream.
func (h *Host) pushKeepalive(ctx context.Context, control io.Writer, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var nonce uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			inv := h.watcher.Check()
			if len(inv.Entities) > 0 {
				if err := wire.Encode(control, wire.KindInvalidate, inv); err != nil {
					h.log.Warn("mountlib: send invalidate failed", "error", err)
					return
				}
			}
			nonce++
			if err := wire.Encode(control, wire.KindPing, wire.Ping{Nonce: nonce}); err != nil {
				h.log.Warn("mountlib: send ping failed", "error", err)
				return
			}
		}
	}
}

// readControlAcks consumes Pong replies (and any Goodbye) the client
// sends back on the control stream. It never blocks anything else: its
// sole purpose is liveness detection, since a dead or hung client read
// failing here is the host's signal to tear the session down, the same
// way a failed AcceptRequestStream already does.
func (h *Host) readControlAcks(ctx context.Context, control io.Reader) {
	for {
		env, err := wire.ReadEnvelope(control)
		if err != nil {
			return
		}
		switch env.Kind {
		case wire.KindPong, wire.KindGoodbye:
		default:
			h.log.Warn("mountlib: unexpected control message from client", "kind", env.Kind)
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// writeFrame writes an already-encoded envelope's frame directly: the
// caller (hostsvc.Service.Dispatch) has already produced valid CBOR
// payload bytes, so there's nothing left to re-encode.
func writeFrame(w io.Writer, env wire.Envelope) error {
	header := make([]byte, 5)
	header[0] = byte(env.Kind)
	binary.BigEndian.PutUint32(header[1:], uint32(len(env.Payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(env.Payload)
	return err
}
