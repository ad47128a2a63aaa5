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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wormhole-net/wormhole/bridge"
	"github.com/wormhole-net/wormhole/cache/l1"
	"github.com/wormhole-net/wormhole/cache/l2"
	"github.com/wormhole-net/wormhole/clock"
	"github.com/wormhole-net/wormhole/config"
	"github.com/wormhole-net/wormhole/rendezvous"
	"github.com/wormhole-net/wormhole/transport"
	"github.com/wormhole-net/wormhole/vfs"
	"github.com/wormhole-net/wormhole/wire"
	"github.com/wormhole-net/wormhole/wormholecrypto"
)

// ClientConfig is everything Mount needs to join a host's share and
// bind it at a local mountpoint, per spec §4.K.
type ClientConfig struct {
	JoinCode    wormholecrypto.JoinCode
	Mountpoint  string
	Cfg         config.Config
	Binding     vfs.Binding // OS-specific FUSE/ProjFS binding
	L2CachePath string      // defaults to Cfg.Cache.L2Path
}

// Client holds one mounted, possibly-reconnecting session. The FUSE
// mount itself survives a peer outage; only the transport session below
// vfs.Client is torn down and rebuilt on reconnect, per spec §4.K.
type Client struct {
	cfg     ClientConfig
	clk     clock.Clock
	log     *slog.Logger
	events  *eventSink
	l1c     *l1.Cache
	l2c     *l2.Cache
	vclient *vfs.Client

	cancel     context.CancelFunc
	done       chan struct{}
	mountEnded chan struct{}
}

// Mount implements the Client half of spec §4.K: `mount(join_code,
// mountpoint)` returning a stop handle immediately while the actual
// rendezvous, transport handshake, and FUSE mount happen in the
// background. Progress and failures surface on Events().
func Mount(ctx context.Context, cfg ClientConfig, clk clock.Clock, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if cfg.Binding == nil {
		return nil, fmt.Errorf("mountlib: ClientConfig.Binding is required")
	}

	attrTTL := time.Duration(cfg.Cfg.Cache.AttrTTLSecs) * time.Second
	dirTTL := attrTTL
	l1c := l1.New(cfg.Cfg.Cache.L1MaxBytes, time.Duration(cfg.Cfg.Cache.ChunkTTLSecs)*time.Second, clk)

	l2Path := cfg.L2CachePath
	if l2Path == "" {
		l2Path = cfg.Cfg.Cache.L2Path
	}
	l2c, err := l2.Open(l2Path, cfg.Cfg.Cache.L2MaxBytes, 0.8, 30*time.Second, clk)
	if err != nil {
		return nil, fmt.Errorf("mountlib: open L2 cache: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:        cfg,
		clk:        clk,
		log:        log,
		events:     newEventSink(),
		l1c:        l1c,
		l2c:        l2c,
		vclient:    vfs.NewClient(nil, attrTTL, dirTTL, clk),
		cancel:     cancel,
		done:       make(chan struct{}),
		mountEnded: make(chan struct{}),
	}

	go c.runMount(runCtx)
	go c.runSessions(runCtx)

	return c, nil
}

// Events returns the client's lifecycle event stream.
func (c *Client) Events() <-chan Event { return c.events.Events() }

// Stop unmounts and releases the client's caches. It blocks until
// teardown completes.
func (c *Client) Stop() {
	c.cancel()
	<-c.mountEnded
	<-c.done
	_ = c.l2c.Close()
}

// runMount owns the FUSE/ProjFS mount for the Client's entire lifetime.
// It is independent of the session supervisor below: a reconnect never
// unmounts and remounts the filesystem, it only swaps vclient's
// RemoteOps once a new session is ready.
func (c *Client) runMount(ctx context.Context) {
	defer close(c.mountEnded)
	if err := c.cfg.Binding.Mount(ctx, c.cfg.Mountpoint, c.vclient); err != nil && ctx.Err() == nil {
		c.log.Warn("mountlib: mount ended unexpectedly", "error", err)
	}
}

// runSessions drives the connect/serve/reconnect supervisor. A fresh
// rendezvous handshake is performed on every (re)connect attempt; the
// join code's room is single-use once both peers complete it, so a
// planned reconnect from either side after a transport-level failure
// reuses the same code to re-announce in a new room instance.
func (c *Client) runSessions(ctx context.Context) {
	defer close(c.done)
	defer c.events.close()

	backoff := NewBackoff()
	firstAttempt := true

	for {
		if ctx.Err() != nil {
			c.events.emit(Event{Kind: Stopped})
			return
		}

		if firstAttempt {
			c.events.emit(Event{Kind: WaitingForPeer})
			firstAttempt = false
		} else {
			attempt := backoff.Attempt()
			c.events.emit(Event{Kind: Reconnecting, Attempt: attempt})
			select {
			case <-ctx.Done():
				c.events.emit(Event{Kind: Stopped})
				return
			case <-c.clk.After(backoff.Next()):
			}
		}

		actor, ep, control, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.events.emit(Event{Kind: Stopped})
				return
			}
			if errors.Is(err, ErrJoinCodeMismatch) {
				c.log.Warn("mountlib: join code mismatch, giving up", "error", err)
				c.events.emit(Event{Kind: ErrorEvent, Err: err})
				return
			}
			c.log.Warn("mountlib: connect failed, will retry", "error", err)
			continue
		}
		backoff.Reset()
		c.vclient.Reset()
		c.vclient.SetRemote(actor)
		c.events.emit(Event{Kind: PeerConnected})
		c.events.emit(Event{Kind: MountReady})

		controlErr := actor.RunControlLoop(ctx, control)
		actor.Shutdown()
		ep.Close("session ended")

		if ctx.Err() != nil {
			c.events.emit(Event{Kind: Stopped})
			return
		}
		if controlErr != nil {
			c.log.Warn("mountlib: peer connection lost", "error", controlErr)
		}
	}
}

// connect runs one full rendezvous + transport + Hello handshake and
// returns a ready bridge.Actor along with the control stream Invalidate
// and Ping notifications arrive on (and Pong replies are written to).
func (c *Client) connect(ctx context.Context) (*bridge.Actor, *transport.Endpoint, io.ReadWriter, error) {
	rc, err := rendezvous.Dial(ctx, c.cfg.Cfg.Network.SignalURL, c.cfg.JoinCode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial signal server: %w", err)
	}
	defer rc.Close()

	pake, err := wormholecrypto.NewPake(wormholecrypto.RoleClient, c.cfg.JoinCode)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("start pake: %w", err)
	}

	localAddrs, _ := rendezvous.LocalInterfaceAddrs()
	session, err := rc.Handshake(ctx, wormholecrypto.RoleClient, "", localAddrs, pake)
	if err != nil {
		if errors.Is(err, rendezvous.ErrPakeMismatch) {
			return nil, nil, nil, fmt.Errorf("rendezvous handshake: %w: %v", ErrJoinCodeMismatch, err)
		}
		return nil, nil, nil, fmt.Errorf("rendezvous handshake: %w", err)
	}

	keys, err := wormholecrypto.DeriveSessionKeys(session.SharedSecret)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("derive session keys: %w", err)
	}

	ep, err := transport.Dial(ctx, session.PeerAddr, keys.TransportKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial host: %w", err)
	}

	control, err := ep.OpenControlStream(ctx)
	if err != nil {
		ep.Close("control stream failed")
		return nil, nil, nil, fmt.Errorf("open control stream: %w", err)
	}

	hello := wire.Hello{
		ProtocolVersion: wire.ProtocolVersion,
		ClientID:        uuid.New(),
		Confirmation:    wormholecrypto.Confirm(keys.Confirmation, wormholecrypto.RoleClient),
	}
	if err := wire.Encode(control, wire.KindHello, hello); err != nil {
		ep.Close("hello send failed")
		return nil, nil, nil, fmt.Errorf("send hello: %w", err)
	}

	ackEnv, err := wire.ReadEnvelope(control)
	if err != nil || ackEnv.Kind != wire.KindHelloAck {
		ep.Close("hello ack not received")
		return nil, nil, nil, fmt.Errorf("read hello ack: %w", err)
	}
	var ack wire.HelloAck
	if err := wire.Decode(ackEnv, &ack); err != nil {
		ep.Close("malformed hello ack")
		return nil, nil, nil, fmt.Errorf("decode hello ack: %w", err)
	}
	if !ack.Accepted {
		ep.Close("host rejected hello")
		return nil, nil, nil, fmt.Errorf("host rejected hello: %s", ack.Reason)
	}
	if !wormholecrypto.VerifyPeerConfirmation(keys.Confirmation, wormholecrypto.RoleHost, ack.Confirmation) {
		ep.Close("host confirmation mismatch")
		return nil, nil, nil, fmt.Errorf("%w: host confirmation did not match derived session keys", ErrJoinCodeMismatch)
	}

	actor := bridge.New(ep, c.l1c, c.l2c, bridge.DefaultConfig(), c.log, c.vclient.ApplyInvalidate)
	return actor, ep, control, nil
}
