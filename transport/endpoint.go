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

// Package transport wraps a QUIC connection into the two logical stream
// roles this system needs: a single long-lived control stream and many
// short-lived request streams, per spec §4.D.
package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/quic-go/quic-go"
)

const nextProto = "wormhole/1"

// quicConfig is shared by Dial and Listen: a 30s idle timeout and a 15s
// keepalive, tuned to typical NAT UDP mapping lifetimes per spec §4.D,
// plus connection migration so a client's session survives an IP change.
var quicConfig = &quic.Config{
	MaxIdleTimeout:                 30 * time.Second,
	KeepAlivePeriod:                15 * time.Second,
	DisablePathMTUDiscovery:        false,
	EnableDatagrams:                false,
}

// Endpoint is one side of an established QUIC session between a host
// and a client.
type Endpoint struct {
	conn *quic.Conn
}

// Dial connects to addr and authenticates the session using
// transportKey, the key derived from the PAKE exchange (see
// wormholecrypto.DeriveSessionKeys). It returns once the QUIC handshake
// completes; it does not open the control stream.
func Dial(ctx context.Context, addr string, transportKey [32]byte) (*Endpoint, error) {
	tlsConf, err := tlsConfigFor(transportKey, nextProto)
	if err != nil {
		return nil, err
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", addr, err)
	}
	return &Endpoint{conn: conn}, nil
}

// Listener accepts incoming sessions authenticated with the same
// transportKey every client of a given share must present.
type Listener struct {
	ql *quic.Listener
}

// Listen starts accepting QUIC connections on addr.
func Listen(addr string, transportKey [32]byte) (*Listener, error) {
	tlsConf, err := tlsConfigFor(transportKey, nextProto)
	if err != nil {
		return nil, err
	}
	ql, err := quic.ListenAddr(addr, tlsConf, quicConfig)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	return &Listener{ql: ql}, nil
}

// Addr returns the address the listener is bound to.
func (l *Listener) Addr() net.Addr {
	return l.ql.Addr()
}

// Accept waits for the next incoming session.
func (l *Listener) Accept(ctx context.Context) (*Endpoint, error) {
	conn, err := l.ql.Accept(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept: %w", err)
	}
	return &Endpoint{conn: conn}, nil
}

// Close stops accepting new sessions.
func (l *Listener) Close() error {
	return l.ql.Close()
}

// OpenControlStream opens this session's single long-lived
// bidirectional stream, used for Hello/HelloAck, Ping/Pong, and
// Invalidate messages. Callers open exactly one per session, at
// startup.
func (e *Endpoint) OpenControlStream(ctx context.Context) (*quic.Stream, error) {
	stream, err := e.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: open control stream: %w", err)
	}
	return stream, nil
}

// AcceptControlStream waits for the peer to open the control stream. A
// host calls this once, immediately after accepting a connection.
func (e *Endpoint) AcceptControlStream(ctx context.Context) (*quic.Stream, error) {
	stream, err := e.conn.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept control stream: %w", err)
	}
	return stream, nil
}

// OpenRequestStream opens a new short-lived stream for a single
// request/response pair. The caller writes one request, reads one
// response, and closes the stream.
func (e *Endpoint) OpenRequestStream(ctx context.Context) (*quic.Stream, error) {
	stream, err := e.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: open request stream: %w", err)
	}
	return stream, nil
}

// AcceptRequestStream waits for the next request stream the peer opens.
// A host service calls this in a loop, dispatching each stream to a
// handler goroutine.
func (e *Endpoint) AcceptRequestStream(ctx context.Context) (*quic.Stream, error) {
	stream, err := e.conn.AcceptStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("transport: accept request stream: %w", err)
	}
	return stream, nil
}

// RemoteAddr returns the peer's network address.
func (e *Endpoint) RemoteAddr() net.Addr {
	return e.conn.RemoteAddr()
}

// Close ends the session with the given application-level reason.
func (e *Endpoint) Close(reason string) error {
	return e.conn.CloseWithError(0, reason)
}

// Context is canceled when the underlying QUIC connection closes, for
// whatever reason (idle timeout, explicit close, network failure).
func (e *Endpoint) Context() context.Context {
	return e.conn.Context()
}
