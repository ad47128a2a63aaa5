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

package rendezvous

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/google/uuid"

	"github.com/wormhole-net/wormhole/wormholecrypto"
)

// RoomTimeout bounds how long Handshake waits for a second peer to
// join the room before returning ErrRoomTimeout.
const RoomTimeout = 60 * time.Second

// Session is the result of a successful rendezvous: an address to dial
// and the raw PAKE shared secret to derive transport keys from.
type Session struct {
	PeerAddr     string
	SharedSecret []byte
}

// Client is a single-use connection to a signal server for one join
// code's room. Create one with Dial, call Handshake once, then Close.
type Client struct {
	conn   *websocket.Conn
	peerID string
}

// Dial opens the signaling WebSocket for code's room.
func Dial(ctx context.Context, serverURL string, code wormholecrypto.JoinCode) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("rendezvous: parse server URL: %w", err)
	}
	u.Path = "/ws/" + string(code)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("rendezvous: dial signal server: %w", err)
	}
	return &Client{conn: conn, peerID: uuid.NewString()}, nil
}

// Close tears down the signaling connection. It is safe to call after
// Handshake has returned, successfully or not.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Handshake runs steps 2-7 of the rendezvous protocol: announce this
// peer, send our PAKE share, wait for the other participant to do the
// same, complete the PAKE, and pick the best peer address.
func (c *Client) Handshake(ctx context.Context, role wormholecrypto.Role, publicAddr string, localAddrs []string, pake *wormholecrypto.Pake) (Session, error) {
	if err := c.send(announceMsg{
		Type:       typeAnnounce,
		PeerID:     c.peerID,
		PublicAddr: publicAddr,
		LocalAddrs: localAddrs,
	}); err != nil {
		return Session{}, err
	}
	if err := c.send(pakeMessageMsg{
		Type:     typePakeMessage,
		FromPeer: c.peerID,
		Payload:  pake.Start(),
	}); err != nil {
		return Session{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, RoomTimeout)
	defer cancel()

	var (
		peerPublicAddr string
		peerLocalAddrs []string
		peerPake       []byte
	)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.conn.Close()
		case <-done:
		}
	}()

	for peerPake == nil || (peerPublicAddr == "" && peerLocalAddrs == nil) {
		raw, err := c.readRaw()
		if err != nil {
			if ctx.Err() != nil {
				return Session{}, ErrRoomTimeout
			}
			return Session{}, fmt.Errorf("rendezvous: read from signal server: %w", err)
		}

		var tag typeTag
		if err := json.Unmarshal(raw, &tag); err != nil {
			return Session{}, fmt.Errorf("rendezvous: malformed message: %w", err)
		}

		switch tag.Type {
		case typePeerFound:
			var msg peerFoundMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return Session{}, fmt.Errorf("rendezvous: malformed PeerFound message: %w", err)
			}
			if msg.PeerID == c.peerID {
				continue
			}
			if msg.PublicAddr != "" || msg.LocalAddrs != nil {
				peerPublicAddr = msg.PublicAddr
				peerLocalAddrs = msg.LocalAddrs
			}
		case typePakeMessage:
			var msg pakeMessageMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return Session{}, fmt.Errorf("rendezvous: malformed PakeMessage message: %w", err)
			}
			if msg.FromPeer == c.peerID {
				continue
			}
			if msg.Payload != nil {
				peerPake = msg.Payload
			}
		case typeError:
			var msg errorMsg
			if err := json.Unmarshal(raw, &msg); err != nil {
				return Session{}, fmt.Errorf("rendezvous: malformed Error message: %w", err)
			}
			return Session{}, fmt.Errorf("rendezvous: signal server: [%s] %s", msg.Code, msg.Message)
		}
	}

	secret, err := pake.Finish(peerPake)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrPakeMismatch, err)
	}

	peerAddr := preferredPeerAddr(localAddrs, peerLocalAddrs, peerPublicAddr)
	return Session{PeerAddr: peerAddr, SharedSecret: secret}, nil
}

func (c *Client) send(msg any) error {
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("rendezvous: send: %w", err)
	}
	return nil
}

func (c *Client) readRaw() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}
