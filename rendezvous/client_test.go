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
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-net/wormhole/wormholecrypto"
)

// testSignalServer is a minimal stand-in for a real signal server: it
// groups connections by room (the URL path) and relays every message
// from one participant to every other participant in the same room.
// Announce is rebroadcast as PeerFound per spec §6; PakeMessage is
// rebroadcast unchanged. It never inspects PAKE payloads.
type testSignalServer struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	rooms    map[string][]*websocket.Conn
}

func newTestSignalServer() *testSignalServer {
	return &testSignalServer{rooms: make(map[string][]*websocket.Conn)}
}

func (s *testSignalServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	room := strings.TrimPrefix(r.URL.Path, "/ws/")

	s.mu.Lock()
	s.rooms[room] = append(s.rooms[room], conn)
	s.mu.Unlock()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var tag typeTag
		if err := json.Unmarshal(raw, &tag); err != nil {
			continue
		}

		var out any
		switch tag.Type {
		case typeAnnounce:
			var msg announceMsg
			_ = json.Unmarshal(raw, &msg)
			out = peerFoundMsg{
				Type:       typePeerFound,
				PeerID:     msg.PeerID,
				PublicAddr: msg.PublicAddr,
				LocalAddrs: msg.LocalAddrs,
			}
		case typePakeMessage:
			var msg pakeMessageMsg
			_ = json.Unmarshal(raw, &msg)
			out = pakeMessageMsg{Type: typePakeMessage, FromPeer: msg.FromPeer, Payload: msg.Payload}
		default:
			continue
		}

		s.mu.Lock()
		for _, peer := range s.rooms[room] {
			if peer == conn {
				continue
			}
			_ = peer.WriteJSON(out)
		}
		s.mu.Unlock()
	}
}

func TestHandshakeEndToEnd(t *testing.T) {
	server := newTestSignalServer()
	httpServer := httptest.NewServer(server)
	defer httpServer.Close()
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")

	code, err := wormholecrypto.GenerateJoinCode()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hostClient, err := Dial(ctx, wsURL, code)
	require.NoError(t, err)
	defer hostClient.Close()

	clientClient, err := Dial(ctx, wsURL, code)
	require.NoError(t, err)
	defer clientClient.Close()

	hostPake, err := wormholecrypto.NewPake(wormholecrypto.RoleHost, code)
	require.NoError(t, err)
	clientPake, err := wormholecrypto.NewPake(wormholecrypto.RoleClient, code)
	require.NoError(t, err)

	var hostSession, clientSession Session
	var hostErr, clientErr error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		hostSession, hostErr = hostClient.Handshake(ctx, wormholecrypto.RoleHost, "203.0.113.1", []string{"192.168.1.10"}, hostPake)
	}()
	go func() {
		defer wg.Done()
		clientSession, clientErr = clientClient.Handshake(ctx, wormholecrypto.RoleClient, "203.0.113.2", []string{"192.168.1.20"}, clientPake)
	}()
	wg.Wait()

	require.NoError(t, hostErr)
	require.NoError(t, clientErr)
	assert.Equal(t, hostSession.SharedSecret, clientSession.SharedSecret)
	assert.Equal(t, "192.168.1.20", hostSession.PeerAddr)
	assert.Equal(t, "192.168.1.10", clientSession.PeerAddr)
}

func TestHandshakeRoomTimeoutWithNoPeer(t *testing.T) {
	server := newTestSignalServer()
	httpServer := httptest.NewServer(server)
	defer httpServer.Close()
	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http")

	code, err := wormholecrypto.GenerateJoinCode()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	client, err := Dial(ctx, wsURL, code)
	require.NoError(t, err)
	defer client.Close()

	pake, err := wormholecrypto.NewPake(wormholecrypto.RoleHost, code)
	require.NoError(t, err)

	_, err = client.Handshake(ctx, wormholecrypto.RoleHost, "203.0.113.1", nil, pake)
	assert.ErrorIs(t, err, ErrRoomTimeout)
}
