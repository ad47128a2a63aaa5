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

// Package rendezvous implements the signal-server protocol that turns a
// join code into a (peer address, shared key) tuple, per spec §4.C. The
// signal server only relays opaque messages between the two peers in a
// code-scoped room; it never observes PAKE key material.
package rendezvous

// envelopeType discriminates the JSON messages exchanged over the
// signaling WebSocket, spec §6's "Text frames, each a JSON object with a
// type tag". There is no separate envelope wrapper: every message is a
// single flat JSON object, the type tag sitting alongside that message's
// own fields.
type envelopeType string

const (
	typeAnnounce    envelopeType = "Announce"
	typePakeMessage envelopeType = "PakeMessage"
	typePeerFound   envelopeType = "PeerFound"
	typeError       envelopeType = "Error"
)

// typeTag decodes just the discriminator from an inbound frame; the
// same bytes are then re-decoded into whichever concrete type the tag
// names.
type typeTag struct {
	Type envelopeType `json:"type"`
}

// announceMsg is step 2 of the protocol: each peer reports its own
// identity and candidate addresses.
type announceMsg struct {
	Type       envelopeType `json:"type"`
	PeerID     string       `json:"peer_id"`
	PublicAddr string       `json:"public_addr"`
	LocalAddrs []string     `json:"local_addrs"`
}

// peerFoundMsg is the signal server's broadcast of another participant's
// Announce to everyone else already in the room; spec §6 gives it "the
// same shape" as Announce, server-injected.
type peerFoundMsg struct {
	Type       envelopeType `json:"type"`
	PeerID     string       `json:"peer_id"`
	PublicAddr string       `json:"public_addr"`
	LocalAddrs []string     `json:"local_addrs"`
}

// pakeMessageMsg is step 3: each peer's PAKE share, addressed so a
// multi-peer room (if ever widened past 2) can tell shares apart. The
// signal server relays it verbatim to the rest of the room.
type pakeMessageMsg struct {
	Type     envelopeType `json:"type"`
	FromPeer string       `json:"from_peer"`
	Payload  []byte       `json:"payload"`
}

// errorMsg carries a signal-server-side failure, e.g. a malformed room
// name; it is distinct from the typed client-side errors in errors.go,
// which also cover conditions the server never sees (hole-punch
// timeout).
type errorMsg struct {
	Type    envelopeType `json:"type"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
}
