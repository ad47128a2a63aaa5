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

import "errors"

// The three failure modes spec §4.C names, each given a distinct
// sentinel so a caller can decide whether to retry, prompt for a new
// code, or give up. None of them distinguish a wrong code from a
// malformed one; both look identical to an observer.
var (
	// ErrRoomTimeout means no second peer ever joined the room before
	// the deadline passed.
	ErrRoomTimeout = errors.New("rendezvous: timed out waiting for a peer to join the room")

	// ErrPakeMismatch means a peer was found and a PAKE exchange
	// completed, but the two sides' confirmation values disagree,
	// implying the join code typed on each side did not match.
	ErrPakeMismatch = errors.New("rendezvous: pake confirmation mismatch")

	// ErrHolePunchTimeout names a failed UDP hole-punch to the peer's
	// public address. Handshake attempts no hole-punch (it falls back to
	// the announced public address as-is), so nothing in this package
	// returns it.
	ErrHolePunchTimeout = errors.New("rendezvous: hole punch to peer address timed out")
)
