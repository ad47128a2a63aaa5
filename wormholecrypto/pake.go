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

package wormholecrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"fmt"

	"filippo.io/edwards25519"
)

// Role distinguishes the two ends of a PAKE exchange. The host and
// client use different blinding points (M, N) so that an eavesdropper
// who intercepts both messages cannot confuse which side produced which,
// even though both sides start from the same join code.
type Role int

const (
	RoleHost Role = iota
	RoleClient
)

// Pake runs one SPAKE2-style password-authenticated key exchange over
// edwards25519. Each instance is single-use: Start then Finish, once.
type Pake struct {
	role Role
	w    *edwards25519.Scalar // password scalar, shared by both roles
	x    *edwards25519.Scalar // this side's ephemeral secret
	msg  *edwards25519.Point  // this side's outbound point, cached for transcript hashing
}

// blindingPoint returns this role's fixed blinding point M or N, derived
// by hashing a domain-separated label to a scalar and multiplying the
// curve's base point. Both peers compute both points identically; which
// one a side uses is determined purely by its Role.
func blindingPoint(label string) *edwards25519.Point {
	wide := sha512.Sum512([]byte("wormhole-pake-blind:" + label))
	s, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		panic("wormholecrypto: blinding point derivation: " + err.Error())
	}
	return edwards25519.NewIdentityPoint().ScalarBaseMult(s)
}

var (
	pointM = blindingPoint("M")
	pointN = blindingPoint("N")
)

// NewPake begins a PAKE exchange for the given role, seeded by the
// shared join code.
func NewPake(role Role, code JoinCode) (*Pake, error) {
	wide := sha512.Sum512(code.passwordSeed())
	w, err := edwards25519.NewScalar().SetUniformBytes(wide[:])
	if err != nil {
		return nil, fmt.Errorf("wormholecrypto: derive password scalar: %w", err)
	}

	var xBytes [64]byte
	if _, err := rand.Read(xBytes[:]); err != nil {
		return nil, fmt.Errorf("wormholecrypto: generate ephemeral scalar: %w", err)
	}
	x, err := edwards25519.NewScalar().SetUniformBytes(xBytes[:])
	if err != nil {
		return nil, fmt.Errorf("wormholecrypto: derive ephemeral scalar: %w", err)
	}

	return &Pake{role: role, w: w, x: x}, nil
}

func (p *Pake) blindingPointForRole(role Role) *edwards25519.Point {
	if role == RoleHost {
		return pointM
	}
	return pointN
}

// Start returns this side's outbound protocol message: X = x*G + w*M
// (or w*N for the client), encoded as 32 bytes. Send this to the peer
// over the rendezvous channel and pass their reply to Finish.
func (p *Pake) Start() []byte {
	term := edwards25519.NewIdentityPoint().ScalarMult(p.w, p.blindingPointForRole(p.role))
	X := edwards25519.NewIdentityPoint().ScalarBaseMult(p.x)
	X.Add(X, term)
	p.msg = X
	return X.Bytes()
}

// peerRole is the other side of the exchange.
func (r Role) peerRole() Role {
	if r == RoleHost {
		return RoleClient
	}
	return RoleHost
}

// Finish consumes the peer's Start() output and returns the raw shared
// secret. A malformed or off-curve peer message yields an error rather
// than a key; a join-code mismatch instead yields a key both sides
// silently disagree on, surfaced later as a transport handshake failure
// (see transport package), never as a distinguishable error here, to
// avoid leaking whether the guess was close.
func (p *Pake) Finish(peerMsg []byte) ([]byte, error) {
	if p.msg == nil {
		return nil, fmt.Errorf("wormholecrypto: Finish called before Start")
	}
	Y, err := new(edwards25519.Point).SetBytes(peerMsg)
	if err != nil {
		return nil, fmt.Errorf("wormholecrypto: peer message is not a valid point: %w", err)
	}

	peerBlind := p.blindingPointForRole(p.role.peerRole())
	negW := edwards25519.NewScalar().Negate(p.w)
	unblindTerm := edwards25519.NewIdentityPoint().ScalarMult(negW, peerBlind)

	Z := edwards25519.NewIdentityPoint().Add(Y, unblindTerm)
	Z.ScalarMult(p.x, Z)

	var transcript []byte
	if p.role == RoleHost {
		transcript = append(transcript, p.msg.Bytes()...)
		transcript = append(transcript, peerMsg...)
	} else {
		transcript = append(transcript, peerMsg...)
		transcript = append(transcript, p.msg.Bytes()...)
	}
	transcript = append(transcript, Z.Bytes()...)

	sum := sha256.Sum256(transcript)
	return sum[:], nil
}

// ConstantTimeEqual reports whether two derived secrets match, without
// leaking timing information about where they first differ.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
