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
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SessionKeys holds the two keys a host and client derive from the PAKE
// shared secret: one confirms both sides reached the same secret before
// any chunk is transferred, the other binds the QUIC transport's
// certificate pinning (see transport package).
type SessionKeys struct {
	Confirmation [32]byte
	TransportKey [32]byte
}

// DeriveSessionKeys expands a raw PAKE shared secret into independent,
// domain-separated keys via HKDF-SHA256. info strings follow the
// "wormhole/<purpose>/v1" convention so a future key addition can't
// collide with an existing one.
func DeriveSessionKeys(sharedSecret []byte) (SessionKeys, error) {
	var keys SessionKeys

	confReader := hkdf.New(sha256.New, sharedSecret, nil, []byte("wormhole/confirmation/v1"))
	if _, err := io.ReadFull(confReader, keys.Confirmation[:]); err != nil {
		return SessionKeys{}, fmt.Errorf("wormholecrypto: derive confirmation key: %w", err)
	}

	transportReader := hkdf.New(sha256.New, sharedSecret, nil, []byte("wormhole/transport/v1"))
	if _, err := io.ReadFull(transportReader, keys.TransportKey[:]); err != nil {
		return SessionKeys{}, fmt.Errorf("wormholecrypto: derive transport key: %w", err)
	}

	return keys, nil
}
