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
	"crypto/hmac"
	"crypto/sha256"
)

// Confirm computes this side's confirmation MAC over a role label, so
// that a host's and client's confirmation values can never be swapped
// and replayed back at each other.
func Confirm(confirmationKey [32]byte, role Role) []byte {
	mac := hmac.New(sha256.New, confirmationKey[:])
	if role == RoleHost {
		mac.Write([]byte("host"))
	} else {
		mac.Write([]byte("client"))
	}
	return mac.Sum(nil)
}

// VerifyPeerConfirmation checks a confirmation value received from the
// peer (whose role is peerRole) against the locally derived
// confirmation key. A mismatch means the two sides derived different
// PAKE secrets, i.e. the join code didn't match, and the caller should
// abort the session without attempting to distinguish "wrong code" from
// "corrupted message" to an observer.
func VerifyPeerConfirmation(confirmationKey [32]byte, peerRole Role, peerValue []byte) bool {
	expected := Confirm(confirmationKey, peerRole)
	return ConstantTimeEqual(expected, peerValue)
}
