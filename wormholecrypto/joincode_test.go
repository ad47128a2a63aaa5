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

package wormholecrypto_test

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wormhole-net/wormhole/wormholecrypto"
)

func TestGenerateJoinCodeShape(t *testing.T) {
	code, err := wormholecrypto.GenerateJoinCode()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(code), "WORM-"))
	assert.Len(t, strings.Split(string(code), "-"), 5)
}

// TestGenerateJoinCodeMeetsEntropyFloor guards spec §3/§4.B/§6's ≥80-bit
// guessing-resistance requirement. The rendezvous room ID is deterministic
// from the code itself and must not be counted: only the alphabet and
// symbol count of the code's data groups may contribute entropy.
func TestGenerateJoinCodeMeetsEntropyFloor(t *testing.T) {
	code, err := wormholecrypto.GenerateJoinCode()
	require.NoError(t, err)

	parts := strings.Split(string(code), "-")
	require.Greater(t, len(parts), 1)
	dataSymbols := 0
	for _, p := range parts[1:] {
		dataSymbols += len(p)
	}

	const alphabetSize = 32 // joinCodeAlphabet length
	bits := float64(dataSymbols) * math.Log2(alphabetSize)
	assert.GreaterOrEqual(t, bits, 80.0, "join code must supply >=80 bits of entropy on its own")
}

func TestGenerateJoinCodeIsRandom(t *testing.T) {
	a, err := wormholecrypto.GenerateJoinCode()
	require.NoError(t, err)
	b, err := wormholecrypto.GenerateJoinCode()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestParseJoinCodeNormalizesCase(t *testing.T) {
	code, err := wormholecrypto.GenerateJoinCode()
	require.NoError(t, err)

	parsed, err := wormholecrypto.ParseJoinCode(" " + strings.ToLower(string(code)) + " ")
	require.NoError(t, err)
	assert.Equal(t, code, parsed)
}

func TestParseJoinCodeRejectsWrongShape(t *testing.T) {
	cases := []string{
		"",
		"WORM-1234-5678",
		"NOPE-1234-5678-9ABC-DEF0",
		"WORM-123-5678-9ABC-DEF0",
		"WORM-IIII-5678-9ABC-DEF0", // 'I' excluded from the alphabet
	}
	for _, c := range cases {
		_, err := wormholecrypto.ParseJoinCode(c)
		assert.Error(t, err, c)
	}
}

func TestRoomIDDeterministic(t *testing.T) {
	code, err := wormholecrypto.GenerateJoinCode()
	require.NoError(t, err)
	assert.Equal(t, code.RoomID(), code.RoomID())
	assert.Contains(t, code.RoomID(), string(code))
}
