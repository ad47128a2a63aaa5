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
	"math/rand"
	"time"
)

// Backoff computes the reconnect delay schedule of spec §4.K: initial
// 1s, doubling, capped at 60s, with ±20% jitter so that many clients
// reconnecting to the same signal server after an outage don't all
// retry in lockstep.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	JitterFrac float64

	attempt int
	randf   func() float64 // returns a value in [-1, 1); overridable by tests
}

// NewBackoff returns the default schedule named in spec §4.K.
func NewBackoff() *Backoff {
	return &Backoff{
		Initial:    1 * time.Second,
		Max:        60 * time.Second,
		JitterFrac: 0.2,
		randf:      func() float64 { return rand.Float64()*2 - 1 },
	}
}

// Attempt returns the 1-based attempt number the next call to Next will
// produce a delay for.
func (b *Backoff) Attempt() int { return b.attempt + 1 }

// Next returns the delay before the next reconnect attempt and advances
// the schedule. Successive calls (without an intervening Reset) follow
// 1s, 2s, 4s, 8s, ... capped at Max, each jittered by ±JitterFrac.
func (b *Backoff) Next() time.Duration {
	base := b.Initial
	for i := 0; i < b.attempt && base < b.Max; i++ {
		base *= 2
	}
	if base > b.Max {
		base = b.Max
	}
	b.attempt++

	jitter := time.Duration(float64(base) * b.JitterFrac * b.randf())
	d := base + jitter
	if d < 0 {
		d = 0
	}
	return d
}

// Reset returns the schedule to its first attempt, used once a
// reconnect succeeds.
func (b *Backoff) Reset() { b.attempt = 0 }
