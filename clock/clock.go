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

// Package clock supplies the time source used by every TTL and backoff
// computation in wormhole: attribute/directory/chunk cache expiry (spec
// §3, §4.F, §4.G) and the reconnect backoff schedule (spec §4.K) all read
// time through this interface so that tests can advance a fake clock
// instead of sleeping.
package clock

import "time"

// Clock is the time source threaded through every cache and backoff
// computation in this module.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After behaves like time.After, notifying on the returned channel once
	// the given duration has elapsed according to this clock.
	After(d time.Duration) <-chan time.Time
}
