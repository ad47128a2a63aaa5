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

// Package mountlib implements spec §4.K: the Host's start/stop surface,
// the Client's mount/reconnect surface, the lifecycle event sequence
// both emit to their observer, and the exponential reconnect backoff
// policy. It is the outermost layer, wiring together rendezvous,
// transport, bridge, vfs, and hostsvc into the two entry points an
// operator actually calls.
package mountlib

import (
	"errors"
	"fmt"
)

// ErrJoinCodeMismatch means a peer answered the rendezvous but the PAKE
// exchange or post-handshake confirmation check failed, implying the
// two sides typed different join codes. Unlike every other connect
// failure, this one is not worth retrying: the same code will fail the
// same way forever, so runSessions surfaces it as a terminal ErrorEvent
// instead of backing off and trying again.
var ErrJoinCodeMismatch = errors.New("mountlib: join code mismatch")

// EventKind names one step of the lifecycle sequence spec §4.K defines:
// WaitingForPeer -> PeerConnected -> MountReady -> (Reconnecting)* ->
// Stopped | Error.
type EventKind int

const (
	WaitingForPeer EventKind = iota
	PeerConnected
	MountReady
	Reconnecting
	Stopped
	ErrorEvent
)

func (k EventKind) String() string {
	switch k {
	case WaitingForPeer:
		return "WaitingForPeer"
	case PeerConnected:
		return "PeerConnected"
	case MountReady:
		return "MountReady"
	case Reconnecting:
		return "Reconnecting"
	case Stopped:
		return "Stopped"
	case ErrorEvent:
		return "Error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one lifecycle notification delivered to a Host's or Client's
// observer channel.
type Event struct {
	Kind    EventKind
	Attempt int   // populated for Reconnecting
	Err     error // populated for ErrorEvent
}

func (e Event) String() string {
	switch e.Kind {
	case Reconnecting:
		return fmt.Sprintf("Reconnecting{attempt=%d}", e.Attempt)
	case ErrorEvent:
		return fmt.Sprintf("Error{%v}", e.Err)
	default:
		return e.Kind.String()
	}
}

// eventSink buffers lifecycle events for an observer that may not be
// reading continuously; it never blocks the lifecycle goroutine that
// emits events, matching spec §4.K's "emits a sequence of lifecycle
// events" without making event delivery part of the critical path.
type eventSink struct {
	ch chan Event
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan Event, 64)}
}

func (s *eventSink) emit(e Event) {
	select {
	case s.ch <- e:
	default:
		// Observer isn't keeping up; drop the oldest rather than block
		// the mount's lifecycle goroutine on a slow or absent reader.
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}

// Events returns the channel of lifecycle events. It is closed once the
// mount (or host) has fully stopped and its final Stopped or ErrorEvent
// has been delivered.
func (s *eventSink) Events() <-chan Event {
	return s.ch
}

func (s *eventSink) close() {
	close(s.ch)
}
