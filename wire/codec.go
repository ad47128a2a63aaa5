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

package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// MaxMessageSize is the largest encoded payload (not counting the frame
// header) this implementation will read or write. A ReadChunkResponse at
// the maximum chunk size plus CBOR overhead fits comfortably under it.
const MaxMessageSize = 1 << 20 // 1 MiB

// MaxPathLen is the longest path, in bytes, accepted in any message.
const MaxPathLen = 4096

// MaxNameLen is the longest single path component, in bytes, accepted in
// any message.
const MaxNameLen = 255

// frameHeaderSize is the length, in bytes, of the fixed frame header:
// a Kind byte followed by a big-endian uint32 payload length.
const frameHeaderSize = 1 + 4

var encMode = func() cbor.EncMode {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

var decMode = func() cbor.DecMode {
	opts := cbor.DecOptions{MaxArrayElements: 1 << 20, MaxMapPairs: 1 << 20}
	mode, err := opts.DecMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Envelope pairs a message Kind with its still-encoded payload. Decode
// dispatches on Kind to know which concrete type to unmarshal Payload
// into; this lets a stream reader peek the Kind without committing to a
// payload type up front.
type Envelope struct {
	Kind    Kind
	Payload []byte
}

// Encode serializes v (one of the message payload types in message.go)
// under kind and writes its length-prefixed frame to w.
func Encode(w io.Writer, kind Kind, v any) error {
	payload, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: encode %s payload: %w", kind, err)
	}
	if len(payload) > MaxMessageSize {
		return NewError(MessageTooLarge, fmt.Sprintf("%s payload is %d bytes", kind, len(payload)))
	}
	header := make([]byte, frameHeaderSize)
	header[0] = byte(kind)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write frame payload: %w", err)
	}
	return nil
}

// ReadEnvelope reads one length-prefixed frame from r without decoding
// its payload, enforcing MaxMessageSize before allocating a buffer for
// it.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Envelope{}, err
	}
	kind := Kind(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxMessageSize {
		return Envelope{}, NewError(MessageTooLarge, fmt.Sprintf("frame declares %d bytes", length))
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Envelope{}, fmt.Errorf("wire: read frame payload: %w", err)
	}
	return Envelope{Kind: kind, Payload: payload}, nil
}

// Decode unmarshals an envelope's payload into v, which must be a
// pointer to the concrete type associated with env.Kind.
func Decode(env Envelope, v any) error {
	if err := decMode.Unmarshal(env.Payload, v); err != nil {
		return NewError(MalformedMessage, err.Error())
	}
	return nil
}

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "Hello"
	case KindHelloAck:
		return "HelloAck"
	case KindListDirRequest:
		return "ListDirRequest"
	case KindListDirResponse:
		return "ListDirResponse"
	case KindGetAttrRequest:
		return "GetAttrRequest"
	case KindGetAttrResponse:
		return "GetAttrResponse"
	case KindReadChunkRequest:
		return "ReadChunkRequest"
	case KindReadChunkResponse:
		return "ReadChunkResponse"
	case KindInvalidate:
		return "Invalidate"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	case KindGoodbye:
		return "Goodbye"
	case KindErrorResponse:
		return "ErrorResponse"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}
