/*
 * Copyright 2026 The ipcbridge Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package codec implements the fixed-header binary framing used on both the
// control channel and the steady-state shared-memory rings.
//
// Wire header layout (24 bytes, little-endian, followed by Length payload bytes):
//
//	uint32 length    // payload length in bytes (excludes the header)
//	uint16 type      // MessageType
//	uint16 flags     // per-type flags
//	uint64 sequence  // monotonic per direction per connection
//	uint32 checksum  // CRC-32C (Castagnoli) over the payload
package codec

import (
	"encoding/binary"
	"hash/crc32"
	"sync/atomic"

	"github.com/bytedance/gopkg/lang/mcache"
)

// HeaderSize is the fixed frame header size in bytes.
const HeaderSize = 24

// DefaultMaxMessageSize caps a single frame payload (10MB).
const DefaultMaxMessageSize = 10 * 1024 * 1024

// MessageType identifies the frame payload on the wire.
type MessageType uint16

// Control-plane message types. Application protocols register their own types
// in the 0x0100+ range.
const (
	TypeError        MessageType = 0x0004
	TypeHeartbeat    MessageType = 0x0005
	TypeHandshake    MessageType = 0x0010
	TypeHandshakeAck MessageType = 0x0011
	TypeDisconnect   MessageType = 0x0012
)

// Frame flags.
const (
	FlagCompressed uint16 = 0x0001
	FlagStreaming  uint16 = 0x0004
	FlagPriority   uint16 = 0x0008
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Frame is one decoded message: header fields plus payload.
type Frame struct {
	Type     MessageType
	Flags    uint16
	Sequence uint64
	Payload  []byte
}

// Checksum computes the payload CRC the way the encoder does.
func Checksum(payload []byte) uint32 {
	return crc32.Checksum(payload, castagnoli)
}

// Encoder frames outgoing messages for one direction of one connection.
// It owns the direction's sequence counter; Encode may be called from
// multiple goroutines.
type Encoder struct {
	seq atomic.Uint64
}

// NewEncoder returns an Encoder whose first frame carries sequence 1.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Encode returns a complete wire frame (header + payload copy) carrying the
// next sequence number. The returned buffer comes from the mcache pool;
// release it with Free once written out.
func (e *Encoder) Encode(t MessageType, flags uint16, payload []byte) []byte {
	seq := e.seq.Add(1)
	buf := mcache.Malloc(HeaderSize + len(payload))
	putHeader(buf, uint32(len(payload)), t, flags, seq, Checksum(payload))
	copy(buf[HeaderSize:], payload)
	return buf
}

// Free returns a buffer obtained from Encode to the pool.
func Free(buf []byte) {
	mcache.Free(buf)
}

// LastSequence reports the sequence number of the most recently encoded frame.
func (e *Encoder) LastSequence() uint64 {
	return e.seq.Load()
}

func putHeader(b []byte, length uint32, t MessageType, flags uint16, seq uint64, sum uint32) {
	binary.LittleEndian.PutUint32(b[0:4], length)
	binary.LittleEndian.PutUint16(b[4:6], uint16(t))
	binary.LittleEndian.PutUint16(b[6:8], flags)
	binary.LittleEndian.PutUint64(b[8:16], seq)
	binary.LittleEndian.PutUint32(b[16:20], sum)
	binary.LittleEndian.PutUint32(b[20:24], 0) // reserved; keeps header at 24B
}

// Decoder parses frames from a streaming byte source for one direction of one
// connection. It is not safe for concurrent use; each receive loop owns its
// Decoder.
type Decoder struct {
	registry *Registry
	maxSize  uint32

	// Sequence tracking; zero value disables it.
	trackSeq bool
	lastSeq  uint64
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// WithMaxMessageSize overrides DefaultMaxMessageSize.
func WithMaxMessageSize(n uint32) DecoderOption {
	return func(d *Decoder) { d.maxSize = n }
}

// WithSequenceTracking makes Decode fail with a SequenceError when a frame's
// sequence number is not exactly lastSeq+1 (duplicate or gap).
func WithSequenceTracking() DecoderOption {
	return func(d *Decoder) { d.trackSeq = true }
}

// NewDecoder returns a Decoder validating message types against reg.
// A nil reg accepts every type.
func NewDecoder(reg *Registry, opts ...DecoderOption) *Decoder {
	d := &Decoder{registry: reg, maxSize: DefaultMaxMessageSize}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decode parses one frame from the front of b. On success it returns the
// frame and the number of bytes consumed; Frame.Payload aliases b and must be
// copied if retained past the next fill of b.
//
// When b holds less than a complete frame, Decode returns a NeedMoreError
// carrying the minimum number of additional bytes required; the caller reads
// more input and retries. All other errors are protocol violations, fatal to
// the connection.
func (d *Decoder) Decode(b []byte) (Frame, int, error) {
	if len(b) < HeaderSize {
		return Frame{}, 0, &NeedMoreError{N: HeaderSize - len(b)}
	}
	length := binary.LittleEndian.Uint32(b[0:4])
	if length > d.maxSize {
		return Frame{}, 0, &MalformedError{Length: length, Max: d.maxSize}
	}
	total := HeaderSize + int(length)
	if len(b) < total {
		return Frame{}, 0, &NeedMoreError{N: total - len(b)}
	}

	f := Frame{
		Type:     MessageType(binary.LittleEndian.Uint16(b[4:6])),
		Flags:    binary.LittleEndian.Uint16(b[6:8]),
		Sequence: binary.LittleEndian.Uint64(b[8:16]),
		Payload:  b[HeaderSize:total],
	}
	if sum := binary.LittleEndian.Uint32(b[16:20]); sum != Checksum(f.Payload) {
		return Frame{}, 0, &ChecksumError{Sequence: f.Sequence, Want: sum, Got: Checksum(f.Payload)}
	}
	if d.registry != nil && !d.registry.Known(f.Type) {
		return Frame{}, 0, &UnknownTypeError{Type: f.Type, Sequence: f.Sequence}
	}
	if d.trackSeq {
		if f.Sequence != d.lastSeq+1 {
			return Frame{}, 0, &SequenceError{Want: d.lastSeq + 1, Got: f.Sequence}
		}
		d.lastSeq = f.Sequence
	}
	return f, total, nil
}
