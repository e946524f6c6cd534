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

package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ProtocolVersion is negotiated during handshake; incompatible clients are
// rejected with RejectVersionMismatch.
const ProtocolVersion = uint32(1)

// Reject codes carried by a TypeError frame answering a handshake.
type RejectCode uint16

const (
	RejectVersionMismatch   RejectCode = 1
	RejectResourceExhausted RejectCode = 2
	RejectInternal          RejectCode = 3
)

// Err maps a reject code to the transport error taxonomy.
func (c RejectCode) Err() error {
	switch c {
	case RejectVersionMismatch:
		return ErrVersionMismatch
	case RejectResourceExhausted:
		return ErrResourceExhausted
	default:
		return fmt.Errorf("transport: handshake rejected (code %d)", c)
	}
}

// HandshakeRequest is the client's opening message on the control channel.
type HandshakeRequest struct {
	ProtocolVersion     uint32
	ClientPID           uint32
	RequestedBufferSize uint32
}

// HandshakeResponse provisions the client: slot identity, the clamped ring
// size, and the names of the two shared-memory segments to map. The four
// doorbell handles (data and space, per ring) travel out-of-band with this
// message.
type HandshakeResponse struct {
	SlotID      uint32
	BufferSize  uint32
	SendSegment string // server -> client ring
	RecvSegment string // client -> server ring
}

func encodeHandshakeRequest(r HandshakeRequest) []byte {
	out := make([]byte, 12)
	binary.LittleEndian.PutUint32(out[0:4], r.ProtocolVersion)
	binary.LittleEndian.PutUint32(out[4:8], r.ClientPID)
	binary.LittleEndian.PutUint32(out[8:12], r.RequestedBufferSize)
	return out
}

func decodeHandshakeRequest(b []byte) (HandshakeRequest, error) {
	var r HandshakeRequest
	if len(b) < 12 {
		return r, errors.New("transport: handshake request too short")
	}
	r.ProtocolVersion = binary.LittleEndian.Uint32(b[0:4])
	r.ClientPID = binary.LittleEndian.Uint32(b[4:8])
	r.RequestedBufferSize = binary.LittleEndian.Uint32(b[8:12])
	return r, nil
}

func encodeHandshakeResponse(r HandshakeResponse) []byte {
	size := 4 + 4 + 2 + len(r.SendSegment) + 2 + len(r.RecvSegment)
	out := make([]byte, size)
	i := 0
	binary.LittleEndian.PutUint32(out[i:i+4], r.SlotID)
	i += 4
	binary.LittleEndian.PutUint32(out[i:i+4], r.BufferSize)
	i += 4
	binary.LittleEndian.PutUint16(out[i:i+2], uint16(len(r.SendSegment)))
	i += 2
	copy(out[i:], r.SendSegment)
	i += len(r.SendSegment)
	binary.LittleEndian.PutUint16(out[i:i+2], uint16(len(r.RecvSegment)))
	i += 2
	copy(out[i:], r.RecvSegment)
	return out
}

func decodeHandshakeResponse(b []byte) (HandshakeResponse, error) {
	var r HandshakeResponse
	if len(b) < 10 {
		return r, errors.New("transport: handshake response too short")
	}
	i := 0
	r.SlotID = binary.LittleEndian.Uint32(b[i : i+4])
	i += 4
	r.BufferSize = binary.LittleEndian.Uint32(b[i : i+4])
	i += 4
	sendLen := int(binary.LittleEndian.Uint16(b[i : i+2]))
	i += 2
	if len(b[i:]) < sendLen+2 {
		return r, errors.New("transport: handshake response send segment truncated")
	}
	r.SendSegment = string(b[i : i+sendLen])
	i += sendLen
	recvLen := int(binary.LittleEndian.Uint16(b[i : i+2]))
	i += 2
	if len(b[i:]) < recvLen {
		return r, errors.New("transport: handshake response recv segment truncated")
	}
	r.RecvSegment = string(b[i : i+recvLen])
	return r, nil
}

func encodeReject(code RejectCode, msg string) []byte {
	out := make([]byte, 2+2+len(msg))
	binary.LittleEndian.PutUint16(out[0:2], uint16(code))
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(msg)))
	copy(out[4:], msg)
	return out
}

func decodeReject(b []byte) (RejectCode, string, error) {
	if len(b) < 4 {
		return 0, "", errors.New("transport: reject payload too short")
	}
	code := RejectCode(binary.LittleEndian.Uint16(b[0:2]))
	msgLen := int(binary.LittleEndian.Uint16(b[2:4]))
	if len(b[4:]) < msgLen {
		return 0, "", errors.New("transport: reject message truncated")
	}
	return code, string(b[4 : 4+msgLen]), nil
}
