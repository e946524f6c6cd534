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

package codec

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching; the typed errors below wrap them.
var (
	ErrNeedMore         = errors.New("codec: need more data")
	ErrMalformed        = errors.New("codec: malformed frame")
	ErrChecksumMismatch = errors.New("codec: checksum mismatch")
	ErrUnknownType      = errors.New("codec: unknown message type")
	ErrSequenceGap      = errors.New("codec: sequence gap")
)

// NeedMoreError reports an incomplete frame. N is the minimum number of
// additional bytes required before Decode can make progress.
type NeedMoreError struct {
	N int
}

func (e *NeedMoreError) Error() string { return fmt.Sprintf("codec: need %d more bytes", e.N) }
func (e *NeedMoreError) Unwrap() error { return ErrNeedMore }

// MalformedError reports a declared payload length beyond the configured cap.
type MalformedError struct {
	Length uint32
	Max    uint32
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("codec: declared length %d exceeds max %d", e.Length, e.Max)
}
func (e *MalformedError) Unwrap() error { return ErrMalformed }

// ChecksumError reports a CRC failure on a frame payload.
type ChecksumError struct {
	Sequence uint64
	Want     uint32
	Got      uint32
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("codec: checksum mismatch at seq %d: header %#08x, payload %#08x",
		e.Sequence, e.Want, e.Got)
}
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// UnknownTypeError reports a message type absent from the dispatch table.
type UnknownTypeError struct {
	Type     MessageType
	Sequence uint64
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("codec: unknown message type %#04x at seq %d", uint16(e.Type), e.Sequence)
}
func (e *UnknownTypeError) Unwrap() error { return ErrUnknownType }

// SequenceError reports a duplicate or out-of-order frame.
type SequenceError struct {
	Want uint64
	Got  uint64
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("codec: sequence gap: want %d, got %d", e.Want, e.Got)
}
func (e *SequenceError) Unwrap() error { return ErrSequenceGap }
