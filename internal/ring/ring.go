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

// Package ring implements the single-producer/single-consumer byte channel
// over a shared-memory segment. Operations never block; waiting on the
// doorbell is the flow-control layer's job.
package ring

import (
	"errors"

	"github.com/not-vinayakverma71/ipcbridge/internal/shmem"
)

var (
	// ErrWouldBlock is returned by TryWrite when free space is insufficient.
	// Expected under backpressure, not a failure.
	ErrWouldBlock = errors.New("ring: would block")

	// ErrClosed is returned once the segment's closed flag is set.
	ErrClosed = errors.New("ring: closed")

	// ErrTooLarge is returned for writes that can never fit the ring.
	ErrTooLarge = errors.New("ring: write larger than capacity")
)

// Ring is one direction's byte channel. Exactly one goroutine may write and
// exactly one may read; full duplex uses two independent rings.
type Ring struct {
	seg      *shmem.SegmentHeader
	hdr      *shmem.RingHeader
	data     []byte
	capacity uint64
	mask     uint64
}

// New wraps the ring stored in seg. Multiple Ring values over the same
// segment see the same cursors.
func New(seg *shmem.Segment) *Ring {
	capacity := seg.Capacity()
	return &Ring{
		seg:      seg.Header(),
		hdr:      seg.Ring(),
		data:     seg.Data(),
		capacity: capacity,
		mask:     capacity - 1,
	}
}

// Capacity returns the ring capacity in bytes.
func (r *Ring) Capacity() uint64 { return r.capacity }

// Used returns the number of unread bytes.
func (r *Ring) Used() uint64 { return r.hdr.Used() }

// Free returns the number of writable bytes.
func (r *Ring) Free() uint64 { return r.capacity - r.hdr.Used() }

// Closed reports whether either side has marked the segment closed.
func (r *Ring) Closed() bool { return r.seg.Closed() }

// Close sets the segment closed flag; both sides observe it.
func (r *Ring) Close() { r.seg.SetClosed(true) }

// TryWrite copies p into the ring as one unit, or writes nothing. A frame is
// never split across two TryWrite calls, so the reader never observes a
// frame torn at the wrap point: the wrap is handled inside the single write
// with two copies.
func (r *Ring) TryWrite(p []byte) error {
	if r.seg.Closed() {
		return ErrClosed
	}
	n := uint64(len(p))
	if n == 0 {
		return nil
	}
	if n > r.capacity {
		return ErrTooLarge
	}

	w := r.hdr.WriteCursor()
	used := w - r.hdr.ReadCursor()
	if n > r.capacity-used {
		return ErrWouldBlock
	}

	pos := w & r.mask
	if pos+n <= r.capacity {
		copy(r.data[pos:pos+n], p)
	} else {
		first := r.capacity - pos
		copy(r.data[pos:], p[:first])
		copy(r.data, p[first:])
	}
	// Publish after the payload copy; the store carries release semantics
	// through sync/atomic, so the reader never sees the cursor ahead of the
	// bytes.
	r.hdr.SetWriteCursor(w + n)
	return nil
}

// Read copies up to len(p) readable bytes into p and returns the count. An
// empty ring returns (0, nil) while open and (0, ErrClosed) once the peer has
// closed and all data is drained.
func (r *Ring) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	rd := r.hdr.ReadCursor()
	avail := r.hdr.WriteCursor() - rd
	if avail == 0 {
		if r.seg.Closed() {
			return 0, ErrClosed
		}
		return 0, nil
	}

	n := uint64(len(p))
	if n > avail {
		n = avail
	}
	pos := rd & r.mask
	if pos+n <= r.capacity {
		copy(p, r.data[pos:pos+n])
	} else {
		first := r.capacity - pos
		copy(p, r.data[pos:])
		copy(p[first:], r.data[:n-first])
	}
	r.hdr.SetReadCursor(rd + n)
	return int(n), nil
}
