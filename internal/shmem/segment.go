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

// Package shmem manages the named shared-memory segments backing the
// per-connection rings. Each connection uses two segments, one per direction,
// named deterministically so orphans from a crashed peer can be identified
// and removed.
package shmem

import (
	"fmt"
	"sync/atomic"
	"unsafe"
)

// Memory layout constants.
const (
	// SegmentMagic identifies a segment created by this transport.
	SegmentMagic = "IPCBSHM\x00"

	// SegmentVersion is the shared-memory layout version.
	SegmentVersion = uint32(1)

	// SegmentHeaderSize is the fixed header at offset 0.
	SegmentHeaderSize = 64

	// RingHeaderSize holds the two ring cursors, each on its own cache line
	// so producer and consumer updates never share one.
	RingHeaderSize = 128

	// MinRingCapacity and MaxRingCapacity bound a client's requested ring
	// size; DefaultRingCapacity is used when the client requests zero.
	MinRingCapacity     = 4 * 1024
	DefaultRingCapacity = 64 * 1024
	MaxRingCapacity     = 16 * 1024 * 1024
)

// Direction names one half-duplex channel, from the server's perspective.
type Direction string

const (
	DirSend Direction = "send" // server -> client
	DirRecv Direction = "recv" // client -> server
)

// SegmentName derives the deterministic segment name for one direction of one
// connection slot: <rendezvous-name>_<slot_id>_<send|recv>.
func SegmentName(rendezvous string, slotID uint32, dir Direction) string {
	return fmt.Sprintf("%s_%d_%s", rendezvous, slotID, dir)
}

// SegmentHeader sits at offset 0 of every segment. Fields are accessed
// atomically; both processes see the same physical memory.
type SegmentHeader struct {
	magic       [8]byte // 0x00: "IPCBSHM\0"
	version     uint32  // 0x08: layout version
	flags       uint32  // 0x0C: reserved
	capacity    uint64  // 0x10: ring data capacity (power of two)
	totalSize   uint64  // 0x18: total segment size
	serverPID   uint32  // 0x20
	clientPID   uint32  // 0x24
	serverReady uint32  // 0x28
	clientReady uint32  // 0x2C
	closed      uint32  // 0x30
	pad         uint32  // 0x34
	reserved    [8]byte // 0x38-0x3F
}

func (h *SegmentHeader) Magic() [8]byte         { return h.magic }
func (h *SegmentHeader) SetMagic(m [8]byte)     { h.magic = m }
func (h *SegmentHeader) Version() uint32        { return atomic.LoadUint32(&h.version) }
func (h *SegmentHeader) SetVersion(v uint32)    { atomic.StoreUint32(&h.version, v) }
func (h *SegmentHeader) Capacity() uint64       { return atomic.LoadUint64(&h.capacity) }
func (h *SegmentHeader) SetCapacity(c uint64)   { atomic.StoreUint64(&h.capacity, c) }
func (h *SegmentHeader) TotalSize() uint64      { return atomic.LoadUint64(&h.totalSize) }
func (h *SegmentHeader) SetTotalSize(s uint64)  { atomic.StoreUint64(&h.totalSize, s) }
func (h *SegmentHeader) ServerPID() uint32      { return atomic.LoadUint32(&h.serverPID) }
func (h *SegmentHeader) SetServerPID(p uint32)  { atomic.StoreUint32(&h.serverPID, p) }
func (h *SegmentHeader) ClientPID() uint32      { return atomic.LoadUint32(&h.clientPID) }
func (h *SegmentHeader) SetClientPID(p uint32)  { atomic.StoreUint32(&h.clientPID, p) }
func (h *SegmentHeader) ServerReady() bool      { return atomic.LoadUint32(&h.serverReady) != 0 }
func (h *SegmentHeader) SetServerReady(r bool)  { atomic.StoreUint32(&h.serverReady, b2u(r)) }
func (h *SegmentHeader) ClientReady() bool      { return atomic.LoadUint32(&h.clientReady) != 0 }
func (h *SegmentHeader) SetClientReady(r bool)  { atomic.StoreUint32(&h.clientReady, b2u(r)) }
func (h *SegmentHeader) Closed() bool           { return atomic.LoadUint32(&h.closed) != 0 }
func (h *SegmentHeader) SetClosed(closed bool)  { atomic.StoreUint32(&h.closed, b2u(closed)) }

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// RingHeader follows the segment header. Each cursor owns a full cache line:
// the producer writes widx, the consumer writes ridx, and neither resets.
// offset = cursor & (capacity-1); used = widx - ridx, always <= capacity.
type RingHeader struct {
	widx uint64 // 0x00: monotonic write cursor (producer-owned)
	_    [56]byte
	ridx uint64 // 0x40: monotonic read cursor (consumer-owned)
	_    [56]byte
}

func (r *RingHeader) WriteCursor() uint64     { return atomic.LoadUint64(&r.widx) }
func (r *RingHeader) SetWriteCursor(v uint64) { atomic.StoreUint64(&r.widx, v) }
func (r *RingHeader) ReadCursor() uint64      { return atomic.LoadUint64(&r.ridx) }
func (r *RingHeader) SetReadCursor(v uint64)  { atomic.StoreUint64(&r.ridx, v) }

// Used returns the number of unread bytes in the ring.
func (r *RingHeader) Used() uint64 {
	return atomic.LoadUint64(&r.widx) - atomic.LoadUint64(&r.ridx)
}

// IsPowerOfTwo reports whether n is a power of two.
func IsPowerOfTwo(n uint64) bool {
	return n > 0 && n&(n-1) == 0
}

// NextPowerOfTwo returns the smallest power of two >= n.
func NextPowerOfTwo(n uint64) uint64 {
	if n == 0 {
		return 1
	}
	if IsPowerOfTwo(n) {
		return n
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// ClampCapacity maps a client's requested ring size into the allowed range and
// rounds it up to a power of two. Zero selects the default.
func ClampCapacity(requested uint64) uint64 {
	if requested == 0 {
		requested = DefaultRingCapacity
	}
	if requested < MinRingCapacity {
		requested = MinRingCapacity
	}
	if requested > MaxRingCapacity {
		requested = MaxRingCapacity
	}
	return NextPowerOfTwo(requested)
}

// SegmentSize returns the total byte size for a segment with the given ring
// capacity.
func SegmentSize(capacity uint64) uint64 {
	return SegmentHeaderSize + RingHeaderSize + capacity
}

// ValidateHeader checks a freshly mapped segment before any ring traffic.
func ValidateHeader(h *SegmentHeader, fileSize uint64) error {
	var want [8]byte
	copy(want[:], SegmentMagic)
	if h.Magic() != want {
		return fmt.Errorf("shmem: bad segment magic %q", h.Magic())
	}
	if v := h.Version(); v != SegmentVersion {
		return fmt.Errorf("shmem: unsupported segment version %d (want %d)", v, SegmentVersion)
	}
	capacity := h.Capacity()
	if !IsPowerOfTwo(capacity) {
		return fmt.Errorf("shmem: capacity %d is not a power of two", capacity)
	}
	if capacity < MinRingCapacity {
		return fmt.Errorf("shmem: capacity %d below minimum %d", capacity, MinRingCapacity)
	}
	if want := SegmentSize(capacity); h.TotalSize() != want || fileSize < want {
		return fmt.Errorf("shmem: size mismatch: header total %d, layout %d, file %d",
			h.TotalSize(), want, fileSize)
	}
	return nil
}

// header returns the typed header view of a mapped region.
func header(mem []byte) *SegmentHeader {
	return (*SegmentHeader)(unsafe.Pointer(&mem[0]))
}

// ring returns the typed ring-header view of a mapped region.
func ring(mem []byte) *RingHeader {
	return (*RingHeader)(unsafe.Pointer(&mem[SegmentHeaderSize]))
}
