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
	"sync"
	"sync/atomic"
	"time"
)

// slotBuckets shards the table so one connection's churn never serializes
// against another's dispatch lookups.
const slotBuckets = 16

// Slot is the server-side bookkeeping record for one connection. Slots are
// referenced by id through the manager; nothing holds a back-pointer to it.
type Slot struct {
	ID        uint32
	PeerPID   uint32
	CreatedAt time.Time
	Conn      *Conn

	state atomic.Int32
}

// State returns the slot's lifecycle state.
func (s *Slot) State() SlotState { return SlotState(s.state.Load()) }

// Activate marks the slot Active once both doorbells are confirmed.
func (s *Slot) Activate() { s.state.Store(int32(SlotActive)) }

// Drain moves an Active slot to Draining; writes stop, reads finish.
func (s *Slot) Drain() {
	if s.state.CompareAndSwap(int32(SlotActive), int32(SlotDraining)) {
		s.Conn.Drain()
	}
}

// LastActivity reports the newest traffic timestamp on the slot's connection.
func (s *Slot) LastActivity() time.Time { return s.Conn.LastActivity() }

// SlotManager is the concurrent table of active connections, keyed by slot
// id with O(1) lookup. One instance is owned by the listener and shared by
// reference with the dispatch layer; there is no ambient global table.
type SlotManager struct {
	maxConns int
	count    atomic.Int32
	nextID   atomic.Uint32

	buckets [slotBuckets]struct {
		mu    sync.RWMutex
		slots map[uint32]*Slot
	}
}

// NewSlotManager returns an empty table enforcing the given connection limit.
func NewSlotManager(maxConns int) *SlotManager {
	m := &SlotManager{maxConns: maxConns}
	for i := range m.buckets {
		m.buckets[i].slots = make(map[uint32]*Slot)
	}
	return m
}

func (m *SlotManager) bucket(id uint32) *struct {
	mu    sync.RWMutex
	slots map[uint32]*Slot
} {
	return &m.buckets[id%slotBuckets]
}

// Reserve allocates the next slot id, or fails with ErrResourceExhausted when
// the table is at its limit. The reservation must be finalized with Put or
// released with Release, so an aborted handshake never leaks capacity.
func (m *SlotManager) Reserve() (uint32, error) {
	for {
		n := m.count.Load()
		if m.maxConns > 0 && int(n) >= m.maxConns {
			return 0, ErrResourceExhausted
		}
		if m.count.CompareAndSwap(n, n+1) {
			return m.nextID.Add(1), nil
		}
	}
}

// Release returns a reserved-but-never-published slot's capacity.
func (m *SlotManager) Release() {
	m.count.Add(-1)
}

// Put publishes a slot under its reserved id.
func (m *SlotManager) Put(s *Slot) {
	b := m.bucket(s.ID)
	b.mu.Lock()
	b.slots[s.ID] = s
	b.mu.Unlock()
}

// Get looks up a slot for dispatch.
func (m *SlotManager) Get(id uint32) (*Slot, bool) {
	b := m.bucket(id)
	b.mu.RLock()
	s, ok := b.slots[id]
	b.mu.RUnlock()
	return s, ok
}

// Remove tears a slot down: connection closed, segments unlinked, doorbells
// released. Idempotent, because teardown is triggered both by an explicit
// Disconnect frame and by independently detected peer death.
func (m *SlotManager) Remove(id uint32) {
	b := m.bucket(id)
	b.mu.Lock()
	s, ok := b.slots[id]
	if ok {
		delete(b.slots, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	if s.state.Swap(int32(SlotClosed)) == int32(SlotClosed) {
		return
	}
	s.Conn.Close()
	m.count.Add(-1)
}

// Count returns the number of live slots (including reservations mid-handshake).
func (m *SlotManager) Count() int {
	return int(m.count.Load())
}

// Range calls fn for every published slot until fn returns false. Lookups on
// other buckets proceed concurrently.
func (m *SlotManager) Range(fn func(*Slot) bool) {
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.RLock()
		for _, s := range b.slots {
			if !fn(s) {
				b.mu.RUnlock()
				return
			}
		}
		b.mu.RUnlock()
	}
}

// Snapshots collects the metrics of every published slot.
func (m *SlotManager) Snapshots() []MetricsSnapshot {
	var out []MetricsSnapshot
	m.Range(func(s *Slot) bool {
		snap := s.Conn.Metrics()
		snap.State = s.State().String()
		out = append(out, snap)
		return true
	})
	return out
}
