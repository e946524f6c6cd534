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

import "sync/atomic"

// SlotMetrics holds one connection's counters. Everything is a plain atomic
// so the hot path never takes a lock or touches a registry; exporters consume
// Snapshot copies.
type SlotMetrics struct {
	BytesIn            atomic.Uint64
	BytesOut           atomic.Uint64
	FramesIn           atomic.Uint64
	FramesOut          atomic.Uint64
	DoorbellWaits      atomic.Uint64
	BackpressureDrops  atomic.Uint64
	BackpressureErrors atomic.Uint64
	ReconnectAttempts  atomic.Uint64
}

// MetricsSnapshot is a read-only copy of SlotMetrics plus the instantaneous
// ring fill levels, suitable for JSON export.
type MetricsSnapshot struct {
	SlotID             uint32 `json:"slot_id"`
	ConnID             string `json:"conn_id"`
	State              string `json:"state"`
	BytesIn            uint64 `json:"bytes_in"`
	BytesOut           uint64 `json:"bytes_out"`
	FramesIn           uint64 `json:"frames_in"`
	FramesOut          uint64 `json:"frames_out"`
	SendFill           uint64 `json:"send_fill"`
	RecvFill           uint64 `json:"recv_fill"`
	RingCapacity       uint64 `json:"ring_capacity"`
	DoorbellWaits      uint64 `json:"doorbell_waits"`
	BackpressureDrops  uint64 `json:"backpressure_drops"`
	BackpressureErrors uint64 `json:"backpressure_errors"`
	ReconnectAttempts  uint64 `json:"reconnect_attempts"`
}

func (m *SlotMetrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		BytesIn:            m.BytesIn.Load(),
		BytesOut:           m.BytesOut.Load(),
		FramesIn:           m.FramesIn.Load(),
		FramesOut:          m.FramesOut.Load(),
		DoorbellWaits:      m.DoorbellWaits.Load(),
		BackpressureDrops:  m.BackpressureDrops.Load(),
		BackpressureErrors: m.BackpressureErrors.Load(),
		ReconnectAttempts:  m.ReconnectAttempts.Load(),
	}
}
