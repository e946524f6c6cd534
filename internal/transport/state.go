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

// SlotState is the lifecycle of one server-side connection slot.
type SlotState int32

const (
	// SlotHandshaking: resources allocated, doorbells not yet confirmed.
	SlotHandshaking SlotState = iota
	// SlotActive: both sides ready, steady-state traffic allowed.
	SlotActive
	// SlotDraining: no new writes accepted, in-flight reads finish.
	SlotDraining
	// SlotClosed: resources unlinked.
	SlotClosed
)

func (s SlotState) String() string {
	switch s {
	case SlotHandshaking:
		return "handshaking"
	case SlotActive:
		return "active"
	case SlotDraining:
		return "draining"
	case SlotClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnState is the client-observable connection state.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateConnected
	StateDisconnected
	StateReconnecting
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
