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

import "errors"

// Error taxonomy. Protocol errors are fatal to the message or connection;
// resource errors are fatal to establishment and surfaced for the caller's
// retry decision; flow-control conditions are expected and recoverable; peer
// loss triggers teardown and, client-side, reconnection.
var (
	// Resource errors.
	ErrBindFailed        = errors.New("transport: rendezvous endpoint unavailable")
	ErrResourceExhausted = errors.New("transport: max connections reached")

	// Protocol errors.
	ErrVersionMismatch = errors.New("transport: protocol version mismatch")

	// Flow-control conditions.
	ErrHandshakeTimeout    = errors.New("transport: handshake timed out")
	ErrRecvTimeout         = errors.New("transport: receive timed out")
	ErrBackpressureTimeout = errors.New("transport: backpressure timeout exceeded")
	ErrQueueFull           = errors.New("transport: local overflow queue full")

	// Peer loss and lifecycle.
	ErrPeerClosed    = errors.New("transport: peer closed the connection")
	ErrConnClosed    = errors.New("transport: connection closed")
	ErrDraining      = errors.New("transport: connection draining, writes rejected")
	ErrNotConnected  = errors.New("transport: not connected")
	ErrReconnecting  = errors.New("transport: reconnection in progress")
	ErrRetryExceeded = errors.New("transport: reconnection attempts exhausted")
)
