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

// Package doorbell wraps the per-platform wake primitive used instead of
// busy-polling on the shared-memory rings. Callers see only Signal and Wait;
// the underlying object (eventfd on Linux) is an implementation detail, except
// that its handle can be exported for transfer to the peer during handshake.
//
// Wait may return spuriously: a signal raised while the waiter was not asleep
// is retained and consumed by the next Wait. Callers must re-check their
// logical condition after every wake.
package doorbell

import (
	"errors"
	"time"
)

var (
	// ErrTimedOut is returned by Wait when the timeout elapses first.
	ErrTimedOut = errors.New("doorbell: wait timed out")

	// ErrClosed is returned once the doorbell handle has been closed,
	// locally or by peer death tearing down the shared object.
	ErrClosed = errors.New("doorbell: closed")

	// ErrNotSupported is returned on platforms without a wake primitive
	// implementation.
	ErrNotSupported = errors.New("doorbell: not supported on this platform")
)

// Doorbell is the two-method wake contract. Implementations are safe for one
// signaler and one waiter running concurrently.
type Doorbell interface {
	// Signal wakes a blocked waiter. Signaling with no waiter present is
	// cheap and not lost: the next Wait returns immediately.
	Signal() error

	// Wait blocks until signaled or until timeout elapses, in which case it
	// returns ErrTimedOut. A negative timeout blocks indefinitely.
	Wait(timeout time.Duration) error

	// Fd exposes the OS handle for transfer during handshake. The handle is
	// never sent in steady state.
	Fd() int

	Close() error
}
