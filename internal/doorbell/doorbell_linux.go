//go:build linux

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

package doorbell

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// eventfdDoorbell implements Doorbell over a Linux eventfd. The same kernel
// object is shared with the peer process after the fd is passed over the
// control channel, so a signal on either copy wakes the other side.
type eventfdDoorbell struct {
	fd     int
	closed atomic.Bool
}

// New creates a doorbell backed by a fresh eventfd.
func New() (Doorbell, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("doorbell: eventfd: %w", err)
	}
	return &eventfdDoorbell{fd: fd}, nil
}

// FromFd wraps an eventfd handle received from the peer during handshake.
// The doorbell takes ownership of fd.
func FromFd(fd int) (Doorbell, error) {
	if fd < 0 {
		return nil, fmt.Errorf("doorbell: invalid fd %d", fd)
	}
	// The received descriptor inherits the sender's flags only partially;
	// force non-blocking so a Signal burst never stalls the signaler.
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("doorbell: set nonblock: %w", err)
	}
	return &eventfdDoorbell{fd: fd}, nil
}

func (d *eventfdDoorbell) Signal() error {
	if d.closed.Load() {
		return ErrClosed
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	for {
		_, err := unix.Write(d.fd, buf[:])
		switch err {
		case nil:
			return nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			// Counter saturated; the pending wake is already observable.
			return nil
		case unix.EBADF:
			return ErrClosed
		default:
			return fmt.Errorf("doorbell: signal: %w", err)
		}
	}
}

func (d *eventfdDoorbell) Wait(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if d.closed.Load() {
			return ErrClosed
		}

		ms := -1
		if timeout >= 0 {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return ErrTimedOut
			}
			ms = int(remaining.Milliseconds())
			if ms == 0 {
				ms = 1
			}
		}

		fds := []unix.PollFd{{Fd: int32(d.fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("doorbell: poll: %w", err)
		}
		if n == 0 {
			return ErrTimedOut
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return ErrClosed
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		// Drain the counter so stale signals collapse into one wake.
		var buf [8]byte
		if _, err := unix.Read(d.fd, buf[:]); err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				// Lost a race with another drain; treat as woken.
				return nil
			}
			if err == unix.EBADF {
				return ErrClosed
			}
			return fmt.Errorf("doorbell: drain: %w", err)
		}
		return nil
	}
}

func (d *eventfdDoorbell) Fd() int {
	return d.fd
}

func (d *eventfdDoorbell) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(d.fd)
}
