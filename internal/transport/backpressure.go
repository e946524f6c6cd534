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
	"errors"
	"sync"
	"time"

	"github.com/not-vinayakverma71/ipcbridge/internal/doorbell"
	"github.com/not-vinayakverma71/ipcbridge/internal/ring"
)

// BackpressurePolicy selects what happens to a frame once the backpressure
// timeout is exceeded.
type BackpressurePolicy string

const (
	// PolicyError surfaces ErrBackpressureTimeout to the caller.
	PolicyError BackpressurePolicy = "error"
	// PolicyDrop discards the frame and counts it.
	PolicyDrop BackpressurePolicy = "drop"
	// PolicyQueue retains the frame in a bounded local queue, flushed ahead
	// of subsequent writes; a full queue surfaces ErrQueueFull.
	PolicyQueue BackpressurePolicy = "queue"
)

// BackpressureConfig tunes the flow controller of one connection.
type BackpressureConfig struct {
	Timeout    time.Duration
	Policy     BackpressurePolicy
	QueueLimit int
}

// DefaultBackpressureConfig mirrors the documented defaults.
func DefaultBackpressureConfig() BackpressureConfig {
	return BackpressureConfig{
		Timeout:    5 * time.Second,
		Policy:     PolicyError,
		QueueLimit: 64,
	}
}

// flowController owns the two-party flow-control mechanics for one direction:
// writes that hit a full ring wait (bounded) on the ring's space doorbell,
// which the reader signals after every drain. It carries no retry policy.
type flowController struct {
	cfg     BackpressureConfig
	ring    *ring.Ring
	bells   ringBells
	metrics *SlotMetrics

	mu    sync.Mutex
	queue [][]byte // frames deferred under PolicyQueue, FIFO
}

func newFlowController(cfg BackpressureConfig, r *ring.Ring, bells ringBells, m *SlotMetrics) *flowController {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultBackpressureConfig().Timeout
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyError
	}
	if cfg.QueueLimit <= 0 {
		cfg.QueueLimit = DefaultBackpressureConfig().QueueLimit
	}
	return &flowController{cfg: cfg, ring: r, bells: bells, metrics: m}
}

// Write pushes one encoded frame into the ring, preserving FIFO order with
// any frames deferred by PolicyQueue. The frame buffer may be reused by the
// caller once Write returns.
func (f *flowController) Write(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.flushLocked(); err != nil {
		// Queue still blocked: the new frame goes behind it or fails with it.
		return f.overflowLocked(frame, err)
	}
	err := f.writeWithWaitLocked(frame)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrBackpressureTimeout) {
		return f.overflowLocked(frame, err)
	}
	return err
}

// Flush retries any frames deferred under PolicyQueue without submitting new
// data.
func (f *flowController) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushLocked()
}

// QueuedFrames reports the local overflow queue depth.
func (f *flowController) QueuedFrames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

func (f *flowController) flushLocked() error {
	for len(f.queue) > 0 {
		if err := f.writeWithWaitLocked(f.queue[0]); err != nil {
			return err
		}
		f.queue[0] = nil
		f.queue = f.queue[1:]
	}
	return nil
}

// writeWithWaitLocked is the wait-retry loop: try, sleep on the space
// doorbell, re-check. Spurious wakes just re-enter TryWrite. Waiting happens
// only on the space line, so the reader's pending data wake stays intact.
func (f *flowController) writeWithWaitLocked(frame []byte) error {
	deadline := time.Now().Add(f.cfg.Timeout)
	for {
		err := f.ring.TryWrite(frame)
		if err == nil {
			// Data-available edge for the reader.
			f.bells.data.Signal()
			return nil
		}
		if !errors.Is(err, ring.ErrWouldBlock) {
			if errors.Is(err, ring.ErrClosed) {
				return ErrPeerClosed
			}
			return err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrBackpressureTimeout
		}
		f.metrics.DoorbellWaits.Add(1)
		switch werr := f.bells.space.Wait(remaining); werr {
		case nil, doorbell.ErrTimedOut:
			// Timed-out waits still re-check once; the deadline guard above
			// terminates the loop.
		case doorbell.ErrClosed:
			return ErrPeerClosed
		default:
			return werr
		}
	}
}

func (f *flowController) overflowLocked(frame []byte, cause error) error {
	switch f.cfg.Policy {
	case PolicyDrop:
		f.metrics.BackpressureDrops.Add(1)
		return nil
	case PolicyQueue:
		if len(f.queue) >= f.cfg.QueueLimit {
			f.metrics.BackpressureErrors.Add(1)
			return ErrQueueFull
		}
		owned := make([]byte, len(frame))
		copy(owned, frame)
		f.queue = append(f.queue, owned)
		return nil
	default: // PolicyError
		f.metrics.BackpressureErrors.Add(1)
		return cause
	}
}
