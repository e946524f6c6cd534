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
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/not-vinayakverma71/ipcbridge/internal/codec"
	"github.com/not-vinayakverma71/ipcbridge/internal/doorbell"
	"github.com/not-vinayakverma71/ipcbridge/internal/ring"
	"github.com/not-vinayakverma71/ipcbridge/internal/shmem"
)

// readChunk is how much Recv pulls from the ring per drain.
const readChunk = 32 * 1024

// ringBells is the pair of wake lines for one ring. The two edges are kept
// on separate eventfds: a writer waiting for space must never drain a wake
// meant for a reader waiting for data, or a blocked reader stays asleep with
// a full ring.
type ringBells struct {
	data  doorbell.Doorbell // writer signals after a write, reader waits when empty
	space doorbell.Doorbell // reader signals after a drain, writer waits when full
}

func (b ringBells) signalAll() {
	b.data.Signal()
	b.space.Signal()
}

func (b ringBells) close() {
	b.data.Close()
	b.space.Close()
}

// Conn is one end of an established duplex connection: two SPSC rings (one
// per direction), a doorbell pair per ring, and a framing codec per
// direction. Nothing is shared between the two half-duplex channels, so
// concurrent Send and Recv never contend.
//
// Send may be called from multiple goroutines; Recv must stay on a single
// goroutine (it owns the decoder and staging buffer).
type Conn struct {
	slotID   uint32
	connID   string
	isServer bool

	control *net.UnixConn
	ctlEnc  *codec.Encoder // control-channel framing, continues handshake sequence

	txSeg, rxSeg *shmem.Segment
	tx, rx       *ring.Ring
	txBells      ringBells
	rxBells      ringBells

	enc  *codec.Encoder
	dec  *codec.Decoder
	flow *flowController

	// Receive staging: bytes drained from the ring awaiting a full frame.
	pending      []byte
	pendingStart int
	rxBuf        []byte
	rxOffset     uint64 // total bytes consumed, for protocol-error reports

	metrics      *SlotMetrics
	lastActivity atomic.Int64
	log          zerolog.Logger

	draining  atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

type connParams struct {
	slotID   uint32
	connID   string
	isServer bool
	control  *net.UnixConn
	ctlEnc   *codec.Encoder
	txSeg    *shmem.Segment
	rxSeg    *shmem.Segment
	txBells  ringBells
	rxBells  ringBells
	bp       BackpressureConfig
	registry *codec.Registry
	log      zerolog.Logger
}

func newConn(p connParams) *Conn {
	c := &Conn{
		slotID:   p.slotID,
		connID:   p.connID,
		isServer: p.isServer,
		control:  p.control,
		ctlEnc:   p.ctlEnc,
		txSeg:    p.txSeg,
		rxSeg:    p.rxSeg,
		tx:       ring.New(p.txSeg),
		rx:       ring.New(p.rxSeg),
		txBells:  p.txBells,
		rxBells:  p.rxBells,
		enc:      codec.NewEncoder(),
		dec:      codec.NewDecoder(p.registry, codec.WithSequenceTracking()),
		rxBuf:    make([]byte, readChunk),
		metrics:  &SlotMetrics{},
		done:     make(chan struct{}),
		log:      p.log.With().Uint32("slot", p.slotID).Str("conn", p.connID).Logger(),
	}
	c.flow = newFlowController(p.bp, c.tx, c.txBells, c.metrics)
	c.lastActivity.Store(time.Now().UnixNano())
	return c
}

// SlotID returns the slot this connection occupies.
func (c *Conn) SlotID() uint32 { return c.slotID }

// ID returns the connection's log/trace identity.
func (c *Conn) ID() string { return c.connID }

// RingCapacity returns the per-direction ring size in bytes.
func (c *Conn) RingCapacity() uint64 { return c.tx.Capacity() }

// LastActivity reports when a frame last moved in either direction.
func (c *Conn) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

// Send frames payload and writes it to the outbound ring, waiting under
// backpressure up to the configured timeout. Delivery is FIFO within this
// direction; the assigned sequence number lets the peer verify it.
func (c *Conn) Send(t codec.MessageType, flags uint16, payload []byte) error {
	if c.closed.Load() {
		return ErrConnClosed
	}
	if c.draining.Load() {
		return ErrDraining
	}

	frame := c.enc.Encode(t, flags, payload)
	defer codec.Free(frame)

	if err := c.flow.Write(frame); err != nil {
		if errors.Is(err, ErrPeerClosed) && c.closed.Load() {
			return ErrConnClosed
		}
		return err
	}
	c.metrics.BytesOut.Add(uint64(len(frame)))
	c.metrics.FramesOut.Add(1)
	c.lastActivity.Store(time.Now().UnixNano())
	return nil
}

// Flush retries frames deferred under the queue backpressure policy.
func (c *Conn) Flush() error { return c.flow.Flush() }

// QueuedFrames reports how many frames the queue policy is holding locally.
func (c *Conn) QueuedFrames() int { return c.flow.QueuedFrames() }

// Recv returns the next inbound frame, blocking on the doorbell up to
// timeout (negative blocks indefinitely). The returned payload is an owned
// copy. Protocol violations (checksum, unknown type, sequence gap, malformed
// length) are fatal: they are logged with slot, sequence, and byte offset,
// and returned to the dispatch layer.
func (c *Conn) Recv(timeout time.Duration) (codec.Frame, error) {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		if frame, ok, err := c.decodePending(); err != nil {
			return codec.Frame{}, err
		} else if ok {
			return frame, nil
		}

		n, rerr := c.rx.Read(c.rxBuf)
		if n > 0 {
			c.stash(c.rxBuf[:n])
			// Space-freed edge for the peer's writer.
			c.rxBells.space.Signal()
			continue
		}
		if rerr != nil {
			if errors.Is(rerr, ring.ErrClosed) {
				if c.closed.Load() {
					return codec.Frame{}, ErrConnClosed
				}
				return codec.Frame{}, ErrPeerClosed
			}
			return codec.Frame{}, rerr
		}
		if c.closed.Load() {
			return codec.Frame{}, ErrConnClosed
		}

		wait := time.Duration(-1)
		if timeout >= 0 {
			wait = time.Until(deadline)
			if wait <= 0 {
				return codec.Frame{}, ErrRecvTimeout
			}
		}
		c.metrics.DoorbellWaits.Add(1)
		switch werr := c.rxBells.data.Wait(wait); werr {
		case nil, doorbell.ErrTimedOut:
			// Either way, re-check the ring; the deadline guard above ends
			// the loop on a true timeout.
		case doorbell.ErrClosed:
			if c.closed.Load() {
				return codec.Frame{}, ErrConnClosed
			}
			return codec.Frame{}, ErrPeerClosed
		default:
			return codec.Frame{}, werr
		}
	}
}

// decodePending tries to decode one frame from the staging buffer.
func (c *Conn) decodePending() (codec.Frame, bool, error) {
	buf := c.pending[c.pendingStart:]
	if len(buf) == 0 {
		return codec.Frame{}, false, nil
	}
	f, n, err := c.dec.Decode(buf)
	if err != nil {
		var need *codec.NeedMoreError
		if errors.As(err, &need) {
			return codec.Frame{}, false, nil
		}
		c.log.Error().
			Uint64("sequence", f.Sequence).
			Uint64("byte_offset", c.rxOffset).
			Err(err).
			Msg("protocol error on receive path")
		return codec.Frame{}, false, err
	}

	c.pendingStart += n
	c.rxOffset += uint64(n)
	if c.pendingStart == len(c.pending) {
		c.pending = c.pending[:0]
		c.pendingStart = 0
	}
	c.metrics.BytesIn.Add(uint64(n))
	c.metrics.FramesIn.Add(1)
	c.lastActivity.Store(time.Now().UnixNano())

	// The decoded payload aliases the staging buffer; hand out an owned copy.
	owned := make([]byte, len(f.Payload))
	copy(owned, f.Payload)
	f.Payload = owned
	return f, true, nil
}

// stash appends freshly drained bytes to the staging buffer, compacting any
// already-consumed prefix first.
func (c *Conn) stash(b []byte) {
	if c.pendingStart > 0 {
		remaining := copy(c.pending, c.pending[c.pendingStart:])
		c.pending = c.pending[:remaining]
		c.pendingStart = 0
	}
	c.pending = append(c.pending, b...)
}

// Metrics returns a point-in-time snapshot of this connection's counters.
func (c *Conn) Metrics() MetricsSnapshot {
	snap := c.metrics.snapshot()
	snap.SlotID = c.slotID
	snap.ConnID = c.connID
	snap.RingCapacity = c.tx.Capacity()
	snap.SendFill = c.tx.Used()
	snap.RecvFill = c.rx.Used()
	return snap
}

// Drain enters the first shutdown phase: new writes are rejected while
// in-flight reads continue. Close completes the teardown.
func (c *Conn) Drain() {
	c.draining.Store(true)
}

// Draining reports whether Drain has been called.
func (c *Conn) Draining() bool { return c.draining.Load() }

// Close tears the connection down: best-effort Disconnect frame on the
// control channel, rings marked closed, doorbells rung so blocked peers
// observe the closure, then all resources released. Idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.draining.Store(true)
		c.closed.Store(true)

		if c.control != nil {
			// Teardown travels on the control channel, never the rings.
			enc := c.ctlEnc
			if enc == nil {
				enc = codec.NewEncoder()
			}
			frame := enc.Encode(codec.TypeDisconnect, 0, nil)
			c.control.SetWriteDeadline(time.Now().Add(time.Second))
			c.control.Write(frame)
			codec.Free(frame)
			c.control.Close()
		}

		c.tx.Close()
		c.rx.Close()
		c.txBells.signalAll()
		c.rxBells.signalAll()
		c.txBells.close()
		c.rxBells.close()
		c.txSeg.Close()
		c.rxSeg.Close()

		c.log.Debug().Msg("connection closed")
		close(c.done)
	})
	return nil
}

// Closed reports whether Close has completed.
func (c *Conn) Closed() bool { return c.closed.Load() }

// Done is closed when the connection has fully shut down, whether by a local
// Close, a peer Disconnect, or detected peer death.
func (c *Conn) Done() <-chan struct{} { return c.done }

// watchControl consumes the otherwise-idle control channel until teardown:
// an explicit Disconnect frame or EOF (peer death) both invoke onPeerLoss.
func (c *Conn) watchControl(onPeerLoss func()) {
	if c.control == nil {
		return
	}
	go func() {
		dec := codec.NewDecoder(nil)
		buf := make([]byte, 0, 256)
		tmp := make([]byte, 256)
		for {
			n, err := c.control.Read(tmp)
			if n > 0 {
				buf = append(buf, tmp[:n]...)
				for {
					f, consumed, derr := dec.Decode(buf)
					if derr != nil {
						break
					}
					buf = buf[consumed:]
					if f.Type == codec.TypeDisconnect {
						c.log.Debug().Msg("peer sent disconnect")
						onPeerLoss()
						return
					}
				}
			}
			if err != nil {
				if !c.closed.Load() {
					c.log.Debug().Err(err).Msg("control channel closed")
					onPeerLoss()
				}
				return
			}
		}
	}()
}
