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
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/not-vinayakverma71/ipcbridge/internal/codec"
	"github.com/not-vinayakverma71/ipcbridge/internal/doorbell"
	"github.com/not-vinayakverma71/ipcbridge/internal/shmem"
)

// Listener owns the rendezvous: the control socket, the lock file that keeps
// a second server off the same endpoint, and the slot table.
type Listener struct {
	opts  Options
	lock  *flock.Flock
	ln    *net.UnixListener
	slots *SlotManager
	log   zerolog.Logger

	conns  chan *Conn
	done   chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup
}

// Listen claims the rendezvous and starts accepting clients.
//
// A stale socket left by a crashed server is detected through the lock file:
// if the flock is free, no server is alive and the socket is removed before
// binding. If the flock is held, Listen fails with ErrBindFailed rather than
// stealing the endpoint.
func Listen(opts Options) (*Listener, error) {
	if opts.Rendezvous == "" {
		return nil, fmt.Errorf("listen: empty rendezvous name")
	}
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	if opts.MaxConns == 0 {
		opts.MaxConns = DefaultMaxConns
	}
	if opts.BufferSize == 0 {
		opts.BufferSize = shmem.DefaultRingCapacity
	}
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.Backpressure == (BackpressureConfig{}) {
		opts.Backpressure = DefaultBackpressureConfig()
	}
	if opts.Registry == nil {
		opts.Registry = codec.NewRegistry()
	}

	lock := flock.New(filepath.Join(opts.Dir, opts.Rendezvous+".lock"))
	held, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("listen: lock %s: %w", lock.Path(), err)
	}
	if !held {
		return nil, fmt.Errorf("listen: rendezvous %q: %w", opts.Rendezvous, ErrBindFailed)
	}

	sock := SocketPath(opts.Dir, opts.Rendezvous)
	// The lock is ours, so any existing socket is a leftover from a dead
	// server.
	if err := os.Remove(sock); err != nil && !os.IsNotExist(err) {
		lock.Unlock()
		return nil, fmt.Errorf("listen: remove stale socket: %w", err)
	}
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: sock, Net: "unix"})
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("listen: %w: %v", ErrBindFailed, err)
	}

	l := &Listener{
		opts:  opts,
		lock:  lock,
		ln:    ln,
		slots: NewSlotManager(opts.MaxConns),
		log:   opts.Logger.With().Str("rendezvous", opts.Rendezvous).Logger(),
		conns: make(chan *Conn, opts.MaxConns),
		done:  make(chan struct{}),
	}
	l.wg.Add(1)
	go l.acceptLoop()
	l.log.Info().Str("socket", sock).Int("max_conns", opts.MaxConns).Msg("listening")
	return l, nil
}

// Accept returns the next fully handshaken connection. It blocks until one
// arrives or the listener closes, in which case it returns ErrConnClosed.
func (l *Listener) Accept() (*Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		// Drain anything handed over before the close won the race.
		select {
		case c := <-l.conns:
			return c, nil
		default:
			return nil, ErrConnClosed
		}
	}
}

// Slots exposes the connection table, for dispatch and metrics.
func (l *Listener) Slots() *SlotManager { return l.slots }

// Addr returns the control socket path.
func (l *Listener) Addr() string { return l.ln.Addr().String() }

func (l *Listener) acceptLoop() {
	defer l.wg.Done()
	for {
		uc, err := l.ln.AcceptUnix()
		if err != nil {
			if l.closed.Load() {
				return
			}
			l.log.Warn().Err(err).Msg("accept failed")
			continue
		}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			l.handshake(uc)
		}()
	}
}

// handshake drives the server side of connection setup on one accepted
// socket. Every failure path releases whatever had been allocated by then;
// a client that stalls or lies never costs a slot.
func (l *Listener) handshake(uc *net.UnixConn) {
	deadline := time.Now().Add(l.opts.HandshakeTimeout)
	uc.SetDeadline(deadline)

	req, ctlEnc, err := l.readHandshake(uc)
	if err != nil {
		l.log.Warn().Err(err).Msg("handshake read failed")
		uc.Close()
		return
	}
	if req.ProtocolVersion != ProtocolVersion {
		l.reject(uc, ctlEnc, RejectVersionMismatch,
			fmt.Sprintf("protocol version %d, need %d", req.ProtocolVersion, ProtocolVersion))
		uc.Close()
		return
	}

	slotID, err := l.slots.Reserve()
	if err != nil {
		l.reject(uc, ctlEnc, RejectResourceExhausted, "connection limit reached")
		uc.Close()
		return
	}

	capacity := l.opts.BufferSize
	if req.RequestedBufferSize != 0 {
		capacity = uint64(req.RequestedBufferSize)
	}
	capacity = shmem.ClampCapacity(capacity)

	sendName := shmem.SegmentName(l.opts.Rendezvous, slotID, shmem.DirSend)
	recvName := shmem.SegmentName(l.opts.Rendezvous, slotID, shmem.DirRecv)

	fail := func(stage string, err error) {
		l.log.Error().Err(err).Uint32("slot", slotID).Str("stage", stage).Msg("handshake setup failed")
		l.reject(uc, ctlEnc, RejectInternal, stage+" failed")
		uc.Close()
		l.slots.Release()
	}

	sendSeg, err := shmem.Create(sendName, capacity)
	if err != nil {
		fail("segment create", err)
		return
	}
	recvSeg, err := shmem.Create(recvName, capacity)
	if err != nil {
		sendSeg.Close()
		fail("segment create", err)
		return
	}
	// Each ring gets separate data and space lines; see ringBells.
	bells := make([]doorbell.Doorbell, 0, 4)
	for len(bells) < 4 {
		db, err := doorbell.New()
		if err != nil {
			for _, b := range bells {
				b.Close()
			}
			sendSeg.Close()
			recvSeg.Close()
			fail("doorbell create", err)
			return
		}
		bells = append(bells, db)
	}
	sendBells := ringBells{data: bells[0], space: bells[1]}
	recvBells := ringBells{data: bells[2], space: bells[3]}

	sendSeg.Header().SetClientPID(req.ClientPID)
	recvSeg.Header().SetClientPID(req.ClientPID)

	resp := encodeHandshakeResponse(HandshakeResponse{
		SlotID:      slotID,
		BufferSize:  uint32(capacity),
		SendSegment: sendName,
		RecvSegment: recvName,
	})
	frame := ctlEnc.Encode(codec.TypeHandshakeAck, 0, resp)
	err = sendWithFds(uc, frame, []int{
		sendBells.data.Fd(), sendBells.space.Fd(),
		recvBells.data.Fd(), recvBells.space.Fd(),
	})
	codec.Free(frame)
	if err != nil {
		sendBells.close()
		recvBells.close()
		sendSeg.Close()
		recvSeg.Close()
		l.log.Warn().Err(err).Uint32("slot", slotID).Msg("handshake response failed")
		uc.Close()
		l.slots.Release()
		return
	}

	uc.SetDeadline(time.Time{})

	// Server transmit = the send segment; the client mirrors this.
	conn := newConn(connParams{
		slotID:   slotID,
		connID:   uuid.NewString(),
		isServer: true,
		control:  uc,
		ctlEnc:   ctlEnc,
		txSeg:    sendSeg,
		rxSeg:    recvSeg,
		txBells:  sendBells,
		rxBells:  recvBells,
		bp:       l.opts.Backpressure,
		registry: l.opts.Registry,
		log:      l.log,
	})
	slot := &Slot{
		ID:        slotID,
		PeerPID:   req.ClientPID,
		CreatedAt: time.Now(),
		Conn:      conn,
	}
	slot.Activate()
	l.slots.Put(slot)
	conn.watchControl(func() { l.slots.Remove(slotID) })

	l.log.Info().Uint32("slot", slotID).Uint32("peer_pid", req.ClientPID).
		Uint64("capacity", capacity).Msg("connection established")

	if l.closed.Load() {
		l.slots.Remove(slotID)
		return
	}
	select {
	case l.conns <- conn:
	default:
		// Buffer full; the slot table still owns the connection and
		// dispatch can pick it up from there.
	}
}

// readHandshake decodes the framed HandshakeRequest from a fresh socket and
// returns the control-channel encoder that continues its sequence space.
func (l *Listener) readHandshake(uc *net.UnixConn) (HandshakeRequest, *codec.Encoder, error) {
	dec := codec.NewDecoder(l.opts.Registry)
	buf := make([]byte, 0, 256)
	tmp := make([]byte, 256)
	for {
		f, n, err := dec.Decode(buf)
		if err == nil {
			buf = buf[n:]
			if f.Type != codec.TypeHandshake {
				return HandshakeRequest{}, nil, fmt.Errorf("expected handshake frame, got %#04x", uint16(f.Type))
			}
			req, err := decodeHandshakeRequest(f.Payload)
			if err != nil {
				return HandshakeRequest{}, nil, err
			}
			return req, codec.NewEncoder(), nil
		}
		var need *codec.NeedMoreError
		if !errors.As(err, &need) {
			return HandshakeRequest{}, nil, err
		}
		rn, err := uc.Read(tmp)
		if err != nil {
			return HandshakeRequest{}, nil, err
		}
		buf = append(buf, tmp[:rn]...)
	}
}

func (l *Listener) reject(uc *net.UnixConn, enc *codec.Encoder, code RejectCode, msg string) {
	frame := enc.Encode(codec.TypeError, 0, encodeReject(code, msg))
	uc.Write(frame)
	codec.Free(frame)
}

// Close stops accepting, tears down every live connection, and releases the
// rendezvous. Safe to call more than once.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.ln.Close()
	var ids []uint32
	l.slots.Range(func(s *Slot) bool {
		ids = append(ids, s.ID)
		return true
	})
	for _, id := range ids {
		l.slots.Remove(id)
	}
	l.wg.Wait()
	close(l.done)
	l.lock.Unlock()
	os.Remove(l.ln.Addr().String())
	l.log.Info().Msg("listener closed")
	return nil
}

// Sweep reaps slots idle longer than maxIdle in two steps. A stale active
// slot is moved to draining, which refuses new writes but lets in-flight
// reads finish; a slot found still draining and still stale on a later call
// is removed. It returns how many were removed, so on a ticker a stale slot
// gets at least one full interval of grace between drain and removal.
func (l *Listener) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	var drained, removed []uint32
	l.slots.Range(func(s *Slot) bool {
		if !s.LastActivity().Before(cutoff) {
			return true
		}
		switch s.State() {
		case SlotActive:
			drained = append(drained, s.ID)
		case SlotDraining:
			removed = append(removed, s.ID)
		}
		return true
	})
	for _, id := range drained {
		if s, ok := l.slots.Get(id); ok {
			s.Drain()
		}
	}
	for _, id := range removed {
		l.slots.Remove(id)
	}
	if len(drained)+len(removed) > 0 {
		l.log.Info().Int("draining", len(drained)).Int("removed", len(removed)).
			Msg("swept idle connections")
	}
	return len(removed)
}
