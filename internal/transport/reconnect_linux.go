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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/not-vinayakverma71/ipcbridge/internal/codec"
)

// Reconnector keeps a client connection alive across server restarts. It
// dials, watches the connection for loss, and redials with backoff; callers
// go through Conn (or the Send/Recv forwarders) and see ErrReconnecting
// during an outage instead of a dead connection.
//
// No replay: frames sent before a loss and not yet read by the peer are gone.
// Callers needing delivery guarantees layer acknowledgements above this.
type Reconnector struct {
	dialOpts DialOptions
	cfg      ReconnectConfig
	log      zerolog.Logger

	mu      sync.Mutex
	conn    *Conn
	state   atomic.Int32
	onState func(ConnState)

	attempts atomic.Uint64
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewReconnector builds a reconnector; call Connect to establish the first
// connection.
func NewReconnector(dial DialOptions, cfg ReconnectConfig) *Reconnector {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Reconnector{
		dialOpts: dial,
		cfg:      cfg,
		log:      dial.Logger.With().Str("rendezvous", dial.Rendezvous).Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
	r.state.Store(int32(StateConnecting))
	return r
}

// OnStateChange registers a callback invoked (from the reconnector's
// goroutine) on every state transition. Must be set before Connect.
func (r *Reconnector) OnStateChange(fn func(ConnState)) { r.onState = fn }

// State returns the current connection state.
func (r *Reconnector) State() ConnState { return ConnState(r.state.Load()) }

// Attempts returns the total number of redial attempts made so far.
func (r *Reconnector) Attempts() uint64 { return r.attempts.Load() }

func (r *Reconnector) setState(s ConnState) {
	if ConnState(r.state.Swap(int32(s))) == s {
		return
	}
	r.log.Debug().Str("state", s.String()).Msg("connection state changed")
	if r.onState != nil {
		r.onState(s)
	}
}

// Connect establishes the initial connection, retrying with backoff on
// failure, then starts watching it. The initial connect honors the same
// retry budget as a mid-life outage.
func (r *Reconnector) Connect(ctx context.Context) error {
	r.setState(StateConnecting)
	if err := r.redial(ctx); err != nil {
		r.setState(StateFailed)
		return err
	}
	return nil
}

// Conn returns the live connection, or an error describing why there is none
// right now: ErrReconnecting mid-outage, ErrRetryExceeded after a terminal
// failure, ErrNotConnected before Connect or after Close.
func (r *Reconnector) Conn() (*Conn, error) {
	r.mu.Lock()
	c := r.conn
	r.mu.Unlock()
	switch ConnState(r.state.Load()) {
	case StateConnected:
		return c, nil
	case StateReconnecting, StateConnecting:
		return nil, ErrReconnecting
	case StateFailed:
		return nil, ErrRetryExceeded
	default:
		return nil, ErrNotConnected
	}
}

// Send forwards to the live connection.
func (r *Reconnector) Send(t codec.MessageType, flags uint16, payload []byte) error {
	c, err := r.Conn()
	if err != nil {
		return err
	}
	return c.Send(t, flags, payload)
}

// Recv forwards to the live connection.
func (r *Reconnector) Recv(timeout time.Duration) (codec.Frame, error) {
	c, err := r.Conn()
	if err != nil {
		return codec.Frame{}, err
	}
	return c.Recv(timeout)
}

// redial runs the backoff loop until a dial succeeds or the budget runs out,
// then installs the new connection and arms the watcher.
func (r *Reconnector) redial(ctx context.Context) error {
	bo := backoff.WithContext(r.cfg.newBackOff(), ctx)
	var conn *Conn
	err := backoff.Retry(func() error {
		r.attempts.Add(1)
		c, err := Dial(r.dialOpts)
		if err != nil {
			// Handshake rejections are policy, not outages; retrying a
			// version mismatch can never succeed.
			if isPermanentDialError(err) {
				return backoff.Permanent(err)
			}
			r.log.Warn().Err(err).Uint64("attempt", r.attempts.Load()).Msg("dial failed")
			return err
		}
		conn = c
		return nil
	}, bo)
	if err != nil {
		if ctx.Err() == nil && !isPermanentDialError(err) {
			err = fmt.Errorf("%w: %v", ErrRetryExceeded, err)
		}
		return err
	}

	conn.metrics.ReconnectAttempts.Store(r.attempts.Load())
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	r.setState(StateConnected)

	r.wg.Add(1)
	go r.watch(conn)
	return nil
}

func isPermanentDialError(err error) bool {
	return errors.Is(err, ErrVersionMismatch)
}

// watch waits for the connection to die and, unless the reconnector itself
// is closing, marks it Disconnected, moves into Reconnecting, and redials.
func (r *Reconnector) watch(conn *Conn) {
	defer r.wg.Done()
	select {
	case <-conn.Done():
	case <-r.ctx.Done():
		return
	}
	if r.ctx.Err() != nil {
		return
	}

	r.log.Info().Msg("connection lost, reconnecting")
	r.setState(StateDisconnected)
	r.setState(StateReconnecting)
	r.mu.Lock()
	r.conn = nil
	r.mu.Unlock()

	if err := r.redial(r.ctx); err != nil {
		if r.ctx.Err() != nil {
			r.setState(StateDisconnected)
			return
		}
		r.log.Error().Err(err).Msg("reconnect failed")
		r.setState(StateFailed)
	}
}

// Close stops reconnecting and closes the live connection, if any.
func (r *Reconnector) Close() error {
	r.cancel()
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	r.wg.Wait()
	r.setState(StateDisconnected)
	return nil
}
