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
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/not-vinayakverma71/ipcbridge/internal/codec"
)

// Options configure a listener. Zero values fall back to the defaults below.
type Options struct {
	// Rendezvous names the endpoint. It becomes the control socket path
	// (<dir>/<rendezvous>.ctl.sock) and the prefix of every shared-memory
	// segment the listener creates.
	Rendezvous string
	// Dir is where the control socket and lock file live. Defaults to the
	// system temp directory.
	Dir string
	// MaxConns caps concurrent connections; 0 means DefaultMaxConns.
	MaxConns int
	// BufferSize is the per-direction ring capacity granted to clients that
	// do not request one. Clamped to the supported range either way.
	BufferSize uint64
	// HandshakeTimeout bounds how long an accepted client may take to
	// complete the handshake before its socket is dropped.
	HandshakeTimeout time.Duration
	// Backpressure applies to every connection's send path.
	Backpressure BackpressureConfig
	// Registry restricts which application message types decode; nil means
	// control types only.
	Registry *codec.Registry

	Logger zerolog.Logger
}

// DialOptions configure a client connection.
type DialOptions struct {
	Rendezvous string
	Dir        string
	// BufferSize asks the server for a specific per-direction ring capacity;
	// 0 accepts the server's default. The server's answer is authoritative.
	BufferSize uint64
	// HandshakeTimeout bounds the whole connect-and-handshake exchange.
	HandshakeTimeout time.Duration
	Backpressure     BackpressureConfig
	Registry         *codec.Registry

	Logger zerolog.Logger
}

// DefaultMaxConns bounds the slot table when Options leave it unset.
const DefaultMaxConns = 64

// DefaultHandshakeTimeout is how long a freshly accepted socket may sit in
// the handshake before the listener gives up on it.
const DefaultHandshakeTimeout = 5 * time.Second

// SocketPath returns the control socket path for a rendezvous name.
func SocketPath(dir, rendezvous string) string {
	return filepath.Join(dir, rendezvous+".ctl.sock")
}

// ReconnectConfig shapes the exponential backoff between dial attempts.
type ReconnectConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	// MaxRetries bounds attempts per outage; exceeding it is terminal.
	MaxRetries uint64
}

// DefaultReconnectConfig returns 1s initial, doubling to a 30s ceiling, five
// attempts per outage.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxRetries:      5,
	}
}

func (c ReconnectConfig) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.InitialInterval
	b.MaxInterval = c.MaxInterval
	b.Multiplier = c.Multiplier
	b.RandomizationFactor = 0 // dial attempts, not a thundering herd
	b.MaxElapsedTime = 0
	var bo backoff.BackOff = b
	if c.MaxRetries > 0 {
		bo = backoff.WithMaxRetries(bo, c.MaxRetries)
	}
	return bo
}
