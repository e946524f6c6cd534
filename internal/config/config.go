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

// Package config loads and validates the TOML configuration shared by the
// server and client commands.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/not-vinayakverma71/ipcbridge/internal/shmem"
	"github.com/not-vinayakverma71/ipcbridge/internal/transport"
)

//go:embed sample_config.toml
var sampleConfig string

// Transport configures the rendezvous endpoint and ring sizing.
type Transport struct {
	Rendezvous         string `toml:"rendezvous"`
	Dir                string `toml:"dir"`
	MaxConnections     int    `toml:"max_connections"`
	BufferSize         uint64 `toml:"buffer_size"`
	HandshakeTimeoutMS int    `toml:"handshake_timeout_ms"`
}

// Backpressure configures the full-ring policy of the send path.
type Backpressure struct {
	TimeoutMS  int    `toml:"timeout_ms"`
	Policy     string `toml:"policy"`
	QueueLimit int    `toml:"queue_limit"`
}

// Reconnection configures the client's redial backoff.
type Reconnection struct {
	InitialIntervalMS int     `toml:"initial_interval_ms"`
	MaxIntervalMS     int     `toml:"max_interval_ms"`
	Multiplier        float64 `toml:"multiplier"`
	MaxRetries        uint64  `toml:"max_retries"`
}

// Logging selects output level and format.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root of the TOML document.
type Config struct {
	Transport    Transport    `toml:"transport"`
	Backpressure Backpressure `toml:"backpressure"`
	Reconnection Reconnection `toml:"reconnection"`
	Logging      Logging      `toml:"logging"`
}

const (
	defaultRendezvous         = "ipcbridge"
	defaultMaxConnections     = 64
	defaultHandshakeTimeoutMS = 5000
	defaultBackpressureMS     = 5000
	defaultPolicy             = "error"
	defaultQueueLimit         = 64
	defaultInitialIntervalMS  = 1000
	defaultMaxIntervalMS      = 30000
	defaultMultiplier         = 2.0
	defaultMaxRetries         = 5
	defaultLogLevel           = "info"
	defaultLogFormat          = "console"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Transport: Transport{
			Rendezvous:         defaultRendezvous,
			Dir:                os.TempDir(),
			MaxConnections:     defaultMaxConnections,
			BufferSize:         shmem.DefaultRingCapacity,
			HandshakeTimeoutMS: defaultHandshakeTimeoutMS,
		},
		Backpressure: Backpressure{
			TimeoutMS:  defaultBackpressureMS,
			Policy:     defaultPolicy,
			QueueLimit: defaultQueueLimit,
		},
		Reconnection: Reconnection{
			InitialIntervalMS: defaultInitialIntervalMS,
			MaxIntervalMS:     defaultMaxIntervalMS,
			Multiplier:        defaultMultiplier,
			MaxRetries:        defaultMaxRetries,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

// Load reads the TOML file at path on top of the defaults and validates the
// result. A missing file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("open config: %w", err)
			}
		} else {
			defer file.Close()
			dec := toml.NewDecoder(file)
			if err := dec.Decode(&cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Transport.Rendezvous == "" {
		return errors.New("transport.rendezvous must be set")
	}
	if c.Transport.MaxConnections <= 0 {
		return errors.New("transport.max_connections must be positive")
	}
	if c.Transport.BufferSize != 0 && !shmem.IsPowerOfTwo(c.Transport.BufferSize) {
		return fmt.Errorf("transport.buffer_size %d must be a power of two", c.Transport.BufferSize)
	}
	if c.Transport.HandshakeTimeoutMS <= 0 {
		return errors.New("transport.handshake_timeout_ms must be positive")
	}

	switch transport.BackpressurePolicy(c.Backpressure.Policy) {
	case transport.PolicyError, transport.PolicyDrop, transport.PolicyQueue:
	default:
		return fmt.Errorf("backpressure.policy %q must be error, drop, or queue", c.Backpressure.Policy)
	}
	if c.Backpressure.TimeoutMS <= 0 {
		return errors.New("backpressure.timeout_ms must be positive")
	}
	if c.Backpressure.QueueLimit <= 0 {
		return errors.New("backpressure.queue_limit must be positive")
	}

	if c.Reconnection.InitialIntervalMS <= 0 {
		return errors.New("reconnection.initial_interval_ms must be positive")
	}
	if c.Reconnection.MaxIntervalMS < c.Reconnection.InitialIntervalMS {
		return errors.New("reconnection.max_interval_ms must be >= initial_interval_ms")
	}
	if c.Reconnection.Multiplier < 1 {
		return errors.New("reconnection.multiplier must be >= 1")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not a zerolog level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	return nil
}

// Sample returns the annotated sample configuration file.
func Sample() string { return sampleConfig }

// ListenerOptions maps the config onto transport listener options.
func (c *Config) ListenerOptions() transport.Options {
	return transport.Options{
		Rendezvous:       c.Transport.Rendezvous,
		Dir:              c.Transport.Dir,
		MaxConns:         c.Transport.MaxConnections,
		BufferSize:       c.Transport.BufferSize,
		HandshakeTimeout: time.Duration(c.Transport.HandshakeTimeoutMS) * time.Millisecond,
		Backpressure:     c.BackpressureConfig(),
	}
}

// DialOptions maps the config onto transport dial options.
func (c *Config) DialOptions() transport.DialOptions {
	return transport.DialOptions{
		Rendezvous:       c.Transport.Rendezvous,
		Dir:              c.Transport.Dir,
		HandshakeTimeout: time.Duration(c.Transport.HandshakeTimeoutMS) * time.Millisecond,
		Backpressure:     c.BackpressureConfig(),
	}
}

// BackpressureConfig maps the [backpressure] section.
func (c *Config) BackpressureConfig() transport.BackpressureConfig {
	return transport.BackpressureConfig{
		Timeout:    time.Duration(c.Backpressure.TimeoutMS) * time.Millisecond,
		Policy:     transport.BackpressurePolicy(c.Backpressure.Policy),
		QueueLimit: c.Backpressure.QueueLimit,
	}
}

// ReconnectConfig maps the [reconnection] section.
func (c *Config) ReconnectConfig() transport.ReconnectConfig {
	return transport.ReconnectConfig{
		InitialInterval: time.Duration(c.Reconnection.InitialIntervalMS) * time.Millisecond,
		MaxInterval:     time.Duration(c.Reconnection.MaxIntervalMS) * time.Millisecond,
		Multiplier:      c.Reconnection.Multiplier,
		MaxRetries:      c.Reconnection.MaxRetries,
	}
}
