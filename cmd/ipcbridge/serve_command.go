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

//go:build linux

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"

	"github.com/not-vinayakverma71/ipcbridge/internal/transport"
)

// statsPath is where serve publishes metrics snapshots for the stat command.
func statsPath(dir, rendezvous string) string {
	return filepath.Join(dir, rendezvous+".stats.json")
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var statsInterval time.Duration
	var idleTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an echo server on the configured rendezvous",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			opts := cfg.ListenerOptions()
			opts.Registry = ctx.registry()
			opts.Logger = ctx.log

			l, err := transport.Listen(opts)
			if err != nil {
				return err
			}
			defer l.Close()

			sigCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				for {
					conn, err := l.Accept()
					if err != nil {
						return
					}
					go echoLoop(ctx, l, conn)
				}
			}()

			stats := statsPath(cfg.Transport.Dir, cfg.Transport.Rendezvous)
			defer os.Remove(stats)

			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-sigCtx.Done():
					ctx.log.Info().Msg("shutting down")
					return nil
				case <-ticker.C:
					if idleTimeout > 0 {
						l.Sweep(idleTimeout)
					}
					snaps := l.Slots().Snapshots()
					printSnapshots(cmd, snaps)
					if err := writeSnapshots(stats, snaps); err != nil {
						ctx.log.Warn().Err(err).Msg("stats publish failed")
					}
				}
			}
		},
	}

	cmd.Flags().DurationVar(&statsInterval, "stats-interval", 10*time.Second, "How often to print per-connection metrics")
	cmd.Flags().DurationVar(&idleTimeout, "idle-timeout", 0, "Drop connections idle longer than this (0 disables)")
	return cmd
}

func echoLoop(ctx *commandContext, l *transport.Listener, conn *transport.Conn) {
	slotID := conn.SlotID()
	for {
		f, err := conn.Recv(-1)
		if err != nil {
			if !errors.Is(err, transport.ErrConnClosed) && !errors.Is(err, transport.ErrPeerClosed) {
				ctx.log.Warn().Uint32("slot", slotID).Err(err).Msg("receive failed, dropping connection")
			}
			l.Slots().Remove(slotID)
			return
		}
		if err := conn.Send(f.Type, f.Flags, f.Payload); err != nil {
			ctx.log.Warn().Uint32("slot", slotID).Err(err).Msg("echo failed, dropping connection")
			l.Slots().Remove(slotID)
			return
		}
	}
}

func printSnapshots(cmd *cobra.Command, snaps []transport.MetricsSnapshot) {
	if len(snaps) == 0 {
		return
	}
	out, err := sonnet.Marshal(snaps)
	if err != nil {
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
}

// writeSnapshots publishes snaps atomically so a concurrent stat never reads
// a torn file.
func writeSnapshots(path string, snaps []transport.MetricsSnapshot) error {
	if snaps == nil {
		snaps = []transport.MetricsSnapshot{}
	}
	out, err := sonnet.Marshal(snaps)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
