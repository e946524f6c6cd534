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
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"

	"github.com/not-vinayakverma71/ipcbridge/internal/transport"
)

type benchResult struct {
	Duration     string  `json:"duration"`
	PayloadBytes int     `json:"payload_bytes"`
	FramesSent   uint64  `json:"frames_sent"`
	FramesEchoed uint64  `json:"frames_echoed"`
	Throughput   float64 `json:"throughput_mb_s"`
	FramesPerSec float64 `json:"frames_per_sec"`
}

func newBenchCommand(ctx *commandContext) *cobra.Command {
	var size int
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Pump echo traffic and report throughput",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			dopts := cfg.DialOptions()
			dopts.Registry = ctx.registry()
			dopts.Logger = ctx.log

			conn, err := transport.Dial(dopts)
			if err != nil {
				return err
			}
			defer conn.Close()

			var echoed atomic.Uint64
			recvErr := make(chan error, 1)
			go func() {
				for {
					if _, err := conn.Recv(time.Second); err != nil {
						if errors.Is(err, transport.ErrRecvTimeout) {
							continue
						}
						recvErr <- err
						return
					}
					echoed.Add(1)
				}
			}()

			payload := make([]byte, size)
			deadline := time.Now().Add(duration)
			var sent uint64
			for time.Now().Before(deadline) {
				if err := conn.Send(typeEcho, 0, payload); err != nil {
					return fmt.Errorf("bench send after %d frames: %w", sent, err)
				}
				sent++
			}

			// Let the tail of the echo stream land.
		settle:
			for {
				select {
				case err := <-recvErr:
					return err
				case <-time.After(200 * time.Millisecond):
					break settle
				}
			}

			elapsed := duration.Seconds()
			res := benchResult{
				Duration:     duration.String(),
				PayloadBytes: size,
				FramesSent:   sent,
				FramesEchoed: echoed.Load(),
				Throughput:   float64(sent) * float64(size) / elapsed / (1 << 20),
				FramesPerSec: float64(sent) / elapsed,
			}
			out, err := sonnet.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().IntVar(&size, "size", 1024, "Payload size in bytes")
	cmd.Flags().DurationVar(&duration, "duration", 5*time.Second, "How long to pump frames")
	return cmd
}
