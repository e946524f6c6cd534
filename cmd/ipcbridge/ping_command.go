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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/not-vinayakverma71/ipcbridge/internal/transport"
)

func newPingCommand(ctx *commandContext) *cobra.Command {
	var count int
	var size int
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Measure round-trip latency against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			dopts := cfg.DialOptions()
			dopts.Registry = ctx.registry()
			dopts.Logger = ctx.log

			r := transport.NewReconnector(dopts, cfg.ReconnectConfig())
			if err := r.Connect(cmd.Context()); err != nil {
				return err
			}
			defer r.Close()

			payload := make([]byte, size)
			var min, max, total time.Duration
			ok := 0
			for i := 0; i < count; i++ {
				start := time.Now()
				if err := r.Send(typeEcho, 0, payload); err != nil {
					ctx.log.Warn().Int("seq", i).Err(err).Msg("ping send failed")
					time.Sleep(interval)
					continue
				}
				if _, err := r.Recv(5 * time.Second); err != nil {
					ctx.log.Warn().Int("seq", i).Err(err).Msg("ping receive failed")
					time.Sleep(interval)
					continue
				}
				rtt := time.Since(start)
				fmt.Fprintf(cmd.OutOrStdout(), "%d bytes: seq=%d time=%v\n", size, i, rtt)
				if ok == 0 || rtt < min {
					min = rtt
				}
				if rtt > max {
					max = rtt
				}
				total += rtt
				ok++
				time.Sleep(interval)
			}
			if ok == 0 {
				return fmt.Errorf("all %d pings failed", count)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d ok, rtt min/avg/max = %v/%v/%v\n",
				ok, count, min, total/time.Duration(ok), max)
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 10, "Number of pings to send")
	cmd.Flags().IntVar(&size, "size", 100, "Payload size in bytes")
	cmd.Flags().DurationVar(&interval, "interval", 100*time.Millisecond, "Delay between pings")
	return cmd
}
