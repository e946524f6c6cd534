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
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/sugawarayuuta/sonnet"

	"github.com/not-vinayakverma71/ipcbridge/internal/transport"
)

func newStatCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Print the metrics last published by a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			path := statsPath(cfg.Transport.Dir, cfg.Transport.Rendezvous)
			body, err := os.ReadFile(path)
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fmt.Errorf("no stats at %s: is a server running on rendezvous %q?",
						path, cfg.Transport.Rendezvous)
				}
				return err
			}

			var snaps []transport.MetricsSnapshot
			if err := sonnet.Unmarshal(body, &snaps); err != nil {
				return fmt.Errorf("parse stats: %w", err)
			}
			out, err := sonnet.MarshalIndent(snaps, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}
