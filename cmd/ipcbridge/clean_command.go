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

	"github.com/spf13/cobra"

	"github.com/not-vinayakverma71/ipcbridge/internal/shmem"
)

func newCleanCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove shared-memory segments orphaned by dead processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			orphans, err := shmem.ListOrphans(cfg.Transport.Rendezvous)
			if err != nil {
				return err
			}
			for _, name := range orphans {
				if dryRun {
					fmt.Fprintf(cmd.OutOrStdout(), "would remove %s\n", name)
					continue
				}
				if err := shmem.Remove(name); err != nil {
					ctx.log.Warn().Str("segment", name).Err(err).Msg("remove failed")
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", name)
			}
			if len(orphans) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no orphaned segments")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List orphans without removing them")
	return cmd
}
