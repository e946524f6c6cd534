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
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/not-vinayakverma71/ipcbridge/internal/codec"
	"github.com/not-vinayakverma71/ipcbridge/internal/config"
	"github.com/not-vinayakverma71/ipcbridge/internal/logging"
)

// typeEcho is the application message type the built-in serve/ping/bench
// commands speak: the payload comes back unchanged.
const typeEcho codec.MessageType = 0x0100

// commandContext carries config loading shared by the subcommands.
type commandContext struct {
	configFlag *string

	cfg *config.Config
	log zerolog.Logger
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load(*c.configFlag)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	c.log = logging.ForCLI(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}

func (c *commandContext) registry() *codec.Registry {
	reg := codec.NewRegistry()
	reg.Register(typeEcho)
	return reg
}

func newRootCommand() *cobra.Command {
	var configFlag string

	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "ipcbridge",
		Short:         "Shared-memory IPC transport endpoint",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newPingCommand(ctx))
	rootCmd.AddCommand(newBenchCommand(ctx))
	rootCmd.AddCommand(newStatCommand(ctx))
	rootCmd.AddCommand(newCleanCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
