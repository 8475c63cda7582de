// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-router/internal/config"
)

func newConfigCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or change the config file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective config, secrets redacted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := e.config()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting, e.g. server.addr",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := e.config()
				if err != nil {
					return err
				}
				v, err := cfg.Get(args[0])
				if err != nil {
					return usagef("%v", err)
				}
				if e.jsonOut {
					return writeJSONTo(cmd.OutOrStdout(), v)
				}
				if items, ok := v.([]string); ok {
					v = strings.Join(items, ",")
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting and save the file",
			Long: `Changes one setting and writes the config file with mode 0600. Lists are
comma separated. The result is validated before it is written.`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := e.configFile()
				if err != nil {
					return err
				}
				cfg, err := config.LoadForEdit(path)
				if err != nil {
					return err
				}
				if err := cfg.Set(args[0], args[1]); err != nil {
					return usagef("%v", err)
				}
				check := cfg.Clone()
				check.SetDefaults()
				if err := check.Validate(); err != nil {
					return fmt.Errorf("invalid config: %w", err)
				}
				if err := config.Save(cfg, path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List every settable key",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				for _, k := range config.Keys() {
					fmt.Fprintln(cmd.OutOrStdout(), k)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				path, err := e.configFile()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
	)
	return cmd
}
