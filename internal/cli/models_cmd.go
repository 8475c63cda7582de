// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-router/internal/dispatch"
)

func newModelsCommand(e *env) *cobra.Command {
	var all bool
	var provider string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models available to the current user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := e.build(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			listing, err := app.Dispatcher.Models(cmd.Context(), e.user())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if e.jsonOut {
				return writeJSONTo(out, listing)
			}

			models := listing.AllModels
			if !all {
				models = models[:0:0]
				for _, m := range listing.AllModels {
					if m.Available {
						models = append(models, m)
					}
				}
			}
			if provider != "" {
				models = filterProvider(models, provider)
			}

			s := NewStyles(out)
			if len(models) == 0 {
				fmt.Fprintln(out, s.Warning.Render("No models available."))
				fmt.Fprintln(out, s.Dim.Render("  add a key with: rigrun-router user set-key <provider>, or list everything with --all"))
				return nil
			}
			fmt.Fprint(out, modelTable(models, all).Render(s))
			fmt.Fprintln(out, s.Dim.Render(fmt.Sprintf("prices per million tokens, before the %s markup", listing.PricingInfo.Markup)))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "include models the user cannot reach")
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "only this provider")
	return cmd
}

func filterProvider(models []dispatch.ModelInfo, provider string) []dispatch.ModelInfo {
	var out []dispatch.ModelInfo
	for _, m := range models {
		if strings.EqualFold(m.Provider, provider) {
			out = append(out, m)
		}
	}
	return out
}

func modelTable(models []dispatch.ModelInfo, withAvailability bool) Table {
	headers := []string{"ID", "PROVIDER", "TRANSPORT", "CONTEXT", "INPUT", "OUTPUT"}
	if withAvailability {
		headers = append(headers, "AVAILABLE")
	}
	t := Table{Headers: headers, MaxWidth: 40}
	for _, m := range models {
		row := []string{
			m.ID,
			m.Provider,
			m.Transport,
			formatTokens(m.ContextLength),
			formatPerMillion(m.InputPerMillion),
			formatPerMillion(m.OutputPerMillion),
		}
		if withAvailability {
			avail := "no"
			if m.Available {
				avail = "yes"
			}
			row = append(row, avail)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}
