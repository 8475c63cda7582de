// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-router/internal/router"
)

// routeView is the JSON shape of a routing decision.
type routeView struct {
	Model      string            `json:"model"`
	Rule       string            `json:"rule"`
	Complexity router.Complexity `json:"complexity"`
	Classified bool              `json:"classified"`
	Available  bool              `json:"available"`
	Reason     string            `json:"reason"`
}

func newRouteCommand(e *env) *cobra.Command {
	var qf queryFlags

	cmd := &cobra.Command{
		Use:   "route <message>",
		Short: "Show which model a query would go to, without running it",
		Example: `  rigrun-router route "Design a caching architecture"
  rigrun-router route --priority cost-optimized "what is a mutex"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := messageFrom(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			app, err := e.build(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			d, err := app.Dispatcher.Plan(cmd.Context(), e.user(), qf.query(message))
			if err != nil {
				return err
			}
			v := routeView{
				Model:      d.Model,
				Rule:       d.Rule.String(),
				Complexity: d.Complexity,
				Classified: d.Classified,
				Available:  d.Available,
				Reason:     d.Reason,
			}

			out := cmd.OutOrStdout()
			if e.jsonOut {
				return writeJSONTo(out, v)
			}
			s := NewStyles(out)
			complexity := v.Complexity.String()
			if !v.Classified {
				complexity += " (not classified)"
			}
			avail := s.Success.Render("yes")
			if !v.Available {
				avail = s.Warning.Render("no, the call would fail without a credential")
			}
			rows := [][2]string{
				{"Model", s.Value.Render(v.Model)},
				{"Rule", v.Rule},
				{"Complexity", complexity},
				{"Available", avail},
				{"Reason", v.Reason},
			}
			for _, r := range rows {
				fmt.Fprintf(out, "%s %s\n", s.Label.Render(fmt.Sprintf("%-11s", r[0]+":")), r[1])
			}
			return nil
		},
	}
	qf.register(cmd)
	return cmd
}

func newClassifyCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <message>",
		Short: "Show the complexity bucket for a message",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message, err := messageFrom(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			app, err := e.build(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			c := app.Router.Classify(message)
			out := cmd.OutOrStdout()
			if e.jsonOut {
				return writeJSONTo(out, map[string]router.Complexity{"complexity": c})
			}
			fmt.Fprintln(out, c.String())
			return nil
		},
	}
}
