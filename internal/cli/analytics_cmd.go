// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-router/internal/util"
)

func newAnalyticsCommand(e *env) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Summarize query history",
		Long: `Summarizes the current user's queries: totals, per-model counts, daily
usage and the most recent queries. Requires the pro or enterprise tier.
--all summarizes every user; whoever can read the data directory can
already see that, so the CLI does not check the operator list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := e.build(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			a, err := app.Dispatcher.Analytics(cmd.Context(), e.user(), all)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if e.jsonOut {
				return writeJSONTo(out, a)
			}

			s := NewStyles(out)
			fmt.Fprintln(out, s.Title.Render("Usage"))
			fmt.Fprintf(out, "  %d queries (%d failed), %s tokens, %s, avg %s\n",
				a.TotalQueries, a.FailedQueries, formatTokens(a.TotalTokens),
				formatCost(a.TotalCost), formatSeconds(a.AverageProcessingTime))
			if a.TotalQueries == 0 {
				return nil
			}

			models := make([]string, 0, len(a.ModelUsage))
			for m := range a.ModelUsage {
				models = append(models, m)
			}
			sort.Slice(models, func(i, j int) bool {
				if a.ModelUsage[models[i]] != a.ModelUsage[models[j]] {
					return a.ModelUsage[models[i]] > a.ModelUsage[models[j]]
				}
				return models[i] < models[j]
			})
			mt := Table{Headers: []string{"MODEL", "QUERIES"}}
			for _, m := range models {
				mt.Rows = append(mt.Rows, []string{m, fmt.Sprint(a.ModelUsage[m])})
			}
			fmt.Fprintln(out)
			fmt.Fprint(out, mt.Render(s))

			if len(a.Daily) > 0 {
				dt := Table{Headers: []string{"DATE", "QUERIES", "TOKENS", "COST"}}
				for _, d := range a.Daily {
					dt.Rows = append(dt.Rows, []string{d.Date, fmt.Sprint(d.Queries), formatTokens(d.Tokens), formatCost(d.Cost)})
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, dt.Render(s))
			}

			if len(a.RecentQueries) > 0 {
				rt := Table{Headers: []string{"TIME", "USER", "MODEL", "TOKENS", "MESSAGE"}}
				for i := len(a.RecentQueries) - 1; i >= 0; i-- {
					q := a.RecentQueries[i]
					msg := util.TruncateRunes(q.Message, 40)
					if q.Failed() {
						msg = s.Error.Render(q.ErrorKind) + " " + msg
					}
					rt.Rows = append(rt.Rows, []string{
						q.Timestamp.Local().Format("01-02 15:04"), q.UserID, q.Model, formatTokens(q.TotalTokens), msg,
					})
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, rt.Render(s))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "summarize every user")
	return cmd
}
