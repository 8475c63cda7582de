// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-router/internal/dispatch"
	"github.com/jeranaias/rigrun-router/internal/router"
)

// queryFlags are shared by ask, chat and route.
type queryFlags struct {
	model     string
	provider  string
	priority  string
	system    string
	maxTokens int
}

func (f *queryFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.model, "model", "m", "", "run on this model id")
	fl.StringVarP(&f.provider, "provider", "p", "", "restrict to a provider (openai, anthropic, google)")
	fl.StringVar(&f.priority, "priority", string(router.PriorityNormal), "normal, urgent, cost-optimized or manual")
	fl.StringVarP(&f.system, "system", "s", "", "system prompt")
	fl.IntVar(&f.maxTokens, "max-tokens", 0, "output token limit (0 for the default)")
}

func (f *queryFlags) query(message string) router.Query {
	return router.Query{
		Message:      message,
		SystemPrompt: f.system,
		Model:        f.model,
		Provider:     f.provider,
		Priority:     router.Priority(f.priority),
		MaxTokens:    f.maxTokens,
	}
}

func newAskCommand(e *env) *cobra.Command {
	var qf queryFlags
	var raw bool

	cmd := &cobra.Command{
		Use:   "ask <message>",
		Short: "Route and run one query",
		Example: `  rigrun-router ask "What is a monad?"
  rigrun-router ask --priority high "Prove that sqrt(2) is irrational"
  echo "summarize this" | rigrun-router ask -`,
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

			var res *dispatch.Result
			err = withSpinner(cmd.Context(), cmd.ErrOrStderr(), "Thinking", func(ctx context.Context) error {
				var err error
				res, err = app.Dispatcher.Dispatch(ctx, e.user(), qf.query(message))
				return err
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if e.jsonOut {
				return writeJSONTo(out, res)
			}
			printResult(out, res, raw)
			return nil
		},
	}
	qf.register(cmd)
	cmd.Flags().BoolVar(&raw, "raw", false, "print the response without markdown rendering")
	return cmd
}

// messageFrom joins args, or reads stdin when the only arg is "-".
func messageFrom(args []string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(io.LimitReader(stdin, router.MaxQueryLength+1))
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.Join(args, " "), nil
}

// printResult writes the response and a one-line summary.
func printResult(w io.Writer, res *dispatch.Result, raw bool) {
	s := NewStyles(w)

	text := res.Response
	if !raw && isTerminal(w) {
		text = renderMarkdown(text, terminalWidth(w))
	}
	fmt.Fprint(w, text)
	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(w)
	}

	parts := []string{
		res.Model,
		s.Tokens.Render(formatTokens(res.TokensUsed) + " tokens"),
		formatSeconds(res.ProcessingTime),
	}
	if res.Cost != nil {
		parts = append(parts, s.Cost.Render(formatCost(*res.Cost)))
	}
	fmt.Fprintln(w, s.Dim.Render("["+res.Decision.Rule.String()+"] ")+strings.Join(parts, s.Dim.Render(" | ")))
}

// renderMarkdown renders for the terminal, falling back to the plain text.
func renderMarkdown(text string, width int) string {
	style := "dark"
	if os.Getenv("NO_COLOR") != "" {
		style = "notty"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(width-2),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}
