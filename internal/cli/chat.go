// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/config"
	"github.com/jeranaias/rigrun-router/internal/dispatch"
	"github.com/jeranaias/rigrun-router/internal/router"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader provides line editing and persistent input history.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &lineReader{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}
	return r
}

func (r *lineReader) ReadLine(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions.
func (r *lineReader) Close() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			_, _ = r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// =============================================================================
// SESSION
// =============================================================================

// chatSession holds the settings slash commands change between queries.
type chatSession struct {
	app   *App
	user  string
	flags queryFlags
	out   io.Writer
	errw  io.Writer

	queries int
	tokens  int
}

func newChatCommand(e *env) *cobra.Command {
	var qf queryFlags

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive query session",
		Long: `Each line is routed and run as its own query. Slash commands change the
model, provider, priority or system prompt for the lines that follow;
/help lists them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := e.build(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()

			s := &chatSession{
				app:   app,
				user:  e.user(),
				flags: qf,
				out:   cmd.OutOrStdout(),
				errw:  cmd.ErrOrStderr(),
			}
			if !isTerminal(cmd.OutOrStdout()) {
				return s.runPlain(cmd.Context(), cmd.InOrStdin())
			}
			return s.runInteractive(cmd.Context())
		},
	}
	qf.register(cmd)
	return cmd
}

func (s *chatSession) runInteractive(ctx context.Context) error {
	st := NewStyles(s.out)
	fmt.Fprintln(s.out, st.Title.Render("rigrun-router chat")+st.Dim.Render("  (/help for commands, Ctrl+D to quit)"))

	lr := newLineReader()
	defer lr.Close()

	for {
		input, err := lr.ReadLine("router> ")
		if err != nil {
			// Ctrl+C at the prompt and EOF both end the session.
			fmt.Fprintln(s.out)
			s.printSummary()
			return nil
		}
		if done := s.handle(ctx, input); done {
			s.printSummary()
			return nil
		}
	}
}

// runPlain reads one query per line, for piped input.
func (s *chatSession) runPlain(ctx context.Context, in io.Reader) error {
	data, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.handle(ctx, line) {
			break
		}
	}
	return nil
}

// handle processes one input line and reports whether the session should end.
func (s *chatSession) handle(ctx context.Context, input string) bool {
	input = strings.TrimSpace(input)
	if input == "" {
		return false
	}
	if strings.HasPrefix(input, "/") {
		done, err := s.slash(ctx, input)
		if err != nil {
			printError(s.errw, err)
		}
		return done
	}

	var res *dispatch.Result
	err := withSpinner(ctx, s.errw, "Thinking", func(ctx context.Context) error {
		var err error
		res, err = s.app.Dispatcher.Dispatch(ctx, s.user, s.flags.query(input))
		return err
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			fmt.Fprintln(s.errw, NewStyles(s.errw).Warning.Render("[Cancelled]"))
			return false
		}
		printError(s.errw, err)
		return false
	}
	s.queries++
	s.tokens += res.TokensUsed
	printResult(s.out, res, false)
	return false
}

func (s *chatSession) slash(ctx context.Context, input string) (bool, error) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "/quit", "/exit", "/q":
		return true, nil
	case "/help", "/?":
		s.printHelp()
	case "/model":
		if arg != "" && arg != "auto" {
			if _, err := s.app.Catalog.Get(arg); err != nil {
				return false, err
			}
		} else {
			arg = ""
		}
		s.flags.model = arg
		s.printSetting("model", arg)
	case "/provider":
		if arg != "" && arg != "auto" {
			if _, err := catalog.ParseProvider(arg); err != nil {
				return false, err
			}
		} else {
			arg = ""
		}
		s.flags.provider = arg
		s.printSetting("provider", arg)
	case "/priority":
		p, err := router.ParsePriority(arg)
		if err != nil {
			return false, usagef("%v", err)
		}
		s.flags.priority = string(p)
		s.printSetting("priority", string(p))
	case "/system":
		s.flags.system = arg
		s.printSetting("system prompt", arg)
	case "/usage":
		uc, err := s.app.Dispatcher.UserConfig(ctx, s.user)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "%s tier, %d of %d queries used, %d remaining\n", uc.Tier, uc.Usage, uc.Quota, uc.Remaining)
	default:
		return false, usagef("unknown command %s (try /help)", name)
	}
	return false, nil
}

func (s *chatSession) printSetting(name, value string) {
	if value == "" {
		value = "auto"
	}
	st := NewStyles(s.out)
	fmt.Fprintf(s.out, "%s %s\n", st.Label.UnsetWidth().Render(name+":"), st.Value.Render(value))
}

func (s *chatSession) printHelp() {
	t := Table{
		Headers: []string{"COMMAND", "DESCRIPTION"},
		Rows: [][]string{
			{"/model <id|auto>", "pin a model for the following queries"},
			{"/provider <name|auto>", "restrict routing to one provider"},
			{"/priority <p>", "normal, urgent, cost-optimized or manual"},
			{"/system [prompt]", "set or clear the system prompt"},
			{"/usage", "show quota usage"},
			{"/quit", "end the session"},
		},
	}
	fmt.Fprint(s.out, t.Render(NewStyles(s.out)))
}

func (s *chatSession) printSummary() {
	if s.queries == 0 {
		return
	}
	st := NewStyles(s.out)
	fmt.Fprintln(s.out, st.Dim.Render(fmt.Sprintf("%d queries, %s tokens", s.queries, formatTokens(s.tokens))))
}
