// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// WAIT SPINNER
// =============================================================================

type doneMsg struct{}

type waitModel struct {
	spinner   spinner.Model
	label     string
	start     time.Time
	styles    Styles
	done      bool
	cancelled bool
}

func newWaitModel(label string, s Styles) waitModel {
	sp := spinner.New()
	sp.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	sp.Style = s.Title
	return waitModel{spinner: sp, label: label, start: time.Now(), styles: s}
}

func (m waitModel) Init() tea.Cmd { return m.spinner.Tick }

func (m waitModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyEsc {
			m.cancelled = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m waitModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	elapsed := time.Since(m.start).Truncate(100 * time.Millisecond)
	return fmt.Sprintf("%s %s %s\n", m.spinner.View(), m.label, m.styles.Dim.Render(elapsed.String()))
}

// withSpinner runs fn while a spinner animates on w. Without a terminal fn
// just runs. Ctrl+C cancels fn's context.
func withSpinner(ctx context.Context, w io.Writer, label string, fn func(context.Context) error) error {
	if !isTerminal(w) || !IsTTY() {
		return fn(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newWaitModel(label, NewStyles(w)), tea.WithOutput(w), tea.WithContext(ctx))

	errCh := make(chan error, 1)
	go func() {
		err := fn(ctx)
		errCh <- err
		p.Send(doneMsg{})
	}()

	// A spinner that fails to draw does not fail the call.
	final, _ := p.Run()
	if m, ok := final.(waitModel); ok && m.cancelled {
		cancel()
	}
	return <-errCh
}
