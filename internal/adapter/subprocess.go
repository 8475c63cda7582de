// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/router"
	"github.com/jeranaias/rigrun-router/internal/util"
)

// PromptMode is how a CLI tool receives the prompt.
type PromptMode int

const (
	PromptArg PromptMode = iota
	PromptStdin
)

// Tool describes one command-line backend.
type Tool struct {
	// Command is the executable name or path.
	Command string

	// Args come before the prompt (when the prompt is an argument).
	Args []string

	Prompt PromptMode

	// StartMarker, when set, drops every output line up to and including the
	// first line containing it.
	StartMarker string

	// TokenMarkers identify usage lines. The last integer on the line is the count.
	TokenMarkers []string

	// SkipPrefixes drop status lines from the response text.
	SkipPrefixes []string
}

// DefaultTools returns the built-in CLI backends keyed by adapter name.
func DefaultTools() map[string]Tool {
	return map[string]Tool{
		"codex": {
			Command:      "codex",
			Args:         []string{"exec", "-c", "reasoning_effort=high", "-c", "reasoning_summaries=auto"},
			Prompt:       PromptArg,
			StartMarker:  "] codex",
			TokenMarkers: []string{"tokens used:"},
			SkipPrefixes: []string{"[20"},
		},
		"claude": {
			Command:      "claude",
			Args:         []string{"chat", "--no-markdown"},
			Prompt:       PromptArg,
			TokenMarkers: []string{"tokens:", "usage:"},
			SkipPrefixes: []string{"["},
		},
		"gemini": {
			Command: "ai",
			Args:    []string{"chat", "--model", "gemini-pro"},
			Prompt:  PromptStdin,
		},
	}
}

// Subprocess runs queries through authenticated CLI tools.
type Subprocess struct {
	tools   map[string]Tool
	logger  *zap.Logger
	resolve func(string) string
}

// NewSubprocess creates a CLI adapter over tools (nil means DefaultTools).
func NewSubprocess(tools map[string]Tool, logger *zap.Logger) *Subprocess {
	if tools == nil {
		tools = DefaultTools()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subprocess{tools: tools, logger: logger, resolve: findExecutable}
}

// Transport implements Adapter.
func (s *Subprocess) Transport() catalog.Transport { return catalog.TransportSubprocess }

// Execute implements Adapter.
func (s *Subprocess) Execute(ctx context.Context, req Request) (*Result, error) {
	tool, ok := s.tools[req.Model.Adapter]
	if !ok {
		f := newFailure(ErrAdapterFailure, req.Model.Adapter, req.Model.ID)
		f.Message = fmt.Sprintf("no CLI tool registered for %q", req.Model.Adapter)
		return nil, f
	}

	prompt := req.prompt()
	args := append([]string(nil), tool.Args...)
	cmd := exec.CommandContext(ctx, s.resolve(tool.Command), args...)
	if tool.Prompt == PromptArg {
		cmd.Args = append(cmd.Args, prompt)
	} else {
		cmd.Stdin = strings.NewReader(prompt)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	configureProcess(cmd)

	start := time.Now()
	err := cmd.Run()
	latency := time.Since(start)

	s.logger.Debug("SUBPROCESS",
		zap.String("tool", req.Model.Adapter),
		zap.String("model", req.Model.ID),
		zap.Duration("duration", latency),
		zap.Error(err),
	)

	if err != nil {
		return nil, s.failure(ctx, req.Model, err, stderr.String())
	}

	text, tokens, upstream := parseOutput(tool, stdout.String())
	res := &Result{
		Response:      text,
		Model:         req.Model.ID,
		UpstreamModel: upstream,
		InputTokens:   router.EstimateTokens(prompt),
		Latency:       latency,
	}
	if tokens > 0 {
		res.TotalTokens = tokens
		res.OutputTokens = max(tokens-res.InputTokens, 0)
	} else {
		res.OutputTokens = router.EstimateTokens(text)
		res.TotalTokens = res.InputTokens + res.OutputTokens
	}
	return res, nil
}

func (s *Subprocess) failure(ctx context.Context, m catalog.Model, err error, stderr string) error {
	if f := fromContext(ctx, m.Adapter, m.ID); f != nil {
		return f
	}

	stderr = strings.TrimSpace(stderr)
	kind := ErrAdapterFailure
	if isAuthMessage(stderr) {
		kind = ErrAuthExpired
	}
	f := newFailure(kind, m.Adapter, m.ID)
	f.cause = err
	f.Message = util.TruncateRunes(stderr, 2000)

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		f.ExitCode = exitErr.ExitCode()
	} else if f.Message == "" {
		f.Message = err.Error()
	}
	if f.Message == "" {
		f.Message = "unknown error"
	}
	return f
}

var lastNumber = regexp.MustCompile(`\d[\d,]*`)

// parseOutput splits CLI output into response text, a token count and an
// optional reported model name. Usage and model lines are read from the whole
// output; response text only from after StartMarker.
func parseOutput(tool Tool, out string) (text string, tokens int, model string) {
	lines := strings.Split(strings.ReplaceAll(out, "\r\n", "\n"), "\n")
	meta := make([]bool, len(lines))

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(lower, "model:") {
			model = strings.TrimSpace(trimmed[len("model:"):])
			meta[i] = true
			continue
		}
		for _, marker := range tool.TokenMarkers {
			if strings.Contains(lower, marker) {
				if n, ok := trailingInt(trimmed); ok {
					tokens = n
				}
				meta[i] = true
				break
			}
		}
	}

	begin := 0
	if tool.StartMarker != "" {
		for i, line := range lines {
			if strings.Contains(line, tool.StartMarker) {
				begin = i + 1
				break
			}
		}
	}

	var kept []string
lines:
	for i := begin; i < len(lines); i++ {
		if meta[i] {
			continue
		}
		trimmed := strings.TrimSpace(lines[i])
		for _, prefix := range tool.SkipPrefixes {
			if strings.HasPrefix(trimmed, prefix) {
				continue lines
			}
		}
		kept = append(kept, lines[i])
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), tokens, model
}

func trailingInt(s string) (int, bool) {
	matches := lastNumber.FindAllString(s, -1)
	if len(matches) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(matches[len(matches)-1], ",", ""))
	return n, err == nil
}

// findExecutable resolves name on PATH and then in common install locations.
// Unresolved names are returned unchanged so exec reports the error.
func findExecutable(name string) string {
	if strings.ContainsRune(name, os.PathSeparator) {
		return name
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	home, _ := os.UserHomeDir()
	candidates := []string{
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/opt/homebrew/bin", name),
		filepath.Join("/usr/bin", name),
	}
	if home != "" {
		candidates = append(candidates, filepath.Join(home, ".local", "bin", name))
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return name
}
