// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigrun-router/internal/adapter"
	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/config"
	"github.com/jeranaias/rigrun-router/internal/dispatch"
	"github.com/jeranaias/rigrun-router/internal/server"
)

// =============================================================================
// HARNESS
// =============================================================================

type result struct {
	stdout string
	stderr string
	code   int
}

// fixture is a private home directory with a sqlite-backed config, so state
// persists across command invocations.
type fixture struct {
	t       *testing.T
	dir     string
	cfgPath string
}

func newFixture(t *testing.T, extra string) *fixture {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("USERPROFILE", dir)
	t.Setenv("RIGRUN_USER", "")
	t.Setenv("NO_COLOR", "1")

	cfgPath := filepath.Join(dir, "config.toml")
	body := "[storage]\ndriver = \"sqlite\"\npath = '" + filepath.Join(dir, "router.db") + "'\n" + extra
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return &fixture{t: t, dir: dir, cfgPath: cfgPath}
}

func (f *fixture) run(stdin string, args ...string) result {
	f.t.Helper()
	root := NewRootCommand()
	var out, errb bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errb)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", f.cfgPath}, args...))

	code := ExitOK
	if err := root.ExecuteContext(context.Background()); err != nil {
		printError(&errb, err)
		code = exitCode(err)
	}
	return result{stdout: out.String(), stderr: errb.String(), code: code}
}

func (f *fixture) ok(args ...string) string {
	f.t.Helper()
	r := f.run("", args...)
	require.Equal(f.t, ExitOK, r.code, "stderr: %s", r.stderr)
	return r.stdout
}

func decodeJSON(t *testing.T, s string, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(s), v), s)
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestVersion(t *testing.T) {
	f := newFixture(t, "")
	out := f.ok("version")
	assert.Contains(t, out, "rigrun-router "+Version)
	assert.Contains(t, out, runtime.GOOS)
}

func TestModels(t *testing.T) {
	f := newFixture(t, "")

	out := f.ok("models")
	assert.Contains(t, out, "openai/codex")
	assert.NotContains(t, out, "anthropic/")

	var listing dispatch.Listing
	decodeJSON(t, f.ok("models", "--all", "--json"), &listing)
	assert.Len(t, listing.AllModels, len(catalog.Default().All()))
	assert.Equal(t, []string{"openai"}, listing.AvailableProviders)

	out = f.ok("models", "--all", "--provider", "google")
	assert.Contains(t, out, "google/")
	assert.NotContains(t, out, "openai/")
}

func TestClassify(t *testing.T) {
	f := newFixture(t, "")
	assert.Equal(t, "high\n", f.ok("classify", "Please analyze this codebase"))
	assert.Equal(t, "low\n", f.ok("classify", "what is a goroutine"))
	assert.Equal(t, "medium\n", f.ok("classify", "hello"))

	var v map[string]string
	decodeJSON(t, f.ok("--json", "classify", "explain channels"), &v)
	assert.Equal(t, "medium", v["complexity"])
}

func TestRoute(t *testing.T) {
	f := newFixture(t, "")

	var v map[string]any
	decodeJSON(t, f.ok("--json", "route", "what is a mutex"), &v)
	assert.Equal(t, "automatic", v["rule"])
	assert.Equal(t, "low", v["complexity"])
	assert.Equal(t, true, v["classified"])

	decodeJSON(t, f.ok("--json", "route", "--model", "openai/codex", "anything"), &v)
	assert.Equal(t, "openai/codex", v["model"])
	assert.Equal(t, "explicit-model", v["rule"])
	assert.Equal(t, true, v["available"])

	out := f.ok("route", "--model", "openai/codex", "anything")
	assert.Contains(t, out, "Model:")
	assert.Contains(t, out, "explicit model")
}

func TestRoute_BadInput(t *testing.T) {
	f := newFixture(t, "")

	r := f.run("", "route", "--model", "nope/model", "hi")
	assert.Equal(t, ExitUsage, r.code)
	assert.Contains(t, r.stderr, "models --all")

	r = f.run("", "route", "--priority", "whenever", "hi")
	assert.Equal(t, ExitUsage, r.code)

	r = f.run("", "route", "--provider", "acme", "hi")
	assert.Equal(t, ExitUsage, r.code)
}

func TestUser_Lifecycle(t *testing.T) {
	f := newFixture(t, "")

	var uc dispatch.UserConfig
	decodeJSON(t, f.ok("--json", "user", "show"), &uc)
	assert.Equal(t, DefaultUser, uc.UserID)
	assert.Equal(t, 50, uc.Quota)
	assert.Empty(t, uc.EnabledProviders)

	f.ok("user", "set-tier", "pro")
	f.ok("user", "set-key", "openai", "sk-test")
	f.ok("user", "set-cli", "claude", "on")

	decodeJSON(t, f.ok("--json", "user", "show"), &uc)
	assert.Equal(t, 1000, uc.Quota)
	assert.Equal(t, []string{"openai"}, uc.EnabledProviders)
	assert.True(t, uc.CLIConfigs["claude"])
	assert.Contains(t, uc.AvailableProviders, "anthropic")

	r := f.run("sk-piped\n", "user", "set-key", "anthropic")
	require.Equal(t, ExitOK, r.code, r.stderr)
	decodeJSON(t, f.ok("--json", "user", "show"), &uc)
	assert.Equal(t, []string{"anthropic", "openai"}, uc.EnabledProviders)

	f.ok("user", "set-key", "--remove", "openai")
	decodeJSON(t, f.ok("--json", "user", "show"), &uc)
	assert.Equal(t, []string{"anthropic"}, uc.EnabledProviders)

	out := f.ok("user", "show")
	assert.Contains(t, out, "pro")
	assert.NotContains(t, out, "sk-piped")
}

func TestUser_SeparateUsers(t *testing.T) {
	f := newFixture(t, "")
	f.ok("--user", "alice", "user", "set-tier", "enterprise")

	var uc dispatch.UserConfig
	decodeJSON(t, f.ok("--json", "user", "show"), &uc)
	assert.Equal(t, "free", string(uc.Tier))

	t.Setenv("RIGRUN_USER", "alice")
	decodeJSON(t, f.ok("--json", "user", "show"), &uc)
	assert.Equal(t, "enterprise", string(uc.Tier))
}

func TestUser_BadInput(t *testing.T) {
	f := newFixture(t, "")
	tests := []struct {
		name string
		args []string
	}{
		{"unknown tier", []string{"user", "set-tier", "platinum"}},
		{"unknown provider", []string{"user", "set-key", "acme", "k"}},
		{"unknown cli", []string{"user", "set-cli", "vim", "on"}},
		{"bad switch", []string{"user", "set-cli", "claude", "maybe"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, ExitUsage, f.run("", tt.args...).code)
		})
	}

	r := f.run("", "user", "set-key", "openai")
	assert.Equal(t, ExitUsage, r.code)
}

func TestAsk_NoCredential(t *testing.T) {
	f := newFixture(t, "")
	r := f.run("", "ask", "--model", "openai/gpt-5", "hello")
	assert.Equal(t, ExitBackend, r.code)
	assert.Contains(t, r.stderr, "set-key")
}

func TestAsk_EmptyMessage(t *testing.T) {
	f := newFixture(t, "")
	r := f.run("   \n", "ask", "-")
	assert.Equal(t, ExitUsage, r.code)
}

func TestAnalytics_RequiresTier(t *testing.T) {
	f := newFixture(t, "")
	r := f.run("", "analytics")
	assert.Equal(t, ExitError, r.code)
	assert.Contains(t, r.stderr, "set-tier pro")
}

// fakeCodex writes a shell script that prints codex-style output.
func fakeCodex(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a unix shell")
	}
	path := filepath.Join(dir, "codex")
	script := `#!/bin/sh
echo "[2025-08-01T10:00:00] OpenAI Codex v0.1"
echo "model: gpt-5"
echo "[2025-08-01T10:00:01] codex"
echo "Hello from the script."
echo "[2025-08-01T10:00:02] tokens used: 1,234"
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestAsk_ThroughCLITool(t *testing.T) {
	dir := t.TempDir()
	codex := fakeCodex(t, dir)
	f := newFixture(t, "[cli]\ncodex = '"+codex+"'\n")

	out := f.ok("ask", "--model", "openai/codex", "say hello")
	assert.Contains(t, out, "Hello from the script.")
	assert.Contains(t, out, "1,234 tokens")

	var res map[string]any
	decodeJSON(t, f.ok("--json", "ask", "--model", "openai/codex", "say hello"), &res)
	assert.Equal(t, "Hello from the script.", res["response"])
	assert.EqualValues(t, 1234, res["tokens_used"])
	assert.NotEmpty(t, res["query_id"])

	f.ok("user", "set-tier", "pro")
	var a map[string]any
	decodeJSON(t, f.ok("--json", "analytics"), &a)
	assert.EqualValues(t, 2, a["total_queries"])

	var uc dispatch.UserConfig
	decodeJSON(t, f.ok("--json", "user", "show"), &uc)
	assert.Equal(t, 2, uc.Usage)

	out = f.ok("analytics", "--all")
	assert.Contains(t, out, "2 queries")
}

func TestChat_Piped(t *testing.T) {
	dir := t.TempDir()
	codex := fakeCodex(t, dir)
	f := newFixture(t, "[cli]\ncodex = '"+codex+"'\n")

	r := f.run("/model openai/codex\nfirst\n/priority bogus\n/usage\n/quit\nnever sent\n", "chat")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "model: openai/codex")
	assert.NotContains(t, r.stdout, "model:  ")
	assert.Equal(t, 1, strings.Count(r.stdout, "Hello from the script."))
	assert.Contains(t, r.stdout, "1 of 50 queries used")
	assert.Contains(t, r.stderr, "unknown priority")
}

func TestConfig_GetSet(t *testing.T) {
	f := newFixture(t, "")

	assert.Equal(t, "127.0.0.1:8080\n", f.ok("config", "get", "server.addr"))
	f.ok("config", "set", "server.addr", "127.0.0.1:9000")
	assert.Equal(t, "127.0.0.1:9000\n", f.ok("config", "get", "server.addr"))

	f.ok("config", "set", "auth.operators", "root, ops")
	assert.Equal(t, "root,ops\n", f.ok("config", "get", "auth.operators"))

	// The edited file keeps the storage section it started with.
	cfg, err := config.LoadFromPath(f.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, []string{"root", "ops"}, cfg.Auth.Operators)

	assert.Equal(t, f.cfgPath+"\n", f.ok("config", "path"))
	assert.Contains(t, f.ok("config", "keys"), "routing.markup")
}

func TestConfig_SetRejectsInvalid(t *testing.T) {
	f := newFixture(t, "")
	before, err := os.ReadFile(f.cfgPath)
	require.NoError(t, err)

	r := f.run("", "config", "set", "routing.markup", "5")
	assert.Equal(t, ExitConfig, r.code)
	assert.Contains(t, r.stderr, "routing.markup")

	assert.Equal(t, ExitUsage, f.run("", "config", "set", "server.port", "1").code)
	assert.Equal(t, ExitUsage, f.run("", "config", "get", "nope").code)

	after, err := os.ReadFile(f.cfgPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestConfig_EnvNotPersisted(t *testing.T) {
	f := newFixture(t, "")
	t.Setenv("RIGRUN_LOG_LEVEL", "debug")
	f.ok("config", "set", "server.addr", "127.0.0.1:9001")

	data, err := os.ReadFile(f.cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `level = "debug"`)
}

func TestConfig_ShowRedacts(t *testing.T) {
	f := newFixture(t, "[auth]\nmode = \"jwt\"\njwt_secret = \"0123456789abcdef0123456789abcdef\"\n")
	out := f.ok("config", "show")
	assert.Contains(t, out, "[REDACTED]")
	assert.NotContains(t, out, "0123456789abcdef")
}

func TestToken_Issue(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	f := newFixture(t, "[auth]\nmode = \"jwt\"\njwt_secret = \""+secret+"\"\n")

	token := strings.TrimSpace(f.ok("token", "issue", "alice", "--ttl", "1h"))
	user, err := server.NewJWTAuth(secret, "rigrun-router").Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", user)

	var v map[string]string
	decodeJSON(t, f.ok("--json", "--user", "bob", "token", "issue"), &v)
	assert.Equal(t, "bob", v["user_id"])
	assert.NotEmpty(t, v["expires_at"])

	assert.Equal(t, ExitUsage, f.run("", "token", "issue", "--ttl=-1h").code)
}

func TestToken_NeedsSecret(t *testing.T) {
	f := newFixture(t, "")
	r := f.run("", "token", "issue")
	assert.Equal(t, ExitUsage, r.code)
	assert.Contains(t, r.stderr, "jwt_secret")
}

func TestInvalidConfigFile(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, os.WriteFile(f.cfgPath, []byte("[server]\nport = 1\n"), 0o600))
	r := f.run("", "models")
	assert.NotEqual(t, ExitOK, r.code)
	assert.Contains(t, r.stderr, "unknown keys")
}

func TestLockDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Path = filepath.Join(dir, "router.db")

	first, err := lockDataDir(cfg)
	require.NoError(t, err)
	defer first.Unlock()

	_, err = lockDataDir(cfg)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

// =============================================================================
// HELPERS
// =============================================================================

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitOK},
		{usagef("bad"), ExitUsage},
		{dispatch.ErrInvalidQuery, ExitUsage},
		{catalog.ErrUnknownModel, ExitUsage},
		{config.ValidationErrors{{Field: "x", Message: "y"}}, ExitConfig},
		{dispatch.ErrQuotaExceeded, ExitQuota},
		{dispatch.ErrNoCredential, ExitBackend},
		{fmt.Errorf("call: %w", adapter.ErrTimeout), ExitBackend},
		{errors.New("other"), ExitError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}

func TestTable_Render(t *testing.T) {
	s := NewStyles(&bytes.Buffer{})
	out := Table{
		Headers: []string{"ID", "NAME"},
		Rows:    [][]string{{"a", "alpha"}, {"longer-id", "b"}},
	}.Render(s)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	assert.Equal(t, "ID         NAME", lines[0])
	assert.Equal(t, "---------  -----", lines[1])
	assert.Equal(t, "a          alpha", lines[2])
	assert.Equal(t, "longer-id  b", lines[3])
}

func TestMessageFrom(t *testing.T) {
	msg, err := messageFrom([]string{"a", "b"}, strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "a b", msg)

	msg, err = messageFrom([]string{"-"}, strings.NewReader("  from stdin \n"))
	require.NoError(t, err)
	assert.Equal(t, "from stdin", msg)
}

func TestFormatCost(t *testing.T) {
	assert.Equal(t, "$0", formatCost(decimal.Zero))
	assert.Equal(t, "$0.000120", formatCost(decimal.RequireFromString("0.00012")))
	assert.Equal(t, "$1.5000", formatCost(decimal.RequireFromString("1.5")))
}
