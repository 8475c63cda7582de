// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"

	"github.com/jeranaias/rigrun-router/internal/catalog"
	"github.com/jeranaias/rigrun-router/internal/router"
	"github.com/jeranaias/rigrun-router/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete router configuration.
type Config struct {
	Server   ServerConfig   `toml:"server" json:"server"`
	Auth     AuthConfig     `toml:"auth" json:"auth"`
	Routing  RoutingConfig  `toml:"routing" json:"routing"`
	Gateway  GatewayConfig  `toml:"gateway" json:"gateway"`
	Direct   DirectConfig   `toml:"direct" json:"direct"`
	CLI      CLIConfig      `toml:"cli" json:"cli"`
	Dispatch DispatchConfig `toml:"dispatch" json:"dispatch"`
	Storage  StorageConfig  `toml:"storage" json:"storage"`
	Logging  LoggingConfig  `toml:"logging" json:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr             string `toml:"addr" json:"addr"`
	ReadTimeoutSecs  int    `toml:"read_timeout_secs" json:"read_timeout_secs"`
	WriteTimeoutSecs int    `toml:"write_timeout_secs" json:"write_timeout_secs"`
	MaxBodyBytes     int64  `toml:"max_body_bytes" json:"max_body_bytes"`
	// RateLimitPerMinute is the per-user request rate (0 disables limiting).
	RateLimitPerMinute int      `toml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	RateBurst          int      `toml:"rate_burst" json:"rate_burst"`
	CORSOrigins        []string `toml:"cors_origins" json:"cors_origins"`
}

// AuthConfig selects how bearer tokens map to user ids.
type AuthConfig struct {
	// Mode is "token" (the bearer token is the user id) or "jwt".
	Mode      string `toml:"mode" json:"mode"`
	JWTSecret string `toml:"jwt_secret" json:"jwt_secret"`
	JWTIssuer string `toml:"jwt_issuer" json:"jwt_issuer"`
	// Operators may read analytics across all users.
	Operators []string `toml:"operators" json:"operators"`
}

// RoutingConfig tunes routing and pricing.
type RoutingConfig struct {
	// Markup is a decimal fraction, "0.10" for 10%.
	Markup      string          `toml:"markup" json:"markup"`
	Temperature float64         `toml:"temperature" json:"temperature"`
	Keywords    router.Keywords `toml:"keywords" json:"keywords"`
	// TransportOverrides maps model ids to gateway-api, direct-api or subprocess-cli.
	TransportOverrides map[string]string `toml:"transport_overrides" json:"transport_overrides"`
	// UrgentFallbacks is the gateway fallback order for urgent queries.
	UrgentFallbacks []string `toml:"urgent_fallbacks" json:"urgent_fallbacks"`
}

// GatewayConfig configures the unified gateway client.
type GatewayConfig struct {
	BaseURL     string `toml:"base_url" json:"base_url"`
	SiteURL     string `toml:"site_url" json:"site_url"`
	SiteName    string `toml:"site_name" json:"site_name"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
}

// DirectConfig holds provider API base URLs.
type DirectConfig struct {
	OpenAIURL    string `toml:"openai_url" json:"openai_url"`
	AnthropicURL string `toml:"anthropic_url" json:"anthropic_url"`
	GeminiURL    string `toml:"gemini_url" json:"gemini_url"`
	TimeoutSecs  int    `toml:"timeout_secs" json:"timeout_secs"`
}

// CLIConfig overrides the commands used by the subprocess adapter.
type CLIConfig struct {
	Codex  string `toml:"codex" json:"codex"`
	Claude string `toml:"claude" json:"claude"`
	Gemini string `toml:"gemini" json:"gemini"`
}

// DispatchConfig tunes the query pipeline.
type DispatchConfig struct {
	TimeoutSecs          int  `toml:"timeout_secs" json:"timeout_secs"`
	MaxConcurrentPerUser int  `toml:"max_concurrent_per_user" json:"max_concurrent_per_user"`
	CountFailedAttempts  bool `toml:"count_failed_attempts" json:"count_failed_attempts"`
}

// StorageConfig selects where profiles and history live.
type StorageConfig struct {
	// Driver is "memory" or "sqlite".
	Driver      string `toml:"driver" json:"driver"`
	Path        string `toml:"path" json:"path"`
	HistorySize int    `toml:"history_size" json:"history_size"`
	// SealKey encrypts stored credentials when set.
	SealKey string `toml:"seal_key" json:"seal_key"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a complete working configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               "127.0.0.1:8080",
			ReadTimeoutSecs:    15,
			WriteTimeoutSecs:   150,
			MaxBodyBytes:       1 << 20,
			RateLimitPerMinute: 60,
			RateBurst:          10,
		},
		Auth: AuthConfig{
			Mode:      "token",
			JWTIssuer: "rigrun-router",
		},
		Routing: RoutingConfig{
			Markup:             router.DefaultMarkup.String(),
			Temperature:        0.7,
			Keywords:           router.DefaultKeywords(),
			TransportOverrides: map[string]string{},
			UrgentFallbacks:    append([]string(nil), catalog.UrgentFallbacks...),
		},
		Gateway: GatewayConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			SiteURL:     "https://github.com/jeranaias/rigrun-router",
			SiteName:    "rigrun-router",
			TimeoutSecs: 120,
		},
		Direct: DirectConfig{
			OpenAIURL:    "https://api.openai.com/v1",
			AnthropicURL: "https://api.anthropic.com/v1",
			GeminiURL:    "https://generativelanguage.googleapis.com/v1beta",
			TimeoutSecs:  120,
		},
		Dispatch: DispatchConfig{
			TimeoutSecs:          120,
			MaxConcurrentPerUser: 4,
			CountFailedAttempts:  true,
		},
		Storage: StorageConfig{
			Driver:      "memory",
			HistorySize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// SetDefaults fills zero values left by a partial file.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = d.Server.ReadTimeoutSecs
	}
	if c.Server.WriteTimeoutSecs == 0 {
		c.Server.WriteTimeoutSecs = d.Server.WriteTimeoutSecs
	}
	if c.Server.MaxBodyBytes == 0 {
		c.Server.MaxBodyBytes = d.Server.MaxBodyBytes
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = d.Server.RateBurst
	}

	if c.Auth.Mode == "" {
		c.Auth.Mode = d.Auth.Mode
	}
	if c.Auth.JWTIssuer == "" {
		c.Auth.JWTIssuer = d.Auth.JWTIssuer
	}

	if c.Routing.Markup == "" {
		c.Routing.Markup = d.Routing.Markup
	}
	if c.Routing.Keywords.High == nil && c.Routing.Keywords.Medium == nil && c.Routing.Keywords.Low == nil {
		c.Routing.Keywords = d.Routing.Keywords
	}
	if c.Routing.TransportOverrides == nil {
		c.Routing.TransportOverrides = map[string]string{}
	}
	if c.Routing.UrgentFallbacks == nil {
		c.Routing.UrgentFallbacks = d.Routing.UrgentFallbacks
	}

	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = d.Gateway.BaseURL
	}
	if c.Gateway.TimeoutSecs == 0 {
		c.Gateway.TimeoutSecs = d.Gateway.TimeoutSecs
	}
	if c.Direct.OpenAIURL == "" {
		c.Direct.OpenAIURL = d.Direct.OpenAIURL
	}
	if c.Direct.AnthropicURL == "" {
		c.Direct.AnthropicURL = d.Direct.AnthropicURL
	}
	if c.Direct.GeminiURL == "" {
		c.Direct.GeminiURL = d.Direct.GeminiURL
	}
	if c.Direct.TimeoutSecs == 0 {
		c.Direct.TimeoutSecs = d.Direct.TimeoutSecs
	}

	if c.Dispatch.TimeoutSecs == 0 {
		c.Dispatch.TimeoutSecs = d.Dispatch.TimeoutSecs
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.HistorySize == 0 {
		c.Storage.HistorySize = d.Storage.HistorySize
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Storage.Path = filepath.Join(dir, "router.db")
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration and data directory.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".rigrun-router"), nil
}

// ConfigPath returns the default config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ensureSecurePermissions tightens a config file to 0600; it may hold secrets.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0o600 {
		if err := os.Chmod(path, 0o600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load reads path (or the default path when empty). A missing file yields
// the defaults. Environment overrides are applied before validation.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := decodeFile(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	return finish(cfg)
}

// LoadFromPath reads path, which must exist.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, err
	}
	return finish(cfg)
}

// LoadForEdit reads path like Load but skips environment overrides and
// validation, so the result can be changed and saved without capturing
// RIGRUN_* values.
func LoadForEdit(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if err := decodeFile(cfg, path); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	_ = ensureSecurePermissions(path)

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes cfg as TOML with mode 0600.
func Save(cfg *Config, path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# rigrun-router configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError is one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every invalid setting.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate checks every section and returns ValidationErrors.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Server.Addr == "" {
		add("server.addr", "must not be empty")
	}
	if c.Server.ReadTimeoutSecs < 0 {
		add("server.read_timeout_secs", "must not be negative")
	}
	if c.Server.WriteTimeoutSecs <= c.Dispatch.TimeoutSecs {
		add("server.write_timeout_secs", "must exceed dispatch.timeout_secs (%d)", c.Dispatch.TimeoutSecs)
	}
	if c.Server.MaxBodyBytes < 1024 {
		add("server.max_body_bytes", "must be at least 1024")
	}
	if c.Server.RateLimitPerMinute < 0 {
		add("server.rate_limit_per_minute", "must not be negative")
	}
	if c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be at least 1")
	}

	switch c.Auth.Mode {
	case "token":
	case "jwt":
		if len(c.Auth.JWTSecret) < 32 {
			add("auth.jwt_secret", "must be at least 32 bytes in jwt mode")
		}
	default:
		add("auth.mode", "invalid mode '%s', must be one of: token, jwt", c.Auth.Mode)
	}

	if m, err := decimal.NewFromString(c.Routing.Markup); err != nil {
		add("routing.markup", "not a decimal: %v", err)
	} else if m.IsNegative() || m.GreaterThan(decimal.NewFromInt(1)) {
		add("routing.markup", "must be between 0 and 1")
	}
	if c.Routing.Temperature < 0 || c.Routing.Temperature > 2 {
		add("routing.temperature", "must be between 0 and 2")
	}
	cat := catalog.Default()
	for _, id := range sortedKeys(c.Routing.TransportOverrides) {
		if !cat.Has(id) {
			add("routing.transport_overrides", "unknown model '%s'", id)
		}
		if _, err := catalog.ParseTransport(c.Routing.TransportOverrides[id]); err != nil {
			add("routing.transport_overrides", "%s: %v", id, err)
		}
	}
	for _, id := range c.Routing.UrgentFallbacks {
		if !cat.Has(id) {
			add("routing.urgent_fallbacks", "unknown model '%s'", id)
		}
	}

	validateURL(&errs, "gateway.base_url", c.Gateway.BaseURL)
	validateURL(&errs, "direct.openai_url", c.Direct.OpenAIURL)
	validateURL(&errs, "direct.anthropic_url", c.Direct.AnthropicURL)
	validateURL(&errs, "direct.gemini_url", c.Direct.GeminiURL)
	if c.Gateway.TimeoutSecs <= 0 {
		add("gateway.timeout_secs", "must be positive")
	}
	if c.Direct.TimeoutSecs <= 0 {
		add("direct.timeout_secs", "must be positive")
	}

	if c.Dispatch.TimeoutSecs <= 0 {
		add("dispatch.timeout_secs", "must be positive")
	}
	if c.Dispatch.MaxConcurrentPerUser < 0 {
		add("dispatch.max_concurrent_per_user", "must not be negative")
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			add("storage.path", "required for the sqlite driver")
		}
	default:
		add("storage.driver", "invalid driver '%s', must be one of: memory, sqlite", c.Storage.Driver)
	}
	if c.Storage.HistorySize < 1 {
		add("storage.history_size", "must be at least 1")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		add("logging.format", "invalid format '%s', must be one of: console, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(errs *ValidationErrors, field, raw string) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid URL '%s'", raw)})
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported environment variables:
//   - RIGRUN_ADDR: server.addr
//   - RIGRUN_AUTH_MODE: auth.mode
//   - RIGRUN_JWT_SECRET: auth.jwt_secret
//   - RIGRUN_GATEWAY_URL: gateway.base_url
//   - RIGRUN_QUERY_TIMEOUT: dispatch.timeout_secs
//   - RIGRUN_STORAGE_DRIVER: storage.driver
//   - RIGRUN_STORAGE_PATH: storage.path
//   - RIGRUN_SEAL_KEY: storage.seal_key
//   - RIGRUN_LOG_LEVEL: logging.level
//   - RIGRUN_LOG_FORMAT: logging.format
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("RIGRUN_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("RIGRUN_AUTH_MODE"); v != "" {
		c.Auth.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("RIGRUN_JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := os.Getenv("RIGRUN_GATEWAY_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("RIGRUN_QUERY_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Dispatch.TimeoutSecs = secs
		}
	}
	if v := os.Getenv("RIGRUN_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("RIGRUN_STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("RIGRUN_SEAL_KEY"); v != "" {
		c.Storage.SealKey = v
	}
	if v := os.Getenv("RIGRUN_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("RIGRUN_LOG_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
}

// =============================================================================
// DERIVED SETTINGS
// =============================================================================

// MarkupDecimal returns the parsed markup. Call after Validate.
func (c *Config) MarkupDecimal() decimal.Decimal {
	m, err := decimal.NewFromString(c.Routing.Markup)
	if err != nil {
		return router.DefaultMarkup
	}
	return m
}

// Overrides returns the parsed transport overrides. Call after Validate.
func (c *Config) Overrides() map[string]catalog.Transport {
	out := make(map[string]catalog.Transport, len(c.Routing.TransportOverrides))
	for id, name := range c.Routing.TransportOverrides {
		if t, err := catalog.ParseTransport(name); err == nil {
			out[id] = t
		}
	}
	return out
}

// DispatchTimeout returns dispatch.timeout_secs as a duration.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.Dispatch.TimeoutSecs) * time.Second
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get returns the value at a dotted toml key such as "server.addr".
func (c *Config) Get(key string) (any, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set assigns a string value to a dotted toml key, converting it to the
// field's type. Lists are comma separated.
func (c *Config) Set(key, value string) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown key: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct || field.Kind() == reflect.Map {
				return reflect.Value{}, fmt.Errorf("key %s is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("key '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
		if tag == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer value: %v", err)
		}
		field.SetInt(n)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid float value: %v", err)
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %v", err)
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("cannot set %s", field.Type())
		}
		var items []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
		field.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("cannot set %s", field.Type())
	}
	return nil
}

// Keys returns every settable dotted key.
func Keys() []string {
	var keys []string
	var walk func(t reflect.Type, prefix string)
	walk = func(t reflect.Type, prefix string) {
		for i := 0; i < t.NumField(); i++ {
			tag, _, _ := strings.Cut(t.Field(i).Tag.Get("toml"), ",")
			switch ft := t.Field(i).Type; ft.Kind() {
			case reflect.Struct:
				walk(ft, prefix+tag+".")
			case reflect.Map:
			default:
				keys = append(keys, prefix+tag)
			}
		}
	}
	walk(reflect.TypeOf(Config{}), "")
	return keys
}

// =============================================================================
// HELPERS
// =============================================================================

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	clone := *c
	clone.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	clone.Auth.Operators = append([]string(nil), c.Auth.Operators...)
	clone.Routing.Keywords = router.Keywords{
		High:   append([]string(nil), c.Routing.Keywords.High...),
		Medium: append([]string(nil), c.Routing.Keywords.Medium...),
		Low:    append([]string(nil), c.Routing.Keywords.Low...),
	}
	clone.Routing.UrgentFallbacks = append([]string(nil), c.Routing.UrgentFallbacks...)
	clone.Routing.TransportOverrides = make(map[string]string, len(c.Routing.TransportOverrides))
	for k, v := range c.Routing.TransportOverrides {
		clone.Routing.TransportOverrides[k] = v
	}
	return &clone
}

// String renders the config as JSON with secrets redacted.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Auth.JWTSecret != "" {
		safe.Auth.JWTSecret = "[REDACTED]"
	}
	if safe.Storage.SealKey != "" {
		safe.Storage.SealKey = "[REDACTED]"
	}
	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
