// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jeranaias/rigrun-router/internal/profile"
	"github.com/jeranaias/rigrun-router/internal/telemetry"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	id          TEXT PRIMARY KEY,
	tier        TEXT NOT NULL DEFAULT 'free',
	credentials TEXT NOT NULL DEFAULT '{}',
	cli         TEXT NOT NULL DEFAULT '{}',
	preferences TEXT NOT NULL DEFAULT '{}',
	usage       INTEGER NOT NULL DEFAULT 0,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS queries (
	seq                INTEGER PRIMARY KEY AUTOINCREMENT,
	query_id           TEXT NOT NULL UNIQUE,
	user_id            TEXT NOT NULL,
	message            TEXT NOT NULL,
	model              TEXT NOT NULL,
	rule               TEXT NOT NULL DEFAULT '',
	tokens             INTEGER NOT NULL DEFAULT 0,
	processing_seconds REAL NOT NULL DEFAULT 0,
	cost               TEXT NOT NULL DEFAULT '0',
	error_kind         TEXT NOT NULL DEFAULT '',
	created_at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_queries_user ON queries(user_id, seq);
`

// Options configures Open.
type Options struct {
	// Path is the database file. Parent directories are created.
	Path string

	// SealKey, when set, encrypts stored credentials.
	SealKey string

	// KDFIterations overrides the PBKDF2 work factor (0 = default).
	KDFIterations int

	// MaxHistory caps the queries table; 0 keeps everything.
	MaxHistory int
}

// SQLiteStore is a profile.Store and telemetry.History backed by SQLite.
type SQLiteStore struct {
	db         *sql.DB
	sealer     *sealer
	maxHistory int
	now        func() time.Time
}

var (
	_ profile.Store     = (*SQLiteStore)(nil)
	_ telemetry.History = (*SQLiteStore)(nil)
)

// Open opens or creates the database at opts.Path.
func Open(ctx context.Context, opts Options) (*SQLiteStore, error) {
	if opts.Path == "" {
		return nil, errors.New("storage: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := opts.Path + "?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps
	// IncrementUsage and Update serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	s := &SQLiteStore{db: db, maxHistory: opts.MaxHistory, now: time.Now}
	if opts.SealKey != "" {
		salt, err := s.salt(ctx)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		s.sealer, err = newSealer(opts.SealKey, salt, opts.KDFIterations)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close implements profile.Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// salt returns the database's KDF salt, creating it on first use.
func (s *SQLiteStore) salt(ctx context.Context) ([]byte, error) {
	var salt []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'kdf_salt'`).Scan(&salt)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}
	salt, err = generateSalt()
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES ('kdf_salt', ?)`, salt); err != nil {
		return nil, fmt.Errorf("failed to store salt: %w", err)
	}
	return salt, nil
}

// =============================================================================
// PROFILES
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanProfile(row rowScanner) (*profile.Profile, error) {
	var (
		p                      profile.Profile
		tier, creds, cli, pref string
		created, updated       string
	)
	if err := row.Scan(&p.ID, &tier, &creds, &cli, &pref, &p.Usage, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, profile.ErrNotFound
		}
		return nil, err
	}
	p.Tier = profile.Tier(tier)

	plain, err := s.sealer.open(creds)
	if err != nil {
		return nil, fmt.Errorf("profile %s credentials: %w", p.ID, err)
	}
	if err := json.Unmarshal(plain, &p.Credentials); err != nil {
		return nil, fmt.Errorf("profile %s credentials: %w", p.ID, err)
	}
	zero(plain)
	if err := json.Unmarshal([]byte(cli), &p.CLI); err != nil {
		return nil, fmt.Errorf("profile %s cli flags: %w", p.ID, err)
	}
	if err := json.Unmarshal([]byte(pref), &p.Preferences); err != nil {
		return nil, fmt.Errorf("profile %s preferences: %w", p.ID, err)
	}
	if p.Credentials == nil {
		p.Credentials = map[string]string{}
	}
	if p.CLI == nil {
		p.CLI = map[string]bool{}
	}
	if p.Preferences == nil {
		p.Preferences = map[string]string{}
	}
	p.CreatedAt, _ = time.Parse(timeLayout, created)
	p.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &p, nil
}

const selectProfile = `SELECT id, tier, credentials, cli, preferences, usage, created_at, updated_at
	FROM profiles WHERE id = ?`

// Get implements profile.Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*profile.Profile, error) {
	return s.scanProfile(s.db.QueryRowContext(ctx, selectProfile, id))
}

// GetOrCreate implements profile.Store.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, id string) (*profile.Profile, error) {
	p, err := s.Get(ctx, id)
	if !errors.Is(err, profile.ErrNotFound) {
		return p, err
	}
	if _, err := s.Update(ctx, id, profile.Update{}); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Update implements profile.Store.
func (s *SQLiteStore) Update(ctx context.Context, id string, u profile.Update) (*profile.Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	p, err := s.scanProfile(tx.QueryRowContext(ctx, selectProfile, id))
	switch {
	case errors.Is(err, profile.ErrNotFound):
		p = profile.New(id, now)
	case err != nil:
		return nil, err
	}
	u.Apply(p, now)

	creds, err := json.Marshal(p.Credentials)
	if err != nil {
		return nil, err
	}
	sealedCreds, err := s.sealer.seal(creds)
	zero(creds)
	if err != nil {
		return nil, err
	}
	cli, err := json.Marshal(p.CLI)
	if err != nil {
		return nil, err
	}
	pref, err := json.Marshal(p.Preferences)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO profiles
		(id, tier, credentials, cli, preferences, usage, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tier = excluded.tier,
			credentials = excluded.credentials,
			cli = excluded.cli,
			preferences = excluded.preferences,
			updated_at = excluded.updated_at`,
		p.ID, string(p.Tier), sealedCreds, string(cli), string(pref),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save profile: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// IncrementUsage implements profile.Store.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, id string) (int, error) {
	var usage int
	err := s.db.QueryRowContext(ctx,
		`UPDATE profiles SET usage = usage + 1, updated_at = ? WHERE id = ? RETURNING usage`,
		formatTime(s.now()), id,
	).Scan(&usage)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, profile.ErrNotFound
	}
	return usage, err
}

// ReserveUsage implements profile.Store.
func (s *SQLiteStore) ReserveUsage(ctx context.Context, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var tier string
	var usage int
	err = tx.QueryRowContext(ctx, `SELECT tier, usage FROM profiles WHERE id = ?`, id).Scan(&tier, &usage)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, profile.ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	err = tx.QueryRowContext(ctx,
		`UPDATE profiles SET usage = usage + 1, updated_at = ?
			WHERE id = ? AND usage < ? RETURNING usage`,
		formatTime(s.now()), id, profile.Tier(tier).Quota(),
	).Scan(&usage)
	if errors.Is(err, sql.ErrNoRows) {
		return usage, profile.ErrQuotaReached
	}
	if err != nil {
		return 0, err
	}
	return usage, tx.Commit()
}

// ReleaseUsage implements profile.Store.
func (s *SQLiteStore) ReleaseUsage(ctx context.Context, id string) (int, error) {
	var usage int
	err := s.db.QueryRowContext(ctx,
		`UPDATE profiles SET usage = MAX(usage - 1, 0), updated_at = ? WHERE id = ? RETURNING usage`,
		formatTime(s.now()), id,
	).Scan(&usage)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, profile.ErrNotFound
	}
	return usage, err
}

// =============================================================================
// HISTORY
// =============================================================================

// Record implements telemetry.History.
func (s *SQLiteStore) Record(ctx context.Context, e telemetry.Entry) error {
	e = telemetry.Truncate(e)
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO queries
		(query_id, user_id, message, model, rule, tokens, processing_seconds, cost, error_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.QueryID, e.UserID, e.Message, e.Model, e.Rule, e.TotalTokens,
		e.ProcessingSeconds, e.Cost.String(), e.ErrorKind, formatTime(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to record query: %w", err)
	}
	if s.maxHistory > 0 {
		_, err = s.db.ExecContext(ctx,
			`DELETE FROM queries WHERE seq <= (SELECT MAX(seq) FROM queries) - ?`, s.maxHistory)
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
	}
	return nil
}

// Entries implements telemetry.History.
func (s *SQLiteStore) Entries(ctx context.Context, f telemetry.Filter) ([]telemetry.Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(f.Since))
	}

	q := `SELECT query_id, user_id, message, model, rule, tokens, processing_seconds, cost, error_kind, created_at
		FROM queries`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq DESC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []telemetry.Entry
	for rows.Next() {
		var (
			e       telemetry.Entry
			cost    string
			created string
		)
		if err := rows.Scan(&e.QueryID, &e.UserID, &e.Message, &e.Model, &e.Rule, &e.TotalTokens,
			&e.ProcessingSeconds, &cost, &e.ErrorKind, &created); err != nil {
			return nil, err
		}
		e.Cost, err = decimal.NewFromString(cost)
		if err != nil {
			return nil, fmt.Errorf("query %s cost: %w", e.QueryID, err)
		}
		e.Timestamp, _ = time.Parse(timeLayout, created)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Oldest first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
