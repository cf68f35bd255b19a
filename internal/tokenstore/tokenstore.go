// Package tokenstore persists the OAuth material the gateway binds to
// each state token: one row per provider user, one row per active key,
// and one version-incrementing provider-key row per user. Schema is
// created idempotently at startup with CREATE TABLE IF NOT EXISTS,
// mirroring the raw SQL the original service ran rather than a
// migration ladder.
package tokenstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"
)

// Store wraps a bun.DB over a sqlite connection.
type Store struct {
	db *bun.DB
}

// Open opens (or creates) the sqlite database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := sqldb.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := sqldb.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())
	s := &Store{db: db}
	if err := s.createSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) createSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS twitch_users (
			id INTEGER PRIMARY KEY,
			joined_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS streamlabs_users (
			id INTEGER PRIMARY KEY,
			joined_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS active_keys (
			state TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS active_twitch_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			authentication TEXT NOT NULL,
			refresh TEXT NOT NULL,
			user INTEGER NOT NULL UNIQUE REFERENCES twitch_users(id),
			state TEXT NOT NULL REFERENCES active_keys(state),
			version INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS active_stream_labs_keys (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			authentication TEXT NOT NULL,
			refresh TEXT NOT NULL,
			user INTEGER NOT NULL UNIQUE REFERENCES streamlabs_users(id),
			state TEXT NOT NULL REFERENCES active_keys(state),
			version INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// TwitchUser mirrors the twitch_users row shape.
type TwitchUser struct {
	bun.BaseModel `bun:"table:twitch_users"`

	ID       int64 `bun:"id,pk"`
	JoinedAt int64 `bun:"joined_at"`
}

// StreamlabsUser mirrors the streamlabs_users row shape.
type StreamlabsUser struct {
	bun.BaseModel `bun:"table:streamlabs_users"`

	ID       int64 `bun:"id,pk"`
	JoinedAt int64 `bun:"joined_at"`
}

// ActiveKey mirrors the active_keys row shape: the state_token itself.
type ActiveKey struct {
	bun.BaseModel `bun:"table:active_keys"`

	State     string `bun:"state,pk"`
	CreatedAt int64  `bun:"created_at"`
}

// ProviderKey mirrors both active_twitch_keys and active_stream_labs_keys,
// which share an identical column layout.
type ProviderKey struct {
	ID             int64  `bun:"id,pk,autoincrement"`
	Authentication string `bun:"authentication"`
	Refresh        string `bun:"refresh"`
	User           int64  `bun:"user"`
	State          string `bun:"state"`
	Version        int64  `bun:"version"`
}

// InsertOrIgnoreActiveKey creates the active_keys row for state if it
// does not already exist.
func (s *Store) InsertOrIgnoreActiveKey(ctx context.Context, state string) error {
	_, err := s.db.NewInsert().
		Model(&ActiveKey{State: state, CreatedAt: time.Now().UnixMilli()}).
		On("CONFLICT (state) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert active key: %w", err)
	}
	return nil
}

// InsertOrIgnoreTwitchUser creates the twitch_users row for id if absent.
func (s *Store) InsertOrIgnoreTwitchUser(ctx context.Context, id int64) error {
	_, err := s.db.NewInsert().
		Model(&TwitchUser{ID: id, JoinedAt: time.Now().UnixMilli()}).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert twitch user: %w", err)
	}
	return nil
}

// InsertOrIgnoreStreamlabsUser creates the streamlabs_users row for id if absent.
func (s *Store) InsertOrIgnoreStreamlabsUser(ctx context.Context, id int64) error {
	_, err := s.db.NewInsert().
		Model(&StreamlabsUser{ID: id, JoinedAt: time.Now().UnixMilli()}).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert streamlabs user: %w", err)
	}
	return nil
}

// UpsertTwitchKey inserts or updates the active_twitch_keys row for user,
// bumping version on conflict exactly as the original raw SQL did.
func (s *Store) UpsertTwitchKey(ctx context.Context, user int64, access, refresh, state string) error {
	return s.upsertProviderKey(ctx, "active_twitch_keys", user, access, refresh, state)
}

// UpsertStreamlabsKey inserts or updates the active_stream_labs_keys row for user.
func (s *Store) UpsertStreamlabsKey(ctx context.Context, user int64, access, refresh, state string) error {
	return s.upsertProviderKey(ctx, "active_stream_labs_keys", user, access, refresh, state)
}

func (s *Store) upsertProviderKey(ctx context.Context, table string, user int64, access, refresh, state string) error {
	query := fmt.Sprintf(`INSERT INTO %s (authentication, refresh, user, state, version)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(user) DO UPDATE SET
			authentication = excluded.authentication,
			refresh = excluded.refresh,
			state = excluded.state,
			version = %s.version + 1`, table, table)
	if _, err := s.db.ExecContext(ctx, query, access, refresh, user, state); err != nil {
		return fmt.Errorf("upsert %s: %w", table, err)
	}
	return nil
}

// GetTwitchKeyByState looks up the active_twitch_keys row bound to state.
// Returns (nil, nil) if no row exists.
func (s *Store) GetTwitchKeyByState(ctx context.Context, state string) (*ProviderKey, error) {
	return s.getProviderKeyByState(ctx, "active_twitch_keys", state)
}

// GetStreamlabsKeyByState looks up the active_stream_labs_keys row bound to state.
func (s *Store) GetStreamlabsKeyByState(ctx context.Context, state string) (*ProviderKey, error) {
	return s.getProviderKeyByState(ctx, "active_stream_labs_keys", state)
}

func (s *Store) getProviderKeyByState(ctx context.Context, table, state string) (*ProviderKey, error) {
	var pk ProviderKey
	query := fmt.Sprintf("SELECT id, authentication, refresh, user, state, version FROM %s WHERE state = ?", table)
	row := s.db.QueryRowContext(ctx, query, state)
	if err := row.Scan(&pk.ID, &pk.Authentication, &pk.Refresh, &pk.User, &pk.State, &pk.Version); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s by state: %w", table, err)
	}
	return &pk, nil
}
