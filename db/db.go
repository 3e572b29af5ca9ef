// Package db provides database connection helpers, schema migration, and small data access helpers.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
	_ "modernc.org/sqlite"             // cgo-free sqlite driver registered as 'sqlite'

	"github.com/onnwee/trivia-tender/backend/crypto"
)

var (
	// encryptor is the global encryptor instance for OAuth token encryption
	encryptor     crypto.Encryptor
	encryptorOnce sync.Once
	encryptorErr  error
)

// initEncryptor initializes the global encryptor from ENCRYPTION_KEY environment variable.
// If ENCRYPTION_KEY is not set, encryption is disabled (encryption_version = 0).
// This is called lazily on first use.
func initEncryptor() {
	encryptorOnce.Do(func() {
		key := os.Getenv("ENCRYPTION_KEY")
		if key == "" {
			slog.Warn("ENCRYPTION_KEY not set, OAuth tokens will be stored in plaintext (not recommended for production)", slog.String("component", "db_encryption"))
			return
		}

		enc, err := crypto.NewAESEncryptor(key)
		if err != nil {
			encryptorErr = fmt.Errorf("failed to initialize encryption: %w", err)
			slog.Error("encryption initialization failed", slog.Any("error", encryptorErr), slog.String("component", "db_encryption"))
			return
		}

		encryptor = enc
		slog.Info("OAuth token encryption enabled (AES-256-GCM)", slog.String("component", "db_encryption"))
	})
}

// getEncryptor returns the global encryptor instance, initializing it if necessary.
// Returns nil if encryption is not configured (ENCRYPTION_KEY not set).
func getEncryptor() (crypto.Encryptor, error) {
	initEncryptor()
	if encryptorErr != nil {
		return nil, encryptorErr
	}
	return encryptor, nil
}

// Connect opens the database selected by the resolved configuration. The driver is "pgx" for
// Postgres or "sqlite" for a local file database. Both backends serve the same schema and the
// repositories only use SQL that works on either. Defaulting lives in config.Load, so the
// values here are required.
func Connect(driver, dsn string) (*sql.DB, error) {
	if driver == "" || dsn == "" {
		return nil, fmt.Errorf("db: driver and dsn are required")
	}
	return sql.Open(driver, dsn)
}

// Migrate applies idempotent schema changes for all required tables and indices, using the
// dialect matching the given driver name ("pgx" or "sqlite").
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	if driver == "sqlite" {
		stmts = sqliteSchema
	} else {
		stmts = postgresSchema
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		handle TEXT UNIQUE NOT NULL,
		twitch_channel_id TEXT,
		is_enabled BOOLEAN DEFAULT TRUE,
		recurring_actions_enabled BOOLEAN DEFAULT FALSE,
		location_id TEXT,
		wotd_language TEXT,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		updated_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS user_ids (
		handle TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS recurring_actions (
		twitch_channel_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		is_enabled BOOLEAN DEFAULT FALSE,
		minutes_between INTEGER,
		configuration_json TEXT,
		updated_at TIMESTAMPTZ,
		PRIMARY KEY (twitch_channel_id, action_type)
	)`,
	`CREATE TABLE IF NOT EXISTS most_recent_recurring_actions (
		twitch_channel_id TEXT PRIMARY KEY,
		twitch_channel TEXT,
		action_type TEXT NOT NULL,
		dispatched_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cuteness (
		twitch_channel_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		username TEXT,
		points BIGINT DEFAULT 0,
		updated_at TIMESTAMPTZ,
		PRIMARY KEY (twitch_channel_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		time_zone TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS super_trivia_settings (
		twitch_channel_id TEXT PRIMARY KEY,
		is_enabled BOOLEAN DEFAULT FALSE,
		number_of_games INTEGER DEFAULT 1,
		per_user_attempts INTEGER DEFAULT 2,
		points_for_winning INTEGER DEFAULT 25,
		regular_multiplier INTEGER DEFAULT 1,
		shiny_multiplier INTEGER DEFAULT 8,
		seconds_to_live INTEGER DEFAULT 50,
		updated_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_tokens (
		provider TEXT PRIMARY KEY,
		access_token TEXT,
		refresh_token TEXT,
		expires_at TIMESTAMPTZ,
		scope TEXT,
		updated_at TIMESTAMPTZ DEFAULT NOW(),
		encryption_version INTEGER DEFAULT 0,
		encryption_key_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TIMESTAMPTZ DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_recurring ON users(is_enabled, recurring_actions_enabled)`,
	`CREATE INDEX IF NOT EXISTS idx_cuteness_points ON cuteness(twitch_channel_id, points)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		handle TEXT UNIQUE NOT NULL,
		twitch_channel_id TEXT,
		is_enabled BOOLEAN DEFAULT TRUE,
		recurring_actions_enabled BOOLEAN DEFAULT FALSE,
		location_id TEXT,
		wotd_language TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS user_ids (
		handle TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS recurring_actions (
		twitch_channel_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		is_enabled BOOLEAN DEFAULT FALSE,
		minutes_between INTEGER,
		configuration_json TEXT,
		updated_at TIMESTAMP,
		PRIMARY KEY (twitch_channel_id, action_type)
	)`,
	`CREATE TABLE IF NOT EXISTS most_recent_recurring_actions (
		twitch_channel_id TEXT PRIMARY KEY,
		twitch_channel TEXT,
		action_type TEXT NOT NULL,
		dispatched_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cuteness (
		twitch_channel_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		username TEXT,
		points BIGINT DEFAULT 0,
		updated_at TIMESTAMP,
		PRIMARY KEY (twitch_channel_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT,
		latitude REAL,
		longitude REAL,
		time_zone TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS super_trivia_settings (
		twitch_channel_id TEXT PRIMARY KEY,
		is_enabled BOOLEAN DEFAULT FALSE,
		number_of_games INTEGER DEFAULT 1,
		per_user_attempts INTEGER DEFAULT 2,
		points_for_winning INTEGER DEFAULT 25,
		regular_multiplier INTEGER DEFAULT 1,
		shiny_multiplier INTEGER DEFAULT 8,
		seconds_to_live INTEGER DEFAULT 50,
		updated_at TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS oauth_tokens (
		provider TEXT PRIMARY KEY,
		access_token TEXT,
		refresh_token TEXT,
		expires_at TIMESTAMP,
		scope TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		encryption_version INTEGER DEFAULT 0,
		encryption_key_id TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_recurring ON users(is_enabled, recurring_actions_enabled)`,
	`CREATE INDEX IF NOT EXISTS idx_cuteness_points ON cuteness(twitch_channel_id, points)`,
}

// UpsertOAuthToken stores or updates an OAuth token for a provider (e.g., twitch).
// If encryption is enabled (ENCRYPTION_KEY set), tokens are encrypted before storage.
// encryption_version=1 indicates encrypted tokens, version=0 indicates plaintext.
func UpsertOAuthToken(ctx context.Context, dbx *sql.DB, provider, access, refresh string, expiry time.Time, scope string) error {
	enc, err := getEncryptor()
	if err != nil {
		return fmt.Errorf("get encryptor: %w", err)
	}

	encVersion := 0
	encKeyID := ""
	accessToStore := access
	refreshToStore := refresh

	if enc != nil {
		encVersion = 1
		encKeyID = "default"

		if access != "" {
			encAccess, err := crypto.EncryptString(enc, access)
			if err != nil {
				return fmt.Errorf("encrypt access token: %w", err)
			}
			accessToStore = encAccess
		}
		if refresh != "" {
			encRefresh, err := crypto.EncryptString(enc, refresh)
			if err != nil {
				return fmt.Errorf("encrypt refresh token: %w", err)
			}
			refreshToStore = encRefresh
		}
	}

	q := `INSERT INTO oauth_tokens(provider, access_token, refresh_token, expires_at, scope, encryption_version, encryption_key_id, updated_at)
		  VALUES($1,$2,$3,$4,$5,$6,$7,CURRENT_TIMESTAMP)
		  ON CONFLICT(provider) DO UPDATE SET
		    access_token=EXCLUDED.access_token,
		    refresh_token=EXCLUDED.refresh_token,
		    expires_at=EXCLUDED.expires_at,
		    scope=EXCLUDED.scope,
		    encryption_version=EXCLUDED.encryption_version,
		    encryption_key_id=EXCLUDED.encryption_key_id,
		    updated_at=CURRENT_TIMESTAMP`
	_, err = dbx.ExecContext(ctx, q, provider, accessToStore, refreshToStore, expiry, scope, encVersion, encKeyID)
	return err
}

// GetOAuthToken retrieves a stored token row; returns zero values if not found.
// Automatically decrypts tokens if encryption_version=1 and encryption is configured.
// Supports backward compatibility: reads plaintext tokens (version=0) without decryption.
func GetOAuthToken(ctx context.Context, dbx *sql.DB, provider string) (access, refresh string, expiry time.Time, scope string, err error) {
	var encVersion int
	var encKeyID sql.NullString

	row := dbx.QueryRowContext(ctx,
		`SELECT access_token, refresh_token, expires_at, scope, COALESCE(encryption_version, 0), encryption_key_id
		 FROM oauth_tokens WHERE provider = $1`, provider)

	err = row.Scan(&access, &refresh, &expiry, &scope, &encVersion, &encKeyID)
	if err == sql.ErrNoRows {
		return "", "", time.Time{}, "", nil
	}
	if err != nil {
		return "", "", time.Time{}, "", err
	}

	if encVersion == 1 {
		enc, encErr := getEncryptor()
		if encErr != nil {
			return "", "", time.Time{}, "", fmt.Errorf("get encryptor for decryption: %w", encErr)
		}
		if enc == nil {
			return "", "", time.Time{}, "", fmt.Errorf("token is encrypted but ENCRYPTION_KEY not configured")
		}

		if access != "" {
			decAccess, decErr := crypto.DecryptString(enc, access)
			if decErr != nil {
				return "", "", time.Time{}, "", fmt.Errorf("decrypt access token: %w", decErr)
			}
			access = decAccess
		}
		if refresh != "" {
			decRefresh, decErr := crypto.DecryptString(enc, refresh)
			if decErr != nil {
				return "", "", time.Time{}, "", fmt.Errorf("decrypt refresh token: %w", decErr)
			}
			refresh = decRefresh
		}
	}

	return access, refresh, expiry, scope, nil
}

// Heartbeat upserts a job heartbeat row into kv; surfaced by /status.
func Heartbeat(ctx context.Context, dbx *sql.DB, key string) {
	_, _ = dbx.ExecContext(ctx, `INSERT INTO kv (key,value,updated_at) VALUES ($1,$2,CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=CURRENT_TIMESTAMP`,
		key, time.Now().UTC().Format(time.RFC3339))
}
