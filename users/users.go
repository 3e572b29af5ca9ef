// Package users exposes the users and user_ids tables: which channels the bot serves,
// whether recurring actions are enabled for them, and login-to-channel-id resolution
// with a persistent cache backed by Helix.
package users

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// User is one configured channel the bot serves.
type User struct {
	Handle                  string
	TwitchChannelID         string
	IsEnabled               bool
	RecurringActionsEnabled bool
	LocationID              string
	WOTDLanguage            string
}

// Repository reads the users table.
type Repository struct {
	DB *sql.DB
}

// GetUsers returns every configured user, enabled or not.
func (r *Repository) GetUsers(ctx context.Context) ([]User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT handle, COALESCE(twitch_channel_id,''), is_enabled, recurring_actions_enabled, COALESCE(location_id,''), COALESCE(wotd_language,'') FROM users ORDER BY handle`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.Handle, &u.TwitchChannelID, &u.IsEnabled, &u.RecurringActionsEnabled, &u.LocationID, &u.WOTDLanguage); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetUser returns the user with the given handle, or sql.ErrNoRows.
func (r *Repository) GetUser(ctx context.Context, handle string) (*User, error) {
	var u User
	err := r.DB.QueryRowContext(ctx, `SELECT handle, COALESCE(twitch_channel_id,''), is_enabled, recurring_actions_enabled, COALESCE(location_id,''), COALESCE(wotd_language,'') FROM users WHERE handle=$1`, handle).
		Scan(&u.Handle, &u.TwitchChannelID, &u.IsEnabled, &u.RecurringActionsEnabled, &u.LocationID, &u.WOTDLanguage)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// IDResolver resolves a Twitch login to its user id.
type IDResolver interface {
	GetUserID(ctx context.Context, login string) (string, error)
}

// IDRepository caches login-to-id mappings in the user_ids table, falling back to the
// given resolver (normally the Helix client) on a miss and persisting the result.
type IDRepository struct {
	DB       *sql.DB
	Resolver IDResolver
}

// FetchUserID returns the channel id for a login, or "" when it cannot be resolved.
func (r *IDRepository) FetchUserID(ctx context.Context, handle string) (string, error) {
	if handle == "" {
		return "", fmt.Errorf("handle empty")
	}
	var id string
	err := r.DB.QueryRowContext(ctx, `SELECT user_id FROM user_ids WHERE handle=$1`, handle).Scan(&id)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("user id lookup: %w", err)
	}
	if r.Resolver == nil {
		return "", nil
	}
	id, err = r.Resolver.GetUserID(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("resolve user id: %w", err)
	}
	_, _ = r.DB.ExecContext(ctx, `INSERT INTO user_ids (handle, user_id, updated_at) VALUES ($1,$2,CURRENT_TIMESTAMP)
		ON CONFLICT(handle) DO UPDATE SET user_id=EXCLUDED.user_id, updated_at=CURRENT_TIMESTAMP`, handle, id)
	return id, nil
}
