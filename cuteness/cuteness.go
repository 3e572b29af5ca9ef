// Package cuteness exposes the per-channel cuteness points table and its leaderboard query.
package cuteness

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Entry is one leaderboard row.
type Entry struct {
	Rank     int
	UserID   string
	Username string
	Points   int64
}

type Repository struct {
	DB *sql.DB
}

// Leaderboard returns the top n point holders for a channel, highest first.
func (r *Repository) Leaderboard(ctx context.Context, twitchChannelID string, n int) ([]Entry, error) {
	if twitchChannelID == "" {
		return nil, fmt.Errorf("twitchChannelID empty")
	}
	if n <= 0 {
		n = 10
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id, COALESCE(username,''), points FROM cuteness
		WHERE twitch_channel_id=$1 AND points > 0 ORDER BY points DESC LIMIT $2`, twitchChannelID, n)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var out []Entry
	rank := 1
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Points); err != nil {
			return nil, err
		}
		e.Rank = rank
		rank++
		out = append(out, e)
	}
	return out, rows.Err()
}

// Increment adds delta points for a user, creating the row on first touch.
func (r *Repository) Increment(ctx context.Context, twitchChannelID, userID, username string, delta int64) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO cuteness (twitch_channel_id, user_id, username, points, updated_at)
		VALUES ($1,$2,$3,$4,CURRENT_TIMESTAMP)
		ON CONFLICT(twitch_channel_id, user_id) DO UPDATE SET points=cuteness.points+EXCLUDED.points, username=EXCLUDED.username, updated_at=CURRENT_TIMESTAMP`,
		twitchChannelID, userID, username, delta)
	return err
}
