package recurring

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ActionsRepository persists per-channel, per-type action configuration in the
// recurring_actions table. The enabled flag and cadence are mirrored into columns for
// querying; the configuration blob remains the source of truth on read.
type ActionsRepository struct {
	DB *sql.DB
}

// Get returns the channel's configuration for one action type, or nil when never configured.
func (r *ActionsRepository) Get(ctx context.Context, twitchChannelID string, t ActionType) (*Action, error) {
	if twitchChannelID == "" {
		return nil, fmt.Errorf("twitchChannelID empty")
	}
	var configJSON sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT configuration_json FROM recurring_actions WHERE twitch_channel_id=$1 AND action_type=$2`,
		twitchChannelID, string(t)).Scan(&configJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recurring action lookup: %w", err)
	}
	return DecodeConfiguration(string(t), "", twitchChannelID, configJSON.String)
}

// Set replaces the channel's configuration for the action's type wholesale.
func (r *ActionsRepository) Set(ctx context.Context, a *Action) error {
	if a == nil {
		return fmt.Errorf("action nil")
	}
	if a.TwitchChannelID == "" {
		return fmt.Errorf("action twitchChannelID empty")
	}
	configJSON, err := EncodeConfiguration(a)
	if err != nil {
		return err
	}
	var minutes interface{}
	if a.MinutesBetween != nil {
		minutes = *a.MinutesBetween
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO recurring_actions (twitch_channel_id, action_type, is_enabled, minutes_between, configuration_json, updated_at)
		VALUES ($1,$2,$3,$4,$5,CURRENT_TIMESTAMP)
		ON CONFLICT(twitch_channel_id, action_type) DO UPDATE SET
			is_enabled=EXCLUDED.is_enabled,
			minutes_between=EXCLUDED.minutes_between,
			configuration_json=EXCLUDED.configuration_json,
			updated_at=CURRENT_TIMESTAMP`,
		a.TwitchChannelID, string(a.Type), a.IsEnabled, minutes, configJSON)
	if err != nil {
		return fmt.Errorf("persist recurring action: %w", err)
	}
	return nil
}

// MostRecent is the single per-channel record of the last dispatched action of any type.
// It exists purely as a cooldown gate.
type MostRecent struct {
	ActionType      ActionType
	TwitchChannel   string
	TwitchChannelID string
	DispatchedAt    time.Time
}

// MostRecentRepository persists one row per channel, overwritten on each successful dispatch.
type MostRecentRepository struct {
	DB *sql.DB
}

// Get returns the channel's most recent dispatch record, or nil when nothing has fired yet.
func (r *MostRecentRepository) Get(ctx context.Context, twitchChannelID string) (*MostRecent, error) {
	if twitchChannelID == "" {
		return nil, fmt.Errorf("twitchChannelID empty")
	}
	var (
		actionType string
		channel    sql.NullString
		at         time.Time
	)
	err := r.DB.QueryRowContext(ctx, `SELECT action_type, twitch_channel, dispatched_at FROM most_recent_recurring_actions WHERE twitch_channel_id=$1`,
		twitchChannelID).Scan(&actionType, &channel, &at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("most recent action lookup: %w", err)
	}
	t, err := ParseActionType(actionType)
	if err != nil {
		return nil, err
	}
	return &MostRecent{
		ActionType:      t,
		TwitchChannel:   channel.String,
		TwitchChannelID: twitchChannelID,
		DispatchedAt:    at,
	}, nil
}

// Set overwrites the channel's most recent dispatch record.
func (r *MostRecentRepository) Set(ctx context.Context, rec *MostRecent) error {
	if rec == nil || rec.TwitchChannelID == "" {
		return fmt.Errorf("most recent record invalid")
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO most_recent_recurring_actions (twitch_channel_id, twitch_channel, action_type, dispatched_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT(twitch_channel_id) DO UPDATE SET
			twitch_channel=EXCLUDED.twitch_channel,
			action_type=EXCLUDED.action_type,
			dispatched_at=EXCLUDED.dispatched_at`,
		rec.TwitchChannelID, rec.TwitchChannel, string(rec.ActionType), rec.DispatchedAt.UTC())
	if err != nil {
		return fmt.Errorf("persist most recent action: %w", err)
	}
	return nil
}
