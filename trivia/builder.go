package trivia

import (
	"context"
	"database/sql"
	"fmt"
)

// GameBuilder constructs start requests from a channel's persisted super trivia settings.
// A channel without an enabled settings row yields (nil, nil): the action is simply not
// buildable right now, which the scheduler treats as "try something else this tick".
type GameBuilder struct {
	DB *sql.DB
}

func (b *GameBuilder) BuildSuperTriviaGame(ctx context.Context, twitchChannelID string) (*StartNewSuperTriviaGameAction, error) {
	if twitchChannelID == "" {
		return nil, fmt.Errorf("twitchChannelID empty")
	}
	var (
		isEnabled         bool
		numberOfGames     int
		perUserAttempts   int
		pointsForWinning  int
		regularMultiplier int
		shinyMultiplier   int
		secondsToLive     int
	)
	err := b.DB.QueryRowContext(ctx, `SELECT is_enabled, number_of_games, per_user_attempts, points_for_winning, regular_multiplier, shiny_multiplier, seconds_to_live
		FROM super_trivia_settings WHERE twitch_channel_id=$1`, twitchChannelID).
		Scan(&isEnabled, &numberOfGames, &perUserAttempts, &pointsForWinning, &regularMultiplier, &shinyMultiplier, &secondsToLive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("super trivia settings lookup: %w", err)
	}
	if !isEnabled {
		return nil, nil
	}
	return NewStartNewSuperTriviaGameAction(twitchChannelID, numberOfGames, perUserAttempts, pointsForWinning, regularMultiplier, shinyMultiplier, secondsToLive)
}
