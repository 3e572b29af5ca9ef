package trivia_test

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/onnwee/trivia-tender/backend/testutil"
	"github.com/onnwee/trivia-tender/backend/trivia"
)

func TestBuildSuperTriviaGameFromSettings(t *testing.T) {
	database := testutil.SetupTestDB(t)
	channel := "ch_" + uuid.NewString()[:8]
	t.Cleanup(func() {
		_, _ = database.Exec(`DELETE FROM super_trivia_settings WHERE twitch_channel_id=$1`, channel)
	})
	if _, err := database.Exec(
		`INSERT INTO super_trivia_settings (twitch_channel_id, is_enabled, number_of_games, per_user_attempts, points_for_winning, regular_multiplier, shiny_multiplier, seconds_to_live)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		channel, true, 2, 3, 25, 1, 8, 50); err != nil {
		t.Fatal(err)
	}

	b := &trivia.GameBuilder{DB: database}
	game, err := b.BuildSuperTriviaGame(context.Background(), channel)
	if err != nil {
		t.Fatal(err)
	}
	if game == nil {
		t.Fatal("expected a game for an enabled settings row")
	}
	if game.NumberOfGames != 2 || game.PerUserAttempts != 3 || game.PointsForWinning != 25 || game.SecondsToLive != 50 {
		t.Fatalf("unexpected game: %+v", game)
	}
	if game.ActionID == "" {
		t.Error("missing action id")
	}
	if game.IsQueueActionConsumed() {
		t.Error("fresh game must not be consumed")
	}
}

func TestBuildSuperTriviaGameDisabledOrMissing(t *testing.T) {
	database := testutil.SetupTestDB(t)
	channel := "ch_" + uuid.NewString()[:8]
	b := &trivia.GameBuilder{DB: database}

	game, err := b.BuildSuperTriviaGame(context.Background(), channel)
	if err != nil {
		t.Fatal(err)
	}
	if game != nil {
		t.Fatalf("expected nil for missing settings, got %+v", game)
	}

	t.Cleanup(func() {
		_, _ = database.Exec(`DELETE FROM super_trivia_settings WHERE twitch_channel_id=$1`, channel)
	})
	if _, err := database.Exec(
		`INSERT INTO super_trivia_settings (twitch_channel_id, is_enabled) VALUES ($1, $2)`,
		channel, false); err != nil {
		t.Fatal(err)
	}
	game, err = b.BuildSuperTriviaGame(context.Background(), channel)
	if err != nil {
		t.Fatal(err)
	}
	if game != nil {
		t.Fatalf("expected nil for disabled settings, got %+v", game)
	}
}
