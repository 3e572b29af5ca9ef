package recurring

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/onnwee/trivia-tender/backend/testutil"
)

func TestActionsRepositoryRoundTrip(t *testing.T) {
	database := testutil.SetupTestDB(t)
	channel := "ch_" + uuid.NewString()[:8]
	repo := &ActionsRepository{DB: database}
	ctx := context.Background()
	t.Cleanup(func() { _, _ = database.Exec(`DELETE FROM recurring_actions WHERE twitch_channel_id=$1`, channel) })

	want := &Action{
		Type:            ActionTypeWordOfTheDay,
		TwitchChannelID: channel,
		IsEnabled:       true,
		MinutesBetween:  intPtr(45),
		WordOfTheDay:    &WordOfTheDayConfig{LanguageCode: "ja"},
	}
	if err := repo.Set(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Get(ctx, channel, ActionTypeWordOfTheDay)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("action mismatch (-want +got):\n%s", diff)
	}
}

func TestActionsRepositoryGetUnconfigured(t *testing.T) {
	database := testutil.SetupTestDB(t)
	repo := &ActionsRepository{DB: database}

	got, err := repo.Get(context.Background(), "ch_"+uuid.NewString()[:8], ActionTypeWeather)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for unconfigured action, got %+v", got)
	}
}

func TestActionsRepositorySetOverwrites(t *testing.T) {
	database := testutil.SetupTestDB(t)
	channel := "ch_" + uuid.NewString()[:8]
	repo := &ActionsRepository{DB: database}
	ctx := context.Background()
	t.Cleanup(func() { _, _ = database.Exec(`DELETE FROM recurring_actions WHERE twitch_channel_id=$1`, channel) })

	first := &Action{Type: ActionTypeWeather, TwitchChannelID: channel, IsEnabled: true}
	if err := repo.Set(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &Action{Type: ActionTypeWeather, TwitchChannelID: channel, IsEnabled: false, MinutesBetween: intPtr(15)}
	if err := repo.Set(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Get(ctx, channel, ActionTypeWeather)
	if err != nil {
		t.Fatal(err)
	}
	if got.IsEnabled {
		t.Error("second Set should have disabled the action")
	}
	if got.MinutesBetween == nil || *got.MinutesBetween != 15 {
		t.Errorf("MinutesBetween = %v, want 15", got.MinutesBetween)
	}
}

func TestMostRecentRepositoryOverwrites(t *testing.T) {
	database := testutil.SetupTestDB(t)
	channel := "ch_" + uuid.NewString()[:8]
	repo := &MostRecentRepository{DB: database}
	ctx := context.Background()
	t.Cleanup(func() {
		_, _ = database.Exec(`DELETE FROM most_recent_recurring_actions WHERE twitch_channel_id=$1`, channel)
	})

	got, err := repo.Get(ctx, channel)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil before first dispatch, got %+v", got)
	}

	first := time.Now().UTC().Truncate(time.Second)
	if err := repo.Set(ctx, &MostRecent{
		ActionType:      ActionTypeWeather,
		TwitchChannel:   "smCharles",
		TwitchChannelID: channel,
		DispatchedAt:    first,
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.Set(ctx, &MostRecent{
		ActionType:      ActionTypeCuteness,
		TwitchChannel:   "smCharles",
		TwitchChannelID: channel,
		DispatchedAt:    first.Add(5 * time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	got, err = repo.Get(ctx, channel)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected a record after Set")
	}
	// One record per channel: the second write replaces the first.
	if got.ActionType != ActionTypeCuteness {
		t.Errorf("ActionType = %v, want cuteness", got.ActionType)
	}
	if !got.DispatchedAt.Equal(first.Add(5 * time.Minute)) {
		t.Errorf("DispatchedAt = %v, want %v", got.DispatchedAt, first.Add(5*time.Minute))
	}
}
