package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/onnwee/trivia-tender/backend/cuteness"
	"github.com/onnwee/trivia-tender/backend/recurring"
	"github.com/onnwee/trivia-tender/backend/trivia"
	"github.com/onnwee/trivia-tender/backend/weather"
	"github.com/onnwee/trivia-tender/backend/wordofday"
)

type recordedSay struct {
	channel string
	message string
}

type fakeSayer struct{ says []recordedSay }

func (f *fakeSayer) Say(channel, message string) {
	f.says = append(f.says, recordedSay{channel: channel, message: message})
}

func TestRenderCutenessEvent(t *testing.T) {
	sayer := &fakeSayer{}
	r := &EventRenderer{Sayer: sayer}

	err := r.OnRecurringEvent(context.Background(), &recurring.Event{
		Type:          recurring.ActionTypeCuteness,
		TwitchChannel: "smcharles",
		Leaderboard: []cuteness.Entry{
			{Rank: 1, Username: "stashiocat", Points: 250},
			{Rank: 2, Username: "imyt", Points: 100},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sayer.says) != 1 {
		t.Fatalf("says = %d, want 1", len(sayer.says))
	}
	if sayer.says[0].channel != "smcharles" {
		t.Errorf("channel = %q", sayer.says[0].channel)
	}
	msg := sayer.says[0].message
	if !strings.Contains(msg, "#1 stashiocat (250)") || !strings.Contains(msg, "#2 imyt (100)") {
		t.Errorf("unexpected leaderboard line: %q", msg)
	}
}

func TestRenderSuperTriviaNotice(t *testing.T) {
	sayer := &fakeSayer{}
	r := &EventRenderer{Sayer: sayer}

	game, err := trivia.NewStartNewSuperTriviaGameAction("123", 3, 2, 25, 1, 8, 50)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.OnRecurringEvent(context.Background(), &recurring.Event{
		Type:          recurring.ActionTypeSuperTrivia,
		TwitchChannel: "smcharles",
		SuperTrivia:   game,
	}); err != nil {
		t.Fatal(err)
	}
	msg := sayer.says[0].message
	if !strings.Contains(msg, "3 games") || !strings.Contains(msg, "25 points") {
		t.Errorf("unexpected notice line: %q", msg)
	}
}

func TestRenderWeatherEvent(t *testing.T) {
	sayer := &fakeSayer{}
	r := &EventRenderer{Sayer: sayer}

	if err := r.OnRecurringEvent(context.Background(), &recurring.Event{
		Type:          recurring.ActionTypeWeather,
		TwitchChannel: "smcharles",
		Weather: &weather.Report{
			LocationName: "Berlin",
			TemperatureC: 21.4,
			FeelsLikeC:   19.8,
			Humidity:     60,
			Conditions:   []string{"light rain"},
		},
	}); err != nil {
		t.Fatal(err)
	}
	msg := sayer.says[0].message
	for _, want := range []string{"Berlin", "21°C", "20°C", "60%", "light rain"} {
		if !strings.Contains(msg, want) {
			t.Errorf("weather line %q missing %q", msg, want)
		}
	}
}

func TestRenderWordOfTheDayEvent(t *testing.T) {
	sayer := &fakeSayer{}
	r := &EventRenderer{Sayer: sayer}

	if err := r.OnRecurringEvent(context.Background(), &recurring.Event{
		Type:          recurring.ActionTypeWordOfTheDay,
		TwitchChannel: "smcharles",
		WordOfTheDay: &wordofday.Entry{
			LanguageCode:  "ja",
			Word:          "猫",
			Transliterate: "neko",
			Translation:   "cat",
		},
	}); err != nil {
		t.Fatal(err)
	}
	msg := sayer.says[0].message
	for _, want := range []string{"ja", "猫", "neko", "cat"} {
		if !strings.Contains(msg, want) {
			t.Errorf("word of the day line %q missing %q", msg, want)
		}
	}
}

func TestEmptyPayloadIsAnError(t *testing.T) {
	r := &EventRenderer{Sayer: &fakeSayer{}}
	err := r.OnRecurringEvent(context.Background(), &recurring.Event{
		Type:          recurring.ActionTypeCuteness,
		TwitchChannel: "smcharles",
	})
	if err == nil {
		t.Fatal("expected error for empty leaderboard payload")
	}
}

func TestMissingChannelLoginIsAnError(t *testing.T) {
	r := &EventRenderer{Sayer: &fakeSayer{}}
	err := r.OnRecurringEvent(context.Background(), &recurring.Event{
		Type:            recurring.ActionTypeWeather,
		TwitchChannelID: "123",
		Weather:         &weather.Report{LocationName: "Berlin"},
	})
	if err == nil {
		t.Fatal("expected error for event without channel login")
	}
}
