package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/trivia-tender/backend/cuteness"
	"github.com/onnwee/trivia-tender/backend/recurring"
	"github.com/onnwee/trivia-tender/backend/trivia"
	"github.com/onnwee/trivia-tender/backend/weather"
	"github.com/onnwee/trivia-tender/backend/wordofday"
)

// Sayer is the slice of Bot the renderers need. Tests plug in a recorder.
type Sayer interface {
	Say(channel, message string)
}

// EventRenderer turns recurring action events into chat lines. It implements
// recurring.Listener.
type EventRenderer struct {
	Sayer Sayer
}

func (r *EventRenderer) OnRecurringEvent(ctx context.Context, ev *recurring.Event) error {
	if ev.TwitchChannel == "" {
		return fmt.Errorf("event for channel id %s has no channel login", ev.TwitchChannelID)
	}
	var line string
	switch ev.Type {
	case recurring.ActionTypeCuteness:
		line = renderLeaderboard(ev.Leaderboard)
	case recurring.ActionTypeSuperTrivia:
		line = renderSuperTriviaNotice(ev.SuperTrivia)
	case recurring.ActionTypeWeather:
		line = renderWeather(ev.Weather)
	case recurring.ActionTypeWordOfTheDay:
		line = renderWordOfTheDay(ev.WordOfTheDay)
	default:
		return fmt.Errorf("unrenderable event type %q", ev.Type)
	}
	if line == "" {
		return fmt.Errorf("empty payload for %s event", ev.Type)
	}
	r.Sayer.Say(ev.TwitchChannel, line)
	return nil
}

func renderLeaderboard(entries []cuteness.Entry) string {
	if len(entries) == 0 {
		return ""
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, fmt.Sprintf("#%d %s (%d)", e.Rank, e.Username, e.Points))
	}
	return "✨ Cuteness Leaderboard ✨ " + strings.Join(parts, ", ")
}

func renderSuperTriviaNotice(game *trivia.StartNewSuperTriviaGameAction) string {
	if game == nil {
		return ""
	}
	if game.NumberOfGames > 1 {
		return fmt.Sprintf("Super trivia time! %d games starting soon, %d points each 🏆", game.NumberOfGames, game.PointsForWinning)
	}
	return fmt.Sprintf("Super trivia time! A game worth %d points is starting soon 🏆", game.PointsForWinning)
}

func renderWeather(report *weather.Report) string {
	if report == nil {
		return ""
	}
	line := fmt.Sprintf("🌡 Weather for %s: %.0f°C (feels like %.0f°C), humidity %d%%",
		report.LocationName, report.TemperatureC, report.FeelsLikeC, report.Humidity)
	if len(report.Conditions) > 0 {
		line += ", " + strings.Join(report.Conditions, ", ")
	}
	return line
}

func renderWordOfTheDay(entry *wordofday.Entry) string {
	if entry == nil {
		return ""
	}
	line := fmt.Sprintf("📖 Word of the day (%s): %s", entry.LanguageCode, entry.Word)
	if entry.Transliterate != "" {
		line += " (" + entry.Transliterate + ")"
	}
	if entry.Translation != "" {
		line += " = " + entry.Translation
	}
	return line
}

// GameAnnouncer renders trivia game lifecycle notifications. Game notifications are
// keyed by channel id, so the announcer resolves logins through the bot's join map.
type GameAnnouncer struct {
	Bot *Bot
}

func (a *GameAnnouncer) SuperTriviaGameStarted(twitchChannelID string, action *trivia.StartNewSuperTriviaGameAction) {
	login, ok := a.Bot.loginFor(twitchChannelID)
	if !ok {
		slog.Warn("no login for channel id, dropping game start announcement",
			slog.String("twitch_channel_id", twitchChannelID), slog.String("component", "chat"))
		return
	}
	a.Bot.Say(login, fmt.Sprintf("Super trivia is live! %d points on the line, %d attempt(s) per person, %ds to answer. Go!",
		action.PointsForWinning, action.PerUserAttempts, action.SecondsToLive))
}

func (a *GameAnnouncer) SuperTriviaGameEnded(twitchChannelID string, remainingQueued int) {
	login, ok := a.Bot.loginFor(twitchChannelID)
	if !ok {
		return
	}
	if remainingQueued > 0 {
		a.Bot.Say(login, fmt.Sprintf("That's the game! %d more queued up, next one starting shortly.", remainingQueued))
		return
	}
	a.Bot.Say(login, "That's the game! Thanks for playing.")
}
