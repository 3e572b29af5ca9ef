package recurring

import (
	"context"

	"github.com/onnwee/trivia-tender/backend/cuteness"
	"github.com/onnwee/trivia-tender/backend/trivia"
	"github.com/onnwee/trivia-tender/backend/weather"
	"github.com/onnwee/trivia-tender/backend/wordofday"
)

// Event is the rendered payload a dispatched action produces. It is a tagged union: Type
// selects which payload pointer is set. Events are consumed exactly once by the drain
// loop and never persisted.
type Event struct {
	Type            ActionType
	TwitchChannel   string
	TwitchChannelID string

	Leaderboard  []cuteness.Entry                      // Cuteness
	SuperTrivia  *trivia.StartNewSuperTriviaGameAction // SuperTrivia "starting soon" notice
	Weather      *weather.Report                       // Weather
	WordOfTheDay *wordofday.Entry                      // WordOfTheDay
}

// Listener receives each event exactly once. Errors are logged and isolated per event;
// a failing listener never stops delivery of subsequent events.
type Listener interface {
	OnRecurringEvent(ctx context.Context, event *Event) error
}
