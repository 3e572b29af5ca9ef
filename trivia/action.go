// Package trivia implements super trivia game admission: the per-channel queue of pending
// game requests, the builder that turns channel settings into start requests, and the
// machine that runs at most one game per channel while draining the queue.
package trivia

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// StartNewSuperTriviaGameAction describes one request to start numberOfGames super trivia
// games on a channel. It is value-like except for the consumed flag, which transitions
// false -> true exactly once when the queue store has finished admitting the request.
// Only the queue store flips it; a consumed action re-submitted is a no-op.
type StartNewSuperTriviaGameAction struct {
	ActionID          string
	TwitchChannelID   string
	NumberOfGames     int
	PerUserAttempts   int
	PointsForWinning  int
	RegularMultiplier int
	ShinyMultiplier   int
	SecondsToLive     int

	consumed atomic.Bool
}

// NewStartNewSuperTriviaGameAction validates and builds a start request.
func NewStartNewSuperTriviaGameAction(twitchChannelID string, numberOfGames, perUserAttempts, pointsForWinning, regularMultiplier, shinyMultiplier, secondsToLive int) (*StartNewSuperTriviaGameAction, error) {
	if strings.TrimSpace(twitchChannelID) == "" {
		return nil, fmt.Errorf("twitchChannelID empty")
	}
	if numberOfGames < 1 {
		return nil, fmt.Errorf("numberOfGames must be >= 1, got %d", numberOfGames)
	}
	if perUserAttempts < 1 {
		return nil, fmt.Errorf("perUserAttempts must be >= 1, got %d", perUserAttempts)
	}
	if pointsForWinning < 1 {
		return nil, fmt.Errorf("pointsForWinning must be >= 1, got %d", pointsForWinning)
	}
	if secondsToLive < 1 {
		return nil, fmt.Errorf("secondsToLive must be >= 1, got %d", secondsToLive)
	}
	return &StartNewSuperTriviaGameAction{
		ActionID:          uuid.New().String(),
		TwitchChannelID:   twitchChannelID,
		NumberOfGames:     numberOfGames,
		PerUserAttempts:   perUserAttempts,
		PointsForWinning:  pointsForWinning,
		RegularMultiplier: regularMultiplier,
		ShinyMultiplier:   shinyMultiplier,
		SecondsToLive:     secondsToLive,
	}, nil
}

// IsQueueActionConsumed reports whether admission has already processed this action.
func (a *StartNewSuperTriviaGameAction) IsQueueActionConsumed() bool {
	return a.consumed.Load()
}

// markConsumed flips the Pending -> Consumed transition. Called exactly once, by the
// queue store, as the final step of admission.
func (a *StartNewSuperTriviaGameAction) markConsumed() {
	a.consumed.Store(true)
}
