package trivia

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/onnwee/trivia-tender/backend/telemetry"
)

// Announcer receives game lifecycle notifications for rendering into chat.
type Announcer interface {
	SuperTriviaGameStarted(twitchChannelID string, action *StartNewSuperTriviaGameAction)
	SuperTriviaGameEnded(twitchChannelID string, remainingQueued int)
}

// GameMachine enforces at-most-one active super trivia game per channel. Submitted
// requests go through the queue store for admission; when the running game's clock
// expires, the next queued game (if any) starts automatically.
type GameMachine struct {
	store     *QueuedGameStore
	announcer Announcer

	mu     sync.Mutex
	active map[string]bool // normalized channel key -> game in progress
}

func NewGameMachine(store *QueuedGameStore, announcer Announcer) *GameMachine {
	return &GameMachine{
		store:     store,
		announcer: announcer,
		active:    make(map[string]bool),
	}
}

// IsGameInProgress reports whether the channel currently has a running game.
func (m *GameMachine) IsGameInProgress(twitchChannelID string) bool {
	key := normalizeChannelKey(twitchChannelID)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[key]
}

// SubmitAction admits a start request. When the channel is idle the first game starts
// immediately and the remainder queues; otherwise everything queues subject to capacity.
func (m *GameMachine) SubmitAction(ctx context.Context, action *StartNewSuperTriviaGameAction) (AddResult, error) {
	wasConsumed := action.IsQueueActionConsumed()
	inProgress := m.IsGameInProgress(action.TwitchChannelID)
	res, err := m.store.AddSuperGames(inProgress, action)
	if err != nil {
		return res, err
	}
	// A consumed action admitted nothing; starting a game for it would resurrect
	// a request that was already honored.
	if !inProgress && !wasConsumed {
		m.startGame(ctx, action)
	}
	return res, nil
}

// startGame marks the channel active and schedules the game end after SecondsToLive.
func (m *GameMachine) startGame(ctx context.Context, action *StartNewSuperTriviaGameAction) {
	key := normalizeChannelKey(action.TwitchChannelID)
	m.mu.Lock()
	if m.active[key] {
		m.mu.Unlock()
		return
	}
	m.active[key] = true
	m.mu.Unlock()

	telemetry.CountTriviaGameStarted()
	slog.Info("super trivia game started",
		slog.String("twitch_channel_id", action.TwitchChannelID),
		slog.Int("seconds_to_live", action.SecondsToLive),
		slog.String("component", "trivia_machine"))
	if m.announcer != nil {
		m.announcer.SuperTriviaGameStarted(action.TwitchChannelID, action)
	}

	ttl := time.Duration(action.SecondsToLive) * time.Second
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(ttl):
		}
		m.endGame(ctx, action.TwitchChannelID)
	}()
}

// endGame clears the active flag and chains into the next queued game, if any.
func (m *GameMachine) endGame(ctx context.Context, twitchChannelID string) {
	key := normalizeChannelKey(twitchChannelID)
	m.mu.Lock()
	delete(m.active, key)
	m.mu.Unlock()

	remaining := m.store.GetQueuedSuperGamesSize(twitchChannelID)
	if m.announcer != nil {
		m.announcer.SuperTriviaGameEnded(twitchChannelID, remaining)
	}
	if ctx.Err() != nil {
		return
	}
	if next := m.store.PopNextGame(twitchChannelID); next != nil {
		m.startGame(ctx, next)
	}
}
