package trivia

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/onnwee/trivia-tender/backend/telemetry"
)

// AddResult reports the outcome of one admission call.
type AddResult struct {
	AmountAdded  int
	OldQueueSize int
	NewQueueSize int
}

// ClearResult reports the outcome of clearing a channel's queue.
type ClearResult struct {
	AmountRemoved int
	OldQueueSize  int
}

// QueuedGameStore holds, per channel, the FIFO queue of pending super trivia game tokens.
// Each queue entry is one game still waiting to start. The store owns the queues
// exclusively; all interaction goes through its methods. Channel keys are case-normalized
// so lookups are independent of display-name casing.
type QueuedGameStore struct {
	maxQueueSize int

	mu     sync.Mutex
	queues map[string][]*StartNewSuperTriviaGameAction
}

// NewQueuedGameStore builds a store admitting at most maxQueueSize pending games per channel.
func NewQueuedGameStore(maxQueueSize int) (*QueuedGameStore, error) {
	if maxQueueSize < 1 {
		return nil, fmt.Errorf("maxQueueSize must be >= 1, got %d", maxQueueSize)
	}
	return &QueuedGameStore{
		maxQueueSize: maxQueueSize,
		queues:       make(map[string][]*StartNewSuperTriviaGameAction),
	}, nil
}

func normalizeChannelKey(twitchChannelID string) string {
	return strings.ToLower(strings.TrimSpace(twitchChannelID))
}

// AddSuperGames admits the action's games into the channel's queue.
//
// When no game is in progress the first requested game starts immediately (the caller is
// responsible for actually starting it) and only the remainder is queued; when a game is
// in progress every requested game tries to queue. Games beyond remaining capacity are
// dropped silently. A consumed action is a no-op; the consumed flag is flipped exactly
// once, as the final step, regardless of how many entries were admitted.
func (s *QueuedGameStore) AddSuperGames(isSuperTriviaGameCurrentlyInProgress bool, action *StartNewSuperTriviaGameAction) (AddResult, error) {
	if action == nil {
		return AddResult{}, fmt.Errorf("action nil")
	}
	if action.NumberOfGames < 1 {
		return AddResult{}, fmt.Errorf("action numberOfGames must be >= 1, got %d", action.NumberOfGames)
	}

	key := normalizeChannelKey(action.TwitchChannelID)

	s.mu.Lock()
	defer s.mu.Unlock()

	oldSize := len(s.queues[key])
	if action.IsQueueActionConsumed() {
		return AddResult{AmountAdded: 0, OldQueueSize: oldSize, NewQueueSize: oldSize}, nil
	}

	toQueue := action.NumberOfGames
	if !isSuperTriviaGameCurrentlyInProgress {
		// First game starts right away rather than queueing.
		toQueue--
	}

	added := 0
	for i := 0; i < toQueue; i++ {
		if len(s.queues[key]) >= s.maxQueueSize {
			break
		}
		s.queues[key] = append(s.queues[key], action)
		added++
	}
	if dropped := toQueue - added; dropped > 0 {
		slog.Info("super trivia queue full, dropping overflow games",
			slog.String("twitch_channel_id", action.TwitchChannelID),
			slog.Int("dropped", dropped),
			slog.Int("max_queue_size", s.maxQueueSize),
			slog.String("component", "trivia_queue"))
		telemetry.AddTriviaGamesDropped(dropped)
	}
	telemetry.AddTriviaGamesQueued(added)

	action.markConsumed()
	return AddResult{AmountAdded: added, OldQueueSize: oldSize, NewQueueSize: len(s.queues[key])}, nil
}

// GetQueuedSuperGamesSize returns the channel's pending game count. A channel that never
// queued anything reports 0 without a queue being created.
func (s *QueuedGameStore) GetQueuedSuperGamesSize(twitchChannelID string) int {
	key := normalizeChannelKey(twitchChannelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queues[key])
}

// PopNextGame removes and returns the channel's oldest pending game, or nil when empty.
func (s *QueuedGameStore) PopNextGame(twitchChannelID string) *StartNewSuperTriviaGameAction {
	key := normalizeChannelKey(twitchChannelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.queues[key]
	if len(q) == 0 {
		return nil
	}
	next := q[0]
	s.queues[key] = q[1:]
	if len(s.queues[key]) == 0 {
		delete(s.queues, key)
	}
	return next
}

// QueueSizes snapshots every non-empty channel's pending game count, keyed by the
// normalized channel key.
func (s *QueuedGameStore) QueueSizes() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.queues))
	for key, q := range s.queues {
		out[key] = len(q)
	}
	return out
}

// ClearQueuedSuperGames empties the channel's queue. Idempotent: clearing an empty or
// unknown channel removes nothing.
func (s *QueuedGameStore) ClearQueuedSuperGames(twitchChannelID string) ClearResult {
	key := normalizeChannelKey(twitchChannelID)
	s.mu.Lock()
	defer s.mu.Unlock()
	oldSize := len(s.queues[key])
	delete(s.queues, key)
	return ClearResult{AmountRemoved: oldSize, OldQueueSize: oldSize}
}
