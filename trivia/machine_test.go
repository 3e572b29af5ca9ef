package trivia

import (
	"context"
	"sync"
	"testing"
	"time"
)

type recordingAnnouncer struct {
	mu      sync.Mutex
	started []string
	ended   []string
}

func (r *recordingAnnouncer) SuperTriviaGameStarted(channelID string, action *StartNewSuperTriviaGameAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, channelID)
}

func (r *recordingAnnouncer) SuperTriviaGameEnded(channelID string, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, channelID)
}

func (r *recordingAnnouncer) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.started), len(r.ended)
}

func shortAction(t *testing.T, channelID string, games int) *StartNewSuperTriviaGameAction {
	t.Helper()
	a, err := NewStartNewSuperTriviaGameAction(channelID, games, 2, 25, 1, 8, 1)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestSubmitActionStartsFirstGameImmediately(t *testing.T) {
	store, _ := NewQueuedGameStore(4)
	ann := &recordingAnnouncer{}
	m := NewGameMachine(store, ann)

	res, err := m.SubmitAction(context.Background(), shortAction(t, "chan", 2))
	if err != nil {
		t.Fatalf("SubmitAction: %v", err)
	}
	if res.AmountAdded != 1 {
		t.Errorf("AmountAdded = %d, want 1 (first game started, not queued)", res.AmountAdded)
	}
	if !m.IsGameInProgress("chan") {
		t.Error("expected a game in progress")
	}
	if started, _ := ann.counts(); started != 1 {
		t.Errorf("started announcements = %d, want 1", started)
	}
}

func TestSubmitActionQueuesWhenGameInProgress(t *testing.T) {
	store, _ := NewQueuedGameStore(4)
	m := NewGameMachine(store, nil)

	if _, err := m.SubmitAction(context.Background(), shortAction(t, "chan", 1)); err != nil {
		t.Fatal(err)
	}
	res, err := m.SubmitAction(context.Background(), shortAction(t, "chan", 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.AmountAdded != 1 {
		t.Errorf("AmountAdded = %d, want 1 (queued behind the running game)", res.AmountAdded)
	}
	if got := store.GetQueuedSuperGamesSize("chan"); got != 1 {
		t.Errorf("queue size = %d, want 1", got)
	}
}

func TestSubmitActionIgnoresConsumedActionAfterGameEnds(t *testing.T) {
	store, _ := NewQueuedGameStore(4)
	ann := &recordingAnnouncer{}
	m := NewGameMachine(store, ann)

	action := shortAction(t, "chan", 1)
	if _, err := m.SubmitAction(context.Background(), action); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(10 * time.Second)
	for m.IsGameInProgress("chan") {
		select {
		case <-deadline:
			t.Fatal("game never ended")
		case <-time.After(50 * time.Millisecond):
		}
	}

	res, err := m.SubmitAction(context.Background(), action)
	if err != nil {
		t.Fatalf("SubmitAction: %v", err)
	}
	if res.AmountAdded != 0 {
		t.Errorf("AmountAdded = %d, want 0 (action already honored)", res.AmountAdded)
	}
	if m.IsGameInProgress("chan") {
		t.Error("resubmitting a consumed action must not start a game")
	}
	if started, _ := ann.counts(); started != 1 {
		t.Errorf("started announcements = %d, want 1", started)
	}
}

func TestGameChainDrainsQueue(t *testing.T) {
	store, _ := NewQueuedGameStore(4)
	ann := &recordingAnnouncer{}
	m := NewGameMachine(store, ann)

	// 3 games of 1s each: one starts now, two queue and chain.
	if _, err := m.SubmitAction(context.Background(), shortAction(t, "chan", 3)); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(10 * time.Second)
	for {
		started, _ := ann.counts()
		if started == 3 && !m.IsGameInProgress("chan") && store.GetQueuedSuperGamesSize("chan") == 0 {
			return
		}
		select {
		case <-deadline:
			started, ended := ann.counts()
			t.Fatalf("chain incomplete: started=%d ended=%d queued=%d inProgress=%v",
				started, ended, store.GetQueuedSuperGamesSize("chan"), m.IsGameInProgress("chan"))
		case <-time.After(50 * time.Millisecond):
		}
	}
}
