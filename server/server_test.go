package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/trivia-tender/backend/db"
	"github.com/onnwee/trivia-tender/backend/testutil"
	"github.com/onnwee/trivia-tender/backend/trivia"
)

func newTestStore(t *testing.T) *trivia.QueuedGameStore {
	t.Helper()
	store, err := trivia.NewQueuedGameStore(4)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestHealthz(t *testing.T) {
	database := testutil.SetupTestDB(t)
	mux := NewMux(database, newTestStore(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Error("missing correlation id header")
	}
}

func TestReadyzBeforeFirstTick(t *testing.T) {
	database := testutil.SetupTestDB(t)
	if _, err := database.Exec(`DELETE FROM kv WHERE key = 'job_recurring_refresh_last'`); err != nil {
		t.Fatal(err)
	}
	mux := NewMux(database, newTestStore(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 before the refresh loop ticks", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["failed_check"] != "refresh_loop" {
		t.Errorf("failed_check = %q, want refresh_loop", body["failed_check"])
	}
}

func TestReadyzAfterHeartbeat(t *testing.T) {
	database := testutil.SetupTestDB(t)
	db.Heartbeat(context.Background(), database, "job_recurring_refresh_last")
	mux := NewMux(database, newTestStore(t))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
}

func TestStatusReportsHeartbeatsAndQueues(t *testing.T) {
	database := testutil.SetupTestDB(t)
	db.Heartbeat(context.Background(), database, "job_recurring_events_last")

	store := newTestStore(t)
	game, err := trivia.NewStartNewSuperTriviaGameAction("123", 3, 2, 25, 1, 8, 50)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddSuperGames(true, game); err != nil {
		t.Fatal(err)
	}

	mux := NewMux(database, store)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Heartbeats   map[string]string `json:"heartbeats"`
		TriviaQueues map[string]int    `json:"trivia_queues"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Heartbeats["job_recurring_events_last"] == "" {
		t.Error("missing events loop heartbeat")
	}
	if body.TriviaQueues["123"] != 3 {
		t.Errorf("queued games for 123 = %d, want 3", body.TriviaQueues["123"])
	}
}

func TestCorrelationIDIsReused(t *testing.T) {
	database := testutil.SetupTestDB(t)
	mux := NewMux(database, newTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-abc")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "corr-abc" {
		t.Errorf("correlation id = %q, want corr-abc", got)
	}
}
