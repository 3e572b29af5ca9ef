package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/onnwee/trivia-tender/backend/trivia"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db    *sql.DB
	store *trivia.QueuedGameStore
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(db *sql.DB, store *trivia.QueuedGameStore) *Handlers {
	return &Handlers{db: db, store: store}
}

// HandleHealthz responds to liveness probe requests by checking database connectivity.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		http.Error(w, "unhealthy", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probe requests with detailed checks: database
// connectivity and a recent refresh-loop heartbeat.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error { return h.db.PingContext(r.Context()) }},
		{"refresh_loop", func() error {
			var last string
			err := h.db.QueryRowContext(r.Context(),
				"SELECT value FROM kv WHERE key = $1", "job_recurring_refresh_last").Scan(&last)
			if err == sql.ErrNoRows {
				// The loop hasn't ticked yet; still booting is not "not ready" forever,
				// but a probe right after start should report it.
				return fmt.Errorf("refresh loop has not ticked")
			}
			if err != nil {
				return err
			}
			ts, err := time.Parse(time.RFC3339, last)
			if err != nil {
				return fmt.Errorf("bad heartbeat value %q: %w", last, err)
			}
			if time.Since(ts) > 10*time.Minute {
				return fmt.Errorf("refresh loop stale since %s", ts.Format(time.RFC3339))
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// statusResponse is the /status payload: background job heartbeats and the per-channel
// pending super trivia game counts.
type statusResponse struct {
	Heartbeats   map[string]string `json:"heartbeats"`
	TriviaQueues map[string]int    `json:"trivia_queues"`
}

// HandleStatus reports job heartbeats from kv plus a snapshot of the trivia queues.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Heartbeats:   make(map[string]string),
		TriviaQueues: map[string]int{},
	}

	rows, err := h.db.QueryContext(r.Context(),
		"SELECT key, value FROM kv WHERE key LIKE 'job_%'")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer rows.Close()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Heartbeats[key] = value
	}
	if err := rows.Err(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.store != nil {
		resp.TriviaQueues = h.store.QueueSizes()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
