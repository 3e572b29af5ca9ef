// Package tasks provides a process-wide helper for spawning fire-and-forget background
// goroutines while keeping a handle on every in-flight one. Handles are reaped as tasks
// finish, so the set only ever holds live work; Wait drains the set on shutdown.
package tasks

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Helper tracks spawned background tasks. The zero value is not usable; use NewHelper.
type Helper struct {
	mu       sync.Mutex
	inFlight map[string]string // handle id -> task name
	wg       sync.WaitGroup
}

func NewHelper() *Helper {
	return &Helper{inFlight: make(map[string]string)}
}

// Spawn runs fn on a new goroutine. A recovered panic is logged, never propagated;
// the task's handle is removed once fn returns.
func (h *Helper) Spawn(ctx context.Context, name string, fn func(ctx context.Context)) {
	id := uuid.New().String()
	h.mu.Lock()
	h.inFlight[id] = name
	h.mu.Unlock()
	h.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background task panicked", slog.String("task", name), slog.Any("panic", r))
			}
			h.mu.Lock()
			delete(h.inFlight, id)
			h.mu.Unlock()
			h.wg.Done()
		}()
		fn(ctx)
	}()
}

// InFlight returns the number of tasks currently running.
func (h *Helper) InFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inFlight)
}

// Names returns the names of tasks currently running, for /status reporting.
func (h *Helper) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.inFlight))
	for _, n := range h.inFlight {
		out = append(out, n)
	}
	return out
}

// Wait blocks until every spawned task has returned. Intended for shutdown after the
// shared context has been canceled.
func (h *Helper) Wait() {
	h.wg.Wait()
}
