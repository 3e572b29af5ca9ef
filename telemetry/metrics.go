// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ActionsDispatched  *prometheus.CounterVec // labeled by action type
	ActionsSkipped     prometheus.Counter
	EventsEmitted      prometheus.Counter
	EventsDropped      prometheus.Counter
	EventsDelivered    prometheus.Counter
	RefreshTicks       prometheus.Counter
	triviaGamesQueued  prometheus.Counter
	triviaGamesDropped prometheus.Counter
	TriviaGamesStarted prometheus.Counter

	// Histograms (seconds)
	RefreshTickDuration prometheus.Observer

	// Gauges
	LiveChannelsGauge prometheus.Gauge
	EventQueueGauge   prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ActionsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{Name: "recurring_actions_dispatched_total", Help: "Recurring actions dispatched, by action type"}, []string{"action_type"})
		ActionsSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "recurring_actions_skipped_total", Help: "Refresh passes where no action was due for a channel"})
		EventsEmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "recurring_events_emitted_total", Help: "Recurring events placed on the internal queue"})
		EventsDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "recurring_events_dropped_total", Help: "Recurring events dropped because the queue was full"})
		EventsDelivered = promauto.NewCounter(prometheus.CounterOpts{Name: "recurring_events_delivered_total", Help: "Recurring events delivered to the listener"})
		RefreshTicks = promauto.NewCounter(prometheus.CounterOpts{Name: "recurring_refresh_ticks_total", Help: "Refresh loop ticks"})
		triviaGamesQueued = promauto.NewCounter(prometheus.CounterOpts{Name: "trivia_super_games_queued_total", Help: "Super trivia games admitted into channel queues"})
		triviaGamesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "trivia_super_games_dropped_total", Help: "Super trivia games dropped by queue capacity truncation"})
		TriviaGamesStarted = promauto.NewCounter(prometheus.CounterOpts{Name: "trivia_super_games_started_total", Help: "Super trivia games started"})
		RefreshTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "recurring_refresh_tick_duration_seconds", Help: "Refresh tick duration seconds", Buckets: prometheus.DefBuckets})
		LiveChannelsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "recurring_live_channels", Help: "Channels live on Twitch at the last refresh tick"})
		EventQueueGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "recurring_event_queue_depth", Help: "Events currently buffered in the internal queue"})
	})
}

// CountActionDispatched increments the dispatch counter for an action type.
func CountActionDispatched(actionType string) {
	if ActionsDispatched != nil {
		ActionsDispatched.WithLabelValues(actionType).Inc()
	}
}

// CountEventEmitted / CountEventDropped / CountEventDelivered are nil-safe so library code
// can record without caring whether Init ran (tests often skip it).
func CountEventEmitted() {
	if EventsEmitted != nil {
		EventsEmitted.Inc()
	}
}

func CountEventDropped() {
	if EventsDropped != nil {
		EventsDropped.Inc()
	}
}

func CountEventDelivered() {
	if EventsDelivered != nil {
		EventsDelivered.Inc()
	}
}

// AddTriviaGamesQueued records games admitted into queues.
func AddTriviaGamesQueued(n int) {
	if triviaGamesQueued != nil && n > 0 {
		triviaGamesQueued.Add(float64(n))
	}
}

// AddTriviaGamesDropped records games truncated by queue capacity.
func AddTriviaGamesDropped(n int) {
	if triviaGamesDropped != nil && n > 0 {
		triviaGamesDropped.Add(float64(n))
	}
}

// CountTriviaGameStarted records one started super trivia game.
func CountTriviaGameStarted() {
	if TriviaGamesStarted != nil {
		TriviaGamesStarted.Inc()
	}
}

// SetLiveChannels records how many candidate channels were live at the last tick.
func SetLiveChannels(n int) {
	if LiveChannelsGauge != nil {
		LiveChannelsGauge.Set(float64(n))
	}
}

// SetEventQueueDepth records the internal event queue depth.
func SetEventQueueDepth(n int) {
	if EventQueueGauge != nil {
		EventQueueGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
