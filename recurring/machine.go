package recurring

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/trivia-tender/backend/cuteness"
	"github.com/onnwee/trivia-tender/backend/db"
	"github.com/onnwee/trivia-tender/backend/telemetry"
	"github.com/onnwee/trivia-tender/backend/trivia"
	"github.com/onnwee/trivia-tender/backend/users"
	"github.com/onnwee/trivia-tender/backend/weather"
	"github.com/onnwee/trivia-tender/backend/wordofday"
)

// Collaborator contracts, narrowed to exactly what the machine consumes.
type (
	// UserSource lists the channels the bot serves.
	UserSource interface {
		GetUsers(ctx context.Context) ([]users.User, error)
	}

	// UserIDSource resolves a handle to its channel id.
	UserIDSource interface {
		FetchUserID(ctx context.Context, handle string) (string, error)
	}

	// LivenessSource reports which of a batch of channels are currently streaming.
	LivenessSource interface {
		AreLive(ctx context.Context, channelIDs []string) (map[string]bool, error)
	}

	// ActionSource reads per-channel action configuration.
	ActionSource interface {
		Get(ctx context.Context, twitchChannelID string, t ActionType) (*Action, error)
	}

	// MostRecentSource reads and writes the per-channel cooldown record.
	MostRecentSource interface {
		Get(ctx context.Context, twitchChannelID string) (*MostRecent, error)
		Set(ctx context.Context, rec *MostRecent) error
	}

	// LeaderboardSource produces cuteness leaderboards.
	LeaderboardSource interface {
		Leaderboard(ctx context.Context, twitchChannelID string, n int) ([]cuteness.Entry, error)
	}

	// WeatherSource fetches a weather report for a location id.
	WeatherSource interface {
		Fetch(ctx context.Context, locationID string) (*weather.Report, error)
	}

	// WordOfTheDaySource fetches a word-of-the-day entry for a language code.
	WordOfTheDaySource interface {
		Fetch(ctx context.Context, languageCode string) (*wordofday.Entry, error)
	}

	// TriviaStarter builds and submits super trivia games.
	TriviaStarter interface {
		BuildSuperTriviaGame(ctx context.Context, twitchChannelID string) (*trivia.StartNewSuperTriviaGameAction, error)
		SubmitAction(ctx context.Context, action *trivia.StartNewSuperTriviaGameAction) (trivia.AddResult, error)
	}
)

// MachineConfig tunes the scheduler's timings and queue bounds.
type MachineConfig struct {
	ActionCooldown       time.Duration // gap between any two automated actions per channel
	RefreshSleep         time.Duration
	QueueSleep           time.Duration
	EventQueueCapacity   int
	EventPutTimeout      time.Duration
	SuperTriviaCountdown time.Duration
}

func (c *MachineConfig) applyDefaults() {
	if c.ActionCooldown <= 0 {
		c.ActionCooldown = 3 * time.Minute
	}
	if c.RefreshSleep <= 0 {
		c.RefreshSleep = 90 * time.Second
	}
	if c.QueueSleep <= 0 {
		c.QueueSleep = 3 * time.Second
	}
	if c.EventQueueCapacity <= 0 {
		c.EventQueueCapacity = 64
	}
	if c.EventPutTimeout <= 0 {
		c.EventPutTimeout = 3 * time.Second
	}
	// SuperTriviaCountdown of 0 is legal (no pause before the game starts).
}

// Deps wires the machine's collaborators. DB is optional and only used for heartbeats.
type Deps struct {
	Users      UserSource
	UserIDs    UserIDSource
	Liveness   LivenessSource
	Actions    ActionSource
	MostRecent MostRecentSource
	Cuteness   LeaderboardSource
	Weather    WeatherSource
	WordOfDay  WordOfTheDaySource
	Trivia     TriviaStarter
	DB         *sql.DB
}

// Machine decides, per refresh tick and per live channel, which due automated action fires,
// converts it into an Event, and feeds the bounded event queue drained by the event loop.
// It owns the event queue and all selection state exclusively.
type Machine struct {
	cfg  MachineConfig
	deps Deps

	listener Listener
	events   chan *Event
	handlers map[ActionType]func(ctx context.Context, user users.User, channelID string, action *Action) (bool, error)
	rng      *rand.Rand
	now      func() time.Time
}

// NewMachine builds a Machine. The listener is registered later via SetListener; events
// dispatched before that are drained and dropped with a warning.
func NewMachine(cfg MachineConfig, deps Deps) *Machine {
	cfg.applyDefaults()
	m := &Machine{
		cfg:    cfg,
		deps:   deps,
		events: make(chan *Event, cfg.EventQueueCapacity),
		//nolint:gosec // G404: math/rand is sufficient for action sampling, not used for security
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
	m.handlers = map[ActionType]func(ctx context.Context, user users.User, channelID string, action *Action) (bool, error){
		ActionTypeCuteness:     m.processCuteness,
		ActionTypeSuperTrivia:  m.processSuperTrivia,
		ActionTypeWeather:      m.processWeather,
		ActionTypeWordOfTheDay: m.processWordOfTheDay,
	}
	return m
}

// SetListener registers the single event sink. Must be called before StartEventLoop.
func (m *Machine) SetListener(l Listener) {
	m.listener = l
}

// StartRefreshLoop runs selection and dispatch for every viable channel at the refresh
// interval until ctx is canceled. One tick's failure never stops the next tick.
func (m *Machine) StartRefreshLoop(ctx context.Context) {
	slog.Info("recurring action refresh loop starting", slog.Duration("interval", m.cfg.RefreshSleep), slog.String("component", "recurring_machine"))
	// Kick an immediate run so we don't wait a full interval after boot.
	m.refreshTick(ctx)
	ticker := time.NewTicker(m.cfg.RefreshSleep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("recurring action refresh loop stopped", slog.String("component", "recurring_machine"))
			return
		case <-ticker.C:
			m.refreshTick(ctx)
		}
	}
}

// refreshTick runs one full selection+dispatch pass, isolating panics and errors.
func (m *Machine) refreshTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("refresh tick panicked", slog.Any("panic", r), slog.String("component", "recurring_machine"))
		}
	}()
	if m.deps.DB != nil {
		db.Heartbeat(ctx, m.deps.DB, "job_recurring_refresh_last")
	}
	if telemetry.RefreshTicks != nil {
		telemetry.RefreshTicks.Inc()
	}
	tickCtx, span := telemetry.StartSpan(ctx, "recurring-machine", "refresh_tick")
	defer span.End()
	telemetry.TimeFunc(telemetry.RefreshTickDuration, func() {
		if err := m.refreshActions(tickCtx); err != nil {
			telemetry.RecordError(span, err)
			slog.Warn("refresh actions", slog.Any("err", err), slog.String("component", "recurring_machine"))
		}
	})
}

// refreshActions evaluates every viable user once. Channels are processed in the
// iteration order of the users list; one channel's failure does not block the rest.
func (m *Machine) refreshActions(ctx context.Context) error {
	all, err := m.deps.Users.GetUsers(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	type candidate struct {
		user      users.User
		channelID string
	}
	var candidates []candidate
	for _, u := range all {
		if !u.IsEnabled || !u.RecurringActionsEnabled {
			continue
		}
		channelID := u.TwitchChannelID
		if channelID == "" {
			channelID, err = m.deps.UserIDs.FetchUserID(ctx, u.Handle)
			if err != nil || channelID == "" {
				slog.Debug("cannot resolve channel id", slog.String("handle", u.Handle), slog.Any("err", err), slog.String("component", "recurring_machine"))
				continue
			}
		}
		candidates = append(candidates, candidate{user: u, channelID: channelID})
	}
	if len(candidates) == 0 {
		return nil
	}

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.channelID)
	}
	live, err := m.deps.Liveness.AreLive(ctx, ids)
	if err != nil {
		return fmt.Errorf("live status batch: %w", err)
	}
	liveCount := 0
	for _, isLive := range live {
		if isLive {
			liveCount++
		}
	}
	telemetry.SetLiveChannels(liveCount)

	for _, c := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !live[c.channelID] {
			continue
		}
		if err := m.processChannel(ctx, c.user, c.channelID); err != nil {
			slog.Warn("channel tick failed", slog.String("handle", c.user.Handle), slog.Any("err", err), slog.String("component", "recurring_machine"))
		}
	}
	return nil
}

// processChannel selects and dispatches at most one due action for a live channel.
func (m *Machine) processChannel(ctx context.Context, user users.User, channelID string) error {
	action, err := m.findDueRecurringAction(ctx, channelID)
	if err != nil {
		return err
	}
	if action == nil {
		if telemetry.ActionsSkipped != nil {
			telemetry.ActionsSkipped.Inc()
		}
		return nil
	}

	handler, ok := m.handlers[action.Type]
	if !ok {
		// Unknown variant here means a code/data mismatch, not a runtime condition.
		panic(fmt.Sprintf("no handler for recurring action type %q", action.Type))
	}
	dispatched, err := handler(ctx, user, channelID, action)
	if err != nil {
		return fmt.Errorf("process %s action: %w", action.Type, err)
	}
	if !dispatched {
		// Handler could not produce a payload; leave the cooldown record untouched so
		// another action type can be tried next tick.
		return nil
	}

	telemetry.CountActionDispatched(string(action.Type))
	return m.deps.MostRecent.Set(ctx, &MostRecent{
		ActionType:      action.Type,
		TwitchChannel:   user.Handle,
		TwitchChannelID: channelID,
		DispatchedAt:    m.now(),
	})
}

// findDueRecurringAction samples action types uniformly at random without replacement,
// returning the first enabled candidate whose cooldown and cadence have both elapsed
// relative to the channel's single most-recent dispatch of any type, or nil when the
// candidate set is exhausted.
func (m *Machine) findDueRecurringAction(ctx context.Context, channelID string) (*Action, error) {
	mostRecent, err := m.deps.MostRecent.Get(ctx, channelID)
	if err != nil {
		return nil, err
	}

	remaining := AllActionTypes()
	for len(remaining) > 0 {
		i := m.rng.Intn(len(remaining))
		t := remaining[i]
		remaining = append(remaining[:i], remaining[i+1:]...)

		action, err := m.deps.Actions.Get(ctx, channelID, t)
		if err != nil {
			return nil, err
		}
		if action == nil || !action.IsEnabled {
			continue
		}
		if mostRecent != nil {
			elapsed := m.now().Sub(mostRecent.DispatchedAt)
			if elapsed < m.cfg.ActionCooldown {
				continue
			}
			if elapsed < time.Duration(action.CadenceMinutes())*time.Minute {
				continue
			}
		}
		return action, nil
	}
	return nil, nil
}

// processCuteness builds a leaderboard snapshot event. An empty leaderboard is not
// announceable: no event, no cooldown update.
func (m *Machine) processCuteness(ctx context.Context, user users.User, channelID string, action *Action) (bool, error) {
	entries, err := m.deps.Cuteness.Leaderboard(ctx, channelID, 10)
	if err != nil {
		slog.Warn("cuteness leaderboard unavailable", slog.String("handle", user.Handle), slog.Any("err", err), slog.String("component", "recurring_machine"))
		return false, nil
	}
	if len(entries) == 0 {
		return false, nil
	}
	return m.submitEvent(ctx, &Event{
		Type:            ActionTypeCuteness,
		TwitchChannel:   user.Handle,
		TwitchChannelID: channelID,
		Leaderboard:     entries,
	}), nil
}

// processSuperTrivia emits the "starting soon" notice, waits out the countdown so chat can
// read it, then hands the built game to the trivia machine.
func (m *Machine) processSuperTrivia(ctx context.Context, user users.User, channelID string, action *Action) (bool, error) {
	game, err := m.deps.Trivia.BuildSuperTriviaGame(ctx, channelID)
	if err != nil {
		slog.Warn("super trivia game build failed", slog.String("handle", user.Handle), slog.Any("err", err), slog.String("component", "recurring_machine"))
		return false, nil
	}
	if game == nil {
		return false, nil
	}

	m.submitEvent(ctx, &Event{
		Type:            ActionTypeSuperTrivia,
		TwitchChannel:   user.Handle,
		TwitchChannelID: channelID,
		SuperTrivia:     game,
	})

	if m.cfg.SuperTriviaCountdown > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(m.cfg.SuperTriviaCountdown):
		}
	}

	if _, err := m.deps.Trivia.SubmitAction(ctx, game); err != nil {
		return false, fmt.Errorf("submit super trivia game: %w", err)
	}
	return true, nil
}

// processWeather fetches a report for the user's configured location. Missing API key,
// missing location, and network failures all degrade to "not dispatchable right now".
func (m *Machine) processWeather(ctx context.Context, user users.User, channelID string, action *Action) (bool, error) {
	if user.LocationID == "" {
		return false, nil
	}
	report, err := m.deps.Weather.Fetch(ctx, user.LocationID)
	if err != nil {
		if !errors.Is(err, weather.ErrAPIKeyMissing) && !errors.Is(err, weather.ErrNoSuchLocation) {
			slog.Warn("weather fetch failed", slog.String("handle", user.Handle), slog.Any("err", err), slog.String("component", "recurring_machine"))
		}
		return false, nil
	}
	return m.submitEvent(ctx, &Event{
		Type:            ActionTypeWeather,
		TwitchChannel:   user.Handle,
		TwitchChannelID: channelID,
		Weather:         report,
	}), nil
}

// processWordOfTheDay fetches today's word for the user's configured language.
func (m *Machine) processWordOfTheDay(ctx context.Context, user users.User, channelID string, action *Action) (bool, error) {
	language := user.WOTDLanguage
	if action.WordOfTheDay != nil && action.WordOfTheDay.LanguageCode != "" {
		language = action.WordOfTheDay.LanguageCode
	}
	if language == "" {
		return false, nil
	}
	entry, err := m.deps.WordOfDay.Fetch(ctx, language)
	if err != nil {
		if !errors.Is(err, wordofday.ErrNoLanguage) {
			slog.Warn("word of day fetch failed", slog.String("handle", user.Handle), slog.Any("err", err), slog.String("component", "recurring_machine"))
		}
		return false, nil
	}
	return m.submitEvent(ctx, &Event{
		Type:            ActionTypeWordOfTheDay,
		TwitchChannel:   user.Handle,
		TwitchChannelID: channelID,
		WordOfTheDay:    entry,
	}), nil
}

// submitEvent puts an event on the bounded queue, waiting at most EventPutTimeout before
// dropping it. A dropped event is logged and counted, never fatal.
func (m *Machine) submitEvent(ctx context.Context, ev *Event) bool {
	select {
	case m.events <- ev:
		telemetry.CountEventEmitted()
		telemetry.SetEventQueueDepth(len(m.events))
		return true
	default:
	}
	select {
	case m.events <- ev:
		telemetry.CountEventEmitted()
		telemetry.SetEventQueueDepth(len(m.events))
		return true
	case <-time.After(m.cfg.EventPutTimeout):
		slog.Warn("event queue full, dropping event",
			slog.String("action_type", string(ev.Type)),
			slog.String("twitch_channel", ev.TwitchChannel),
			slog.String("component", "recurring_machine"))
		telemetry.CountEventDropped()
		return true // the action still dispatched; only delivery was lost
	case <-ctx.Done():
		return false
	}
}

// StartEventLoop drains the event queue at the queue interval and forwards each event to
// the registered listener. Per-event listener failures are logged and isolated.
func (m *Machine) StartEventLoop(ctx context.Context) {
	slog.Info("recurring action event loop starting", slog.Duration("interval", m.cfg.QueueSleep), slog.String("component", "recurring_machine"))
	ticker := time.NewTicker(m.cfg.QueueSleep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("recurring action event loop stopped", slog.String("component", "recurring_machine"))
			return
		case <-ticker.C:
			if m.deps.DB != nil {
				db.Heartbeat(ctx, m.deps.DB, "job_recurring_events_last")
			}
			m.drainEvents(ctx)
		}
	}
}

// drainEvents pops everything currently queued and delivers in FIFO order.
func (m *Machine) drainEvents(ctx context.Context) {
	for {
		select {
		case ev := <-m.events:
			telemetry.SetEventQueueDepth(len(m.events))
			m.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (m *Machine) deliver(ctx context.Context, ev *Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event listener panicked", slog.Any("panic", r), slog.String("component", "recurring_machine"))
		}
	}()
	if m.listener == nil {
		slog.Warn("no event listener registered, dropping event", slog.String("action_type", string(ev.Type)), slog.String("component", "recurring_machine"))
		return
	}
	if err := m.listener.OnRecurringEvent(ctx, ev); err != nil {
		slog.Warn("event delivery failed",
			slog.String("action_type", string(ev.Type)),
			slog.String("twitch_channel", ev.TwitchChannel),
			slog.Any("err", err),
			slog.String("component", "recurring_machine"))
		return
	}
	telemetry.CountEventDelivered()
}
