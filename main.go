// Command backend is the main entrypoint for the trivia-tender bot and its workers.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to the database and runs idempotent migrations.
//   - Starts background jobs: the recurring action refresh and event loops, the
//     Twitch chat bot, and the OAuth token refresher.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // G108: pprof endpoints enabled only when ENABLE_PPROF=1
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"
	twitchendpoint "golang.org/x/oauth2/twitch"

	"github.com/joho/godotenv"
	"github.com/onnwee/trivia-tender/backend/chat"
	"github.com/onnwee/trivia-tender/backend/config"
	"github.com/onnwee/trivia-tender/backend/cuteness"
	"github.com/onnwee/trivia-tender/backend/db"
	"github.com/onnwee/trivia-tender/backend/oauth"
	"github.com/onnwee/trivia-tender/backend/recurring"
	"github.com/onnwee/trivia-tender/backend/server"
	"github.com/onnwee/trivia-tender/backend/tasks"
	"github.com/onnwee/trivia-tender/backend/telemetry"
	"github.com/onnwee/trivia-tender/backend/trivia"
	"github.com/onnwee/trivia-tender/backend/twitchapi"
	"github.com/onnwee/trivia-tender/backend/users"
	"github.com/onnwee/trivia-tender/backend/weather"
	"github.com/onnwee/trivia-tender/backend/wordofday"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load(".env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", map[bool]string{true: "json", false: "text"}[format == "json"]))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("trivia-tender", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// App access token (client credentials) for Helix calls: user id resolution and
	// live-status polling. It is NOT used for IRC chat.
	appTokens := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret}
	if cfg.TwitchClientID != "" && cfg.TwitchClientSecret != "" {
		ctx2, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		if tok, err := appTokens.Get(ctx2); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else if len(tok) > 6 {
			masked := "***" + tok[len(tok)-6:]
			slog.Info("twitch app token acquired", slog.String("tail", masked))
		}
		cancel()
	}

	// DB
	database, err := db.Connect(cfg.DBDriver, cfg.DBDsn)
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Run database migrations. Postgres deployments use versioned migrations
	// (golang-migrate) with the embedded SQL as fallback for pre-migration schemas;
	// sqlite goes straight to the embedded SQL.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	migrated := false
	if cfg.DBDriver == "pgx" {
		if err := db.RunMigrations(database); err != nil {
			slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
				slog.Any("err", err),
				slog.String("component", "db_migrate"))
		} else {
			migrated = true
		}
	}
	if !migrated {
		if err := db.Migrate(context.Background(), database, cfg.DBDriver); err != nil {
			slog.Error("failed to migrate db", slog.Any("err", err))
			os.Exit(1)
		}
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories and domain clients
	helix := &twitchapi.HelixClient{AppTokenSource: appTokens, ClientID: cfg.TwitchClientID}
	userRepo := &users.Repository{DB: database}
	idRepo := &users.IDRepository{DB: database, Resolver: helix}
	actionRepo := &recurring.ActionsRepository{DB: database}
	mostRecentRepo := &recurring.MostRecentRepository{DB: database}
	cutenessRepo := &cuteness.Repository{DB: database}
	weatherClient := &weather.Client{DB: database, APIKey: cfg.OpenWeatherAPIKey}
	wordClient := &wordofday.Client{}

	// Trivia game admission and lifecycle
	store, err := trivia.NewQueuedGameStore(cfg.TriviaMaxQueueSize)
	if err != nil {
		slog.Error("bad trivia queue config", slog.Any("err", err))
		os.Exit(1)
	}

	helper := tasks.NewHelper()

	// Chat bot. Without credentials the scheduler still runs; events are logged and
	// dropped by the machine's nil-listener path.
	var bot *chat.Bot
	var announcer trivia.Announcer
	if err := cfg.ValidateChatReady(); err == nil {
		bot, err = chat.NewBot(cfg)
		if err != nil {
			slog.Error("chat bot init failed", slog.Any("err", err))
			os.Exit(1)
		}
		announcer = &chat.GameAnnouncer{Bot: bot}
	} else {
		slog.Info("chat bot disabled (missing twitch creds)", slog.Any("err", err))
	}

	games := trivia.NewGameMachine(store, announcer)
	starter := struct {
		*trivia.GameBuilder
		*trivia.GameMachine
	}{&trivia.GameBuilder{DB: database}, games}

	machine := recurring.NewMachine(recurring.MachineConfig{
		ActionCooldown:       cfg.ActionCooldown,
		RefreshSleep:         cfg.RefreshSleep,
		QueueSleep:           cfg.QueueSleep,
		EventQueueCapacity:   cfg.EventQueueCapacity,
		EventPutTimeout:      cfg.EventPutTimeout,
		SuperTriviaCountdown: cfg.SuperTriviaCountdown,
	}, recurring.Deps{
		Users:      userRepo,
		UserIDs:    idRepo,
		Liveness:   helix,
		Actions:    actionRepo,
		MostRecent: mostRecentRepo,
		Cuteness:   cutenessRepo,
		Weather:    weatherClient,
		WordOfDay:  wordClient,
		Trivia:     starter,
		DB:         database,
	})

	if bot != nil {
		machine.SetListener(&chat.EventRenderer{Sayer: bot})

		// Join every enabled channel before connecting so the announcer can route
		// id-keyed notifications.
		joinCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		if all, err := userRepo.GetUsers(joinCtx); err != nil {
			slog.Warn("cannot list users for chat join", slog.Any("err", err))
		} else {
			for _, u := range all {
				if !u.IsEnabled {
					continue
				}
				channelID := u.TwitchChannelID
				if channelID == "" {
					if channelID, err = idRepo.FetchUserID(joinCtx, u.Handle); err != nil {
						slog.Debug("cannot resolve channel id for join", slog.String("handle", u.Handle), slog.Any("err", err))
					}
				}
				bot.JoinChannel(u.Handle, channelID)
			}
		}
		cancel()

		helper.Spawn(ctx, "twitch_chat", func(ctx context.Context) {
			if err := bot.Run(ctx); err != nil {
				slog.Error("chat bot exited", slog.Any("err", err))
			}
		})
	}

	helper.Spawn(ctx, "recurring_refresh", machine.StartRefreshLoop)
	helper.Spawn(ctx, "recurring_events", machine.StartEventLoop)

	// Centralized OAuth token refresher for the bot's user token. Prefers Twitch's
	// refresh endpoint directly; the x/oauth2 client covers deployments that minted
	// their token through a standard authorization-code flow.
	oauth.StartRefresher(ctx, database, "twitch", 5*time.Minute, 15*time.Minute, func(rctx context.Context, refreshToken string) (string, string, time.Time, string, error) {
		res, err := twitchapi.RefreshToken(rctx, cfg.TwitchClientID, cfg.TwitchClientSecret, refreshToken)
		if err == nil {
			return res.AccessToken, res.RefreshToken, twitchapi.ComputeExpiry(res.ExpiresIn), strings.Join(res.Scope, " "), nil
		}
		slog.Warn("direct token refresh failed, retrying via oauth2 client", slog.Any("err", err))
		oc := &oauth2.Config{
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
			Endpoint:     twitchendpoint.Endpoint,
			RedirectURL:  cfg.TwitchRedirectURI,
		}
		newTok, err := oc.TokenSource(rctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
		if err != nil {
			return "", "", time.Time{}, "", err
		}
		return newTok.AccessToken, newTok.RefreshToken, newTok.Expiry, "", nil
	})

	// Enable pprof profiling endpoints in debug mode (ENABLE_PPROF=1)
	if os.Getenv("ENABLE_PPROF") == "1" {
		pprofAddr := os.Getenv("PPROF_ADDR")
		if pprofAddr == "" {
			pprofAddr = "localhost:6060"
		}
		go func() {
			slog.Info("pprof profiling enabled", slog.String("addr", pprofAddr))
			srv := &http.Server{
				Addr:              pprofAddr,
				Handler:           nil, // default mux exposes /debug/pprof
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      10 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			if err := srv.ListenAndServe(); err != nil {
				slog.Error("pprof server error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, database, store, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal, then wait for workers to wind down.
	<-ctx.Done()
	slog.Info("shutting down", slog.Int("tasks_in_flight", helper.InFlight()))
	helper.Wait()
}
