// Command chatwarden is the main entrypoint for the chat bot and its operator API.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Loads channel membership and custom commands, then starts the bot:
//     connection management, command dispatch, and relay mirroring.
//   - Starts the live-stream watcher that posts deduplicated announcements.
//   - Exposes the operator HTTP server with /healthz, /status, /metrics, and
//     the channel/command management endpoints.
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

	"github.com/joho/godotenv"

	"github.com/onnwee/chatwarden/announce"
	"github.com/onnwee/chatwarden/bot"
	"github.com/onnwee/chatwarden/config"
	"github.com/onnwee/chatwarden/db"
	"github.com/onnwee/chatwarden/relay"
	"github.com/onnwee/chatwarden/server"
	"github.com/onnwee/chatwarden/telemetry"
	"github.com/onnwee/chatwarden/twitchapi"
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
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("chatwarden", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()

	// Dual-system migrations: versioned (golang-migrate) from db/migrations/,
	// with the embedded SQL as fallback for deployments without a
	// schema_migrations table.
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(context.Background(), database); err != nil {
			slog.Error("failed to migrate db (both versioned and embedded SQL failed)", slog.Any("err", err))
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Helix client for live-stream status; nil when no app credentials.
	var helix *twitchapi.HelixClient
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		tokenCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		ts := &twitchapi.TokenSource{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}
		if tok, err := ts.Get(tokenCtx); err != nil {
			slog.Warn("twitch app token fetch failed; stream lookups degraded", slog.Any("err", err))
		} else if len(tok) > 6 {
			slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
		}
		cancel()
		helix = &twitchapi.HelixClient{AppTokenSource: ts, ClientID: cfg.ClientID}
	} else {
		slog.Info("helix credentials not configured; uptime and live announcements disabled")
	}

	var notifier relay.Notifier
	if cfg.RelayWebhookURL != "" {
		notifier = &relay.Client{WebhookURL: cfg.RelayWebhookURL}
	}

	store := &bot.SQLStore{DB: database}
	b := bot.New(cfg, bot.Options{
		Store: store,
		Relay: notifier,
		Live:  helix,
	})
	if err := b.LoadChannels(ctx); err != nil {
		slog.Warn("loading channels failed; starting with empty registry", slog.Any("err", err))
	}

	if err := cfg.ValidateBotReady(); err != nil {
		slog.Warn("bot credentials incomplete; waiting for operator start", slog.Any("err", err))
	} else if err := b.Start(ctx); err != nil {
		slog.Error("bot start failed", slog.Any("err", err))
	}

	// Live announcement watcher.
	if cfg.AnnounceEnabled && helix != nil {
		announcer := announce.New(true, cfg.AnnounceDedupWindow, cfg.AnnounceRetention)
		announcer.Channels = b.Channels()
		announcer.Sender = b
		announcer.Store = &announce.SQLStore{DB: database}
		announcer.Relay = notifier
		announcer.StartJanitor(ctx, 10*time.Minute)
		watcher := &announce.Watcher{
			Announcer: announcer,
			Streams:   helix,
			Channels:  channelNames{b.Channels()},
			Interval:  cfg.AnnouncePollInterval,
		}
		go watcher.Run(ctx)
	}

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

	go func() {
		if err := server.Start(ctx, database, b, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	b.Stop()
}

// channelNames adapts the channel registry to the watcher's lister interface.
type channelNames struct {
	reg *bot.ChannelRegistry
}

func (c channelNames) Enabled() []string {
	entries := c.reg.Enabled()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}
