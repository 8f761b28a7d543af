// Command livegram bridges Twitch live status to Telegram notifications.
// It:
//   - Loads configuration and initializes structured logging.
//   - Loads the persisted reconciliation snapshot (state.json).
//   - Builds one Telegram dispatcher per configured bot and starts the update
//     watcher that recovers pin tracking from manual forwards.
//   - Polls Twitch Helix on a fixed interval and reconciles notification
//     messages (send/edit/pin/unpin) across all configured destinations.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM; the inter-sweep sleep wakes early.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/onnwee/livegram/config"
	"github.com/onnwee/livegram/notify"
	"github.com/onnwee/livegram/server"
	"github.com/onnwee/livegram/telegram"
	"github.com/onnwee/livegram/telemetry"
	"github.com/onnwee/livegram/twitchapi"
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

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.ValidatePollReady(); err != nil {
		slog.Error("config incomplete", slog.Any("err", err))
		os.Exit(1)
	}

	// Metrics / telemetry init
	telemetry.Init()

	// OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdown, err := telemetry.InitTracing("livegram", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	// Persisted reconciliation state. A load failure aborts startup; running
	// without the snapshot would re-notify every live channel.
	logins := make([]string, 0, len(cfg.Channels))
	for login := range cfg.Channels {
		logins = append(logins, login)
	}
	store, err := notify.Open(cfg.StatePath, logins)
	if err != nil {
		slog.Error("failed to open state snapshot", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("state snapshot loaded", slog.String("path", cfg.StatePath), slog.Int("channels", len(logins)))

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One dispatcher per configured bot. A bad token is a configuration
	// error and fails startup.
	bots := make(map[string]notify.Dispatcher, len(cfg.BotTokens))
	clients := make(map[string]*telegram.Client, len(cfg.BotTokens))
	for name, token := range cfg.BotTokens {
		client, err := telegram.NewClient(token)
		if err != nil {
			slog.Error("telegram bot init failed", slog.String("bot", name), slog.Any("err", err))
			os.Exit(1)
		}
		bots[name] = client
		clients[name] = client
	}

	// Update watchers: recover pin tracking from manually forwarded posts.
	for name, client := range clients {
		go func(name string, client *telegram.Client) {
			telegram.StartWatcher(ctx, client, store, cfg.Channels)
		}(name, client)
	}

	// Status source
	helix := &twitchapi.HelixClient{
		AppTokenSource: &twitchapi.TokenSource{
			ClientID:     cfg.TwitchClientID,
			ClientSecret: cfg.TwitchClientSecret,
		},
		ClientID: cfg.TwitchClientID,
	}

	rec := &notify.Reconciler{
		Store:    store,
		Source:   notify.HelixSource{Client: helix},
		Bots:     bots,
		Channels: cfg.Channels,
	}
	go notify.StartNotifyJob(ctx, rec, cfg.PollInterval, cfg.ChannelTimeout)

	// HTTP server (health/status/metrics)
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	go func() {
		if err := server.Start(ctx, store, addr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal
	<-ctx.Done()
	slog.Info("shutting down")
}
