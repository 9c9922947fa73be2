package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/1TapDev/1Tap-Notify/internal/config"
	"github.com/1TapDev/1Tap-Notify/internal/controlplane"
	"github.com/1TapDev/1Tap-Notify/internal/dmrelay"
	"github.com/1TapDev/1Tap-Notify/internal/gatewayclient"
	"github.com/1TapDev/1Tap-Notify/internal/httputil"
	"github.com/1TapDev/1Tap-Notify/internal/layout"
	"github.com/1TapDev/1Tap-Notify/internal/queue"
	"github.com/1TapDev/1Tap-Notify/internal/republisher"
	"github.com/1TapDev/1Tap-Notify/internal/routingstore"
)

// republisherListenAddr is fixed per the process/interface contract (§6):
// the collector's HTTP dual path targets it.
const republisherListenAddr = "127.0.0.1:5000"

// commandPrefix is the control plane's command marker in the destination
// guild (§4.7).
const commandPrefix = "!"

// gatewayAttemptLimit bounds RunWithBackoff's retries for the republisher's
// own bot session; 0 means unlimited, since this is a long-lived process
// rather than a bounded startup probe.
const gatewayAttemptLimit = 0

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("republisher stopped")
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.json"
	}
	if err := setupLogFile(); err != nil {
		log.Warn().Err(err).Msg("failed to open log file, continuing with stderr only")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	snapshot := config.NewSnapshot(cfg)
	log.Info().Int("tokens", len(cfg.Tokens)).Str("destination_server", cfg.DestinationServer).Msg("config loaded")

	ctx := context.Background()

	rdb, err := routingstore.Connect(ctx, cfg.Settings.RedisURL, 10*time.Second)
	if err != nil {
		return fmt.Errorf("connect routing store: %w", err)
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Msg("routing store connected")

	store := routingstore.New(rdb, log.Logger)
	q := queue.New(rdb, cfg.Settings.QueueName)

	session, err := gatewayclient.New(cfg.BotToken, true, nil, log.Logger)
	if err != nil {
		return fmt.Errorf("construct republisher gateway session: %w", err)
	}
	dg := session.Discord()

	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()

	resolver := republisher.NewRouteResolver(dg, snapshot, store, log.Logger)
	processor := republisher.NewProcessor(dg, q, store, resolver, snapshot, log.Logger)
	liveness := republisher.NewLivenessSweeper(store, log.Logger)
	guardian := layout.NewGuardian(dg, store, snapshot, log.Logger)

	outbound := dmrelay.NewOutboundWatcher(dg, store, snapshot, "http://127.0.0.1:5001/send_dm", log.Logger)
	dg.AddHandler(outbound.Handle)

	commands := controlplane.New(commandPrefix, configPath, snapshot, dg, store, guardian, log.Logger)
	dg.AddHandler(commands.Handle)

	go func() {
		if err := gatewayclient.RunWithBackoff(subCtx, "republisher-gateway", gatewayAttemptLimit, log.Logger, session.Open); err != nil && subCtx.Err() == nil {
			log.Error().Err(err).Msg("republisher gateway session exited unexpectedly")
		}
	}()

	go func() {
		if err := processor.Run(subCtx); err != nil && subCtx.Err() == nil {
			log.Error().Err(err).Msg("processor loop exited unexpectedly")
		}
	}()
	go func() {
		if err := liveness.Run(subCtx); err != nil && subCtx.Err() == nil {
			log.Error().Err(err).Msg("liveness sweeper exited unexpectedly")
		}
	}()
	go func() {
		if err := guardian.RunOrganizer(subCtx); err != nil && subCtx.Err() == nil {
			log.Error().Err(err).Msg("layout organizer exited unexpectedly")
		}
	}()
	go func() {
		if err := guardian.RunRetention(subCtx); err != nil && subCtx.Err() == nil {
			log.Error().Err(err).Msg("layout retention exited unexpectedly")
		}
	}()

	watcher := config.NewWatcher(configPath, snapshot, log.Logger)
	go func() {
		if err := watcher.Run(subCtx); err != nil && subCtx.Err() == nil {
			log.Error().Err(err).Msg("config watcher exited unexpectedly")
		}
	}()

	app := fiber.New(fiber.Config{AppName: "1Tap Notify Republisher"})
	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger))

	server := republisher.NewServer(q, log.Logger)
	server.RegisterRoutes(app)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("shutting down republisher")
		subCancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("republisher http shutdown error")
		}
	}()

	log.Info().Str("addr", republisherListenAddr).Msg("republisher listening")
	if err := app.Listen(republisherListenAddr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("republisher http server error: %w", err)
	}

	return nil
}

// setupLogFile redirects zerolog's console writer to a timestamped file
// under $LOG_DIR (default ./logs) in addition to stderr, per §6's
// "log files rotate by timestamped filenames per run".
func setupLogFile() error {
	dir := os.Getenv("LOG_DIR")
	if dir == "" {
		dir = "./logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	name := fmt.Sprintf("republisher-%s.log", time.Now().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	multi := zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339},
		f,
	)
	log.Logger = zerolog.New(multi).With().Timestamp().Logger()
	return nil
}
