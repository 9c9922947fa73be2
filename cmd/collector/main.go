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

	"github.com/1TapDev/1Tap-Notify/internal/collector"
	"github.com/1TapDev/1Tap-Notify/internal/config"
	"github.com/1TapDev/1Tap-Notify/internal/dmrelay"
	"github.com/1TapDev/1Tap-Notify/internal/gatewayclient"
	"github.com/1TapDev/1Tap-Notify/internal/httputil"
	"github.com/1TapDev/1Tap-Notify/internal/queue"
	"github.com/1TapDev/1Tap-Notify/internal/routingstore"
)

// collectorListenAddr is fixed per the process/interface contract (§6): the
// outbound DM relay POSTs to it from the republisher process.
const collectorListenAddr = "127.0.0.1:5001"

// republisherProcessMessageURL is the dual-path HTTP target every Collector
// best-effort POSTs each normalized message to, alongside the durable queue.
const republisherProcessMessageURL = "http://127.0.0.1:5000/process_message"

// botInstancePublishInterval is how often this process refreshes the
// bot_instances registry the control plane's dmstats command reads.
const botInstancePublishInterval = 30 * time.Second

// gatewayAttemptLimit bounds RunWithBackoff's retries per session; 0 means
// unlimited, matching a long-lived background worker rather than a bounded
// startup probe.
const gatewayAttemptLimit = 0

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("collector stopped")
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
	log.Info().Int("tokens", len(cfg.Tokens)).Msg("config loaded")

	ctx := context.Background()

	rdb, err := routingstore.Connect(ctx, cfg.Settings.RedisURL, 10*time.Second)
	if err != nil {
		return fmt.Errorf("connect routing store: %w", err)
	}
	defer func() { _ = rdb.Close() }()
	log.Info().Msg("routing store connected")

	store := routingstore.New(rdb, log.Logger)
	q := queue.New(rdb, cfg.Settings.QueueName)

	manager := gatewayclient.NewManager(log.Logger)

	subCtx, subCancel := context.WithCancel(ctx)
	defer subCancel()

	var sessions []*gatewayclient.Session
	var guildIDs []string
	for i := range cfg.Tokens {
		tok := &cfg.Tokens[i]
		if tok.Disabled || tok.Status == config.StatusFailed {
			continue
		}

		c := collector.New(snapshot, store, q, republisherProcessMessageURL, log.Logger)
		session, err := gatewayclient.New(tok.Token, false, c.Handler(), log.Logger)
		if err != nil {
			log.Error().Err(err).Msg("failed to construct gateway session, skipping token")
			continue
		}
		sessions = append(sessions, session)

		for _, srv := range tok.Servers {
			guildIDs = append(guildIDs, srv.ServerID)
		}
	}
	if len(sessions) == 0 {
		return fmt.Errorf("no enabled tokens to collect with")
	}

	go manager.StartAll(subCtx, sessions, gatewayAttemptLimit)

	deletedEvents := make(chan collector.DeletedChannelEvent, 16)
	for _, session := range sessions {
		w := collector.NewDeletedChannelWatcher(session.Discord(), guildIDs, log.Logger)
		go func(w *collector.DeletedChannelWatcher) {
			if err := w.Run(subCtx, deletedEvents); err != nil && subCtx.Err() == nil {
				log.Error().Err(err).Msg("deleted-channel watcher exited unexpectedly")
			}
		}(w)
	}
	go forwardDeletedEvents(subCtx, deletedEvents, q, log.Logger)

	go publishBotInstances(subCtx, manager, store, snapshot, log.Logger)

	watcher := config.NewWatcher(configPath, snapshot, log.Logger)
	go func() {
		if err := watcher.Run(subCtx); err != nil && subCtx.Err() == nil {
			log.Error().Err(err).Msg("config watcher exited unexpectedly")
		}
	}()

	app := fiber.New(fiber.Config{AppName: "1Tap Notify Collector"})
	app.Use(requestid.New())
	app.Use(httputil.RequestLogger(log.Logger))

	dmService := dmrelay.NewService(manager, log.Logger)
	dmService.RegisterRoutes(app)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info().Msg("shutting down collector")
		subCancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("collector http shutdown error")
		}
	}()

	log.Info().Str("addr", collectorListenAddr).Int("sessions", len(sessions)).Msg("collector listening")
	if err := app.Listen(collectorListenAddr, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		return fmt.Errorf("collector http server error: %w", err)
	}

	return nil
}

// forwardDeletedEvents drains deleted-channel events and pushes each onto
// the durable queue for the republisher to act on (§4.1).
func forwardDeletedEvents(ctx context.Context, events <-chan collector.DeletedChannelEvent, q *queue.Queue, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			norm := ev.ToNormalized()
			if err := q.Push(ctx, norm); err != nil {
				logger.Error().Err(err).Str("channel_id", ev.ChannelID).Msg("failed to enqueue deleted-channel event")
			}
		}
	}
}

// publishBotInstances refreshes the bot_instances registry every tick so
// the control plane's dmstats command reflects which sessions are live.
func publishBotInstances(ctx context.Context, manager *gatewayclient.Manager, store *routingstore.Store, snapshot *config.Snapshot, logger zerolog.Logger) {
	ticker := time.NewTicker(botInstancePublishInterval)
	defer ticker.Stop()

	publish := func() {
		cfg := snapshot.Load()
		instances := make(map[string]routingstore.BotInstance, len(cfg.Tokens))
		for _, tok := range cfg.Tokens {
			session, ok := manager.Get(tok.Token)
			if !ok {
				continue
			}
			dg := session.Discord()
			var guildIDs []string
			if dg.State != nil {
				for _, g := range dg.State.Guilds {
					guildIDs = append(guildIDs, g.ID)
				}
			}
			instances[tok.Token] = routingstore.BotInstance{
				UserID:   tok.UserInfo.ID,
				Username: tok.UserInfo.Name,
				Guilds:   guildIDs,
			}
		}
		if err := store.PublishBotInstances(ctx, instances); err != nil {
			logger.Warn().Err(err).Msg("failed to publish bot instances")
		}
	}

	publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish()
		}
	}
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

	name := fmt.Sprintf("collector-%s.log", time.Now().Format("20060102-150405"))
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
