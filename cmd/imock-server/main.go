// Command imock-server runs the mock proxy: manual mocks, backend
// forwarding, AI-generated mocks, and live request viewing over websocket.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/zsjie/imock-open/external"
	"github.com/zsjie/imock-open/internal/config"
	"github.com/zsjie/imock-open/internal/events"
	"github.com/zsjie/imock-open/internal/monitoring"
	"github.com/zsjie/imock-open/internal/proxy"
	"github.com/zsjie/imock-open/internal/server"
	"github.com/zsjie/imock-open/internal/store"
)

func main() {
	// Missing .env is fine; the environment may be set by the supervisor.
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", "", "path to YAML config file")
		port       = flag.Int("port", 0, "listen port (overrides config)")
		dbPath     = flag.String("db", "", "sqlite database path (overrides config)")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	setupLogging(*debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config failed")
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Store.Path).Msg("opening store failed")
	}
	defer st.Close()

	gen, err := external.NewGenerator(external.GeneratorConfig{
		Provider:      cfg.AI.Provider,
		Endpoint:      cfg.AI.Endpoint,
		APIKey:        cfg.AI.APIKey,
		Model:         cfg.AI.Model,
		MaxTokens:     cfg.AI.MaxTokens,
		Timeout:       cfg.AI.Timeout,
		BedrockRegion: os.Getenv("AWS_REGION"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("building text generator failed")
	}

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled: cfg.Monitoring.Enabled,
		LogPath: cfg.Monitoring.LogPath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("initializing telemetry failed")
	}

	hub := events.NewHub()
	pipeline := proxy.New(st, gen, hub, tracker)
	srv := server.New(cfg, st, pipeline, hub, tracker)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("server failed")
		}
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}
}

// setupLogging picks human-readable console output on a terminal and JSON
// lines otherwise.
func setupLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
