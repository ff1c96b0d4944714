package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mutesthq/mutest/internal/api"
	"github.com/mutesthq/mutest/internal/config"
	"github.com/mutesthq/mutest/internal/db"
	"github.com/mutesthq/mutest/internal/engine"
	"github.com/mutesthq/mutest/internal/queue"
	"github.com/mutesthq/mutest/internal/sandbox"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if os.Getenv("ENV") != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx := context.Background()

	// Connect to database (optional; the API serves 503s without it)
	var store *db.Store
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to database, API will run degraded")
		} else {
			defer database.Close()
			if cfg.MigrateOnStart {
				if err := database.Migrate(ctx); err != nil {
					log.Fatal().Err(err).Msg("failed to run migrations")
				}
			}
			store = db.NewStore(database)
			log.Info().Msg("connected to database")
		}
	}

	// Connect to NATS (optional; submissions then wait for polling workers)
	var publisher engine.JobPublisher
	if cfg.NATSURL != "" {
		queueClient, err := queue.NewClient(cfg.NATSURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, submitted jobs will wait for pollers")
		} else {
			defer queueClient.Close()
			if err := queueClient.Setup(ctx); err != nil {
				log.Warn().Err(err).Msg("failed to set up job stream")
			}
			publisher = queueClient
			log.Info().Str("url", cfg.NATSURL).Msg("connected to NATS")
		}
	}

	var eng *engine.Engine
	if store != nil {
		sandboxes := sandbox.NewManager(sandbox.Config{BaseDir: cfg.SandboxDir})
		if err := sandboxes.Verify(); err != nil {
			log.Warn().Err(err).Msg("sandbox directory not usable, in-process runs will fail")
		}
		eng = engine.New(store, sandboxes, publisher)
	}

	// Create server
	srv, err := api.NewServer(eng, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	// Start server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("server is shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Fatal().Err(err).Msg("could not gracefully shutdown the server")
		}
		close(done)
	}()

	log.Info().Int("port", cfg.Port).Msg("starting API server")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("could not listen on port")
	}

	<-done
	log.Info().Msg("server stopped")
}
