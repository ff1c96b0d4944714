package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mutesthq/mutest/internal/config"
	"github.com/mutesthq/mutest/internal/db"
	"github.com/mutesthq/mutest/internal/engine"
	"github.com/mutesthq/mutest/internal/queue"
	"github.com/mutesthq/mutest/internal/sandbox"
	"github.com/mutesthq/mutest/internal/worker"
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to database. Every run reads and writes job state, so the
	// worker cannot degrade past this one.
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()
	store := db.NewStore(database)
	log.Info().Msg("connected to database")

	// Connect to NATS (optional; workers then poll the database)
	var queueClient *queue.Client
	if cfg.NATSURL != "" {
		queueClient, err = queue.NewClient(cfg.NATSURL)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to NATS, workers will poll database")
			queueClient = nil
		} else {
			defer queueClient.Close()
			log.Info().Str("url", cfg.NATSURL).Msg("connected to NATS")
		}
	}

	sandboxes := sandbox.NewManager(sandbox.Config{BaseDir: cfg.SandboxDir})
	if err := sandboxes.Verify(); err != nil {
		log.Fatal().Err(err).Msg("sandbox directory not usable")
	}
	eng := engine.New(store, sandboxes, nil)

	pool, err := worker.NewPool(worker.PoolConfig{
		Engine:      eng,
		Store:       store,
		Queue:       queueClient,
		Concurrency: cfg.WorkerConcurrency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create worker pool")
	}

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("worker pool is shutting down...")
		cancel()
	}()

	log.Info().Int("workers", pool.Size()).Msg("starting worker pool")
	if err := pool.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("worker pool error")
	}

	log.Info().Msg("worker pool stopped")
}
