package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/mutesthq/mutest/internal/db"
	"github.com/mutesthq/mutest/internal/engine"
	"github.com/mutesthq/mutest/internal/queue"
)

// DefaultConcurrency is the worker count when none is configured.
const DefaultConcurrency = 2

// Pool supervises a set of workers sharing one engine.
type Pool struct {
	workers []*Worker
	queue   *queue.Client
}

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Engine      *engine.Engine
	Store       *db.Store
	Queue       *queue.Client // may be nil, workers then poll the database
	Concurrency int
}

// NewPool creates a pool of identical mutation workers.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("pool requires an engine")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("pool requires a store")
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	p := &Pool{
		workers: make([]*Worker, 0, concurrency),
		queue:   cfg.Queue,
	}
	for i := 0; i < concurrency; i++ {
		p.workers = append(p.workers, NewWorker(WorkerConfig{
			Engine: cfg.Engine,
			Store:  cfg.Store,
			Queue:  cfg.Queue,
		}))
	}

	return p, nil
}

// Size returns the number of workers in the pool.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Run starts every worker and blocks until the context is cancelled and
// all workers have drained their current job.
func (p *Pool) Run(ctx context.Context) error {
	if p.queue != nil && p.queue.IsConnected() {
		if err := p.queue.Setup(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to set up job stream, workers will poll the database")
		} else {
			log.Info().Msg("job stream configured")
		}
	}

	log.Info().Int("workers", len(p.workers)).Msg("starting worker pool")

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	return g.Wait()
}
