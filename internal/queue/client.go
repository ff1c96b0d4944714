// Package queue provides the NATS JetStream transport that moves accepted
// mutation jobs from the API to the workers.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

const (
	// StreamJobs holds every queued mutation job until a worker takes it.
	StreamJobs = "MUTEST_JOBS"

	// SubjectJobsAll is the stream's subject space.
	SubjectJobsAll = "jobs.>"

	// SubjectMutationJobs carries individual job messages.
	SubjectMutationJobs = "jobs.mutation"

	// ConsumerMutation is the durable consumer the worker pool shares.
	ConsumerMutation = "mutation-worker"
)

const (
	streamMaxMsgs  = 100_000
	streamMaxBytes = 1024 * 1024 * 100 // 100MB
	streamMaxAge   = 7 * 24 * time.Hour

	// consumerAckWait must cover a full mutation run, or JetStream
	// redelivers jobs that are still executing.
	consumerAckWait       = 15 * time.Minute
	consumerMaxDeliver    = 5
	consumerMaxAckPending = 100
)

// Client wraps the NATS connection and the mutation job stream.
type Client struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	url    string
	mu     sync.RWMutex
	closed bool
}

// NewClient connects to NATS and prepares a JetStream context.
func NewClient(url string) (*Client, error) {
	c := &Client{url: url}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	opts := []nats.Option{
		nats.Name("mutest"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1), // Infinite reconnects
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("reconnected to NATS")
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("disconnected from NATS")
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(c.url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	c.nc = nc
	c.js = js

	log.Info().Str("url", c.url).Msg("connected to NATS JetStream")
	return nil
}

// Setup creates or updates the job stream and its worker consumer. Safe to
// call from every process at startup.
func (c *Client) Setup(ctx context.Context) error {
	js := c.jetStream()
	if js == nil {
		return fmt.Errorf("not connected to NATS")
	}

	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamJobs,
		Description: "mutest mutation job queue",
		Subjects:    []string{SubjectJobsAll},
		MaxMsgs:     streamMaxMsgs,
		MaxBytes:    streamMaxBytes,
		MaxAge:      streamMaxAge,
		Replicas:    1,
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy, // Each message delivered once
		Discard:     jetstream.DiscardOld,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream %s: %w", StreamJobs, err)
	}
	log.Debug().Str("stream", StreamJobs).Msg("stream ready")

	_, err = js.CreateOrUpdateConsumer(ctx, StreamJobs, jetstream.ConsumerConfig{
		Name:          ConsumerMutation,
		Durable:       ConsumerMutation,
		FilterSubject: SubjectMutationJobs,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       consumerAckWait,
		MaxDeliver:    consumerMaxDeliver,
		MaxAckPending: consumerMaxAckPending,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", ConsumerMutation, err)
	}
	log.Debug().Str("consumer", ConsumerMutation).Str("filter", SubjectMutationJobs).Msg("consumer ready")

	return nil
}

// Jobs returns the durable consumer workers fetch mutation jobs from.
func (c *Client) Jobs(ctx context.Context) (jetstream.Consumer, error) {
	js := c.jetStream()
	if js == nil {
		return nil, fmt.Errorf("not connected to NATS")
	}

	consumer, err := js.Consumer(ctx, StreamJobs, ConsumerMutation)
	if err != nil {
		return nil, fmt.Errorf("failed to look up consumer %s: %w", ConsumerMutation, err)
	}
	return consumer, nil
}

func (c *Client) jetStream() jetstream.JetStream {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.js
}

// IsConnected returns true if connected to NATS
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.nc == nil {
		return false
	}
	return c.nc.IsConnected()
}

// Close closes the NATS connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	if c.nc != nil {
		c.nc.Close()
		log.Info().Msg("NATS connection closed")
	}
}

// HealthCheck verifies NATS connectivity
func (c *Client) HealthCheck() error {
	c.mu.RLock()
	nc := c.nc
	c.mu.RUnlock()

	if nc == nil || !nc.IsConnected() {
		return fmt.Errorf("not connected to NATS")
	}
	return nil
}
