package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mutesthq/mutest/internal/mutation"
)

// JobMessage is the payload for queued mutation jobs. The job row holds
// the source and metadata; the message carries only the id and the run
// configuration, which is not persisted.
type JobMessage struct {
	JobID      uuid.UUID       `json:"job_id"`
	Config     mutation.Config `json:"config"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// PublishJob enqueues one mutation job. It satisfies the engine's
// JobPublisher interface.
func (c *Client) PublishJob(ctx context.Context, jobID uuid.UUID, cfg mutation.Config) error {
	js := c.jetStream()
	if js == nil {
		return fmt.Errorf("not connected to NATS")
	}

	msg := JobMessage{
		JobID:      jobID,
		Config:     cfg,
		EnqueuedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal job message: %w", err)
	}

	if _, err := js.Publish(ctx, SubjectMutationJobs, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", SubjectMutationJobs, err)
	}

	log.Debug().Str("job_id", jobID.String()).Msg("job enqueued")
	return nil
}

// DecodeJobMessage parses a queued job payload.
func DecodeJobMessage(data []byte) (JobMessage, error) {
	var msg JobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return JobMessage{}, fmt.Errorf("failed to decode job message: %w", err)
	}
	if msg.JobID == uuid.Nil {
		return JobMessage{}, fmt.Errorf("job message has no job id")
	}
	return msg, nil
}
