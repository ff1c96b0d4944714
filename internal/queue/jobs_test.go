package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mutesthq/mutest/internal/mutation"
)

func TestJobMessage_Roundtrip(t *testing.T) {
	msg := JobMessage{
		JobID: uuid.New(),
		Config: mutation.Config{
			TimeoutSeconds: 15,
			TestCommand:    "go test ./...",
			ParallelJobs:   2,
			MutationTypes:  []mutation.Kind{mutation.KindArithmetic, mutation.KindRelational},
		},
		EnqueuedAt: time.Now().UTC().Truncate(time.Second),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	decoded, err := DecodeJobMessage(data)
	if err != nil {
		t.Fatalf("DecodeJobMessage() error: %v", err)
	}

	if decoded.JobID != msg.JobID {
		t.Errorf("JobID = %s, want %s", decoded.JobID, msg.JobID)
	}
	if decoded.Config.TimeoutSeconds != 15 {
		t.Errorf("TimeoutSeconds = %d, want 15", decoded.Config.TimeoutSeconds)
	}
	if decoded.Config.TestCommand != "go test ./..." {
		t.Errorf("TestCommand = %s, want 'go test ./...'", decoded.Config.TestCommand)
	}
	if len(decoded.Config.MutationTypes) != 2 {
		t.Fatalf("len(MutationTypes) = %d, want 2", len(decoded.Config.MutationTypes))
	}
	if decoded.Config.MutationTypes[0] != mutation.KindArithmetic {
		t.Errorf("MutationTypes[0] = %s, want arithmetic", decoded.Config.MutationTypes[0])
	}
	if !decoded.EnqueuedAt.Equal(msg.EnqueuedAt) {
		t.Errorf("EnqueuedAt = %v, want %v", decoded.EnqueuedAt, msg.EnqueuedAt)
	}
}

func TestJobMessage_KindsEncodeAsStrings(t *testing.T) {
	msg := JobMessage{
		JobID:  uuid.New(),
		Config: mutation.Config{MutationTypes: []mutation.Kind{mutation.KindConditionalBoundary}},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}

	cfg, ok := raw["config"].(map[string]any)
	if !ok {
		t.Fatal("config should be an object")
	}
	kinds, ok := cfg["mutation_types"].([]any)
	if !ok || len(kinds) != 1 {
		t.Fatalf("mutation_types = %v, want one element", cfg["mutation_types"])
	}
	if kinds[0] != "conditional_boundary" {
		t.Errorf("mutation_types[0] = %v, want conditional_boundary", kinds[0])
	}
}

func TestDecodeJobMessage_InvalidJSON(t *testing.T) {
	if _, err := DecodeJobMessage([]byte("{not json")); err == nil {
		t.Error("DecodeJobMessage() should reject malformed JSON")
	}
}

func TestDecodeJobMessage_MissingJobID(t *testing.T) {
	if _, err := DecodeJobMessage([]byte(`{"config":{}}`)); err == nil {
		t.Error("DecodeJobMessage() should reject a message without a job id")
	}
}
