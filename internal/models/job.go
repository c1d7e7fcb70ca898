package models

import (
	"encoding/json"
	"time"

	"github.com/shielded-scanner/internal/types"
)

// JobRecord represents a queued job as persisted by the queue orchestrator.
// Payload is type-specific JSON. Attempts never exceeds MaxAttempts before
// the job transitions to failed.
type JobRecord struct {
	ID          string          `json:"id"`
	Type        types.JobType   `json:"type"`
	Name        string          `json:"name,omitempty"` // set for repeating jobs, unique per schedule
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      types.JobStatus `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	RunAt       time.Time       `json:"runAt"`
	RepeatEvery time.Duration   `json:"repeatEvery,omitempty"` // repeating jobs reschedule on completion

	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	Error       string          `json:"error,omitempty"`
}
