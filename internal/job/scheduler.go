package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/shielded-scanner/internal/errors"
	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/types"
)

// Payload shapes for each job type. Payloads are stored as JSON on the job
// record and decoded again by the matching handler.

// BlockIndexPayload drives a single-block index job
type BlockIndexPayload struct {
	Height int64 `json:"height"`
}

// RangeIndexPayload drives a block-range index job
type RangeIndexPayload struct {
	StartHeight int64 `json:"startHeight"`
	EndHeight   int64 `json:"endHeight"`
}

// ReindexPayload drives the periodic trailing-window re-index
type ReindexPayload struct {
	Depth int64 `json:"depth"` // blocks below the cursor to re-index
}

// ViewingKeyScanPayload drives a viewing-key scan job. The key is carried
// in the payload for the scan only; persistence stores its hash.
type ViewingKeyScanPayload struct {
	ViewingKey  string `json:"viewingKey"`
	UserID      string `json:"userId"`
	StartHeight int64  `json:"startHeight"`
	EndHeight   int64  `json:"endHeight"`
}

// AlertCheckPayload drives an alert evaluation pass. TransactionID scopes
// a pass over transaction and address alerts; BlockHeight alone scopes a
// new-block pass; neither means the aggregate categories are evaluated.
type AlertCheckPayload struct {
	TransactionID string `json:"transactionId,omitempty"`
	BlockHeight   int64  `json:"blockHeight,omitempty"`
}

// Names of the repeating singleton jobs
const (
	nameContinuousSync  = "continuous-sync"
	namePeriodicReindex = "periodic-reindex"
	nameAlertCheck      = "alert-check"
)

// Scheduler provides typed scheduling entry points over the queue
type Scheduler struct {
	queue *Queue
}

// NewScheduler creates a scheduler bound to a queue
func NewScheduler(queue *Queue) *Scheduler {
	return &Scheduler{queue: queue}
}

// ScheduleBlockIndex enqueues a single-block index job
func (s *Scheduler) ScheduleBlockIndex(ctx context.Context, height int64) (*models.JobRecord, error) {
	if height < 0 {
		return nil, apperrors.NewValidationError("height", "must be non-negative")
	}
	payload, err := json.Marshal(&BlockIndexPayload{Height: height})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return s.queue.Enqueue(ctx, types.JobIndexBlock, &EnqueueOptions{Payload: payload})
}

// ScheduleRangeIndex enqueues a block-range index job
func (s *Scheduler) ScheduleRangeIndex(ctx context.Context, start, end int64) (*models.JobRecord, error) {
	if start < 0 || end < start {
		return nil, apperrors.NewInvalidRangeError(start, end)
	}
	payload, err := json.Marshal(&RangeIndexPayload{StartHeight: start, EndHeight: end})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return s.queue.Enqueue(ctx, types.JobIndexRange, &EnqueueOptions{Payload: payload})
}

// StartContinuousSync schedules the repeating sync job, replacing any
// instance left over from a previous run.
func (s *Scheduler) StartContinuousSync(ctx context.Context, interval time.Duration) (*models.JobRecord, error) {
	return s.queue.Enqueue(ctx, types.JobContinuousSync, &EnqueueOptions{
		Name:        nameContinuousSync,
		RepeatEvery: interval,
	})
}

// SchedulePeriodicReindex schedules the repeating trailing-window re-index
func (s *Scheduler) SchedulePeriodicReindex(ctx context.Context, interval time.Duration, depth int64) (*models.JobRecord, error) {
	if depth <= 0 {
		return nil, apperrors.NewValidationError("depth", "must be positive")
	}
	payload, err := json.Marshal(&ReindexPayload{Depth: depth})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return s.queue.Enqueue(ctx, types.JobPeriodicReindex, &EnqueueOptions{
		Name:        namePeriodicReindex,
		Payload:     payload,
		RepeatEvery: interval,
	})
}

// StartPeriodicAlertCheck schedules the repeating aggregate alert pass
func (s *Scheduler) StartPeriodicAlertCheck(ctx context.Context, interval time.Duration) (*models.JobRecord, error) {
	return s.queue.Enqueue(ctx, types.JobAlertCheck, &EnqueueOptions{
		Name:        nameAlertCheck,
		RepeatEvery: interval,
	})
}

// ScheduleAlertCheck enqueues a one-shot alert pass scoped by the payload:
// a transaction, a newly advanced block, or neither for aggregates
func (s *Scheduler) ScheduleAlertCheck(ctx context.Context, transactionID string, blockHeight int64) (*models.JobRecord, error) {
	payload, err := json.Marshal(&AlertCheckPayload{TransactionID: transactionID, BlockHeight: blockHeight})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return s.queue.Enqueue(ctx, types.JobAlertCheck, &EnqueueOptions{Payload: payload})
}

// ScheduleViewingKeyScan enqueues a scan of indexed transactions in
// [start, end] against the given viewing key
func (s *Scheduler) ScheduleViewingKeyScan(ctx context.Context, viewingKey, userID string, start, end int64) (*models.JobRecord, error) {
	if viewingKey == "" {
		return nil, apperrors.NewValidationError("viewingKey", "cannot be empty")
	}
	if start < 0 || end < start {
		return nil, apperrors.NewInvalidRangeError(start, end)
	}
	payload, err := json.Marshal(&ViewingKeyScanPayload{
		ViewingKey:  viewingKey,
		UserID:      userID,
		StartHeight: start,
		EndHeight:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return s.queue.Enqueue(ctx, types.JobViewingKeyScan, &EnqueueOptions{Payload: payload})
}
