package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/types"
)

// Indexer is the indexing capability the job handlers drive
type Indexer interface {
	IndexBlock(ctx context.Context, height int64) (int, error)
	IndexBlockRange(ctx context.Context, start, end int64) (int, error)
	SyncOnce(ctx context.Context) (int, error)
	ReindexTrailing(ctx context.Context, depth int64) (int, error)
}

// KeyScanner scans indexed transactions against a viewing key
type KeyScanner interface {
	ScanRange(ctx context.Context, viewingKey, userID string, start, end int64) (int, error)
}

// AlertEvaluator runs alert evaluation passes
type AlertEvaluator interface {
	EvaluateTransaction(ctx context.Context, transactionID string) error
	EvaluateBlock(ctx context.Context, height int64) error
	EvaluateAggregates(ctx context.Context) error
}

// Executor binds the queue's job types to their implementations
type Executor struct {
	indexer Indexer
	scanner KeyScanner
	alerts  AlertEvaluator
}

// NewExecutor creates an executor over the given services
func NewExecutor(indexer Indexer, scanner KeyScanner, alerts AlertEvaluator) (*Executor, error) {
	if indexer == nil {
		return nil, fmt.Errorf("indexer cannot be nil")
	}
	if scanner == nil {
		return nil, fmt.Errorf("scanner cannot be nil")
	}
	if alerts == nil {
		return nil, fmt.Errorf("alert evaluator cannot be nil")
	}
	return &Executor{indexer: indexer, scanner: scanner, alerts: alerts}, nil
}

// RegisterHandlers registers a handler for every job type on the queue
func (e *Executor) RegisterHandlers(q *Queue) {
	q.Register(types.JobIndexBlock, e.handleIndexBlock)
	q.Register(types.JobIndexRange, e.handleIndexRange)
	q.Register(types.JobContinuousSync, e.handleContinuousSync)
	q.Register(types.JobPeriodicReindex, e.handlePeriodicReindex)
	q.Register(types.JobViewingKeyScan, e.handleViewingKeyScan)
	q.Register(types.JobAlertCheck, e.handleAlertCheck)
}

func (e *Executor) handleIndexBlock(ctx context.Context, job *models.JobRecord) error {
	var payload BlockIndexPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	count, err := e.indexer.IndexBlock(ctx, payload.Height)
	if err != nil {
		return err
	}
	log.Printf("[JobQueue] Indexed block %d: %d shielded transactions", payload.Height, count)
	return nil
}

func (e *Executor) handleIndexRange(ctx context.Context, job *models.JobRecord) error {
	var payload RangeIndexPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	count, err := e.indexer.IndexBlockRange(ctx, payload.StartHeight, payload.EndHeight)
	if err != nil {
		return err
	}
	log.Printf("[JobQueue] Indexed range [%d, %d]: %d shielded transactions",
		payload.StartHeight, payload.EndHeight, count)
	return nil
}

func (e *Executor) handleContinuousSync(ctx context.Context, job *models.JobRecord) error {
	_, err := e.indexer.SyncOnce(ctx)
	return err
}

func (e *Executor) handlePeriodicReindex(ctx context.Context, job *models.JobRecord) error {
	var payload ReindexPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	count, err := e.indexer.ReindexTrailing(ctx, payload.Depth)
	if err != nil {
		return err
	}
	log.Printf("[JobQueue] Trailing re-index of %d blocks: %d shielded transactions",
		payload.Depth, count)
	return nil
}

func (e *Executor) handleViewingKeyScan(ctx context.Context, job *models.JobRecord) error {
	var payload ViewingKeyScanPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	matched, err := e.scanner.ScanRange(ctx, payload.ViewingKey, payload.UserID,
		payload.StartHeight, payload.EndHeight)
	if err != nil {
		return err
	}
	log.Printf("[JobQueue] Viewing key scan over [%d, %d]: %d transactions matched",
		payload.StartHeight, payload.EndHeight, matched)
	return nil
}

func (e *Executor) handleAlertCheck(ctx context.Context, job *models.JobRecord) error {
	// The repeating singleton carries no payload and evaluates aggregates
	if len(job.Payload) == 0 {
		return e.alerts.EvaluateAggregates(ctx)
	}

	var payload AlertCheckPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	switch {
	case payload.TransactionID != "":
		return e.alerts.EvaluateTransaction(ctx, payload.TransactionID)
	case payload.BlockHeight > 0:
		return e.alerts.EvaluateBlock(ctx, payload.BlockHeight)
	default:
		return e.alerts.EvaluateAggregates(ctx)
	}
}
