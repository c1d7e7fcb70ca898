// Package job provides the durable queue orchestrating the indexing and
// alerting background work. Job records live in Redis so pending work
// survives process restarts.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/shielded-scanner/internal/errors"
	"github.com/shielded-scanner/internal/models"
	"github.com/shielded-scanner/internal/storage"
	"github.com/shielded-scanner/internal/types"
)

const (
	keyRecordPrefix = "jobs:record:"
	keyName         = "jobs:name:"
	keyScheduled    = "jobs:scheduled"
	keyHistory      = "jobs:history"
)

// Handler executes one job. A nil error completes the job; an error either
// reschedules it with backoff or, once attempts are exhausted, fails it.
type Handler func(ctx context.Context, job *models.JobRecord) error

// Queue is the Redis-backed job queue. Pending jobs live in a sorted set
// scored by their run time; the worker pool claims due jobs with an atomic
// removal so concurrent workers never double-run a job.
type Queue struct {
	cache        *storage.RedisCache
	handlers     map[types.JobType]Handler
	workers      int
	maxAttempts  int
	backoffBase  time.Duration
	historyLimit int

	workerSem chan struct{}
	stopCh    chan struct{}
	doneCh    chan struct{}
	stopped   bool
	mu        sync.Mutex
	running   sync.WaitGroup
}

// QueueConfig holds configuration for the job queue
type QueueConfig struct {
	Cache        *storage.RedisCache
	Workers      int           // concurrent job executions (default: 5)
	MaxAttempts  int           // attempts before a job fails (default: 3)
	BackoffBase  time.Duration // retry delay grows linearly from this (default: 5s)
	HistoryLimit int           // completed/failed records kept (default: 100)
}

// NewQueue creates a new job queue
func NewQueue(cfg *QueueConfig) (*Queue, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("cache cannot be nil")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 5
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 5 * time.Second
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 100
	}

	return &Queue{
		cache:        cfg.Cache,
		handlers:     make(map[types.JobType]Handler),
		workers:      workers,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBase,
		historyLimit: historyLimit,
		workerSem:    make(chan struct{}, workers),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		stopped:      true,
	}, nil
}

// Register binds a handler to a job type. Must be called before Start.
func (q *Queue) Register(jobType types.JobType, handler Handler) {
	q.handlers[jobType] = handler
}

// Enqueue schedules a job for execution at opts.RunAt (or immediately).
// Jobs with a Name are repeating singletons: scheduling a name that
// already exists replaces the previous instance, so re-seeding after a
// restart or a crash always leaves exactly one schedule per name.
func (q *Queue) Enqueue(ctx context.Context, jobType types.JobType, opts *EnqueueOptions) (*models.JobRecord, error) {
	if _, ok := q.handlers[jobType]; !ok {
		return nil, apperrors.NewQueueError("enqueue", fmt.Errorf("no handler registered for job type %s", jobType))
	}
	if opts == nil {
		opts = &EnqueueOptions{}
	}

	rdb := q.cache.Client()

	if opts.Name != "" {
		// Supersede whatever the name currently points at. An un-started
		// instance is removed outright; an id missing from the scheduled
		// set is either mid-run or orphaned by a crash, and in both cases
		// the name key moves to the new record. completeJob and failJob
		// check the name key before touching it, so a superseded run
		// cannot resurrect the old schedule.
		existingID, err := rdb.Get(ctx, keyName+opts.Name).Result()
		if err != nil && err != redis.Nil {
			return nil, apperrors.NewQueueError("enqueue", err)
		}
		if err == nil && existingID != "" {
			if zerr := rdb.ZRem(ctx, keyScheduled, existingID).Err(); zerr != nil {
				return nil, apperrors.NewQueueError("enqueue", zerr)
			}
			if derr := rdb.Del(ctx, keyRecordPrefix+existingID).Err(); derr != nil {
				return nil, apperrors.NewQueueError("enqueue", derr)
			}
		}
	}

	runAt := opts.RunAt
	if runAt.IsZero() {
		runAt = time.Now()
	}

	record := &models.JobRecord{
		ID:          uuid.New().String(),
		Type:        jobType,
		Name:        opts.Name,
		Payload:     opts.Payload,
		Status:      types.JobStatusPending,
		MaxAttempts: q.maxAttempts,
		RunAt:       runAt,
		RepeatEvery: opts.RepeatEvery,
		CreatedAt:   time.Now(),
	}

	if err := q.saveRecord(ctx, record); err != nil {
		return nil, err
	}
	if opts.Name != "" {
		if err := rdb.Set(ctx, keyName+opts.Name, record.ID, 0).Err(); err != nil {
			return nil, apperrors.NewQueueError("enqueue", err)
		}
	}
	if err := rdb.ZAdd(ctx, keyScheduled, redis.Z{
		Score:  float64(runAt.UnixMilli()),
		Member: record.ID,
	}).Err(); err != nil {
		return nil, apperrors.NewQueueError("enqueue", err)
	}

	return record, nil
}

// EnqueueOptions controls scheduling of a single job
type EnqueueOptions struct {
	Payload     json.RawMessage
	RunAt       time.Time     // zero means now
	Name        string        // non-empty marks a repeating singleton
	RepeatEvery time.Duration // reschedule interval after completion
}

// GetJob loads a job record by id
func (q *Queue) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	data, err := q.cache.Client().Get(ctx, keyRecordPrefix+id).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, apperrors.NewNotFoundError("job", id)
		}
		return nil, apperrors.NewQueueError("get", err)
	}

	var record models.JobRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, apperrors.NewQueueError("get", err)
	}
	return &record, nil
}

// History returns the most recent completed and failed jobs, newest first
func (q *Queue) History(ctx context.Context, limit int) ([]*models.JobRecord, error) {
	if limit <= 0 || limit > q.historyLimit {
		limit = q.historyLimit
	}

	ids, err := q.cache.Client().LRange(ctx, keyHistory, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, apperrors.NewQueueError("history", err)
	}

	records := make([]*models.JobRecord, 0, len(ids))
	for _, id := range ids {
		record, err := q.GetJob(ctx, id)
		if err != nil {
			// Record expired or trimmed out from under the list
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

// PendingCount returns the number of scheduled (not yet claimed) jobs
func (q *Queue) PendingCount(ctx context.Context) (int64, error) {
	n, err := q.cache.Client().ZCard(ctx, keyScheduled).Result()
	if err != nil {
		return 0, apperrors.NewQueueError("pending", err)
	}
	return n, nil
}

// Start begins the worker pool
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if !q.stopped {
		q.mu.Unlock()
		return fmt.Errorf("queue already started")
	}
	q.stopped = false
	q.stopCh = make(chan struct{})
	q.doneCh = make(chan struct{})
	q.mu.Unlock()

	log.Printf("[JobQueue] Starting with %d workers", q.workers)
	go q.processJobs(ctx)
	return nil
}

// Stop gracefully stops the queue. Running jobs finish; claimed jobs that
// did not finish are rescheduled by their retry path on the next run.
func (q *Queue) Stop() error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return fmt.Errorf("queue already stopped")
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.stopCh)
	<-q.doneCh
	q.running.Wait()
	log.Printf("[JobQueue] Stopped")
	return nil
}

func (q *Queue) processJobs(ctx context.Context) {
	defer close(q.doneCh)

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.stopCh:
			return
		case <-ticker.C:
			q.claimDueJobs(ctx)
		}
	}
}

// claimDueJobs pops due jobs and dispatches them to the worker pool
func (q *Queue) claimDueJobs(ctx context.Context) {
	rdb := q.cache.Client()
	now := float64(time.Now().UnixMilli())

	ids, err := rdb.ZRangeByScore(ctx, keyScheduled, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", now),
		Count: int64(q.workers),
	}).Result()
	if err != nil {
		log.Printf("[JobQueue] Failed to read scheduled jobs: %v", err)
		return
	}

	for _, id := range ids {
		// Atomic claim: only the caller that removes the member runs it
		removed, err := rdb.ZRem(ctx, keyScheduled, id).Result()
		if err != nil || removed == 0 {
			continue
		}

		select {
		case q.workerSem <- struct{}{}:
		default:
			// Pool full: put the job back for the next tick
			rdb.ZAdd(ctx, keyScheduled, redis.Z{Score: now, Member: id})
			return
		}

		q.running.Add(1)
		go func(jobID string) {
			defer q.running.Done()
			defer func() { <-q.workerSem }()
			q.runJob(ctx, jobID)
		}(id)
	}
}

func (q *Queue) runJob(ctx context.Context, id string) {
	record, err := q.GetJob(ctx, id)
	if err != nil {
		log.Printf("[JobQueue] Claimed job %s has no record: %v", id, err)
		return
	}

	handler, ok := q.handlers[record.Type]
	if !ok {
		q.failJob(ctx, record, fmt.Errorf("no handler registered for job type %s", record.Type))
		return
	}

	record.Status = types.JobStatusRunning
	record.Attempts++
	if err := q.saveRecord(ctx, record); err != nil {
		log.Printf("[JobQueue] Failed to mark job %s running: %v", id, err)
	}

	err = func() (handlerErr error) {
		defer func() {
			if r := recover(); r != nil {
				handlerErr = fmt.Errorf("job panicked: %v", r)
			}
		}()
		return handler(ctx, record)
	}()

	if err != nil {
		if record.Attempts >= record.MaxAttempts {
			q.failJob(ctx, record, err)
			return
		}
		q.rescheduleJob(ctx, record, err)
		return
	}

	q.completeJob(ctx, record)
}

func (q *Queue) completeJob(ctx context.Context, record *models.JobRecord) {
	now := time.Now()
	record.Status = types.JobStatusCompleted
	record.CompletedAt = &now
	record.Error = ""

	if record.RepeatEvery > 0 {
		if record.Name != "" {
			owner, err := q.cache.Client().Get(ctx, keyName+record.Name).Result()
			if err != nil || owner != record.ID {
				// Superseded while running: a newer schedule owns the name,
				// so this instance finishes without rolling forward.
				if err := q.saveRecord(ctx, record); err != nil {
					log.Printf("[JobQueue] Failed to mark job %s completed: %v", record.ID, err)
					return
				}
				q.pushHistory(ctx, record)
				return
			}
		}
		// Repeating singleton: roll the same record forward
		next := *record
		next.Status = types.JobStatusPending
		next.CompletedAt = nil
		next.RunAt = now.Add(record.RepeatEvery)

		if err := q.saveRecord(ctx, &next); err != nil {
			log.Printf("[JobQueue] Failed to reschedule repeating job %s: %v", record.ID, err)
			return
		}
		if err := q.cache.Client().ZAdd(ctx, keyScheduled, redis.Z{
			Score:  float64(next.RunAt.UnixMilli()),
			Member: next.ID,
		}).Err(); err != nil {
			log.Printf("[JobQueue] Failed to reschedule repeating job %s: %v", record.ID, err)
		}
		return
	}

	if err := q.saveRecord(ctx, record); err != nil {
		log.Printf("[JobQueue] Failed to mark job %s completed: %v", record.ID, err)
		return
	}
	q.pushHistory(ctx, record)
}

func (q *Queue) rescheduleJob(ctx context.Context, record *models.JobRecord, cause error) {
	if record.Name != "" {
		owner, err := q.cache.Client().Get(ctx, keyName+record.Name).Result()
		if err != nil || owner != record.ID {
			// Superseded while running: the replacement owns the schedule,
			// so this instance does not retry.
			q.failJob(ctx, record, cause)
			return
		}
	}

	record.Status = types.JobStatusPending
	record.Error = cause.Error()
	// Linear backoff: base * attempts so far
	delay := q.backoffBase * time.Duration(record.Attempts)
	record.RunAt = time.Now().Add(delay)

	log.Printf("[JobQueue] Job %s (%s) attempt %d/%d failed, retrying in %v: %v",
		record.ID, record.Type, record.Attempts, record.MaxAttempts, delay, cause)

	if err := q.saveRecord(ctx, record); err != nil {
		log.Printf("[JobQueue] Failed to save retry for job %s: %v", record.ID, err)
		return
	}
	if err := q.cache.Client().ZAdd(ctx, keyScheduled, redis.Z{
		Score:  float64(record.RunAt.UnixMilli()),
		Member: record.ID,
	}).Err(); err != nil {
		log.Printf("[JobQueue] Failed to reschedule job %s: %v", record.ID, err)
	}
}

func (q *Queue) failJob(ctx context.Context, record *models.JobRecord, cause error) {
	now := time.Now()
	record.Status = types.JobStatusFailed
	record.CompletedAt = &now
	record.Error = cause.Error()

	log.Printf("[JobQueue] Job %s (%s) failed after %d attempts: %v",
		record.ID, record.Type, record.Attempts, cause)

	if err := q.saveRecord(ctx, record); err != nil {
		log.Printf("[JobQueue] Failed to mark job %s failed: %v", record.ID, err)
		return
	}
	if record.Name != "" {
		// Only release the name if this record still owns it
		owner, err := q.cache.Client().Get(ctx, keyName+record.Name).Result()
		if err == nil && owner == record.ID {
			q.cache.Client().Del(ctx, keyName+record.Name)
		}
	}
	q.pushHistory(ctx, record)
}

func (q *Queue) saveRecord(ctx context.Context, record *models.JobRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return apperrors.NewQueueError("save", err)
	}
	if err := q.cache.Client().Set(ctx, keyRecordPrefix+record.ID, data, 0).Err(); err != nil {
		return apperrors.NewQueueError("save", err)
	}
	return nil
}

// pushHistory prepends a finished job to the bounded history list. Records
// trimmed off the end are deleted so Redis does not accumulate them.
func (q *Queue) pushHistory(ctx context.Context, record *models.JobRecord) {
	rdb := q.cache.Client()

	if err := rdb.LPush(ctx, keyHistory, record.ID).Err(); err != nil {
		log.Printf("[JobQueue] Failed to push job %s to history: %v", record.ID, err)
		return
	}

	trimmed, err := rdb.LRange(ctx, keyHistory, int64(q.historyLimit), -1).Result()
	if err == nil {
		for _, id := range trimmed {
			rdb.Del(ctx, keyRecordPrefix+id)
		}
	}
	if err := rdb.LTrim(ctx, keyHistory, 0, int64(q.historyLimit-1)).Err(); err != nil {
		log.Printf("[JobQueue] Failed to trim job history: %v", err)
	}
}
