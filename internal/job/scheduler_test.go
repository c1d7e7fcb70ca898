package job

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shielded-scanner/internal/types"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	q, _ := newTestQueue(t, nil)
	for _, jt := range []types.JobType{
		types.JobIndexBlock, types.JobIndexRange, types.JobContinuousSync,
		types.JobPeriodicReindex, types.JobViewingKeyScan, types.JobAlertCheck,
	} {
		q.Register(jt, noopHandler)
	}
	return NewScheduler(q)
}

func TestScheduleBlockIndex(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	record, err := s.ScheduleBlockIndex(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, types.JobIndexBlock, record.Type)

	var payload BlockIndexPayload
	require.NoError(t, json.Unmarshal(record.Payload, &payload))
	assert.Equal(t, int64(100), payload.Height)

	_, err = s.ScheduleBlockIndex(ctx, -1)
	require.Error(t, err)
}

func TestScheduleRangeIndex_Validation(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.ScheduleRangeIndex(ctx, 10, 5)
	require.Error(t, err, "start above end must be rejected")

	_, err = s.ScheduleRangeIndex(ctx, -1, 5)
	require.Error(t, err)

	record, err := s.ScheduleRangeIndex(ctx, 5, 10)
	require.NoError(t, err)
	assert.Equal(t, types.JobIndexRange, record.Type)
}

func TestStartContinuousSync_Singleton(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	first, err := s.StartContinuousSync(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, first.RepeatEvery)

	// A second call replaces the first, leaving a single schedule
	second, err := s.StartContinuousSync(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	pending, err := s.queue.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
}

func TestScheduleViewingKeyScan_Validation(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.ScheduleViewingKeyScan(ctx, "", "user-1", 0, 10)
	require.Error(t, err, "empty key must be rejected")

	_, err = s.ScheduleViewingKeyScan(ctx, "zxviews1...", "user-1", 10, 5)
	require.Error(t, err)

	record, err := s.ScheduleViewingKeyScan(ctx, "zxviews1...", "user-1", 0, 10)
	require.NoError(t, err)

	var payload ViewingKeyScanPayload
	require.NoError(t, json.Unmarshal(record.Payload, &payload))
	assert.Equal(t, "user-1", payload.UserID)
	assert.Equal(t, int64(10), payload.EndHeight)
}

func TestSchedulePeriodicReindex(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	_, err := s.SchedulePeriodicReindex(ctx, time.Hour, 0)
	require.Error(t, err, "zero depth must be rejected")

	record, err := s.SchedulePeriodicReindex(ctx, 24*time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, record.RepeatEvery)

	var payload ReindexPayload
	require.NoError(t, json.Unmarshal(record.Payload, &payload))
	assert.Equal(t, int64(100), payload.Depth)
}
