package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/idempotency"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
)

type fakeOperationStore struct {
	olderThan time.Duration
	deleted   int64
	err       error
}

func (s *fakeOperationStore) Get(context.Context, string) (idempotency.Record, error) {
	return idempotency.Record{}, idempotency.ErrNotRecorded
}

func (s *fakeOperationStore) Insert(context.Context, idempotency.Record) error { return nil }

func (s *fakeOperationStore) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return s.deleted, s.err
}

func TestCleanupJobUsesPayloadRetention(t *testing.T) {
	store := &fakeOperationStore{deleted: 7}
	job := NewCleanupJob(store, nil, NewMetrics(prometheus.NewRegistry()))

	task, err := NewCleanupTask(48)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, store.olderThan)
}

func TestCleanupJobDefaultsRetention(t *testing.T) {
	store := &fakeOperationStore{}
	job := NewCleanupJob(store, nil, NewMetrics(prometheus.NewRegistry()))

	task, err := NewCleanupTask(0)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, time.Duration(DefaultRetentionHours)*time.Hour, store.olderThan)
}

func TestCleanupJobPropagatesStoreFailure(t *testing.T) {
	store := &fakeOperationStore{err: errors.New("boom")}
	job := NewCleanupJob(store, nil, NewMetrics(prometheus.NewRegistry()))

	task, err := NewCleanupTask(24)
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
}

type fakeReconciler struct {
	diverged []ledger.Divergence
	err      error
	calls    int
}

func (f *fakeReconciler) Reconcile(context.Context) ([]ledger.Divergence, error) {
	f.calls++
	return f.diverged, f.err
}

func TestReconcileJobSucceedsDespiteDivergences(t *testing.T) {
	rec := &fakeReconciler{diverged: []ledger.Divergence{
		{ProductID: 1, BinID: 2, Stored: 10, Computed: 8},
	}}
	job := NewReconcileJob(rec, nil, NewMetrics(prometheus.NewRegistry()))

	task, err := NewReconcileTask()
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, rec.calls)
}

func TestReconcileJobFailsOnRepositoryError(t *testing.T) {
	rec := &fakeReconciler{err: errors.New("db down")}
	job := NewReconcileJob(rec, nil, NewMetrics(prometheus.NewRegistry()))

	task, err := NewReconcileTask()
	require.NoError(t, err)

	require.Error(t, job.Handle(context.Background(), task))
}

type fakeBatchCounter struct {
	cutoff time.Time
	count  int64
}

func (f *fakeBatchCounter) CountExpiringBatches(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.count, nil
}

func TestExpiryScanUsesHorizonFromPayload(t *testing.T) {
	counter := &fakeBatchCounter{count: 3}
	job := NewExpiryScanJob(counter, nil, NewMetrics(prometheus.NewRegistry()))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewExpiryScanTask(14)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, now.AddDate(0, 0, 14), counter.cutoff)
}

func TestExpiryScanDefaultsHorizon(t *testing.T) {
	counter := &fakeBatchCounter{}
	job := NewExpiryScanJob(counter, nil, NewMetrics(prometheus.NewRegistry()))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	job.clock = func() time.Time { return now }

	task, err := NewExpiryScanTask(0)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, now.AddDate(0, 0, DefaultExpiryHorizonDays), counter.cutoff)
}

func TestMalformedPayloadSkipsRetry(t *testing.T) {
	job := NewCleanupJob(&fakeOperationStore{}, nil, NewMetrics(prometheus.NewRegistry()))

	task := asynq.NewTask(TaskIdempotencyCleanup, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
