package picking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

type fakeRepo struct {
	waves  map[int64]PickWave
	tasks  map[int64]PickTask
	stock  *ledger.MemoryStore
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		waves: make(map[int64]PickWave),
		tasks: make(map[int64]PickTask),
		stock: ledger.NewMemoryStore(),
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	c := &fakeRepo{
		waves:  make(map[int64]PickWave, len(f.waves)),
		tasks:  make(map[int64]PickTask, len(f.tasks)),
		stock:  f.stock.Clone(),
		nextID: f.nextID,
	}
	for k, v := range f.waves {
		c.waves[k] = v
	}
	for k, v := range f.tasks {
		c.tasks[k] = v
	}
	if err := fn(ctx, &fakeTx{repo: c}); err != nil {
		return err
	}
	f.waves = c.waves
	f.tasks = c.tasks
	f.stock.Replace(c.stock)
	f.nextID = c.nextID
	return nil
}

func (f *fakeRepo) GetWave(_ context.Context, id int64) (PickWave, error) {
	if wave, ok := f.waves[id]; ok {
		return wave, nil
	}
	return PickWave{}, shared.ErrNotFound
}

func (f *fakeRepo) ListTasks(_ context.Context, waveID int64) ([]PickTask, error) {
	var tasks []PickTask
	for id := int64(1); id <= f.nextID; id++ {
		if task, ok := f.tasks[id]; ok && task.WaveID == waveID {
			tasks = append(tasks, task)
		}
	}
	return tasks, nil
}

type fakeTx struct {
	repo *fakeRepo
}

func (t *fakeTx) GetWaveForUpdate(ctx context.Context, id int64) (PickWave, error) {
	return t.repo.GetWave(ctx, id)
}

func (t *fakeTx) UpdateWaveStatus(_ context.Context, id int64, status WaveStatus) error {
	wave := t.repo.waves[id]
	wave.Status = status
	t.repo.waves[id] = wave
	return nil
}

func (t *fakeTx) CreateWave(_ context.Context, wave PickWave) (int64, error) {
	t.repo.nextID++
	wave.ID = t.repo.nextID
	wave.CreatedAt = time.Now()
	t.repo.waves[wave.ID] = wave
	return wave.ID, nil
}

func (t *fakeTx) InsertTask(_ context.Context, task PickTask) (int64, error) {
	t.repo.nextID++
	task.ID = t.repo.nextID
	t.repo.tasks[task.ID] = task
	return task.ID, nil
}

func (t *fakeTx) UpdateTaskStatus(_ context.Context, taskID int64, status TaskStatus) error {
	task := t.repo.tasks[taskID]
	task.Status = status
	t.repo.tasks[taskID] = task
	return nil
}

func (t *fakeTx) ListTasks(ctx context.Context, waveID int64) ([]PickTask, error) {
	return t.repo.ListTasks(ctx, waveID)
}

func (t *fakeTx) Ledger() ledger.TxStore {
	return t.repo.stock
}

var actor = shared.Actor{UserID: 4, Role: "picker"}

func seedBalance(t *testing.T, repo *fakeRepo, productID, binID int64, onHand float64) {
	t.Helper()
	err := repo.stock.UpsertBalance(context.Background(), ledger.Balance{ProductID: productID, BinID: binID, OnHand: onHand})
	require.NoError(t, err)
}

func releasedWave(t *testing.T, svc *Service, repo *fakeRepo) (PickWave, []PickTask) {
	t.Helper()
	ctx := context.Background()
	seedBalance(t, repo, 1, 10, 10)
	seedBalance(t, repo, 2, 11, 5)
	wave, tasks, err := svc.Create(ctx, CreateInput{Tasks: []TaskInput{
		{ProductID: 1, BinID: 10, Qty: 4},
		{ProductID: 2, BinID: 11, Qty: 2},
	}}, actor)
	require.NoError(t, err)
	_, err = svc.Release(ctx, wave.ID, actor)
	require.NoError(t, err)
	return wave, tasks
}

func TestReleaseReservesEveryTask(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	releasedWave(t, svc, repo)

	require.InDelta(t, 4, repo.stock.Balance(1, 10).Reserved, 1e-9)
	require.InDelta(t, 2, repo.stock.Balance(2, 11).Reserved, 1e-9)
	require.Empty(t, repo.stock.Movements(), "release must not move stock")
}

func TestReleaseAbortsWhenOneBinIsShort(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	seedBalance(t, repo, 1, 10, 10)
	seedBalance(t, repo, 2, 11, 1)

	wave, _, err := svc.Create(ctx, CreateInput{Tasks: []TaskInput{
		{ProductID: 1, BinID: 10, Qty: 4},
		{ProductID: 2, BinID: 11, Qty: 2},
	}}, actor)
	require.NoError(t, err)

	_, err = svc.Release(ctx, wave.ID, actor)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, WaveStatusDraft, repo.waves[wave.ID].Status)
	require.InDelta(t, 0, repo.stock.Balance(1, 10).Reserved, 1e-9)
}

func TestPickDebitsReservedStock(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	wave, tasks := releasedWave(t, svc, repo)

	task, err := svc.PickTask(ctx, wave.ID, tasks[0].ID, actor)
	require.NoError(t, err)
	require.Equal(t, TaskStatusPicked, task.Status)

	balance := repo.stock.Balance(1, 10)
	require.InDelta(t, 6, balance.OnHand, 1e-9)
	require.InDelta(t, 0, balance.Reserved, 1e-9)
	movements := repo.stock.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, ledger.MovementGoodsIssue, movements[0].Type)
	require.Equal(t, wave.Number, movements[0].ReferenceNumber)
}

func TestSkipReleasesWithoutDebit(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	wave, tasks := releasedWave(t, svc, repo)

	task, err := svc.SkipTask(ctx, wave.ID, tasks[1].ID, actor)
	require.NoError(t, err)
	require.Equal(t, TaskStatusSkipped, task.Status)

	balance := repo.stock.Balance(2, 11)
	require.InDelta(t, 5, balance.OnHand, 1e-9)
	require.InDelta(t, 0, balance.Reserved, 1e-9)
	require.Empty(t, repo.stock.Movements())

	// Finished tasks stay finished.
	_, err = svc.PickTask(ctx, wave.ID, tasks[1].ID, actor)
	var invalid *shared.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestCompletionNeedsAllTasksTerminal(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	wave, tasks := releasedWave(t, svc, repo)

	_, err := svc.Transition(ctx, wave.ID, WaveStatusCompleted, actor)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.PickTask(ctx, wave.ID, tasks[0].ID, actor)
	require.NoError(t, err)
	_, err = svc.SkipTask(ctx, wave.ID, tasks[1].ID, actor)
	require.NoError(t, err)

	updated, err := svc.Transition(ctx, wave.ID, WaveStatusCompleted, actor)
	require.NoError(t, err)
	require.Equal(t, WaveStatusCompleted, updated.Status)
}

func TestCancelReleasedWaveHandsBackPendingReservations(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	wave, tasks := releasedWave(t, svc, repo)

	// One task picked; its stock is gone for good.
	_, err := svc.PickTask(ctx, wave.ID, tasks[0].ID, actor)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, wave.ID, WaveStatusCancelled, actor)
	require.NoError(t, err)

	require.InDelta(t, 6, repo.stock.Balance(1, 10).OnHand, 1e-9)
	pending := repo.stock.Balance(2, 11)
	require.InDelta(t, 5, pending.OnHand, 1e-9)
	require.InDelta(t, 0, pending.Reserved, 1e-9)
}

func TestPickOnDraftWaveIsInvalid(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	seedBalance(t, repo, 1, 10, 10)

	wave, tasks, err := svc.Create(ctx, CreateInput{Tasks: []TaskInput{{ProductID: 1, BinID: 10, Qty: 4}}}, actor)
	require.NoError(t, err)

	_, err = svc.PickTask(ctx, wave.ID, tasks[0].ID, actor)
	var invalid *shared.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "draft", invalid.From)
}
