package transfers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

type fakeRepo struct {
	transfers map[int64]StockTransfer
	tItems    map[int64]TransferItem
	iwts      map[int64]InterWarehouseTransfer
	iwtItems  map[int64]IWTItem
	stock     *ledger.MemoryStore
	nextID    int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		transfers: make(map[int64]StockTransfer),
		tItems:    make(map[int64]TransferItem),
		iwts:      make(map[int64]InterWarehouseTransfer),
		iwtItems:  make(map[int64]IWTItem),
		stock:     ledger.NewMemoryStore(),
	}
}

func (f *fakeRepo) clone() *fakeRepo {
	c := newFakeRepo()
	for k, v := range f.transfers {
		c.transfers[k] = v
	}
	for k, v := range f.tItems {
		c.tItems[k] = v
	}
	for k, v := range f.iwts {
		c.iwts[k] = v
	}
	for k, v := range f.iwtItems {
		c.iwtItems[k] = v
	}
	c.stock = f.stock.Clone()
	c.nextID = f.nextID
	return c
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	c := f.clone()
	if err := fn(ctx, &fakeTx{repo: c}); err != nil {
		return err
	}
	f.transfers = c.transfers
	f.tItems = c.tItems
	f.iwts = c.iwts
	f.iwtItems = c.iwtItems
	f.stock.Replace(c.stock)
	f.nextID = c.nextID
	return nil
}

func (f *fakeRepo) GetTransfer(_ context.Context, id int64) (StockTransfer, error) {
	if transfer, ok := f.transfers[id]; ok {
		return transfer, nil
	}
	return StockTransfer{}, shared.ErrNotFound
}

func (f *fakeRepo) ListTransferItems(_ context.Context, transferID int64) ([]TransferItem, error) {
	var items []TransferItem
	for id := int64(1); id <= f.nextID; id++ {
		if item, ok := f.tItems[id]; ok && item.TransferID == transferID {
			items = append(items, item)
		}
	}
	return items, nil
}

func (f *fakeRepo) GetIWT(_ context.Context, id int64) (InterWarehouseTransfer, error) {
	if transfer, ok := f.iwts[id]; ok {
		return transfer, nil
	}
	return InterWarehouseTransfer{}, shared.ErrNotFound
}

func (f *fakeRepo) ListIWTItems(_ context.Context, transferID int64) ([]IWTItem, error) {
	var items []IWTItem
	for id := int64(1); id <= f.nextID; id++ {
		if item, ok := f.iwtItems[id]; ok && item.TransferID == transferID {
			items = append(items, item)
		}
	}
	return items, nil
}

type fakeTx struct {
	repo *fakeRepo
}

func (t *fakeTx) GetTransferForUpdate(ctx context.Context, id int64) (StockTransfer, error) {
	return t.repo.GetTransfer(ctx, id)
}

func (t *fakeTx) UpdateTransferStatus(_ context.Context, id int64, status TransferStatus) error {
	transfer := t.repo.transfers[id]
	transfer.Status = status
	t.repo.transfers[id] = transfer
	return nil
}

func (t *fakeTx) CreateTransfer(_ context.Context, transfer StockTransfer) (int64, error) {
	t.repo.nextID++
	transfer.ID = t.repo.nextID
	transfer.CreatedAt = time.Now()
	t.repo.transfers[transfer.ID] = transfer
	return transfer.ID, nil
}

func (t *fakeTx) InsertTransferItem(_ context.Context, item TransferItem) (int64, error) {
	t.repo.nextID++
	item.ID = t.repo.nextID
	t.repo.tItems[item.ID] = item
	return item.ID, nil
}

func (t *fakeTx) ListTransferItems(ctx context.Context, transferID int64) ([]TransferItem, error) {
	return t.repo.ListTransferItems(ctx, transferID)
}

func (t *fakeTx) GetIWTForUpdate(ctx context.Context, id int64) (InterWarehouseTransfer, error) {
	return t.repo.GetIWT(ctx, id)
}

func (t *fakeTx) UpdateIWTStatus(_ context.Context, id int64, status IWTStatus) error {
	transfer := t.repo.iwts[id]
	transfer.Status = status
	t.repo.iwts[id] = transfer
	return nil
}

func (t *fakeTx) CreateIWT(_ context.Context, transfer InterWarehouseTransfer) (int64, error) {
	t.repo.nextID++
	transfer.ID = t.repo.nextID
	transfer.CreatedAt = time.Now()
	t.repo.iwts[transfer.ID] = transfer
	return transfer.ID, nil
}

func (t *fakeTx) InsertIWTItem(_ context.Context, item IWTItem) (int64, error) {
	t.repo.nextID++
	item.ID = t.repo.nextID
	t.repo.iwtItems[item.ID] = item
	return item.ID, nil
}

func (t *fakeTx) ListIWTItems(ctx context.Context, transferID int64) ([]IWTItem, error) {
	return t.repo.ListIWTItems(ctx, transferID)
}

func (t *fakeTx) Ledger() ledger.TxStore {
	return t.repo.stock
}

var actor = shared.Actor{UserID: 3, Role: "warehouse"}

func seedBalance(t *testing.T, repo *fakeRepo, productID, binID int64, onHand float64) {
	t.Helper()
	err := repo.stock.UpsertBalance(context.Background(), ledger.Balance{ProductID: productID, BinID: binID, OnHand: onHand})
	require.NoError(t, err)
}

func TestTransferCompletionMovesBothSides(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	seedBalance(t, repo, 1, 10, 10)

	transfer, _, err := svc.CreateTransfer(ctx, CreateTransferInput{
		Items: []ItemInput{{ProductID: 1, FromBinID: 10, ToBinID: 20, Qty: 4}},
	}, actor)
	require.NoError(t, err)

	updated, err := svc.TransitionTransfer(ctx, transfer.ID, TransferStatusCompleted, actor)
	require.NoError(t, err)
	require.Equal(t, TransferStatusCompleted, updated.Status)

	require.InDelta(t, 6, repo.stock.Balance(1, 10).OnHand, 1e-9)
	require.InDelta(t, 4, repo.stock.Balance(1, 20).OnHand, 1e-9)
	require.Len(t, repo.stock.Movements(), 2)
}

func TestTransferCompletionAbortsWholeBatch(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	seedBalance(t, repo, 1, 10, 10)
	seedBalance(t, repo, 2, 10, 1)

	transfer, _, err := svc.CreateTransfer(ctx, CreateTransferInput{
		Items: []ItemInput{
			{ProductID: 1, FromBinID: 10, ToBinID: 20, Qty: 4},
			{ProductID: 2, FromBinID: 10, ToBinID: 20, Qty: 5},
		},
	}, actor)
	require.NoError(t, err)

	_, err = svc.TransitionTransfer(ctx, transfer.ID, TransferStatusCompleted, actor)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.InDelta(t, 10, repo.stock.Balance(1, 10).OnHand, 1e-9)
	require.InDelta(t, 0, repo.stock.Balance(1, 20).OnHand, 1e-9)
	require.Empty(t, repo.stock.Movements())
	require.Equal(t, TransferStatusDraft, repo.transfers[transfer.ID].Status)
}

func TestTransferRejectsSameBin(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)

	_, _, err := svc.CreateTransfer(context.Background(), CreateTransferInput{
		Items: []ItemInput{{ProductID: 1, FromBinID: 10, ToBinID: 10, Qty: 4}},
	}, actor)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func dispatchIWT(t *testing.T, svc *Service, repo *fakeRepo) InterWarehouseTransfer {
	t.Helper()
	ctx := context.Background()
	seedBalance(t, repo, 1, 10, 10)
	transfer, _, err := svc.CreateIWT(ctx, CreateIWTInput{
		FromWarehouseID: 1,
		ToWarehouseID:   2,
		Items:           []ItemInput{{ProductID: 1, FromBinID: 10, ToBinID: 20, Qty: 6}},
	}, actor)
	require.NoError(t, err)
	_, err = svc.TransitionIWT(ctx, transfer.ID, IWTStatusInTransit, actor)
	require.NoError(t, err)
	return transfer
}

func TestIWTDispatchReservesAtSource(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	dispatchIWT(t, svc, repo)

	balance := repo.stock.Balance(1, 10)
	require.InDelta(t, 10, balance.OnHand, 1e-9)
	require.InDelta(t, 6, balance.Reserved, 1e-9)
	require.Empty(t, repo.stock.Movements(), "dispatch must not move stock")
}

func TestIWTDispatchFailsOnShortStock(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	seedBalance(t, repo, 1, 10, 4)

	transfer, _, err := svc.CreateIWT(ctx, CreateIWTInput{
		FromWarehouseID: 1,
		ToWarehouseID:   2,
		Items:           []ItemInput{{ProductID: 1, FromBinID: 10, ToBinID: 20, Qty: 6}},
	}, actor)
	require.NoError(t, err)
	_, err = svc.TransitionIWT(ctx, transfer.ID, IWTStatusInTransit, actor)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, IWTStatusDraft, repo.iwts[transfer.ID].Status)
	require.InDelta(t, 0, repo.stock.Balance(1, 10).Reserved, 1e-9)
}

func TestIWTCompletionConvertsReservationIntoPair(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	transfer := dispatchIWT(t, svc, repo)

	updated, err := svc.TransitionIWT(ctx, transfer.ID, IWTStatusCompleted, actor)
	require.NoError(t, err)
	require.Equal(t, IWTStatusCompleted, updated.Status)

	from := repo.stock.Balance(1, 10)
	require.InDelta(t, 4, from.OnHand, 1e-9)
	require.InDelta(t, 0, from.Reserved, 1e-9)
	require.InDelta(t, 6, repo.stock.Balance(1, 20).OnHand, 1e-9)
	require.Len(t, repo.stock.Movements(), 2)
}

func TestIWTCancelReleasesReservation(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	transfer := dispatchIWT(t, svc, repo)

	_, err := svc.TransitionIWT(ctx, transfer.ID, IWTStatusCancelled, actor)
	require.NoError(t, err)

	balance := repo.stock.Balance(1, 10)
	require.InDelta(t, 10, balance.OnHand, 1e-9)
	require.InDelta(t, 0, balance.Reserved, 1e-9)
	require.Empty(t, repo.stock.Movements())

	// Cancelled is terminal.
	_, err = svc.TransitionIWT(ctx, transfer.ID, IWTStatusCompleted, actor)
	var invalid *shared.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestIWTSkippingTransitIsInvalid(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()
	seedBalance(t, repo, 1, 10, 10)

	transfer, _, err := svc.CreateIWT(ctx, CreateIWTInput{
		FromWarehouseID: 1,
		ToWarehouseID:   2,
		Items:           []ItemInput{{ProductID: 1, FromBinID: 10, ToBinID: 20, Qty: 6}},
	}, actor)
	require.NoError(t, err)

	_, err = svc.TransitionIWT(ctx, transfer.ID, IWTStatusCompleted, actor)
	var invalid *shared.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "draft", invalid.From)
	require.Equal(t, "completed", invalid.To)
}
