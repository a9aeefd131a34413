package returns

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

type fakeRepo struct {
	orders map[int64]ReturnOrder
	items  map[int64]ReturnItem
	stock  *ledger.MemoryStore
	nextID int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		orders: make(map[int64]ReturnOrder),
		items:  make(map[int64]ReturnItem),
		stock:  ledger.NewMemoryStore(),
	}
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	c := &fakeRepo{
		orders: make(map[int64]ReturnOrder, len(f.orders)),
		items:  make(map[int64]ReturnItem, len(f.items)),
		stock:  f.stock.Clone(),
		nextID: f.nextID,
	}
	for k, v := range f.orders {
		c.orders[k] = v
	}
	for k, v := range f.items {
		c.items[k] = v
	}
	if err := fn(ctx, &fakeTx{repo: c}); err != nil {
		return err
	}
	f.orders = c.orders
	f.items = c.items
	f.stock.Replace(c.stock)
	f.nextID = c.nextID
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id int64) (ReturnOrder, error) {
	if order, ok := f.orders[id]; ok {
		return order, nil
	}
	return ReturnOrder{}, shared.ErrNotFound
}

func (f *fakeRepo) ListItems(_ context.Context, returnID int64) ([]ReturnItem, error) {
	var items []ReturnItem
	for id := int64(1); id <= f.nextID; id++ {
		if item, ok := f.items[id]; ok && item.ReturnID == returnID {
			items = append(items, item)
		}
	}
	return items, nil
}

type fakeTx struct {
	repo *fakeRepo
}

func (t *fakeTx) GetForUpdate(ctx context.Context, id int64) (ReturnOrder, error) {
	return t.repo.Get(ctx, id)
}

func (t *fakeTx) UpdateStatus(_ context.Context, id int64, status ReturnStatus) error {
	order := t.repo.orders[id]
	order.Status = status
	t.repo.orders[id] = order
	return nil
}

func (t *fakeTx) Create(_ context.Context, order ReturnOrder) (int64, error) {
	t.repo.nextID++
	order.ID = t.repo.nextID
	order.CreatedAt = time.Now()
	t.repo.orders[order.ID] = order
	return order.ID, nil
}

func (t *fakeTx) InsertItem(_ context.Context, item ReturnItem) (int64, error) {
	t.repo.nextID++
	item.ID = t.repo.nextID
	t.repo.items[item.ID] = item
	return item.ID, nil
}

func (t *fakeTx) ListItems(ctx context.Context, returnID int64) ([]ReturnItem, error) {
	return t.repo.ListItems(ctx, returnID)
}

func (t *fakeTx) Ledger() ledger.TxStore {
	return t.repo.stock
}

var actor = shared.Actor{UserID: 9, Role: "warehouse"}

func TestReturnCompletionBooksStockBack(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	order, items, err := svc.Create(ctx, CreateInput{
		Reason: "damaged packaging",
		Items: []ItemInput{
			{ProductID: 1, BinID: 30, Qty: 2},
			{ProductID: 2, BinID: 30, Qty: 1},
		},
	}, actor)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, ReturnStatusDraft, order.Status)

	updated, err := svc.Transition(ctx, order.ID, ReturnStatusCompleted, actor)
	require.NoError(t, err)
	require.Equal(t, ReturnStatusCompleted, updated.Status)

	// Balances are created lazily by the receipt movements.
	require.InDelta(t, 2, repo.stock.Balance(1, 30).OnHand, 1e-9)
	require.InDelta(t, 1, repo.stock.Balance(2, 30).OnHand, 1e-9)
	movements := repo.stock.Movements()
	require.Len(t, movements, 2)
	for _, m := range movements {
		require.Equal(t, ledger.MovementGoodsReceipt, m.Type)
		require.Equal(t, "return_order", m.ReferenceType)
		require.Equal(t, order.Number, m.ReferenceNumber)
	}
}

func TestReturnCancellationPostsNothing(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	order, _, err := svc.Create(ctx, CreateInput{
		Items: []ItemInput{{ProductID: 1, BinID: 30, Qty: 2}},
	}, actor)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, order.ID, ReturnStatusCancelled, actor)
	require.NoError(t, err)
	require.Empty(t, repo.stock.Movements())

	// No second life for a cancelled return.
	_, err = svc.Transition(ctx, order.ID, ReturnStatusCompleted, actor)
	var invalid *shared.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestReturnRequiresItems(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, nil, nil)

	_, _, err := svc.Create(context.Background(), CreateInput{}, actor)
	require.ErrorIs(t, err, shared.ErrValidation)
}
