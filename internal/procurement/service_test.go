package procurement

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/approval"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/ledger"
	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

// fakeRepo keeps documents and a ledger MemoryStore in memory. WithTx runs
// fn against a deep copy and merges only on success, mirroring rollback.
type fakeRepo struct {
	pos     map[int64]PurchaseOrder
	poItems map[int64]POItem
	grs     map[int64]GoodsReceipt
	grItems map[int64]GRItem
	stock   *ledger.MemoryStore
	nextID  int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		pos:     make(map[int64]PurchaseOrder),
		poItems: make(map[int64]POItem),
		grs:     make(map[int64]GoodsReceipt),
		grItems: make(map[int64]GRItem),
		stock:   ledger.NewMemoryStore(),
	}
}

func (f *fakeRepo) clone() *fakeRepo {
	c := newFakeRepo()
	for k, v := range f.pos {
		c.pos[k] = v
	}
	for k, v := range f.poItems {
		c.poItems[k] = v
	}
	for k, v := range f.grs {
		c.grs[k] = v
	}
	for k, v := range f.grItems {
		c.grItems[k] = v
	}
	c.stock = f.stock.Clone()
	c.nextID = f.nextID
	return c
}

func (f *fakeRepo) merge(c *fakeRepo) {
	f.pos = c.pos
	f.poItems = c.poItems
	f.grs = c.grs
	f.grItems = c.grItems
	f.stock.Replace(c.stock)
	f.nextID = c.nextID
}

func (f *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	c := f.clone()
	if err := fn(ctx, &fakeTx{repo: c}); err != nil {
		return err
	}
	f.merge(c)
	return nil
}

func (f *fakeRepo) GetPO(_ context.Context, id int64) (PurchaseOrder, error) {
	if po, ok := f.pos[id]; ok {
		return po, nil
	}
	return PurchaseOrder{}, shared.ErrNotFound
}

func (f *fakeRepo) ListPOItems(_ context.Context, poID int64) ([]POItem, error) {
	return f.itemsOf(poID), nil
}

func (f *fakeRepo) itemsOf(poID int64) []POItem {
	var items []POItem
	for id := int64(1); id <= f.nextID; id++ {
		if item, ok := f.poItems[id]; ok && item.POID == poID {
			items = append(items, item)
		}
	}
	return items
}

func (f *fakeRepo) GetGR(_ context.Context, id int64) (GoodsReceipt, error) {
	if gr, ok := f.grs[id]; ok {
		return gr, nil
	}
	return GoodsReceipt{}, shared.ErrNotFound
}

func (f *fakeRepo) ListGRItems(_ context.Context, receiptID int64) ([]GRItem, error) {
	var items []GRItem
	for id := int64(1); id <= f.nextID; id++ {
		if item, ok := f.grItems[id]; ok && item.ReceiptID == receiptID {
			items = append(items, item)
		}
	}
	return items, nil
}

type fakeTx struct {
	repo *fakeRepo
}

func (t *fakeTx) GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error) {
	return t.repo.GetPO(ctx, id)
}

func (t *fakeTx) UpdatePOStatus(_ context.Context, id int64, status POStatus, orderedAt *time.Time) error {
	po := t.repo.pos[id]
	po.Status = status
	if orderedAt != nil {
		po.OrderedAt = orderedAt
	}
	t.repo.pos[id] = po
	return nil
}

func (t *fakeTx) UpdatePOConfirmation(_ context.Context, id int64, state ConfirmationState, expectedDate *time.Time) error {
	po := t.repo.pos[id]
	po.ConfirmationState = state
	if expectedDate != nil {
		po.ExpectedDate = expectedDate
	}
	t.repo.pos[id] = po
	return nil
}

func (t *fakeTx) CreatePO(_ context.Context, po PurchaseOrder) (int64, error) {
	t.repo.nextID++
	po.ID = t.repo.nextID
	po.CreatedAt = time.Now()
	t.repo.pos[po.ID] = po
	return po.ID, nil
}

func (t *fakeTx) InsertPOItem(_ context.Context, item POItem) (int64, error) {
	t.repo.nextID++
	item.ID = t.repo.nextID
	t.repo.poItems[item.ID] = item
	return item.ID, nil
}

func (t *fakeTx) UpdatePOItemReceived(_ context.Context, itemID int64, receivedQty float64) error {
	item := t.repo.poItems[itemID]
	item.ReceivedQty = receivedQty
	t.repo.poItems[itemID] = item
	return nil
}

func (t *fakeTx) ListPOItems(ctx context.Context, poID int64) ([]POItem, error) {
	return t.repo.ListPOItems(ctx, poID)
}

func (t *fakeTx) GetGRForUpdate(ctx context.Context, id int64) (GoodsReceipt, error) {
	return t.repo.GetGR(ctx, id)
}

func (t *fakeTx) UpdateGRStatus(_ context.Context, id int64, status GRStatus) error {
	gr := t.repo.grs[id]
	gr.Status = status
	t.repo.grs[id] = gr
	return nil
}

func (t *fakeTx) CreateGR(_ context.Context, gr GoodsReceipt) (int64, error) {
	t.repo.nextID++
	gr.ID = t.repo.nextID
	gr.CreatedAt = time.Now()
	t.repo.grs[gr.ID] = gr
	return gr.ID, nil
}

func (t *fakeTx) InsertGRItem(_ context.Context, item GRItem) (int64, error) {
	t.repo.nextID++
	item.ID = t.repo.nextID
	t.repo.grItems[item.ID] = item
	return item.ID, nil
}

func (t *fakeTx) ListGRItems(ctx context.Context, receiptID int64) ([]GRItem, error) {
	return t.repo.ListGRItems(ctx, receiptID)
}

func (t *fakeTx) Ledger() ledger.TxStore {
	return t.repo.stock
}

// scriptedGate returns canned decisions in sequence.
type scriptedGate struct {
	decisions []approval.Decision
	calls     int
}

func (g *scriptedGate) Evaluate(_ context.Context, _ string, _ int64, _ decimal.Decimal, _ shared.Actor) (approval.Decision, error) {
	if g.calls >= len(g.decisions) {
		return approval.Decision{Clear: true}, nil
	}
	d := g.decisions[g.calls]
	g.calls++
	return d, nil
}

var actor = shared.Actor{UserID: 5, Role: "buyer"}

func price(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func newPOService(t *testing.T, gate ApprovalPort) (*Service, *fakeRepo) {
	t.Helper()
	repo := newFakeRepo()
	return NewService(repo, gate, slog.Default(), nil), repo
}

func createOrder(t *testing.T, svc *Service, items ...POItemInput) PurchaseOrder {
	t.Helper()
	po, _, err := svc.CreatePurchaseOrder(context.Background(), CreatePOInput{SupplierID: 1, Items: items}, actor)
	require.NoError(t, err)
	return po
}

func TestPOTransitionTable(t *testing.T) {
	svc, _ := newPOService(t, nil)
	ctx := context.Background()
	po := createOrder(t, svc, POItemInput{ProductID: 1, OrderedQty: 10, UnitPrice: price("2.50")})

	// draft cannot jump straight to ordered.
	_, err := svc.Transition(ctx, po.ID, POStatusOrdered, actor)
	var invalid *shared.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "draft", invalid.From)
	require.Equal(t, "ordered", invalid.To)

	_, err = svc.Transition(ctx, po.ID, POStatusApproved, actor)
	require.NoError(t, err)
	updated, err := svc.Transition(ctx, po.ID, POStatusOrdered, actor)
	require.NoError(t, err)
	require.Equal(t, POStatusOrdered, updated.Status)
	require.NotNil(t, updated.OrderedAt)

	_, err = svc.Transition(ctx, po.ID, POStatusCancelled, actor)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, po.ID, POStatusCompleted, actor)
	require.ErrorAs(t, err, &invalid, "cancelled is terminal")
}

func TestPOCompletionGuard(t *testing.T) {
	svc, repo := newPOService(t, nil)
	ctx := context.Background()
	po := createOrder(t, svc, POItemInput{ProductID: 1, OrderedQty: 10, UnitPrice: price("1")})
	_, err := svc.Transition(ctx, po.ID, POStatusApproved, actor)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, po.ID, POStatusOrdered, actor)
	require.NoError(t, err)

	items := repo.itemsOf(po.ID)
	require.Len(t, items, 1)
	require.NoError(t, svc.SetItemReceived(ctx, po.ID, items[0].ID, 4))

	_, err = svc.Transition(ctx, po.ID, POStatusCompleted, actor)
	require.ErrorIs(t, err, shared.ErrIncompleteOrder)

	require.NoError(t, svc.SetItemReceived(ctx, po.ID, items[0].ID, 10))
	updated, err := svc.Transition(ctx, po.ID, POStatusCompleted, actor)
	require.NoError(t, err)
	require.Equal(t, POStatusCompleted, updated.Status)
}

func TestPOCompletionGuardNeedsItems(t *testing.T) {
	svc, _ := newPOService(t, nil)
	ctx := context.Background()
	po := createOrder(t, svc)
	_, err := svc.Transition(ctx, po.ID, POStatusApproved, actor)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, po.ID, POStatusOrdered, actor)
	require.NoError(t, err)

	_, err = svc.Transition(ctx, po.ID, POStatusCompleted, actor)
	require.ErrorIs(t, err, shared.ErrIncompleteOrder)
}

func TestPOApprovalGating(t *testing.T) {
	gate := &scriptedGate{decisions: []approval.Decision{
		{PendingRequestID: 41},
		{PendingRequestID: 41},
		{Clear: true},
	}}
	svc, repo := newPOService(t, gate)
	ctx := context.Background()
	po := createOrder(t, svc, POItemInput{ProductID: 1, OrderedQty: 10, UnitPrice: price("15")})
	_, err := svc.Transition(ctx, po.ID, POStatusApproved, actor)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = svc.Transition(ctx, po.ID, POStatusOrdered, actor)
		var required *shared.ApprovalRequiredError
		require.ErrorAs(t, err, &required)
		require.Equal(t, int64(41), required.RequestID)
		require.Equal(t, POStatusApproved, repo.pos[po.ID].Status, "gated transition must not change status")
	}

	// Retry after approval succeeds and stamps ordered_at.
	updated, err := svc.Transition(ctx, po.ID, POStatusOrdered, actor)
	require.NoError(t, err)
	require.Equal(t, POStatusOrdered, updated.Status)
	require.NotNil(t, updated.OrderedAt)
}

func orderedConfirmedPO(t *testing.T, svc *Service, items ...POItemInput) PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	po := createOrder(t, svc, items...)
	_, err := svc.Transition(ctx, po.ID, POStatusApproved, actor)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, po.ID, POStatusOrdered, actor)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, po.ID, ConfirmationUndetermined, nil)
	require.NoError(t, err)
	return po
}

func TestGRReceivabilityGuard(t *testing.T) {
	svc, _ := newPOService(t, nil)
	ctx := context.Background()
	po := createOrder(t, svc, POItemInput{ProductID: 1, OrderedQty: 10, UnitPrice: price("1")})
	_, err := svc.Transition(ctx, po.ID, POStatusApproved, actor)
	require.NoError(t, err)
	_, err = svc.Transition(ctx, po.ID, POStatusOrdered, actor)
	require.NoError(t, err)

	input := CreateGRInput{POID: po.ID, Items: []GRItemInput{{ProductID: 1, BinID: 2, Qty: 4}}}

	// Ordered but unconfirmed: not receivable.
	_, _, err = svc.CreateGoodsReceipt(ctx, input, actor)
	require.ErrorIs(t, err, shared.ErrUnreceivableOrder)

	_, err = svc.Confirm(ctx, po.ID, ConfirmationUndetermined, nil)
	require.NoError(t, err)
	gr, items, err := svc.CreateGoodsReceipt(ctx, input, actor)
	require.NoError(t, err)
	require.Equal(t, GRStatusDraft, gr.Status)
	require.Len(t, items, 1)
}

func TestGRCompletionPostsLedgerAndTracksReceipt(t *testing.T) {
	svc, repo := newPOService(t, nil)
	ctx := context.Background()
	po := orderedConfirmedPO(t, svc, POItemInput{ProductID: 1, OrderedQty: 10, UnitPrice: price("3")})

	gr, _, err := svc.CreateGoodsReceipt(ctx, CreateGRInput{
		POID:  po.ID,
		Items: []GRItemInput{{ProductID: 1, BinID: 2, Qty: 4}},
	}, actor)
	require.NoError(t, err)

	updated, err := svc.TransitionGR(ctx, gr.ID, GRStatusCompleted, actor)
	require.NoError(t, err)
	require.Equal(t, GRStatusCompleted, updated.Status)

	require.InDelta(t, 4, repo.stock.Balance(1, 2).OnHand, 1e-9)
	movements := repo.stock.Movements()
	require.Len(t, movements, 1)
	require.Equal(t, ledger.MovementGoodsReceipt, movements[0].Type)
	require.Equal(t, gr.Number, movements[0].ReferenceNumber)

	items := repo.itemsOf(po.ID)
	require.InDelta(t, 4, items[0].ReceivedQty, 1e-9)
	require.Equal(t, POStatusPartiallyReceived, repo.pos[po.ID].Status)

	// Completion is single-shot.
	_, err = svc.TransitionGR(ctx, gr.ID, GRStatusCompleted, actor)
	var invalid *shared.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestGRCompletionWithBatch(t *testing.T) {
	svc, repo := newPOService(t, nil)
	ctx := context.Background()
	expiry := time.Now().AddDate(0, 6, 0)

	gr, _, err := svc.CreateGoodsReceipt(ctx, CreateGRInput{
		Items: []GRItemInput{{ProductID: 1, BinID: 2, Qty: 5, BatchNumber: "LOT-1", ExpiryDate: &expiry}},
	}, actor)
	require.NoError(t, err)
	_, err = svc.TransitionGR(ctx, gr.ID, GRStatusCompleted, actor)
	require.NoError(t, err)

	batches, err := repo.stock.ListBatchesFEFO(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	require.Equal(t, "LOT-1", batches[0].BatchNumber)
	require.InDelta(t, 5, batches[0].Qty, 1e-9)
}

func TestGRCancelDoesNotTouchLedger(t *testing.T) {
	svc, repo := newPOService(t, nil)
	ctx := context.Background()
	gr, _, err := svc.CreateGoodsReceipt(ctx, CreateGRInput{
		Items: []GRItemInput{{ProductID: 1, BinID: 2, Qty: 5}},
	}, actor)
	require.NoError(t, err)

	_, err = svc.TransitionGR(ctx, gr.ID, GRStatusCancelled, actor)
	require.NoError(t, err)
	require.Empty(t, repo.stock.Movements())
}
