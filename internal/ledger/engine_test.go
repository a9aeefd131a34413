package ledger

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/IamNotATuringMachine/DirectStock-sub002/internal/shared"
)

func receipt(product, bin int64, qty float64) MovementInput {
	return MovementInput{Type: MovementGoodsReceipt, ProductID: product, ToBinID: bin, Qty: qty, ReferenceType: "test", ReferenceNumber: "T-1"}
}

func issue(product, bin int64, qty float64) MovementInput {
	return MovementInput{Type: MovementGoodsIssue, ProductID: product, FromBinID: bin, Qty: qty, ReferenceType: "test", ReferenceNumber: "T-2"}
}

func transfer(product, from, to int64, qty float64) MovementInput {
	return MovementInput{Type: MovementTransfer, ProductID: product, FromBinID: from, ToBinID: to, Qty: qty, ReferenceType: "test", ReferenceNumber: "T-3"}
}

// signedSum replays the movement history for a product/bin pair.
func signedSum(store *MemoryStore, product, bin int64) float64 {
	var total float64
	for _, m := range store.Movements() {
		if m.ProductID != product {
			continue
		}
		if m.ToBinID == bin {
			total += m.Qty
		}
		if m.FromBinID == bin {
			total -= m.Qty
		}
	}
	return total
}

func TestReceiptCreatesBalanceLazily(t *testing.T) {
	store := NewMemoryStore()
	var engine Engine
	ctx := context.Background()

	result, err := engine.Apply(ctx, store, receipt(1, 10, 5))
	require.NoError(t, err)
	require.Len(t, result.Movements, 1)
	require.Equal(t, MovementGoodsReceipt, result.Movements[0].Type)
	require.InDelta(t, 5, store.Balance(1, 10).OnHand, 1e-9)
}

func TestIssueChecksAvailableNotOnHand(t *testing.T) {
	store := NewMemoryStore()
	var engine Engine
	ctx := context.Background()

	_, err := engine.Apply(ctx, store, receipt(1, 10, 10))
	require.NoError(t, err)
	require.NoError(t, engine.Reserve(ctx, store, 1, 10, 7))

	// 10 on hand but only 3 available: reserved stock cannot be issued again.
	_, err = engine.Apply(ctx, store, issue(1, 10, 5))
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.InDelta(t, 10, store.Balance(1, 10).OnHand, 1e-9)

	_, err = engine.Apply(ctx, store, issue(1, 10, 3))
	require.NoError(t, err)
	require.InDelta(t, 7, store.Balance(1, 10).OnHand, 1e-9)
}

func TestReservationBound(t *testing.T) {
	store := NewMemoryStore()
	var engine Engine
	ctx := context.Background()

	_, err := engine.Apply(ctx, store, receipt(1, 10, 4))
	require.NoError(t, err)

	require.ErrorIs(t, engine.Reserve(ctx, store, 1, 10, 5), shared.ErrInsufficientStock)
	require.InDelta(t, 0, store.Balance(1, 10).Reserved, 1e-9)

	require.NoError(t, engine.Reserve(ctx, store, 1, 10, 4))
	require.InDelta(t, 4, store.Balance(1, 10).Reserved, 1e-9)

	require.ErrorIs(t, engine.Release(ctx, store, 1, 10, 5), ErrReservationBound)
	require.NoError(t, engine.Release(ctx, store, 1, 10, 4))
	require.InDelta(t, 0, store.Balance(1, 10).Reserved, 1e-9)
}

func TestIssueReservedConsumesBoth(t *testing.T) {
	store := NewMemoryStore()
	var engine Engine
	ctx := context.Background()

	_, err := engine.Apply(ctx, store, receipt(1, 10, 10))
	require.NoError(t, err)
	require.NoError(t, engine.Reserve(ctx, store, 1, 10, 6))

	_, err = engine.IssueReserved(ctx, store, issue(1, 10, 6))
	require.NoError(t, err)
	balance := store.Balance(1, 10)
	require.InDelta(t, 4, balance.OnHand, 1e-9)
	require.InDelta(t, 0, balance.Reserved, 1e-9)
}

func TestTransferPostsMatchedPair(t *testing.T) {
	store := NewMemoryStore()
	var engine Engine
	ctx := context.Background()

	_, err := engine.Apply(ctx, store, receipt(1, 1, 10))
	require.NoError(t, err)

	result, err := engine.Apply(ctx, store, transfer(1, 1, 2, 4))
	require.NoError(t, err)
	require.Len(t, result.Movements, 2)
	require.InDelta(t, 6, store.Balance(1, 1).OnHand, 1e-9)
	require.InDelta(t, 4, store.Balance(1, 2).OnHand, 1e-9)
}

func TestTransferAtomicity(t *testing.T) {
	base := NewMemoryStore()
	var engine Engine
	ctx := context.Background()

	_, err := engine.Apply(ctx, base, receipt(1, 1, 10))
	require.NoError(t, err)

	// Run the transfer against a failing store inside a cloned "transaction";
	// on failure nothing merges back.
	clone := base.Clone()
	failing := &failingStore{TxStore: clone, failOnBin: 2}
	_, err = engine.Apply(ctx, failing, transfer(1, 1, 2, 4))
	require.Error(t, err)

	require.InDelta(t, 10, base.Balance(1, 1).OnHand, 1e-9)
	require.InDelta(t, 0, base.Balance(1, 2).OnHand, 1e-9)
	require.Len(t, base.Movements(), 1)
}

type failingStore struct {
	TxStore
	failOnBin int64
}

func (f *failingStore) UpsertBalance(ctx context.Context, balance Balance) error {
	if balance.BinID == f.failOnBin {
		return errors.New("boom")
	}
	return f.TxStore.UpsertBalance(ctx, balance)
}

func TestFEFOConsumesLowestExpiryFirst(t *testing.T) {
	store := NewMemoryStore()
	var engine Engine
	ctx := context.Background()

	soon := time.Now().AddDate(0, 0, 7)
	later := time.Now().AddDate(0, 1, 0)

	in := receipt(1, 10, 5)
	in.BatchNumber = "B-LATER"
	in.ExpiryDate = &later
	_, err := engine.Apply(ctx, store, in)
	require.NoError(t, err)

	in = receipt(1, 10, 5)
	in.BatchNumber = "B-SOON"
	in.ExpiryDate = &soon
	_, err = engine.Apply(ctx, store, in)
	require.NoError(t, err)

	consumed, err := engine.ConsumeFEFO(ctx, store, 1, 10, 7)
	require.NoError(t, err)
	require.Len(t, consumed, 2)
	require.Equal(t, "B-SOON", consumed[0].BatchNumber)
	require.InDelta(t, 5, consumed[0].Qty, 1e-9)
	require.Equal(t, "B-LATER", consumed[1].BatchNumber)
	require.InDelta(t, 2, consumed[1].Qty, 1e-9)

	_, err = engine.ConsumeFEFO(ctx, store, 1, 10, 10)
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

// TestConservation applies a random movement sequence and checks after
// every step that the stored balance equals the signed movement sum.
func TestConservation(t *testing.T) {
	store := NewMemoryStore()
	var engine Engine
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	bins := []int64{1, 2, 3}
	const product = int64(7)

	for i := 0; i < 300; i++ {
		bin := bins[rng.Intn(len(bins))]
		other := bins[(rng.Intn(len(bins)-1)+int(bin))%len(bins)]
		if other == bin {
			other = bins[(int(bin))%len(bins)]
		}
		qty := float64(rng.Intn(9) + 1)

		var input MovementInput
		switch rng.Intn(4) {
		case 0:
			input = receipt(product, bin, qty)
		case 1:
			input = issue(product, bin, qty)
		case 2:
			input = transfer(product, bin, other, qty)
		default:
			input = MovementInput{Type: MovementAdjustment, ProductID: product, Qty: qty - 5, ReferenceType: "test", ReferenceNumber: "T-4"}
			if qty-5 >= 0 {
				input.ToBinID = bin
			} else {
				input.FromBinID = bin
			}
			if qty == 5 {
				continue
			}
		}

		_, err := engine.Apply(ctx, store, input)
		if err != nil {
			// Insufficient stock or same-bin transfers are legal failures;
			// they must leave state untouched, which the invariant below
			// verifies.
			require.True(t,
				errors.Is(err, shared.ErrInsufficientStock) || errors.Is(err, ErrSameBin),
				"unexpected error: %v", err)
		}

		for _, b := range bins {
			stored := store.Balance(product, b).OnHand
			replayed := signedSum(store, product, b)
			require.InDelta(t, replayed, stored, 1e-9,
				"bin %d diverged at step %d: stored=%f replayed=%f", b, i, stored, replayed)
			require.GreaterOrEqual(t, stored, -1e-9)
		}
	}
	require.False(t, math.IsNaN(signedSum(store, product, 1)))
}
