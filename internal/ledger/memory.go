package ledger

import (
	"context"
	"sort"
)

// MemoryStore is an in-memory TxStore used by tests and local tooling.
// It mirrors the PostgreSQL store's semantics without locking.
type MemoryStore struct {
	balances  map[[2]int64]Balance
	batches   map[[2]int64]map[string]Batch
	movements []Movement
	nextID    int64
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[[2]int64]Balance),
		batches:  make(map[[2]int64]map[string]Batch),
	}
}

func (m *MemoryStore) GetBalanceForUpdate(_ context.Context, productID, binID int64) (Balance, error) {
	if b, ok := m.balances[[2]int64{productID, binID}]; ok {
		return b, nil
	}
	return Balance{ProductID: productID, BinID: binID}, ErrBalanceNotFound
}

func (m *MemoryStore) UpsertBalance(_ context.Context, balance Balance) error {
	m.balances[[2]int64{balance.ProductID, balance.BinID}] = balance
	return nil
}

func (m *MemoryStore) InsertMovement(_ context.Context, movement Movement) (int64, error) {
	m.nextID++
	movement.ID = m.nextID
	m.movements = append(m.movements, movement)
	return movement.ID, nil
}

func (m *MemoryStore) GetBatchForUpdate(_ context.Context, productID, binID int64, batchNumber string) (Batch, error) {
	if byNumber, ok := m.batches[[2]int64{productID, binID}]; ok {
		if b, ok := byNumber[batchNumber]; ok {
			return b, nil
		}
	}
	return Batch{ProductID: productID, BinID: binID, BatchNumber: batchNumber}, ErrBalanceNotFound
}

func (m *MemoryStore) UpsertBatch(_ context.Context, batch Batch) error {
	key := [2]int64{batch.ProductID, batch.BinID}
	if m.batches[key] == nil {
		m.batches[key] = make(map[string]Batch)
	}
	m.batches[key][batch.BatchNumber] = batch
	return nil
}

func (m *MemoryStore) ListBatchesFEFO(_ context.Context, productID, binID int64) ([]Batch, error) {
	var batches []Batch
	for _, b := range m.batches[[2]int64{productID, binID}] {
		if b.Qty > 0 {
			batches = append(batches, b)
		}
	}
	sort.Slice(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
			return a.BatchNumber < b.BatchNumber
		case a.ExpiryDate == nil:
			return false
		case b.ExpiryDate == nil:
			return true
		default:
			return a.ExpiryDate.Before(*b.ExpiryDate)
		}
	})
	return batches, nil
}

// Clone deep-copies the store. Test fakes run mutations against a clone
// and merge on success to emulate transaction rollback.
func (m *MemoryStore) Clone() *MemoryStore {
	clone := NewMemoryStore()
	for k, v := range m.balances {
		clone.balances[k] = v
	}
	for k, byNumber := range m.batches {
		clone.batches[k] = make(map[string]Batch, len(byNumber))
		for n, b := range byNumber {
			clone.batches[k][n] = b
		}
	}
	clone.movements = append(clone.movements, m.movements...)
	clone.nextID = m.nextID
	return clone
}

// Replace overwrites the store contents with another store's state.
func (m *MemoryStore) Replace(other *MemoryStore) {
	m.balances = other.balances
	m.batches = other.batches
	m.movements = other.movements
	m.nextID = other.nextID
}

// Movements returns a copy of the movement history.
func (m *MemoryStore) Movements() []Movement {
	out := make([]Movement, len(m.movements))
	copy(out, m.movements)
	return out
}

// Balance returns the stored balance for a product/bin pair.
func (m *MemoryStore) Balance(productID, binID int64) Balance {
	return m.balances[[2]int64{productID, binID}]
}
