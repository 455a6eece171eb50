package order

import (
	"context"
	"sync"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs the tests and
// local runs without Postgres, and mirrors the CAS semantics of the
// Postgres implementation exactly.
type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]Order
	archived map[string]ArchivedOrder
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]Order),
		archived: make(map[string]ArchivedOrder),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Get(ctx context.Context, id string) (*Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := copyOrder(o)
	return &cp, nil
}

func (m *MemoryStore) Put(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.orders[o.ID] = copyOrder(*o)
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, o *Order, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	m.orders[o.ID] = copyOrder(*o)
	return nil
}

func (m *MemoryStore) Settle(ctx context.Context, rec *ArchivedOrder, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.orders[rec.OrderID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	delete(m.orders, rec.OrderID)

	cp := *rec
	cp.Items = append([]OrderItem(nil), rec.Items...)
	m.archived[rec.ID] = cp
	return nil
}

func (m *MemoryStore) Query(ctx context.Context, f Filter) ([]Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Order, 0)
	for _, o := range m.orders {
		if f.CustomerID != "" && o.CustomerID != f.CustomerID {
			continue
		}
		if len(f.Statuses) > 0 && !statusIn(o.Status, f.Statuses) {
			continue
		}
		out = append(out, copyOrder(o))
	}

	// Oldest first, matching the Postgres ordering.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.Before(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func (m *MemoryStore) GetArchived(ctx context.Context, id string) (*ArchivedOrder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if rec, ok := m.archived[id]; ok {
		cp := rec
		cp.Items = append([]OrderItem(nil), rec.Items...)
		return &cp, nil
	}
	for _, rec := range m.archived {
		if rec.OrderID == id {
			cp := rec
			cp.Items = append([]OrderItem(nil), rec.Items...)
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func statusIn(s Status, set []Status) bool {
	for _, st := range set {
		if s == st {
			return true
		}
	}
	return false
}

func copyOrder(o Order) Order {
	cp := o
	cp.Items = append([]OrderItem(nil), o.Items...)
	return cp
}
