package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/soyeahso/tripwatch/internal/domain"
)

// PriceBook holds the most recent price update for each trip. A later Put
// for the same trip id replaces the earlier one.
type PriceBook interface {
	Put(ctx context.Context, u domain.PriceUpdate) error
	Get(ctx context.Context, tripID string) (domain.PriceUpdate, bool, error)
	// List returns every trip's latest update, most recently updated first.
	List(ctx context.Context) ([]domain.PriceUpdate, error)
	Close() error
}

// MemoryPriceBook is a PriceBook kept in process memory.
type MemoryPriceBook struct {
	mu      sync.RWMutex
	updates map[string]domain.PriceUpdate
}

// NewMemoryPriceBook returns an empty in-memory price book.
func NewMemoryPriceBook() *MemoryPriceBook {
	return &MemoryPriceBook{updates: make(map[string]domain.PriceUpdate)}
}

func (m *MemoryPriceBook) Put(_ context.Context, u domain.PriceUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates[u.TripID] = u
	return nil
}

func (m *MemoryPriceBook) Get(_ context.Context, tripID string) (domain.PriceUpdate, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.updates[tripID]
	return u, ok, nil
}

func (m *MemoryPriceBook) List(context.Context) ([]domain.PriceUpdate, error) {
	m.mu.RLock()
	out := make([]domain.PriceUpdate, 0, len(m.updates))
	for _, u := range m.updates {
		out = append(out, u)
	}
	m.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func (m *MemoryPriceBook) Close() error { return nil }

func sortNewestFirst(updates []domain.PriceUpdate) {
	slices.SortFunc(updates, func(a, b domain.PriceUpdate) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.TripID, b.TripID)
	})
}
