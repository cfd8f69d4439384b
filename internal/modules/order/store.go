// README: Order store contract and the in-memory implementation.
package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"kitchenline/internal/types"
)

// Store persists order snapshots. Update is a compare-and-set on Version:
// it must fail with ErrConflict when the stored version differs from expectVersion.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	List(ctx context.Context, f Filter) ([]*Order, error)
	Update(ctx context.Context, o *Order, expectVersion int) error
	Delete(ctx context.Context, id types.ID) error
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Statuses     []Status
	OrderType    Type
	DriverID     types.ID
	CustomerName string
	From         *time.Time
	To           *time.Time
}

func (f Filter) Match(o *Order) bool {
	if len(f.Statuses) > 0 && !contains(f.Statuses, o.Status) {
		return false
	}
	if f.OrderType != "" && o.OrderType != f.OrderType {
		return false
	}
	if f.DriverID != "" && (o.DriverID == nil || *o.DriverID != f.DriverID) {
		return false
	}
	if f.CustomerName != "" && o.CustomerName != f.CustomerName {
		return false
	}
	if f.From != nil && o.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !o.CreatedAt.Before(*f.To) {
		return false
	}
	return true
}

func sortByCreated(list []*Order) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

type MemoryStore struct {
	mu      sync.RWMutex
	orders  map[types.ID]*Order
	numbers map[string]types.ID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:  make(map[types.ID]*Order),
		numbers: make(map[string]types.ID),
	}
}

func (s *MemoryStore) Create(_ context.Context, o *Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return ErrConflict
	}
	if _, ok := s.numbers[o.OrderNumber]; ok {
		return ErrDuplicateNumber
	}
	s.orders[o.ID] = o.Clone()
	s.numbers[o.OrderNumber] = o.ID
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]*Order, error) {
	s.mu.RLock()
	out := make([]*Order, 0, len(s.orders))
	for _, o := range s.orders {
		if f.Match(o) {
			out = append(out, o.Clone())
		}
	}
	s.mu.RUnlock()
	sortByCreated(out)
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, o *Order, expectVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectVersion {
		return ErrConflict
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id types.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.numbers, o.OrderNumber)
	delete(s.orders, id)
	return nil
}
