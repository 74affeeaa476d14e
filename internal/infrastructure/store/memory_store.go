package store

import (
	"context"
	"sync"

	"github.com/example/shop-bot/internal/domain/order"
)

var _ order.Store = (*MemoryOrderStore)(nil)

// MemoryOrderStore is an in-memory order store. Contents are lost on restart.
// All writes, including Update mutators, run under one mutex.
type MemoryOrderStore struct {
	mu     sync.RWMutex
	orders map[string]*order.Order
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders: make(map[string]*order.Order),
	}
}

// Put stores a new order; existing IDs are rejected
func (s *MemoryOrderStore) Put(ctx context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return order.ErrOrderExists
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

// Get returns a copy of the order
func (s *MemoryOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// Update applies fn to a copy and commits it only if fn succeeds
func (s *MemoryOrderStore) Update(ctx context.Context, id string, fn func(*order.Order) error) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[id]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.orders[id] = next
	return next.Clone(), nil
}

func (s *MemoryOrderStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders), nil
}
