// Package cart stores the per-session checkout staging area. Carts live
// outside the repository because they are transient working state, not
// records: a crashed session just expires.
package cart

import (
	"context"
	"slices"
	"sync"
	"time"

	"kopipos/backend/internal/domain"
)

// TTL is how long an untouched cart survives. Matches the login token
// lifetime so a cart never outlives its session.
const TTL = 12 * time.Hour

type Store interface {
	Get(ctx context.Context, sessionID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Clear(ctx context.Context, sessionID string) error
}

// MemoryStore keeps carts in a map. Used when REDIS_ADDR is not configured
// and by tests; entries expire lazily on read.
type MemoryStore struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: make(map[string]domain.Cart)}
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, exists := s.carts[sessionID]
	if !exists || time.Since(cart.UpdatedAt) > TTL {
		delete(s.carts, sessionID)
		return &domain.Cart{SessionID: sessionID}, nil
	}
	copyCart := cart
	copyCart.Lines = slices.Clone(cart.Lines)
	return &copyCart, nil
}

func (s *MemoryStore) Save(_ context.Context, cart *domain.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := *cart
	saved.Lines = slices.Clone(cart.Lines)
	saved.UpdatedAt = time.Now().UTC()
	s.carts[cart.SessionID] = saved
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.carts, sessionID)
	return nil
}
