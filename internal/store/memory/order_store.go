package memory

import (
	"context"
	"sync"

	"github.com/eventlive/streamgate/internal/models"
	"github.com/eventlive/streamgate/internal/store"
	"github.com/google/uuid"
)

// OrderStore implements store.OrderStore using in-memory storage.
// Orders are owned by the billing domain; this store only serves reads for
// testing and local development, seeded via Put.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*models.Order
}

// NewOrderStore creates a new in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders: make(map[uuid.UUID]*models.Order),
	}
}

// Put seeds an order. Replaces any existing order with the same ID.
func (s *OrderStore) Put(order *models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *order
	s.orders[order.OrderID] = &clone
}

// GetForUser returns the order only if it exists in scope and belongs to the
// user.
func (s *OrderStore) GetForUser(ctx context.Context, scope store.Scope, userID, orderID uuid.UUID) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.orders[orderID]
	if !exists {
		return nil, store.ErrOrderNotFound
	}
	if order.TenantID != scope.TenantID || order.AppID != scope.AppID || order.UserID != userID {
		return nil, store.ErrOrderNotFound
	}

	clone := *order
	return &clone, nil
}
