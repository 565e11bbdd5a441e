package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventlive/streamgate/internal/models"
	"github.com/eventlive/streamgate/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderStore implements store.OrderStore using PostgreSQL. It reads the
// orders table maintained by the billing domain; this service never writes
// it.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore creates a new PostgreSQL-backed order store.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{
		pool: pool,
	}
}

// GetForUser returns the order only if it exists in scope and belongs to the
// user. Ownership failures are indistinguishable from missing orders so the
// response does not leak other users' purchases.
func (s *OrderStore) GetForUser(ctx context.Context, scope store.Scope, userID, orderID uuid.UUID) (*models.Order, error) {
	query := `
		SELECT order_id, tenant_id, app_id, user_id, event_id, ticket_id,
		       status, created_at, updated_at
		FROM orders
		WHERE order_id = $1
		  AND tenant_id = $2 AND app_id = $3
		  AND user_id = $4
	`

	var order models.Order
	err := s.pool.QueryRow(ctx, query, orderID, scope.TenantID, scope.AppID, userID).Scan(
		&order.OrderID,
		&order.TenantID,
		&order.AppID,
		&order.UserID,
		&order.EventID,
		&order.TicketID,
		&order.Status,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", mapPostgresError(err))
	}

	return &order, nil
}
