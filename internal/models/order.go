package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the payment state of an order.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusRefunded  = "refunded"
)

// Order is a read-only view of a purchase, owned by the billing domain.
// The admission engine only checks ownership and completion; it never
// writes orders.
type Order struct {
	OrderID  uuid.UUID // UUIDv7
	TenantID uuid.UUID
	AppID    uuid.UUID
	UserID   uuid.UUID
	EventID  *uuid.UUID
	TicketID uuid.UUID

	Status string // "pending", "completed", "cancelled", "refunded"

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsCompleted returns true if the order has been paid in full.
func (o *Order) IsCompleted() bool {
	return o.Status == OrderStatusCompleted
}
