package store

import (
	"context"
	"errors"
	"time"

	"github.com/eventlive/streamgate/internal/models"
	"github.com/google/uuid"
)

// Sentinel errors for common error conditions
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrEventNotFound   = errors.New("event not found")
)

// Scope identifies the tenant and application a request operates within.
// Every store read and write is bounded by it.
type Scope struct {
	TenantID uuid.UUID
	AppID    uuid.UUID
}

// SessionStore defines the persistence operations the admission engine needs
// for streaming sessions. Sessions are never physically deleted; terminal
// transitions are status updates.
type SessionStore interface {
	// Create inserts a new session row. The caller assigns SessionID and
	// SessionToken.
	Create(ctx context.Context, session *models.StreamingSession) error

	// GetByToken looks up a session by its bearer token.
	// Returns ErrSessionNotFound if no session has that token.
	GetByToken(ctx context.Context, token string) (*models.StreamingSession, error)

	// ListActiveByOrder returns the active sessions for an order, most
	// recently started first.
	ListActiveByOrder(ctx context.Context, scope Scope, orderID uuid.UUID) ([]*models.StreamingSession, error)

	// CountActiveByOrder returns the number of active sessions for an order.
	CountActiveByOrder(ctx context.Context, scope Scope, orderID uuid.UUID) (int, error)

	// FindActiveByFingerprint returns the most recently started active
	// session on the order whose IP address and user agent both match.
	// Returns ErrSessionNotFound when no session matches.
	FindActiveByFingerprint(ctx context.Context, scope Scope, orderID uuid.UUID, ipAddress, userAgent string) (*models.StreamingSession, error)

	// ExpireStale transitions every active session for the order whose
	// last_activity_at is older than cutoff to expired, stamping ended_at
	// with at. Returns the number of sessions expired.
	ExpireStale(ctx context.Context, scope Scope, orderID uuid.UUID, cutoff time.Time, at time.Time) (int, error)

	// Touch updates last_activity_at for an active session. Returns false
	// when the session was not active at update time, which covers the race
	// where it expired between lookup and update.
	Touch(ctx context.Context, sessionID uuid.UUID, at time.Time) (bool, error)

	// Finish moves an active session to the given terminal status and stamps
	// ended_at. Returns false when the session was already terminal; callers
	// treat that as an idempotent no-op.
	Finish(ctx context.Context, sessionID uuid.UUID, status models.SessionStatus, at time.Time) (bool, error)
}

// OrderStore is the read-only order validity oracle. The billing domain owns
// order writes.
type OrderStore interface {
	// GetForUser returns the order only if it exists in scope and belongs to
	// userID. Returns ErrOrderNotFound otherwise.
	GetForUser(ctx context.Context, scope Scope, userID, orderID uuid.UUID) (*models.Order, error)
}

// EventStore is the read-only view of producer events used for concurrency
// limit resolution.
type EventStore interface {
	// Get returns the event in scope. Returns ErrEventNotFound if absent.
	Get(ctx context.Context, scope Scope, eventID uuid.UUID) (*models.Event, error)
}
