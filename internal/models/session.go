package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a streaming session.
// Sessions start active and move to exactly one of the terminal states.
type SessionStatus string

const (
	// SessionStatusActive means the session currently occupies a viewer slot.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusEnded means the viewer (or an administrator) closed the session.
	SessionStatusEnded SessionStatus = "ended"
	// SessionStatusExpired means the session was reaped after missing heartbeats.
	SessionStatusExpired SessionStatus = "expired"
)

// StreamingSession represents one browser's claim on a viewing slot for a
// purchased streaming link. The session token is the bearer credential the
// player uses for heartbeat and end calls; it is never reused across sessions.
type StreamingSession struct {
	SessionID    uuid.UUID // UUIDv7, store-assigned
	SessionToken string    // opaque, cryptographically random

	// Scope
	TenantID uuid.UUID
	AppID    uuid.UUID
	OrderID  uuid.UUID
	TicketID uuid.UUID
	EventID  *uuid.UUID // optional, used only for limit resolution

	// Viewer identity
	UserID    uuid.UUID
	UserEmail string
	UserName  string

	// Browser fingerprint, used only for the same-browser reclaim heuristic.
	// Not a security boundary.
	IPAddress string
	UserAgent string

	Status         SessionStatus
	StartedAt      time.Time  // immutable
	LastActivityAt time.Time  // refreshed by every accepted heartbeat
	EndedAt        *time.Time // set exactly once, on leaving active
}

// IsActive returns true if the session still occupies a viewer slot.
func (s *StreamingSession) IsActive() bool {
	return s.Status == SessionStatusActive
}

// IsStale returns true if the session has not seen a heartbeat since cutoff.
func (s *StreamingSession) IsStale(cutoff time.Time) bool {
	return s.LastActivityAt.Before(cutoff)
}
