package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamSettings is the streaming configuration a producer sets on an event.
// Stored as a JSONB column; fields are schema-validated rather than carried
// as an opaque map.
type StreamSettings struct {
	// MaxConcurrentViewers limits simultaneously active sessions per order.
	// Zero or negative means unset; callers fall back to the platform default.
	MaxConcurrentViewers int `json:"max_concurrent_viewers"`

	// PlaybackURL is the stream origin handed to admitted viewers.
	PlaybackURL string `json:"playback_url,omitempty"`
}

// Event is a read-only view of a producer's event, owned by the catalog
// domain. The admission engine only reads its stream settings.
type Event struct {
	EventID  uuid.UUID // UUIDv7
	TenantID uuid.UUID
	AppID    uuid.UUID

	Name           string
	StreamSettings StreamSettings

	CreatedAt time.Time
	UpdatedAt time.Time
}
