// Package policy resolves per-event streaming policy for the admission
// engine.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventlive/streamgate/internal/store"
	"github.com/google/uuid"
)

// EventLimitResolver resolves max-concurrent-viewers from an event's stream
// settings. A missing event or an unset setting resolves to zero, which the
// engine maps to the platform default.
type EventLimitResolver struct {
	events store.EventStore
}

// NewEventLimitResolver creates a resolver over the given event store.
func NewEventLimitResolver(events store.EventStore) *EventLimitResolver {
	return &EventLimitResolver{
		events: events,
	}
}

// MaxConcurrentViewers returns the event's configured viewer limit, or zero
// when no event is referenced or the event carries no setting.
func (r *EventLimitResolver) MaxConcurrentViewers(ctx context.Context, scope store.Scope, eventID *uuid.UUID) (int, error) {
	if eventID == nil {
		return 0, nil
	}

	event, err := r.events.Get(ctx, scope, *eventID)
	if err != nil {
		if errors.Is(err, store.ErrEventNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to load event settings: %w", err)
	}

	return event.StreamSettings.MaxConcurrentViewers, nil
}
