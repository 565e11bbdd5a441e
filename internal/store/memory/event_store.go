package memory

import (
	"context"
	"sync"

	"github.com/eventlive/streamgate/internal/models"
	"github.com/eventlive/streamgate/internal/store"
	"github.com/google/uuid"
)

// EventStore implements store.EventStore using in-memory storage, seeded via
// Put. Events are owned by the catalog domain; only stream settings are read
// here.
type EventStore struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*models.Event
}

// NewEventStore creates a new in-memory event store.
func NewEventStore() *EventStore {
	return &EventStore{
		events: make(map[uuid.UUID]*models.Event),
	}
}

// Put seeds an event. Replaces any existing event with the same ID.
func (s *EventStore) Put(event *models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *event
	s.events[event.EventID] = &clone
}

// Get returns the event in scope.
func (s *EventStore) Get(ctx context.Context, scope store.Scope, eventID uuid.UUID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	event, exists := s.events[eventID]
	if !exists {
		return nil, store.ErrEventNotFound
	}
	if event.TenantID != scope.TenantID || event.AppID != scope.AppID {
		return nil, store.ErrEventNotFound
	}

	clone := *event
	return &clone, nil
}
