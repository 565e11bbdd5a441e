package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eventlive/streamgate/internal/models"
	"github.com/eventlive/streamgate/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EventStore implements store.EventStore using PostgreSQL, reading the
// events table maintained by the catalog domain.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new PostgreSQL-backed event store.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{
		pool: pool,
	}
}

// Get returns the event in scope. The JSONB stream_settings column is
// decoded into the typed settings struct.
func (s *EventStore) Get(ctx context.Context, scope store.Scope, eventID uuid.UUID) (*models.Event, error) {
	query := `
		SELECT event_id, tenant_id, app_id, name, stream_settings,
		       created_at, updated_at
		FROM events
		WHERE event_id = $1
		  AND tenant_id = $2 AND app_id = $3
	`

	var event models.Event
	var settingsJSON []byte
	err := s.pool.QueryRow(ctx, query, eventID, scope.TenantID, scope.AppID).Scan(
		&event.EventID,
		&event.TenantID,
		&event.AppID,
		&event.Name,
		&settingsJSON,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", mapPostgresError(err))
	}

	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &event.StreamSettings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stream_settings: %w", err)
		}
	}

	return &event, nil
}
