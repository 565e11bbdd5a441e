//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/eventlive/streamgate/internal/models"
	"github.com/eventlive/streamgate/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	// Start postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := NewPool(ctx, &PoolConfig{ConnString: connString})
	require.NoError(t, err)

	err = RunMigrations(ctx, pool)
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func seedOrder(t *testing.T, ctx context.Context, pool *pgxpool.Pool, scope store.Scope, userID uuid.UUID, eventID *uuid.UUID, status string) uuid.UUID {
	t.Helper()

	orderID := uuid.Must(uuid.NewV7())
	_, err := pool.Exec(ctx, `
		INSERT INTO orders (order_id, tenant_id, app_id, user_id, event_id, ticket_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		orderID, scope.TenantID, scope.AppID, userID, eventID, uuid.Must(uuid.NewV7()), status)
	require.NoError(t, err)

	return orderID
}

func newIntegrationSession(scope store.Scope, orderID uuid.UUID, startedAt time.Time) *models.StreamingSession {
	return &models.StreamingSession{
		SessionID:      uuid.Must(uuid.NewV7()),
		SessionToken:   uuid.Must(uuid.NewV7()).String(),
		TenantID:       scope.TenantID,
		AppID:          scope.AppID,
		OrderID:        orderID,
		TicketID:       uuid.Must(uuid.NewV7()),
		UserID:         uuid.Must(uuid.NewV7()),
		UserEmail:      "viewer@example.com",
		UserName:       "Test Viewer",
		IPAddress:      "203.0.113.10",
		UserAgent:      "firefox",
		Status:         models.SessionStatusActive,
		StartedAt:      startedAt,
		LastActivityAt: startedAt,
	}
}

func TestIntegration_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	sessions := NewSessionStore(pool)
	orders := NewOrderStore(pool)

	scope := store.Scope{
		TenantID: uuid.Must(uuid.NewV7()),
		AppID:    uuid.Must(uuid.NewV7()),
	}
	userID := uuid.Must(uuid.NewV7())
	orderID := seedOrder(t, ctx, pool, scope, userID, nil, models.OrderStatusCompleted)

	t.Run("order lookup honors scope and ownership", func(t *testing.T) {
		order, err := orders.GetForUser(ctx, scope, userID, orderID)
		require.NoError(t, err)
		require.True(t, order.IsCompleted())

		_, err = orders.GetForUser(ctx, scope, uuid.Must(uuid.NewV7()), orderID)
		require.ErrorIs(t, err, store.ErrOrderNotFound)
	})

	t.Run("create and fetch by token", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		session := newIntegrationSession(scope, orderID, now)

		err := sessions.Create(ctx, session)
		require.NoError(t, err)

		got, err := sessions.GetByToken(ctx, session.SessionToken)
		require.NoError(t, err)
		require.Equal(t, session.SessionID, got.SessionID)
		require.Equal(t, models.SessionStatusActive, got.Status)
		require.True(t, got.StartedAt.Equal(now))
		require.Nil(t, got.EndedAt)
	})

	t.Run("duplicate token is rejected", func(t *testing.T) {
		now := time.Now().UTC()
		first := newIntegrationSession(scope, orderID, now)
		require.NoError(t, sessions.Create(ctx, first))

		dup := newIntegrationSession(scope, orderID, now)
		dup.SessionToken = first.SessionToken
		err := sessions.Create(ctx, dup)
		require.Error(t, err)
	})

	t.Run("count and list active", func(t *testing.T) {
		countOrderID := seedOrder(t, ctx, pool, scope, userID, nil, models.OrderStatusCompleted)
		now := time.Now().UTC()

		older := newIntegrationSession(scope, countOrderID, now.Add(-time.Minute))
		newer := newIntegrationSession(scope, countOrderID, now)
		require.NoError(t, sessions.Create(ctx, older))
		require.NoError(t, sessions.Create(ctx, newer))

		count, err := sessions.CountActiveByOrder(ctx, scope, countOrderID)
		require.NoError(t, err)
		require.Equal(t, 2, count)

		active, err := sessions.ListActiveByOrder(ctx, scope, countOrderID)
		require.NoError(t, err)
		require.Len(t, active, 2)
		require.Equal(t, newer.SessionID, active[0].SessionID)

		// Other tenants never see these rows
		foreignScope := store.Scope{TenantID: uuid.Must(uuid.NewV7()), AppID: uuid.Must(uuid.NewV7())}
		count, err = sessions.CountActiveByOrder(ctx, foreignScope, countOrderID)
		require.NoError(t, err)
		require.Zero(t, count)
	})

	t.Run("finish is terminal", func(t *testing.T) {
		now := time.Now().UTC()
		session := newIntegrationSession(scope, orderID, now)
		require.NoError(t, sessions.Create(ctx, session))

		matched, err := sessions.Finish(ctx, session.SessionID, models.SessionStatusEnded, now)
		require.NoError(t, err)
		require.True(t, matched)

		got, err := sessions.GetByToken(ctx, session.SessionToken)
		require.NoError(t, err)
		require.Equal(t, models.SessionStatusEnded, got.Status)
		require.NotNil(t, got.EndedAt)

		// Terminal rows do not match a second Finish
		matched, err = sessions.Finish(ctx, session.SessionID, models.SessionStatusEnded, now.Add(time.Minute))
		require.NoError(t, err)
		require.False(t, matched)

		_, err = sessions.Finish(ctx, uuid.Must(uuid.NewV7()), models.SessionStatusEnded, now)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("touch only matches active rows", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Microsecond)
		session := newIntegrationSession(scope, orderID, now.Add(-10*time.Second))
		require.NoError(t, sessions.Create(ctx, session))

		matched, err := sessions.Touch(ctx, session.SessionID, now)
		require.NoError(t, err)
		require.True(t, matched)

		got, err := sessions.GetByToken(ctx, session.SessionToken)
		require.NoError(t, err)
		require.True(t, got.LastActivityAt.Equal(now))

		_, err = sessions.Finish(ctx, session.SessionID, models.SessionStatusEnded, now)
		require.NoError(t, err)

		matched, err = sessions.Touch(ctx, session.SessionID, now.Add(time.Second))
		require.NoError(t, err)
		require.False(t, matched)
	})
}

func TestIntegration_ExpireStale(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	sessions := NewSessionStore(pool)
	scope := store.Scope{
		TenantID: uuid.Must(uuid.NewV7()),
		AppID:    uuid.Must(uuid.NewV7()),
	}
	userID := uuid.Must(uuid.NewV7())
	orderID := seedOrder(t, ctx, pool, scope, userID, nil, models.OrderStatusCompleted)

	now := time.Now().UTC()
	stale := newIntegrationSession(scope, orderID, now.Add(-time.Minute))
	fresh := newIntegrationSession(scope, orderID, now)
	require.NoError(t, sessions.Create(ctx, stale))
	require.NoError(t, sessions.Create(ctx, fresh))

	count, err := sessions.ExpireStale(ctx, scope, orderID, now.Add(-15*time.Second), now)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	expired, err := sessions.GetByToken(ctx, stale.SessionToken)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusExpired, expired.Status)
	require.NotNil(t, expired.EndedAt)

	kept, err := sessions.GetByToken(ctx, fresh.SessionToken)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusActive, kept.Status)

	count, err = sessions.ExpireStale(ctx, scope, orderID, now.Add(-15*time.Second), now)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestIntegration_FindActiveByFingerprint(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	sessions := NewSessionStore(pool)
	scope := store.Scope{
		TenantID: uuid.Must(uuid.NewV7()),
		AppID:    uuid.Must(uuid.NewV7()),
	}
	userID := uuid.Must(uuid.NewV7())
	orderID := seedOrder(t, ctx, pool, scope, userID, nil, models.OrderStatusCompleted)

	now := time.Now().UTC()
	earlier := newIntegrationSession(scope, orderID, now.Add(-time.Minute))
	later := newIntegrationSession(scope, orderID, now)
	require.NoError(t, sessions.Create(ctx, earlier))
	require.NoError(t, sessions.Create(ctx, later))

	match, err := sessions.FindActiveByFingerprint(ctx, scope, orderID, "203.0.113.10", "firefox")
	require.NoError(t, err)
	require.Equal(t, later.SessionID, match.SessionID)

	_, err = sessions.FindActiveByFingerprint(ctx, scope, orderID, "203.0.113.10", "chrome")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestIntegration_EventStore(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	events := NewEventStore(pool)
	scope := store.Scope{
		TenantID: uuid.Must(uuid.NewV7()),
		AppID:    uuid.Must(uuid.NewV7()),
	}

	eventID := uuid.Must(uuid.NewV7())
	_, err := pool.Exec(ctx, `
		INSERT INTO events (event_id, tenant_id, app_id, name, stream_settings)
		VALUES ($1, $2, $3, $4, $5)`,
		eventID, scope.TenantID, scope.AppID, "keynote",
		[]byte(`{"max_concurrent_viewers": 4, "playback_url": "https://stream.example.com/keynote"}`))
	require.NoError(t, err)

	event, err := events.Get(ctx, scope, eventID)
	require.NoError(t, err)
	require.Equal(t, "keynote", event.Name)
	require.Equal(t, 4, event.StreamSettings.MaxConcurrentViewers)
	require.Equal(t, "https://stream.example.com/keynote", event.StreamSettings.PlaybackURL)

	_, err = events.Get(ctx, scope, uuid.Must(uuid.NewV7()))
	require.ErrorIs(t, err, store.ErrEventNotFound)
}
