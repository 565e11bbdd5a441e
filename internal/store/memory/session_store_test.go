package memory

import (
	"context"
	"testing"
	"time"

	"github.com/eventlive/streamgate/internal/models"
	"github.com/eventlive/streamgate/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestScope() store.Scope {
	return store.Scope{
		TenantID: uuid.Must(uuid.NewV7()),
		AppID:    uuid.Must(uuid.NewV7()),
	}
}

func newTestSession(scope store.Scope, orderID uuid.UUID, token string, startedAt time.Time) *models.StreamingSession {
	return &models.StreamingSession{
		SessionID:      uuid.Must(uuid.NewV7()),
		SessionToken:   token,
		TenantID:       scope.TenantID,
		AppID:          scope.AppID,
		OrderID:        orderID,
		TicketID:       uuid.Must(uuid.NewV7()),
		UserID:         uuid.Must(uuid.NewV7()),
		IPAddress:      "203.0.113.10",
		UserAgent:      "firefox",
		Status:         models.SessionStatusActive,
		StartedAt:      startedAt,
		LastActivityAt: startedAt,
	}
}

func TestSessionStore_CreateAndGetByToken(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionStore()
	scope := newTestScope()
	orderID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	session := newTestSession(scope, orderID, "token-1", now)
	require.NoError(t, sessions.Create(ctx, session))

	got, err := sessions.GetByToken(ctx, "token-1")
	require.NoError(t, err)
	require.Equal(t, session.SessionID, got.SessionID)
	require.Equal(t, orderID, got.OrderID)

	// Returned value is a copy, not a handle into the store
	got.Status = models.SessionStatusEnded
	again, err := sessions.GetByToken(ctx, "token-1")
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusActive, again.Status)

	_, err = sessions.GetByToken(ctx, "no-such-token")
	require.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestSessionStore_ListActiveByOrder(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionStore()
	scope := newTestScope()
	orderID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	older := newTestSession(scope, orderID, "token-older", now.Add(-time.Minute))
	newer := newTestSession(scope, orderID, "token-newer", now)
	require.NoError(t, sessions.Create(ctx, older))
	require.NoError(t, sessions.Create(ctx, newer))

	// Terminal sessions and sessions in other scopes are excluded
	ended := newTestSession(scope, orderID, "token-ended", now)
	require.NoError(t, sessions.Create(ctx, ended))
	_, err := sessions.Finish(ctx, ended.SessionID, models.SessionStatusEnded, now)
	require.NoError(t, err)

	foreign := newTestSession(newTestScope(), orderID, "token-foreign", now)
	require.NoError(t, sessions.Create(ctx, foreign))

	active, err := sessions.ListActiveByOrder(ctx, scope, orderID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "token-newer", active[0].SessionToken)
	require.Equal(t, "token-older", active[1].SessionToken)

	count, err := sessions.CountActiveByOrder(ctx, scope, orderID)
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestSessionStore_FindActiveByFingerprint(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionStore()
	scope := newTestScope()
	orderID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	earlier := newTestSession(scope, orderID, "token-earlier", now.Add(-time.Minute))
	require.NoError(t, sessions.Create(ctx, earlier))

	later := newTestSession(scope, orderID, "token-later", now)
	require.NoError(t, sessions.Create(ctx, later))

	t.Run("most recent match wins", func(t *testing.T) {
		match, err := sessions.FindActiveByFingerprint(ctx, scope, orderID, "203.0.113.10", "firefox")
		require.NoError(t, err)
		require.Equal(t, later.SessionID, match.SessionID)
	})

	t.Run("different user agent does not match", func(t *testing.T) {
		_, err := sessions.FindActiveByFingerprint(ctx, scope, orderID, "203.0.113.10", "chrome")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("different address does not match", func(t *testing.T) {
		_, err := sessions.FindActiveByFingerprint(ctx, scope, orderID, "203.0.113.99", "firefox")
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("terminal sessions are ignored", func(t *testing.T) {
		_, err := sessions.Finish(ctx, later.SessionID, models.SessionStatusEnded, now)
		require.NoError(t, err)

		match, err := sessions.FindActiveByFingerprint(ctx, scope, orderID, "203.0.113.10", "firefox")
		require.NoError(t, err)
		require.Equal(t, earlier.SessionID, match.SessionID)
	})
}

func TestSessionStore_ExpireStale(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionStore()
	scope := newTestScope()
	orderID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	stale := newTestSession(scope, orderID, "token-stale", now.Add(-time.Minute))
	fresh := newTestSession(scope, orderID, "token-fresh", now)
	require.NoError(t, sessions.Create(ctx, stale))
	require.NoError(t, sessions.Create(ctx, fresh))

	count, err := sessions.ExpireStale(ctx, scope, orderID, now.Add(-15*time.Second), now)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	expired, err := sessions.GetByToken(ctx, "token-stale")
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusExpired, expired.Status)
	require.NotNil(t, expired.EndedAt)
	require.Equal(t, now, *expired.EndedAt)

	kept, err := sessions.GetByToken(ctx, "token-fresh")
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusActive, kept.Status)

	// A second pass over the same cutoff finds nothing
	count, err = sessions.ExpireStale(ctx, scope, orderID, now.Add(-15*time.Second), now)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSessionStore_Touch(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionStore()
	scope := newTestScope()
	orderID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	session := newTestSession(scope, orderID, "token-1", now.Add(-10*time.Second))
	require.NoError(t, sessions.Create(ctx, session))

	matched, err := sessions.Touch(ctx, session.SessionID, now)
	require.NoError(t, err)
	require.True(t, matched)

	got, err := sessions.GetByToken(ctx, "token-1")
	require.NoError(t, err)
	require.Equal(t, now, got.LastActivityAt)

	t.Run("terminal session does not match", func(t *testing.T) {
		_, err := sessions.Finish(ctx, session.SessionID, models.SessionStatusEnded, now)
		require.NoError(t, err)

		matched, err := sessions.Touch(ctx, session.SessionID, now.Add(time.Second))
		require.NoError(t, err)
		require.False(t, matched)
	})

	t.Run("unknown session does not match", func(t *testing.T) {
		matched, err := sessions.Touch(ctx, uuid.Must(uuid.NewV7()), now)
		require.NoError(t, err)
		require.False(t, matched)
	})
}

func TestSessionStore_Finish(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionStore()
	scope := newTestScope()
	orderID := uuid.Must(uuid.NewV7())
	now := time.Now().UTC()

	session := newTestSession(scope, orderID, "token-1", now)
	require.NoError(t, sessions.Create(ctx, session))

	matched, err := sessions.Finish(ctx, session.SessionID, models.SessionStatusEnded, now)
	require.NoError(t, err)
	require.True(t, matched)

	got, err := sessions.GetByToken(ctx, "token-1")
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusEnded, got.Status)
	require.Equal(t, now, *got.EndedAt)

	t.Run("already terminal does not match again", func(t *testing.T) {
		matched, err := sessions.Finish(ctx, session.SessionID, models.SessionStatusEnded, now.Add(time.Minute))
		require.NoError(t, err)
		require.False(t, matched)

		// ended_at keeps its original stamp
		got, err := sessions.GetByToken(ctx, "token-1")
		require.NoError(t, err)
		require.Equal(t, now, *got.EndedAt)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := sessions.Finish(ctx, uuid.Must(uuid.NewV7()), models.SessionStatusEnded, now)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}
