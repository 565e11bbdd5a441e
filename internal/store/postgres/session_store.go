package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventlive/streamgate/internal/models"
	"github.com/eventlive/streamgate/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// SessionStore implements store.SessionStore using PostgreSQL.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new PostgreSQL-backed session store.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{
		pool: pool,
	}
}

const sessionColumns = `
	session_id, session_token, tenant_id, app_id, order_id, ticket_id,
	event_id, user_id, user_email, user_name, ip_address, user_agent,
	status, started_at, last_activity_at, ended_at
`

// Create inserts a new session row.
func (s *SessionStore) Create(ctx context.Context, session *models.StreamingSession) error {
	query := `
		INSERT INTO streaming_sessions (
			session_id, session_token, tenant_id, app_id, order_id, ticket_id,
			event_id, user_id, user_email, user_name, ip_address, user_agent,
			status, started_at, last_activity_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err := s.pool.Exec(ctx, query,
		session.SessionID,
		session.SessionToken,
		session.TenantID,
		session.AppID,
		session.OrderID,
		session.TicketID,
		session.EventID,
		session.UserID,
		session.UserEmail,
		session.UserName,
		session.IPAddress,
		session.UserAgent,
		session.Status,
		session.StartedAt,
		session.LastActivityAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create streaming session: %w", mapPostgresError(err))
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("order_id", session.OrderID.String()).
		Msg("Created streaming session")

	return nil
}

// GetByToken retrieves a session by its bearer token.
func (s *SessionStore) GetByToken(ctx context.Context, token string) (*models.StreamingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM streaming_sessions
		WHERE session_token = $1
	`

	session, err := scanSession(s.pool.QueryRow(ctx, query, token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get streaming session: %w", mapPostgresError(err))
	}

	return session, nil
}

// ListActiveByOrder returns active sessions for an order, most recently
// started first.
func (s *SessionStore) ListActiveByOrder(ctx context.Context, scope store.Scope, orderID uuid.UUID) ([]*models.StreamingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM streaming_sessions
		WHERE tenant_id = $1 AND app_id = $2 AND order_id = $3
		  AND status = 'active'
		ORDER BY started_at DESC
	`

	rows, err := s.pool.Query(ctx, query, scope.TenantID, scope.AppID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list streaming sessions: %w", mapPostgresError(err))
	}
	defer rows.Close()

	var sessions []*models.StreamingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan streaming session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return sessions, nil
}

// CountActiveByOrder returns the number of active sessions on an order.
func (s *SessionStore) CountActiveByOrder(ctx context.Context, scope store.Scope, orderID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM streaming_sessions
		WHERE tenant_id = $1 AND app_id = $2 AND order_id = $3
		  AND status = 'active'
	`

	var count int
	err := s.pool.QueryRow(ctx, query, scope.TenantID, scope.AppID, orderID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count streaming sessions: %w", mapPostgresError(err))
	}

	return count, nil
}

// FindActiveByFingerprint returns the most recently started active session
// on the order matching the given IP address and user agent.
func (s *SessionStore) FindActiveByFingerprint(ctx context.Context, scope store.Scope, orderID uuid.UUID, ipAddress, userAgent string) (*models.StreamingSession, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM streaming_sessions
		WHERE tenant_id = $1 AND app_id = $2 AND order_id = $3
		  AND status = 'active'
		  AND ip_address = $4 AND user_agent = $5
		ORDER BY started_at DESC
		LIMIT 1
	`

	session, err := scanSession(s.pool.QueryRow(ctx, query, scope.TenantID, scope.AppID, orderID, ipAddress, userAgent))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session by fingerprint: %w", mapPostgresError(err))
	}

	return session, nil
}

// ExpireStale transitions active sessions with no heartbeat since cutoff to
// expired, stamping ended_at.
func (s *SessionStore) ExpireStale(ctx context.Context, scope store.Scope, orderID uuid.UUID, cutoff time.Time, at time.Time) (int, error) {
	query := `
		UPDATE streaming_sessions
		SET status = 'expired', ended_at = $5
		WHERE tenant_id = $1 AND app_id = $2 AND order_id = $3
		  AND status = 'active'
		  AND last_activity_at < $4
	`

	result, err := s.pool.Exec(ctx, query, scope.TenantID, scope.AppID, orderID, cutoff, at)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale sessions: %w", mapPostgresError(err))
	}

	count := int(result.RowsAffected())
	if count > 0 {
		log.Info().
			Str("order_id", orderID.String()).
			Int("count", count).
			Msg("Expired stale streaming sessions")
	}

	return count, nil
}

// Touch updates last_activity_at for an active session. The status predicate
// makes the update a no-op when the session expired between the caller's
// lookup and this write.
func (s *SessionStore) Touch(ctx context.Context, sessionID uuid.UUID, at time.Time) (bool, error) {
	query := `
		UPDATE streaming_sessions
		SET last_activity_at = $2
		WHERE session_id = $1
		  AND status = 'active'
	`

	result, err := s.pool.Exec(ctx, query, sessionID, at)
	if err != nil {
		return false, fmt.Errorf("failed to update session activity: %w", mapPostgresError(err))
	}

	return result.RowsAffected() > 0, nil
}

// Finish moves an active session to a terminal status, stamping ended_at.
// Already-terminal sessions are left untouched so repeat calls stay
// idempotent and ended_at is written at most once.
func (s *SessionStore) Finish(ctx context.Context, sessionID uuid.UUID, status models.SessionStatus, at time.Time) (bool, error) {
	query := `
		UPDATE streaming_sessions
		SET status = $2, ended_at = $3
		WHERE session_id = $1
		  AND status = 'active'
	`

	result, err := s.pool.Exec(ctx, query, sessionID, status, at)
	if err != nil {
		return false, fmt.Errorf("failed to finish session: %w", mapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		// Distinguish "already terminal" from "no such session"
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM streaming_sessions WHERE session_id = $1)`, sessionID).Scan(&exists)
		if err != nil {
			return false, mapPostgresError(err)
		}
		if !exists {
			return false, store.ErrSessionNotFound
		}
		return false, nil
	}

	log.Debug().
		Str("session_id", sessionID.String()).
		Str("status", string(status)).
		Msg("Finished streaming session")

	return true, nil
}

// scanSession reads one session row.
func scanSession(row pgx.Row) (*models.StreamingSession, error) {
	var session models.StreamingSession
	err := row.Scan(
		&session.SessionID,
		&session.SessionToken,
		&session.TenantID,
		&session.AppID,
		&session.OrderID,
		&session.TicketID,
		&session.EventID,
		&session.UserID,
		&session.UserEmail,
		&session.UserName,
		&session.IPAddress,
		&session.UserAgent,
		&session.Status,
		&session.StartedAt,
		&session.LastActivityAt,
		&session.EndedAt,
	)
	if err != nil {
		return nil, err
	}
	return &session, nil
}
