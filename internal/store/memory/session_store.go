package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eventlive/streamgate/internal/models"
	"github.com/eventlive/streamgate/internal/store"
	"github.com/google/uuid"
)

// SessionStore implements store.SessionStore using in-memory storage.
// This implementation is for testing and local development - data is lost
// on restart.
type SessionStore struct {
	mu sync.RWMutex

	sessions        map[uuid.UUID]*models.StreamingSession // session_id -> session
	sessionsByToken map[string]uuid.UUID                   // session_token -> session_id
	sessionsByOrder map[uuid.UUID][]uuid.UUID              // order_id -> []session_id
}

// NewSessionStore creates a new in-memory session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions:        make(map[uuid.UUID]*models.StreamingSession),
		sessionsByToken: make(map[string]uuid.UUID),
		sessionsByOrder: make(map[uuid.UUID][]uuid.UUID),
	}
}

// Create inserts a new session in memory.
func (s *SessionStore) Create(ctx context.Context, session *models.StreamingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clone to avoid external modifications
	clone := *session
	s.sessions[session.SessionID] = &clone
	s.sessionsByToken[session.SessionToken] = session.SessionID
	s.sessionsByOrder[session.OrderID] = append(s.sessionsByOrder[session.OrderID], session.SessionID)

	return nil
}

// GetByToken retrieves a session by its bearer token.
func (s *SessionStore) GetByToken(ctx context.Context, token string) (*models.StreamingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionID, exists := s.sessionsByToken[token]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	clone := *s.sessions[sessionID]
	return &clone, nil
}

// ListActiveByOrder returns active sessions for an order, most recently
// started first.
func (s *SessionStore) ListActiveByOrder(ctx context.Context, scope store.Scope, orderID uuid.UUID) ([]*models.StreamingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sessions []*models.StreamingSession
	for _, sessionID := range s.sessionsByOrder[orderID] {
		session := s.sessions[sessionID]
		if !s.inScope(session, scope) || !session.IsActive() {
			continue
		}
		clone := *session
		sessions = append(sessions, &clone)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})

	return sessions, nil
}

// CountActiveByOrder returns the number of active sessions on an order.
func (s *SessionStore) CountActiveByOrder(ctx context.Context, scope store.Scope, orderID uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sessionID := range s.sessionsByOrder[orderID] {
		session := s.sessions[sessionID]
		if s.inScope(session, scope) && session.IsActive() {
			count++
		}
	}

	return count, nil
}

// FindActiveByFingerprint returns the most recently started active session
// on the order matching the given IP address and user agent.
func (s *SessionStore) FindActiveByFingerprint(ctx context.Context, scope store.Scope, orderID uuid.UUID, ipAddress, userAgent string) (*models.StreamingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var match *models.StreamingSession
	for _, sessionID := range s.sessionsByOrder[orderID] {
		session := s.sessions[sessionID]
		if !s.inScope(session, scope) || !session.IsActive() {
			continue
		}
		if session.IPAddress != ipAddress || session.UserAgent != userAgent {
			continue
		}
		if match == nil || session.StartedAt.After(match.StartedAt) {
			match = session
		}
	}

	if match == nil {
		return nil, store.ErrSessionNotFound
	}

	clone := *match
	return &clone, nil
}

// ExpireStale transitions active sessions with no heartbeat since cutoff to
// expired.
func (s *SessionStore) ExpireStale(ctx context.Context, scope store.Scope, orderID uuid.UUID, cutoff time.Time, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, sessionID := range s.sessionsByOrder[orderID] {
		session := s.sessions[sessionID]
		if !s.inScope(session, scope) || !session.IsActive() {
			continue
		}
		if session.IsStale(cutoff) {
			session.Status = models.SessionStatusExpired
			endedAt := at
			session.EndedAt = &endedAt
			count++
		}
	}

	return count, nil
}

// Touch updates last_activity_at for an active session.
func (s *SessionStore) Touch(ctx context.Context, sessionID uuid.UUID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists || !session.IsActive() {
		return false, nil
	}

	session.LastActivityAt = at
	return true, nil
}

// Finish moves an active session to a terminal status, stamping ended_at.
// Already-terminal sessions are left untouched.
func (s *SessionStore) Finish(ctx context.Context, sessionID uuid.UUID, status models.SessionStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return false, store.ErrSessionNotFound
	}
	if !session.IsActive() {
		return false, nil
	}

	session.Status = status
	endedAt := at
	session.EndedAt = &endedAt
	return true, nil
}

// inScope checks the tenant/app scope on a session row.
func (s *SessionStore) inScope(session *models.StreamingSession, scope store.Scope) bool {
	return session.TenantID == scope.TenantID && session.AppID == scope.AppID
}
