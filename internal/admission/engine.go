package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eventlive/streamgate/internal/models"
	"github.com/eventlive/streamgate/internal/store"
	"github.com/eventlive/streamgate/internal/telemetry"
	"github.com/eventlive/streamgate/internal/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LimitResolver resolves the max-concurrent-viewers setting for an event.
// A result of zero or less means unset; the engine applies the platform
// default.
type LimitResolver interface {
	MaxConcurrentViewers(ctx context.Context, scope store.Scope, eventID *uuid.UUID) (int, error)
}

// Engine is the session admission engine. It decides whether a viewer may
// open a streaming link, issues session tokens, renews them via heartbeats
// and reaps sessions whose viewers silently vanished.
//
// The engine holds no mutable state of its own; all serialization is
// delegated to the backing store. Two concurrent admissions on the same
// order can transiently exceed the limit by one (check-then-act), which is
// accepted as a bounded imprecision and restored by the next reap cycle.
type Engine struct {
	sessions store.SessionStore
	orders   store.OrderStore
	limits   LimitResolver
	cfg      *Config
	metrics  *telemetry.Metrics

	now func() time.Time
}

// NewEngine creates an admission engine over the given collaborators.
func NewEngine(sessions store.SessionStore, orders store.OrderStore, limits LimitResolver, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid admission config: %w", err)
	}

	return &Engine{
		sessions: sessions,
		orders:   orders,
		limits:   limits,
		cfg:      cfg,
		metrics:  telemetry.GetMetrics(),
		now:      time.Now,
	}, nil
}

// CreateSessionRequest carries everything a viewer's open-link request
// provides.
type CreateSessionRequest struct {
	OrderID  uuid.UUID
	TicketID uuid.UUID
	EventID  *uuid.UUID
	UserID   uuid.UUID

	IPAddress string
	UserAgent string
	UserEmail string
	UserName  string
}

// CreateSessionResponse is the successful admission decision.
type CreateSessionResponse struct {
	SessionToken string
	ExpiresAt    time.Time
	Reclaimed    bool
}

// StreamingStats is the read-only occupancy view for one order's link.
type StreamingStats struct {
	ActiveViewers  int
	MaxConcurrent  int
	AvailableSlots int
}

// ValidateResult reports whether a session token still admits its viewer.
// Invalid outcomes are results, not errors; only store failures surface as
// errors.
type ValidateResult struct {
	Valid   bool
	Reason  string
	Session *models.StreamingSession
}

// CreateSession evaluates an admission request: reap stale sessions on the
// order, check for a same-browser reclaim, enforce the concurrency limit,
// then issue a fresh token.
func (e *Engine) CreateSession(ctx context.Context, scope store.Scope, req *CreateSessionRequest) (*CreateSessionResponse, error) {
	if req.OrderID == uuid.Nil {
		return nil, newValidationError("order_id")
	}
	if req.TicketID == uuid.Nil {
		return nil, newValidationError("ticket_id")
	}
	if req.UserID == uuid.Nil {
		return nil, newValidationError("user_id")
	}

	order, err := e.orders.GetForUser(ctx, scope, req.UserID, req.OrderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, newNotFoundError("Order not found")
		}
		return nil, fmt.Errorf("failed to check order: %w", err)
	}
	if !order.IsCompleted() {
		return nil, newPreconditionError("Order is not completed")
	}

	now := e.now()

	// Reap first so heartbeat-stale sessions do not occupy slots in the
	// count below. Best-effort garbage collection, not a lock.
	expired, err := e.sessions.ExpireStale(ctx, scope, req.OrderID, now.Add(-e.cfg.HeartbeatTimeout), now)
	if err != nil {
		return nil, fmt.Errorf("failed to reap stale sessions: %w", err)
	}
	if expired > 0 {
		e.metrics.SessionsExpiredTotal.Add(ctx, int64(expired))
		e.metrics.ActiveSessions.Add(ctx, -int64(expired))
	}

	// A matching fingerprint means the same browser is reopening the link;
	// without this exemption a tab refresh at the limit would lock the
	// viewer out behind their own not-yet-stale session.
	prior, err := e.sessions.FindActiveByFingerprint(ctx, scope, req.OrderID, req.IPAddress, req.UserAgent)
	if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		return nil, fmt.Errorf("failed to check for reclaimable session: %w", err)
	}

	activeCount, err := e.sessions.CountActiveByOrder(ctx, scope, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}

	limit, err := e.resolveLimit(ctx, scope, req.EventID, order)
	if err != nil {
		return nil, err
	}

	if activeCount >= limit && prior == nil {
		e.metrics.AdmissionRejectedTotal.Add(ctx, 1)
		log.Info().
			Str("order_id", req.OrderID.String()).
			Int("active", activeCount).
			Int("limit", limit).
			Msg("Admission rejected at concurrency limit")
		return nil, newCapacityError(limit)
	}

	// A reclaim supersedes the prior same-browser session rather than
	// stacking a second one on the slot. The viewer always gets a fresh
	// token; tokens are never reused.
	if prior != nil {
		if _, err := e.sessions.Finish(ctx, prior.SessionID, models.SessionStatusEnded, now); err != nil {
			return nil, fmt.Errorf("failed to supersede reclaimed session: %w", err)
		}
		e.metrics.SessionsReclaimedTotal.Add(ctx, 1)
		e.metrics.ActiveSessions.Add(ctx, -1)
	}

	token, err := util.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &models.StreamingSession{
		SessionID:      uuid.Must(uuid.NewV7()),
		SessionToken:   token,
		TenantID:       scope.TenantID,
		AppID:          scope.AppID,
		OrderID:        req.OrderID,
		TicketID:       req.TicketID,
		EventID:        req.EventID,
		UserID:         req.UserID,
		UserEmail:      req.UserEmail,
		UserName:       req.UserName,
		IPAddress:      req.IPAddress,
		UserAgent:      req.UserAgent,
		Status:         models.SessionStatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	if err := e.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	e.metrics.SessionsCreatedTotal.Add(ctx, 1)
	e.metrics.ActiveSessions.Add(ctx, 1)

	log.Info().
		Str("session_id", session.SessionID.String()).
		Str("order_id", req.OrderID.String()).
		Bool("reclaimed", prior != nil).
		Int("active", activeCount).
		Int("limit", limit).
		Msg("Admitted streaming session")

	return &CreateSessionResponse{
		SessionToken: token,
		ExpiresAt:    now.Add(e.cfg.SessionTTL),
		Reclaimed:    prior != nil,
	}, nil
}

// ValidateSession checks whether a token still admits its viewer. Sessions
// silent beyond the grace window are lazily transitioned to expired here;
// the shorter reap cutoff only applies to the bulk reaper.
func (e *Engine) ValidateSession(ctx context.Context, token string) (*ValidateResult, error) {
	session, err := e.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return &ValidateResult{Valid: false, Reason: "Session not found"}, nil
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if !session.IsActive() {
		return &ValidateResult{Valid: false, Reason: "Session is not active"}, nil
	}

	now := e.now()
	if session.IsStale(now.Add(-e.cfg.graceWindow())) {
		matched, err := e.sessions.Finish(ctx, session.SessionID, models.SessionStatusExpired, now)
		if err != nil {
			return nil, fmt.Errorf("failed to expire inactive session: %w", err)
		}
		if matched {
			e.metrics.SessionsExpiredTotal.Add(ctx, 1)
			e.metrics.ActiveSessions.Add(ctx, -1)
		}
		return &ValidateResult{Valid: false, Reason: "Session expired due to inactivity"}, nil
	}

	return &ValidateResult{Valid: true, Session: session}, nil
}

// Heartbeat refreshes a session's last activity. Only active sessions may
// heartbeat; a session that expired between lookup and update is reported
// as not active.
func (e *Engine) Heartbeat(ctx context.Context, token string) error {
	session, err := e.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return newNotFoundError("Session not found")
		}
		return fmt.Errorf("failed to look up session: %w", err)
	}

	if !session.IsActive() {
		return newPreconditionError("Session is not active")
	}

	matched, err := e.sessions.Touch(ctx, session.SessionID, e.now())
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	if !matched {
		return newPreconditionError("Session is not active")
	}

	e.metrics.HeartbeatsTotal.Add(ctx, 1)
	return nil
}

// EndSession terminates a session. Ending an already-ended session is a
// no-op success; ended_at is written at most once.
func (e *Engine) EndSession(ctx context.Context, token string) error {
	session, err := e.sessions.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return newNotFoundError("Session not found")
		}
		return fmt.Errorf("failed to look up session: %w", err)
	}

	matched, err := e.sessions.Finish(ctx, session.SessionID, models.SessionStatusEnded, e.now())
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if matched {
		e.metrics.SessionsEndedTotal.Add(ctx, 1)
		e.metrics.ActiveSessions.Add(ctx, -1)
	}

	return nil
}

// ForceEndOrderSessions ends every active session on an order and returns
// the count actually ended. Invoked by the billing domain on refund or
// cancellation.
func (e *Engine) ForceEndOrderSessions(ctx context.Context, scope store.Scope, orderID uuid.UUID) (int, error) {
	sessions, err := e.sessions.ListActiveByOrder(ctx, scope, orderID)
	if err != nil {
		return 0, fmt.Errorf("failed to list active sessions: %w", err)
	}

	now := e.now()
	ended := 0
	for _, session := range sessions {
		matched, err := e.sessions.Finish(ctx, session.SessionID, models.SessionStatusEnded, now)
		if err != nil {
			return ended, fmt.Errorf("failed to end session %s: %w", session.SessionID, err)
		}
		if matched {
			ended++
		}
	}

	if ended > 0 {
		e.metrics.SessionsEndedTotal.Add(ctx, int64(ended))
		e.metrics.ActiveSessions.Add(ctx, -int64(ended))
		log.Info().
			Str("order_id", orderID.String()).
			Int("count", ended).
			Msg("Force-ended streaming sessions for order")
	}

	return ended, nil
}

// StreamingStats reports current occupancy for an order's link after a reap
// pass, so stale viewers do not inflate the count.
func (e *Engine) StreamingStats(ctx context.Context, scope store.Scope, orderID uuid.UUID, eventID *uuid.UUID) (*StreamingStats, error) {
	now := e.now()

	expired, err := e.sessions.ExpireStale(ctx, scope, orderID, now.Add(-e.cfg.HeartbeatTimeout), now)
	if err != nil {
		return nil, fmt.Errorf("failed to reap stale sessions: %w", err)
	}
	if expired > 0 {
		e.metrics.SessionsExpiredTotal.Add(ctx, int64(expired))
		e.metrics.ActiveSessions.Add(ctx, -int64(expired))
	}

	activeCount, err := e.sessions.CountActiveByOrder(ctx, scope, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}

	limit, err := e.resolveLimit(ctx, scope, eventID, nil)
	if err != nil {
		return nil, err
	}

	return &StreamingStats{
		ActiveViewers:  activeCount,
		MaxConcurrent:  limit,
		AvailableSlots: max(0, limit-activeCount),
	}, nil
}

// ListOrderSessions returns the active sessions on an order, most recently
// started first.
func (e *Engine) ListOrderSessions(ctx context.Context, scope store.Scope, orderID uuid.UUID) ([]*models.StreamingSession, error) {
	sessions, err := e.sessions.ListActiveByOrder(ctx, scope, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	return sessions, nil
}

// resolveLimit asks the policy resolver for the event's viewer limit,
// preferring the explicitly requested event over the one on the order, and
// falls back to the platform default when unset or non-positive.
func (e *Engine) resolveLimit(ctx context.Context, scope store.Scope, eventID *uuid.UUID, order *models.Order) (int, error) {
	if eventID == nil && order != nil {
		eventID = order.EventID
	}

	limit, err := e.limits.MaxConcurrentViewers(ctx, scope, eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve concurrency limit: %w", err)
	}
	if limit <= 0 {
		limit = e.cfg.DefaultMaxConcurrent
	}
	return limit, nil
}
