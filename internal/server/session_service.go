package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/eventlive/streamgate/internal/admission"
	internalhttp "github.com/eventlive/streamgate/internal/http"
	"github.com/eventlive/streamgate/internal/models"
	"github.com/eventlive/streamgate/internal/store"
)

const (
	tenantHeader = "X-Tenant-ID"
	appHeader    = "X-App-ID"
)

// SessionService exposes the admission engine over JSON HTTP. It is a thin
// translation layer; all admission decisions live in the engine.
type SessionService struct {
	engine *admission.Engine
}

// NewSessionService creates a session service over the given engine
func NewSessionService(engine *admission.Engine) *SessionService {
	return &SessionService{engine: engine}
}

type createSessionRequest struct {
	OrderID   uuid.UUID  `json:"order_id"`
	TicketID  uuid.UUID  `json:"ticket_id"`
	EventID   *uuid.UUID `json:"event_id,omitempty"`
	UserID    uuid.UUID  `json:"user_id"`
	UserEmail string     `json:"user_email,omitempty"`
	UserName  string     `json:"user_name,omitempty"`
}

type createSessionResponse struct {
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Reclaimed    bool      `json:"reclaimed"`
}

type sessionView struct {
	SessionID      uuid.UUID  `json:"session_id"`
	OrderID        uuid.UUID  `json:"order_id"`
	TicketID       uuid.UUID  `json:"ticket_id"`
	EventID        *uuid.UUID `json:"event_id,omitempty"`
	UserID         uuid.UUID  `json:"user_id"`
	UserEmail      string     `json:"user_email,omitempty"`
	UserName       string     `json:"user_name,omitempty"`
	IPAddress      string     `json:"ip_address,omitempty"`
	UserAgent      string     `json:"user_agent,omitempty"`
	Status         string     `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
}

type validateSessionResponse struct {
	Valid   bool         `json:"valid"`
	Reason  string       `json:"reason,omitempty"`
	Session *sessionView `json:"session,omitempty"`
}

type listSessionsResponse struct {
	Sessions []*sessionView `json:"sessions"`
	Count    int            `json:"count"`
}

type forceEndResponse struct {
	EndedCount int `json:"ended_count"`
}

type statsResponse struct {
	ActiveViewers  int `json:"active_viewers"`
	MaxConcurrent  int `json:"max_concurrent"`
	AvailableSlots int `json:"available_slots"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
	Limit int    `json:"limit,omitempty"`
}

// CreateSession handles POST /v1/sessions.
func (s *SessionService) CreateSession(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	fp := internalhttp.FingerprintFromContext(r.Context())

	resp, err := s.engine.CreateSession(r.Context(), scope, &admission.CreateSessionRequest{
		OrderID:   req.OrderID,
		TicketID:  req.TicketID,
		EventID:   req.EventID,
		UserID:    req.UserID,
		UserEmail: req.UserEmail,
		UserName:  req.UserName,
		IPAddress: fp.IPAddress,
		UserAgent: fp.UserAgent,
	})
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionToken: resp.SessionToken,
		ExpiresAt:    resp.ExpiresAt,
		Reclaimed:    resp.Reclaimed,
	})
}

// ValidateSession handles GET /v1/sessions/{token}. Invalid sessions are a
// 200 with valid=false, not an error; player clients poll this.
func (s *SessionService) ValidateSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.ValidateSession(r.Context(), r.PathValue("token"))
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	resp := validateSessionResponse{
		Valid:  result.Valid,
		Reason: result.Reason,
	}
	if result.Session != nil {
		resp.Session = newSessionView(result.Session)
	}

	respondJSON(w, http.StatusOK, resp)
}

// Heartbeat handles POST /v1/sessions/{token}/heartbeat.
func (s *SessionService) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Heartbeat(r.Context(), r.PathValue("token")); err != nil {
		respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// EndSession handles DELETE /v1/sessions/{token}.
func (s *SessionService) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.EndSession(r.Context(), r.PathValue("token")); err != nil {
		respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// ListOrderSessions handles GET /v1/orders/{orderID}/sessions.
func (s *SessionService) ListOrderSessions(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(r.PathValue("orderID"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order id"})
		return
	}

	sessions, err := s.engine.ListOrderSessions(r.Context(), scope, orderID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	views := make([]*sessionView, 0, len(sessions))
	for _, session := range sessions {
		views = append(views, newSessionView(session))
	}

	respondJSON(w, http.StatusOK, listSessionsResponse{Sessions: views, Count: len(views)})
}

// ForceEndOrderSessions handles DELETE /v1/orders/{orderID}/sessions.
// Invoked by the billing domain on refund or cancellation.
func (s *SessionService) ForceEndOrderSessions(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(r.PathValue("orderID"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order id"})
		return
	}

	ended, err := s.engine.ForceEndOrderSessions(r.Context(), scope, orderID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, forceEndResponse{EndedCount: ended})
}

// StreamingStats handles GET /v1/orders/{orderID}/stats. An optional
// event_id query parameter pins the limit lookup to a specific event.
func (s *SessionService) StreamingStats(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeFromRequest(w, r)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(r.PathValue("orderID"))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order id"})
		return
	}

	var eventID *uuid.UUID
	if raw := r.URL.Query().Get("event_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid event id"})
			return
		}
		eventID = &parsed
	}

	stats, err := s.engine.StreamingStats(r.Context(), scope, orderID, eventID)
	if err != nil {
		respondEngineError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, statsResponse{
		ActiveViewers:  stats.ActiveViewers,
		MaxConcurrent:  stats.MaxConcurrent,
		AvailableSlots: stats.AvailableSlots,
	})
}

func newSessionView(session *models.StreamingSession) *sessionView {
	return &sessionView{
		SessionID:      session.SessionID,
		OrderID:        session.OrderID,
		TicketID:       session.TicketID,
		EventID:        session.EventID,
		UserID:         session.UserID,
		UserEmail:      session.UserEmail,
		UserName:       session.UserName,
		IPAddress:      session.IPAddress,
		UserAgent:      session.UserAgent,
		Status:         string(session.Status),
		StartedAt:      session.StartedAt,
		LastActivityAt: session.LastActivityAt,
		EndedAt:        session.EndedAt,
	}
}

// scopeFromRequest reads the tenant scope headers set by the API gateway.
// Requests without a valid scope never reach the engine.
func scopeFromRequest(w http.ResponseWriter, r *http.Request) (store.Scope, bool) {
	tenantID, err := uuid.Parse(r.Header.Get(tenantHeader))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "missing or invalid tenant scope"})
		return store.Scope{}, false
	}

	appID, err := uuid.Parse(r.Header.Get(appHeader))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "missing or invalid app scope"})
		return store.Scope{}, false
	}

	return store.Scope{TenantID: tenantID, AppID: appID}, true
}

func respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var engineErr *admission.Error
	switch admission.KindOf(err) {
	case admission.KindValidation:
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case admission.KindNotFound:
		respondJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case admission.KindPrecondition:
		respondJSON(w, http.StatusPreconditionFailed, errorResponse{Error: err.Error()})
	case admission.KindCapacity:
		resp := errorResponse{Error: err.Error()}
		if errors.As(err, &engineErr) {
			resp.Limit = engineErr.Limit
		}
		respondJSON(w, http.StatusForbidden, resp)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
