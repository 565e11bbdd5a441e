package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/eventlive/streamgate/internal/admission"
	internalhttp "github.com/eventlive/streamgate/internal/http"
	"github.com/eventlive/streamgate/internal/logger"
)

// Server wraps the HTTP server and the session service
type Server struct {
	engine         *admission.Engine
	sessionService *SessionService
}

// NewServer creates a new server over the given admission engine
func NewServer(engine *admission.Engine) *Server {
	return &Server{
		engine:         engine,
		sessionService: NewSessionService(engine),
	}
}

// Handler returns the HTTP handler for the server
func (s *Server) Handler(log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for load balancer
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("POST /v1/sessions", s.sessionService.CreateSession)
	mux.HandleFunc("GET /v1/sessions/{token}", s.sessionService.ValidateSession)
	mux.HandleFunc("POST /v1/sessions/{token}/heartbeat", s.sessionService.Heartbeat)
	mux.HandleFunc("DELETE /v1/sessions/{token}", s.sessionService.EndSession)
	mux.HandleFunc("GET /v1/orders/{orderID}/sessions", s.sessionService.ListOrderSessions)
	mux.HandleFunc("DELETE /v1/orders/{orderID}/sessions", s.sessionService.ForceEndOrderSessions)
	mux.HandleFunc("GET /v1/orders/{orderID}/stats", s.sessionService.StreamingStats)

	var handler http.Handler = mux
	handler = internalhttp.FingerprintMiddleware()(handler)
	handler = logger.Requests(log)(handler)

	return handler
}
