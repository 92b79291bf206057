package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aretw0/chatflow/pkg/domain"
	"github.com/aretw0/chatflow/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SessionReader is the read side of the session store exposed over HTTP.
type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	List(ctx context.Context) ([]string, error)
}

// Server exposes the engine over HTTP.
type Server struct {
	Events   ports.EventHandler
	Sessions SessionReader
	Flows    ports.FlowLister
	Streams  *StreamManager

	logger       *slog.Logger
	version      string
	maxInputSize int
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported by GET /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithFlows enables GET /v1/flows.
func WithFlows(f ports.FlowLister) Option {
	return func(s *Server) { s.Flows = f }
}

// WithStreams shares a stream manager, typically the one registered as the
// engine's notifier.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) { s.Streams = sm }
}

// WithMaxInputSize bounds the user text accepted by POST /v1/events.
func WithMaxInputSize(n int) Option {
	return func(s *Server) { s.maxInputSize = n }
}

// NewServer creates a server around an event handler and a session reader.
func NewServer(events ports.EventHandler, sessions SessionReader, opts ...Option) *Server {
	s := &Server{
		Events:   events,
		Sessions: sessions,
		logger:   slog.Default(),
		version:  "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates the HTTP handler for the server.
func NewHandler(events ports.EventHandler, sessions SessionReader, opts ...Option) http.Handler {
	return NewServer(events, sessions, opts...).Routes()
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/events", s.PostEvent)
		r.Get("/sessions", s.ListSessions)
		r.Get("/sessions/{id}", s.GetSession)
		r.Get("/flows", s.ListFlows)
		r.Get("/tenants/{tenant}/stream", s.SubscribeEvents)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EventRequest is the body of POST /v1/events. Credentials travel here
// explicitly since domain.Credentials never serializes its token.
type EventRequest struct {
	ContactID             string `json:"contactId"`
	PhoneNumberID         string `json:"phoneNumberId"`
	ProjectID             string `json:"projectId"`
	TenantID              string `json:"tenantId"`
	UserInput             string `json:"userInput"`
	InteractiveResponseID string `json:"interactiveResponseId,omitempty"`
	AccessToken           string `json:"accessToken,omitempty"`
	APIBase               string `json:"apiBase,omitempty"`
	APIVersion            string `json:"apiVersion,omitempty"`
}

func (r EventRequest) toDomain() domain.InboundEvent {
	return domain.InboundEvent{
		ContactID:             r.ContactID,
		PhoneNumberID:         r.PhoneNumberID,
		ProjectID:             r.ProjectID,
		TenantID:              r.TenantID,
		UserInput:             r.UserInput,
		InteractiveResponseID: r.InteractiveResponseID,
		Credentials: domain.Credentials{
			AccessToken: r.AccessToken,
			APIBase:     r.APIBase,
			Version:     r.APIVersion,
		},
	}
}

// EventResponse is the body returned by POST /v1/events.
type EventResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Session *domain.Session `json:"session,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// PostEvent handles POST /v1/events.
func (s *Server) PostEvent(w http.ResponseWriter, r *http.Request) {
	var body EventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("PostEvent: Invalid request body", "error", err)
		return
	}
	if body.ContactID == "" || body.PhoneNumberID == "" || body.ProjectID == "" {
		http.Error(w, "contactId, phoneNumberId and projectId are required", http.StatusBadRequest)
		return
	}

	clean, err := domain.SanitizeInput(body.UserInput, s.maxInputSize)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid input: %v", err), http.StatusBadRequest)
		s.logger.Warn("PostEvent: Input rejected", "error", err, "size", len(body.UserInput))
		return
	}
	body.UserInput = clean

	res, err := s.Events.HandleIncomingEvent(r.Context(), body.toDomain())
	resp := EventResponse{Success: res.Success, Message: res.Message, Session: res.Session}
	status := http.StatusOK
	if err != nil {
		// The engine already ended the session; report what happened.
		resp.Error = err.Error()
		status = http.StatusInternalServerError
		s.logger.Error("PostEvent: event failed", "error", err, "contact_id", body.ContactID)
	}
	writeJSON(w, status, resp, s.logger)
}

// ListSessions handles GET /v1/sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("ListSessions failed", "error", err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids, s.logger)
}

// GetSession handles GET /v1/sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := s.Sessions.Get(r.Context(), id)
	if errors.Is(err, domain.ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Get error: %v", err), http.StatusInternalServerError)
		s.logger.Error("GetSession failed", "error", err, "session_id", id)
		return
	}
	writeJSON(w, http.StatusOK, session, s.logger)
}

// ListFlows handles GET /v1/flows.
func (s *Server) ListFlows(w http.ResponseWriter, r *http.Request) {
	if s.Flows == nil {
		http.Error(w, "Flow listing not supported", http.StatusNotImplemented)
		return
	}
	flows, err := s.Flows.ListFlows(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
		s.logger.Error("ListFlows failed", "error", err)
		return
	}
	if flows == nil {
		flows = []domain.Flow{}
	}
	writeJSON(w, http.StatusOK, flows, s.logger)
}

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, s.logger)
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "chatflow-http",
		"version": s.version,
	}, s.logger)
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}
