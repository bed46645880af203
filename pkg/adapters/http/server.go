// Package http exposes the engine to operations tooling over REST. Requests
// are tenant-scoped through the X-Tenant-ID header; each tenant resolves to
// its own engine via the registry.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orbitel/journey/internal/logging"
	"github.com/orbitel/journey/pkg/domain"
	"github.com/orbitel/journey/pkg/engine"
	"github.com/orbitel/journey/pkg/orchestrator"
)

// TenantHeader carries the tenant for every engine-scoped route.
const TenantHeader = "X-Tenant-ID"

var errNotRetryable = errors.New("handoff is not in failed status")

// DefaultTenant is used when the header is absent, for single-tenant hosts.
const DefaultTenant = "default"

// Server routes REST calls to per-tenant engines.
type Server struct {
	registry *engine.Registry
	logger   *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler builds the HTTP handler. The Prometheus gatherer is mounted at
// /metrics when non-nil.
func NewHandler(reg *engine.Registry, gatherer prometheus.Gatherer, opts ...Option) http.Handler {
	s := &Server{
		registry: reg,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/journeys", func(r chi.Router) {
		r.Post("/", s.startJourney)
		r.Get("/", s.listJourneys)
		r.Get("/{id}", s.getJourney)
		r.Get("/{id}/events", s.journeyEvents)
		r.Post("/{id}/advance", s.advanceJourney)
		r.Post("/{id}/skip", s.skipStep)
		r.Post("/{id}/pause", s.pauseJourney)
		r.Post("/{id}/resume", s.resumeJourney)
		r.Post("/{id}/abandon", s.abandonJourney)
		r.Post("/{id}/touchpoints", s.addTouchpoint)
	})

	r.Route("/handoffs", func(r chi.Router) {
		r.Get("/active", s.activeHandoffs)
		r.Get("/approvals", s.pendingApprovals)
		r.Get("/failed", s.failedHandoffs)
		r.Post("/{id}/approve", s.approveHandoff)
		r.Post("/{id}/reject", s.rejectHandoff)
		r.Post("/{id}/retry", s.retryHandoff)
	})

	r.Post("/events", s.publishEvent)
	r.Get("/events", s.eventHistory)
	r.Get("/stats", s.stats)

	return r
}

func (s *Server) engine(w http.ResponseWriter, r *http.Request) (*engine.Engine, bool) {
	tenant := r.Header.Get(TenantHeader)
	if tenant == "" {
		tenant = DefaultTenant
	}
	e, err := s.registry.Get(r.Context(), tenant)
	if err != nil {
		s.logger.Error("engine resolution failed", "tenant", tenant, "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return e, true
}

type startJourneyRequest struct {
	TemplateID string         `json:"template_id"`
	Context    map[string]any `json:"context,omitempty"`
	CustomerID string         `json:"customer_id,omitempty"`
	LeadID     string         `json:"lead_id,omitempty"`
}

func (s *Server) startJourney(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	var req startJourneyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	j, err := e.Orchestrator.StartJourney(r.Context(), req.TemplateID, req.Context, req.CustomerID, req.LeadID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (s *Server) listJourneys(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}

	if q := r.URL.Query().Get("q"); q != "" {
		writeJSON(w, http.StatusOK, e.Orchestrator.SearchJourneys(q))
		return
	}

	f := orchestrator.Filter{
		Status:   domain.JourneyStatus(r.URL.Query().Get("status")),
		Stage:    domain.Stage(r.URL.Query().Get("stage")),
		Type:     r.URL.Query().Get("type"),
		Priority: r.URL.Query().Get("priority"),
		Assignee: r.URL.Query().Get("assignee"),
	}
	if f == (orchestrator.Filter{}) {
		writeJSON(w, http.StatusOK, e.Orchestrator.Journeys())
		return
	}
	writeJSON(w, http.StatusOK, e.Orchestrator.FilterJourneys(f))
}

func (s *Server) getJourney(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	j, err := e.Orchestrator.Journey(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) journeyEvents(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := e.Orchestrator.Journey(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e.Bus.HistoryForJourney(id))
}

type advanceRequest struct {
	StepID string `json:"step_id,omitempty"`
}

func (s *Server) advanceJourney(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	var req advanceRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := e.Orchestrator.AdvanceStep(r.Context(), chi.URLParam(r, "id"), req.StepID); err != nil {
		writeDomainError(w, err)
		return
	}
	j, err := e.Orchestrator.Journey(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

type skipRequest struct {
	StepID string `json:"step_id"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) skipStep(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	var req skipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := e.Orchestrator.SkipStep(r.Context(), chi.URLParam(r, "id"), req.StepID, req.Reason); err != nil {
		writeDomainError(w, err)
		return
	}
	j, err := e.Orchestrator.Journey(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) pauseJourney(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, func(e *engine.Engine, id string) error {
		return e.Orchestrator.PauseJourney(id)
	})
}

func (s *Server) resumeJourney(w http.ResponseWriter, r *http.Request) {
	s.lifecycle(w, r, func(e *engine.Engine, id string) error {
		return e.Orchestrator.ResumeJourney(r.Context(), id)
	})
}

func (s *Server) abandonJourney(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.lifecycle(w, r, func(e *engine.Engine, id string) error {
		return e.Orchestrator.AbandonJourney(id, req.Reason)
	})
}

func (s *Server) lifecycle(w http.ResponseWriter, r *http.Request, op func(*engine.Engine, string) error) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := op(e, id); err != nil {
		writeDomainError(w, err)
		return
	}
	j, err := e.Orchestrator.Journey(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) addTouchpoint(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	var tp domain.Touchpoint
	if err := json.NewDecoder(r.Body).Decode(&tp); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	added, err := e.Orchestrator.AddTouchpoint(chi.URLParam(r, "id"), tp)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) activeHandoffs(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.Handoffs.Active())
}

func (s *Server) pendingApprovals(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.Handoffs.PendingApprovals())
}

func (s *Server) failedHandoffs(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.Handoffs.Failed())
}

func (s *Server) approveHandoff(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	var req struct {
		Notes string `json:"notes,omitempty"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	h, err := e.Handoffs.Approve(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) rejectHandoff(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	h, err := e.Handoffs.Reject(chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) retryHandoff(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := e.Handoffs.Get(id); err != nil {
		writeDomainError(w, err)
		return
	}
	retried := e.Handoffs.RetryFailed(r.Context(), []string{id})
	if len(retried) == 0 {
		writeError(w, http.StatusConflict, errNotRetryable)
		return
	}
	writeJSON(w, http.StatusOK, retried[0])
}

type publishRequest struct {
	Type       string         `json:"type"`
	Source     string         `json:"source,omitempty"`
	JourneyID  string         `json:"journey_id,omitempty"`
	CustomerID string         `json:"customer_id,omitempty"`
	LeadID     string         `json:"lead_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

func (s *Server) publishEvent(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	source := req.Source
	if source == "" {
		source = "http_api"
	}
	evt, err := e.Bus.Publish(&domain.JourneyEvent{
		Type:       req.Type,
		Source:     source,
		JourneyID:  req.JourneyID,
		CustomerID: req.CustomerID,
		LeadID:     req.LeadID,
		Payload:    req.Payload,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusAccepted, evt)
}

func (s *Server) eventHistory(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.Bus.History(0))
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.Orchestrator.Metrics())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeDomainError maps engine errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var condErr *domain.ConditionError
	switch {
	case errors.Is(err, domain.ErrJourneyNotFound),
		errors.Is(err, domain.ErrTemplateNotFound),
		errors.Is(err, domain.ErrHandoffNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrJourneyTerminal),
		errors.Is(err, domain.ErrJourneyNotPaused),
		errors.Is(err, domain.ErrHandoffNotPending),
		errors.Is(err, domain.ErrHandoffNotApproval):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, domain.ErrConcurrencyLimit):
		writeError(w, http.StatusTooManyRequests, err)
	case errors.As(err, &condErr):
		writeError(w, http.StatusUnprocessableEntity, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
