package crisis

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/bissquit/crisis-command/internal/domain"
	"github.com/bissquit/crisis-command/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrCrisisNotFound, Status: http.StatusNotFound},
	{Error: ErrInvalidTransition, Status: http.StatusConflict},
	{Error: ErrCrisisAlreadyResolved, Status: http.StatusConflict},
	{Error: ErrCrisisCancelled, Status: http.StatusConflict},
	{Error: ErrMissingResolution, Status: http.StatusBadRequest},
	{Error: ErrMissingMitigation, Status: http.StatusBadRequest},
	{Error: ErrEscalationNotAllowed, Status: http.StatusConflict},
	{Error: ErrMissingType, Status: http.StatusBadRequest},
	{Error: ErrMissingDescription, Status: http.StatusBadRequest},
	{Error: ErrInvalidDetectedAt, Status: http.StatusBadRequest},
	{Error: ErrInvalidSeverity, Status: http.StatusBadRequest},
}

// ExecutiveEscalator exposes manual escalation; implemented by the
// escalation engine.
type ExecutiveEscalator interface {
	EscalateToExecutive(ctx context.Context, crisisID, reason string) (*domain.Crisis, error)
}

// Handler handles HTTP requests for the crisis registry.
type Handler struct {
	service   *Service
	escalator ExecutiveEscalator
	validator *validator.Validate
}

// NewHandler creates a new crisis handler.
func NewHandler(service *Service, escalator ExecutiveEscalator) *Handler {
	return &Handler{
		service:   service,
		escalator: escalator,
		validator: validator.New(),
	}
}

// RegisterViewerRoutes registers read-only crisis routes.
func (h *Handler) RegisterViewerRoutes(r chi.Router) {
	r.Get("/crises", h.ListCrises)
	r.Get("/crises/analytics", h.GetAnalytics)
	r.Get("/crises/{id}", h.GetCrisis)
}

// RegisterOperatorRoutes registers mutating crisis routes.
func (h *Handler) RegisterOperatorRoutes(r chi.Router) {
	r.Post("/crises", h.DetectCrisis)
	r.Post("/crises/{id}/confirm", h.ConfirmCrisis)
	r.Post("/crises/{id}/resolve", h.ResolveCrisis)
	r.Post("/crises/{id}/cancel", h.CancelCrisis)
	r.Post("/crises/{id}/partial-resolution", h.MarkPartialResolution)
	r.Post("/crises/{id}/escalate", h.EscalateToExecutive)
}

// SubmitEventRequest represents the request body for crisis detection.
type SubmitEventRequest struct {
	Type            string   `json:"type" validate:"required"`
	Severity        *string  `json:"severity,omitempty" validate:"omitempty,oneof=low medium high critical"`
	Description     string   `json:"description" validate:"required"`
	Location        string   `json:"location,omitempty"`
	AffectedSystems []string `json:"affected_systems,omitempty"`
	Source          string   `json:"source,omitempty"`
	DetectedAt      string   `json:"detected_at" validate:"required"`
}

// ResolveRequest represents the request body for resolving a crisis.
type ResolveRequest struct {
	Summary    string `json:"summary" validate:"required"`
	RootCause  string `json:"root_cause" validate:"required"`
	ResolvedBy string `json:"resolved_by" validate:"required"`
}

// CancelRequest represents the request body for cancelling a crisis.
type CancelRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// PartialResolutionRequest represents a partial-resolution report.
type PartialResolutionRequest struct {
	Steps           []string `json:"steps" validate:"required,min=1"`
	RemainingIssues []string `json:"remaining_issues,omitempty"`
	EstimatedFullAt *string  `json:"estimated_full_at,omitempty"`
}

// EscalateRequest represents a manual escalation request.
type EscalateRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// DetectCrisis handles POST /crises.
func (h *Handler) DetectCrisis(w http.ResponseWriter, r *http.Request) {
	var req SubmitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	detectedAt, err := time.Parse(time.RFC3339, req.DetectedAt)
	if err != nil {
		httputil.HandleError(r.Context(), w, ErrInvalidDetectedAt, errorMappings)
		return
	}

	var hint *domain.Severity
	if req.Severity != nil {
		sev := domain.Severity(*req.Severity)
		hint = &sev
	}

	c, err := h.service.Detect(r.Context(), SubmitEventInput{
		Type:            domain.CrisisType(req.Type),
		SeverityHint:    hint,
		Description:     req.Description,
		Location:        req.Location,
		AffectedSystems: req.AffectedSystems,
		Source:          req.Source,
		DetectedAt:      detectedAt,
	}, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, c)
}

// GetCrisis handles GET /crises/{id}.
func (h *Handler) GetCrisis(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, c)
}

// ListCrises handles GET /crises.
func (h *Handler) ListCrises(w http.ResponseWriter, r *http.Request) {
	filters := Filters{}

	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.CrisisStatus(v)
		filters.Status = &status
	}
	if v := r.URL.Query().Get("severity"); v != "" {
		severity := domain.Severity(v)
		filters.Severity = &severity
	}
	if v := r.URL.Query().Get("type"); v != "" {
		crisisType := domain.CrisisType(v)
		filters.Type = &crisisType
	}
	if r.URL.Query().Get("active") == "true" {
		filters.ActiveOnly = true
	}

	crises, err := h.service.List(r.Context(), filters)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, crises)
}

// GetAnalytics handles GET /crises/analytics.
func (h *Handler) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := h.service.GetAnalytics(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, analytics)
}

// ConfirmCrisis handles POST /crises/{id}/confirm.
func (h *Handler) ConfirmCrisis(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Confirm(r.Context(), chi.URLParam(r, "id"), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, c)
}

// ResolveCrisis handles POST /crises/{id}/resolve.
func (h *Handler) ResolveCrisis(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	c, err := h.service.Resolve(r.Context(), chi.URLParam(r, "id"), ResolutionInput{
		Summary:    req.Summary,
		RootCause:  req.RootCause,
		ResolvedBy: req.ResolvedBy,
	})
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, c)
}

// CancelCrisis handles POST /crises/{id}/cancel.
func (h *Handler) CancelCrisis(w http.ResponseWriter, r *http.Request) {
	var req CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	c, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, c)
}

// MarkPartialResolution handles POST /crises/{id}/partial-resolution.
func (h *Handler) MarkPartialResolution(w http.ResponseWriter, r *http.Request) {
	var req PartialResolutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := MitigationInput{
		Steps:           req.Steps,
		RemainingIssues: req.RemainingIssues,
		RecordedBy:      httputil.GetUserID(r.Context()),
	}
	if req.EstimatedFullAt != nil {
		t, err := time.Parse(time.RFC3339, *req.EstimatedFullAt)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "estimated_full_at is unparseable")
			return
		}
		input.EstimatedFullAt = &t
	}

	c, err := h.service.MarkPartialResolution(r.Context(), chi.URLParam(r, "id"), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, c)
}

// EscalateToExecutive handles POST /crises/{id}/escalate.
func (h *Handler) EscalateToExecutive(w http.ResponseWriter, r *http.Request) {
	var req EscalateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	c, err := h.escalator.EscalateToExecutive(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, c)
}
