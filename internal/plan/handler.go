package plan

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/crisis-command/internal/crisis"
	"github.com/bissquit/crisis-command/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var errorMappings = []httputil.ErrorMapping{
	{Error: ErrPlanNotFound, Status: http.StatusNotFound},
	{Error: ErrActionNotFound, Status: http.StatusNotFound},
	{Error: crisis.ErrCrisisNotFound, Status: http.StatusNotFound},
	{Error: ErrPlanAlreadyActive, Status: http.StatusConflict},
	{Error: ErrPlanCompleted, Status: http.StatusConflict},
	{Error: ErrActionBlocked, Status: http.StatusConflict},
	{Error: ErrActionCompleted, Status: http.StatusConflict},
	{Error: ErrActionNotStarted, Status: http.StatusConflict},
	{Error: ErrCrisisTerminal, Status: http.StatusConflict},
	{Error: ErrMissingAssignee, Status: http.StatusBadRequest},
}

// Handler handles HTTP requests for response plans.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new plan handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterViewerRoutes registers read-only plan routes.
func (h *Handler) RegisterViewerRoutes(r chi.Router) {
	r.Get("/crises/{crisisID}/plans", h.ListPlans)
	r.Get("/crises/{crisisID}/plans/active", h.GetActivePlan)
	r.Get("/plans/{id}", h.GetPlan)
}

// RegisterOperatorRoutes registers mutating plan routes.
func (h *Handler) RegisterOperatorRoutes(r chi.Router) {
	r.Post("/crises/{crisisID}/plans", h.CreatePlan)
	r.Post("/plans/{id}/actions/{actionID}/execute", h.ExecuteAction)
	r.Post("/plans/{id}/actions/{actionID}/complete", h.CompleteAction)
	r.Post("/plans/{id}/actions/{actionID}/fail", h.ReportActionFailure)
}

// ExecuteActionRequest represents the request body for starting an action.
type ExecuteActionRequest struct {
	Assignee string `json:"assignee" validate:"required"`
}

// CompleteActionRequest represents the request body for completing an action.
type CompleteActionRequest struct {
	Notes string `json:"notes,omitempty"`
}

// ReportFailureRequest represents an action execution failure report.
type ReportFailureRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// CreatePlan handles POST /crises/{crisisID}/plans.
func (h *Handler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Create(r.Context(), chi.URLParam(r, "crisisID"), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusCreated, p)
}

// ListPlans handles GET /crises/{crisisID}/plans.
func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.service.ListByCrisis(r.Context(), chi.URLParam(r, "crisisID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, plans)
}

// GetActivePlan handles GET /crises/{crisisID}/plans/active.
func (h *Handler) GetActivePlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetActiveByCrisis(r.Context(), chi.URLParam(r, "crisisID"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, p)
}

// GetPlan handles GET /plans/{id}.
func (h *Handler) GetPlan(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, p)
}

// ExecuteAction handles POST /plans/{id}/actions/{actionID}/execute.
func (h *Handler) ExecuteAction(w http.ResponseWriter, r *http.Request) {
	var req ExecuteActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	p, err := h.service.ExecuteAction(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "actionID"), req.Assignee)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, p)
}

// CompleteAction handles POST /plans/{id}/actions/{actionID}/complete.
func (h *Handler) CompleteAction(w http.ResponseWriter, r *http.Request) {
	var req CompleteActionRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Error(w, http.StatusBadRequest, "invalid json")
			return
		}
	}

	p, err := h.service.CompleteAction(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "actionID"), req.Notes, httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, p)
}

// ReportActionFailure handles POST /plans/{id}/actions/{actionID}/fail.
func (h *Handler) ReportActionFailure(w http.ResponseWriter, r *http.Request) {
	var req ReportFailureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	failures, err := h.service.ReportActionFailure(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "actionID"), req.Reason)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	httputil.Success(w, http.StatusOK, map[string]int{"failed_actions": failures})
}
