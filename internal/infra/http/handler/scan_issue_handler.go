package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seiforesti/data-wave-sub013/internal/app/triage"
	"github.com/seiforesti/data-wave-sub013/pkg/apierror"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanissue"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/validator"
)

// ScanIssueHandler handles HTTP requests for scan issues.
type ScanIssueHandler struct {
	service   *triage.Service
	validator *validator.Validator
	logger    *logger.Logger
}

// NewScanIssueHandler creates a new ScanIssueHandler.
func NewScanIssueHandler(service *triage.Service, v *validator.Validator, log *logger.Logger) *ScanIssueHandler {
	return &ScanIssueHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "scan_issue"),
	}
}

// UpdateScanIssueRequest represents the request body for updating an issue.
// Severity is set at detection and cannot be changed.
type UpdateScanIssueRequest struct {
	Type        *string `json:"type" validate:"omitempty,min=1,max=100"`
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
}

// AssignScanIssueRequest represents the request body for assigning an issue.
type AssignScanIssueRequest struct {
	Assignee string `json:"assignee" validate:"required,min=1,max=100"`
}

// ResolveScanIssueRequest represents the request body for resolving an issue.
type ResolveScanIssueRequest struct {
	ResolutionNotes string `json:"resolution_notes" validate:"omitempty,max=2000"`
}

// ScanIssueResponse represents the response for a scan issue.
type ScanIssueResponse struct {
	ID              string  `json:"id"`
	RunID           string  `json:"run_id"`
	ConfigurationID string  `json:"configuration_id"`
	Severity        string  `json:"severity"`
	Type            string  `json:"type"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	Status          string  `json:"status"`
	Assignee        string  `json:"assignee,omitempty"`
	ResolutionNotes string  `json:"resolution_notes,omitempty"`
	DetectedAt      string  `json:"detected_at"`
	ResolvedAt      *string `json:"resolved_at,omitempty"`
	UpdatedAt       string  `json:"updated_at"`
}

// Get handles GET /api/v1/scan-issues/{id}
func (h *ScanIssueHandler) Get(w http.ResponseWriter, r *http.Request) {
	issue, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanIssueResponse(issue))
}

// List handles GET /api/v1/scan-issues
// @Summary      List scan issues
// @Produce      json
// @Param        run_id            query     string  false  "Filter by run"
// @Param        configuration_id  query     string  false  "Filter by configuration"
// @Param        severity          query     string  false  "Filter by severity"
// @Param        type              query     string  false  "Filter by issue type"
// @Param        status            query     string  false  "Filter by status"
// @Param        from              query     string  false  "Detected at or after (RFC 3339)"
// @Param        to                query     string  false  "Detected before (RFC 3339)"
// @Param        page              query     int     false  "Page number" default(1)
// @Param        per_page          query     int     false  "Items per page" default(20)
// @Success      200  {object}  ListResponse[ScanIssueResponse]
// @Router       /scan-issues [get]
func (h *ScanIssueHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter scanissue.Filter

	if raw := r.URL.Query().Get("run_id"); raw != "" {
		id, err := shared.IDFromString(raw)
		if err != nil {
			apierror.BadRequest("Invalid run_id filter").WriteJSON(w)
			return
		}
		filter.RunID = &id
	}
	if raw := r.URL.Query().Get("configuration_id"); raw != "" {
		id, err := shared.IDFromString(raw)
		if err != nil {
			apierror.BadRequest("Invalid configuration_id filter").WriteJSON(w)
			return
		}
		filter.ConfigurationID = &id
	}
	if severity := r.URL.Query().Get("severity"); severity != "" {
		val := scanissue.Severity(severity)
		if !val.IsValid() {
			apierror.BadRequest("Invalid severity filter").WriteJSON(w)
			return
		}
		filter.Severity = &val
	}
	if status := r.URL.Query().Get("status"); status != "" {
		val := scanissue.Status(status)
		if !val.IsValid() {
			apierror.BadRequest("Invalid status filter").WriteJSON(w)
			return
		}
		filter.Status = &val
	}
	filter.Type = r.URL.Query().Get("type")
	filter.From = parseQueryTime(r.URL.Query().Get("from"))
	filter.To = parseQueryTime(r.URL.Query().Get("to"))

	result, err := h.service.List(r.Context(), filter, pageFromQuery(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newListResponse(result, toScanIssueResponse))
}

// Update handles PUT /api/v1/scan-issues/{id}
func (h *ScanIssueHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateScanIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	issue, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), triage.UpdateInput{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanIssueResponse(issue))
}

// Assign handles POST /api/v1/scan-issues/{id}/assign
func (h *ScanIssueHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignScanIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	issue, err := h.service.Assign(r.Context(), chi.URLParam(r, "id"), req.Assignee)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanIssueResponse(issue))
}

// Resolve handles POST /api/v1/scan-issues/{id}/resolve
func (h *ScanIssueHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveScanIssueRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apierror.BadRequest("Invalid request body").WriteJSON(w)
			return
		}
		if err := h.validator.Validate(req); err != nil {
			h.handleValidationError(w, err)
			return
		}
	}

	issue, err := h.service.Resolve(r.Context(), chi.URLParam(r, "id"), req.ResolutionNotes)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanIssueResponse(issue))
}

// toScanIssueResponse converts a domain issue to response format.
func toScanIssueResponse(issue *scanissue.ScanIssue) *ScanIssueResponse {
	return &ScanIssueResponse{
		ID:              issue.ID.String(),
		RunID:           issue.RunID.String(),
		ConfigurationID: issue.ConfigurationID.String(),
		Severity:        string(issue.Severity),
		Type:            issue.Type,
		Title:           issue.Title,
		Description:     issue.Description,
		Status:          string(issue.Status),
		Assignee:        issue.Assignee,
		ResolutionNotes: issue.ResolutionNotes,
		DetectedAt:      formatTime(issue.DetectedAt),
		ResolvedAt:      formatTimePtr(issue.ResolvedAt),
		UpdatedAt:       formatTime(issue.UpdatedAt),
	}
}

// handleValidationError converts validation errors to API errors.
func (h *ScanIssueHandler) handleValidationError(w http.ResponseWriter, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		apiErrors := make([]apierror.ValidationError, len(validationErrors))
		for i, ve := range validationErrors {
			apiErrors[i] = apierror.ValidationError{
				Field:   ve.Field,
				Message: ve.Message,
			}
		}
		apierror.ValidationFailed("Validation failed", apiErrors).WriteJSON(w)
		return
	}
	apierror.BadRequest("Validation error").WriteJSON(w)
}

// handleServiceError converts service errors to API errors.
func (h *ScanIssueHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		apierror.NotFound("Scan issue").WriteJSON(w)
	case errors.Is(err, shared.ErrConflict):
		apierror.Conflict(err.Error()).WriteJSON(w)
	case errors.Is(err, shared.ErrValidation):
		apierror.BadRequest(err.Error()).WriteJSON(w)
	case errors.Is(err, shared.ErrUnavailable):
		apierror.ServiceUnavailable("Storage temporarily unavailable").WriteJSON(w)
	default:
		h.logger.Error("service error", "error", err)
		apierror.InternalError(err).WriteJSON(w)
	}
}
