package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seiforesti/data-wave-sub013/internal/app/discovery"
	"github.com/seiforesti/data-wave-sub013/internal/app/run"
	"github.com/seiforesti/data-wave-sub013/internal/app/triage"
	"github.com/seiforesti/data-wave-sub013/pkg/apierror"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/validator"
)

// ExecutorCallbackHandler receives status reports from scan executors.
// Reports against runs that were cancelled in the meantime are
// acknowledged and dropped rather than rejected, so executors never
// need to special-case a lost race.
type ExecutorCallbackHandler struct {
	coordinator *run.Coordinator
	triage      *triage.Service
	discovery   *discovery.Service
	validator   *validator.Validator
	logger      *logger.Logger
}

// NewExecutorCallbackHandler creates a new ExecutorCallbackHandler.
func NewExecutorCallbackHandler(coordinator *run.Coordinator, triageSvc *triage.Service, discoverySvc *discovery.Service, v *validator.Validator, log *logger.Logger) *ExecutorCallbackHandler {
	return &ExecutorCallbackHandler{
		coordinator: coordinator,
		triage:      triageSvc,
		discovery:   discoverySvc,
		validator:   v,
		logger:      log.With("handler", "executor_callback"),
	}
}

// ProgressReportRequest is a progress update from the executor.
type ProgressReportRequest struct {
	Progress        int `json:"progress" validate:"min=0,max=100"`
	EntitiesScanned int `json:"entities_scanned" validate:"min=0"`
	IssuesFound     int `json:"issues_found" validate:"min=0"`
}

// IssueReportRequest is one issue detected during a scan.
type IssueReportRequest struct {
	Severity    string `json:"severity" validate:"required,severity"`
	Type        string `json:"type" validate:"required,min=1,max=100"`
	Title       string `json:"title" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=2000"`
}

// EntityReportRequest is one entity discovered during a scan.
type EntityReportRequest struct {
	EntityType      string   `json:"entity_type" validate:"required"`
	Name            string   `json:"name" validate:"required,min=1,max=255"`
	Path            string   `json:"path" validate:"max=1024"`
	Classifications []string `json:"classifications" validate:"max=50,dive,max=100"`
}

// CompleteReportRequest is the final report of a successful scan.
type CompleteReportRequest struct {
	EntitiesScanned int                   `json:"entities_scanned" validate:"min=0"`
	IssuesFound     int                   `json:"issues_found" validate:"min=0"`
	Issues          []IssueReportRequest  `json:"issues" validate:"max=10000,dive"`
	Entities        []EntityReportRequest `json:"entities" validate:"max=100000,dive"`
}

// FailReportRequest reports an executor-side failure.
type FailReportRequest struct {
	Error string `json:"error" validate:"required,min=1,max=2000"`
}

// Started handles POST /executor/runs/{id}/started
func (h *ExecutorCallbackHandler) Started(w http.ResponseWriter, r *http.Request) {
	scanRun, err := h.coordinator.HandleStarted(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanRunResponse(scanRun))
}

// Progress handles POST /executor/runs/{id}/progress
func (h *ExecutorCallbackHandler) Progress(w http.ResponseWriter, r *http.Request) {
	var req ProgressReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	scanRun, err := h.coordinator.HandleProgress(r.Context(), chi.URLParam(r, "id"), run.ProgressInput{
		Progress:        req.Progress,
		EntitiesScanned: req.EntitiesScanned,
		IssuesFound:     req.IssuesFound,
	})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanRunResponse(scanRun))
}

// Complete handles POST /executor/runs/{id}/complete
func (h *ExecutorCallbackHandler) Complete(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	var req CompleteReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	// Findings are stored before the run flips to completed, so a
	// client reading the terminal event sees them immediately.
	if len(req.Issues) > 0 {
		items := make([]triage.IngestItem, len(req.Issues))
		for i, issue := range req.Issues {
			items[i] = triage.IngestItem{
				Severity:    issue.Severity,
				Type:        issue.Type,
				Title:       issue.Title,
				Description: issue.Description,
			}
		}
		if _, err := h.triage.Ingest(r.Context(), runID, items); err != nil {
			h.handleServiceError(w, err)
			return
		}
	}
	if len(req.Entities) > 0 {
		items := make([]discovery.IngestItem, len(req.Entities))
		for i, entity := range req.Entities {
			items[i] = discovery.IngestItem{
				EntityType:      entity.EntityType,
				Name:            entity.Name,
				Path:            entity.Path,
				Classifications: entity.Classifications,
			}
		}
		if _, err := h.discovery.Ingest(r.Context(), runID, items); err != nil {
			h.handleServiceError(w, err)
			return
		}
	}

	scanRun, err := h.coordinator.HandleCompleted(r.Context(), runID, req.EntitiesScanned, req.IssuesFound)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanRunResponse(scanRun))
}

// Fail handles POST /executor/runs/{id}/fail
func (h *ExecutorCallbackHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var req FailReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	scanRun, err := h.coordinator.HandleFailed(r.Context(), chi.URLParam(r, "id"), req.Error)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanRunResponse(scanRun))
}

// handleValidationError converts validation errors to API errors.
func (h *ExecutorCallbackHandler) handleValidationError(w http.ResponseWriter, err error) {
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
func (h *ExecutorCallbackHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		apierror.NotFound("Scan run").WriteJSON(w)
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
