package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seiforesti/data-wave-sub013/internal/app/bulk"
	"github.com/seiforesti/data-wave-sub013/internal/app/discovery"
	"github.com/seiforesti/data-wave-sub013/internal/app/run"
	"github.com/seiforesti/data-wave-sub013/internal/app/stream"
	"github.com/seiforesti/data-wave-sub013/internal/app/triage"
	"github.com/seiforesti/data-wave-sub013/pkg/apierror"
	domdiscovery "github.com/seiforesti/data-wave-sub013/pkg/domain/discovery"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanissue"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/validator"
)

// ScanRunHandler handles HTTP requests for scan runs.
type ScanRunHandler struct {
	coordinator *run.Coordinator
	triage      *triage.Service
	discovery   *discovery.Service
	bulk        *bulk.Service
	stream      *stream.Stream
	validator   *validator.Validator
	logger      *logger.Logger
}

// NewScanRunHandler creates a new ScanRunHandler.
func NewScanRunHandler(coordinator *run.Coordinator, triageSvc *triage.Service, discoverySvc *discovery.Service, bulkSvc *bulk.Service, st *stream.Stream, v *validator.Validator, log *logger.Logger) *ScanRunHandler {
	return &ScanRunHandler{
		coordinator: coordinator,
		triage:      triageSvc,
		discovery:   discoverySvc,
		bulk:        bulkSvc,
		stream:      st,
		validator:   v,
		logger:      log.With("handler", "scan_run"),
	}
}

// BulkCancelRequest represents the request body for cancelling several runs.
type BulkCancelRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,required"`
}

// ScanRunResponse represents the response for a scan run.
type ScanRunResponse struct {
	ID              string  `json:"id"`
	ConfigurationID string  `json:"configuration_id"`
	Name            string  `json:"name,omitempty"`
	TriggerType     string  `json:"trigger_type"`
	TriggeredBy     string  `json:"triggered_by,omitempty"`
	Status          string  `json:"status"`
	Progress        int     `json:"progress"`
	ErrorSummary    string  `json:"error_summary,omitempty"`
	EntitiesScanned int     `json:"entities_scanned"`
	IssuesFound     int     `json:"issues_found"`
	StartedAt       *string `json:"started_at,omitempty"`
	CompletedAt     *string `json:"completed_at,omitempty"`
	DurationMS      int64   `json:"duration_ms"`
	LastProgressAt  string  `json:"last_progress_at"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// RunResultsResponse summarizes the outcome of a run.
type RunResultsResponse struct {
	Run              *ScanRunResponse `json:"run"`
	IssuesBySeverity map[string]int64 `json:"issues_by_severity"`
	TotalIssues      int64            `json:"total_issues"`
}

// DiscoveredEntityResponse represents one discovered entity.
type DiscoveredEntityResponse struct {
	ID              string   `json:"id"`
	RunID           string   `json:"run_id"`
	EntityType      string   `json:"entity_type"`
	Name            string   `json:"name"`
	Path            string   `json:"path,omitempty"`
	Classifications []string `json:"classifications,omitempty"`
	DiscoveredAt    string   `json:"discovered_at"`
}

// Get handles GET /api/v1/scan-runs/{id}
// @Summary      Get scan run
// @Tags         Scan Runs
// @Produce      json
// @Param        id   path      string  true  "Scan Run ID"
// @Success      200  {object}  ScanRunResponse
// @Failure      404  {object}  apierror.Error
// @Router       /scan-runs/{id} [get]
func (h *ScanRunHandler) Get(w http.ResponseWriter, r *http.Request) {
	scanRun, err := h.coordinator.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanRunResponse(scanRun))
}

// List handles GET /api/v1/scan-runs
// @Summary      List scan runs
// @Produce      json
// @Param        configuration_id  query     string  false  "Filter by configuration"
// @Param        status            query     string  false  "Filter by status"
// @Param        trigger_type      query     string  false  "Filter by trigger type"
// @Param        from              query     string  false  "Created at or after (RFC 3339)"
// @Param        to                query     string  false  "Created before (RFC 3339)"
// @Param        page              query     int     false  "Page number" default(1)
// @Param        per_page          query     int     false  "Items per page" default(20)
// @Success      200  {object}  ListResponse[ScanRunResponse]
// @Router       /scan-runs [get]
func (h *ScanRunHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter scanrun.Filter

	if raw := r.URL.Query().Get("configuration_id"); raw != "" {
		id, err := shared.IDFromString(raw)
		if err != nil {
			apierror.BadRequest("Invalid configuration_id filter").WriteJSON(w)
			return
		}
		filter.ConfigurationID = &id
	}
	if status := r.URL.Query().Get("status"); status != "" {
		val := scanrun.Status(status)
		if !val.IsValid() {
			apierror.BadRequest("Invalid status filter").WriteJSON(w)
			return
		}
		filter.Status = &val
	}
	if trigger := r.URL.Query().Get("trigger_type"); trigger != "" {
		val := scanrun.TriggerType(trigger)
		if !val.IsValid() {
			apierror.BadRequest("Invalid trigger_type filter").WriteJSON(w)
			return
		}
		filter.TriggerType = &val
	}
	filter.From = parseQueryTime(r.URL.Query().Get("from"))
	filter.To = parseQueryTime(r.URL.Query().Get("to"))

	result, err := h.coordinator.List(r.Context(), filter, pageFromQuery(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newListResponse(result, toScanRunResponse))
}

// Cancel handles POST /api/v1/scan-runs/{id}/cancel
// @Summary      Cancel scan run
// @Description  Cancel a pending or running scan. Cancelling an already
// @Description  cancelled run is a no-op; completed and failed runs conflict.
// @Tags         Scan Runs
// @Produce      json
// @Param        id   path      string  true  "Scan Run ID"
// @Success      200  {object}  ScanRunResponse
// @Failure      404  {object}  apierror.Error
// @Failure      409  {object}  apierror.Error
// @Router       /scan-runs/{id}/cancel [post]
func (h *ScanRunHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	scanRun, err := h.coordinator.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanRunResponse(scanRun))
}

// BulkCancel handles POST /api/v1/scan-runs/bulk-cancel
// @Summary      Bulk cancel scan runs
// @Description  Cancel several runs; runs already in a terminal state count as succeeded
// @Tags         Scan Runs
// @Accept       json
// @Produce      json
// @Param        body  body      BulkCancelRequest  true  "Run IDs"
// @Success      200   {object}  BulkResultResponse
// @Failure      400   {object}  apierror.Error
// @Router       /scan-runs/bulk-cancel [post]
func (h *ScanRunHandler) BulkCancel(w http.ResponseWriter, r *http.Request) {
	var req BulkCancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	result, err := h.bulk.CancelRuns(r.Context(), req.IDs)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BulkResultResponse{
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Items:     result.Items,
	})
}

// Results handles GET /api/v1/scan-runs/{id}/results
// @Summary      Scan run results summary
// @Tags         Scan Runs
// @Produce      json
// @Param        id   path      string  true  "Scan Run ID"
// @Success      200  {object}  RunResultsResponse
// @Failure      404  {object}  apierror.Error
// @Router       /scan-runs/{id}/results [get]
func (h *ScanRunHandler) Results(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	scanRun, err := h.coordinator.Get(r.Context(), runID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	counts, err := h.triage.CountBySeverity(r.Context(), scanissue.Filter{RunID: &scanRun.ID})
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	bySeverity := make(map[string]int64, len(scanissue.AllSeverities()))
	var total int64
	for _, sev := range scanissue.AllSeverities() {
		bySeverity[string(sev)] = counts[sev]
		total += counts[sev]
	}

	writeJSON(w, http.StatusOK, RunResultsResponse{
		Run:              toScanRunResponse(scanRun),
		IssuesBySeverity: bySeverity,
		TotalIssues:      total,
	})
}

// Entities handles GET /api/v1/scan-runs/{id}/entities
// @Summary      Entities discovered by a run
// @Tags         Scan Runs
// @Produce      json
// @Param        id        path      string  true   "Scan Run ID"
// @Param        page      query     int     false  "Page number" default(1)
// @Param        per_page  query     int     false  "Items per page" default(20)
// @Success      200  {object}  ListResponse[DiscoveredEntityResponse]
// @Failure      404  {object}  apierror.Error
// @Router       /scan-runs/{id}/entities [get]
func (h *ScanRunHandler) Entities(w http.ResponseWriter, r *http.Request) {
	result, err := h.discovery.ListByRun(r.Context(), chi.URLParam(r, "id"), pageFromQuery(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newListResponse(result, toDiscoveredEntityResponse))
}

// RunLogsResponse carries the buffered event history for one run,
// oldest first.
type RunLogsResponse struct {
	RunID  string         `json:"run_id"`
	Events []stream.Event `json:"events"`
}

// Logs handles GET /api/v1/scan-runs/{id}/logs
// @Summary      Scan run event log
// @Description  Returns the buffered lifecycle events for a run, oldest
// @Description  first. The buffer holds recent events only; older history
// @Description  ages out as new events arrive.
// @Tags         Scan Runs
// @Produce      json
// @Param        id   path      string  true  "Scan Run ID"
// @Success      200  {object}  RunLogsResponse
// @Failure      404  {object}  apierror.Error
// @Router       /scan-runs/{id}/logs [get]
func (h *ScanRunHandler) Logs(w http.ResponseWriter, r *http.Request) {
	scanRun, err := h.coordinator.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	runID := scanRun.ID.String()
	writeJSON(w, http.StatusOK, RunLogsResponse{
		RunID:  runID,
		Events: h.stream.SnapshotRun(runID),
	})
}

// Issues handles GET /api/v1/scan-runs/{id}/issues
// @Summary      Issues detected by a run
// @Tags         Scan Runs
// @Produce      json
// @Param        id        path      string  true   "Scan Run ID"
// @Param        page      query     int     false  "Page number" default(1)
// @Param        per_page  query     int     false  "Items per page" default(20)
// @Success      200  {object}  ListResponse[ScanIssueResponse]
// @Failure      404  {object}  apierror.Error
// @Router       /scan-runs/{id}/issues [get]
func (h *ScanRunHandler) Issues(w http.ResponseWriter, r *http.Request) {
	runID, err := shared.IDFromString(chi.URLParam(r, "id"))
	if err != nil {
		apierror.BadRequest("Invalid run ID").WriteJSON(w)
		return
	}

	result, err := h.triage.List(r.Context(), scanissue.Filter{RunID: &runID}, pageFromQuery(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newListResponse(result, toScanIssueResponse))
}

// toScanRunResponse converts a domain run to response format.
func toScanRunResponse(r *scanrun.ScanRun) *ScanRunResponse {
	return &ScanRunResponse{
		ID:              r.ID.String(),
		ConfigurationID: r.ConfigurationID.String(),
		Name:            r.Name,
		TriggerType:     string(r.TriggerType),
		TriggeredBy:     r.TriggeredBy,
		Status:          string(r.Status),
		Progress:        r.Progress,
		ErrorSummary:    r.ErrorSummary,
		EntitiesScanned: r.EntitiesScanned,
		IssuesFound:     r.IssuesFound,
		StartedAt:       formatTimePtr(r.StartedAt),
		CompletedAt:     formatTimePtr(r.CompletedAt),
		DurationMS:      r.Duration.Milliseconds(),
		LastProgressAt:  formatTime(r.LastProgressAt),
		CreatedAt:       formatTime(r.CreatedAt),
		UpdatedAt:       formatTime(r.UpdatedAt),
	}
}

// toDiscoveredEntityResponse converts a domain entity to response format.
func toDiscoveredEntityResponse(e *domdiscovery.DiscoveredEntity) *DiscoveredEntityResponse {
	return &DiscoveredEntityResponse{
		ID:              e.ID.String(),
		RunID:           e.RunID.String(),
		EntityType:      string(e.EntityType),
		Name:            e.Name,
		Path:            e.Path,
		Classifications: e.Classifications,
		DiscoveredAt:    formatTime(e.DiscoveredAt),
	}
}

// handleValidationError converts validation errors to API errors.
func (h *ScanRunHandler) handleValidationError(w http.ResponseWriter, err error) {
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
func (h *ScanRunHandler) handleServiceError(w http.ResponseWriter, err error) {
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
