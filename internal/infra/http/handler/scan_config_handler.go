package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/seiforesti/data-wave-sub013/internal/app/bulk"
	"github.com/seiforesti/data-wave-sub013/internal/app/run"
	appscanconfig "github.com/seiforesti/data-wave-sub013/internal/app/scanconfig"
	"github.com/seiforesti/data-wave-sub013/pkg/apierror"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanconfig"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/validator"
)

// ScanConfigHandler handles HTTP requests for scan configurations.
type ScanConfigHandler struct {
	service     *appscanconfig.Service
	coordinator *run.Coordinator
	bulk        *bulk.Service
	validator   *validator.Validator
	logger      *logger.Logger
}

// NewScanConfigHandler creates a new ScanConfigHandler.
func NewScanConfigHandler(service *appscanconfig.Service, coordinator *run.Coordinator, bulkSvc *bulk.Service, v *validator.Validator, log *logger.Logger) *ScanConfigHandler {
	return &ScanConfigHandler{
		service:     service,
		coordinator: coordinator,
		bulk:        bulkSvc,
		validator:   v,
		logger:      log.With("handler", "scan_config"),
	}
}

// ScopeRequest selects what a run covers. Empty selectors mean everything.
type ScopeRequest struct {
	Databases []string `json:"databases,omitempty" validate:"max=100,dive,max=255"`
	Schemas   []string `json:"schemas,omitempty" validate:"max=500,dive,max=255"`
	Tables    []string `json:"tables,omitempty" validate:"max=2000,dive,max=255"`
}

// SettingsRequest carries the executor knobs.
type SettingsRequest struct {
	EnablePIIDetection   bool `json:"enable_pii_detection"`
	EnableClassification bool `json:"enable_classification"`
	EnableLineage        bool `json:"enable_lineage"`
	EnableQuality        bool `json:"enable_quality"`
	SampleSize           int  `json:"sample_size" validate:"omitempty,min=1,max=1000000"`
	Parallelism          int  `json:"parallelism" validate:"omitempty,min=1,max=64"`
}

// CreateScanConfigRequest represents the request body for creating a scan configuration.
type CreateScanConfigRequest struct {
	Name              string           `json:"name" validate:"required,min=1,max=100"`
	Description       string           `json:"description" validate:"max=500"`
	DataSourceID      int64            `json:"data_source_id" validate:"required,min=1"`
	ScanType          string           `json:"scan_type" validate:"required,scan_type"`
	Scope             *ScopeRequest    `json:"scope,omitempty"`
	Settings          *SettingsRequest `json:"settings,omitempty"`
	ConcurrencyPolicy string           `json:"concurrency_policy" validate:"omitempty,concurrency_policy"`
	ScheduleCron      string           `json:"schedule_cron" validate:"omitempty,cron_expr"`
	ScheduleTimezone  string           `json:"schedule_timezone" validate:"omitempty,max=64"`
	ScheduleEnabled   bool             `json:"schedule_enabled"`
	CreatedBy         string           `json:"created_by" validate:"omitempty,max=100"`
}

// UpdateScanConfigRequest represents the request body for updating a scan
// configuration. Absent fields are left unchanged; revision is required
// for optimistic concurrency.
type UpdateScanConfigRequest struct {
	Name              *string          `json:"name" validate:"omitempty,min=1,max=100"`
	Description       *string          `json:"description" validate:"omitempty,max=500"`
	ScanType          *string          `json:"scan_type" validate:"omitempty,scan_type"`
	Scope             *ScopeRequest    `json:"scope,omitempty"`
	Settings          *SettingsRequest `json:"settings,omitempty"`
	ConcurrencyPolicy *string          `json:"concurrency_policy" validate:"omitempty,concurrency_policy"`
	ScheduleCron      *string          `json:"schedule_cron" validate:"omitempty,cron_expr"`
	ScheduleTimezone  *string          `json:"schedule_timezone" validate:"omitempty,max=64"`
	ScheduleEnabled   *bool            `json:"schedule_enabled"`
	Revision          int64            `json:"revision" validate:"min=0"`
}

// CloneScanConfigRequest represents the request body for cloning a scan configuration.
type CloneScanConfigRequest struct {
	NewName string `json:"new_name" validate:"required,min=1,max=100"`
}

// TriggerRunRequest represents the request body for triggering a manual run.
type TriggerRunRequest struct {
	TriggeredBy string `json:"triggered_by" validate:"omitempty,max=100"`
}

// BulkUpdateRequest represents the request body for updating several
// configurations in one call.
type BulkUpdateRequest struct {
	Items []BulkUpdateItem `json:"items" validate:"required,min=1,max=100,dive"`
}

// BulkUpdateItem pairs a configuration ID with its patch.
type BulkUpdateItem struct {
	ID    string                  `json:"id" validate:"required"`
	Patch UpdateScanConfigRequest `json:"patch"`
}

// ScheduleResponse represents schedule state in responses.
type ScheduleResponse struct {
	Enabled   bool    `json:"enabled"`
	Cron      string  `json:"cron,omitempty"`
	Timezone  string  `json:"timezone,omitempty"`
	NextRunAt *string `json:"next_run_at,omitempty"`
}

// ScanConfigResponse represents the response for a scan configuration.
type ScanConfigResponse struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Description       string            `json:"description,omitempty"`
	DataSourceID      int64             `json:"data_source_id"`
	ScanType          string            `json:"scan_type"`
	Scope             ScopeRequest      `json:"scope"`
	Settings          SettingsRequest   `json:"settings"`
	Schedule          *ScheduleResponse `json:"schedule,omitempty"`
	ConcurrencyPolicy string            `json:"concurrency_policy"`
	Status            string            `json:"status"`
	Revision          int64             `json:"revision"`
	LastRunID         *string           `json:"last_run_id,omitempty"`
	LastRunAt         *string           `json:"last_run_at,omitempty"`
	LastRunStatus     string            `json:"last_run_status,omitempty"`
	TotalRuns         int               `json:"total_runs"`
	SuccessfulRuns    int               `json:"successful_runs"`
	FailedRuns        int               `json:"failed_runs"`
	CreatedBy         string            `json:"created_by,omitempty"`
	CreatedAt         string            `json:"created_at"`
	UpdatedAt         string            `json:"updated_at"`
}

// BulkResultResponse represents the outcome of a bulk operation.
type BulkResultResponse struct {
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Items     []bulk.ItemOutcome `json:"items"`
}

// Create handles POST /api/v1/scan-configurations
// @Summary      Create scan configuration
// @Description  Create a new scan configuration for a data source
// @Tags         Scan Configurations
// @Accept       json
// @Produce      json
// @Param        body  body      CreateScanConfigRequest  true  "Scan configuration data"
// @Success      201   {object}  ScanConfigResponse
// @Failure      400   {object}  apierror.Error
// @Failure      409   {object}  apierror.Error
// @Failure      500   {object}  apierror.Error
// @Router       /scan-configurations [post]
func (h *ScanConfigHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateScanConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	input := appscanconfig.CreateInput{
		Name:              req.Name,
		Description:       req.Description,
		DataSourceID:      req.DataSourceID,
		ScanType:          req.ScanType,
		ConcurrencyPolicy: req.ConcurrencyPolicy,
		ScheduleCron:      req.ScheduleCron,
		ScheduleTimezone:  req.ScheduleTimezone,
		ScheduleEnabled:   req.ScheduleEnabled,
		CreatedBy:         req.CreatedBy,
	}
	if req.Scope != nil {
		input.Scope = toScopeDomain(*req.Scope)
	}
	if req.Settings != nil {
		input.Settings = toSettingsDomain(*req.Settings)
	}

	cfg, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toScanConfigResponse(cfg))
}

// Get handles GET /api/v1/scan-configurations/{id}
// @Summary      Get scan configuration
// @Tags         Scan Configurations
// @Produce      json
// @Param        id   path      string  true  "Scan Configuration ID"
// @Success      200  {object}  ScanConfigResponse
// @Failure      404  {object}  apierror.Error
// @Router       /scan-configurations/{id} [get]
func (h *ScanConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanConfigResponse(cfg))
}

// List handles GET /api/v1/scan-configurations
// @Summary      List scan configurations
// @Produce      json
// @Param        data_source_id  query     int     false  "Filter by data source"
// @Param        status          query     string  false  "Filter by status"
// @Param        scan_type       query     string  false  "Filter by scan type"
// @Param        search          query     string  false  "Search by name or description"
// @Param        page            query     int     false  "Page number" default(1)
// @Param        per_page        query     int     false  "Items per page" default(20)
// @Success      200  {object}  ListResponse[ScanConfigResponse]
// @Router       /scan-configurations [get]
func (h *ScanConfigHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter scanconfig.Filter

	filter.DataSourceID = parseQueryInt64(r.URL.Query().Get("data_source_id"))
	filter.Search = r.URL.Query().Get("search")

	if status := r.URL.Query().Get("status"); status != "" {
		val := scanconfig.Status(status)
		if !val.IsValid() {
			apierror.BadRequest("Invalid status filter").WriteJSON(w)
			return
		}
		filter.Status = &val
	}
	if scanType := r.URL.Query().Get("scan_type"); scanType != "" {
		val := scanconfig.ScanType(scanType)
		if !val.IsValid() {
			apierror.BadRequest("Invalid scan_type filter").WriteJSON(w)
			return
		}
		filter.ScanType = &val
	}

	result, err := h.service.List(r.Context(), filter, pageFromQuery(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newListResponse(result, toScanConfigResponse))
}

// Stats handles GET /api/v1/scan-configurations/stats
// @Summary      Scan configuration counts by status
// @Produce      json
// @Success      200  {object}  scanconfig.Stats
// @Router       /scan-configurations/stats [get]
func (h *ScanConfigHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Update handles PUT /api/v1/scan-configurations/{id}
// @Summary      Update scan configuration
// @Description  Apply a partial update under optimistic concurrency
// @Tags         Scan Configurations
// @Accept       json
// @Produce      json
// @Param        id    path      string                   true  "Scan Configuration ID"
// @Param        body  body      UpdateScanConfigRequest  true  "Update data"
// @Success      200   {object}  ScanConfigResponse
// @Failure      400   {object}  apierror.Error
// @Failure      404   {object}  apierror.Error
// @Failure      409   {object}  apierror.Error
// @Router       /scan-configurations/{id} [put]
func (h *ScanConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateScanConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	cfg, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), toUpdateInput(req))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanConfigResponse(cfg))
}

// Delete handles DELETE /api/v1/scan-configurations/{id}
// @Summary      Archive scan configuration
// @Description  Archive a configuration; refused while runs are active
// @Tags         Scan Configurations
// @Param        id   path  string  true  "Scan Configuration ID"
// @Success      204  "No Content"
// @Failure      404  {object}  apierror.Error
// @Failure      409  {object}  apierror.Error
// @Router       /scan-configurations/{id} [delete]
func (h *ScanConfigHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Clone handles POST /api/v1/scan-configurations/{id}/clone
// @Summary      Clone scan configuration
// @Tags         Scan Configurations
// @Accept       json
// @Produce      json
// @Param        id    path      string                  true  "Scan Configuration ID to clone"
// @Param        body  body      CloneScanConfigRequest  true  "Clone data"
// @Success      201   {object}  ScanConfigResponse
// @Failure      404   {object}  apierror.Error
// @Failure      409   {object}  apierror.Error
// @Router       /scan-configurations/{id}/clone [post]
func (h *ScanConfigHandler) Clone(w http.ResponseWriter, r *http.Request) {
	var req CloneScanConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	cfg, err := h.service.Clone(r.Context(), chi.URLParam(r, "id"), req.NewName)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toScanConfigResponse(cfg))
}

// EnableSchedule handles POST /api/v1/scan-configurations/{id}/schedule/enable
func (h *ScanConfigHandler) EnableSchedule(w http.ResponseWriter, r *http.Request) {
	h.setScheduleEnabled(w, r, true)
}

// DisableSchedule handles POST /api/v1/scan-configurations/{id}/schedule/disable
func (h *ScanConfigHandler) DisableSchedule(w http.ResponseWriter, r *http.Request) {
	h.setScheduleEnabled(w, r, false)
}

func (h *ScanConfigHandler) setScheduleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	cfg, err := h.service.SetScheduleEnabled(r.Context(), chi.URLParam(r, "id"), enabled)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanConfigResponse(cfg))
}

// Pause handles POST /api/v1/scan-configurations/{id}/pause
func (h *ScanConfigHandler) Pause(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanConfigResponse(cfg))
}

// Activate handles POST /api/v1/scan-configurations/{id}/activate
func (h *ScanConfigHandler) Activate(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.service.Activate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toScanConfigResponse(cfg))
}

// TriggerRun handles POST /api/v1/scan-configurations/{id}/runs
// @Summary      Trigger manual run
// @Description  Start a run now, subject to the configuration's concurrency policy
// @Tags         Scan Configurations
// @Accept       json
// @Produce      json
// @Param        id    path      string             true   "Scan Configuration ID"
// @Param        body  body      TriggerRunRequest  false  "Trigger data"
// @Success      202   {object}  ScanRunResponse
// @Failure      404   {object}  apierror.Error
// @Failure      409   {object}  apierror.Error
// @Router       /scan-configurations/{id}/runs [post]
func (h *ScanConfigHandler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req TriggerRunRequest
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

	scanRun, err := h.coordinator.Trigger(r.Context(), chi.URLParam(r, "id"), scanrun.TriggerManual, req.TriggeredBy)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, toScanRunResponse(scanRun))
}

// ListRuns handles GET /api/v1/scan-configurations/{id}/runs
func (h *ScanConfigHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	cfgID, err := shared.IDFromString(chi.URLParam(r, "id"))
	if err != nil {
		apierror.BadRequest("Invalid configuration ID").WriteJSON(w)
		return
	}

	filter := scanrun.Filter{ConfigurationID: &cfgID}
	if status := r.URL.Query().Get("status"); status != "" {
		val := scanrun.Status(status)
		if !val.IsValid() {
			apierror.BadRequest("Invalid status filter").WriteJSON(w)
			return
		}
		filter.Status = &val
	}

	result, err := h.coordinator.List(r.Context(), filter, pageFromQuery(r))
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newListResponse(result, toScanRunResponse))
}

// BulkUpdate handles POST /api/v1/scan-configurations/bulk-update
// @Summary      Bulk update scan configurations
// @Description  Apply patches to several configurations; per-item outcomes are reported
// @Tags         Scan Configurations
// @Accept       json
// @Produce      json
// @Param        body  body      BulkUpdateRequest  true  "Patches"
// @Success      200   {object}  BulkResultResponse
// @Failure      400   {object}  apierror.Error
// @Router       /scan-configurations/bulk-update [post]
func (h *ScanConfigHandler) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req BulkUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierror.BadRequest("Invalid request body").WriteJSON(w)
		return
	}

	if err := h.validator.Validate(req); err != nil {
		h.handleValidationError(w, err)
		return
	}

	patches := make([]bulk.ConfigPatch, len(req.Items))
	for i, item := range req.Items {
		patches[i] = bulk.ConfigPatch{
			ID:    item.ID,
			Patch: toUpdateInput(item.Patch),
		}
	}

	result, err := h.bulk.UpdateConfigurations(r.Context(), patches)
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

func toScopeDomain(req ScopeRequest) scanconfig.Scope {
	return scanconfig.Scope{
		Databases: req.Databases,
		Schemas:   req.Schemas,
		Tables:    req.Tables,
	}
}

func toSettingsDomain(req SettingsRequest) scanconfig.Settings {
	return scanconfig.Settings{
		EnablePIIDetection:   req.EnablePIIDetection,
		EnableClassification: req.EnableClassification,
		EnableLineage:        req.EnableLineage,
		EnableQuality:        req.EnableQuality,
		SampleSize:           req.SampleSize,
		Parallelism:          req.Parallelism,
	}
}

func toUpdateInput(req UpdateScanConfigRequest) appscanconfig.UpdateInput {
	input := appscanconfig.UpdateInput{
		Name:              req.Name,
		Description:       req.Description,
		ScanType:          req.ScanType,
		ConcurrencyPolicy: req.ConcurrencyPolicy,
		ScheduleCron:      req.ScheduleCron,
		ScheduleTimezone:  req.ScheduleTimezone,
		ScheduleEnabled:   req.ScheduleEnabled,
		Revision:          req.Revision,
	}
	if req.Scope != nil {
		scope := toScopeDomain(*req.Scope)
		input.Scope = &scope
	}
	if req.Settings != nil {
		settings := toSettingsDomain(*req.Settings)
		input.Settings = &settings
	}
	return input
}

// toScanConfigResponse converts a domain configuration to response format.
func toScanConfigResponse(cfg *scanconfig.ScanConfiguration) *ScanConfigResponse {
	resp := &ScanConfigResponse{
		ID:           cfg.ID.String(),
		Name:         cfg.Name,
		Description:  cfg.Description,
		DataSourceID: cfg.DataSourceID,
		ScanType:     string(cfg.ScanType),
		Scope: ScopeRequest{
			Databases: cfg.Scope.Databases,
			Schemas:   cfg.Scope.Schemas,
			Tables:    cfg.Scope.Tables,
		},
		Settings: SettingsRequest{
			EnablePIIDetection:   cfg.Settings.EnablePIIDetection,
			EnableClassification: cfg.Settings.EnableClassification,
			EnableLineage:        cfg.Settings.EnableLineage,
			EnableQuality:        cfg.Settings.EnableQuality,
			SampleSize:           cfg.Settings.SampleSize,
			Parallelism:          cfg.Settings.Parallelism,
		},
		ConcurrencyPolicy: string(cfg.ConcurrencyPolicy),
		Status:            string(cfg.Status),
		Revision:          cfg.Revision,
		LastRunStatus:     cfg.LastRunStatus,
		TotalRuns:         cfg.TotalRuns,
		SuccessfulRuns:    cfg.SuccessfulRuns,
		FailedRuns:        cfg.FailedRuns,
		CreatedBy:         cfg.CreatedBy,
		CreatedAt:         formatTime(cfg.CreatedAt),
		UpdatedAt:         formatTime(cfg.UpdatedAt),
	}

	if cfg.Schedule != nil {
		resp.Schedule = &ScheduleResponse{
			Enabled:   cfg.Schedule.Enabled,
			Cron:      cfg.Schedule.Cron,
			Timezone:  cfg.Schedule.Timezone,
			NextRunAt: formatTimePtr(cfg.Schedule.NextRunAt),
		}
	}
	if cfg.LastRunID != nil {
		id := cfg.LastRunID.String()
		resp.LastRunID = &id
	}
	resp.LastRunAt = formatTimePtr(cfg.LastRunAt)

	return resp
}

// handleValidationError converts validation errors to API errors.
func (h *ScanConfigHandler) handleValidationError(w http.ResponseWriter, err error) {
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
func (h *ScanConfigHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		apierror.NotFound("Scan configuration").WriteJSON(w)
	case errors.Is(err, shared.ErrAlreadyExists):
		apierror.Conflict("Scan configuration already exists").WriteJSON(w)
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
