package handler

import (
	"errors"
	"net/http"

	"github.com/seiforesti/data-wave-sub013/internal/app/stats"
	"github.com/seiforesti/data-wave-sub013/pkg/apierror"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// StatsHandler serves aggregated scan metrics.
type StatsHandler struct {
	service *stats.Service
	logger  *logger.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(service *stats.Service, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		service: service,
		logger:  log.With("handler", "stats"),
	}
}

// Summary handles GET /api/v1/scan-metrics/summary
// @Summary      Scan metrics summary
// @Description  Aggregate run and issue counts over a time window (default last 24h)
// @Tags         Scan Metrics
// @Produce      json
// @Param        from            query     string  false  "Window start (RFC 3339)"
// @Param        to              query     string  false  "Window end (RFC 3339)"
// @Param        data_source_id  query     int     false  "Restrict to one data source"
// @Success      200   {object}  stats.Summary
// @Failure      500   {object}  apierror.Error
// @Router       /scan-metrics/summary [get]
func (h *StatsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	var window stats.Window
	if t := parseQueryTime(r.URL.Query().Get("from")); t != nil {
		window.From = *t
	}
	if t := parseQueryTime(r.URL.Query().Get("to")); t != nil {
		window.To = *t
	}
	if !window.From.IsZero() && !window.To.IsZero() && window.To.Before(window.From) {
		apierror.BadRequest("to must not be before from").WriteJSON(w)
		return
	}
	window.DataSourceID = parseQueryInt64(r.URL.Query().Get("data_source_id"))

	summary, err := h.service.Summarize(r.Context(), window)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrUnavailable):
			apierror.ServiceUnavailable("Storage temporarily unavailable").WriteJSON(w)
		default:
			h.logger.Error("summary failed", "error", err)
			apierror.InternalError(err).WriteJSON(w)
		}
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
