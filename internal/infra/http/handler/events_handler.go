package handler

import (
	"net/http"

	"github.com/seiforesti/data-wave-sub013/internal/app/stream"
	"github.com/seiforesti/data-wave-sub013/pkg/apierror"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// EventsHandler serves the recent-event snapshot. Live delivery goes
// over the WebSocket endpoint; this is the polling fallback.
type EventsHandler struct {
	stream *stream.Stream
	logger *logger.Logger
}

// NewEventsHandler creates a new EventsHandler.
func NewEventsHandler(st *stream.Stream, log *logger.Logger) *EventsHandler {
	return &EventsHandler{
		stream: st,
		logger: log.With("handler", "events"),
	}
}

// EventsResponse wraps the snapshot of buffered events.
type EventsResponse struct {
	Events []stream.Event `json:"events"`
}

// List handles GET /api/v1/events
// @Summary      Recent scan events
// @Description  Returns the buffered recent events, oldest first. Use
// @Description  after_seq to fetch only events newer than a known sequence.
// @Tags         Events
// @Produce      json
// @Param        after_seq  query     int  false  "Only events with seq greater than this"
// @Success      200  {object}  EventsResponse
// @Failure      400  {object}  apierror.Error
// @Router       /events [get]
func (h *EventsHandler) List(w http.ResponseWriter, r *http.Request) {
	events := h.stream.Snapshot()

	if after := parseQueryInt64(r.URL.Query().Get("after_seq")); after != nil {
		if *after < 0 {
			apierror.BadRequest("after_seq must not be negative").WriteJSON(w)
			return
		}
		filtered := events[:0]
		for _, evt := range events {
			if evt.Seq > uint64(*after) {
				filtered = append(filtered, evt)
			}
		}
		events = filtered
	}

	writeJSON(w, http.StatusOK, EventsResponse{Events: events})
}
