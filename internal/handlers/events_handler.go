package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
)

// EventsHandler serves the stored notification history
type EventsHandler struct {
	history EventHistory
	logger  arbor.ILogger
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(history EventHistory, logger arbor.ILogger) *EventsHandler {
	return &EventsHandler{
		history: history,
		logger:  logger,
	}
}

// RecentEventsHandler returns the newest notifications
// GET /api/events?limit=50
func (h *EventsHandler) RecentEventsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := GetLimitParam(r, 50, 500)
	records, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read event history")
		WriteError(w, http.StatusInternalServerError, "Failed to read event history")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": records,
		"count":  len(records),
	})
}
