package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/services/status"
)

// StatusHandler handles HTTP requests for application status
type StatusHandler struct {
	statusService *status.Service
	scheduler     interfaces.SchedulerService
	logger        arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler. scheduler may be nil.
func NewStatusHandler(statusService *status.Service, scheduler interfaces.SchedulerService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		statusService: statusService,
		scheduler:     scheduler,
		logger:        logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	response := map[string]interface{}{
		"status": h.statusService.GetStatus(),
	}
	if h.scheduler != nil {
		response["maintenance"] = h.scheduler.GetAllJobStatuses()
	}
	WriteJSON(w, http.StatusOK, response)
}
