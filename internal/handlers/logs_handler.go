package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
)

// LogsHandler serves the application log files
type LogsHandler struct {
	logs   LogReader
	logger arbor.ILogger
}

func NewLogsHandler(logs LogReader, logger arbor.ILogger) *LogsHandler {
	return &LogsHandler{
		logs:   logs,
		logger: logger,
	}
}

// ListLogsHandler lists the log files, newest first
// GET /api/logs
func (h *LogsHandler) ListLogsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	files, err := h.logs.ListLogFiles()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list log files")
		WriteError(w, http.StatusInternalServerError, "Failed to list log files")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"files": files,
	})
}

// GetLogHandler returns the tail of one log file
// GET /api/logs/{name}?limit=200&levels=warn,error
func (h *LogsHandler) GetLogHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/api/logs/")
	if name == "" {
		WriteError(w, http.StatusBadRequest, "Log file name is required")
		return
	}

	var levels []string
	if raw := r.URL.Query().Get("levels"); raw != "" {
		levels = strings.Split(raw, ",")
	}

	entries, err := h.logs.GetLogContent(name, GetLimitParam(r, 200, 5000), levels)
	if err != nil {
		status := StatusForError(err)
		if status == http.StatusInternalServerError {
			h.logger.Error().Err(err).Str("file", name).Msg("Failed to read log file")
		}
		WriteError(w, status, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"file":    name,
		"entries": entries,
		"count":   len(entries),
	})
}
