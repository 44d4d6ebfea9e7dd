package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
)

// ConfigHandler exposes the running configuration
type ConfigHandler struct {
	config ConfigProvider
	logger arbor.ILogger
}

func NewConfigHandler(config ConfigProvider, logger arbor.ILogger) *ConfigHandler {
	return &ConfigHandler{
		config: config,
		logger: logger,
	}
}

// GetConfigHandler returns the sanitized configuration and its source files
// GET /api/config
func (h *ConfigHandler) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"config":  h.config.Sanitized(),
		"sources": h.config.Sources(),
	})
}
