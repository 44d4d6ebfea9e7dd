package handlers

import (
	"io"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/models"
)

// SettingsHandler serves detection settings defaults and parameters-file checks
type SettingsHandler struct {
	validator ParametersValidator
	logger    arbor.ILogger
}

func NewSettingsHandler(validator ParametersValidator, logger arbor.ILogger) *SettingsHandler {
	return &SettingsHandler{
		validator: validator,
		logger:    logger,
	}
}

// DefaultsHandler returns the default detection settings
// GET /api/settings/defaults
func (h *SettingsHandler) DefaultsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, models.DefaultSettings())
}

// ValidateHandler validates a parameters file sent as the raw TOML body.
// An invalid file is still a successful request; the verdict is in the body.
// POST /api/settings/validate
func (h *SettingsHandler) ValidateHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, http.StatusRequestEntityTooLarge, "Parameters file too large")
		return
	}
	if len(body) == 0 {
		WriteError(w, http.StatusBadRequest, "Parameters file content is required")
		return
	}

	result := h.validator.ValidateParameters(r.Context(), string(body))
	if !result.Valid {
		h.logger.Debug().Str("error", result.Error).Msg("Parameters file rejected")
	}
	WriteJSON(w, http.StatusOK, result)
}
