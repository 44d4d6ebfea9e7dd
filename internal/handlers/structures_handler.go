package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/interfaces"
)

// StructuresHandler lists the structure objects available for submission
type StructuresHandler struct {
	host   interfaces.StructureHost
	logger arbor.ILogger
}

// NewStructuresHandler creates a new structures handler
func NewStructuresHandler(host interfaces.StructureHost, logger arbor.ILogger) *StructuresHandler {
	return &StructuresHandler{
		host:   host,
		logger: logger,
	}
}

// ListStructuresHandler returns the structure object names
// GET /api/structures
func (h *StructuresHandler) ListStructuresHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	names, err := h.host.Names()
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list structures")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"structures": names,
	})
}

// ExtentHandler returns the bounding box of a structure
// GET /api/structures/{name}/extent
func (h *StructuresHandler) ExtentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/structures/"), "/extent")
	if name == "" || strings.Contains(name, "/") {
		WriteError(w, http.StatusNotFound, "structure not found")
		return
	}

	extent, err := h.host.Extent(name)
	if err != nil {
		WriteError(w, StatusForError(err), err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, extent)
}
