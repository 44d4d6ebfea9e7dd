package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ternarybob/cavitas/internal/services/jobs"
	"github.com/ternarybob/cavitas/internal/services/kvfinder"
	"github.com/ternarybob/cavitas/internal/services/structures"
	"github.com/ternarybob/cavitas/internal/services/systemlogs"
	"github.com/ternarybob/cavitas/internal/storage/filesystem"
)

// maxBodyBytes bounds request bodies; structure files travel by path, not inline.
const maxBodyBytes = 1 << 20

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// DecodeJSON reads a bounded JSON body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// GetLimitParam extracts the limit query parameter.
// Returns def when absent or invalid; values above max are clamped.
func GetLimitParam(r *http.Request, def, max int) int {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return def
	}
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// StatusForError maps service and store errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, jobs.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, jobs.ErrJobExists):
		return http.StatusConflict
	case errors.Is(err, filesystem.ErrJobNotFound), errors.Is(err, structures.ErrUnknownStructure),
		errors.Is(err, systemlogs.ErrLogNotFound):
		return http.StatusNotFound
	}

	var remote *kvfinder.Error
	if errors.As(err, &remote) {
		switch remote.Kind {
		case kvfinder.KindPayloadTooLarge:
			return http.StatusRequestEntityTooLarge
		case kvfinder.KindNotFound:
			return http.StatusNotFound
		case kvfinder.KindConnectionRefused, kvfinder.KindServiceError, kvfinder.KindContentError:
			return http.StatusBadGateway
		case kvfinder.KindTimeout:
			return http.StatusGatewayTimeout
		}
	}
	return http.StatusInternalServerError
}
