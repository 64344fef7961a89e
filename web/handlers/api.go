// Package handlers provides HTTP handlers and middleware for the Lantern API.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/lanternvc/lantern/internal/config"
	"github.com/lanternvc/lantern/internal/engine"
	"github.com/lanternvc/lantern/internal/storage"
)

// APIHandlers contains HTTP handlers for the graph REST API.
type APIHandlers struct {
	store     storage.Store
	config    *config.Config
	retrieval *engine.Retrieval
	scorer    *engine.PathScorer
}

// NewAPIHandlers creates a new APIHandlers instance.
func NewAPIHandlers(store storage.Store, cfg *config.Config, retrieval *engine.Retrieval, scorer *engine.PathScorer) *APIHandlers {
	return &APIHandlers{
		store:     store,
		config:    cfg,
		retrieval: retrieval,
		scorer:    scorer,
	}
}

// Helper functions

// extractID extracts a path parameter from the request.
func extractID(r *http.Request, key string) string {
	return r.PathValue(key)
}

// parseInt parses an integer from a string, returning defaultValue if parsing fails.
func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return val
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent; nothing left to do but log.
		log.Printf("handlers: failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response with the given status code.
func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errResp := ErrorResponse{
		Error: message,
		Code:  http.StatusText(statusCode),
	}
	if err != nil {
		errResp.Details = map[string]interface{}{
			"error": err.Error(),
		}
	}
	respondJSON(w, statusCode, errResp)
}

// respondStoreError maps storage sentinel errors onto HTTP status codes.
// Unknown errors become a generic 500; their detail is logged, not sent, so
// provider and database internals never reach the client.
func respondStoreError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, action, err)
	case errors.Is(err, storage.ErrNotFound):
		respondError(w, http.StatusNotFound, action, err)
	case errors.Is(err, storage.ErrConflict):
		respondError(w, http.StatusConflict, action, err)
	default:
		log.Printf("handlers: %s: %v", action, err)
		respondError(w, http.StatusInternalServerError, action, nil)
	}
}
