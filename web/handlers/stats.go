package handlers

import (
	"log"
	"net/http"

	"github.com/lanternvc/lantern/internal/storage"
)

// StatsHandlers handles statistics endpoint requests.
type StatsHandlers struct {
	store storage.Store
}

// NewStatsHandlers creates a new StatsHandlers instance.
func NewStatsHandlers(store storage.Store) *StatsHandlers {
	return &StatsHandlers{store: store}
}

// GetStats handles GET /api/stats - returns graph counts and sync state.
func (h *StatsHandlers) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entities, err := h.store.CountEntities(ctx)
	if err != nil {
		respondStoreError(w, "failed to count entities", err)
		return
	}
	relationships, err := h.store.CountRelationships(ctx)
	if err != nil {
		respondStoreError(w, "failed to count relationships", err)
		return
	}
	interactions, err := h.store.CountInteractions(ctx)
	if err != nil {
		respondStoreError(w, "failed to count interactions", err)
		return
	}

	stats := StatsResponse{
		Entities:      entities,
		Relationships: relationships,
		Interactions:  interactions,
	}

	// Sync state is informational; stats still serve without it.
	if state, err := h.store.GetSyncState(ctx); err == nil {
		stats.Sync = state
	} else {
		log.Printf("handlers: failed to read sync state for stats: %v", err)
	}

	respondJSON(w, http.StatusOK, stats)
}
