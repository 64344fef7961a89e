package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/lanternvc/lantern/internal/storage"
)

// SyncRunner starts one enrichment pipeline run. Returns
// storage.ErrConflict when a run is already in flight.
type SyncRunner interface {
	Run(ctx context.Context) error
}

// SyncHandlers handles pipeline trigger and status endpoints.
type SyncHandlers struct {
	runner SyncRunner
	store  storage.SyncStateStore
}

// NewSyncHandlers creates a new SyncHandlers instance.
func NewSyncHandlers(runner SyncRunner, store storage.SyncStateStore) *SyncHandlers {
	return &SyncHandlers{runner: runner, store: store}
}

// StartSync handles POST /api/sync - trigger a pipeline run. The run is
// asynchronous: the response is 202 Accepted and progress is observable via
// GET /api/sync/status and the websocket feed. A run already in flight
// yields 409 Conflict.
func (h *SyncHandlers) StartSync(w http.ResponseWriter, r *http.Request) {
	state, err := h.store.GetSyncState(r.Context())
	if err != nil {
		respondStoreError(w, "failed to read sync state", err)
		return
	}
	if state.IsRunning() {
		respondError(w, http.StatusConflict, "a sync run is already in progress", nil)
		return
	}

	runID := uuid.New().String()[:8]
	go func() {
		// The request context dies with the response; the run must not.
		if err := h.runner.Run(context.Background()); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				log.Printf("sync %s: lost the start race, another run is in flight", runID)
				return
			}
			log.Printf("sync %s: run failed: %v", runID, err)
		}
	}()

	respondJSON(w, http.StatusAccepted, SyncAcceptedResponse{
		RunID:   runID,
		Message: "sync started",
	})
}

// GetSyncStatus handles GET /api/sync/status - current pipeline state.
func (h *SyncHandlers) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	state, err := h.store.GetSyncState(r.Context())
	if err != nil {
		respondStoreError(w, "failed to read sync state", err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}
