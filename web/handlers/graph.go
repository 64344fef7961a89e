package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lanternvc/lantern/internal/storage"
)

// GetInitialGraph handles GET /api/graph/initial - the first budget-bounded
// window of the graph under the requested retrieval mode.
//
// Query parameters:
//   - mode: overview (default), high-importance, portfolio-only
//   - max_nodes: node budget, clamped server-side
func (h *APIHandlers) GetInitialGraph(w http.ResponseWriter, r *http.Request) {
	mode := storage.RetrievalMode(r.URL.Query().Get("mode"))
	if mode == "" {
		mode = storage.ModeOverview
	}
	maxNodes := parseInt(r.URL.Query().Get("max_nodes"), 0)

	view, err := h.retrieval.LoadInitial(r.Context(), mode, maxNodes)
	if err != nil {
		respondStoreError(w, "failed to load graph", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// ExpandNode handles POST /api/graph/expand - fetch new neighbors of one
// node, excluding everything the client already holds.
func (h *APIHandlers) ExpandNode(w http.ResponseWriter, r *http.Request) {
	var req ExpandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse request body", err)
		return
	}
	if req.NodeID == "" {
		respondError(w, http.StatusBadRequest, "node_id is required", nil)
		return
	}

	view, err := h.retrieval.Expand(r.Context(), req.NodeID, req.Loaded, req.MaxNodes)
	if err != nil {
		respondStoreError(w, "failed to expand node", err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}
