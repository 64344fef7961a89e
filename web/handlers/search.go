package handlers

import (
	"net/http"
)

// Search handles GET /api/search - rank entities against a text query.
// Semantic ranking is used when embeddings are available; keyword matching is
// the always-on fallback.
//
// Query parameters:
//   - q: the query text (required)
//   - limit: maximum results (default 20)
func (h *APIHandlers) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "query parameter q is required", nil)
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 20)
	if limit > 100 {
		limit = 100
	}

	results, err := h.scorer.Search(r.Context(), query, limit)
	if err != nil {
		respondStoreError(w, "search failed", err)
		return
	}

	respondJSON(w, http.StatusOK, SearchResponse{
		Results: results,
		Total:   len(results),
		Query:   query,
	})
}

// GetWarmPaths handles GET /api/entities/{id}/warm-paths - ranked
// introduction paths from internal teammates to the target entity.
func (h *APIHandlers) GetWarmPaths(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "entity ID is required", nil)
		return
	}

	// 404 for unknown targets rather than an empty path list.
	if _, err := h.store.GetEntity(r.Context(), id); err != nil {
		respondStoreError(w, "failed to get entity", err)
		return
	}

	topN := parseInt(r.URL.Query().Get("limit"), 10)
	paths, err := h.scorer.WarmPaths(r.Context(), id, topN)
	if err != nil {
		respondStoreError(w, "failed to find warm paths", err)
		return
	}

	respondJSON(w, http.StatusOK, WarmPathsResponse{TargetID: id, Paths: paths})
}
