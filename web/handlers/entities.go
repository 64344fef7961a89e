package handlers

import (
	"net/http"

	"github.com/lanternvc/lantern/internal/storage"
)

// ListEntities handles GET /api/entities - list entities with pagination and
// filtering.
//
// Query parameters:
//   - kind: person or organization
//   - portfolio, internal: "true" restricts to flagged entities
//   - limit, offset, sort_by, sort_order: pagination
func (h *APIHandlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := storage.ListOptions{
		Kind:          q.Get("kind"),
		PortfolioOnly: q.Get("portfolio") == "true",
		InternalOnly:  q.Get("internal") == "true",
		Limit:         parseInt(q.Get("limit"), 0),
		Offset:        parseInt(q.Get("offset"), 0),
		SortBy:        q.Get("sort_by"),
		SortOrder:     q.Get("sort_order"),
	}
	opts.Normalize()

	entities, err := h.store.ListEntities(r.Context(), opts)
	if err != nil {
		respondStoreError(w, "failed to list entities", err)
		return
	}
	total, err := h.store.CountEntities(r.Context())
	if err != nil {
		respondStoreError(w, "failed to count entities", err)
		return
	}

	respondJSON(w, http.StatusOK, EntityListResponse{
		Entities: entities,
		Total:    total,
		Limit:    opts.Limit,
		Offset:   opts.Offset,
	})
}

// GetEntity handles GET /api/entities/{id} - a single entity with all of its
// relationships.
func (h *APIHandlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "entity ID is required", nil)
		return
	}

	entity, err := h.store.GetEntity(r.Context(), id)
	if err != nil {
		respondStoreError(w, "failed to get entity", err)
		return
	}
	rels, err := h.store.RelationshipsFor(r.Context(), id)
	if err != nil {
		respondStoreError(w, "failed to load relationships", err)
		return
	}

	respondJSON(w, http.StatusOK, EntityResponse{Entity: entity, Relationships: rels})
}

// DeleteEntity handles DELETE /api/entities/{id} - remove an entity and, via
// cascade, its edges and interactions.
func (h *APIHandlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	id := extractID(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "entity ID is required", nil)
		return
	}

	if err := h.store.DeleteEntity(r.Context(), id); err != nil {
		respondStoreError(w, "failed to delete entity", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
