// Package storage provides composable storage interfaces for the Lantern
// knowledge graph.
//
// The storage layer is the sole writer of entities and relationships: key
// uniqueness, enrichment merging and cascade deletes are enforced here and
// nowhere else. Engines and handlers access the graph only through these
// interfaces, never via direct SQL.
package storage

import (
	"context"

	"github.com/lanternvc/lantern/pkg/types"
)

// EntityStore provides dedup-safe entity lifecycle operations.
type EntityStore interface {
	// UpsertEntity inserts the candidate if no entity exists with the same
	// normalized name+kind (case-insensitive), otherwise updates the fields
	// supplied. The enrichment payload is merged key-by-key, never replaced.
	// Returns the canonical entity ID.
	UpsertEntity(ctx context.Context, e *types.Entity) (string, error)

	// GetEntity retrieves an entity by ID.
	// Returns ErrNotFound if the entity doesn't exist.
	GetEntity(ctx context.Context, id string) (*types.Entity, error)

	// ListEntities retrieves entities with filtering and pagination.
	ListEntities(ctx context.Context, opts ListOptions) ([]*types.Entity, error)

	// ListEntitiesMissingEmbedding returns up to limit entities with a nil
	// embedding, oldest first. Used by the embedding stage.
	ListEntitiesMissingEmbedding(ctx context.Context, limit int) ([]*types.Entity, error)

	// DeleteEntity removes the entity and, in the same transaction, every
	// relationship where it is source or target. Returns ErrNotFound if the
	// entity doesn't exist. Partial application (entity gone, edges orphaned)
	// is never observable.
	DeleteEntity(ctx context.Context, id string) error

	// UpdateEntityEmbedding stores the embedding vector and model name.
	// Returns ErrNotFound if the entity doesn't exist.
	UpdateEntityEmbedding(ctx context.Context, id string, embedding []float32, model string) error

	// UpdateImportance overwrites composite importance scores in bulk.
	// Entities absent from the map keep their current score.
	UpdateImportance(ctx context.Context, scores map[string]float64) error

	// PropagatePortfolioFlags marks people with a works_at or founder_of edge
	// into a portfolio organization as portfolio members. Returns the number
	// of entities updated. Idempotent.
	PropagatePortfolioFlags(ctx context.Context) (int, error)

	// CountEntities returns the total number of entities.
	CountEntities(ctx context.Context) (int, error)
}

// RelationshipStore provides edge operations keyed on (source, target, kind).
type RelationshipStore interface {
	// UpsertRelationship inserts or combines an edge. When the natural key
	// (source, target, kind) already exists, the weight becomes
	// types.CombineWeight(stored, observed), evidence is appended with
	// provenance dedup, and last_seen is refreshed.
	UpsertRelationship(ctx context.Context, rel *types.Relationship) error

	// RelationshipsFor returns all edges touching the entity (either
	// direction). Returns an empty slice, not an error, for unknown IDs.
	RelationshipsFor(ctx context.Context, entityID string) ([]*types.Relationship, error)

	// EdgesAmong returns all edges whose source AND target are both in ids.
	EdgesAmong(ctx context.Context, ids []string) ([]*types.Relationship, error)

	// DegreeCounts returns the count of distinct edges touching each entity.
	// Entities with no edges are absent from the map.
	DegreeCounts(ctx context.Context) (map[string]int, error)

	// CountRelationships returns the total number of edges.
	CountRelationships(ctx context.Context) (int, error)
}

// InteractionStore manages communication records attached to entities.
// Interactions are created by the external sync collaborator and mutated
// only by the summarization/embedding stages; the core never deletes them.
type InteractionStore interface {
	// UpsertInteraction inserts or updates an interaction by ID.
	UpsertInteraction(ctx context.Context, it *types.Interaction) error

	// ListUnsummarized returns up to limit interactions without a summary,
	// oldest first.
	ListUnsummarized(ctx context.Context, limit int) ([]*types.Interaction, error)

	// UpdateInteractionSummary stores the AI-derived summary, themes and
	// embedding. Returns ErrNotFound if the interaction doesn't exist.
	UpdateInteractionSummary(ctx context.Context, id, summary string, themes []string, embedding []float32) error

	// CountInteractions returns the total number of interactions.
	CountInteractions(ctx context.Context) (int, error)
}

// SyncStateStore manages the singleton pipeline status record, which doubles
// as the pipeline mutex.
type SyncStateStore interface {
	// BeginRun atomically transitions the sync state from idle or error to
	// running (compare-and-swap). Returns ErrConflict when a run is already
	// in progress.
	BeginRun(ctx context.Context) error

	// SetSyncStage records the currently executing stage name.
	SetSyncStage(ctx context.Context, stage string) error

	// FinishRun releases the gate: status becomes idle on nil runErr, error
	// otherwise, with the message recorded for operators.
	FinishRun(ctx context.Context, message string, runErr error) error

	// GetSyncState returns the current sync state record.
	GetSyncState(ctx context.Context) (*types.SyncState, error)
}

// GraphReader provides the read-side queries used by the retrieval engine
// and the path scorer. All reads are safe under concurrent pipeline writes
// because every writer uses idempotent upserts.
type GraphReader interface {
	// TopEntities returns the top limit entities under the mode's ranking,
	// plus the total number of entities the mode matches.
	TopEntities(ctx context.Context, mode RetrievalMode, limit int) ([]*types.Entity, int, error)

	// Neighbors returns up to limit entities adjacent to id that are not in
	// exclude, ordered by importance descending then ID.
	Neighbors(ctx context.Context, id string, exclude []string, limit int) ([]*types.Entity, error)

	// SimilarEntities returns entities whose embedding cosine similarity to
	// the query vector is at least floor, best first. Entities without an
	// embedding are never returned. Returns ErrDimensionMismatch when the
	// query vector length differs from the configured dimension.
	SimilarEntities(ctx context.Context, embedding []float32, floor float64, limit int) ([]ScoredEntity, error)

	// SearchEntitiesByKeyword is the mandatory fallback ranking: substring
	// match on name, description and tags.
	SearchEntitiesByKeyword(ctx context.Context, query string, limit int) ([]*types.Entity, error)

	// StrongestInternalEdge returns, for each requested entity, the maximum
	// weight among its edges whose other endpoint is an internal teammate.
	// Entities with no such edge are absent from the map.
	StrongestInternalEdge(ctx context.Context, ids []string) (map[string]float64, error)

	// WarmPathCandidates enumerates (internal teammate -> external contact)
	// pairs where the contact is in the target's network: either the target
	// itself (degree 1) or directly connected to it (degree 2).
	WarmPathCandidates(ctx context.Context, targetID string) ([]WarmPathCandidate, error)
}

// Store is the full storage contract implemented by the postgres and sqlite
// backends.
type Store interface {
	EntityStore
	RelationshipStore
	InteractionStore
	SyncStateStore
	GraphReader

	// Close releases any resources held by the store.
	Close() error
}
