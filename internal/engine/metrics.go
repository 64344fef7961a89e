package engine

import (
	"context"
	"fmt"
	"log"

	"github.com/lanternvc/lantern/internal/analytics"
	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

// Composite importance weights. They sum to 1.0; when no analytics provider
// is configured the higher-order shares are redistributed onto degree so the
// remaining weights still sum to 1.0.
const (
	WeightDegree      = 0.40
	WeightPageRank    = 0.25
	WeightBetweenness = 0.15
	WeightCurated     = 0.20
)

// metricsStore is the slice of storage the metrics engine needs.
type metricsStore interface {
	storage.EntityStore
	storage.RelationshipStore
}

// Metrics recomputes composite importance for the whole graph. Recompute
// overwrites scores, never accumulates, so repeated runs are idempotent.
type Metrics struct {
	store    metricsStore
	provider analytics.Provider // nil degrades to degree + curated only
}

// NewMetrics creates a metrics engine. provider may be nil.
func NewMetrics(store metricsStore, provider analytics.Provider) *Metrics {
	return &Metrics{store: store, provider: provider}
}

// Recompute calculates composite importance for every entity and writes the
// scores back in one batch. Returns the computed scores.
func (m *Metrics) Recompute(ctx context.Context) (map[string]float64, error) {
	entities, err := listAllEntities(ctx, m.store)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if len(entities) == 0 {
		return map[string]float64{}, nil
	}

	degrees, err := m.store.DegreeCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	maxDegree := 0
	for _, d := range degrees {
		if d > maxDegree {
			maxDegree = d
		}
	}

	pagerank, betweenness := m.centrality(ctx, entities)

	// Without higher-order metrics, their weight shares fold into degree.
	wDegree, wPageRank, wBetweenness := WeightDegree, WeightPageRank, WeightBetweenness
	if pagerank == nil {
		wDegree += wPageRank + wBetweenness
		wPageRank, wBetweenness = 0, 0
	}

	scores := make(map[string]float64, len(entities))
	for _, e := range entities {
		degreeNorm := 0.0
		if maxDegree > 0 {
			degreeNorm = float64(degrees[e.ID]) / float64(maxDegree)
		}
		score := wDegree*degreeNorm +
			wPageRank*pagerank[e.ID] +
			wBetweenness*betweenness[e.ID] +
			WeightCurated*clamp01(e.CuratedImportance)
		scores[e.ID] = clamp01(score)
	}

	if err := m.store.UpdateImportance(ctx, scores); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	return scores, nil
}

// centrality syncs the graph to the analytics provider and fetches pagerank
// and betweenness. A nil or failing provider degrades to (nil, nil); the
// caller falls back to degree-only weighting. Never a silent empty result.
func (m *Metrics) centrality(ctx context.Context, entities []*types.Entity) (map[string]float64, map[string]float64) {
	if m.provider == nil {
		return nil, nil
	}

	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	edges, err := m.store.EdgesAmong(ctx, ids)
	if err != nil {
		log.Printf("metrics: failed to load edges for analytics, degrading to degree-only: %v", err)
		return nil, nil
	}
	if err := m.provider.Sync(ctx, entities, edges); err != nil {
		log.Printf("metrics: analytics sync failed, degrading to degree-only: %v", err)
		return nil, nil
	}

	pagerank, err := m.provider.PageRank(ctx)
	if err != nil {
		log.Printf("metrics: pagerank failed, degrading to degree-only: %v", err)
		return nil, nil
	}
	betweenness, err := m.provider.Betweenness(ctx)
	if err != nil {
		log.Printf("metrics: betweenness failed, degrading to degree-only: %v", err)
		return nil, nil
	}
	return pagerank, betweenness
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// listAllEntities pages through the store until every entity is loaded.
func listAllEntities(ctx context.Context, store storage.EntityStore) ([]*types.Entity, error) {
	const pageSize = 500
	var all []*types.Entity
	for offset := 0; ; offset += pageSize {
		batch, err := store.ListEntities(ctx, storage.ListOptions{
			Limit:  pageSize,
			Offset: offset,
			SortBy: "created_at", SortOrder: "asc",
		})
		if err != nil {
			return nil, fmt.Errorf("listing entities: %w", err)
		}
		all = append(all, batch...)
		if len(batch) < pageSize {
			return all, nil
		}
	}
}
