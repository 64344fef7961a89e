// Package analytics provides optional higher-order graph centrality metrics.
// The metrics engine works without a provider; when one is configured its
// scores sharpen the composite importance ranking.
package analytics

import (
	"context"

	"github.com/lanternvc/lantern/pkg/types"
)

// Provider computes centrality scores over a projected graph. Implementations
// must return scores normalized to [0,1]; entities absent from a result map
// are treated as 0.
type Provider interface {
	// Sync replaces the projected graph with the given entities and edges.
	Sync(ctx context.Context, entities []*types.Entity, edges []*types.Relationship) error

	// PageRank returns pagerank scores per entity ID.
	PageRank(ctx context.Context) (map[string]float64, error)

	// Betweenness returns betweenness centrality scores per entity ID.
	Betweenness(ctx context.Context) (map[string]float64, error)

	// Close releases the provider's resources.
	Close(ctx context.Context) error
}
