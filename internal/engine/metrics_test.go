package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternvc/lantern/pkg/types"
)

func TestCompositeWeightsSumToOne(t *testing.T) {
	sum := WeightDegree + WeightPageRank + WeightBetweenness + WeightCurated
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestRecompute_DegreeAndCuratedOnly(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hub := seedEntity(t, store, &types.Entity{Name: "Hub Corp", Kind: types.KindOrganization})
	leaf := seedEntity(t, store, &types.Entity{Name: "Leaf Corp", Kind: types.KindOrganization})
	curated := seedEntity(t, store, &types.Entity{
		Name: "Curated Corp", Kind: types.KindOrganization, CuratedImportance: 0.5,
	})
	seedEdge(t, store, hub, leaf, types.RelPartnerOf, 0.5)
	seedEdge(t, store, hub, curated, types.RelPartnerOf, 0.5)

	m := NewMetrics(store, nil)
	scores, err := m.Recompute(ctx)
	require.NoError(t, err)
	require.Len(t, scores, 3)

	// Without an analytics provider the pagerank and betweenness shares fold
	// into degree: 0.8 degree + 0.2 curated.
	assert.InDelta(t, 0.8, scores[hub], 1e-9)     // degree 2/2
	assert.InDelta(t, 0.4, scores[leaf], 1e-9)    // degree 1/2
	assert.InDelta(t, 0.5, scores[curated], 1e-9) // degree 1/2 + curated 0.5

	// Scores are persisted, not just returned.
	e, err := store.GetEntity(ctx, hub)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, e.Importance, 1e-9)
}

func TestRecompute_WithAnalyticsProvider(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := seedEntity(t, store, &types.Entity{Name: "Alpha", Kind: types.KindOrganization})
	b := seedEntity(t, store, &types.Entity{Name: "Beta", Kind: types.KindOrganization})
	seedEdge(t, store, a, b, types.RelPartnerOf, 0.5)

	provider := &fakeAnalytics{
		pagerank:    map[string]float64{a: 1.0, b: 0.5},
		betweenness: map[string]float64{a: 0.4},
	}
	m := NewMetrics(store, provider)
	scores, err := m.Recompute(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, provider.syncCalls)
	// Full weighting: 0.4*degree + 0.25*pagerank + 0.15*betweenness.
	assert.InDelta(t, 0.4*1.0+0.25*1.0+0.15*0.4, scores[a], 1e-9)
	assert.InDelta(t, 0.4*1.0+0.25*0.5, scores[b], 1e-9) // absent betweenness counts as 0
}

func TestRecompute_ProviderFailureDegrades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := seedEntity(t, store, &types.Entity{Name: "Alpha", Kind: types.KindOrganization})
	b := seedEntity(t, store, &types.Entity{Name: "Beta", Kind: types.KindOrganization})
	seedEdge(t, store, a, b, types.RelPartnerOf, 0.5)

	m := NewMetrics(store, &fakeAnalytics{failSync: true})
	scores, err := m.Recompute(ctx)
	require.NoError(t, err)

	// Same result as running without a provider at all.
	assert.InDelta(t, 0.8, scores[a], 1e-9)
	assert.InDelta(t, 0.8, scores[b], 1e-9)
}

func TestRecompute_OverwritesNotAccumulates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := seedEntity(t, store, &types.Entity{Name: "Alpha", Kind: types.KindOrganization})
	b := seedEntity(t, store, &types.Entity{Name: "Beta", Kind: types.KindOrganization})
	seedEdge(t, store, a, b, types.RelPartnerOf, 0.5)

	m := NewMetrics(store, nil)
	first, err := m.Recompute(ctx)
	require.NoError(t, err)
	second, err := m.Recompute(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for id, score := range second {
		assert.GreaterOrEqual(t, score, 0.0, id)
		assert.LessOrEqual(t, score, 1.0, id)
	}
}

func TestRecompute_EmptyGraph(t *testing.T) {
	store := newTestStore(t)

	m := NewMetrics(store, nil)
	scores, err := m.Recompute(context.Background())
	require.NoError(t, err)
	assert.Empty(t, scores)
}
