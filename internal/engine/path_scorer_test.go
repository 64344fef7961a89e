package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

func TestSearch_KeywordFallbackWithoutEmbedder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedEntity(t, store, &types.Entity{Name: "Acme Robotics", Kind: types.KindOrganization})
	seedEntity(t, store, &types.Entity{Name: "Beta Capital", Kind: types.KindOrganization})

	s := NewPathScorer(store, nil, nil)
	results, err := s.Search(ctx, "robotics", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Acme Robotics", results[0].Entity.Name)
	assert.Zero(t, results[0].Similarity)
}

func TestSearch_SemanticUnionKeyword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	match := seedEntity(t, store, &types.Entity{Name: "Vector Labs", Kind: types.KindOrganization})
	far := seedEntity(t, store, &types.Entity{Name: "Faraway Inc", Kind: types.KindOrganization})
	keyword := seedEntity(t, store, &types.Entity{
		Name: "Robotics Partners", Kind: types.KindOrganization,
		Description: "robotics investment syndicate",
	})
	require.NoError(t, store.UpdateEntityEmbedding(ctx, match, []float32{1, 0, 0}, "fake-embed"))
	require.NoError(t, store.UpdateEntityEmbedding(ctx, far, []float32{0, 1, 0}, "fake-embed"))

	// An internal teammate edge gives the keyword hit relationship strength.
	teammate := seedEntity(t, store, &types.Entity{
		Name: "Tom Reed", Kind: types.KindPerson, IsInternal: true,
	})
	seedEdge(t, store, teammate, keyword, types.RelConnection, 0.5)

	s := NewPathScorer(store, &fakeEmbed{vec: []float32{1, 0, 0}}, nil)
	results, err := s.Search(ctx, "robotics", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Perfect similarity (0.6) outranks keyword-only strength (0.4*0.5);
	// the orthogonal embedding falls below the similarity floor.
	assert.Equal(t, match, results[0].Entity.ID)
	assert.InDelta(t, 0.6, results[0].Score, 1e-6)
	assert.Equal(t, keyword, results[1].Entity.ID)
	assert.InDelta(t, 0.2, results[1].Score, 1e-6)
	for _, r := range results {
		assert.NotEqual(t, far, r.Entity.ID)
	}
}

func TestSearch_EmbedderFailureDegradesToKeyword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedEntity(t, store, &types.Entity{Name: "Acme Robotics", Kind: types.KindOrganization})

	s := NewPathScorer(store, &fakeEmbed{err: errors.New("provider down")}, nil)
	results, err := s.Search(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Acme Robotics", results[0].Entity.Name)
}

func TestSearch_QueryEmbeddingCached(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id := seedEntity(t, store, &types.Entity{Name: "Vector Labs", Kind: types.KindOrganization})
	require.NoError(t, store.UpdateEntityEmbedding(ctx, id, []float32{1, 0, 0}, "fake-embed"))

	embedder := &fakeEmbed{vec: []float32{1, 0, 0}}
	cache := expirable.NewLRU[string, []float32](16, nil, time.Minute)
	s := NewPathScorer(store, embedder, cache)

	for range 3 {
		_, err := s.Search(ctx, "  Vector  LABS ", 10)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, embedder.calls, "repeat queries hit the cache")
}

func TestWarmPaths_RankingAndDegree(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	target := seedEntity(t, store, &types.Entity{Name: "Jane Smith", Kind: types.KindPerson})
	direct := seedEntity(t, store, &types.Entity{
		Name: "Tom Reed", Kind: types.KindPerson, IsInternal: true,
	})
	indirect := seedEntity(t, store, &types.Entity{
		Name: "Ana Cruz", Kind: types.KindPerson, IsInternal: true,
	})
	bridge := seedEntity(t, store, &types.Entity{Name: "Sam Hill", Kind: types.KindPerson})

	seedEdge(t, store, direct, target, types.RelConnection, 0.9)
	seedEdge(t, store, indirect, bridge, types.RelConnection, 0.8)
	seedEdge(t, store, bridge, target, types.RelConnection, 0.6)

	s := NewPathScorer(store, nil, nil)
	paths, err := s.WarmPaths(ctx, target, 10)
	require.NoError(t, err)
	require.Len(t, paths, 2)

	// Direct edge: 0.7*0.9 + 0.3*1. Via bridge: 0.7*0.8 + 0.3*0.5.
	assert.Equal(t, direct, paths[0].TeammateID)
	assert.Equal(t, 1, paths[0].Degree)
	assert.InDelta(t, 0.93, paths[0].Score, 1e-9)

	assert.Equal(t, indirect, paths[1].TeammateID)
	assert.Equal(t, bridge, paths[1].ContactID)
	assert.Equal(t, 2, paths[1].Degree)
	assert.InDelta(t, 0.71, paths[1].Score, 1e-9)

	// topN truncates.
	top, err := s.WarmPaths(ctx, target, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, direct, top[0].TeammateID)
}

func TestWarmPaths_NoInternalTeammates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	target := seedEntity(t, store, &types.Entity{Name: "Jane Smith", Kind: types.KindPerson})
	outsider := seedEntity(t, store, &types.Entity{Name: "Bob Gray", Kind: types.KindPerson})
	seedEdge(t, store, outsider, target, types.RelConnection, 0.9)

	s := NewPathScorer(store, nil, nil)
	paths, err := s.WarmPaths(ctx, target, 10)
	require.NoError(t, err)
	assert.Empty(t, paths)
}

func TestSearch_DimensionMismatchFallsBackToKeyword(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	seedEntity(t, store, &types.Entity{Name: "Acme Robotics", Kind: types.KindOrganization})

	// Embedder dimension disagrees with the store; the similarity query
	// rejects it and keyword search still serves the result.
	s := NewPathScorer(store, &fakeEmbed{vec: []float32{1, 0}}, nil)
	results, err := s.Search(ctx, "acme", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, dimensionProbe(ctx, store), storage.ErrDimensionMismatch)
}

// dimensionProbe surfaces the store-side rejection the scorer logs and
// swallows.
func dimensionProbe(ctx context.Context, store storage.GraphReader) error {
	_, err := store.SimilarEntities(ctx, []float32{1, 0}, 0, 1)
	return err
}
