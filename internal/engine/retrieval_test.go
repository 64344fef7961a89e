package engine

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

func TestLoadInitial_BudgetAndRanking(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ids := make([]string, 5)
	scores := map[string]float64{}
	for i := range ids {
		ids[i] = seedEntity(t, store, &types.Entity{
			Name: fmt.Sprintf("Org %d", i), Kind: types.KindOrganization,
		})
		scores[ids[i]] = float64(i) / 10 // Org 4 most important
	}
	require.NoError(t, store.UpdateImportance(ctx, scores))
	seedEdge(t, store, ids[4], ids[3], types.RelPartnerOf, 0.5)
	seedEdge(t, store, ids[4], ids[0], types.RelPartnerOf, 0.5)

	r := NewRetrieval(store, 0)
	view, err := r.LoadInitial(ctx, storage.ModeOverview, 3)
	require.NoError(t, err)

	require.Len(t, view.Entities, 3)
	assert.Equal(t, "Org 4", view.Entities[0].Name)
	assert.Equal(t, "Org 3", view.Entities[1].Name)
	assert.Equal(t, "Org 2", view.Entities[2].Name)
	assert.True(t, view.HasMore)
	assert.Equal(t, 5, view.TotalAvailable)

	// Only the edge inside the returned set comes back; the edge to Org 0
	// leads outside the window.
	require.Len(t, view.Edges, 1)
	assert.Equal(t, types.NaturalKeyID(ids[4], ids[3], types.RelPartnerOf), view.Edges[0].ID)
}

func TestLoadInitial_Modes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	portfolio := seedEntity(t, store, &types.Entity{
		Name: "Acme Robotics", Kind: types.KindOrganization, IsPortfolio: true,
	})
	plain := seedEntity(t, store, &types.Entity{Name: "Beta Capital", Kind: types.KindOrganization})
	require.NoError(t, store.UpdateImportance(ctx, map[string]float64{portfolio: 0.3, plain: 0.9}))

	r := NewRetrieval(store, 0)

	view, err := r.LoadInitial(ctx, storage.ModePortfolioOnly, 10)
	require.NoError(t, err)
	require.Len(t, view.Entities, 1)
	assert.Equal(t, portfolio, view.Entities[0].ID)
	assert.False(t, view.HasMore)

	view, err = r.LoadInitial(ctx, storage.ModeHighImportance, 10)
	require.NoError(t, err)
	require.Len(t, view.Entities, 1)
	assert.Equal(t, plain, view.Entities[0].ID)

	_, err = r.LoadInitial(ctx, storage.RetrievalMode("bogus"), 10)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestExpand_ProgressiveWithoutDuplication(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hub := seedEntity(t, store, &types.Entity{Name: "Hub Corp", Kind: types.KindOrganization})
	neighbors := make([]string, 4)
	for i := range neighbors {
		neighbors[i] = seedEntity(t, store, &types.Entity{
			Name: fmt.Sprintf("Spoke %d", i), Kind: types.KindOrganization,
		})
		seedEdge(t, store, hub, neighbors[i], types.RelPartnerOf, 0.5)
	}

	r := NewRetrieval(store, 0)
	loaded := []string{hub}
	seen := map[string]int{}

	// Walk the neighborhood two nodes at a time until exhausted.
	for {
		view, err := r.Expand(ctx, hub, loaded, 2)
		require.NoError(t, err)
		if len(view.Entities) == 0 {
			assert.False(t, view.HasMore)
			break
		}
		batch := map[string]bool{}
		for _, e := range view.Entities {
			seen[e.ID]++
			batch[e.ID] = true
			loaded = append(loaded, e.ID)
		}
		// Every returned edge touches a node from this batch.
		for _, edge := range view.Edges {
			assert.True(t, batch[edge.SourceID] || batch[edge.TargetID],
				"edge %s does not touch a new node", edge.ID)
		}
	}

	require.Len(t, seen, 4)
	for id, n := range seen {
		assert.Equal(t, 1, n, "node %s returned more than once", id)
	}
}

func TestExpand_HasMoreSignal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	hub := seedEntity(t, store, &types.Entity{Name: "Hub Corp", Kind: types.KindOrganization})
	for i := 0; i < 3; i++ {
		id := seedEntity(t, store, &types.Entity{
			Name: fmt.Sprintf("Spoke %d", i), Kind: types.KindOrganization,
		})
		seedEdge(t, store, hub, id, types.RelPartnerOf, 0.5)
	}

	r := NewRetrieval(store, 0)

	view, err := r.Expand(ctx, hub, []string{hub}, 2)
	require.NoError(t, err)
	assert.Len(t, view.Entities, 2)
	assert.True(t, view.HasMore)

	view, err = r.Expand(ctx, hub, append([]string{hub}, entityIDs(view.Entities)...), 2)
	require.NoError(t, err)
	assert.Len(t, view.Entities, 1)
	assert.False(t, view.HasMore)
}

func TestExpand_EdgesConnectNewToLoaded(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := seedEntity(t, store, &types.Entity{Name: "Alpha", Kind: types.KindOrganization})
	b := seedEntity(t, store, &types.Entity{Name: "Beta", Kind: types.KindOrganization})
	c := seedEntity(t, store, &types.Entity{Name: "Gamma", Kind: types.KindOrganization})
	seedEdge(t, store, a, b, types.RelPartnerOf, 0.5)
	seedEdge(t, store, b, c, types.RelPartnerOf, 0.5)
	seedEdge(t, store, a, c, types.RelPartnerOf, 0.5)

	r := NewRetrieval(store, 0)

	// b is already loaded; expanding a returns c plus both edges that touch
	// c, but not the a-b edge the client already has.
	view, err := r.Expand(ctx, a, []string{a, b}, 10)
	require.NoError(t, err)
	require.Len(t, view.Entities, 1)
	assert.Equal(t, c, view.Entities[0].ID)

	edgeIDs := make([]string, 0, len(view.Edges))
	for _, e := range view.Edges {
		edgeIDs = append(edgeIDs, e.ID)
	}
	assert.ElementsMatch(t, []string{
		types.NaturalKeyID(b, c, types.RelPartnerOf),
		types.NaturalKeyID(a, c, types.RelPartnerOf),
	}, edgeIDs)
}

func TestExpand_RequiresNodeID(t *testing.T) {
	store := newTestStore(t)

	r := NewRetrieval(store, 0)
	_, err := r.Expand(context.Background(), "", nil, 10)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestClampBudget(t *testing.T) {
	assert.Equal(t, DefaultMaxNodes, clampBudget(0))
	assert.Equal(t, DefaultMaxNodes, clampBudget(-5))
	assert.Equal(t, 10, clampBudget(10))
	assert.Equal(t, MaxNodesPerCall, clampBudget(MaxNodesPerCall+1))
}
