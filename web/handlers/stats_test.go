package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternvc/lantern/pkg/types"
)

func TestGetStats(t *testing.T) {
	store := newTestStore(t)
	a := seedEntity(t, store, &types.Entity{Name: "Acme Robotics", Kind: types.KindOrganization})
	b := seedEntity(t, store, &types.Entity{Name: "Jane Smith", Kind: types.KindPerson})
	seedEdge(t, store, b, a, types.RelFounderOf, 0.9)

	h := NewStatsHandlers(store)
	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	h.GetStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeJSON[StatsResponse](t, rec)
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 1, stats.Relationships)
	assert.Equal(t, 0, stats.Interactions)
	require.NotNil(t, stats.Sync)
	assert.Equal(t, types.SyncIdle, stats.Sync.Status)
}

func TestGetStats_EmptyStore(t *testing.T) {
	h := NewStatsHandlers(newTestStore(t))

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	h.GetStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeJSON[StatsResponse](t, rec)
	assert.Zero(t, stats.Entities)
	assert.Zero(t, stats.Relationships)
}
