package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternvc/lantern/pkg/types"
)

func TestSearch(t *testing.T) {
	h, store := newTestHandlers(t)
	seedEntity(t, store, &types.Entity{Name: "Acme Robotics", Kind: types.KindOrganization})
	seedEntity(t, store, &types.Entity{Name: "Beta Capital", Kind: types.KindOrganization})

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=robotics", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[SearchResponse](t, rec)
	assert.Equal(t, "robotics", resp.Query)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "Acme Robotics", resp.Results[0].Entity.Name)
}

func TestSearch_RequiresQuery(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch_NoMatches(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=nothing", nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[SearchResponse](t, rec)
	assert.Zero(t, resp.Total)
	assert.Empty(t, resp.Results)
}

func TestGetWarmPaths(t *testing.T) {
	h, store := newTestHandlers(t)
	target := seedEntity(t, store, &types.Entity{Name: "Jane Smith", Kind: types.KindPerson})
	teammate := seedEntity(t, store, &types.Entity{Name: "Tom Reed", Kind: types.KindPerson, IsInternal: true})
	seedEdge(t, store, teammate, target, types.RelConnection, 0.9)

	req := httptest.NewRequest(http.MethodGet, "/api/entities/"+target+"/warm-paths", nil)
	req.SetPathValue("id", target)
	rec := httptest.NewRecorder()
	h.GetWarmPaths(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeJSON[WarmPathsResponse](t, rec)
	assert.Equal(t, target, resp.TargetID)
	require.Len(t, resp.Paths, 1)
	assert.Equal(t, teammate, resp.Paths[0].TeammateID)
	assert.Equal(t, 1, resp.Paths[0].Degree)
}

func TestGetWarmPaths_UnknownTarget(t *testing.T) {
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/api/entities/ent:person:deadbeef/warm-paths", nil)
	req.SetPathValue("id", "ent:person:deadbeef")
	rec := httptest.NewRecorder()
	h.GetWarmPaths(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
