package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternvc/lantern/pkg/types"
)

func TestClient_FetchOrganizations_WalksPages(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, "/v1/organizations", r.URL.Path)

		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"items": [{"id": "o1", "name": "Acme"}], "next_page": 2}`)
		case "2":
			fmt.Fprint(w, `{"items": [{"id": "o2", "name": "Globex", "is_portfolio": true}], "next_page": 0}`)
		default:
			t.Fatalf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Token: "secret"})
	orgs, err := c.FetchOrganizations(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, "Acme", orgs[0].Name)
	assert.True(t, orgs[1].IsPortfolio)
	assert.Equal(t, "Bearer secret", gotAuth)
}

func TestClient_FetchPeople_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.FetchPeople(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_FetchNotes_SinceParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("since"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		json.NewEncoder(w).Encode(map[string]interface{}{
			"items":     []Note{{ID: "n1", PersonID: "p1", Kind: "meeting", Content: "hi"}},
			"next_page": 0,
		})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	notes, err := c.FetchNotes(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "n1", notes[0].ID)
}

func TestClient_NonAdvancingPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"items": [], "next_page": 1}`)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.FetchOrganizations(context.Background())
	assert.Error(t, err)
}

func TestOrganizationEntity(t *testing.T) {
	e := OrganizationEntity(Organization{
		Name: "Acme", Domain: "acme.com", DealStage: "series-a",
		Tags: []string{"fintech"}, IsPortfolio: true,
	})
	assert.Equal(t, types.KindOrganization, e.Kind)
	assert.Equal(t, "acme.com", e.Enrichment.Get(types.FieldDomain))
	assert.Equal(t, "series-a", e.Enrichment.Get(types.FieldDealStage))
	assert.True(t, e.IsPortfolio)
}

func TestPersonEdges(t *testing.T) {
	now := time.Now()
	ids := map[string]string{
		"o1": "ent:organization:aaa",
		"p2": "ent:person:bbb",
	}

	p := Person{
		ID: "p1", Name: "Jane", OrganizationID: "o1", IsFounder: true,
		Connections: []Connection{
			{PersonID: "p2", Strength: 0.8},
			{PersonID: "p-unknown"},
		},
	}

	edges, missing := PersonEdges(p, "ent:person:jane", ids, now)
	require.Len(t, edges, 2)
	assert.Equal(t, types.RelFounderOf, edges[0].Kind)
	assert.Equal(t, 0.9, edges[0].Weight)
	assert.Equal(t, "crm:person:p1:org", edges[0].Evidence[0].ProvenanceID)
	assert.Equal(t, types.RelConnection, edges[1].Kind)
	assert.Equal(t, 0.8, edges[1].Weight)
	assert.Equal(t, []string{"p-unknown"}, missing)
}

func TestNoteInteraction(t *testing.T) {
	ids := map[string]string{"p1": "ent:person:jane"}

	it := NoteInteraction(Note{ID: "n1", PersonID: "p1", Kind: "meeting", Content: "x"}, ids)
	require.NotNil(t, it)
	assert.Equal(t, "int:crm:n1", it.ID)
	assert.Equal(t, "ent:person:jane", it.EntityID)
	assert.Equal(t, types.InteractionMeeting, it.Kind)

	// Unknown person: skipped. Unknown kind: defaults to note.
	assert.Nil(t, NoteInteraction(Note{ID: "n2", PersonID: "ghost"}, ids))
	it = NoteInteraction(Note{ID: "n3", PersonID: "p1", Kind: "telegram"}, ids)
	require.NotNil(t, it)
	assert.Equal(t, types.InteractionNote, it.Kind)
}
