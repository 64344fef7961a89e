package dedup

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/internal/storage/sqlite"
	"github.com/lanternvc/lantern/pkg/types"
)

func TestValidateName(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name   string
		valid  bool
		reason string
	}{
		{"Jane Smith", true, ""},
		{"Acme Corp", true, ""},
		{"CEO", false, ReasonJobTitle},
		{"Head of Engineering", false, ReasonJobTitle},
		{"Al", false, ReasonTooShort},
		{"Acme (formerly Apex", false, ReasonUnbalancedParen},
		{"12345", false, ReasonNoAlpha},
		{"---", false, ReasonNoAlpha},
		// Contains a job-title word but is not only job-title words.
		{"Jane Smith CEO", true, ""},
	}
	for _, tt := range tests {
		v := p.ValidateName(tt.name)
		assert.Equal(t, tt.valid, v.Valid, "name %q", tt.name)
		assert.Equal(t, tt.reason, v.Reason, "name %q", tt.name)
	}
}

func TestValidateName_SingleTokenToggle(t *testing.T) {
	p := DefaultPolicy()
	assert.True(t, p.ValidateName("Madonna").Valid)

	p.RejectSingleToken = true
	v := p.ValidateName("Madonna")
	assert.False(t, v.Valid)
	assert.Equal(t, ReasonSingleToken, v.Reason)
	assert.True(t, p.ValidateName("Jane Smith").Valid)
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"min_name_length: 5\njob_title_words: [wizard]\n"), 0o644))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 5, p.MinNameLength)
	assert.True(t, p.RejectJobTitles) // default preserved

	assert.Equal(t, ReasonTooShort, p.ValidateName("Bob").Reason)
	assert.Equal(t, ReasonJobTitle, p.ValidateName("Wizard").Reason)

	_, err = LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFindDuplicateGroups(t *testing.T) {
	e := NewEngine(nil, nil)

	doc := types.NewEnrichmentDoc()
	doc.Set(types.FieldEmail, "jane@acme.com")
	doc2 := types.NewEnrichmentDoc()
	doc2.Set(types.FieldEmail, "Jane@Acme.com") // case-insensitive match

	entities := []*types.Entity{
		{ID: "ent:organization:1", Name: "Acme Corp", Kind: types.KindOrganization},
		{ID: "ent:organization:2", Name: "Acme Corp.", Kind: types.KindOrganization},
		{ID: "ent:person:1", Name: "Jane Smith", Kind: types.KindPerson, Enrichment: doc},
		{ID: "ent:person:2", Name: "Jane A. Smith", Kind: types.KindPerson, Enrichment: doc2},
		{ID: "ent:person:3", Name: "Solo Person", Kind: types.KindPerson},
		// Suspect name: excluded from grouping, never merged away.
		{ID: "ent:person:4", Name: "CEO", Kind: types.KindPerson},
	}

	groups := e.FindDuplicateGroups(entities)
	require.Len(t, groups, 2)

	assert.Equal(t, "email:jane@acme.com", groups[0].Key)
	assert.Len(t, groups[0].Entities, 2)
	assert.Equal(t, "name:acme corp|organization", groups[1].Key)
	assert.Len(t, groups[1].Entities, 2)
}

func TestMerge_AcmeScenario(t *testing.T) {
	s, err := sqlite.New(":memory:", 4)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	upsert := func(e *types.Entity) string {
		id, err := s.UpsertEntity(ctx, e)
		require.NoError(t, err)
		return id
	}

	doc := types.NewEnrichmentDoc()
	doc.Set(types.FieldDomain, "acme.com")
	acme := upsert(&types.Entity{Name: "Acme Corp", Kind: types.KindOrganization})
	acmeDot := upsert(&types.Entity{Name: "Acme Corp.", Kind: types.KindOrganization, Enrichment: doc})
	jane := upsert(&types.Entity{Name: "Jane", Kind: types.KindPerson})
	bob := upsert(&types.Entity{Name: "Bob", Kind: types.KindPerson})

	// Jane works at both spellings; after the merge those edges must
	// collapse into one with combined weight and evidence.
	require.NoError(t, s.UpsertRelationship(ctx, &types.Relationship{
		SourceID: jane, TargetID: acme, Kind: types.RelWorksAt, Weight: 0.4,
		Evidence: []types.Evidence{{ProvenanceID: "crm:1", Source: "crm"}},
	}))
	require.NoError(t, s.UpsertRelationship(ctx, &types.Relationship{
		SourceID: jane, TargetID: acmeDot, Kind: types.RelWorksAt, Weight: 0.8,
		Evidence: []types.Evidence{{ProvenanceID: "crm:2", Source: "crm"}},
	}))
	require.NoError(t, s.UpsertRelationship(ctx, &types.Relationship{
		SourceID: bob, TargetID: acmeDot, Kind: types.RelWorksAt, Weight: 0.5,
	}))

	engine := NewEngine(s, nil)
	all, err := s.ListEntities(ctx, listAll())
	require.NoError(t, err)
	groups := engine.FindDuplicateGroups(all)
	require.Len(t, groups, 1)

	// Dry run changes nothing.
	report, err := engine.Merge(ctx, groups, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	n, err := s.CountEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	report, err = engine.Merge(ctx, groups, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Merged)
	assert.Zero(t, report.Failed)

	survivorID := report.Results[0].SurvivorID
	n, err = s.CountEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Enrichment carried onto the survivor.
	survivor, err := s.GetEntity(ctx, survivorID)
	require.NoError(t, err)
	assert.Equal(t, "acme.com", survivor.Enrichment.Get(types.FieldDomain))

	// Jane's two edges collapsed into one, max weight, both evidence entries.
	rels, err := s.RelationshipsFor(ctx, jane)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, survivorID, rels[0].TargetID)
	assert.Equal(t, 0.8, rels[0].Weight)
	assert.Len(t, rels[0].Evidence, 2)

	// Bob's edge re-pointed.
	rels, err = s.RelationshipsFor(ctx, bob)
	require.NoError(t, err)
	require.Len(t, rels, 1)
	assert.Equal(t, survivorID, rels[0].TargetID)
}

func listAll() storage.ListOptions {
	return storage.ListOptions{Limit: 500}
}
