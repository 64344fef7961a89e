package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidEntityKind(t *testing.T) {
	assert.True(t, IsValidEntityKind(KindPerson))
	assert.True(t, IsValidEntityKind(KindOrganization))
	assert.False(t, IsValidEntityKind("company"))
	assert.False(t, IsValidEntityKind(""))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "acme corp", NormalizeName("  Acme   Corp "))
	assert.Equal(t, "jane smith", NormalizeName("Jane Smith"))
	assert.Equal(t, "", NormalizeName("   "))
}

func TestEntityIdentityKey(t *testing.T) {
	a := &Entity{Name: "Acme Corp", Kind: KindOrganization}
	b := &Entity{Name: "ACME  corp", Kind: KindOrganization}
	c := &Entity{Name: "Acme Corp", Kind: KindPerson}

	assert.Equal(t, a.IdentityKey(), b.IdentityKey())
	assert.NotEqual(t, a.IdentityKey(), c.IdentityKey())
}

func TestMergeEvidence_DedupsByProvenanceID(t *testing.T) {
	existing := []Evidence{
		{ProvenanceID: "crm:org:1", Source: "crm"},
		{ProvenanceID: "crm:org:2", Source: "crm"},
	}
	incoming := []Evidence{
		{ProvenanceID: "crm:org:2", Source: "crm"},
		{ProvenanceID: "inf:9", Source: "inference", ObservedAt: time.Now()},
		{ProvenanceID: "", Source: "manual"}, // empty provenance is dropped
	}

	merged := MergeEvidence(existing, incoming)
	require.Len(t, merged, 3)
	assert.Equal(t, "crm:org:1", merged[0].ProvenanceID)
	assert.Equal(t, "crm:org:2", merged[1].ProvenanceID)
	assert.Equal(t, "inf:9", merged[2].ProvenanceID)
}

func TestCombineWeight_TakesMax(t *testing.T) {
	assert.Equal(t, 0.8, CombineWeight(0.8, 0.3))
	assert.Equal(t, 0.9, CombineWeight(0.4, 0.9))
	assert.Equal(t, 0.5, CombineWeight(0.5, 0.5))
}

func TestNaturalKeyID(t *testing.T) {
	id := NaturalKeyID("ent:person:a", "ent:organization:b", RelWorksAt)
	assert.Equal(t, "rel:ent:person:a:ent:organization:b:works_at", id)
}

func TestEnrichmentDoc_MergeKeyByKey(t *testing.T) {
	doc := NewEnrichmentDoc()
	doc.Set(FieldEmail, "jane@acme.com")
	doc.Set(FieldTitle, "Engineer")

	incoming := NewEnrichmentDoc()
	incoming.Set(FieldTitle, "CTO")
	incoming.Set(FieldLocation, "Berlin")
	incoming.Set(FieldDomain, "") // empty values never overwrite

	doc.Merge(incoming)

	assert.Equal(t, "jane@acme.com", doc.Get(FieldEmail))
	assert.Equal(t, "CTO", doc.Get(FieldTitle))
	assert.Equal(t, "Berlin", doc.Get(FieldLocation))
	assert.Equal(t, "", doc.Get(FieldDomain))
}

func TestEnrichmentDoc_Validate(t *testing.T) {
	var nilDoc *EnrichmentDoc
	assert.NoError(t, nilDoc.Validate())

	ok := NewEnrichmentDoc()
	assert.NoError(t, ok.Validate())

	future := &EnrichmentDoc{SchemaVersion: EnrichmentSchemaVersion + 1}
	assert.Error(t, future.Validate())

	badKey := &EnrichmentDoc{SchemaVersion: 1, Fields: map[string]string{"": "x"}}
	assert.Error(t, badKey.Validate())
}

func TestParseEnrichmentDoc(t *testing.T) {
	doc, err := ParseEnrichmentDoc(nil)
	require.NoError(t, err)
	assert.Nil(t, doc)

	doc, err = ParseEnrichmentDoc([]byte(`{"schema_version":1,"fields":{"email":"a@b.co"}}`))
	require.NoError(t, err)
	assert.Equal(t, "a@b.co", doc.Get(FieldEmail))

	// Missing version defaults to the current version.
	doc, err = ParseEnrichmentDoc([]byte(`{"fields":{"title":"CEO"}}`))
	require.NoError(t, err)
	assert.Equal(t, EnrichmentSchemaVersion, doc.SchemaVersion)

	_, err = ParseEnrichmentDoc([]byte(`{"schema_version":99}`))
	assert.Error(t, err)

	_, err = ParseEnrichmentDoc([]byte(`not json`))
	assert.Error(t, err)
}

func TestInteractionNeedsSummary(t *testing.T) {
	i := &Interaction{Content: "met at the conference"}
	assert.True(t, i.NeedsSummary())
	i.Summary = "done"
	assert.False(t, i.NeedsSummary())
	assert.False(t, (&Interaction{}).NeedsSummary())
}

func TestSyncStateIsRunning(t *testing.T) {
	assert.True(t, (&SyncState{Status: SyncRunning}).IsRunning())
	assert.False(t, (&SyncState{Status: SyncIdle}).IsRunning())
	assert.False(t, (&SyncState{Status: SyncError}).IsRunning())
}
