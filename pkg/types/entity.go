package types

import (
	"fmt"
	"strings"
	"time"
)

// Entity kinds. Entities are people or organizations; every other
// classification lives in tags or the enrichment document.
const (
	KindPerson       = "person"
	KindOrganization = "organization"
)

// ValidEntityKinds contains all valid entity kind values.
var ValidEntityKinds = []string{KindPerson, KindOrganization}

// IsValidEntityKind checks if the given kind is a valid entity kind.
func IsValidEntityKind(kind string) bool {
	for _, k := range ValidEntityKinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Entity represents a person or organization node in the knowledge graph.
type Entity struct {
	// Core identification fields
	ID          string    `json:"id"`                    // Unique identifier (format: ent:kind:hash), immutable once assigned
	Name        string    `json:"name"`                  // Display name
	Kind        string    `json:"kind"`                  // Entity kind (person, organization)
	Description string    `json:"description,omitempty"` // Human-readable summary
	Tags        []string  `json:"tags,omitempty"`        // Taxonomy / classification tags
	CreatedAt   time.Time `json:"created_at"`            // Creation timestamp
	UpdatedAt   time.Time `json:"updated_at"`            // Last update timestamp
	FirstSeen   time.Time `json:"first_seen,omitempty"`  // First observation in any source
	LastSeen    time.Time `json:"last_seen,omitempty"`   // Most recent observation

	// Structured enrichment payload, merged key-by-key on upsert.
	Enrichment *EnrichmentDoc `json:"enrichment,omitempty"`

	// Embedding for semantic ranking. An entity with a nil embedding is
	// excluded from similarity search and served by the keyword fallback.
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model,omitempty"`

	// Membership flags. Not mutually exclusive.
	IsInternal  bool `json:"is_internal"`  // Member of the investment team
	IsPortfolio bool `json:"is_portfolio"` // Portfolio company or affiliated person
	IsPipeline  bool `json:"is_pipeline"`  // Active deal pipeline

	// Ranking signals
	CuratedImportance float64 `json:"curated_importance,omitempty"` // Manually assigned signal (0.0-1.0)
	Importance        float64 `json:"importance"`                   // Derived composite score (0.0-1.0), overwritten by metrics runs
}

// NormalizeName returns the canonical form of an entity name used for
// identity matching: lowercased, trimmed, inner whitespace collapsed.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// IdentityKey returns the natural key for dedup-safe upserts.
// Two entities with the same identity key are the same entity.
func (e *Entity) IdentityKey() string {
	return fmt.Sprintf("%s|%s", NormalizeName(e.Name), e.Kind)
}

// HasEmbedding reports whether the entity carries a vector embedding.
func (e *Entity) HasEmbedding() bool {
	return len(e.Embedding) > 0
}
