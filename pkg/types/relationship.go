package types

import (
	"fmt"
	"time"
)

// Relationship kinds observed from sources or inferred by enrichment.
const (
	RelWorksAt    = "works_at"   // person -> organization employment
	RelFounderOf  = "founder_of" // person -> organization founding role
	RelInvestor   = "investor"   // organization/person -> organization investment
	RelConnection = "connection" // person -> person known relationship
	RelAdvisorOf  = "advisor_of" // person -> organization advisory role
	RelPartnerOf  = "partner_of" // organization -> organization partnership (inferred)
	RelCompetitor = "competitor" // organization -> organization competition (inferred)
)

// ValidRelationshipKinds contains all valid relationship kind values.
var ValidRelationshipKinds = []string{
	RelWorksAt,
	RelFounderOf,
	RelInvestor,
	RelConnection,
	RelAdvisorOf,
	RelPartnerOf,
	RelCompetitor,
}

// IsValidRelationshipKind checks if the given kind is a valid relationship kind.
func IsValidRelationshipKind(kind string) bool {
	for _, k := range ValidRelationshipKinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Evidence is a provenance reference supporting a relationship.
// Evidence entries are deduplicated by ProvenanceID when edges are combined.
type Evidence struct {
	ProvenanceID string    `json:"provenance_id"`         // Source record identifier (e.g. "crm:org:123", "int:uuid")
	Source       string    `json:"source"`                // Producing subsystem (crm, inference, manual)
	ObservedAt   time.Time `json:"observed_at,omitempty"` // When the supporting observation happened
}

// Relationship represents a directed, typed, weighted edge between two entities.
//
// (SourceID, TargetID, Kind) is the natural key: re-observing the same fact
// strengthens and refreshes the existing edge instead of creating a second one.
// The weight combination rule is the maximum of the stored and observed
// weights; evidence lists are appended with provenance-id dedup.
type Relationship struct {
	ID       string `json:"id"`        // Unique identifier (format: rel:source:target:kind)
	SourceID string `json:"source_id"` // Source entity ID
	TargetID string `json:"target_id"` // Target entity ID
	Kind     string `json:"kind"`      // Relationship kind

	Weight   float64    `json:"weight"`             // Strength (0.0-1.0)
	Evidence []Evidence `json:"evidence,omitempty"` // Provenance references

	FirstSeen time.Time `json:"first_seen"` // First observation of this edge
	LastSeen  time.Time `json:"last_seen"`  // Most recent observation
}

// NaturalKeyID builds the deterministic relationship ID for an edge key.
func NaturalKeyID(sourceID, targetID, kind string) string {
	return fmt.Sprintf("rel:%s:%s:%s", sourceID, targetID, kind)
}

// MergeEvidence appends newEvidence to existing, dropping entries whose
// ProvenanceID is already present. Order of existing entries is preserved.
func MergeEvidence(existing, newEvidence []Evidence) []Evidence {
	seen := make(map[string]bool, len(existing))
	for _, ev := range existing {
		seen[ev.ProvenanceID] = true
	}
	merged := existing
	for _, ev := range newEvidence {
		if ev.ProvenanceID == "" || seen[ev.ProvenanceID] {
			continue
		}
		seen[ev.ProvenanceID] = true
		merged = append(merged, ev)
	}
	return merged
}

// CombineWeight returns the deterministic combined weight for a re-observed
// edge: the maximum of the stored and observed weights. Max (rather than a
// recency-weighted average) was chosen so that a strong observation is never
// diluted by later weak ones.
func CombineWeight(stored, observed float64) float64 {
	if observed > stored {
		return observed
	}
	return stored
}
