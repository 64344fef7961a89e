package storage

import (
	"errors"

	"github.com/lanternvc/lantern/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict indicates a concurrent pipeline run already holds the gate.
	ErrConflict = errors.New("pipeline run already in progress")

	// ErrDimensionMismatch indicates a query vector whose length differs from
	// the dimension the store was indexed with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// RetrievalMode selects a ranking/filter preset for initial graph loads.
type RetrievalMode string

const (
	// ModeOverview ranks all entities by composite importance.
	ModeOverview RetrievalMode = "overview"

	// ModeHighImportance restricts to entities above the importance floor.
	ModeHighImportance RetrievalMode = "high-importance"

	// ModePortfolioOnly restricts to portfolio entities.
	ModePortfolioOnly RetrievalMode = "portfolio-only"
)

// HighImportanceFloor is the minimum composite importance for the
// high-importance retrieval mode.
const HighImportanceFloor = 0.5

// Valid reports whether the mode is one of the supported presets.
func (m RetrievalMode) Valid() bool {
	switch m {
	case ModeOverview, ModeHighImportance, ModePortfolioOnly:
		return true
	}
	return false
}

// ListOptions provides filtering and pagination for entity list operations.
type ListOptions struct {
	// Kind filters by entity kind. Empty string means no filter.
	Kind string

	// PortfolioOnly restricts results to portfolio entities.
	PortfolioOnly bool

	// InternalOnly restricts results to internal teammates.
	InternalOnly bool

	// Limit is the number of items to return (default: 50, max: 500).
	Limit int

	// Offset is the number of items to skip.
	Offset int

	// SortBy specifies the field to sort by. Whitelisted to prevent SQL
	// injection; invalid values fall back to "updated_at".
	SortBy string

	// SortOrder is "asc" or "desc" (default: "desc").
	SortOrder string
}

// Normalize applies defaults and validates the ListOptions.
func (o *ListOptions) Normalize() {
	allowedSortFields := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"name":       true,
		"importance": true,
	}

	if !allowedSortFields[o.SortBy] {
		o.SortBy = "updated_at"
	}

	if o.SortOrder != "asc" && o.SortOrder != "desc" {
		o.SortOrder = "desc"
	}

	if o.Limit < 1 {
		o.Limit = 50
	}

	if o.Limit > 500 {
		o.Limit = 500
	}

	if o.Offset < 0 {
		o.Offset = 0
	}
}

// ScoredEntity pairs an entity with its similarity to a query vector.
type ScoredEntity struct {
	Entity     *types.Entity
	Similarity float64
}

// WarmPathCandidate is one (teammate -> contact) pair produced by
// WarmPathCandidates, scored later by the path scorer.
type WarmPathCandidate struct {
	// TeammateID / TeammateName identify the internal teammate holding the
	// relationship.
	TeammateID   string
	TeammateName string

	// ContactID / ContactName identify the external contact the teammate can
	// reach.
	ContactID   string
	ContactName string

	// EdgeWeight is the teammate->contact relationship strength.
	EdgeWeight float64

	// Degree is the contact's distance to the target: 1 when the contact is
	// the target itself, 2 when the contact is directly connected to it.
	Degree int
}
