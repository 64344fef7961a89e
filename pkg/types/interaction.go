package types

import "time"

// Interaction kinds.
const (
	InteractionNote    = "note"
	InteractionMeeting = "meeting"
	InteractionEmail   = "email"
	InteractionCall    = "call"
)

// ValidInteractionKinds contains all valid interaction kind values.
var ValidInteractionKinds = []string{
	InteractionNote,
	InteractionMeeting,
	InteractionEmail,
	InteractionCall,
}

// IsValidInteractionKind checks if the given kind is a valid interaction kind.
func IsValidInteractionKind(kind string) bool {
	for _, k := range ValidInteractionKinds {
		if kind == k {
			return true
		}
	}
	return false
}

// Interaction is a timestamped communication record attached to one entity.
// Interactions are created by the external sync collaborator; the enrichment
// pipeline only fills in Summary, Themes and Embedding. The core never
// deletes them.
type Interaction struct {
	ID         string    `json:"id"`        // Unique identifier (format: int:uuid)
	EntityID   string    `json:"entity_id"` // Owning entity
	Kind       string    `json:"kind"`      // note, meeting, email, call
	OccurredAt time.Time `json:"occurred_at"`
	Content    string    `json:"content"`

	// AI-derived fields, written by the summarization/embedding stages.
	Summary   string    `json:"summary,omitempty"`
	Themes    []string  `json:"themes,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NeedsSummary reports whether the summarization stage still has work to do
// for this interaction.
func (i *Interaction) NeedsSummary() bool {
	return i.Summary == "" && i.Content != ""
}
