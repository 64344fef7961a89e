package llm

import (
	"fmt"
	"strings"

	"github.com/lanternvc/lantern/pkg/types"
)

// EntityContext is the slice of an entity shown to the model for
// relationship inference.
type EntityContext struct {
	Name        string
	Kind        string
	Description string
	Tags        []string
}

// RelationshipInferencePrompt builds the prompt asking the model to infer
// relationships among the given entities. The model must answer with JSON
// only; ParseRelationshipResponse enforces the schema.
func RelationshipInferencePrompt(entities []EntityContext) string {
	var sb strings.Builder
	sb.WriteString("You analyze a venture capital firm's contact network.\n")
	sb.WriteString("Given the entities below, infer likely relationships between them.\n\n")
	sb.WriteString("Allowed relationship kinds: ")
	sb.WriteString(strings.Join(types.ValidRelationshipKinds, ", "))
	sb.WriteString("\n\nEntities:\n")
	for _, e := range entities {
		sb.WriteString(fmt.Sprintf("- %s (%s)", e.Name, e.Kind))
		if e.Description != "" {
			sb.WriteString(": " + e.Description)
		}
		if len(e.Tags) > 0 {
			sb.WriteString(" [tags: " + strings.Join(e.Tags, ", ") + "]")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(`
Respond with ONLY a JSON object in this exact format, no other text:
{"relationships": [{"source": "<entity name>", "target": "<entity name>", "kind": "<kind>", "weight": 0.0}]}

Rules:
- weight is your confidence in [0,1]; use at most 0.6 for inferred relationships
- only use entity names from the list above
- only use the allowed kinds
- return {"relationships": []} when nothing can be inferred`)
	return sb.String()
}

// SummarizationPrompt builds the prompt asking the model to summarize an
// interaction record and extract its themes.
func SummarizationPrompt(content string) string {
	return fmt.Sprintf(`Summarize this interaction record from a venture capital firm's notes.

Interaction:
%s

Respond with ONLY a JSON object in this exact format, no other text:
{"summary": "<one or two sentences>", "themes": ["<short theme>", ...]}

Rules:
- themes are 1-4 short lowercase phrases (e.g. "fundraising", "hiring")
- the summary must not invent facts absent from the record`, content)
}
