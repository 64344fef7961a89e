package llm

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/lanternvc/lantern/pkg/types"
)

// InferredRelationship is one schema-valid relationship from a model
// response. Source and Target are entity names; the caller resolves them to
// IDs before writing edges.
type InferredRelationship struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Kind   string  `json:"kind"`
	Weight float64 `json:"weight"`
}

type relationshipInferenceResponse struct {
	Relationships []InferredRelationship `json:"relationships"`
}

// InteractionSummary is a schema-valid summarization response.
type InteractionSummary struct {
	Summary string   `json:"summary"`
	Themes  []string `json:"themes"`
}

// extractJSON extracts the first complete JSON object from text that may
// contain markdown fences or explanations around it. Models add those
// despite instructions.
func extractJSON(text string) string {
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return text
	}

	braceCount := 0
	inString := false
	escape := false
	for i := start; i < len(text); i++ {
		char := text[i]
		if escape {
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			inString = !inString
			continue
		}
		if !inString {
			switch char {
			case '{':
				braceCount++
			case '}':
				braceCount--
				if braceCount == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return text
}

// ParseRelationshipResponse parses a relationship-inference response and
// filters out schema-invalid entries: unknown kinds, out-of-range weights,
// self-edges and empty names are quarantined (logged and counted), never
// written. Returns the valid entries, the quarantined count, and an error
// only when the JSON itself is malformed.
func ParseRelationshipResponse(raw string) ([]InferredRelationship, int, error) {
	var resp relationshipInferenceResponse
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, 0, fmt.Errorf("malformed relationship inference response: %w", err)
	}

	valid := make([]InferredRelationship, 0, len(resp.Relationships))
	quarantined := 0
	for _, rel := range resp.Relationships {
		rel.Source = strings.TrimSpace(rel.Source)
		rel.Target = strings.TrimSpace(rel.Target)
		switch {
		case rel.Source == "" || rel.Target == "":
			log.Printf("llm: quarantined inferred relationship with empty endpoint")
			quarantined++
		case strings.EqualFold(rel.Source, rel.Target):
			log.Printf("llm: quarantined self-referential inference %q", rel.Source)
			quarantined++
		case !types.IsValidRelationshipKind(rel.Kind):
			log.Printf("llm: quarantined inferred relationship with unknown kind %q", rel.Kind)
			quarantined++
		case rel.Weight < 0 || rel.Weight > 1:
			log.Printf("llm: quarantined inferred relationship with weight %f", rel.Weight)
			quarantined++
		default:
			valid = append(valid, rel)
		}
	}
	return valid, quarantined, nil
}

// ParseSummaryResponse parses a summarization response. An empty summary is
// an error; themes are trimmed and deduplicated, empty ones dropped.
func ParseSummaryResponse(raw string) (*InteractionSummary, error) {
	var resp InteractionSummary
	if err := json.Unmarshal([]byte(extractJSON(raw)), &resp); err != nil {
		return nil, fmt.Errorf("malformed summarization response: %w", err)
	}
	resp.Summary = strings.TrimSpace(resp.Summary)
	if resp.Summary == "" {
		return nil, fmt.Errorf("summarization response has empty summary")
	}

	seen := make(map[string]bool, len(resp.Themes))
	themes := make([]string, 0, len(resp.Themes))
	for _, t := range resp.Themes {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		themes = append(themes, t)
	}
	resp.Themes = themes
	return &resp, nil
}
