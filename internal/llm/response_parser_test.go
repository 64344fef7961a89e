package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", `Sure! Here you go: {"a":1}`, `{"a":1}`},
		{"trailing prose", `{"a":1} Hope that helps!`, `{"a":1}`},
		{"nested braces", `{"a":{"b":2}}`, `{"a":{"b":2}}`},
		{"brace in string", `{"a":"}"}`, `{"a":"}"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.input))
		})
	}
}

func TestParseRelationshipResponse(t *testing.T) {
	raw := `{"relationships": [
		{"source": "Jane Smith", "target": "Acme Corp", "kind": "works_at", "weight": 0.6},
		{"source": "Jane Smith", "target": "Bob Lee", "kind": "connection", "weight": 0.4},
		{"source": "Jane Smith", "target": "Acme Corp", "kind": "owns", "weight": 0.5},
		{"source": "Jane Smith", "target": "jane smith", "kind": "connection", "weight": 0.5},
		{"source": "", "target": "Acme Corp", "kind": "connection", "weight": 0.5},
		{"source": "X Co", "target": "Y Co", "kind": "competitor", "weight": 1.5}
	]}`

	valid, quarantined, err := ParseRelationshipResponse(raw)
	require.NoError(t, err)
	assert.Len(t, valid, 2)
	assert.Equal(t, 4, quarantined)
	assert.Equal(t, "Jane Smith", valid[0].Source)
	assert.Equal(t, "works_at", valid[0].Kind)
}

func TestParseRelationshipResponse_Empty(t *testing.T) {
	valid, quarantined, err := ParseRelationshipResponse(`{"relationships": []}`)
	require.NoError(t, err)
	assert.Empty(t, valid)
	assert.Zero(t, quarantined)
}

func TestParseRelationshipResponse_Malformed(t *testing.T) {
	_, _, err := ParseRelationshipResponse(`the model refused to answer`)
	assert.Error(t, err)
}

func TestParseSummaryResponse(t *testing.T) {
	got, err := ParseSummaryResponse("```json\n" +
		`{"summary": "Discussed the series A round.", "themes": ["Fundraising", " fundraising ", "", "hiring"]}` +
		"\n```")
	require.NoError(t, err)
	assert.Equal(t, "Discussed the series A round.", got.Summary)
	assert.Equal(t, []string{"fundraising", "hiring"}, got.Themes)
}

func TestParseSummaryResponse_EmptySummary(t *testing.T) {
	_, err := ParseSummaryResponse(`{"summary": "  ", "themes": []}`)
	assert.Error(t, err)
}

func TestRelationshipInferencePrompt(t *testing.T) {
	prompt := RelationshipInferencePrompt([]EntityContext{
		{Name: "Jane Smith", Kind: "person", Tags: []string{"ai"}},
		{Name: "Acme Corp", Kind: "organization", Description: "fintech startup"},
	})
	assert.Contains(t, prompt, "Jane Smith (person)")
	assert.Contains(t, prompt, "Acme Corp (organization): fintech startup")
	assert.Contains(t, prompt, "works_at")
	assert.Contains(t, prompt, `{"relationships": []}`)
}
