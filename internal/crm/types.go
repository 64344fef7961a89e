// Package crm fetches relationship data from the firm's CRM-style HTTP API
// and maps its records onto graph entities, edges and interactions. Every
// mapped fact carries `crm:`-prefixed provenance so merges and audits can
// trace it back to the source record.
package crm

import "time"

// Organization is a CRM organization record.
type Organization struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Domain      string   `json:"domain,omitempty"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	DealStage   string   `json:"deal_stage,omitempty"`
	IsPortfolio bool     `json:"is_portfolio"`
	IsPipeline  bool     `json:"is_pipeline"`
}

// Connection is a person-to-person link held in the CRM.
type Connection struct {
	PersonID string  `json:"person_id"`
	Strength float64 `json:"strength,omitempty"` // [0,1]; 0 means unknown
}

// Person is a CRM person record.
type Person struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	Email          string       `json:"email,omitempty"`
	Title          string       `json:"title,omitempty"`
	Location       string       `json:"location,omitempty"`
	OrganizationID string       `json:"organization_id,omitempty"`
	IsFounder      bool         `json:"is_founder"`
	IsInternal     bool         `json:"is_internal"` // teammate at the firm
	Connections    []Connection `json:"connections,omitempty"`
}

// Note is a CRM interaction record attached to a person.
type Note struct {
	ID         string    `json:"id"`
	PersonID   string    `json:"person_id"`
	Kind       string    `json:"kind"` // note, meeting, email, call
	OccurredAt time.Time `json:"occurred_at"`
	Content    string    `json:"content"`
}
