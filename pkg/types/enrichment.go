package types

import (
	"encoding/json"
	"fmt"
)

// EnrichmentSchemaVersion is the current enrichment document schema version.
// Documents with a higher version than this are rejected rather than
// interpreted optimistically.
const EnrichmentSchemaVersion = 1

// Well-known enrichment field keys. Fields outside this list are allowed but
// carry no semantics in the core.
const (
	FieldEmail       = "email"        // person primary email, used as dedup identity key
	FieldDomain      = "domain"       // organization website domain
	FieldTitle       = "title"        // person job title
	FieldDealStage   = "deal_stage"   // pipeline stage label from the CRM
	FieldLocation    = "location"     // free-text location
	FieldDescription = "description"  // provider-supplied description
)

// EnrichmentDoc is a versioned, validated key-value document holding
// structured enrichment data for an entity. Provider output is validated
// before being trusted; malformed documents are rejected, not quarantined
// into the graph.
type EnrichmentDoc struct {
	SchemaVersion int               `json:"schema_version"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// NewEnrichmentDoc creates an empty document at the current schema version.
func NewEnrichmentDoc() *EnrichmentDoc {
	return &EnrichmentDoc{
		SchemaVersion: EnrichmentSchemaVersion,
		Fields:        make(map[string]string),
	}
}

// Validate checks the document shape. A nil document is valid (no enrichment).
func (d *EnrichmentDoc) Validate() error {
	if d == nil {
		return nil
	}
	if d.SchemaVersion < 1 || d.SchemaVersion > EnrichmentSchemaVersion {
		return fmt.Errorf("unsupported enrichment schema version %d", d.SchemaVersion)
	}
	for k := range d.Fields {
		if k == "" {
			return fmt.Errorf("enrichment document contains an empty field key")
		}
	}
	return nil
}

// Get returns the value for key, or "" when the document or key is absent.
func (d *EnrichmentDoc) Get(key string) string {
	if d == nil || d.Fields == nil {
		return ""
	}
	return d.Fields[key]
}

// Set stores a value, allocating the field map when needed.
func (d *EnrichmentDoc) Set(key, value string) {
	if d.Fields == nil {
		d.Fields = make(map[string]string)
	}
	d.Fields[key] = value
}

// Merge folds incoming fields into the document key-by-key. Incoming non-empty
// values win; existing keys absent from incoming are preserved. This is the
// merge rule applied by UpsertEntity — enrichment is never replaced wholesale.
func (d *EnrichmentDoc) Merge(incoming *EnrichmentDoc) {
	if incoming == nil {
		return
	}
	for k, v := range incoming.Fields {
		if v == "" {
			continue
		}
		d.Set(k, v)
	}
}

// ParseEnrichmentDoc decodes and validates a JSON enrichment document.
// An empty input yields a nil document.
func ParseEnrichmentDoc(raw []byte) (*EnrichmentDoc, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var doc EnrichmentDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode enrichment document: %w", err)
	}
	if doc.SchemaVersion == 0 {
		doc.SchemaVersion = EnrichmentSchemaVersion
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}
