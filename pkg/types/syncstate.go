package types

import "time"

// Pipeline run status values for the singleton SyncState record.
const (
	SyncIdle    = "idle"    // No run in progress
	SyncRunning = "running" // A run holds the pipeline mutex
	SyncError   = "error"   // Last run failed; Message carries stage + cause
)

// SyncState describes pipeline run status. Exactly one current record is
// authoritative: it is both the concurrency gate for pipeline runs
// (check-and-set idle/error -> running) and externally visible health
// telemetry. History rows may be retained for audit but are never consulted
// by the gate.
type SyncState struct {
	Status    string    `json:"status"`            // idle, running, error
	Stage     string    `json:"stage,omitempty"`   // Current or failing stage name
	Message   string    `json:"message,omitempty"` // Free-text status / error detail
	UpdatedAt time.Time `json:"updated_at"`
}

// IsRunning reports whether a pipeline run currently holds the gate.
func (s *SyncState) IsRunning() bool {
	return s.Status == SyncRunning
}
