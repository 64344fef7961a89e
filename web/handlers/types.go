package handlers

import (
	"time"

	"github.com/lanternvc/lantern/internal/engine"
	"github.com/lanternvc/lantern/pkg/types"
)

// ErrorResponse is the standard error response format for the API.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ExpandRequest is the request format for POST /api/graph/expand. Loaded
// carries the IDs the client already holds so the server never resends them.
type ExpandRequest struct {
	NodeID   string   `json:"node_id"`
	Loaded   []string `json:"loaded,omitempty"`
	MaxNodes int      `json:"max_nodes,omitempty"`
}

// EntityResponse is the response format for GET /api/entities/{id}: the
// entity plus every edge it participates in.
type EntityResponse struct {
	Entity        *types.Entity         `json:"entity"`
	Relationships []*types.Relationship `json:"relationships"`
}

// EntityListResponse is the response format for GET /api/entities.
type EntityListResponse struct {
	Entities []*types.Entity `json:"entities"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Offset   int             `json:"offset"`
}

// SearchResponse is the response format for GET /api/search.
type SearchResponse struct {
	Results []engine.ScoredResult `json:"results"`
	Total   int                   `json:"total"`
	Query   string                `json:"query"`
}

// WarmPathsResponse is the response format for GET /api/entities/{id}/warm-paths.
type WarmPathsResponse struct {
	TargetID string            `json:"target_id"`
	Paths    []engine.WarmPath `json:"paths"`
}

// SyncAcceptedResponse is the response format for POST /api/sync.
type SyncAcceptedResponse struct {
	RunID   string `json:"run_id"`
	Message string `json:"message"`
}

// StatsResponse is the response format for GET /api/stats.
type StatsResponse struct {
	Entities      int              `json:"entities"`
	Relationships int              `json:"relationships"`
	Interactions  int              `json:"interactions"`
	Sync          *types.SyncState `json:"sync,omitempty"`
}

// ProgressEvent is broadcast to websocket clients on pipeline stage
// transitions.
type ProgressEvent struct {
	Type   string    `json:"type"` // always "sync_progress"
	Stage  string    `json:"stage"`
	Status string    `json:"status"` // started, completed, failed
	Time   time.Time `json:"time"`
}
