package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

// Node budget bounds per retrieval call.
const (
	DefaultMaxNodes = 50
	MaxNodesPerCall = 200
)

// DefaultCallTimeout bounds each retrieval call. On deadline the partial
// result is returned with HasMore set.
const DefaultCallTimeout = 5 * time.Second

// GraphView is one budget-bounded slice of the graph.
type GraphView struct {
	Entities []*types.Entity       `json:"entities"`
	Edges    []*types.Relationship `json:"edges"`

	// HasMore reports whether another call would return more nodes.
	HasMore bool `json:"has_more"`

	// TotalAvailable is the number of entities the mode matches in total.
	// Only set by LoadInitial.
	TotalAvailable int `json:"total_available,omitempty"`
}

// Retrieval serves progressive graph loads. It is stateless per call: the
// client owns the loaded set and passes it back on expansion.
type Retrieval struct {
	store       retrievalStore
	callTimeout time.Duration
}

type retrievalStore interface {
	storage.GraphReader
	storage.RelationshipStore
}

// NewRetrieval creates a retrieval engine. A zero timeout uses the default.
func NewRetrieval(store retrievalStore, callTimeout time.Duration) *Retrieval {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Retrieval{store: store, callTimeout: callTimeout}
}

// clampBudget normalizes a requested node budget into [1, MaxNodesPerCall].
func clampBudget(maxNodes int) int {
	if maxNodes < 1 {
		return DefaultMaxNodes
	}
	if maxNodes > MaxNodesPerCall {
		return MaxNodesPerCall
	}
	return maxNodes
}

// LoadInitial returns the top maxNodes entities under the mode's ranking
// plus every edge among the returned set.
func (r *Retrieval) LoadInitial(ctx context.Context, mode storage.RetrievalMode, maxNodes int) (*GraphView, error) {
	maxNodes = clampBudget(maxNodes)
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	entities, total, err := r.store.TopEntities(ctx, mode, maxNodes)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}

	view := &GraphView{
		Entities:       entities,
		Edges:          []*types.Relationship{},
		HasMore:        total > len(entities),
		TotalAvailable: total,
	}

	edges, err := r.store.EdgesAmong(ctx, entityIDs(entities))
	if err != nil {
		// Deadline mid-call: the nodes are still useful, ship them and let
		// the client come back for the rest.
		if errors.Is(err, context.DeadlineExceeded) {
			view.HasMore = true
			return view, nil
		}
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	view.Edges = edges
	return view, nil
}

// Expand returns up to maxNodes NEW neighbors of nodeID that are not in
// alreadyLoaded, plus the edges connecting the new nodes to the loaded set
// and to each other. An exhausted neighborhood returns an empty view, not
// an error.
func (r *Retrieval) Expand(ctx context.Context, nodeID string, alreadyLoaded []string, maxNodes int) (*GraphView, error) {
	if nodeID == "" {
		return nil, fmt.Errorf("retrieval: %w: node ID is required", storage.ErrInvalidInput)
	}
	maxNodes = clampBudget(maxNodes)
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	// The anchor node never counts as new.
	exclude := make([]string, 0, len(alreadyLoaded)+1)
	exclude = append(exclude, alreadyLoaded...)
	if !containsID(exclude, nodeID) {
		exclude = append(exclude, nodeID)
	}

	// Fetch one extra to learn whether the neighborhood is exhausted.
	neighbors, err := r.store.Neighbors(ctx, nodeID, exclude, maxNodes+1)
	if err != nil {
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	hasMore := len(neighbors) > maxNodes
	if hasMore {
		neighbors = neighbors[:maxNodes]
	}

	view := &GraphView{
		Entities: neighbors,
		Edges:    []*types.Relationship{},
		HasMore:  hasMore,
	}
	if len(neighbors) == 0 {
		return view, nil
	}

	// Edges among the union of loaded and new nodes, filtered to the ones
	// that touch a new node; the client already has the rest.
	newIDs := make(map[string]bool, len(neighbors))
	union := append(entityIDs(neighbors), exclude...)
	for _, e := range neighbors {
		newIDs[e.ID] = true
	}
	edges, err := r.store.EdgesAmong(ctx, union)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			view.HasMore = true
			return view, nil
		}
		return nil, fmt.Errorf("retrieval: %w", err)
	}
	for _, edge := range edges {
		if newIDs[edge.SourceID] || newIDs[edge.TargetID] {
			view.Edges = append(view.Edges, edge)
		}
	}
	return view, nil
}

func entityIDs(entities []*types.Entity) []string {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	return ids
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
