package engine

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lanternvc/lantern/internal/llm"
	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

// Scoring weights for semantic search results. They sum to 1.0.
const (
	SimilarityWeight = 0.6
	StrengthWeight   = 0.4
)

// Warm-path scoring: edge strength dominates, closeness to the target
// breaks between comparable edges.
const (
	warmEdgeWeight      = 0.7
	warmClosenessWeight = 0.3
)

// SimilarityFloor is the minimum cosine similarity for semantic candidates.
const SimilarityFloor = 0.3

// ScoredResult is one ranked search hit.
type ScoredResult struct {
	Entity     *types.Entity `json:"entity"`
	Score      float64       `json:"score"`
	Similarity float64       `json:"similarity"` // 0 for keyword-only hits
	Strength   float64       `json:"strength"`   // strongest internal edge weight
}

// WarmPath is one ranked introduction path to a target.
type WarmPath struct {
	TeammateID   string  `json:"teammate_id"`
	TeammateName string  `json:"teammate_name"`
	ContactID    string  `json:"contact_id"`
	ContactName  string  `json:"contact_name"`
	Degree       int     `json:"degree"` // 1 = knows the target, 2 = knows someone who does
	Score        float64 `json:"score"`
}

// QueryCache caches query embeddings. The expirable LRU from
// hashicorp/golang-lru satisfies it; the cache is injected so its size and
// TTL are owned by the caller, not hidden in here.
type QueryCache = expirable.LRU[string, []float32]

// PathScorer ranks entities against a text query and finds warm
// introduction paths through internal teammates.
type PathScorer struct {
	store    storage.GraphReader
	embedder llm.EmbeddingGenerator // nil degrades to keyword-only search
	cache    *QueryCache            // may be nil
}

// NewPathScorer creates a path scorer. embedder and cache may be nil.
func NewPathScorer(store storage.GraphReader, embedder llm.EmbeddingGenerator, cache *QueryCache) *PathScorer {
	return &PathScorer{store: store, embedder: embedder, cache: cache}
}

// Search ranks entities against the query: semantic candidates above the
// similarity floor unioned with keyword matches, scored by
// SimilarityWeight·similarity + StrengthWeight·strongest-internal-edge.
// Embedding failures degrade to keyword-only; keyword search is the
// mandatory fallback and always runs.
func (s *PathScorer) Search(ctx context.Context, query string, limit int) ([]ScoredResult, error) {
	if limit < 1 {
		limit = 20
	}

	byID := make(map[string]*ScoredResult)

	if vec := s.queryEmbedding(ctx, query); vec != nil {
		scored, err := s.store.SimilarEntities(ctx, vec, SimilarityFloor, limit*2)
		if err != nil {
			log.Printf("pathscorer: semantic search failed, keyword-only: %v", err)
		} else {
			for _, sc := range scored {
				byID[sc.Entity.ID] = &ScoredResult{Entity: sc.Entity, Similarity: sc.Similarity}
			}
		}
	}

	keyword, err := s.store.SearchEntitiesByKeyword(ctx, query, limit*2)
	if err != nil {
		return nil, fmt.Errorf("pathscorer: keyword search: %w", err)
	}
	for _, e := range keyword {
		if _, ok := byID[e.ID]; !ok {
			byID[e.ID] = &ScoredResult{Entity: e}
		}
	}
	if len(byID) == 0 {
		return []ScoredResult{}, nil
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	strengths, err := s.store.StrongestInternalEdge(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("pathscorer: internal edge lookup: %w", err)
	}

	results := make([]ScoredResult, 0, len(byID))
	for id, r := range byID {
		r.Strength = strengths[id]
		r.Score = SimilarityWeight*r.Similarity + StrengthWeight*r.Strength
		results = append(results, *r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Entity.ID < results[j].Entity.ID
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// WarmPaths returns the top introduction paths to the target entity:
// (internal teammate, external contact) pairs where the contact is the
// target or directly connected to it. Score favors strong teammate edges
// and closer contacts; ties break deterministically by contact then
// teammate ID.
func (s *PathScorer) WarmPaths(ctx context.Context, targetID string, topN int) ([]WarmPath, error) {
	if topN < 1 {
		topN = 10
	}

	candidates, err := s.store.WarmPathCandidates(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("pathscorer: warm path candidates: %w", err)
	}

	paths := make([]WarmPath, 0, len(candidates))
	for _, c := range candidates {
		closeness := 1.0 / float64(c.Degree)
		paths = append(paths, WarmPath{
			TeammateID:   c.TeammateID,
			TeammateName: c.TeammateName,
			ContactID:    c.ContactID,
			ContactName:  c.ContactName,
			Degree:       c.Degree,
			Score:        warmEdgeWeight*c.EdgeWeight + warmClosenessWeight*closeness,
		})
	}
	sort.Slice(paths, func(i, j int) bool {
		if paths[i].Score != paths[j].Score {
			return paths[i].Score > paths[j].Score
		}
		if paths[i].ContactID != paths[j].ContactID {
			return paths[i].ContactID < paths[j].ContactID
		}
		return paths[i].TeammateID < paths[j].TeammateID
	})
	if len(paths) > topN {
		paths = paths[:topN]
	}
	return paths, nil
}

// queryEmbedding returns the cached or freshly generated query embedding,
// or nil when no embedder is configured or the provider fails.
func (s *PathScorer) queryEmbedding(ctx context.Context, query string) []float32 {
	if s.embedder == nil {
		return nil
	}
	key := types.NormalizeName(query)
	if s.cache != nil {
		if vec, ok := s.cache.Get(key); ok {
			return vec
		}
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		log.Printf("pathscorer: query embedding failed, keyword-only: %v", err)
		return nil
	}
	if s.cache != nil {
		s.cache.Add(key, vec)
	}
	return vec
}
