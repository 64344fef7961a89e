package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

// TopEntities returns the top limit entities under the mode's ranking plus
// the total number of entities the mode matches.
func (s *Store) TopEntities(ctx context.Context, mode storage.RetrievalMode, limit int) ([]*types.Entity, int, error) {
	if !mode.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown retrieval mode %q", storage.ErrInvalidInput, mode)
	}
	if limit < 1 {
		limit = 50
	}

	where := "TRUE"
	var args []interface{}
	switch mode {
	case storage.ModeHighImportance:
		where = "importance >= $1"
		args = append(args, storage.HighImportanceFloor)
	case storage.ModePortfolioOnly:
		where = "is_portfolio"
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to count entities for mode: %w", err)
	}

	query := fmt.Sprintf(`SELECT `+entityColumns+` FROM entities WHERE `+where+
		` ORDER BY importance DESC, id ASC LIMIT $%d`, len(args)+1)
	rows, err := s.db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("postgres: failed to query top entities: %w", err)
	}
	defer rows.Close()

	entities, err := scanEntities(rows)
	if err != nil {
		return nil, 0, err
	}
	return entities, total, nil
}

// Neighbors returns up to limit entities adjacent to id that are not in
// exclude, ordered by importance descending then ID.
func (s *Store) Neighbors(ctx context.Context, id string, exclude []string, limit int) ([]*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if limit < 1 {
		limit = 25
	}
	if exclude == nil {
		exclude = []string{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT `+prefixColumns("e", entityColumns)+`
		FROM entities e
		JOIN relationships r ON
			(r.source_id = $1 AND r.target_id = e.id) OR
			(r.target_id = $1 AND r.source_id = e.id)
		WHERE e.id <> ALL($2)
		ORDER BY e.importance DESC, e.id ASC
		LIMIT $3`, id, pq.Array(exclude), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query neighbors: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// SimilarEntities ranks entities by cosine similarity to the query vector.
// Uses the pgvector index when available; otherwise falls back to scanning
// embedded entities and ranking in process.
func (s *Store) SimilarEntities(ctx context.Context, embedding []float32, floor float64, limit int) ([]storage.ScoredEntity, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding cannot be empty", storage.ErrInvalidInput)
	}
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, store indexed with %d",
			storage.ErrDimensionMismatch, len(embedding), s.dimension)
	}
	if limit < 1 {
		limit = 25
	}

	if s.pgvectorAvailable {
		// <=> is cosine distance; similarity = 1 - distance.
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+entityColumns+`, 1 - (embedding_vec <=> $1) AS similarity
			FROM entities
			WHERE embedding_vec IS NOT NULL AND 1 - (embedding_vec <=> $1) >= $2
			ORDER BY embedding_vec <=> $1, id ASC
			LIMIT $3`, pgvector.NewVector(embedding), floor, limit)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to query similar entities: %w", err)
		}
		defer rows.Close()

		scored := make([]storage.ScoredEntity, 0)
		for rows.Next() {
			e, sim, err := scanScoredEntity(rows)
			if err != nil {
				return nil, fmt.Errorf("postgres: failed to scan scored entity: %w", err)
			}
			scored = append(scored, storage.ScoredEntity{Entity: e, Similarity: sim})
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("postgres: similar entity rows error: %w", err)
		}
		return scored, nil
	}

	// Fallback: scan + rank in process.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query embedded entities: %w", err)
	}
	defer rows.Close()

	entities, err := scanEntities(rows)
	if err != nil {
		return nil, err
	}
	scored := make([]storage.ScoredEntity, 0, len(entities))
	for _, e := range entities {
		if len(e.Embedding) != len(embedding) {
			continue
		}
		sim := cosineSimilarity(embedding, e.Embedding)
		if sim < floor {
			continue
		}
		scored = append(scored, storage.ScoredEntity{Entity: e, Similarity: sim})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Entity.ID < scored[j].Entity.ID
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// SearchEntitiesByKeyword performs a case-insensitive substring match on
// name, description and tags, ranked by importance.
func (s *Store) SearchEntitiesByKeyword(ctx context.Context, query string, limit int) ([]*types.Entity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: search query cannot be empty", storage.ErrInvalidInput)
	}
	if limit < 1 {
		limit = 25
	}
	pattern := "%" + query + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE name ILIKE $1 OR description ILIKE $1 OR tags::text ILIKE $1
		ORDER BY importance DESC, id ASC
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to search entities: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// StrongestInternalEdge returns, for each requested entity, the maximum
// weight among its edges whose other endpoint is an internal teammate.
func (s *Store) StrongestInternalEdge(ctx context.Context, ids []string) (map[string]float64, error) {
	result := make(map[string]float64)
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, MAX(weight) FROM (
			SELECT r.source_id AS entity_id, r.weight
			FROM relationships r JOIN entities i ON i.id = r.target_id
			WHERE i.is_internal AND r.source_id = ANY($1)
			UNION ALL
			SELECT r.target_id AS entity_id, r.weight
			FROM relationships r JOIN entities i ON i.id = r.source_id
			WHERE i.is_internal AND r.target_id = ANY($1)
		) internal_edges GROUP BY entity_id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query strongest internal edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var w float64
		if err := rows.Scan(&id, &w); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan internal edge: %w", err)
		}
		result[id] = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: internal edge rows error: %w", err)
	}
	return result, nil
}

// WarmPathCandidates enumerates (internal teammate -> external contact) pairs
// where the contact is the target itself (degree 1) or directly connected to
// it (degree 2). Edges are treated as undirected for reachability.
func (s *Store) WarmPathCandidates(ctx context.Context, targetID string) ([]storage.WarmPathCandidate, error) {
	if targetID == "" {
		return nil, fmt.Errorf("%w: target entity ID is required", storage.ErrInvalidInput)
	}

	rows, err := s.db.QueryContext(ctx, `
		WITH teammate_edges AS (
			SELECT r.source_id AS teammate_id, r.target_id AS contact_id, r.weight
			FROM relationships r JOIN entities t ON t.id = r.source_id
			WHERE t.is_internal
			UNION ALL
			SELECT r.target_id AS teammate_id, r.source_id AS contact_id, r.weight
			FROM relationships r JOIN entities t ON t.id = r.target_id
			WHERE t.is_internal
		)
		SELECT t.id, t.name, c.id, c.name, te.weight,
			CASE WHEN c.id = $1 THEN 1 ELSE 2 END AS degree
		FROM teammate_edges te
		JOIN entities t ON t.id = te.teammate_id
		JOIN entities c ON c.id = te.contact_id
		WHERE NOT c.is_internal AND c.id <> te.teammate_id
		AND (
			c.id = $1
			OR EXISTS (
				SELECT 1 FROM relationships x
				WHERE (x.source_id = c.id AND x.target_id = $1)
				   OR (x.target_id = c.id AND x.source_id = $1)
			)
		)
		ORDER BY degree ASC, te.weight DESC, c.id ASC`, targetID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query warm path candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]storage.WarmPathCandidate, 0)
	for rows.Next() {
		var c storage.WarmPathCandidate
		if err := rows.Scan(&c.TeammateID, &c.TeammateName, &c.ContactID, &c.ContactName,
			&c.EdgeWeight, &c.Degree); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan warm path candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: warm path rows error: %w", err)
	}
	return candidates, nil
}

// scanScoredEntity scans an entity row with a trailing similarity column.
func scanScoredEntity(row rowScanner) (*types.Entity, float64, error) {
	var (
		e              types.Entity
		tagsJSON       []byte
		enrichmentJSON []byte
		embedding      []byte
		firstSeen      sql.NullTime
		lastSeen       sql.NullTime
		sim            float64
	)
	err := row.Scan(&e.ID, &e.Name, &e.Kind, &e.Description, &tagsJSON, &enrichmentJSON,
		&embedding, &e.EmbeddingModel, &e.IsInternal, &e.IsPortfolio, &e.IsPipeline,
		&e.CuratedImportance, &e.Importance, &e.CreatedAt, &e.UpdatedAt, &firstSeen, &lastSeen, &sim)
	if err != nil {
		return nil, 0, err
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &e.Tags); err != nil {
			return nil, 0, fmt.Errorf("failed to decode tags: %w", err)
		}
	}
	if len(enrichmentJSON) > 0 {
		doc, err := types.ParseEnrichmentDoc(enrichmentJSON)
		if err != nil {
			return nil, 0, err
		}
		e.Enrichment = doc
	}
	e.Embedding = deserializeEmbedding(embedding)
	if firstSeen.Valid {
		e.FirstSeen = firstSeen.Time
	}
	if lastSeen.Valid {
		e.LastSeen = lastSeen.Time
	}
	return &e, sim, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
