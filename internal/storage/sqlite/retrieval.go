package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

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

	where := "1=1"
	var args []interface{}
	switch mode {
	case storage.ModeHighImportance:
		where = "importance >= ?"
		args = append(args, storage.HighImportanceFloor)
	case storage.ModePortfolioOnly:
		where = "is_portfolio = 1"
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("sqlite: failed to count entities for mode: %w", err)
	}

	query := `SELECT ` + entityColumns + ` FROM entities WHERE ` + where +
		` ORDER BY importance DESC, id ASC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("sqlite: failed to query top entities: %w", err)
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

	query := `
		SELECT DISTINCT ` + prefixColumns("e", entityColumns) + `
		FROM entities e
		JOIN relationships r ON
			(r.source_id = ? AND r.target_id = e.id) OR
			(r.target_id = ? AND r.source_id = e.id)`
	args := []interface{}{id, id}

	if len(exclude) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(exclude)), ",")
		query += fmt.Sprintf(` WHERE e.id NOT IN (%s)`, placeholders)
		for _, ex := range exclude {
			args = append(args, ex)
		}
	}
	query += ` ORDER BY e.importance DESC, e.id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query neighbors: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// SimilarEntities ranks entities by cosine similarity to the query vector.
// SQLite has no vector index, so this scans every embedded entity and ranks
// in process. Acceptable for the local-development dataset sizes this
// backend targets.
func (s *Store) SimilarEntities(ctx context.Context, embedding []float32, floor float64, limit int) ([]storage.ScoredEntity, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: query embedding cannot be empty", storage.ErrInvalidInput)
	}
	if s.dimension > 0 && len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, store indexed with %d",
			storage.ErrDimensionMismatch, len(embedding), s.dimension)
	}
	if limit < 1 {
		limit = 25
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query embedded entities: %w", err)
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
	pattern := "%" + strings.ToLower(query) + "%"

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE name_norm LIKE ? OR LOWER(description) LIKE ? OR LOWER(tags) LIKE ?
		ORDER BY importance DESC, id ASC
		LIMIT ?`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to search entities: %w", err)
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
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, 2*len(ids))
	for _, id := range ids {
		args = append(args, id)
	}
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT entity_id, MAX(weight) FROM (
			SELECT r.source_id AS entity_id, r.weight
			FROM relationships r JOIN entities i ON i.id = r.target_id
			WHERE i.is_internal = 1 AND r.source_id IN (%s)
			UNION ALL
			SELECT r.target_id AS entity_id, r.weight
			FROM relationships r JOIN entities i ON i.id = r.source_id
			WHERE i.is_internal = 1 AND r.target_id IN (%s)
		) GROUP BY entity_id`, placeholders, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query strongest internal edges: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var w float64
		if err := rows.Scan(&id, &w); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan internal edge: %w", err)
		}
		result[id] = w
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: internal edge rows error: %w", err)
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

	// undirected view of every teammate->contact edge, then keep the ones
	// whose contact is the target or shares an edge with the target.
	rows, err := s.db.QueryContext(ctx, `
		WITH teammate_edges AS (
			SELECT r.source_id AS teammate_id, r.target_id AS contact_id, r.weight
			FROM relationships r JOIN entities t ON t.id = r.source_id
			WHERE t.is_internal = 1
			UNION ALL
			SELECT r.target_id AS teammate_id, r.source_id AS contact_id, r.weight
			FROM relationships r JOIN entities t ON t.id = r.target_id
			WHERE t.is_internal = 1
		)
		SELECT t.id, t.name, c.id, c.name, te.weight,
			CASE WHEN c.id = ? THEN 1 ELSE 2 END AS degree
		FROM teammate_edges te
		JOIN entities t ON t.id = te.teammate_id
		JOIN entities c ON c.id = te.contact_id
		WHERE c.is_internal = 0 AND c.id <> te.teammate_id
		AND (
			c.id = ?
			OR EXISTS (
				SELECT 1 FROM relationships x
				WHERE (x.source_id = c.id AND x.target_id = ?)
				   OR (x.target_id = c.id AND x.source_id = ?)
			)
		)
		ORDER BY degree ASC, te.weight DESC, c.id ASC`,
		targetID, targetID, targetID, targetID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to query warm path candidates: %w", err)
	}
	defer rows.Close()

	candidates := make([]storage.WarmPathCandidate, 0)
	for rows.Next() {
		var c storage.WarmPathCandidate
		if err := rows.Scan(&c.TeammateID, &c.TeammateName, &c.ContactID, &c.ContactName,
			&c.EdgeWeight, &c.Degree); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan warm path candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: warm path rows error: %w", err)
	}
	return candidates, nil
}

// prefixColumns qualifies a comma-separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
