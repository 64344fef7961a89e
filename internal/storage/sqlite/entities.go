package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

// entityColumns is the shared SELECT column list for entity scans.
const entityColumns = `id, name, kind, description, tags, enrichment, embedding, embedding_model,
	is_internal, is_portfolio, is_pipeline, curated_importance, importance,
	created_at, updated_at, first_seen, last_seen`

// entityID builds the deterministic identifier for a new entity.
func entityID(kind, nameNorm string) string {
	h := uint32(0)
	for _, c := range nameNorm {
		h = h*31 + uint32(c)
	}
	return fmt.Sprintf("ent:%s:%08x", kind, h)
}

// UpsertEntity inserts the candidate if no entity exists with the same
// normalized name+kind, otherwise updates the fields supplied. The enrichment
// payload is merged key-by-key. Returns the canonical entity ID.
func (s *Store) UpsertEntity(ctx context.Context, e *types.Entity) (string, error) {
	if e == nil {
		return "", storage.ErrInvalidInput
	}
	if e.Name == "" {
		return "", fmt.Errorf("%w: entity name is required", storage.ErrInvalidInput)
	}
	if !types.IsValidEntityKind(e.Kind) {
		return "", fmt.Errorf("%w: invalid entity kind %q", storage.ErrInvalidInput, e.Kind)
	}
	if err := e.Enrichment.Validate(); err != nil {
		return "", fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	nameNorm := types.NormalizeName(e.Name)
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := s.getEntityByKeyTx(ctx, tx, nameNorm, e.Kind)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}

	if existing == nil {
		id := e.ID
		if id == "" {
			id = entityID(e.Kind, nameNorm)
		}
		tagsJSON, _ := json.Marshal(tagsOrEmpty(e.Tags))
		enrichmentJSON, err := marshalEnrichment(e.Enrichment)
		if err != nil {
			return "", err
		}
		firstSeen := e.FirstSeen
		if firstSeen.IsZero() {
			firstSeen = now
		}
		lastSeen := e.LastSeen
		if lastSeen.IsZero() {
			lastSeen = now
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entities (id, name, name_norm, kind, description, tags, enrichment,
				embedding, embedding_model, is_internal, is_portfolio, is_pipeline,
				curated_importance, importance, created_at, updated_at, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, e.Name, nameNorm, e.Kind, e.Description, string(tagsJSON), enrichmentJSON,
			serializeEmbedding(e.Embedding), e.EmbeddingModel,
			boolToInt(e.IsInternal), boolToInt(e.IsPortfolio), boolToInt(e.IsPipeline),
			e.CuratedImportance, e.Importance, now, now, firstSeen, lastSeen,
		)
		if err != nil {
			return "", fmt.Errorf("sqlite: failed to insert entity: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("sqlite: failed to commit entity insert: %w", err)
		}
		return id, nil
	}

	// Existing entity: merge supplied fields. The ID is immutable; flags are
	// OR-ed so a true observation is never unset by a source that doesn't
	// know about it.
	merged := existing
	if e.Description != "" {
		merged.Description = e.Description
	}
	merged.Tags = unionTags(merged.Tags, e.Tags)
	if merged.Enrichment == nil {
		merged.Enrichment = types.NewEnrichmentDoc()
	}
	merged.Enrichment.Merge(e.Enrichment)
	merged.IsInternal = merged.IsInternal || e.IsInternal
	merged.IsPortfolio = merged.IsPortfolio || e.IsPortfolio
	merged.IsPipeline = merged.IsPipeline || e.IsPipeline
	if e.CuratedImportance > merged.CuratedImportance {
		merged.CuratedImportance = e.CuratedImportance
	}

	tagsJSON, _ := json.Marshal(tagsOrEmpty(merged.Tags))
	enrichmentJSON, err := marshalEnrichment(merged.Enrichment)
	if err != nil {
		return "", err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE entities
		SET description = ?, tags = ?, enrichment = ?,
			is_internal = ?, is_portfolio = ?, is_pipeline = ?,
			curated_importance = ?, updated_at = ?, last_seen = ?
		WHERE id = ?`,
		merged.Description, string(tagsJSON), enrichmentJSON,
		boolToInt(merged.IsInternal), boolToInt(merged.IsPortfolio), boolToInt(merged.IsPipeline),
		merged.CuratedImportance, now, now, merged.ID,
	)
	if err != nil {
		return "", fmt.Errorf("sqlite: failed to update entity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("sqlite: failed to commit entity update: %w", err)
	}
	return merged.ID, nil
}

// GetEntity retrieves an entity by ID. Returns storage.ErrNotFound when absent.
func (s *Store) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to get entity: %w", err)
	}
	return e, nil
}

// ListEntities retrieves entities with filtering and pagination.
func (s *Store) ListEntities(ctx context.Context, opts storage.ListOptions) ([]*types.Entity, error) {
	opts.Normalize()

	query := `SELECT ` + entityColumns + ` FROM entities WHERE 1=1`
	var args []interface{}
	if opts.Kind != "" {
		query += ` AND kind = ?`
		args = append(args, opts.Kind)
	}
	if opts.PortfolioOnly {
		query += ` AND is_portfolio = 1`
	}
	if opts.InternalOnly {
		query += ` AND is_internal = 1`
	}
	query += fmt.Sprintf(` ORDER BY %s %s, id ASC LIMIT ? OFFSET ?`, opts.SortBy, opts.SortOrder)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list entities: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// ListEntitiesMissingEmbedding returns up to limit entities without an
// embedding, oldest first.
func (s *Store) ListEntitiesMissingEmbedding(ctx context.Context, limit int) ([]*types.Entity, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entityColumns+` FROM entities
		WHERE embedding IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list entities missing embedding: %w", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// DeleteEntity removes the entity. Relationships and interactions referencing
// it are removed in the same transaction via ON DELETE CASCADE.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	result, err := s.db.ExecContext(ctx, `DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to delete entity: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateEntityEmbedding stores the embedding vector and model name.
func (s *Store) UpdateEntityEmbedding(ctx context.Context, id string, embedding []float32, model string) error {
	if id == "" {
		return fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	if len(embedding) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", storage.ErrInvalidInput)
	}
	if s.dimension > 0 && len(embedding) != s.dimension {
		return fmt.Errorf("%w: got %d, store indexed with %d",
			storage.ErrDimensionMismatch, len(embedding), s.dimension)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE entities SET embedding = ?, embedding_model = ?, updated_at = ?
		WHERE id = ?`,
		serializeEmbedding(embedding), model, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update embedding: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateImportance overwrites composite importance scores in bulk.
func (s *Store) UpdateImportance(ctx context.Context, scores map[string]float64) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE entities SET importance = ?, updated_at = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("sqlite: failed to prepare importance update: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for id, score := range scores {
		if _, err := stmt.ExecContext(ctx, score, now, id); err != nil {
			return fmt.Errorf("sqlite: failed to update importance for %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit importance update: %w", err)
	}
	return nil
}

// PropagatePortfolioFlags marks people with a works_at or founder_of edge
// into a portfolio organization as portfolio members.
func (s *Store) PropagatePortfolioFlags(ctx context.Context) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE entities SET is_portfolio = 1, updated_at = ?
		WHERE is_portfolio = 0 AND kind = 'person' AND id IN (
			SELECT r.source_id FROM relationships r
			JOIN entities org ON org.id = r.target_id
			WHERE r.kind IN ('works_at', 'founder_of') AND org.is_portfolio = 1
		)`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to propagate portfolio flags: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// CountEntities returns the total number of entities.
func (s *Store) CountEntities(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: failed to count entities: %w", err)
	}
	return n, nil
}

// getEntityByKeyTx looks up an entity by its natural key inside a transaction.
func (s *Store) getEntityByKeyTx(ctx context.Context, tx *sql.Tx, nameNorm, kind string) (*types.Entity, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE name_norm = ? AND kind = ?`, nameNorm, kind)
	e, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: failed to look up entity by key: %w", err)
	}
	return e, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for entity scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEntity scans one entity row.
func scanEntity(row rowScanner) (*types.Entity, error) {
	var (
		e              types.Entity
		tagsJSON       string
		enrichmentJSON sql.NullString
		embedding      []byte
		isInternal     int
		isPortfolio    int
		isPipeline     int
		firstSeen      sql.NullTime
		lastSeen       sql.NullTime
	)

	err := row.Scan(&e.ID, &e.Name, &e.Kind, &e.Description, &tagsJSON, &enrichmentJSON,
		&embedding, &e.EmbeddingModel, &isInternal, &isPortfolio, &isPipeline,
		&e.CuratedImportance, &e.Importance, &e.CreatedAt, &e.UpdatedAt, &firstSeen, &lastSeen)
	if err != nil {
		return nil, err
	}

	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
			return nil, fmt.Errorf("failed to decode tags: %w", err)
		}
	}
	if enrichmentJSON.Valid && enrichmentJSON.String != "" {
		doc, err := types.ParseEnrichmentDoc([]byte(enrichmentJSON.String))
		if err != nil {
			return nil, err
		}
		e.Enrichment = doc
	}
	e.Embedding = deserializeEmbedding(embedding)
	e.IsInternal = isInternal != 0
	e.IsPortfolio = isPortfolio != 0
	e.IsPipeline = isPipeline != 0
	if firstSeen.Valid {
		e.FirstSeen = firstSeen.Time
	}
	if lastSeen.Valid {
		e.LastSeen = lastSeen.Time
	}
	return &e, nil
}

// scanEntities scans all rows into a slice.
func scanEntities(rows *sql.Rows) ([]*types.Entity, error) {
	entities := make([]*types.Entity, 0)
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: entity rows error: %w", err)
	}
	return entities, nil
}

// marshalEnrichment serializes an enrichment document, or NULL when nil.
func marshalEnrichment(doc *types.EnrichmentDoc) (interface{}, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode enrichment document: %w", err)
	}
	return string(raw), nil
}

// tagsOrEmpty guarantees a non-nil slice so tags serialize as [] not null.
func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// unionTags merges two tag lists preserving order of first occurrence.
func unionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, t := range a {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range b {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
