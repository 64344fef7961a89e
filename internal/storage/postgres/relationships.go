package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

const relationshipColumns = `id, source_id, target_id, kind, weight, evidence, first_seen, last_seen`

// UpsertRelationship inserts or combines an edge keyed on (source, target,
// kind). Re-observation takes the max of the stored and observed weights,
// appends new evidence with provenance dedup and refreshes last_seen.
func (s *Store) UpsertRelationship(ctx context.Context, rel *types.Relationship) error {
	if rel == nil {
		return storage.ErrInvalidInput
	}
	if rel.SourceID == "" || rel.TargetID == "" {
		return fmt.Errorf("%w: relationship endpoints are required", storage.ErrInvalidInput)
	}
	if rel.SourceID == rel.TargetID {
		return fmt.Errorf("%w: self-referential relationship", storage.ErrInvalidInput)
	}
	if !types.IsValidRelationshipKind(rel.Kind) {
		return fmt.Errorf("%w: invalid relationship kind %q", storage.ErrInvalidInput, rel.Kind)
	}
	if rel.Weight < 0 || rel.Weight > 1 {
		return fmt.Errorf("%w: weight %f out of range [0,1]", storage.ErrInvalidInput, rel.Weight)
	}

	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		existingID       string
		existingWeight   float64
		existingEvidence []byte
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, weight, evidence FROM relationships
		WHERE source_id = $1 AND target_id = $2 AND kind = $3
		FOR UPDATE`,
		rel.SourceID, rel.TargetID, rel.Kind).Scan(&existingID, &existingWeight, &existingEvidence)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		id := rel.ID
		if id == "" {
			id = types.NaturalKeyID(rel.SourceID, rel.TargetID, rel.Kind)
		}
		evidenceJSON, err := marshalEvidence(rel.Evidence)
		if err != nil {
			return err
		}
		firstSeen := rel.FirstSeen
		if firstSeen.IsZero() {
			firstSeen = now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO relationships (id, source_id, target_id, kind, weight, evidence, first_seen, last_seen)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, rel.SourceID, rel.TargetID, rel.Kind, rel.Weight, evidenceJSON, firstSeen, now)
		if err != nil {
			return fmt.Errorf("postgres: failed to insert relationship: %w", err)
		}

	case err != nil:
		return fmt.Errorf("postgres: failed to look up relationship: %w", err)

	default:
		var stored []types.Evidence
		if len(existingEvidence) > 0 {
			if err := json.Unmarshal(existingEvidence, &stored); err != nil {
				return fmt.Errorf("postgres: failed to decode evidence: %w", err)
			}
		}
		combined := types.MergeEvidence(stored, rel.Evidence)
		evidenceJSON, err := marshalEvidence(combined)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE relationships SET weight = $1, evidence = $2, last_seen = $3
			WHERE id = $4`,
			types.CombineWeight(existingWeight, rel.Weight), evidenceJSON, now, existingID)
		if err != nil {
			return fmt.Errorf("postgres: failed to update relationship: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit relationship upsert: %w", err)
	}
	return nil
}

// RelationshipsFor returns all edges touching the entity, either direction.
func (s *Store) RelationshipsFor(ctx context.Context, entityID string) ([]*types.Relationship, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entity ID is required", storage.ErrInvalidInput)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE source_id = $1 OR target_id = $1
		ORDER BY weight DESC, id ASC`, entityID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query relationships: %w", err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// EdgesAmong returns all edges whose source AND target are both in ids.
func (s *Store) EdgesAmong(ctx context.Context, ids []string) ([]*types.Relationship, error) {
	if len(ids) == 0 {
		return []*types.Relationship{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+relationshipColumns+` FROM relationships
		WHERE source_id = ANY($1) AND target_id = ANY($1)
		ORDER BY weight DESC, id ASC`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query edges among: %w", err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// DegreeCounts returns the number of distinct edges touching each entity.
func (s *Store) DegreeCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_id, COUNT(*) FROM (
			SELECT source_id AS entity_id FROM relationships
			UNION ALL
			SELECT target_id AS entity_id FROM relationships
		) endpoints GROUP BY entity_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query degree counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan degree count: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: degree count rows error: %w", err)
	}
	return counts, nil
}

// CountRelationships returns the total number of edges.
func (s *Store) CountRelationships(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: failed to count relationships: %w", err)
	}
	return n, nil
}

func scanRelationships(rows *sql.Rows) ([]*types.Relationship, error) {
	rels := make([]*types.Relationship, 0)
	for rows.Next() {
		var rel types.Relationship
		var evidenceJSON []byte
		err := rows.Scan(&rel.ID, &rel.SourceID, &rel.TargetID, &rel.Kind,
			&rel.Weight, &evidenceJSON, &rel.FirstSeen, &rel.LastSeen)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan relationship: %w", err)
		}
		if len(evidenceJSON) > 0 {
			if err := json.Unmarshal(evidenceJSON, &rel.Evidence); err != nil {
				return nil, fmt.Errorf("postgres: failed to decode evidence: %w", err)
			}
		}
		rels = append(rels, &rel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: relationship rows error: %w", err)
	}
	return rels, nil
}

func marshalEvidence(evidence []types.Evidence) (string, error) {
	if evidence == nil {
		evidence = []types.Evidence{}
	}
	raw, err := json.Marshal(evidence)
	if err != nil {
		return "", fmt.Errorf("failed to encode evidence: %w", err)
	}
	return string(raw), nil
}
