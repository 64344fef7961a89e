package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

const interactionColumns = `id, entity_id, kind, occurred_at, content, summary, themes, embedding, embedding_model, created_at, updated_at`

// UpsertInteraction inserts or updates an interaction by ID.
func (s *Store) UpsertInteraction(ctx context.Context, it *types.Interaction) error {
	if it == nil {
		return storage.ErrInvalidInput
	}
	if it.ID == "" || it.EntityID == "" {
		return fmt.Errorf("%w: interaction ID and entity ID are required", storage.ErrInvalidInput)
	}
	if !types.IsValidInteractionKind(it.Kind) {
		return fmt.Errorf("%w: invalid interaction kind %q", storage.ErrInvalidInput, it.Kind)
	}

	now := time.Now().UTC()
	themesJSON, _ := json.Marshal(tagsOrEmpty(it.Themes))
	occurredAt := it.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interactions (id, entity_id, kind, occurred_at, content, summary, themes, embedding, embedding_model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			occurred_at = excluded.occurred_at,
			content = excluded.content,
			updated_at = excluded.updated_at`,
		it.ID, it.EntityID, it.Kind, occurredAt, it.Content, it.Summary,
		string(themesJSON), serializeEmbedding(it.Embedding), "", now, now)
	if err != nil {
		return fmt.Errorf("sqlite: failed to upsert interaction: %w", err)
	}
	return nil
}

// ListUnsummarized returns up to limit interactions without a summary,
// oldest first. Interactions with empty content are skipped; there is
// nothing to summarize.
func (s *Store) ListUnsummarized(ctx context.Context, limit int) ([]*types.Interaction, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+interactionColumns+` FROM interactions
		WHERE summary = '' AND content <> ''
		ORDER BY occurred_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list unsummarized interactions: %w", err)
	}
	defer rows.Close()
	return scanInteractions(rows)
}

// UpdateInteractionSummary stores the derived summary, themes and embedding.
func (s *Store) UpdateInteractionSummary(ctx context.Context, id, summary string, themes []string, embedding []float32) error {
	if id == "" {
		return fmt.Errorf("%w: interaction ID is required", storage.ErrInvalidInput)
	}
	themesJSON, _ := json.Marshal(tagsOrEmpty(themes))

	result, err := s.db.ExecContext(ctx, `
		UPDATE interactions SET summary = ?, themes = ?, embedding = ?, updated_at = ?
		WHERE id = ?`,
		summary, string(themesJSON), serializeEmbedding(embedding), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("sqlite: failed to update interaction summary: %w", err)
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

// CountInteractions returns the total number of interactions.
func (s *Store) CountInteractions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM interactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: failed to count interactions: %w", err)
	}
	return n, nil
}

func scanInteractions(rows *sql.Rows) ([]*types.Interaction, error) {
	interactions := make([]*types.Interaction, 0)
	for rows.Next() {
		var (
			it         types.Interaction
			themesJSON string
			embedding  []byte
			model      string
		)
		err := rows.Scan(&it.ID, &it.EntityID, &it.Kind, &it.OccurredAt, &it.Content,
			&it.Summary, &themesJSON, &embedding, &model, &it.CreatedAt, &it.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan interaction: %w", err)
		}
		if themesJSON != "" {
			if err := json.Unmarshal([]byte(themesJSON), &it.Themes); err != nil {
				return nil, fmt.Errorf("sqlite: failed to decode themes: %w", err)
			}
		}
		it.Embedding = deserializeEmbedding(embedding)
		interactions = append(interactions, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: interaction rows error: %w", err)
	}
	return interactions, nil
}
