package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lanternvc/lantern/internal/storage"
	"github.com/lanternvc/lantern/pkg/types"
)

// BeginRun atomically transitions the singleton sync state from idle or error
// to running. The compare-and-swap in the WHERE clause is the pipeline mutex:
// zero rows affected means another run holds the gate.
func (s *Store) BeginRun(ctx context.Context) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_state
		SET status = $1, stage = '', message = '', updated_at = $2
		WHERE id = 1 AND status <> $1`,
		types.SyncRunning, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: failed to begin run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: failed to get rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrConflict
	}
	return nil
}

// SetSyncStage records the currently executing stage name.
func (s *Store) SetSyncStage(ctx context.Context, stage string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_state SET stage = $1, updated_at = $2 WHERE id = 1`,
		stage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("postgres: failed to set sync stage: %w", err)
	}
	return nil
}

// FinishRun releases the gate and appends an audit row to sync_history.
func (s *Store) FinishRun(ctx context.Context, message string, runErr error) error {
	status := types.SyncIdle
	if runErr != nil {
		status = types.SyncError
		if message == "" {
			message = runErr.Error()
		}
	}
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var stage string
	if err := tx.QueryRowContext(ctx, `SELECT stage FROM sync_state WHERE id = 1`).Scan(&stage); err != nil {
		return fmt.Errorf("postgres: failed to read sync stage: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE sync_state SET status = $1, message = $2, updated_at = $3 WHERE id = 1`,
		status, message, now)
	if err != nil {
		return fmt.Errorf("postgres: failed to finish run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sync_history (status, stage, message, finished_at)
		VALUES ($1, $2, $3, $4)`, status, stage, message, now)
	if err != nil {
		return fmt.Errorf("postgres: failed to record sync history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: failed to commit finish run: %w", err)
	}
	return nil
}

// GetSyncState returns the current sync state record.
func (s *Store) GetSyncState(ctx context.Context) (*types.SyncState, error) {
	var state types.SyncState
	err := s.db.QueryRowContext(ctx, `
		SELECT status, stage, message, updated_at FROM sync_state WHERE id = 1`).
		Scan(&state.Status, &state.Stage, &state.Message, &state.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get sync state: %w", err)
	}
	return &state, nil
}
