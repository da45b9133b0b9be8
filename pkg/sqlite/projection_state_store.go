package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/store"
)

// ProjectionStateStore is the SQLite implementation of
// store.ProjectionStateStore. Cursor advances run inside the projection
// write transaction (SetPositionInTx) to avoid dual-write inconsistencies.
type ProjectionStateStore struct {
	db *sql.DB
}

func NewProjectionStateStore(db *sql.DB) *ProjectionStateStore {
	return &ProjectionStateStore{db: db}
}

// Ensure inserts the state row with position zero and status stopped if missing.
func (s *ProjectionStateStore) Ensure(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projection_states (name, current_position, current_in_tx_order, status, error_count)
		VALUES (?, 0, 0, ?, 0)
		ON CONFLICT (name) DO NOTHING`,
		name, string(store.ProjectionStatusStopped),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure projection state: %w", err)
	}
	return nil
}

func (s *ProjectionStateStore) Get(ctx context.Context, name string) (*store.ProjectionState, error) {
	var (
		state       store.ProjectionState
		global      int64
		inTxOrder   int64
		status      string
		lastError   sql.NullString
		processedAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT name, current_position, current_in_tx_order, status, error_count, last_error, last_processed_at
		FROM projection_states WHERE name = ?`, name,
	).Scan(&state.Name, &global, &inTxOrder, &status, &state.ErrorCount, &lastError, &processedAt)
	if err == sql.ErrNoRows {
		return nil, errs.ThrowNotFound(nil, "SQLITE-Proj01", "projection state not found")
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "SQLITE-Proj02", "failed to load projection state")
	}

	state.Position = domain.Position{
		Global:    decimal.NewFromInt(global),
		InTxOrder: uint32(inTxOrder),
	}
	state.Status = store.ProjectionStatus(status)
	if lastError.Valid {
		state.LastError = lastError.String
	}
	if processedAt.Valid {
		state.LastProcessedAt = time.UnixMicro(processedAt.Int64)
	}
	return &state, nil
}

func (s *ProjectionStateStore) SetStatus(ctx context.Context, name string, status store.ProjectionStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE projection_states SET status = ? WHERE name = ?`,
		string(status), name,
	)
	if err != nil {
		return fmt.Errorf("failed to set projection status: %w", err)
	}
	return nil
}

// SetPositionInTx advances the cursor within the given transaction and
// resets the error counter. A projection only advances past an event whose
// reduce succeeded, so cursor and table writes must commit together.
func (s *ProjectionStateStore) SetPositionInTx(ctx context.Context, tx *sql.Tx, name string, position domain.Position, processedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projection_states
		SET current_position = ?, current_in_tx_order = ?, error_count = 0, last_error = NULL, last_processed_at = ?
		WHERE name = ?`,
		position.Global.IntPart(), position.InTxOrder, processedAt.UnixMicro(), name,
	)
	if err != nil {
		return fmt.Errorf("failed to advance projection cursor: %w", err)
	}
	return nil
}

// SkipPositionInTx advances the cursor without touching the error counter.
// Used when a dead-lettered event is skipped: the failure must still count
// toward the error budget.
func (s *ProjectionStateStore) SkipPositionInTx(ctx context.Context, tx *sql.Tx, name string, position domain.Position, processedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projection_states
		SET current_position = ?, current_in_tx_order = ?, last_processed_at = ?
		WHERE name = ?`,
		position.Global.IntPart(), position.InTxOrder, processedAt.UnixMicro(), name,
	)
	if err != nil {
		return fmt.Errorf("failed to advance projection cursor past skipped event: %w", err)
	}
	return nil
}

// RecordError increments the error counter and returns its new value.
func (s *ProjectionStateStore) RecordError(ctx context.Context, name string, lastError string) (uint64, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE projection_states
		SET error_count = error_count + 1, last_error = ?
		WHERE name = ?`,
		lastError, name,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to record projection error: %w", err)
	}

	var count uint64
	if err := s.db.QueryRowContext(ctx,
		`SELECT error_count FROM projection_states WHERE name = ?`, name,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read error count: %w", err)
	}
	return count, nil
}

// Reset moves the cursor back to zero within the given transaction.
func (s *ProjectionStateStore) Reset(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE projection_states
		SET current_position = 0, current_in_tx_order = 0, error_count = 0, last_error = NULL
		WHERE name = ?`,
		name,
	)
	if err != nil {
		return fmt.Errorf("failed to reset projection cursor: %w", err)
	}
	return nil
}
