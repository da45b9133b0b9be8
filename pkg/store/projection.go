package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/identra/identra/pkg/domain"
)

// ProjectionStatus is the lifecycle state of a projection.
type ProjectionStatus string

const (
	ProjectionStatusStopped    ProjectionStatus = "stopped"
	ProjectionStatusRunning    ProjectionStatus = "running"
	ProjectionStatusRebuilding ProjectionStatus = "rebuilding"
	ProjectionStatusError      ProjectionStatus = "error"
)

// ProjectionState is the durable cursor and health record of one projection.
type ProjectionState struct {
	Name            string
	Position        domain.Position
	Status          ProjectionStatus
	ErrorCount      uint64
	LastError       string
	LastProcessedAt time.Time
}

// ProjectionStateStore persists projection cursors. Cursor updates that
// accompany projection writes must run in the same transaction, hence the
// InTx variants.
type ProjectionStateStore interface {
	// Ensure inserts the state row with position zero and status stopped
	// if it does not exist yet.
	Ensure(ctx context.Context, name string) error

	Get(ctx context.Context, name string) (*ProjectionState, error)

	SetStatus(ctx context.Context, name string, status ProjectionStatus) error

	// SetPositionInTx advances the cursor within the projection write
	// transaction and resets the error counter.
	SetPositionInTx(ctx context.Context, tx *sql.Tx, name string, position domain.Position, processedAt time.Time) error

	// SkipPositionInTx advances the cursor past a dead-lettered event. The
	// error counter and last error stay untouched so skipped failures keep
	// accumulating toward the budget.
	SkipPositionInTx(ctx context.Context, tx *sql.Tx, name string, position domain.Position, processedAt time.Time) error

	// RecordError increments the error counter and stores the message.
	// It returns the new counter value.
	RecordError(ctx context.Context, name string, lastError string) (uint64, error)

	// Reset moves the cursor back to zero within the given transaction.
	Reset(ctx context.Context, tx *sql.Tx, name string) error
}

// FailedEvent is one projection failure recorded for operator inspection.
type FailedEvent struct {
	ProjectionName string
	InstanceID     string
	AggregateID    string
	EventType      domain.EventType
	Position       domain.Position
	Error          string
	RetryCount     uint64
	LastFailedAt   time.Time
}

// FailedEventStore is the dead-letter record of events a projection could
// not apply. Nothing reads it on the hot path.
type FailedEventStore interface {
	Record(ctx context.Context, failure *FailedEvent) error
	List(ctx context.Context, projectionName string) ([]*FailedEvent, error)
}
