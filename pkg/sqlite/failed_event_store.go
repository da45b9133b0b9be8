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

// FailedEventStore records events a projection could not apply, for
// operator inspection. Implements store.FailedEventStore.
type FailedEventStore struct {
	db *sql.DB
}

func NewFailedEventStore(db *sql.DB) *FailedEventStore {
	return &FailedEventStore{db: db}
}

func (s *FailedEventStore) Record(ctx context.Context, failure *store.FailedEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO failed_events (
			projection_name, instance_id, aggregate_id, event_type,
			global_position, in_tx_order, error, retry_count, last_failed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (projection_name, global_position, in_tx_order) DO UPDATE SET
			error = excluded.error,
			retry_count = failed_events.retry_count + 1,
			last_failed_at = excluded.last_failed_at`,
		failure.ProjectionName, failure.InstanceID, failure.AggregateID, string(failure.EventType),
		failure.Position.Global.IntPart(), failure.Position.InTxOrder,
		failure.Error, failure.RetryCount, failure.LastFailedAt.UnixMicro(),
	)
	if err != nil {
		return fmt.Errorf("failed to record failed event: %w", err)
	}
	return nil
}

func (s *FailedEventStore) List(ctx context.Context, projectionName string) ([]*store.FailedEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT projection_name, instance_id, aggregate_id, event_type,
			global_position, in_tx_order, error, retry_count, last_failed_at
		FROM failed_events
		WHERE projection_name = ?
		ORDER BY global_position ASC, in_tx_order ASC`,
		projectionName,
	)
	if err != nil {
		return nil, errs.ThrowStorage(err, "SQLITE-Fail01", "failed to query failed events")
	}
	defer rows.Close()

	var failures []*store.FailedEvent
	for rows.Next() {
		var (
			failure      store.FailedEvent
			eventType    string
			global       int64
			inTxOrder    int64
			lastFailedAt int64
		)
		if err := rows.Scan(
			&failure.ProjectionName, &failure.InstanceID, &failure.AggregateID, &eventType,
			&global, &inTxOrder, &failure.Error, &failure.RetryCount, &lastFailedAt,
		); err != nil {
			return nil, errs.ThrowStorage(err, "SQLITE-Fail02", "failed to scan failed event")
		}
		failure.EventType = domain.EventType(eventType)
		failure.Position = domain.Position{
			Global:    decimal.NewFromInt(global),
			InTxOrder: uint32(inTxOrder),
		}
		failure.LastFailedAt = time.UnixMicro(lastFailedAt)
		failures = append(failures, &failure)
	}
	return failures, rows.Err()
}
