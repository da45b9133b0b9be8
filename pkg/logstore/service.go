package logstore

import (
	"context"
	"database/sql"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/logging"
)

// Service bundles the three log emitters behind one handle.
type Service struct {
	db        *sql.DB
	Access    *Emitter[AccessRecord]
	Execution *Emitter[ExecutionRecord]
	Quota     *Emitter[QuotaRecord]
}

func NewService(db *sql.DB, config EmitterConfig, logger logging.Logger) *Service {
	return &Service{
		db:        db,
		Access:    NewEmitter[AccessRecord](NewAccessSink(db), config, logger),
		Execution: NewEmitter[ExecutionRecord](NewExecutionSink(db), config, logger),
		Quota:     NewEmitter[QuotaRecord](NewQuotaSink(db), config, logger),
	}
}

// Close flushes all emitters. The emitters are independent, so their final
// flushes run concurrently.
func (s *Service) Close() {
	var group errgroup.Group
	group.Go(func() error { s.Access.Close(); return nil })
	group.Go(func() error { s.Execution.Close(); return nil })
	group.Go(func() error { s.Quota.Close(); return nil })
	_ = group.Wait()
}

// QuotaUsage sums the consumption of one unit for an instance in the
// given period.
func (s *Service) QuotaUsage(ctx context.Context, instanceID, unit string, from, to time.Time) (int64, error) {
	var total sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT SUM(amount) FROM "+quotaTable+" WHERE instance_id = ? AND unit = ? AND logged_at >= ? AND logged_at < ?",
		instanceID, unit, from.UnixMicro(), to.UnixMicro()).Scan(&total)
	if err != nil {
		return 0, errs.ThrowStorage(err, "LOGSTORE-Quota02", "failed to sum quota usage")
	}
	return total.Int64, nil
}

// Cleanup deletes records older than the retention cutoff.
func (s *Service) Cleanup(ctx context.Context, keep time.Duration) error {
	cutoff := time.Now().Add(-keep).UnixMicro()
	for _, table := range []string{accessTable, executionTable, quotaTable} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE logged_at < ?", cutoff); err != nil {
			return errs.ThrowStorage(err, "LOGSTORE-Clean01", "failed to clean up logs")
		}
	}
	return nil
}
