package logstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/identra/identra/pkg/errs"
)

const (
	accessTable    = "logstore_logs"
	executionTable = "logstore_execution_logs"
	quotaTable     = "logstore_quota_logs"
)

// AccessSink stores access records in the logstore_logs table.
type AccessSink struct {
	db *sql.DB
}

func NewAccessSink(db *sql.DB) *AccessSink {
	return &AccessSink{db: db}
}

func (s *AccessSink) Store(ctx context.Context, bulk []AccessRecord) error {
	query := "INSERT INTO " + accessTable +
		" (instance_id, logged_at, protocol, method, url, response_status, requested_by, requested_domain) VALUES " +
		placeholders(len(bulk), 8)
	args := make([]any, 0, len(bulk)*8)
	for _, r := range bulk {
		args = append(args, r.InstanceID, r.LoggedAt.UnixMicro(), r.Protocol, r.Method, r.URL, r.ResponseStatus, r.RequestedBy, r.RequestedDomain)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errs.ThrowStorage(err, "LOGSTORE-Acc01", "failed to store access logs")
	}
	return nil
}

// ExecutionSink stores execution records in the logstore_execution_logs
// table.
type ExecutionSink struct {
	db *sql.DB
}

func NewExecutionSink(db *sql.DB) *ExecutionSink {
	return &ExecutionSink{db: db}
}

func (s *ExecutionSink) Store(ctx context.Context, bulk []ExecutionRecord) error {
	query := "INSERT INTO " + executionTable +
		" (instance_id, logged_at, started_at, took_ms, target, metadata) VALUES " +
		placeholders(len(bulk), 6)
	args := make([]any, 0, len(bulk)*6)
	for _, r := range bulk {
		metadata, err := json.Marshal(r.Metadata)
		if err != nil {
			return errs.ThrowInternal(err, "LOGSTORE-Exec01", "failed to encode execution metadata")
		}
		args = append(args, r.InstanceID, r.LoggedAt.UnixMicro(), r.StartedAt.UnixMicro(), r.Took.Milliseconds(), r.Target, string(metadata))
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errs.ThrowStorage(err, "LOGSTORE-Exec02", "failed to store execution logs")
	}
	return nil
}

// QuotaSink stores quota records in the logstore_quota_logs table.
type QuotaSink struct {
	db *sql.DB
}

func NewQuotaSink(db *sql.DB) *QuotaSink {
	return &QuotaSink{db: db}
}

func (s *QuotaSink) Store(ctx context.Context, bulk []QuotaRecord) error {
	query := "INSERT INTO " + quotaTable +
		" (instance_id, logged_at, unit, amount) VALUES " +
		placeholders(len(bulk), 4)
	args := make([]any, 0, len(bulk)*4)
	for _, r := range bulk {
		args = append(args, r.InstanceID, r.LoggedAt.UnixMicro(), r.Unit, r.Amount)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errs.ThrowStorage(err, "LOGSTORE-Quota01", "failed to store quota logs")
	}
	return nil
}

func placeholders(rows, columns int) string {
	row := "(" + strings.Repeat("?, ", columns-1) + "?)"
	var b strings.Builder
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
	}
	return b.String()
}
