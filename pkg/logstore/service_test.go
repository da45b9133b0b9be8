package logstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/logstore"
	"github.com/identra/identra/pkg/sqlite"
)

func newTestService(t *testing.T) *logstore.Service {
	t.Helper()
	es, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { es.Close() })

	return logstore.NewService(es.DB(), logstore.EmitterConfig{
		MaxFrequency: 10 * time.Millisecond,
		MaxBulkSize:  10,
	}, nil)
}

func TestServiceStoresRecords(t *testing.T) {
	s := newTestService(t)
	now := time.Now()

	s.Access.Emit(logstore.AccessRecord{
		InstanceID:     "inst-1",
		LoggedAt:       now,
		Protocol:       "http",
		Method:         "GET",
		URL:            "/users",
		ResponseStatus: 200,
	})
	s.Execution.Emit(logstore.ExecutionRecord{
		InstanceID: "inst-1",
		LoggedAt:   now,
		StartedAt:  now.Add(-time.Millisecond),
		Took:       time.Millisecond,
		Target:     "projection.users",
		Metadata:   map[string]any{"events": 3},
	})
	s.Quota.Emit(logstore.QuotaRecord{
		InstanceID: "inst-1",
		LoggedAt:   now,
		Unit:       "requests",
		Amount:     1,
	})
	s.Close()

	total, err := s.QuotaUsage(context.Background(), "inst-1", "requests",
		now.Add(-time.Minute), now.Add(time.Minute))
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
}

func TestQuotaUsageWindow(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	for _, record := range []logstore.QuotaRecord{
		{InstanceID: "inst-1", LoggedAt: now.Add(-2 * time.Hour), Unit: "requests", Amount: 5},
		{InstanceID: "inst-1", LoggedAt: now, Unit: "requests", Amount: 2},
		{InstanceID: "inst-1", LoggedAt: now, Unit: "actions", Amount: 7},
		{InstanceID: "inst-2", LoggedAt: now, Unit: "requests", Amount: 11},
	} {
		s.Quota.Emit(record)
	}
	s.Close()

	// Only inst-1 requests inside the window count.
	total, err := s.QuotaUsage(ctx, "inst-1", "requests", now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, total)

	t.Run("EmptyWindow", func(t *testing.T) {
		total, err := s.QuotaUsage(ctx, "inst-1", "requests", now.Add(time.Hour), now.Add(2*time.Hour))
		require.NoError(t, err)
		require.Zero(t, total)
	})

	t.Run("Cleanup", func(t *testing.T) {
		require.NoError(t, s.Cleanup(ctx, time.Hour))

		total, err := s.QuotaUsage(ctx, "inst-1", "requests", now.Add(-3*time.Hour), now.Add(time.Hour))
		require.NoError(t, err)
		require.EqualValues(t, 2, total)
	})
}
