package projection_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/sqlite"
	"github.com/identra/identra/pkg/store"
)

type testEnv struct {
	es        *sqlite.EventStore
	db        *sql.DB
	scheduler *projection.Scheduler
}

func newTestEnv(t *testing.T, tweak func(*projection.Config)) *testEnv {
	t.Helper()
	es, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { es.Close() })

	db := es.DB()
	config := projection.Config{
		DB:           db,
		EventStore:   es,
		States:       sqlite.NewProjectionStateStore(db),
		FailedStore:  sqlite.NewFailedEventStore(db),
		PollInterval: 10 * time.Millisecond,
	}
	if tweak != nil {
		tweak(&config)
	}
	scheduler := projection.NewScheduler(config)
	t.Cleanup(scheduler.StopAll)
	return &testEnv{es: es, db: db, scheduler: scheduler}
}

func (e *testEnv) pushOrgAdded(t *testing.T, orgID, name string) *domain.Event {
	t.Helper()
	events, err := e.es.Push(context.Background(), &domain.Command{
		InstanceID:    "inst-1",
		AggregateType: domain.AggregateTypeOrg,
		AggregateID:   orgID,
		Type:          domain.OrgAddedType,
		Revision:      1,
		Creator:       "system",
		Owner:         orgID,
		Payload:       &domain.OrgAddedPayload{Name: name},
	})
	require.NoError(t, err)
	return events[0]
}

func (e *testEnv) pushOrgEvent(t *testing.T, orgID string, eventType domain.EventType, payload any) *domain.Event {
	t.Helper()
	events, err := e.es.Push(context.Background(), &domain.Command{
		InstanceID:    "inst-1",
		AggregateType: domain.AggregateTypeOrg,
		AggregateID:   orgID,
		Type:          eventType,
		Revision:      1,
		Creator:       "system",
		Owner:         orgID,
		Payload:       payload,
	})
	require.NoError(t, err)
	return events[0]
}

func (e *testEnv) orgName(t *testing.T, orgID string) (string, bool) {
	t.Helper()
	var name string
	err := e.db.QueryRow(
		`SELECT name FROM projections_orgs WHERE instance_id = 'inst-1' AND id = ?`, orgID,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false
	}
	require.NoError(t, err)
	return name, true
}

func TestSchedulerProjectsEvents(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.scheduler.Register(projection.NewOrgsHandler()))
	env.pushOrgAdded(t, "org-1", "Acme")

	require.NoError(t, env.scheduler.Start(ctx, "orgs"))

	require.Eventually(t, func() bool {
		name, ok := env.orgName(t, "org-1")
		return ok && name == "Acme"
	}, 5*time.Second, 20*time.Millisecond)

	// New events reach the table without waiting for the poll interval.
	changed := env.pushOrgEvent(t, "org-1", domain.OrgChangedType, &domain.OrgChangedPayload{Name: "Renamed"})
	env.scheduler.Trigger("orgs")

	require.Eventually(t, func() bool {
		name, _ := env.orgName(t, "org-1")
		return name == "Renamed"
	}, 5*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		state, err := env.scheduler.State(ctx, "orgs")
		return err == nil && !changed.Position.After(state.Position)
	}, 5*time.Second, 20*time.Millisecond)

	env.scheduler.Stop("orgs")
	state, err := env.scheduler.State(ctx, "orgs")
	require.NoError(t, err)
	require.Equal(t, store.ProjectionStatusStopped, state.Status)
}

func TestSchedulerResumesFromCursor(t *testing.T) {
	env := newTestEnv(t, func(c *projection.Config) { c.BatchSize = 1 })
	ctx := context.Background()

	require.NoError(t, env.scheduler.Register(projection.NewOrgsHandler()))
	env.pushOrgAdded(t, "org-1", "First")
	env.pushOrgAdded(t, "org-2", "Second")

	require.NoError(t, env.scheduler.Start(ctx, "orgs"))
	require.Eventually(t, func() bool {
		_, ok := env.orgName(t, "org-2")
		return ok
	}, 5*time.Second, 20*time.Millisecond)
	env.scheduler.Stop("orgs")

	// Events pushed while stopped are picked up after a restart.
	env.pushOrgAdded(t, "org-3", "Third")
	require.NoError(t, env.scheduler.Start(ctx, "orgs"))
	require.Eventually(t, func() bool {
		_, ok := env.orgName(t, "org-3")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	var count int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM projections_orgs`).Scan(&count))
	require.Equal(t, 3, count)
}

func TestRebuild(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.scheduler.Register(projection.NewOrgsHandler()))
	env.pushOrgAdded(t, "org-1", "Acme")
	env.pushOrgEvent(t, "org-1", domain.OrgChangedType, &domain.OrgChangedPayload{Name: "Renamed"})
	env.pushOrgAdded(t, "org-2", "Other")
	env.pushOrgEvent(t, "org-2", domain.OrgRemovedType, nil)

	require.NoError(t, env.scheduler.Rebuild(ctx, "orgs"))

	name, ok := env.orgName(t, "org-1")
	require.True(t, ok)
	require.Equal(t, "Renamed", name)
	_, ok = env.orgName(t, "org-2")
	require.False(t, ok)

	state, err := env.scheduler.State(ctx, "orgs")
	require.NoError(t, err)
	require.Equal(t, store.ProjectionStatusStopped, state.Status)

	head, err := env.es.LatestPosition(ctx, store.NewSearchQueryBuilder())
	require.NoError(t, err)
	require.False(t, head.After(state.Position))

	t.Run("DropsRowsTheLogDoesNotExplain", func(t *testing.T) {
		_, err := env.db.Exec(`
			INSERT INTO projections_orgs (instance_id, id, name, state, created_at, changed_at, sequence)
			VALUES ('inst-1', 'stray', 'Stray', 1, 0, 0, 1)`)
		require.NoError(t, err)

		require.NoError(t, env.scheduler.Rebuild(ctx, "orgs"))

		_, ok := env.orgName(t, "stray")
		require.False(t, ok)
		name, _ := env.orgName(t, "org-1")
		require.Equal(t, "Renamed", name)
	})

	t.Run("Unknown", func(t *testing.T) {
		err := env.scheduler.Rebuild(ctx, "missing")
		require.True(t, errs.IsNotFound(err))
	})
}

func TestRebuildRestartsRunningProjection(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.scheduler.Register(projection.NewOrgsHandler()))
	env.pushOrgAdded(t, "org-1", "Acme")
	require.NoError(t, env.scheduler.Start(ctx, "orgs"))

	require.NoError(t, env.scheduler.Rebuild(ctx, "orgs"))

	state, err := env.scheduler.State(ctx, "orgs")
	require.NoError(t, err)
	require.Equal(t, store.ProjectionStatusRunning, state.Status)

	// The restarted worker keeps consuming new events.
	env.pushOrgAdded(t, "org-2", "Other")
	env.scheduler.Trigger("orgs")
	require.Eventually(t, func() bool {
		_, ok := env.orgName(t, "org-2")
		return ok
	}, 5*time.Second, 20*time.Millisecond)

	env.scheduler.Stop("orgs")

	t.Run("StoppedStaysStopped", func(t *testing.T) {
		require.NoError(t, env.scheduler.Rebuild(ctx, "orgs"))
		state, err := env.scheduler.State(ctx, "orgs")
		require.NoError(t, err)
		require.Equal(t, store.ProjectionStatusStopped, state.Status)
	})
}

// stubHandler records the order Init was called in. Its reducers point at an
// aggregate type that never occurs, so the worker idles once started.
type stubHandler struct {
	name     string
	requires []string
	mu       *sync.Mutex
	order    *[]string
}

func (h *stubHandler) Name() string       { return h.name }
func (h *stubHandler) Tables() []string   { return nil }
func (h *stubHandler) Requires() []string { return h.requires }

func (h *stubHandler) Init(ctx context.Context, db *sql.DB) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.order = append(*h.order, h.name)
	return nil
}

func (h *stubHandler) Reducers() []projection.AggregateReducer {
	return []projection.AggregateReducer{{
		Aggregate: "stub",
		Reducers: map[domain.EventType]projection.Reduce{
			"stub.noop": func(*domain.Event) (*projection.Statement, error) {
				return projection.NewNoOpStatement(), nil
			},
		},
	}}
}

func TestStartAllHonorsDependencyOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	var (
		mu    sync.Mutex
		order []string
	)
	stub := func(name string, requires ...string) *stubHandler {
		return &stubHandler{name: name, requires: requires, mu: &mu, order: &order}
	}

	require.NoError(t, env.scheduler.Register(stub("c", "b")))
	require.NoError(t, env.scheduler.Register(stub("a")))
	require.NoError(t, env.scheduler.Register(stub("b", "a")))

	require.NoError(t, env.scheduler.StartAll(ctx))
	env.scheduler.StopAll()

	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestStartAllDependencyErrors(t *testing.T) {
	t.Run("MissingDependency", func(t *testing.T) {
		env := newTestEnv(t, nil)
		var (
			mu    sync.Mutex
			order []string
		)
		require.NoError(t, env.scheduler.Register(&stubHandler{name: "a", requires: []string{"missing"}, mu: &mu, order: &order}))
		err := env.scheduler.StartAll(context.Background())
		require.True(t, errs.IsNotFound(err), "got %v", err)
	})

	t.Run("Cycle", func(t *testing.T) {
		env := newTestEnv(t, nil)
		var (
			mu    sync.Mutex
			order []string
		)
		require.NoError(t, env.scheduler.Register(&stubHandler{name: "a", requires: []string{"b"}, mu: &mu, order: &order}))
		require.NoError(t, env.scheduler.Register(&stubHandler{name: "b", requires: []string{"a"}, mu: &mu, order: &order}))
		err := env.scheduler.StartAll(context.Background())
		require.True(t, errs.IsInternal(err), "got %v", err)
	})

	t.Run("DuplicateRegistration", func(t *testing.T) {
		env := newTestEnv(t, nil)
		require.NoError(t, env.scheduler.Register(projection.NewOrgsHandler()))
		err := env.scheduler.Register(projection.NewOrgsHandler())
		require.True(t, errs.IsAlreadyExists(err), "got %v", err)
	})
}

// flakyHandler fails every statement for the configured aggregate ID by
// writing to a table that does not exist.
type flakyHandler struct {
	badAggregateID string
}

func (h *flakyHandler) Name() string       { return "flaky" }
func (h *flakyHandler) Tables() []string   { return []string{"projections_flaky"} }
func (h *flakyHandler) Requires() []string { return nil }

func (h *flakyHandler) Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS projections_flaky (
			instance_id TEXT NOT NULL,
			id          TEXT NOT NULL,
			PRIMARY KEY (instance_id, id)
		)`)
	return err
}

func (h *flakyHandler) Reducers() []projection.AggregateReducer {
	return []projection.AggregateReducer{{
		Aggregate: domain.AggregateTypeOrg,
		Reducers: map[domain.EventType]projection.Reduce{
			domain.OrgAddedType: func(event *domain.Event) (*projection.Statement, error) {
				if event.AggregateID == h.badAggregateID {
					return projection.NewExecStatement(`INSERT INTO no_such_table (id) VALUES (1)`), nil
				}
				return projection.NewExecStatement(
					`INSERT INTO projections_flaky (instance_id, id) VALUES (?, ?)`,
					event.InstanceID, event.AggregateID,
				), nil
			},
		},
	}}
}

func TestFailedEventBlocksCursorUntilBudgetExhausted(t *testing.T) {
	env := newTestEnv(t, func(c *projection.Config) {
		c.TransientRetries = 1
		c.MaxErrors = 3
	})
	ctx := context.Background()

	require.NoError(t, env.scheduler.Register(&flakyHandler{badAggregateID: "org-bad"}))
	env.pushOrgAdded(t, "org-bad", "Poison")
	env.pushOrgAdded(t, "org-good", "Fine")

	require.NoError(t, env.scheduler.Start(ctx, "flaky"))

	// Each round re-attempts the failing event until the budget halts the
	// projection.
	require.Eventually(t, func() bool {
		state, err := env.scheduler.State(ctx, "flaky")
		return err == nil && state.Status == store.ProjectionStatusError
	}, 10*time.Second, 20*time.Millisecond)

	// The cursor never moved past the failing event, so the healthy event
	// behind it was not applied either.
	state, err := env.scheduler.State(ctx, "flaky")
	require.NoError(t, err)
	require.True(t, state.Position.IsZero())
	require.Equal(t, uint64(3), state.ErrorCount)

	var count int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM projections_flaky`).Scan(&count))
	require.Zero(t, count)

	// Re-attempts update the dead-letter record in place.
	failed, err := env.scheduler.FailedEvents(ctx, "flaky")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "org-bad", failed[0].AggregateID)
	require.Equal(t, domain.OrgAddedType, failed[0].EventType)
	require.GreaterOrEqual(t, failed[0].RetryCount, uint64(1))
}

func TestSkipFailedEventsAdvancesPastPoisonedEvent(t *testing.T) {
	env := newTestEnv(t, func(c *projection.Config) {
		c.TransientRetries = 1
		c.MaxErrors = 10
		c.SkipFailedEvents = true
	})
	ctx := context.Background()

	require.NoError(t, env.scheduler.Register(&flakyHandler{badAggregateID: "org-bad"}))
	env.pushOrgAdded(t, "org-bad", "Poison")
	good := env.pushOrgAdded(t, "org-good", "Fine")

	require.NoError(t, env.scheduler.Start(ctx, "flaky"))

	// The poisoned event is dead-lettered and skipped; the projection keeps
	// going and catches up past the healthy event.
	require.Eventually(t, func() bool {
		var count int
		if err := env.db.QueryRow(`SELECT COUNT(*) FROM projections_flaky WHERE id = 'org-good'`).Scan(&count); err != nil {
			return false
		}
		return count == 1
	}, 10*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		state, err := env.scheduler.State(ctx, "flaky")
		return err == nil && !good.Position.After(state.Position)
	}, 10*time.Second, 20*time.Millisecond)

	failed, err := env.scheduler.FailedEvents(ctx, "flaky")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "org-bad", failed[0].AggregateID)
	require.Equal(t, domain.OrgAddedType, failed[0].EventType)
}

func TestSkippedFailuresAccumulateTowardBudget(t *testing.T) {
	env := newTestEnv(t, func(c *projection.Config) {
		c.TransientRetries = 1
		c.MaxErrors = 2
		c.SkipFailedEvents = true
	})
	ctx := context.Background()

	require.NoError(t, env.scheduler.Register(&flakyHandler{badAggregateID: "org-bad"}))
	first := env.pushOrgAdded(t, "org-bad", "Poison")
	env.pushOrgEvent(t, "org-bad", domain.OrgAddedType, &domain.OrgAddedPayload{Name: "Poison again"})
	env.pushOrgAdded(t, "org-good", "Fine")

	require.NoError(t, env.scheduler.Start(ctx, "flaky"))

	// The first failure is skipped with its error counted; the second
	// exhausts the budget before any skip.
	require.Eventually(t, func() bool {
		state, err := env.scheduler.State(ctx, "flaky")
		return err == nil && state.Status == store.ProjectionStatusError
	}, 10*time.Second, 20*time.Millisecond)

	state, err := env.scheduler.State(ctx, "flaky")
	require.NoError(t, err)
	require.Equal(t, uint64(2), state.ErrorCount)
	require.False(t, first.Position.After(state.Position))

	var count int
	require.NoError(t, env.db.QueryRow(`SELECT COUNT(*) FROM projections_flaky WHERE id = 'org-good'`).Scan(&count))
	require.Zero(t, count)
}

func TestErrorBudgetHaltsProjection(t *testing.T) {
	env := newTestEnv(t, func(c *projection.Config) {
		c.TransientRetries = 1
		c.MaxErrors = 1
	})
	ctx := context.Background()

	require.NoError(t, env.scheduler.Register(&flakyHandler{badAggregateID: "org-bad"}))
	env.pushOrgAdded(t, "org-bad", "Poison")

	require.NoError(t, env.scheduler.Start(ctx, "flaky"))

	require.Eventually(t, func() bool {
		state, err := env.scheduler.State(ctx, "flaky")
		return err == nil && state.Status == store.ProjectionStatusError
	}, 10*time.Second, 20*time.Millisecond)

	// The cursor never advanced past the failing event.
	state, err := env.scheduler.State(ctx, "flaky")
	require.NoError(t, err)
	require.True(t, state.Position.IsZero())
	require.NotEmpty(t, state.LastError)
}

func TestRebuildIsDeterministic(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	require.NoError(t, env.scheduler.Register(projection.NewOrgsHandler()))
	for i := 0; i < 5; i++ {
		env.pushOrgAdded(t, fmt.Sprintf("org-%d", i), fmt.Sprintf("Org %d", i))
	}
	env.pushOrgEvent(t, "org-2", domain.OrgDeactivatedType, nil)

	snapshot := func() []string {
		rows, err := env.db.Query(`SELECT id, name, state, sequence FROM projections_orgs ORDER BY id`)
		require.NoError(t, err)
		defer rows.Close()
		var out []string
		for rows.Next() {
			var (
				id, name        string
				state, sequence int
			)
			require.NoError(t, rows.Scan(&id, &name, &state, &sequence))
			out = append(out, fmt.Sprintf("%s|%s|%d|%d", id, name, state, sequence))
		}
		require.NoError(t, rows.Err())
		return out
	}

	require.NoError(t, env.scheduler.Rebuild(ctx, "orgs"))
	first := snapshot()
	require.NoError(t, env.scheduler.Rebuild(ctx, "orgs"))
	require.Equal(t, first, snapshot())
}
