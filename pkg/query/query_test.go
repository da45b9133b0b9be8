package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/query"
	"github.com/identra/identra/pkg/sqlite"
)

const testInstance = "inst-1"

// testEnv wires the write side, the projections and the read side against
// one in-memory database. Tests push commands and call project to bring
// the tables up to date deterministically.
type testEnv struct {
	es        *sqlite.EventStore
	commands  *command.Commands
	scheduler *projection.Scheduler
	queries   *query.Queries
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	es, err := sqlite.NewEventStore(sqlite.WithMemoryDatabase())
	require.NoError(t, err)
	t.Cleanup(func() { es.Close() })

	db := es.DB()
	scheduler := projection.NewScheduler(projection.Config{
		DB:          db,
		EventStore:  es,
		States:      sqlite.NewProjectionStateStore(db),
		FailedStore: sqlite.NewFailedEventStore(db),
	})
	for _, h := range projection.DefaultHandlers() {
		require.NoError(t, scheduler.Register(h))
	}

	return &testEnv{
		es: es,
		commands: command.New(command.Config{
			EventStore:     es,
			PasswordHasher: crypto.NewBcryptHasher(crypto.WithCost(4)),
		}),
		scheduler: scheduler,
		queries:   query.New(db, nil),
	}
}

// project replays the full log into every projection table. DefaultHandlers
// lists dependencies before their dependents.
func (e *testEnv) project(t *testing.T) {
	t.Helper()
	for _, h := range projection.DefaultHandlers() {
		require.NoError(t, e.scheduler.Rebuild(context.Background(), h.Name()))
	}
}

func (e *testEnv) mustAddOrg(t *testing.T, name string) string {
	t.Helper()
	created, err := e.commands.AddOrg(context.Background(), testInstance, &command.AddOrgRequest{Name: name})
	require.NoError(t, err)
	return created.OrgID
}

func (e *testEnv) mustAddHuman(t *testing.T, orgID, username string) string {
	t.Helper()
	created, err := e.commands.AddHumanUser(context.Background(), testInstance, orgID, &command.AddHumanRequest{
		Username:      username,
		FirstName:     "Test",
		LastName:      "User",
		Email:         username + "@example.com",
		EmailVerified: true,
	})
	require.NoError(t, err)
	return created.UserID
}
