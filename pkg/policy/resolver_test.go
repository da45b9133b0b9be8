package policy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/cache"
	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/policy"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/query"
	"github.com/identra/identra/pkg/sqlite"
)

const testInstance = "inst-1"

type testEnv struct {
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
		commands: command.New(command.Config{
			EventStore:     es,
			PasswordHasher: crypto.NewBcryptHasher(crypto.WithCost(4)),
		}),
		scheduler: scheduler,
		queries:   query.New(db, nil),
	}
}

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

func TestLoginPolicyResolution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")
	env.project(t)
	resolver := policy.NewResolver(env.queries)

	t.Run("BuiltInFallback", func(t *testing.T) {
		p, err := resolver.LoginPolicy(ctx, testInstance, orgID)
		require.NoError(t, err)
		require.Equal(t, policy.BuiltInDefaultID, p.AggregateID)
		require.True(t, p.AllowUsernamePassword)
	})

	t.Run("InstanceDefaultWinsOverBuiltIn", func(t *testing.T) {
		_, err := env.commands.AddDefaultLoginPolicy(ctx, testInstance,
			&command.LoginPolicyRequest{AllowUsernamePassword: true, HidePasswordReset: true})
		require.NoError(t, err)
		env.project(t)

		p, err := resolver.LoginPolicy(ctx, testInstance, orgID)
		require.NoError(t, err)
		require.Equal(t, testInstance, p.AggregateID)
		require.True(t, p.HidePasswordReset)
	})

	t.Run("OrgOverrideWinsOverDefault", func(t *testing.T) {
		_, err := env.commands.AddOrgLoginPolicy(ctx, testInstance, orgID,
			&command.LoginPolicyRequest{AllowUsernamePassword: true, ForceMFA: true})
		require.NoError(t, err)
		env.project(t)

		p, err := resolver.LoginPolicy(ctx, testInstance, orgID)
		require.NoError(t, err)
		require.Equal(t, orgID, p.AggregateID)
		require.True(t, p.ForceMFA)

		// Other orgs keep resolving the instance default.
		other := env.mustAddOrg(t, "Other")
		env.project(t)
		p, err = resolver.LoginPolicy(ctx, testInstance, other)
		require.NoError(t, err)
		require.Equal(t, testInstance, p.AggregateID)
	})
}

func TestLockoutPolicyResolution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")
	env.project(t)
	resolver := policy.NewResolver(env.queries)

	p, err := resolver.LockoutPolicy(ctx, testInstance, orgID)
	require.NoError(t, err)
	require.Equal(t, policy.BuiltInDefaultID, p.AggregateID)
	require.EqualValues(t, 10, p.MaxPasswordAttempts)

	_, err = env.commands.AddOrgLockoutPolicy(ctx, testInstance, orgID,
		&command.LockoutPolicyRequest{MaxPasswordAttempts: 3})
	require.NoError(t, err)
	env.project(t)

	p, err = resolver.LockoutPolicy(ctx, testInstance, orgID)
	require.NoError(t, err)
	require.Equal(t, orgID, p.AggregateID)
	require.EqualValues(t, 3, p.MaxPasswordAttempts)
}

func TestPasswordComplexityPolicyResolution(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")
	env.project(t)
	resolver := policy.NewResolver(env.queries)

	p, err := resolver.PasswordComplexityPolicy(ctx, testInstance, orgID)
	require.NoError(t, err)
	require.Equal(t, policy.BuiltInDefaultID, p.AggregateID)
	require.EqualValues(t, 8, p.MinLength)

	_, err = env.commands.AddDefaultPasswordComplexityPolicy(ctx, testInstance,
		&command.PasswordComplexityPolicyRequest{MinLength: 12, HasSymbol: true})
	require.NoError(t, err)
	env.project(t)

	p, err = resolver.PasswordComplexityPolicy(ctx, testInstance, orgID)
	require.NoError(t, err)
	require.EqualValues(t, 12, p.MinLength)
	require.True(t, p.HasSymbol)
}

func TestResolverCaching(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")
	env.project(t)

	resolver := policy.NewResolver(env.queries,
		policy.WithCache(cache.NewMemory(), time.Minute))

	p, err := resolver.LoginPolicy(ctx, testInstance, orgID)
	require.NoError(t, err)
	require.Equal(t, policy.BuiltInDefaultID, p.AggregateID)

	// The projection now has an org policy, but the cached resolution is
	// served until the TTL expires.
	_, err = env.commands.AddOrgLoginPolicy(ctx, testInstance, orgID,
		&command.LoginPolicyRequest{AllowUsernamePassword: true, ForceMFA: true})
	require.NoError(t, err)
	env.project(t)

	p, err = resolver.LoginPolicy(ctx, testInstance, orgID)
	require.NoError(t, err)
	require.Equal(t, policy.BuiltInDefaultID, p.AggregateID)

	t.Run("ExpiredEntryIsRefreshed", func(t *testing.T) {
		short := policy.NewResolver(env.queries,
			policy.WithCache(cache.NewMemory(), 10*time.Millisecond))

		p, err := short.LoginPolicy(ctx, testInstance, orgID)
		require.NoError(t, err)
		require.Equal(t, orgID, p.AggregateID)

		_, err = env.commands.RemoveOrgLoginPolicy(ctx, testInstance, orgID)
		require.NoError(t, err)
		env.project(t)

		time.Sleep(20 * time.Millisecond)
		p, err = short.LoginPolicy(ctx, testInstance, orgID)
		require.NoError(t, err)
		require.Equal(t, policy.BuiltInDefaultID, p.AggregateID)
	})
}
