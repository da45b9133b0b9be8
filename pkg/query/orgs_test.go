package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/projection"
	"github.com/identra/identra/pkg/query"
)

func TestOrgByID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")
	env.project(t)

	org, err := env.queries.OrgByID(ctx, testInstance, orgID)
	require.NoError(t, err)
	require.Equal(t, "Acme", org.Name)
	require.Equal(t, domain.OrgStateActive, org.State)
	require.Equal(t, "localhost", org.PrimaryDomain)
	require.EqualValues(t, 4, org.Sequence)

	t.Run("Unknown", func(t *testing.T) {
		_, err := env.queries.OrgByID(ctx, testInstance, "missing")
		require.True(t, errs.IsNotFound(err))
	})
}

func TestOrgByPrimaryDomain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")

	_, err := env.commands.AddOrgDomain(ctx, testInstance, orgID, "login.acme.com")
	require.NoError(t, err)
	_, err = env.commands.VerifyOrgDomain(ctx, testInstance, orgID, "login.acme.com")
	require.NoError(t, err)
	_, err = env.commands.SetPrimaryOrgDomain(ctx, testInstance, orgID, "login.acme.com")
	require.NoError(t, err)
	env.project(t)

	org, err := env.queries.OrgByPrimaryDomain(ctx, testInstance, "login.acme.com")
	require.NoError(t, err)
	require.Equal(t, orgID, org.ID)
	require.Equal(t, "login.acme.com", org.PrimaryDomain)
}

func TestSearchOrgs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.mustAddOrg(t, "Acme")
	env.mustAddOrg(t, "Acme Labs")
	inactive := env.mustAddOrg(t, "Dormant")

	_, err := env.commands.DeactivateOrg(ctx, testInstance, inactive)
	require.NoError(t, err)
	env.project(t)

	t.Run("ByName", func(t *testing.T) {
		result, err := env.queries.SearchOrgs(ctx, testInstance, &query.OrgSearch{NameLike: "Acme"})
		require.NoError(t, err)
		require.EqualValues(t, 2, result.TotalCount)
	})

	t.Run("ByState", func(t *testing.T) {
		result, err := env.queries.SearchOrgs(ctx, testInstance, &query.OrgSearch{State: domain.OrgStateInactive})
		require.NoError(t, err)
		require.Len(t, result.Orgs, 1)
		require.Equal(t, "Dormant", result.Orgs[0].Name)
	})

	t.Run("SortedPage", func(t *testing.T) {
		result, err := env.queries.SearchOrgs(ctx, testInstance, &query.OrgSearch{
			SearchRequest: query.SearchRequest{Limit: 2, SortColumn: "name", Asc: true},
		})
		require.NoError(t, err)
		require.EqualValues(t, 3, result.TotalCount)
		require.Len(t, result.Orgs, 2)
		require.Equal(t, "Acme", result.Orgs[0].Name)
		require.Equal(t, "Acme Labs", result.Orgs[1].Name)
	})
}

func TestOrgDomainsQuery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")

	_, err := env.commands.AddOrgDomain(ctx, testInstance, orgID, "login.acme.com")
	require.NoError(t, err)
	_, err = env.commands.VerifyOrgDomain(ctx, testInstance, orgID, "login.acme.com")
	require.NoError(t, err)
	env.project(t)

	domains, err := env.queries.OrgDomains(ctx, testInstance, orgID)
	require.NoError(t, err)
	require.Len(t, domains, 2)

	// Ordered by domain name.
	require.Equal(t, "localhost", domains[0].Domain)
	require.True(t, domains[0].IsVerified)
	require.True(t, domains[0].IsPrimary)

	require.Equal(t, "login.acme.com", domains[1].Domain)
	require.True(t, domains[1].IsVerified)
	require.False(t, domains[1].IsPrimary)
}

func TestOrgMembersQuery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")
	userID := env.mustAddHuman(t, orgID, "alice")

	_, err := env.commands.AddOrgMember(ctx, testInstance, orgID, userID, []string{"ORG_OWNER", "ORG_USER_MANAGER"})
	require.NoError(t, err)
	env.project(t)

	members, err := env.queries.OrgMembers(ctx, testInstance, orgID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.Equal(t, userID, members[0].UserID)
	require.Equal(t, []string{"ORG_OWNER", "ORG_USER_MANAGER"}, members[0].Roles)

	t.Run("RemovedMemberDisappears", func(t *testing.T) {
		_, err := env.commands.RemoveOrgMember(ctx, testInstance, orgID, userID)
		require.NoError(t, err)
		env.project(t)

		members, err := env.queries.OrgMembers(ctx, testInstance, orgID)
		require.NoError(t, err)
		require.Empty(t, members)
	})
}

func TestMilestones(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")
	env.mustAddHuman(t, orgID, "alice")
	env.project(t)

	milestones, err := env.queries.Milestones(ctx, testInstance)
	require.NoError(t, err)

	types := make([]string, len(milestones))
	for i, m := range milestones {
		types[i] = m.Type
	}
	require.Contains(t, types, projection.MilestoneOrgCreated)
	require.Contains(t, types, projection.MilestoneUserCreated)
	require.NotContains(t, types, projection.MilestonePolicyCustomized)

	// A milestone is reached once; more orgs do not add rows.
	env.mustAddOrg(t, "Other")
	env.project(t)
	again, err := env.queries.Milestones(ctx, testInstance)
	require.NoError(t, err)
	require.Len(t, again, len(milestones))
}
