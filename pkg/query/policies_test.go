package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
)

func TestLoginPolicyQueries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")

	_, err := env.commands.AddDefaultLoginPolicy(ctx, testInstance,
		&command.LoginPolicyRequest{AllowUsernamePassword: true, AllowRegister: true})
	require.NoError(t, err)
	_, err = env.commands.AddOrgLoginPolicy(ctx, testInstance, orgID,
		&command.LoginPolicyRequest{AllowUsernamePassword: true, ForceMFA: true})
	require.NoError(t, err)
	_, err = env.commands.AddSecondFactorToOrgLoginPolicy(ctx, testInstance, orgID, domain.SecondFactorTypeTOTP)
	require.NoError(t, err)
	env.project(t)

	t.Run("OrgPolicy", func(t *testing.T) {
		policy, err := env.queries.LoginPolicyByOrg(ctx, testInstance, orgID)
		require.NoError(t, err)
		require.False(t, policy.IsDefault)
		require.True(t, policy.ForceMFA)
		require.False(t, policy.AllowRegister)
		require.Equal(t, []domain.SecondFactorType{domain.SecondFactorTypeTOTP}, policy.SecondFactors)
	})

	t.Run("InstanceDefault", func(t *testing.T) {
		policy, err := env.queries.DefaultLoginPolicy(ctx, testInstance)
		require.NoError(t, err)
		require.True(t, policy.IsDefault)
		require.True(t, policy.AllowRegister)
		require.Empty(t, policy.SecondFactors)
	})

	t.Run("OrgWithoutPolicy", func(t *testing.T) {
		other := env.mustAddOrg(t, "Other")
		env.project(t)
		_, err := env.queries.LoginPolicyByOrg(ctx, testInstance, other)
		require.True(t, errs.IsNotFound(err))
	})

	t.Run("RemovedPolicyDisappears", func(t *testing.T) {
		_, err := env.commands.RemoveOrgLoginPolicy(ctx, testInstance, orgID)
		require.NoError(t, err)
		env.project(t)
		_, err = env.queries.LoginPolicyByOrg(ctx, testInstance, orgID)
		require.True(t, errs.IsNotFound(err))
	})
}

func TestLockoutPolicyQueries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")

	_, err := env.commands.AddOrgLockoutPolicy(ctx, testInstance, orgID,
		&command.LockoutPolicyRequest{MaxPasswordAttempts: 5, MaxOTPAttempts: 3, ShowLockoutFailures: true})
	require.NoError(t, err)
	env.project(t)

	policy, err := env.queries.LockoutPolicyByOrg(ctx, testInstance, orgID)
	require.NoError(t, err)
	require.EqualValues(t, 5, policy.MaxPasswordAttempts)
	require.EqualValues(t, 3, policy.MaxOTPAttempts)
	require.True(t, policy.ShowLockoutFailures)

	t.Run("ChangeIsProjected", func(t *testing.T) {
		_, err := env.commands.ChangeOrgLockoutPolicy(ctx, testInstance, orgID,
			&command.LockoutPolicyRequest{MaxPasswordAttempts: 10})
		require.NoError(t, err)
		env.project(t)

		policy, err := env.queries.LockoutPolicyByOrg(ctx, testInstance, orgID)
		require.NoError(t, err)
		require.EqualValues(t, 10, policy.MaxPasswordAttempts)
		require.False(t, policy.ShowLockoutFailures)
	})

	t.Run("NoDefault", func(t *testing.T) {
		_, err := env.queries.DefaultLockoutPolicy(ctx, testInstance)
		require.True(t, errs.IsNotFound(err))
	})
}

func TestPasswordComplexityPolicyQueries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")

	_, err := env.commands.AddDefaultPasswordComplexityPolicy(ctx, testInstance,
		&command.PasswordComplexityPolicyRequest{MinLength: 8, HasLowercase: true})
	require.NoError(t, err)
	_, err = env.commands.AddOrgPasswordComplexityPolicy(ctx, testInstance, orgID,
		&command.PasswordComplexityPolicyRequest{MinLength: 16, HasLowercase: true, HasUppercase: true, HasNumber: true, HasSymbol: true})
	require.NoError(t, err)
	env.project(t)

	org, err := env.queries.PasswordComplexityPolicyByOrg(ctx, testInstance, orgID)
	require.NoError(t, err)
	require.EqualValues(t, 16, org.MinLength)
	require.True(t, org.HasSymbol)
	require.False(t, org.IsDefault)

	def, err := env.queries.DefaultPasswordComplexityPolicy(ctx, testInstance)
	require.NoError(t, err)
	require.EqualValues(t, 8, def.MinLength)
	require.True(t, def.IsDefault)
	require.False(t, def.HasUppercase)
}
