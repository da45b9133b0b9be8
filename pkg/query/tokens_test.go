package query_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/errs"
)

func TestPersonalAccessTokenQueries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")
	userID := env.mustAddHuman(t, orgID, "alice")

	added, err := env.commands.AddPersonalAccessToken(ctx, testInstance, userID,
		time.Now().Add(24*time.Hour), []string{"openid", "profile"})
	require.NoError(t, err)
	env.project(t)

	tokens, err := env.queries.PersonalAccessTokens(ctx, testInstance, userID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	require.Equal(t, added.TokenID, tokens[0].TokenID)
	require.Equal(t, []string{"openid", "profile"}, tokens[0].Scopes)
	// Only the hash is projected, never the plaintext.
	require.NotEqual(t, added.Token, tokens[0].TokenHash)
	require.Equal(t, crypto.HashToken(added.Token), tokens[0].TokenHash)

	t.Run("Authenticate", func(t *testing.T) {
		resolved, err := env.queries.UserByPersonalAccessToken(ctx, testInstance, added.Token)
		require.NoError(t, err)
		require.Equal(t, userID, resolved)
	})

	t.Run("InvalidToken", func(t *testing.T) {
		_, err := env.queries.UserByPersonalAccessToken(ctx, testInstance, "bogus")
		require.True(t, errs.IsPermissionDenied(err))
	})

	t.Run("RemovedTokenStopsAuthenticating", func(t *testing.T) {
		_, err := env.commands.RemovePersonalAccessToken(ctx, testInstance, userID, added.TokenID)
		require.NoError(t, err)
		env.project(t)

		_, err = env.queries.UserByPersonalAccessToken(ctx, testInstance, added.Token)
		require.True(t, errs.IsPermissionDenied(err))
	})
}

func TestExpiredTokenIsRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")
	userID := env.mustAddHuman(t, orgID, "alice")

	added, err := env.commands.AddPersonalAccessToken(ctx, testInstance, userID,
		time.Now().Add(50*time.Millisecond), nil)
	require.NoError(t, err)
	env.project(t)

	time.Sleep(100 * time.Millisecond)
	_, err = env.queries.UserByPersonalAccessToken(ctx, testInstance, added.Token)
	require.True(t, errs.IsPermissionDenied(err))
}

func TestAuthNKeyQueries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	orgID := env.mustAddOrg(t, "Acme")

	machine, err := env.commands.AddMachineUser(ctx, testInstance, orgID, &command.AddMachineRequest{
		Username: "backend", Name: "Backend",
	})
	require.NoError(t, err)

	added, err := env.commands.AddMachineKey(ctx, testInstance, machine.UserID, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	env.project(t)

	keys, err := env.queries.AuthNKeys(ctx, testInstance, machine.UserID)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, added.KeyID, keys[0].KeyID)

	t.Run("VerifyAssertionWithProjectedKey", func(t *testing.T) {
		key, err := env.queries.AuthNKeyByID(ctx, testInstance, added.KeyID)
		require.NoError(t, err)

		assertion, err := crypto.SignAssertion(added.PrivateKey, added.KeyID, machine.UserID, "https://issuer.local", time.Minute)
		require.NoError(t, err)
		claims, err := crypto.VerifyAssertion(key.PublicKey, assertion, "https://issuer.local")
		require.NoError(t, err)
		require.Equal(t, machine.UserID, claims.Subject)
	})

	t.Run("Unknown", func(t *testing.T) {
		_, err := env.queries.AuthNKeyByID(ctx, testInstance, "missing")
		require.True(t, errs.IsNotFound(err))
	})

	t.Run("RemovedKeyDisappears", func(t *testing.T) {
		_, err := env.commands.RemoveMachineKey(ctx, testInstance, machine.UserID, added.KeyID)
		require.NoError(t, err)
		env.project(t)

		keys, err := env.queries.AuthNKeys(ctx, testInstance, machine.UserID)
		require.NoError(t, err)
		require.Empty(t, keys)
	})
}
