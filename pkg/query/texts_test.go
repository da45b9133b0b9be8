package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/errs"
)

func TestCustomTextsQuery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.commands.SetCustomText(ctx, testInstance, "login", "title", "en", "Welcome")
	require.NoError(t, err)
	_, err = env.commands.SetCustomText(ctx, testInstance, "login", "description", "en", "Sign in to continue")
	require.NoError(t, err)
	_, err = env.commands.SetCustomText(ctx, testInstance, "login", "title", "de", "Willkommen")
	require.NoError(t, err)
	env.project(t)

	texts, err := env.queries.CustomTexts(ctx, testInstance, "login", "en")
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"title":       "Welcome",
		"description": "Sign in to continue",
	}, texts)

	t.Run("NoOverrides", func(t *testing.T) {
		texts, err := env.queries.CustomTexts(ctx, testInstance, "login", "fr")
		require.NoError(t, err)
		require.Empty(t, texts)
	})

	t.Run("ResetClearsLanguage", func(t *testing.T) {
		_, err := env.commands.ResetCustomText(ctx, testInstance, "login", "en")
		require.NoError(t, err)
		env.project(t)

		texts, err := env.queries.CustomTexts(ctx, testInstance, "login", "en")
		require.NoError(t, err)
		require.Empty(t, texts)

		// Other languages keep their overrides.
		texts, err = env.queries.CustomTexts(ctx, testInstance, "login", "de")
		require.NoError(t, err)
		require.Equal(t, "Willkommen", texts["title"])
	})
}

func TestMessageTextQuery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.commands.SetMessageText(ctx, testInstance, &command.MessageTextRequest{
		MessageType: "user.initialization",
		Language:    "en",
		Subject:     "Activate your account",
		Greeting:    "Hello {{.FirstName}}",
		Text:        "Use the code to finish setup.",
		ButtonText:  "Activate",
	})
	require.NoError(t, err)
	env.project(t)

	text, err := env.queries.MessageTextByTypeAndLanguage(ctx, testInstance, "user.initialization", "en")
	require.NoError(t, err)
	require.Equal(t, "Activate your account", text.Subject)
	require.Equal(t, "Activate", text.ButtonText)

	t.Run("Unknown", func(t *testing.T) {
		_, err := env.queries.MessageTextByTypeAndLanguage(ctx, testInstance, "user.initialization", "de")
		require.True(t, errs.IsNotFound(err))
	})

	t.Run("ResetRemovesRow", func(t *testing.T) {
		_, err := env.commands.ResetMessageText(ctx, testInstance, "user.initialization", "en")
		require.NoError(t, err)
		env.project(t)

		_, err = env.queries.MessageTextByTypeAndLanguage(ctx, testInstance, "user.initialization", "en")
		require.True(t, errs.IsNotFound(err))
	})
}
