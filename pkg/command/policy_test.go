package command_test

import (
	"context"
	"testing"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
)

func TestOrgLoginPolicy(t *testing.T) {
	c, es := newTestCommands(t)
	ctx := context.Background()
	orgID := mustAddOrg(t, c, "Acme")

	policy := &command.LoginPolicyRequest{AllowUsernamePassword: true, AllowRegister: true}
	if _, err := c.AddOrgLoginPolicy(ctx, testInstance, orgID, policy); err != nil {
		t.Fatalf("failed to add policy: %v", err)
	}
	if _, err := c.AddOrgLoginPolicy(ctx, testInstance, orgID, policy); !errs.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}

	t.Run("ChangeIsIdempotent", func(t *testing.T) {
		before := len(allEvents(t, es, testInstance))
		if _, err := c.ChangeOrgLoginPolicy(ctx, testInstance, orgID, policy); err != nil {
			t.Fatalf("failed: %v", err)
		}
		if after := len(allEvents(t, es, testInstance)); after != before {
			t.Errorf("expected no new events for identical policy")
		}

		changed := &command.LoginPolicyRequest{AllowUsernamePassword: true, ForceMFA: true}
		if _, err := c.ChangeOrgLoginPolicy(ctx, testInstance, orgID, changed); err != nil {
			t.Fatalf("failed to change: %v", err)
		}
	})

	t.Run("SecondFactors", func(t *testing.T) {
		if _, err := c.AddSecondFactorToOrgLoginPolicy(ctx, testInstance, orgID, domain.SecondFactorTypeTOTP); err != nil {
			t.Fatalf("failed to add factor: %v", err)
		}
		if _, err := c.AddSecondFactorToOrgLoginPolicy(ctx, testInstance, orgID, domain.SecondFactorTypeTOTP); !errs.IsAlreadyExists(err) {
			t.Fatalf("expected AlreadyExists on duplicate factor, got %v", err)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		if _, err := c.RemoveOrgLoginPolicy(ctx, testInstance, orgID); err != nil {
			t.Fatalf("failed to remove: %v", err)
		}
		if _, err := c.RemoveOrgLoginPolicy(ctx, testInstance, orgID); !errs.IsNotFound(err) {
			t.Fatalf("expected NotFound, got %v", err)
		}
		// A removed policy can be added again.
		if _, err := c.AddOrgLoginPolicy(ctx, testInstance, orgID, policy); err != nil {
			t.Fatalf("failed to re-add: %v", err)
		}
	})
}

func TestOrgLockoutPolicy(t *testing.T) {
	c, _ := newTestCommands(t)
	ctx := context.Background()
	orgID := mustAddOrg(t, c, "Acme")

	policy := &command.LockoutPolicyRequest{MaxPasswordAttempts: 5, ShowLockoutFailures: true}
	if _, err := c.AddOrgLockoutPolicy(ctx, testInstance, orgID, policy); err != nil {
		t.Fatalf("failed to add: %v", err)
	}
	if _, err := c.ChangeOrgLockoutPolicy(ctx, testInstance, orgID,
		&command.LockoutPolicyRequest{MaxPasswordAttempts: 3}); err != nil {
		t.Fatalf("failed to change: %v", err)
	}
	if _, err := c.RemoveOrgLockoutPolicy(ctx, testInstance, orgID); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}

	t.Run("ChangeMissing", func(t *testing.T) {
		_, err := c.ChangeOrgLockoutPolicy(ctx, testInstance, orgID, policy)
		if !errs.IsNotFound(err) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}

func TestOrgPasswordComplexityPolicy(t *testing.T) {
	c, _ := newTestCommands(t)
	ctx := context.Background()
	orgID := mustAddOrg(t, c, "Acme")

	t.Run("ZeroMinLength", func(t *testing.T) {
		_, err := c.AddOrgPasswordComplexityPolicy(ctx, testInstance, orgID,
			&command.PasswordComplexityPolicyRequest{})
		if !errs.IsInvalidArgument(err) {
			t.Fatalf("expected InvalidArgument, got %v", err)
		}
	})

	policy := &command.PasswordComplexityPolicyRequest{MinLength: 12, HasLowercase: true, HasUppercase: true}
	if _, err := c.AddOrgPasswordComplexityPolicy(ctx, testInstance, orgID, policy); err != nil {
		t.Fatalf("failed to add: %v", err)
	}
	if _, err := c.ChangeOrgPasswordComplexityPolicy(ctx, testInstance, orgID,
		&command.PasswordComplexityPolicyRequest{MinLength: 16, HasNumber: true}); err != nil {
		t.Fatalf("failed to change: %v", err)
	}
}

func TestInstanceDefaultPolicies(t *testing.T) {
	c, _ := newTestCommands(t)
	ctx := context.Background()

	if _, err := c.AddDefaultLoginPolicy(ctx, testInstance,
		&command.LoginPolicyRequest{AllowUsernamePassword: true}); err != nil {
		t.Fatalf("failed to add default login policy: %v", err)
	}
	if _, err := c.AddDefaultLoginPolicy(ctx, testInstance,
		&command.LoginPolicyRequest{AllowUsernamePassword: true}); !errs.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
	if _, err := c.ChangeDefaultLoginPolicy(ctx, testInstance,
		&command.LoginPolicyRequest{AllowUsernamePassword: true, AllowRegister: true}); err != nil {
		t.Fatalf("failed to change default: %v", err)
	}
	if _, err := c.AddSecondFactorToDefaultLoginPolicy(ctx, testInstance, domain.SecondFactorTypeTOTP); err != nil {
		t.Fatalf("failed to add factor: %v", err)
	}

	if _, err := c.AddDefaultLockoutPolicy(ctx, testInstance,
		&command.LockoutPolicyRequest{MaxPasswordAttempts: 10, MaxOTPAttempts: 5}); err != nil {
		t.Fatalf("failed to add default lockout policy: %v", err)
	}
	if _, err := c.AddDefaultPasswordComplexityPolicy(ctx, testInstance,
		&command.PasswordComplexityPolicyRequest{MinLength: 8, HasLowercase: true}); err != nil {
		t.Fatalf("failed to add default complexity policy: %v", err)
	}
}

func TestCustomText(t *testing.T) {
	c, es := newTestCommands(t)
	ctx := context.Background()

	if _, err := c.SetCustomText(ctx, testInstance, "login", "title", "en", "Welcome"); err != nil {
		t.Fatalf("failed to set text: %v", err)
	}

	t.Run("SameValueEmitsNoEvent", func(t *testing.T) {
		before := len(allEvents(t, es, testInstance))
		if _, err := c.SetCustomText(ctx, testInstance, "login", "title", "en", "Welcome"); err != nil {
			t.Fatalf("failed: %v", err)
		}
		if after := len(allEvents(t, es, testInstance)); after != before {
			t.Errorf("expected no new events")
		}
	})

	t.Run("Reset", func(t *testing.T) {
		if _, err := c.ResetCustomText(ctx, testInstance, "login", "en"); err != nil {
			t.Fatalf("failed to reset: %v", err)
		}
		_, err := c.ResetCustomText(ctx, testInstance, "login", "en")
		if !errs.IsNotFound(err) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}
