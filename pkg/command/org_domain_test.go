package command_test

import (
	"context"
	"testing"

	"github.com/identra/identra/pkg/errs"
)

func TestOrgDomainLifecycle(t *testing.T) {
	c, _ := newTestCommands(t)
	ctx := context.Background()
	orgID := mustAddOrg(t, c, "Acme")

	if _, err := c.AddOrgDomain(ctx, testInstance, orgID, "login.acme.com"); err != nil {
		t.Fatalf("failed to add domain: %v", err)
	}
	if _, err := c.AddOrgDomain(ctx, testInstance, orgID, "login.acme.com"); !errs.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists on duplicate, got %v", err)
	}

	// Unverified domains cannot be primary.
	if _, err := c.SetPrimaryOrgDomain(ctx, testInstance, orgID, "login.acme.com"); !errs.IsPreconditionFailed(err) {
		t.Fatalf("expected PreconditionFailed, got %v", err)
	}

	if _, err := c.VerifyOrgDomain(ctx, testInstance, orgID, "login.acme.com"); err != nil {
		t.Fatalf("failed to verify: %v", err)
	}
	if _, err := c.SetPrimaryOrgDomain(ctx, testInstance, orgID, "login.acme.com"); err != nil {
		t.Fatalf("failed to set primary: %v", err)
	}

	// The primary domain cannot be removed.
	if _, err := c.RemoveOrgDomain(ctx, testInstance, orgID, "login.acme.com"); !errs.IsPreconditionFailed(err) {
		t.Fatalf("expected PreconditionFailed removing primary, got %v", err)
	}
}

func TestVerifyOrgDomainClaims(t *testing.T) {
	c, _ := newTestCommands(t)
	ctx := context.Background()
	orgA := mustAddOrg(t, c, "Acme")
	orgB := mustAddOrg(t, c, "Other")

	for _, orgID := range []string{orgA, orgB} {
		if _, err := c.AddOrgDomain(ctx, testInstance, orgID, "login.acme.com"); err != nil {
			t.Fatalf("failed to add domain: %v", err)
		}
	}

	if _, err := c.VerifyOrgDomain(ctx, testInstance, orgA, "login.acme.com"); err != nil {
		t.Fatalf("failed to verify: %v", err)
	}
	// The constraint value carries the org ID, so another org verifying the
	// same name succeeds; the projection resolves login names per org.
	if _, err := c.VerifyOrgDomain(ctx, testInstance, orgB, "login.acme.com"); err != nil {
		t.Fatalf("failed to verify on second org: %v", err)
	}

	t.Run("VerifyIsIdempotent", func(t *testing.T) {
		if _, err := c.VerifyOrgDomain(ctx, testInstance, orgA, "login.acme.com"); err != nil {
			t.Fatalf("expected idempotent verify, got %v", err)
		}
	})
}

func TestRemoveOrgDomainReleasesClaim(t *testing.T) {
	c, _ := newTestCommands(t)
	ctx := context.Background()
	orgID := mustAddOrg(t, c, "Acme")

	if _, err := c.AddOrgDomain(ctx, testInstance, orgID, "login.acme.com"); err != nil {
		t.Fatalf("failed to add: %v", err)
	}
	if _, err := c.VerifyOrgDomain(ctx, testInstance, orgID, "login.acme.com"); err != nil {
		t.Fatalf("failed to verify: %v", err)
	}
	if _, err := c.RemoveOrgDomain(ctx, testInstance, orgID, "login.acme.com"); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}

	// Re-adding and verifying succeeds because the claim was released.
	if _, err := c.AddOrgDomain(ctx, testInstance, orgID, "login.acme.com"); err != nil {
		t.Fatalf("failed to re-add: %v", err)
	}
	if _, err := c.VerifyOrgDomain(ctx, testInstance, orgID, "login.acme.com"); err != nil {
		t.Fatalf("failed to re-verify: %v", err)
	}

	t.Run("RemoveUnknown", func(t *testing.T) {
		_, err := c.RemoveOrgDomain(ctx, testInstance, orgID, "unknown.acme.com")
		if !errs.IsNotFound(err) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}
