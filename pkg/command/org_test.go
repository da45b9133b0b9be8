package command_test

import (
	"context"
	"testing"

	"github.com/identra/identra/pkg/command"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
)

func TestAddOrg(t *testing.T) {
	c, es := newTestCommands(t)
	ctx := context.Background()

	created, err := c.AddOrg(ctx, testInstance, &command.AddOrgRequest{Name: "Acme"})
	if err != nil {
		t.Fatalf("failed to add org: %v", err)
	}
	if created.OrgID == "" {
		t.Fatal("expected generated org id")
	}
	if created.Details.Sequence != 4 {
		t.Errorf("expected sequence 4, got %d", created.Details.Sequence)
	}
	if created.Details.ResourceOwner != created.OrgID {
		t.Errorf("expected resource owner %s, got %s", created.OrgID, created.Details.ResourceOwner)
	}

	events := allEvents(t, es, testInstance)
	want := []domain.EventType{
		domain.OrgAddedType,
		domain.OrgDomainAddedType,
		domain.OrgDomainVerifiedType,
		domain.OrgDomainPrimarySetType,
	}
	got := eventTypes(events)
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestAddOrgDuplicateName(t *testing.T) {
	c, _ := newTestCommands(t)
	ctx := context.Background()

	mustAddOrg(t, c, "Acme")

	// Case-insensitive: the constraint is claimed on the lowercased name.
	_, err := c.AddOrg(ctx, testInstance, &command.AddOrgRequest{Name: "ACME"})
	if !errs.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestAddOrgInvalidName(t *testing.T) {
	c, _ := newTestCommands(t)

	_, err := c.AddOrg(context.Background(), testInstance, &command.AddOrgRequest{Name: "   "})
	if !errs.IsInvalidArgument(err) {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestChangeOrg(t *testing.T) {
	c, es := newTestCommands(t)
	ctx := context.Background()
	orgID := mustAddOrg(t, c, "Acme")

	details, err := c.ChangeOrg(ctx, testInstance, orgID, "Acme Corp")
	if err != nil {
		t.Fatalf("failed to change org: %v", err)
	}
	if details.Sequence != 5 {
		t.Errorf("expected sequence 5, got %d", details.Sequence)
	}

	// The old name is free again.
	mustAddOrg(t, c, "Acme")

	t.Run("SameNameEmitsNoEvent", func(t *testing.T) {
		before := len(allEvents(t, es, testInstance))
		details, err := c.ChangeOrg(ctx, testInstance, orgID, "Acme Corp")
		if err != nil {
			t.Fatalf("failed: %v", err)
		}
		if details.Sequence != 5 {
			t.Errorf("expected unchanged sequence 5, got %d", details.Sequence)
		}
		if after := len(allEvents(t, es, testInstance)); after != before {
			t.Errorf("expected no new events, got %d", after-before)
		}
	})

	t.Run("UnknownOrg", func(t *testing.T) {
		_, err := c.ChangeOrg(ctx, testInstance, "missing", "Name")
		if !errs.IsNotFound(err) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}

func TestOrgStateTransitions(t *testing.T) {
	c, _ := newTestCommands(t)
	ctx := context.Background()
	orgID := mustAddOrg(t, c, "Acme")

	if _, err := c.ReactivateOrg(ctx, testInstance, orgID); !errs.IsPreconditionFailed(err) {
		t.Fatalf("expected PreconditionFailed on active org, got %v", err)
	}

	if _, err := c.DeactivateOrg(ctx, testInstance, orgID); err != nil {
		t.Fatalf("failed to deactivate: %v", err)
	}
	if _, err := c.DeactivateOrg(ctx, testInstance, orgID); !errs.IsPreconditionFailed(err) {
		t.Fatalf("expected PreconditionFailed on inactive org, got %v", err)
	}

	if _, err := c.ReactivateOrg(ctx, testInstance, orgID); err != nil {
		t.Fatalf("failed to reactivate: %v", err)
	}
}

func TestRemoveOrg(t *testing.T) {
	c, _ := newTestCommands(t)
	ctx := context.Background()
	orgID := mustAddOrg(t, c, "Acme")

	if _, err := c.RemoveOrg(ctx, testInstance, orgID); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}

	// Removal is terminal.
	if _, err := c.ChangeOrg(ctx, testInstance, orgID, "Renamed"); !errs.IsNotFound(err) {
		t.Fatalf("expected NotFound after removal, got %v", err)
	}
	if _, err := c.RemoveOrg(ctx, testInstance, orgID); !errs.IsNotFound(err) {
		t.Fatalf("expected NotFound on double remove, got %v", err)
	}

	// The name is released.
	mustAddOrg(t, c, "Acme")
}
