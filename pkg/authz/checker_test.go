package authz_test

import (
	"context"
	"errors"
	"testing"

	"github.com/identra/identra/pkg/authz"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/instance"
)

func TestAllowAll(t *testing.T) {
	if err := authz.AllowAll().Check(context.Background(), "user", "write", "org-1"); err != nil {
		t.Errorf("expected allow, got %v", err)
	}
}

func TestRoleChecker(t *testing.T) {
	required := map[string][]string{
		"user:write": {"ORG_OWNER", "ORG_USER_MANAGER"},
	}
	roles := map[string][]string{
		"alice": {"ORG_OWNER"},
		"bob":   {"ORG_VIEWER"},
	}
	checker := authz.NewRoleChecker(required,
		func(ctx context.Context, userID, scope string) ([]string, error) {
			return roles[userID], nil
		})

	t.Run("GrantingRole", func(t *testing.T) {
		ctx := instance.WithUserID(context.Background(), "alice")
		if err := checker.Check(ctx, "user", "write", "org-1"); err != nil {
			t.Errorf("expected allow, got %v", err)
		}
	})

	t.Run("MissingRole", func(t *testing.T) {
		ctx := instance.WithUserID(context.Background(), "bob")
		err := checker.Check(ctx, "user", "write", "org-1")
		if !errs.IsPermissionDenied(err) {
			t.Errorf("expected PermissionDenied, got %v", err)
		}
	})

	t.Run("UnrestrictedAction", func(t *testing.T) {
		ctx := instance.WithUserID(context.Background(), "bob")
		if err := checker.Check(ctx, "user", "read", "org-1"); err != nil {
			t.Errorf("expected allow for unlisted action, got %v", err)
		}
	})

	t.Run("RoleLookupFailure", func(t *testing.T) {
		failing := authz.NewRoleChecker(required,
			func(ctx context.Context, userID, scope string) ([]string, error) {
				return nil, errors.New("projection down")
			})
		err := failing.Check(context.Background(), "user", "write", "org-1")
		if !errs.IsInternal(err) {
			t.Errorf("expected Internal, got %v", err)
		}
	})
}
