package authz

import (
	"context"

	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/instance"
)

// Checker decides whether the calling principal may perform an action on a
// resource within a scope (org or instance ID).
type Checker interface {
	Check(ctx context.Context, resource, action, scope string) error
}

// CheckerFunc adapts a function to the Checker interface.
type CheckerFunc func(ctx context.Context, resource, action, scope string) error

func (f CheckerFunc) Check(ctx context.Context, resource, action, scope string) error {
	return f(ctx, resource, action, scope)
}

// AllowAll permits every action. Used in tests and single-operator setups.
func AllowAll() Checker {
	return CheckerFunc(func(context.Context, string, string, string) error {
		return nil
	})
}

// RoleChecker implements role-based checks: an action is allowed when the
// principal holds at least one of the roles required for it.
type RoleChecker struct {
	// required maps "resource:action" to the roles that grant it. An
	// absent entry means the action needs no role.
	required map[string][]string

	// rolesFor returns the principal's roles within the scope.
	rolesFor func(ctx context.Context, userID, scope string) ([]string, error)
}

func NewRoleChecker(
	required map[string][]string,
	rolesFor func(ctx context.Context, userID, scope string) ([]string, error),
) *RoleChecker {
	return &RoleChecker{required: required, rolesFor: rolesFor}
}

func (c *RoleChecker) Check(ctx context.Context, resource, action, scope string) error {
	requiredRoles, exists := c.required[resource+":"+action]
	if !exists || len(requiredRoles) == 0 {
		return nil
	}

	userID := instance.UserID(ctx)
	roles, err := c.rolesFor(ctx, userID, scope)
	if err != nil {
		return errs.ThrowInternal(err, "AUTHZ-Rol01a", "failed to resolve roles")
	}

	for _, have := range roles {
		for _, want := range requiredRoles {
			if have == want {
				return nil
			}
		}
	}
	return errs.ThrowPermissionDenied(nil, "AUTHZ-Den01a", "not allowed")
}
