package command

import (
	"context"
	"slices"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
)

// LoginPolicyRequest carries the settings of a login policy at either
// level.
type LoginPolicyRequest struct {
	AllowUsernamePassword bool
	AllowRegister         bool
	AllowExternalIDP      bool
	ForceMFA              bool
	HidePasswordReset     bool
	IgnoreUnknownUsername bool
}

func (r *LoginPolicyRequest) payload() *domain.LoginPolicyAddedPayload {
	return &domain.LoginPolicyAddedPayload{
		AllowUsernamePassword: r.AllowUsernamePassword,
		AllowRegister:         r.AllowRegister,
		AllowExternalIDP:      r.AllowExternalIDP,
		ForceMFA:              r.ForceMFA,
		HidePasswordReset:     r.HidePasswordReset,
		IgnoreUnknownUsername: r.IgnoreUnknownUsername,
	}
}

// LockoutPolicyRequest carries the settings of a lockout policy. Zero
// attempt budgets disable the respective lockout.
type LockoutPolicyRequest struct {
	MaxPasswordAttempts uint64
	MaxOTPAttempts      uint64
	ShowLockoutFailures bool
}

func (r *LockoutPolicyRequest) payload() *domain.LockoutPolicyAddedPayload {
	return &domain.LockoutPolicyAddedPayload{
		MaxPasswordAttempts: r.MaxPasswordAttempts,
		MaxOTPAttempts:      r.MaxOTPAttempts,
		ShowLockoutFailures: r.ShowLockoutFailures,
	}
}

// PasswordComplexityPolicyRequest carries the settings of a password
// complexity policy.
type PasswordComplexityPolicyRequest struct {
	MinLength    uint64
	HasLowercase bool
	HasUppercase bool
	HasNumber    bool
	HasSymbol    bool
}

func (r *PasswordComplexityPolicyRequest) payload() *domain.PasswordComplexityPolicyAddedPayload {
	return &domain.PasswordComplexityPolicyAddedPayload{
		MinLength:    r.MinLength,
		HasLowercase: r.HasLowercase,
		HasUppercase: r.HasUppercase,
		HasNumber:    r.HasNumber,
		HasSymbol:    r.HasSymbol,
	}
}

// AddOrgLoginPolicy creates an org-level login policy overriding the
// instance default.
func (c *Commands) AddOrgLoginPolicy(ctx context.Context, instanceID, orgID string, req *LoginPolicyRequest) (*domain.ObjectDetails, error) {
	if err := c.checkOrgExists(ctx, instanceID, orgID); err != nil {
		return nil, err
	}

	wm := NewOrgLoginPolicyWriteModel(instanceID, orgID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if wm.State.Exists() {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-Policy01a", "login policy already exists")
	}

	if err := c.checkPermission(ctx, "policy", "write", orgID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgLoginPolicyAddedType, req.payload()))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// ChangeOrgLoginPolicy updates an existing org login policy. An unchanged
// policy emits no event.
func (c *Commands) ChangeOrgLoginPolicy(ctx context.Context, instanceID, orgID string, req *LoginPolicyRequest) (*domain.ObjectDetails, error) {
	wm := NewOrgLoginPolicyWriteModel(instanceID, orgID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Policy02a", "login policy not found")
	}
	payload := req.payload()
	if wm.Policy == *payload {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	if err := c.checkPermission(ctx, "policy", "write", orgID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgLoginPolicyChangedType, payload))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// RemoveOrgLoginPolicy deletes the org override; resolution falls back to
// the instance default.
func (c *Commands) RemoveOrgLoginPolicy(ctx context.Context, instanceID, orgID string) (*domain.ObjectDetails, error) {
	wm := NewOrgLoginPolicyWriteModel(instanceID, orgID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Policy03a", "login policy not found")
	}

	if err := c.checkPermission(ctx, "policy", "delete", orgID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgLoginPolicyRemovedType, nil))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// AddSecondFactorToOrgLoginPolicy enables a second factor on the org login
// policy. Enabling an already enabled factor fails with AlreadyExists.
func (c *Commands) AddSecondFactorToOrgLoginPolicy(ctx context.Context, instanceID, orgID string, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	if factor == domain.SecondFactorTypeUnspecified {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Policy04a", "second factor is unspecified")
	}

	wm := NewOrgLoginPolicyWriteModel(instanceID, orgID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Policy04b", "login policy not found")
	}
	if slices.Contains(wm.SecondFactors, factor) {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-Policy04c", "second factor already enabled")
	}

	if err := c.checkPermission(ctx, "policy", "write", orgID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgLoginPolicySecondFactorAddedType,
			&domain.LoginPolicySecondFactorAddedPayload{FactorType: factor}))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// AddOrgLockoutPolicy creates an org-level lockout policy.
func (c *Commands) AddOrgLockoutPolicy(ctx context.Context, instanceID, orgID string, req *LockoutPolicyRequest) (*domain.ObjectDetails, error) {
	if err := c.checkOrgExists(ctx, instanceID, orgID); err != nil {
		return nil, err
	}

	wm := NewOrgLockoutPolicyWriteModel(instanceID, orgID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if wm.State.Exists() {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-Policy05a", "lockout policy already exists")
	}

	if err := c.checkPermission(ctx, "policy", "write", orgID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgLockoutPolicyAddedType, req.payload()))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// ChangeOrgLockoutPolicy updates an existing org lockout policy.
func (c *Commands) ChangeOrgLockoutPolicy(ctx context.Context, instanceID, orgID string, req *LockoutPolicyRequest) (*domain.ObjectDetails, error) {
	wm := NewOrgLockoutPolicyWriteModel(instanceID, orgID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Policy06a", "lockout policy not found")
	}
	payload := req.payload()
	if wm.Policy == *payload {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	if err := c.checkPermission(ctx, "policy", "write", orgID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgLockoutPolicyChangedType, payload))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// RemoveOrgLockoutPolicy deletes the org override.
func (c *Commands) RemoveOrgLockoutPolicy(ctx context.Context, instanceID, orgID string) (*domain.ObjectDetails, error) {
	wm := NewOrgLockoutPolicyWriteModel(instanceID, orgID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Policy07a", "lockout policy not found")
	}

	if err := c.checkPermission(ctx, "policy", "delete", orgID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgLockoutPolicyRemovedType, nil))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// AddOrgPasswordComplexityPolicy creates an org-level password complexity
// policy.
func (c *Commands) AddOrgPasswordComplexityPolicy(ctx context.Context, instanceID, orgID string, req *PasswordComplexityPolicyRequest) (*domain.ObjectDetails, error) {
	if req.MinLength == 0 {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Policy08a", "minimum length must be set")
	}
	if err := c.checkOrgExists(ctx, instanceID, orgID); err != nil {
		return nil, err
	}

	wm := NewOrgPasswordComplexityPolicyWriteModel(instanceID, orgID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if wm.State.Exists() {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-Policy08b", "password complexity policy already exists")
	}

	if err := c.checkPermission(ctx, "policy", "write", orgID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgPasswordComplexityPolicyAddedType, req.payload()))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// ChangeOrgPasswordComplexityPolicy updates an existing org password
// complexity policy.
func (c *Commands) ChangeOrgPasswordComplexityPolicy(ctx context.Context, instanceID, orgID string, req *PasswordComplexityPolicyRequest) (*domain.ObjectDetails, error) {
	if req.MinLength == 0 {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Policy09a", "minimum length must be set")
	}

	wm := NewOrgPasswordComplexityPolicyWriteModel(instanceID, orgID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Policy09b", "password complexity policy not found")
	}
	payload := req.payload()
	if wm.Policy == *payload {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	if err := c.checkPermission(ctx, "policy", "write", orgID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgPasswordComplexityPolicyChangedType, payload))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}
