package command

import (
	"context"
	"slices"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
)

// Instance-level policies are the defaults every org inherits until it adds
// its own override. They cannot be removed, only changed.

// AddDefaultLoginPolicy creates the instance login policy.
func (c *Commands) AddDefaultLoginPolicy(ctx context.Context, instanceID string, req *LoginPolicyRequest) (*domain.ObjectDetails, error) {
	wm := NewInstanceLoginPolicyWriteModel(instanceID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if wm.State.Exists() {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-IPolicy01a", "login policy already exists")
	}

	if err := c.checkPermission(ctx, "policy", "write", instanceID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		instanceCommand(instanceID, creator(ctx), domain.InstanceLoginPolicyAddedType, req.payload()))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// ChangeDefaultLoginPolicy updates the instance login policy. An unchanged
// policy emits no event.
func (c *Commands) ChangeDefaultLoginPolicy(ctx context.Context, instanceID string, req *LoginPolicyRequest) (*domain.ObjectDetails, error) {
	wm := NewInstanceLoginPolicyWriteModel(instanceID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-IPolicy02a", "login policy not found")
	}
	payload := req.payload()
	if wm.Policy == *payload {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	if err := c.checkPermission(ctx, "policy", "write", instanceID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		instanceCommand(instanceID, creator(ctx), domain.InstanceLoginPolicyChangedType, payload))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// AddSecondFactorToDefaultLoginPolicy enables a second factor on the
// instance login policy.
func (c *Commands) AddSecondFactorToDefaultLoginPolicy(ctx context.Context, instanceID string, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	if factor == domain.SecondFactorTypeUnspecified {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-IPolicy03a", "second factor is unspecified")
	}

	wm := NewInstanceLoginPolicyWriteModel(instanceID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-IPolicy03b", "login policy not found")
	}
	if slices.Contains(wm.SecondFactors, factor) {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-IPolicy03c", "second factor already enabled")
	}

	if err := c.checkPermission(ctx, "policy", "write", instanceID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		instanceCommand(instanceID, creator(ctx), domain.InstanceLoginPolicySecondFactorAddedType,
			&domain.LoginPolicySecondFactorAddedPayload{FactorType: factor}))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// AddDefaultLockoutPolicy creates the instance lockout policy.
func (c *Commands) AddDefaultLockoutPolicy(ctx context.Context, instanceID string, req *LockoutPolicyRequest) (*domain.ObjectDetails, error) {
	wm := NewInstanceLockoutPolicyWriteModel(instanceID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if wm.State.Exists() {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-IPolicy04a", "lockout policy already exists")
	}

	if err := c.checkPermission(ctx, "policy", "write", instanceID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		instanceCommand(instanceID, creator(ctx), domain.InstanceLockoutPolicyAddedType, req.payload()))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// ChangeDefaultLockoutPolicy updates the instance lockout policy.
func (c *Commands) ChangeDefaultLockoutPolicy(ctx context.Context, instanceID string, req *LockoutPolicyRequest) (*domain.ObjectDetails, error) {
	wm := NewInstanceLockoutPolicyWriteModel(instanceID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-IPolicy05a", "lockout policy not found")
	}
	payload := req.payload()
	if wm.Policy == *payload {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	if err := c.checkPermission(ctx, "policy", "write", instanceID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		instanceCommand(instanceID, creator(ctx), domain.InstanceLockoutPolicyChangedType, payload))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// AddDefaultPasswordComplexityPolicy creates the instance password
// complexity policy.
func (c *Commands) AddDefaultPasswordComplexityPolicy(ctx context.Context, instanceID string, req *PasswordComplexityPolicyRequest) (*domain.ObjectDetails, error) {
	if req.MinLength == 0 {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-IPolicy06a", "minimum length must be set")
	}

	wm := NewInstancePasswordComplexityPolicyWriteModel(instanceID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if wm.State.Exists() {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-IPolicy06b", "password complexity policy already exists")
	}

	if err := c.checkPermission(ctx, "policy", "write", instanceID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		instanceCommand(instanceID, creator(ctx), domain.InstancePasswordComplexityPolicyAddedType, req.payload()))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// ChangeDefaultPasswordComplexityPolicy updates the instance password
// complexity policy.
func (c *Commands) ChangeDefaultPasswordComplexityPolicy(ctx context.Context, instanceID string, req *PasswordComplexityPolicyRequest) (*domain.ObjectDetails, error) {
	if req.MinLength == 0 {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-IPolicy07a", "minimum length must be set")
	}

	wm := NewInstancePasswordComplexityPolicyWriteModel(instanceID)
	if err := c.filterPolicy(ctx, instanceID, wm); err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-IPolicy07b", "password complexity policy not found")
	}
	payload := req.payload()
	if wm.Policy == *payload {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	if err := c.checkPermission(ctx, "policy", "write", instanceID); err != nil {
		return nil, err
	}

	err := c.pushAppendAndReduce(ctx, wm,
		instanceCommand(instanceID, creator(ctx), domain.InstancePasswordComplexityPolicyChangedType, payload))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}
