package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/projection"
)

// LoginPolicy is the read model of a login policy row. IsDefault marks the
// instance-level default.
type LoginPolicy struct {
	AggregateID           string
	InstanceID            string
	IsDefault             bool
	AllowUsernamePassword bool
	AllowRegister         bool
	AllowExternalIDP      bool
	ForceMFA              bool
	HidePasswordReset     bool
	IgnoreUnknownUsername bool
	SecondFactors         []domain.SecondFactorType
	ChangedAt             time.Time
	Sequence              uint64
}

// LoginPolicyByOrg returns the org's login policy row or NotFound. It does
// not fall back to the instance default; resolution lives in the policy
// package.
func (q *Queries) LoginPolicyByOrg(ctx context.Context, instanceID, orgID string) (*LoginPolicy, error) {
	return q.loginPolicy(ctx, instanceID, orgID)
}

// DefaultLoginPolicy returns the instance login policy row or NotFound.
func (q *Queries) DefaultLoginPolicy(ctx context.Context, instanceID string) (*LoginPolicy, error) {
	return q.loginPolicy(ctx, instanceID, instanceID)
}

func (q *Queries) loginPolicy(ctx context.Context, instanceID, aggregateID string) (*LoginPolicy, error) {
	p := &LoginPolicy{}
	var isDefault, allowUP, allowReg, allowIDP, forceMFA, hideReset, ignoreUnknown int
	var factors string
	var changedAt int64
	err := q.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT aggregate_id, instance_id, is_default, allow_username_password, allow_register,
			allow_external_idp, force_mfa, hide_password_reset, ignore_unknown_username, second_factors, changed_at, sequence
			FROM %s WHERE instance_id = ? AND aggregate_id = ?`, projection.LoginPoliciesTable),
		instanceID, aggregateID).
		Scan(&p.AggregateID, &p.InstanceID, &isDefault, &allowUP, &allowReg,
			&allowIDP, &forceMFA, &hideReset, &ignoreUnknown, &factors, &changedAt, &p.Sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ThrowNotFound(err, "QUERY-Policy01", "login policy not found")
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Policy02", "failed to query login policy")
	}
	p.IsDefault = isDefault != 0
	p.AllowUsernamePassword = allowUP != 0
	p.AllowRegister = allowReg != 0
	p.AllowExternalIDP = allowIDP != 0
	p.ForceMFA = forceMFA != 0
	p.HidePasswordReset = hideReset != 0
	p.IgnoreUnknownUsername = ignoreUnknown != 0
	p.ChangedAt = microTime(changedAt)
	if err := json.Unmarshal([]byte(factors), &p.SecondFactors); err != nil {
		return nil, errs.ThrowInternal(err, "QUERY-Policy03", "failed to decode second factors")
	}
	return p, nil
}

// LockoutPolicy is the read model of a lockout policy row.
type LockoutPolicy struct {
	AggregateID         string
	InstanceID          string
	IsDefault           bool
	MaxPasswordAttempts uint64
	MaxOTPAttempts      uint64
	ShowLockoutFailures bool
	ChangedAt           time.Time
	Sequence            uint64
}

// LockoutPolicyByOrg returns the org's lockout policy row or NotFound.
func (q *Queries) LockoutPolicyByOrg(ctx context.Context, instanceID, orgID string) (*LockoutPolicy, error) {
	return q.lockoutPolicy(ctx, instanceID, orgID)
}

// DefaultLockoutPolicy returns the instance lockout policy row or NotFound.
func (q *Queries) DefaultLockoutPolicy(ctx context.Context, instanceID string) (*LockoutPolicy, error) {
	return q.lockoutPolicy(ctx, instanceID, instanceID)
}

func (q *Queries) lockoutPolicy(ctx context.Context, instanceID, aggregateID string) (*LockoutPolicy, error) {
	p := &LockoutPolicy{}
	var isDefault, showFailures int
	var changedAt int64
	err := q.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT aggregate_id, instance_id, is_default, max_password_attempts, max_otp_attempts,
			show_failures, changed_at, sequence FROM %s WHERE instance_id = ? AND aggregate_id = ?`,
			projection.LockoutPoliciesTable),
		instanceID, aggregateID).
		Scan(&p.AggregateID, &p.InstanceID, &isDefault, &p.MaxPasswordAttempts, &p.MaxOTPAttempts,
			&showFailures, &changedAt, &p.Sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ThrowNotFound(err, "QUERY-Policy04", "lockout policy not found")
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Policy05", "failed to query lockout policy")
	}
	p.IsDefault = isDefault != 0
	p.ShowLockoutFailures = showFailures != 0
	p.ChangedAt = microTime(changedAt)
	return p, nil
}

// PasswordComplexityPolicy is the read model of a password complexity
// policy row.
type PasswordComplexityPolicy struct {
	AggregateID  string
	InstanceID   string
	IsDefault    bool
	MinLength    uint64
	HasLowercase bool
	HasUppercase bool
	HasNumber    bool
	HasSymbol    bool
	ChangedAt    time.Time
	Sequence     uint64
}

// PasswordComplexityPolicyByOrg returns the org's row or NotFound.
func (q *Queries) PasswordComplexityPolicyByOrg(ctx context.Context, instanceID, orgID string) (*PasswordComplexityPolicy, error) {
	return q.passwordComplexityPolicy(ctx, instanceID, orgID)
}

// DefaultPasswordComplexityPolicy returns the instance row or NotFound.
func (q *Queries) DefaultPasswordComplexityPolicy(ctx context.Context, instanceID string) (*PasswordComplexityPolicy, error) {
	return q.passwordComplexityPolicy(ctx, instanceID, instanceID)
}

func (q *Queries) passwordComplexityPolicy(ctx context.Context, instanceID, aggregateID string) (*PasswordComplexityPolicy, error) {
	p := &PasswordComplexityPolicy{}
	var isDefault, lower, upper, number, symbol int
	var changedAt int64
	err := q.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT aggregate_id, instance_id, is_default, min_length, has_lowercase, has_uppercase,
			has_number, has_symbol, changed_at, sequence FROM %s WHERE instance_id = ? AND aggregate_id = ?`,
			projection.PasswordComplexityPoliciesTable),
		instanceID, aggregateID).
		Scan(&p.AggregateID, &p.InstanceID, &isDefault, &p.MinLength, &lower, &upper,
			&number, &symbol, &changedAt, &p.Sequence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ThrowNotFound(err, "QUERY-Policy06", "password complexity policy not found")
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Policy07", "failed to query password complexity policy")
	}
	p.IsDefault = isDefault != 0
	p.HasLowercase = lower != 0
	p.HasUppercase = upper != 0
	p.HasNumber = number != 0
	p.HasSymbol = symbol != 0
	p.ChangedAt = microTime(changedAt)
	return p, nil
}
