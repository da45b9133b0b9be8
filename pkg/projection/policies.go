package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/identra/identra/pkg/domain"
)

// The policy projections store org overrides and instance defaults in the
// same table, discriminated by is_default. aggregate_id is the org ID for
// overrides and the instance ID for defaults.

const (
	LoginPoliciesTable              = "projections_login_policies"
	LockoutPoliciesTable            = "projections_lockout_policies"
	PasswordComplexityPoliciesTable = "projections_password_complexity_policies"
)

const createLoginPoliciesTable = `
CREATE TABLE IF NOT EXISTS projections_login_policies (
	instance_id             TEXT NOT NULL,
	aggregate_id            TEXT NOT NULL,
	is_default              INTEGER NOT NULL,
	allow_username_password INTEGER NOT NULL,
	allow_register          INTEGER NOT NULL,
	allow_external_idp      INTEGER NOT NULL,
	force_mfa               INTEGER NOT NULL,
	hide_password_reset     INTEGER NOT NULL,
	ignore_unknown_username INTEGER NOT NULL,
	second_factors          TEXT NOT NULL DEFAULT '[]',
	changed_at              INTEGER NOT NULL,
	sequence                INTEGER NOT NULL,
	PRIMARY KEY (instance_id, aggregate_id)
);
`

type loginPoliciesHandler struct{}

// NewLoginPoliciesHandler projects org and instance login policies.
func NewLoginPoliciesHandler() Handler {
	return &loginPoliciesHandler{}
}

func (*loginPoliciesHandler) Name() string { return "login_policies" }

func (*loginPoliciesHandler) Tables() []string { return []string{LoginPoliciesTable} }

func (*loginPoliciesHandler) Requires() []string { return nil }

func (*loginPoliciesHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createLoginPoliciesTable); err != nil {
		return fmt.Errorf("failed to create login policies projection table: %w", err)
	}
	return nil
}

func (h *loginPoliciesHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{
		{
			Aggregate: domain.AggregateTypeOrg,
			Reducers: map[domain.EventType]Reduce{
				domain.OrgLoginPolicyAddedType:             h.reduceSet(false),
				domain.OrgLoginPolicyChangedType:           h.reduceSet(false),
				domain.OrgLoginPolicySecondFactorAddedType: h.reduceSecondFactorAdded,
				domain.OrgLoginPolicyRemovedType:           h.reduceRemoved,
				domain.OrgRemovedType:                      h.reduceRemoved,
			},
		},
		{
			Aggregate: domain.AggregateTypeInstance,
			Reducers: map[domain.EventType]Reduce{
				domain.InstanceLoginPolicyAddedType:             h.reduceSet(true),
				domain.InstanceLoginPolicyChangedType:           h.reduceSet(true),
				domain.InstanceLoginPolicySecondFactorAddedType: h.reduceSecondFactorAdded,
			},
		},
	}
}

func (*loginPoliciesHandler) reduceSet(isDefault bool) Reduce {
	return func(event *domain.Event) (*Statement, error) {
		var payload domain.LoginPolicyAddedPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return NewUpsertStatement(LoginPoliciesTable,
			[]string{"instance_id", "aggregate_id"},
			[]Column{
				Col("instance_id", event.InstanceID),
				Col("aggregate_id", event.AggregateID),
				Col("is_default", boolToInt(isDefault)),
				Col("allow_username_password", boolToInt(payload.AllowUsernamePassword)),
				Col("allow_register", boolToInt(payload.AllowRegister)),
				Col("allow_external_idp", boolToInt(payload.AllowExternalIDP)),
				Col("force_mfa", boolToInt(payload.ForceMFA)),
				Col("hide_password_reset", boolToInt(payload.HidePasswordReset)),
				Col("ignore_unknown_username", boolToInt(payload.IgnoreUnknownUsername)),
				Col("changed_at", event.CreatedAt.UnixMicro()),
				Col("sequence", event.AggregateVersion),
			},
		), nil
	}
}

// reduceSecondFactorAdded appends to the JSON factor list in place.
func (*loginPoliciesHandler) reduceSecondFactorAdded(event *domain.Event) (*Statement, error) {
	var payload domain.LoginPolicySecondFactorAddedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	factor, err := json.Marshal(payload.FactorType)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal second factor: %w", err)
	}
	return NewExecStatement(
		fmt.Sprintf(`UPDATE %s SET second_factors = json_insert(second_factors, '$[#]', json(?)), changed_at = ?, sequence = ?
			WHERE instance_id = ? AND aggregate_id = ?`, LoginPoliciesTable),
		string(factor), event.CreatedAt.UnixMicro(), event.AggregateVersion,
		event.InstanceID, event.AggregateID,
	), nil
}

func (*loginPoliciesHandler) reduceRemoved(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(LoginPoliciesTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("aggregate_id", event.AggregateID),
		},
	), nil
}

const createLockoutPoliciesTable = `
CREATE TABLE IF NOT EXISTS projections_lockout_policies (
	instance_id           TEXT NOT NULL,
	aggregate_id          TEXT NOT NULL,
	is_default            INTEGER NOT NULL,
	max_password_attempts INTEGER NOT NULL,
	max_otp_attempts      INTEGER NOT NULL,
	show_failures         INTEGER NOT NULL,
	changed_at            INTEGER NOT NULL,
	sequence              INTEGER NOT NULL,
	PRIMARY KEY (instance_id, aggregate_id)
);
`

type lockoutPoliciesHandler struct{}

// NewLockoutPoliciesHandler projects org and instance lockout policies.
func NewLockoutPoliciesHandler() Handler {
	return &lockoutPoliciesHandler{}
}

func (*lockoutPoliciesHandler) Name() string { return "lockout_policies" }

func (*lockoutPoliciesHandler) Tables() []string { return []string{LockoutPoliciesTable} }

func (*lockoutPoliciesHandler) Requires() []string { return nil }

func (*lockoutPoliciesHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createLockoutPoliciesTable); err != nil {
		return fmt.Errorf("failed to create lockout policies projection table: %w", err)
	}
	return nil
}

func (h *lockoutPoliciesHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{
		{
			Aggregate: domain.AggregateTypeOrg,
			Reducers: map[domain.EventType]Reduce{
				domain.OrgLockoutPolicyAddedType:   h.reduceSet(false),
				domain.OrgLockoutPolicyChangedType: h.reduceSet(false),
				domain.OrgLockoutPolicyRemovedType: h.reduceRemoved,
				domain.OrgRemovedType:              h.reduceRemoved,
			},
		},
		{
			Aggregate: domain.AggregateTypeInstance,
			Reducers: map[domain.EventType]Reduce{
				domain.InstanceLockoutPolicyAddedType:   h.reduceSet(true),
				domain.InstanceLockoutPolicyChangedType: h.reduceSet(true),
			},
		},
	}
}

func (*lockoutPoliciesHandler) reduceSet(isDefault bool) Reduce {
	return func(event *domain.Event) (*Statement, error) {
		var payload domain.LockoutPolicyAddedPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return NewUpsertStatement(LockoutPoliciesTable,
			[]string{"instance_id", "aggregate_id"},
			[]Column{
				Col("instance_id", event.InstanceID),
				Col("aggregate_id", event.AggregateID),
				Col("is_default", boolToInt(isDefault)),
				Col("max_password_attempts", payload.MaxPasswordAttempts),
				Col("max_otp_attempts", payload.MaxOTPAttempts),
				Col("show_failures", boolToInt(payload.ShowLockoutFailures)),
				Col("changed_at", event.CreatedAt.UnixMicro()),
				Col("sequence", event.AggregateVersion),
			},
		), nil
	}
}

func (*lockoutPoliciesHandler) reduceRemoved(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(LockoutPoliciesTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("aggregate_id", event.AggregateID),
		},
	), nil
}

const createPasswordComplexityPoliciesTable = `
CREATE TABLE IF NOT EXISTS projections_password_complexity_policies (
	instance_id   TEXT NOT NULL,
	aggregate_id  TEXT NOT NULL,
	is_default    INTEGER NOT NULL,
	min_length    INTEGER NOT NULL,
	has_lowercase INTEGER NOT NULL,
	has_uppercase INTEGER NOT NULL,
	has_number    INTEGER NOT NULL,
	has_symbol    INTEGER NOT NULL,
	changed_at    INTEGER NOT NULL,
	sequence      INTEGER NOT NULL,
	PRIMARY KEY (instance_id, aggregate_id)
);
`

type passwordComplexityPoliciesHandler struct{}

// NewPasswordComplexityPoliciesHandler projects org and instance password
// complexity policies.
func NewPasswordComplexityPoliciesHandler() Handler {
	return &passwordComplexityPoliciesHandler{}
}

func (*passwordComplexityPoliciesHandler) Name() string { return "password_complexity_policies" }

func (*passwordComplexityPoliciesHandler) Tables() []string {
	return []string{PasswordComplexityPoliciesTable}
}

func (*passwordComplexityPoliciesHandler) Requires() []string { return nil }

func (*passwordComplexityPoliciesHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createPasswordComplexityPoliciesTable); err != nil {
		return fmt.Errorf("failed to create password complexity policies projection table: %w", err)
	}
	return nil
}

func (h *passwordComplexityPoliciesHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{
		{
			Aggregate: domain.AggregateTypeOrg,
			Reducers: map[domain.EventType]Reduce{
				domain.OrgPasswordComplexityPolicyAddedType:   h.reduceSet(false),
				domain.OrgPasswordComplexityPolicyChangedType: h.reduceSet(false),
				domain.OrgRemovedType:                         h.reduceRemoved,
			},
		},
		{
			Aggregate: domain.AggregateTypeInstance,
			Reducers: map[domain.EventType]Reduce{
				domain.InstancePasswordComplexityPolicyAddedType:   h.reduceSet(true),
				domain.InstancePasswordComplexityPolicyChangedType: h.reduceSet(true),
			},
		},
	}
}

func (*passwordComplexityPoliciesHandler) reduceSet(isDefault bool) Reduce {
	return func(event *domain.Event) (*Statement, error) {
		var payload domain.PasswordComplexityPolicyAddedPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return NewUpsertStatement(PasswordComplexityPoliciesTable,
			[]string{"instance_id", "aggregate_id"},
			[]Column{
				Col("instance_id", event.InstanceID),
				Col("aggregate_id", event.AggregateID),
				Col("is_default", boolToInt(isDefault)),
				Col("min_length", payload.MinLength),
				Col("has_lowercase", boolToInt(payload.HasLowercase)),
				Col("has_uppercase", boolToInt(payload.HasUppercase)),
				Col("has_number", boolToInt(payload.HasNumber)),
				Col("has_symbol", boolToInt(payload.HasSymbol)),
				Col("changed_at", event.CreatedAt.UnixMicro()),
				Col("sequence", event.AggregateVersion),
			},
		), nil
	}
}

func (*passwordComplexityPoliciesHandler) reduceRemoved(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(PasswordComplexityPoliciesTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("aggregate_id", event.AggregateID),
		},
	), nil
}
