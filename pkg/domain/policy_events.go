package domain

// Policy event types. Org-level policies live on the org aggregate,
// instance defaults on the instance aggregate.
const (
	OrgLoginPolicyAddedType             EventType = "org.policy.login.added"
	OrgLoginPolicyChangedType           EventType = "org.policy.login.changed"
	OrgLoginPolicyRemovedType           EventType = "org.policy.login.removed"
	OrgLoginPolicySecondFactorAddedType EventType = "org.policy.login.secondfactor.added"

	OrgLockoutPolicyAddedType   EventType = "org.policy.lockout.added"
	OrgLockoutPolicyChangedType EventType = "org.policy.lockout.changed"
	OrgLockoutPolicyRemovedType EventType = "org.policy.lockout.removed"

	OrgPasswordComplexityPolicyAddedType   EventType = "org.policy.password.complexity.added"
	OrgPasswordComplexityPolicyChangedType EventType = "org.policy.password.complexity.changed"

	InstanceLoginPolicyAddedType             EventType = "instance.policy.login.added"
	InstanceLoginPolicyChangedType           EventType = "instance.policy.login.changed"
	InstanceLoginPolicySecondFactorAddedType EventType = "instance.policy.login.secondfactor.added"

	InstanceLockoutPolicyAddedType   EventType = "instance.policy.lockout.added"
	InstanceLockoutPolicyChangedType EventType = "instance.policy.lockout.changed"

	InstancePasswordComplexityPolicyAddedType   EventType = "instance.policy.password.complexity.added"
	InstancePasswordComplexityPolicyChangedType EventType = "instance.policy.password.complexity.changed"
)

// PolicyState tracks whether a policy exists on its aggregate.
type PolicyState int

const (
	PolicyStateUnspecified PolicyState = iota
	PolicyStateActive
	PolicyStateRemoved
)

func (s PolicyState) Exists() bool {
	return s == PolicyStateActive
}

// SecondFactorType enumerates supported second factors.
type SecondFactorType int

const (
	SecondFactorTypeUnspecified SecondFactorType = iota
	SecondFactorTypeTOTP
	SecondFactorTypeU2F
	SecondFactorTypeOTPEmail
	SecondFactorTypeOTPSMS
)

type LoginPolicyAddedPayload struct {
	AllowUsernamePassword bool `json:"allowUsernamePassword"`
	AllowRegister         bool `json:"allowRegister"`
	AllowExternalIDP      bool `json:"allowExternalIdp"`
	ForceMFA              bool `json:"forceMfa"`
	HidePasswordReset     bool `json:"hidePasswordReset,omitempty"`
	IgnoreUnknownUsername bool `json:"ignoreUnknownUsernames,omitempty"`
}

type LoginPolicyChangedPayload = LoginPolicyAddedPayload

type LoginPolicySecondFactorAddedPayload struct {
	FactorType SecondFactorType `json:"mfaType"`
}

type LockoutPolicyAddedPayload struct {
	MaxPasswordAttempts uint64 `json:"maxPasswordAttempts"`
	MaxOTPAttempts      uint64 `json:"maxOtpAttempts"`
	ShowLockoutFailures bool   `json:"showLockOutFailures"`
}

type LockoutPolicyChangedPayload = LockoutPolicyAddedPayload

type PasswordComplexityPolicyAddedPayload struct {
	MinLength    uint64 `json:"minLength"`
	HasLowercase bool   `json:"hasLowercase"`
	HasUppercase bool   `json:"hasUppercase"`
	HasNumber    bool   `json:"hasNumber"`
	HasSymbol    bool   `json:"hasSymbol"`
}

type PasswordComplexityPolicyChangedPayload = PasswordComplexityPolicyAddedPayload
