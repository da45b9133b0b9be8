package domain

import "time"

// User event types.
const (
	HumanAddedType      EventType = "user.human.added"
	MachineAddedType    EventType = "user.machine.added"
	UsernameChangedType EventType = "user.username.changed"
	UserDeactivatedType EventType = "user.deactivated"
	UserReactivatedType EventType = "user.reactivated"
	UserLockedType      EventType = "user.locked"
	UserUnlockedType    EventType = "user.unlocked"
	UserRemovedType     EventType = "user.removed"

	PersonalAccessTokenAddedType   EventType = "user.pat.added"
	PersonalAccessTokenRemovedType EventType = "user.pat.removed"
	MachineKeyAddedType            EventType = "user.machine.key.added"
	MachineKeyRemovedType          EventType = "user.machine.key.removed"

	UserMetadataSetType        EventType = "user.metadata.set"
	UserMetadataRemovedType    EventType = "user.metadata.removed"
	UserMetadataRemovedAllType EventType = "user.metadata.removed.all"
)

// UniqueUsername reserves a login name within an instance.
const UniqueUsername = "login_name"

// UserState is the user aggregate state machine.
type UserState int

const (
	UserStateUnspecified UserState = iota
	UserStateActive
	UserStateInactive
	UserStateLocked
	UserStateRemoved
)

// Exists reports whether the user is present (any non-removed state).
func (s UserState) Exists() bool {
	return s != UserStateUnspecified && s != UserStateRemoved
}

// UserType distinguishes interactive humans from machine accounts.
type UserType int

const (
	UserTypeUnspecified UserType = iota
	UserTypeHuman
	UserTypeMachine
)

type HumanAddedPayload struct {
	Username      string `json:"username"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified,omitempty"`
	PasswordHash  string `json:"passwordHash,omitempty"`
	PreferredLang string `json:"preferredLanguage,omitempty"`
}

type MachineAddedPayload struct {
	Username    string `json:"username"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type UsernameChangedPayload struct {
	Username string `json:"username"`
}

type PersonalAccessTokenAddedPayload struct {
	TokenID    string    `json:"tokenId"`
	TokenHash  string    `json:"tokenHash"`
	Expiration time.Time `json:"expiration"`
	Scopes     []string  `json:"scopes,omitempty"`
}

type PersonalAccessTokenRemovedPayload struct {
	TokenID string `json:"tokenId"`
}

type MachineKeyAddedPayload struct {
	KeyID      string    `json:"keyId"`
	KeyType    string    `json:"keyType"`
	PublicKey  []byte    `json:"publicKey"`
	Expiration time.Time `json:"expiration"`
}

type MachineKeyRemovedPayload struct {
	KeyID string `json:"keyId"`
}

type UserMetadataSetPayload struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

type UserMetadataRemovedPayload struct {
	Key string `json:"key"`
}
