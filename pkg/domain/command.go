package domain

// Command describes one event to be appended to the store. The store assigns
// AggregateVersion, Position and CreatedAt at commit time.
type Command struct {
	InstanceID    string
	AggregateType AggregateType
	AggregateID   string

	Type     EventType
	Revision uint8

	Creator string
	Owner   string

	// Payload is JSON-marshaled at push time. May be nil for marker events.
	Payload any

	// UniqueConstraints are claimed or released atomically with the push.
	UniqueConstraints []*UniqueConstraint
}

// ConstraintAction is the operation performed on a unique constraint.
type ConstraintAction int

const (
	ConstraintAdd ConstraintAction = iota
	ConstraintRemove
)

// UniqueConstraint reserves a domain-level unique value (org name, login
// name, ...) within an instance. Violations surface as AlreadyExists with
// the given error code.
type UniqueConstraint struct {
	// UniqueType namespaces the constraint (e.g. "org_name", "login_name").
	UniqueType string

	// UniqueValue is the value reserved for the instance.
	UniqueValue string

	Action ConstraintAction

	// ErrorCode is the stable code reported when the claim conflicts.
	ErrorCode string
}

// NewAddUniqueConstraint claims a unique value.
func NewAddUniqueConstraint(uniqueType, uniqueValue, errorCode string) *UniqueConstraint {
	return &UniqueConstraint{
		UniqueType:  uniqueType,
		UniqueValue: uniqueValue,
		Action:      ConstraintAdd,
		ErrorCode:   errorCode,
	}
}

// NewRemoveUniqueConstraint releases a previously claimed value.
func NewRemoveUniqueConstraint(uniqueType, uniqueValue string) *UniqueConstraint {
	return &UniqueConstraint{
		UniqueType:  uniqueType,
		UniqueValue: uniqueValue,
		Action:      ConstraintRemove,
	}
}
