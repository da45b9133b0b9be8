package domain

// Org event types.
const (
	OrgAddedType       EventType = "org.added"
	OrgChangedType     EventType = "org.changed"
	OrgDeactivatedType EventType = "org.deactivated"
	OrgReactivatedType EventType = "org.reactivated"
	OrgRemovedType     EventType = "org.removed"

	OrgDomainAddedType      EventType = "org.domain.added"
	OrgDomainVerifiedType   EventType = "org.domain.verified"
	OrgDomainPrimarySetType EventType = "org.domain.primary.set"
	OrgDomainRemovedType    EventType = "org.domain.removed"

	OrgMemberAddedType   EventType = "org.member.added"
	OrgMemberChangedType EventType = "org.member.changed"
	OrgMemberRemovedType EventType = "org.member.removed"
)

// Unique constraint types claimed by org commands.
const (
	UniqueOrgName   = "org_name"
	UniqueOrgDomain = "org_domain"
	UniqueOrgMember = "org_member"
)

// OrgState is the org aggregate state machine.
type OrgState int

const (
	OrgStateUnspecified OrgState = iota
	OrgStateActive
	OrgStateInactive
	OrgStateRemoved
)

// Exists reports whether the org is usable as a command target.
func (s OrgState) Exists() bool {
	return s == OrgStateActive || s == OrgStateInactive
}

// OrgDomainState tracks one domain name's presence on an org.
type OrgDomainState int

const (
	OrgDomainStateUnspecified OrgDomainState = iota
	OrgDomainStateActive
	OrgDomainStateRemoved
)

type OrgAddedPayload struct {
	Name string `json:"name"`
}

type OrgChangedPayload struct {
	Name string `json:"name"`
}

type OrgDomainAddedPayload struct {
	Domain string `json:"domain"`
}

type OrgDomainVerifiedPayload struct {
	Domain string `json:"domain"`
}

type OrgDomainPrimarySetPayload struct {
	Domain string `json:"domain"`
}

type OrgDomainRemovedPayload struct {
	Domain     string `json:"domain"`
	IsVerified bool   `json:"isVerified,omitempty"`
}

type OrgMemberAddedPayload struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

type OrgMemberChangedPayload struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles"`
}

type OrgMemberRemovedPayload struct {
	UserID string `json:"userId"`
}
