package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/identra/identra/pkg/domain"
)

// MilestonesTable records when an instance first reached an adoption
// milestone. First reach wins; later events are ignored.
const MilestonesTable = "projections_milestones"

// Milestone types.
const (
	MilestoneOrgCreated       = "org.created"
	MilestoneUserCreated      = "user.created"
	MilestonePolicyCustomized = "policy.customized"
	MilestoneTextCustomized   = "text.customized"
)

const createMilestonesTable = `
CREATE TABLE IF NOT EXISTS projections_milestones (
	instance_id TEXT NOT NULL,
	milestone   TEXT NOT NULL,
	reached_at  INTEGER NOT NULL,
	PRIMARY KEY (instance_id, milestone)
);
`

type milestonesHandler struct{}

// NewMilestonesHandler projects instance adoption milestones.
func NewMilestonesHandler() Handler {
	return &milestonesHandler{}
}

func (*milestonesHandler) Name() string { return "milestones" }

func (*milestonesHandler) Tables() []string { return []string{MilestonesTable} }

func (*milestonesHandler) Requires() []string { return nil }

func (*milestonesHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createMilestonesTable); err != nil {
		return fmt.Errorf("failed to create milestones projection table: %w", err)
	}
	return nil
}

func (h *milestonesHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{
		{
			Aggregate: domain.AggregateTypeOrg,
			Reducers: map[domain.EventType]Reduce{
				domain.OrgAddedType:              h.reduceReached(MilestoneOrgCreated),
				domain.OrgLoginPolicyAddedType:   h.reduceReached(MilestonePolicyCustomized),
				domain.OrgLockoutPolicyAddedType: h.reduceReached(MilestonePolicyCustomized),
			},
		},
		{
			Aggregate: domain.AggregateTypeUser,
			Reducers: map[domain.EventType]Reduce{
				domain.HumanAddedType:   h.reduceReached(MilestoneUserCreated),
				domain.MachineAddedType: h.reduceReached(MilestoneUserCreated),
			},
		},
		{
			Aggregate: domain.AggregateTypeInstance,
			Reducers: map[domain.EventType]Reduce{
				domain.CustomTextSetType:  h.reduceReached(MilestoneTextCustomized),
				domain.MessageTextSetType: h.reduceReached(MilestoneTextCustomized),
			},
		},
	}
}

func (*milestonesHandler) reduceReached(milestone string) Reduce {
	return func(event *domain.Event) (*Statement, error) {
		return NewExecStatement(
			fmt.Sprintf("INSERT INTO %s (instance_id, milestone, reached_at) VALUES (?, ?, ?) ON CONFLICT DO NOTHING", MilestonesTable),
			event.InstanceID, milestone, event.CreatedAt.UnixMicro(),
		), nil
	}
}

// DefaultHandlers is the full projection set wired by the server.
func DefaultHandlers() []Handler {
	return []Handler{
		NewUsersHandler(),
		NewOrgsHandler(),
		NewOrgDomainsHandler(),
		NewOrgMembersHandler(),
		NewLoginNamesHandler(),
		NewLoginPoliciesHandler(),
		NewLockoutPoliciesHandler(),
		NewPasswordComplexityPoliciesHandler(),
		NewCustomTextsHandler(),
		NewMessageTextsHandler(),
		NewUserMetadataHandler(),
		NewPersonalAccessTokensHandler(),
		NewAuthNKeysHandler(),
		NewMilestonesHandler(),
	}
}
