package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/identra/identra/pkg/domain"
)

// OrgMembersTable holds one row per org membership. Roles are a JSON
// array.
const OrgMembersTable = "projections_org_members"

const createOrgMembersTable = `
CREATE TABLE IF NOT EXISTS projections_org_members (
	instance_id TEXT NOT NULL,
	org_id      TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	roles       TEXT NOT NULL,
	created_at  INTEGER NOT NULL,
	changed_at  INTEGER NOT NULL,
	PRIMARY KEY (instance_id, org_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_projections_org_members_user ON projections_org_members (instance_id, user_id);
`

type orgMembersHandler struct{}

// NewOrgMembersHandler projects org memberships. Removing a user drops all
// of their memberships.
func NewOrgMembersHandler() Handler {
	return &orgMembersHandler{}
}

func (*orgMembersHandler) Name() string { return "org_members" }

func (*orgMembersHandler) Tables() []string { return []string{OrgMembersTable} }

func (*orgMembersHandler) Requires() []string { return nil }

func (*orgMembersHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createOrgMembersTable); err != nil {
		return fmt.Errorf("failed to create org members projection table: %w", err)
	}
	return nil
}

func (h *orgMembersHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{
		{
			Aggregate: domain.AggregateTypeOrg,
			Reducers: map[domain.EventType]Reduce{
				domain.OrgMemberAddedType:   h.reduceAdded,
				domain.OrgMemberChangedType: h.reduceChanged,
				domain.OrgMemberRemovedType: h.reduceRemoved,
				domain.OrgRemovedType:       h.reduceOrgRemoved,
			},
		},
		{
			Aggregate: domain.AggregateTypeUser,
			Reducers: map[domain.EventType]Reduce{
				domain.UserRemovedType: h.reduceUserRemoved,
			},
		},
	}
}

func (*orgMembersHandler) reduceAdded(event *domain.Event) (*Statement, error) {
	var payload domain.OrgMemberAddedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	roles, err := json.Marshal(payload.Roles)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal roles: %w", err)
	}
	return NewUpsertStatement(OrgMembersTable,
		[]string{"instance_id", "org_id", "user_id"},
		[]Column{
			Col("instance_id", event.InstanceID),
			Col("org_id", event.AggregateID),
			Col("user_id", payload.UserID),
			Col("roles", string(roles)),
			Col("created_at", event.CreatedAt.UnixMicro()),
			Col("changed_at", event.CreatedAt.UnixMicro()),
		},
	), nil
}

func (*orgMembersHandler) reduceChanged(event *domain.Event) (*Statement, error) {
	var payload domain.OrgMemberChangedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	roles, err := json.Marshal(payload.Roles)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal roles: %w", err)
	}
	return NewUpdateStatement(OrgMembersTable,
		[]Column{
			Col("roles", string(roles)),
			Col("changed_at", event.CreatedAt.UnixMicro()),
		},
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("org_id", event.AggregateID),
			Cond("user_id", payload.UserID),
		},
	), nil
}

func (*orgMembersHandler) reduceRemoved(event *domain.Event) (*Statement, error) {
	var payload domain.OrgMemberRemovedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewDeleteStatement(OrgMembersTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("org_id", event.AggregateID),
			Cond("user_id", payload.UserID),
		},
	), nil
}

func (*orgMembersHandler) reduceOrgRemoved(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(OrgMembersTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("org_id", event.AggregateID),
		},
	), nil
}

func (*orgMembersHandler) reduceUserRemoved(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(OrgMembersTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("user_id", event.AggregateID),
		},
	), nil
}
