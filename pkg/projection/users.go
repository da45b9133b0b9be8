package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/identra/identra/pkg/domain"
)

// UsersTable is the denormalized user view: one row per user with both the
// human and machine columns, discriminated by type.
const UsersTable = "projections_users"

const createUsersTable = `
CREATE TABLE IF NOT EXISTS projections_users (
	instance_id        TEXT NOT NULL,
	id                 TEXT NOT NULL,
	username           TEXT NOT NULL,
	type               INTEGER NOT NULL,
	state              INTEGER NOT NULL,
	resource_owner     TEXT NOT NULL,
	first_name         TEXT,
	last_name          TEXT,
	email              TEXT,
	email_verified     INTEGER NOT NULL DEFAULT 0,
	preferred_language TEXT,
	machine_name       TEXT,
	description        TEXT,
	created_at         INTEGER NOT NULL,
	changed_at         INTEGER NOT NULL,
	sequence           INTEGER NOT NULL,
	PRIMARY KEY (instance_id, id)
);
CREATE INDEX IF NOT EXISTS idx_projections_users_owner ON projections_users (instance_id, resource_owner);
CREATE INDEX IF NOT EXISTS idx_projections_users_username ON projections_users (instance_id, username);
`

type usersHandler struct{}

// NewUsersHandler projects the user aggregate into the users table.
func NewUsersHandler() Handler {
	return &usersHandler{}
}

func (*usersHandler) Name() string { return "users" }

func (*usersHandler) Tables() []string { return []string{UsersTable} }

func (*usersHandler) Requires() []string { return nil }

func (*usersHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("failed to create users projection table: %w", err)
	}
	return nil
}

func (h *usersHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{{
		Aggregate: domain.AggregateTypeUser,
		Reducers: map[domain.EventType]Reduce{
			domain.HumanAddedType:      h.reduceHumanAdded,
			domain.MachineAddedType:    h.reduceMachineAdded,
			domain.UsernameChangedType: h.reduceUsernameChanged,
			domain.UserDeactivatedType: h.reduceStateChange(domain.UserStateInactive),
			domain.UserReactivatedType: h.reduceStateChange(domain.UserStateActive),
			domain.UserLockedType:      h.reduceStateChange(domain.UserStateLocked),
			domain.UserUnlockedType:    h.reduceStateChange(domain.UserStateActive),
			domain.UserRemovedType:     h.reduceUserRemoved,
		},
	}}
}

func (*usersHandler) reduceHumanAdded(event *domain.Event) (*Statement, error) {
	var payload domain.HumanAddedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpsertStatement(UsersTable,
		[]string{"instance_id", "id"},
		[]Column{
			Col("instance_id", event.InstanceID),
			Col("id", event.AggregateID),
			Col("username", payload.Username),
			Col("type", int(domain.UserTypeHuman)),
			Col("state", int(domain.UserStateActive)),
			Col("resource_owner", event.Owner),
			Col("first_name", payload.FirstName),
			Col("last_name", payload.LastName),
			Col("email", payload.Email),
			Col("email_verified", boolToInt(payload.EmailVerified)),
			Col("preferred_language", payload.PreferredLang),
			Col("created_at", event.CreatedAt.UnixMicro()),
			Col("changed_at", event.CreatedAt.UnixMicro()),
			Col("sequence", event.AggregateVersion),
		},
	), nil
}

func (*usersHandler) reduceMachineAdded(event *domain.Event) (*Statement, error) {
	var payload domain.MachineAddedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpsertStatement(UsersTable,
		[]string{"instance_id", "id"},
		[]Column{
			Col("instance_id", event.InstanceID),
			Col("id", event.AggregateID),
			Col("username", payload.Username),
			Col("type", int(domain.UserTypeMachine)),
			Col("state", int(domain.UserStateActive)),
			Col("resource_owner", event.Owner),
			Col("machine_name", payload.Name),
			Col("description", payload.Description),
			Col("created_at", event.CreatedAt.UnixMicro()),
			Col("changed_at", event.CreatedAt.UnixMicro()),
			Col("sequence", event.AggregateVersion),
		},
	), nil
}

func (*usersHandler) reduceUsernameChanged(event *domain.Event) (*Statement, error) {
	var payload domain.UsernameChangedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpdateStatement(UsersTable,
		[]Column{
			Col("username", payload.Username),
			Col("changed_at", event.CreatedAt.UnixMicro()),
			Col("sequence", event.AggregateVersion),
		},
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("id", event.AggregateID),
		},
	), nil
}

func (*usersHandler) reduceStateChange(state domain.UserState) Reduce {
	return func(event *domain.Event) (*Statement, error) {
		return NewUpdateStatement(UsersTable,
			[]Column{
				Col("state", int(state)),
				Col("changed_at", event.CreatedAt.UnixMicro()),
				Col("sequence", event.AggregateVersion),
			},
			[]Condition{
				Cond("instance_id", event.InstanceID),
				Cond("id", event.AggregateID),
			},
		), nil
	}
}

func (*usersHandler) reduceUserRemoved(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(UsersTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("id", event.AggregateID),
		},
	), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
