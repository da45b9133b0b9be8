package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/identra/identra/pkg/domain"
)

// LoginNamesTable holds the username component per user; the resolved
// login names (username@domain) come from the view, which joins the org
// domains projection. Domain changes therefore reflect without replaying
// user events.
const (
	LoginNamesTable = "projections_login_names"
	LoginNamesView  = "projections_login_names_resolved"
)

const createLoginNamesTable = `
CREATE TABLE IF NOT EXISTS projections_login_names (
	instance_id    TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	username       TEXT NOT NULL,
	resource_owner TEXT NOT NULL,
	PRIMARY KEY (instance_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_projections_login_names_username ON projections_login_names (instance_id, username);
`

const createLoginNamesView = `
CREATE VIEW IF NOT EXISTS projections_login_names_resolved AS
SELECT
	ln.instance_id    AS instance_id,
	ln.user_id        AS user_id,
	ln.resource_owner AS resource_owner,
	ln.username || '@' || d.domain AS login_name,
	d.is_primary      AS is_primary
FROM projections_login_names ln
JOIN projections_org_domains d
	ON d.instance_id = ln.instance_id
	AND d.org_id = ln.resource_owner
	AND d.is_verified = 1;
`

type loginNamesHandler struct{}

// NewLoginNamesHandler projects the components of resolvable login names.
func NewLoginNamesHandler() Handler {
	return &loginNamesHandler{}
}

func (*loginNamesHandler) Name() string { return "login_names" }

func (*loginNamesHandler) Tables() []string { return []string{LoginNamesTable} }

// Requires ensures the joined org domains table exists and is maintained
// in the same process.
func (*loginNamesHandler) Requires() []string { return []string{"org_domains"} }

func (*loginNamesHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createLoginNamesTable); err != nil {
		return fmt.Errorf("failed to create login names projection table: %w", err)
	}
	if _, err := db.ExecContext(ctx, createLoginNamesView); err != nil {
		return fmt.Errorf("failed to create login names view: %w", err)
	}
	return nil
}

func (h *loginNamesHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{{
		Aggregate: domain.AggregateTypeUser,
		Reducers: map[domain.EventType]Reduce{
			domain.HumanAddedType:      h.reduceUserAdded,
			domain.MachineAddedType:    h.reduceUserAdded,
			domain.UsernameChangedType: h.reduceUsernameChanged,
			domain.UserRemovedType:     h.reduceUserRemoved,
		},
	}}
}

func (*loginNamesHandler) reduceUserAdded(event *domain.Event) (*Statement, error) {
	var payload struct {
		Username string `json:"username"`
	}
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpsertStatement(LoginNamesTable,
		[]string{"instance_id", "user_id"},
		[]Column{
			Col("instance_id", event.InstanceID),
			Col("user_id", event.AggregateID),
			Col("username", payload.Username),
			Col("resource_owner", event.Owner),
		},
	), nil
}

func (*loginNamesHandler) reduceUsernameChanged(event *domain.Event) (*Statement, error) {
	var payload domain.UsernameChangedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpdateStatement(LoginNamesTable,
		[]Column{Col("username", payload.Username)},
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("user_id", event.AggregateID),
		},
	), nil
}

func (*loginNamesHandler) reduceUserRemoved(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(LoginNamesTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("user_id", event.AggregateID),
		},
	), nil
}
