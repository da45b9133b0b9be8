package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/identra/identra/pkg/domain"
)

// OrgsTable is the denormalized org view.
const OrgsTable = "projections_orgs"

const createOrgsTable = `
CREATE TABLE IF NOT EXISTS projections_orgs (
	instance_id    TEXT NOT NULL,
	id             TEXT NOT NULL,
	name           TEXT NOT NULL,
	state          INTEGER NOT NULL,
	primary_domain TEXT NOT NULL DEFAULT '',
	created_at     INTEGER NOT NULL,
	changed_at     INTEGER NOT NULL,
	sequence       INTEGER NOT NULL,
	PRIMARY KEY (instance_id, id)
);
CREATE INDEX IF NOT EXISTS idx_projections_orgs_name ON projections_orgs (instance_id, name);
`

type orgsHandler struct{}

// NewOrgsHandler projects the org aggregate's lifecycle into the orgs
// table.
func NewOrgsHandler() Handler {
	return &orgsHandler{}
}

func (*orgsHandler) Name() string { return "orgs" }

func (*orgsHandler) Tables() []string { return []string{OrgsTable} }

func (*orgsHandler) Requires() []string { return nil }

func (*orgsHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createOrgsTable); err != nil {
		return fmt.Errorf("failed to create orgs projection table: %w", err)
	}
	return nil
}

func (h *orgsHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{{
		Aggregate: domain.AggregateTypeOrg,
		Reducers: map[domain.EventType]Reduce{
			domain.OrgAddedType:            h.reduceAdded,
			domain.OrgChangedType:          h.reduceChanged,
			domain.OrgDeactivatedType:      h.reduceStateChange(domain.OrgStateInactive),
			domain.OrgReactivatedType:      h.reduceStateChange(domain.OrgStateActive),
			domain.OrgRemovedType:          h.reduceRemoved,
			domain.OrgDomainPrimarySetType: h.reducePrimaryDomainSet,
		},
	}}
}

func (*orgsHandler) reduceAdded(event *domain.Event) (*Statement, error) {
	var payload domain.OrgAddedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpsertStatement(OrgsTable,
		[]string{"instance_id", "id"},
		[]Column{
			Col("instance_id", event.InstanceID),
			Col("id", event.AggregateID),
			Col("name", payload.Name),
			Col("state", int(domain.OrgStateActive)),
			Col("created_at", event.CreatedAt.UnixMicro()),
			Col("changed_at", event.CreatedAt.UnixMicro()),
			Col("sequence", event.AggregateVersion),
		},
	), nil
}

func (*orgsHandler) reduceChanged(event *domain.Event) (*Statement, error) {
	var payload domain.OrgChangedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpdateStatement(OrgsTable,
		[]Column{
			Col("name", payload.Name),
			Col("changed_at", event.CreatedAt.UnixMicro()),
			Col("sequence", event.AggregateVersion),
		},
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("id", event.AggregateID),
		},
	), nil
}

func (*orgsHandler) reduceStateChange(state domain.OrgState) Reduce {
	return func(event *domain.Event) (*Statement, error) {
		return NewUpdateStatement(OrgsTable,
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

func (*orgsHandler) reducePrimaryDomainSet(event *domain.Event) (*Statement, error) {
	var payload domain.OrgDomainPrimarySetPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpdateStatement(OrgsTable,
		[]Column{
			Col("primary_domain", payload.Domain),
			Col("changed_at", event.CreatedAt.UnixMicro()),
			Col("sequence", event.AggregateVersion),
		},
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("id", event.AggregateID),
		},
	), nil
}

func (*orgsHandler) reduceRemoved(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(OrgsTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("id", event.AggregateID),
		},
	), nil
}
