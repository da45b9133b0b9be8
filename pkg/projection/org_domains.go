package projection

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/identra/identra/pkg/domain"
)

// OrgDomainsTable holds one row per domain attached to an org.
const OrgDomainsTable = "projections_org_domains"

const createOrgDomainsTable = `
CREATE TABLE IF NOT EXISTS projections_org_domains (
	instance_id TEXT NOT NULL,
	org_id      TEXT NOT NULL,
	domain      TEXT NOT NULL,
	is_verified INTEGER NOT NULL DEFAULT 0,
	is_primary  INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	changed_at  INTEGER NOT NULL,
	PRIMARY KEY (instance_id, org_id, domain)
);
CREATE INDEX IF NOT EXISTS idx_projections_org_domains_domain ON projections_org_domains (instance_id, domain);
`

type orgDomainsHandler struct{}

// NewOrgDomainsHandler projects the org domain events.
func NewOrgDomainsHandler() Handler {
	return &orgDomainsHandler{}
}

func (*orgDomainsHandler) Name() string { return "org_domains" }

func (*orgDomainsHandler) Tables() []string { return []string{OrgDomainsTable} }

func (*orgDomainsHandler) Requires() []string { return nil }

func (*orgDomainsHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createOrgDomainsTable); err != nil {
		return fmt.Errorf("failed to create org domains projection table: %w", err)
	}
	return nil
}

func (h *orgDomainsHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{{
		Aggregate: domain.AggregateTypeOrg,
		Reducers: map[domain.EventType]Reduce{
			domain.OrgDomainAddedType:      h.reduceAdded,
			domain.OrgDomainVerifiedType:   h.reduceVerified,
			domain.OrgDomainPrimarySetType: h.reducePrimarySet,
			domain.OrgDomainRemovedType:    h.reduceRemoved,
			domain.OrgRemovedType:          h.reduceOrgRemoved,
		},
	}}
}

func (*orgDomainsHandler) reduceAdded(event *domain.Event) (*Statement, error) {
	var payload domain.OrgDomainAddedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpsertStatement(OrgDomainsTable,
		[]string{"instance_id", "org_id", "domain"},
		[]Column{
			Col("instance_id", event.InstanceID),
			Col("org_id", event.AggregateID),
			Col("domain", payload.Domain),
			Col("created_at", event.CreatedAt.UnixMicro()),
			Col("changed_at", event.CreatedAt.UnixMicro()),
		},
	), nil
}

func (*orgDomainsHandler) reduceVerified(event *domain.Event) (*Statement, error) {
	var payload domain.OrgDomainVerifiedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpdateStatement(OrgDomainsTable,
		[]Column{
			Col("is_verified", 1),
			Col("changed_at", event.CreatedAt.UnixMicro()),
		},
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("org_id", event.AggregateID),
			Cond("domain", payload.Domain),
		},
	), nil
}

// reducePrimarySet demotes the previous primary and promotes the new one
// in one transaction.
func (*orgDomainsHandler) reducePrimarySet(event *domain.Event) (*Statement, error) {
	var payload domain.OrgDomainPrimarySetPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewMultiStatement(
		NewUpdateStatement(OrgDomainsTable,
			[]Column{Col("is_primary", 0)},
			[]Condition{
				Cond("instance_id", event.InstanceID),
				Cond("org_id", event.AggregateID),
				Cond("is_primary", 1),
			},
		),
		NewUpdateStatement(OrgDomainsTable,
			[]Column{
				Col("is_primary", 1),
				Col("changed_at", event.CreatedAt.UnixMicro()),
			},
			[]Condition{
				Cond("instance_id", event.InstanceID),
				Cond("org_id", event.AggregateID),
				Cond("domain", payload.Domain),
			},
		),
	), nil
}

func (*orgDomainsHandler) reduceRemoved(event *domain.Event) (*Statement, error) {
	var payload domain.OrgDomainRemovedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewDeleteStatement(OrgDomainsTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("org_id", event.AggregateID),
			Cond("domain", payload.Domain),
		},
	), nil
}

func (*orgDomainsHandler) reduceOrgRemoved(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(OrgDomainsTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("org_id", event.AggregateID),
		},
	), nil
}
