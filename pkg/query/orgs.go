package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/projection"
)

// Org is the read model of one organization.
type Org struct {
	ID            string
	InstanceID    string
	Name          string
	State         domain.OrgState
	PrimaryDomain string
	CreatedAt     time.Time
	ChangedAt     time.Time
	Sequence      uint64
}

const orgColumns = "id, instance_id, name, state, primary_domain, created_at, changed_at, sequence"

func scanOrg(row interface{ Scan(...any) error }) (*Org, error) {
	o := &Org{}
	var state int
	var createdAt, changedAt int64
	err := row.Scan(&o.ID, &o.InstanceID, &o.Name, &state, &o.PrimaryDomain, &createdAt, &changedAt, &o.Sequence)
	if err != nil {
		return nil, err
	}
	o.State = domain.OrgState(state)
	o.CreatedAt = microTime(createdAt)
	o.ChangedAt = microTime(changedAt)
	return o, nil
}

// OrgByID returns one org or NotFound.
func (q *Queries) OrgByID(ctx context.Context, instanceID, orgID string) (*Org, error) {
	row := q.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE instance_id = ? AND id = ?", orgColumns, projection.OrgsTable),
		instanceID, orgID)
	org, err := scanOrg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ThrowNotFound(err, "QUERY-Org01", "organization not found")
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Org02", "failed to query organization")
	}
	return org, nil
}

// OrgByPrimaryDomain resolves an org by its primary domain.
func (q *Queries) OrgByPrimaryDomain(ctx context.Context, instanceID, domainName string) (*Org, error) {
	row := q.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE instance_id = ? AND primary_domain = ?", orgColumns, projection.OrgsTable),
		instanceID, domainName)
	org, err := scanOrg(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ThrowNotFound(err, "QUERY-Org03", "organization not found")
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Org04", "failed to query organization")
	}
	return org, nil
}

// OrgSearch filters the org list.
type OrgSearch struct {
	SearchRequest

	NameLike string
	State    domain.OrgState
}

// Orgs carries one page of the org search.
type Orgs struct {
	SearchResponse
	Orgs []*Org
}

var orgSortColumns = []string{"name", "created_at", "changed_at"}

// SearchOrgs lists organizations of an instance.
func (q *Queries) SearchOrgs(ctx context.Context, instanceID string, search *OrgSearch) (*Orgs, error) {
	where := "WHERE instance_id = ?"
	args := []any{instanceID}
	if search.NameLike != "" {
		where += " AND name LIKE ?"
		args = append(args, "%"+search.NameLike+"%")
	}
	if search.State != domain.OrgStateUnspecified {
		where += " AND state = ?"
		args = append(args, int(search.State))
	}

	result := &Orgs{}
	err := q.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s %s", projection.OrgsTable, where), args...).
		Scan(&result.TotalCount)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Org05", "failed to count organizations")
	}

	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s %s%s", orgColumns, projection.OrgsTable, where,
			search.limitClause(orgSortColumns)),
		args...)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Org06", "failed to search organizations")
	}
	defer rows.Close()

	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, errs.ThrowStorage(err, "QUERY-Org07", "failed to scan organization")
		}
		result.Orgs = append(result.Orgs, org)
	}
	return result, rows.Err()
}

// OrgDomain is one domain row of an org.
type OrgDomain struct {
	OrgID      string
	InstanceID string
	Domain     string
	IsVerified bool
	IsPrimary  bool
	CreatedAt  time.Time
	ChangedAt  time.Time
}

// OrgDomains lists the domains of an org.
func (q *Queries) OrgDomains(ctx context.Context, instanceID, orgID string) ([]*OrgDomain, error) {
	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf("SELECT org_id, instance_id, domain, is_verified, is_primary, created_at, changed_at FROM %s WHERE instance_id = ? AND org_id = ? ORDER BY domain", projection.OrgDomainsTable),
		instanceID, orgID)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Dom01", "failed to query org domains")
	}
	defer rows.Close()

	var domains []*OrgDomain
	for rows.Next() {
		d := &OrgDomain{}
		var verified, primary int
		var createdAt, changedAt int64
		if err := rows.Scan(&d.OrgID, &d.InstanceID, &d.Domain, &verified, &primary, &createdAt, &changedAt); err != nil {
			return nil, errs.ThrowStorage(err, "QUERY-Dom02", "failed to scan org domain")
		}
		d.IsVerified = verified != 0
		d.IsPrimary = primary != 0
		d.CreatedAt = microTime(createdAt)
		d.ChangedAt = microTime(changedAt)
		domains = append(domains, d)
	}
	return domains, rows.Err()
}

// OrgMember is one membership row.
type OrgMember struct {
	OrgID      string
	InstanceID string
	UserID     string
	Roles      []string
	CreatedAt  time.Time
	ChangedAt  time.Time
}

// OrgMembers lists the members of an org.
func (q *Queries) OrgMembers(ctx context.Context, instanceID, orgID string) ([]*OrgMember, error) {
	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf("SELECT org_id, instance_id, user_id, roles, created_at, changed_at FROM %s WHERE instance_id = ? AND org_id = ? ORDER BY user_id", projection.OrgMembersTable),
		instanceID, orgID)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Member01", "failed to query org members")
	}
	defer rows.Close()

	var members []*OrgMember
	for rows.Next() {
		m := &OrgMember{}
		var roles string
		var createdAt, changedAt int64
		if err := rows.Scan(&m.OrgID, &m.InstanceID, &m.UserID, &roles, &createdAt, &changedAt); err != nil {
			return nil, errs.ThrowStorage(err, "QUERY-Member02", "failed to scan org member")
		}
		if err := json.Unmarshal([]byte(roles), &m.Roles); err != nil {
			return nil, errs.ThrowInternal(err, "QUERY-Member03", "failed to decode member roles")
		}
		m.CreatedAt = microTime(createdAt)
		m.ChangedAt = microTime(changedAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

// Milestone records when an instance first reached an adoption milestone.
type Milestone struct {
	InstanceID string
	Type       string
	ReachedAt  time.Time
}

// Milestones lists the reached milestones of an instance.
func (q *Queries) Milestones(ctx context.Context, instanceID string) ([]*Milestone, error) {
	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf("SELECT instance_id, milestone, reached_at FROM %s WHERE instance_id = ? ORDER BY reached_at", projection.MilestonesTable),
		instanceID)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Mile01", "failed to query milestones")
	}
	defer rows.Close()

	var milestones []*Milestone
	for rows.Next() {
		m := &Milestone{}
		var reachedAt int64
		if err := rows.Scan(&m.InstanceID, &m.Type, &reachedAt); err != nil {
			return nil, errs.ThrowStorage(err, "QUERY-Mile02", "failed to scan milestone")
		}
		m.ReachedAt = microTime(reachedAt)
		milestones = append(milestones, m)
	}
	return milestones, rows.Err()
}
