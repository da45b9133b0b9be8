package command

import (
	"context"
	"strings"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
)

const maxOrgNameLen = 200

// AddOrgRequest creates a new organization. OrgID is optional; a sortable
// ID is generated when empty.
type AddOrgRequest struct {
	OrgID string
	Name  string
}

// CreatedOrg is returned by AddOrg.
type CreatedOrg struct {
	OrgID   string
	Details *domain.ObjectDetails
}

// AddOrg creates an organization with its generated default domain, already
// verified and primary. Everything is pushed as one batch: a consumer sees
// the org fully set up or not at all.
func (c *Commands) AddOrg(ctx context.Context, instanceID string, req *AddOrgRequest) (*CreatedOrg, error) {
	name, err := normalizeName(req.Name, "COMMAND-Org00a", maxOrgNameLen)
	if err != nil {
		return nil, err
	}

	orgID, err := c.nextID(req.OrgID)
	if err != nil {
		return nil, err
	}

	wm, err := c.orgWriteModelByID(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}
	if wm.State != domain.OrgStateUnspecified {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-Org00b", "organization already exists")
	}

	if err := c.checkPermission(ctx, "org", "create", instanceID); err != nil {
		return nil, err
	}

	commands := c.orgSetupCommands(instanceID, orgID, name, creator(ctx))
	if err := c.pushAppendAndReduce(ctx, wm, commands...); err != nil {
		return nil, err
	}

	return &CreatedOrg{
		OrgID:   orgID,
		Details: domain.WriteModelToObjectDetails(&wm.WriteModel),
	}, nil
}

// orgSetupCommands is the fixed event sequence of a new org: added, default
// domain added, verified, set primary.
func (c *Commands) orgSetupCommands(instanceID, orgID, name, creator string) []*domain.Command {
	orgDomain := c.defaultDomain
	return []*domain.Command{
		orgCommand(instanceID, orgID, creator, domain.OrgAddedType,
			&domain.OrgAddedPayload{Name: name},
			domain.NewAddUniqueConstraint(domain.UniqueOrgName, strings.ToLower(name), "COMMAND-Org00b"),
		),
		orgCommand(instanceID, orgID, creator, domain.OrgDomainAddedType,
			&domain.OrgDomainAddedPayload{Domain: orgDomain}),
		orgCommand(instanceID, orgID, creator, domain.OrgDomainVerifiedType,
			&domain.OrgDomainVerifiedPayload{Domain: orgDomain},
			domain.NewAddUniqueConstraint(domain.UniqueOrgDomain, orgDomain+"|"+orgID, "COMMAND-Org00c"),
		),
		orgCommand(instanceID, orgID, creator, domain.OrgDomainPrimarySetType,
			&domain.OrgDomainPrimarySetPayload{Domain: orgDomain}),
	}
}

// SetUpOrgRequest creates an org together with its first administrators and
// optionally a custom domain, all in one atomic batch.
type SetUpOrgRequest struct {
	OrgID        string
	Name         string
	CustomDomain string

	// Admins are created as humans owned by the new org and granted
	// ORG_OWNER unless roles are given.
	Admins []SetUpOrgAdmin
}

type SetUpOrgAdmin struct {
	Human *AddHumanRequest
	Roles []string
}

// SetUpOrgResult is returned by SetUpOrg.
type SetUpOrgResult struct {
	OrgID        string
	AdminUserIDs []string
	Details      *domain.ObjectDetails
}

// SetUpOrg pushes everything in one batch so a consumer either sees the
// fully set up org or nothing: the org itself, the custom domain chain
// (added, verified, set primary) when given, and per admin the human user
// plus its org membership.
func (c *Commands) SetUpOrg(ctx context.Context, instanceID string, req *SetUpOrgRequest) (*SetUpOrgResult, error) {
	name, err := normalizeName(req.Name, "COMMAND-Org01a", maxOrgNameLen)
	if err != nil {
		return nil, err
	}
	if req.CustomDomain != "" {
		if err := c.domainValidator.Validate(req.CustomDomain); err != nil {
			return nil, err
		}
	}
	for _, admin := range req.Admins {
		if admin.Human == nil {
			return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Org01b", "admin user is missing")
		}
	}

	orgID, err := c.nextID(req.OrgID)
	if err != nil {
		return nil, err
	}

	wm, err := c.orgWriteModelByID(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}
	if wm.State != domain.OrgStateUnspecified {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-Org01c", "organization already exists")
	}

	if err := c.checkPermission(ctx, "org", "create", instanceID); err != nil {
		return nil, err
	}

	actor := creator(ctx)
	commands := []*domain.Command{
		orgCommand(instanceID, orgID, actor, domain.OrgAddedType,
			&domain.OrgAddedPayload{Name: name},
			domain.NewAddUniqueConstraint(domain.UniqueOrgName, strings.ToLower(name), "COMMAND-Org01c"),
		),
	}

	if req.CustomDomain != "" {
		commands = append(commands,
			orgCommand(instanceID, orgID, actor, domain.OrgDomainAddedType,
				&domain.OrgDomainAddedPayload{Domain: req.CustomDomain}),
			orgCommand(instanceID, orgID, actor, domain.OrgDomainVerifiedType,
				&domain.OrgDomainVerifiedPayload{Domain: req.CustomDomain},
				domain.NewAddUniqueConstraint(domain.UniqueOrgDomain, req.CustomDomain+"|"+orgID, "COMMAND-Org01d"),
			),
			orgCommand(instanceID, orgID, actor, domain.OrgDomainPrimarySetType,
				&domain.OrgDomainPrimarySetPayload{Domain: req.CustomDomain}),
		)
	}

	adminIDs := make([]string, 0, len(req.Admins))
	for _, admin := range req.Admins {
		userCommand, userID, err := c.humanAddedCommand(ctx, instanceID, orgID, admin.Human)
		if err != nil {
			return nil, err
		}
		adminIDs = append(adminIDs, userID)

		roles := admin.Roles
		if len(roles) == 0 {
			roles = []string{"ORG_OWNER"}
		}
		commands = append(commands,
			userCommand,
			orgCommand(instanceID, orgID, actor, domain.OrgMemberAddedType,
				&domain.OrgMemberAddedPayload{UserID: userID, Roles: roles},
				domain.NewAddUniqueConstraint(domain.UniqueOrgMember, orgID+"|"+userID, "COMMAND-Org01e"),
			),
		)
	}

	if err := c.pushAppendAndReduce(ctx, wm, commands...); err != nil {
		return nil, err
	}
	return &SetUpOrgResult{
		OrgID:        orgID,
		AdminUserIDs: adminIDs,
		Details:      domain.WriteModelToObjectDetails(&wm.WriteModel),
	}, nil
}

// ChangeOrg renames an organization. Renaming to the current name emits no
// event and returns the current summary.
func (c *Commands) ChangeOrg(ctx context.Context, instanceID, orgID, name string) (*domain.ObjectDetails, error) {
	name, err := normalizeName(name, "COMMAND-Org02a", maxOrgNameLen)
	if err != nil {
		return nil, err
	}

	wm, err := c.orgWriteModelByID(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Org02b", "organization not found")
	}
	if wm.Name == name {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	if err := c.checkPermission(ctx, "org", "write", orgID); err != nil {
		return nil, err
	}

	oldName := wm.Name
	err = c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgChangedType,
			&domain.OrgChangedPayload{Name: name},
			domain.NewRemoveUniqueConstraint(domain.UniqueOrgName, strings.ToLower(oldName)),
			domain.NewAddUniqueConstraint(domain.UniqueOrgName, strings.ToLower(name), "COMMAND-Org02c"),
		),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// DeactivateOrg moves an active org to inactive.
func (c *Commands) DeactivateOrg(ctx context.Context, instanceID, orgID string) (*domain.ObjectDetails, error) {
	wm, err := c.orgWriteModelByID(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Org03a", "organization not found")
	}
	if wm.State == domain.OrgStateInactive {
		return nil, errs.ThrowPreconditionFailed(nil, "COMMAND-Org03b", "organization already inactive")
	}

	if err := c.checkPermission(ctx, "org", "write", orgID); err != nil {
		return nil, err
	}

	err = c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgDeactivatedType, nil))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// ReactivateOrg moves an inactive org back to active.
func (c *Commands) ReactivateOrg(ctx context.Context, instanceID, orgID string) (*domain.ObjectDetails, error) {
	wm, err := c.orgWriteModelByID(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Org04a", "organization not found")
	}
	if wm.State == domain.OrgStateActive {
		return nil, errs.ThrowPreconditionFailed(nil, "COMMAND-Org04b", "organization already active")
	}

	if err := c.checkPermission(ctx, "org", "write", orgID); err != nil {
		return nil, err
	}

	err = c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgReactivatedType, nil))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// RemoveOrg removes an organization. Removal is terminal: later commands on
// the aggregate fail with NotFound. The org name is released for reuse.
func (c *Commands) RemoveOrg(ctx context.Context, instanceID, orgID string) (*domain.ObjectDetails, error) {
	wm, err := c.orgWriteModelByID(ctx, instanceID, orgID)
	if err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Org05a", "organization not found")
	}

	if err := c.checkPermission(ctx, "org", "delete", orgID); err != nil {
		return nil, err
	}

	err = c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgRemovedType, nil,
			domain.NewRemoveUniqueConstraint(domain.UniqueOrgName, strings.ToLower(wm.Name)),
		),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}
