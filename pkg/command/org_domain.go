package command

import (
	"context"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/store"
)

// OrgDomainWriteModel folds the domain events of one org for a single
// domain name.
type OrgDomainWriteModel struct {
	domain.WriteModel

	Domain   string
	Verified bool
	Primary  bool
	State    domain.OrgDomainState
}

func NewOrgDomainWriteModel(instanceID, orgID, domainName string) *OrgDomainWriteModel {
	return &OrgDomainWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: orgID,
			InstanceID:  instanceID,
		},
		Domain: domainName,
	}
}

func (wm *OrgDomainWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case domain.OrgDomainAddedType:
			var payload domain.OrgDomainAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.Domain != wm.Domain {
				continue
			}
			wm.State = domain.OrgDomainStateActive
		case domain.OrgDomainVerifiedType:
			var payload domain.OrgDomainVerifiedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.Domain != wm.Domain {
				continue
			}
			wm.Verified = true
		case domain.OrgDomainPrimarySetType:
			var payload domain.OrgDomainPrimarySetPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			// Setting a new primary implicitly demotes the old one.
			wm.Primary = payload.Domain == wm.Domain
		case domain.OrgDomainRemovedType:
			var payload domain.OrgDomainRemovedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.Domain != wm.Domain {
				continue
			}
			wm.State = domain.OrgDomainStateRemoved
			wm.Verified = false
			wm.Primary = false
		}
	}
	return wm.WriteModel.Reduce()
}

func (c *Commands) orgDomainWriteModel(ctx context.Context, instanceID, orgID, domainName string) (*OrgDomainWriteModel, error) {
	wm := NewOrgDomainWriteModel(instanceID, orgID, domainName)
	query := store.NewSearchQueryBuilder(domain.AggregateTypeOrg).
		InstanceID(instanceID).
		AggregateIDs(orgID).
		EventTypes(
			domain.OrgDomainAddedType,
			domain.OrgDomainVerifiedType,
			domain.OrgDomainPrimarySetType,
			domain.OrgDomainRemovedType,
		)
	if err := c.eventstore.FilterToReducer(ctx, query, wm); err != nil {
		return nil, err
	}
	return wm, nil
}

// AddOrgDomain attaches an additional domain to an org. The domain starts
// unverified and cannot be primary until verified.
func (c *Commands) AddOrgDomain(ctx context.Context, instanceID, orgID, domainName string) (*domain.ObjectDetails, error) {
	if err := c.domainValidator.Validate(domainName); err != nil {
		return nil, err
	}
	if err := c.checkOrgExists(ctx, instanceID, orgID); err != nil {
		return nil, err
	}

	wm, err := c.orgDomainWriteModel(ctx, instanceID, orgID, domainName)
	if err != nil {
		return nil, err
	}
	if wm.State == domain.OrgDomainStateActive {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-OrgDom01a", "domain already exists on org")
	}

	if err := c.checkPermission(ctx, "org", "write", orgID); err != nil {
		return nil, err
	}

	err = c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgDomainAddedType,
			&domain.OrgDomainAddedPayload{Domain: domainName}),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// VerifyOrgDomain marks a domain as verified and claims it instance wide:
// two orgs can never hold the same verified domain.
func (c *Commands) VerifyOrgDomain(ctx context.Context, instanceID, orgID, domainName string) (*domain.ObjectDetails, error) {
	wm, err := c.orgDomainWriteModel(ctx, instanceID, orgID, domainName)
	if err != nil {
		return nil, err
	}
	if wm.State != domain.OrgDomainStateActive {
		return nil, errs.ThrowNotFound(nil, "COMMAND-OrgDom02a", "domain not found on org")
	}
	if wm.Verified {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	if err := c.checkPermission(ctx, "org", "write", orgID); err != nil {
		return nil, err
	}

	err = c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgDomainVerifiedType,
			&domain.OrgDomainVerifiedPayload{Domain: domainName},
			domain.NewAddUniqueConstraint(domain.UniqueOrgDomain, domainName+"|"+orgID, "COMMAND-OrgDom02b"),
		),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// SetPrimaryOrgDomain promotes a verified domain to the org's primary,
// demoting the previous one. Unverified domains are rejected.
func (c *Commands) SetPrimaryOrgDomain(ctx context.Context, instanceID, orgID, domainName string) (*domain.ObjectDetails, error) {
	wm, err := c.orgDomainWriteModel(ctx, instanceID, orgID, domainName)
	if err != nil {
		return nil, err
	}
	if wm.State != domain.OrgDomainStateActive {
		return nil, errs.ThrowNotFound(nil, "COMMAND-OrgDom03a", "domain not found on org")
	}
	if !wm.Verified {
		return nil, errs.ThrowPreconditionFailed(nil, "COMMAND-OrgDom03b", "domain is not verified")
	}
	if wm.Primary {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	if err := c.checkPermission(ctx, "org", "write", orgID); err != nil {
		return nil, err
	}

	err = c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgDomainPrimarySetType,
			&domain.OrgDomainPrimarySetPayload{Domain: domainName}),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// RemoveOrgDomain detaches a domain from an org. The primary domain cannot
// be removed; a verified domain's claim is released for other orgs.
func (c *Commands) RemoveOrgDomain(ctx context.Context, instanceID, orgID, domainName string) (*domain.ObjectDetails, error) {
	wm, err := c.orgDomainWriteModel(ctx, instanceID, orgID, domainName)
	if err != nil {
		return nil, err
	}
	if wm.State != domain.OrgDomainStateActive {
		return nil, errs.ThrowNotFound(nil, "COMMAND-OrgDom04a", "domain not found on org")
	}
	if wm.Primary {
		return nil, errs.ThrowPreconditionFailed(nil, "COMMAND-OrgDom04b", "primary domain cannot be removed")
	}

	if err := c.checkPermission(ctx, "org", "write", orgID); err != nil {
		return nil, err
	}

	var constraints []*domain.UniqueConstraint
	if wm.Verified {
		constraints = append(constraints,
			domain.NewRemoveUniqueConstraint(domain.UniqueOrgDomain, domainName+"|"+orgID))
	}
	err = c.pushAppendAndReduce(ctx, wm,
		orgCommand(instanceID, orgID, creator(ctx), domain.OrgDomainRemovedType,
			&domain.OrgDomainRemovedPayload{Domain: domainName, IsVerified: wm.Verified}, constraints...),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}
