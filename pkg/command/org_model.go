package command

import (
	"context"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/store"
)

// OrgWriteModel folds the org aggregate's lifecycle events.
type OrgWriteModel struct {
	domain.WriteModel

	Name          string
	PrimaryDomain string
	State         domain.OrgState
}

func NewOrgWriteModel(instanceID, orgID string) *OrgWriteModel {
	return &OrgWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: orgID,
			InstanceID:  instanceID,
		},
	}
}

func (wm *OrgWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case domain.OrgAddedType:
			var payload domain.OrgAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Name = payload.Name
			wm.State = domain.OrgStateActive
		case domain.OrgChangedType:
			var payload domain.OrgChangedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Name = payload.Name
		case domain.OrgDeactivatedType:
			wm.State = domain.OrgStateInactive
		case domain.OrgReactivatedType:
			wm.State = domain.OrgStateActive
		case domain.OrgRemovedType:
			wm.State = domain.OrgStateRemoved
		case domain.OrgDomainPrimarySetType:
			var payload domain.OrgDomainPrimarySetPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.PrimaryDomain = payload.Domain
		}
	}
	return wm.WriteModel.Reduce()
}

func (c *Commands) orgWriteModelByID(ctx context.Context, instanceID, orgID string) (*OrgWriteModel, error) {
	wm := NewOrgWriteModel(instanceID, orgID)
	query := store.NewSearchQueryBuilder(domain.AggregateTypeOrg).
		InstanceID(instanceID).
		AggregateIDs(orgID)
	if err := c.eventstore.FilterToReducer(ctx, query, wm); err != nil {
		return nil, err
	}
	return wm, nil
}

// orgCommand builds a command targeting the org aggregate.
func orgCommand(instanceID, orgID, creator string, eventType domain.EventType, payload any, constraints ...*domain.UniqueConstraint) *domain.Command {
	return &domain.Command{
		InstanceID:        instanceID,
		AggregateType:     domain.AggregateTypeOrg,
		AggregateID:       orgID,
		Type:              eventType,
		Revision:          1,
		Creator:           creator,
		Owner:             orgID,
		Payload:           payload,
		UniqueConstraints: constraints,
	}
}
