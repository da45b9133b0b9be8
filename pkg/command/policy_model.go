package command

import (
	"context"
	"slices"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/store"
)

// The policy write models are shared between the org and instance level;
// only the aggregate and event types differ.

type LoginPolicyWriteModel struct {
	domain.WriteModel

	aggregateType   domain.AggregateType
	addedType       domain.EventType
	changedType     domain.EventType
	removedType     domain.EventType
	factorAddedType domain.EventType

	State         domain.PolicyState
	Policy        domain.LoginPolicyAddedPayload
	SecondFactors []domain.SecondFactorType
}

func NewOrgLoginPolicyWriteModel(instanceID, orgID string) *LoginPolicyWriteModel {
	return &LoginPolicyWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: orgID,
			InstanceID:  instanceID,
		},
		aggregateType:   domain.AggregateTypeOrg,
		addedType:       domain.OrgLoginPolicyAddedType,
		changedType:     domain.OrgLoginPolicyChangedType,
		removedType:     domain.OrgLoginPolicyRemovedType,
		factorAddedType: domain.OrgLoginPolicySecondFactorAddedType,
	}
}

func NewInstanceLoginPolicyWriteModel(instanceID string) *LoginPolicyWriteModel {
	return &LoginPolicyWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: instanceID,
			InstanceID:  instanceID,
		},
		aggregateType:   domain.AggregateTypeInstance,
		addedType:       domain.InstanceLoginPolicyAddedType,
		changedType:     domain.InstanceLoginPolicyChangedType,
		factorAddedType: domain.InstanceLoginPolicySecondFactorAddedType,
	}
}

func (wm *LoginPolicyWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case wm.addedType:
			if err := event.Unmarshal(&wm.Policy); err != nil {
				return err
			}
			wm.State = domain.PolicyStateActive
		case wm.changedType:
			if err := event.Unmarshal(&wm.Policy); err != nil {
				return err
			}
		case wm.factorAddedType:
			var payload domain.LoginPolicySecondFactorAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if !slices.Contains(wm.SecondFactors, payload.FactorType) {
				wm.SecondFactors = append(wm.SecondFactors, payload.FactorType)
			}
		case wm.removedType:
			wm.State = domain.PolicyStateRemoved
			wm.Policy = domain.LoginPolicyAddedPayload{}
			wm.SecondFactors = nil
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *LoginPolicyWriteModel) eventTypes() []domain.EventType {
	types := []domain.EventType{wm.addedType, wm.changedType, wm.factorAddedType}
	if wm.removedType != "" {
		types = append(types, wm.removedType)
	}
	return types
}

type LockoutPolicyWriteModel struct {
	domain.WriteModel

	aggregateType domain.AggregateType
	addedType     domain.EventType
	changedType domain.EventType
	removedType domain.EventType

	State  domain.PolicyState
	Policy domain.LockoutPolicyAddedPayload
}

func NewOrgLockoutPolicyWriteModel(instanceID, orgID string) *LockoutPolicyWriteModel {
	return &LockoutPolicyWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: orgID,
			InstanceID:  instanceID,
		},
		aggregateType: domain.AggregateTypeOrg,
		addedType:     domain.OrgLockoutPolicyAddedType,
		changedType:   domain.OrgLockoutPolicyChangedType,
		removedType:   domain.OrgLockoutPolicyRemovedType,
	}
}

func NewInstanceLockoutPolicyWriteModel(instanceID string) *LockoutPolicyWriteModel {
	return &LockoutPolicyWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: instanceID,
			InstanceID:  instanceID,
		},
		aggregateType: domain.AggregateTypeInstance,
		addedType:     domain.InstanceLockoutPolicyAddedType,
		changedType:   domain.InstanceLockoutPolicyChangedType,
	}
}

func (wm *LockoutPolicyWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case wm.addedType:
			if err := event.Unmarshal(&wm.Policy); err != nil {
				return err
			}
			wm.State = domain.PolicyStateActive
		case wm.changedType:
			if err := event.Unmarshal(&wm.Policy); err != nil {
				return err
			}
		case wm.removedType:
			wm.State = domain.PolicyStateRemoved
			wm.Policy = domain.LockoutPolicyAddedPayload{}
		}
	}
	return wm.WriteModel.Reduce()
}

func (wm *LockoutPolicyWriteModel) eventTypes() []domain.EventType {
	types := []domain.EventType{wm.addedType, wm.changedType}
	if wm.removedType != "" {
		types = append(types, wm.removedType)
	}
	return types
}

type PasswordComplexityPolicyWriteModel struct {
	domain.WriteModel

	aggregateType domain.AggregateType
	addedType     domain.EventType
	changedType domain.EventType

	State  domain.PolicyState
	Policy domain.PasswordComplexityPolicyAddedPayload
}

func NewOrgPasswordComplexityPolicyWriteModel(instanceID, orgID string) *PasswordComplexityPolicyWriteModel {
	return &PasswordComplexityPolicyWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: orgID,
			InstanceID:  instanceID,
		},
		aggregateType: domain.AggregateTypeOrg,
		addedType:     domain.OrgPasswordComplexityPolicyAddedType,
		changedType:   domain.OrgPasswordComplexityPolicyChangedType,
	}
}

func NewInstancePasswordComplexityPolicyWriteModel(instanceID string) *PasswordComplexityPolicyWriteModel {
	return &PasswordComplexityPolicyWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: instanceID,
			InstanceID:  instanceID,
		},
		aggregateType: domain.AggregateTypeInstance,
		addedType:     domain.InstancePasswordComplexityPolicyAddedType,
		changedType:   domain.InstancePasswordComplexityPolicyChangedType,
	}
}

func (wm *PasswordComplexityPolicyWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case wm.addedType:
			if err := event.Unmarshal(&wm.Policy); err != nil {
				return err
			}
			wm.State = domain.PolicyStateActive
		case wm.changedType:
			if err := event.Unmarshal(&wm.Policy); err != nil {
				return err
			}
		}
	}
	return wm.WriteModel.Reduce()
}

type policyReducer interface {
	reducer
	aggregate() (aggregateType domain.AggregateType, aggregateID string)
	filterTypes() []domain.EventType
}

func (wm *LoginPolicyWriteModel) filterTypes() []domain.EventType { return wm.eventTypes() }

func (wm *LockoutPolicyWriteModel) filterTypes() []domain.EventType { return wm.eventTypes() }

func (wm *PasswordComplexityPolicyWriteModel) filterTypes() []domain.EventType {
	return []domain.EventType{wm.addedType, wm.changedType}
}

func (wm *LoginPolicyWriteModel) aggregate() (domain.AggregateType, string) {
	return wm.aggregateType, wm.AggregateID
}

func (wm *LockoutPolicyWriteModel) aggregate() (domain.AggregateType, string) {
	return wm.aggregateType, wm.AggregateID
}

func (wm *PasswordComplexityPolicyWriteModel) aggregate() (domain.AggregateType, string) {
	return wm.aggregateType, wm.AggregateID
}

func (c *Commands) filterPolicy(ctx context.Context, instanceID string, wm policyReducer) error {
	aggregateType, aggregateID := wm.aggregate()
	query := store.NewSearchQueryBuilder(aggregateType).
		InstanceID(instanceID).
		AggregateIDs(aggregateID).
		EventTypes(wm.filterTypes()...)
	return c.eventstore.FilterToReducer(ctx, query, wm)
}

// instanceCommand builds a command targeting the instance aggregate.
func instanceCommand(instanceID, creator string, eventType domain.EventType, payload any, constraints ...*domain.UniqueConstraint) *domain.Command {
	return &domain.Command{
		InstanceID:        instanceID,
		AggregateType:     domain.AggregateTypeInstance,
		AggregateID:       instanceID,
		Type:              eventType,
		Revision:          1,
		Creator:           creator,
		Owner:             instanceID,
		Payload:           payload,
		UniqueConstraints: constraints,
	}
}
