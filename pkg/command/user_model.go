package command

import (
	"context"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/store"
)

// UserWriteModel folds the user aggregate's lifecycle events. PAT, key and
// metadata events have their own write models.
type UserWriteModel struct {
	domain.WriteModel

	Username string
	Email    string
	Type     domain.UserType
	State    domain.UserState
}

func NewUserWriteModel(instanceID, userID string) *UserWriteModel {
	return &UserWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: userID,
			InstanceID:  instanceID,
		},
	}
}

func (wm *UserWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case domain.HumanAddedType:
			var payload domain.HumanAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Username = payload.Username
			wm.Email = payload.Email
			wm.Type = domain.UserTypeHuman
			wm.State = domain.UserStateActive
			wm.ResourceOwner = event.Owner
		case domain.MachineAddedType:
			var payload domain.MachineAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Username = payload.Username
			wm.Type = domain.UserTypeMachine
			wm.State = domain.UserStateActive
			wm.ResourceOwner = event.Owner
		case domain.UsernameChangedType:
			var payload domain.UsernameChangedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Username = payload.Username
		case domain.UserDeactivatedType:
			wm.State = domain.UserStateInactive
		case domain.UserReactivatedType:
			wm.State = domain.UserStateActive
		case domain.UserLockedType:
			wm.State = domain.UserStateLocked
		case domain.UserUnlockedType:
			wm.State = domain.UserStateActive
		case domain.UserRemovedType:
			wm.State = domain.UserStateRemoved
		}
	}
	return wm.WriteModel.Reduce()
}

func (c *Commands) userWriteModelByID(ctx context.Context, instanceID, userID string) (*UserWriteModel, error) {
	wm := NewUserWriteModel(instanceID, userID)
	query := store.NewSearchQueryBuilder(domain.AggregateTypeUser).
		InstanceID(instanceID).
		AggregateIDs(userID)
	if err := c.eventstore.FilterToReducer(ctx, query, wm); err != nil {
		return nil, err
	}
	return wm, nil
}

// userCommand builds a command targeting the user aggregate. owner is the
// org the user belongs to.
func userCommand(instanceID, userID, owner, creator string, eventType domain.EventType, payload any, constraints ...*domain.UniqueConstraint) *domain.Command {
	return &domain.Command{
		InstanceID:        instanceID,
		AggregateType:     domain.AggregateTypeUser,
		AggregateID:       userID,
		Type:              eventType,
		Revision:          1,
		Creator:           creator,
		Owner:             owner,
		Payload:           payload,
		UniqueConstraints: constraints,
	}
}
