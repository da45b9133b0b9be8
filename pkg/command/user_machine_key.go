package command

import (
	"context"
	"time"

	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/store"
)

// MachineKeyWriteModel folds the key events of one machine user for a
// single key ID.
type MachineKeyWriteModel struct {
	domain.WriteModel

	KeyID  string
	Exists bool
}

func NewMachineKeyWriteModel(instanceID, userID, keyID string) *MachineKeyWriteModel {
	return &MachineKeyWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: userID,
			InstanceID:  instanceID,
		},
		KeyID: keyID,
	}
}

func (wm *MachineKeyWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case domain.MachineKeyAddedType:
			var payload domain.MachineKeyAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.KeyID != wm.KeyID {
				continue
			}
			wm.Exists = true
		case domain.MachineKeyRemovedType:
			var payload domain.MachineKeyRemovedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.KeyID != wm.KeyID {
				continue
			}
			wm.Exists = false
		case domain.UserRemovedType:
			wm.Exists = false
		}
	}
	return wm.WriteModel.Reduce()
}

func (c *Commands) machineKeyWriteModel(ctx context.Context, instanceID, userID, keyID string) (*MachineKeyWriteModel, error) {
	wm := NewMachineKeyWriteModel(instanceID, userID, keyID)
	query := store.NewSearchQueryBuilder(domain.AggregateTypeUser).
		InstanceID(instanceID).
		AggregateIDs(userID).
		EventTypes(
			domain.MachineKeyAddedType,
			domain.MachineKeyRemovedType,
			domain.UserRemovedType,
		)
	if err := c.eventstore.FilterToReducer(ctx, query, wm); err != nil {
		return nil, err
	}
	return wm, nil
}

// AddedMachineKey is returned by AddMachineKey. PrivateKey is handed out
// exactly once; only the public key is persisted.
type AddedMachineKey struct {
	KeyID      string
	KeyType    string
	PublicKey  []byte
	PrivateKey []byte
	Details    *domain.ObjectDetails
}

// AddMachineKey generates a keypair for a machine user so it can
// authenticate with signed JWT assertions.
func (c *Commands) AddMachineKey(ctx context.Context, instanceID, userID string, expiration time.Time) (*AddedMachineKey, error) {
	if !expiration.After(c.clock.Now()) {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Key01a", "expiration is in the past")
	}

	user, err := c.existingUser(ctx, instanceID, userID, "COMMAND-Key01b")
	if err != nil {
		return nil, err
	}
	if user.Type != domain.UserTypeMachine {
		return nil, errs.ThrowPreconditionFailed(nil, "COMMAND-Key01c", "user is not a machine")
	}
	if err := c.checkPermission(ctx, "user", "write", user.ResourceOwner); err != nil {
		return nil, err
	}

	keyID, err := c.nextID("")
	if err != nil {
		return nil, err
	}
	key, err := crypto.NewMachineKey()
	if err != nil {
		return nil, errs.ThrowInternal(err, "COMMAND-Key01d", "failed to generate machine key")
	}

	wm := NewMachineKeyWriteModel(instanceID, userID, keyID)
	wm.ResourceOwner = user.ResourceOwner
	err = c.pushAppendAndReduce(ctx, wm,
		userCommand(instanceID, userID, user.ResourceOwner, creator(ctx), domain.MachineKeyAddedType,
			&domain.MachineKeyAddedPayload{
				KeyID:      keyID,
				KeyType:    key.Type,
				PublicKey:  key.PublicKey,
				Expiration: expiration,
			},
		),
	)
	if err != nil {
		return nil, err
	}
	return &AddedMachineKey{
		KeyID:      keyID,
		KeyType:    key.Type,
		PublicKey:  key.PublicKey,
		PrivateKey: key.PrivateKey,
		Details:    domain.WriteModelToObjectDetails(&wm.WriteModel),
	}, nil
}

// RemoveMachineKey revokes a machine key. Unknown keys fail with NotFound.
func (c *Commands) RemoveMachineKey(ctx context.Context, instanceID, userID, keyID string) (*domain.ObjectDetails, error) {
	user, err := c.existingUser(ctx, instanceID, userID, "COMMAND-Key02a")
	if err != nil {
		return nil, err
	}

	wm, err := c.machineKeyWriteModel(ctx, instanceID, userID, keyID)
	if err != nil {
		return nil, err
	}
	if !wm.Exists {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Key02b", "machine key not found")
	}

	if err := c.checkPermission(ctx, "user", "write", user.ResourceOwner); err != nil {
		return nil, err
	}

	err = c.pushAppendAndReduce(ctx, wm,
		userCommand(instanceID, userID, user.ResourceOwner, creator(ctx), domain.MachineKeyRemovedType,
			&domain.MachineKeyRemovedPayload{KeyID: keyID}),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}
