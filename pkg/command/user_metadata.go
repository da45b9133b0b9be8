package command

import (
	"context"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/store"
)

const maxMetadataKeyLen = 200

// UserMetadataWriteModel folds all metadata events of one user into the
// current key/value view.
type UserMetadataWriteModel struct {
	domain.WriteModel

	Metadata map[string][]byte
}

func NewUserMetadataWriteModel(instanceID, userID string) *UserMetadataWriteModel {
	return &UserMetadataWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: userID,
			InstanceID:  instanceID,
		},
		Metadata: map[string][]byte{},
	}
}

func (wm *UserMetadataWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case domain.UserMetadataSetType:
			var payload domain.UserMetadataSetPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Metadata[payload.Key] = payload.Value
		case domain.UserMetadataRemovedType:
			var payload domain.UserMetadataRemovedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			delete(wm.Metadata, payload.Key)
		case domain.UserMetadataRemovedAllType, domain.UserRemovedType:
			wm.Metadata = map[string][]byte{}
		}
	}
	return wm.WriteModel.Reduce()
}

func (c *Commands) userMetadataWriteModel(ctx context.Context, instanceID, userID string) (*UserMetadataWriteModel, error) {
	wm := NewUserMetadataWriteModel(instanceID, userID)
	query := store.NewSearchQueryBuilder(domain.AggregateTypeUser).
		InstanceID(instanceID).
		AggregateIDs(userID).
		EventTypes(
			domain.UserMetadataSetType,
			domain.UserMetadataRemovedType,
			domain.UserMetadataRemovedAllType,
			domain.UserRemovedType,
		)
	if err := c.eventstore.FilterToReducer(ctx, query, wm); err != nil {
		return nil, err
	}
	return wm, nil
}

// MetadataEntry is one key/value pair of the bulk operations.
type MetadataEntry struct {
	Key   string
	Value []byte
}

func validateMetadataEntry(entry MetadataEntry, code string) error {
	if entry.Key == "" || len(entry.Key) > maxMetadataKeyLen {
		return errs.ThrowInvalidArgument(nil, code, "metadata key is invalid")
	}
	if len(entry.Value) == 0 {
		return errs.ThrowInvalidArgument(nil, code, "metadata value is empty")
	}
	return nil
}

// SetUserMetadata sets one key. Writing the value a key already holds emits
// no event.
func (c *Commands) SetUserMetadata(ctx context.Context, instanceID, userID string, entry MetadataEntry) (*domain.ObjectDetails, error) {
	details, err := c.BulkSetUserMetadata(ctx, instanceID, userID, entry)
	if err != nil {
		return nil, err
	}
	return details, nil
}

// BulkSetUserMetadata sets several keys in one push so consumers observe
// them atomically. Entries whose value is unchanged are skipped.
func (c *Commands) BulkSetUserMetadata(ctx context.Context, instanceID, userID string, entries ...MetadataEntry) (*domain.ObjectDetails, error) {
	if len(entries) == 0 {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Meta01a", "no metadata entries")
	}
	for _, entry := range entries {
		if err := validateMetadataEntry(entry, "COMMAND-Meta01b"); err != nil {
			return nil, err
		}
	}

	user, err := c.existingUser(ctx, instanceID, userID, "COMMAND-Meta01c")
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission(ctx, "user", "write", user.ResourceOwner); err != nil {
		return nil, err
	}

	wm, err := c.userMetadataWriteModel(ctx, instanceID, userID)
	if err != nil {
		return nil, err
	}

	actor := creator(ctx)
	commands := make([]*domain.Command, 0, len(entries))
	for _, entry := range entries {
		if current, ok := wm.Metadata[entry.Key]; ok && string(current) == string(entry.Value) {
			continue
		}
		commands = append(commands,
			userCommand(instanceID, userID, user.ResourceOwner, actor, domain.UserMetadataSetType,
				&domain.UserMetadataSetPayload{Key: entry.Key, Value: entry.Value}),
		)
	}
	if len(commands) == 0 {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	if err := c.pushAppendAndReduce(ctx, wm, commands...); err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// RemoveUserMetadata removes one key. Unknown keys fail with NotFound.
func (c *Commands) RemoveUserMetadata(ctx context.Context, instanceID, userID, key string) (*domain.ObjectDetails, error) {
	return c.BulkRemoveUserMetadata(ctx, instanceID, userID, key)
}

// BulkRemoveUserMetadata removes several keys in one push. All keys must
// exist or the whole operation fails with NotFound.
func (c *Commands) BulkRemoveUserMetadata(ctx context.Context, instanceID, userID string, keys ...string) (*domain.ObjectDetails, error) {
	if len(keys) == 0 {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Meta02a", "no metadata keys")
	}

	user, err := c.existingUser(ctx, instanceID, userID, "COMMAND-Meta02b")
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission(ctx, "user", "write", user.ResourceOwner); err != nil {
		return nil, err
	}

	wm, err := c.userMetadataWriteModel(ctx, instanceID, userID)
	if err != nil {
		return nil, err
	}

	actor := creator(ctx)
	commands := make([]*domain.Command, 0, len(keys))
	for _, key := range keys {
		if _, ok := wm.Metadata[key]; !ok {
			return nil, errs.ThrowNotFound(nil, "COMMAND-Meta02c", "metadata key not found")
		}
		commands = append(commands,
			userCommand(instanceID, userID, user.ResourceOwner, actor, domain.UserMetadataRemovedType,
				&domain.UserMetadataRemovedPayload{Key: key}),
		)
	}

	if err := c.pushAppendAndReduce(ctx, wm, commands...); err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// RemoveAllUserMetadata clears every key of a user in one event.
func (c *Commands) RemoveAllUserMetadata(ctx context.Context, instanceID, userID string) (*domain.ObjectDetails, error) {
	user, err := c.existingUser(ctx, instanceID, userID, "COMMAND-Meta03a")
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission(ctx, "user", "write", user.ResourceOwner); err != nil {
		return nil, err
	}

	wm, err := c.userMetadataWriteModel(ctx, instanceID, userID)
	if err != nil {
		return nil, err
	}
	if len(wm.Metadata) == 0 {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	err = c.pushAppendAndReduce(ctx, wm,
		userCommand(instanceID, userID, user.ResourceOwner, creator(ctx), domain.UserMetadataRemovedAllType, nil))
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}
