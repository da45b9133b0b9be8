package command

import (
	"context"
	"time"

	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/store"
)

// PersonalAccessTokenWriteModel folds the token events of one user for a
// single token ID.
type PersonalAccessTokenWriteModel struct {
	domain.WriteModel

	TokenID    string
	TokenHash  string
	Expiration time.Time
	Exists     bool
}

func NewPersonalAccessTokenWriteModel(instanceID, userID, tokenID string) *PersonalAccessTokenWriteModel {
	return &PersonalAccessTokenWriteModel{
		WriteModel: domain.WriteModel{
			AggregateID: userID,
			InstanceID:  instanceID,
		},
		TokenID: tokenID,
	}
}

func (wm *PersonalAccessTokenWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch event.Type {
		case domain.PersonalAccessTokenAddedType:
			var payload domain.PersonalAccessTokenAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.TokenID != wm.TokenID {
				continue
			}
			wm.Exists = true
			wm.TokenHash = payload.TokenHash
			wm.Expiration = payload.Expiration
		case domain.PersonalAccessTokenRemovedType:
			var payload domain.PersonalAccessTokenRemovedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.TokenID != wm.TokenID {
				continue
			}
			wm.Exists = false
		case domain.UserRemovedType:
			wm.Exists = false
		}
	}
	return wm.WriteModel.Reduce()
}

func (c *Commands) personalAccessTokenWriteModel(ctx context.Context, instanceID, userID, tokenID string) (*PersonalAccessTokenWriteModel, error) {
	wm := NewPersonalAccessTokenWriteModel(instanceID, userID, tokenID)
	query := store.NewSearchQueryBuilder(domain.AggregateTypeUser).
		InstanceID(instanceID).
		AggregateIDs(userID).
		EventTypes(
			domain.PersonalAccessTokenAddedType,
			domain.PersonalAccessTokenRemovedType,
			domain.UserRemovedType,
		)
	if err := c.eventstore.FilterToReducer(ctx, query, wm); err != nil {
		return nil, err
	}
	return wm, nil
}

// AddedPersonalAccessToken is returned by AddPersonalAccessToken. Token
// carries the plaintext exactly once; only its hash is persisted.
type AddedPersonalAccessToken struct {
	TokenID string
	Token   string
	Details *domain.ObjectDetails
}

// AddPersonalAccessToken mints a token for a user. Expiration must lie in
// the future.
func (c *Commands) AddPersonalAccessToken(ctx context.Context, instanceID, userID string, expiration time.Time, scopes []string) (*AddedPersonalAccessToken, error) {
	if !expiration.After(c.clock.Now()) {
		return nil, errs.ThrowInvalidArgument(nil, "COMMAND-Pat01a", "expiration is in the past")
	}

	user, err := c.existingUser(ctx, instanceID, userID, "COMMAND-Pat01b")
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission(ctx, "user", "write", user.ResourceOwner); err != nil {
		return nil, err
	}

	tokenID, err := c.nextID("")
	if err != nil {
		return nil, err
	}
	token, hash, err := crypto.NewPersonalAccessToken()
	if err != nil {
		return nil, errs.ThrowInternal(err, "COMMAND-Pat01c", "failed to generate token")
	}

	wm := NewPersonalAccessTokenWriteModel(instanceID, userID, tokenID)
	wm.ResourceOwner = user.ResourceOwner
	err = c.pushAppendAndReduce(ctx, wm,
		userCommand(instanceID, userID, user.ResourceOwner, creator(ctx), domain.PersonalAccessTokenAddedType,
			&domain.PersonalAccessTokenAddedPayload{
				TokenID:    tokenID,
				TokenHash:  hash,
				Expiration: expiration,
				Scopes:     scopes,
			},
		),
	)
	if err != nil {
		return nil, err
	}
	return &AddedPersonalAccessToken{
		TokenID: tokenID,
		Token:   token,
		Details: domain.WriteModelToObjectDetails(&wm.WriteModel),
	}, nil
}

// RemovePersonalAccessToken revokes a token. Unknown tokens fail with
// NotFound.
func (c *Commands) RemovePersonalAccessToken(ctx context.Context, instanceID, userID, tokenID string) (*domain.ObjectDetails, error) {
	user, err := c.existingUser(ctx, instanceID, userID, "COMMAND-Pat02a")
	if err != nil {
		return nil, err
	}

	wm, err := c.personalAccessTokenWriteModel(ctx, instanceID, userID, tokenID)
	if err != nil {
		return nil, err
	}
	if !wm.Exists {
		return nil, errs.ThrowNotFound(nil, "COMMAND-Pat02b", "token not found")
	}

	if err := c.checkPermission(ctx, "user", "write", user.ResourceOwner); err != nil {
		return nil, err
	}

	err = c.pushAppendAndReduce(ctx, wm,
		userCommand(instanceID, userID, user.ResourceOwner, creator(ctx), domain.PersonalAccessTokenRemovedType,
			&domain.PersonalAccessTokenRemovedPayload{TokenID: tokenID}),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}
