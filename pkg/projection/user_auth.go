package projection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/identra/identra/pkg/domain"
)

const (
	PersonalAccessTokensTable = "projections_personal_access_tokens"
	AuthNKeysTable            = "projections_authn_keys"
	UserMetadataTable         = "projections_user_metadata"
)

const createPersonalAccessTokensTable = `
CREATE TABLE IF NOT EXISTS projections_personal_access_tokens (
	instance_id TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	token_id    TEXT NOT NULL,
	token_hash  TEXT NOT NULL,
	expiration  INTEGER NOT NULL,
	scopes      TEXT NOT NULL DEFAULT '[]',
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (instance_id, token_id)
);
CREATE INDEX IF NOT EXISTS idx_projections_pats_user ON projections_personal_access_tokens (instance_id, user_id);
CREATE INDEX IF NOT EXISTS idx_projections_pats_hash ON projections_personal_access_tokens (instance_id, token_hash);
`

type personalAccessTokensHandler struct{}

// NewPersonalAccessTokensHandler projects token hashes for authentication
// lookups.
func NewPersonalAccessTokensHandler() Handler {
	return &personalAccessTokensHandler{}
}

func (*personalAccessTokensHandler) Name() string { return "personal_access_tokens" }

func (*personalAccessTokensHandler) Tables() []string {
	return []string{PersonalAccessTokensTable}
}

func (*personalAccessTokensHandler) Requires() []string { return nil }

func (*personalAccessTokensHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createPersonalAccessTokensTable); err != nil {
		return fmt.Errorf("failed to create personal access tokens projection table: %w", err)
	}
	return nil
}

func (h *personalAccessTokensHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{{
		Aggregate: domain.AggregateTypeUser,
		Reducers: map[domain.EventType]Reduce{
			domain.PersonalAccessTokenAddedType:   h.reduceAdded,
			domain.PersonalAccessTokenRemovedType: h.reduceRemoved,
			domain.UserRemovedType:                h.reduceUserRemoved,
		},
	}}
}

func (*personalAccessTokensHandler) reduceAdded(event *domain.Event) (*Statement, error) {
	var payload domain.PersonalAccessTokenAddedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	scopes, err := json.Marshal(payload.Scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal scopes: %w", err)
	}
	return NewUpsertStatement(PersonalAccessTokensTable,
		[]string{"instance_id", "token_id"},
		[]Column{
			Col("instance_id", event.InstanceID),
			Col("user_id", event.AggregateID),
			Col("token_id", payload.TokenID),
			Col("token_hash", payload.TokenHash),
			Col("expiration", payload.Expiration.UnixMicro()),
			Col("scopes", string(scopes)),
			Col("created_at", event.CreatedAt.UnixMicro()),
		},
	), nil
}

func (*personalAccessTokensHandler) reduceRemoved(event *domain.Event) (*Statement, error) {
	var payload domain.PersonalAccessTokenRemovedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewDeleteStatement(PersonalAccessTokensTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("token_id", payload.TokenID),
		},
	), nil
}

func (*personalAccessTokensHandler) reduceUserRemoved(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(PersonalAccessTokensTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("user_id", event.AggregateID),
		},
	), nil
}

const createAuthNKeysTable = `
CREATE TABLE IF NOT EXISTS projections_authn_keys (
	instance_id TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	key_id      TEXT NOT NULL,
	key_type    TEXT NOT NULL,
	public_key  BLOB NOT NULL,
	expiration  INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	PRIMARY KEY (instance_id, key_id)
);
CREATE INDEX IF NOT EXISTS idx_projections_authn_keys_user ON projections_authn_keys (instance_id, user_id);
`

type authNKeysHandler struct{}

// NewAuthNKeysHandler projects machine key public keys for assertion
// verification.
func NewAuthNKeysHandler() Handler {
	return &authNKeysHandler{}
}

func (*authNKeysHandler) Name() string { return "authn_keys" }

func (*authNKeysHandler) Tables() []string { return []string{AuthNKeysTable} }

func (*authNKeysHandler) Requires() []string { return nil }

func (*authNKeysHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createAuthNKeysTable); err != nil {
		return fmt.Errorf("failed to create authn keys projection table: %w", err)
	}
	return nil
}

func (h *authNKeysHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{{
		Aggregate: domain.AggregateTypeUser,
		Reducers: map[domain.EventType]Reduce{
			domain.MachineKeyAddedType:   h.reduceAdded,
			domain.MachineKeyRemovedType: h.reduceRemoved,
			domain.UserRemovedType:       h.reduceUserRemoved,
		},
	}}
}

func (*authNKeysHandler) reduceAdded(event *domain.Event) (*Statement, error) {
	var payload domain.MachineKeyAddedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpsertStatement(AuthNKeysTable,
		[]string{"instance_id", "key_id"},
		[]Column{
			Col("instance_id", event.InstanceID),
			Col("user_id", event.AggregateID),
			Col("key_id", payload.KeyID),
			Col("key_type", payload.KeyType),
			Col("public_key", payload.PublicKey),
			Col("expiration", payload.Expiration.UnixMicro()),
			Col("created_at", event.CreatedAt.UnixMicro()),
		},
	), nil
}

func (*authNKeysHandler) reduceRemoved(event *domain.Event) (*Statement, error) {
	var payload domain.MachineKeyRemovedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewDeleteStatement(AuthNKeysTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("key_id", payload.KeyID),
		},
	), nil
}

func (*authNKeysHandler) reduceUserRemoved(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(AuthNKeysTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("user_id", event.AggregateID),
		},
	), nil
}

const createUserMetadataTable = `
CREATE TABLE IF NOT EXISTS projections_user_metadata (
	instance_id TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	key         TEXT NOT NULL,
	value       BLOB NOT NULL,
	changed_at  INTEGER NOT NULL,
	PRIMARY KEY (instance_id, user_id, key)
);
`

type userMetadataHandler struct{}

// NewUserMetadataHandler projects the per-user key/value metadata.
func NewUserMetadataHandler() Handler {
	return &userMetadataHandler{}
}

func (*userMetadataHandler) Name() string { return "user_metadata" }

func (*userMetadataHandler) Tables() []string { return []string{UserMetadataTable} }

func (*userMetadataHandler) Requires() []string { return nil }

func (*userMetadataHandler) Init(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, createUserMetadataTable); err != nil {
		return fmt.Errorf("failed to create user metadata projection table: %w", err)
	}
	return nil
}

func (h *userMetadataHandler) Reducers() []AggregateReducer {
	return []AggregateReducer{{
		Aggregate: domain.AggregateTypeUser,
		Reducers: map[domain.EventType]Reduce{
			domain.UserMetadataSetType:        h.reduceSet,
			domain.UserMetadataRemovedType:    h.reduceRemoved,
			domain.UserMetadataRemovedAllType: h.reduceRemovedAll,
			domain.UserRemovedType:            h.reduceRemovedAll,
		},
	}}
}

func (*userMetadataHandler) reduceSet(event *domain.Event) (*Statement, error) {
	var payload domain.UserMetadataSetPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewUpsertStatement(UserMetadataTable,
		[]string{"instance_id", "user_id", "key"},
		[]Column{
			Col("instance_id", event.InstanceID),
			Col("user_id", event.AggregateID),
			Col("key", payload.Key),
			Col("value", payload.Value),
			Col("changed_at", event.CreatedAt.UnixMicro()),
		},
	), nil
}

func (*userMetadataHandler) reduceRemoved(event *domain.Event) (*Statement, error) {
	var payload domain.UserMetadataRemovedPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return NewDeleteStatement(UserMetadataTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("user_id", event.AggregateID),
			Cond("key", payload.Key),
		},
	), nil
}

func (*userMetadataHandler) reduceRemovedAll(event *domain.Event) (*Statement, error) {
	return NewDeleteStatement(UserMetadataTable,
		[]Condition{
			Cond("instance_id", event.InstanceID),
			Cond("user_id", event.AggregateID),
		},
	), nil
}
