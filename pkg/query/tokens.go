package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/identra/identra/pkg/crypto"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/projection"
)

// PersonalAccessToken is the read model of one token. The plaintext is
// never stored; only its hash.
type PersonalAccessToken struct {
	TokenID    string
	InstanceID string
	UserID     string
	TokenHash  string
	Expiration time.Time
	Scopes     []string
	CreatedAt  time.Time
}

// PersonalAccessTokens lists the tokens of a user.
func (q *Queries) PersonalAccessTokens(ctx context.Context, instanceID, userID string) ([]*PersonalAccessToken, error) {
	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf("SELECT token_id, instance_id, user_id, token_hash, expiration, scopes, created_at FROM %s WHERE instance_id = ? AND user_id = ? ORDER BY created_at", projection.PersonalAccessTokensTable),
		instanceID, userID)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Pat01", "failed to query tokens")
	}
	defer rows.Close()

	var tokens []*PersonalAccessToken
	for rows.Next() {
		token, err := scanPersonalAccessToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// UserByPersonalAccessToken authenticates a presented token: it hashes the
// plaintext, looks up the hash and checks expiry. The returned ID belongs
// to the token's owner.
func (q *Queries) UserByPersonalAccessToken(ctx context.Context, instanceID, token string) (string, error) {
	row := q.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT token_id, instance_id, user_id, token_hash, expiration, scopes, created_at FROM %s WHERE instance_id = ? AND token_hash = ?", projection.PersonalAccessTokensTable),
		instanceID, crypto.HashToken(token))
	pat, err := scanPersonalAccessToken(row)
	if err != nil {
		if errs.IsNotFound(err) {
			return "", errs.ThrowPermissionDenied(nil, "QUERY-Pat04", "invalid token")
		}
		return "", err
	}
	if !crypto.VerifyToken(token, pat.TokenHash) {
		return "", errs.ThrowPermissionDenied(nil, "QUERY-Pat05", "invalid token")
	}
	if time.Now().After(pat.Expiration) {
		return "", errs.ThrowPermissionDenied(nil, "QUERY-Pat06", "token expired")
	}
	return pat.UserID, nil
}

func scanPersonalAccessToken(row interface{ Scan(...any) error }) (*PersonalAccessToken, error) {
	t := &PersonalAccessToken{}
	var scopes string
	var expiration, createdAt int64
	err := row.Scan(&t.TokenID, &t.InstanceID, &t.UserID, &t.TokenHash, &expiration, &scopes, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ThrowNotFound(err, "QUERY-Pat02", "token not found")
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Pat03", "failed to scan token")
	}
	if err := json.Unmarshal([]byte(scopes), &t.Scopes); err != nil {
		return nil, errs.ThrowInternal(err, "QUERY-Pat07", "failed to decode scopes")
	}
	t.Expiration = microTime(expiration)
	t.CreatedAt = microTime(createdAt)
	return t, nil
}

// AuthNKey is the read model of one machine key's public half.
type AuthNKey struct {
	KeyID      string
	InstanceID string
	UserID     string
	KeyType    string
	PublicKey  []byte
	Expiration time.Time
	CreatedAt  time.Time
}

// AuthNKeys lists the keys of a machine user.
func (q *Queries) AuthNKeys(ctx context.Context, instanceID, userID string) ([]*AuthNKey, error) {
	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf("SELECT key_id, instance_id, user_id, key_type, public_key, expiration, created_at FROM %s WHERE instance_id = ? AND user_id = ? ORDER BY created_at", projection.AuthNKeysTable),
		instanceID, userID)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Key01", "failed to query keys")
	}
	defer rows.Close()

	var keys []*AuthNKey
	for rows.Next() {
		key, err := scanAuthNKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// AuthNKeyByID returns one key or NotFound. Used to verify machine key
// assertions by kid.
func (q *Queries) AuthNKeyByID(ctx context.Context, instanceID, keyID string) (*AuthNKey, error) {
	row := q.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT key_id, instance_id, user_id, key_type, public_key, expiration, created_at FROM %s WHERE instance_id = ? AND key_id = ?", projection.AuthNKeysTable),
		instanceID, keyID)
	return scanAuthNKey(row)
}

func scanAuthNKey(row interface{ Scan(...any) error }) (*AuthNKey, error) {
	k := &AuthNKey{}
	var expiration, createdAt int64
	err := row.Scan(&k.KeyID, &k.InstanceID, &k.UserID, &k.KeyType, &k.PublicKey, &expiration, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ThrowNotFound(err, "QUERY-Key02", "key not found")
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Key03", "failed to scan key")
	}
	k.Expiration = microTime(expiration)
	k.CreatedAt = microTime(createdAt)
	return k, nil
}
