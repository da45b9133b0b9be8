package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
	"github.com/identra/identra/pkg/projection"
)

// User is the read model of one user.
type User struct {
	ID            string
	InstanceID    string
	Username      string
	Type          domain.UserType
	State         domain.UserState
	ResourceOwner string
	FirstName     string
	LastName      string
	Email         string
	EmailVerified bool
	PreferredLang string
	MachineName   string
	Description   string
	CreatedAt     time.Time
	ChangedAt     time.Time
	Sequence      uint64
}

const userColumns = `id, instance_id, username, type, state, resource_owner,
	COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(email, ''), email_verified,
	COALESCE(preferred_language, ''), COALESCE(machine_name, ''), COALESCE(description, ''),
	created_at, changed_at, sequence`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	u := &User{}
	var userType, state, emailVerified int
	var createdAt, changedAt int64
	err := row.Scan(&u.ID, &u.InstanceID, &u.Username, &userType, &state, &u.ResourceOwner,
		&u.FirstName, &u.LastName, &u.Email, &emailVerified,
		&u.PreferredLang, &u.MachineName, &u.Description,
		&createdAt, &changedAt, &u.Sequence)
	if err != nil {
		return nil, err
	}
	u.Type = domain.UserType(userType)
	u.State = domain.UserState(state)
	u.EmailVerified = emailVerified != 0
	u.CreatedAt = microTime(createdAt)
	u.ChangedAt = microTime(changedAt)
	return u, nil
}

// UserByID returns one user or NotFound.
func (q *Queries) UserByID(ctx context.Context, instanceID, userID string) (*User, error) {
	row := q.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE instance_id = ? AND id = ?", userColumns, projection.UsersTable),
		instanceID, userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ThrowNotFound(err, "QUERY-User01", "user not found")
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-User02", "failed to query user")
	}
	return user, nil
}

// UserIDByLoginName resolves a login name (username@domain over any
// verified org domain) to the user ID.
func (q *Queries) UserIDByLoginName(ctx context.Context, instanceID, loginName string) (string, error) {
	var userID string
	err := q.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT user_id FROM %s WHERE instance_id = ? AND login_name = ?", projection.LoginNamesView),
		instanceID, loginName).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errs.ThrowNotFound(err, "QUERY-Login01", "login name not found")
	}
	if err != nil {
		return "", errs.ThrowStorage(err, "QUERY-Login02", "failed to resolve login name")
	}
	return userID, nil
}

// LoginNamesByUserID lists the resolvable login names of a user.
func (q *Queries) LoginNamesByUserID(ctx context.Context, instanceID, userID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf("SELECT login_name FROM %s WHERE instance_id = ? AND user_id = ? ORDER BY is_primary DESC, login_name", projection.LoginNamesView),
		instanceID, userID)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Login03", "failed to query login names")
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errs.ThrowStorage(err, "QUERY-Login04", "failed to scan login name")
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// UserSearch filters the user list.
type UserSearch struct {
	SearchRequest

	ResourceOwner string
	Type          domain.UserType
	State         domain.UserState
	UsernameLike  string
	EmailLike     string
}

// Users carries one page of the user search.
type Users struct {
	SearchResponse
	Users []*User
}

var userSortColumns = []string{"username", "created_at", "changed_at", "email"}

// SearchUsers lists users of an instance with filters and pagination.
func (q *Queries) SearchUsers(ctx context.Context, instanceID string, search *UserSearch) (*Users, error) {
	where := "WHERE instance_id = ?"
	args := []any{instanceID}
	if search.ResourceOwner != "" {
		where += " AND resource_owner = ?"
		args = append(args, search.ResourceOwner)
	}
	if search.Type != domain.UserTypeUnspecified {
		where += " AND type = ?"
		args = append(args, int(search.Type))
	}
	if search.State != domain.UserStateUnspecified {
		where += " AND state = ?"
		args = append(args, int(search.State))
	}
	if search.UsernameLike != "" {
		where += " AND username LIKE ?"
		args = append(args, "%"+search.UsernameLike+"%")
	}
	if search.EmailLike != "" {
		where += " AND email LIKE ?"
		args = append(args, "%"+search.EmailLike+"%")
	}

	result := &Users{}
	err := q.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s %s", projection.UsersTable, where), args...).
		Scan(&result.TotalCount)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-User03", "failed to count users")
	}

	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s %s%s", userColumns, projection.UsersTable, where,
			search.limitClause(userSortColumns)),
		args...)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-User04", "failed to search users")
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, errs.ThrowStorage(err, "QUERY-User05", "failed to scan user")
		}
		result.Users = append(result.Users, user)
	}
	return result, rows.Err()
}

// UserMetadata returns all metadata of a user as a map.
func (q *Queries) UserMetadata(ctx context.Context, instanceID, userID string) (map[string][]byte, error) {
	rows, err := q.db.QueryContext(ctx,
		fmt.Sprintf("SELECT key, value FROM %s WHERE instance_id = ? AND user_id = ?", projection.UserMetadataTable),
		instanceID, userID)
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Meta01", "failed to query user metadata")
	}
	defer rows.Close()

	metadata := map[string][]byte{}
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, errs.ThrowStorage(err, "QUERY-Meta02", "failed to scan user metadata")
		}
		metadata[key] = value
	}
	return metadata, rows.Err()
}

// UserMetadataByKey returns one metadata value or NotFound.
func (q *Queries) UserMetadataByKey(ctx context.Context, instanceID, userID, key string) ([]byte, error) {
	var value []byte
	err := q.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT value FROM %s WHERE instance_id = ? AND user_id = ? AND key = ?", projection.UserMetadataTable),
		instanceID, userID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.ThrowNotFound(err, "QUERY-Meta03", "metadata key not found")
	}
	if err != nil {
		return nil, errs.ThrowStorage(err, "QUERY-Meta04", "failed to query user metadata")
	}
	return value, nil
}
