package command

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/errs"
)

const maxUsernameLen = 200

// AddHumanRequest creates an interactive user owned by an org. UserID is
// optional; a sortable ID is generated when empty.
type AddHumanRequest struct {
	UserID        string
	Username      string
	FirstName     string
	LastName      string
	Email         string
	EmailVerified bool
	Password      string
	PreferredLang string
}

// CreatedUser is returned by the user creation commands.
type CreatedUser struct {
	UserID  string
	Details *domain.ObjectDetails
}

// AddHumanUser creates a human user. The login name is reserved instance
// wide; a second user with the same name fails with AlreadyExists. When the
// email is not pre-verified an initialization mail is sent after the push.
func (c *Commands) AddHumanUser(ctx context.Context, instanceID, orgID string, req *AddHumanRequest) (*CreatedUser, error) {
	if err := c.checkOrgExists(ctx, instanceID, orgID); err != nil {
		return nil, err
	}
	if err := c.checkPermission(ctx, "user", "create", orgID); err != nil {
		return nil, err
	}

	cmd, userID, err := c.humanAddedCommand(ctx, instanceID, orgID, req)
	if err != nil {
		return nil, err
	}

	wm, err := c.userWriteModelByID(ctx, instanceID, userID)
	if err != nil {
		return nil, err
	}
	if wm.State != domain.UserStateUnspecified {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-User00a", "user already exists")
	}

	if err := c.pushAppendAndReduce(ctx, wm, cmd); err != nil {
		return nil, err
	}

	if !req.EmailVerified {
		err := c.notifier.Send(ctx, "user.initialization", req.Email, map[string]any{
			"username": wm.Username,
			"code":     uuid.NewString(),
		})
		if err != nil {
			c.logger.Warn("failed to send initialization mail", "user_id", userID, "error", err)
		}
	}

	return &CreatedUser{
		UserID:  userID,
		Details: domain.WriteModelToObjectDetails(&wm.WriteModel),
	}, nil
}

// humanAddedCommand validates the request, hashes the password and builds
// the user.human.added command. Shared with org setup so admins are created
// in the same batch as the org.
func (c *Commands) humanAddedCommand(ctx context.Context, instanceID, orgID string, req *AddHumanRequest) (*domain.Command, string, error) {
	username, err := normalizeName(req.Username, "COMMAND-User01a", maxUsernameLen)
	if err != nil {
		return nil, "", err
	}
	if err := validateEmail(req.Email, "COMMAND-User01b"); err != nil {
		return nil, "", err
	}
	lang := req.PreferredLang
	if lang != "" {
		lang, err = validateLanguage(lang, "COMMAND-User01c")
		if err != nil {
			return nil, "", err
		}
	}

	var passwordHash string
	if req.Password != "" {
		if err := validatePassword(req.Password, "COMMAND-User01d"); err != nil {
			return nil, "", err
		}
		passwordHash, err = c.passwordHasher.Hash(req.Password)
		if err != nil {
			return nil, "", errs.ThrowInternal(err, "COMMAND-User01e", "failed to hash password")
		}
	}

	userID, err := c.nextID(req.UserID)
	if err != nil {
		return nil, "", err
	}

	cmd := userCommand(instanceID, userID, orgID, creator(ctx), domain.HumanAddedType,
		&domain.HumanAddedPayload{
			Username:      username,
			FirstName:     strings.TrimSpace(req.FirstName),
			LastName:      strings.TrimSpace(req.LastName),
			Email:         req.Email,
			EmailVerified: req.EmailVerified,
			PasswordHash:  passwordHash,
			PreferredLang: lang,
		},
		domain.NewAddUniqueConstraint(domain.UniqueUsername, strings.ToLower(username), "COMMAND-User01f"),
	)
	return cmd, userID, nil
}

// AddMachineRequest creates a service account owned by an org.
type AddMachineRequest struct {
	UserID      string
	Username    string
	Name        string
	Description string
}

// AddMachineUser creates a machine user. Machines authenticate with keys or
// personal access tokens, never with a password.
func (c *Commands) AddMachineUser(ctx context.Context, instanceID, orgID string, req *AddMachineRequest) (*CreatedUser, error) {
	username, err := normalizeName(req.Username, "COMMAND-User02a", maxUsernameLen)
	if err != nil {
		return nil, err
	}
	name, err := normalizeName(req.Name, "COMMAND-User02b", maxUsernameLen)
	if err != nil {
		return nil, err
	}

	if err := c.checkOrgExists(ctx, instanceID, orgID); err != nil {
		return nil, err
	}
	if err := c.checkPermission(ctx, "user", "create", orgID); err != nil {
		return nil, err
	}

	userID, err := c.nextID(req.UserID)
	if err != nil {
		return nil, err
	}

	wm, err := c.userWriteModelByID(ctx, instanceID, userID)
	if err != nil {
		return nil, err
	}
	if wm.State != domain.UserStateUnspecified {
		return nil, errs.ThrowAlreadyExists(nil, "COMMAND-User02c", "user already exists")
	}

	err = c.pushAppendAndReduce(ctx, wm,
		userCommand(instanceID, userID, orgID, creator(ctx), domain.MachineAddedType,
			&domain.MachineAddedPayload{
				Username:    username,
				Name:        name,
				Description: req.Description,
			},
			domain.NewAddUniqueConstraint(domain.UniqueUsername, strings.ToLower(username), "COMMAND-User02d"),
		),
	)
	if err != nil {
		return nil, err
	}
	return &CreatedUser{
		UserID:  userID,
		Details: domain.WriteModelToObjectDetails(&wm.WriteModel),
	}, nil
}

// ChangeUsername renames a user, releasing the old login name and claiming
// the new one in the same push. Renaming to the current name emits no event.
func (c *Commands) ChangeUsername(ctx context.Context, instanceID, userID, username string) (*domain.ObjectDetails, error) {
	username, err := normalizeName(username, "COMMAND-User03a", maxUsernameLen)
	if err != nil {
		return nil, err
	}

	wm, err := c.existingUser(ctx, instanceID, userID, "COMMAND-User03b")
	if err != nil {
		return nil, err
	}
	if wm.Username == username {
		return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
	}

	if err := c.checkPermission(ctx, "user", "write", wm.ResourceOwner); err != nil {
		return nil, err
	}

	oldUsername := wm.Username
	err = c.pushAppendAndReduce(ctx, wm,
		userCommand(instanceID, userID, wm.ResourceOwner, creator(ctx), domain.UsernameChangedType,
			&domain.UsernameChangedPayload{Username: username},
			domain.NewRemoveUniqueConstraint(domain.UniqueUsername, strings.ToLower(oldUsername)),
			domain.NewAddUniqueConstraint(domain.UniqueUsername, strings.ToLower(username), "COMMAND-User03c"),
		),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// DeactivateUser moves an active user to inactive.
func (c *Commands) DeactivateUser(ctx context.Context, instanceID, userID string) (*domain.ObjectDetails, error) {
	wm, err := c.existingUser(ctx, instanceID, userID, "COMMAND-User04a")
	if err != nil {
		return nil, err
	}
	return c.pushUserStateChange(ctx, wm, domain.UserDeactivatedType, func(wm *UserWriteModel) error {
		if wm.State == domain.UserStateInactive {
			return errs.ThrowPreconditionFailed(nil, "COMMAND-User04b", "user already inactive")
		}
		return nil
	})
}

// ReactivateUser moves an inactive user back to active.
func (c *Commands) ReactivateUser(ctx context.Context, instanceID, userID string) (*domain.ObjectDetails, error) {
	wm, err := c.existingUser(ctx, instanceID, userID, "COMMAND-User05a")
	if err != nil {
		return nil, err
	}
	return c.pushUserStateChange(ctx, wm, domain.UserReactivatedType, func(wm *UserWriteModel) error {
		if wm.State != domain.UserStateInactive {
			return errs.ThrowPreconditionFailed(nil, "COMMAND-User05b", "user is not inactive")
		}
		return nil
	})
}

// LockUser locks a user out of authentication, typically after the lockout
// policy's attempt budget is exhausted.
func (c *Commands) LockUser(ctx context.Context, instanceID, userID string) (*domain.ObjectDetails, error) {
	wm, err := c.existingUser(ctx, instanceID, userID, "COMMAND-User06a")
	if err != nil {
		return nil, err
	}
	return c.pushUserStateChange(ctx, wm, domain.UserLockedType, func(wm *UserWriteModel) error {
		if wm.State == domain.UserStateLocked {
			return errs.ThrowPreconditionFailed(nil, "COMMAND-User06b", "user already locked")
		}
		return nil
	})
}

// UnlockUser releases a locked user.
func (c *Commands) UnlockUser(ctx context.Context, instanceID, userID string) (*domain.ObjectDetails, error) {
	wm, err := c.existingUser(ctx, instanceID, userID, "COMMAND-User07a")
	if err != nil {
		return nil, err
	}
	return c.pushUserStateChange(ctx, wm, domain.UserUnlockedType, func(wm *UserWriteModel) error {
		if wm.State != domain.UserStateLocked {
			return errs.ThrowPreconditionFailed(nil, "COMMAND-User07b", "user is not locked")
		}
		return nil
	})
}

// RemoveUser removes a user. Removal is terminal and releases the login
// name for reuse.
func (c *Commands) RemoveUser(ctx context.Context, instanceID, userID string) (*domain.ObjectDetails, error) {
	wm, err := c.existingUser(ctx, instanceID, userID, "COMMAND-User08a")
	if err != nil {
		return nil, err
	}

	if err := c.checkPermission(ctx, "user", "delete", wm.ResourceOwner); err != nil {
		return nil, err
	}

	err = c.pushAppendAndReduce(ctx, wm,
		userCommand(instanceID, userID, wm.ResourceOwner, creator(ctx), domain.UserRemovedType, nil,
			domain.NewRemoveUniqueConstraint(domain.UniqueUsername, strings.ToLower(wm.Username)),
		),
	)
	if err != nil {
		return nil, err
	}
	return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
}

// existingUser loads the write model and fails with NotFound when the user
// never existed or was removed.
func (c *Commands) existingUser(ctx context.Context, instanceID, userID, code string) (*UserWriteModel, error) {
	wm, err := c.userWriteModelByID(ctx, instanceID, userID)
	if err != nil {
		return nil, err
	}
	if !wm.State.Exists() {
		return nil, errs.ThrowNotFound(nil, code, "user not found")
	}
	return wm, nil
}

// stateChangeRetries bounds how often a conflicting state transition
// reloads the user and re-attempts its push.
const stateChangeRetries = 2

// pushUserStateChange pushes a state-transition event with the write
// model's version as the expected aggregate version, so two racing
// transitions produce exactly one winner. On a conflict the user is
// reloaded, the guard re-evaluated against the fresh state and the push
// re-attempted a bounded number of times.
func (c *Commands) pushUserStateChange(ctx context.Context, wm *UserWriteModel, eventType domain.EventType, guard func(*UserWriteModel) error) (*domain.ObjectDetails, error) {
	if err := c.checkPermission(ctx, "user", "write", wm.ResourceOwner); err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		if !wm.State.Exists() {
			return nil, errs.ThrowNotFound(nil, "COMMAND-User09a", "user not found")
		}
		if err := guard(wm); err != nil {
			return nil, err
		}

		err := c.pushWithConcurrencyCheck(ctx, wm, wm.ProcessedSequence,
			userCommand(wm.InstanceID, wm.AggregateID, wm.ResourceOwner, creator(ctx), eventType, nil))
		if err == nil {
			return domain.WriteModelToObjectDetails(&wm.WriteModel), nil
		}
		if !errs.IsConcurrencyConflict(err) || attempt == stateChangeRetries {
			return nil, err
		}

		reloaded, loadErr := c.userWriteModelByID(ctx, wm.InstanceID, wm.AggregateID)
		if loadErr != nil {
			return nil, loadErr
		}
		*wm = *reloaded
	}
}

// checkOrgExists guards user creation against dangling resource owners.
func (c *Commands) checkOrgExists(ctx context.Context, instanceID, orgID string) error {
	wm, err := c.orgWriteModelByID(ctx, instanceID, orgID)
	if err != nil {
		return err
	}
	if !wm.State.Exists() {
		return errs.ThrowPreconditionFailed(nil, "COMMAND-User00o", "organization not found")
	}
	return nil
}
