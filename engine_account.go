package goMembership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/MrEthical07/goMembership/store"
)

// GetUser returns the public projection of username.
//
// When userIsOnline is true the account's last activity date is stamped
// before the projection is built. GetUser returns ErrUserNotFound for unknown
// usernames.
func (e *Engine) GetUser(ctx context.Context, username string, userIsOnline bool) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}

	acct, err := e.findAccount(ctx, "get user", username)
	if err != nil {
		return nil, err
	}
	return e.touchAndProject(ctx, "get user", acct, userIsOnline)
}

// GetUserByKey returns the public projection of the account whose
// ProviderUserKey is key. It behaves like GetUser otherwise.
func (e *Engine) GetUserByKey(ctx context.Context, key string, userIsOnline bool) (*User, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("%w: provider user key is required", ErrInvalidArgument)
	}

	acct, err := e.accountByKey(ctx, "get user by key", key)
	if err != nil {
		return nil, err
	}
	return e.touchAndProject(ctx, "get user by key", acct, userIsOnline)
}

func (e *Engine) touchAndProject(ctx context.Context, op string, acct *store.Account, userIsOnline bool) (*User, error) {
	now := e.now().UTC()
	if userIsOnline {
		updated, err := e.updateAccount(ctx, op, acct.ID, func(a *store.Account) error {
			a.LastActivityDate = now
			return nil
		})
		if err != nil {
			return nil, err
		}
		acct = updated
	}
	return projectUser(acct, now), nil
}

// GetUserNameByEmail returns the username owning email, or "" when no account
// in the application uses it.
func (e *Engine) GetUserNameByEmail(ctx context.Context, email string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	lowered := store.NormalizeKey(email)
	if lowered == "" {
		return "", nil
	}

	acct, err := e.store.FindAccountByEmail(ctx, e.app(), lowered)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", nil
		}
		return "", e.storeErr("get username by email", err)
	}
	if acct.ApplicationName != e.app() {
		return "", nil
	}
	return acct.Username, nil
}

// UpdateUser persists the mutable fields of user: email, full name, comment,
// approval and the non-zero login and activity dates. The account is located
// by ProviderUserKey when set, else by username. Changing the username returns
// ErrUsernameImmutable; moving onto another account's email returns ErrDuplicateEmail.
func (e *Engine) UpdateUser(ctx context.Context, user *User) error {
	if err := e.ready(); err != nil {
		return err
	}
	if user == nil || user.Username == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidArgument)
	}
	if err := validation.Validate(strings.TrimSpace(user.Email), is.Email); err != nil {
		return fmt.Errorf("%w: email: %v", ErrInvalidArgument, err)
	}

	var (
		acct *store.Account
		err  error
	)
	if user.ProviderUserKey != "" {
		acct, err = e.accountByKey(ctx, "update user", user.ProviderUserKey)
		if err != nil {
			return err
		}
		if acct.LoweredUsername != store.NormalizeKey(user.Username) {
			return ErrUsernameImmutable
		}
	} else {
		acct, err = e.findAccount(ctx, "update user", user.Username)
		if err != nil {
			return err
		}
	}

	updated, err := e.updateAccount(ctx, "update user", acct.ID, func(a *store.Account) error {
		a.Email = strings.TrimSpace(user.Email)
		a.LoweredEmail = store.NormalizeKey(user.Email)
		a.FullName = user.FullName
		a.Comment = user.Comment
		a.IsApproved = user.IsApproved
		if !user.LastLoginDate.IsZero() {
			a.LastLoginDate = user.LastLoginDate.UTC()
		}
		if !user.LastActivityDate.IsZero() {
			a.LastActivityDate = user.LastActivityDate.UTC()
		}
		return nil
	})
	if err != nil {
		e.emitAudit(ctx, AuditUserUpdated, false, acct.ID, acct.Username, err, nil)
		return err
	}

	e.metricInc(MetricUserUpdated)
	e.emitAudit(ctx, AuditUserUpdated, true, updated.ID, updated.Username, nil, nil)
	return nil
}

// UnlockUser clears the lock flag and both failure counters of username.
//
// UnlockUser returns false with a nil error when the account does not exist.
func (e *Engine) UnlockUser(ctx context.Context, username string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if username == "" {
		return false, nil
	}

	acct, err := e.findAccount(ctx, "unlock user", username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}

	var wasLocked bool
	if _, err := e.updateAccount(ctx, "unlock user", acct.ID, func(a *store.Account) error {
		wasLocked = a.IsLockedOut
		state := e.lockoutState(a)
		e.lockout.Unlock(&state)
		applyLockoutState(a, state)
		a.FailedPasswordAnswerAttempts = 0
		a.LastFailedPasswordAnswerAttempt = time.Time{}
		return nil
	}); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}

	if wasLocked {
		e.metricInc(MetricAccountUnlocked)
		e.logger.Info("membership account unlocked",
			slog.String("application", acct.ApplicationName),
			slog.String("username", acct.Username),
		)
	}
	e.emitAudit(ctx, AuditUserUnlocked, true, acct.ID, acct.Username, nil, nil)
	return true, nil
}

// DeleteUser removes the account of username.
//
// Role memberships live on the account document, so removing it removes them
// whatever deleteAllRelatedData says. DeleteUser returns (false, ErrUserNotFound)
// for unknown usernames.
func (e *Engine) DeleteUser(ctx context.Context, username string, deleteAllRelatedData bool) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if username == "" {
		return false, fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}

	acct, err := e.findAccount(ctx, "delete user", username)
	if err != nil {
		return false, err
	}

	if err := e.store.DeleteAccount(ctx, acct.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrUserNotFound
		}
		return false, e.storeErr("delete user", err)
	}

	e.metricInc(MetricUserDeleted)
	e.emitAudit(ctx, AuditUserDeleted, true, acct.ID, acct.Username, nil, func(ev *AuditEvent) {
		ev.Detail = map[string]string{
			"memberships":             fmt.Sprint(len(acct.Roles)),
			"delete_all_related_data": fmt.Sprint(deleteAllRelatedData),
		}
	})
	return true, nil
}
