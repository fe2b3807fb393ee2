package goMembership

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goMembership/store"
)

// ValidateUser describes the validate user operation and its observable behavior.
//
// ValidateUser returns false without touching the store when either argument is
// empty, and false for unknown, locked or unapproved accounts. A match clears
// the failure counter and stamps the login and activity dates. A mismatch runs
// the lockout bookkeeping. Only store failures are returned as errors.
func (e *Engine) ValidateUser(ctx context.Context, username, pw string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if username == "" || pw == "" {
		e.metricInc(MetricValidateFailure)
		return false, nil
	}

	start := time.Now()
	defer func() {
		e.metricObserve(MetricValidateLatency, time.Since(start))
	}()

	acct, err := e.findAccount(ctx, "validate user", username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricValidateFailure)
			e.emitAudit(ctx, AuditUserValidationFailed, false, "", username, err, nil)
			return false, nil
		}
		return false, err
	}

	_, err = e.checkPassword(ctx, acct, pw)
	switch {
	case err == nil:
		e.metricInc(MetricValidateSuccess)
		e.emitAudit(ctx, AuditUserValidated, true, acct.ID, acct.Username, nil, nil)
		return true, nil
	case isCredentialError(err):
		e.metricInc(MetricValidateFailure)
		e.emitAudit(ctx, AuditUserValidationFailed, false, acct.ID, acct.Username, err, nil)
		return false, nil
	default:
		return false, err
	}
}

func isCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredentials) || errors.Is(err, ErrUserNotFound)
}

// checkPassword verifies pw against acct and persists the outcome. It returns
// the updated account on success; ErrAccountLocked, ErrAccountNotApproved or
// ErrInvalidCredentials on rejection.
func (e *Engine) checkPassword(ctx context.Context, acct *store.Account, pw string) (*store.Account, error) {
	if acct.IsLockedOut {
		return nil, ErrAccountLocked
	}
	if !acct.IsApproved {
		return nil, ErrAccountNotApproved
	}

	ok, err := e.hasher.Verify(pw, acct.PasswordSalt, acct.PasswordHash)
	if err != nil {
		return nil, e.storeErr("validate user", err)
	}
	now := e.now().UTC()

	if ok {
		var rejected error
		updated, err := e.updateAccount(ctx, "validate user", acct.ID, func(a *store.Account) error {
			rejected = nil
			if a.IsLockedOut {
				rejected = ErrAccountLocked
				return store.ErrSkipUpdate
			}
			if !a.IsApproved {
				rejected = ErrAccountNotApproved
				return store.ErrSkipUpdate
			}
			a.FailedPasswordAttempts = 0
			a.LastFailedPasswordAttempt = time.Time{}
			a.LastLoginDate = now
			a.LastActivityDate = now
			return nil
		})
		if err != nil {
			return nil, err
		}
		if rejected != nil {
			return nil, rejected
		}
		return updated, nil
	}

	locked, err := e.recordPasswordFailure(ctx, acct.ID, now)
	if err != nil {
		return nil, err
	}
	if locked != nil {
		e.onLockedOut(ctx, locked, "password")
	}
	return nil, ErrInvalidCredentials
}

// recordPasswordFailure applies one failed password at now. It returns the
// account when this failure locked it.
func (e *Engine) recordPasswordFailure(ctx context.Context, id string, now time.Time) (*store.Account, error) {
	var tripped bool
	updated, err := e.updateAccount(ctx, "record password failure", id, func(a *store.Account) error {
		tripped = false
		state := e.lockoutState(a)
		tripped = e.lockout.RecordFailure(&state, now)
		applyLockoutState(a, state)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !tripped {
		return nil, nil
	}
	return updated, nil
}
