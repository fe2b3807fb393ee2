package goMembership

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/goMembership/password"
	"github.com/MrEthical07/goMembership/store"
)

const (
	resetPasswordMinLength  = 14
	resetPasswordMinSpecial = 2
)

// ResetPassword describes the reset password operation and its observable behavior.
//
// ResetPassword generates a new password, stores its hash under the account's
// existing salt and returns the plaintext. It returns ErrPasswordResetDisabled
// when resets are off, ErrUserNotFound (or ErrAccountLocked / ErrAccountNotApproved,
// which wrap it) when the account cannot be reset, and ErrWrongPasswordAnswer
// when a required answer does not match. A wrong answer counts toward lockout.
func (e *Engine) ResetPassword(ctx context.Context, username, answer string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	if !e.config.Membership.EnablePasswordReset {
		return "", ErrPasswordResetDisabled
	}
	if username == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}

	acct, err := e.findAccount(ctx, "reset password", username)
	if err != nil {
		e.emitAudit(ctx, AuditPasswordResetFailed, false, "", username, err, nil)
		return "", err
	}
	if err := resetEligible(acct); err != nil {
		e.emitAudit(ctx, AuditPasswordResetFailed, false, acct.ID, acct.Username, err, nil)
		return "", err
	}

	now := e.now().UTC()
	if e.config.Membership.RequiresQuestionAndAnswer {
		ok, err := e.answerMatches(acct, answer)
		if err != nil {
			return "", e.storeErr("reset password", err)
		}
		if !ok {
			if err := e.recordAnswerFailure(ctx, acct.ID, now); err != nil {
				return "", err
			}
			e.metricInc(MetricPasswordAnswerFailure)
			e.emitAudit(ctx, AuditPasswordResetFailed, false, acct.ID, acct.Username, ErrWrongPasswordAnswer, nil)
			return "", ErrWrongPasswordAnswer
		}
	}

	generated, err := password.Generate(e.resetPasswordLength(), e.resetPasswordSpecials())
	if err != nil {
		return "", e.storeErr("reset password", err)
	}
	hash, err := e.hasher.Hash(generated, acct.PasswordSalt)
	if err != nil {
		return "", e.storeErr("reset password", err)
	}

	if _, err := e.updateAccount(ctx, "reset password", acct.ID, func(a *store.Account) error {
		if err := resetEligible(a); err != nil {
			return err
		}
		a.PasswordHash = hash
		a.LastPasswordChangedDate = now
		return nil
	}); err != nil {
		return "", err
	}

	e.metricInc(MetricPasswordReset)
	e.emitAudit(ctx, AuditPasswordReset, true, acct.ID, acct.Username, nil, nil)
	return generated, nil
}

// GetPassword always returns ErrNotSupported. Passwords are stored as one-way
// hashes and cannot be retrieved.
func (e *Engine) GetPassword(ctx context.Context, username, answer string) (string, error) {
	return "", ErrNotSupported
}

func resetEligible(a *store.Account) error {
	if a.IsLockedOut {
		return ErrAccountLocked
	}
	if !a.IsApproved {
		return ErrAccountNotApproved
	}
	return nil
}

func (e *Engine) answerMatches(acct *store.Account, answer string) (bool, error) {
	normalized := normalizeAnswer(answer)
	if normalized == "" || acct.PasswordAnswerHash == "" {
		return false, nil
	}
	return e.hasher.Verify(normalized, acct.PasswordSalt, acct.PasswordAnswerHash)
}

// recordAnswerFailure counts a wrong answer against both the answer counter
// and the password lockout counter.
func (e *Engine) recordAnswerFailure(ctx context.Context, id string, now time.Time) error {
	var tripped bool
	updated, err := e.updateAccount(ctx, "record answer failure", id, func(a *store.Account) error {
		tripped = false
		a.FailedPasswordAnswerAttempts++
		a.LastFailedPasswordAnswerAttempt = now

		state := e.lockoutState(a)
		tripped = e.lockout.RecordFailure(&state, now)
		applyLockoutState(a, state)
		return nil
	})
	if err != nil {
		return err
	}
	if tripped {
		e.onLockedOut(ctx, updated, "password_answer")
	}
	return nil
}

func (e *Engine) resetPasswordLength() int {
	return max(resetPasswordMinLength, e.config.Membership.MinRequiredPasswordLength)
}

func (e *Engine) resetPasswordSpecials() int {
	return max(resetPasswordMinSpecial, e.config.Membership.MinRequiredNonAlphanumericCharacters)
}
