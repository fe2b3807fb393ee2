package goMembership

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goMembership/store"
)

// ChangePassword describes the change password operation and its observable behavior.
//
// The new password is checked against the policy first (ErrPasswordPolicy).
// The old password is then validated exactly as ValidateUser does, so a wrong
// old password counts toward lockout and yields ErrInvalidCredentials. The new
// password is hashed with the account's existing salt.
func (e *Engine) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}

	if err := e.policy.Validate(newPassword); err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, AuditPasswordChangeFailed, false, "", username, err, nil)
		return err
	}

	acct, err := e.authenticate(ctx, "change password", username, oldPassword)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		e.emitAudit(ctx, AuditPasswordChangeFailed, false, "", username, err, nil)
		return err
	}

	hash, err := e.hasher.Hash(newPassword, acct.PasswordSalt)
	if err != nil {
		return e.storeErr("change password", err)
	}

	now := e.now().UTC()
	if _, err := e.updateAccount(ctx, "change password", acct.ID, func(a *store.Account) error {
		a.PasswordHash = hash
		a.LastPasswordChangedDate = now
		return nil
	}); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChanged)
	e.emitAudit(ctx, AuditPasswordChanged, true, acct.ID, acct.Username, nil, nil)
	return nil
}

// ChangePasswordQuestionAndAnswer describes the change password question and answer operation and its observable behavior.
//
// The password is validated as in ChangePassword. The question is stored
// verbatim and the answer is lower-cased and hashed with the account's salt.
func (e *Engine) ChangePasswordQuestionAndAnswer(ctx context.Context, username, pw, question, answer string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}

	m := e.config.Membership
	if m.EnablePasswordReset && m.RequiresQuestionAndAnswer && normalizeAnswer(answer) == "" {
		return ErrQuestionAndAnswerRequired
	}

	acct, err := e.authenticate(ctx, "change password question and answer", username, pw)
	if err != nil {
		return err
	}

	var answerHash string
	if normalized := normalizeAnswer(answer); normalized != "" {
		answerHash, err = e.hasher.Hash(normalized, acct.PasswordSalt)
		if err != nil {
			return e.storeErr("change password question and answer", err)
		}
	}

	if _, err := e.updateAccount(ctx, "change password question and answer", acct.ID, func(a *store.Account) error {
		a.PasswordQuestion = question
		a.PasswordAnswerHash = answerHash
		return nil
	}); err != nil {
		return err
	}

	e.metricInc(MetricQuestionAndAnswerChanged)
	e.logger.Debug("membership password question changed", slog.String("username", acct.Username))
	e.emitAudit(ctx, AuditQuestionAndAnswerChanged, true, acct.ID, acct.Username, nil, nil)
	return nil
}

// authenticate is the ValidateUser check for operations that need a verified
// caller. Every rejection is reported as ErrInvalidCredentials.
func (e *Engine) authenticate(ctx context.Context, op, username, pw string) (*store.Account, error) {
	if pw == "" {
		return nil, ErrInvalidCredentials
	}

	acct, err := e.findAccount(ctx, op, username)
	if err != nil {
		if isCredentialError(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	updated, err := e.checkPassword(ctx, acct, pw)
	if err != nil {
		if isCredentialError(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	return updated, nil
}
