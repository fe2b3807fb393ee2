package goMembership

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"

	"github.com/MrEthical07/goMembership/store"
)

// CreateUser describes the create user operation and its observable behavior.
//
// Expected rejections (bad username, email or password, duplicates) are reported
// through the returned CreateStatus with a nil error and nothing written.
// CreateUser returns ErrQuestionAndAnswerRequired when resets need an answer and
// none was given, and a wrapped store error when persistence fails.
func (e *Engine) CreateUser(ctx context.Context, req CreateUserRequest) (*User, CreateStatus, error) {
	if err := e.ready(); err != nil {
		return nil, StatusSuccess, err
	}

	status, err := e.checkCreateRequest(ctx, req)
	if err != nil {
		return nil, status, err
	}
	if status != StatusSuccess {
		e.rejectCreate(ctx, req, status)
		return nil, status, nil
	}

	acct, err := e.newAccount(req)
	if err != nil {
		return nil, StatusSuccess, e.storeErr("create user", err)
	}

	if err := e.store.InsertAccount(ctx, acct); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			e.rejectCreate(ctx, req, StatusDuplicateEmail)
			return nil, StatusDuplicateEmail, nil
		case errors.Is(err, store.ErrDuplicateUsername):
			e.rejectCreate(ctx, req, StatusDuplicateUserName)
			return nil, StatusDuplicateUserName, nil
		default:
			return nil, StatusSuccess, e.storeErr("create user", err)
		}
	}

	e.metricInc(MetricUserCreated)
	e.logger.Debug("membership user created",
		slog.String("application", acct.ApplicationName),
		slog.String("username", acct.Username),
	)
	e.emitAudit(ctx, AuditUserCreated, true, acct.ID, acct.Username, nil, nil)

	return projectUser(acct, e.now()), StatusSuccess, nil
}

func (e *Engine) checkCreateRequest(ctx context.Context, req CreateUserRequest) (CreateStatus, error) {
	if !validName(req.Username) {
		return StatusInvalidUserName, nil
	}
	if err := validation.Validate(strings.TrimSpace(req.Email), is.Email); err != nil {
		return StatusInvalidEmail, nil
	}
	if err := e.policy.Validate(req.Password); err != nil {
		return StatusInvalidPassword, nil
	}

	m := e.config.Membership
	if m.EnablePasswordReset && m.RequiresQuestionAndAnswer && strings.TrimSpace(req.PasswordAnswer) == "" {
		return StatusSuccess, ErrQuestionAndAnswerRequired
	}

	if req.ProviderUserKey != "" {
		if _, err := uuid.Parse(req.ProviderUserKey); err != nil {
			return StatusInvalidProviderUserKey, nil
		}
		_, err := e.store.GetAccount(ctx, req.ProviderUserKey)
		switch {
		case err == nil:
			return StatusDuplicateProviderUserKey, nil
		case !errors.Is(err, store.ErrNotFound):
			return StatusSuccess, e.storeErr("create user", err)
		}
	}

	if email := store.NormalizeKey(req.Email); email != "" {
		_, err := e.store.FindAccountByEmail(ctx, e.app(), email)
		switch {
		case err == nil:
			return StatusDuplicateEmail, nil
		case !errors.Is(err, store.ErrNotFound):
			return StatusSuccess, e.storeErr("create user", err)
		}
	}

	_, err := e.store.FindAccountByUsername(ctx, e.app(), store.NormalizeKey(req.Username))
	switch {
	case err == nil:
		return StatusDuplicateUserName, nil
	case !errors.Is(err, store.ErrNotFound):
		return StatusSuccess, e.storeErr("create user", err)
	}

	return StatusSuccess, nil
}

func (e *Engine) newAccount(req CreateUserRequest) (*store.Account, error) {
	salt, err := e.hasher.GenerateSalt()
	if err != nil {
		return nil, err
	}
	hash, err := e.hasher.Hash(req.Password, salt)
	if err != nil {
		return nil, err
	}

	var answerHash string
	if answer := normalizeAnswer(req.PasswordAnswer); answer != "" {
		answerHash, err = e.hasher.Hash(answer, salt)
		if err != nil {
			return nil, err
		}
	}

	id := req.ProviderUserKey
	if id == "" {
		id = uuid.NewString()
	}

	now := e.now().UTC()
	return &store.Account{
		ID:                      id,
		ApplicationName:         e.app(),
		Username:                strings.TrimSpace(req.Username),
		LoweredUsername:         store.NormalizeKey(req.Username),
		Email:                   strings.TrimSpace(req.Email),
		LoweredEmail:            store.NormalizeKey(req.Email),
		FullName:                req.FullName,
		Comment:                 req.Comment,
		PasswordHash:            hash,
		PasswordSalt:            salt,
		PasswordQuestion:        req.PasswordQuestion,
		PasswordAnswerHash:      answerHash,
		IsApproved:              req.IsApproved,
		CreationDate:            now,
		LastActivityDate:        now,
		LastPasswordChangedDate: now,
	}, nil
}

func (e *Engine) rejectCreate(ctx context.Context, req CreateUserRequest, status CreateStatus) {
	if status == StatusDuplicateEmail || status == StatusDuplicateUserName || status == StatusDuplicateProviderUserKey {
		e.metricInc(MetricUserCreateDuplicate)
	} else {
		e.metricInc(MetricUserCreateRejected)
	}
	e.emitAudit(ctx, AuditUserCreateRejected, false, "", req.Username, nil, func(ev *AuditEvent) {
		ev.Reason = status.String()
	})
}

// Answers compare case-insensitively.
func normalizeAnswer(answer string) string {
	return strings.ToLower(strings.TrimSpace(answer))
}
