package goMembership

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/goMembership/internal/audit"
	"github.com/MrEthical07/goMembership/store"
)

// Audit event kinds emitted by the Engine.
const (
	AuditUserCreated              AuditKind = "user_created"
	AuditUserCreateRejected       AuditKind = "user_create_rejected"
	AuditUserValidated            AuditKind = "user_validated"
	AuditUserValidationFailed     AuditKind = "user_validation_failed"
	AuditUserLockedOut            AuditKind = "user_locked_out"
	AuditUserUnlocked             AuditKind = "user_unlocked"
	AuditPasswordChanged          AuditKind = "password_changed"
	AuditPasswordChangeFailed     AuditKind = "password_change_failed"
	AuditQuestionAndAnswerChanged AuditKind = "question_and_answer_changed"
	AuditPasswordReset            AuditKind = "password_reset"
	AuditPasswordResetFailed      AuditKind = "password_reset_failed"
	AuditUserUpdated              AuditKind = "user_updated"
	AuditUserDeleted              AuditKind = "user_deleted"
	AuditRoleCreated              AuditKind = "role_created"
	AuditRoleDeleted              AuditKind = "role_deleted"
	AuditUsersAddedToRoles        AuditKind = "users_added_to_roles"
	AuditUsersRemovedFromRoles    AuditKind = "users_removed_from_roles"
)

// AuditErrorCode is the stable failure classification written to AuditEvent.Reason.
type AuditErrorCode string

const (
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrAccountNotApproved AuditErrorCode = "account_not_approved"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrWrongAnswer        AuditErrorCode = "wrong_password_answer"
	auditErrInvalidArgument    AuditErrorCode = "invalid_argument"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrRolePopulated      AuditErrorCode = "role_populated"
	auditErrRoleNotFound       AuditErrorCode = "role_not_found"
	auditErrConflict           AuditErrorCode = "conflict"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

// emitAudit records one operation. decorate, when set, fills the
// operation-specific fields before the event is queued.
func (e *Engine) emitAudit(
	ctx context.Context,
	kind AuditKind,
	success bool,
	userID string,
	username string,
	err error,
	decorate func(*AuditEvent),
) {
	if e == nil || e.audit == nil {
		return
	}

	event := AuditEvent{
		Time:    e.now().UTC(),
		Kind:    kind,
		Outcome: internalaudit.OutcomeFailure,
		Subject: AuditSubject{
			Application: e.app(),
			UserID:      userID,
			Username:    username,
		},
		RemoteIP: clientIPFromContext(ctx),
		Reason:   string(auditErrorCode(err)),
	}
	if success {
		event.Outcome = internalaudit.OutcomeSuccess
	}
	if decorate != nil {
		decorate(&event)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrAccountNotApproved):
		return auditErrAccountNotApproved
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrWrongPasswordAnswer):
		return auditErrWrongAnswer
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, ErrQuestionAndAnswerRequired),
		errors.Is(err, ErrUsernameImmutable):
		return auditErrInvalidArgument
	case errors.Is(err, ErrRoleExists),
		errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, store.ErrDuplicateUsername),
		errors.Is(err, store.ErrDuplicateEmail):
		return auditErrDuplicate
	case errors.Is(err, ErrRolePopulated):
		return auditErrRolePopulated
	case errors.Is(err, ErrRoleNotFound):
		return auditErrRoleNotFound
	case errors.Is(err, store.ErrConflict):
		return auditErrConflict
	case errors.Is(err, store.ErrUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
