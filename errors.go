package goMembership

import (
	"errors"

	"github.com/MrEthical07/goMembership/password"
)

var (
	// ErrUserNotFound is returned when no account matches the username, key or email.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when a username/password pair does not validate.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned when an operation needs an unlocked account. It wraps ErrUserNotFound.
	ErrAccountLocked = wrapNotFound("account locked")
	// ErrAccountNotApproved is returned when an operation needs an approved account. It wraps ErrUserNotFound.
	ErrAccountNotApproved = wrapNotFound("account not approved")
	// ErrInvalidArgument is returned for empty or malformed usernames and role names.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrPasswordPolicy is returned when a new password fails the strength policy.
	ErrPasswordPolicy = password.ErrPolicyViolation
	// ErrQuestionAndAnswerRequired is returned when a password answer is required but missing.
	ErrQuestionAndAnswerRequired = errors.New("password question and answer required")
	// ErrPasswordResetDisabled is returned by ResetPassword when resets are not enabled.
	ErrPasswordResetDisabled = errors.New("password reset disabled")
	// ErrWrongPasswordAnswer is returned when the supplied password answer does not match.
	ErrWrongPasswordAnswer = errors.New("wrong password answer")
	// ErrNotSupported is returned by operations the provider never implements.
	ErrNotSupported = errors.New("operation not supported")
	// ErrRoleExists is returned when creating a role that already exists.
	ErrRoleExists = errors.New("role already exists")
	// ErrRoleNotFound is returned when a named role does not exist.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRolePopulated is returned when deleting a role that still has members.
	ErrRolePopulated = errors.New("role has members")
	// ErrUsernameImmutable is returned when UpdateUser tries to change a username.
	ErrUsernameImmutable = errors.New("username cannot be changed")
	// ErrDuplicateEmail is returned when UpdateUser moves an account onto an email in use.
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrEngineNotReady is returned when an Engine method runs on a nil or closed engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

type notFoundError struct {
	msg string
}

func wrapNotFound(msg string) error {
	return &notFoundError{msg: msg}
}

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Unwrap() error { return ErrUserNotFound }
