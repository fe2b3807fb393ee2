package goMembership

import (
	"io"
	"time"

	internalaudit "github.com/MrEthical07/goMembership/internal/audit"
	"github.com/MrEthical07/goMembership/store"
)

// CreateStatus is the soft outcome of CreateUser. Callers branch on it; only
// contract violations and store failures are returned as errors.
type CreateStatus uint8

const (
	// StatusSuccess means the account was created.
	StatusSuccess CreateStatus = iota
	// StatusInvalidUserName means the username was empty or contained a comma.
	StatusInvalidUserName
	// StatusInvalidPassword means the password failed the strength policy.
	StatusInvalidPassword
	// StatusInvalidEmail means the email was not a well-formed address.
	StatusInvalidEmail
	// StatusDuplicateUserName means the username is taken in the application.
	StatusDuplicateUserName
	// StatusDuplicateEmail means the email is taken in the application.
	StatusDuplicateEmail
	// StatusInvalidProviderUserKey means the supplied key is not a UUID.
	StatusInvalidProviderUserKey
	// StatusDuplicateProviderUserKey means the supplied key already identifies an account.
	StatusDuplicateProviderUserKey
)

func (s CreateStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusInvalidUserName:
		return "invalid_username"
	case StatusInvalidPassword:
		return "invalid_password"
	case StatusInvalidEmail:
		return "invalid_email"
	case StatusDuplicateUserName:
		return "duplicate_username"
	case StatusDuplicateEmail:
		return "duplicate_email"
	case StatusInvalidProviderUserKey:
		return "invalid_provider_user_key"
	case StatusDuplicateProviderUserKey:
		return "duplicate_provider_user_key"
	default:
		return "unknown"
	}
}

// CreateUserRequest carries the CreateUser inputs.
type CreateUserRequest struct {
	Username         string
	Password         string
	Email            string
	PasswordQuestion string
	PasswordAnswer   string
	IsApproved       bool
	// ProviderUserKey, when set, becomes the account ID. It must be a UUID.
	ProviderUserKey string
	FullName        string
	Comment         string
}

// User is the public projection of an account. It never carries hashes, salts
// or answers.
type User struct {
	ProviderUserKey         string
	ApplicationName         string
	Username                string
	Email                   string
	FullName                string
	Comment                 string
	PasswordQuestion        string
	IsApproved              bool
	IsLockedOut             bool
	IsOnline                bool
	CreationDate            time.Time
	LastLoginDate           time.Time
	LastActivityDate        time.Time
	LastPasswordChangedDate time.Time
	LastLockedOutDate       time.Time
}

// UserPage is one page of a user search. TotalRecords counts every match, not
// just the returned page.
type UserPage struct {
	Users        []*User
	TotalRecords int
}

func projectUser(a *store.Account, now time.Time) *User {
	if a == nil {
		return nil
	}
	return &User{
		ProviderUserKey:         a.ID,
		ApplicationName:         a.ApplicationName,
		Username:                a.Username,
		Email:                   a.Email,
		FullName:                a.FullName,
		Comment:                 a.Comment,
		PasswordQuestion:        a.PasswordQuestion,
		IsApproved:              a.IsApproved,
		IsLockedOut:             a.IsLockedOut,
		IsOnline:                a.IsOnline(now),
		CreationDate:            a.CreationDate,
		LastLoginDate:           a.LastLoginDate,
		LastActivityDate:        a.LastActivityDate,
		LastPasswordChangedDate: a.LastPasswordChangedDate,
		LastLockedOutDate:       a.LastLockedOutDate,
	}
}

// AuditEvent is the structured record emitted for membership operations.
type AuditEvent = internalaudit.Event

// AuditKind names the operation an AuditEvent records.
type AuditKind = internalaudit.Kind

// AuditSubject identifies the account an AuditEvent is about.
type AuditSubject = internalaudit.Subject

// AuditSink receives audit events from the Engine's dispatcher.
type AuditSink = internalaudit.Sink

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc = internalaudit.SinkFunc

// ChannelSink delivers audit events into a buffered channel.
type ChannelSink = internalaudit.ChannelSink

// JSONLinesSink writes audit events as JSON lines.
type JSONLinesSink = internalaudit.JSONLinesSink

// NewChannelSink returns a ChannelSink with the given buffer size.
func NewChannelSink(size int) *ChannelSink {
	return internalaudit.NewChannelSink(size)
}

// NewJSONLinesSink returns a sink that writes one JSON object per line to w.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return internalaudit.NewJSONLinesSink(w)
}

// AuditFailuresOnly wraps sink so that it only receives failed operations.
func AuditFailuresOnly(sink AuditSink) AuditSink {
	return internalaudit.Filter(sink, internalaudit.Failures)
}
