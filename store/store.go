package store

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// OnlineWindow is the activity recency that makes an account count as online.
const OnlineWindow = 20 * time.Minute

// maxRetries bounds optimistic update attempts before ErrConflict.
const maxRetries = 8

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicateUsername is returned when an insert collides on username.
	ErrDuplicateUsername = errors.New("duplicate username")
	// ErrDuplicateEmail is returned when an insert or update collides on email.
	ErrDuplicateEmail = errors.New("duplicate email")
	// ErrDuplicateRole is returned when a role id already exists.
	ErrDuplicateRole = errors.New("duplicate role")
	// ErrConflict is returned when an optimistic update keeps losing races.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrImmutableField is returned when a mutation changes an identity field.
	ErrImmutableField = errors.New("immutable account field changed")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("store backend unavailable")
	// ErrSkipUpdate may be returned by an UpdateAccount mutation to leave the
	// document untouched. UpdateAccount then returns the current document and nil.
	ErrSkipUpdate = errors.New("skip update")
)

// Account is the persisted user document.
type Account struct {
	ID              string `json:"id"`
	ApplicationName string `json:"application_name"`

	Username        string `json:"username"`
	LoweredUsername string `json:"lowered_username"`
	Email           string `json:"email"`
	LoweredEmail    string `json:"lowered_email"`
	FullName        string `json:"full_name,omitempty"`
	Comment         string `json:"comment,omitempty"`

	PasswordHash       string `json:"password_hash"`
	PasswordSalt       string `json:"password_salt"`
	PasswordQuestion   string `json:"password_question,omitempty"`
	PasswordAnswerHash string `json:"password_answer_hash,omitempty"`

	FailedPasswordAttempts          int       `json:"failed_password_attempts"`
	LastFailedPasswordAttempt       time.Time `json:"last_failed_password_attempt"`
	FailedPasswordAnswerAttempts    int       `json:"failed_password_answer_attempts"`
	LastFailedPasswordAnswerAttempt time.Time `json:"last_failed_password_answer_attempt"`

	IsApproved        bool      `json:"is_approved"`
	IsLockedOut       bool      `json:"is_locked_out"`
	LastLockedOutDate time.Time `json:"last_locked_out_date"`

	CreationDate            time.Time `json:"creation_date"`
	LastLoginDate           time.Time `json:"last_login_date"`
	LastActivityDate        time.Time `json:"last_activity_date"`
	LastPasswordChangedDate time.Time `json:"last_password_changed_date"`

	Roles []string `json:"roles,omitempty"`

	Version int64 `json:"version"`
}

// IsOnline reports whether the account showed activity within OnlineWindow of now.
func (a *Account) IsOnline(now time.Time) bool {
	if a == nil || a.LastActivityDate.IsZero() {
		return false
	}
	return now.Sub(a.LastActivityDate) < OnlineWindow
}

// HasRole reports whether roleID is in the account's role set.
func (a *Account) HasRole(roleID string) bool {
	if a == nil {
		return false
	}
	for _, r := range a.Roles {
		if r == roleID {
			return true
		}
	}
	return false
}

// AddRole inserts roleID into the role set, returning false when already present.
func (a *Account) AddRole(roleID string) bool {
	if a.HasRole(roleID) {
		return false
	}
	a.Roles = append(a.Roles, roleID)
	return true
}

// RemoveRole drops roleID from the role set, returning false when absent.
func (a *Account) RemoveRole(roleID string) bool {
	for i, r := range a.Roles {
		if r == roleID {
			a.Roles = append(a.Roles[:i], a.Roles[i+1:]...)
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Roles != nil {
		out.Roles = append([]string(nil), a.Roles...)
	}
	return &out
}

// Role is the persisted role document.
type Role struct {
	ID              string `json:"id"`
	ApplicationName string `json:"application_name"`
	Name            string `json:"name"`
	LoweredName     string `json:"lowered_name"`
}

// Store is the document persistence contract used by the membership engine.
// Usernames and emails passed to lookups are already normalized with NormalizeKey.
type Store interface {
	InsertAccount(ctx context.Context, acct *Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	FindAccountByUsername(ctx context.Context, app, loweredUsername string) (*Account, error)
	FindAccountByEmail(ctx context.Context, app, loweredEmail string) (*Account, error)
	// ListAccounts returns the accounts of app accepted by match (all when nil),
	// ordered by lowered username.
	ListAccounts(ctx context.Context, app string, match func(*Account) bool) ([]*Account, error)
	// UpdateAccount applies mutate to the freshest copy of the document and
	// persists it with compare-and-swap semantics, re-running mutate on conflict.
	UpdateAccount(ctx context.Context, id string, mutate func(*Account) error) (*Account, error)
	DeleteAccount(ctx context.Context, id string) error

	InsertRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	// ListRoles returns the roles of app ordered by lowered name.
	ListRoles(ctx context.Context, app string) ([]*Role, error)
	DeleteRole(ctx context.Context, id string) error

	Close() error
}

// NormalizeKey folds a username, email or role name to its comparison form.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// RoleID derives the deterministic role identifier for name within app. The
// application is path-escaped, so distinct applications never share an id.
func RoleID(app, name string) string {
	return "roles/" + url.PathEscape(app) + "/" + NormalizeKey(name)
}

func checkImmutable(before, after *Account) error {
	if before.ID != after.ID ||
		before.ApplicationName != after.ApplicationName ||
		before.LoweredUsername != after.LoweredUsername {
		return ErrImmutableField
	}
	return nil
}
