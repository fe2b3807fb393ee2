package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

type accountModel struct {
	bun.BaseModel `bun:"table:membership_accounts,alias:acct"`

	ID              string `bun:"id,pk"`
	ApplicationName string `bun:"application_name,notnull"`

	Username        string `bun:"username,notnull"`
	LoweredUsername string `bun:"lowered_username,notnull"`
	Email           string `bun:"email"`
	LoweredEmail    string `bun:"lowered_email,nullzero"`
	FullName        string `bun:"full_name"`
	Comment         string `bun:"comment"`

	PasswordHash       string `bun:"password_hash,notnull"`
	PasswordSalt       string `bun:"password_salt,notnull"`
	PasswordQuestion   string `bun:"password_question"`
	PasswordAnswerHash string `bun:"password_answer_hash"`

	FailedPasswordAttempts          int       `bun:"failed_password_attempts,notnull"`
	LastFailedPasswordAttempt       time.Time `bun:"last_failed_password_attempt,nullzero"`
	FailedPasswordAnswerAttempts    int       `bun:"failed_password_answer_attempts,notnull"`
	LastFailedPasswordAnswerAttempt time.Time `bun:"last_failed_password_answer_attempt,nullzero"`

	IsApproved        bool      `bun:"is_approved,notnull"`
	IsLockedOut       bool      `bun:"is_locked_out,notnull"`
	LastLockedOutDate time.Time `bun:"last_locked_out_date,nullzero"`

	CreationDate            time.Time `bun:"creation_date,notnull"`
	LastLoginDate           time.Time `bun:"last_login_date,nullzero"`
	LastActivityDate        time.Time `bun:"last_activity_date,nullzero"`
	LastPasswordChangedDate time.Time `bun:"last_password_changed_date,nullzero"`

	Roles []string `bun:"roles,type:text"`

	Version int64 `bun:"version,notnull"`
}

type roleModel struct {
	bun.BaseModel `bun:"table:membership_roles,alias:role"`

	ID              string `bun:"id,pk"`
	ApplicationName string `bun:"application_name,notnull"`
	Name            string `bun:"name,notnull"`
	LoweredName     string `bun:"lowered_name,notnull"`
}

// SQLStore keeps account and role documents in relational tables through bun.
// It serves both the embedded sqlite file backend and remote postgres URLs.
//
// Account updates are optimistic: a row is only rewritten when its version
// column still matches the copy the mutation started from.
type SQLStore struct {
	db      *bun.DB
	closers []func() error
}

// NewSQLStore creates the tables and indexes when missing and returns the store.
// The caller keeps ownership of db.
func NewSQLStore(ctx context.Context, db *bun.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("bun db required")
	}
	s := &SQLStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) createSchema(ctx context.Context) error {
	if _, err := s.db.NewCreateTable().Model((*accountModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*accountModel)(nil)).
		Unique().
		IfNotExists().
		Index("uq_membership_accounts_username").
		Column("application_name", "lowered_username").
		Exec(ctx); err != nil {
		return fmt.Errorf("create username index: %w", err)
	}
	if _, err := s.db.NewCreateIndex().
		Model((*accountModel)(nil)).
		Unique().
		IfNotExists().
		Index("uq_membership_accounts_email").
		Column("application_name", "lowered_email").
		Exec(ctx); err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	if _, err := s.db.NewCreateTable().Model((*roleModel)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("create roles table: %w", err)
	}
	return nil
}

func (s *SQLStore) InsertAccount(ctx context.Context, acct *Account) error {
	if acct == nil || acct.ID == "" {
		return errors.New("account id required")
	}
	if err := s.checkDuplicates(ctx, acct); err != nil {
		return err
	}

	model := toAccountModel(acct)
	model.Version = 1
	if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			// Lost a race with a concurrent insert; report what collided.
			if dupErr := s.checkDuplicates(ctx, acct); dupErr != nil {
				return dupErr
			}
			return ErrDuplicateUsername
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	acct.Version = model.Version
	return nil
}

func (s *SQLStore) checkDuplicates(ctx context.Context, acct *Account) error {
	if acct.LoweredEmail != "" {
		if _, err := s.FindAccountByEmail(ctx, acct.ApplicationName, acct.LoweredEmail); err == nil {
			return ErrDuplicateEmail
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	if _, err := s.FindAccountByUsername(ctx, acct.ApplicationName, acct.LoweredUsername); err == nil {
		return ErrDuplicateUsername
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

func (s *SQLStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	return s.selectAccount(ctx, "id = ?", id)
}

func (s *SQLStore) FindAccountByUsername(ctx context.Context, app, loweredUsername string) (*Account, error) {
	return s.selectAccount(ctx, "application_name = ? AND lowered_username = ?", app, loweredUsername)
}

func (s *SQLStore) FindAccountByEmail(ctx context.Context, app, loweredEmail string) (*Account, error) {
	if loweredEmail == "" {
		return nil, ErrNotFound
	}
	return s.selectAccount(ctx, "application_name = ? AND lowered_email = ?", app, loweredEmail)
}

func (s *SQLStore) selectAccount(ctx context.Context, where string, args ...interface{}) (*Account, error) {
	var model accountModel
	err := s.db.NewSelect().
		Model(&model).
		Where(where, args...).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fromAccountModel(&model), nil
}

func (s *SQLStore) ListAccounts(ctx context.Context, app string, match func(*Account) bool) ([]*Account, error) {
	var models []accountModel
	err := s.db.NewSelect().
		Model(&models).
		Where("application_name = ?", app).
		Order("lowered_username ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]*Account, 0, len(models))
	for i := range models {
		acct := fromAccountModel(&models[i])
		if match == nil || match(acct) {
			out = append(out, acct)
		}
	}
	return out, nil
}

func (s *SQLStore) UpdateAccount(ctx context.Context, id string, mutate func(*Account) error) (*Account, error) {
	for i := 0; i < maxRetries; i++ {
		current, err := s.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}

		next := current.Clone()
		if err := mutate(next); err != nil {
			if errors.Is(err, ErrSkipUpdate) {
				return current, nil
			}
			return nil, err
		}
		if err := checkImmutable(current, next); err != nil {
			return nil, err
		}
		if next.LoweredEmail != current.LoweredEmail && next.LoweredEmail != "" {
			owner, err := s.FindAccountByEmail(ctx, next.ApplicationName, next.LoweredEmail)
			if err == nil && owner.ID != id {
				return nil, ErrDuplicateEmail
			}
			if err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
		}

		next.Version = current.Version + 1
		res, err := s.db.NewUpdate().
			Model(toAccountModel(next)).
			WherePK().
			Where("version = ?", current.Version).
			Exec(ctx)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, ErrDuplicateEmail
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if n == 0 {
			continue
		}
		return next, nil
	}

	return nil, ErrConflict
}

func (s *SQLStore) DeleteAccount(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().
		Model((*accountModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) InsertRole(ctx context.Context, role *Role) error {
	if role == nil || role.ID == "" {
		return errors.New("role id required")
	}
	model := &roleModel{
		ID:              role.ID,
		ApplicationName: role.ApplicationName,
		Name:            role.Name,
		LoweredName:     role.LoweredName,
	}
	if _, err := s.db.NewInsert().Model(model).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateRole
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLStore) GetRole(ctx context.Context, id string) (*Role, error) {
	var model roleModel
	err := s.db.NewSelect().
		Model(&model).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fromRoleModel(&model), nil
}

func (s *SQLStore) ListRoles(ctx context.Context, app string) ([]*Role, error) {
	var models []roleModel
	err := s.db.NewSelect().
		Model(&models).
		Where("application_name = ?", app).
		Order("lowered_name ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := make([]*Role, 0, len(models))
	for i := range models {
		out = append(out, fromRoleModel(&models[i]))
	}
	return out, nil
}

func (s *SQLStore) DeleteRole(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().
		Model((*roleModel)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close releases resources the store opened itself. An injected bun.DB stays open.
func (s *SQLStore) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toAccountModel(a *Account) *accountModel {
	return &accountModel{
		ID:                              a.ID,
		ApplicationName:                 a.ApplicationName,
		Username:                        a.Username,
		LoweredUsername:                 a.LoweredUsername,
		Email:                           a.Email,
		LoweredEmail:                    a.LoweredEmail,
		FullName:                        a.FullName,
		Comment:                         a.Comment,
		PasswordHash:                    a.PasswordHash,
		PasswordSalt:                    a.PasswordSalt,
		PasswordQuestion:                a.PasswordQuestion,
		PasswordAnswerHash:              a.PasswordAnswerHash,
		FailedPasswordAttempts:          a.FailedPasswordAttempts,
		LastFailedPasswordAttempt:       a.LastFailedPasswordAttempt,
		FailedPasswordAnswerAttempts:    a.FailedPasswordAnswerAttempts,
		LastFailedPasswordAnswerAttempt: a.LastFailedPasswordAnswerAttempt,
		IsApproved:                      a.IsApproved,
		IsLockedOut:                     a.IsLockedOut,
		LastLockedOutDate:               a.LastLockedOutDate,
		CreationDate:                    a.CreationDate,
		LastLoginDate:                   a.LastLoginDate,
		LastActivityDate:                a.LastActivityDate,
		LastPasswordChangedDate:         a.LastPasswordChangedDate,
		Roles:                           append([]string{}, a.Roles...),
		Version:                         a.Version,
	}
}

func fromAccountModel(m *accountModel) *Account {
	a := &Account{
		ID:                              m.ID,
		ApplicationName:                 m.ApplicationName,
		Username:                        m.Username,
		LoweredUsername:                 m.LoweredUsername,
		Email:                           m.Email,
		LoweredEmail:                    m.LoweredEmail,
		FullName:                        m.FullName,
		Comment:                         m.Comment,
		PasswordHash:                    m.PasswordHash,
		PasswordSalt:                    m.PasswordSalt,
		PasswordQuestion:                m.PasswordQuestion,
		PasswordAnswerHash:              m.PasswordAnswerHash,
		FailedPasswordAttempts:          m.FailedPasswordAttempts,
		LastFailedPasswordAttempt:       m.LastFailedPasswordAttempt,
		FailedPasswordAnswerAttempts:    m.FailedPasswordAnswerAttempts,
		LastFailedPasswordAnswerAttempt: m.LastFailedPasswordAnswerAttempt,
		IsApproved:                      m.IsApproved,
		IsLockedOut:                     m.IsLockedOut,
		LastLockedOutDate:               m.LastLockedOutDate,
		CreationDate:                    m.CreationDate,
		LastLoginDate:                   m.LastLoginDate,
		LastActivityDate:                m.LastActivityDate,
		LastPasswordChangedDate:         m.LastPasswordChangedDate,
		Version:                         m.Version,
	}
	if len(m.Roles) > 0 {
		a.Roles = append([]string(nil), m.Roles...)
	}
	return a
}

func fromRoleModel(m *roleModel) *Role {
	return &Role{
		ID:              m.ID,
		ApplicationName: m.ApplicationName,
		Name:            m.Name,
		LoweredName:     m.LoweredName,
	}
}
