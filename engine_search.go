package goMembership

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/goMembership/store"
)

// FindUsersByName returns one page of users whose username contains
// usernameToMatch, case-insensitively, ordered by lowered username.
//
// FindUsersByName returns ErrInvalidArgument for a negative pageIndex or a
// pageSize below one.
func (e *Engine) FindUsersByName(ctx context.Context, usernameToMatch string, pageIndex, pageSize int) (UserPage, error) {
	term := store.NormalizeKey(usernameToMatch)
	return e.searchUsers(ctx, "find users by name", pageIndex, pageSize, func(a *store.Account) bool {
		return strings.Contains(a.LoweredUsername, term)
	})
}

// FindUsersByEmail returns one page of users whose email contains
// emailToMatch, case-insensitively. Pagination follows FindUsersByName.
func (e *Engine) FindUsersByEmail(ctx context.Context, emailToMatch string, pageIndex, pageSize int) (UserPage, error) {
	term := store.NormalizeKey(emailToMatch)
	return e.searchUsers(ctx, "find users by email", pageIndex, pageSize, func(a *store.Account) bool {
		return a.LoweredEmail != "" && strings.Contains(a.LoweredEmail, term)
	})
}

// GetAllUsers returns one page of every user in the application.
func (e *Engine) GetAllUsers(ctx context.Context, pageIndex, pageSize int) (UserPage, error) {
	return e.searchUsers(ctx, "get all users", pageIndex, pageSize, nil)
}

// GetNumberOfUsersOnline counts the accounts whose last activity falls inside
// the online window.
func (e *Engine) GetNumberOfUsersOnline(ctx context.Context) (int, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	now := e.now()
	accounts, err := e.store.ListAccounts(ctx, e.app(), func(a *store.Account) bool {
		return a.IsOnline(now)
	})
	if err != nil {
		return 0, e.storeErr("get number of users online", err)
	}
	return len(accounts), nil
}

func (e *Engine) searchUsers(ctx context.Context, op string, pageIndex, pageSize int, match func(*store.Account) bool) (UserPage, error) {
	if err := e.ready(); err != nil {
		return UserPage{}, err
	}
	if pageIndex < 0 {
		return UserPage{}, fmt.Errorf("%w: page index must be >= 0", ErrInvalidArgument)
	}
	if pageSize < 1 {
		return UserPage{}, fmt.Errorf("%w: page size must be >= 1", ErrInvalidArgument)
	}

	accounts, err := e.store.ListAccounts(ctx, e.app(), match)
	if err != nil {
		return UserPage{}, e.storeErr(op, err)
	}

	page := UserPage{
		Users:        []*User{},
		TotalRecords: len(accounts),
	}

	start := pageIndex * pageSize
	if start >= len(accounts) || start < 0 {
		return page, nil
	}
	end := min(start+pageSize, len(accounts))

	now := e.now()
	page.Users = make([]*User, 0, end-start)
	for _, a := range accounts[start:end] {
		page.Users = append(page.Users, projectUser(a, now))
	}
	return page, nil
}
