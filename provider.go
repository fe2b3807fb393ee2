package goMembership

import "context"

// MembershipProvider is the account half of the provider contract. Hosts that
// want to swap implementations depend on it instead of *Engine.
type MembershipProvider interface {
	ApplicationName() string

	CreateUser(ctx context.Context, req CreateUserRequest) (*User, CreateStatus, error)
	ValidateUser(ctx context.Context, username, password string) (bool, error)
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
	ChangePasswordQuestionAndAnswer(ctx context.Context, username, password, question, answer string) error
	ResetPassword(ctx context.Context, username, answer string) (string, error)
	GetPassword(ctx context.Context, username, answer string) (string, error)
	UnlockUser(ctx context.Context, username string) (bool, error)
	UpdateUser(ctx context.Context, user *User) error
	DeleteUser(ctx context.Context, username string, deleteAllRelatedData bool) (bool, error)

	GetUser(ctx context.Context, username string, userIsOnline bool) (*User, error)
	GetUserByKey(ctx context.Context, key string, userIsOnline bool) (*User, error)
	GetUserNameByEmail(ctx context.Context, email string) (string, error)
	FindUsersByName(ctx context.Context, usernameToMatch string, pageIndex, pageSize int) (UserPage, error)
	FindUsersByEmail(ctx context.Context, emailToMatch string, pageIndex, pageSize int) (UserPage, error)
	GetAllUsers(ctx context.Context, pageIndex, pageSize int) (UserPage, error)
	GetNumberOfUsersOnline(ctx context.Context) (int, error)
}

// RoleProvider is the role half of the provider contract.
type RoleProvider interface {
	ApplicationName() string

	CreateRole(ctx context.Context, roleName string) error
	DeleteRole(ctx context.Context, roleName string, throwOnPopulatedRole bool) (bool, error)
	RoleExists(ctx context.Context, roleName string) (bool, error)
	GetAllRoles(ctx context.Context) ([]string, error)

	AddUsersToRoles(ctx context.Context, usernames, roleNames []string) error
	RemoveUsersFromRoles(ctx context.Context, usernames, roleNames []string) error
	IsUserInRole(ctx context.Context, username, roleName string) (bool, error)
	GetRolesForUser(ctx context.Context, username string) ([]string, error)
	GetUsersInRole(ctx context.Context, roleName string) ([]string, error)
	FindUsersInRole(ctx context.Context, roleName, usernameToMatch string) ([]string, error)
}

var (
	_ MembershipProvider = (*Engine)(nil)
	_ RoleProvider       = (*Engine)(nil)
)
