package goMembership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/MrEthical07/goMembership/store"
)

// CreateRole adds roleName to the application.
//
// CreateRole returns ErrInvalidArgument for an empty name or one containing a
// comma, and ErrRoleExists when the role is already defined.
func (e *Engine) CreateRole(ctx context.Context, roleName string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if !validName(roleName) {
		return fmt.Errorf("%w: role name %q", ErrInvalidArgument, roleName)
	}

	name := strings.TrimSpace(roleName)
	role := &store.Role{
		ID:              store.RoleID(e.app(), name),
		ApplicationName: e.app(),
		Name:            name,
		LoweredName:     store.NormalizeKey(name),
	}
	if err := e.store.InsertRole(ctx, role); err != nil {
		if errors.Is(err, store.ErrDuplicateRole) {
			return ErrRoleExists
		}
		return e.storeErr("create role", err)
	}

	e.metricInc(MetricRoleCreated)
	e.emitAudit(ctx, AuditRoleCreated, true, "", "", nil, func(ev *AuditEvent) {
		ev.Roles = []string{name}
	})
	return nil
}

// DeleteRole removes roleName from the application.
//
// It returns false when the role does not exist. When it has members
// and throwOnPopulatedRole is true it returns ErrRolePopulated and changes
// nothing; otherwise the role is stripped from every member and deleted.
func (e *Engine) DeleteRole(ctx context.Context, roleName string, throwOnPopulatedRole bool) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if roleName == "" {
		return false, fmt.Errorf("%w: role name is required", ErrInvalidArgument)
	}

	role, err := e.findRole(ctx, "delete role", roleName)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			return false, nil
		}
		return false, err
	}

	members, err := e.roleMembers(ctx, "delete role", role.ID, nil)
	if err != nil {
		return false, err
	}
	if len(members) > 0 && throwOnPopulatedRole {
		return false, ErrRolePopulated
	}

	for _, member := range members {
		if err := e.rewriteRoles(ctx, "delete role", member.ID, func(a *store.Account) bool {
			return a.RemoveRole(role.ID)
		}); err != nil && !errors.Is(err, ErrUserNotFound) {
			return false, err
		}
	}

	if err := e.store.DeleteRole(ctx, role.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, e.storeErr("delete role", err)
	}

	e.metricInc(MetricRoleDeleted)
	e.logger.Info("membership role deleted",
		slog.String("application", e.app()),
		slog.String("role", role.Name),
		slog.Int("members", len(members)),
	)
	e.emitAudit(ctx, AuditRoleDeleted, true, "", "", nil, func(ev *AuditEvent) {
		ev.Roles = []string{role.Name}
		ev.Detail = map[string]string{"members": fmt.Sprint(len(members))}
	})
	return true, nil
}

// RoleExists reports whether roleName is defined in the application.
func (e *Engine) RoleExists(ctx context.Context, roleName string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if roleName == "" {
		return false, fmt.Errorf("%w: role name is required", ErrInvalidArgument)
	}

	_, err := e.findRole(ctx, "role exists", roleName)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrRoleNotFound):
		return false, nil
	default:
		return false, err
	}
}

// GetAllRoles returns every role name in the application, ordered case-insensitively.
func (e *Engine) GetAllRoles(ctx context.Context) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	roles, err := e.store.ListRoles(ctx, e.app())
	if err != nil {
		return nil, e.storeErr("get all roles", err)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names, nil
}

// AddUsersToRoles adds every resolvable user to every resolvable role.
//
// Unknown users and roles are skipped and existing memberships are kept as is.
// Empty names return ErrInvalidArgument before any write.
func (e *Engine) AddUsersToRoles(ctx context.Context, usernames, roleNames []string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(usernames) == 0 || len(roleNames) == 0 {
		return nil
	}
	if err := requireNames(usernames, roleNames); err != nil {
		return err
	}

	roleIDs, err := e.resolveRoles(ctx, "add users to roles", roleNames, false)
	if err != nil || len(roleIDs) == 0 {
		return err
	}
	accounts, err := e.resolveUsers(ctx, "add users to roles", usernames, false)
	if err != nil {
		return err
	}

	for _, acct := range accounts {
		err := e.rewriteRoles(ctx, "add users to roles", acct.ID, func(a *store.Account) bool {
			added := false
			for _, id := range roleIDs {
				if a.AddRole(id) {
					added = true
				}
			}
			return added
		})
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			return err
		}
	}

	e.emitAudit(ctx, AuditUsersAddedToRoles, true, "", "", nil, func(ev *AuditEvent) {
		ev.Users = slices.Clone(usernames)
		ev.Roles = slices.Clone(roleNames)
	})
	return nil
}

// RemoveUsersFromRoles removes every named user from every named role.
//
// Every user and role must exist: ErrUserNotFound or ErrRoleNotFound is
// returned before any write otherwise. Users that are not members of a role
// are left unchanged.
func (e *Engine) RemoveUsersFromRoles(ctx context.Context, usernames, roleNames []string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if len(usernames) == 0 || len(roleNames) == 0 {
		return nil
	}
	if err := requireNames(usernames, roleNames); err != nil {
		return err
	}

	roleIDs, err := e.resolveRoles(ctx, "remove users from roles", roleNames, true)
	if err != nil {
		return err
	}
	accounts, err := e.resolveUsers(ctx, "remove users from roles", usernames, true)
	if err != nil {
		return err
	}

	for _, acct := range accounts {
		if err := e.rewriteRoles(ctx, "remove users from roles", acct.ID, func(a *store.Account) bool {
			removed := false
			for _, id := range roleIDs {
				if a.RemoveRole(id) {
					removed = true
				}
			}
			return removed
		}); err != nil {
			return err
		}
	}

	e.emitAudit(ctx, AuditUsersRemovedFromRoles, true, "", "", nil, func(ev *AuditEvent) {
		ev.Users = slices.Clone(usernames)
		ev.Roles = slices.Clone(roleNames)
	})
	return nil
}

// IsUserInRole reports whether username is a member of roleName.
//
// IsUserInRole returns ErrInvalidArgument for empty arguments, and
// ErrUserNotFound or ErrRoleNotFound when either does not exist.
func (e *Engine) IsUserInRole(ctx context.Context, username, roleName string) (bool, error) {
	if err := e.ready(); err != nil {
		return false, err
	}
	if username == "" || roleName == "" {
		return false, fmt.Errorf("%w: username and role name are required", ErrInvalidArgument)
	}

	acct, err := e.findAccount(ctx, "is user in role", username)
	if err != nil {
		return false, err
	}
	role, err := e.findRole(ctx, "is user in role", roleName)
	if err != nil {
		return false, err
	}
	return acct.HasRole(role.ID), nil
}

// GetRolesForUser returns the names of the roles username belongs to.
func (e *Engine) GetRolesForUser(ctx context.Context, username string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidArgument)
	}

	acct, err := e.findAccount(ctx, "get roles for user", username)
	if err != nil {
		return nil, err
	}
	names := []string{}
	if len(acct.Roles) == 0 {
		return names, nil
	}

	roles, err := e.store.ListRoles(ctx, e.app())
	if err != nil {
		return nil, e.storeErr("get roles for user", err)
	}
	for _, r := range roles {
		// Ids left behind by a concurrently deleted role are not reported.
		if acct.HasRole(r.ID) {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

// GetUsersInRole returns the usernames that belong to roleName.
//
// GetUsersInRole returns ErrRoleNotFound when the role does not exist.
func (e *Engine) GetUsersInRole(ctx context.Context, roleName string) ([]string, error) {
	return e.usersInRole(ctx, "get users in role", roleName, "")
}

// FindUsersInRole returns the usernames in roleName that start with
// usernameToMatch, compared case-insensitively.
func (e *Engine) FindUsersInRole(ctx context.Context, roleName, usernameToMatch string) ([]string, error) {
	return e.usersInRole(ctx, "find users in role", roleName, usernameToMatch)
}

func (e *Engine) usersInRole(ctx context.Context, op, roleName, prefix string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if roleName == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidArgument)
	}

	role, err := e.findRole(ctx, op, roleName)
	if err != nil {
		return nil, err
	}

	prefix = store.NormalizeKey(prefix)
	members, err := e.roleMembers(ctx, op, role.ID, func(a *store.Account) bool {
		return strings.HasPrefix(a.LoweredUsername, prefix)
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(members))
	for _, a := range members {
		names = append(names, a.Username)
	}
	return names, nil
}

func (e *Engine) findRole(ctx context.Context, op, roleName string) (*store.Role, error) {
	role, err := e.store.GetRole(ctx, store.RoleID(e.app(), roleName))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, e.storeErr(op, err)
	}
	if role.ApplicationName != e.app() {
		return nil, ErrRoleNotFound
	}
	return role, nil
}

func (e *Engine) roleMembers(ctx context.Context, op, roleID string, also func(*store.Account) bool) ([]*store.Account, error) {
	members, err := e.store.ListAccounts(ctx, e.app(), func(a *store.Account) bool {
		return a.HasRole(roleID) && (also == nil || also(a))
	})
	if err != nil {
		return nil, e.storeErr(op, err)
	}
	return members, nil
}

// resolveRoles maps role names to ids. With strict set an unknown name fails
// the whole call; otherwise it is skipped. Duplicate names collapse.
func (e *Engine) resolveRoles(ctx context.Context, op string, roleNames []string, strict bool) ([]string, error) {
	seen := make(map[string]struct{}, len(roleNames))
	ids := make([]string, 0, len(roleNames))
	for _, name := range roleNames {
		role, err := e.findRole(ctx, op, name)
		if err != nil {
			if errors.Is(err, ErrRoleNotFound) && !strict {
				continue
			}
			if errors.Is(err, ErrRoleNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, name)
			}
			return nil, err
		}
		if _, dup := seen[role.ID]; dup {
			continue
		}
		seen[role.ID] = struct{}{}
		ids = append(ids, role.ID)
	}
	return ids, nil
}

func (e *Engine) resolveUsers(ctx context.Context, op string, usernames []string, strict bool) ([]*store.Account, error) {
	seen := make(map[string]struct{}, len(usernames))
	accounts := make([]*store.Account, 0, len(usernames))
	for _, name := range usernames {
		acct, err := e.findAccount(ctx, op, name)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) && !strict {
				continue
			}
			if errors.Is(err, ErrUserNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUserNotFound, name)
			}
			return nil, err
		}
		if _, dup := seen[acct.ID]; dup {
			continue
		}
		seen[acct.ID] = struct{}{}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// rewriteRoles applies change to the account's role set, skipping the write
// when change reports no difference.
func (e *Engine) rewriteRoles(ctx context.Context, op, id string, change func(*store.Account) bool) error {
	var changed bool
	_, err := e.updateAccount(ctx, op, id, func(a *store.Account) error {
		changed = change(a)
		if !changed {
			return store.ErrSkipUpdate
		}
		return nil
	})
	if err == nil && changed {
		e.metricInc(MetricRoleMembershipChanged)
	}
	return err
}

func requireNames(usernames, roleNames []string) error {
	for _, n := range usernames {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("%w: usernames must not be empty", ErrInvalidArgument)
		}
	}
	for _, n := range roleNames {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("%w: role names must not be empty", ErrInvalidArgument)
		}
	}
	return nil
}
