package goMembership

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func mustCreateRole(t *testing.T, e *Engine, name string) {
	t.Helper()
	if err := e.CreateRole(context.Background(), name); err != nil {
		t.Fatalf("CreateRole(%s): %v", name, err)
	}
}

func TestCreateRole(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	mustCreateRole(t, engine, "Admins")

	if err := engine.CreateRole(ctx, "admins"); !errors.Is(err, ErrRoleExists) {
		t.Fatalf("expected ErrRoleExists, got %v", err)
	}
	for _, bad := range []string{"", "  ", "a,b"} {
		if err := engine.CreateRole(ctx, bad); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("CreateRole(%q): expected ErrInvalidArgument, got %v", bad, err)
		}
	}

	ok, err := engine.RoleExists(ctx, "ADMINS")
	if err != nil || !ok {
		t.Fatalf("RoleExists: %v, %v", ok, err)
	}
	ok, err = engine.RoleExists(ctx, "editors")
	if err != nil || ok {
		t.Fatalf("RoleExists(editors): %v, %v", ok, err)
	}

	mustCreateRole(t, engine, "editors")
	roles, err := engine.GetAllRoles(ctx)
	if err != nil {
		t.Fatalf("GetAllRoles: %v", err)
	}
	if !slices.Equal(roles, []string{"Admins", "editors"}) {
		t.Fatalf("unexpected roles: %v", roles)
	}
}

func TestAddUsersToRolesAndQueries(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	mustCreateUser(t, engine, "alice", "alice@x.com")
	mustCreateUser(t, engine, "alan", "alan@x.com")
	mustCreateUser(t, engine, "bob", "bob@x.com")
	mustCreateRole(t, engine, "admins")
	mustCreateRole(t, engine, "editors")

	err := engine.AddUsersToRoles(ctx, []string{"alice", "ALAN", "ghost"}, []string{"admins", "missing"})
	if err != nil {
		t.Fatalf("AddUsersToRoles: %v", err)
	}
	// Existing memberships are kept.
	if err := engine.AddUsersToRoles(ctx, []string{"alice"}, []string{"admins", "editors"}); err != nil {
		t.Fatalf("AddUsersToRoles: %v", err)
	}

	in, err := engine.IsUserInRole(ctx, "Alice", "Admins")
	if err != nil || !in {
		t.Fatalf("IsUserInRole: %v, %v", in, err)
	}
	in, err = engine.IsUserInRole(ctx, "bob", "admins")
	if err != nil || in {
		t.Fatalf("IsUserInRole(bob): %v, %v", in, err)
	}
	if _, err := engine.IsUserInRole(ctx, "ghost", "admins"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := engine.IsUserInRole(ctx, "bob", "missing"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	roles, err := engine.GetRolesForUser(ctx, "alice")
	if err != nil || !slices.Equal(roles, []string{"admins", "editors"}) {
		t.Fatalf("GetRolesForUser: %v, %v", roles, err)
	}
	roles, err = engine.GetRolesForUser(ctx, "bob")
	if err != nil || roles == nil || len(roles) != 0 {
		t.Fatalf("expected empty non-nil roles, got %v, %v", roles, err)
	}

	users, err := engine.GetUsersInRole(ctx, "admins")
	if err != nil || !slices.Equal(users, []string{"alan", "alice"}) {
		t.Fatalf("GetUsersInRole: %v, %v", users, err)
	}
	users, err = engine.FindUsersInRole(ctx, "admins", "ALI")
	if err != nil || !slices.Equal(users, []string{"alice"}) {
		t.Fatalf("FindUsersInRole: %v, %v", users, err)
	}
	if _, err := engine.GetUsersInRole(ctx, "missing"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	if got := engine.MetricsSnapshot().Counters[MetricRoleMembershipChanged]; got != 3 {
		t.Fatalf("expected 3 membership changes, got %d", got)
	}
}

func TestAddUsersToRolesRejectsEmptyNames(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, engine, "alice", "alice@x.com")
	mustCreateRole(t, engine, "admins")

	if err := engine.AddUsersToRoles(ctx, []string{"alice", ""}, []string{"admins"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if in, _ := engine.IsUserInRole(ctx, "alice", "admins"); in {
		t.Fatal("no membership may be written when the arguments are invalid")
	}
	if err := engine.AddUsersToRoles(ctx, nil, []string{"admins"}); err != nil {
		t.Fatalf("empty user list must be a no-op, got %v", err)
	}
}

func TestRemoveUsersFromRolesIsStrict(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, engine, "alice", "alice@x.com")
	mustCreateUser(t, engine, "bob", "bob@x.com")
	mustCreateRole(t, engine, "admins")

	if err := engine.AddUsersToRoles(ctx, []string{"alice", "bob"}, []string{"admins"}); err != nil {
		t.Fatalf("AddUsersToRoles: %v", err)
	}

	err := engine.RemoveUsersFromRoles(ctx, []string{"alice", "ghost"}, []string{"admins"})
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if in, _ := engine.IsUserInRole(ctx, "alice", "admins"); !in {
		t.Fatal("failed removal must not touch any membership")
	}

	if err := engine.RemoveUsersFromRoles(ctx, []string{"alice"}, []string{"missing"}); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	if err := engine.RemoveUsersFromRoles(ctx, []string{"alice"}, []string{"admins"}); err != nil {
		t.Fatalf("RemoveUsersFromRoles: %v", err)
	}
	users, _ := engine.GetUsersInRole(ctx, "admins")
	if !slices.Equal(users, []string{"bob"}) {
		t.Fatalf("expected only bob left, got %v", users)
	}

	// Removing a non-member is a no-op.
	if err := engine.RemoveUsersFromRoles(ctx, []string{"alice"}, []string{"admins"}); err != nil {
		t.Fatalf("RemoveUsersFromRoles non-member: %v", err)
	}
}

func TestDeleteRole(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, engine, "alice", "alice@x.com")
	mustCreateRole(t, engine, "admins")
	mustCreateRole(t, engine, "empty")

	if err := engine.AddUsersToRoles(ctx, []string{"alice"}, []string{"admins"}); err != nil {
		t.Fatalf("AddUsersToRoles: %v", err)
	}

	ok, err := engine.DeleteRole(ctx, "admins", true)
	if ok || !errors.Is(err, ErrRolePopulated) {
		t.Fatalf("expected ErrRolePopulated, got %v, %v", ok, err)
	}
	if exists, _ := engine.RoleExists(ctx, "admins"); !exists {
		t.Fatal("populated role must survive a throwing delete")
	}

	ok, err = engine.DeleteRole(ctx, "admins", false)
	if err != nil || !ok {
		t.Fatalf("DeleteRole: %v, %v", ok, err)
	}
	roles, err := engine.GetRolesForUser(ctx, "alice")
	if err != nil || len(roles) != 0 {
		t.Fatalf("expected membership removed, got %v, %v", roles, err)
	}

	ok, err = engine.DeleteRole(ctx, "empty", true)
	if err != nil || !ok {
		t.Fatalf("DeleteRole(empty): %v, %v", ok, err)
	}

	ok, err = engine.DeleteRole(ctx, "never", true)
	if err != nil || ok {
		t.Fatalf("DeleteRole(never): %v, %v", ok, err)
	}

	// A recreated role starts without members.
	mustCreateRole(t, engine, "admins")
	if in, _ := engine.IsUserInRole(ctx, "alice", "admins"); in {
		t.Fatal("recreated role must not inherit old members")
	}
}
