package goMembership

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/goMembership/store"
)

func newAppEngine(t *testing.T, st store.Store, app string) *Engine {
	t.Helper()

	cfg := testConfig()
	cfg.Membership.ApplicationName = app
	engine, err := New().
		WithConfig(cfg).
		WithStore(st).
		WithClock(newTestClock().Now).
		Build()
	if err != nil {
		t.Fatalf("Build(%s): %v", app, err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func TestApplicationsWithSeparatorsStayIsolated(t *testing.T) {
	st := newTestStore(t)
	outer := newAppEngine(t, st, "a:b")
	inner := newAppEngine(t, st, "a")
	ctx := context.Background()

	mustCreateUser(t, outer, "c", "c@x.com")

	ok, err := inner.ValidateUser(ctx, "b:c", testPassword)
	if err != nil || ok {
		t.Fatalf("another application's account must not authenticate: %v, %v", ok, err)
	}
	if _, err := inner.GetUser(ctx, "b:c", false); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if name, _ := inner.GetUserNameByEmail(ctx, "c@x.com"); name != "" {
		t.Fatalf("email lookup leaked %q", name)
	}

	mustCreateUser(t, inner, "b:c", "c@x.com")

	user, err := inner.GetUser(ctx, "b:c", false)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.Username != "b:c" || user.ApplicationName != "a" {
		t.Fatalf("unexpected user: %+v", user)
	}
	for _, e := range []*Engine{outer, inner} {
		page, err := e.GetAllUsers(ctx, 0, 10)
		if err != nil || page.TotalRecords != 1 {
			t.Fatalf("%s: expected one user, got %d, %v", e.ApplicationName(), page.TotalRecords, err)
		}
	}
	if ok, err := outer.ValidateUser(ctx, "c", testPassword); err != nil || !ok {
		t.Fatalf("ValidateUser(c): %v, %v", ok, err)
	}
}

func TestRolesScopedToApplication(t *testing.T) {
	st := newTestStore(t)
	slashed := newAppEngine(t, st, "a/b")
	plain := newAppEngine(t, st, "ab")
	ctx := context.Background()

	mustCreateRole(t, slashed, "admins")

	if ok, err := plain.RoleExists(ctx, "admins"); err != nil || ok {
		t.Fatalf("role of another application visible: %v, %v", ok, err)
	}
	mustCreateRole(t, plain, "admins")

	mustCreateUser(t, plain, "alice", "alice@x.com")
	if err := plain.AddUsersToRoles(ctx, []string{"alice"}, []string{"admins"}); err != nil {
		t.Fatalf("AddUsersToRoles: %v", err)
	}
	members, err := slashed.GetUsersInRole(ctx, "admins")
	if err != nil || len(members) != 0 {
		t.Fatalf("expected no members in a/b, got %v, %v", members, err)
	}

	// A role document whose id matches but whose owner differs is ignored.
	forged := &store.Role{
		ID:              store.RoleID("ab", "editors"),
		ApplicationName: "other",
		Name:            "editors",
		LoweredName:     "editors",
	}
	if err := st.InsertRole(ctx, forged); err != nil {
		t.Fatalf("InsertRole: %v", err)
	}
	if ok, err := plain.RoleExists(ctx, "editors"); err != nil || ok {
		t.Fatalf("foreign role document must not resolve: %v, %v", ok, err)
	}
	if _, err := plain.IsUserInRole(ctx, "alice", "editors"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}
