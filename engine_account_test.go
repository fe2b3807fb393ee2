package goMembership

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goMembership/store"
)

func TestGetUserTouchesActivityWhenOnline(t *testing.T) {
	engine, clock, st := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, engine, "alice", "alice@x.com")
	created := loadAccount(t, engine, st, "alice").LastActivityDate

	clock.Advance(time.Hour)

	user, err := engine.GetUser(ctx, "ALICE", false)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user.IsOnline || !user.LastActivityDate.Equal(created) {
		t.Fatalf("plain lookup must not touch activity: %+v", user)
	}

	user, err = engine.GetUser(ctx, "alice", true)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !user.IsOnline || !user.LastActivityDate.Equal(clock.Now()) {
		t.Fatalf("expected activity stamped at %v, got %+v", clock.Now(), user)
	}

	if _, err := engine.GetUser(ctx, "ghost", false); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetUserNameByEmail(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, engine, "Bob", "bob@x.com")

	name, err := engine.GetUserNameByEmail(ctx, "BOB@X.COM")
	if err != nil || name != "Bob" {
		t.Fatalf("GetUserNameByEmail: %q, %v", name, err)
	}

	name, err = engine.GetUserNameByEmail(ctx, "nobody@x.com")
	if err != nil || name != "" {
		t.Fatalf("expected empty name, got %q, %v", name, err)
	}
}

func TestUpdateUser(t *testing.T) {
	engine, _, st := newTestEngine(t, nil)
	ctx := context.Background()
	user := mustCreateUser(t, engine, "carol", "carol@x.com")
	mustCreateUser(t, engine, "dave", "dave@x.com")

	user.Email = "Carol@New.com"
	user.Comment = "vip"
	user.IsApproved = false
	if err := engine.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	acct := loadAccount(t, engine, st, "carol")
	if acct.Email != "Carol@New.com" || acct.LoweredEmail != "carol@new.com" || acct.Comment != "vip" || acct.IsApproved {
		t.Fatalf("unexpected account after update: %+v", acct)
	}
	if name, _ := engine.GetUserNameByEmail(ctx, "carol@x.com"); name != "" {
		t.Fatalf("old email must be released, still owned by %q", name)
	}

	user.Email = "dave@x.com"
	if err := engine.UpdateUser(ctx, user); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	user.Email = "not-an-email"
	if err := engine.UpdateUser(ctx, user); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for malformed email, got %v", err)
	}

	user.Email = "carol@new.com"
	user.Username = "caroline"
	if err := engine.UpdateUser(ctx, user); !errors.Is(err, ErrUsernameImmutable) {
		t.Fatalf("expected ErrUsernameImmutable, got %v", err)
	}
}

func TestLookupByMalformedKeyIsNotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()
	user := mustCreateUser(t, engine, "alice", "alice@x.com")

	for _, key := range []string{"name:7:testapp:alice", "all:7:testapp", "id:" + user.ProviderUserKey, "not-a-key"} {
		if _, err := engine.GetUserByKey(ctx, key, false); !errors.Is(err, ErrUserNotFound) {
			t.Fatalf("GetUserByKey(%q): expected ErrUserNotFound, got %v", key, err)
		}
	}
	if _, err := engine.GetUserByKey(ctx, uuid.NewString(), false); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for unknown key, got %v", err)
	}

	user.ProviderUserKey = "name:7:testapp:alice"
	if err := engine.UpdateUser(ctx, user); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("UpdateUser: expected ErrUserNotFound, got %v", err)
	}

	if got := engine.MetricsSnapshot().Counters[MetricStoreError]; got != 0 {
		t.Fatalf("malformed keys must not count as store failures, got %d", got)
	}
}

func TestDeleteUser(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()
	mustCreateUser(t, engine, "erin", "erin@x.com")

	ok, err := engine.DeleteUser(ctx, "Erin", true)
	if err != nil || !ok {
		t.Fatalf("DeleteUser: %v, %v", ok, err)
	}
	if _, err := engine.GetUser(ctx, "erin", false); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected deleted user to be gone, got %v", err)
	}

	ok, err = engine.DeleteUser(ctx, "erin", true)
	if ok || !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v, %v", ok, err)
	}

	// The email is free again.
	mustCreateUser(t, engine, "erin2", "erin@x.com")
}

func TestFindUsersPagination(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	ctx := context.Background()

	for _, name := range []string{"zed", "Anna", "hannah", "bob", "joanna"} {
		mustCreateUser(t, engine, name, name+"@example.org")
	}

	page, err := engine.FindUsersByName(ctx, "ANN", 0, 2)
	if err != nil {
		t.Fatalf("FindUsersByName: %v", err)
	}
	if page.TotalRecords != 3 {
		t.Fatalf("expected 3 matches, got %d", page.TotalRecords)
	}
	if len(page.Users) != 2 || page.Users[0].Username != "Anna" || page.Users[1].Username != "hannah" {
		t.Fatalf("unexpected first page: %+v", usernames(page))
	}

	page, err = engine.FindUsersByName(ctx, "ann", 1, 2)
	if err != nil {
		t.Fatalf("FindUsersByName: %v", err)
	}
	if page.TotalRecords != 3 || len(page.Users) != 1 || page.Users[0].Username != "joanna" {
		t.Fatalf("unexpected second page: %d %v", page.TotalRecords, usernames(page))
	}

	page, err = engine.FindUsersByName(ctx, "ann", 5, 2)
	if err != nil || len(page.Users) != 0 || page.TotalRecords != 3 {
		t.Fatalf("page past the end: %+v, %v", page, err)
	}

	page, err = engine.FindUsersByEmail(ctx, "EXAMPLE.ORG", 0, 10)
	if err != nil || page.TotalRecords != 5 {
		t.Fatalf("FindUsersByEmail: %d, %v", page.TotalRecords, err)
	}

	all, err := engine.GetAllUsers(ctx, 0, 3)
	if err != nil || all.TotalRecords != 5 || len(all.Users) != 3 {
		t.Fatalf("GetAllUsers: %d/%d, %v", len(all.Users), all.TotalRecords, err)
	}

	if _, err := engine.GetAllUsers(ctx, -1, 3); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for negative page, got %v", err)
	}
	if _, err := engine.GetAllUsers(ctx, 0, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty page, got %v", err)
	}
}

func TestGetNumberOfUsersOnline(t *testing.T) {
	engine, clock, st := newTestEngine(t, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		mustCreateUser(t, engine, fmt.Sprintf("user%02d", i), fmt.Sprintf("user%02d@x.com", i))
	}

	online, err := engine.GetNumberOfUsersOnline(ctx)
	if err != nil || online != 10 {
		t.Fatalf("expected 10 online, got %d, %v", online, err)
	}

	acct := loadAccount(t, engine, st, "user03")
	backdated := clock.Now().Add(-5 * 24 * time.Hour)
	if _, err := st.UpdateAccount(ctx, acct.ID, func(a *store.Account) error {
		a.LastActivityDate = backdated
		return nil
	}); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	online, err = engine.GetNumberOfUsersOnline(ctx)
	if err != nil || online != 9 {
		t.Fatalf("expected 9 online, got %d, %v", online, err)
	}
}

func TestEngineClosedIsNotReady(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	if err := engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := engine.GetUser(context.Background(), "alice", false); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if err := engine.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func usernames(page UserPage) []string {
	out := make([]string, 0, len(page.Users))
	for _, u := range page.Users {
		out = append(out, u.Username)
	}
	return out
}
