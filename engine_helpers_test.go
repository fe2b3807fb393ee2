package goMembership

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/goMembership/store"
)

const testPassword = "correct-horse-1!"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return store.NewRedisStore(rdb, "test")
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Membership.ApplicationName = "testapp"
	cfg.Membership.MaxInvalidPasswordAttempts = 3
	cfg.Membership.PasswordAttemptWindow = 10 * time.Minute
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *testClock, store.Store) {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	st := newTestStore(t)
	clock := newTestClock()
	engine, err := New().
		WithConfig(cfg).
		WithStore(st).
		WithClock(clock.Now).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine, clock, st
}

func mustCreateUser(t *testing.T, e *Engine, username, email string) *User {
	t.Helper()

	user, status, err := e.CreateUser(context.Background(), CreateUserRequest{
		Username:         username,
		Password:         testPassword,
		Email:            email,
		PasswordQuestion: "colour?",
		PasswordAnswer:   "Blue",
		IsApproved:       true,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	if status != StatusSuccess {
		t.Fatalf("CreateUser(%s): status %s", username, status)
	}
	return user
}

func loadAccount(t *testing.T, e *Engine, st store.Store, username string) *store.Account {
	t.Helper()

	acct, err := st.FindAccountByUsername(context.Background(), e.ApplicationName(), store.NormalizeKey(username))
	if err != nil {
		t.Fatalf("FindAccountByUsername(%s): %v", username, err)
	}
	return acct
}
