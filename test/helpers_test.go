//go:build integration
// +build integration

package test

import (
	"context"
	"fmt"
	"os"
	"testing"

	membership "github.com/MrEthical07/goMembership"
)

const testPassword = "integration-pw#1"

// backend describes one storage configuration the suite runs against.
type backend struct {
	name   string
	values func(t *testing.T) map[string]string
}

// backends returns every storage mode available in this environment.
// In-memory and embedded sqlite always run. A real Redis is used when
// REDIS_ADDR is set, and Postgres when MEMBERSHIP_POSTGRES_URL is set.
func backends(t *testing.T) []backend {
	t.Helper()
	out := []backend{
		{
			name: "memory",
			values: func(*testing.T) map[string]string {
				return map[string]string{membership.KeyInMemory: "true"}
			},
		},
		{
			name: "embedded",
			values: func(t *testing.T) map[string]string {
				return map[string]string{
					membership.KeyEmbedded:      "true",
					membership.KeyDataDirectory: t.TempDir(),
				}
			},
		},
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		out = append(out, backend{
			name: "redis",
			values: func(t *testing.T) map[string]string {
				return map[string]string{
					membership.KeyConnectionURL: "redis://" + addr + "/0",
					membership.KeyKeyPrefix:     fmt.Sprintf("it-%s", t.Name()),
				}
			},
		})
	}
	if os.Getenv("MEMBERSHIP_POSTGRES_URL") != "" {
		out = append(out, backend{
			name: "postgres",
			values: func(*testing.T) map[string]string {
				return map[string]string{membership.KeyConnectionStringName: "MEMBERSHIP_POSTGRES_URL"}
			},
		})
	}
	return out
}

func newEngine(t *testing.T, b backend, extra map[string]string) *membership.Engine {
	t.Helper()

	values := b.values(t)
	values[membership.KeyApplicationName] = "it-" + b.name
	for k, v := range extra {
		values[k] = v
	}

	engine, err := membership.New().
		WithConfigMap(values).
		WithMetricsEnabled(true).
		BuildContext(context.Background())
	if err != nil {
		t.Fatalf("%s: build: %v", b.name, err)
	}
	t.Cleanup(func() { _ = engine.Close() })
	return engine
}

func createUser(t *testing.T, e *membership.Engine, username string) {
	t.Helper()
	_, status, err := e.CreateUser(context.Background(), membership.CreateUserRequest{
		Username:         username,
		Password:         testPassword,
		Email:            username + "@it.test",
		PasswordQuestion: "q",
		PasswordAnswer:   "a",
		IsApproved:       true,
	})
	if err != nil || status != membership.StatusSuccess {
		t.Fatalf("CreateUser(%s): %s %v", username, status, err)
	}
}
