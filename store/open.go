package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	embeddedFileName = "membership.db"
	pingTimeout      = 2 * time.Second
)

// ErrNoBackend is returned when the options select no storage backend.
var ErrNoBackend = errors.New("no storage backend configured")

// Options selects and configures a storage backend.
//
// Selection order: InMemory, then Embedded (sqlite file under DataDirectory),
// then ConnectionURL, then the URL held by the environment variable named
// ConnectionStringName.
type Options struct {
	InMemory             bool
	Embedded             bool
	DataDirectory        string
	ConnectionURL        string
	ConnectionStringName string
	KeyPrefix            string
	Logger               *slog.Logger
}

// Open builds the backend described by opts. The returned store owns every
// connection it opened and releases them on Close.
//
// Supported URL schemes: redis, rediss, unix (Redis); postgres, postgresql
// (bun over pgx); sqlite, file (bun over sqlite).
func Open(ctx context.Context, opts Options) (Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	switch {
	case opts.InMemory:
		return openInMemory(opts, logger)
	case opts.Embedded:
		if strings.TrimSpace(opts.DataDirectory) == "" {
			return nil, errors.New("embedded storage requires a data directory")
		}
		if err := os.MkdirAll(opts.DataDirectory, 0o750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return openSQLite(ctx, filepath.Join(opts.DataDirectory, embeddedFileName), logger)
	case opts.ConnectionURL != "":
		return openURL(ctx, opts.ConnectionURL, opts.KeyPrefix, logger)
	case opts.ConnectionStringName != "":
		raw, ok := os.LookupEnv(opts.ConnectionStringName)
		if !ok || strings.TrimSpace(raw) == "" {
			return nil, fmt.Errorf("connection string %q is not set", opts.ConnectionStringName)
		}
		return openURL(ctx, raw, opts.KeyPrefix, logger)
	default:
		return nil, ErrNoBackend
	}
}

func openInMemory(opts Options, logger *slog.Logger) (Store, error) {
	mr, err := miniredis.Run()
	if err != nil {
		return nil, fmt.Errorf("start in-memory store: %w", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	s := NewRedisStore(client, opts.KeyPrefix)
	s.closers = append(s.closers,
		func() error { mr.Close(); return nil },
		client.Close,
	)

	logger.Info("membership store opened", slog.String("backend", "memory"))
	return s, nil
}

func openURL(ctx context.Context, raw, prefix string, logger *slog.Logger) (Store, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid connection url: %w", err)
	}

	switch strings.ToLower(u.Scheme) {
	case "redis", "rediss", "unix":
		return openRedis(ctx, raw, prefix, logger)
	case "postgres", "postgresql":
		return openPostgres(ctx, raw, logger)
	case "sqlite", "file":
		path := u.Opaque
		if path == "" {
			path = u.Host + u.Path
		}
		return openSQLite(ctx, path, logger)
	default:
		return nil, fmt.Errorf("unsupported connection url scheme %q", u.Scheme)
	}
}

func openRedis(ctx context.Context, raw, prefix string, logger *slog.Logger) (Store, error) {
	options, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: redis ping: %v", ErrUnavailable, err)
	}

	s := NewRedisStore(client, prefix)
	s.closers = append(s.closers, client.Close)

	logger.Info("membership store opened",
		slog.String("backend", "redis"),
		slog.String("addr", options.Addr),
	)
	return s, nil
}

func openPostgres(ctx context.Context, raw string, logger *slog.Logger) (Store, error) {
	sqldb, err := sql.Open("pgx", raw)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: postgres ping: %v", ErrUnavailable, err)
	}

	s, err := NewSQLStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.closers = append(s.closers, db.Close)

	logger.Info("membership store opened", slog.String("backend", "postgres"))
	return s, nil
}

func openSQLite(ctx context.Context, dsn string, logger *slog.Logger) (Store, error) {
	if dsn == "" {
		return nil, errors.New("sqlite path required")
	}
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	s, err := NewSQLStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.closers = append(s.closers, db.Close)

	logger.Info("membership store opened",
		slog.String("backend", "sqlite"),
		slog.String("path", dsn),
	)
	return s, nil
}
