package goMembership

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goMembership/internal/audit"
	"github.com/MrEthical07/goMembership/internal/limiters"
	"github.com/MrEthical07/goMembership/password"
	"github.com/MrEthical07/goMembership/store"
)

// Builder assembles an Engine. Configure it during initialization, then call
// Build exactly once.
type Builder struct {
	config    Config
	configErr error
	store     store.Store

	auditSinks []AuditSink
	logger    *slog.Logger
	clock     func() time.Time

	built bool
}

// New returns a Builder carrying the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithConfigMap replaces the configuration with one parsed from a flat provider map.
// A parse error is reported by Build.
func (b *Builder) WithConfigMap(values map[string]string) *Builder {
	cfg, err := ConfigFromMap(values)
	if err != nil {
		b.configErr = err
		return b
	}
	b.config = cfg
	b.configErr = nil
	return b
}

// WithStore injects the document store. An injected store is not closed by
// Engine.Close; the caller keeps ownership.
func (b *Builder) WithStore(s store.Store) *Builder {
	b.store = s
	return b
}

// WithAuditSink adds sinks fed by the audit dispatcher and enables auditing.
// Every sink receives every event, in the order the sinks were added.
func (b *Builder) WithAuditSink(sinks ...AuditSink) *Builder {
	for _, sink := range sinks {
		if sink != nil {
			b.auditSinks = append(b.auditSinks, sink)
			b.config.Audit.Enabled = true
		}
	}
	return b
}

// WithLogger sets the structured logger. The default discards output.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validate latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithClock overrides the time source used for account timestamps and lockout windows.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// Build validates the configuration and returns a ready Engine.
//
// Build opens the store described by Config.Storage when none was injected.
// See BuildContext.
func (b *Builder) Build() (*Engine, error) {
	return b.BuildContext(context.Background())
}

// BuildContext is Build with a context bounding the store connection.
//
// BuildContext returns an error when the builder was already used, the
// configuration is invalid, or the store cannot be opened.
func (b *Builder) BuildContext(ctx context.Context) (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.configErr != nil {
		return nil, b.configErr
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	policy, err := password.NewPolicy(password.PolicyConfig{
		MinLength:          cfg.Membership.MinRequiredPasswordLength,
		MinNonAlphanumeric: cfg.Membership.MinRequiredNonAlphanumericCharacters,
		Pattern:            cfg.Membership.PasswordStrengthRegularExpression,
	})
	if err != nil {
		return nil, err
	}

	// -------- STORE --------
	st := b.store
	ownsStore := false
	if st == nil {
		st, err = store.Open(ctx, store.Options{
			InMemory:             cfg.Storage.InMemory,
			Embedded:             cfg.Storage.Embedded,
			DataDirectory:        cfg.Storage.DataDirectory,
			ConnectionURL:        cfg.Storage.ConnectionURL,
			ConnectionStringName: cfg.Storage.ConnectionStringName,
			KeyPrefix:            cfg.Storage.KeyPrefix,
			Logger:               logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open membership store: %w", err)
		}
		ownsStore = true
	}

	// -------- AUDIT --------
	var dispatcher *internalaudit.Dispatcher
	if cfg.Audit.Enabled {
		dispatcher = internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    true,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
			OnDrop: func(ev internalaudit.Event) {
				logger.Warn("membership audit event dropped",
					slog.String("event", string(ev.Kind)),
					slog.String("application", ev.Subject.Application),
				)
			},
		}, internalaudit.Fanout(b.auditSinks...))
	}

	e := &Engine{
		config:    cfg,
		store:     st,
		ownsStore: ownsStore,
		hasher:    password.NewHasher(),
		policy:    policy,
		lockout: limiters.NewLockoutLimiter(limiters.LockoutConfig{
			Threshold: cfg.Membership.MaxInvalidPasswordAttempts,
			Window:    cfg.Membership.PasswordAttemptWindow,
		}),
		audit:   dispatcher,
		metrics: NewMetrics(cfg.Metrics),
		logger:  logger.With(slog.String("component", "membership")),
		now:     clock,
	}

	b.built = true
	return e, nil
}
