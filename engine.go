package goMembership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	internalaudit "github.com/MrEthical07/goMembership/internal/audit"
	"github.com/MrEthical07/goMembership/internal/limiters"
	"github.com/MrEthical07/goMembership/password"
	"github.com/MrEthical07/goMembership/store"
)

// Engine implements the membership and role provider operations over a store.Store.
//
// Engine methods are safe for concurrent use after Builder.Build. No state is
// carried between calls; every account mutation is a compare-and-swap update
// in the store.
type Engine struct {
	config    Config
	store     store.Store
	ownsStore bool
	hasher    *password.Hasher
	policy    *password.Policy
	lockout   *limiters.LockoutLimiter
	audit     *internalaudit.Dispatcher
	metrics   *Metrics
	logger    *slog.Logger
	now       func() time.Time
	closed    atomic.Bool
}

// Close flushes the audit dispatcher and closes the store when the Engine opened it.
//
// Close may return an error when the underlying store fails to close. Calling
// Close more than once is a no-op.
func (e *Engine) Close() error {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if e.audit != nil {
		e.audit.Close()
	}
	if e.ownsStore && e.store != nil {
		return e.store.Close()
	}
	return nil
}

// ApplicationName returns the application every lookup is scoped to.
func (e *Engine) ApplicationName() string {
	if e == nil {
		return ""
	}
	return e.config.Membership.ApplicationName
}

// Config returns a copy of the active configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// AuditDropped returns the number of audit events dropped because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil || e.closed.Load() {
		return ErrEngineNotReady
	}
	return nil
}

func (e *Engine) app() string {
	return e.config.Membership.ApplicationName
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// storeErr wraps an unexpected store failure for the caller.
func (e *Engine) storeErr(op string, err error) error {
	e.metricInc(MetricStoreError)
	e.logger.Warn("membership store failure",
		slog.String("op", op),
		slog.String("application", e.app()),
		slog.Any("error", err),
	)
	return fmt.Errorf("%s: %w", op, err)
}

// findAccount resolves username within the application. A missing account is
// reported as ErrUserNotFound.
func (e *Engine) findAccount(ctx context.Context, op, username string) (*store.Account, error) {
	acct, err := e.store.FindAccountByUsername(ctx, e.app(), store.NormalizeKey(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, e.storeErr(op, err)
	}
	if acct.ApplicationName != e.app() {
		return nil, ErrUserNotFound
	}
	return acct, nil
}

// accountByKey resolves a ProviderUserKey within the application. Keys are
// UUIDs; anything else cannot name an account and reports ErrUserNotFound.
func (e *Engine) accountByKey(ctx context.Context, op, key string) (*store.Account, error) {
	if _, err := uuid.Parse(key); err != nil {
		return nil, ErrUserNotFound
	}
	acct, err := e.store.GetAccount(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, e.storeErr(op, err)
	}
	// Keys are global; scope them to this application like every other lookup.
	if acct.ApplicationName != e.app() {
		return nil, ErrUserNotFound
	}
	return acct, nil
}

// updateAccount runs a compare-and-swap update and maps store sentinels to
// engine errors.
func (e *Engine) updateAccount(ctx context.Context, op, id string, mutate func(*store.Account) error) (*store.Account, error) {
	acct, err := e.store.UpdateAccount(ctx, id, mutate)
	if err == nil {
		return acct, nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrUserNotFound
	case errors.Is(err, store.ErrDuplicateEmail):
		return nil, ErrDuplicateEmail
	case isEngineError(err):
		return nil, err
	default:
		return nil, e.storeErr(op, err)
	}
}

func isEngineError(err error) bool {
	for _, target := range []error{
		ErrUserNotFound,
		ErrInvalidCredentials,
		ErrWrongPasswordAnswer,
		ErrUsernameImmutable,
		ErrInvalidArgument,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (e *Engine) lockoutState(a *store.Account) limiters.LockoutState {
	return limiters.LockoutState{
		Attempts:    a.FailedPasswordAttempts,
		LastFailure: a.LastFailedPasswordAttempt,
		Locked:      a.IsLockedOut,
		LockedAt:    a.LastLockedOutDate,
	}
}

func applyLockoutState(a *store.Account, s limiters.LockoutState) {
	a.FailedPasswordAttempts = s.Attempts
	a.LastFailedPasswordAttempt = s.LastFailure
	a.IsLockedOut = s.Locked
	a.LastLockedOutDate = s.LockedAt
}

func (e *Engine) onLockedOut(ctx context.Context, a *store.Account, reason string) {
	e.metricInc(MetricAccountLocked)
	e.logger.Info("membership account locked out",
		slog.String("application", a.ApplicationName),
		slog.String("username", a.Username),
		slog.String("reason", reason),
	)
	e.emitAudit(ctx, AuditUserLockedOut, true, a.ID, a.Username, nil, func(ev *AuditEvent) {
		ev.Detail = map[string]string{"cause": reason}
	})
}

func validName(name string) bool {
	return strings.TrimSpace(name) != "" && !strings.Contains(name, ",")
}
