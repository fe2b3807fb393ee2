package limiters

import "time"

// LockoutConfig holds configuration for failed-password lockout.
type LockoutConfig struct {
	Threshold int
	Window    time.Duration // 0 = failures expire immediately, lockout never trips
}

// LockoutState is the slice of an account document the limiter reads and writes.
type LockoutState struct {
	Attempts    int
	LastFailure time.Time
	Locked      bool
	LockedAt    time.Time
}

// LockoutLimiter evaluates failed attempts against a threshold inside a sliding
// window. It is pure: persistence and atomicity are the caller's job.
type LockoutLimiter struct {
	config LockoutConfig
}

// NewLockoutLimiter creates a new lockout limiter.
func NewLockoutLimiter(cfg LockoutConfig) *LockoutLimiter {
	return &LockoutLimiter{config: cfg}
}

// RecordFailure applies one failure at now to state.
// Returns true if this failure locked the account.
//
// A previous failure older than the window no longer counts, so the counter
// restarts at one. The lock flag is sticky: it is never cleared here.
func (l *LockoutLimiter) RecordFailure(state *LockoutState, now time.Time) bool {
	if state == nil {
		return false
	}

	if l.config.Window <= 0 || state.LastFailure.IsZero() || now.Sub(state.LastFailure) >= l.config.Window {
		state.Attempts = 0
	}
	state.Attempts++
	state.LastFailure = now

	if state.Locked || l.config.Threshold <= 0 {
		return false
	}

	if state.Attempts >= l.config.Threshold && now.Sub(state.LastFailure) < l.config.Window {
		state.Locked = true
		state.LockedAt = now
		return true
	}
	return false
}

// Reset clears the failure counter (e.g., after successful login or manual unlock).
func (l *LockoutLimiter) Reset(state *LockoutState) {
	if state == nil {
		return
	}
	state.Attempts = 0
	state.LastFailure = time.Time{}
}

// Unlock clears the lock flag and the failure counter.
func (l *LockoutLimiter) Unlock(state *LockoutState) {
	if state == nil {
		return
	}
	l.Reset(state)
	state.Locked = false
}
