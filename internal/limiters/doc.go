// Package limiters provides the failed-attempt lockout evaluator used by the
// membership engine.
//
// # Limiters
//
//   - [LockoutLimiter] counts failed password and answer attempts inside a
//     sliding window (minutes, from configuration) and sets a sticky lock flag
//     once the threshold is reached.
//
// The limiter is pure. It mutates a [LockoutState] copied out of an account
// document; the caller persists it through the store's compare-and-swap
// update so concurrent failures are never lost.
//
// # What this package must NOT do
//
//   - Import goMembership or any sibling internal package.
//   - Perform I/O or read the clock. Callers pass now explicitly.
package limiters
