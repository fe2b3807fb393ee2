// Package store persists membership accounts and roles as documents.
//
// # Backends
//
//   - [RedisStore] keeps JSON documents in Redis with username / email index keys.
//     Used for remote redis:// URLs and, through miniredis, for the in-memory backend.
//   - [SQLStore] keeps the same documents in bun-managed tables. Used for the
//     embedded sqlite file backend and for postgres:// URLs.
//
// [Open] picks a backend from [Options].
//
// # Design
//
// Every account mutation is a read-modify-write performed by [Store.UpdateAccount]
// with compare-and-swap semantics: WATCH/MULTI on Redis, a version column on SQL.
// The mutation closure is re-run on conflict, so concurrent failed-login
// bookkeeping never loses an increment.
//
// # What this package must NOT do
//
//   - Hash, compare or generate passwords.
//   - Decide lockout, approval or policy outcomes.
//   - Import goMembership or any sibling internal package.
package store
