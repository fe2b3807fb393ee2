// Package goMembership provides an in-process membership and role provider
// backed by a document store.
//
// A host builds one [Engine] through [Builder] and calls it directly: create,
// validate, change, reset, lock, unlock, update, delete and search users, and
// manage roles and role membership. Every lookup is scoped to the configured
// application name, and usernames, emails and role names compare
// case-insensitively.
//
// Engine methods are safe to call from multiple goroutines after [Builder.Build].
// Each call is self-contained; account documents are mutated through the
// store's compare-and-swap update so concurrent failed logins are all counted.
//
// # Architecture boundaries
//
// goMembership is the public surface. It exposes [Engine], [Builder], [Config],
// the [User] projection and the provider interfaces. Password derivation lives
// in password/, persistence in store/, and lockout arithmetic and audit
// dispatch under internal/.
//
// # What this package must NOT do
//
//   - Return password hashes, salts or answer hashes from any public method.
//   - Store a password or answer in plaintext, or retrieve one (GetPassword is
//     always unsupported).
//   - Clear a lockout because time passed. Only UnlockUser clears it.
package goMembership
