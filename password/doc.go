// Package password implements salted password hashing, password policy checks and
// random password generation.
//
// # Output format
//
// Salts are 32 random bytes and verifiers are 64-byte scrypt keys, both encoded
// with standard base64. The scrypt work factors are fixed constants: stored
// verifiers carry no parameters, so the factors can never change after accounts
// exist.
//
// # Architecture boundaries
//
// This package owns derivation, comparison and policy evaluation. Deciding when a
// password must be checked, and what a failed check does to an account, belongs
// to the Engine.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive verifiers.
//   - Import any other goMembership package.
//   - Log plaintext passwords, answers or salts.
package password
