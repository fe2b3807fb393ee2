// Package internal holds helpers private to goMembership.
//
// # Sub-packages
//
//   - audit: membership audit events, sinks and the asynchronous Dispatcher
//   - limiters: the failed-attempt lockout evaluator
//
// # What this package must NOT do
//
//   - Export types that appear in the public goMembership API.
package internal
