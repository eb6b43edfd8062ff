// Package stores contains the persistence layer for refresh-token
// rotation families and admin MFA challenges.
//
// Two backends implement the same contracts: a Redis backend built on
// atomic Lua compare-and-swap scripts and WATCH transactions, and a
// Postgres backend built on row-locked transactions (SELECT ... FOR
// UPDATE). Both guarantee the two invariants the engine relies on:
//
//   - a rotation family holds at most one active record at any time, and
//     two concurrent rotations of the same record produce exactly one
//     success and one reuse signal;
//   - an MFA challenge is consumed at most once, even under concurrent
//     verification attempts.
//
// Revoked records are retained (until natural expiry in Redis,
// indefinitely in Postgres) so reuse incidents stay auditable.
package stores
