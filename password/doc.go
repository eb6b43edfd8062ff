// Package password hashes and verifies credentials with Argon2id,
// serialized in PHC string format. Verification is constant time and
// tolerant of hashes produced under older parameter sets, so stored
// credentials survive cost upgrades.
package password
