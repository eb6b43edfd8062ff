// Package jwt mints and verifies the three token kinds the engine
// issues: short-lived access tokens, long-lived refresh tokens, and
// intermediate admin MFA challenge tokens. Access and refresh tokens
// are signed with separate HS256 secrets, and every token carries a
// typ claim so one kind can never be presented as another.
package jwt
