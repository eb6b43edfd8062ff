// Package authcore is an embeddable authentication and authorization
// engine: credential verification, JWT access/refresh issuance with
// separate signing keys, refresh-token rotation with family-based
// reuse detection, an admin MFA challenge flow bound to the initiating
// device, and pure authorization predicates over verified claims.
//
// The engine is storage-agnostic at the edges (user lookup and
// permission resolution are caller-supplied) and owns the token state
// in Redis or Postgres. Construct one with the Builder:
//
//	engine, err := authcore.New().
//		WithConfig(cfg).
//		WithRedis(client).
//		WithUserStore(users).
//		WithPermissionResolver(perms).
//		Build()
//
// All Engine methods are safe for concurrent use.
package authcore
