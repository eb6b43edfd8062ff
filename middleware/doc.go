// Package middleware adapts the engine to net/http. Guard verifies
// the access token statelessly and injects the identity into the
// request context; the Require* wrappers compose the authz predicates
// on top of it.
//
// This package translates HTTP semantics into engine calls. It never
// parses tokens itself and never touches a datastore.
package middleware
