package middleware

import (
	"net/http"

	"github.com/mindhaven/authcore/authz"
)

// requirement wraps an authz predicate as middleware. Missing identity
// (no Guard upstream) reads as unauthorized, a failed predicate as
// forbidden.
func requirement(check func(authz.Identity) bool, message string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := authz.IdentityFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, errorBody{
					Message: "authentication required",
					Code:    codeTokenInvalid,
					Action:  "login",
				})
				return
			}

			if !check(identity) {
				writeError(w, http.StatusForbidden, errorBody{
					Message: message,
					Code:    codeForbidden,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole admits only the listed roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return requirement(func(id authz.Identity) bool {
		return authz.HasRole(id, roles...)
	}, "role not permitted")
}

// RequirePrivilege admits identities at or above the minimum level.
func RequirePrivilege(minimum int) func(http.Handler) http.Handler {
	return requirement(func(id authz.Identity) bool {
		return authz.HasPrivilege(id, minimum)
	}, "insufficient privilege")
}

// RequirePermissions admits identities whose permission set satisfies
// the required list under the given mode.
func RequirePermissions(mode authz.PermissionMode, permissions ...string) func(http.Handler) http.Handler {
	return requirement(func(id authz.Identity) bool {
		return authz.HasPermission(id, mode, permissions...)
	}, "permission denied")
}

// RequireAdminMFA admits only admin-tier identities that completed the
// MFA challenge flow.
func RequireAdminMFA() func(http.Handler) http.Handler {
	return requirement(authz.RequireAdminMFA, "admin mfa required")
}
