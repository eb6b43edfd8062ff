package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	authcore "github.com/mindhaven/authcore"
	"github.com/mindhaven/authcore/authz"
)

// errorBody is the JSON error envelope. The action field tells clients
// how to recover: "refresh" for an aged-out access token, "login" for
// everything else.
type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Action  string `json:"action,omitempty"`
}

const (
	codeTokenExpired = "TOKEN_EXPIRED"
	codeTokenInvalid = "INVALID_TOKEN"
	codeForbidden    = "FORBIDDEN"
)

// Guard verifies the access token and injects the identity into the
// request context. The Authorization header wins over the access_token
// cookie when both are present.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				writeError(w, http.StatusUnauthorized, errorBody{
					Message: "authentication unavailable",
					Code:    codeTokenInvalid,
					Action:  "login",
				})
				return
			}

			token, ok := extractToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, errorBody{
					Message: "authentication required",
					Code:    codeTokenInvalid,
					Action:  "login",
				})
				return
			}

			identity, err := engine.VerifyAccess(token)
			if err != nil {
				if errors.Is(err, authcore.ErrTokenExpired) {
					writeError(w, http.StatusUnauthorized, errorBody{
						Message: "access token expired",
						Code:    codeTokenExpired,
						Action:  "refresh",
					})
					return
				}
				writeError(w, http.StatusUnauthorized, errorBody{
					Message: "invalid access token",
					Code:    codeTokenInvalid,
					Action:  "login",
				})
				return
			}

			ctx := authz.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromRequest is a convenience for handlers behind Guard.
func IdentityFromRequest(r *http.Request) (authz.Identity, bool) {
	return authz.IdentityFromContext(r.Context())
}

func extractToken(r *http.Request) (string, bool) {
	const bearer = "Bearer "
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, bearer) {
		token := header[len(bearer):]
		if token != "" {
			return token, true
		}
	}

	cookie, err := r.Cookie(authcore.CookieAccessToken)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
