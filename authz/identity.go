package authz

import "context"

// Privilege levels of the built-in role ladder. Unknown roles map to
// PrivilegeGuest so a typo can never grant elevated access.
const (
	PrivilegeGuest      = 0
	PrivilegeUser       = 10
	PrivilegeSubscriber = 50
	PrivilegeAdmin      = 90
	PrivilegeSuperadmin = 100
)

// PrivilegeForRole maps a normalized (lowercase) role name to its
// privilege level.
func PrivilegeForRole(role string) int {
	switch role {
	case "user":
		return PrivilegeUser
	case "subscriber":
		return PrivilegeSubscriber
	case "admin":
		return PrivilegeAdmin
	case "superadmin":
		return PrivilegeSuperadmin
	default:
		return PrivilegeGuest
	}
}

// Identity is the verified claim snapshot extracted from an access
// token. It reflects the subject's authorization state at issuance
// time, not the live datastore.
type Identity struct {
	UserID         string
	Email          string
	Role           string
	PrivilegeLevel int
	Permissions    []string
	Features       []string
	MFAVerified    bool
}

type identityKey struct{}

// ContextWithIdentity returns a context carrying the verified identity.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext extracts the identity placed by the access guard.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
