package authz

// PermissionMode selects how a permission set is evaluated.
type PermissionMode int

const (
	// PermissionAny passes when the identity holds at least one of the
	// required permissions.
	PermissionAny PermissionMode = iota

	// PermissionAll passes only when the identity holds every required
	// permission.
	PermissionAll
)

// HasRole reports whether the identity's role is one of the allowed
// roles. Empty allowed list denies.
func HasRole(id Identity, allowed ...string) bool {
	for _, role := range allowed {
		if id.Role == role {
			return true
		}
	}
	return false
}

// HasPrivilege reports whether the identity's privilege level meets the
// minimum. Level comparison, not role identity: a superadmin passes
// every admin gate.
func HasPrivilege(id Identity, minimum int) bool {
	return id.PrivilegeLevel >= minimum
}

// HasPermission evaluates the required permissions against the
// identity's set under the given mode. An empty required list passes
// under PermissionAll (nothing demanded) and denies under
// PermissionAny (nothing grantable).
func HasPermission(id Identity, mode PermissionMode, required ...string) bool {
	if len(required) == 0 {
		return mode == PermissionAll
	}

	held := make(map[string]struct{}, len(id.Permissions))
	for _, p := range id.Permissions {
		held[p] = struct{}{}
	}

	for _, want := range required {
		_, ok := held[want]
		switch mode {
		case PermissionAny:
			if ok {
				return true
			}
		case PermissionAll:
			if !ok {
				return false
			}
		}
	}

	return mode == PermissionAll
}

// HasFeature reports whether the identity's plan includes the feature.
func HasFeature(id Identity, feature string) bool {
	for _, f := range id.Features {
		if f == feature {
			return true
		}
	}
	return false
}

// RequireAdminMFA reports whether the identity is an admin-tier subject
// that completed the MFA challenge flow. Admin privilege without
// MFAVerified fails; MFAVerified without admin privilege also fails.
func RequireAdminMFA(id Identity) bool {
	return id.PrivilegeLevel >= PrivilegeAdmin && id.MFAVerified
}

// IsOwnerOrAdmin reports whether the identity is the resource owner or
// holds admin privilege.
func IsOwnerOrAdmin(id Identity, ownerID string) bool {
	if ownerID != "" && id.UserID == ownerID {
		return true
	}
	return id.PrivilegeLevel >= PrivilegeAdmin
}
