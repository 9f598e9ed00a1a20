package clubhouse

// RoleValidator defines role-based access checks used by downstream routes
type RoleValidator interface {
	// HasRole checks if the member has a specific role
	HasRole(role string) bool

	// IsAtLeast checks if the member's role is at least the minimum required role
	IsAtLeast(minRole MemberRole) bool
}

// IsValidRole checks if the role is one of the predefined valid roles
func IsValidRole(r MemberRole) bool {
	switch r {
	case RoleMember, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// CanModerate reports whether the role can pin and remove content
func CanModerate(r MemberRole) bool {
	switch r {
	case RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// RoleIsAtLeast checks if role meets the minimum required level
func RoleIsAtLeast(r, minRole MemberRole) bool {
	roleHierarchy := map[MemberRole]int{
		RoleMember:    0,
		RoleModerator: 1,
		RoleAdmin:     2,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// AllRoles returns all predefined roles in hierarchical order
func AllRoles() []MemberRole {
	return []MemberRole{
		RoleMember,
		RoleModerator,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a MemberRole
func ParseRole(roleStr string) (MemberRole, bool) {
	role := MemberRole(roleStr)
	return role, IsValidRole(role)
}
