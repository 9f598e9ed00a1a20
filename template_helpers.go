package clubhouse

import (
	"maps"

	"github.com/castellan/clubhouse/middleware/csrf"
	"github.com/goliatone/go-router"
)

var TemplateMemberKey = "current_member"

// TemplateHelpers returns a map of helper functions and data for use with the
// template engine's global data.
//
// In templates:
//
//	{% if current_member %}
//	{% if current_member|has_role:"admin" %}
//	{{ csrf_field }}
//	{{ csrf_token }}
func TemplateHelpers() map[string]any {
	helpers := map[string]any{
		"is_signed_in": isSignedIn,
		"has_role":     templateHasRole,
		"is_at_least":  templateIsAtLeast,
		"can_moderate": templateCanModerate,

		// Role constants for easy template access
		"roles": map[string]string{
			"member":    string(RoleMember),
			"moderator": string(RoleModerator),
			"admin":     string(RoleAdmin),
		},
	}

	maps.Copy(helpers, csrfPlaceholders())

	return helpers
}

// TemplateHelpersWithMember returns template helpers with a specific member
// injected as current_member.
func TemplateHelpersWithMember(member *Member) map[string]any {
	helpers := TemplateHelpers()
	helpers[TemplateMemberKey] = member
	return helpers
}

// TemplateHelpersWithRouter returns template helpers populated from router
// context: the current member left by the session middleware plus the live
// CSRF token values.
func TemplateHelpersWithRouter(ctx router.Context, memberKey string) map[string]any {
	if memberKey == "" {
		memberKey = TemplateMemberKey
	}

	helpers := TemplateHelpers()

	if member := ctx.Locals(memberKey); member != nil {
		helpers[TemplateMemberKey] = member
	}

	for key, value := range csrf.TemplateHelpersWithRouter(ctx, csrf.DefaultContextKey) {
		helpers[key] = value
	}

	return helpers
}

// GetTemplateMember extracts member data from router context for template
// usage, reporting whether anything was found.
func GetTemplateMember(ctx router.Context, memberKey string) (any, bool) {
	if memberKey == "" {
		memberKey = TemplateMemberKey
	}

	member := ctx.Locals(memberKey)
	return member, member != nil
}

// MergeTemplateData layers router-derived helpers (current member, CSRF
// values) under the handler's own view data. Handler keys win.
func MergeTemplateData(ctx router.Context, data router.ViewContext) router.ViewContext {
	merged := router.ViewContext{}

	for key, value := range TemplateHelpersWithRouter(ctx, TemplateMemberKey) {
		merged[key] = value
	}

	for key, value := range data {
		merged[key] = value
	}

	return merged
}

// csrfPlaceholders returns empty-value CSRF helpers so templates rendered
// outside a request still resolve the keys.
func csrfPlaceholders() map[string]any {
	return map[string]any{
		"csrf_token":       "",
		"csrf_field":       `<input type="hidden" name="` + csrf.DefaultFormFieldName + `" value="">`,
		"csrf_meta":        `<meta name="csrf-token" content="">`,
		"csrf_header_name": csrf.DefaultHeaderName,
	}
}

// isSignedIn checks if the provided member object is not nil
func isSignedIn(member any) bool {
	if member == nil {
		return false
	}

	switch m := member.(type) {
	case *Member:
		return m != nil
	case Member:
		return true
	case AuthClaims:
		return m != nil && m.MemberID() != ""
	case map[string]any:
		return len(m) > 0
	default:
		return false
	}
}

// templateHasRole checks if the member has the specified role
func templateHasRole(member any, role string) bool {
	targetRole := MemberRole(role)

	switch m := member.(type) {
	case *Member:
		if m == nil {
			return false
		}
		return m.Role == targetRole
	case Member:
		return m.Role == targetRole
	case AuthClaims:
		if m == nil {
			return false
		}
		return m.HasRole(role)
	case map[string]any:
		if memberRole, exists := m["member_role"]; exists {
			if roleStr, ok := memberRole.(string); ok {
				return MemberRole(roleStr) == targetRole
			}
		}
		return false
	default:
		return false
	}
}

// templateIsAtLeast checks if the member's role is at least the minimum required level
func templateIsAtLeast(member any, minRole string) bool {
	minRoleTyped := MemberRole(minRole)

	switch m := member.(type) {
	case *Member:
		if m == nil {
			return false
		}
		return RoleIsAtLeast(m.Role, minRoleTyped)
	case Member:
		return RoleIsAtLeast(m.Role, minRoleTyped)
	case AuthClaims:
		if m == nil {
			return false
		}
		return m.IsAtLeast(minRoleTyped)
	case map[string]any:
		if memberRole, exists := m["member_role"]; exists {
			if roleStr, ok := memberRole.(string); ok {
				return RoleIsAtLeast(MemberRole(roleStr), minRoleTyped)
			}
		}
		return false
	default:
		return false
	}
}

// templateCanModerate reports whether the member can pin and remove content
func templateCanModerate(member any) bool {
	switch m := member.(type) {
	case *Member:
		if m == nil {
			return false
		}
		return CanModerate(m.Role)
	case Member:
		return CanModerate(m.Role)
	case AuthClaims:
		if m == nil {
			return false
		}
		return m.IsAtLeast(RoleModerator)
	case map[string]any:
		if memberRole, exists := m["member_role"]; exists {
			if roleStr, ok := memberRole.(string); ok {
				return CanModerate(MemberRole(roleStr))
			}
		}
		return false
	default:
		return false
	}
}
