package permission

import "strings"

// Role is an organizer role on a resource.
type Role string

const (
	RoleOwner     Role = "owner"
	RoleEditor    Role = "editor"
	RoleViewer    Role = "viewer"
	RoleFinancial Role = "financial"
)

// roleSets is the static role table. It is never mutated after init.
var roleSets = map[Role]Set{
	RoleOwner: FullSet(),
	RoleEditor: NewSet(
		ViewAnalytics,
		ViewAttendees,
		ExportData,
		EditEvent,
		BroadcastMessages,
	),
	RoleViewer: NewSet(
		ViewAnalytics,
		ViewAttendees,
	),
	RoleFinancial: NewSet(
		ViewAnalytics,
		ViewFinancial,
		ManagePayments,
		ExportData,
	),
}

// ParseRole returns the role with the given name.
func ParseRole(name string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(name)))
	_, ok := roleSets[r]
	return r, ok
}

// Valid reports whether r is a declared role.
func (r Role) Valid() bool {
	_, ok := roleSets[r]
	return ok
}

// Permissions returns the static permission set of r. Unknown roles,
// including the empty role, map to the empty set.
func (r Role) Permissions() Set {
	return roleSets[r]
}

// Roles lists the declared roles.
func Roles() []Role {
	return []Role{RoleOwner, RoleEditor, RoleViewer, RoleFinancial}
}
