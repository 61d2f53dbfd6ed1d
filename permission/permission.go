package permission

import "strings"

// Permission is one capability a user can hold on a resource.
type Permission uint8

const (
	ViewAnalytics Permission = iota
	ViewAttendees
	ExportData
	EditEvent
	DeleteEvent
	ViewFinancial
	ManagePayments
	BroadcastMessages
	ManageOrganizers

	numPermissions
)

var permissionNames = [numPermissions]string{
	ViewAnalytics:     "view_analytics",
	ViewAttendees:     "view_attendees",
	ExportData:        "export_data",
	EditEvent:         "edit_event",
	DeleteEvent:       "delete_event",
	ViewFinancial:     "view_financial",
	ManagePayments:    "manage_payments",
	BroadcastMessages: "broadcast_messages",
	ManageOrganizers:  "manage_organizers",
}

// String returns the wire name of p, or "unknown" for an out-of-range value.
func (p Permission) String() string {
	if !p.Valid() {
		return "unknown"
	}
	return permissionNames[p]
}

// Valid reports whether p is one of the declared permissions.
func (p Permission) Valid() bool {
	return p < numPermissions
}

// Parse returns the permission with the given wire name. Matching is
// case-insensitive and ignores surrounding whitespace.
func Parse(name string) (Permission, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range permissionNames {
		if n == name {
			return Permission(i), true
		}
	}
	return 0, false
}

// All returns every declared permission in bit order.
func All() []Permission {
	out := make([]Permission, numPermissions)
	for i := range out {
		out[i] = Permission(i)
	}
	return out
}

// Names maps a permission list to wire names.
func Names(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.String())
	}
	return out
}
