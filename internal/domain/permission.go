package domain

// PermissionLevel is the ordered permission enumeration used for
// "at least" checks: view < edit < admin. Ownership of an endpoint is
// equivalent to an implicit admin grant that is never persisted.
type PermissionLevel string

const (
	PermissionView  PermissionLevel = "view"
	PermissionEdit  PermissionLevel = "edit"
	PermissionAdmin PermissionLevel = "admin"
)

var permissionRank = map[PermissionLevel]int{
	PermissionView:  1,
	PermissionEdit:  2,
	PermissionAdmin: 3,
}

// Valid reports whether l is one of the three known levels.
func (l PermissionLevel) Valid() bool {
	_, ok := permissionRank[l]
	return ok
}

// AtLeast reports whether l grants everything required does. An unknown
// level never satisfies anything.
func (l PermissionLevel) AtLeast(required PermissionLevel) bool {
	lr, ok := permissionRank[l]
	if !ok {
		return false
	}
	rr, ok := permissionRank[required]
	if !ok {
		return false
	}
	return lr >= rr
}
