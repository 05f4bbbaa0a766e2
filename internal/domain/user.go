package domain

// Role represents an operator console access level.
type Role string

// Roles.
const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

var roleLevels = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// HasPermission reports whether the role meets or exceeds the required role.
func (r Role) HasPermission(required Role) bool {
	return roleLevels[r] >= roleLevels[required]
}

// IsValid checks if the role is known.
func (r Role) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}
