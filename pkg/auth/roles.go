package auth

// Role names carried in the role claim, ordered by privilege.
//
// Admin users hold READONLY, ADMIN or SUPER_ADMIN. Service accounts hold
// SERVICE or OPERATOR depending on whether they may mutate file state.
const (
	RoleReadOnly   = "READONLY"
	RoleService    = "SERVICE"
	RoleOperator   = "OPERATOR"
	RoleAdmin      = "ADMIN"
	RoleSuperAdmin = "SUPER_ADMIN"
)

// roleRank orders roles by privilege. Unknown roles rank below everything.
var roleRank = map[string]int{
	RoleReadOnly:   1,
	RoleService:    2,
	RoleOperator:   3,
	RoleAdmin:      4,
	RoleSuperAdmin: 5,
}

// RoleAtLeast reports whether role meets or exceeds the privilege of min.
// Unknown roles never satisfy any requirement.
func RoleAtLeast(role, min string) bool {
	r, ok := roleRank[role]
	if !ok {
		return false
	}
	m, ok := roleRank[min]
	if !ok {
		return false
	}
	return r >= m
}

// ValidRole reports whether the given role name is one of the known roles.
func ValidRole(role string) bool {
	_, ok := roleRank[role]
	return ok
}
