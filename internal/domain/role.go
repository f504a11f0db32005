package domain

// Account roles. RoleAdmin is never self-assignable at registration.
const (
	RoleCustomer = "customer"
	RoleSeller   = "seller"
	RoleEmployer = "employer"
	RoleEmployee = "employee"
	RoleAdmin    = "admin"
)

// IsSelfAssignableRole reports whether a user may pick role when signing up.
func IsSelfAssignableRole(role string) bool {
	switch role {
	case RoleCustomer, RoleSeller, RoleEmployer, RoleEmployee:
		return true
	}
	return false
}
