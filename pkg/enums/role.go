package enums

// Role is the coarse authorization role carried in access tokens.
type Role string

const (
	RoleBuyer Role = "buyer"
	RoleAdmin Role = "admin"
)

func (r Role) IsValid() bool {
	return r == RoleBuyer || r == RoleAdmin
}
