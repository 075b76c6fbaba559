package domain

// Role enumerates principal roles issued by the identity provider.
type Role string

const (
	RoleOperator      Role = "operator"
	RoleAdmin         Role = "admin"
	RoleFederation    Role = "federation"
	RoleConfederation Role = "confederation"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOperator, RoleAdmin, RoleFederation, RoleConfederation:
		return true
	}
	return false
}

// Agent is a directory entry for someone who can receive alerts.
type Agent struct {
	ID     string
	Name   string
	Email  string
	OrgID  string
	Active bool
}
