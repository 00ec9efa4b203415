package models

// Role is the caller's role as resolved from the session.
type Role string

const (
	RoleStudent    Role = "student"
	RoleAdvisor    Role = "advisor"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// IsStaff reports whether the role may act on another user's intake record.
func (r Role) IsStaff() bool {
	switch r {
	case RoleAdvisor, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Caller is the authenticated identity attached to a request.
type Caller struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
	IP     string `json:"-"`
}
