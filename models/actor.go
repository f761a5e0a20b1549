package models

// Roles carried in the X-User-Role header.
const (
	RoleStudent = "student"
	RoleTutor   = "tutor"
	RoleAdmin   = "admin"
)

// Actor is the caller identity forwarded by the auth gateway.
type Actor struct {
	ID    string
	Role  string
	Email string
}

func (a Actor) IsStudent() bool { return a.Role == RoleStudent }
func (a Actor) IsTutor() bool   { return a.Role == RoleTutor }
func (a Actor) IsAdmin() bool   { return a.Role == RoleAdmin }
