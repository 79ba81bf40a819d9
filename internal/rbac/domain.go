package rbac

import "time"

// MaxNameLength caps controller and action names as stored in the database.
const MaxNameLength = 70

// Role is a named permission group an administrator defines.
type Role struct {
	ID          int64
	Name        string
	Permissions []Permission
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission identifies one enforceable controller/action endpoint. A role
// holds its permissions exclusively; deleting the role deletes them.
type Permission struct {
	Controller string
	Action     string
}

// UserAccess pairs a user with the names of the roles assigned to them,
// for the access listing page.
type UserAccess struct {
	UserID   int64
	UserName string
	Roles    []string
}
