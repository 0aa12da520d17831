package model

// Role represents a row in the `roles` table. A role is a named
// bundle of permissions assignable to users through the user_roles
// association table.
type Role struct {
	ID          uint64       `json:"id"`
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// UserRole is the association row linking a user to a role. It has no
// lifecycle of its own beyond its parents.
type UserRole struct {
	UserID uint64
	RoleID uint64
}

// RolePermission is the association row linking a role to a
// permission.
type RolePermission struct {
	RoleID       uint64
	PermissionID uint64
}
