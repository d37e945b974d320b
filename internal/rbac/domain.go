package rbac

import "time"

// Role groups a set of permissions under a name.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission is a single grantable capability, identified by code.
type Permission struct {
	ID          int64
	Code        string
	Description string
}

// RoleDetail is a role together with its granted permissions.
type RoleDetail struct {
	Role
	Permissions []Permission
}
