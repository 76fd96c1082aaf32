package roles

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("roles: not found")
	// ErrDuplicate indicates a unique constraint violation, e.g. assigning
	// the same role to a user twice.
	ErrDuplicate = errors.New("roles: duplicate")
	// ErrRoleInUse blocks deletion of a role that is still assigned.
	ErrRoleInUse = errors.New("roles: role is assigned to users")
	// ErrProtectedRole blocks deletion or renaming of a system role.
	ErrProtectedRole = errors.New("roles: system role is protected")
	// ErrUnknownPermission rejects grants outside the permission registry.
	ErrUnknownPermission = errors.New("roles: permission not in registry")
)

// Role represents a named, administrator-managed bundle of permission keys.
type Role struct {
	ID          int64
	Name        string
	Description string
	System      bool
	Permissions []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserRole links a user to a role.
type UserRole struct {
	UserID    int64
	RoleID    int64
	CreatedAt time.Time
}
