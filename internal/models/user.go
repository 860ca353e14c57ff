package models

import (
	"strings"
	"time"
)

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleUser       UserRole = "ROLE_USER"
	RoleResolver   UserRole = "ROLE_RESOLVER"
	RoleDeptAdmin  UserRole = "ROLE_DEPT_ADMIN"
	RoleReviewer   UserRole = "ROLE_REVIEWER"
	RoleSuperAdmin UserRole = "ROLE_SUPER_ADMIN"
)

// AllRoles lists every role.
var AllRoles = []UserRole{RoleUser, RoleResolver, RoleDeptAdmin, RoleReviewer, RoleSuperAdmin}

// ParseUserRole accepts ROLE_X or X, case-insensitively.
func ParseUserRole(raw string) (UserRole, bool) {
	candidate := strings.ToUpper(strings.TrimSpace(raw))
	if candidate != "" && !strings.HasPrefix(candidate, "ROLE_") {
		candidate = "ROLE_" + candidate
	}
	for _, role := range AllRoles {
		if string(role) == candidate {
			return role, true
		}
	}
	return "", false
}

// IsStaff reports whether the role works complaints rather than filing them.
func (r UserRole) IsStaff() bool {
	switch r {
	case RoleResolver, RoleDeptAdmin, RoleReviewer, RoleSuperAdmin:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Department   *string    `db:"department" json:"department,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Info strips credentials and bookkeeping from u.
func (u *User) Info() UserInfo {
	return UserInfo{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		Role:       u.Role,
		Department: u.Department,
		LastLogin:  u.LastLogin,
	}
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
