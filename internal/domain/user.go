package domain

import "time"

// Role enumerates portal roles. Students submit grievances; clerk, dsw and
// admin are staff-side roles with inbox and triage access.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleClerk   Role = "CLERK"
	RoleDSW     Role = "DSW"
	RoleAdmin   Role = "ADMIN"
)

// StaffRoles lists the roles allowed to triage grievances and work the inbox.
func StaffRoles() []Role {
	return []Role{RoleClerk, RoleDSW, RoleAdmin}
}

// IsStaff reports whether the role carries staff privileges.
func (r Role) IsStaff() bool {
	switch r {
	case RoleClerk, RoleDSW, RoleAdmin:
		return true
	}
	return false
}

// User is the domain model for verified accounts. Users are created only by
// promoting a pending registration; they are never deleted in normal operation.
type User struct {
	ID           string
	UserID       string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PendingRegistration is the ephemeral projection of a not-yet-created user,
// keyed by email with a fixed TTL. Only the latest signup per address is
// completable.
type PendingRegistration struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Code         string    `json:"code"`
	CreatedAt    time.Time `json:"created_at"`
}
