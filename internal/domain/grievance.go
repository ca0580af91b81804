package domain

import "time"

// GrievanceStatus enumerates lifecycle states for grievances.
type GrievanceStatus string

const (
	StatusPending     GrievanceStatus = "PENDING"
	StatusUnderReview GrievanceStatus = "UNDER_REVIEW"
	StatusInProgress  GrievanceStatus = "IN_PROGRESS"
	StatusResolved    GrievanceStatus = "RESOLVED"
	StatusRejected    GrievanceStatus = "REJECTED"
)

// IsTerminal reports whether the status accepts no further transitions.
func (s GrievanceStatus) IsTerminal() bool {
	return s == StatusResolved || s == StatusRejected
}

// IsValid reports whether the status belongs to the enumeration.
func (s GrievanceStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusInProgress, StatusResolved, StatusRejected:
		return true
	}
	return false
}

// GrievanceCategory is the closed category enumeration.
type GrievanceCategory string

const (
	CategoryAcademic       GrievanceCategory = "ACADEMIC"
	CategoryInfrastructure GrievanceCategory = "INFRASTRUCTURE"
	CategoryAdministrative GrievanceCategory = "ADMINISTRATIVE"
	CategoryFinancial      GrievanceCategory = "FINANCIAL"
	CategoryOther          GrievanceCategory = "OTHER"
)

// IsValid reports whether the category belongs to the enumeration.
func (c GrievanceCategory) IsValid() bool {
	switch c {
	case CategoryAcademic, CategoryInfrastructure, CategoryAdministrative, CategoryFinancial, CategoryOther:
		return true
	}
	return false
}

// Policy constants. Fixed by product decision, not configurable per request.
const (
	// MinDescriptionLength is the minimum accepted grievance description.
	MinDescriptionLength = 50
	// ReminderCooldown is the minimum interval between reminders per grievance.
	ReminderCooldown = 48 * time.Hour
	// PendingRegistrationTTL bounds how long an unverified signup survives.
	PendingRegistrationTTL = 30 * time.Minute
)

// Grievance is the aggregate for submitted complaints.
type Grievance struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Category    GrievanceCategory
	Status      GrievanceStatus
	AssignedTo  *string
	Documents   []string
	Feedback    *string
	// RemindAfter is the instant after which another reminder is permitted.
	// Nil means no reminder has been sent yet.
	RemindAfter *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReminderPermittedAt returns when the next reminder becomes possible.
func (g *Grievance) ReminderPermittedAt() time.Time {
	if g.RemindAfter == nil {
		return time.Time{}
	}
	return *g.RemindAfter
}
