package events

import (
	"time"

	"github.com/spec-kit/grievance-portal/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventGrievanceSubmitted     EventType = "grievance_submitted"
	EventGrievanceStatusChanged EventType = "grievance_status_changed"
	EventGrievanceAssigned      EventType = "grievance_assigned"
	EventGrievanceDeleted       EventType = "grievance_deleted"
	EventReminderRequested      EventType = "reminder_requested"
	EventResponseAdded          EventType = "response_added"
	EventCorrespondenceSent     EventType = "correspondence_sent"
	EventUserRegistered         EventType = "user_registered"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID          string      `json:"id"`
	Type        EventType   `json:"type"`
	GrievanceID string      `json:"grievance_id,omitempty"`
	ActorID     string      `json:"actor_id,omitempty"`
	Timestamp   time.Time   `json:"timestamp"`
	Payload     interface{} `json:"payload"`
}

// GrievanceSubmittedPayload payload.
type GrievanceSubmittedPayload struct {
	Title    string                   `json:"title"`
	Category domain.GrievanceCategory `json:"category"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	OldStatus domain.GrievanceStatus `json:"old_status"`
	NewStatus domain.GrievanceStatus `json:"new_status"`
}

// AssignedPayload payload.
type AssignedPayload struct {
	AssignedTo string `json:"assigned_to"`
}

// ReminderRequestedPayload payload.
type ReminderRequestedPayload struct {
	Delivered   bool      `json:"delivered"`
	RemindAfter time.Time `json:"remind_after"`
}

// ResponseAddedPayload payload.
type ResponseAddedPayload struct {
	ResponseID string `json:"response_id"`
	AdminID    string `json:"admin_id"`
}

// UserRegisteredPayload payload.
type UserRegisteredPayload struct {
	UserID string      `json:"user_id"`
	Role   domain.Role `json:"role"`
}

// CorrespondenceSentPayload payload.
type CorrespondenceSentPayload struct {
	MessageID string               `json:"message_id"`
	Delivery  domain.DeliveryState `json:"delivery"`
	Subject   string               `json:"subject"`
}
