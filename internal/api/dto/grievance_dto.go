package dto

import (
	"time"

	"github.com/spec-kit/grievance-portal/internal/domain"
	"github.com/spec-kit/grievance-portal/internal/service"
)

// SubmitGrievanceRequest payload.
type SubmitGrievanceRequest struct {
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Category    domain.GrievanceCategory `json:"category"`
	Documents   []string                 `json:"documents"`
}

// GrievanceResponse is the public view of a grievance.
type GrievanceResponse struct {
	ID          string                   `json:"id"`
	UserID      string                   `json:"user_id"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Category    domain.GrievanceCategory `json:"category"`
	Status      domain.GrievanceStatus   `json:"status"`
	AssignedTo  *string                  `json:"assigned_to,omitempty"`
	Documents   []string                 `json:"documents,omitempty"`
	Feedback    *string                  `json:"feedback,omitempty"`
	RemindAfter *time.Time               `json:"remind_after,omitempty"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
}

// NewGrievanceResponse maps a domain grievance.
func NewGrievanceResponse(g *domain.Grievance) GrievanceResponse {
	return GrievanceResponse{
		ID:          g.ID,
		UserID:      g.UserID,
		Title:       g.Title,
		Description: g.Description,
		Category:    g.Category,
		Status:      g.Status,
		AssignedTo:  g.AssignedTo,
		Documents:   g.Documents,
		Feedback:    g.Feedback,
		RemindAfter: g.RemindAfter,
		CreatedAt:   g.CreatedAt,
		UpdatedAt:   g.UpdatedAt,
	}
}

// SubmitGrievanceResponse acknowledges a submission; Warning is set when the
// confirmation email could not be delivered.
type SubmitGrievanceResponse struct {
	Grievance GrievanceResponse `json:"grievance"`
	Warning   string            `json:"warning,omitempty"`
}

// GrievanceDetailResponse bundles a grievance with its response thread.
type GrievanceDetailResponse struct {
	Grievance GrievanceResponse   `json:"grievance"`
	Responses []AdminResponseView `json:"responses"`
}

// AdminResponseView is one admin response in the thread.
type AdminResponseView struct {
	ID        string    `json:"id"`
	AdminID   string    `json:"admin_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAdminResponseViews maps the response thread.
func NewAdminResponseViews(responses []domain.Response) []AdminResponseView {
	out := make([]AdminResponseView, 0, len(responses))
	for _, r := range responses {
		out = append(out, AdminResponseView{
			ID:        r.ID,
			AdminID:   r.AdminID,
			Text:      r.Text,
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}

// SetStatusRequest payload.
type SetStatusRequest struct {
	Status domain.GrievanceStatus `json:"status"`
}

// AssignRequest payload.
type AssignRequest struct {
	StaffID string `json:"staff_id"`
}

// AddResponseRequest payload.
type AddResponseRequest struct {
	Text string `json:"text"`
}

// FeedbackRequest payload.
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
}

// ReminderAckResponse acknowledges an accepted reminder. ComposeFallback is
// present only when automated delivery failed.
type ReminderAckResponse struct {
	GrievanceID string                   `json:"grievance_id"`
	Status      domain.GrievanceStatus   `json:"status"`
	RemindAfter time.Time                `json:"remind_after"`
	Delivered   bool                     `json:"delivered"`
	Fallback    *service.ComposeFallback `json:"compose_fallback,omitempty"`
}

// NewReminderAckResponse maps a reminder acknowledgement.
func NewReminderAckResponse(ack *service.ReminderAck) ReminderAckResponse {
	return ReminderAckResponse{
		GrievanceID: ack.GrievanceID,
		Status:      ack.Status,
		RemindAfter: ack.RemindAfter,
		Delivered:   ack.Delivered,
		Fallback:    ack.Fallback,
	}
}
