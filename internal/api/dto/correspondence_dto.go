package dto

import (
	"time"

	"github.com/spec-kit/grievance-portal/internal/domain"
)

// InboundMessageRequest records mail received from outside.
type InboundMessageRequest struct {
	Subject           string   `json:"subject"`
	From              string   `json:"from"`
	To                []string `json:"to"`
	CC                []string `json:"cc"`
	Body              string   `json:"body"`
	LinkedGrievanceID *string  `json:"linked_grievance_id,omitempty"`
}

// MessageResponse is the inbox view of a correspondence message.
type MessageResponse struct {
	ID                string               `json:"id"`
	Subject           string               `json:"subject"`
	From              string               `json:"from"`
	To                []string             `json:"to"`
	CC                []string             `json:"cc,omitempty"`
	BCC               []string             `json:"bcc,omitempty"`
	Body              string               `json:"body"`
	SentAt            time.Time            `json:"sent_at"`
	Read              bool                 `json:"read"`
	Starred           bool                 `json:"starred"`
	Delivery          domain.DeliveryState `json:"delivery"`
	OriginalMessageID *string              `json:"original_message_id,omitempty"`
	LinkedGrievanceID *string              `json:"linked_grievance_id,omitempty"`
}

// NewMessageResponse maps a domain message.
func NewMessageResponse(msg *domain.CorrespondenceMessage) MessageResponse {
	return MessageResponse{
		ID:                msg.ID,
		Subject:           msg.Subject,
		From:              msg.From,
		To:                msg.To,
		CC:                msg.CC,
		BCC:               msg.BCC,
		Body:              msg.Body,
		SentAt:            msg.SentAt,
		Read:              msg.Read,
		Starred:           msg.Starred,
		Delivery:          msg.Delivery,
		OriginalMessageID: msg.OriginalMessageID,
		LinkedGrievanceID: msg.LinkedGrievanceID,
	}
}

// NewMessageResponses maps a message list.
func NewMessageResponses(msgs []domain.CorrespondenceMessage) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for i := range msgs {
		out = append(out, NewMessageResponse(&msgs[i]))
	}
	return out
}

// ReplyRequest payload.
type ReplyRequest struct {
	Body string `json:"body"`
}

// ForwardRequest payload.
type ForwardRequest struct {
	To   []string `json:"to"`
	CC   []string `json:"cc"`
	BCC  []string `json:"bcc"`
	Note string   `json:"note"`
}

// AttachmentUploadResponse reports where an uploaded document landed.
type AttachmentUploadResponse struct {
	FileName  string `json:"file_name"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes"`
}
