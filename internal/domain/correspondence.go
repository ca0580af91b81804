package domain

import "time"

// DeliveryState tracks whether an outgoing message left the building.
type DeliveryState string

const (
	// DeliverySent means the notification dispatcher accepted the message.
	DeliverySent DeliveryState = "SENT"
	// DeliveryDraft marks messages persisted after dispatch failed so an
	// operator can retry manually.
	DeliveryDraft DeliveryState = "DRAFT"
	// DeliveryInbound marks messages received from outside.
	DeliveryInbound DeliveryState = "INBOUND"
)

// CorrespondenceMessage is one entry in the admin inbox, optionally threaded
// to an earlier message and optionally linked to a grievance.
type CorrespondenceMessage struct {
	ID                string
	Subject           string
	From              string
	To                []string
	CC                []string
	BCC               []string
	Body              string
	SentAt            time.Time
	Read              bool
	Starred           bool
	Delivery          DeliveryState
	OriginalMessageID *string
	LinkedGrievanceID *string
}
