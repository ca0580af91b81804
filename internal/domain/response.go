package domain

import "time"

// Response is an admin reply attached to a grievance. Append-only.
type Response struct {
	ID          string
	GrievanceID string
	AdminID     string
	Text        string
	CreatedAt   time.Time
}
