package models

import "time"

// Sales prospect statuses.
const (
	ProspectStatusNew       = "new"
	ProspectStatusContacted = "contacted"
	ProspectStatusConverted = "converted"
	ProspectStatusClosed    = "closed"
)

// Prospect is a sales lead tracked by reps before a clinic signs up.
type Prospect struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ClinicName string    `json:"clinicName,omitempty"`
	Email      string    `json:"email,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	SalesRepID string    `json:"salesRepId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
