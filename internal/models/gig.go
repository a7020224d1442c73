package models

import (
	"time"

	"gigflow/internal/money"
)

type GigStatus string

const (
	GigStatusOpen      GigStatus = "open"
	GigStatusInReview  GigStatus = "in_review"
	GigStatusHired     GigStatus = "hired"
	GigStatusClosed    GigStatus = "closed"
	GigStatusCancelled GigStatus = "cancelled"
)

// Valid reports whether s is one of the known gig statuses.
func (s GigStatus) Valid() bool {
	switch s {
	case GigStatusOpen, GigStatusInReview, GigStatusHired, GigStatusClosed, GigStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further status-affecting action is allowed.
func (s GigStatus) IsTerminal() bool {
	switch s {
	case GigStatusClosed, GigStatusCancelled:
		return true
	case GigStatusOpen, GigStatusInReview, GigStatusHired:
		return false
	}
	return false
}

// AcceptsApplications reports whether musicians may still apply or be hired.
func (s GigStatus) AcceptsApplications() bool {
	switch s {
	case GigStatusOpen, GigStatusInReview:
		return true
	case GigStatusHired, GigStatusClosed, GigStatusCancelled:
		return false
	}
	return false
}

// Gig is a job posted by a contractor. EventDate ("YYYY-MM-DD"), StartTime and
// EndTime ("HH:MM") are empty when not yet arranged.
type Gig struct {
	ID                int64        `json:"id"`
	Title             string       `json:"title"`
	Description       string       `json:"description"`
	City              string       `json:"city"`
	Location          string       `json:"location"`
	EventDate         string       `json:"event_date,omitempty"`
	StartTime         string       `json:"start_time,omitempty"`
	EndTime           string       `json:"end_time,omitempty"`
	Budget            money.Amount `json:"budget"`
	Genres            []string     `json:"genres"`
	ContactPhone      string       `json:"contact_phone"`
	ContactEmail      string       `json:"contact_email"`
	Status            GigStatus    `json:"status"`
	CreatedBy         int64        `json:"created_by"`
	ApplicationsCount int          `json:"applications_count"`
	MyApplication     *Application `json:"my_application,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	Version           int64        `json:"version"`
}

// HasGenre reports whether the gig lists genre, ignoring case.
func (g *Gig) HasGenre(genre string) bool {
	for _, candidate := range g.Genres {
		if equalFold(candidate, genre) {
			return true
		}
	}
	return false
}
