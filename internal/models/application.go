package models

import (
	"strings"
	"time"

	"gigflow/internal/money"
)

type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusHired    ApplicationStatus = "hired"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

func (s ApplicationStatus) Valid() bool {
	switch s {
	case ApplicationStatusPending, ApplicationStatusHired, ApplicationStatusRejected:
		return true
	}
	return false
}

func (s ApplicationStatus) IsTerminal() bool {
	switch s {
	case ApplicationStatusHired, ApplicationStatusRejected:
		return true
	case ApplicationStatusPending:
		return false
	}
	return false
}

// Application is a musician's answer to a gig, carrying the proposed cachê.
type Application struct {
	ID               int64             `json:"id"`
	GigID            int64             `json:"gig"`
	MusicianID       int64             `json:"musician"`
	MusicianName     string            `json:"musician_name"`
	CoverLetter      string            `json:"cover_letter,omitempty"`
	ExpectedFee      money.Amount      `json:"expected_fee"`
	Status           ApplicationStatus `json:"status"`
	ChatMessageCount int               `json:"chat_message_count"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`

	// Selected marks applications in the owner's draft selection. Not stored.
	Selected bool `json:"selected,omitempty"`
}

type ChatMessage struct {
	ID            int64     `json:"id"`
	ApplicationID int64     `json:"application"`
	SenderID      int64     `json:"sender"`
	SenderName    string    `json:"sender_name"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
	Unread        bool      `json:"unread,omitempty"`
}

// HireSelection is a contractor's draft set of applications for one gig.
// It lives in the draft store only.
type HireSelection struct {
	UserID         int64     `json:"user_id"`
	GigID          int64     `json:"gig_id"`
	ApplicationIDs []int64   `json:"application_ids"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Contains reports whether id is part of the selection.
func (s *HireSelection) Contains(id int64) bool {
	for _, candidate := range s.ApplicationIDs {
		if candidate == id {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
