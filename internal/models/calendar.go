package models

import "time"

const (
	CalendarSourceGig    = "gig"
	CalendarSourceManual = "manual"
)

// CalendarBlock is a slot taken on a musician's availability calendar.
type CalendarBlock struct {
	ID         int64     `json:"id"`
	MusicianID int64     `json:"musician_id"`
	GigID      int64     `json:"gig_id"`
	Date       string    `json:"date"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Source     string    `json:"source"`
	ExternalID string    `json:"external_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	CalendarTaskBlock   = "block"
	CalendarTaskRelease = "release"
)

const (
	TaskStatusPending    = "pending"
	TaskStatusProcessing = "processing"
	TaskStatusRetry      = "retry"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
)

// CalendarTask represents a queued calendar side effect of a gig transition.
type CalendarTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	GigID       int64      `json:"gig_id"`
	MusicianID  int64      `json:"musician_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}
