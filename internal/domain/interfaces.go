package domain

import (
	"context"
	"time"

	"gigflow/internal/database"
	"gigflow/internal/models"
)

// Repository is the persistent store of gigs, applications, chat and calendars.
type Repository interface {
	CreateGig(ctx context.Context, g *models.Gig) error
	GetGig(ctx context.Context, id int64) (*models.Gig, error)
	ListGigs(ctx context.Context, q database.GigQuery) ([]models.Gig, error)
	UpdateGigDetails(ctx context.Context, g *models.Gig, fromVersion int64) error
	SaveTransition(ctx context.Context, g *models.Gig, fromVersion int64, changed []*models.Application) error

	CreateApplication(ctx context.Context, g *models.Gig, fromVersion int64, app *models.Application) error
	GetApplication(ctx context.Context, id int64) (*models.Application, error)
	FindApplication(ctx context.Context, gigID, musicianID int64) (*models.Application, error)
	ListApplicationsByGig(ctx context.Context, gigID int64) ([]models.Application, error)
	ListApplicationsByMusician(ctx context.Context, musicianID int64) ([]models.Application, error)
	ListApplicationsForGigs(ctx context.Context, musicianID int64, gigIDs []int64) (map[int64]models.Application, error)

	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	ListMessages(ctx context.Context, applicationID int64) ([]models.ChatMessage, error)
	ListMessagesByGig(ctx context.Context, gigID int64) ([]models.ChatMessage, error)
	MarkRead(ctx context.Context, applicationID, readerID int64, at time.Time) error
	LastRead(ctx context.Context, applicationID, readerID int64) (time.Time, error)
	LastReads(ctx context.Context, readerID int64) (map[int64]time.Time, error)

	ListCalendarBlocks(ctx context.Context, musicianID int64, from, to string) ([]models.CalendarBlock, error)
	ListBlocksAround(ctx context.Context, musicianIDs []int64, date string) ([]models.CalendarBlock, error)
}

// CalendarStore is the part of the repository the calendar worker writes to.
type CalendarStore interface {
	CreateCalendarBlock(ctx context.Context, b *models.CalendarBlock) (bool, error)
	SetCalendarBlockExternalID(ctx context.Context, id int64, externalID string) error
	MoveCalendarBlock(ctx context.Context, id int64, date, startTime, endTime string) error
	ListBlocksByGig(ctx context.Context, gigID int64) ([]models.CalendarBlock, error)
	DeleteCalendarBlock(ctx context.Context, id int64) error

	CreateCalendarTask(ctx context.Context, task *models.CalendarTask) error
	GetPendingCalendarTasks(ctx context.Context, limit int) ([]models.CalendarTask, error)
	GetFailedCalendarTasks(ctx context.Context) ([]models.CalendarTask, error)
	ClaimCalendarTask(ctx context.Context, id int64) (bool, error)
	RequeueProcessingCalendarTasks(ctx context.Context) (int64, error)
	UpdateCalendarTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// DraftStore keeps short-lived per-user state: hire selections and rate counters.
type DraftStore interface {
	GetSelection(ctx context.Context, userID, gigID int64) (*models.HireSelection, error)
	SetSelection(ctx context.Context, sel *models.HireSelection) error
	ClearSelection(ctx context.Context, userID, gigID int64) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// CalendarQueue accepts calendar side effects of committed transitions.
type CalendarQueue interface {
	EnqueueTask(ctx context.Context, taskType string, gig *models.Gig, musicianID int64) error
}

// CalendarSink mirrors blocks into an external calendar.
type CalendarSink interface {
	InsertBlock(ctx context.Context, gig *models.Gig, block *models.CalendarBlock) (string, error)
	DeleteBlock(ctx context.Context, externalID string) error
}
