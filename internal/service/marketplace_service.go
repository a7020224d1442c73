package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gigflow/internal/config"
	"gigflow/internal/database"
	"gigflow/internal/domain"
	"gigflow/internal/events"
	"gigflow/internal/marketplace"
	"gigflow/internal/metrics"
	"gigflow/internal/models"
	"gigflow/internal/money"
	"gigflow/internal/schedule"
	"gigflow/internal/search"

	"github.com/rs/zerolog"
)

var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

// Actor is the user performing an operation.
type Actor struct {
	ID   int64
	Name string
}

// Options tune the marketplace rules that are configurable.
type Options struct {
	HistoryWindowDays int
	Location          *time.Location
	ChatRateLimit     int
	ChatRateWindow    time.Duration
	Now               func() time.Time
}

// OptionsFromConfig reads the marketplace section.
func OptionsFromConfig(cfg config.MarketplaceConfig) Options {
	return Options{
		HistoryWindowDays: cfg.HistoryWindowDays,
		Location:          cfg.Location(),
		ChatRateLimit:     cfg.ChatRateLimit,
		ChatRateWindow:    cfg.ChatRateWindow,
	}
}

// MarketplaceService is the authoritative backend of the gig marketplace:
// it loads records, runs the marketplace rules and persists the outcome.
type MarketplaceService struct {
	repo     domain.Repository
	drafts   domain.DraftStore
	eventBus domain.EventPublisher
	calendar domain.CalendarQueue
	opts     Options
	logger   *zerolog.Logger
}

func NewMarketplaceService(
	repo domain.Repository,
	drafts domain.DraftStore,
	eventBus domain.EventPublisher,
	calendar domain.CalendarQueue,
	opts Options,
	logger *zerolog.Logger,
) *MarketplaceService {
	if opts.HistoryWindowDays <= 0 {
		opts.HistoryWindowDays = models.DefaultHistoryWindowDays
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.ChatRateLimit <= 0 {
		opts.ChatRateLimit = models.ChatRateLimitMessages
	}
	if opts.ChatRateWindow <= 0 {
		opts.ChatRateWindow = models.ChatRateLimitWindow
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &MarketplaceService{
		repo:     repo,
		drafts:   drafts,
		eventBus: eventBus,
		calendar: calendar,
		opts:     opts,
		logger:   logger,
	}
}

func (s *MarketplaceService) now() time.Time {
	return s.opts.Now().In(s.opts.Location)
}

// Location is the timezone gig dates are read in.
func (s *MarketplaceService) Location() *time.Location {
	return s.opts.Location
}

// GigUpdate carries the editable fields of a gig. Nil fields are left alone.
// A non-zero Version must match the stored one.
type GigUpdate struct {
	Title        *string
	Description  *string
	City         *string
	Location     *string
	EventDate    *string
	StartTime    *string
	EndTime      *string
	Budget       *money.Amount
	Genres       []string
	ContactPhone *string
	ContactEmail *string
	Version      int64
}

func (s *MarketplaceService) CreateGig(ctx context.Context, actor Actor, g *models.Gig) error {
	if actor.ID == 0 {
		return ErrForbidden
	}
	g.Title = strings.TrimSpace(g.Title)
	g.Genres = cleanGenres(g.Genres)
	if err := s.validateGig(g); err != nil {
		return err
	}
	g.ID = 0
	g.CreatedBy = actor.ID
	g.Status = models.GigStatusOpen
	g.MyApplication = nil
	g.CreatedAt = s.now()

	if err := s.repo.CreateGig(ctx, g); err != nil {
		return err
	}

	metrics.IncTransition("create")
	s.publishGigEvent(events.EventGigCreated, g, actor.ID, nil)
	return nil
}

func (s *MarketplaceService) UpdateGig(ctx context.Context, actor Actor, gigID int64, u GigUpdate) (*models.Gig, error) {
	g, err := s.ownedGig(ctx, actor, gigID)
	if err != nil {
		return nil, err
	}
	if d := marketplace.CanClose(g); !d.Allowed {
		return nil, s.rejected(&marketplace.GuardError{Action: "update", Decision: d})
	}
	if u.Version != 0 && u.Version != g.Version {
		return nil, database.ErrConcurrentModification
	}

	before := *g
	applyUpdate(g, u)
	g.Title = strings.TrimSpace(g.Title)
	if err := s.validateGig(g); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateGigDetails(ctx, g, before.Version); err != nil {
		return nil, err
	}

	metrics.IncTransition("update")
	s.publishGigEvent(events.EventGigUpdated, g, actor.ID, nil)

	if g.Status == models.GigStatusHired && scheduleChanged(&before, g) {
		s.rescheduleHired(ctx, &before, g)
	}
	return g, nil
}

func applyUpdate(g *models.Gig, u GigUpdate) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	set(&g.Title, u.Title)
	set(&g.Description, u.Description)
	set(&g.City, u.City)
	set(&g.Location, u.Location)
	set(&g.EventDate, u.EventDate)
	set(&g.StartTime, u.StartTime)
	set(&g.EndTime, u.EndTime)
	set(&g.ContactPhone, u.ContactPhone)
	set(&g.ContactEmail, u.ContactEmail)
	if u.Budget != nil {
		g.Budget = *u.Budget
	}
	if u.Genres != nil {
		g.Genres = cleanGenres(u.Genres)
	}
}

func scheduleChanged(a, b *models.Gig) bool {
	return a.EventDate != b.EventDate || a.StartTime != b.StartTime || a.EndTime != b.EndTime
}

// rescheduleHired moves the calendar blocks of every hired musician from the
// slot of before to the new schedule of g.
func (s *MarketplaceService) rescheduleHired(ctx context.Context, before, g *models.Gig) {
	apps, err := s.repo.ListApplicationsByGig(ctx, g.ID)
	if err != nil {
		s.logger.Error().Err(err).Int64("gig_id", g.ID).Msg("list hired applications")
		return
	}
	s.enqueueCalendar(ctx, models.CalendarTaskRelease, before, 0)
	if !schedule.HasCompleteSchedule(g) {
		return
	}
	for _, a := range apps {
		if a.Status == models.ApplicationStatusHired {
			s.enqueueCalendar(ctx, models.CalendarTaskBlock, g, a.MusicianID)
		}
	}
}

func (s *MarketplaceService) validateGig(g *models.Gig) error {
	if g.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if g.EventDate != "" {
		if _, ok := schedule.ParseDate(g.EventDate, s.opts.Location); !ok {
			return fmt.Errorf("%w: invalid event date %q", ErrInvalidInput, g.EventDate)
		}
	}
	for _, clock := range []string{g.StartTime, g.EndTime} {
		if clock == "" {
			continue
		}
		if _, err := schedule.ParseClock(clock); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if g.Budget.Valid && g.Budget.Cents < 0 {
		return fmt.Errorf("%w: budget cannot be negative", ErrInvalidInput)
	}
	return nil
}

func cleanGenres(genres []string) []string {
	out := make([]string, 0, len(genres))
	seen := make(map[string]bool, len(genres))
	for _, genre := range genres {
		genre = strings.TrimSpace(genre)
		key := strings.ToLower(genre)
		if genre == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, genre)
	}
	return out
}

// GetGig loads a gig. When the viewer has applied, MyApplication is filled.
func (s *MarketplaceService) GetGig(ctx context.Context, viewerID, gigID int64) (*models.Gig, error) {
	g, err := s.repo.GetGig(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if viewerID != 0 && viewerID != g.CreatedBy {
		mine, err := s.repo.FindApplication(ctx, g.ID, viewerID)
		switch {
		case err == nil:
			g.MyApplication = mine
		case !errors.Is(err, database.ErrNotFound):
			return nil, err
		}
	}
	return g, nil
}

type View string

const (
	ViewActive  View = "active"
	ViewHistory View = "history"
	ViewAll     View = "all"
)

// ParseView maps the query value to a View; unknown values read as active.
func ParseView(raw string) View {
	switch View(strings.ToLower(strings.TrimSpace(raw))) {
	case ViewHistory:
		return ViewHistory
	case ViewAll:
		return ViewAll
	default:
		return ViewActive
	}
}

// ListFilter selects the gigs of a listing.
type ListFilter struct {
	View    View
	City    string
	Genre   string
	Query   string
	OwnerID int64
	Viewer  int64
}

func (s *MarketplaceService) ListGigs(ctx context.Context, f ListFilter) ([]models.Gig, error) {
	q := database.GigQuery{OwnerID: f.OwnerID}
	switch f.View {
	case ViewHistory:
		q.Statuses = []models.GigStatus{models.GigStatusClosed, models.GigStatusCancelled}
	case ViewAll:
	default:
		q.Statuses = []models.GigStatus{models.GigStatusOpen, models.GigStatusInReview, models.GigStatusHired}
	}

	gigs, err := s.repo.ListGigs(ctx, q)
	if err != nil {
		return nil, err
	}
	gigs = search.FilterGigs(gigs, search.Filter{City: f.City, Genre: f.Genre, Query: f.Query})

	views := schedule.ComposeViews(gigs, s.now(), s.opts.HistoryWindowDays)
	switch f.View {
	case ViewHistory:
		gigs = views.History
	case ViewAll:
		gigs = views.All
	default:
		gigs = views.Active
	}

	if f.Viewer != 0 && len(gigs) > 0 {
		if err := s.attachMyApplications(ctx, f.Viewer, gigs); err != nil {
			return nil, err
		}
	}
	return gigs, nil
}

func (s *MarketplaceService) attachMyApplications(ctx context.Context, viewerID int64, gigs []models.Gig) error {
	ids := make([]int64, 0, len(gigs))
	for i := range gigs {
		if gigs[i].CreatedBy != viewerID {
			ids = append(ids, gigs[i].ID)
		}
	}
	mine, err := s.repo.ListApplicationsForGigs(ctx, viewerID, ids)
	if err != nil {
		return err
	}
	for i := range gigs {
		if a, ok := mine[gigs[i].ID]; ok {
			gigs[i].MyApplication = &a
		}
	}
	return nil
}

// ownedGig loads a gig the actor must own.
func (s *MarketplaceService) ownedGig(ctx context.Context, actor Actor, gigID int64) (*models.Gig, error) {
	g, err := s.repo.GetGig(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if actor.ID == 0 || g.CreatedBy != actor.ID {
		return nil, ErrForbidden
	}
	return g, nil
}

// rejected counts the reasons of a guard refusal and hands err back.
func (s *MarketplaceService) rejected(err error) error {
	var ge *marketplace.GuardError
	if errors.As(err, &ge) {
		for _, r := range ge.Decision.Reasons {
			metrics.IncGuardRejection(ge.Action, string(r.Code))
		}
	}
	return err
}

func (s *MarketplaceService) publishGigEvent(eventType string, g *models.Gig, actorID int64, changed []*models.Application) {
	if s.eventBus == nil {
		return
	}

	payload := events.GigEventPayload{
		GigID:      g.ID,
		Title:      g.Title,
		Status:     string(g.Status),
		OwnerID:    g.CreatedBy,
		EventDate:  g.EventDate,
		ActorID:    actorID,
		OccurredAt: s.now(),
	}
	for _, a := range changed {
		payload.ApplicationIDs = append(payload.ApplicationIDs, a.ID)
		switch a.Status {
		case models.ApplicationStatusHired:
			payload.HiredIDs = append(payload.HiredIDs, a.ID)
		case models.ApplicationStatusRejected:
			payload.RejectedIDs = append(payload.RejectedIDs, a.ID)
		case models.ApplicationStatusPending:
		}
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("gig_id", g.ID).Msg("publish event error")
	}
}

func (s *MarketplaceService) enqueueCalendar(ctx context.Context, taskType string, g *models.Gig, musicianID int64) {
	if s.calendar == nil {
		return
	}
	if err := s.calendar.EnqueueTask(ctx, taskType, g, musicianID); err != nil {
		s.logger.Error().Err(err).Int64("gig_id", g.ID).Int64("musician_id", musicianID).Str("task", taskType).Msg("calendar enqueue error")
	}
}
