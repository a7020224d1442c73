package service

import (
	"context"
	"errors"

	"gigflow/internal/database"
	"gigflow/internal/events"
	"gigflow/internal/marketplace"
	"gigflow/internal/metrics"
	"gigflow/internal/models"
	"gigflow/internal/money"
)

// TransitionResult is a committed transition: the gig after it and every
// application whose status changed.
type TransitionResult struct {
	Gig     *models.Gig          `json:"gig"`
	Changed []models.Application `json:"changed"`
}

func newResult(out marketplace.Outcome) *TransitionResult {
	res := &TransitionResult{Gig: out.Gig, Changed: make([]models.Application, 0, len(out.Changed))}
	for _, a := range out.Changed {
		res.Changed = append(res.Changed, *a)
	}
	return res
}

// ApplyInput is what a musician sends when applying.
type ApplyInput struct {
	CoverLetter string
	ExpectedFee money.Amount
}

func (s *MarketplaceService) Apply(ctx context.Context, actor Actor, gigID int64, in ApplyInput) (*models.Application, error) {
	if actor.ID == 0 {
		return nil, ErrForbidden
	}
	g, err := s.repo.GetGig(ctx, gigID)
	if err != nil {
		return nil, err
	}

	var existing []models.Application
	mine, err := s.repo.FindApplication(ctx, gigID, actor.ID)
	switch {
	case err == nil:
		existing = append(existing, *mine)
	case !errors.Is(err, database.ErrNotFound):
		return nil, err
	}

	fromVersion := g.Version
	app := &models.Application{
		MusicianID:   actor.ID,
		MusicianName: actor.Name,
		CoverLetter:  in.CoverLetter,
		ExpectedFee:  in.ExpectedFee,
	}
	if _, err := marketplace.Apply(g, app, existing, s.now()); err != nil {
		return nil, s.rejected(err)
	}

	if err := s.repo.CreateApplication(ctx, g, fromVersion, app); err != nil {
		return nil, err
	}

	metrics.IncTransition("apply")
	s.publishGigEvent(events.EventApplicationSubmitted, g, actor.ID, []*models.Application{app})
	return app, nil
}

// Hire accepts applicationIDs for the gig. With no ids the actor's stored
// selection is hired.
func (s *MarketplaceService) Hire(ctx context.Context, actor Actor, gigID int64, applicationIDs []int64) (*TransitionResult, error) {
	g, err := s.ownedGig(ctx, actor, gigID)
	if err != nil {
		return nil, err
	}
	if len(applicationIDs) == 0 {
		applicationIDs, err = s.selectionIDs(ctx, actor.ID, gigID)
		if err != nil {
			return nil, err
		}
	}

	apps, err := s.repo.ListApplicationsByGig(ctx, gigID)
	if err != nil {
		return nil, err
	}

	fromVersion := g.Version
	out, err := marketplace.Hire(g, apps, applicationIDs, s.now())
	if err != nil {
		return nil, s.rejected(err)
	}
	if err := s.repo.SaveTransition(ctx, g, fromVersion, out.Changed); err != nil {
		return nil, err
	}

	if s.drafts != nil {
		if err := s.drafts.ClearSelection(ctx, actor.ID, gigID); err != nil {
			s.logger.Warn().Err(err).Int64("gig_id", gigID).Msg("clear selection after hire")
		}
	}

	metrics.IncTransition("hire")
	s.publishGigEvent(events.EventGigHired, g, actor.ID, out.Changed)
	for _, a := range out.Changed {
		if a.Status == models.ApplicationStatusHired {
			s.enqueueCalendar(ctx, models.CalendarTaskBlock, g, a.MusicianID)
		}
	}
	return newResult(out), nil
}

func (s *MarketplaceService) RejectApplication(ctx context.Context, actor Actor, applicationID int64) (*TransitionResult, error) {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	g, err := s.ownedGig(ctx, actor, app.GigID)
	if err != nil {
		return nil, err
	}

	fromVersion := g.Version
	out, err := marketplace.Reject(g, app, s.now())
	if err != nil {
		return nil, s.rejected(err)
	}
	if err := s.repo.SaveTransition(ctx, g, fromVersion, out.Changed); err != nil {
		return nil, err
	}

	metrics.IncTransition("reject")
	s.publishGigEvent(events.EventApplicationRejected, g, actor.ID, out.Changed)
	return newResult(out), nil
}

// CloseGig ends the gig. Calendar blocks of hired musicians are kept.
func (s *MarketplaceService) CloseGig(ctx context.Context, actor Actor, gigID int64) (*TransitionResult, error) {
	g, apps, err := s.gigWithApplications(ctx, actor, gigID)
	if err != nil {
		return nil, err
	}

	fromVersion := g.Version
	out, err := marketplace.Close(g, apps, s.now())
	if err != nil {
		return nil, s.rejected(err)
	}
	if err := s.repo.SaveTransition(ctx, g, fromVersion, out.Changed); err != nil {
		return nil, err
	}

	metrics.IncTransition("close")
	s.publishGigEvent(events.EventGigClosed, g, actor.ID, out.Changed)
	return newResult(out), nil
}

// CancelGig withdraws the gig and frees the calendars of hired musicians.
func (s *MarketplaceService) CancelGig(ctx context.Context, actor Actor, gigID int64) (*TransitionResult, error) {
	g, apps, err := s.gigWithApplications(ctx, actor, gigID)
	if err != nil {
		return nil, err
	}

	wasHired := g.Status == models.GigStatusHired
	fromVersion := g.Version
	out, err := marketplace.Cancel(g, apps, s.now())
	if err != nil {
		return nil, s.rejected(err)
	}
	if err := s.repo.SaveTransition(ctx, g, fromVersion, out.Changed); err != nil {
		return nil, err
	}

	metrics.IncTransition("cancel")
	s.publishGigEvent(events.EventGigCancelled, g, actor.ID, out.Changed)
	if wasHired {
		// No slot on the payload: every block of the gig goes.
		s.enqueueCalendar(ctx, models.CalendarTaskRelease, &models.Gig{ID: g.ID, Title: g.Title}, 0)
	}
	return newResult(out), nil
}

func (s *MarketplaceService) gigWithApplications(ctx context.Context, actor Actor, gigID int64) (*models.Gig, []models.Application, error) {
	g, err := s.ownedGig(ctx, actor, gigID)
	if err != nil {
		return nil, nil, err
	}
	apps, err := s.repo.ListApplicationsByGig(ctx, gigID)
	if err != nil {
		return nil, nil, err
	}
	return g, apps, nil
}
