package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gigflow/internal/chat"
	"gigflow/internal/database"
	"gigflow/internal/events"
	"gigflow/internal/marketplace"
	"gigflow/internal/metrics"
	"gigflow/internal/models"
	"gigflow/internal/schedule"
)

// GigApplications groups a musician's applications under their gig.
type GigApplications struct {
	Gig          *models.Gig          `json:"gig"`
	Applications []models.Application `json:"applications"`
}

// thread loads an application with its gig and checks the actor takes part
// in the conversation.
func (s *MarketplaceService) thread(ctx context.Context, actor Actor, applicationID int64) (*models.Application, *models.Gig, error) {
	app, err := s.repo.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}
	g, err := s.repo.GetGig(ctx, app.GigID)
	if err != nil {
		return nil, nil, err
	}
	if actor.ID == 0 || (actor.ID != g.CreatedBy && actor.ID != app.MusicianID) {
		return nil, nil, ErrForbidden
	}
	return app, g, nil
}

func (s *MarketplaceService) PostMessage(ctx context.Context, actor Actor, applicationID int64, text string) (*models.ChatMessage, error) {
	app, g, err := s.thread(ctx, actor, applicationID)
	if err != nil {
		return nil, err
	}
	if d := marketplace.CanPostMessage(g, app, actor.ID, text); !d.Allowed {
		return nil, s.rejected(&marketplace.GuardError{Action: "message", Decision: d})
	}

	if s.drafts != nil {
		allowed, err := s.drafts.CheckRateLimit(ctx, fmt.Sprintf("chat:%d", actor.ID), s.opts.ChatRateLimit, s.opts.ChatRateWindow)
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", actor.ID).Msg("chat rate limit check failed")
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	msg := &models.ChatMessage{
		ApplicationID: app.ID,
		SenderID:      actor.ID,
		SenderName:    actor.Name,
		Message:       strings.TrimSpace(text),
		CreatedAt:     s.now(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return nil, err
	}
	if err := s.repo.MarkRead(ctx, app.ID, actor.ID, msg.CreatedAt); err != nil {
		s.logger.Warn().Err(err).Int64("application_id", app.ID).Msg("mark own message read")
	}

	metrics.IncTransition("message")
	if s.eventBus != nil {
		payload := events.ChatEventPayload{
			MessageID:     msg.ID,
			ApplicationID: app.ID,
			GigID:         g.ID,
			SenderID:      actor.ID,
			OccurredAt:    msg.CreatedAt,
		}
		if err := s.eventBus.PublishJSON(events.EventChatMessagePosted, payload); err != nil {
			s.logger.Error().Err(err).Int64("application_id", app.ID).Msg("publish event error")
		}
	}
	return msg, nil
}

// ListMessages returns the thread oldest first and marks it read for the actor.
// Messages from the other side that arrived since the previous read are
// flagged unread.
func (s *MarketplaceService) ListMessages(ctx context.Context, actor Actor, applicationID int64) ([]models.ChatMessage, error) {
	if _, _, err := s.thread(ctx, actor, applicationID); err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListMessages(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	chat.SortMessages(msgs)

	lastRead, err := s.repo.LastRead(ctx, applicationID, actor.ID)
	if err != nil {
		return nil, err
	}
	for i := range msgs {
		msgs[i].Unread = msgs[i].SenderID != actor.ID && msgs[i].CreatedAt.After(lastRead)
	}

	readAt := s.now()
	if n := len(msgs); n > 0 && msgs[n-1].CreatedAt.After(readAt) {
		readAt = msgs[n-1].CreatedAt
	}
	if err := s.repo.MarkRead(ctx, applicationID, actor.ID, readAt); err != nil {
		s.logger.Warn().Err(err).Int64("application_id", applicationID).Msg("mark thread read")
	}
	return msgs, nil
}

// ListApplications returns the applications of a gig to its owner, flagging
// the ones in the owner's draft selection.
func (s *MarketplaceService) ListApplications(ctx context.Context, actor Actor, gigID int64) ([]models.Application, error) {
	_, apps, err := s.gigWithApplications(ctx, actor, gigID)
	if err != nil || s.drafts == nil {
		return apps, err
	}
	sel, err := s.drafts.GetSelection(ctx, actor.ID, gigID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("gig_id", gigID).Msg("load draft selection")
		return apps, nil
	}
	if sel == nil {
		return apps, nil
	}
	for i := range apps {
		apps[i].Selected = sel.Contains(apps[i].ID)
	}
	return apps, nil
}

// ListMyApplications returns the musician's applications grouped by gig,
// gigs ordered by the first application sent to them.
func (s *MarketplaceService) ListMyApplications(ctx context.Context, musicianID int64) ([]GigApplications, error) {
	if musicianID == 0 {
		return nil, ErrForbidden
	}
	apps, err := s.repo.ListApplicationsByMusician(ctx, musicianID)
	if err != nil {
		return nil, err
	}
	groups := chat.GroupApplicationsByGig(apps)

	out := make([]GigApplications, 0, len(groups))
	for _, gigID := range chat.GigOrder(groups) {
		g, err := s.repo.GetGig(ctx, gigID)
		if errors.Is(err, database.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, GigApplications{Gig: g, Applications: groups[gigID]})
	}
	return out, nil
}

// ThreadSummaries returns message and unread counters for every thread of a
// gig the actor can see: all of them for the owner, their own for a musician.
func (s *MarketplaceService) ThreadSummaries(ctx context.Context, actor Actor, gigID int64) ([]chat.ThreadSummary, error) {
	if actor.ID == 0 {
		return nil, ErrForbidden
	}
	g, err := s.repo.GetGig(ctx, gigID)
	if err != nil {
		return nil, err
	}

	var apps []models.Application
	if g.CreatedBy == actor.ID {
		apps, err = s.repo.ListApplicationsByGig(ctx, gigID)
		if err != nil {
			return nil, err
		}
	} else {
		mine, err := s.repo.FindApplication(ctx, gigID, actor.ID)
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrForbidden
		}
		if err != nil {
			return nil, err
		}
		apps = []models.Application{*mine}
	}

	msgs, err := s.repo.ListMessagesByGig(ctx, gigID)
	if err != nil {
		return nil, err
	}
	reads, err := s.repo.LastReads(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	out := make([]chat.ThreadSummary, 0, len(apps))
	for i := range apps {
		out = append(out, chat.Summarize(&apps[i], msgs, actor.ID, reads[apps[i].ID]))
	}
	return out, nil
}

// MusicianCalendar lists the blocks of a musician between two optional
// "YYYY-MM-DD" dates.
func (s *MarketplaceService) MusicianCalendar(ctx context.Context, musicianID int64, from, to string) ([]models.CalendarBlock, error) {
	for _, d := range []string{from, to} {
		if d == "" {
			continue
		}
		if _, ok := schedule.ParseDate(d, s.opts.Location); !ok {
			return nil, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, d)
		}
	}
	return s.repo.ListCalendarBlocks(ctx, musicianID, from, to)
}
