package service

import (
	"context"
	"errors"

	"gigflow/internal/marketplace"
	"gigflow/internal/models"
	"gigflow/internal/money"
	"gigflow/internal/schedule"
)

// SelectionView is a draft hire selection with its budget preview.
type SelectionView struct {
	Selection *models.HireSelection `json:"selection"`
	Funding   marketplace.Funding   `json:"funding"`
	Decision  marketplace.Decision  `json:"decision"`
}

// Conflict is a calendar block of a selected musician overlapping the gig.
type Conflict struct {
	ApplicationID int64                `json:"application_id"`
	MusicianID    int64                `json:"musician_id"`
	Block         models.CalendarBlock `json:"block"`
}

// Eligibility tells the contractor whether a hire would go through. Conflicts
// are informational and never block a hire.
type Eligibility struct {
	Decision  marketplace.Decision `json:"decision"`
	Funding   marketplace.Funding  `json:"funding"`
	Conflicts []Conflict           `json:"conflicts"`
}

func (s *MarketplaceService) selectionIDs(ctx context.Context, userID, gigID int64) ([]int64, error) {
	if s.drafts == nil {
		return nil, nil
	}
	sel, err := s.drafts.GetSelection(ctx, userID, gigID)
	if err != nil {
		return nil, err
	}
	if sel == nil {
		return nil, nil
	}
	return sel.ApplicationIDs, nil
}

// SetSelection stores the contractor's draft. Ids that are not applications
// of the gig are dropped.
func (s *MarketplaceService) SetSelection(ctx context.Context, actor Actor, gigID int64, applicationIDs []int64) (*SelectionView, error) {
	if s.drafts == nil {
		return nil, errors.New("draft store is not configured")
	}
	g, apps, err := s.gigWithApplications(ctx, actor, gigID)
	if err != nil {
		return nil, err
	}

	selection, _ := marketplace.Select(apps, applicationIDs)
	sel := &models.HireSelection{
		UserID:         actor.ID,
		GigID:          gigID,
		ApplicationIDs: make([]int64, 0, len(selection)),
		UpdatedAt:      s.now(),
	}
	for _, a := range selection {
		sel.ApplicationIDs = append(sel.ApplicationIDs, a.ID)
	}
	if err := s.drafts.SetSelection(ctx, sel); err != nil {
		return nil, err
	}
	return s.selectionView(g, apps, sel), nil
}

func (s *MarketplaceService) GetSelection(ctx context.Context, actor Actor, gigID int64) (*SelectionView, error) {
	g, apps, err := s.gigWithApplications(ctx, actor, gigID)
	if err != nil {
		return nil, err
	}
	var sel *models.HireSelection
	if s.drafts != nil {
		sel, err = s.drafts.GetSelection(ctx, actor.ID, gigID)
		if err != nil {
			return nil, err
		}
	}
	if sel == nil {
		sel = &models.HireSelection{UserID: actor.ID, GigID: gigID, ApplicationIDs: []int64{}}
	}
	return s.selectionView(g, apps, sel), nil
}

func (s *MarketplaceService) ClearSelection(ctx context.Context, actor Actor, gigID int64) error {
	if _, err := s.ownedGig(ctx, actor, gigID); err != nil {
		return err
	}
	if s.drafts == nil {
		return nil
	}
	return s.drafts.ClearSelection(ctx, actor.ID, gigID)
}

func (s *MarketplaceService) selectionView(g *models.Gig, apps []models.Application, sel *models.HireSelection) *SelectionView {
	selection, missing := marketplace.Select(apps, sel.ApplicationIDs)
	return &SelectionView{
		Selection: sel,
		Funding:   marketplace.CanFundSelection(g.Budget, selection),
		Decision:  hireDecision(g, selection, missing),
	}
}

func hireDecision(g *models.Gig, selection []models.Application, missing []int64) marketplace.Decision {
	d := marketplace.CanHire(g, selection)
	for _, id := range missing {
		d.Reasons = append(d.Reasons, marketplace.Reason{Code: marketplace.ReasonApplicationNotFound, ApplicationID: id})
		d.Allowed = false
	}
	return d
}

// Eligibility runs the hire guard without committing anything. With no ids
// the stored selection is checked.
func (s *MarketplaceService) Eligibility(ctx context.Context, actor Actor, gigID int64, applicationIDs []int64) (*Eligibility, error) {
	g, apps, err := s.gigWithApplications(ctx, actor, gigID)
	if err != nil {
		return nil, err
	}
	if len(applicationIDs) == 0 {
		applicationIDs, err = s.selectionIDs(ctx, actor.ID, gigID)
		if err != nil {
			return nil, err
		}
	}

	selection, missing := marketplace.Select(apps, applicationIDs)
	res := &Eligibility{
		Decision:  hireDecision(g, selection, missing),
		Funding:   marketplace.CanFundSelection(g.Budget, selection),
		Conflicts: []Conflict{},
	}
	if !schedule.HasCompleteSchedule(g) || len(selection) == 0 {
		return res, nil
	}

	byMusician := make(map[int64]int64, len(selection))
	musicianIDs := make([]int64, 0, len(selection))
	for _, a := range selection {
		if _, ok := byMusician[a.MusicianID]; !ok {
			musicianIDs = append(musicianIDs, a.MusicianID)
		}
		byMusician[a.MusicianID] = a.ID
	}
	blocks, err := s.repo.ListBlocksAround(ctx, musicianIDs, g.EventDate)
	if err != nil {
		return nil, err
	}
	for _, b := range schedule.FindConflicts(g, blocks, s.opts.Location) {
		res.Conflicts = append(res.Conflicts, Conflict{
			ApplicationID: byMusician[b.MusicianID],
			MusicianID:    b.MusicianID,
			Block:         b,
		})
	}
	return res, nil
}

// CheckFunding reconciles loose fees against a budget without touching storage.
func (s *MarketplaceService) CheckFunding(budget money.Amount, fees []money.Amount) marketplace.Funding {
	selection := make([]models.Application, 0, len(fees))
	for _, fee := range fees {
		selection = append(selection, models.Application{ExpectedFee: fee})
	}
	return marketplace.CanFundSelection(budget, selection)
}
