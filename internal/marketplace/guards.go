package marketplace

import (
	"strings"
	"unicode/utf8"

	"gigflow/internal/models"
	"gigflow/internal/money"
	"gigflow/internal/schedule"
)

func statusReason(g *models.Gig) []Reason {
	if g == nil || g.Status.IsTerminal() {
		return []Reason{{Code: ReasonGigFinished}}
	}
	if !g.Status.AcceptsApplications() {
		return []Reason{{Code: ReasonGigNotOpen}}
	}
	return nil
}

// CanApply decides whether musicianID may apply to g with the proposed fee.
// existing may hold any applications known for the gig.
func CanApply(g *models.Gig, musicianID int64, existing []models.Application, fee money.Amount) Decision {
	reasons := statusReason(g)
	if g == nil {
		return decide(reasons)
	}
	if musicianID != 0 && g.CreatedBy == musicianID {
		reasons = append(reasons, Reason{Code: ReasonOwnGig})
	}
	if hasApplied(g, musicianID, existing) {
		reasons = append(reasons, Reason{Code: ReasonAlreadyApplied})
	}
	if limit, ok := budgetLimit(g.Budget); ok && fee.Valid && fee.Cents > limit {
		reasons = append(reasons, Reason{Code: ReasonFeeOverBudget})
	}
	return decide(reasons)
}

func hasApplied(g *models.Gig, musicianID int64, existing []models.Application) bool {
	if mine := g.MyApplication; mine != nil && (mine.MusicianID == 0 || mine.MusicianID == musicianID) {
		return true
	}
	for i := range existing {
		a := &existing[i]
		if a.MusicianID == musicianID && (a.GigID == 0 || a.GigID == g.ID) {
			return true
		}
	}
	return false
}

// CanHire decides whether selection may be hired for g, either a single
// musician or a whole band.
func CanHire(g *models.Gig, selection []models.Application) Decision {
	reasons := statusReason(g)
	if g == nil {
		return decide(reasons)
	}
	if !schedule.HasCompleteSchedule(g) {
		reasons = append(reasons, Reason{Code: ReasonIncompleteSchedule})
	}
	if len(selection) == 0 {
		reasons = append(reasons, Reason{Code: ReasonEmptySelection})
		return decide(reasons)
	}
	for i := range selection {
		a := &selection[i]
		if a.GigID != g.ID {
			reasons = append(reasons, Reason{Code: ReasonApplicationOtherGig, ApplicationID: a.ID})
			continue
		}
		if a.Status != models.ApplicationStatusPending {
			reasons = append(reasons, Reason{Code: ReasonApplicationNotPending, ApplicationID: a.ID})
		}
	}
	funding := CanFundSelection(g.Budget, selection)
	if funding.MissingFee {
		reasons = append(reasons, Reason{Code: ReasonMissingFee})
	}
	if funding.OverBudget {
		reasons = append(reasons, Reason{Code: ReasonOverBudget})
	}
	return decide(reasons)
}

// CanClose allows closing any gig that is not already closed or cancelled.
func CanClose(g *models.Gig) Decision {
	if g == nil || g.Status.IsTerminal() {
		return decide([]Reason{{Code: ReasonGigFinished}})
	}
	return decide(nil)
}

// CanCancel follows the same rule as CanClose.
func CanCancel(g *models.Gig) Decision {
	return CanClose(g)
}

func CanReject(g *models.Gig, app *models.Application) Decision {
	var reasons []Reason
	if g == nil || g.Status.IsTerminal() {
		reasons = append(reasons, Reason{Code: ReasonGigFinished})
	}
	switch {
	case app == nil:
		reasons = append(reasons, Reason{Code: ReasonApplicationNotFound})
	case g != nil && app.GigID != g.ID:
		reasons = append(reasons, Reason{Code: ReasonApplicationOtherGig, ApplicationID: app.ID})
	case app.Status != models.ApplicationStatusPending:
		reasons = append(reasons, Reason{Code: ReasonApplicationNotPending, ApplicationID: app.ID})
	}
	return decide(reasons)
}

// CanPostMessage lets the gig owner or the applicant append to the thread of
// app while the gig is still running.
func CanPostMessage(g *models.Gig, app *models.Application, senderID int64, text string) Decision {
	var reasons []Reason
	if g == nil || g.Status.IsTerminal() {
		reasons = append(reasons, Reason{Code: ReasonGigFinished})
	}
	if app == nil {
		reasons = append(reasons, Reason{Code: ReasonApplicationNotFound})
	} else if g != nil && senderID != g.CreatedBy && senderID != app.MusicianID {
		reasons = append(reasons, Reason{Code: ReasonNotParticipant})
	}
	trimmed := strings.TrimSpace(text)
	switch {
	case trimmed == "":
		reasons = append(reasons, Reason{Code: ReasonEmptyMessage})
	case utf8.RuneCountInString(trimmed) > models.MaxChatMessageLength:
		reasons = append(reasons, Reason{Code: ReasonMessageTooLong})
	}
	return decide(reasons)
}
