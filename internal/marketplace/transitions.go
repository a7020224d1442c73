package marketplace

import (
	"time"

	"gigflow/internal/models"
)

// Outcome lists the records a transition changed. Gig and Changed point into
// the caller's own values.
type Outcome struct {
	Gig     *models.Gig
	Changed []*models.Application
}

func setGigStatus(g *models.Gig, to models.GigStatus, now time.Time) {
	if g.Status == to {
		return
	}
	g.Status = to
	g.UpdatedAt = now
}

func setApplicationStatus(a *models.Application, to models.ApplicationStatus, now time.Time) bool {
	if !CanTransitionApplication(a.Status, to) {
		return false
	}
	a.Status = to
	a.UpdatedAt = now
	return true
}

// Apply attaches app to g as a new pending application. The first application
// moves an open gig to in_review.
func Apply(g *models.Gig, app *models.Application, existing []models.Application, now time.Time) (Outcome, error) {
	if app == nil {
		return Outcome{}, guard("apply", decide([]Reason{{Code: ReasonApplicationNotFound}}))
	}
	if err := guard("apply", CanApply(g, app.MusicianID, existing, app.ExpectedFee)); err != nil {
		return Outcome{}, err
	}
	app.GigID = g.ID
	app.Status = models.ApplicationStatusPending
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now

	g.ApplicationsCount++
	if g.Status == models.GigStatusOpen && CanTransitionGig(g.Status, models.GigStatusInReview) {
		setGigStatus(g, models.GigStatusInReview, now)
	}
	return Outcome{Gig: g, Changed: []*models.Application{app}}, nil
}

// Select picks the applications named by ids, in ids order and without
// duplicates. Unknown ids are returned separately.
func Select(apps []models.Application, ids []int64) ([]models.Application, []int64) {
	byID := make(map[int64]int, len(apps))
	for i := range apps {
		byID[apps[i].ID] = i
	}
	seen := make(map[int64]bool, len(ids))
	selection := make([]models.Application, 0, len(ids))
	var missing []int64
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		i, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		selection = append(selection, apps[i])
	}
	return selection, missing
}

// Hire accepts the selected applications of g. The selected ones become hired,
// every other pending application of the gig is rejected and the gig moves to hired.
// apps must hold all applications of the gig; they are updated in place.
func Hire(g *models.Gig, apps []models.Application, selectedIDs []int64, now time.Time) (Outcome, error) {
	selection, missing := Select(apps, selectedIDs)
	d := CanHire(g, selection)
	if len(missing) > 0 {
		for _, id := range missing {
			d.Reasons = append(d.Reasons, Reason{Code: ReasonApplicationNotFound, ApplicationID: id})
		}
		d.Allowed = false
	}
	if err := guard("hire", d); err != nil {
		return Outcome{}, err
	}

	chosen := make(map[int64]bool, len(selection))
	for i := range selection {
		chosen[selection[i].ID] = true
	}
	out := Outcome{Gig: g}
	for i := range apps {
		a := &apps[i]
		if a.GigID != g.ID {
			continue
		}
		to := models.ApplicationStatusRejected
		if chosen[a.ID] {
			to = models.ApplicationStatusHired
		}
		if setApplicationStatus(a, to, now) {
			out.Changed = append(out.Changed, a)
		}
	}
	setGigStatus(g, models.GigStatusHired, now)
	return out, nil
}

func finish(action string, d Decision, g *models.Gig, apps []models.Application, to models.GigStatus, now time.Time) (Outcome, error) {
	if err := guard(action, d); err != nil {
		return Outcome{}, err
	}
	out := Outcome{Gig: g}
	for i := range apps {
		a := &apps[i]
		if a.GigID != g.ID {
			continue
		}
		if setApplicationStatus(a, models.ApplicationStatusRejected, now) {
			out.Changed = append(out.Changed, a)
		}
	}
	setGigStatus(g, to, now)
	return out, nil
}

// Close ends g; every pending application is rejected. Hired ones stay hired.
func Close(g *models.Gig, apps []models.Application, now time.Time) (Outcome, error) {
	return finish("close", CanClose(g), g, apps, models.GigStatusClosed, now)
}

// Cancel withdraws g; pending applications are rejected as on Close.
func Cancel(g *models.Gig, apps []models.Application, now time.Time) (Outcome, error) {
	return finish("cancel", CanCancel(g), g, apps, models.GigStatusCancelled, now)
}

// Reject turns down a single pending application.
func Reject(g *models.Gig, app *models.Application, now time.Time) (Outcome, error) {
	if err := guard("reject", CanReject(g, app)); err != nil {
		return Outcome{}, err
	}
	setApplicationStatus(app, models.ApplicationStatusRejected, now)
	return Outcome{Gig: g, Changed: []*models.Application{app}}, nil
}
