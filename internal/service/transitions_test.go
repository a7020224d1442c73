package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gigflow/internal/database"
	"gigflow/internal/events"
	"gigflow/internal/marketplace"
	"gigflow/internal/models"
	"gigflow/internal/money"
)

func TestApply(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	g := f.gig(t)

	app, err := f.svc.Apply(ctx, musician, g.ID, ApplyInput{CoverLetter: "Toco há 10 anos", ExpectedFee: money.NewAmount(80000)})
	require.NoError(t, err)
	assert.NotZero(t, app.ID)
	assert.Equal(t, models.ApplicationStatusPending, app.Status)
	assert.Equal(t, musician.Name, app.MusicianName)

	stored, err := f.db.GetGig(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GigStatusInReview, stored.Status)
	assert.Equal(t, 1, stored.ApplicationsCount)
	assert.Equal(t, g.Version+1, stored.Version)

	t.Run("Twice", func(t *testing.T) {
		_, err := f.svc.Apply(ctx, musician, g.ID, ApplyInput{})
		ge := guardError(t, err)
		assert.True(t, ge.Decision.Has(marketplace.ReasonAlreadyApplied))
		assert.ErrorIs(t, err, marketplace.ErrNotAllowed)
	})

	t.Run("OwnGig", func(t *testing.T) {
		_, err := f.svc.Apply(ctx, owner, g.ID, ApplyInput{})
		assert.True(t, guardError(t, err).Decision.Has(marketplace.ReasonOwnGig))
	})

	t.Run("FeeOverBudget", func(t *testing.T) {
		_, err := f.svc.Apply(ctx, drummer, g.ID, ApplyInput{ExpectedFee: money.NewAmount(200001)})
		assert.True(t, guardError(t, err).Decision.Has(marketplace.ReasonFeeOverBudget))
	})

	t.Run("NoFeeIsFine", func(t *testing.T) {
		app, err := f.svc.Apply(ctx, drummer, g.ID, ApplyInput{})
		require.NoError(t, err)
		assert.False(t, app.ExpectedFee.Valid)
	})

	t.Run("Anonymous", func(t *testing.T) {
		_, err := f.svc.Apply(ctx, Actor{}, g.ID, ApplyInput{})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("MissingGig", func(t *testing.T) {
		_, err := f.svc.Apply(ctx, outsider, 999, ApplyInput{})
		assert.ErrorIs(t, err, database.ErrNotFound)
	})

	assert.Equal(t, []string{events.EventGigCreated, events.EventApplicationSubmitted, events.EventApplicationSubmitted}, f.published)
}

func TestHire(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	g := f.gig(t)
	chosen := f.apply(t, musician, g.ID, 120000)
	other := f.apply(t, drummer, g.ID, 50000)

	f.calendar.On("EnqueueTask", mock.Anything, models.CalendarTaskBlock, mock.AnythingOfType("*models.Gig"), musician.ID).Return(nil).Once()

	res, err := f.svc.Hire(ctx, owner, g.ID, []int64{chosen.ID})
	require.NoError(t, err)
	assert.Equal(t, models.GigStatusHired, res.Gig.Status)
	require.Len(t, res.Changed, 2)

	statuses := map[int64]models.ApplicationStatus{}
	for _, a := range res.Changed {
		statuses[a.ID] = a.Status
	}
	assert.Equal(t, models.ApplicationStatusHired, statuses[chosen.ID])
	assert.Equal(t, models.ApplicationStatusRejected, statuses[other.ID])

	stored, err := f.db.GetApplication(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusRejected, stored.Status)

	f.calendar.AssertExpectations(t)
	assert.Contains(t, f.published, events.EventGigHired)

	_, err = f.svc.Hire(ctx, owner, g.ID, []int64{chosen.ID})
	assert.True(t, guardError(t, err).Decision.Has(marketplace.ReasonGigNotOpen))
}

func TestHire_Guards(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	t.Run("NotOwner", func(t *testing.T) {
		g := f.gig(t)
		app := f.apply(t, musician, g.ID, 1000)
		_, err := f.svc.Hire(ctx, outsider, g.ID, []int64{app.ID})
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("IncompleteSchedule", func(t *testing.T) {
		g := f.gig(t, func(g *models.Gig) { g.EndTime = "" })
		app := f.apply(t, musician, g.ID, 1000)
		_, err := f.svc.Hire(ctx, owner, g.ID, []int64{app.ID})
		assert.True(t, guardError(t, err).Decision.Has(marketplace.ReasonIncompleteSchedule))
	})

	t.Run("BandOverBudget", func(t *testing.T) {
		g := f.gig(t, func(g *models.Gig) { g.Budget = money.NewAmount(100000) })
		a := f.apply(t, musician, g.ID, 60000)
		b := f.apply(t, drummer, g.ID, 60000)
		_, err := f.svc.Hire(ctx, owner, g.ID, []int64{a.ID, b.ID})
		ge := guardError(t, err)
		assert.True(t, ge.Decision.Has(marketplace.ReasonOverBudget))

		stored, err := f.db.GetGig(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, models.GigStatusInReview, stored.Status)
	})

	t.Run("MissingFee", func(t *testing.T) {
		g := f.gig(t)
		app, err := f.svc.Apply(ctx, musician, g.ID, ApplyInput{})
		require.NoError(t, err)
		_, err = f.svc.Hire(ctx, owner, g.ID, []int64{app.ID})
		assert.True(t, guardError(t, err).Decision.Has(marketplace.ReasonMissingFee))
	})

	t.Run("UnknownApplication", func(t *testing.T) {
		g := f.gig(t)
		_, err := f.svc.Hire(ctx, owner, g.ID, []int64{12345})
		assert.True(t, guardError(t, err).Decision.Has(marketplace.ReasonApplicationNotFound))
	})

	t.Run("EmptyWithoutDraft", func(t *testing.T) {
		g := f.gig(t)
		_, err := f.svc.Hire(ctx, owner, g.ID, nil)
		assert.True(t, guardError(t, err).Decision.Has(marketplace.ReasonEmptySelection))
	})

	f.calendar.AssertNotCalled(t, "EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHire_UsesDraftSelection(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	g := f.gig(t)
	a := f.apply(t, musician, g.ID, 80000)
	b := f.apply(t, drummer, g.ID, 70000)

	view, err := f.svc.SetSelection(ctx, owner, g.ID, []int64{a.ID, b.ID})
	require.NoError(t, err)
	assert.True(t, view.Funding.Fundable)

	f.calendar.On("EnqueueTask", mock.Anything, models.CalendarTaskBlock, mock.Anything, mock.Anything).Return(nil)
	res, err := f.svc.Hire(ctx, owner, g.ID, nil)
	require.NoError(t, err)
	for _, changed := range res.Changed {
		assert.Equal(t, models.ApplicationStatusHired, changed.Status)
	}
	f.calendar.AssertNumberOfCalls(t, "EnqueueTask", 2)

	sel, err := f.drafts.GetSelection(ctx, owner.ID, g.ID)
	require.NoError(t, err)
	assert.Nil(t, sel)
}

func TestHire_ConcurrentContractorsOneWins(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	g := f.gig(t)

	apps := make([]*models.Application, 0, 6)
	for i := int64(0); i < 6; i++ {
		apps = append(apps, f.apply(t, Actor{ID: 100 + i, Name: "m"}, g.ID, 10000))
	}
	f.calendar.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	var wg sync.WaitGroup
	errs := make([]error, len(apps))
	for i := range apps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Hire(ctx, owner, g.ID, []int64{apps[i].ID})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, database.ErrConcurrentModification), errors.Is(err, marketplace.ErrNotAllowed):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)

	stored, err := f.db.ListApplicationsByGig(ctx, g.ID)
	require.NoError(t, err)
	hired := 0
	for _, a := range stored {
		if a.Status == models.ApplicationStatusHired {
			hired++
		}
	}
	assert.Equal(t, 1, hired)
}

func TestRejectApplication(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	g := f.gig(t)
	app := f.apply(t, musician, g.ID, 1000)

	_, err := f.svc.RejectApplication(ctx, outsider, app.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	res, err := f.svc.RejectApplication(ctx, owner, app.ID)
	require.NoError(t, err)
	require.Len(t, res.Changed, 1)
	assert.Equal(t, models.ApplicationStatusRejected, res.Changed[0].Status)
	assert.Contains(t, f.published, events.EventApplicationRejected)

	_, err = f.svc.RejectApplication(ctx, owner, app.ID)
	assert.True(t, guardError(t, err).Decision.Has(marketplace.ReasonApplicationNotPending))

	_, err = f.svc.RejectApplication(ctx, owner, 999)
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestCloseGig(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()
	g := f.gig(t)
	hired := f.apply(t, musician, g.ID, 1000)
	late := f.apply(t, drummer, g.ID, 1000)

	f.calendar.On("EnqueueTask", mock.Anything, models.CalendarTaskBlock, mock.Anything, musician.ID).Return(nil)
	_, err := f.svc.Hire(ctx, owner, g.ID, []int64{hired.ID})
	require.NoError(t, err)

	res, err := f.svc.CloseGig(ctx, owner, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GigStatusClosed, res.Gig.Status)
	assert.Empty(t, res.Changed)

	stored, err := f.db.GetApplication(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusRejected, stored.Status)
	stored, err = f.db.GetApplication(ctx, hired.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationStatusHired, stored.Status)

	_, err = f.svc.CloseGig(ctx, owner, g.ID)
	assert.True(t, guardError(t, err).Decision.Has(marketplace.ReasonGigFinished))
	_, err = f.svc.CancelGig(ctx, owner, g.ID)
	assert.True(t, guardError(t, err).Decision.Has(marketplace.ReasonGigFinished))

	f.calendar.AssertNotCalled(t, "EnqueueTask", mock.Anything, models.CalendarTaskRelease, mock.Anything, mock.Anything)
}

func TestCancelGig(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	t.Run("HiredReleasesCalendar", func(t *testing.T) {
		g := f.gig(t)
		app := f.apply(t, musician, g.ID, 1000)
		f.calendar.On("EnqueueTask", mock.Anything, models.CalendarTaskBlock, mock.Anything, musician.ID).Return(nil).Once()
		_, err := f.svc.Hire(ctx, owner, g.ID, []int64{app.ID})
		require.NoError(t, err)

		f.calendar.On("EnqueueTask", mock.Anything, models.CalendarTaskRelease, mock.Anything, int64(0)).Return(nil).Once()
		res, err := f.svc.CancelGig(ctx, owner, g.ID)
		require.NoError(t, err)
		assert.Equal(t, models.GigStatusCancelled, res.Gig.Status)
		f.calendar.AssertExpectations(t)
	})

	t.Run("OpenRejectsPending", func(t *testing.T) {
		g := f.gig(t)
		app := f.apply(t, drummer, g.ID, 1000)
		res, err := f.svc.CancelGig(ctx, owner, g.ID)
		require.NoError(t, err)
		require.Len(t, res.Changed, 1)
		assert.Equal(t, app.ID, res.Changed[0].ID)
		assert.Equal(t, models.ApplicationStatusRejected, res.Changed[0].Status)
		f.calendar.AssertNumberOfCalls(t, "EnqueueTask", 2)
	})

	t.Run("NotOwner", func(t *testing.T) {
		g := f.gig(t)
		_, err := f.svc.CancelGig(ctx, musician, g.ID)
		assert.ErrorIs(t, err, ErrForbidden)
	})
}
