package marketplace

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigflow/internal/models"
	"gigflow/internal/money"
)

func openGig() *models.Gig {
	return &models.Gig{
		ID:        10,
		Title:     "Casamento na serra",
		Status:    models.GigStatusOpen,
		CreatedBy: 1,
		Budget:    money.NewAmount(100000),
		EventDate: "2025-03-10",
		StartTime: "20:00",
		EndTime:   "23:00",
	}
}

func TestCanApply(t *testing.T) {
	t.Run("Allowed", func(t *testing.T) {
		d := CanApply(openGig(), 2, nil, money.NewAmount(50000))
		assert.True(t, d.Allowed)
		assert.Empty(t, d.Reasons)
	})

	t.Run("InReviewStillAccepts", func(t *testing.T) {
		g := openGig()
		g.Status = models.GigStatusInReview
		assert.True(t, CanApply(g, 2, nil, money.Amount{}).Allowed)
	})

	t.Run("ClosedOrCancelled", func(t *testing.T) {
		for _, s := range []models.GigStatus{models.GigStatusClosed, models.GigStatusCancelled} {
			g := openGig()
			g.Status = s
			d := CanApply(g, 2, nil, money.Amount{})
			assert.False(t, d.Allowed)
			assert.True(t, d.Has(ReasonGigFinished))
		}
	})

	t.Run("Hired", func(t *testing.T) {
		g := openGig()
		g.Status = models.GigStatusHired
		assert.True(t, CanApply(g, 2, nil, money.Amount{}).Has(ReasonGigNotOpen))
	})

	t.Run("AlreadyApplied", func(t *testing.T) {
		existing := []models.Application{{ID: 1, GigID: 10, MusicianID: 2}}
		assert.True(t, CanApply(openGig(), 2, existing, money.Amount{}).Has(ReasonAlreadyApplied))
		assert.True(t, CanApply(openGig(), 3, existing, money.Amount{}).Allowed)

		g := openGig()
		g.MyApplication = &models.Application{ID: 1, MusicianID: 2}
		assert.True(t, CanApply(g, 2, nil, money.Amount{}).Has(ReasonAlreadyApplied))
	})

	t.Run("OwnGig", func(t *testing.T) {
		assert.True(t, CanApply(openGig(), 1, nil, money.Amount{}).Has(ReasonOwnGig))
	})

	t.Run("FeeOverBudget", func(t *testing.T) {
		d := CanApply(openGig(), 2, nil, money.NewAmount(100001))
		assert.False(t, d.Allowed)
		assert.True(t, d.Has(ReasonFeeOverBudget))

		g := openGig()
		g.Budget = money.Amount{}
		assert.True(t, CanApply(g, 2, nil, money.NewAmount(100001)).Allowed)
	})

	t.Run("NilGig", func(t *testing.T) {
		assert.False(t, CanApply(nil, 2, nil, money.Amount{}).Allowed)
	})
}

func TestCanHire(t *testing.T) {
	t.Run("Allowed", func(t *testing.T) {
		sel := []models.Application{{ID: 1, GigID: 10, Status: models.ApplicationStatusPending, ExpectedFee: money.NewAmount(40000)}}
		assert.True(t, CanHire(openGig(), sel).Allowed)
	})

	t.Run("EmptySelection", func(t *testing.T) {
		d := CanHire(openGig(), nil)
		assert.False(t, d.Allowed)
		assert.True(t, d.Has(ReasonEmptySelection))
	})

	t.Run("EveryProblemIsReported", func(t *testing.T) {
		g := openGig()
		g.EndTime = ""
		sel := []models.Application{
			{ID: 1, GigID: 10, Status: models.ApplicationStatusRejected, ExpectedFee: money.NewAmount(90000)},
			{ID: 2, GigID: 11, Status: models.ApplicationStatusPending, ExpectedFee: money.NewAmount(10000)},
			{ID: 3, GigID: 10, Status: models.ApplicationStatusPending},
			{ID: 4, GigID: 10, Status: models.ApplicationStatusPending, ExpectedFee: money.NewAmount(20000)},
		}
		d := CanHire(g, sel)
		assert.False(t, d.Allowed)
		for _, code := range []ReasonCode{
			ReasonIncompleteSchedule, ReasonApplicationNotPending, ReasonApplicationOtherGig,
			ReasonMissingFee, ReasonOverBudget,
		} {
			assert.True(t, d.Has(code), code)
		}
	})

	t.Run("Terminal", func(t *testing.T) {
		g := openGig()
		g.Status = models.GigStatusClosed
		sel := []models.Application{{ID: 1, GigID: 10, Status: models.ApplicationStatusPending, ExpectedFee: money.NewAmount(1)}}
		assert.True(t, CanHire(g, sel).Has(ReasonGigFinished))
	})
}

func TestCanCloseAndCancel(t *testing.T) {
	for _, s := range []models.GigStatus{models.GigStatusOpen, models.GigStatusInReview, models.GigStatusHired} {
		g := openGig()
		g.Status = s
		assert.True(t, CanClose(g).Allowed, s)
		assert.True(t, CanCancel(g).Allowed, s)
	}
	for _, s := range []models.GigStatus{models.GigStatusClosed, models.GigStatusCancelled} {
		g := openGig()
		g.Status = s
		assert.False(t, CanClose(g).Allowed, s)
		assert.False(t, CanCancel(g).Allowed, s)
	}
	assert.False(t, CanClose(nil).Allowed)
}

func TestCanReject(t *testing.T) {
	g := openGig()
	assert.True(t, CanReject(g, &models.Application{ID: 1, GigID: 10, Status: models.ApplicationStatusPending}).Allowed)
	assert.True(t, CanReject(g, &models.Application{ID: 1, GigID: 10, Status: models.ApplicationStatusHired}).Has(ReasonApplicationNotPending))
	assert.True(t, CanReject(g, &models.Application{ID: 1, GigID: 99, Status: models.ApplicationStatusPending}).Has(ReasonApplicationOtherGig))
	assert.True(t, CanReject(g, nil).Has(ReasonApplicationNotFound))
}

func TestCanPostMessage(t *testing.T) {
	g := openGig()
	app := &models.Application{ID: 5, GigID: 10, MusicianID: 2}

	assert.True(t, CanPostMessage(g, app, 1, "Olá!").Allowed)
	assert.True(t, CanPostMessage(g, app, 2, "Oi").Allowed)
	assert.True(t, CanPostMessage(g, app, 3, "Oi").Has(ReasonNotParticipant))
	assert.True(t, CanPostMessage(g, app, 2, "   ").Has(ReasonEmptyMessage))
	assert.True(t, CanPostMessage(g, app, 2, strings.Repeat("a", models.MaxChatMessageLength+1)).Has(ReasonMessageTooLong))

	g.Status = models.GigStatusHired
	assert.True(t, CanPostMessage(g, app, 2, "Até sábado").Allowed)

	g.Status = models.GigStatusClosed
	assert.True(t, CanPostMessage(g, app, 2, "Oi").Has(ReasonGigFinished))
}

func TestReasonJSON(t *testing.T) {
	raw, err := json.Marshal(Decision{Reasons: []Reason{{Code: ReasonOverBudget}, {Code: ReasonApplicationNotPending, ApplicationID: 4}}})
	require.NoError(t, err)

	var decoded struct {
		Allowed bool `json:"allowed"`
		Reasons []struct {
			Code          string `json:"code"`
			Message       string `json:"message"`
			ApplicationID int64  `json:"application_id"`
		} `json:"reasons"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Reasons, 2)
	assert.Equal(t, "over_budget", decoded.Reasons[0].Code)
	assert.NotEmpty(t, decoded.Reasons[0].Message)
	assert.Equal(t, int64(4), decoded.Reasons[1].ApplicationID)
}

func TestReasonMessages(t *testing.T) {
	codes := []ReasonCode{
		ReasonGigNotOpen, ReasonGigFinished, ReasonAlreadyApplied, ReasonOwnGig, ReasonFeeOverBudget,
		ReasonIncompleteSchedule, ReasonEmptySelection, ReasonApplicationNotFound, ReasonApplicationNotPending,
		ReasonApplicationOtherGig, ReasonMissingFee, ReasonOverBudget, ReasonNotParticipant,
		ReasonEmptyMessage, ReasonMessageTooLong,
	}
	seen := map[string]bool{}
	for _, c := range codes {
		msg := Reason{Code: c}.Message()
		assert.NotEqual(t, string(c), msg, "missing message for %s", c)
		assert.False(t, seen[msg], "duplicate message for %s", c)
		seen[msg] = true
	}
}
