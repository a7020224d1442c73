package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigflow/internal/money"
)

func TestGigStatus(t *testing.T) {
	tests := []struct {
		status   GigStatus
		valid    bool
		terminal bool
		accepts  bool
	}{
		{GigStatusOpen, true, false, true},
		{GigStatusInReview, true, false, true},
		{GigStatusHired, true, false, false},
		{GigStatusClosed, true, true, false},
		{GigStatusCancelled, true, true, false},
		{GigStatus("archived"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.status.Valid())
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.accepts, tt.status.AcceptsApplications())
		})
	}
}

func TestApplicationStatus(t *testing.T) {
	assert.True(t, ApplicationStatusPending.Valid())
	assert.False(t, ApplicationStatusPending.IsTerminal())
	assert.True(t, ApplicationStatusHired.IsTerminal())
	assert.True(t, ApplicationStatusRejected.IsTerminal())
	assert.False(t, ApplicationStatus("withdrawn").Valid())
}

func TestGig_HasGenre(t *testing.T) {
	g := &Gig{Genres: []string{"Samba", "MPB "}}
	assert.True(t, g.HasGenre("samba"))
	assert.True(t, g.HasGenre("mpb"))
	assert.False(t, g.HasGenre("rock"))
}

func TestHireSelection_Contains(t *testing.T) {
	s := &HireSelection{ApplicationIDs: []int64{3, 5}}
	assert.True(t, s.Contains(5))
	assert.False(t, s.Contains(4))
}

func TestGig_JSON(t *testing.T) {
	raw := `{"id":7,"title":"Casamento","status":"open","budget":"1500.00","genres":["samba"],"created_by":2}`
	var g Gig
	require.NoError(t, json.Unmarshal([]byte(raw), &g))
	assert.Equal(t, GigStatusOpen, g.Status)
	assert.Equal(t, money.NewAmount(150000), g.Budget)
	assert.Empty(t, g.EventDate)

	out, err := json.Marshal(&Application{ID: 1, GigID: 7, Status: ApplicationStatusPending})
	require.NoError(t, err)
	assert.Contains(t, string(out), `"expected_fee":null`)
	assert.Contains(t, string(out), `"gig":7`)
}
