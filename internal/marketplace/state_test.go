package marketplace

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"gigflow/internal/models"
)

func TestCanTransitionGig(t *testing.T) {
	all := []models.GigStatus{
		models.GigStatusOpen, models.GigStatusInReview, models.GigStatusHired,
		models.GigStatusClosed, models.GigStatusCancelled,
	}
	allowed := map[models.GigStatus][]models.GigStatus{
		models.GigStatusOpen:     {models.GigStatusInReview, models.GigStatusHired, models.GigStatusClosed, models.GigStatusCancelled},
		models.GigStatusInReview: {models.GigStatusHired, models.GigStatusClosed, models.GigStatusCancelled},
		models.GigStatusHired:    {models.GigStatusClosed, models.GigStatusCancelled},
	}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransitionGig(from, to), "%s -> %s", from, to)
		}
	}
	assert.False(t, CanTransitionGig("unknown", models.GigStatusOpen))
}

func TestCanTransitionApplication(t *testing.T) {
	assert.True(t, CanTransitionApplication(models.ApplicationStatusPending, models.ApplicationStatusHired))
	assert.True(t, CanTransitionApplication(models.ApplicationStatusPending, models.ApplicationStatusRejected))
	assert.False(t, CanTransitionApplication(models.ApplicationStatusPending, models.ApplicationStatusPending))
	assert.False(t, CanTransitionApplication(models.ApplicationStatusHired, models.ApplicationStatusRejected))
	assert.False(t, CanTransitionApplication(models.ApplicationStatusRejected, models.ApplicationStatusHired))
}
