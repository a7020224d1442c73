package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigflow/internal/models"
)

func TestCalendarBlocks(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	block := &models.CalendarBlock{MusicianID: 10, GigID: 5, Date: "2025-03-10", StartTime: "20:00", EndTime: "23:00"}
	created, err := db.CreateCalendarBlock(ctx, block)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.CalendarSourceGig, block.Source)

	again := &models.CalendarBlock{MusicianID: 10, GigID: 5, Date: "2025-03-10", StartTime: "20:00", EndTime: "23:00"}
	created, err = db.CreateCalendarBlock(ctx, again)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Zero(t, again.ID)

	// manual blocks carry no gig and never collide
	for i := 0; i < 2; i++ {
		manual := &models.CalendarBlock{MusicianID: 10, Date: "2025-03-09", StartTime: "22:00", EndTime: "01:00", Source: models.CalendarSourceManual}
		created, err = db.CreateCalendarBlock(ctx, manual)
		require.NoError(t, err)
		assert.True(t, created)
	}

	_, err = db.CreateCalendarBlock(ctx, &models.CalendarBlock{MusicianID: 11, GigID: 6, Date: "2025-03-12", StartTime: "10:00", EndTime: "12:00"})
	require.NoError(t, err)

	require.NoError(t, db.SetCalendarBlockExternalID(ctx, block.ID, "evt-1"))
	byGig, err := db.ListBlocksByGig(ctx, 5)
	require.NoError(t, err)
	require.Len(t, byGig, 1)
	assert.Equal(t, "evt-1", byGig[0].ExternalID)

	ranged, err := db.ListCalendarBlocks(ctx, 10, "2025-03-10", "2025-03-31")
	require.NoError(t, err)
	assert.Len(t, ranged, 1)

	open, err := db.ListCalendarBlocks(ctx, 10, "", "")
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, "2025-03-09", open[0].Date)

	around, err := db.ListBlocksAround(ctx, []int64{10, 11}, "2025-03-10")
	require.NoError(t, err)
	assert.Len(t, around, 3)

	none, err := db.ListBlocksAround(ctx, nil, "2025-03-10")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = db.ListBlocksAround(ctx, []int64{10}, "10/03/2025")
	assert.Error(t, err)

	require.NoError(t, db.MoveCalendarBlock(ctx, block.ID, "2025-03-10", "21:00", "23:30"))
	byGig, err = db.ListBlocksByGig(ctx, 5)
	require.NoError(t, err)
	require.Len(t, byGig, 1)
	assert.Equal(t, block.ID, byGig[0].ID)
	assert.Equal(t, "21:00", byGig[0].StartTime)
	assert.Equal(t, "23:30", byGig[0].EndTime)
	assert.Empty(t, byGig[0].ExternalID)

	require.NoError(t, db.DeleteCalendarBlock(ctx, block.ID))
	byGig, err = db.ListBlocksByGig(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, byGig)

	// deleting frees the slot for the same gig again
	created, err = db.CreateCalendarBlock(ctx, &models.CalendarBlock{MusicianID: 10, GigID: 5, Date: "2025-03-10", StartTime: "20:00", EndTime: "23:00"})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestCalendarQueue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.CalendarTask{TaskType: models.CalendarTaskBlock, GigID: 5, MusicianID: 10, Payload: `{"date":"2025-03-10"}`}
	require.NoError(t, db.CreateCalendarTask(ctx, task))
	assert.NotZero(t, task.ID)
	assert.Equal(t, models.TaskStatusPending, task.Status)

	future := time.Now().Add(time.Hour)
	delayed := &models.CalendarTask{TaskType: models.CalendarTaskRelease, GigID: 6, NextRetryAt: &future}
	require.NoError(t, db.CreateCalendarTask(ctx, delayed))

	pending, err := db.GetPendingCalendarTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, task.ID, pending[0].ID)
	assert.Nil(t, pending[0].LastError)
	assert.Nil(t, pending[0].ProcessedAt)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.UpdateCalendarTaskStatus(ctx, task.ID, models.TaskStatusRetry, "calendar unavailable", &past))
	pending, err = db.GetPendingCalendarTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].RetryCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "calendar unavailable", *pending[0].LastError)

	require.NoError(t, db.UpdateCalendarTaskStatus(ctx, task.ID, models.TaskStatusFailed, "gave up", nil))
	require.NoError(t, db.UpdateCalendarTaskStatus(ctx, delayed.ID, models.TaskStatusCompleted, "", nil))

	pending, err = db.GetPendingCalendarTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	failed, err := db.GetFailedCalendarTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, task.ID, failed[0].ID)
	assert.NotNil(t, failed[0].ProcessedAt)

	require.NoError(t, db.UpdateCalendarTaskStatus(ctx, delayed.ID, models.TaskStatusProcessing, "", nil))
}

func TestClaimCalendarTask(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.CalendarTask{TaskType: models.CalendarTaskBlock, GigID: 5, MusicianID: 10}
	require.NoError(t, db.CreateCalendarTask(ctx, task))

	claimed, err := db.ClaimCalendarTask(ctx, task.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = db.ClaimCalendarTask(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	pending, err := db.GetPendingCalendarTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err := db.RequeueProcessingCalendarTasks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pending, err = db.GetPendingCalendarTasks(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
