package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigflow/internal/models"
)

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func TestGroupApplicationsByGig(t *testing.T) {
	apps := []models.Application{
		{ID: 1, GigID: 10, CreatedAt: at(5)},
		{ID: 2, GigID: 20, CreatedAt: at(1)},
		{ID: 3, GigID: 10, CreatedAt: at(2)},
		{ID: 4, GigID: 10, CreatedAt: at(2)},
		{ID: 5, GigID: 20, CreatedAt: at(9)},
	}

	groups := GroupApplicationsByGig(apps)
	require.Len(t, groups, 2)

	var ids []int64
	for _, a := range groups[10] {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []int64{3, 4, 1}, ids)
	assert.Len(t, groups[20], 2)
	assert.Equal(t, []int64{20, 10}, GigOrder(groups))

	assert.Empty(t, GroupApplicationsByGig(nil))
}

func TestSortMessages(t *testing.T) {
	msgs := []models.ChatMessage{
		{ID: 1, CreatedAt: at(3)},
		{ID: 2, CreatedAt: at(1)},
		{ID: 3, CreatedAt: at(3)},
		{ID: 4, CreatedAt: at(2)},
	}
	SortMessages(msgs)
	var ids []int64
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []int64{2, 4, 1, 3}, ids)
}

func TestCounters(t *testing.T) {
	msgs := []models.ChatMessage{
		{ID: 1, ApplicationID: 7, SenderID: 1, CreatedAt: at(1)},
		{ID: 2, ApplicationID: 7, SenderID: 2, CreatedAt: at(2)},
		{ID: 3, ApplicationID: 7, SenderID: 2, CreatedAt: at(4)},
		{ID: 4, ApplicationID: 8, SenderID: 2, CreatedAt: at(5)},
	}

	assert.Equal(t, map[int64]int{7: 3, 8: 1}, MessageCounts(msgs))
	assert.Equal(t, 3, UnreadCount(msgs, 1, time.Time{}))
	assert.Equal(t, 2, UnreadCount(msgs, 1, at(2)))
	assert.Equal(t, 1, UnreadCount(msgs, 2, time.Time{}))

	s := Summarize(&models.Application{ID: 7}, msgs, 1, at(3))
	assert.Equal(t, 3, s.MessageCount)
	assert.Equal(t, 1, s.Unread)
	require.NotNil(t, s.LastMessageAt)
	assert.Equal(t, at(4), *s.LastMessageAt)

	empty := Summarize(&models.Application{ID: 99}, msgs, 1, time.Time{})
	assert.Zero(t, empty.MessageCount)
	assert.Nil(t, empty.LastMessageAt)
}
