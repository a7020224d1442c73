// Package chat aggregates applications and their message threads for display.
package chat

import (
	"sort"
	"time"

	"gigflow/internal/models"
)

// GroupApplicationsByGig buckets applications per gig, each bucket ordered by
// submission time. Ties keep input order.
func GroupApplicationsByGig(apps []models.Application) map[int64][]models.Application {
	groups := make(map[int64][]models.Application)
	for _, a := range apps {
		groups[a.GigID] = append(groups[a.GigID], a)
	}
	for gigID := range groups {
		group := groups[gigID]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].CreatedAt.Before(group[j].CreatedAt)
		})
	}
	return groups
}

// GigOrder returns the gig ids of groups ordered by their earliest application.
func GigOrder(groups map[int64][]models.Application) []int64 {
	ids := make([]int64, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := groups[ids[i]], groups[ids[j]]
		if len(a) == 0 || len(b) == 0 || a[0].CreatedAt.Equal(b[0].CreatedAt) {
			return ids[i] < ids[j]
		}
		return a[0].CreatedAt.Before(b[0].CreatedAt)
	})
	return ids
}

// SortMessages orders a thread oldest first, in place.
func SortMessages(msgs []models.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// MessageCounts tallies messages per application.
func MessageCounts(msgs []models.ChatMessage) map[int64]int {
	counts := make(map[int64]int)
	for _, m := range msgs {
		counts[m.ApplicationID]++
	}
	return counts
}

// UnreadCount counts messages from other senders newer than lastReadAt.
// A zero lastReadAt means the reader never opened the thread.
func UnreadCount(msgs []models.ChatMessage, readerID int64, lastReadAt time.Time) int {
	n := 0
	for _, m := range msgs {
		if m.SenderID == readerID {
			continue
		}
		if lastReadAt.IsZero() || m.CreatedAt.After(lastReadAt) {
			n++
		}
	}
	return n
}

type ThreadSummary struct {
	ApplicationID int64      `json:"application_id"`
	MessageCount  int        `json:"message_count"`
	Unread        int        `json:"unread"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
}

// Summarize builds the counters shown on an application card. Only messages
// of app's thread are considered.
func Summarize(app *models.Application, msgs []models.ChatMessage, readerID int64, lastReadAt time.Time) ThreadSummary {
	s := ThreadSummary{ApplicationID: app.ID}
	thread := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.ApplicationID == app.ID {
			thread = append(thread, m)
		}
	}
	s.MessageCount = len(thread)
	s.Unread = UnreadCount(thread, readerID, lastReadAt)
	for i := range thread {
		if s.LastMessageAt == nil || thread[i].CreatedAt.After(*s.LastMessageAt) {
			at := thread[i].CreatedAt
			s.LastMessageAt = &at
		}
	}
	return s
}
