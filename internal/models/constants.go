package models

import "time"

const (
	// DefaultHistoryWindowDays is how long closed and cancelled gigs stay in the history view.
	DefaultHistoryWindowDays = 14

	// DefaultTimezone is used to interpret gig dates when none is configured.
	DefaultTimezone = "America/Sao_Paulo"

	// DefaultEndTime closes an event day whose end time was never set.
	DefaultEndTime = "23:59"

	// DefaultSelectionTTL keeps a contractor's hire draft alive.
	DefaultSelectionTTL = 24 * time.Hour

	// WorkerQueueSize is the in-memory calendar queue size.
	WorkerQueueSize = 1000

	// ChatRateLimitMessages per ChatRateLimitWindow per sender.
	ChatRateLimitMessages = 20
	ChatRateLimitWindow   = time.Minute

	// MaxChatMessageLength in runes.
	MaxChatMessageLength = 2000

	DefaultPageSize = 50
)
