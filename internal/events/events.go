package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventGigCreated           = "gig_created"
	EventGigUpdated           = "gig_updated"
	EventApplicationSubmitted = "application_submitted"
	EventGigHired             = "gig_hired"
	EventApplicationRejected  = "application_rejected"
	EventGigClosed            = "gig_closed"
	EventGigCancelled         = "gig_cancelled"
	EventChatMessagePosted    = "chat_message_posted"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

// GigEventPayload is the gig snapshot carried by marketplace events.
type GigEventPayload struct {
	GigID          int64     `json:"gig_id"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	OwnerID        int64     `json:"owner_id"`
	EventDate      string    `json:"event_date,omitempty"`
	ApplicationIDs []int64   `json:"application_ids,omitempty"`
	HiredIDs       []int64   `json:"hired_ids,omitempty"`
	RejectedIDs    []int64   `json:"rejected_ids,omitempty"`
	ActorID        int64     `json:"actor_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// ChatEventPayload describes a posted chat message.
type ChatEventPayload struct {
	MessageID     int64     `json:"message_id"`
	ApplicationID int64     `json:"application_id"`
	GigID         int64     `json:"gig_id"`
	SenderID      int64     `json:"sender_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Event represents a lightweight domain event.
type Event struct {
	ID        int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	onError     func(event *Event, err error)
	mu          sync.RWMutex
	seq         int64
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError sets a callback for handler failures. Failures never stop delivery.
func (b *EventBus) OnError(fn func(event *Event, err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = fn
}

// Subscribe registers a handler for a given event type, or AllEvents.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type, then wildcard subscribers.
func (b *EventBus) Publish(event *Event) {
	b.mu.Lock()
	b.seq++
	if event.ID == 0 {
		event.ID = b.seq
	}
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.subscribers[AllEvents]...)
	onError := b.onError
	b.mu.Unlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil && onError != nil {
			onError(event, err)
		}
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// Decode unmarshals the event payload into v.
func (e *Event) Decode(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
