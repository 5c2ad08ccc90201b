package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type classifies hub events
type Type string

const (
	// TypeInstance signals that at least one instance changed status or PID;
	// subscribers should re-render.
	TypeInstance Type = "instance"
	// TypeGuard signals an exclusivity guard transition.
	TypeGuard Type = "guard"
	// TypeLog carries a human-readable status line (informational only).
	TypeLog Type = "log"
)

// Event is one hub notification
type Event struct {
	ID        string      `json:"id"`
	Type      Type        `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// LogLine is the payload of TypeLog events
type LogLine struct {
	Level     string `json:"level"`
	Message   string `json:"message"`
	ProfileID *int   `json:"profile_id,omitempty"`
}

// Hub fans events out to subscribers. Delivery is best-effort: a subscriber
// whose buffer is full misses the event rather than blocking publishers.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]chan Event
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size
func (h *Hub) Subscribe(buffer int) (string, <-chan Event) {
	if buffer <= 0 {
		buffer = 16
	}
	id := uuid.New().String()
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.subs[id] = ch
	h.mu.Unlock()

	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish delivers an event to all current subscribers
func (h *Hub) Publish(t Type, payload interface{}) {
	evt := Event{
		ID:        uuid.New().String(),
		Type:      t,
		Timestamp: time.Now(),
		Payload:   payload,
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs {
		select {
		case ch <- evt:
		default:
			// Slow subscriber, drop rather than block
		}
	}
}

// PublishLog publishes a human-readable status line
func (h *Hub) PublishLog(level, message string, profileID *int) {
	h.Publish(TypeLog, LogLine{Level: level, Message: message, ProfileID: profileID})
}

// Subscribers returns the current subscriber count
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
