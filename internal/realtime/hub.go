package realtime

import (
	"fmt"
	"log/slog"
	"sync"
)

const subscriptionBuffer = 16

// Event is a realtime change notification pushed to subscribers.
type Event struct {
	Type   string `json:"type"`
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// NewEvent creates an Event with the Type field derived from entity and action.
func NewEvent(entity, action, id string, data any) Event {
	return Event{
		Type:   fmt.Sprintf("%s_%s", entity, action),
		Entity: entity,
		Action: action,
		ID:     id,
		Data:   data,
	}
}

// Subscription is one listener's handle on the hub. Events are dropped when
// the buffer is full; clients recover by polling.
type Subscription struct {
	hub    *Hub
	userID string
	events chan Event
	once   sync.Once
}

// Events returns the channel of delivered events. It is closed by Cancel.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// UserID returns the user the subscription belongs to.
func (s *Subscription) UserID() string {
	return s.userID
}

// Cancel detaches the subscription. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.hub.remove(s) })
}

// Hub fans events out to subscriptions.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	logger *slog.Logger
}

// NewHub creates a new Hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		logger: logger.With("component", "realtime"),
	}
}

// Subscribe registers a listener for userID's events and for broadcasts.
func (h *Hub) Subscribe(userID string) *Subscription {
	s := &Subscription{
		hub:    h,
		userID: userID,
		events: make(chan Event, subscriptionBuffer),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.events)
	}
	h.mu.Unlock()
}

// Publish delivers ev to every subscription of userID.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		if s.userID == userID {
			h.deliver(s, ev)
		}
	}
}

// Broadcast delivers ev to every subscription.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for s := range h.subs {
		h.deliver(s, ev)
	}
}

func (h *Hub) deliver(s *Subscription, ev Event) {
	select {
	case s.events <- ev:
	default:
		h.logger.Debug("subscriber buffer full, dropping event", "user_id", s.userID, "type", ev.Type)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
