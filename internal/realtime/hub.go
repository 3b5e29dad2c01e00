// Package realtime pushes background results to connected clients
package realtime

import (
	"sync"

	"github.com/labstack/echo/v4"
)

const (
	EventConnected      = "connected"
	EventInsightsReady  = "insights_ready"
	EventToneSuggestion = "tone_suggestion"
)

// Events queued per connection before new ones are dropped
const subscriberBuffer = 32

// Event is one message sent to a client
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Subscriber receives the events addressed to one connection
type Subscriber struct {
	UserID uint
	Admin  bool
	events chan Event
}

func (s *Subscriber) Events() <-chan Event {
	return s.events
}

// Hub tracks open connections. Sends never block: a subscriber whose queue
// is full misses the event.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	logger echo.Logger
}

func NewHub(logger echo.Logger) *Hub {
	return &Hub{
		subs:   make(map[*Subscriber]struct{}),
		logger: logger,
	}
}

func (h *Hub) Subscribe(userID uint, admin bool) *Subscriber {
	s := &Subscriber{UserID: userID, Admin: admin, events: make(chan Event, subscriberBuffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its event channel
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.events)
	}
}

// Subscribers counts open connections
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// SendToUser delivers e to every connection of userID
func (h *Hub) SendToUser(userID uint, e Event) int {
	return h.send(e, func(s *Subscriber) bool { return s.UserID == userID })
}

// SendToAdmins delivers e to every admin connection
func (h *Hub) SendToAdmins(e Event) int {
	return h.send(e, func(s *Subscriber) bool { return s.Admin })
}

func (h *Hub) send(e Event, match func(*Subscriber) bool) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.subs {
		if !match(s) {
			continue
		}
		select {
		case s.events <- e:
			delivered++
		default:
			h.logger.Warnf("Dropping %s event for user %d, connection is not keeping up", e.Type, s.UserID)
		}
	}
	return delivered
}
