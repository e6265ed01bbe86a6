// Package notify fans scanner notifications out to connected clients.
package notify

import (
	"sync"
	"time"

	"photo-library/internal/logging"
	"photo-library/internal/metrics"
)

// Type is the kind of a notification.
type Type string

const (
	TypeMessage  Type = "message"
	TypeProgress Type = "progress"
	TypeClose    Type = "close"
)

// Notification is one client-visible event. Notifications sharing a Key
// update the same item on the client.
type Notification struct {
	Key      string   `json:"key"`
	Type     Type     `json:"type"`
	Header   string   `json:"header,omitempty"`
	Content  string   `json:"content,omitempty"`
	Progress *float64 `json:"progress,omitempty"`
	Positive bool     `json:"positive"`
	Negative bool     `json:"negative"`
	// Timeout in milliseconds after which the client dismisses a message.
	Timeout *int64 `json:"timeout,omitempty"`
}

// Publisher accepts notifications.
type Publisher interface {
	Publish(n Notification)
}

// Progress builds a progress notification. fraction is clamped to [0,1].
func Progress(key, header, content string, fraction float64) Notification {
	fraction = min(max(fraction, 0), 1)
	return Notification{Key: key, Type: TypeProgress, Header: header, Content: content, Progress: &fraction}
}

// Message builds a terminal message. A zero timeout keeps it until dismissed.
func Message(key, header, content string, positive bool, timeout time.Duration) Notification {
	n := Notification{Key: key, Type: TypeMessage, Header: header, Content: content, Positive: positive, Negative: !positive}
	if timeout > 0 {
		ms := timeout.Milliseconds()
		n.Timeout = &ms
	}
	return n
}

// Close builds the notification retiring key.
func Close(key string) Notification {
	return Notification{Key: key, Type: TypeClose}
}

// Hub broadcasts notifications to subscribers. Slow subscribers miss
// notifications instead of blocking the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	closed bool
}

// Subscription receives notifications until closed.
type Subscription struct {
	hub  *Hub
	ch   chan Notification
	once sync.Once
}

// NewHub creates a hub whose subscribers buffer up to buffer notifications.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers a new subscriber. On a closed hub the subscription's
// channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, ch: make(chan Notification, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s] = struct{}{}
	metrics.NotificationSubscribers.Inc()
	return s
}

// Publish delivers n to every subscriber with room in its buffer.
func (h *Hub) Publish(n Notification) {
	metrics.NotificationsPublishedTotal.WithLabelValues(string(n.Type)).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.ch <- n:
		default:
			logging.Debug("Dropping %s notification %s for a slow subscriber", n.Type, n.Key)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[*Subscription]struct{})
	h.closed = true
	h.mu.Unlock()

	for s := range subs {
		s.close()
	}
}

// C returns the channel notifications arrive on. It is closed when the
// subscription or the hub is closed.
func (s *Subscription) C() <-chan Notification {
	return s.ch
}

// Close unsubscribes.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	_, ok := s.hub.subs[s]
	delete(s.hub.subs, s)
	s.hub.mu.Unlock()
	if ok {
		s.close()
	}
}

func (s *Subscription) close() {
	s.once.Do(func() {
		metrics.NotificationSubscribers.Dec()
		close(s.ch)
	})
}
