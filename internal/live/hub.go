// Package live pushes newly created notifications to connected clients.
//
// The Hub fans messages out to a user's open WebSocket sessions inside one
// process. When a Relay is attached (RedisBridge) pushes go through it so
// every instance replays them into its own Hub.
package live

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"smartspray.io/notifier/internal/notification"
	"smartspray.io/notifier/internal/pkg/logger"
)

// MessageTypeNewNotification tags a push for a freshly created notification.
const MessageTypeNewNotification = "NEW_NOTIFICATION"

// subscriberBuffer bounds each session's queue; overflow is dropped.
const subscriberBuffer = 16

// Message is the JSON frame written to clients.
type Message struct {
	Type         string                     `json:"type"`
	Notification *notification.Notification `json:"notification,omitempty"`
	SentAt       time.Time                  `json:"sent_at"`
}

// Relay forwards a push to every instance, including this one.
type Relay interface {
	Publish(userID string, msg Message) error
}

// Hub keeps in-memory subscribers grouped by user.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Message]struct{}
	relay       Relay
	now         func() time.Time
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan Message]struct{}),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetRelay routes Push through r. Pass nil to publish locally only.
func (h *Hub) SetRelay(r Relay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.relay = r
}

// Subscribe registers a session and returns its queue plus an unsubscribe
// function to call on disconnect. The queue is closed by unsubscribe.
func (h *Hub) Subscribe(userID string) (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subscribers[userID]
	if !ok {
		set = make(map[chan Message]struct{})
		h.subscribers[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			if cur := h.subscribers[userID]; cur != nil {
				delete(cur, ch)
				if len(cur) == 0 {
					delete(h.subscribers, userID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers msg to the user's local sessions. Slow sessions are
// skipped so producers never block.
func (h *Hub) Publish(userID string, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers[userID] {
		select {
		case ch <- msg:
		default:
			logger.Debug("live push dropped for slow session", zap.String("user_id", userID))
		}
	}
}

// Subscribers returns the number of open sessions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}

// Push implements notification.Pusher.
func (h *Hub) Push(userID string, n *notification.Notification) {
	if userID == "" || n == nil {
		return
	}
	msg := Message{Type: MessageTypeNewNotification, Notification: n, SentAt: h.now()}

	h.mu.RLock()
	relay := h.relay
	h.mu.RUnlock()

	if relay != nil {
		err := relay.Publish(userID, msg)
		if err == nil {
			return
		}
		logger.Warn("live relay publish failed, delivering locally",
			zap.String("user_id", userID), zap.Error(err))
	}
	h.Publish(userID, msg)
}
