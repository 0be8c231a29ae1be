package events

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

// subscriberBuffer is how many events a subscriber may lag behind before
// events are dropped for it.
const subscriberBuffer = 16

// EventHub fans events out to every subscriber. Publishing never blocks:
// a slow subscriber misses events instead of stalling a session.
type EventHub struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewEventHub() *EventHub { return &EventHub{subs: make(map[chan Event]struct{})} }

func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch. It is safe to call more than once.
func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Subscribers returns the number of active subscribers.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish sends payload, encoded as JSON, to all subscribers. A nil hub
// discards the event.
func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Error("failed to encode event")
		return
	}
	msg := Event{Name: name, Data: b}
	h.mu.RLock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			logrus.WithField("event", name).Debug("subscriber is slow, dropping event")
		}
	}
	h.mu.RUnlock()
}
