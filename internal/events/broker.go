package events

import (
	"sync"

	"ootdStylist/internal/storage"
)

// Event describes a screen transition of a session.
type Event struct {
	SessionID string         `json:"session_id"`
	Screen    storage.Screen `json:"screen"`
	RunID     string         `json:"run_id,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// Broker manages SSE subscribers.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan Event]string
}

// NewBroker constructs a broker instance.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[chan Event]string),
	}
}

// Subscribe returns a channel that receives events of one session. An empty
// sessionID receives every event.
func (b *Broker) Subscribe(sessionID string) chan Event {
	ch := make(chan Event, 8)
	b.mu.Lock()
	b.subscribers[ch] = sessionID
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel from the broker.
func (b *Broker) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish fan-outs the event to the session's subscribers.
func (b *Broker) Publish(evt Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	for ch, sessionID := range b.subscribers {
		if sessionID != "" && sessionID != evt.SessionID {
			continue
		}
		select {
		case ch <- evt:
		default:
			// drop if subscriber is slow
		}
	}
	b.mu.RUnlock()
}
