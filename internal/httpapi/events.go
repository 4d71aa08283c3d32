package httpapi

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxRecentEvents = 20

// PaymentEvent is one recorded payment-webhook delivery, kept only for the
// diagnostics endpoint.
type PaymentEvent struct {
	ID            string `json:"id"`
	ReceivedAt    int64  `json:"receivedAt"`
	Event         string `json:"event"`
	ContentLength int    `json:"contentLength"`
}

// eventBuffer is a mutex-guarded ring of the most recent payment events,
// capped at maxRecentEvents with the oldest dropped first.
type eventBuffer struct {
	mu     sync.Mutex
	events []PaymentEvent
}

func newEventBuffer() *eventBuffer {
	return &eventBuffer{}
}

func (b *eventBuffer) Append(eventName string, contentLength int) PaymentEvent {
	event := PaymentEvent{
		ID:            uuid.NewString(),
		ReceivedAt:    time.Now().Unix(),
		Event:         eventName,
		ContentLength: contentLength,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if len(b.events) > maxRecentEvents {
		b.events = b.events[len(b.events)-maxRecentEvents:]
	}
	return event
}

// Recent returns up to n events, newest first.
func (b *eventBuffer) Recent(n int) []PaymentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > len(b.events) {
		n = len(b.events)
	}
	out := make([]PaymentEvent, 0, n)
	for i := len(b.events) - 1; i >= len(b.events)-n; i-- {
		out = append(out, b.events[i])
	}
	return out
}

func (b *eventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}
