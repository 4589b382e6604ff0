// Package stream fan-outs ledger appends to live dashboard subscribers
// (the SSE transactions view). It replaces the legacy polling loop.
package stream

import (
	"context"
	"sync"
	"time"
)

// Event mirrors one ledger append.
type Event struct {
	OrderID    string    `json:"orderId"`
	Channel    string    `json:"channel"`
	Amount     float64   `json:"amount"`
	Currency   string    `json:"currency"`
	Success    bool      `json:"success"`
	ResultCode string    `json:"resultCode"`
	Timestamp  time.Time `json:"timestamp"`
}

// Stream fan-outs events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
