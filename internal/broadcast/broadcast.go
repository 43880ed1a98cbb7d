package broadcast

import (
	"sync"

	"github.com/cyfung/portfolio-helper-sub000/internal/logger"
	"github.com/cyfung/portfolio-helper-sub000/internal/model"
)

// Hub fans events out to all subscribers. Publish never blocks on a
// consumer: each subscriber has a bounded buffer, and when it is full
// the OLDEST buffered event is dropped to admit the new one — for a
// live price feed staleness matters more than completeness.
type Hub struct {
	buffer int
	logger logger.Logger

	mu   sync.RWMutex
	subs map[*Subscriber]struct{}
}

func NewHub(buffer int, logger logger.Logger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		buffer: buffer,
		logger: logger,
		subs:   make(map[*Subscriber]struct{}),
	}
}

type Subscriber struct {
	hub *Hub

	events    chan model.Event
	done      chan struct{}
	closeOnce sync.Once
}

// Events yields the subscriber's delivery stream. The channel is never
// closed; select against Done to notice teardown.
func (s *Subscriber) Events() <-chan model.Event {
	return s.events
}

func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Close tears the subscription down. Events already buffered are lost.
// Safe to call multiple times and concurrently with Publish.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()
		close(s.done)
	})
}

func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		hub:    h,
		events: make(chan model.Event, h.buffer),
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish delivers ev to every current subscriber, best-effort. A full
// subscriber loses its oldest buffered event; nothing here waits on a
// consumer.
func (h *Hub) Publish(ev model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.events <- ev:
			continue
		default:
		}
		// buffer full: drop the oldest and retry once
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
			h.logger.Debugf("dropping %s event for a stalled subscriber", ev.EventType())
		}
	}
}
