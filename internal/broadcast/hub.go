// Package broadcast fans live tracking events out to any number of observers.
package broadcast

import (
	"sync"

	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/internal/metrics"
)

// Publisher is the write side of the live channel.
type Publisher interface {
	Publish(e Event)
}

// Subscription receives the events of one ambulance, or of all when created for id 0.
// A subscription created with event types only receives those types.
type Subscription struct {
	ambulanceID uint
	types       map[EventType]struct{}
	ch          chan Event
	hub         *Hub
	once        sync.Once
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

func (s *Subscription) wants(e Event) bool {
	if s.ambulanceID != 0 && s.ambulanceID != e.AmbulanceID {
		return false
	}
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[e.Type]
	return ok
}

// Hub is an in-process publish/subscribe channel. Publish never blocks: an
// observer whose buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	buffer  int
	closed  bool
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int, m *metrics.Metrics, log logrus.FieldLogger) *Hub {
	if buffer <= 0 {
		buffer = 1
	}
	return &Hub{
		subs:    make(map[*Subscription]struct{}),
		buffer:  buffer,
		metrics: m,
		log:     log,
	}
}

// Subscribe registers an observer for ambulanceID; 0 observes every ambulance.
// When types are given, other events never reach the subscriber's buffer.
// Subscribing to a closed hub returns an already-closed subscription.
func (h *Hub) Subscribe(ambulanceID uint, types ...EventType) *Subscription {
	sub := &Subscription{
		ambulanceID: ambulanceID,
		ch:          make(chan Event, h.buffer),
		hub:         h,
	}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	h.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
	sub.once.Do(func() { close(sub.ch) })
}

// Publish delivers e to every matching subscriber without waiting.
func (h *Hub) Publish(e Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.subs {
		if !sub.wants(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
			h.metrics.ObserveBroadcastDrop(string(e.Type))
			h.log.WithFields(logrus.Fields{
				"type":         e.Type,
				"ambulance_id": e.AmbulanceID,
			}).Debug("subscriber buffer full, event dropped")
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		sub.once.Do(func() { close(sub.ch) })
		delete(h.subs, sub)
	}
}
