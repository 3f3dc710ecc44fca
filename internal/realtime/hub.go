package realtime

import (
	"context"
	"sync"

	"github.com/dancelink/platform/internal/metrics"
)

// Hub is an in-process Feed. Stores and listeners call Publish on insert.
type Hub struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[uint64]*hubSubscription
	metrics *metrics.Metrics
}

// NewHub creates an empty hub. m may be nil.
func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		subs:    make(map[uint64]*hubSubscription),
		metrics: m,
	}
}

// Subscribe registers req until the returned subscription is closed or ctx
// is done.
func (h *Hub) Subscribe(ctx context.Context, req Request) (Subscription, error) {
	h.mu.Lock()
	h.nextID++
	sub := &hubSubscription{id: h.nextID, hub: h, req: req, sig: newSignal(), closed: make(chan struct{})}
	h.subs[sub.id] = sub
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.closed:
		}
	}()
	return sub, nil
}

// Publish signals every subscription whose request matches the row.
func (h *Hub) Publish(table string, row map[string]string) {
	h.mu.RLock()
	var matched []*hubSubscription
	for _, sub := range h.subs {
		if sub.req.Matches(table, row) {
			matched = append(matched, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range matched {
		sub.sig.notify()
	}
	if h.metrics != nil && len(matched) > 0 {
		h.metrics.RecordFeedSignal(table)
	}
}

// Broadcast signals every open subscription regardless of its filter. It is
// used when changes may have been missed, so every reader reloads once.
func (h *Hub) Broadcast() int {
	h.mu.RLock()
	all := make([]*hubSubscription, 0, len(h.subs))
	for _, sub := range h.subs {
		all = append(all, sub)
	}
	h.mu.RUnlock()

	for _, sub := range all {
		sub.sig.notify()
	}
	return len(all)
}

// Len returns the number of open subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

type hubSubscription struct {
	id  uint64
	hub *Hub
	req Request
	sig *signal

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *hubSubscription) Signals() <-chan struct{} { return s.sig.ch }

func (s *hubSubscription) Close() error {
	s.closeOnce.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
		s.sig.close()
		close(s.closed)
	})
	return nil
}
