// Package realtime delivers "a matching row was inserted" signals to local
// observers. Signals carry no payload; observers re-read what they need.
package realtime

import (
	"context"
	"sync"
)

// Request describes one INSERT subscription with an equality filter.
type Request struct {
	// Channel is the client-side channel name, e.g. "messages-<id>".
	Channel string
	Schema  string
	Table   string
	Column  string
	Value   string
	// AccessToken scopes delivery to rows the caller may read, where the
	// backend enforces row-level security.
	AccessToken string
}

// Filter renders the PostgREST-style filter, e.g. "application_id=eq.42".
func (r Request) Filter() string {
	if r.Column == "" {
		return ""
	}
	return r.Column + "=eq." + r.Value
}

// Matches reports whether an inserted row of table satisfies the request.
func (r Request) Matches(table string, row map[string]string) bool {
	if table != r.Table {
		return false
	}
	return r.Column == "" || row[r.Column] == r.Value
}

// Subscription is a live feed registration.
type Subscription interface {
	// Signals yields one value per change burst. Signals are coalesced: a
	// slow reader sees at least one signal after the latest change. The
	// channel is closed when the subscription ends.
	Signals() <-chan struct{}
	// Close releases the feed. It is safe to call more than once.
	Close() error
}

// Feed opens subscriptions.
type Feed interface {
	Subscribe(ctx context.Context, req Request) (Subscription, error)
}

// signal is the coalescing, close-once channel shared by all feeds.
type signal struct {
	mu     sync.Mutex
	ch     chan struct{}
	closed bool
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{}, 1)}
}

func (s *signal) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *signal) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.ch)
	return true
}
