// Package testutil provides shared fixtures for service tests: a seeded
// in-memory marketplace, caller sessions and a recording notifier.
package testutil

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dancelink/platform/internal/app/domain/event"
	"github.com/dancelink/platform/internal/app/domain/profile"
	"github.com/dancelink/platform/internal/app/storage/memory"
	"github.com/dancelink/platform/internal/notify"
	"github.com/dancelink/platform/internal/session"
)

// Fixed identities of the seeded marketplace.
const (
	DancerID    = "dancer-1"
	OrganizerID = "org-1"
)

var (
	DancerSession    = session.Session{UserID: DancerID, Email: "dana@example.com", Role: session.RoleDancer}
	OrganizerSession = session.Session{UserID: OrganizerID, Role: session.RoleOrganizer}
)

// StepClock returns a clock that advances by step on every call, so rows
// created in sequence get strictly increasing timestamps.
func StepClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

// Marketplace is a memory store seeded with one organizer, one dancer and
// one event owned by the organizer.
type Marketplace struct {
	Store     *memory.Store
	Organizer event.Organizer
	Dancer    profile.Profile
	Event     event.Event
}

// NewMarketplace seeds a store. publisher may be nil.
func NewMarketplace(t *testing.T, publisher memory.Publisher) *Marketplace {
	t.Helper()
	store := memory.New().WithClock(StepClock(time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC), time.Second))
	if publisher != nil {
		store = store.WithPublisher(publisher)
	}
	ctx := context.Background()

	org, err := store.UpsertOrganizer(ctx, event.Organizer{ID: OrganizerID, Name: "Gala Productions"})
	if err != nil {
		t.Fatalf("seed organizer: %v", err)
	}
	dancer, err := store.CreateProfile(ctx, profile.Profile{ID: DancerID, Name: "Dana", Email: "dana@example.com"})
	if err != nil {
		t.Fatalf("seed dancer: %v", err)
	}
	ev, err := store.CreateEvent(ctx, event.Event{
		Name:             "Spring Gala",
		DanceStyle:       "Salsa",
		GenderPreference: "Any",
		OrganizerID:      OrganizerID,
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
	return &Marketplace{Store: store, Organizer: org, Dancer: dancer, Event: ev}
}

// WithSession attaches sess to the request the way the auth middleware does.
func WithSession(req *http.Request, sess session.Session) *http.Request {
	return req.WithContext(session.NewContext(req.Context(), sess))
}

// RecordingSender is a notify.Sender that keeps every payload and answers
// with Err.
type RecordingSender struct {
	mu       sync.Mutex
	payloads []notify.Payload
	Err      error
}

var _ notify.Sender = (*RecordingSender)(nil)

func (s *RecordingSender) Send(_ context.Context, p notify.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return s.Err
}

// Payloads returns a copy of the sent payloads.
func (s *RecordingSender) Payloads() []notify.Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Payload(nil), s.payloads...)
}

// SetErr changes the answer for later sends.
func (s *RecordingSender) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}
