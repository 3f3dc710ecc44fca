package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dancelink/platform/internal/app/domain"
	"github.com/dancelink/platform/internal/app/domain/application"
	"github.com/dancelink/platform/internal/app/domain/event"
	"github.com/dancelink/platform/internal/app/domain/message"
	"github.com/dancelink/platform/internal/app/domain/profile"
	"github.com/dancelink/platform/internal/app/storage"
)

// Publisher receives row inserts so an in-process realtime feed can signal
// subscribers.
type Publisher interface {
	Publish(table string, row map[string]string)
}

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu              sync.RWMutex
	profiles        map[string]profile.Profile
	events          map[string]event.Event
	organizers      map[string]event.Organizer
	applications    map[string]application.Application
	messages        map[string][]message.Message
	roles           map[string]string
	messagesMissing bool

	publisher Publisher
	now       func() time.Time

	// call accounting and one-shot error injection for tests
	calls    map[string]int
	failNext map[string]error
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		profiles:     make(map[string]profile.Profile),
		events:       make(map[string]event.Event),
		organizers:   make(map[string]event.Organizer),
		applications: make(map[string]application.Application),
		messages:     make(map[string][]message.Message),
		roles:        make(map[string]string),
		now:          func() time.Time { return time.Now().UTC() },
		calls:        make(map[string]int),
		failNext:     make(map[string]error),
	}
}

// WithPublisher sets the insert publisher.
func (s *Store) WithPublisher(p Publisher) *Store {
	s.mu.Lock()
	s.publisher = p
	s.mu.Unlock()
	return s
}

// WithClock overrides the timestamp source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
	return s
}

// DropMessages makes the messages relation behave as if it was never
// provisioned.
func (s *Store) DropMessages() {
	s.mu.Lock()
	s.messagesMissing = true
	s.mu.Unlock()
}

// FailNext makes the next call to method return err.
func (s *Store) FailNext(method string, err error) {
	s.mu.Lock()
	s.failNext[method] = err
	s.mu.Unlock()
}

// Calls returns how many times method was invoked.
func (s *Store) Calls(method string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[method]
}

// TotalCalls returns the number of store calls of any kind.
func (s *Store) TotalCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// enter records the call and returns an injected error. Callers hold s.mu.
func (s *Store) enter(method string) error {
	s.calls[method]++
	if err, ok := s.failNext[method]; ok {
		delete(s.failNext, method)
		return err
	}
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enter("Ping")
}

// ProfileStore implementation -------------------------------------------------

func (s *Store) CreateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateProfile"); err != nil {
		return profile.Profile{}, err
	}
	if err := domain.Validate(p); err != nil {
		return profile.Profile{}, err
	}
	if _, exists := s.profiles[p.ID]; exists {
		return profile.Profile{}, fmt.Errorf("profile %s already exists", p.ID)
	}

	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	s.profiles[p.ID] = p.Clone()
	return p.Clone(), nil
}

func (s *Store) GetProfile(_ context.Context, id string) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetProfile"); err != nil {
		return profile.Profile{}, err
	}
	p, ok := s.profiles[id]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", id, storage.ErrNotFound)
	}
	return p.Clone(), nil
}

func (s *Store) UpdateProfile(_ context.Context, p profile.Profile) (profile.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateProfile"); err != nil {
		return profile.Profile{}, err
	}
	original, ok := s.profiles[p.ID]
	if !ok {
		return profile.Profile{}, fmt.Errorf("profile %s: %w", p.ID, storage.ErrNotFound)
	}
	p.Email = original.Email
	if err := domain.Validate(p); err != nil {
		return profile.Profile{}, err
	}

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = s.now()
	s.profiles[p.ID] = p.Clone()
	return p.Clone(), nil
}

// EventStore implementation ---------------------------------------------------

func (s *Store) CreateEvent(_ context.Context, ev event.Event) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateEvent"); err != nil {
		return event.Event{}, err
	}
	if err := domain.Validate(ev); err != nil {
		return event.Event{}, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	} else if _, exists := s.events[ev.ID]; exists {
		return event.Event{}, fmt.Errorf("event %s already exists", ev.ID)
	}
	ev.CreatedAt = s.now()
	ev.Organizer = nil
	s.events[ev.ID] = ev
	return s.expandEventLocked(ev), nil
}

func (s *Store) GetEvent(_ context.Context, id string) (event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetEvent"); err != nil {
		return event.Event{}, err
	}
	ev, ok := s.events[id]
	if !ok {
		return event.Event{}, fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
	}
	return s.expandEventLocked(ev), nil
}

func (s *Store) ListEvents(_ context.Context) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListEvents"); err != nil {
		return nil, err
	}
	return s.listEventsLocked(func(event.Event) bool { return true }), nil
}

func (s *Store) ListEventsByOrganizer(_ context.Context, organizerID string) ([]event.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListEventsByOrganizer"); err != nil {
		return nil, err
	}
	return s.listEventsLocked(func(ev event.Event) bool { return ev.OrganizerID == organizerID }), nil
}

// DeleteEvent removes the event and cascades to its applications and their
// messages, matching the foreign keys of the SQL schema.
func (s *Store) DeleteEvent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteEvent"); err != nil {
		return err
	}
	if _, ok := s.events[id]; !ok {
		return fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
	}
	delete(s.events, id)
	for appID, app := range s.applications {
		if app.EventID == id {
			delete(s.applications, appID)
			delete(s.messages, appID)
		}
	}
	return nil
}

func (s *Store) GetOrganizer(_ context.Context, id string) (event.Organizer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetOrganizer"); err != nil {
		return event.Organizer{}, err
	}
	org, ok := s.organizers[id]
	if !ok {
		return event.Organizer{}, fmt.Errorf("organizer %s: %w", id, storage.ErrNotFound)
	}
	return org, nil
}

func (s *Store) UpsertOrganizer(_ context.Context, org event.Organizer) (event.Organizer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpsertOrganizer"); err != nil {
		return event.Organizer{}, err
	}
	if strings.TrimSpace(org.ID) == "" {
		return event.Organizer{}, fmt.Errorf("organizer id is required")
	}
	s.organizers[org.ID] = org
	return org, nil
}

func (s *Store) listEventsLocked(keep func(event.Event) bool) []event.Event {
	out := make([]event.Event, 0, len(s.events))
	for _, ev := range s.events {
		if keep(ev) {
			out = append(out, s.expandEventLocked(ev))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) expandEventLocked(ev event.Event) event.Event {
	out := ev.Clone()
	if org, ok := s.organizers[ev.OrganizerID]; ok {
		out.Organizer = &org
	}
	return out
}

// ApplicationStore implementation ---------------------------------------------

func (s *Store) CreateApplication(_ context.Context, app application.Application) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateApplication"); err != nil {
		return application.Application{}, err
	}
	if app.Status == "" {
		app.Status = application.StatusPending
	}
	app.Event = nil
	app.Dancer = nil
	if err := domain.Validate(app); err != nil {
		return application.Application{}, err
	}
	if _, ok := s.events[app.EventID]; !ok {
		return application.Application{}, fmt.Errorf("event %s: %w", app.EventID, storage.ErrNotFound)
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := s.now()
	app.CreatedAt = now
	app.UpdatedAt = now
	s.applications[app.ID] = app
	return app.Clone(), nil
}

func (s *Store) GetApplication(_ context.Context, id string) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetApplication"); err != nil {
		return application.Application{}, err
	}
	app, ok := s.applications[id]
	if !ok {
		return application.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	return s.expandApplicationLocked(app, true, false), nil
}

func (s *Store) ListApplicationsByDancer(_ context.Context, dancerID string) ([]application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListApplicationsByDancer"); err != nil {
		return nil, err
	}
	out := make([]application.Application, 0)
	for _, app := range s.applications {
		if app.DancerID == dancerID {
			out = append(out, s.expandApplicationLocked(app, true, false))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ListApplicationsByEvent(_ context.Context, eventID string) ([]application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListApplicationsByEvent"); err != nil {
		return nil, err
	}
	out := make([]application.Application, 0)
	for _, app := range s.applications {
		if app.EventID == eventID {
			out = append(out, s.expandApplicationLocked(app, false, true))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) AppliedEventIDs(_ context.Context, dancerID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("AppliedEventIDs"); err != nil {
		return nil, err
	}
	var apps []application.Application
	for _, app := range s.applications {
		if app.DancerID == dancerID {
			apps = append(apps, app)
		}
	}
	sort.SliceStable(apps, func(i, j int) bool { return apps[i].CreatedAt.Before(apps[j].CreatedAt) })
	return application.EventIDs(apps), nil
}

func (s *Store) UpdateApplicationStatus(_ context.Context, id string, status application.Status) (application.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateApplicationStatus"); err != nil {
		return application.Application{}, err
	}
	if !status.Valid() {
		return application.Application{}, fmt.Errorf("invalid status %q", status)
	}
	app, ok := s.applications[id]
	if !ok {
		return application.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	app.Status = status
	updated := s.now()
	if !updated.After(app.UpdatedAt) {
		updated = app.UpdatedAt.Add(time.Microsecond)
	}
	app.UpdatedAt = updated
	s.applications[id] = app
	return s.expandApplicationLocked(app, true, false), nil
}

func (s *Store) expandApplicationLocked(app application.Application, withEvent, withDancer bool) application.Application {
	out := app.Clone()
	if withEvent {
		if ev, ok := s.events[app.EventID]; ok {
			expanded := s.expandEventLocked(ev)
			out.Event = &expanded
		}
	}
	if withDancer {
		if p, ok := s.profiles[app.DancerID]; ok {
			summary := p.Summary()
			out.Dancer = &summary
		}
	}
	return out
}

// MessageStore implementation -------------------------------------------------

func (s *Store) ListMessages(_ context.Context, applicationID string) ([]message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListMessages"); err != nil {
		return nil, err
	}
	if s.messagesMissing {
		return nil, fmt.Errorf("list messages: %w", storage.ErrRelationMissing)
	}
	thread := s.messages[applicationID]
	out := make([]message.Message, 0, len(thread))
	for _, m := range thread {
		out = append(out, s.expandMessageLocked(m))
	}
	message.SortThread(out)
	return out, nil
}

func (s *Store) CreateMessage(_ context.Context, msg message.Message) (message.Message, error) {
	s.mu.Lock()
	if err := s.enter("CreateMessage"); err != nil {
		s.mu.Unlock()
		return message.Message{}, err
	}
	if s.messagesMissing {
		s.mu.Unlock()
		return message.Message{}, fmt.Errorf("create message: %w", storage.ErrRelationMissing)
	}
	if err := domain.Validate(msg); err != nil {
		s.mu.Unlock()
		return message.Message{}, err
	}
	if _, ok := s.applications[msg.ApplicationID]; !ok {
		s.mu.Unlock()
		return message.Message{}, fmt.Errorf("application %s: %w", msg.ApplicationID, storage.ErrNotFound)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = s.now()
	msg.ReadAt = nil
	msg.Sender = nil
	msg.Receiver = nil
	s.messages[msg.ApplicationID] = append(s.messages[msg.ApplicationID], msg.Clone())
	out := s.expandMessageLocked(msg)
	publisher := s.publisher
	s.mu.Unlock()

	if publisher != nil {
		publisher.Publish("messages", map[string]string{
			"id":             msg.ID,
			"application_id": msg.ApplicationID,
			"sender_id":      msg.SenderID,
			"receiver_id":    msg.ReceiverID,
		})
	}
	return out, nil
}

func (s *Store) MarkMessagesRead(_ context.Context, ids []string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("MarkMessagesRead"); err != nil {
		return err
	}
	if s.messagesMissing {
		return fmt.Errorf("mark messages read: %w", storage.ErrRelationMissing)
	}
	if len(ids) == 0 {
		return nil
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	at = at.UTC()
	for appID, thread := range s.messages {
		for i := range thread {
			if want[thread[i].ID] && thread[i].ReadAt == nil {
				stamp := at
				thread[i].ReadAt = &stamp
			}
		}
		s.messages[appID] = thread
	}
	return nil
}

func (s *Store) expandMessageLocked(m message.Message) message.Message {
	out := m.Clone()
	if p, ok := s.profiles[m.SenderID]; ok {
		out.Sender = &message.Party{ID: p.ID, Name: p.Name}
	} else if org, ok := s.organizers[m.SenderID]; ok {
		out.Sender = &message.Party{ID: org.ID, Name: org.Name}
	}
	if p, ok := s.profiles[m.ReceiverID]; ok {
		out.Receiver = &message.Party{ID: p.ID, Name: p.Name}
	} else if org, ok := s.organizers[m.ReceiverID]; ok {
		out.Receiver = &message.Party{ID: org.ID, Name: org.Name}
	}
	return out
}

// RoleStore implementation ----------------------------------------------------

func (s *Store) GetRole(_ context.Context, userID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetRole"); err != nil {
		return "", err
	}
	role, ok := s.roles[userID]
	if !ok {
		return "", fmt.Errorf("role for %s: %w", userID, storage.ErrNotFound)
	}
	return role, nil
}

func (s *Store) SetRole(_ context.Context, userID, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("SetRole"); err != nil {
		return err
	}
	s.roles[userID] = role
	return nil
}
