package storage

import (
	"context"
	"errors"
	"time"

	"github.com/dancelink/platform/internal/app/domain/application"
	"github.com/dancelink/platform/internal/app/domain/event"
	"github.com/dancelink/platform/internal/app/domain/message"
	"github.com/dancelink/platform/internal/app/domain/profile"
	"github.com/dancelink/platform/internal/session"
)

var (
	// ErrNotFound is returned when a record does not exist or is not
	// visible to the caller.
	ErrNotFound = errors.New("record not found")

	// ErrRelationMissing is returned when the backing table has not been
	// provisioned yet.
	ErrRelationMissing = errors.New("relation does not exist")
)

// ProfileStore persists dancer profiles.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
	GetProfile(ctx context.Context, id string) (profile.Profile, error)
	// UpdateProfile replaces every editable column; ID and Email are kept.
	UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error)
}

// EventStore persists events and the organizers that own them.
type EventStore interface {
	CreateEvent(ctx context.Context, ev event.Event) (event.Event, error)
	GetEvent(ctx context.Context, id string) (event.Event, error)
	// ListEvents returns all events, newest first.
	ListEvents(ctx context.Context) ([]event.Event, error)
	// ListEventsByOrganizer returns the organizer's events, newest first.
	ListEventsByOrganizer(ctx context.Context, organizerID string) ([]event.Event, error)
	DeleteEvent(ctx context.Context, id string) error

	GetOrganizer(ctx context.Context, id string) (event.Organizer, error)
	UpsertOrganizer(ctx context.Context, org event.Organizer) (event.Organizer, error)
}

// ApplicationStore persists applications. It does not enforce one
// application per (event, dancer) nor the status state machine.
type ApplicationStore interface {
	CreateApplication(ctx context.Context, app application.Application) (application.Application, error)
	// GetApplication expands the event and its organizer.
	GetApplication(ctx context.Context, id string) (application.Application, error)
	// ListApplicationsByDancer expands event and organizer, newest first.
	ListApplicationsByDancer(ctx context.Context, dancerID string) ([]application.Application, error)
	// ListApplicationsByEvent expands the dancer summary, oldest first so
	// applicants read in the order they applied.
	ListApplicationsByEvent(ctx context.Context, eventID string) ([]application.Application, error)
	// AppliedEventIDs returns the event ids the dancer has applied to.
	AppliedEventIDs(ctx context.Context, dancerID string) ([]string, error)
	// UpdateApplicationStatus sets status and advances updated_at.
	UpdateApplicationStatus(ctx context.Context, id string, status application.Status) (application.Application, error)
}

// MessageStore persists thread messages.
type MessageStore interface {
	// ListMessages returns the thread ordered by created_at ascending, with
	// sender and receiver expanded.
	ListMessages(ctx context.Context, applicationID string) ([]message.Message, error)
	CreateMessage(ctx context.Context, msg message.Message) (message.Message, error)
	// MarkMessagesRead stamps read_at on the given ids in one update. Rows
	// that already carry read_at are left untouched.
	MarkMessagesRead(ctx context.Context, ids []string, at time.Time) error
}

// RoleStore persists the marketplace role of each user.
type RoleStore interface {
	GetRole(ctx context.Context, userID string) (string, error)
	SetRole(ctx context.Context, userID, role string) error
}

// Store is the full data access facade.
type Store interface {
	ProfileStore
	EventStore
	ApplicationStore
	MessageStore
	RoleStore

	Ping(ctx context.Context) error
}

// Backend hands out a Store scoped to a caller. Backends that enforce
// row-level security bind the session's access token; others ignore it.
type Backend interface {
	For(sess session.Session) Store
}

// Static is a Backend that returns the same Store for every caller.
type Static struct {
	Store
}

func (s Static) For(session.Session) Store { return s.Store }
