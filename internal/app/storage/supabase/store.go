// Package supabase implements the storage interfaces over PostgREST. Each
// Store carries one caller's access token, so Supabase row-level security
// decides what the caller can read and write.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dancelink/platform/internal/app/domain"
	"github.com/dancelink/platform/internal/app/domain/application"
	"github.com/dancelink/platform/internal/app/domain/event"
	"github.com/dancelink/platform/internal/app/domain/message"
	"github.com/dancelink/platform/internal/app/domain/profile"
	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/session"
	"github.com/dancelink/platform/supabase/client"
)

const (
	tableProfiles     = "profiles"
	tableOrganizers   = "organizers"
	tableEvents       = "events"
	tableApplications = "applications"
	tableMessages     = "messages"
	tableUserRoles    = "user_roles"

	eventWithOrganizer    = "*,organizer:organizers(id,name)"
	applicationWithEvent  = "*,event:events(*,organizer:organizers(id,name))"
	applicationWithDancer = "*,dancer:profiles(id,name,email,dance_style,gender,video_url)"
	messageWithParties    = "*,sender:profiles!messages_sender_id_fkey(id,name),receiver:profiles!messages_receiver_id_fkey(id,name)"
)

// Backend hands out per-caller stores sharing one HTTP client.
type Backend struct {
	client *client.Client
}

var _ storage.Backend = (*Backend)(nil)

// NewBackend wraps c, which should be created with the anon key.
func NewBackend(c *client.Client) *Backend {
	return &Backend{client: c}
}

// For returns a Store that authenticates as sess. A session without a token
// falls back to the client's API key.
func (b *Backend) For(sess session.Session) storage.Store {
	if sess.AccessToken == "" {
		return New(b.client)
	}
	return New(b.client.WithAccessToken(sess.AccessToken))
}

// Store implements storage.Store against a Supabase project.
type Store struct {
	c   *client.Client
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using c as is.
func New(c *client.Client) *Store {
	return &Store{c: c, now: time.Now}
}

// mapErr converts transport and PostgREST errors into storage sentinels.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := client.AsAPIError(err); ok {
		switch {
		case apiErr.NoRows():
			return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		case apiErr.RelationMissing():
			return fmt.Errorf("%s: %w", op, storage.ErrRelationMissing)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func decode(op string, resp *client.Response, err error, v any) error {
	if err != nil {
		return mapErr(op, err)
	}
	return mapErr(op, resp.Decode(v))
}

func (s *Store) Ping(ctx context.Context) error {
	resp, err := s.c.From(tableUserRoles).Select("user_id").Limit(1).Execute(ctx)
	return decode("ping", resp, err, nil)
}

// --- ProfileStore -----------------------------------------------------------

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if err := domain.Validate(p); err != nil {
		return profile.Profile{}, err
	}

	row := profileColumns(p)
	row["id"] = p.ID
	row["email"] = p.Email

	var out profile.Profile
	resp, err := s.c.From(tableProfiles).Single().ExecuteInsert(ctx, row)
	if err := decode("create profile", resp, err, &out); err != nil {
		return profile.Profile{}, err
	}
	return out, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var out profile.Profile
	resp, err := s.c.From(tableProfiles).Select("*").Eq("id", id).Single().Execute(ctx)
	if err := decode("get profile", resp, err, &out); err != nil {
		return profile.Profile{}, err
	}
	return out, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if err := domain.Validate(p); err != nil {
		return profile.Profile{}, err
	}

	row := profileColumns(p)
	row["updated_at"] = s.now().UTC()

	var rows []profile.Profile
	resp, err := s.c.From(tableProfiles).Eq("id", p.ID).ExecuteUpdate(ctx, row)
	if err := decode("update profile", resp, err, &rows); err != nil {
		return profile.Profile{}, err
	}
	if len(rows) == 0 {
		return profile.Profile{}, fmt.Errorf("update profile: %w", storage.ErrNotFound)
	}
	return rows[0], nil
}

// profileColumns lists every editable column, with explicit nulls so that a
// cleared optional field is cleared in the table too.
func profileColumns(p profile.Profile) map[string]any {
	return map[string]any{
		"name":                       p.Name,
		"dance_style":                p.DanceStyle,
		"gender":                     p.Gender,
		"age":                        p.Age,
		"height":                     p.Height,
		"skin_tone":                  p.SkinTone,
		"experience":                 p.Experience,
		"about":                      p.About,
		"video_url":                  p.VideoURL,
		"certification_document_url": p.CertificationDocumentURL,
	}
}

// --- EventStore -------------------------------------------------------------

func (s *Store) CreateEvent(ctx context.Context, ev event.Event) (event.Event, error) {
	if err := domain.Validate(ev); err != nil {
		return event.Event{}, err
	}

	var out event.Event
	resp, err := s.c.From(tableEvents).Select(eventWithOrganizer).Single().ExecuteInsert(ctx, map[string]any{
		"name":              ev.Name,
		"dance_style":       ev.DanceStyle,
		"gender_preference": ev.GenderPreference,
		"organizer_id":      ev.OrganizerID,
	})
	if err := decode("create event", resp, err, &out); err != nil {
		return event.Event{}, err
	}
	return out, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (event.Event, error) {
	var out event.Event
	resp, err := s.c.From(tableEvents).Select(eventWithOrganizer).Eq("id", id).Single().Execute(ctx)
	if err := decode("get event", resp, err, &out); err != nil {
		return event.Event{}, err
	}
	return out, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]event.Event, error) {
	var out []event.Event
	resp, err := s.c.From(tableEvents).Select(eventWithOrganizer).Order("created_at", false).Execute(ctx)
	if err := decode("list events", resp, err, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListEventsByOrganizer(ctx context.Context, organizerID string) ([]event.Event, error) {
	var out []event.Event
	resp, err := s.c.From(tableEvents).
		Select(eventWithOrganizer).
		Eq("organizer_id", organizerID).
		Order("created_at", false).
		Execute(ctx)
	if err := decode("list organizer events", resp, err, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	var rows []event.Event
	resp, err := s.c.From(tableEvents).Eq("id", id).ExecuteDelete(ctx)
	if err := decode("delete event", resp, err, &rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("delete event: %w", storage.ErrNotFound)
	}
	return nil
}

func (s *Store) GetOrganizer(ctx context.Context, id string) (event.Organizer, error) {
	var out event.Organizer
	resp, err := s.c.From(tableOrganizers).Select("id,name").Eq("id", id).Single().Execute(ctx)
	if err := decode("get organizer", resp, err, &out); err != nil {
		return event.Organizer{}, err
	}
	return out, nil
}

func (s *Store) UpsertOrganizer(ctx context.Context, org event.Organizer) (event.Organizer, error) {
	if org.ID == "" {
		return event.Organizer{}, &domain.FieldError{Field: "id", Rule: "required"}
	}
	var out event.Organizer
	resp, err := s.c.From(tableOrganizers).Select("id,name").Upsert("id").Single().ExecuteInsert(ctx, org)
	if err := decode("upsert organizer", resp, err, &out); err != nil {
		return event.Organizer{}, err
	}
	return out, nil
}

// --- ApplicationStore -------------------------------------------------------

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	if app.Status == "" {
		app.Status = application.StatusPending
	}
	if err := domain.Validate(app); err != nil {
		return application.Application{}, err
	}

	var out application.Application
	resp, err := s.c.From(tableApplications).Single().ExecuteInsert(ctx, map[string]any{
		"event_id":  app.EventID,
		"dancer_id": app.DancerID,
		"status":    app.Status,
	})
	if err := decode("create application", resp, err, &out); err != nil {
		return application.Application{}, err
	}
	return out, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	var out application.Application
	resp, err := s.c.From(tableApplications).Select(applicationWithEvent).Eq("id", id).Single().Execute(ctx)
	if err := decode("get application", resp, err, &out); err != nil {
		return application.Application{}, err
	}
	return out, nil
}

func (s *Store) ListApplicationsByDancer(ctx context.Context, dancerID string) ([]application.Application, error) {
	var out []application.Application
	resp, err := s.c.From(tableApplications).
		Select(applicationWithEvent).
		Eq("dancer_id", dancerID).
		Order("created_at", false).
		Execute(ctx)
	if err := decode("list dancer applications", resp, err, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListApplicationsByEvent(ctx context.Context, eventID string) ([]application.Application, error) {
	var out []application.Application
	resp, err := s.c.From(tableApplications).
		Select(applicationWithDancer).
		Eq("event_id", eventID).
		Order("created_at", true).
		Execute(ctx)
	if err := decode("list event applications", resp, err, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) AppliedEventIDs(ctx context.Context, dancerID string) ([]string, error) {
	var rows []struct {
		EventID string `json:"event_id"`
	}
	resp, err := s.c.From(tableApplications).Select("event_id").Eq("dancer_id", dancerID).Execute(ctx)
	if err := decode("applied events", resp, err, &rows); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.EventID)
	}
	return ids, nil
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, id string, status application.Status) (application.Application, error) {
	if !status.Valid() {
		return application.Application{}, &domain.FieldError{Field: "status", Rule: "oneof"}
	}

	var rows []application.Application
	resp, err := s.c.From(tableApplications).
		Select(applicationWithEvent).
		Eq("id", id).
		ExecuteUpdate(ctx, map[string]any{
			"status":     status,
			"updated_at": s.now().UTC(),
		})
	if err := decode("update application status", resp, err, &rows); err != nil {
		return application.Application{}, err
	}
	if len(rows) == 0 {
		return application.Application{}, fmt.Errorf("update application status: %w", storage.ErrNotFound)
	}
	return rows[0], nil
}

// --- MessageStore -----------------------------------------------------------

func (s *Store) ListMessages(ctx context.Context, applicationID string) ([]message.Message, error) {
	var out []message.Message
	resp, err := s.c.From(tableMessages).
		Select(messageWithParties).
		Eq("application_id", applicationID).
		Order("created_at", true).
		Execute(ctx)
	if err := decode("list messages", resp, err, &out); err != nil {
		// PGRST116 on this list is how an unprovisioned messages table has
		// surfaced in practice.
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("list messages: %w", storage.ErrRelationMissing)
		}
		return nil, err
	}
	message.SortThread(out)
	return out, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg message.Message) (message.Message, error) {
	if err := domain.Validate(msg); err != nil {
		return message.Message{}, err
	}

	var out message.Message
	resp, err := s.c.From(tableMessages).Select(messageWithParties).Single().ExecuteInsert(ctx, map[string]any{
		"application_id": msg.ApplicationID,
		"sender_id":      msg.SenderID,
		"receiver_id":    msg.ReceiverID,
		"message":        msg.Message,
	})
	if err := decode("create message", resp, err, &out); err != nil {
		return message.Message{}, err
	}
	return out, nil
}

func (s *Store) MarkMessagesRead(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	resp, err := s.c.From(tableMessages).
		In("id", ids).
		Is("read_at", "null").
		ExecuteUpdate(ctx, map[string]any{"read_at": at.UTC()})
	return decode("mark messages read", resp, err, nil)
}

// --- RoleStore --------------------------------------------------------------

func (s *Store) GetRole(ctx context.Context, userID string) (string, error) {
	var row struct {
		Role string `json:"role"`
	}
	resp, err := s.c.From(tableUserRoles).Select("role").Eq("user_id", userID).Single().Execute(ctx)
	if err := decode("get role", resp, err, &row); err != nil {
		return "", err
	}
	return row.Role, nil
}

func (s *Store) SetRole(ctx context.Context, userID, role string) error {
	if role != session.RoleDancer && role != session.RoleOrganizer {
		return &domain.FieldError{Field: "role", Rule: "oneof"}
	}
	resp, err := s.c.From(tableUserRoles).Upsert("user_id").ExecuteInsert(ctx, map[string]string{
		"user_id": userID,
		"role":    role,
	})
	return decode("set role", resp, err, nil)
}
