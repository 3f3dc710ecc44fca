package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dancelink/platform/internal/app/domain"
	"github.com/dancelink/platform/internal/app/domain/application"
	"github.com/dancelink/platform/internal/app/domain/event"
	"github.com/dancelink/platform/internal/app/domain/message"
	"github.com/dancelink/platform/internal/app/domain/profile"
	"github.com/dancelink/platform/internal/app/storage"
)

// undefined_table
const pqUndefinedTable = "42P01"

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn with the lib/pq driver.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return New(db), nil
}

// DB exposes the handle for migrations.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// mapErr converts driver errors into storage sentinels.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pqUndefinedTable {
		return fmt.Errorf("%s: %w", op, storage.ErrRelationMissing)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// --- ProfileStore -----------------------------------------------------------

const profileColumns = `id, name, email, dance_style, gender, age, height, skin_tone, experience,
	about, video_url, certification_document_url, created_at, updated_at`

func (s *Store) CreateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	if err := domain.Validate(p); err != nil {
		return profile.Profile{}, err
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (:id, :name, :email, :dance_style, :gender, :age, :height, :skin_tone, :experience,
			:about, :video_url, :certification_document_url, :created_at, :updated_at)
	`, p)
	if err != nil {
		return profile.Profile{}, mapErr("create profile", err)
	}
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (profile.Profile, error) {
	var p profile.Profile
	err := s.db.GetContext(ctx, &p, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)
	if err != nil {
		return profile.Profile{}, mapErr("get profile", err)
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	existing, err := s.GetProfile(ctx, p.ID)
	if err != nil {
		return profile.Profile{}, err
	}
	p.Email = existing.Email
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	if err := domain.Validate(p); err != nil {
		return profile.Profile{}, err
	}

	result, err := s.db.NamedExecContext(ctx, `
		UPDATE profiles
		SET name = :name, dance_style = :dance_style, gender = :gender, age = :age,
			height = :height, skin_tone = :skin_tone, experience = :experience, about = :about,
			video_url = :video_url, certification_document_url = :certification_document_url,
			updated_at = :updated_at
		WHERE id = :id
	`, p)
	if err != nil {
		return profile.Profile{}, mapErr("update profile", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return profile.Profile{}, mapErr("update profile", sql.ErrNoRows)
	}
	return p, nil
}

// --- EventStore -------------------------------------------------------------

type eventRow struct {
	event.Event
	OrgID   sql.NullString `db:"org_id"`
	OrgName sql.NullString `db:"org_name"`
}

func (r eventRow) toEvent() event.Event {
	ev := r.Event
	if r.OrgID.Valid {
		ev.Organizer = &event.Organizer{ID: r.OrgID.String, Name: r.OrgName.String}
	}
	return ev
}

const eventSelect = `
	SELECT e.id, e.name, e.dance_style, e.gender_preference, e.organizer_id, e.created_at,
		o.id AS org_id, o.name AS org_name
	FROM events e
	LEFT JOIN organizers o ON o.id = e.organizer_id`

func (s *Store) CreateEvent(ctx context.Context, ev event.Event) (event.Event, error) {
	if err := domain.Validate(ev); err != nil {
		return event.Event{}, err
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	ev.CreatedAt = time.Now().UTC()
	ev.Organizer = nil

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, name, dance_style, gender_preference, organizer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ev.ID, ev.Name, ev.DanceStyle, ev.GenderPreference, ev.OrganizerID, ev.CreatedAt)
	if err != nil {
		return event.Event{}, mapErr("create event", err)
	}
	return ev, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (event.Event, error) {
	var row eventRow
	if err := s.db.GetContext(ctx, &row, eventSelect+` WHERE e.id = $1`, id); err != nil {
		return event.Event{}, mapErr("get event", err)
	}
	return row.toEvent(), nil
}

func (s *Store) ListEvents(ctx context.Context) ([]event.Event, error) {
	return s.listEvents(ctx, eventSelect+` ORDER BY e.created_at DESC`)
}

func (s *Store) ListEventsByOrganizer(ctx context.Context, organizerID string) ([]event.Event, error) {
	return s.listEvents(ctx, eventSelect+` WHERE e.organizer_id = $1 ORDER BY e.created_at DESC`, organizerID)
}

func (s *Store) listEvents(ctx context.Context, query string, args ...interface{}) ([]event.Event, error) {
	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, mapErr("list events", err)
	}
	out := make([]event.Event, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEvent())
	}
	return out, nil
}

func (s *Store) DeleteEvent(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete event", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return mapErr("delete event", sql.ErrNoRows)
	}
	return nil
}

func (s *Store) GetOrganizer(ctx context.Context, id string) (event.Organizer, error) {
	var org event.Organizer
	if err := s.db.GetContext(ctx, &org, `SELECT id, name FROM organizers WHERE id = $1`, id); err != nil {
		return event.Organizer{}, mapErr("get organizer", err)
	}
	return org, nil
}

func (s *Store) UpsertOrganizer(ctx context.Context, org event.Organizer) (event.Organizer, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizers (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, org.ID, org.Name)
	if err != nil {
		return event.Organizer{}, mapErr("upsert organizer", err)
	}
	return org, nil
}

// --- ApplicationStore -------------------------------------------------------

type applicationRow struct {
	application.Application
	EvID               sql.NullString `db:"ev_id"`
	EvName             sql.NullString `db:"ev_name"`
	EvDanceStyle       sql.NullString `db:"ev_dance_style"`
	EvGenderPreference sql.NullString `db:"ev_gender_preference"`
	EvOrganizerID      sql.NullString `db:"ev_organizer_id"`
	EvCreatedAt        sql.NullTime   `db:"ev_created_at"`
	OrgID              sql.NullString `db:"org_id"`
	OrgName            sql.NullString `db:"org_name"`
}

func (r applicationRow) toApplication() application.Application {
	app := r.Application
	if r.EvID.Valid {
		ev := event.Event{
			ID:               r.EvID.String,
			Name:             r.EvName.String,
			DanceStyle:       r.EvDanceStyle.String,
			GenderPreference: r.EvGenderPreference.String,
			OrganizerID:      r.EvOrganizerID.String,
			CreatedAt:        r.EvCreatedAt.Time,
		}
		if r.OrgID.Valid {
			ev.Organizer = &event.Organizer{ID: r.OrgID.String, Name: r.OrgName.String}
		}
		app.Event = &ev
	}
	return app
}

const applicationSelect = `
	SELECT a.id, a.event_id, a.dancer_id, a.status, a.created_at, a.updated_at,
		e.id AS ev_id, e.name AS ev_name, e.dance_style AS ev_dance_style,
		e.gender_preference AS ev_gender_preference, e.organizer_id AS ev_organizer_id,
		e.created_at AS ev_created_at, o.id AS org_id, o.name AS org_name
	FROM applications a
	LEFT JOIN events e ON e.id = a.event_id
	LEFT JOIN organizers o ON o.id = e.organizer_id`

func (s *Store) CreateApplication(ctx context.Context, app application.Application) (application.Application, error) {
	if app.Status == "" {
		app.Status = application.StatusPending
	}
	app.Event = nil
	app.Dancer = nil
	if err := domain.Validate(app); err != nil {
		return application.Application{}, err
	}
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (id, event_id, dancer_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, app.ID, app.EventID, app.DancerID, string(app.Status), app.CreatedAt, app.UpdatedAt)
	if err != nil {
		return application.Application{}, mapErr("create application", err)
	}
	return app, nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (application.Application, error) {
	var row applicationRow
	if err := s.db.GetContext(ctx, &row, applicationSelect+` WHERE a.id = $1`, id); err != nil {
		return application.Application{}, mapErr("get application", err)
	}
	return row.toApplication(), nil
}

func (s *Store) ListApplicationsByDancer(ctx context.Context, dancerID string) ([]application.Application, error) {
	var rows []applicationRow
	err := s.db.SelectContext(ctx, &rows, applicationSelect+` WHERE a.dancer_id = $1 ORDER BY a.created_at DESC`, dancerID)
	if err != nil {
		return nil, mapErr("list applications", err)
	}
	out := make([]application.Application, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toApplication())
	}
	return out, nil
}

type applicantRow struct {
	application.Application
	DID         sql.NullString `db:"d_id"`
	DName       sql.NullString `db:"d_name"`
	DEmail      sql.NullString `db:"d_email"`
	DDanceStyle sql.NullString `db:"d_dance_style"`
	DGender     sql.NullString `db:"d_gender"`
	DVideoURL   sql.NullString `db:"d_video_url"`
}

func (s *Store) ListApplicationsByEvent(ctx context.Context, eventID string) ([]application.Application, error) {
	var rows []applicantRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id, a.event_id, a.dancer_id, a.status, a.created_at, a.updated_at,
			p.id AS d_id, p.name AS d_name, p.email AS d_email, p.dance_style AS d_dance_style,
			p.gender AS d_gender, p.video_url AS d_video_url
		FROM applications a
		LEFT JOIN profiles p ON p.id = a.dancer_id
		WHERE a.event_id = $1
		ORDER BY a.created_at ASC
	`, eventID)
	if err != nil {
		return nil, mapErr("list applicants", err)
	}
	out := make([]application.Application, 0, len(rows))
	for _, r := range rows {
		app := r.Application
		if r.DID.Valid {
			app.Dancer = &profile.Summary{
				ID:         r.DID.String,
				Name:       r.DName.String,
				Email:      r.DEmail.String,
				DanceStyle: r.DDanceStyle.String,
				Gender:     r.DGender.String,
			}
			if r.DVideoURL.Valid {
				app.Dancer.VideoURL = profile.String(r.DVideoURL.String)
			}
		}
		out = append(out, app)
	}
	return out, nil
}

func (s *Store) AppliedEventIDs(ctx context.Context, dancerID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT event_id FROM applications WHERE dancer_id = $1
		GROUP BY event_id ORDER BY min(created_at)
	`, dancerID)
	if err != nil {
		return nil, mapErr("applied events", err)
	}
	return ids, nil
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, id string, status application.Status) (application.Application, error) {
	if !status.Valid() {
		return application.Application{}, fmt.Errorf("invalid status %q", status)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE applications
		SET status = $2, updated_at = greatest(now(), updated_at + interval '1 microsecond')
		WHERE id = $1
	`, id, string(status))
	if err != nil {
		return application.Application{}, mapErr("update application status", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return application.Application{}, mapErr("update application status", sql.ErrNoRows)
	}
	return s.GetApplication(ctx, id)
}

// --- MessageStore -----------------------------------------------------------

type messageRow struct {
	message.Message
	SName sql.NullString `db:"s_name"`
	RName sql.NullString `db:"r_name"`
}

func (s *Store) ListMessages(ctx context.Context, applicationID string) ([]message.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT m.id, m.application_id, m.sender_id, m.receiver_id, m.message, m.created_at, m.read_at,
			coalesce(sp.name, so.name) AS s_name, coalesce(rp.name, ro.name) AS r_name
		FROM messages m
		LEFT JOIN profiles sp ON sp.id = m.sender_id
		LEFT JOIN organizers so ON so.id = m.sender_id
		LEFT JOIN profiles rp ON rp.id = m.receiver_id
		LEFT JOIN organizers ro ON ro.id = m.receiver_id
		WHERE m.application_id = $1
		ORDER BY m.created_at ASC
	`, applicationID)
	if err != nil {
		return nil, mapErr("list messages", err)
	}
	out := make([]message.Message, 0, len(rows))
	for _, r := range rows {
		m := r.Message
		if r.SName.Valid {
			m.Sender = &message.Party{ID: m.SenderID, Name: r.SName.String}
		}
		if r.RName.Valid {
			m.Receiver = &message.Party{ID: m.ReceiverID, Name: r.RName.String}
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) CreateMessage(ctx context.Context, msg message.Message) (message.Message, error) {
	if err := domain.Validate(msg); err != nil {
		return message.Message{}, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.ReadAt = nil
	msg.Sender = nil
	msg.Receiver = nil

	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO messages (id, application_id, sender_id, receiver_id, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, msg.ID, msg.ApplicationID, msg.SenderID, msg.ReceiverID, msg.Message).Scan(&msg.CreatedAt)
	if err != nil {
		return message.Message{}, mapErr("create message", err)
	}
	return msg, nil
}

func (s *Store) MarkMessagesRead(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET read_at = $1
		WHERE id = ANY($2) AND read_at IS NULL
	`, at.UTC(), pq.Array(ids))
	return mapErr("mark messages read", err)
}

// --- RoleStore --------------------------------------------------------------

func (s *Store) GetRole(ctx context.Context, userID string) (string, error) {
	var role string
	if err := s.db.GetContext(ctx, &role, `SELECT role FROM user_roles WHERE user_id = $1`, userID); err != nil {
		return "", mapErr("get role", err)
	}
	return role, nil
}

func (s *Store) SetRole(ctx context.Context, userID, role string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET role = EXCLUDED.role
	`, userID, role)
	return mapErr("set role", err)
}
