package postgres

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dancelink/platform/internal/app/domain/application"
	"github.com/dancelink/platform/internal/app/domain/event"
	"github.com/dancelink/platform/internal/app/domain/message"
	"github.com/dancelink/platform/internal/app/domain/profile"
	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/platform/migrations"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(sqlx.NewDb(db, "postgres")), mock
}

func TestGetProfileNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .* FROM profiles WHERE id = \\$1").
		WithArgs("u1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetProfile(context.Background(), "u1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestListMessagesOrderedWithParties(t *testing.T) {
	store, mock := newMockStore(t)
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "application_id", "sender_id", "receiver_id", "message", "created_at", "read_at", "s_name", "r_name"}).
		AddRow("m1", "a1", "d1", "o1", "Hi", t0, nil, "Dana", "Gala Productions").
		AddRow("m2", "a1", "o1", "d1", "Hello", t0.Add(time.Minute), t0.Add(2*time.Minute), "Gala Productions", "Dana")

	mock.ExpectQuery("FROM messages m .* WHERE m.application_id = \\$1\\s+ORDER BY m.created_at ASC").
		WithArgs("a1").
		WillReturnRows(rows)

	thread, err := store.ListMessages(context.Background(), "a1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(thread) != 2 || thread[0].ID != "m1" || thread[1].ID != "m2" {
		t.Fatalf("thread = %+v", thread)
	}
	if thread[0].ReadAt != nil || thread[1].ReadAt == nil {
		t.Fatalf("read_at not scanned correctly: %+v", thread)
	}
	if thread[0].Sender == nil || thread[0].Sender.Name != "Dana" {
		t.Fatalf("sender = %+v, want Dana", thread[0].Sender)
	}
}

func TestListMessagesMissingRelation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("FROM messages").
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "messages" does not exist`})

	_, err := store.ListMessages(context.Background(), "a1")
	if !errors.Is(err, storage.ErrRelationMissing) {
		t.Fatalf("err = %v, want ErrRelationMissing", err)
	}
}

func TestMarkMessagesReadBatched(t *testing.T) {
	store, mock := newMockStore(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec("UPDATE messages SET read_at = \\$1\\s+WHERE id = ANY\\(\\$2\\) AND read_at IS NULL").
		WithArgs(at, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := store.MarkMessagesRead(context.Background(), []string{"m1", "m2"}, at); err != nil {
		t.Fatalf("MarkMessagesRead() error = %v", err)
	}
	// empty id list makes no call
	if err := store.MarkMessagesRead(context.Background(), nil, at); err != nil {
		t.Fatalf("MarkMessagesRead(nil) error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpdateApplicationStatusMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("UPDATE applications").
		WithArgs("a1", "approved").
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateApplicationStatus(context.Background(), "a1", application.StatusApproved)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	if _, err := store.UpdateApplicationStatus(context.Background(), "a1", application.Status("archived")); err == nil {
		t.Fatal("invalid status should be rejected before any query")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetApplicationExpandsEventAndOrganizer(t *testing.T) {
	store, mock := newMockStore(t)
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "event_id", "dancer_id", "status", "created_at", "updated_at",
		"ev_id", "ev_name", "ev_dance_style", "ev_gender_preference", "ev_organizer_id", "ev_created_at",
		"org_id", "org_name",
	}).AddRow("a1", "e1", "d1", "pending", t0, t0, "e1", "Spring Gala", "Salsa", "Any", "o1", t0, "o1", "Gala Productions")

	mock.ExpectQuery("FROM applications a .* WHERE a.id = \\$1").WithArgs("a1").WillReturnRows(rows)

	app, err := store.GetApplication(context.Background(), "a1")
	if err != nil {
		t.Fatalf("GetApplication() error = %v", err)
	}
	if app.Status != application.StatusPending {
		t.Fatalf("Status = %s, want pending", app.Status)
	}
	if app.Event == nil || app.Event.Organizer == nil || app.Event.Organizer.Name != "Gala Productions" {
		t.Fatalf("event not expanded: %+v", app.Event)
	}
}

func TestListApplicantsOldestFirst(t *testing.T) {
	store, mock := newMockStore(t)
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "event_id", "dancer_id", "status", "created_at", "updated_at",
		"d_id", "d_name", "d_email", "d_dance_style", "d_gender", "d_video_url",
	}).
		AddRow("a1", "e1", "d1", "pending", t0, t0, "d1", "Dana", "d@x.com", "Salsa", "Female", nil).
		AddRow("a2", "e1", "d2", "approved", t0.Add(time.Hour), t0.Add(time.Hour), nil, nil, nil, nil, nil, nil)

	mock.ExpectQuery("FROM applications a .* WHERE a.event_id = \\$1\\s+ORDER BY a.created_at ASC").
		WithArgs("e1").
		WillReturnRows(rows)

	apps, err := store.ListApplicationsByEvent(context.Background(), "e1")
	if err != nil {
		t.Fatalf("ListApplicationsByEvent() error = %v", err)
	}
	if len(apps) != 2 || apps[0].ID != "a1" || apps[1].ID != "a2" {
		t.Fatalf("apps = %+v", apps)
	}
	if apps[0].Dancer == nil || apps[0].Dancer.Name != "Dana" || apps[0].Dancer.VideoURL != nil {
		t.Fatalf("dancer = %+v", apps[0].Dancer)
	}
	if apps[1].Dancer != nil {
		t.Fatalf("missing profile expanded: %+v", apps[1].Dancer)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateMessageRejectsBlankWithoutQuery(t *testing.T) {
	store, mock := newMockStore(t)
	_, err := store.CreateMessage(context.Background(), message.Message{ApplicationID: "a1", SenderID: "d1", ReceiverID: "o1", Message: "   "})
	if err == nil {
		t.Fatal("blank message should fail validation")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected store call: %v", err)
	}
}

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	ctx := context.Background()
	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer store.Close()

	if err := migrations.Apply(ctx, store.DB().DB); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	org, err := store.UpsertOrganizer(ctx, event.Organizer{ID: newID(), Name: "Gala Productions"})
	if err != nil {
		t.Fatalf("upsert organizer: %v", err)
	}
	dancer, err := store.CreateProfile(ctx, profile.Profile{ID: newID(), Name: "Dana", Email: "d@x.com"})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	ev, err := store.CreateEvent(ctx, event.Event{Name: "Spring Gala", DanceStyle: "Salsa", GenderPreference: "Any", OrganizerID: org.ID})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	app, err := store.CreateApplication(ctx, application.Application{EventID: ev.ID, DancerID: dancer.ID})
	if err != nil {
		t.Fatalf("create application: %v", err)
	}
	msg, err := store.CreateMessage(ctx, message.Message{ApplicationID: app.ID, SenderID: dancer.ID, ReceiverID: org.ID, Message: "Hi"})
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	if err := store.MarkMessagesRead(ctx, []string{msg.ID}, time.Now()); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	thread, err := store.ListMessages(ctx, app.ID)
	if err != nil || len(thread) != 1 || thread[0].ReadAt == nil {
		t.Fatalf("thread = %+v, err = %v", thread, err)
	}
	if err := store.DeleteEvent(ctx, ev.ID); err != nil {
		t.Fatalf("delete event: %v", err)
	}
}

func newID() string { return uuid.NewString() }
