package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dancelink/platform/internal/app/domain/application"
	"github.com/dancelink/platform/internal/app/domain/message"
	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/session"
	"github.com/dancelink/platform/supabase/client"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Auth   string
	Prefer string
	Body   map[string]any
}

// fakePostgrest answers every request with the next canned response and
// records what was sent.
type fakePostgrest struct {
	mu        sync.Mutex
	requests  []recordedRequest
	responses []cannedResponse
}

type cannedResponse struct {
	status int
	body   string
}

func (f *fakePostgrest) queue(status int, body string) {
	f.mu.Lock()
	f.responses = append(f.responses, cannedResponse{status, body})
	f.mu.Unlock()
}

func (f *fakePostgrest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Auth:   r.Header.Get("Authorization"),
		Prefer: r.Header.Get("Prefer"),
	}
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &req.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, req)
	resp := cannedResponse{http.StatusOK, "[]"}
	if len(f.responses) > 0 {
		resp = f.responses[0]
		f.responses = f.responses[1:]
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	w.Write([]byte(resp.body))
}

func (f *fakePostgrest) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no request recorded")
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakePostgrest) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestStore(t *testing.T) (storage.Store, *fakePostgrest) {
	t.Helper()
	fake := &fakePostgrest{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	c, err := client.New(client.Config{URL: server.URL, APIKey: "anon"})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return NewBackend(c).For(session.Session{UserID: "d1", AccessToken: "user-jwt"}), fake
}

func TestListMessagesAscendingWithParties(t *testing.T) {
	store, fake := newTestStore(t)
	fake.queue(http.StatusOK, `[
		{"id":"m1","application_id":"a1","sender_id":"d1","receiver_id":"o1","message":"Hi","created_at":"2024-05-01T10:00:00+00:00","read_at":null,"sender":{"id":"d1","name":"Dana"},"receiver":null},
		{"id":"m2","application_id":"a1","sender_id":"o1","receiver_id":"d1","message":"Hello","created_at":"2024-05-01T10:01:00+00:00","read_at":"2024-05-01T10:02:00+00:00","sender":null,"receiver":{"id":"d1","name":"Dana"}}
	]`)

	thread, err := store.ListMessages(context.Background(), "a1")
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(thread) != 2 || thread[0].ID != "m1" || thread[1].ReadAt == nil {
		t.Fatalf("thread = %+v", thread)
	}
	if thread[0].Sender == nil || thread[0].Sender.Name != "Dana" {
		t.Errorf("sender = %+v", thread[0].Sender)
	}

	req := fake.last(t)
	if req.Path != "/rest/v1/messages" {
		t.Errorf("path = %s", req.Path)
	}
	if req.Query.Get("application_id") != "eq.a1" || req.Query.Get("order") != "created_at.asc" {
		t.Errorf("query = %v", req.Query)
	}
	if req.Auth != "Bearer user-jwt" {
		t.Errorf("Authorization = %q, want caller token", req.Auth)
	}
}

func TestListApplicationsByEventOldestFirst(t *testing.T) {
	store, fake := newTestStore(t)
	fake.queue(http.StatusOK, `[
		{"id":"a1","event_id":"e1","dancer_id":"d1","status":"pending","created_at":"2024-05-01T10:00:00+00:00","updated_at":"2024-05-01T10:00:00+00:00","dancer":{"id":"d1","name":"Dana"}},
		{"id":"a2","event_id":"e1","dancer_id":"d2","status":"pending","created_at":"2024-05-01T11:00:00+00:00","updated_at":"2024-05-01T11:00:00+00:00","dancer":{"id":"d2","name":"Ari"}}
	]`)

	apps, err := store.ListApplicationsByEvent(context.Background(), "e1")
	if err != nil {
		t.Fatalf("ListApplicationsByEvent() error = %v", err)
	}
	if len(apps) != 2 || apps[0].ID != "a1" || apps[0].Dancer == nil {
		t.Fatalf("apps = %+v", apps)
	}
	req := fake.last(t)
	if req.Query.Get("event_id") != "eq.e1" || req.Query.Get("order") != "created_at.asc" {
		t.Errorf("query = %v", req.Query)
	}
}

func TestListMessagesMissingRelation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"undefined table", `{"code":"42P01","message":"relation \"messages\" does not exist"}`},
		{"no rows code", `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`},
		{"schema cache", `{"code":"PGRST205","message":"Could not find the table 'public.messages' in the schema cache"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, fake := newTestStore(t)
			fake.queue(http.StatusNotFound, tt.body)

			_, err := store.ListMessages(context.Background(), "a1")
			if !errors.Is(err, storage.ErrRelationMissing) {
				t.Fatalf("err = %v, want ErrRelationMissing", err)
			}
		})
	}
}

func TestMarkMessagesReadSingleBatchedUpdate(t *testing.T) {
	store, fake := newTestStore(t)
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := store.MarkMessagesRead(context.Background(), []string{"m1", "m2"}, at); err != nil {
		t.Fatalf("MarkMessagesRead() error = %v", err)
	}
	if fake.count() != 1 {
		t.Fatalf("requests = %d, want 1", fake.count())
	}
	req := fake.last(t)
	if req.Method != http.MethodPatch {
		t.Errorf("method = %s", req.Method)
	}
	if req.Query.Get("id") != "in.(m1,m2)" || req.Query.Get("read_at") != "is.null" {
		t.Errorf("query = %v", req.Query)
	}
	if req.Body["read_at"] != "2024-05-01T12:00:00Z" {
		t.Errorf("body = %v", req.Body)
	}

	if err := store.MarkMessagesRead(context.Background(), nil, at); err != nil {
		t.Fatalf("MarkMessagesRead(nil) error = %v", err)
	}
	if fake.count() != 1 {
		t.Fatalf("empty id list issued a request")
	}
}

func TestCreateMessageRejectsBlankLocally(t *testing.T) {
	store, fake := newTestStore(t)

	_, err := store.CreateMessage(context.Background(), message.Message{ApplicationID: "a1", SenderID: "d1", ReceiverID: "o1", Message: " \t\n"})
	if err == nil {
		t.Fatal("blank message accepted")
	}
	if fake.count() != 0 {
		t.Fatalf("requests = %d, want 0", fake.count())
	}
}

func TestCreateMessageInsertsColumns(t *testing.T) {
	store, fake := newTestStore(t)
	fake.queue(http.StatusCreated, `{"id":"m3","application_id":"a1","sender_id":"d1","receiver_id":"o1","message":"Hi","created_at":"2024-05-01T10:00:00Z","read_at":null}`)

	msg, err := store.CreateMessage(context.Background(), message.Message{ApplicationID: "a1", SenderID: "d1", ReceiverID: "o1", Message: "Hi"})
	if err != nil {
		t.Fatalf("CreateMessage() error = %v", err)
	}
	if msg.ID != "m3" {
		t.Errorf("ID = %s, want m3", msg.ID)
	}
	req := fake.last(t)
	if req.Method != http.MethodPost || req.Prefer != "return=representation" {
		t.Errorf("method = %s prefer = %s", req.Method, req.Prefer)
	}
	if req.Body["receiver_id"] != "o1" || req.Body["message"] != "Hi" {
		t.Errorf("body = %v", req.Body)
	}
	if _, ok := req.Body["id"]; ok {
		t.Error("id must be assigned by the database")
	}
}

func TestUpdateApplicationStatus(t *testing.T) {
	store, fake := newTestStore(t)
	fake.queue(http.StatusOK, `[{"id":"a1","event_id":"e1","dancer_id":"d1","status":"approved","created_at":"2024-05-01T10:00:00Z","updated_at":"2024-05-02T10:00:00Z","event":{"id":"e1","name":"Spring Gala","organizer_id":"o1","organizer":{"id":"o1","name":"Gala Productions"}}}]`)

	app, err := store.UpdateApplicationStatus(context.Background(), "a1", application.StatusApproved)
	if err != nil {
		t.Fatalf("UpdateApplicationStatus() error = %v", err)
	}
	if app.Status != application.StatusApproved || app.Event == nil || app.Event.Organizer.Name != "Gala Productions" {
		t.Fatalf("app = %+v", app)
	}
	req := fake.last(t)
	if req.Body["status"] != "approved" || req.Body["updated_at"] == nil {
		t.Errorf("body = %v", req.Body)
	}
	if req.Query.Get("id") != "eq.a1" {
		t.Errorf("query = %v", req.Query)
	}

	fake.queue(http.StatusOK, `[]`)
	if _, err := store.UpdateApplicationStatus(context.Background(), "gone", application.StatusRejected); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAppliedEventIDsAndRole(t *testing.T) {
	store, fake := newTestStore(t)
	fake.queue(http.StatusOK, `[{"event_id":"e1"},{"event_id":"e2"}]`)
	fake.queue(http.StatusOK, `{"role":"dancer"}`)
	fake.queue(http.StatusNotAcceptable, `{"code":"PGRST116","message":"JSON object requested, multiple (or no) rows returned"}`)

	ids, err := store.AppliedEventIDs(context.Background(), "d1")
	if err != nil || len(ids) != 2 || ids[1] != "e2" {
		t.Fatalf("AppliedEventIDs() = %v, %v", ids, err)
	}

	role, err := store.GetRole(context.Background(), "d1")
	if err != nil || role != session.RoleDancer {
		t.Fatalf("GetRole() = %q, %v", role, err)
	}

	if _, err := store.GetRole(context.Background(), "nobody"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetRole(nobody) err = %v, want ErrNotFound", err)
	}
}

func TestSetRoleUpserts(t *testing.T) {
	store, fake := newTestStore(t)
	fake.queue(http.StatusCreated, `[{"user_id":"d1","role":"organizer"}]`)

	if err := store.SetRole(context.Background(), "d1", session.RoleOrganizer); err != nil {
		t.Fatalf("SetRole() error = %v", err)
	}
	req := fake.last(t)
	if req.Query.Get("on_conflict") != "user_id" || req.Prefer != "resolution=merge-duplicates,return=representation" {
		t.Errorf("query = %v prefer = %s", req.Query, req.Prefer)
	}

	if err := store.SetRole(context.Background(), "d1", "admin"); err == nil {
		t.Fatal("unknown role accepted")
	}
}

func TestDeleteEventNotFound(t *testing.T) {
	store, fake := newTestStore(t)
	fake.queue(http.StatusOK, `[]`)

	if err := store.DeleteEvent(context.Background(), "e9"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if req := fake.last(t); req.Method != http.MethodDelete || req.Query.Get("id") != "eq.e9" {
		t.Errorf("request = %+v", req)
	}
}

func TestStoreErrorIsWrapped(t *testing.T) {
	store, fake := newTestStore(t)
	fake.queue(http.StatusInternalServerError, `{"message":"boom"}`)

	_, err := store.ListEvents(context.Background())
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want generic store error", err)
	}
	if _, ok := client.AsAPIError(err); !ok {
		t.Fatalf("err = %v, want wrapped APIError", err)
	}
}
