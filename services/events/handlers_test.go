package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/dancelink/platform/internal/app/domain/application"
	"github.com/dancelink/platform/internal/app/domain/event"
	"github.com/dancelink/platform/internal/app/domain/profile"
	"github.com/dancelink/platform/internal/app/storage"
	"github.com/dancelink/platform/internal/app/storage/memory"
	"github.com/dancelink/platform/internal/session"
)

var (
	dancer    = session.Session{UserID: "dancer-1", Role: session.RoleDancer}
	organizer = session.Session{UserID: "org-1", Role: session.RoleOrganizer}
	rival     = session.Session{UserID: "org-2", Role: session.RoleOrganizer}
)

func setup(t *testing.T) (*memory.Store, *mux.Router) {
	t.Helper()
	store := memory.New()
	ctx := context.Background()
	if _, err := store.UpsertOrganizer(ctx, event.Organizer{ID: "org-1", Name: "Gala Productions"}); err != nil {
		t.Fatalf("UpsertOrganizer() err = %v", err)
	}
	if _, err := store.CreateProfile(ctx, profile.Profile{ID: "dancer-1", Name: "Dana", Email: "dana@example.com", DanceStyle: "Salsa"}); err != nil {
		t.Fatalf("CreateProfile() err = %v", err)
	}
	r := mux.NewRouter()
	New(Config{Backend: storage.Static{Store: store}}).RegisterRoutes(r)
	return store, r
}

func do(r *mux.Router, method, path, body string, sess session.Session) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req = req.WithContext(session.NewContext(req.Context(), sess))
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestCreateEvent(t *testing.T) {
	_, r := setup(t)

	rr := do(r, http.MethodPost, "/events", `{"name":" Spring Gala ","dance_style":"Salsa","gender_preference":"Any"}`, organizer)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var ev event.Event
	if err := json.Unmarshal(rr.Body.Bytes(), &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Name != "Spring Gala" || ev.OrganizerID != "org-1" {
		t.Fatalf("event = %+v", ev)
	}

	for _, body := range []string{
		`{"name":"","dance_style":"Salsa","gender_preference":"Any"}`,
		`{"name":"X","dance_style":"Polka","gender_preference":"Any"}`,
		`{"name":"X","dance_style":"Salsa","gender_preference":"Everyone"}`,
	} {
		if rr := do(r, http.MethodPost, "/events", body, organizer); rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d, want 400", body, rr.Code)
		}
	}

	if rr := do(r, http.MethodPost, "/events", `{"name":"X","dance_style":"Salsa","gender_preference":"Any"}`, dancer); rr.Code != http.StatusForbidden {
		t.Fatalf("dancer create status = %d, want 403", rr.Code)
	}
}

func TestBrowseMarksApplied(t *testing.T) {
	store, r := setup(t)
	ctx := context.Background()
	first, _ := store.CreateEvent(ctx, event.Event{Name: "A", DanceStyle: "Salsa", GenderPreference: "Any", OrganizerID: "org-1"})
	second, _ := store.CreateEvent(ctx, event.Event{Name: "B", DanceStyle: "Jazz", GenderPreference: "Any", OrganizerID: "org-1"})
	if _, err := store.CreateApplication(ctx, application.Application{EventID: first.ID, DancerID: "dancer-1"}); err != nil {
		t.Fatalf("CreateApplication() err = %v", err)
	}

	rr := do(r, http.MethodGet, "/events", "", dancer)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var views []EventView
	if err := json.Unmarshal(rr.Body.Bytes(), &views); err != nil {
		t.Fatalf("decode: %v", err)
	}
	applied := map[string]bool{}
	for _, v := range views {
		applied[v.ID] = v.Applied
	}
	if !applied[first.ID] || applied[second.ID] || len(views) != 2 {
		t.Fatalf("views = %+v", views)
	}
}

func TestDeleteAndApplicantsRequireOwner(t *testing.T) {
	store, r := setup(t)
	ctx := context.Background()
	ev, _ := store.CreateEvent(ctx, event.Event{Name: "A", DanceStyle: "Salsa", GenderPreference: "Any", OrganizerID: "org-1"})
	if _, err := store.CreateApplication(ctx, application.Application{EventID: ev.ID, DancerID: "dancer-1"}); err != nil {
		t.Fatalf("CreateApplication() err = %v", err)
	}

	if rr := do(r, http.MethodGet, "/events/"+ev.ID+"/applicants", "", rival); rr.Code != http.StatusForbidden {
		t.Fatalf("rival applicants status = %d, want 403", rr.Code)
	}

	rr := do(r, http.MethodGet, "/events/"+ev.ID+"/applicants", "", organizer)
	if rr.Code != http.StatusOK {
		t.Fatalf("applicants status = %d, want 200", rr.Code)
	}
	var apps []application.Application
	if err := json.Unmarshal(rr.Body.Bytes(), &apps); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(apps) != 1 || apps[0].Dancer == nil || apps[0].Dancer.Email != "dana@example.com" {
		t.Fatalf("applicants = %+v", apps)
	}

	if rr := do(r, http.MethodDelete, "/events/"+ev.ID, "", rival); rr.Code != http.StatusForbidden {
		t.Fatalf("rival delete status = %d, want 403", rr.Code)
	}
	if rr := do(r, http.MethodDelete, "/events/"+ev.ID, "", organizer); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", rr.Code)
	}
	if rr := do(r, http.MethodDelete, "/events/"+ev.ID, "", organizer); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rr.Code)
	}
}

func TestListOwn(t *testing.T) {
	store, r := setup(t)
	ctx := context.Background()
	_, _ = store.CreateEvent(ctx, event.Event{Name: "Mine", DanceStyle: "Salsa", GenderPreference: "Any", OrganizerID: "org-1"})
	_, _ = store.CreateEvent(ctx, event.Event{Name: "Theirs", DanceStyle: "Salsa", GenderPreference: "Any", OrganizerID: "org-2"})

	rr := do(r, http.MethodGet, "/organizer/events", "", organizer)
	var events []event.Event
	if err := json.Unmarshal(rr.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 1 || events[0].Name != "Mine" {
		t.Fatalf("events = %+v", events)
	}
}
