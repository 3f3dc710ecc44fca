package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dancelink/platform/internal/app/domain/message"
	"github.com/dancelink/platform/pkg/testutil"
)

var withSession = testutil.WithSession

func TestHandleList_MarksIncomingRead(t *testing.T) {
	f := newFixture(t)
	svc := New(Config{Controller: f.ctrl})
	f.send(t, organizer, "hello")

	req := httptest.NewRequest(http.MethodGet, "/applications/"+f.app.ID+"/messages", nil)
	req = mux.SetURLVars(withSession(req, dancer), map[string]string{"id": f.app.ID})
	rr := httptest.NewRecorder()
	svc.handleList(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var msgs []message.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ReadAt == nil {
		t.Fatalf("msgs = %+v, want one read message", msgs)
	}
}

func TestHandleList_Stranger(t *testing.T) {
	f := newFixture(t)
	svc := New(Config{Controller: f.ctrl})

	req := httptest.NewRequest(http.MethodGet, "/applications/"+f.app.ID+"/messages", nil)
	req = mux.SetURLVars(withSession(req, stranger), map[string]string{"id": f.app.ID})
	rr := httptest.NewRecorder()
	svc.handleList(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestHandleSend(t *testing.T) {
	f := newFixture(t)
	svc := New(Config{Controller: f.ctrl})

	req := httptest.NewRequest(http.MethodPost, "/applications/"+f.app.ID+"/messages", strings.NewReader(`{"message":"  when is soundcheck? "}`))
	req = mux.SetURLVars(withSession(req, dancer), map[string]string{"id": f.app.ID})
	rr := httptest.NewRecorder()
	svc.handleSend(rr, req)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rr.Code, rr.Body.String())
	}
	var msgs []message.Message
	if err := json.Unmarshal(rr.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Message != "when is soundcheck?" || msgs[0].ReceiverID != "org-1" {
		t.Fatalf("msgs = %+v", msgs)
	}
}

func TestHandleSend_BlankMessage(t *testing.T) {
	f := newFixture(t)
	svc := New(Config{Controller: f.ctrl})
	before := f.store.TotalCalls()

	req := httptest.NewRequest(http.MethodPost, "/applications/"+f.app.ID+"/messages", strings.NewReader(`{"message":"   "}`))
	req = mux.SetURLVars(withSession(req, dancer), map[string]string{"id": f.app.ID})
	rr := httptest.NewRecorder()
	svc.handleSend(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	if f.store.TotalCalls() != before {
		t.Fatal("blank message reached the store")
	}
}

func TestHandleStream_PushesThreadOnSignal(t *testing.T) {
	f := newFixture(t)
	svc := New(Config{Controller: f.ctrl})

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, withSession(r, dancer))
		})
	})
	svc.RegisterRoutes(router)
	server := httptest.NewServer(router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/applications/" + f.app.ID + "/messages/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	readFrame := func() ThreadFrame {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var frame ThreadFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		return frame
	}

	first := readFrame()
	if first.Type != "thread" || len(first.Messages) != 0 {
		t.Fatalf("first frame = %+v", first)
	}

	if _, err := f.ctrl.Send(context.Background(), organizer, f.app.ID, "org-1", "dancer-1", "org-1", "doors open at 7"); err != nil {
		t.Fatalf("Send() err = %v", err)
	}
	next := readFrame()
	if len(next.Messages) != 1 || next.Messages[0].Message != "doors open at 7" {
		t.Fatalf("update frame = %+v", next)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for f.hub.Len() > 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if f.hub.Len() != 0 {
		t.Fatal("subscription not released after disconnect")
	}
}
