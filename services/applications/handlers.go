package applications

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/dancelink/platform/internal/app/domain/application"
	"github.com/dancelink/platform/internal/httputil"
	"github.com/dancelink/platform/internal/session"
	commonservice "github.com/dancelink/platform/services/common/service"
)

// StatusInput is the body of PUT /applications/{id}/status. Fields other
// than status are optional and resolved from the store when empty.
type StatusInput struct {
	Status      string `json:"status"`
	DancerID    string `json:"dancer_id,omitempty"`
	DancerEmail string `json:"dancer_email,omitempty"`
	DancerName  string `json:"dancer_name,omitempty"`
	EventName   string `json:"event_name,omitempty"`
}

func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	eventID := mux.Vars(r)["id"]

	app, err := s.lifecycle.SubmitApplication(r.Context(), sess, eventID, sess.UserID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, app)
}

func (s *Service) handleListMine(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}

	apps, err := s.backend.For(sess).ListApplicationsByDancer(r.Context(), sess.UserID)
	if err != nil {
		httputil.WriteError(w, r, commonservice.StoreError(err, "application", "", "load applications"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, apps)
}

func (s *Service) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	var in StatusInput
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}

	change, err := s.completeStatusChange(r.Context(), sess, mux.Vars(r)["id"], in)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	app, err := s.lifecycle.SetStatus(r.Context(), sess, change)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// completeStatusChange fills the email fields the client left out.
func (s *Service) completeStatusChange(ctx context.Context, sess session.Session, id string, in StatusInput) (StatusChange, error) {
	change := StatusChange{
		ApplicationID: id,
		DancerID:      strings.TrimSpace(in.DancerID),
		Status:        application.Status(strings.ToLower(strings.TrimSpace(in.Status))),
		DancerEmail:   strings.TrimSpace(in.DancerEmail),
		DancerName:    strings.TrimSpace(in.DancerName),
		EventName:     strings.TrimSpace(in.EventName),
	}
	if change.DancerID != "" && change.DancerEmail != "" && change.DancerName != "" && change.EventName != "" {
		return change, nil
	}

	store := s.backend.For(sess)
	app, err := store.GetApplication(ctx, id)
	if err != nil {
		return StatusChange{}, commonservice.StoreError(err, "application", id, "load application")
	}
	if change.DancerID == "" {
		change.DancerID = app.DancerID
	}
	if change.EventName == "" && app.Event != nil {
		change.EventName = app.Event.Name
	}
	if change.DancerEmail == "" || change.DancerName == "" {
		dancer, err := store.GetProfile(ctx, change.DancerID)
		if err != nil {
			return StatusChange{}, commonservice.StoreError(err, "profile", change.DancerID, "load dancer profile")
		}
		if change.DancerEmail == "" {
			change.DancerEmail = dancer.Email
		}
		if change.DancerName == "" {
			change.DancerName = dancer.Name
		}
	}
	return change, nil
}
