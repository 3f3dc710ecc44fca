package events

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/dancelink/platform/internal/app/domain/event"
	svcerrors "github.com/dancelink/platform/internal/errors"
	"github.com/dancelink/platform/internal/httputil"
	"github.com/dancelink/platform/internal/session"
	commonservice "github.com/dancelink/platform/services/common/service"
)

// CreateEventInput is the body of POST /events.
type CreateEventInput struct {
	Name             string `json:"name"`
	DanceStyle       string `json:"dance_style"`
	GenderPreference string `json:"gender_preference"`
}

// EventView is an event as listed to a dancer.
type EventView struct {
	event.Event
	Applied bool `json:"applied"`
}

func (s *Service) handleBrowse(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	store := s.backend.For(sess)

	events, err := store.ListEvents(ctx)
	if err != nil {
		httputil.WriteError(w, r, commonservice.StoreError(err, "event", "", "load events"))
		return
	}
	applied, err := store.AppliedEventIDs(ctx, sess.UserID)
	if err != nil {
		httputil.WriteError(w, r, commonservice.StoreError(err, "application", "", "load applications"))
		return
	}

	appliedSet := make(map[string]bool, len(applied))
	for _, id := range applied {
		appliedSet[id] = true
	}
	views := make([]EventView, 0, len(events))
	for _, ev := range events {
		views = append(views, EventView{Event: ev, Applied: appliedSet[ev.ID]})
	}
	httputil.WriteJSON(w, http.StatusOK, views)
}

func (s *Service) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	var in CreateEventInput
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	in.Name = strings.TrimSpace(in.Name)

	switch {
	case in.Name == "":
		httputil.WriteError(w, r, svcerrors.Validation("name", "event name is required"))
		return
	case !s.catalog.AllowsEventDanceStyle(in.DanceStyle):
		httputil.WriteError(w, r, svcerrors.Validation("dance_style", "unknown dance style"))
		return
	case !s.catalog.AllowsGenderPreference(in.GenderPreference):
		httputil.WriteError(w, r, svcerrors.Validation("gender_preference", "unknown gender preference"))
		return
	}

	ev, err := s.backend.For(sess).CreateEvent(r.Context(), event.Event{
		Name:             in.Name,
		DanceStyle:       in.DanceStyle,
		GenderPreference: in.GenderPreference,
		OrganizerID:      sess.UserID,
	})
	if err != nil {
		httputil.WriteError(w, r, commonservice.StoreError(err, "event", "", "create event"))
		return
	}
	s.logger.WithContext(r.Context()).WithField("event_id", ev.ID).Info("event created")
	httputil.WriteJSON(w, http.StatusCreated, ev)
}

func (s *Service) handleListOwn(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	events, err := s.backend.For(sess).ListEventsByOrganizer(r.Context(), sess.UserID)
	if err != nil {
		httputil.WriteError(w, r, commonservice.StoreError(err, "event", "", "load events"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, events)
}

func (s *Service) handleDelete(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := s.ownedEvent(r.Context(), sess, id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := s.backend.For(sess).DeleteEvent(r.Context(), id); err != nil {
		httputil.WriteError(w, r, commonservice.StoreError(err, "event", id, "delete event"))
		return
	}
	s.logger.WithContext(r.Context()).WithField("event_id", id).Info("event deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleApplicants(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	id := mux.Vars(r)["id"]
	if _, err := s.ownedEvent(r.Context(), sess, id); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	apps, err := s.backend.For(sess).ListApplicationsByEvent(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, commonservice.StoreError(err, "application", "", "load applicants"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, apps)
}

func (s *Service) ownedEvent(ctx context.Context, sess session.Session, id string) (event.Event, error) {
	ev, err := s.backend.For(sess).GetEvent(ctx, id)
	if err != nil {
		return event.Event{}, commonservice.StoreError(err, "event", id, "load event")
	}
	if ev.OrganizerID != sess.UserID {
		return event.Event{}, svcerrors.Forbidden("only the organizer of this event can do that")
	}
	return ev, nil
}
