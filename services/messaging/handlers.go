package messaging

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/dancelink/platform/internal/app/domain/message"
	"github.com/dancelink/platform/internal/httputil"
)

// SendInput is the body of POST /applications/{id}/messages.
type SendInput struct {
	Message string `json:"message"`
}

// ThreadFrame is pushed on the stream after every reload.
type ThreadFrame struct {
	Type     string            `json:"type"`
	Messages []message.Message `json:"messages"`
}

func (s *Service) handleList(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	appID := mux.Vars(r)["id"]

	if _, err := s.controller.Participants(ctx, sess, appID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	msgs, err := s.controller.ListThread(ctx, sess, appID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if _, err := s.controller.MarkIncomingRead(ctx, sess, sess.UserID, msgs); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to mark messages read")
	}
	httputil.WriteJSON(w, http.StatusOK, msgs)
}

func (s *Service) handleSend(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	var in SendInput
	if !httputil.DecodeJSON(w, r, &in) {
		return
	}
	ctx := r.Context()
	appID := mux.Vars(r)["id"]

	if message.Blank(in.Message) {
		httputil.BadRequest(w, "message must not be empty")
		return
	}
	parties, err := s.controller.Participants(ctx, sess, appID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	msgs, err := s.controller.Send(ctx, sess, appID, sess.UserID, parties.DancerID, parties.OrganizerID, in.Message)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if _, err := s.controller.MarkIncomingRead(ctx, sess, sess.UserID, msgs); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to mark messages read")
	}
	httputil.WriteJSON(w, http.StatusCreated, msgs)
}

// handleStream upgrades to a websocket and pushes the full thread on open
// and after every new-message signal.
func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := httputil.RequireSession(w, r)
	if !ok {
		return
	}
	appID := mux.Vars(r)["id"]

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	thread, err := s.controller.Open(ctx, sess, appID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	defer thread.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.logger.WithContext(ctx).WithField("application_id", appID)
	log.Debug("thread stream opened")

	// The client only reads; the read loop notices disconnects.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(ThreadFrame{Type: "thread", Messages: thread.Messages()}); err != nil {
		return
	}

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case snapshot, ok := <-thread.Updates():
			if !ok {
				return
			}
			if err := conn.WriteJSON(ThreadFrame{Type: "thread", Messages: snapshot}); err != nil {
				log.WithError(err).Debug("thread stream write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}
