// Package messaging implements the per-application two-party chat between
// a dancer and the organizer of the event they applied to.
package messaging

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dancelink/platform/internal/app/domain/message"
	"github.com/dancelink/platform/internal/app/storage"
	svcerrors "github.com/dancelink/platform/internal/errors"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/metrics"
	"github.com/dancelink/platform/internal/realtime"
	"github.com/dancelink/platform/internal/session"
	commonservice "github.com/dancelink/platform/services/common/service"
)

// Controller implements the thread operations. It keeps no state between
// calls; per-connection state lives in Thread.
type Controller struct {
	backend storage.Backend
	feed    realtime.Feed
	logger  *logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewController creates the controller. logger and m may be nil.
func NewController(backend storage.Backend, feed realtime.Feed, logger *logging.Logger, m *metrics.Metrics) *Controller {
	if logger == nil {
		logger = logging.NewDiscard("messaging")
	}
	if m == nil {
		m = metrics.New()
	}
	return &Controller{backend: backend, feed: feed, logger: logger, metrics: m, now: time.Now}
}

// Participants are the two parties of an application's thread.
type Participants struct {
	ApplicationID string
	DancerID      string
	OrganizerID   string
}

// Includes reports whether userID is one of the parties.
func (p Participants) Includes(userID string) bool {
	return userID != "" && (userID == p.DancerID || userID == p.OrganizerID)
}

// Participants resolves the parties of applicationID and checks that the
// caller is one of them.
func (c *Controller) Participants(ctx context.Context, sess session.Session, applicationID string) (Participants, error) {
	store := c.backend.For(sess)
	app, err := store.GetApplication(ctx, applicationID)
	if err != nil {
		return Participants{}, commonservice.StoreError(err, "application", applicationID, "load application")
	}

	organizerID := ""
	if app.Event != nil {
		organizerID = app.Event.OrganizerID
	} else {
		ev, err := store.GetEvent(ctx, app.EventID)
		if err != nil {
			return Participants{}, commonservice.StoreError(err, "event", app.EventID, "load event")
		}
		organizerID = ev.OrganizerID
	}

	p := Participants{ApplicationID: applicationID, DancerID: app.DancerID, OrganizerID: organizerID}
	if !p.Includes(sess.UserID) {
		return Participants{}, svcerrors.Forbidden("only the dancer and the organizer can access this conversation")
	}
	return p, nil
}

// ListThread returns the application's messages ordered by created_at
// ascending. A messages table that does not exist yet reads as an empty
// thread.
func (c *Controller) ListThread(ctx context.Context, sess session.Session, applicationID string) ([]message.Message, error) {
	msgs, err := c.backend.For(sess).ListMessages(ctx, applicationID)
	if errors.Is(err, storage.ErrRelationMissing) {
		c.logger.WithContext(ctx).WithField("application_id", applicationID).Debug("messages relation missing; empty thread")
		return []message.Message{}, nil
	}
	if err != nil {
		return nil, commonservice.StoreError(err, "messages", applicationID, "load messages")
	}
	return msgs, nil
}

// Send appends text from senderID to the thread and returns the re-read
// thread. The receiver is the other party. Blank text is rejected without
// touching the store.
func (c *Controller) Send(ctx context.Context, sess session.Session, applicationID, senderID, dancerID, organizerID, text string) ([]message.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, svcerrors.Validation("message", "message must not be empty")
	}
	if senderID != sess.UserID {
		return nil, svcerrors.Forbidden("messages can only be sent as yourself")
	}

	_, err := c.backend.For(sess).CreateMessage(ctx, message.Message{
		ApplicationID: applicationID,
		SenderID:      senderID,
		ReceiverID:    message.ReceiverFor(senderID, dancerID, organizerID),
		Message:       text,
	})
	if errors.Is(err, storage.ErrRelationMissing) {
		return nil, svcerrors.Unavailable("messaging is not set up yet", err)
	}
	if err != nil {
		return nil, commonservice.StoreError(err, "application", applicationID, "send message")
	}
	c.metrics.RecordMessageSent()

	return c.ListThread(ctx, sess, applicationID)
}

// MarkIncomingRead stamps read_at on every unread message of msgs addressed
// to currentUserID, in one update keyed by message id. The stamp is copied
// into msgs, so a second call on the same snapshot issues no update. It
// returns the number of messages marked.
func (c *Controller) MarkIncomingRead(ctx context.Context, sess session.Session, currentUserID string, msgs []message.Message) (int, error) {
	ids := message.UnreadFor(msgs, currentUserID)
	if len(ids) == 0 {
		return 0, nil
	}

	at := c.now().UTC()
	err := c.backend.For(sess).MarkMessagesRead(ctx, ids, at)
	if errors.Is(err, storage.ErrRelationMissing) {
		return 0, nil
	}
	if err != nil {
		return 0, commonservice.StoreError(err, "messages", "", "mark messages read")
	}

	for i := range msgs {
		if msgs[i].ReceiverID == currentUserID && msgs[i].ReadAt == nil {
			stamp := at
			msgs[i].ReadAt = &stamp
		}
	}
	c.metrics.RecordMessagesRead(len(ids))
	return len(ids), nil
}

// Open loads the thread for the caller, marks incoming messages read and
// subscribes to new-message signals. The thread reloads in full on every
// signal until ctx is done or Close is called.
func (c *Controller) Open(ctx context.Context, sess session.Session, applicationID string) (*Thread, error) {
	parties, err := c.Participants(ctx, sess, applicationID)
	if err != nil {
		return nil, err
	}

	sub, err := c.feed.Subscribe(ctx, realtime.Request{
		Channel:     "messages-" + applicationID,
		Schema:      "public",
		Table:       "messages",
		Column:      "application_id",
		Value:       applicationID,
		AccessToken: sess.AccessToken,
	})
	if err != nil {
		return nil, svcerrors.Unavailable("realtime feed unavailable", err)
	}

	t := &Thread{
		c:       c,
		sess:    sess,
		parties: parties,
		sub:     sub,
		updates: make(chan []message.Message, 1),
	}
	if err := t.Reload(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	go t.watch(ctx)
	return t, nil
}
