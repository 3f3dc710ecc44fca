// Package applications implements the application lifecycle: dancers apply
// to events and the owning organizer approves or rejects them, which sends
// the dancer a decision email.
package applications

import (
	"context"

	"github.com/dancelink/platform/internal/app/domain/application"
	"github.com/dancelink/platform/internal/app/storage"
	svcerrors "github.com/dancelink/platform/internal/errors"
	"github.com/dancelink/platform/internal/logging"
	"github.com/dancelink/platform/internal/metrics"
	"github.com/dancelink/platform/internal/notify"
	"github.com/dancelink/platform/internal/session"
	commonservice "github.com/dancelink/platform/services/common/service"
)

// FallbackOrganizerName is used in emails when the organizer record cannot
// be read.
const FallbackOrganizerName = "The organizer"

// Lifecycle owns application creation and status transitions.
type Lifecycle struct {
	backend storage.Backend
	sender  notify.Sender
	logger  *logging.Logger
	metrics *metrics.Metrics
}

// NewLifecycle creates the controller. logger and m may be nil.
func NewLifecycle(backend storage.Backend, sender notify.Sender, logger *logging.Logger, m *metrics.Metrics) *Lifecycle {
	if logger == nil {
		logger = logging.NewDiscard("applications")
	}
	if m == nil {
		m = metrics.New()
	}
	return &Lifecycle{backend: backend, sender: sender, logger: logger, metrics: m}
}

// SubmitApplication creates a pending application of dancerID to eventID
// unless the dancer already applied. The check and the insert are separate
// calls; two concurrent submissions can both succeed.
func (l *Lifecycle) SubmitApplication(ctx context.Context, sess session.Session, eventID, dancerID string) (application.Application, error) {
	if sess.UserID != dancerID {
		return application.Application{}, svcerrors.Forbidden("dancers can only apply for themselves")
	}
	store := l.backend.For(sess)

	if _, err := store.GetEvent(ctx, eventID); err != nil {
		return application.Application{}, commonservice.StoreError(err, "event", eventID, "load event")
	}

	applied, err := store.AppliedEventIDs(ctx, dancerID)
	if err != nil {
		return application.Application{}, commonservice.StoreError(err, "application", "", "load applications")
	}
	for _, id := range applied {
		if id == eventID {
			l.metrics.RecordApplication("duplicate")
			return application.Application{}, svcerrors.Conflict("you have already applied to this event").
				WithDetails("event_id", eventID)
		}
	}

	app, err := store.CreateApplication(ctx, application.Application{
		EventID:  eventID,
		DancerID: dancerID,
		Status:   application.StatusPending,
	})
	if err != nil {
		l.metrics.RecordApplication("error")
		return application.Application{}, commonservice.StoreError(err, "event", eventID, "submit application")
	}

	l.metrics.RecordApplication("created")
	l.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"application_id": app.ID,
		"event_id":       eventID,
	}).Info("application submitted")
	return app, nil
}

// StatusChange is the input of SetStatus.
type StatusChange struct {
	ApplicationID string
	DancerID      string
	Status        application.Status
	DancerEmail   string
	DancerName    string
	EventName     string
}

// SetStatus moves a pending application to approved or rejected. Only the
// organizer owning the event may do so. The update is committed before the
// decision email is attempted; a failed email is logged and does not fail
// the call.
func (l *Lifecycle) SetStatus(ctx context.Context, sess session.Session, change StatusChange) (application.Application, error) {
	if !change.Status.Terminal() {
		return application.Application{}, svcerrors.Validation("status", "status must be approved or rejected")
	}
	store := l.backend.For(sess)

	current, err := store.GetApplication(ctx, change.ApplicationID)
	if err != nil {
		return application.Application{}, commonservice.StoreError(err, "application", change.ApplicationID, "load application")
	}
	if current.DancerID != change.DancerID {
		return application.Application{}, svcerrors.BadRequest("dancer does not match the application")
	}
	if current.Event == nil || current.Event.OrganizerID != sess.UserID {
		return application.Application{}, svcerrors.Forbidden("only the event organizer can decide on applications")
	}
	if !application.CanTransition(current.Status, change.Status) {
		return application.Application{}, svcerrors.Conflict("application has already been "+string(current.Status)).
			WithDetails("status", current.Status)
	}

	updated, err := store.UpdateApplicationStatus(ctx, change.ApplicationID, change.Status)
	if err != nil {
		return application.Application{}, commonservice.StoreError(err, "application", change.ApplicationID, "update application")
	}
	l.metrics.RecordStatusChange(string(change.Status))

	log := l.logger.WithContext(ctx).WithField("application_id", change.ApplicationID)

	organizerName := FallbackOrganizerName
	if org, err := store.GetOrganizer(ctx, sess.UserID); err != nil {
		log.WithError(err).Warn("organizer lookup failed; using fallback name")
	} else if org.Name != "" {
		organizerName = org.Name
	}

	err = l.sender.Send(ctx, notify.Payload{
		DancerEmail:   change.DancerEmail,
		DancerName:    change.DancerName,
		EventName:     change.EventName,
		Status:        string(change.Status),
		OrganizerName: organizerName,
	})
	if err != nil {
		log.WithError(err).WithField("status", change.Status).Warn("decision email failed; status change kept")
	} else {
		log.WithField("status", change.Status).Info("application status updated")
	}
	return updated, nil
}
