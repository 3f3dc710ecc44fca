package messaging

import (
	"context"
	"sync"

	"github.com/dancelink/platform/internal/app/domain/message"
	"github.com/dancelink/platform/internal/realtime"
	"github.com/dancelink/platform/internal/session"
)

// Thread is one caller's live view of a conversation.
type Thread struct {
	c       *Controller
	sess    session.Session
	parties Participants
	sub     realtime.Subscription

	mu       sync.Mutex
	messages []message.Message

	// updates carries the latest snapshot after each realtime reload;
	// unread snapshots are replaced by newer ones.
	updates chan []message.Message
}

// Participants returns the two parties of the thread.
func (t *Thread) Participants() Participants { return t.parties }

// Messages returns a copy of the current snapshot.
func (t *Thread) Messages() []message.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return cloneThread(t.messages)
}

// Updates yields a snapshot after every realtime-triggered reload. It is
// closed when the thread closes.
func (t *Thread) Updates() <-chan []message.Message { return t.updates }

// Reload re-reads the whole thread and marks incoming messages read. On a
// read error the current snapshot is kept.
func (t *Thread) Reload(ctx context.Context) error {
	msgs, err := t.c.ListThread(ctx, t.sess, t.parties.ApplicationID)
	if err != nil {
		return err
	}
	t.markRead(ctx, msgs)
	t.set(msgs)
	return nil
}

// Send posts text as the caller and replaces the snapshot with the
// re-read thread.
func (t *Thread) Send(ctx context.Context, text string) error {
	msgs, err := t.c.Send(ctx, t.sess, t.parties.ApplicationID, t.sess.UserID, t.parties.DancerID, t.parties.OrganizerID, text)
	if err != nil {
		return err
	}
	t.markRead(ctx, msgs)
	t.set(msgs)
	return nil
}

// Close releases the realtime subscription. It is safe to call twice.
func (t *Thread) Close() error {
	return t.sub.Close()
}

func (t *Thread) markRead(ctx context.Context, msgs []message.Message) {
	if _, err := t.c.MarkIncomingRead(ctx, t.sess, t.sess.UserID, msgs); err != nil {
		t.c.logger.WithContext(ctx).WithError(err).
			WithField("application_id", t.parties.ApplicationID).
			Warn("failed to mark messages read")
	}
}

func (t *Thread) set(msgs []message.Message) {
	t.mu.Lock()
	t.messages = msgs
	t.mu.Unlock()
}

func (t *Thread) watch(ctx context.Context) {
	defer close(t.updates)
	log := t.c.logger.WithContext(ctx).WithField("application_id", t.parties.ApplicationID)

	for {
		select {
		case <-ctx.Done():
			_ = t.Close()
			return
		case _, ok := <-t.sub.Signals():
			if !ok {
				return
			}
			if err := t.Reload(ctx); err != nil {
				log.WithError(err).Warn("thread reload failed")
				continue
			}
			t.publish(t.Messages())
		}
	}
}

// publish replaces any unread snapshot. watch is the only writer.
func (t *Thread) publish(snapshot []message.Message) {
	select {
	case <-t.updates:
	default:
	}
	t.updates <- snapshot
}

func cloneThread(msgs []message.Message) []message.Message {
	out := make([]message.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}
