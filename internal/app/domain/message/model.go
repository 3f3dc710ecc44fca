package message

import (
	"sort"
	"strings"
	"time"
)

// Message is one entry in an application thread. Messages are append-only;
// ReadAt is stamped once by the receiver.
type Message struct {
	ID            string     `json:"id" db:"id"`
	ApplicationID string     `json:"application_id" db:"application_id" validate:"required"`
	SenderID      string     `json:"sender_id" db:"sender_id" validate:"required"`
	ReceiverID    string     `json:"receiver_id" db:"receiver_id" validate:"required,nefield=SenderID"`
	Message       string     `json:"message" db:"message" validate:"notblank,max=5000"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	ReadAt        *time.Time `json:"read_at" db:"read_at"`

	Sender   *Party `json:"sender,omitempty" db:"-"`
	Receiver *Party `json:"receiver,omitempty" db:"-"`
}

// Party is the joined profile of a sender or receiver.
type Party struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	out := m
	if m.ReadAt != nil {
		t := *m.ReadAt
		out.ReadAt = &t
	}
	if m.Sender != nil {
		p := *m.Sender
		out.Sender = &p
	}
	if m.Receiver != nil {
		p := *m.Receiver
		out.Receiver = &p
	}
	return out
}

// Blank reports whether text has no visible content.
func Blank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// ReceiverFor returns the other party of a two-party thread.
func ReceiverFor(senderID, dancerID, organizerID string) string {
	if senderID == dancerID {
		return organizerID
	}
	return dancerID
}

// UnreadFor returns the ids of messages addressed to userID that have not
// been read yet.
func UnreadFor(thread []Message, userID string) []string {
	var ids []string
	for _, m := range thread {
		if m.ReceiverID == userID && m.ReadAt == nil {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// SortThread orders msgs by CreatedAt ascending, keeping insertion order for
// equal timestamps.
func SortThread(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
