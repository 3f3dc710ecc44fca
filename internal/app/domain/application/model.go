package application

import (
	"time"

	"github.com/dancelink/platform/internal/app/domain/event"
	"github.com/dancelink/platform/internal/app/domain/profile"
)

// Status is the approval state of an application.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the three known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition reports whether from -> to is allowed. Only pending moves,
// and only to approved or rejected.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to.Terminal()
}

// Application is a dancer's request to join an event.
type Application struct {
	ID        string    `json:"id" db:"id"`
	EventID   string    `json:"event_id" db:"event_id" validate:"required"`
	DancerID  string    `json:"dancer_id" db:"dancer_id" validate:"required"`
	Status    Status    `json:"status" db:"status" validate:"oneof=pending approved rejected"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	Event  *event.Event     `json:"event,omitempty" db:"-"`
	Dancer *profile.Summary `json:"dancer,omitempty" db:"-"`
}

// Clone returns a deep copy of a.
func (a Application) Clone() Application {
	out := a
	if a.Event != nil {
		ev := a.Event.Clone()
		out.Event = &ev
	}
	if a.Dancer != nil {
		d := *a.Dancer
		out.Dancer = &d
	}
	return out
}

// EventIDs returns the distinct event ids in apps, in order.
func EventIDs(apps []Application) []string {
	seen := make(map[string]bool, len(apps))
	out := make([]string, 0, len(apps))
	for _, a := range apps {
		if !seen[a.EventID] {
			seen[a.EventID] = true
			out = append(out, a.EventID)
		}
	}
	return out
}
