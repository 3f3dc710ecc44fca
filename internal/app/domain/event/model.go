package event

import "time"

// Event is posted by an organizer. OrganizerID is fixed at creation.
type Event struct {
	ID               string     `json:"id" db:"id"`
	Name             string     `json:"name" db:"name" validate:"notblank,max=200"`
	DanceStyle       string     `json:"dance_style" db:"dance_style" validate:"required"`
	GenderPreference string     `json:"gender_preference" db:"gender_preference" validate:"required"`
	OrganizerID      string     `json:"organizer_id" db:"organizer_id" validate:"required"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	Organizer        *Organizer `json:"organizer,omitempty" db:"-"`
}

// Organizer is the display record for an event owner.
type Organizer struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}

// Clone returns a deep copy of e.
func (e Event) Clone() Event {
	out := e
	if e.Organizer != nil {
		org := *e.Organizer
		out.Organizer = &org
	}
	return out
}
