// Package reminder turns overdue to-do items into calendar events so they
// show up (and get rescheduled) like any other stale event.
package reminder

import (
	"strings"
	"time"

	"github.com/google/uuid"

	appLog "calrecon/internal/log"
	"calrecon/internal/model"
)

// EventLength is how long a converted reminder blocks on the calendar.
const EventLength = time.Hour

// Due reports whether r should be converted at now: it is incomplete, has a
// title, and is either overdue or has no due time at all.
func Due(r model.Reminder, now time.Time) bool {
	if r.Completed || strings.TrimSpace(r.Title) == "" {
		return false
	}
	return r.Due == nil || r.Due.Before(now)
}

// ToEvent converts r into a one-hour event starting at its due time, or at
// now when it has none. The event gets a fresh ID and UID so it never
// collides with the VTODO it came from.
func ToEvent(r model.Reminder, now time.Time) model.Event {
	start := now
	if r.Due != nil {
		start = *r.Due
	}
	id := uuid.NewString()
	return model.Event{
		ID:          id,
		UID:         id,
		Title:       r.Title,
		Notes:       r.Notes,
		StartAt:     start,
		EndAt:       start.Add(EventLength),
		CalendarRef: r.CalendarRef,
	}
}

// Conversion pairs a converted reminder with the event created for it.
type Conversion struct {
	Reminder model.Reminder
	Event    model.Event
}

// Convert returns a conversion for every reminder Due at now, in input order.
func Convert(reminders []model.Reminder, now time.Time) []Conversion {
	out := make([]Conversion, 0)
	for _, r := range reminders {
		if !Due(r, now) {
			continue
		}
		c := Conversion{Reminder: r, Event: ToEvent(r, now)}
		appLog.Debug("reminder converted", "reminder_id", r.ID, "event_id", c.Event.ID, "start", c.Event.StartAt.Format(time.RFC3339))
		out = append(out, c)
	}
	return out
}
