package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"calrecon/internal/model"
)

// Action is what a reschedule plan asks the caller to do.
type Action int

const (
	NoAction Action = iota
	Move
	DeleteExpiredSeries
)

func (a Action) String() string {
	switch a {
	case Move:
		return "reschedule"
	case DeleteExpiredSeries:
		return "delete_series"
	default:
		return "none"
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	switch strings.TrimSpace(string(b)) {
	case "none", "":
		*a = NoAction
	case "reschedule":
		*a = Move
	case "delete_series":
		*a = DeleteExpiredSeries
	default:
		return fmt.Errorf("reconcile: unknown action %q", string(b))
	}
	return nil
}

// ReschedulePlan is the decision for one event. NewStart and NewEnd are only
// set when Action is Move.
type ReschedulePlan struct {
	Action   Action    `json:"action"`
	NewStart time.Time `json:"new_start,omitzero"`
	NewEnd   time.Time `json:"new_end,omitzero"`
}

// WeekStart selects the first day of the week used for the week anchor.
type WeekStart int

const (
	WeekStartMonday WeekStart = iota
	WeekStartSunday
)

// ParseWeekStart accepts "monday" or "sunday"; anything else is Monday.
func ParseWeekStart(s string) WeekStart {
	if strings.EqualFold(strings.TrimSpace(s), "sunday") {
		return WeekStartSunday
	}
	return WeekStartMonday
}

// Rescheduler moves stale one-off events into the current week. The zero
// value uses Monday-based weeks.
type Rescheduler struct {
	WeekStart WeekStart
}

// Reschedule decides what to do with ev at instant now:
//
//   - recurring, series still able to produce occurrences: NoAction
//   - recurring, series ended before now: DeleteExpiredSeries
//   - one-off starting before now: Move to the same weekday and wall-clock
//     time in the week containing now, keeping the exact duration
//   - one-off starting at or after now: NoAction
//
// Wall-clock fields are read in ev.StartAt's location, and now is converted
// into that location before the week anchor is taken.
func (r Rescheduler) Reschedule(ev model.Event, now time.Time) ReschedulePlan {
	if ev.Recurrence != nil {
		if seriesEnded(*ev.Recurrence, ev.StartAt, now) {
			return ReschedulePlan{Action: DeleteExpiredSeries}
		}
		return ReschedulePlan{Action: NoAction}
	}

	if !ev.StartAt.Before(now) {
		return ReschedulePlan{Action: NoAction}
	}

	start := ev.StartAt
	loc := start.Location()
	anchor := r.WeekAnchor(now.In(loc))

	hour, minute := start.Hour(), start.Minute()
	if ev.AllDay {
		hour, minute = 0, 0
	}

	newStart := time.Date(anchor.Year(), anchor.Month(), anchor.Day()+r.dayOffset(start.Weekday()),
		hour, minute, 0, 0, loc)
	if newStart.Before(anchor) {
		newStart = newStart.AddDate(0, 0, 7)
	}

	return ReschedulePlan{
		Action:   Move,
		NewStart: newStart,
		NewEnd:   newStart.Add(ev.Duration()),
	}
}

// WeekAnchor returns midnight of the first day of the week containing t,
// in t's location.
func (r Rescheduler) WeekAnchor(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()-r.dayOffset(t.Weekday()), 0, 0, 0, 0, t.Location())
}

func (r Rescheduler) dayOffset(wd time.Weekday) int {
	if r.WeekStart == WeekStartSunday {
		return int(wd)
	}
	return (int(wd) + 6) % 7
}

// Reschedule uses Monday-based weeks.
func Reschedule(ev model.Event, now time.Time) ReschedulePlan {
	return Rescheduler{}.Reschedule(ev, now)
}

// ISOWeekday numbers weekdays 1 (Monday) through 7 (Sunday).
func ISOWeekday(t time.Time) int {
	return (int(t.Weekday())+6)%7 + 1
}

// seriesEnded reports whether a rule can no longer produce an occurrence at
// or after now. Rules without an end never expire. For COUNT-terminated
// rules the last occurrence is expanded from dtstart.
func seriesEnded(r model.Recurrence, dtstart time.Time, now time.Time) bool {
	switch {
	case r.Until != nil:
		return r.Until.Before(now)
	case r.Count > 0:
		rr, err := rrule.NewRRule(r.Option(dtstart))
		if err != nil {
			return false
		}
		// Iteration stops at the first occurrence not before now.
		return rr.After(now, true).IsZero()
	default:
		return false
	}
}
