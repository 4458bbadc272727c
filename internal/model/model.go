package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrInvalidTimeRange is returned when an event starts after it ends.
var ErrInvalidTimeRange = errors.New("invalid time range")

// ErrInvalidRecurrence is returned for recurrence rules that cannot repeat.
var ErrInvalidRecurrence = errors.New("invalid recurrence rule")

// Frequency is the repeat unit of a recurrence rule.
type Frequency int

const (
	Daily Frequency = iota
	Weekly
	Monthly
	Yearly
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "Daily"
	case Weekly:
		return "Weekly"
	case Monthly:
		return "Monthly"
	case Yearly:
		return "Yearly"
	default:
		return "Unknown"
	}
}

// MarshalText renders the frequency in its RRULE spelling.
func (f Frequency) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(f.String())), nil
}

// UnmarshalText accepts RRULE spellings (DAILY, WEEKLY, ...) in any case.
func (f *Frequency) UnmarshalText(b []byte) error {
	switch strings.ToUpper(strings.TrimSpace(string(b))) {
	case "DAILY":
		*f = Daily
	case "WEEKLY":
		*f = Weekly
	case "MONTHLY":
		*f = Monthly
	case "YEARLY":
		*f = Yearly
	default:
		return fmt.Errorf("model: unknown frequency %q", string(b))
	}
	return nil
}

// FrequencyFromRRule maps an rrule-go frequency onto the model. Only the
// four calendar frequencies are representable.
func FrequencyFromRRule(f rrule.Frequency) (Frequency, bool) {
	switch f {
	case rrule.DAILY:
		return Daily, true
	case rrule.WEEKLY:
		return Weekly, true
	case rrule.MONTHLY:
		return Monthly, true
	case rrule.YEARLY:
		return Yearly, true
	default:
		return 0, false
	}
}

func (f Frequency) rrule() rrule.Frequency {
	switch f {
	case Weekly:
		return rrule.WEEKLY
	case Monthly:
		return rrule.MONTHLY
	case Yearly:
		return rrule.YEARLY
	default:
		return rrule.DAILY
	}
}

// Recurrence describes a repeating series. At most one of Until and Count
// terminates the series; when both are unset it repeats forever.
type Recurrence struct {
	Frequency Frequency  `json:"frequency"`
	Interval  int        `json:"interval"`
	Until     *time.Time `json:"until,omitempty"`
	Count     int        `json:"count,omitempty"`
}

// HasEnd reports whether the series terminates.
func (r Recurrence) HasEnd() bool {
	return r.Until != nil || r.Count > 0
}

// Option converts the rule into rrule-go options anchored at dtstart.
func (r Recurrence) Option(dtstart time.Time) rrule.ROption {
	opt := rrule.ROption{
		Freq:     r.Frequency.rrule(),
		Interval: r.Interval,
		Count:    r.Count,
		Dtstart:  dtstart,
	}
	if r.Until != nil {
		opt.Until = *r.Until
	}
	return opt
}

// RRule returns the RRULE property value (without the "RRULE:" prefix).
func (r Recurrence) RRule() string {
	opt := r.Option(time.Time{})
	return opt.RRuleString()
}

// Describe renders the rule for humans, e.g. "Weekly, interval 2, until 2025-03-01T00:00:00Z".
func (r Recurrence) Describe() string {
	var b strings.Builder
	b.WriteString(r.Frequency.String())
	fmt.Fprintf(&b, ", interval %d", r.Interval)
	switch {
	case r.Until != nil:
		b.WriteString(", until ")
		b.WriteString(r.Until.UTC().Format(time.RFC3339))
	case r.Count > 0:
		fmt.Fprintf(&b, ", %d occurrences", r.Count)
	default:
		b.WriteString(", no end")
	}
	return b.String()
}

// Equal compares two rules by value.
func (r Recurrence) Equal(o Recurrence) bool {
	if r.Frequency != o.Frequency || r.Interval != o.Interval || r.Count != o.Count {
		return false
	}
	if (r.Until == nil) != (o.Until == nil) {
		return false
	}
	return r.Until == nil || r.Until.Equal(*o.Until)
}

// Event is a snapshot of one calendar event taken for a single
// reconciliation pass. Values are treated as immutable: code that needs a
// modified event works on a Clone.
type Event struct {
	// ID identifies the record within one pass only.
	ID string `json:"id"`
	// UID is the identifier in the source system (ICS UID), if any.
	UID string `json:"uid,omitempty"`

	Title    string `json:"title"`
	Notes    string `json:"notes,omitempty"`
	Location string `json:"location,omitempty"`
	URL      string `json:"url,omitempty"`

	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	AllDay  bool      `json:"all_day"`

	// Alarms are offsets relative to StartAt; negative values fire before it.
	Alarms    []time.Duration `json:"alarms,omitempty"`
	Attendees []string        `json:"attendees,omitempty"`

	Recurrence *Recurrence `json:"recurrence,omitempty"`

	// CalendarRef names the owning calendar or list. Opaque to the core.
	CalendarRef string `json:"calendar_ref,omitempty"`
}

// Validate checks construction-time invariants.
func (e Event) Validate() error {
	if e.StartAt.After(e.EndAt) {
		return fmt.Errorf("event %q: start %s after end %s: %w",
			e.ID, e.StartAt.Format(time.RFC3339), e.EndAt.Format(time.RFC3339), ErrInvalidTimeRange)
	}
	if e.Recurrence != nil && e.Recurrence.Interval <= 0 {
		return fmt.Errorf("event %q: interval %d: %w", e.ID, e.Recurrence.Interval, ErrInvalidRecurrence)
	}
	return nil
}

// Duration is EndAt - StartAt.
func (e Event) Duration() time.Duration {
	return e.EndAt.Sub(e.StartAt)
}

// IsRecurring reports whether the event carries a recurrence rule.
func (e Event) IsRecurring() bool {
	return e.Recurrence != nil
}

// HasAlarm reports whether an alarm with the given offset is present.
func (e Event) HasAlarm(offset time.Duration) bool {
	for _, a := range e.Alarms {
		if a == offset {
			return true
		}
	}
	return false
}

// Clone returns a deep copy that shares no slices or pointers with e.
func (e Event) Clone() Event {
	out := e
	if e.Alarms != nil {
		out.Alarms = append([]time.Duration(nil), e.Alarms...)
	}
	if e.Attendees != nil {
		out.Attendees = append([]string(nil), e.Attendees...)
	}
	if e.Recurrence != nil {
		r := *e.Recurrence
		if r.Until != nil {
			u := *r.Until
			r.Until = &u
		}
		out.Recurrence = &r
	}
	return out
}
