package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	appLog "calrecon/internal/log"
	"calrecon/internal/model"
)

// Properties not every golang-ical release names as constants.
const (
	propRecurrenceID = ical.ComponentProperty("RECURRENCE-ID")
	propURL          = ical.ComponentProperty("URL")
	propDuration     = ical.ComponentProperty("DURATION")
	propDue          = ical.ComponentProperty("DUE")
	propCompleted    = ical.ComponentProperty("COMPLETED")
	propTrigger      = ical.ComponentProperty("TRIGGER")
	propAction       = ical.ComponentProperty("ACTION")
)

// Document is one parsed ICS calendar. Events and Reminders are the records
// handed to the reconciler; the underlying components stay attached so that
// writes only touch what a plan changes and everything else (time zones,
// detached instances, unsupported rules) is written back verbatim.
type Document struct {
	Source    Source
	Events    []model.Event
	Reminders []model.Reminder

	cal       *ical.Calendar
	events    map[string]*ical.VEvent
	reminders map[string]*ical.VTodo

	// alarmOffsets holds each VALARM's trigger as an offset from DTSTART,
	// so writes can keep alarms whose offset survives.
	alarmOffsets map[*ical.VAlarm]time.Duration
}

// Parse parses an ICS payload. Floating times are read in loc; times with a
// TZID keep that zone; UTC times are converted into loc so wall-clock based
// rescheduling happens in the user's zone.
//
// Components that cannot be represented are skipped (and logged) but kept
// in the document:
//   - VEVENTs with RECURRENCE-ID (detached instances of a series)
//   - VEVENTs whose RRULE uses a frequency other than daily..yearly
//   - VEVENTs with unparsable DTSTART
func Parse(src Source, body []byte, loc *time.Location) (*Document, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "id", src.ID)
		return nil, err
	}

	doc := &Document{
		Source:    src,
		cal:       cal,
		events:    make(map[string]*ical.VEvent),
		reminders: make(map[string]*ical.VTodo),

		alarmOffsets: make(map[*ical.VAlarm]time.Duration),
	}

	skipped := 0
	for _, comp := range cal.Components {
		switch c := comp.(type) {
		case *ical.VEvent:
			ev, err := parseVEvent(c, loc)
			if err != nil {
				appLog.Warn("ics vevent skipped", "id", src.ID, "uid", ev.UID, "reason", err.Error())
				skipped++
				continue
			}
			ev.ID = doc.assignID(ev.UID)
			ev.CalendarRef = src.ID
			doc.events[ev.ID] = c
			doc.trackAlarms(c, ev)
			doc.Events = append(doc.Events, ev)

		case *ical.VTodo:
			r, err := parseVTodo(c, loc)
			if err != nil {
				appLog.Warn("ics vtodo skipped", "id", src.ID, "reason", err.Error())
				skipped++
				continue
			}
			r.ID = doc.assignID(r.UID)
			r.CalendarRef = src.ID
			doc.reminders[r.ID] = c
			doc.Reminders = append(doc.Reminders, r)
		}
	}

	appLog.Info("ics parse completed", "id", src.ID,
		"event_count", len(doc.Events),
		"reminder_count", len(doc.Reminders),
		"skipped", skipped,
	)
	return doc, nil
}

// assignID returns uid when it is unused in this document, otherwise a fresh
// random ID. IDs only need to be unique within one pass.
func (d *Document) assignID(uid string) string {
	if uid != "" {
		_, e := d.events[uid]
		_, r := d.reminders[uid]
		if !e && !r {
			return uid
		}
	}
	return uuid.NewString()
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (model.Event, error) {
	var out model.Event

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		out.UID = p.Value
	}
	if ve.GetProperty(propRecurrenceID) != nil {
		return out, errors.New("detached recurrence instance")
	}

	out.Title = propValue(&ve.ComponentBase, ical.ComponentPropertySummary)
	out.Notes = propValue(&ve.ComponentBase, ical.ComponentPropertyDescription)
	out.Location = propValue(&ve.ComponentBase, ical.ComponentPropertyLocation)
	out.URL = propValue(&ve.ComponentBase, propURL)

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return out, errors.New("missing DTSTART")
	}
	start, allDay, err := parseDateTime(startProp.Value, startProp.ICalParameters, loc)
	if err != nil {
		return out, fmt.Errorf("DTSTART: %w", err)
	}
	out.StartAt = start
	out.AllDay = allDay

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		p := ve.GetProperty(ical.ComponentPropertyDtEnd)
		end, _, err := parseDateTime(p.Value, p.ICalParameters, loc)
		if err != nil {
			return out, fmt.Errorf("DTEND: %w", err)
		}
		out.EndAt = end
	case ve.GetProperty(propDuration) != nil:
		d, err := parseDuration(ve.GetProperty(propDuration).Value)
		if err != nil {
			return out, fmt.Errorf("DURATION: %w", err)
		}
		out.EndAt = start.Add(d)
	case allDay:
		out.EndAt = start.AddDate(0, 0, 1)
	default:
		out.EndAt = start
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		r, err := parseRRule(p.Value)
		if err != nil {
			return out, err
		}
		out.Recurrence = r
	}

	out.Attendees = parseAttendees(&ve.ComponentBase)
	out.Alarms = parseAlarms(ve, out.StartAt, out.Duration())

	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

func parseVTodo(vt *ical.VTodo, loc *time.Location) (model.Reminder, error) {
	var out model.Reminder

	out.UID = propValue(&vt.ComponentBase, ical.ComponentPropertyUniqueId)
	out.Title = propValue(&vt.ComponentBase, ical.ComponentPropertySummary)
	out.Notes = propValue(&vt.ComponentBase, ical.ComponentPropertyDescription)

	if p := vt.GetProperty(propDue); p != nil {
		due, _, err := parseDateTime(p.Value, p.ICalParameters, loc)
		if err != nil {
			return out, fmt.Errorf("DUE: %w", err)
		}
		out.Due = &due
	}

	status := strings.ToUpper(propValue(&vt.ComponentBase, ical.ComponentPropertyStatus))
	out.Completed = status == "COMPLETED" || vt.GetProperty(propCompleted) != nil

	return out, nil
}

// parseRRule maps an RRULE value onto the model via rrule-go.
func parseRRule(value string) (*model.Recurrence, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return nil, fmt.Errorf("RRULE %q: %w", value, err)
	}
	freq, ok := model.FrequencyFromRRule(opt.Freq)
	if !ok {
		return nil, fmt.Errorf("RRULE %q: unsupported frequency", value)
	}

	r := &model.Recurrence{
		Frequency: freq,
		Interval:  opt.Interval,
		Count:     opt.Count,
	}
	if r.Interval <= 0 {
		r.Interval = 1
	}
	if !opt.Until.IsZero() {
		until := opt.Until
		r.Until = &until
	}
	return r, nil
}

func parseAttendees(cb *ical.ComponentBase) []string {
	var out []string
	for _, p := range cb.Properties {
		if p.IANAToken != string(ical.ComponentPropertyAttendee) {
			continue
		}
		name := ""
		if cn, ok := p.ICalParameters["CN"]; ok && len(cn) > 0 {
			name = cn[0]
		}
		if name == "" {
			name = strings.TrimPrefix(strings.TrimPrefix(p.Value, "mailto:"), "MAILTO:")
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// parseAlarms reads VALARM triggers as offsets relative to DTSTART.
func parseAlarms(ve *ical.VEvent, start time.Time, dur time.Duration) []time.Duration {
	var out []time.Duration
	for _, comp := range ve.Components {
		alarm, ok := comp.(*ical.VAlarm)
		if !ok {
			continue
		}
		offset, ok := alarmOffset(alarm, start, dur)
		if !ok {
			continue
		}

		seen := false
		for _, o := range out {
			if o == offset {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, offset)
		}
	}
	return out
}

// alarmOffset resolves a TRIGGER (relative to start or end, or absolute)
// into an offset from start.
func alarmOffset(alarm *ical.VAlarm, start time.Time, dur time.Duration) (time.Duration, bool) {
	trigger := alarm.GetProperty(propTrigger)
	if trigger == nil {
		return 0, false
	}

	if isParam(trigger.ICalParameters, "VALUE", "DATE-TIME") {
		at, _, err := parseDateTime(trigger.Value, trigger.ICalParameters, time.UTC)
		if err != nil {
			return 0, false
		}
		return at.Sub(start), true
	}

	d, err := parseDuration(trigger.Value)
	if err != nil {
		return 0, false
	}
	if isParam(trigger.ICalParameters, "RELATED", "END") {
		d += dur
	}
	return d, true
}

func (d *Document) trackAlarms(ve *ical.VEvent, ev model.Event) {
	for _, comp := range ve.Components {
		if alarm, ok := comp.(*ical.VAlarm); ok {
			if off, ok := alarmOffset(alarm, ev.StartAt, ev.Duration()); ok {
				d.alarmOffsets[alarm] = off
			}
		}
	}
}

// parseDateTime parses DATE / DATE-TIME values. The bool result reports a
// DATE (all-day) value.
func parseDateTime(v string, params map[string][]string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, false, errors.New("empty time value")
	}

	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		if tz, err := time.LoadLocation(tzs[0]); err == nil {
			loc = tz
		}
	}

	if isParam(params, "VALUE", "DATE") || !strings.Contains(v, "T") {
		t, err := time.ParseInLocation("20060102", v, loc)
		return t, true, err
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse("20060102T150405Z", v)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.In(loc), false, nil
	}

	t, err := time.ParseInLocation("20060102T150405", v, loc)
	return t, false, err
}

func propValue(cb *ical.ComponentBase, name ical.ComponentProperty) string {
	if p := cb.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

func isParam(params map[string][]string, key, want string) bool {
	vs, ok := params[key]
	return ok && len(vs) > 0 && strings.EqualFold(vs[0], want)
}
