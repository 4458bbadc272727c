package ics

import (
	"math"
	"time"

	ical "github.com/arran4/golang-ical"

	"calrecon/internal/model"
)

// HasEvent reports whether the document holds a VEVENT for id.
func (d *Document) HasEvent(id string) bool {
	_, ok := d.events[id]
	return ok
}

// Upsert writes ev into the VEVENT it was parsed from, or appends a new
// VEVENT when the document has none for ev.ID. Properties the model does not
// carry (SEQUENCE, categories, X- props, EXDATEs) are left untouched, and so
// are ATTENDEEs: merging never changes the canonical attendee list.
func (d *Document) Upsert(ev model.Event, stamp time.Time) {
	ve, ok := d.events[ev.ID]
	if !ok {
		uid := ev.UID
		if uid == "" {
			uid = ev.ID
		}
		ve = d.cal.AddEvent(uid)
		d.events[ev.ID] = ve
	}

	setOrClear(&ve.ComponentBase, ical.ComponentPropertySummary, ev.Title)
	setOrClear(&ve.ComponentBase, ical.ComponentPropertyDescription, ev.Notes)
	setOrClear(&ve.ComponentBase, ical.ComponentPropertyLocation, ev.Location)
	setOrClear(&ve.ComponentBase, propURL, ev.URL)

	removeProps(&ve.ComponentBase, propDuration, ical.ComponentPropertyDtStart, ical.ComponentPropertyDtEnd)
	if ev.AllDay {
		ve.SetAllDayStartAt(ev.StartAt)
		ve.SetAllDayEndAt(ev.StartAt.AddDate(0, 0, allDaySpan(ev)))
	} else {
		ve.SetStartAt(ev.StartAt)
		ve.SetEndAt(ev.EndAt)
	}

	if !sameRRule(ve, ev.Recurrence) {
		removeProps(&ve.ComponentBase, ical.ComponentPropertyRrule)
		if ev.Recurrence != nil {
			ve.SetProperty(ical.ComponentPropertyRrule, ev.Recurrence.RRule())
		}
	}

	d.setAlarms(ve, ev)
	ve.SetDtStampTime(stamp)
}

// Remove drops the VEVENT or VTODO for id. Removing a series master also
// removes its detached instances (same UID, with RECURRENCE-ID). It reports
// whether anything was removed.
func (d *Document) Remove(id string) bool {
	drop := make(map[ical.Component]bool)
	if ve, ok := d.events[id]; ok {
		drop[ve] = true
		delete(d.events, id)
		if ve.GetProperty(ical.ComponentPropertyRrule) != nil {
			for _, inst := range d.detachedInstances(propValue(&ve.ComponentBase, ical.ComponentPropertyUniqueId)) {
				drop[inst] = true
			}
		}
	} else if vt, ok := d.reminders[id]; ok {
		drop[vt] = true
		delete(d.reminders, id)
	} else {
		return false
	}

	kept := d.cal.Components[:0]
	for _, c := range d.cal.Components {
		if !drop[c] {
			kept = append(kept, c)
		}
	}
	d.cal.Components = kept
	return true
}

func (d *Document) detachedInstances(uid string) []*ical.VEvent {
	if uid == "" {
		return nil
	}
	var out []*ical.VEvent
	for _, c := range d.cal.Components {
		ve, ok := c.(*ical.VEvent)
		if !ok || ve.GetProperty(propRecurrenceID) == nil {
			continue
		}
		if propValue(&ve.ComponentBase, ical.ComponentPropertyUniqueId) == uid {
			out = append(out, ve)
		}
	}
	return out
}

// CompleteReminder marks the VTODO for id as completed at the given time.
func (d *Document) CompleteReminder(id string, at time.Time) bool {
	vt, ok := d.reminders[id]
	if !ok {
		return false
	}
	vt.SetProperty(ical.ComponentPropertyStatus, "COMPLETED")
	vt.SetProperty(propCompleted, at.UTC().Format("20060102T150405Z"))
	return true
}

// Serialize renders the whole calendar back to ICS text.
func (d *Document) Serialize() string {
	return d.cal.Serialize()
}

// setAlarms makes the VALARMs match ev.Alarms. An existing alarm whose
// offset is still wanted is kept with its ACTION and other properties; only
// its TRIGGER is rewritten relative to the new start. Missing offsets get a
// DISPLAY alarm, and alarms for dropped offsets are removed.
func (d *Document) setAlarms(ve *ical.VEvent, ev model.Event) {
	want := make(map[time.Duration]bool, len(ev.Alarms))
	for _, off := range ev.Alarms {
		want[off] = true
	}

	covered := make(map[time.Duration]bool, len(ev.Alarms))
	kept := ve.Components[:0]
	for _, c := range ve.Components {
		alarm, ok := c.(*ical.VAlarm)
		if !ok {
			kept = append(kept, c)
			continue
		}
		off, known := d.alarmOffsets[alarm]
		if !known || !want[off] || covered[off] {
			delete(d.alarmOffsets, alarm)
			continue
		}
		covered[off] = true
		// RELATED and VALUE parameters go with the old trigger.
		removeProps(&alarm.ComponentBase, propTrigger)
		alarm.SetProperty(propTrigger, formatDuration(off))
		kept = append(kept, alarm)
	}
	ve.Components = kept

	for _, off := range ev.Alarms {
		if covered[off] {
			continue
		}
		covered[off] = true
		alarm := &ical.VAlarm{}
		alarm.SetProperty(propAction, "DISPLAY")
		alarm.SetProperty(ical.ComponentPropertyDescription, ev.Title)
		alarm.SetProperty(propTrigger, formatDuration(off))
		ve.Components = append(ve.Components, alarm)
		d.alarmOffsets[alarm] = off
	}
}

// allDaySpan is the number of calendar days an all-day event covers. The
// duration is rounded because days around DST changes are 23 or 25 hours.
func allDaySpan(ev model.Event) int {
	days := int(math.Round(ev.Duration().Hours() / 24))
	if days < 1 {
		return 1
	}
	return days
}

// sameRRule reports whether the VEVENT's RRULE already says r. An unchanged
// rule keeps its original text, including BYDAY and similar parts the model
// does not carry.
func sameRRule(ve *ical.VEvent, r *model.Recurrence) bool {
	p := ve.GetProperty(ical.ComponentPropertyRrule)
	if p == nil || r == nil {
		return p == nil && r == nil
	}
	cur, err := parseRRule(p.Value)
	if err != nil {
		return false
	}
	return cur.Equal(*r)
}

func setOrClear(cb *ical.ComponentBase, name ical.ComponentProperty, value string) {
	if value == "" {
		removeProps(cb, name)
		return
	}
	cb.SetProperty(name, value)
}

func removeProps(cb *ical.ComponentBase, names ...ical.ComponentProperty) {
	kept := cb.Properties[:0]
	for _, p := range cb.Properties {
		drop := false
		for _, n := range names {
			if p.IANAToken == string(n) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, p)
		}
	}
	cb.Properties = kept
}
