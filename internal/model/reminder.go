package model

import "time"

// Reminder is a to-do item (VTODO) that may be turned into an event once
// it is overdue.
type Reminder struct {
	ID    string `json:"id"`
	UID   string `json:"uid,omitempty"`
	Title string `json:"title"`
	Notes string `json:"notes,omitempty"`
	// Due is nil for reminders without a due time.
	Due         *time.Time `json:"due,omitempty"`
	Completed   bool       `json:"completed"`
	CalendarRef string     `json:"calendar_ref,omitempty"`
}
