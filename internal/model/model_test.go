package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	base := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		ev      Event
		wantErr error
	}{
		{"ok", Event{ID: "a", StartAt: base, EndAt: base.Add(time.Hour)}, nil},
		{"zero length", Event{ID: "a", StartAt: base, EndAt: base}, nil},
		{"inverted", Event{ID: "a", StartAt: base.Add(time.Hour), EndAt: base}, ErrInvalidTimeRange},
		{"bad interval", Event{ID: "a", StartAt: base, EndAt: base, Recurrence: &Recurrence{Frequency: Weekly}}, ErrInvalidRecurrence},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ev.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCloneDoesNotShare(t *testing.T) {
	until := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ev := Event{
		ID:         "a",
		Alarms:     []time.Duration{-15 * time.Minute},
		Attendees:  []string{"Ann"},
		Recurrence: &Recurrence{Frequency: Weekly, Interval: 1, Until: &until},
	}

	c := ev.Clone()
	c.Alarms[0] = 0
	c.Attendees[0] = "Bob"
	c.Recurrence.Interval = 9
	*c.Recurrence.Until = until.Add(time.Hour)

	if ev.Alarms[0] != -15*time.Minute || ev.Attendees[0] != "Ann" {
		t.Fatalf("clone shares slices with original: %+v", ev)
	}
	if ev.Recurrence.Interval != 1 || !ev.Recurrence.Until.Equal(until) {
		t.Fatalf("clone shares recurrence with original: %+v", ev.Recurrence)
	}
}

func TestRecurrenceDescribeAndRRule(t *testing.T) {
	until := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	r := Recurrence{Frequency: Weekly, Interval: 2, Until: &until}

	if got, want := r.Describe(), "Weekly, interval 2, until 2025-03-01T00:00:00Z"; got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}

	s := r.RRule()
	for _, part := range []string{"FREQ=WEEKLY", "INTERVAL=2", "UNTIL=20250301T000000Z"} {
		if !strings.Contains(s, part) {
			t.Errorf("RRule() = %q, missing %q", s, part)
		}
	}

	counted := Recurrence{Frequency: Daily, Interval: 1, Count: 4}
	if got := counted.Describe(); got != "Daily, interval 1, 4 occurrences" {
		t.Errorf("Describe() = %q", got)
	}
}

func TestFrequencyText(t *testing.T) {
	for _, f := range []Frequency{Daily, Weekly, Monthly, Yearly} {
		b, err := f.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var got Frequency
		if err := got.UnmarshalText([]byte(strings.ToLower(string(b)))); err != nil {
			t.Fatal(err)
		}
		if got != f {
			t.Errorf("round trip %v -> %s -> %v", f, b, got)
		}
	}

	var f Frequency
	if err := f.UnmarshalText([]byte("HOURLY")); err == nil {
		t.Error("expected error for HOURLY")
	}
}
