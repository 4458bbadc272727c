package reconcile

import (
	"testing"
	"time"

	"calrecon/internal/model"
)

var t0 = time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)

func ev(id, title string, start time.Time) model.Event {
	return model.Event{ID: id, Title: title, StartAt: start, EndAt: start.Add(time.Hour)}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"Team Meeting", "Team Meting", 1},
		{"TEAM MEETING", "team meeting", 0},
		{"kitten", "sitting", 3},
		{"Café", "Cafe", 1},
		{"sync.", "sync", 1},
		{"", "abc", 3},
	}
	for _, tt := range tests {
		if got := Distance(tt.a, tt.b); got != tt.want {
			t.Errorf("Distance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := Distance(tt.b, tt.a); got != tt.want {
			t.Errorf("Distance(%q, %q) = %d, want %d (symmetry)", tt.b, tt.a, got, tt.want)
		}
	}
}

func TestAreSimilar(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		name string
		a, b model.Event
		want bool
	}{
		{"same", ev("a", "Standup", t0), ev("b", "Standup", t0), true},
		{"typo", ev("a", "Team Meeting", t0), ev("b", "Team Meting", t0), true},
		{"three edits", ev("a", "kitten", t0), ev("b", "sitting", t0), true},
		{"four edits", ev("a", "abcd", t0), ev("b", "wxyz", t0), false},
		{"thirty minutes apart", ev("a", "Standup", t0), ev("b", "Standup", t0.Add(30*time.Minute)), true},
		{"thirty one minutes apart", ev("a", "Standup", t0), ev("b", "Standup", t0.Add(-31*time.Minute)), false},
		{"blank titles", ev("a", "", t0), ev("b", "", t0.Add(time.Minute)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.AreSimilar(tt.a, tt.b); got != tt.want {
				t.Errorf("AreSimilar = %v, want %v", got, tt.want)
			}
			if got := c.AreSimilar(tt.b, tt.a); got != tt.want {
				t.Errorf("AreSimilar reversed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStrictClassifier(t *testing.T) {
	a, b := ev("a", "kitten", t0), ev("b", "sitting", t0)
	if StrictClassifier().AreSimilar(a, b) {
		t.Error("strict classifier accepted distance 3")
	}
}
