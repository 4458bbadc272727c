package reconcile

import (
	"errors"
	"testing"
	"time"

	"calrecon/internal/model"
)

func TestReconcile(t *testing.T) {
	stale := time.Date(2025, 2, 23, 15, 30, 0, 0, time.UTC)
	ended := now.AddDate(0, 0, -40)

	events := []model.Event{
		// Duplicated stale meeting: merged, then the canonical is moved.
		{ID: "m1", Title: "Team Meeting", StartAt: stale, EndAt: stale.Add(time.Hour), URL: "https://a"},
		{ID: "m2", Title: "Team Meting", StartAt: stale.Add(10 * time.Minute), EndAt: stale.Add(90 * time.Minute), URL: "https://b"},
		// Future singleton: untouched.
		{ID: "f", Title: "Dentist", StartAt: now.AddDate(0, 0, 2), EndAt: now.AddDate(0, 0, 2).Add(time.Hour)},
		// Exhausted series: deleted.
		{ID: "r", Title: "Old class", StartAt: now.AddDate(0, -6, 0), EndAt: now.AddDate(0, -6, 0).Add(time.Hour),
			Recurrence: &model.Recurrence{Frequency: model.Weekly, Interval: 1, Until: &ended}},
	}

	res, err := Reconcile(events, now, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Merges) != 1 {
		t.Fatalf("merges = %d, want 1", len(res.Merges))
	}
	m := res.Merges[0]
	if m.Canonical.ID != "m1" || len(m.Discard) != 1 || m.Discard[0] != "m2" {
		t.Fatalf("merge plan = %+v", m)
	}
	if !m.Canonical.EndAt.Equal(stale.Add(90 * time.Minute)) {
		t.Errorf("canonical end = %s", m.Canonical.EndAt)
	}

	if len(res.Survivors) != 3 {
		t.Fatalf("survivors = %d, want 3", len(res.Survivors))
	}

	plans := map[string]ReschedulePlan{}
	for _, r := range res.Reschedules {
		plans[r.ID] = r.Plan
	}
	if len(plans) != 2 {
		t.Fatalf("reschedules = %+v", res.Reschedules)
	}

	moved := plans["m1"]
	if moved.Action != Move {
		t.Fatalf("m1 plan = %+v", moved)
	}
	wantStart := time.Date(2025, 3, 9, 15, 30, 0, 0, time.UTC)
	if !moved.NewStart.Equal(wantStart) || moved.NewEnd.Sub(moved.NewStart) != 90*time.Minute {
		t.Errorf("m1 moved to %s-%s", moved.NewStart, moved.NewEnd)
	}
	if plans["r"].Action != DeleteExpiredSeries {
		t.Errorf("r plan = %+v", plans["r"])
	}
	if _, ok := plans["f"]; ok {
		t.Error("future event should not be rescheduled")
	}
}

func TestReconcileGroupsOnOriginalTimes(t *testing.T) {
	// Two copies of the same stale event in different weeks would land on
	// the same slot after rescheduling, but must not be merged.
	a := time.Date(2025, 2, 17, 9, 0, 0, 0, time.UTC)
	b := a.AddDate(0, 0, 7)
	res, err := Reconcile([]model.Event{
		{ID: "a", Title: "Review", StartAt: a, EndAt: a.Add(time.Hour)},
		{ID: "b", Title: "Review", StartAt: b, EndAt: b.Add(time.Hour)},
	}, now, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Merges) != 0 || len(res.Reschedules) != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestReconcileOptions(t *testing.T) {
	strict := StrictClassifier()
	cfg := DefaultMergeConfig()
	cfg.URLs = false

	a := model.Event{ID: "a", Title: "kitten", StartAt: now.Add(time.Hour), EndAt: now.Add(2 * time.Hour)}
	b := model.Event{ID: "b", Title: "sitting", StartAt: now.Add(time.Hour), EndAt: now.Add(2 * time.Hour)}

	res, err := Reconcile([]model.Event{a, b}, now, Options{Classifier: &strict, Merge: &cfg})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Merges) != 0 {
		t.Fatalf("strict classifier should not merge distance-3 titles: %+v", res.Merges)
	}
}

func TestReconcileRejectsBadInput(t *testing.T) {
	_, err := Reconcile([]model.Event{
		{ID: "a", StartAt: now, EndAt: now.Add(-time.Minute)},
	}, now, Options{})
	if !errors.Is(err, model.ErrInvalidTimeRange) {
		t.Fatalf("got %v, want ErrInvalidTimeRange", err)
	}

	_, err = Reconcile([]model.Event{
		{ID: "a", StartAt: now, EndAt: now},
		{ID: "a", StartAt: now, EndAt: now},
	}, now, Options{})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("got %v, want ErrDuplicateID", err)
	}
}

func TestReconcileEmpty(t *testing.T) {
	res, err := Reconcile(nil, now, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Merges) != 0 || len(res.Reschedules) != 0 || len(res.Survivors) != 0 {
		t.Fatalf("result = %+v", res)
	}
}
