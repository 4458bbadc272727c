package runner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"calrecon/internal/config"
	"calrecon/internal/ics"
	"calrecon/internal/reconcile"
)

const calendar = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//calrecon//test//EN
BEGIN:VEVENT
UID:a
DTSTAMP:20250301T000000Z
SUMMARY:Standup
DTSTART:20250306T120000Z
DTEND:20250306T130000Z
END:VEVENT
BEGIN:VEVENT
UID:b
DTSTAMP:20250301T000000Z
SUMMARY:Standup!
DTSTART:20250306T121000Z
DTEND:20250306T131000Z
END:VEVENT
BEGIN:VEVENT
UID:c
DTSTAMP:20250301T000000Z
SUMMARY:Dentist
DTSTART:20250224T150000Z
DTEND:20250224T160000Z
END:VEVENT
BEGIN:VEVENT
UID:blank
DTSTAMP:20250301T000000Z
DTSTART:20250220T150000Z
DTEND:20250220T160000Z
END:VEVENT
BEGIN:VTODO
UID:t1
DTSTAMP:20250301T000000Z
SUMMARY:Pay rent
DUE:20250301T090000Z
END:VTODO
END:VCALENDAR
`

var now = time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "work.ics")
	if err := os.WriteFile(path, []byte(strings.ReplaceAll(calendar, "\n", "\r\n")), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.OutputDir = filepath.Join(dir, "out")
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.Sources = []config.SourceConfig{
		{ID: "work", Path: path},
		{ID: "missing", Path: filepath.Join(dir, "nope.ics")},
	}
	return cfg
}

func TestRunDryRun(t *testing.T) {
	cfg := setup(t)
	rep, err := New(cfg, nil).Run(context.Background(), now, true)
	if err != nil {
		t.Fatal(err)
	}

	if len(rep.Errors) != 1 || !strings.Contains(rep.Errors[0], "missing") {
		t.Errorf("errors = %v", rep.Errors)
	}
	if len(rep.Sources) != 1 {
		t.Fatalf("sources = %+v", rep.Sources)
	}
	sr := rep.Sources[0]
	if sr.Events != 4 || sr.SkippedBlank != 1 || sr.Converted != 1 {
		t.Errorf("counts = %+v", sr)
	}
	if len(sr.Merges) != 1 || sr.Merges[0].Canonical.ID != "a" || len(sr.Merges[0].Discard) != 1 {
		t.Errorf("merges = %+v", sr.Merges)
	}
	if len(sr.Reschedules) != 2 {
		t.Errorf("reschedules = %+v", sr.Reschedules)
	}
	for _, r := range sr.Reschedules {
		if r.Plan.Action != reconcile.Move {
			t.Errorf("plan %s = %s", r.ID, r.Plan.Action)
		}
	}
	if sr.Stats != nil || sr.Output != "" {
		t.Error("dry run must not write")
	}
	if _, err := os.Stat(cfg.OutputDir); !os.IsNotExist(err) {
		t.Errorf("output dir should not exist, stat err = %v", err)
	}

	if _, err := json.Marshal(rep); err != nil {
		t.Errorf("report should marshal: %v", err)
	}
}

func TestRunApply(t *testing.T) {
	cfg := setup(t)
	rep, err := New(cfg, nil).Run(context.Background(), now, false)
	if err != nil {
		t.Fatal(err)
	}
	sr := rep.Sources[0]
	if sr.Error != "" {
		t.Fatalf("source error: %s", sr.Error)
	}
	if sr.Stats == nil || sr.Stats.Deleted != 1 || sr.Stats.Failed != 0 {
		t.Errorf("stats = %+v", sr.Stats)
	}

	data, err := os.ReadFile(sr.Output)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := ics.Parse(ics.Source{ID: "work"}, data, time.UTC)
	if err != nil {
		t.Fatal(err)
	}

	starts := map[string]time.Time{}
	for _, ev := range doc.Events {
		starts[ev.Title] = ev.StartAt
	}
	if _, ok := starts["Standup!"]; ok {
		t.Error("discarded duplicate still present")
	}
	if got, want := starts["Dentist"], time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("dentist = %s, want %s", got, want)
	}
	if got, want := starts["Pay rent"], time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("converted reminder = %s, want %s", got, want)
	}
	if len(doc.Reminders) != 1 || !doc.Reminders[0].Completed {
		t.Errorf("reminder should be completed: %+v", doc.Reminders)
	}
}

func TestRunKeepsBlankTitlesWhenConfigured(t *testing.T) {
	cfg := setup(t)
	cfg.Reconcile.SkipBlankTitles = false
	cfg.Reconcile.ConvertReminders = false

	rep, err := New(cfg, nil).Run(context.Background(), now, true)
	if err != nil {
		t.Fatal(err)
	}
	sr := rep.Sources[0]
	if sr.SkippedBlank != 0 || sr.Converted != 0 {
		t.Errorf("counts = %+v", sr)
	}
	// Dentist plus the untitled event.
	if len(sr.Reschedules) != 2 {
		t.Errorf("reschedules = %+v", sr.Reschedules)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.WeekStart = "sunday"
	cfg.Reconcile.TitleThreshold = 2
	cfg.Reconcile.Merge.URLs = false
	cfg.Reconcile.Merge.PreferredLocation = "HQ"

	opts := Options(cfg)
	if opts.Classifier.TitleThreshold != 2 || opts.Classifier.TimeThreshold != 30*time.Minute {
		t.Errorf("classifier = %+v", opts.Classifier)
	}
	if opts.Merge.URLs || !opts.Merge.Notes || opts.Merge.PreferredLocation != "HQ" {
		t.Errorf("merge = %+v", opts.Merge)
	}
	if opts.Rescheduler.WeekStart != reconcile.WeekStartSunday {
		t.Errorf("week start = %v", opts.Rescheduler.WeekStart)
	}
}

func TestRunCancelled(t *testing.T) {
	cfg := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(cfg, nil).Run(ctx, now, true); err == nil {
		t.Fatal("expected context error")
	}
}
