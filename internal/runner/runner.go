// Package runner performs one reconciliation pass over every configured
// calendar source.
package runner

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"calrecon/internal/config"
	"calrecon/internal/ics"
	appLog "calrecon/internal/log"
	"calrecon/internal/model"
	"calrecon/internal/reconcile"
	"calrecon/internal/reminder"
	"calrecon/internal/store"
)

// SourceReport describes what a pass did (or would do) to one source.
type SourceReport struct {
	ID     string `json:"id"`
	Output string `json:"output,omitempty"`

	Events       int  `json:"events"`
	Reminders    int  `json:"reminders"`
	Converted    int  `json:"converted"`
	SkippedBlank int  `json:"skipped_blank"`
	FromCache    bool `json:"from_cache"`

	Merges      []reconcile.MergePlan       `json:"merges"`
	Reschedules []reconcile.RescheduleEntry `json:"reschedules"`
	Stats       *store.Stats                `json:"stats,omitempty"`

	Error string `json:"error,omitempty"`
}

// Report is the outcome of one pass.
type Report struct {
	Now     time.Time      `json:"now"`
	DryRun  bool           `json:"dry_run"`
	Sources []SourceReport `json:"sources"`
	Errors  []string       `json:"errors,omitempty"`
}

// Runner owns the fetcher (and its cache) across passes. Passes never
// overlap: Run holds a lock for its whole duration.
type Runner struct {
	cfg     *config.Config
	fetcher *ics.Fetcher

	mu sync.Mutex
}

// New creates a runner for cfg. A nil fetcher uses one caching under
// cfg.CacheDir.
func New(cfg *config.Config, fetcher *ics.Fetcher) *Runner {
	if fetcher == nil {
		fetcher = ics.NewFetcher(cfg.CacheDir, nil)
	}
	return &Runner{cfg: cfg, fetcher: fetcher}
}

// Options builds reconcile options from the configuration.
func Options(cfg *config.Config) reconcile.Options {
	c := reconcile.Classifier{
		TitleThreshold: cfg.Reconcile.TitleThreshold,
		TimeThreshold:  cfg.Reconcile.TimeThreshold,
	}
	m := reconcile.DefaultMergeConfig()
	mc := cfg.Reconcile.Merge
	m.Notes = mc.Notes
	m.URLs = mc.URLs
	m.Locations = mc.Locations
	m.Alarms = mc.Alarms
	m.Attendees = mc.Attendees
	m.RecurrenceRules = mc.Recurrence
	m.PreferredURL = mc.PreferredURL
	m.PreferredLocation = mc.PreferredLocation

	return reconcile.Options{
		Classifier:  &c,
		Merge:       &m,
		Rescheduler: reconcile.Rescheduler{WeekStart: reconcile.ParseWeekStart(cfg.WeekStart)},
	}
}

// Run fetches every source and reconciles each calendar on its own. With
// dryRun the plans are reported but nothing is written. A failing source is
// reported and skipped; only context cancellation fails the whole pass.
func (r *Runner) Run(ctx context.Context, now time.Time, dryRun bool) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	report := Report{Now: now, DryRun: dryRun, Sources: make([]SourceReport, 0, len(r.cfg.Sources))}

	sources := make([]ics.Source, 0, len(r.cfg.Sources))
	for _, s := range r.cfg.Sources {
		sources = append(sources, ics.Source{ID: s.ID, Name: s.Name, URL: s.URL, Path: s.Path})
	}

	results, fetchErrs := r.fetcher.FetchAll(ctx, sources)
	if err := ctx.Err(); err != nil {
		return report, err
	}
	for _, err := range fetchErrs {
		report.Errors = append(report.Errors, err.Error())
	}

	opts := Options(r.cfg)
	for _, res := range results {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		sr, err := r.runSource(ctx, res, now, dryRun, opts)
		if err != nil {
			sr.Error = err.Error()
			report.Errors = append(report.Errors, fmt.Sprintf("source %s: %v", res.Source.ID, err))
			appLog.Error("source reconcile failed", err, "id", res.Source.ID)
		}
		report.Sources = append(report.Sources, sr)
	}

	appLog.Info("reconcile pass completed",
		"sources", len(report.Sources),
		"errors", len(report.Errors),
		"dry_run", dryRun,
		"took", time.Since(start).String(),
	)
	return report, nil
}

func (r *Runner) runSource(ctx context.Context, res ics.FetchResult, now time.Time, dryRun bool, opts reconcile.Options) (SourceReport, error) {
	sr := SourceReport{
		ID:          res.Source.ID,
		FromCache:   res.FromCache,
		Merges:      []reconcile.MergePlan{},
		Reschedules: []reconcile.RescheduleEntry{},
	}

	doc, err := ics.Parse(res.Source, res.Body, r.cfg.Location())
	if err != nil {
		return sr, err
	}
	sr.Events = len(doc.Events)
	sr.Reminders = len(doc.Reminders)

	var conversions []reminder.Conversion
	if r.cfg.Reconcile.ConvertReminders {
		conversions = reminder.Convert(doc.Reminders, now)
	}
	sr.Converted = len(conversions)

	batch := make([]model.Event, 0, len(doc.Events)+len(conversions))
	for _, ev := range doc.Events {
		if r.cfg.Reconcile.SkipBlankTitles && strings.TrimSpace(ev.Title) == "" {
			sr.SkippedBlank++
			continue
		}
		batch = append(batch, ev)
	}
	for _, c := range conversions {
		batch = append(batch, c.Event)
	}

	result, err := reconcile.Reconcile(batch, now, opts)
	if err != nil {
		return sr, err
	}
	sr.Merges = result.Merges
	sr.Reschedules = result.Reschedules

	if dryRun {
		return sr, nil
	}

	st := store.NewICSFile(doc, r.cfg.OutputDir, now)
	sr.Output = st.Path

	for _, c := range conversions {
		if err := st.Save(ctx, c.Event); err != nil {
			return sr, err
		}
		if err := st.CompleteReminder(ctx, c.Reminder.ID); err != nil {
			return sr, err
		}
	}

	stats, applyErr := store.Apply(ctx, st, result)
	sr.Stats = &stats
	if err := st.Flush(ctx); err != nil {
		return sr, err
	}
	return sr, applyErr
}
