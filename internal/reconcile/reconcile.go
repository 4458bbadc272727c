package reconcile

import (
	"fmt"
	"time"

	appLog "calrecon/internal/log"
	"calrecon/internal/model"
)

// Options configures a reconciliation pass. The zero value uses the default
// classifier, every merge step and Monday-based weeks.
type Options struct {
	Classifier  *Classifier
	Merge       *MergeConfig
	Rescheduler Rescheduler
}

func (o Options) classifier() Classifier {
	if o.Classifier == nil {
		return DefaultClassifier()
	}
	return *o.Classifier
}

func (o Options) mergeConfig() MergeConfig {
	if o.Merge == nil {
		return DefaultMergeConfig()
	}
	return *o.Merge
}

// MergePlan replaces a group with Canonical and removes the Discard IDs.
// Canonical keeps the primary's ID, which is never listed in Discard.
type MergePlan struct {
	Canonical model.Event `json:"canonical"`
	Discard   []string    `json:"discard"`
}

// RescheduleEntry pairs an event ID with a plan other than NoAction.
type RescheduleEntry struct {
	ID   string         `json:"id"`
	Plan ReschedulePlan `json:"plan"`
}

// Result is everything a caller needs to apply to its store.
type Result struct {
	Merges      []MergePlan       `json:"merges"`
	Reschedules []RescheduleEntry `json:"reschedules"`
	// Survivors are the records left after merging, canonical events in
	// place of their groups, in input order of the group primaries.
	Survivors []model.Event `json:"-"`
}

// Reconcile groups and merges duplicates, then runs the rescheduler over
// every surviving event. Grouping sees the original start times; a
// rescheduled time never feeds back into duplicate detection.
//
// Every record is validated first, and an invalid or repeated ID fails the
// whole call before any work is done.
func Reconcile(events []model.Event, now time.Time, opts Options) (Result, error) {
	seen := make(map[string]struct{}, len(events))
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return Result{}, err
		}
		if _, ok := seen[ev.ID]; ok {
			return Result{}, fmt.Errorf("reconcile: %q: %w", ev.ID, ErrDuplicateID)
		}
		seen[ev.ID] = struct{}{}
	}

	cfg := opts.mergeConfig()
	groups := opts.classifier().Group(events)

	res := Result{
		Merges:      make([]MergePlan, 0),
		Reschedules: make([]RescheduleEntry, 0),
		Survivors:   make([]model.Event, 0, len(groups)),
	}

	for _, g := range groups {
		if !g.IsDuplicate() {
			res.Survivors = append(res.Survivors, g.Primary)
			continue
		}

		canonical, err := MergeGroup(g, cfg)
		if err != nil {
			return Result{}, err
		}

		ids := g.IDs()
		res.Merges = append(res.Merges, MergePlan{Canonical: canonical, Discard: ids[1:]})
		res.Survivors = append(res.Survivors, canonical)
	}

	for _, ev := range res.Survivors {
		plan := opts.Rescheduler.Reschedule(ev, now)
		if plan.Action == NoAction {
			continue
		}
		res.Reschedules = append(res.Reschedules, RescheduleEntry{ID: ev.ID, Plan: plan})
	}

	appLog.Debug("reconcile completed",
		"events", len(events),
		"groups", len(groups),
		"merges", len(res.Merges),
		"reschedules", len(res.Reschedules),
	)

	return res, nil
}
