package reconcile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"calrecon/internal/model"
)

const defaultNoteSeparator = "\n---\n"

// MergeConfig selects which fields are folded together when a similarity
// group collapses into one event. Start/end reconciliation is not optional.
type MergeConfig struct {
	Notes           bool
	URLs            bool
	Locations       bool
	Alarms          bool
	Attendees       bool
	RecurrenceRules bool

	// PreferredURL and PreferredLocation, when set, win over the primary's
	// values. Whatever they displace is kept as an alternate in the notes.
	PreferredURL      string
	PreferredLocation string

	// NoteSeparator joins merged notes. Empty means "\n---\n".
	NoteSeparator string
}

// DefaultMergeConfig enables every merge step.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{
		Notes:           true,
		URLs:            true,
		Locations:       true,
		Alarms:          true,
		Attendees:       true,
		RecurrenceRules: true,
		NoteSeparator:   defaultNoteSeparator,
	}
}

// Merge folds duplicates into primary and returns a new canonical event.
//
// The canonical event spans from the earliest start to the latest end in the
// group and keeps the primary's ID, title and calendar. Values that lose to
// the primary (other URLs, locations, attendee names, recurrence rules) are
// written into the notes so nothing from the discarded copies disappears.
// Inputs are never modified.
func Merge(primary model.Event, duplicates []model.Event, cfg MergeConfig) (model.Event, error) {
	if len(duplicates) == 0 {
		if isZero(primary) {
			return model.Event{}, ErrEmptyMergeSet
		}
		return primary.Clone(), nil
	}

	members := make([]model.Event, 0, len(duplicates)+1)
	members = append(members, primary)
	members = append(members, duplicates...)
	for _, m := range members {
		if err := m.Validate(); err != nil {
			return model.Event{}, fmt.Errorf("merge: %w", err)
		}
	}

	out := primary.Clone()
	for _, d := range duplicates {
		if d.StartAt.Before(out.StartAt) {
			out.StartAt = d.StartAt
		}
		if d.EndAt.After(out.EndAt) {
			out.EndAt = d.EndAt
		}
	}

	var sections []string

	notes := primary.Notes
	if cfg.Notes {
		notes = mergeNotes(members, cfg.noteSeparator())
	}
	if notes != "" {
		sections = append(sections, notes)
	}

	if cfg.URLs {
		canonical, alts := pickCanonical(collect(members, func(e model.Event) string { return e.URL }), cfg.PreferredURL)
		out.URL = canonical
		if len(alts) > 0 {
			sections = append(sections, prefixLines("Alternate URL: ", alts))
		}
	}

	if cfg.Locations {
		canonical, alts := pickCanonical(collect(members, func(e model.Event) string { return e.Location }), cfg.PreferredLocation)
		out.Location = canonical
		if len(alts) > 0 {
			sections = append(sections, prefixLines("Alternate location: ", alts))
		}
	}

	if cfg.Alarms {
		out.Alarms = unionAlarms(members)
	}

	if cfg.Attendees {
		if names := unionAttendees(members); len(names) > 0 {
			sections = append(sections, "Attendees:\n"+prefixLines("- ", names))
		}
	}

	if cfg.RecurrenceRules {
		rule, audit := mergeRecurrence(members)
		if rule != nil {
			out.Recurrence = rule
			sections = append(sections, audit)
		}
	}

	out.Notes = strings.Join(sections, "\n\n")
	return out, nil
}

// MergeGroup merges a similarity group.
func MergeGroup(g SimilarityGroup, cfg MergeConfig) (model.Event, error) {
	return Merge(g.Primary, g.Duplicates, cfg)
}

// MergeAll treats the first event as primary. An empty slice is an error.
func MergeAll(events []model.Event, cfg MergeConfig) (model.Event, error) {
	if len(events) == 0 {
		return model.Event{}, ErrEmptyMergeSet
	}
	return Merge(events[0], events[1:], cfg)
}

func (c MergeConfig) noteSeparator() string {
	if c.NoteSeparator == "" {
		return defaultNoteSeparator
	}
	return c.NoteSeparator
}

func isZero(e model.Event) bool {
	return e.ID == "" && e.UID == "" && e.Title == "" &&
		e.StartAt.IsZero() && e.EndAt.IsZero() &&
		e.Notes == "" && e.Location == "" && e.URL == "" &&
		len(e.Alarms) == 0 && len(e.Attendees) == 0 && e.Recurrence == nil
}

// mergeNotes joins the non-empty notes in group order. Identical copies of
// the same note are kept once.
func mergeNotes(members []model.Event, sep string) string {
	seen := make(map[string]struct{}, len(members))
	parts := make([]string, 0, len(members))
	for _, m := range members {
		if m.Notes == "" {
			continue
		}
		if _, ok := seen[m.Notes]; ok {
			continue
		}
		seen[m.Notes] = struct{}{}
		parts = append(parts, m.Notes)
	}
	return strings.Join(parts, sep)
}

func collect(members []model.Event, field func(model.Event) string) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, field(m))
	}
	return out
}

// pickCanonical chooses preferred when set, otherwise the first non-empty
// value (the primary's, when it has one). The other distinct non-empty
// values are returned in encounter order.
func pickCanonical(values []string, preferred string) (string, []string) {
	canonical := preferred
	if canonical == "" {
		for _, v := range values {
			if v != "" {
				canonical = v
				break
			}
		}
	}

	seen := map[string]struct{}{canonical: {}}
	var alts []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		alts = append(alts, v)
	}
	return canonical, alts
}

func unionAlarms(members []model.Event) []time.Duration {
	var out []time.Duration
	seen := make(map[time.Duration]struct{})
	for _, m := range members {
		for _, a := range m.Alarms {
			if _, ok := seen[a]; ok {
				continue
			}
			seen[a] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

func unionAttendees(members []model.Event) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range members {
		for _, name := range m.Attendees {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// mergeRecurrence keeps the rule with the smallest interval. On a tie
// between different rules the first one in group order wins and the tie is
// noted in the audit block.
func mergeRecurrence(members []model.Event) (*model.Recurrence, string) {
	var (
		best    *model.Recurrence
		bestID  string
		tie     bool
		entries []string
	)
	for _, m := range members {
		r := m.Recurrence
		if r == nil {
			continue
		}
		entries = append(entries, fmt.Sprintf("- %s: %s", m.ID, r.Describe()))
		switch {
		case best == nil || r.Interval < best.Interval:
			best, bestID, tie = r, m.ID, false
		case r.Interval == best.Interval && !r.Equal(*best):
			tie = true
		}
	}
	if best == nil {
		return nil, ""
	}

	audit := "Recurrence rules:\n" + strings.Join(entries, "\n")
	if tie {
		audit += fmt.Sprintf("\nAmbiguous recurrence: kept rule of %s (interval %d)", bestID, best.Interval)
	}

	kept := model.Event{Recurrence: best}.Clone()
	return kept.Recurrence, audit
}

func prefixLines(prefix string, values []string) string {
	lines := make([]string, len(values))
	for i, v := range values {
		lines[i] = prefix + v
	}
	return strings.Join(lines, "\n")
}
