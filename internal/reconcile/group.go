package reconcile

import "calrecon/internal/model"

// SimilarityGroup is a set of records judged to be the same occurrence.
// Primary is the first member in input order; it is only the default copy
// source for merging, not necessarily the earliest event.
type SimilarityGroup struct {
	Primary    model.Event
	Duplicates []model.Event
}

// IsDuplicate reports whether the group holds more than one record.
func (g SimilarityGroup) IsDuplicate() bool {
	return len(g.Duplicates) > 0
}

// Members returns the primary followed by the duplicates.
func (g SimilarityGroup) Members() []model.Event {
	out := make([]model.Event, 0, len(g.Duplicates)+1)
	out = append(out, g.Primary)
	return append(out, g.Duplicates...)
}

// IDs returns the member IDs, primary first.
func (g SimilarityGroup) IDs() []string {
	out := make([]string, 0, len(g.Duplicates)+1)
	out = append(out, g.Primary.ID)
	for _, d := range g.Duplicates {
		out = append(out, d.ID)
	}
	return out
}

// Group partitions events into similarity groups in a single pass over the
// input order. Each record lands in exactly one group, singletons included.
// A later record whose ID was already seen is treated as the same record and
// skipped.
//
// Membership is decided against the group's primary only, so the relation
// does not need to be transitive.
func (c Classifier) Group(events []model.Event) []SimilarityGroup {
	processed := make(map[string]struct{}, len(events))
	groups := make([]SimilarityGroup, 0, len(events))

	for i, ev := range events {
		if _, ok := processed[ev.ID]; ok {
			continue
		}
		processed[ev.ID] = struct{}{}

		g := SimilarityGroup{Primary: ev}
		for _, other := range events[i+1:] {
			if _, ok := processed[other.ID]; ok {
				continue
			}
			if c.AreSimilar(ev, other) {
				g.Duplicates = append(g.Duplicates, other)
				processed[other.ID] = struct{}{}
			}
		}
		groups = append(groups, g)
	}

	return groups
}

// Group runs the default classifier over events.
func Group(events []model.Event) []SimilarityGroup {
	return DefaultClassifier().Group(events)
}

// Duplicates filters groups down to those that actually need merging.
func Duplicates(groups []SimilarityGroup) []SimilarityGroup {
	out := make([]SimilarityGroup, 0, len(groups))
	for _, g := range groups {
		if g.IsDuplicate() {
			out = append(out, g)
		}
	}
	return out
}
