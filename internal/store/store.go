// Package store applies reconciliation results to an event store.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	appLog "calrecon/internal/log"
	"calrecon/internal/model"
	"calrecon/internal/reconcile"
)

// ErrNotFound is returned by Delete when the store has no record for an ID.
var ErrNotFound = errors.New("store: event not found")

// Store is the write side of an event store. Save creates or replaces the
// record with ev.ID; Delete removes a record (a whole series for recurring
// events).
type Store interface {
	Save(ctx context.Context, ev model.Event) error
	Delete(ctx context.Context, id string) error
}

// Stats counts the writes Apply issued.
type Stats struct {
	Saved   int `json:"saved"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Apply translates res into store calls: each merge saves its canonical
// event and deletes the discarded ones, each move saves the survivor at its
// new time, and each expired series is deleted.
//
// A failing call does not stop the rest; all failures are joined into the
// returned error.
func Apply(ctx context.Context, st Store, res reconcile.Result) (Stats, error) {
	var (
		stats Stats
		errs  []error
	)
	note := func(err error, op, id string) {
		if err == nil {
			return
		}
		stats.Failed++
		errs = append(errs, fmt.Errorf("%s %s: %w", op, id, err))
		appLog.Error("store write failed", err, "op", op, "id", id)
	}

	survivors := make(map[string]model.Event, len(res.Survivors))
	for _, ev := range res.Survivors {
		survivors[ev.ID] = ev
	}

	for _, m := range res.Merges {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := st.Save(ctx, m.Canonical); err != nil {
			note(err, "save", m.Canonical.ID)
		} else {
			stats.Saved++
		}
		for _, id := range m.Discard {
			if err := st.Delete(ctx, id); err != nil {
				note(err, "delete", id)
				continue
			}
			stats.Deleted++
		}
	}

	for _, r := range res.Reschedules {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		switch r.Plan.Action {
		case reconcile.Move:
			ev, ok := survivors[r.ID]
			if !ok {
				note(ErrNotFound, "move", r.ID)
				continue
			}
			moved := ev.Clone()
			moved.StartAt = r.Plan.NewStart
			moved.EndAt = r.Plan.NewEnd
			if err := st.Save(ctx, moved); err != nil {
				note(err, "move", r.ID)
				continue
			}
			stats.Saved++
			appLog.Debug("event moved", "id", r.ID,
				"from", ev.StartAt.Format(time.RFC3339),
				"to", moved.StartAt.Format(time.RFC3339))

		case reconcile.DeleteExpiredSeries:
			if err := st.Delete(ctx, r.ID); err != nil {
				note(err, "delete_series", r.ID)
				continue
			}
			stats.Deleted++
		}
	}

	return stats, errors.Join(errs...)
}
