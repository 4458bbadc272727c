package reconcile

import "errors"

var (
	// ErrEmptyMergeSet is returned when a merge is requested with no records.
	ErrEmptyMergeSet = errors.New("empty merge set")
	// ErrDuplicateID is returned when two records in one batch share an ID.
	ErrDuplicateID = errors.New("duplicate event id")
)
