package reconcile

import (
	"strings"
	"time"

	"github.com/agnivade/levenshtein"

	"calrecon/internal/model"
)

const (
	DefaultTitleThreshold = 3
	StrictTitleThreshold  = 2
	DefaultTimeThreshold  = 30 * time.Minute
)

// Classifier decides whether two events describe the same occurrence.
type Classifier struct {
	// TitleThreshold is the largest case-insensitive edit distance between
	// titles that still counts as the same title.
	TitleThreshold int
	// TimeThreshold is the largest distance between start instants.
	TimeThreshold time.Duration
}

func DefaultClassifier() Classifier {
	return Classifier{TitleThreshold: DefaultTitleThreshold, TimeThreshold: DefaultTimeThreshold}
}

func StrictClassifier() Classifier {
	return Classifier{TitleThreshold: StrictTitleThreshold, TimeThreshold: DefaultTimeThreshold}
}

// Distance is the Levenshtein distance between the lower-cased titles,
// counted in runes. No other normalization is applied.
func Distance(a, b string) int {
	return levenshtein.ComputeDistance(strings.ToLower(a), strings.ToLower(b))
}

// AreSimilar reports whether a and b have close titles and start within
// TimeThreshold of each other. Empty titles are compared like any other.
func (c Classifier) AreSimilar(a, b model.Event) bool {
	if Distance(a.Title, b.Title) > c.TitleThreshold {
		return false
	}
	d := a.StartAt.Sub(b.StartAt)
	if d < 0 {
		d = -d
	}
	return d <= c.TimeThreshold
}
