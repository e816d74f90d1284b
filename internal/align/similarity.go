package align

import "github.com/antzucaro/matchr"

// defaultCloseThreshold is the Jaro-Winkler similarity at or above which a
// substitution counts as a close miss rather than a plainly wrong word.
const defaultCloseThreshold = 0.75

// Classifier decides whether a substituted word was "close" to the reference
// word. Closeness is purely a display concern: the scorer never counts close
// misses as matches. The Classifier is read-only after construction and safe
// for concurrent use.
type Classifier struct {
	threshold float64
}

// NewClassifier returns a [Classifier] using threshold as the minimum
// Jaro-Winkler similarity for a close miss. Pass a non-positive threshold to
// use the default of 0.75.
func NewClassifier(threshold float64) *Classifier {
	if threshold <= 0 {
		threshold = defaultCloseThreshold
	}
	return &Classifier{threshold: threshold}
}

// Close reports whether the normalized submission word is a near miss of the
// normalized reference word. Empty strings never qualify.
func (c *Classifier) Close(reference, submission string) bool {
	if reference == "" || submission == "" {
		return false
	}
	return matchr.JaroWinkler(reference, submission, false) >= c.threshold
}
