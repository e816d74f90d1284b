// Package score converts an edit script into a normalized accuracy
// measurement. Scoring is pure and deterministic: the same script always
// yields the same [Accuracy].
package score

import "github.com/hverberg/echotype/internal/align"

// Accuracy is the per-comparison accuracy summary.
//
// Invariants: Matched + Substituted + Deleted == TotalReferenceTokens and
// Matched + Substituted + Inserted equals the submission token count.
type Accuracy struct {
	// Percentage is 100 * Matched / TotalReferenceTokens, in [0, 100].
	// Insertions never move it: they are reported but carry no reference
	// presence to score against.
	Percentage float64 `json:"percentage"`

	Matched     int `json:"matched"`
	Substituted int `json:"substituted"`
	Inserted    int `json:"inserted"`
	Deleted     int `json:"deleted"`

	// TotalReferenceTokens is the reference word count the percentage is
	// normalized against.
	TotalReferenceTokens int `json:"total_reference_tokens"`
}

// Score tallies the ops in s and derives the accuracy percentage.
//
// Empty-input conventions: an empty reference with an empty submission scores
// 100; an empty reference with a nonempty submission is all insertions and
// scores 0 (not a division error).
func Score(s align.Script) Accuracy {
	var acc Accuracy
	for _, op := range s {
		switch op.Kind {
		case align.OpMatch:
			acc.Matched++
		case align.OpSubstitute:
			acc.Substituted++
		case align.OpInsert:
			acc.Inserted++
		case align.OpDelete:
			acc.Deleted++
		}
	}
	acc.TotalReferenceTokens = acc.Matched + acc.Substituted + acc.Deleted

	switch {
	case acc.TotalReferenceTokens > 0:
		acc.Percentage = 100 * float64(acc.Matched) / float64(acc.TotalReferenceTokens)
	case acc.Inserted == 0:
		acc.Percentage = 100.0
	default:
		acc.Percentage = 0.0
	}
	return acc
}
