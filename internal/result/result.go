// Package result merges an edit script and its accuracy score into the
// renderable report consumed by the presentation layer. Assembly is a pure
// function over its inputs.
package result

import (
	"fmt"

	"github.com/hverberg/echotype/internal/align"
	"github.com/hverberg/echotype/internal/score"
)

// Tag classifies a rendered span for highlighting.
type Tag string

const (
	// TagMatch marks a correctly typed word.
	TagMatch Tag = "match"

	// TagClose marks a substitution that was nearly right (e.g. a spelling
	// slip). Close misses still count as substitutions in the score.
	TagClose Tag = "close"

	// TagWrong marks a substitution that bears no resemblance to the
	// reference word.
	TagWrong Tag = "wrong"

	// TagMissing marks a reference word absent from the submission.
	TagMissing Tag = "missing"

	// TagExtra marks a submission word absent from the reference.
	TagExtra Tag = "extra"
)

// Span is one renderable diff unit.
type Span struct {
	// Display is the surface form to render: the submission word for
	// match/close/wrong/extra, the reference word for missing.
	Display string `json:"display"`

	// Expected carries the reference surface form for close and wrong spans
	// so the UI can show what should have been typed. Empty otherwise.
	Expected string `json:"expected,omitempty"`

	Tag Tag `json:"tag"`
}

// Report is the full comparison artifact returned to the caller.
type Report struct {
	Spans []Span         `json:"spans"`
	Score score.Accuracy `json:"score"`
}

// Assemble converts each edit op into a [Span] and attaches the score.
// classifier may be nil, in which case no substitution is tagged close.
//
// The op switch is exhaustive over the closed [align.OpKind] set; an unknown
// kind means memory corruption or an incomplete enum change and panics.
func Assemble(s align.Script, acc score.Accuracy, classifier *align.Classifier) *Report {
	spans := make([]Span, 0, len(s))
	for _, op := range s {
		switch op.Kind {
		case align.OpMatch:
			spans = append(spans, Span{Display: op.Sub.Display, Tag: TagMatch})

		case align.OpSubstitute:
			tag := TagWrong
			if classifier != nil && classifier.Close(op.Ref.Normalized, op.Sub.Normalized) {
				tag = TagClose
			}
			spans = append(spans, Span{
				Display:  op.Sub.Display,
				Expected: op.Ref.Display,
				Tag:      tag,
			})

		case align.OpDelete:
			spans = append(spans, Span{Display: op.Ref.Display, Tag: TagMissing})

		case align.OpInsert:
			spans = append(spans, Span{Display: op.Sub.Display, Tag: TagExtra})

		default:
			panic(fmt.Sprintf("result: unhandled edit op kind %d", op.Kind))
		}
	}
	return &Report{Spans: spans, Score: acc}
}
