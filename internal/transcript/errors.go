package transcript

import "fmt"

// FetchErrorKind classifies why a transcript fetch failed.
type FetchErrorKind int

const (
	// KindNoTranscript means the clip exists but has no transcript in any
	// requested language. This failure is permanent for the clip.
	KindNoTranscript FetchErrorKind = iota

	// KindUnavailable means the transcript source could not be reached or
	// answered with an unexpected error. Usually transient.
	KindUnavailable

	// KindTimeout means the fetch exceeded its deadline.
	KindTimeout
)

// String returns the human-readable name of the kind.
func (k FetchErrorKind) String() string {
	switch k {
	case KindNoTranscript:
		return "no_transcript"
	case KindUnavailable:
		return "unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// FetchError is the typed failure returned when a reference transcript cannot
// be obtained. It is propagated verbatim to every caller waiting on the same
// clip; it is never downgraded to an empty transcript.
type FetchError struct {
	Kind   FetchErrorKind
	ClipID ClipID
	Err    error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcript: fetch %q (%s): %v", e.ClipID, e.Kind, e.Err)
	}
	return fmt.Sprintf("transcript: fetch %q (%s)", e.ClipID, e.Kind)
}

// Unwrap returns the underlying cause, if any.
func (e *FetchError) Unwrap() error { return e.Err }

// NewFetchError builds a [FetchError]. err may be nil when the kind alone
// describes the failure (e.g. [KindNoTranscript]).
func NewFetchError(kind FetchErrorKind, id ClipID, err error) *FetchError {
	return &FetchError{Kind: kind, ClipID: id, Err: err}
}
