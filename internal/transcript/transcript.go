// Package transcript defines the reference-transcript data model shared by
// the cache, fetcher, and scoring pipeline.
//
// A [ReferenceTranscript] is immutable once constructed: the cache hands the
// same value to every concurrent caller and never edits it in place.
// Invalidation replaces the whole entry; it never mutates segments.
package transcript

import (
	"regexp"
	"strings"
	"time"
)

// ClipID is the opaque, stable identifier of a piece of media. It is the
// cache key and is never interpreted beyond equality.
type ClipID string

// TimedSegment is one ordered piece of a reference transcript with its
// position in the source media, in seconds.
type TimedSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// ReferenceTranscript is the fetched reference for a clip. Segment order is
// significant and fixed at construction time.
type ReferenceTranscript struct {
	ClipID    ClipID         `json:"clip_id"`
	Segments  []TimedSegment `json:"segments"`
	FetchedAt time.Time      `json:"fetched_at"`
}

// cuePattern matches segments that consist solely of a bracketed sound cue,
// e.g. "[music]" or " [applause] ". Such segments carry no dictatable words.
var cuePattern = regexp.MustCompile(`^\s*\[[^\]]+\]\s*$`)

// NewReference builds a [ReferenceTranscript] from raw fetched segments.
// Sound-cue-only segments are dropped; the remaining segments keep their
// original order. The input slice is copied, so the caller may reuse it.
func NewReference(id ClipID, segments []TimedSegment, fetchedAt time.Time) *ReferenceTranscript {
	kept := make([]TimedSegment, 0, len(segments))
	for _, s := range segments {
		if IsSoundCue(s.Text) {
			continue
		}
		kept = append(kept, s)
	}
	return &ReferenceTranscript{
		ClipID:    id,
		Segments:  kept,
		FetchedAt: fetchedAt,
	}
}

// IsSoundCue reports whether text is a bracketed sound indication such as
// "[music]" rather than spoken content.
func IsSoundCue(text string) bool {
	return cuePattern.MatchString(text)
}

// Text joins all segment texts into a single space-separated string, ready
// for tokenization.
func (r *ReferenceTranscript) Text() string {
	if len(r.Segments) == 0 {
		return ""
	}
	parts := make([]string, 0, len(r.Segments))
	for _, s := range r.Segments {
		t := strings.TrimSpace(s.Text)
		if t == "" {
			continue
		}
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}
