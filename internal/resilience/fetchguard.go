package resilience

import (
	"context"
	"errors"

	"github.com/hverberg/echotype/internal/cache"
	"github.com/hverberg/echotype/internal/transcript"
)

// GuardedFetcher wraps a [cache.Fetcher] with a [CircuitBreaker]. While the
// breaker is open, fetches fail fast with a [transcript.FetchError] of kind
// [transcript.KindUnavailable] instead of reaching the transcript source.
//
// Permanent per-clip failures (kind [transcript.KindNoTranscript]) do not
// count against the breaker: a clip without captions says nothing about the
// health of the source.
type GuardedFetcher struct {
	inner   cache.Fetcher
	breaker *CircuitBreaker
}

// Compile-time interface check.
var _ cache.Fetcher = (*GuardedFetcher)(nil)

// Guard wraps fetcher with breaker.
func Guard(fetcher cache.Fetcher, breaker *CircuitBreaker) *GuardedFetcher {
	return &GuardedFetcher{inner: fetcher, breaker: breaker}
}

// Fetch implements [cache.Fetcher].
func (g *GuardedFetcher) Fetch(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error) {
	var (
		ref     *transcript.ReferenceTranscript
		permErr error
	)

	err := g.breaker.Execute(func() error {
		r, err := g.inner.Fetch(ctx, id)
		if err != nil {
			var fe *transcript.FetchError
			if errors.As(err, &fe) && fe.Kind == transcript.KindNoTranscript {
				// Deliver the permanent failure to the caller without
				// tripping the breaker.
				permErr = err
				return nil
			}
			return err
		}
		ref = r
		return nil
	})
	if errors.Is(err, ErrCircuitOpen) {
		return nil, transcript.NewFetchError(transcript.KindUnavailable, id, err)
	}
	if err != nil {
		return nil, err
	}
	if permErr != nil {
		return nil, permErr
	}
	return ref, nil
}
