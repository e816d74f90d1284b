package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hverberg/echotype/internal/cache"
	"github.com/hverberg/echotype/internal/resilience"
	"github.com/hverberg/echotype/internal/transcript"
)

func TestCircuitBreaker(t *testing.T) {
	t.Parallel()

	failing := errors.New("source down")

	t.Run("opens after consecutive failures", func(t *testing.T) {
		t.Parallel()
		cb := resilience.New(resilience.Config{Name: "test", MaxFailures: 3})

		for i := 0; i < 3; i++ {
			if err := cb.Execute(func() error { return failing }); !errors.Is(err, failing) {
				t.Fatalf("Execute: expected underlying error, got %v", err)
			}
		}
		if cb.State() != resilience.StateOpen {
			t.Fatalf("State: expected open, got %s", cb.State())
		}
		if err := cb.Execute(func() error { return nil }); !errors.Is(err, resilience.ErrCircuitOpen) {
			t.Fatalf("Execute: expected ErrCircuitOpen, got %v", err)
		}
	})

	t.Run("success resets the failure counter", func(t *testing.T) {
		t.Parallel()
		cb := resilience.New(resilience.Config{Name: "test", MaxFailures: 2})

		cb.Execute(func() error { return failing })
		cb.Execute(func() error { return nil })
		cb.Execute(func() error { return failing })

		if cb.State() != resilience.StateClosed {
			t.Fatalf("State: expected closed, got %s", cb.State())
		}
	})

	t.Run("closes after a successful probe", func(t *testing.T) {
		t.Parallel()
		cb := resilience.New(resilience.Config{
			Name:         "test",
			MaxFailures:  1,
			ResetTimeout: 10 * time.Millisecond,
		})

		cb.Execute(func() error { return failing })
		if cb.State() != resilience.StateOpen {
			t.Fatalf("State: expected open, got %s", cb.State())
		}

		time.Sleep(15 * time.Millisecond)
		if cb.State() != resilience.StateHalfOpen {
			t.Fatalf("State: expected half-open, got %s", cb.State())
		}
		if err := cb.Execute(func() error { return nil }); err != nil {
			t.Fatalf("Execute: probe failed: %v", err)
		}
		if cb.State() != resilience.StateClosed {
			t.Fatalf("State: expected closed after probe, got %s", cb.State())
		}
	})

	t.Run("failed probe re-opens", func(t *testing.T) {
		t.Parallel()
		cb := resilience.New(resilience.Config{
			Name:         "test",
			MaxFailures:  1,
			ResetTimeout: 10 * time.Millisecond,
		})

		cb.Execute(func() error { return failing })
		time.Sleep(15 * time.Millisecond)
		cb.Execute(func() error { return failing })

		if cb.State() != resilience.StateOpen {
			t.Fatalf("State: expected re-opened, got %s", cb.State())
		}
	})

	t.Run("manual reset closes", func(t *testing.T) {
		t.Parallel()
		cb := resilience.New(resilience.Config{Name: "test", MaxFailures: 1})
		cb.Execute(func() error { return failing })
		cb.Reset()
		if cb.State() != resilience.StateClosed {
			t.Fatalf("State: expected closed after reset, got %s", cb.State())
		}
	})
}

func TestGuardedFetcher(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("open breaker maps to unavailable", func(t *testing.T) {
		t.Parallel()
		inner := cache.FetcherFunc(func(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error) {
			return nil, transcript.NewFetchError(transcript.KindUnavailable, id, errors.New("down"))
		})
		cb := resilience.New(resilience.Config{Name: "fetch", MaxFailures: 1, ResetTimeout: time.Hour})
		g := resilience.Guard(inner, cb)

		if _, err := g.Fetch(ctx, "clip-1"); err == nil {
			t.Fatal("Fetch: expected error from inner fetcher")
		}

		_, err := g.Fetch(ctx, "clip-1")
		var fe *transcript.FetchError
		if !errors.As(err, &fe) || fe.Kind != transcript.KindUnavailable {
			t.Fatalf("Fetch: expected unavailable from open breaker, got %v", err)
		}
		if !errors.Is(err, resilience.ErrCircuitOpen) {
			t.Fatalf("Fetch: expected wrapped ErrCircuitOpen, got %v", err)
		}
	})

	t.Run("missing transcript does not trip the breaker", func(t *testing.T) {
		t.Parallel()
		inner := cache.FetcherFunc(func(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error) {
			return nil, transcript.NewFetchError(transcript.KindNoTranscript, id, nil)
		})
		cb := resilience.New(resilience.Config{Name: "fetch", MaxFailures: 1})
		g := resilience.Guard(inner, cb)

		for i := 0; i < 3; i++ {
			_, err := g.Fetch(ctx, "clip-2")
			var fe *transcript.FetchError
			if !errors.As(err, &fe) || fe.Kind != transcript.KindNoTranscript {
				t.Fatalf("Fetch: expected no_transcript, got %v", err)
			}
		}
		if cb.State() != resilience.StateClosed {
			t.Fatalf("State: expected closed, got %s", cb.State())
		}
	})

	t.Run("passes successful fetches through", func(t *testing.T) {
		t.Parallel()
		want := transcript.NewReference("clip-3", []transcript.TimedSegment{
			{Text: "hi", Start: 0, End: 1},
		}, time.Now())
		inner := cache.FetcherFunc(func(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error) {
			return want, nil
		})
		g := resilience.Guard(inner, resilience.New(resilience.Config{Name: "fetch"}))

		got, err := g.Fetch(ctx, "clip-3")
		if err != nil {
			t.Fatalf("Fetch: unexpected error: %v", err)
		}
		if got != want {
			t.Fatal("Fetch: expected the inner fetcher's transcript")
		}
	})
}
