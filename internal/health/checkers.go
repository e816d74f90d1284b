package health

import (
	"context"
	"fmt"

	"github.com/hverberg/echotype/internal/resilience"
)

// Pinger is the subset of a database pool used by the [Database] checker.
// [github.com/jackc/pgx/v5/pgxpool.Pool] satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a [Checker] that pings the transcript store.
func Database(p Pinger) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
			return nil
		},
	}
}

// TranscriptSource returns a [Checker] that reports the circuit breaker
// guarding the upstream transcript source. The check fails while the breaker
// is open, which flips readiness until the source recovers.
func TranscriptSource(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: "transcript_source",
		Check: func(context.Context) error {
			if state := cb.State(); state == resilience.StateOpen {
				return fmt.Errorf("circuit breaker is %s", state)
			}
			return nil
		},
	}
}
