// Package cache owns the reference transcripts: it maps a clip identifier to
// its previously fetched transcript and guarantees that at most one fetch is
// ever in flight per clip, no matter how many callers ask concurrently.
//
// Entries are immutable once committed. Invalidation removes the entry and
// bumps a per-clip generation counter; a fetch that was already in flight
// when the invalidation happened still completes and releases its waiters,
// but its result is only committed if no newer generation exists
// (last-writer-wins, so a stale fetch can never clobber a fresh one).
//
// Retention is bounded by a TTL enforced lazily on access: expired entries
// are treated as misses and re-fetched. Failed fetches are cached for a
// shorter error TTL so a broken source is not hammered, and the cached error
// is surfaced verbatim to every caller until it expires.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hverberg/echotype/internal/observe"
	"github.com/hverberg/echotype/internal/transcript"
)

// ErrNotPersisted is returned by [Store.Load] when no row exists for the clip.
var ErrNotPersisted = errors.New("cache: transcript not persisted")

// Fetcher obtains a reference transcript from the external transcript source.
// Implementations must be safe for concurrent use and should honour ctx
// cancellation; failures should be reported as [*transcript.FetchError].
type Fetcher interface {
	Fetch(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error)
}

// FetcherFunc adapts a function to the [Fetcher] interface.
type FetcherFunc func(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error)

// Fetch implements [Fetcher].
func (f FetcherFunc) Fetch(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error) {
	return f(ctx, id)
}

// Store is an optional persistence layer consulted on memory misses and
// written through on successful fetches. No cross-process locking is assumed;
// in-memory coordination stays authoritative within this process.
type Store interface {
	// Load returns the persisted transcript for id, or [ErrNotPersisted].
	Load(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error)

	// Save upserts the transcript keyed by its clip id.
	Save(ctx context.Context, ref *transcript.ReferenceTranscript) error

	// Delete removes the persisted transcript. Deleting an absent row is not
	// an error.
	Delete(ctx context.Context, id transcript.ClipID) error
}

// entry is a committed cache slot: exactly one of ref and err is set.
// Entries are never modified after commit, only replaced wholesale.
type entry struct {
	ref      *transcript.ReferenceTranscript
	err      error
	storedAt time.Time
}

// Option is a functional option for configuring a [Cache].
type Option func(*Cache)

// WithTTL sets how long a successful entry stays valid. Expired entries are
// evicted lazily on next access. A non-positive value disables expiry.
// Default: 1 hour.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) { c.ttl = d }
}

// WithErrorTTL sets how long a failed fetch is cached before a retry is
// allowed. Default: 15 seconds.
func WithErrorTTL(d time.Duration) Option {
	return func(c *Cache) { c.errTTL = d }
}

// WithFetchTimeout bounds a single fetch call. The timeout is applied to a
// context detached from the requesting caller, so an abandoning caller never
// cancels a fetch other waiters still need. Default: 30 seconds.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.fetchTimeout = d }
}

// WithStore attaches a persistence layer. Nil (the default) keeps the cache
// purely in-memory.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithMetrics attaches observability instruments. Nil is valid.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithClock overrides the time source. Tests use this to exercise TTL expiry
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Cache is the transcript cache. It is safe for concurrent use; unrelated
// clip ids never contend beyond a short map access.
type Cache struct {
	fetcher      Fetcher
	store        Store
	ttl          time.Duration
	errTTL       time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	metrics      *observe.Metrics

	group singleflight.Group

	mu      sync.Mutex
	entries map[transcript.ClipID]*entry
	gens    map[transcript.ClipID]uint64
}

// New creates a [Cache] backed by fetcher.
func New(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:      fetcher,
		ttl:          time.Hour,
		errTTL:       15 * time.Second,
		fetchTimeout: 30 * time.Second,
		now:          time.Now,
		entries:      make(map[transcript.ClipID]*entry),
		gens:         make(map[transcript.ClipID]uint64),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetOrFetch returns the reference transcript for id, fetching it if no
// valid entry exists. All callers that arrive while a fetch is in flight
// suspend and receive the identical outcome — transcript or error — of that
// single fetch. A caller whose ctx is cancelled while waiting returns early
// with ctx.Err(); the shared fetch itself keeps running for the remaining
// waiters.
func (c *Cache) GetOrFetch(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error) {
	gen, ref, err, ok := c.lookup(ctx, id)
	if ok {
		c.metrics.CacheHit(ctx)
		return ref, err
	}
	c.metrics.CacheMiss(ctx)

	c.metrics.AddWaiter(ctx, 1)
	defer c.metrics.AddWaiter(ctx, -1)

	ch := c.group.DoChan(string(id), func() (any, error) {
		return c.resolve(ctx, id, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*transcript.ReferenceTranscript), nil
	}
}

// Invalidate removes the entry for id so the next access starts a fresh
// fetch cycle. A fetch already in flight is not interrupted; the generation
// bump merely prevents its result from being committed over newer data. When
// a persistence layer is attached its row is deleted as well.
func (c *Cache) Invalidate(ctx context.Context, id transcript.ClipID) error {
	c.mu.Lock()
	c.gens[id]++
	delete(c.entries, id)
	c.mu.Unlock()

	// Detach in-flight waiters from the key so a new request after this
	// point starts its own flight instead of joining the stale one.
	c.group.Forget(string(id))

	if c.store != nil {
		if err := c.store.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// lookup checks for a committed, unexpired entry. It returns the current
// generation for id and, when ok is true, the entry's outcome. Expired
// entries are deleted as a side effect.
func (c *Cache) lookup(ctx context.Context, id transcript.ClipID) (gen uint64, ref *transcript.ReferenceTranscript, err error, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen = c.gens[id]
	e, exists := c.entries[id]
	if !exists {
		return gen, nil, nil, false
	}

	age := c.now().Sub(e.storedAt)
	if e.err != nil {
		if age < c.errTTL {
			return gen, nil, e.err, true
		}
		delete(c.entries, id)
		return gen, nil, nil, false
	}
	if c.ttl > 0 && age >= c.ttl {
		delete(c.entries, id)
		c.metrics.CacheEviction(ctx)
		return gen, nil, nil, false
	}
	return gen, e.ref, nil, true
}

// resolve is the single-flight body: consult the persisted layer, then the
// fetcher, and commit the outcome under the generation captured at miss time.
func (c *Cache) resolve(ctx context.Context, id transcript.ClipID, gen uint64) (*transcript.ReferenceTranscript, error) {
	// Re-check under the flight: a previous flight may have committed while
	// this caller was between its miss and winning the key.
	if _, ref, err, ok := c.lookup(ctx, id); ok {
		return ref, err
	}

	// The fetch context is detached from the winning caller so that caller
	// abandonment never cancels a result other waiters are suspended on.
	fctx := context.WithoutCancel(ctx)
	if c.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(fctx, c.fetchTimeout)
		defer cancel()
	}

	if c.store != nil {
		ref, err := c.store.Load(fctx, id)
		switch {
		case err == nil:
			if c.ttl <= 0 || c.now().Sub(ref.FetchedAt) < c.ttl {
				c.commit(id, gen, ref, nil)
				return ref, nil
			}
			// Persisted copy is stale; fall through to a fresh fetch.
		case !errors.Is(err, ErrNotPersisted):
			slog.Warn("cache: persisted load failed, falling back to fetch",
				"clip_id", id, "err", err)
		}
	}

	start := time.Now()
	ref, err := c.fetcher.Fetch(fctx, id)
	c.metrics.RecordFetch(ctx, time.Since(start).Seconds(), err == nil)
	if err != nil {
		c.commit(id, gen, nil, err)
		return nil, err
	}

	c.commit(id, gen, ref, nil)

	if c.store != nil {
		if serr := c.store.Save(fctx, ref); serr != nil {
			slog.Warn("cache: persist failed", "clip_id", id, "err", serr)
		}
	}
	return ref, nil
}

// commit installs the fetch outcome unless an invalidation bumped the
// generation while the fetch was in flight.
func (c *Cache) commit(id transcript.ClipID, gen uint64, ref *transcript.ReferenceTranscript, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gens[id] != gen {
		return
	}
	c.entries[id] = &entry{ref: ref, err: err, storedAt: c.now()}
}
