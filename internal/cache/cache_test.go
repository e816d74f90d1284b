package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hverberg/echotype/internal/cache"
	"github.com/hverberg/echotype/internal/transcript"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingFetcher counts invocations and optionally blocks each fetch until
// released.
type countingFetcher struct {
	calls   atomic.Int64
	invoked chan struct{} // receives one signal per Fetch entry
	release chan struct{} // when non-nil, Fetch blocks until closed
	err     error
}

func (f *countingFetcher) Fetch(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error) {
	f.calls.Add(1)
	if f.invoked != nil {
		f.invoked <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	return transcript.NewReference(id, []transcript.TimedSegment{
		{Text: "hello world", Start: 0, End: 1},
	}, time.Now()), nil
}

func TestGetOrFetchSingleFlight(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{
		invoked: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := cache.New(f)

	const n = 16
	results := make([]*transcript.ReferenceTranscript, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.GetOrFetch(context.Background(), "clip-1")
		}(i)
	}

	// Wait for the single fetch to start, give the remaining callers a
	// moment to pile up on it, then let it finish.
	<-f.invoked
	time.Sleep(20 * time.Millisecond)
	close(f.release)
	wg.Wait()

	if got := f.calls.Load(); got != 1 {
		t.Fatalf("GetOrFetch: expected exactly 1 fetch, got %d", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("GetOrFetch: caller %d: unexpected error: %v", i, errs[i])
		}
		if results[i] != results[0] {
			t.Fatalf("GetOrFetch: caller %d observed a different transcript value", i)
		}
	}
}

func TestGetOrFetchCachesResult(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	c := cache.New(f)
	ctx := context.Background()

	if _, err := c.GetOrFetch(ctx, "clip-1"); err != nil {
		t.Fatalf("GetOrFetch: unexpected error: %v", err)
	}
	if _, err := c.GetOrFetch(ctx, "clip-1"); err != nil {
		t.Fatalf("GetOrFetch: unexpected error: %v", err)
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("GetOrFetch: expected 1 fetch for repeated access, got %d", got)
	}

	// A different clip id is an independent entry.
	if _, err := c.GetOrFetch(ctx, "clip-2"); err != nil {
		t.Fatalf("GetOrFetch: unexpected error: %v", err)
	}
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("GetOrFetch: expected a fetch for the second clip, got %d total", got)
	}
}

func TestGetOrFetchErrorCaching(t *testing.T) {
	t.Parallel()

	fetchErr := transcript.NewFetchError(transcript.KindUnavailable, "clip-1", errors.New("boom"))
	f := &countingFetcher{err: fetchErr}
	clock := newFakeClock()
	c := cache.New(f,
		cache.WithErrorTTL(15*time.Second),
		cache.WithClock(clock.Now),
	)
	ctx := context.Background()

	_, err := c.GetOrFetch(ctx, "clip-1")
	if !errors.Is(err, fetchErr) {
		t.Fatalf("GetOrFetch: expected fetch error, got %v", err)
	}

	// Within the error TTL the cached failure is served without a retry.
	_, err = c.GetOrFetch(ctx, "clip-1")
	if !errors.Is(err, fetchErr) {
		t.Fatalf("GetOrFetch: expected cached fetch error, got %v", err)
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("GetOrFetch: expected no retry within error TTL, got %d fetches", got)
	}

	// After expiry the next access retries.
	clock.Advance(16 * time.Second)
	if _, err := c.GetOrFetch(ctx, "clip-1"); err == nil {
		t.Fatal("GetOrFetch: expected error from retry")
	}
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("GetOrFetch: expected retry after error TTL, got %d fetches", got)
	}
}

func TestGetOrFetchTTLEviction(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	clock := newFakeClock()
	c := cache.New(f,
		cache.WithTTL(time.Hour),
		cache.WithClock(clock.Now),
	)
	ctx := context.Background()

	if _, err := c.GetOrFetch(ctx, "clip-1"); err != nil {
		t.Fatalf("GetOrFetch: unexpected error: %v", err)
	}

	clock.Advance(59 * time.Minute)
	if _, err := c.GetOrFetch(ctx, "clip-1"); err != nil {
		t.Fatalf("GetOrFetch: unexpected error: %v", err)
	}
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("GetOrFetch: expected no refetch before TTL, got %d", got)
	}

	clock.Advance(2 * time.Minute)
	if _, err := c.GetOrFetch(ctx, "clip-1"); err != nil {
		t.Fatalf("GetOrFetch: unexpected error: %v", err)
	}
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("GetOrFetch: expected refetch after TTL expiry, got %d", got)
	}
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{}
	c := cache.New(f)
	ctx := context.Background()

	if _, err := c.GetOrFetch(ctx, "clip-1"); err != nil {
		t.Fatalf("GetOrFetch: unexpected error: %v", err)
	}
	if err := c.Invalidate(ctx, "clip-1"); err != nil {
		t.Fatalf("Invalidate: unexpected error: %v", err)
	}
	if _, err := c.GetOrFetch(ctx, "clip-1"); err != nil {
		t.Fatalf("GetOrFetch: unexpected error: %v", err)
	}
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("GetOrFetch: expected a fresh fetch after invalidation, got %d", got)
	}
}

func TestInvalidateDuringFetchDropsStaleResult(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{
		invoked: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	c := cache.New(f)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// The in-flight fetch still completes and this caller still gets
		// its outcome even though an invalidation raced it.
		if _, err := c.GetOrFetch(ctx, "clip-1"); err != nil {
			t.Errorf("GetOrFetch: unexpected error: %v", err)
		}
	}()

	<-f.invoked
	if err := c.Invalidate(ctx, "clip-1"); err != nil {
		t.Fatalf("Invalidate: unexpected error: %v", err)
	}
	close(f.release)
	<-done

	// The stale completion must not have been committed: the next access
	// starts a fresh cycle.
	f.release = nil
	if _, err := c.GetOrFetch(ctx, "clip-1"); err != nil {
		t.Fatalf("GetOrFetch: unexpected error: %v", err)
	}
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("GetOrFetch: expected stale fetch to be discarded and refetched, got %d fetches", got)
	}
}

func TestWaiterCancellationDoesNotCancelFetch(t *testing.T) {
	t.Parallel()

	f := &countingFetcher{
		invoked: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := cache.New(f)

	cancelCtx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrFetch(cancelCtx, "clip-1")
		done <- err
	}()

	<-f.invoked
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("GetOrFetch: expected context.Canceled for abandoning caller, got %v", err)
	}

	// The shared fetch keeps running; once it completes, its result is
	// committed and served from cache.
	close(f.release)
	waitForCommit := func() bool {
		deadline := time.After(2 * time.Second)
		for {
			select {
			case <-deadline:
				return false
			default:
			}
			if _, err := c.GetOrFetch(context.Background(), "clip-1"); err == nil && f.calls.Load() == 1 {
				return true
			}
			if f.calls.Load() > 1 {
				return false
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
	if !waitForCommit() {
		t.Fatalf("GetOrFetch: expected abandoned fetch to commit exactly once, got %d fetches", f.calls.Load())
	}
}

// memStore is an in-memory [cache.Store] test double.
type memStore struct {
	mu      sync.Mutex
	rows    map[transcript.ClipID]*transcript.ReferenceTranscript
	saves   int
	deletes int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[transcript.ClipID]*transcript.ReferenceTranscript)}
}

func (s *memStore) Load(ctx context.Context, id transcript.ClipID) (*transcript.ReferenceTranscript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.rows[id]
	if !ok {
		return nil, cache.ErrNotPersisted
	}
	return ref, nil
}

func (s *memStore) Save(ctx context.Context, ref *transcript.ReferenceTranscript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[ref.ClipID] = ref
	s.saves++
	return nil
}

func (s *memStore) Delete(ctx context.Context, id transcript.ClipID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	s.deletes++
	return nil
}

func TestPersistedStore(t *testing.T) {
	t.Parallel()

	t.Run("memory miss is served from the store without fetching", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		clock := newFakeClock()
		store.rows["clip-1"] = transcript.NewReference("clip-1",
			[]transcript.TimedSegment{{Text: "persisted words", Start: 0, End: 1}},
			clock.Now(),
		)

		f := &countingFetcher{}
		c := cache.New(f, cache.WithStore(store), cache.WithClock(clock.Now))

		ref, err := c.GetOrFetch(context.Background(), "clip-1")
		if err != nil {
			t.Fatalf("GetOrFetch: unexpected error: %v", err)
		}
		if ref.Text() != "persisted words" {
			t.Fatalf("GetOrFetch: expected persisted transcript, got %q", ref.Text())
		}
		if got := f.calls.Load(); got != 0 {
			t.Fatalf("GetOrFetch: expected no fetch when store has the clip, got %d", got)
		}
	})

	t.Run("successful fetch is written through", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		f := &countingFetcher{}
		c := cache.New(f, cache.WithStore(store))

		if _, err := c.GetOrFetch(context.Background(), "clip-2"); err != nil {
			t.Fatalf("GetOrFetch: unexpected error: %v", err)
		}

		store.mu.Lock()
		defer store.mu.Unlock()
		if store.saves != 1 {
			t.Fatalf("GetOrFetch: expected 1 write-through save, got %d", store.saves)
		}
	})

	t.Run("invalidation deletes the persisted row", func(t *testing.T) {
		t.Parallel()
		store := newMemStore()
		f := &countingFetcher{}
		c := cache.New(f, cache.WithStore(store))
		ctx := context.Background()

		if _, err := c.GetOrFetch(ctx, "clip-3"); err != nil {
			t.Fatalf("GetOrFetch: unexpected error: %v", err)
		}
		if err := c.Invalidate(ctx, "clip-3"); err != nil {
			t.Fatalf("Invalidate: unexpected error: %v", err)
		}

		store.mu.Lock()
		defer store.mu.Unlock()
		if store.deletes != 1 {
			t.Fatalf("Invalidate: expected 1 store delete, got %d", store.deletes)
		}
		if _, ok := store.rows["clip-3"]; ok {
			t.Fatal("Invalidate: expected persisted row to be removed")
		}
	})
}
