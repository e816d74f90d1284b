// Package observe provides application-wide observability primitives for
// Echotype: OpenTelemetry metrics, tracing helpers, structured logging, and
// HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. Tests should use [NewMetrics]
// with a custom [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Echotype metrics.
const meterName = "github.com/hverberg/echotype"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation. A nil *Metrics is valid: every recording helper
// is a no-op on it, so wiring metrics stays optional in tests.
type Metrics struct {
	// CompareDuration tracks end-to-end comparison latency, including any
	// transcript fetch the cache had to perform.
	CompareDuration metric.Float64Histogram

	// FetchDuration tracks transcript fetch latency. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	FetchDuration metric.Float64Histogram

	// CacheHits counts transcript cache hits (Ready entries and cached
	// failures served within their error TTL).
	CacheHits metric.Int64Counter

	// CacheMisses counts cache misses that triggered a fetch cycle.
	CacheMisses metric.Int64Counter

	// CacheEvictions counts entries lazily evicted on access after their TTL.
	CacheEvictions metric.Int64Counter

	// FetchWaiters tracks the number of callers currently suspended on an
	// in-flight fetch.
	FetchWaiters metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Compares
// are sub-millisecond when the cache is warm; fetches are network-bound.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.CompareDuration, err = m.Float64Histogram("echotype.compare.duration",
		metric.WithDescription("End-to-end comparison latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FetchDuration, err = m.Float64Histogram("echotype.fetch.duration",
		metric.WithDescription("Reference transcript fetch latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CacheHits, err = m.Int64Counter("echotype.cache.hits",
		metric.WithDescription("Transcript cache hits."),
	); err != nil {
		return nil, err
	}
	if met.CacheMisses, err = m.Int64Counter("echotype.cache.misses",
		metric.WithDescription("Transcript cache misses."),
	); err != nil {
		return nil, err
	}
	if met.CacheEvictions, err = m.Int64Counter("echotype.cache.evictions",
		metric.WithDescription("Transcript cache entries evicted after TTL expiry."),
	); err != nil {
		return nil, err
	}
	if met.FetchWaiters, err = m.Int64UpDownCounter("echotype.fetch.waiters",
		metric.WithDescription("Callers currently waiting on an in-flight fetch."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("echotype.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordCompare records a comparison duration in seconds. No-op on nil.
func (m *Metrics) RecordCompare(ctx context.Context, seconds float64) {
	if m == nil {
		return
	}
	m.CompareDuration.Record(ctx, seconds)
}

// RecordFetch records a fetch duration with its outcome. No-op on nil.
func (m *Metrics) RecordFetch(ctx context.Context, seconds float64, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.FetchDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("status", status)))
}

// CacheHit increments the hit counter. No-op on nil.
func (m *Metrics) CacheHit(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheHits.Add(ctx, 1)
}

// CacheMiss increments the miss counter. No-op on nil.
func (m *Metrics) CacheMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1)
}

// CacheEviction increments the eviction counter. No-op on nil.
func (m *Metrics) CacheEviction(ctx context.Context) {
	if m == nil {
		return
	}
	m.CacheEvictions.Add(ctx, 1)
}

// AddWaiter adjusts the in-flight waiter gauge by delta. No-op on nil.
func (m *Metrics) AddWaiter(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.FetchWaiters.Add(ctx, delta)
}
