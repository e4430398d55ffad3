package cache

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const instrumentationName = "github.com/dshills/sgptr/internal/cache"

// Counter names.
const (
	metricLookups   = "sgptr.cache.lookups"
	metricCommits   = "sgptr.cache.commits"
	metricEvictions = "sgptr.cache.evictions"
)

// Lookup outcomes recorded on the lookups counter.
const (
	outcomeHit     = "hit"
	outcomeMiss    = "miss"
	outcomeBypass  = "bypass"
	outcomeCorrupt = "corrupt"
)

type metrics struct {
	lookups   metric.Int64Counter
	commits   metric.Int64Counter
	evictions metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) *metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	m := &metrics{}
	var err error
	if m.lookups, err = meter.Int64Counter(metricLookups,
		metric.WithDescription("Cache lookups by outcome")); err != nil {
		m.lookups = noop.Int64Counter{}
	}
	if m.commits, err = meter.Int64Counter(metricCommits,
		metric.WithDescription("Entries written after a completed stream")); err != nil {
		m.commits = noop.Int64Counter{}
	}
	if m.evictions, err = meter.Int64Counter(metricEvictions,
		metric.WithDescription("Entries removed by the capacity bound")); err != nil {
		m.evictions = noop.Int64Counter{}
	}
	return m
}

func (m *metrics) lookup(ctx context.Context, op, outcome string) {
	m.lookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	))
}

func (m *metrics) commit(ctx context.Context, op string, ok bool) {
	m.commits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.Bool("ok", ok),
	))
}

func (m *metrics) evicted(ctx context.Context, n int) {
	if n > 0 {
		m.evictions.Add(ctx, int64(n))
	}
}

// Counts is a snapshot of the cache counters.
type Counts struct {
	Hits          int64
	Misses        int64
	Bypasses      int64
	Corrupt       int64
	Commits       int64
	FailedCommits int64
	Evictions     int64
}

// Recorder keeps cache metrics in memory so a short-lived process can report
// them before it exits.
type Recorder struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider
}

// NewRecorder creates a Recorder backed by a manual reader.
func NewRecorder() *Recorder {
	reader := sdkmetric.NewManualReader()
	return &Recorder{
		reader:   reader,
		provider: sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
	}
}

// MeterProvider returns the provider to pass to WithMeterProvider.
func (r *Recorder) MeterProvider() metric.MeterProvider {
	return r.provider
}

// Counts collects the cache counters recorded so far.
func (r *Recorder) Counts(ctx context.Context) (Counts, error) {
	var rm metricdata.ResourceMetrics
	if err := r.reader.Collect(ctx, &rm); err != nil {
		return Counts{}, fmt.Errorf("collecting cache metrics: %w", err)
	}

	var c Counts
	for _, sm := range rm.ScopeMetrics {
		if sm.Scope.Name != instrumentationName {
			continue
		}
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch m.Name {
				case metricLookups:
					outcome, _ := dp.Attributes.Value("outcome")
					switch outcome.AsString() {
					case outcomeHit:
						c.Hits += dp.Value
					case outcomeMiss:
						c.Misses += dp.Value
					case outcomeBypass:
						c.Bypasses += dp.Value
					case outcomeCorrupt:
						c.Corrupt += dp.Value
					}
				case metricCommits:
					if success, _ := dp.Attributes.Value("ok"); success.AsBool() {
						c.Commits += dp.Value
					} else {
						c.FailedCommits += dp.Value
					}
				case metricEvictions:
					c.Evictions += dp.Value
				}
			}
		}
	}
	return c, nil
}

// Shutdown releases the provider.
func (r *Recorder) Shutdown(ctx context.Context) error {
	return r.provider.Shutdown(ctx)
}
