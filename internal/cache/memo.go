package cache

import (
	"context"
	"errors"
	"iter"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
)

// StreamFunc produces a lazy, finite sequence of chunks for a call. A non-nil
// error ends the sequence.
type StreamFunc func(ctx context.Context, args Args) iter.Seq2[string, error]

// Operation is a wrapped call together with its stable identity.
type Operation struct {
	Name string
	Call StreamFunc
}

// Memoizer replays stored chunk sequences for repeated calls and records new
// ones once they complete.
//
// A miss forwards each chunk to the consumer as soon as the wrapped call
// produces it. The buffered copy is committed only when the wrapped sequence
// ends without error and the consumer read it to the end.
type Memoizer struct {
	store    Store
	deriver  *Deriver
	capacity int
	logger   zerolog.Logger
	metrics  *metrics
}

// MemoizerOption configures a Memoizer.
type MemoizerOption func(*memoizerConfig)

type memoizerConfig struct {
	logger        zerolog.Logger
	meterProvider metric.MeterProvider
}

// WithLogger sets the logger used for cache warnings.
func WithLogger(l zerolog.Logger) MemoizerOption {
	return func(c *memoizerConfig) { c.logger = l }
}

// WithMeterProvider sets the meter provider for cache metrics. The global
// provider is used by default.
func WithMeterProvider(mp metric.MeterProvider) MemoizerOption {
	return func(c *memoizerConfig) { c.meterProvider = mp }
}

// NewMemoizer creates a Memoizer over store holding at most capacity entries.
func NewMemoizer(store Store, capacity int, opts ...MemoizerOption) *Memoizer {
	cfg := memoizerConfig{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Memoizer{
		store:    store,
		deriver:  NewDeriver(),
		capacity: capacity,
		logger:   cfg.logger,
		metrics:  newMetrics(cfg.meterProvider),
	}
}

// Stream runs op through the cache. With caching disabled the wrapped
// sequence is returned as is and the store is never touched.
func (m *Memoizer) Stream(ctx context.Context, op Operation, args Args, caching bool) iter.Seq2[string, error] {
	if !caching {
		m.metrics.lookup(ctx, op.Name, outcomeBypass)
		return op.Call(ctx, args)
	}

	return func(yield func(string, error) bool) {
		key, err := m.deriver.Derive(op.Name, args)
		if err != nil {
			yield("", err)
			return
		}
		log := m.logger.With().Str("op", op.Name).Str("key", string(key)).Logger()

		if chunks, ok := m.lookup(ctx, op.Name, key, log); ok {
			for _, chunk := range chunks {
				if !yield(chunk, nil) {
					return
				}
			}
			return
		}

		var buf []string
		for chunk, err := range op.Call(ctx, args) {
			if err != nil {
				log.Debug().Err(err).Int("chunks", len(buf)).Msg("upstream failed, discarding partial result")
				yield("", err)
				return
			}
			buf = append(buf, chunk)
			if !yield(chunk, nil) {
				return
			}
		}
		m.commit(ctx, op.Name, key, buf, log)
	}
}

func (m *Memoizer) lookup(ctx context.Context, op string, key Key, log zerolog.Logger) ([]string, bool) {
	if !m.store.Has(key) {
		m.metrics.lookup(ctx, op, outcomeMiss)
		return nil, false
	}
	chunks, err := m.store.Read(key)
	switch {
	case err == nil:
		m.metrics.lookup(ctx, op, outcomeHit)
		log.Debug().Int("chunks", len(chunks)).Msg("cache hit")
		return chunks, true
	case errors.Is(err, ErrNotFound):
		// Evicted between Has and Read.
		m.metrics.lookup(ctx, op, outcomeMiss)
	default:
		m.metrics.lookup(ctx, op, outcomeCorrupt)
		log.Warn().Err(err).Msg("unreadable cache entry, calling upstream")
	}
	return nil, false
}

func (m *Memoizer) commit(ctx context.Context, op string, key Key, chunks []string, log zerolog.Logger) {
	if err := m.store.Write(key, chunks); err != nil {
		m.metrics.commit(ctx, op, false)
		log.Warn().Err(err).Msg("caching completion failed")
		return
	}
	m.metrics.commit(ctx, op, true)

	evicted, err := EnforceCapacity(m.store, m.capacity)
	m.metrics.evicted(ctx, len(evicted))
	if err != nil {
		log.Warn().Err(err).Int("evicted", len(evicted)).Msg("enforcing cache capacity")
		return
	}
	if len(evicted) > 0 {
		log.Debug().Int("evicted", len(evicted)).Msg("evicted least recently used entries")
	}
}
