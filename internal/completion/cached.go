package completion

import (
	"context"
	"iter"

	"github.com/dshills/sgptr/internal/cache"
)

// OperationName identifies streamed completions in cache keys.
const OperationName = "completion.Client.Stream"

// Streamer produces completion chunks for a request.
type Streamer interface {
	Stream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Cached serves completions through a Memoizer.
type Cached struct {
	client Streamer
	memo   *cache.Memoizer
}

// NewCached wraps client with memo.
func NewCached(client Streamer, memo *cache.Memoizer) *Cached {
	return &Cached{client: client, memo: memo}
}

// Complete streams the completion for req. With caching enabled, a previous
// identical request is replayed from the cache and a new one is recorded once
// it has streamed to the end.
func (c *Cached) Complete(ctx context.Context, req Request, caching bool) iter.Seq2[string, error] {
	op := cache.Operation{
		Name: OperationName,
		Call: func(ctx context.Context, _ cache.Args) iter.Seq2[string, error] {
			return c.client.Stream(ctx, req)
		},
	}
	return c.memo.Stream(ctx, op, req.args(), caching)
}

func (r Request) args() cache.Args {
	return cache.Args{
		"prompt":          r.Prompt,
		"temperature":     r.Temperature,
		"top_probability": r.TopProbability,
	}
}
