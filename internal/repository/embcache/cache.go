// Package embcache is the two-tier embedding cache in front of the embedding provider.
//
// Tier 1 is an in-process, count-bounded map evicting the oldest insertion first.
// Tier 2 is a shared store with a TTL that fails open. The provider is called only
// when both tiers miss, and every caller that needs a vector goes through here.
package embcache

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/prodmatch/internal/domain"
	"github.com/kailas-cloud/prodmatch/internal/metrics"
	"github.com/kailas-cloud/prodmatch/internal/repository/sharedcache"
)

// Options configure a Cache.
type Options struct {
	LocalSize  int           // tier 1 capacity, default 1000
	SharedTTL  time.Duration // tier 2 expiry, default 30 days
	KeyPrefix  string        // tier 2 key prefix
	Dimensions int           // expected vector length, 0 disables the check
	// BatchConcurrency caps GetBatchEmbeddings fan-out; 0 means one goroutine per text.
	BatchConcurrency int
}

// Stats is a snapshot of the cumulative counters.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Generated   int64   `json:"generated"`
	HitRate     float64 `json:"hitRate"` // percent, two decimals
	TierOneSize int     `json:"tierOneSize"`
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s Stats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("hits", s.Hits)
	enc.AddInt64("misses", s.Misses)
	enc.AddInt64("generated", s.Generated)
	enc.AddFloat64("hit_rate", s.HitRate)
	enc.AddInt("tier_one_size", s.TierOneSize)
	return nil
}

// Cache resolves text to embedding vectors.
type Cache struct {
	embedder domain.Embedder
	local    *lru.Cache[string, []float32]
	shared   sharedcache.Cache
	opts     Options
	logger   *zap.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	generated atomic.Int64
}

// New creates a Cache. shared may be sharedcache.Disabled{}.
func New(embedder domain.Embedder, shared sharedcache.Cache, opts Options, logger *zap.Logger) (*Cache, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if shared == nil {
		shared = sharedcache.Disabled{}
	}
	if opts.LocalSize <= 0 {
		opts.LocalSize = 1000
	}
	if opts.SharedTTL <= 0 {
		opts.SharedTTL = 30 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	local, err := lru.New[string, []float32](opts.LocalSize)
	if err != nil {
		return nil, fmt.Errorf("create local cache: %w", err)
	}

	return &Cache{
		embedder: embedder,
		local:    local,
		shared:   shared,
		opts:     opts,
		logger:   logger,
	}, nil
}

// GetEmbedding returns the vector for text. The only error it returns is a failed generation.
func (c *Cache) GetEmbedding(ctx context.Context, text string) ([]float32, error) {
	fp := Fingerprint(text)

	// Peek leaves recency alone, so eviction follows insertion order.
	if vec, ok := c.local.Peek(fp); ok {
		c.hits.Add(1)
		metrics.EmbeddingCacheTotal.WithLabelValues("local", "hit").Inc()
		return clone(vec), nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("local", "miss").Inc()

	if vec, ok := c.getShared(ctx, fp); ok {
		c.local.ContainsOrAdd(fp, vec)
		c.hits.Add(1)
		metrics.EmbeddingCacheTotal.WithLabelValues("shared", "hit").Inc()
		return clone(vec), nil
	}
	metrics.EmbeddingCacheTotal.WithLabelValues("shared", "miss").Inc()

	c.misses.Add(1)
	res, err := c.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	if err := domain.CheckDimensions(res.Embedding, c.opts.Dimensions); err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	c.generated.Add(1)

	vec := clone(res.Embedding)
	c.local.ContainsOrAdd(fp, vec)
	c.shared.Set(ctx, c.opts.KeyPrefix+fp, encodeVector(vec), c.opts.SharedTTL)

	return clone(vec), nil
}

// GetBatchEmbeddings resolves every text independently and concurrently.
// Output order matches input order; the first failure cancels the rest.
func (c *Cache) GetBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	if c.opts.BatchConcurrency > 0 {
		g.SetLimit(c.opts.BatchConcurrency)
	}
	for i, text := range texts {
		g.Go(func() error {
			vec, err := c.GetEmbedding(gctx, text)
			if err != nil {
				return fmt.Errorf("text %d: %w", i, err)
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var rate float64
	if total := hits + misses; total > 0 {
		rate = math.Round(float64(hits)/float64(total)*10000) / 100
	}
	return Stats{
		Hits:        hits,
		Misses:      misses,
		Generated:   c.generated.Load(),
		HitRate:     rate,
		TierOneSize: c.local.Len(),
	}
}

func (c *Cache) getShared(ctx context.Context, fp string) ([]float32, bool) {
	data, ok := c.shared.Get(ctx, c.opts.KeyPrefix+fp)
	if !ok {
		return nil, false
	}
	vec, err := decodeVector(data)
	if err == nil {
		err = domain.CheckDimensions(vec, c.opts.Dimensions)
	}
	if err != nil {
		c.logger.Warn("discarding cached embedding", zap.String("fingerprint", fp), zap.Error(err))
		return nil, false
	}
	return vec, true
}
