package batch

import (
	"context"

	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
	"github.com/kailas-cloud/prodmatch/internal/repository/embcache"
)

// Resolver finds the best product for one item. It must not fail; nil means no match.
type Resolver interface {
	FindBestProduct(ctx context.Context, item supply.Item, user supply.UserContext) *product.MatchResult
}

// CacheStats exposes embedding cache counters for run summaries.
type CacheStats interface {
	Stats() embcache.Stats
}
