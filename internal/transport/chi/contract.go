package chi

import (
	"context"

	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
	"github.com/kailas-cloud/prodmatch/internal/repository/embcache"
	batchuc "github.com/kailas-cloud/prodmatch/internal/usecase/batch"
	healthuc "github.com/kailas-cloud/prodmatch/internal/usecase/health"
)

// Generator runs the matching pipeline over a supply list.
type Generator interface {
	GenerateProductsWithReport(
		ctx context.Context, items []supply.Item, user supply.UserContext,
	) ([]*product.MatchResult, batchuc.Report)
}

// StatsSource exposes embedding cache counters.
type StatsSource interface {
	Stats() embcache.Stats
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}
