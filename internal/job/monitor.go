package job

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/repository/embcache"
	"github.com/kailas-cloud/prodmatch/internal/usecase/health"
)

// StatsSource exposes embedding cache counters.
type StatsSource interface {
	Stats() embcache.Stats
}

// HealthChecker runs component health checks.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// CacheStats logs embedding cache counters.
type CacheStats struct {
	stats  StatsSource
	logger *zap.Logger
}

// NewCacheStats creates the cache stats job.
func NewCacheStats(stats StatsSource, logger *zap.Logger) *CacheStats {
	return &CacheStats{stats: stats, logger: logger}
}

// Name implements Job.
func (j *CacheStats) Name() string { return "cache-stats" }

// Run implements Job.
func (j *CacheStats) Run(_ context.Context) error {
	j.logger.Info("Embedding cache stats", zap.Object("cache", j.stats.Stats()))
	return nil
}

// HealthWatch runs the health checks and reports anything that is not healthy.
type HealthWatch struct {
	checker HealthChecker
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthWatch creates the health watch job.
func NewHealthWatch(checker HealthChecker, timeout time.Duration, logger *zap.Logger) *HealthWatch {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HealthWatch{checker: checker, timeout: timeout, logger: logger}
}

// Name implements Job.
func (j *HealthWatch) Name() string { return "health-watch" }

// Run implements Job. A non-healthy report is returned as an error.
func (j *HealthWatch) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	r := j.checker.Check(ctx)
	if r.Status != health.Healthy {
		return fmt.Errorf("status %s: %v", r.Status, r.Checks)
	}
	return nil
}
