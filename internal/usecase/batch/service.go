// Package batch runs the match resolver over a supply list in sequential batches.
package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
	"github.com/kailas-cloud/prodmatch/internal/metrics"
)

// DefaultBatchSize is the number of items resolved concurrently per batch.
const DefaultBatchSize = 10

// Options configure the orchestrator.
type Options struct {
	BatchSize int // items per batch, default 10
	Workers   int // pool capacity shared by all runs, default 4*BatchSize
}

// Report summarizes one run.
type Report struct {
	Items     int           `json:"itemsProcessed"`
	Matched   int           `json:"matched"`
	Unmatched int           `json:"unmatched"`
	Batches   int           `json:"batches"`
	Duration  time.Duration `json:"-"`
}

// Service is the batch orchestrator.
type Service struct {
	resolver  Resolver
	stats     CacheStats
	pool      *ants.Pool
	batchSize int
	logger    *zap.Logger
}

// New creates an orchestrator with its own worker pool. Call Close to release it.
// stats and logger may be nil.
func New(resolver Resolver, stats CacheStats, opts Options, logger *zap.Logger) (*Service, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Workers <= 0 {
		opts.Workers = 4 * opts.BatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := ants.NewPool(opts.Workers,
		ants.WithPanicHandler(func(p any) {
			logger.Error("Worker panicked", zap.Any("panic", p), zap.Stack("stack"))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Service{
		resolver:  resolver,
		stats:     stats,
		pool:      pool,
		batchSize: opts.BatchSize,
		logger:    logger,
	}, nil
}

// Close releases the worker pool, waiting up to timeout for running items.
func (s *Service) Close(timeout time.Duration) error {
	if err := s.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("release worker pool: %w", err)
	}
	return nil
}

// GenerateProducts resolves every item. The output has the same length and order as items;
// unmatched positions are nil.
func (s *Service) GenerateProducts(
	ctx context.Context, items []supply.Item, user supply.UserContext,
) []*product.MatchResult {
	out, _ := s.GenerateProductsWithReport(ctx, items, user)
	return out
}

// GenerateProductsWithReport is GenerateProducts plus run statistics.
// When ctx is canceled between batches the remaining positions stay nil.
func (s *Service) GenerateProductsWithReport(
	ctx context.Context, items []supply.Item, user supply.UserContext,
) ([]*product.MatchResult, Report) {
	start := time.Now()
	out := make([]*product.MatchResult, len(items))
	report := Report{Items: len(items)}

	for lo := 0; lo < len(items); lo += s.batchSize {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("Batch run canceled",
				zap.Int("processed", lo),
				zap.Int("total", len(items)),
				zap.Error(err),
			)
			break
		}
		hi := min(lo+s.batchSize, len(items))
		s.runBatch(ctx, items, user, out, lo, hi)
		report.Batches++

		s.logger.Debug("Batch completed",
			zap.Int("batch", report.Batches),
			zap.Int("from", lo),
			zap.Int("to", hi),
		)
	}

	for _, r := range out {
		if r != nil {
			report.Matched++
		}
	}
	report.Unmatched = report.Items - report.Matched
	report.Duration = time.Since(start)

	metrics.BatchItemsTotal.WithLabelValues("matched").Add(float64(report.Matched))
	metrics.BatchItemsTotal.WithLabelValues("unmatched").Add(float64(report.Unmatched))
	metrics.BatchDuration.Observe(report.Duration.Seconds())

	fields := []zap.Field{
		zap.Int("items", report.Items),
		zap.Int("matched", report.Matched),
		zap.Int("unmatched", report.Unmatched),
		zap.Int("batches", report.Batches),
		zap.Duration("duration", report.Duration),
	}
	if s.stats != nil {
		fields = append(fields, zap.Object("cache", s.stats.Stats()))
	}
	s.logger.Info("Generated products", fields...)

	return out, report
}

// runBatch resolves items[lo:hi] concurrently and waits for all of them.
func (s *Service) runBatch(
	ctx context.Context, items []supply.Item, user supply.UserContext,
	out []*product.MatchResult, lo, hi int,
) {
	var wg sync.WaitGroup
	for i := lo; i < hi; i++ {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			out[i] = s.resolver.FindBestProduct(ctx, items[i], user)
		})
		if err != nil {
			wg.Done()
			s.logger.Error("Failed to schedule item",
				zap.Int("index", i),
				zap.String("description", items[i].Description),
				zap.Error(err),
			)
		}
	}
	wg.Wait()
}
