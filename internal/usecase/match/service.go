// Package match resolves a single supply item to its best catalog product.
package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/domain"
	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/score"
	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
	"github.com/kailas-cloud/prodmatch/internal/metrics"
)

// DefaultTopK is the number of candidates requested from the similarity search.
const DefaultTopK = 20

// Resolution outcomes, used as the metric label.
const (
	OutcomeMatched       = "matched"
	OutcomeNoCandidates  = "no_candidates"
	OutcomeMissingRecord = "missing_record"
	OutcomeError         = "error"
)

var tracer = otel.Tracer("github.com/kailas-cloud/prodmatch/internal/usecase/match")

// Service is the match resolver.
type Service struct {
	embeddings EmbeddingSource
	searcher   CandidateSearcher
	records    ProductReader
	topK       int
	logger     *zap.Logger
}

// New creates a match resolver. topK <= 0 selects DefaultTopK.
func New(
	embeddings EmbeddingSource, searcher CandidateSearcher, records ProductReader,
	topK int, logger *zap.Logger,
) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Service{
		embeddings: embeddings,
		searcher:   searcher,
		records:    records,
		topK:       topK,
		logger:     logger,
	}
}

// FindBestProduct returns the best-scoring product for item, or nil.
// It never fails: every error is logged, counted and turned into nil.
func (s *Service) FindBestProduct(
	ctx context.Context, item supply.Item, user supply.UserContext,
) (res *product.MatchResult) {
	ctx, span := tracer.Start(ctx, "match.FindBestProduct",
		trace.WithAttributes(attribute.Int("item.description_len", len(item.Description))))
	start := time.Now()

	log := s.logger.With(zap.String("description", item.Description))

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			log.Error("Match resolution panicked", zap.Error(err), zap.Stack("stack"))
			span.RecordError(err)
			span.SetStatus(codes.Error, "panic")
			metrics.MatchOutcomesTotal.WithLabelValues(OutcomeError).Inc()
			res = nil
		}
		metrics.MatchDuration.Observe(time.Since(start).Seconds())
		span.End()
	}()

	res, outcome, err := s.resolve(ctx, item, user, log)
	metrics.MatchOutcomesTotal.WithLabelValues(outcome).Inc()
	span.SetAttributes(attribute.String("match.outcome", outcome))

	switch outcome {
	case OutcomeError:
		log.Error("Error finding best product", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil
	case OutcomeMissingRecord:
		log.Warn("Matched product missing from document store", zap.Error(err))
		return nil
	case OutcomeNoCandidates:
		log.Debug("No candidates found")
		return nil
	}
	return res
}

func (s *Service) resolve(
	ctx context.Context, item supply.Item, user supply.UserContext, log *zap.Logger,
) (*product.MatchResult, string, error) {
	vec, err := s.embeddings.GetEmbedding(ctx, item.Description)
	if err != nil {
		return nil, OutcomeError, fmt.Errorf("embed description: %w", err)
	}

	filters := BuildFilter(item)
	candidates, err := s.searcher.Search(ctx, vec, s.topK, filters)
	if err != nil {
		return nil, OutcomeError, fmt.Errorf("search candidates (filter %s): %w", filters, err)
	}
	if len(candidates) == 0 {
		return nil, OutcomeNoCandidates, domain.ErrNoCandidates
	}

	ranked := score.ScoreMatches(candidates, item, user)
	logDistribution(log, ranked)
	best := ranked[0]

	rec, err := s.records.Get(ctx, best.Candidate.ID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, OutcomeMissingRecord, err
		}
		return nil, OutcomeError, fmt.Errorf("get product %s: %w", best.Candidate.ID, err)
	}

	log.Debug("Best product selected",
		zap.String("product_id", rec.ID),
		zap.Float64("match_score", best.FinalScore),
		zap.Float64("vector_score", best.RawScore()),
		zap.Int("candidates", len(candidates)),
	)

	return &product.MatchResult{
		Record:      *rec,
		MatchScore:  best.FinalScore,
		VectorScore: best.RawScore(),
	}, OutcomeMatched, nil
}

// distribution counts raw similarities per quality bucket.
type distribution struct {
	Excellent int // >= 0.8
	Good      int // [0.6, 0.8)
	Fair      int // [0.4, 0.6)
	Poor      int // < 0.4
}

func bucketize(ranked []score.Match) distribution {
	var d distribution
	for _, m := range ranked {
		switch sim := m.RawScore(); {
		case sim >= 0.8:
			d.Excellent++
		case sim >= 0.6:
			d.Good++
		case sim >= 0.4:
			d.Fair++
		default:
			d.Poor++
		}
	}
	return d
}

func logDistribution(log *zap.Logger, ranked []score.Match) {
	if ce := log.Check(zap.DebugLevel, "Score distribution"); ce != nil {
		d := bucketize(ranked)
		ce.Write(
			zap.Int("excellent", d.Excellent),
			zap.Int("good", d.Good),
			zap.Int("fair", d.Fair),
			zap.Int("poor", d.Poor),
		)
	}
}
