// Package app is the composition root shared by the API server and the operator CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/config"
	dbRedis "github.com/kailas-cloud/prodmatch/internal/db/redis"
	"github.com/kailas-cloud/prodmatch/internal/domain"
	"github.com/kailas-cloud/prodmatch/internal/repository/catalog"
	"github.com/kailas-cloud/prodmatch/internal/repository/embcache"
	"github.com/kailas-cloud/prodmatch/internal/repository/pgcatalog"
	productrepo "github.com/kailas-cloud/prodmatch/internal/repository/product"
	"github.com/kailas-cloud/prodmatch/internal/repository/sharedcache"
	geminiEmb "github.com/kailas-cloud/prodmatch/internal/transport/gemini"
	openaiEmb "github.com/kailas-cloud/prodmatch/internal/transport/openai"
	batchuc "github.com/kailas-cloud/prodmatch/internal/usecase/batch"
	embeddinguc "github.com/kailas-cloud/prodmatch/internal/usecase/embedding"
	healthuc "github.com/kailas-cloud/prodmatch/internal/usecase/health"
	matchuc "github.com/kailas-cloud/prodmatch/internal/usecase/match"
)

// App holds the wired services.
type App struct {
	Config     config.Config
	Embeddings *embcache.Cache
	Matcher    *matchuc.Service
	Batch      *batchuc.Service
	Health     *healthuc.Service

	catalog catalogAdmin
	closers []func()
	logger  *zap.Logger
}

// catalogAdmin manages the catalog's index or schema.
type catalogAdmin interface {
	Ensure(ctx context.Context) (bool, error)
	Exists(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// openPostgres is replaced in tests.
var openPostgres = pgcatalog.Open

// New connects every backend named by cfg and wires the services.
// On error everything opened so far is closed.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	a := &App{Config: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var redisStore *dbRedis.Store
	if cfg.NeedsRedis() {
		redisStore, err = a.connectRedis(ctx)
		if err != nil {
			return nil, err
		}
	}

	shared, breaker := a.sharedCache(ctx, redisStore)

	embedder, err := buildEmbedder(ctx, cfg.Embedding, logger)
	if err != nil {
		return nil, err
	}

	a.Embeddings, err = embcache.New(embedder, shared, embcache.Options{
		LocalSize:  cfg.Cache.LocalSize,
		SharedTTL:  cfg.Cache.Shared.TTL(),
		KeyPrefix:  cfg.Cache.Shared.Prefix,
		Dimensions: cfg.Embedding.Dimensions,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	var (
		vectors matchuc.CandidateSearcher
		records matchuc.ProductReader
		pinger  healthuc.DBPinger
	)
	switch cfg.Catalog.Driver {
	case config.CatalogPostgres:
		conn, err := openPostgres(ctx, cfg.Catalog.PostgresDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		vectors = pgcatalog.NewVectors(conn)
		records = pgcatalog.NewRecords(conn)
		pinger = sqlPinger{conn}
		a.catalog = &pgAdmin{conn: conn, dim: cfg.Embedding.Dimensions}
	default:
		repo := catalog.New(redisStore, cfg.Catalog.KeyPrefix, cfg.Catalog.IndexName)
		vectors = repo
		records = productrepo.New(redisStore, cfg.Catalog.KeyPrefix)
		pinger = redisStore
		a.catalog = &redisAdmin{repo: repo, dim: cfg.Embedding.Dimensions, hnsw: catalog.HNSWConfig{
			M:           cfg.Catalog.HNSWM,
			EFConstruct: cfg.Catalog.HNSWEF,
		}}
	}

	a.Matcher = matchuc.New(a.Embeddings, vectors, records, cfg.Matching.TopK, logger)
	a.Batch, err = batchuc.New(a.Matcher, a.Embeddings, batchuc.Options{
		BatchSize: cfg.Matching.BatchSize,
		Workers:   cfg.Matching.Workers,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = a.Batch.Close(5 * time.Second) })

	a.Health = healthuc.New(pinger, embedder)
	if breaker != nil {
		a.Health.WithSharedCache(breaker)
	}

	logger.Info("Services wired",
		zap.String("catalog", cfg.Catalog.Driver),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Bool("shared_cache", cfg.Cache.Shared.Enabled),
	)
	return a, nil
}

// sharedCache builds the second embedding cache tier. Redis that serves only this tier is optional:
// when it cannot be reached the tier is disabled and startup continues.
func (a *App) sharedCache(ctx context.Context, store *dbRedis.Store) (sharedcache.Cache, *sharedcache.Redis) {
	cfg := a.Config.Cache.Shared
	if !cfg.Enabled {
		return sharedcache.Disabled{}, nil
	}
	if store == nil {
		s, err := a.connectRedis(ctx)
		if err != nil {
			a.logger.Warn("Shared embedding cache disabled, redis unavailable", zap.Error(err))
			return sharedcache.Disabled{}, nil
		}
		store = s
	}

	r := sharedcache.NewRedis(store, sharedcache.Options{
		Failures:    uint32(cfg.BreakerFailures), //nolint:gosec // validated positive
		OpenTimeout: time.Duration(cfg.BreakerOpenSec) * time.Second,
	}, a.logger)
	return r, r
}

func (a *App) connectRedis(ctx context.Context) (*dbRedis.Store, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    a.Config.Redis.Addrs,
		Username: a.Config.Redis.Username,
		Password: a.Config.Redis.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create redis store: %w", err)
	}
	timeout := time.Duration(a.Config.Redis.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("redis not ready: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	a.logger.Info("Connected to redis", zap.Strings("addrs", a.Config.Redis.Addrs))
	return store, nil
}

// buildEmbedder assembles the provider chain: transport -> instrumented (rate limit, retries).
func buildEmbedder(
	ctx context.Context, cfg config.EmbeddingConfig, logger *zap.Logger,
) (*embeddinguc.InstrumentedEmbedder, error) {
	var base domain.Embedder
	switch cfg.Provider {
	case config.ProviderGemini:
		g, err := geminiEmb.NewEmbedder(ctx, geminiEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		base = g
	default:
		base = openaiEmb.NewEmbedder(openaiEmb.Config{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	}

	return embeddinguc.NewInstrumentedEmbedder(base, cfg.Provider, cfg.Model, embeddinguc.Options{
		RequestsPerSecond: cfg.RequestsPerSecond,
		MaxRetries:        cfg.MaxRetries,
	}, logger), nil
}

// EnsureCatalog creates the catalog index or schema. It reports whether anything was created.
func (a *App) EnsureCatalog(ctx context.Context) (bool, error) {
	return a.catalog.Ensure(ctx)
}

// CatalogExists reports whether the catalog index or schema is present.
func (a *App) CatalogExists(ctx context.Context) (bool, error) {
	return a.catalog.Exists(ctx)
}

// CatalogSize returns the number of product vectors in the catalog.
func (a *App) CatalogSize(ctx context.Context) (int64, error) {
	return a.catalog.Count(ctx)
}

// Close releases every backend in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

type redisAdmin struct {
	repo *catalog.Repo
	dim  int
	hnsw catalog.HNSWConfig
}

func (r *redisAdmin) Ensure(ctx context.Context) (bool, error) {
	return r.repo.EnsureIndex(ctx, r.dim, r.hnsw)
}

func (r *redisAdmin) Exists(ctx context.Context) (bool, error) {
	return r.repo.IndexExists(ctx)
}

func (r *redisAdmin) Count(ctx context.Context) (int64, error) {
	return r.repo.Count(ctx)
}

type pgAdmin struct {
	conn *sqlx.DB
	dim  int
}

func (p *pgAdmin) Ensure(ctx context.Context) (bool, error) {
	existed, err := pgcatalog.SchemaExists(ctx, p.conn)
	if err != nil {
		return false, err
	}
	if err := pgcatalog.EnsureSchema(ctx, p.conn, p.dim); err != nil {
		return false, err
	}
	return !existed, nil
}

func (p *pgAdmin) Exists(ctx context.Context) (bool, error) {
	return pgcatalog.SchemaExists(ctx, p.conn)
}

func (p *pgAdmin) Count(ctx context.Context) (int64, error) {
	return pgcatalog.CountVectors(ctx, p.conn)
}

// sqlPinger adapts sqlx.DB to healthuc.DBPinger.
type sqlPinger struct {
	db *sqlx.DB
}

func (p sqlPinger) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}
