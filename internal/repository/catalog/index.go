package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/kailas-cloud/prodmatch/internal/db"
	"github.com/kailas-cloud/prodmatch/internal/domain/product"
)

// HNSWConfig holds HNSW graph parameters for the product index.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

const vectorAlias = "vector"

// IndexDefinition describes the product vector index over JSON documents at <prefix>vec:*.
func (r *Repo) IndexDefinition(dim int, hnsw HNSWConfig) (*db.IndexDefinition, error) {
	def, err := db.NewIndex(r.indexName).
		Prefix(r.vectorPrefix()).
		Tag("$.metadata.category", product.FieldCategory).
		Numeric("$.metadata.availableQty", product.FieldAvailableQty).
		Numeric("$.metadata.leadTime", product.FieldLeadTime).
		VectorHNSW("$.embedding", vectorAlias, dim, db.DistanceCosine, hnsw.M, hnsw.EFConstruct).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build index %s: %w", r.indexName, err)
	}
	return def, nil
}

// EnsureIndex creates the product index unless it already exists.
// It reports whether a new index was created.
func (r *Repo) EnsureIndex(ctx context.Context, dim int, hnsw HNSWConfig) (bool, error) {
	def, err := r.IndexDefinition(dim, hnsw)
	if err != nil {
		return false, err
	}

	exists, err := r.store.IndexExists(ctx, r.indexName)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", r.indexName, err)
	}
	if exists {
		return false, nil
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return false, nil
		}
		return false, fmt.Errorf("create index %s: %w", r.indexName, err)
	}
	return true, nil
}

// IndexExists reports whether the product index is present.
func (r *Repo) IndexExists(ctx context.Context) (bool, error) {
	ok, err := r.store.IndexExists(ctx, r.indexName)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", r.indexName, err)
	}
	return ok, nil
}

// Count returns the number of indexed product vectors.
func (r *Repo) Count(ctx context.Context) (int64, error) {
	n, err := r.store.IndexDocCount(ctx, r.indexName)
	if err != nil {
		return 0, fmt.Errorf("count index %s: %w", r.indexName, err)
	}
	return n, nil
}
