package match

import (
	"context"

	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/search/filter"
)

// EmbeddingSource turns a description into a vector, usually through the embedding cache.
type EmbeddingSource interface {
	GetEmbedding(ctx context.Context, text string) ([]float32, error)
}

// CandidateSearcher runs the similarity search. Candidates come back in backend rank order.
type CandidateSearcher interface {
	Search(ctx context.Context, vector []float32, k int, filters filter.Expression) ([]product.Candidate, error)
}

// ProductReader fetches canonical records by id.
// A missing record is reported as domain.ErrProductNotFound.
type ProductReader interface {
	Get(ctx context.Context, id string) (*product.Record, error)
}
