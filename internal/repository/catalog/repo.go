// Package catalog serves product similarity search from a Redis FT vector index.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/prodmatch/internal/db"
	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/search/filter"
)

const metadataField = "metadata"

// store is the consumer interface for catalog operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	IndexDocCount(ctx context.Context, name string) (int64, error)
}

// Repo implements match.CandidateSearcher over Redis.
type Repo struct {
	store     store
	keyPrefix string
	indexName string
}

// New creates a catalog repository. keyPrefix is the global prefix, e.g. "prodmatch:".
func New(s store, keyPrefix, indexName string) *Repo {
	return &Repo{store: s, keyPrefix: keyPrefix, indexName: indexName}
}

func (r *Repo) vectorPrefix() string { return r.keyPrefix + "vec:" }

// Search returns up to k nearest products ordered by descending similarity.
// An empty filter searches the whole index.
func (r *Repo) Search(
	ctx context.Context, vector []float32, k int, filters filter.Expression,
) ([]product.Candidate, error) {
	q := &db.KNNQuery{
		IndexName:    r.indexName,
		Filters:      filters,
		Vector:       vector,
		K:            k,
		ReturnFields: []string{"$.metadata", "AS", metadataField, "__vector_score"},
	}

	sr, err := r.store.SearchKNN(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w", r.indexName, err)
	}
	return r.parseCandidates(sr), nil
}

func (r *Repo) parseCandidates(sr *db.SearchResult) []product.Candidate {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	prefix := r.vectorPrefix()
	out := make([]product.Candidate, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		score := e.Score
		out = append(out, product.Candidate{
			ID:       product.IDFromKey(e.Key, prefix),
			Score:    &score,
			Metadata: decodeMetadata(e.Fields[metadataField]),
		})
	}
	return out
}

// decodeMetadata accepts both the object form and the single-element array form
// the Query Engine uses for JSONPath projections. Undecodable metadata yields zero values.
func decodeMetadata(raw string) product.Metadata {
	var m product.Metadata
	data := bytes.TrimSpace([]byte(raw))
	if len(data) == 0 {
		return m
	}
	if data[0] == '[' {
		var arr []product.Metadata
		if json.Unmarshal(data, &arr) == nil && len(arr) > 0 {
			return arr[0]
		}
		return m
	}
	_ = json.Unmarshal(data, &m)
	return m
}

// IsIndexMissing reports whether err means the product index has not been created.
func IsIndexMissing(err error) bool {
	return errors.Is(err, db.ErrIndexNotFound)
}
