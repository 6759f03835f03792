// Package product reads canonical product records stored as JSON documents.
package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kailas-cloud/prodmatch/internal/db"
	"github.com/kailas-cloud/prodmatch/internal/domain"
	domprod "github.com/kailas-cloud/prodmatch/internal/domain/product"
)

// store is the consumer interface for product records (ISP).
type store interface {
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
}

// Repo implements match.ProductReader over Redis JSON.
type Repo struct {
	store  store
	prefix string
}

// New creates a product repository. keyPrefix is the global prefix, e.g. "prodmatch:".
func New(s store, keyPrefix string) *Repo {
	return &Repo{store: s, prefix: keyPrefix + "product:"}
}

func (r *Repo) key(id string) string { return r.prefix + id }

// Get returns the canonical record, or domain.ErrProductNotFound.
func (r *Repo) Get(ctx context.Context, id string) (*domprod.Record, error) {
	key := r.key(id)
	raw, err := r.store.JSONGet(ctx, key, "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
		}
		return nil, fmt.Errorf("json.get %s: %w", key, err)
	}

	fields, err := parseJSONGetResult(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
	}
	return &domprod.Record{ID: id, Fields: fields}, nil
}

// parseJSONGetResult unwraps the array JSON.GET returns for the "$" path.
func parseJSONGetResult(raw []byte) (map[string]any, error) {
	var arr []map[string]any
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == 0 {
			return nil, nil
		}
		return arr[0], nil
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return obj, nil
}
