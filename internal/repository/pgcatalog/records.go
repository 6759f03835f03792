package pgcatalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/kailas-cloud/prodmatch/internal/domain"
	"github.com/kailas-cloud/prodmatch/internal/domain/product"
)

// Records implements match.ProductReader over the products table.
type Records struct {
	db *sqlx.DB
}

// NewRecords creates a product record repository.
func NewRecords(conn *sqlx.DB) *Records {
	return &Records{db: conn}
}

// Get returns the canonical record, or domain.ErrProductNotFound.
func (r *Records) Get(ctx context.Context, id string) (*product.Record, error) {
	var data []byte
	err := r.db.GetContext(ctx, &data, `SELECT data FROM products WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, domain.ErrProductNotFound)
		}
		return nil, wrapErr(opGetRecord, err)
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", id, err)
	}
	return &product.Record{ID: id, Fields: fields}, nil
}
