// Package pgcatalog serves the product catalog from Postgres with the pgvector extension.
package pgcatalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/kailas-cloud/prodmatch/internal/db"
)

// undefinedTable is the SQLSTATE Postgres returns for a missing relation.
const undefinedTable = "42P01"

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	conn.SetMaxOpenConns(20)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)
	return conn, nil
}

// EnsureSchema creates the pgvector extension and catalog tables when missing.
func EnsureSchema(ctx context.Context, conn *sqlx.DB, dim int) error {
	if dim <= 0 {
		return errors.New("vector dimension must be positive")
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS product_vectors (
			id            TEXT PRIMARY KEY,
			name          TEXT,
			price         DOUBLE PRECISION,
			category      TEXT,
			available_qty INTEGER,
			lead_time     DOUBLE PRECISION,
			geohash       TEXT,
			location      TEXT,
			embedding     vector(%d) NOT NULL
		)`, dim),
		`CREATE INDEX IF NOT EXISTS product_vectors_embedding_idx
			ON product_vectors USING hnsw (embedding vector_cosine_ops)`,
		`CREATE TABLE IF NOT EXISTS products (
			id   TEXT PRIMARY KEY,
			data JSONB NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SchemaExists reports whether the catalog tables are present.
func SchemaExists(ctx context.Context, conn *sqlx.DB) (bool, error) {
	var n int
	err := conn.GetContext(ctx, &n,
		`SELECT count(*) FROM information_schema.tables WHERE table_name IN ('product_vectors', 'products')`)
	if err != nil {
		return false, fmt.Errorf("inspect schema: %w", err)
	}
	return n == 2, nil
}

// CountVectors returns the number of rows in product_vectors, or db.ErrIndexNotFound without the schema.
func CountVectors(ctx context.Context, conn *sqlx.DB) (int64, error) {
	var n int64
	if err := conn.GetContext(ctx, &n, `SELECT count(*) FROM product_vectors`); err != nil {
		return 0, wrapErr(opCount, err)
	}
	return n, nil
}

// wrapErr maps driver errors to storage sentinels.
func wrapErr(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("%s: %w", op, db.ErrIndexNotFound)
	}
	return &db.Error{Op: op, Err: err}
}
