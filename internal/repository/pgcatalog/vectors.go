package pgcatalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/kailas-cloud/prodmatch/internal/domain"
	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/search/filter"
)

// Storage operation names for db.Error.
const (
	opSearch    = "pg.search"
	opGetRecord = "pg.get_record"
	opCount     = "pg.count"
)

// columns maps filterable metadata fields to product_vectors columns.
var columns = map[string]string{
	product.FieldCategory:     "category",
	product.FieldAvailableQty: "available_qty",
	product.FieldLeadTime:     "lead_time",
}

// Vectors implements match.CandidateSearcher over product_vectors.
type Vectors struct {
	db *sqlx.DB
}

// NewVectors creates a vector search repository.
func NewVectors(conn *sqlx.DB) *Vectors {
	return &Vectors{db: conn}
}

type candidateRow struct {
	ID           string   `db:"id"`
	Name         *string  `db:"name"`
	Price        *float64 `db:"price"`
	Category     *string  `db:"category"`
	AvailableQty *int     `db:"available_qty"`
	LeadTime     *float64 `db:"lead_time"`
	Geohash      *string  `db:"geohash"`
	Location     *string  `db:"location"`
	Similarity   *float64 `db:"similarity"`
}

func (r candidateRow) toCandidate() product.Candidate {
	return product.Candidate{
		ID:    r.ID,
		Score: r.Similarity,
		Metadata: product.Metadata{
			Name:         deref(r.Name),
			Price:        r.Price,
			Category:     deref(r.Category),
			AvailableQty: r.AvailableQty,
			LeadTime:     r.LeadTime,
			Geohash:      deref(r.Geohash),
			Location:     deref(r.Location),
		},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Search returns up to k nearest products by cosine distance. An empty filter adds no WHERE clause.
func (v *Vectors) Search(
	ctx context.Context, vector []float32, k int, filters filter.Expression,
) ([]product.Candidate, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", domain.ErrInvalidRequest)
	}

	query, args, err := buildSearchQuery(vector, k, filters)
	if err != nil {
		return nil, err
	}

	var rows []candidateRow
	if err := v.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapErr(opSearch, err)
	}

	out := make([]product.Candidate, 0, len(rows))
	for _, row := range rows {
		c := row.toCandidate()
		if c.Score != nil {
			s := max(0, *c.Score)
			c.Score = &s
		}
		out = append(out, c)
	}
	return out, nil
}

func buildSearchQuery(vector []float32, k int, filters filter.Expression) (string, []any, error) {
	args := []any{pgvector.NewVector(vector)}

	var b strings.Builder
	b.WriteString(`SELECT id, name, price, category, available_qty, lead_time, geohash, location, ` +
		`1 - (embedding <=> $1) AS similarity FROM product_vectors`)

	if !filters.IsEmpty() {
		conds := make([]string, 0, len(filters.Must()))
		for _, c := range filters.Must() {
			col, ok := columns[c.Field()]
			if !ok {
				return "", nil, fmt.Errorf("unsupported filter field %q: %w", c.Field(), domain.ErrInvalidRequest)
			}
			n := "$" + strconv.Itoa(len(args)+1)
			switch c.Op() {
			case filter.OpGTE:
				conds = append(conds, col+" >= "+n)
				args = append(args, c.Number())
			case filter.OpLTE:
				conds = append(conds, col+" <= "+n)
				args = append(args, c.Number())
			default:
				conds = append(conds, "lower("+col+") = lower("+n+")")
				args = append(args, c.Value())
			}
		}
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}

	b.WriteString(" ORDER BY embedding <=> $1 LIMIT $" + strconv.Itoa(len(args)+1))
	args = append(args, k)
	return b.String(), args, nil
}
