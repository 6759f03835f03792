package match

import (
	"unicode/utf8"

	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/search/filter"
	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
)

// Filter thresholds.
const (
	minCategoryLen    = 10   // category is used only when longer than this
	minQuantityFilter = 1000 // quantity filter only above this
	maxLeadTimeFilter = 5    // lead time filter only below this
)

// BuildFilter derives pre-filter clauses from a supply item.
// The result is empty when no clause applies; backends then search unfiltered.
func BuildFilter(item supply.Item) filter.Expression {
	clauses := make([]filter.Clause, 0, 3)

	if utf8.RuneCountInString(item.Category) > minCategoryLen {
		if c, err := filter.Eq(product.FieldCategory, item.Category); err == nil {
			clauses = append(clauses, c)
		}
	}
	if item.MinQuantity != nil && *item.MinQuantity > minQuantityFilter {
		if c, err := filter.GTE(product.FieldAvailableQty, float64(*item.MinQuantity)); err == nil {
			clauses = append(clauses, c)
		}
	}
	if item.MaxLeadTime != nil && *item.MaxLeadTime < maxLeadTimeFilter {
		if c, err := filter.LTE(product.FieldLeadTime, float64(*item.MaxLeadTime)); err == nil {
			clauses = append(clauses, c)
		}
	}

	// at most three clauses, well under MaxClauses
	expr, _ := filter.NewExpression(clauses...)
	return expr
}
