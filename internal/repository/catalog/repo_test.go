package catalog

import (
	"context"
	"testing"

	"github.com/kailas-cloud/prodmatch/internal/db"
	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/search/filter"
)

func TestSearch_HappyPath(t *testing.T) {
	repo, ms := newTestRepo(t)

	cat, _ := filter.Eq(product.FieldCategory, "industrial fasteners")
	expr, _ := filter.NewExpression(cat)

	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
		if q.IndexName != "prodmatch:products:idx" {
			t.Errorf("unexpected index: %s", q.IndexName)
		}
		if q.K != 20 {
			t.Errorf("unexpected K: %d", q.K)
		}
		if q.Filters.IsEmpty() {
			t.Error("filter was dropped")
		}
		return &db.SearchResult{
			Total: 2,
			Entries: []db.SearchEntry{
				{
					Key:   "prodmatch:vec:p1",
					Score: 0.91,
					Fields: map[string]string{
						"metadata": `{"name":"Steel screw","price":45,"category":"hardware","leadTime":5,"geohash":"9q8yy"}`,
					},
				},
				{
					Key:    "prodmatch:vec:p2",
					Score:  0.72,
					Fields: map[string]string{"metadata": `[{"name":"Brass screw"}]`},
				},
			},
		}, nil
	}

	cands, err := repo.Search(context.Background(), []float32{0.1, 0.2}, 20, expr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	if cands[0].ID != "p1" || cands[1].ID != "p2" {
		t.Errorf("unexpected ids %s, %s", cands[0].ID, cands[1].ID)
	}
	if cands[0].Score == nil || *cands[0].Score != 0.91 {
		t.Errorf("unexpected score %v", cands[0].Score)
	}
	md := cands[0].Metadata
	if md.Price == nil || *md.Price != 45 || md.Geohash != "9q8yy" {
		t.Errorf("unexpected metadata %+v", md)
	}
	if md.LeadTime == nil || *md.LeadTime != 5 {
		t.Errorf("unexpected lead time %v", md.LeadTime)
	}
	if cands[1].Metadata.Name != "Brass screw" {
		t.Errorf("array metadata not decoded: %+v", cands[1].Metadata)
	}
}

func TestSearch_Empty(t *testing.T) {
	repo, _ := newTestRepo(t)

	cands, err := repo.Search(context.Background(), []float32{1}, 5, filter.Expression{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("expected no candidates, got %d", len(cands))
	}
}

func TestSearch_IndexMissing(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) (*db.SearchResult, error) {
		return nil, db.ErrIndexNotFound
	}

	_, err := repo.Search(context.Background(), []float32{1}, 5, filter.Expression{})
	if !IsIndexMissing(err) {
		t.Fatalf("expected index missing, got %v", err)
	}
}

func TestDecodeMetadata_Garbage(t *testing.T) {
	md := decodeMetadata("{not json")
	if md.Name != "" || md.Price != nil {
		t.Errorf("expected zero metadata, got %+v", md)
	}
	if md := decodeMetadata(""); md.Name != "" {
		t.Errorf("expected zero metadata, got %+v", md)
	}
}

func TestEnsureIndex(t *testing.T) {
	repo, ms := newTestRepo(t)

	var created *db.IndexDefinition
	ms.createIndexFn = func(_ context.Context, def *db.IndexDefinition) error {
		created = def
		return nil
	}

	ok, err := repo.EnsureIndex(context.Background(), 1536, HNSWConfig{M: 16, EFConstruct: 200})
	if err != nil || !ok {
		t.Fatalf("expected index to be created, ok=%v err=%v", ok, err)
	}
	if created.Name != "prodmatch:products:idx" {
		t.Errorf("unexpected name %s", created.Name)
	}
	if len(created.Prefixes) != 1 || created.Prefixes[0] != "prodmatch:vec:" {
		t.Errorf("unexpected prefixes %v", created.Prefixes)
	}
	if len(created.Fields) != 4 {
		t.Fatalf("expected 4 fields, got %d", len(created.Fields))
	}
	vec := created.Fields[3]
	if vec.Type != db.IndexFieldVector || vec.VectorDim != 1536 || vec.VectorDistance != db.DistanceCosine {
		t.Errorf("unexpected vector field %+v", vec)
	}
}

func TestEnsureIndex_Exists(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return true, nil }
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error {
		t.Error("CreateIndex must not be called")
		return nil
	}

	ok, err := repo.EnsureIndex(context.Background(), 8, HNSWConfig{M: 16, EFConstruct: 200})
	if err != nil || ok {
		t.Fatalf("expected no-op, ok=%v err=%v", ok, err)
	}
}

func TestEnsureIndex_Race(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.createIndexFn = func(context.Context, *db.IndexDefinition) error { return db.ErrIndexExists }

	ok, err := repo.EnsureIndex(context.Background(), 8, HNSWConfig{M: 16, EFConstruct: 200})
	if err != nil || ok {
		t.Fatalf("expected no-op, ok=%v err=%v", ok, err)
	}
}

func TestCount(t *testing.T) {
	repo, ms := newTestRepo(t)
	ms.docCountFn = func(_ context.Context, name string) (int64, error) {
		if name != "prodmatch:products:idx" {
			t.Errorf("unexpected index %q", name)
		}
		return 312, nil
	}

	n, err := repo.Count(context.Background())
	if err != nil || n != 312 {
		t.Fatalf("expected 312, got %d %v", n, err)
	}

	ms.docCountFn = func(context.Context, string) (int64, error) { return 0, db.ErrIndexNotFound }
	if _, err := repo.Count(context.Background()); !IsIndexMissing(err) {
		t.Errorf("expected missing index, got %v", err)
	}
}
