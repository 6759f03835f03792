package chi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
	"github.com/kailas-cloud/prodmatch/internal/repository/embcache"
	batchuc "github.com/kailas-cloud/prodmatch/internal/usecase/batch"
	healthuc "github.com/kailas-cloud/prodmatch/internal/usecase/health"
)

type mockGenerator struct {
	generateFn func(ctx context.Context, items []supply.Item, user supply.UserContext) []*product.MatchResult
	gotItems   []supply.Item
	gotUser    supply.UserContext
	calls      int
}

func (m *mockGenerator) GenerateProductsWithReport(
	ctx context.Context, items []supply.Item, user supply.UserContext,
) ([]*product.MatchResult, batchuc.Report) {
	m.calls++
	m.gotItems = items
	m.gotUser = user

	out := make([]*product.MatchResult, len(items))
	if m.generateFn != nil {
		out = m.generateFn(ctx, items, user)
	}
	report := batchuc.Report{Items: len(items)}
	for _, r := range out {
		if r != nil {
			report.Matched++
		}
	}
	report.Unmatched = report.Items - report.Matched
	return out, report
}

type mockStats struct {
	stats embcache.Stats
}

func (m *mockStats) Stats() embcache.Stats { return m.stats }

type mockHealth struct {
	report healthuc.Report
}

func (m *mockHealth) Check(_ context.Context) healthuc.Report { return m.report }

func healthyReport() healthuc.Report {
	return healthuc.Report{
		Status: healthuc.Healthy,
		Checks: map[string]healthuc.CheckResult{
			healthuc.CheckDatabase:  healthuc.CheckOK,
			healthuc.CheckEmbedding: healthuc.CheckOK,
		},
	}
}

func matched(id string, score float64) *product.MatchResult {
	return &product.MatchResult{
		Record:      product.Record{ID: id, Fields: map[string]any{"name": "Product " + id}},
		MatchScore:  score,
		VectorScore: score,
	}
}

type fixture struct {
	gen    *mockGenerator
	stats  *mockStats
	health *mockHealth
	server *Server
	router http.Handler
}

func newFixture(t *testing.T, apiKeys ...string) *fixture {
	t.Helper()
	f := &fixture{
		gen:    &mockGenerator{},
		stats:  &mockStats{},
		health: &mockHealth{report: healthyReport()},
	}
	f.server = NewServer(f.gen, f.stats, f.health, zap.NewNop())
	f.router = NewRouter(f.server, apiKeys, zap.NewNop())
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func newFixtureWith(s *Server) *fixture {
	return &fixture{server: s, router: NewRouter(s, nil, zap.NewNop())}
}
