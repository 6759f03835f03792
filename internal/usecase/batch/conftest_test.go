package batch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
	"github.com/kailas-cloud/prodmatch/internal/metrics"
	"github.com/kailas-cloud/prodmatch/internal/repository/embcache"
)

func TestMain(m *testing.M) {
	metrics.Register()
	goleak.VerifyTestMain(m)
}

// mockResolver matches every item whose description is not in miss.
type mockResolver struct {
	miss  map[string]bool
	delay time.Duration
	hook  func(ctx context.Context, item supply.Item)

	mu       sync.Mutex
	inFlight int
	peak     int
	calls    atomic.Int32
}

func (m *mockResolver) FindBestProduct(
	ctx context.Context, item supply.Item, _ supply.UserContext,
) *product.MatchResult {
	m.calls.Add(1)
	m.mu.Lock()
	m.inFlight++
	m.peak = max(m.peak, m.inFlight)
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if m.hook != nil {
		m.hook(ctx, item)
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.miss[item.Description] {
		return nil
	}
	return &product.MatchResult{Record: product.Record{ID: "for-" + item.Description}}
}

type stubStats struct{}

func (stubStats) Stats() embcache.Stats { return embcache.Stats{Hits: 3, Misses: 1, HitRate: 75} }

func newTestService(t *testing.T, r Resolver, opts Options) *Service {
	t.Helper()
	svc, err := New(r, stubStats{}, opts, zap.NewNop())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(func() {
		if err := svc.Close(time.Second); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return svc
}

func itemsN(n int) []supply.Item {
	out := make([]supply.Item, n)
	for i := range out {
		out[i] = supply.Item{Description: string(rune('a' + i))}
	}
	return out
}
