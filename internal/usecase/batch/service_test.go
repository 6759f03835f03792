package batch

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
)

func TestGenerateProducts_PreservesPositions(t *testing.T) {
	r := &mockResolver{miss: map[string]bool{"b": true, "e": true}}
	svc := newTestService(t, r, Options{BatchSize: 2})

	items := itemsN(5)
	out, report := svc.GenerateProductsWithReport(context.Background(), items, supply.UserContext{})

	if len(out) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(out))
	}
	for i, item := range items {
		miss := r.miss[item.Description]
		if miss && out[i] != nil {
			t.Errorf("position %d: expected nil", i)
		}
		if !miss && (out[i] == nil || out[i].Record.ID != "for-"+item.Description) {
			t.Errorf("position %d: unexpected result %+v", i, out[i])
		}
	}
	if report.Items != 5 || report.Matched != 3 || report.Unmatched != 2 || report.Batches != 3 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestGenerateProducts_Empty(t *testing.T) {
	svc := newTestService(t, &mockResolver{}, Options{})

	out, report := svc.GenerateProductsWithReport(context.Background(), nil, supply.UserContext{})
	if len(out) != 0 {
		t.Errorf("expected empty output, got %d", len(out))
	}
	if report.Batches != 0 {
		t.Errorf("expected no batches, got %d", report.Batches)
	}
}

func TestGenerateProducts_BoundedByBatchSize(t *testing.T) {
	r := &mockResolver{delay: 10 * time.Millisecond}
	svc := newTestService(t, r, Options{BatchSize: 3, Workers: 50})

	svc.GenerateProducts(context.Background(), itemsN(10), supply.UserContext{})

	if r.peak > 3 {
		t.Errorf("batches overlapped: peak concurrency %d", r.peak)
	}
	if r.calls.Load() != 10 {
		t.Errorf("expected 10 resolutions, got %d", r.calls.Load())
	}
}

func TestGenerateProducts_ConcurrentWithinBatch(t *testing.T) {
	r := &mockResolver{delay: 30 * time.Millisecond}
	svc := newTestService(t, r, Options{BatchSize: 4})

	svc.GenerateProducts(context.Background(), itemsN(4), supply.UserContext{})

	if r.peak < 2 {
		t.Errorf("expected items of one batch to run concurrently, peak %d", r.peak)
	}
}

func TestGenerateProducts_CanceledBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &mockResolver{}
	r.hook = func(_ context.Context, item supply.Item) {
		if item.Description == "a" {
			cancel()
		}
	}
	svc := newTestService(t, r, Options{BatchSize: 2})

	out, report := svc.GenerateProductsWithReport(ctx, itemsN(6), supply.UserContext{})

	if len(out) != 6 {
		t.Fatalf("expected 6 positions, got %d", len(out))
	}
	if report.Batches != 1 {
		t.Errorf("expected to stop after the first batch, got %d batches", report.Batches)
	}
	for i := 2; i < 6; i++ {
		if out[i] != nil {
			t.Errorf("position %d should be nil after cancellation", i)
		}
	}
	if r.calls.Load() != 2 {
		t.Errorf("expected 2 resolutions, got %d", r.calls.Load())
	}
}

func TestGenerateProducts_ClosedPool(t *testing.T) {
	svc, err := New(&mockResolver{}, nil, Options{BatchSize: 2}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(time.Second); err != nil {
		t.Fatal(err)
	}

	out := svc.GenerateProducts(context.Background(), itemsN(3), supply.UserContext{})
	if len(out) != 3 {
		t.Fatalf("expected 3 positions, got %d", len(out))
	}
	for i, r := range out {
		if r != nil {
			t.Errorf("position %d: expected nil from closed pool", i)
		}
	}
}

func TestNew_RequiresResolver(t *testing.T) {
	if _, err := New(nil, nil, Options{}, zap.NewNop()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNew_NilLoggerSurvivesWorkerPanic(t *testing.T) {
	r := &mockResolver{hook: func(_ context.Context, item supply.Item) {
		if item.Description == "b" {
			panic("resolver blew up")
		}
	}}
	svc, err := New(r, stubStats{}, Options{BatchSize: 3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = svc.Close(time.Second) }()

	out := svc.GenerateProducts(context.Background(), itemsN(3), supply.UserContext{})
	if len(out) != 3 || out[0] == nil || out[1] != nil || out[2] == nil {
		t.Errorf("unexpected results %v", out)
	}
}
