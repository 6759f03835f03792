package job

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/prodmatch/internal/repository/embcache"
	"github.com/kailas-cloud/prodmatch/internal/usecase/health"
)

type stubStats struct{ s embcache.Stats }

func (s stubStats) Stats() embcache.Stats { return s.s }

type stubChecker struct{ r health.Report }

func (s stubChecker) Check(context.Context) health.Report { return s.r }

func TestCacheStats_Run(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	j := NewCacheStats(stubStats{embcache.Stats{Hits: 9, Misses: 1, HitRate: 90}}, zap.New(core))

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entries := logs.FilterMessage("Embedding cache stats").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	cache, ok := entries[0].ContextMap()["cache"].(map[string]any)
	if !ok {
		t.Fatalf("cache object missing: %v", entries[0].ContextMap())
	}
	if cache["hits"] != int64(9) || cache["hit_rate"] != 90.0 {
		t.Errorf("unexpected stats %v", cache)
	}
}

func TestHealthWatch_Run(t *testing.T) {
	ok := NewHealthWatch(stubChecker{health.Report{Status: health.Healthy}}, 0, zap.NewNop())
	if err := ok.Run(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	bad := NewHealthWatch(stubChecker{health.Report{
		Status: health.Degraded,
		Checks: map[string]health.CheckResult{health.CheckEmbedding: health.CheckError},
	}}, time.Second, zap.NewNop())
	if err := bad.Run(context.Background()); err == nil {
		t.Error("expected error for degraded report")
	}
}

type countingJob struct {
	runs  atomic.Int32
	block chan struct{}
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run(context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return nil
}

func TestScheduler_InvalidSpec(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	if err := s.Add("not a cron spec", &countingJob{}); err == nil {
		t.Fatal("expected error for invalid spec")
	}
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	j := &countingJob{block: make(chan struct{})}

	run := s.wrap(j, "@every 1s")
	done := make(chan struct{})
	go func() {
		run()
		close(done)
	}()

	// wait for the first run to start
	deadline := time.Now().Add(time.Second)
	for j.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	run() // overlaps, must be skipped
	close(j.block)
	<-done

	if got := j.runs.Load(); got != 1 {
		t.Errorf("expected 1 run, got %d", got)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(zap.NewNop())
	if err := s.Add("@every 1h", &countingJob{}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start(context.Background())
	s.Stop()
}
