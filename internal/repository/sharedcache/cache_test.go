package sharedcache

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kailas-cloud/prodmatch/internal/db"
)

func refusedErr() error {
	return &db.Error{Op: db.OpGet, Err: &net.OpError{
		Op:  "dial",
		Net: "tcp",
		Err: os.NewSyscallError("connect", syscall.ECONNREFUSED),
	}}
}

func TestGet_Hit(t *testing.T) {
	ms := &mockKVStore{getFn: func(_ context.Context, key string) ([]byte, error) {
		if key != "k" {
			t.Errorf("unexpected key %q", key)
		}
		return []byte("v"), nil
	}}
	c := NewRedis(ms, Options{}, zap.NewNop())

	data, ok := c.Get(context.Background(), "k")
	if !ok || string(data) != "v" {
		t.Fatalf("expected hit, got %q %v", data, ok)
	}
}

func TestGet_MissIsNotFailure(t *testing.T) {
	ms := &mockKVStore{}
	c := NewRedis(ms, Options{Failures: 1}, zap.NewNop())

	for range 3 {
		if _, ok := c.Get(context.Background(), "k"); ok {
			t.Fatal("expected miss")
		}
	}
	if c.State() != gobreaker.StateClosed {
		t.Errorf("misses must not trip the breaker, state %s", c.State())
	}
	if ms.getCalls != 3 {
		t.Errorf("expected 3 store calls, got %d", ms.getCalls)
	}
}

func TestGet_RefusedIsSilentMiss(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ms := &mockKVStore{getFn: func(context.Context, string) ([]byte, error) {
		return nil, refusedErr()
	}}
	c := NewRedis(ms, Options{Failures: 100}, zap.New(core))

	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatal("expected miss")
	}
	if n := logs.FilterMessage("shared cache error").Len(); n != 0 {
		t.Errorf("connection refused must not be logged as an error, got %d entries", n)
	}
}

func TestGet_UnexpectedErrorLogged(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ms := &mockKVStore{getFn: func(context.Context, string) ([]byte, error) {
		return nil, &db.Error{Op: db.OpGet, Err: errors.New("WRONGTYPE Operation against a key")}
	}}
	c := NewRedis(ms, Options{Failures: 100}, zap.New(core))

	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatal("expected miss")
	}
	if n := logs.FilterMessage("shared cache error").Len(); n != 1 {
		t.Errorf("expected 1 warning, got %d", n)
	}
}

func TestBreaker_OpensAndShortCircuits(t *testing.T) {
	ms := &mockKVStore{getFn: func(context.Context, string) ([]byte, error) {
		return nil, refusedErr()
	}}
	c := NewRedis(ms, Options{Failures: 2, OpenTimeout: time.Hour}, zap.NewNop())

	for range 5 {
		c.Get(context.Background(), "k")
	}
	if c.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", c.State())
	}
	if ms.getCalls != 2 {
		t.Errorf("open breaker should stop store calls, got %d", ms.getCalls)
	}
}

func TestSet_SwallowsErrorsAndOutlivesCaller(t *testing.T) {
	var gotTTL time.Duration
	var ctxErr error
	ms := &mockKVStore{setFn: func(ctx context.Context, _ string, _ []byte, ttl time.Duration) error {
		gotTTL = ttl
		ctxErr = ctx.Err()
		return fmt.Errorf("boom")
	}}
	c := NewRedis(ms, Options{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c.Set(ctx, "k", []byte("v"), 720*time.Hour)

	if gotTTL != 720*time.Hour {
		t.Errorf("ttl = %s", gotTTL)
	}
	if ctxErr != nil {
		t.Errorf("write should not inherit caller cancellation, got %v", ctxErr)
	}
}

func TestGet_CanceledCallerDoesNotTripBreaker(t *testing.T) {
	ms := &mockKVStore{getFn: func(ctx context.Context, _ string) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return []byte("v"), nil
	}}
	c := NewRedis(ms, Options{Failures: 5}, zap.NewNop())

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	for range 10 {
		if _, ok := c.Get(canceled, "k"); ok {
			t.Fatal("canceled read must miss")
		}
	}
	if c.State() != gobreaker.StateClosed {
		t.Fatalf("caller cancellation must not open the breaker, state %s", c.State())
	}

	data, ok := c.Get(context.Background(), "k")
	if !ok || string(data) != "v" {
		t.Errorf("live read should hit, got %q %v", data, ok)
	}
}

func TestGet_CanceledMidFlightDoesNotTripBreaker(t *testing.T) {
	ms := &mockKVStore{}
	c := NewRedis(ms, Options{Failures: 2}, zap.NewNop())

	for range 5 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
		ms.getFn = func(context.Context, string) ([]byte, error) {
			cancel()
			return nil, &db.Error{Op: db.OpGet, Err: context.Canceled}
		}
		if _, ok := c.Get(ctx, "k"); ok {
			t.Fatal("expected miss")
		}
	}
	if c.State() != gobreaker.StateClosed {
		t.Errorf("reads abandoned by their caller must not count, state %s", c.State())
	}
}

func TestGet_StoreTimeoutStillCounts(t *testing.T) {
	ms := &mockKVStore{getFn: func(context.Context, string) ([]byte, error) {
		return nil, &db.Error{Op: db.OpGet, Err: context.DeadlineExceeded}
	}}
	c := NewRedis(ms, Options{Failures: 2}, zap.NewNop())

	for range 2 {
		c.Get(context.Background(), "k")
	}
	if c.State() != gobreaker.StateOpen {
		t.Errorf("store timeouts under a live context must open the breaker, state %s", c.State())
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{refusedErr(), "refused"},
		{gobreaker.ErrOpenState, "breaker"},
		{gobreaker.ErrTooManyRequests, "breaker"},
		{fmt.Errorf("%w: %w", errCallerDone, context.Canceled), "canceled"},
		{errors.New("other"), "other"},
	}
	for _, tt := range tests {
		if got := classify(tt.err); got != tt.want {
			t.Errorf("classify(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestDisabled(t *testing.T) {
	var c Cache = Disabled{}
	c.Set(context.Background(), "k", []byte("v"), time.Hour)
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Error("disabled cache must always miss")
	}
}
