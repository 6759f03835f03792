// Package sharedcache is the second embedding cache tier: a shared store that fails open.
// Every failure surfaces to callers as a miss, never as an error.
package sharedcache

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/db"
	"github.com/kailas-cloud/prodmatch/internal/metrics"
)

// errCallerDone marks a read abandoned by its caller. The breaker does not count it.
var errCallerDone = errors.New("caller context done")

// Cache is a fail-open byte cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

// store is the subset of db.KVStore the cache needs.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options tune the breaker guarding the store.
type Options struct {
	// Failures is the number of consecutive errors that opens the breaker.
	Failures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// WriteTimeout bounds a single write; writes outlive the caller's context.
	WriteTimeout time.Duration
}

// Redis wraps a key-value store behind a circuit breaker.
type Redis struct {
	store        store
	breaker      *gobreaker.CircuitBreaker
	writeTimeout time.Duration
	logger       *zap.Logger
}

var _ Cache = (*Redis)(nil)

// NewRedis creates the shared tier over s.
func NewRedis(s store, opts Options, logger *zap.Logger) *Redis {
	if opts.Failures == 0 {
		opts.Failures = 5
	}
	if opts.OpenTimeout <= 0 {
		opts.OpenTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	failures := opts.Failures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "shared-cache",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerDone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &Redis{store: s, breaker: breaker, writeTimeout: opts.WriteTimeout, logger: logger}
}

// Get returns the cached value. Missing keys and failures are both reported as a miss.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	v, err := r.breaker.Execute(func() (any, error) {
		data, err := r.store.Get(ctx, key)
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, nil
		}
		if err != nil && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCallerDone, err)
		}
		return data, err
	})
	if err != nil {
		r.report("get", key, err)
		return nil, false
	}
	data, _ := v.([]byte)
	if data == nil {
		return nil, false
	}
	return data, true
}

// Set stores value with ttl. Failures are logged and dropped.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	_, err := r.breaker.Execute(func() (any, error) {
		return nil, r.store.SetWithTTL(ctx, key, value, ttl)
	})
	if err != nil {
		r.report("set", key, err)
	}
}

// State exposes the breaker state for health reporting.
func (r *Redis) State() gobreaker.State {
	return r.breaker.State()
}

// report logs only failures that are not expected while the shared store is down.
func (r *Redis) report(op, key string, err error) {
	kind := classify(err)
	metrics.SharedCacheErrorsTotal.WithLabelValues(op, kind).Inc()

	if kind != "other" {
		r.logger.Debug("shared cache unavailable", zap.String("op", op), zap.String("kind", kind))
		return
	}
	r.logger.Warn("shared cache error",
		zap.String("op", op),
		zap.String("key", key),
		zap.Error(err),
	)
}

func classify(err error) string {
	switch {
	case errors.Is(err, errCallerDone):
		return "canceled"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "refused"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker"
	default:
		return "other"
	}
}

// Disabled is used when no shared store is configured.
type Disabled struct{}

var _ Cache = Disabled{}

// Get always misses.
func (Disabled) Get(context.Context, string) ([]byte, bool) { return nil, false }

// Set drops the value.
func (Disabled) Set(context.Context, string, []byte, time.Duration) {}
