package health

import (
	"context"

	"github.com/sony/gobreaker"
)

// DBPinger checks catalog store availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// BreakerState reports the shared cache circuit breaker state.
type BreakerState interface {
	State() gobreaker.State
}
