package domain

import (
	"context"
	"fmt"
)

// Embedder is the text vectorization contract shared between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// CheckDimensions rejects vectors whose length differs from dim. dim <= 0 disables the check.
func CheckDimensions(vec []float32, dim int) error {
	if len(vec) == 0 {
		return fmt.Errorf("%w: empty vector", ErrVectorDimMismatch)
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: got %d, want %d", ErrVectorDimMismatch, len(vec), dim)
	}
	return nil
}
