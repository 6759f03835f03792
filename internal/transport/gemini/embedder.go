// Package gemini adapts the Gemini embedding API to domain.Embedder.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"

	"github.com/kailas-cloud/prodmatch/internal/domain"
	"github.com/kailas-cloud/prodmatch/internal/metrics"
)

const (
	providerName = "gemini"
	taskType     = "SEMANTIC_SIMILARITY"
)

// Config holds the Gemini client settings.
type Config struct {
	APIKey     string
	BaseURL    string // empty keeps the SDK default
	Model      string
	Dimensions int
	HTTPClient *http.Client
}

// Embedder calls models.batchEmbedContents with a single content part.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// NewEmbedder builds a Gemini API client.
func NewEmbedder(ctx context.Context, cfg Config) (*Embedder, error) {
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Embedder{client: client, model: cfg.Model, dimensions: cfg.Dimensions}, nil
}

// Embed implements domain.Embedder. Gemini reports no token usage for embeddings.
func (e *Embedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	conf := &genai.EmbedContentConfig{TaskType: taskType}
	if e.dimensions > 0 {
		dims := int32(e.dimensions) //nolint:gosec // bounded by config
		conf.OutputDimensionality = &dims
	}
	contents := []*genai.Content{{Parts: []*genai.Part{{Text: text}}}}

	start := time.Now()
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, conf)
	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "api_error").Inc()
		return domain.EmbeddingResult{}, parseAPIError(err)
	}
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, e.model).Observe(time.Since(start).Seconds())

	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, e.model, "empty_response").Inc()
		return domain.EmbeddingResult{}, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingProviderError)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, e.model, "success").Inc()
	return domain.EmbeddingResult{Embedding: resp.Embeddings[0].Values}, nil
}

// HealthCheck fetches the configured model's metadata.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.Models.Get(ctx, e.model, nil); err != nil {
		return fmt.Errorf("get model %s: %w", e.model, err)
	}
	return nil
}

func parseAPIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("embedding request: %w", err)
	}

	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("embedding request failed: %v: %w", err, domain.ErrEmbeddingProviderError)
	}

	wrap := domain.ErrEmbeddingProviderError
	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		return fmt.Errorf("gemini error %d %s: %s: %w: %w",
			apiErr.Code, apiErr.Status, apiErr.Message, domain.ErrRateLimited, wrap)
	case apiErr.Code >= 400 && apiErr.Code < 500:
		return fmt.Errorf("gemini error %d %s: %s: %w: %w",
			apiErr.Code, apiErr.Status, apiErr.Message, domain.ErrEmbeddingRejected, wrap)
	default:
		return fmt.Errorf("gemini error %d %s: %s: %w", apiErr.Code, apiErr.Status, apiErr.Message, wrap)
	}
}
