package domain

import "errors"

var (
	// ErrProductNotFound signals an id returned by the index with no canonical record.
	ErrProductNotFound = errors.New("product not found")
	// ErrNoCandidates signals an empty similarity search result.
	ErrNoCandidates = errors.New("no candidates")
	// ErrInvalidRequest signals malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrTooManyItems signals a supply list above the configured limit.
	ErrTooManyItems = errors.New("too many items")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingRejected signals a provider refusal that retrying cannot fix (bad key, bad input).
	ErrEmbeddingRejected = errors.New("embedding request rejected")
)
