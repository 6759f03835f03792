package chi

import (
	"time"

	"github.com/kailas-cloud/prodmatch/internal/domain/product"
	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
	healthuc "github.com/kailas-cloud/prodmatch/internal/usecase/health"
)

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.
const (
	ErrorCodeBadRequest       ErrorCode = "bad_request"
	ErrorCodeValidationFailed ErrorCode = "validation_failed"
	ErrorCodeTooManyItems     ErrorCode = "too_many_items"
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// GenerateRequest is the body of POST /generate-products.
type GenerateRequest struct {
	SupplyList  []supply.Item      `json:"supplyList"`
	UserContext supply.UserContext `json:"userContext"`
}

// GenerateResponse answers POST /generate-products. Products is aligned with the
// request's supplyList; unmatched positions are null.
type GenerateResponse struct {
	Success  bool                   `json:"success"`
	Products []*product.MatchResult `json:"products"`
	Metadata GenerateMetadata       `json:"metadata"`
}

// GenerateMetadata describes one pipeline run.
type GenerateMetadata struct {
	ProcessingTime string    `json:"processingTime"`
	ItemsProcessed int       `json:"itemsProcessed"`
	Matched        int       `json:"matched"`
	Timestamp      time.Time `json:"timestamp"`
}

// TestMatchResponse answers POST /test-match.
type TestMatchResponse struct {
	Success     bool                   `json:"success"`
	TestResults []*product.MatchResult `json:"testResults"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status    healthuc.Status                 `json:"status"`
	Checks    map[string]healthuc.CheckResult `json:"checks"`
	Service   string                          `json:"service"`
	Version   string                          `json:"version"`
	Timestamp time.Time                       `json:"timestamp"`
}
