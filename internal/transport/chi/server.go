package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/prodmatch/internal/domain"
	"github.com/kailas-cloud/prodmatch/internal/domain/supply"
	logpkg "github.com/kailas-cloud/prodmatch/internal/logger"
	healthuc "github.com/kailas-cloud/prodmatch/internal/usecase/health"
	"github.com/kailas-cloud/prodmatch/internal/version"
)

const (
	serviceName = "prodmatch"

	// DefaultMaxItems caps the supply list of one request.
	DefaultMaxItems = 20

	maxBodyBytes = 1 << 20
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the matching API.
type Server struct {
	generator     Generator
	stats         StatsSource
	health        HealthChecker
	maxItems      int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. stats may be nil.
func NewServer(generator Generator, stats StatsSource, health HealthChecker, logger *zap.Logger) *Server {
	s := &Server{
		generator: generator,
		stats:     stats,
		health:    health,
		maxItems:  DefaultMaxItems,
		logger:    logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrTooManyItems, http.StatusBadRequest, ErrorCodeTooManyItems),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, ErrorCodeValidationFailed),
	}
	return s
}

// WithMaxItems overrides the per-request item limit.
func (s *Server) WithMaxItems(n int) *Server {
	if n > 0 {
		s.maxItems = n
	}
	return s
}

// Routes mounts the API on r.
func (s *Server) Routes(r gochi.Router) {
	r.Post("/generate-products", s.GenerateProducts)
	r.Post("/test-match", s.TestMatch)
	r.Get("/health", s.HealthCheck)
	r.Get("/stats", s.Stats)
	r.Get("/metrics", s.Metrics)
}

// GenerateProducts handles POST /generate-products.
func (s *Server) GenerateProducts(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := s.validate(req); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	start := time.Now()
	products, report := s.generator.GenerateProductsWithReport(r.Context(), req.SupplyList, req.UserContext)

	writeJSON(w, http.StatusOK, GenerateResponse{
		Success:  true,
		Products: products,
		Metadata: GenerateMetadata{
			ProcessingTime: fmt.Sprintf("%dms", time.Since(start).Milliseconds()),
			ItemsProcessed: report.Items,
			Matched:        report.Matched,
			Timestamp:      time.Now().UTC(),
		},
	})
}

func (s *Server) validate(req GenerateRequest) error {
	if req.SupplyList == nil {
		return fmt.Errorf("%w: supplyList must be an array", domain.ErrInvalidRequest)
	}
	if len(req.SupplyList) > s.maxItems {
		return fmt.Errorf("%w: maximum %d products per request", domain.ErrTooManyItems, s.maxItems)
	}
	for i, it := range req.SupplyList {
		if err := it.Validate(); err != nil {
			return fmt.Errorf("supplyList[%d]: %w", i, err)
		}
	}
	return nil
}

// TestMatch handles POST /test-match with a canned single-item request.
func (s *Server) TestMatch(w http.ResponseWriter, r *http.Request) {
	items := []supply.Item{supply.SampleItem()}
	products, _ := s.generator.GenerateProductsWithReport(r.Context(), items, supply.SampleUserContext())

	writeJSON(w, http.StatusOK, TestMatchResponse{
		Success:     true,
		TestResults: products,
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:    report.Status,
		Checks:    report.Checks,
		Service:   serviceName,
		Version:   version.Version,
		Timestamp: time.Now().UTC(),
	})
}

// Stats handles GET /stats.
func (s *Server) Stats(w http.ResponseWriter, _ *http.Request) {
	if s.stats == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Stats())
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns the error text only when it is rooted in a client-facing sentinel.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrTooManyItems,
		domain.ErrInvalidRequest,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
