// Package api provides the HTTP API server for landed-cost estimates.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"landed-cost/decision/catalog"
	"landed-cost/decision/pipeline"
	lcerrors "landed-cost/pkg/errors"
	"landed-cost/pkg/platform"
)

var version = "1.0.0"

// Server is the HTTP API server
type Server struct {
	httpServer *http.Server
	estimator  *pipeline.Estimator
	config     *Config
	logger     zerolog.Logger
	router     chi.Router
}

// Config holds server configuration
type Config struct {
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	MaxRequestSize int64
	MaxBatchSize   int
	CORSOrigins    []string
	APIKey         string
}

// DefaultConfig returns default server configuration
func DefaultConfig() *Config {
	return &Config{
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   60 * time.Second,
		RequestTimeout: 60 * time.Second,
		MaxRequestSize: 10 * 1024 * 1024, // 10MB
		MaxBatchSize:   100,
		CORSOrigins:    []string{"*"},
	}
}

// NewServer creates a new API server
func NewServer(est *pipeline.Estimator, config *Config, logger zerolog.Logger) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	s := &Server{
		estimator: est,
		config:    config,
		logger:    logger,
	}
	s.router = s.routes()
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.config.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.config.RequestTimeout))
	}
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(platform.APIKeyMiddleware(s.config.APIKey))

		r.Get("/categories", s.handleCategories)
		r.Get("/routes", s.handleRoutes)
		r.Post("/estimate", s.handleEstimate)
		r.Post("/estimate/batch", s.handleEstimateBatch)

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/top-queries", s.handleTopQueries)
			r.Get("/category-trends", s.handleCategoryTrends)
			r.Get("/daily", s.handleDailyStats)
		})
	})

	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = s.newHTTPServer()
	return s.serve()
}

func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
}

func (s *Server) serve() error {
	s.logger.Info().
		Int("port", s.config.Port).
		Str("version", version).
		Str("registry_version", s.estimator.Registry().Version()).
		Msg("Starting landed-cost API server")
	return s.httpServer.ListenAndServe()
}

// StartWithGracefulShutdown serves until ctx is done, then drains in-flight
// requests for up to 30 seconds.
func (s *Server) StartWithGracefulShutdown(ctx context.Context) error {
	s.httpServer = s.newHTTPServer()

	errChan := make(chan error, 1)
	go func() {
		err := s.serve()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errChan <- err
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errChan
	}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		allowed := false
		for _, o := range s.config.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HEALTH ENDPOINTS
// =============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.estimator.Sink().Ping(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("analytics sink not ready")
		s.jsonError(w, http.StatusServiceUnavailable, "analytics store not ready")
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":           "ready",
		"registry_version": s.estimator.Registry().Version(),
		"categories":       s.estimator.Registry().Len(),
	})
}

// =============================================================================
// REGISTRY ENDPOINTS
// =============================================================================

// CategoryResponse summarises one registry profile.
type CategoryResponse struct {
	ID              string       `json:"id"`
	Label           string       `json:"label"`
	Kind            catalog.Kind `json:"kind"`
	HSCodeHint      string       `json:"hs_code_hint"`
	DutyRatePercent float64      `json:"duty_rate_percent"`
	MOQUnits        int          `json:"moq_units"`
	LeadTimeDays    int          `json:"lead_time_days"`
	Fallback        bool         `json:"fallback"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	reg := s.estimator.Registry()
	profiles := reg.Profiles()

	resp := make([]CategoryResponse, len(profiles))
	for i, p := range profiles {
		resp[i] = CategoryResponse{
			ID:              p.ID,
			Label:           p.Label,
			Kind:            p.Kind,
			HSCodeHint:      p.HSCodeHint,
			DutyRatePercent: p.DutyRatePercent,
			MOQUnits:        p.MOQUnits,
			LeadTimeDays:    p.LeadTimeDays,
			Fallback:        reg.IsFallback(p.ID),
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	reg := s.estimator.Registry()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"default_route": reg.DefaultRoute(),
		"routes":        reg.Routes(),
	})
}

// =============================================================================
// ESTIMATE ENDPOINTS
// =============================================================================

// BatchRequest is the body of POST /api/v1/estimate/batch.
type BatchRequest struct {
	Requests []pipeline.Request `json:"requests"`
}

// BatchResponse carries one item per request, in order.
type BatchResponse struct {
	Items     []pipeline.BatchItem `json:"items"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req pipeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	resp, err := s.estimator.Estimate(r.Context(), req)
	if err != nil {
		s.estimateError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleEstimateBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if len(req.Requests) == 0 {
		s.jsonError(w, http.StatusBadRequest, "requests is required")
		return
	}
	if len(req.Requests) > s.config.MaxBatchSize {
		s.jsonCodeError(w, http.StatusBadRequest, lcerrors.ErrCodeBatchTooLarge,
			fmt.Sprintf("batch of %d exceeds the limit of %d", len(req.Requests), s.config.MaxBatchSize))
		return
	}

	items, err := s.estimator.EstimateBatch(r.Context(), req.Requests)
	if err != nil {
		s.jsonError(w, http.StatusServiceUnavailable, fmt.Sprintf("batch interrupted: %v", err))
		return
	}

	resp := BatchResponse{Items: items}
	for _, item := range items {
		if item.Response != nil {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) estimateError(w http.ResponseWriter, err error) {
	if lcerrors.IsValidation(err) {
		le, _ := lcerrors.AsError(err)
		s.jsonCodeError(w, http.StatusBadRequest, le.Code, le.Message)
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.jsonError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	s.logger.Error().Err(err).Msg("estimate failed")
	s.jsonError(w, http.StatusInternalServerError, "estimate failed")
}

// =============================================================================
// ANALYTICS ENDPOINTS
// =============================================================================

func (s *Server) handleTopQueries(w http.ResponseWriter, r *http.Request) {
	days, ok := s.intParam(w, r, "days", 7)
	if !ok {
		return
	}
	limit, ok := s.intParam(w, r, "limit", 10)
	if !ok {
		return
	}

	rows, err := s.estimator.Sink().TopQueries(r.Context(), days, limit)
	if err != nil {
		s.analyticsError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rows)
}

func (s *Server) handleCategoryTrends(w http.ResponseWriter, r *http.Request) {
	days, ok := s.intParam(w, r, "days", 30)
	if !ok {
		return
	}

	rows, err := s.estimator.Sink().CategoryTrends(r.Context(), days)
	if err != nil {
		s.analyticsError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rows)
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	days, ok := s.intParam(w, r, "days", 7)
	if !ok {
		return
	}

	rows, err := s.estimator.Sink().DailyStats(r.Context(), days)
	if err != nil {
		s.analyticsError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, rows)
}

func (s *Server) analyticsError(w http.ResponseWriter, err error) {
	s.logger.Error().Err(lcerrors.NewAnalyticsError("query", err)).Msg("analytics query failed")
	s.jsonCodeError(w, http.StatusInternalServerError, lcerrors.ErrCodeAnalyticsFailed, "analytics query failed")
}

// =============================================================================
// HELPERS
// =============================================================================

// intParam reads a positive integer query parameter, writing a 400 on bad input.
func (s *Server) intParam(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a positive integer", name))
		return 0, false
	}
	return v, true
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
	})
}

func (s *Server) jsonCodeError(w http.ResponseWriter, status int, code, message string) {
	s.jsonResponse(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}
