// Package api serves the claim submission and query endpoints over HTTP.
//
// Endpoints:
//
//	POST /v1/claims                 - Submit a claim
//	GET  /v1/claims?status=...      - List claims, optionally by status
//	GET  /v1/claims/:id             - Get one claim
//	PUT  /v1/claims/:id/token       - Attach a verification token
//	GET  /healthz                   - Liveness
//	GET  /metrics                   - Prometheus metrics
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/claimrecon/internal/observability"
	"github.com/roach88/claimrecon/internal/store"
)

// shutdownTimeout bounds graceful shutdown in Run.
const shutdownTimeout = 10 * time.Second

// Server is the claim API.
type Server struct {
	store    store.ClaimStore
	metrics  *observability.Metrics
	gatherer prometheus.Gatherer
	tracing  trace.TracerProvider
	logger   *slog.Logger
	router   *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics counts requests in m.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithGatherer exposes g on /metrics. Default: prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		if g != nil {
			s.gatherer = g
		}
	}
}

// WithTracerProvider enables request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracing = tp }
}

// WithLogger sets the request logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer builds the router for st.
func NewServer(st store.ClaimStore, opts ...Option) *Server {
	s := &Server{
		store:    st,
		gatherer: prometheus.DefaultGatherer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if s.tracing != nil {
		router.Use(otelgin.Middleware(observability.ServiceName, otelgin.WithTracerProvider(s.tracing)))
	}
	router.Use(s.observe())

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/v1")
	v1.POST("/claims", s.handleSubmit)
	v1.GET("/claims", s.handleList)
	v1.GET("/claims/:id", s.handleGet)
	v1.PUT("/claims/:id/token", s.handleAttachToken)

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// observe logs and counts every request by its route template.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		code := c.Writer.Status()
		s.metrics.HTTPRequest(c.Request.Method, route, code)
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"route", route,
			"code", code,
			"duration", time.Since(start),
		)
	}
}
