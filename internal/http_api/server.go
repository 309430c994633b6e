package http_api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/pkg/logger"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second

	serviceName = "Solana Telegram Bot"
)

// HTTPServer serves the health check, the read-only API and the metrics endpoint
type HTTPServer struct {
	logger *logger.Logger

	router *gin.Engine
	port   int

	mu       sync.Mutex
	server   *http.Server
	shutdown bool

	app         models.RayscoutI
	gatherer    prometheus.Gatherer
	environment string
	startedAt   time.Time
	now         func() time.Time
}

// corsMiddleware adds CORS headers to all responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// NewHTTPServer creates the server. gatherer backs /metrics; pass
// prometheus.DefaultGatherer in production.
func NewHTTPServer(
	app models.RayscoutI,
	port int,
	gatherer prometheus.Gatherer,
	development bool,
	logger *logger.Logger,
) *HTTPServer {
	if !development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), corsMiddleware())

	environment := "production"
	if development {
		environment = "development"
	}

	server := &HTTPServer{
		logger:      logger,
		router:      router,
		port:        port,
		app:         app,
		gatherer:    gatherer,
		environment: environment,
		startedAt:   time.Now(),
		now:         time.Now,
	}
	server.routes()
	return server
}

// Start listens until Shutdown is called.
func (s *HTTPServer) Start() error {
	addr := fmt.Sprintf("0.0.0.0:%d", s.port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.server = server
	s.mu.Unlock()

	s.logger.Info("Starting HTTP server", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start the HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shutdown = true
	server := s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}

func (s *HTTPServer) metricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

var _ models.APIServer = (*HTTPServer)(nil)
