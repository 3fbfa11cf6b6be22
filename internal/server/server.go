// Package server exposes the back office over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/clearlane/complianced/internal/compliance"
	"github.com/clearlane/complianced/internal/library"
	"github.com/clearlane/complianced/internal/monitor"
	"github.com/clearlane/complianced/internal/orchestrator"
	"github.com/clearlane/complianced/internal/registry"
	"github.com/clearlane/complianced/internal/stats"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server wires the back office components behind the HTTP API.
type Server struct {
	echo   *echo.Echo
	config *Config
	logger *zap.Logger

	registry     *registry.Registry
	library      *library.Library
	monitor      *monitor.Monitor
	orchestrator *orchestrator.Orchestrator
	stats        *stats.Aggregator
	metrics      *Metrics

	metricsHandler http.Handler
}

// Deps are the components the server serves.
type Deps struct {
	Registry     *registry.Registry
	Library      *library.Library
	Monitor      *monitor.Monitor
	Orchestrator *orchestrator.Orchestrator
	Stats        *stats.Aggregator
	Metrics      *Metrics

	// MetricsHandler serves GET /metrics; nil disables the endpoint.
	MetricsHandler http.Handler
}

// New creates the HTTP server.
func New(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Registry == nil || deps.Library == nil || deps.Monitor == nil || deps.Orchestrator == nil || deps.Stats == nil {
		return nil, fmt.Errorf("all back office components are required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 8090,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	if deps.Metrics != nil {
		e.Use(deps.Metrics.Middleware())
	}

	s := &Server{
		echo:           e,
		config:         cfg,
		logger:         logger,
		registry:       deps.Registry,
		library:        deps.Library,
		monitor:        deps.Monitor,
		orchestrator:   deps.Orchestrator,
		stats:          deps.Stats,
		metrics:        deps.Metrics,
		metricsHandler: deps.MetricsHandler,
	}

	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	v1 := s.echo.Group("/api/v1")

	v1.GET("/status", s.handleStatus)
	v1.POST("/probe", s.handleProbe)

	v1.POST("/rulebooks", s.handleUploadRulebook)
	v1.GET("/rulebooks", s.handleListRulebooks)
	v1.POST("/rulebooks/refresh", s.handleRefreshRulebooks)
	v1.GET("/rulebooks/:scheme", s.handleGetRulebook)
	v1.DELETE("/rulebooks/:scheme", s.handleDeleteRulebook)

	v1.GET("/rules", s.handleQueryRules)
	v1.POST("/rules/reload", s.handleReloadRules)

	v1.POST("/payments/structured", s.handleSubmitStructured)
	v1.POST("/payments/document", s.handleSubmitDocument)
	v1.POST("/payments/batch", s.handleSubmitBatch)

	v1.GET("/history", s.handleHistory)
	v1.GET("/statistics", s.handleStatistics)
	v1.POST("/statistics/refresh", s.handleRefreshStatistics)
}

// errorBody is the error envelope for every non-2xx response. For partial
// failures the payment parsed in phase 1 rides along so the caller keeps it.
type errorBody struct {
	Error   string                  `json:"error"`
	Field   string                  `json:"field,omitempty"`
	Payment *compliance.PaymentData `json:"payment,omitempty"`
}

// writeError maps the error taxonomy onto HTTP statuses:
//
//	MalformedInputError  -> 400
//	registry.ErrNotFound -> 404
//	PartialFailureError  -> 422 (with the parsed payment in the body)
//	ServiceError         -> 502
//	ConnectivityError    -> 503
//	anything else        -> 500
func (s *Server) writeError(c echo.Context, err error) error {
	var malformed *compliance.MalformedInputError
	var partial *compliance.PartialFailureError
	var svcErr *compliance.ServiceError
	var connErr *compliance.ConnectivityError

	switch {
	case errors.As(err, &malformed):
		return c.JSON(http.StatusBadRequest, errorBody{Error: malformed.Error(), Field: malformed.Field})
	case errors.Is(err, registry.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.As(err, &partial):
		return c.JSON(http.StatusUnprocessableEntity, errorBody{Error: partial.Error(), Payment: partial.Payment})
	case errors.As(err, &svcErr):
		return c.JSON(http.StatusBadGateway, errorBody{Error: svcErr.Error()})
	case errors.As(err, &connErr):
		return c.JSON(http.StatusServiceUnavailable, errorBody{Error: connErr.Error()})
	}

	s.logger.Error("unhandled request error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, errorBody{Error: "internal error"})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
